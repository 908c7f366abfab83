package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":       zapcore.DebugLevel,
		"development": zapcore.DebugLevel,
		"WARN":        zapcore.WarnLevel,
		"error":       zapcore.ErrorLevel,
		"production":  zapcore.InfoLevel,
		"":            zapcore.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLevel(in), in)
	}
}

func TestGet_BeforeInitIsNoop(t *testing.T) {
	mu.Lock()
	globalLogger = nil
	mu.Unlock()

	log := Get()
	require.NotNil(t, log)
	log.Info("dropped")
}

func TestInit_SetsGlobal(t *testing.T) {
	require.NoError(t, Init(&Config{Level: "debug", ServiceName: "lobby-test", Development: true}))
	assert.NotNil(t, Get().Zap())
	Sync()
}

func TestLogger_WithAddsFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	log := New(zap.New(core)).With(zap.String("session_id", "s1"))

	log.Info("joined", zap.String("user_id", "u1"))
	log.Debug("below level")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "joined", entries[0].Message)
	ctx := entries[0].ContextMap()
	assert.Equal(t, "s1", ctx["session_id"])
	assert.Equal(t, "u1", ctx["user_id"])
}
