package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProducer_Validation(t *testing.T) {
	_, err := NewProducer(context.Background(), nil)
	assert.Error(t, err)

	_, err = NewProducer(context.Background(), &ProducerConfig{})
	assert.EqualError(t, err, "kafka brokers are required")
}

func TestDefaultProducerConfig(t *testing.T) {
	cfg := DefaultProducerConfig([]string{"localhost:9092"}, "relay")
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.RetryInterval)
	assert.Equal(t, "relay", cfg.ClientID)
}

func TestToRecord(t *testing.T) {
	ts := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	record := toRecord(&Message{
		Topic:     "session-events",
		Key:       []byte("s1"),
		Value:     []byte(`{"a":1}`),
		Headers:   map[string]string{"event_type": "participation.joined"},
		Timestamp: ts,
	})

	assert.Equal(t, "session-events", record.Topic)
	assert.Equal(t, []byte("s1"), record.Key)
	assert.Equal(t, ts, record.Timestamp)
	require.Len(t, record.Headers, 1)
	assert.Equal(t, "event_type", record.Headers[0].Key)
	assert.Equal(t, []byte("participation.joined"), record.Headers[0].Value)
}
