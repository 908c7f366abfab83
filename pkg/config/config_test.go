package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeEnvFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadWithPath_Defaults(t *testing.T) {
	path := writeEnvFile(t, "APP_NAME=rpg-lobby-test\n")

	cfg, err := LoadWithPath(path)
	require.NoError(t, err)

	assert.Equal(t, "rpg-lobby-test", cfg.App.Name)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, StoreDriverPostgres, cfg.Store.Driver)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "session-events", cfg.Kafka.Topic)
	assert.Equal(t, "authenticated", cfg.Auth.Audience)
	assert.Equal(t, time.Minute, cfg.Auth.TokenCacheTTL)
	assert.Equal(t, 100*time.Millisecond, cfg.Outbox.PollInterval)
	assert.Equal(t, 7, cfg.Outbox.CleanupRetentionDays)
	assert.False(t, cfg.Outbox.Embedded)
	assert.Equal(t, ".dlq", cfg.Outbox.DeadLetterSuffix)
	assert.True(t, cfg.CORS.AllowAnyOrigin())
	assert.True(t, cfg.IsDevelopment())
}

func TestLoadWithPath_SQLiteDriver(t *testing.T) {
	path := writeEnvFile(t, "STORE_DRIVER=SQLite\nSTORE_SQLITE_PATH=/tmp/lobby.db\nKAFKA_BROKERS=a:9092, b:9092\n")

	cfg, err := LoadWithPath(path)
	require.NoError(t, err)

	assert.Equal(t, StoreDriverSQLite, cfg.Store.Driver)
	assert.Equal(t, "/tmp/lobby.db", cfg.Store.SQLitePath)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
}

func TestLoadWithPath_MissingFile(t *testing.T) {
	_, err := LoadWithPath(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			App:      AppConfig{Name: "rpg-lobby", Environment: "development"},
			Server:   ServerConfig{Port: 8080},
			Store:    StoreConfig{Driver: StoreDriverPostgres},
			Database: DatabaseConfig{Host: "localhost", DBName: "rpg_lobby"},
			Auth:     AuthConfig{Secret: defaultAuthSecret},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "missing app name", mutate: func(c *Config) { c.App.Name = "" }, wantErr: true},
		{name: "bad port", mutate: func(c *Config) { c.Server.Port = 70000 }, wantErr: true},
		{name: "unknown driver", mutate: func(c *Config) { c.Store.Driver = "mysql" }, wantErr: true},
		{name: "postgres without host", mutate: func(c *Config) { c.Database.Host = "" }, wantErr: true},
		{name: "sqlite without path", mutate: func(c *Config) { c.Store.Driver = StoreDriverSQLite }, wantErr: true},
		{name: "sqlite with path", mutate: func(c *Config) {
			c.Store.Driver = StoreDriverSQLite
			c.Store.SQLitePath = "lobby.db"
		}},
		{name: "empty secret", mutate: func(c *Config) { c.Auth.Secret = "" }, wantErr: true},
		{name: "default secret in production", mutate: func(c *Config) { c.App.Environment = "production" }, wantErr: true},
		{name: "custom secret in production", mutate: func(c *Config) {
			c.App.Environment = "production"
			c.Auth.Secret = "s3cr3t"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCORSConfig_AllowAnyOrigin(t *testing.T) {
	assert.True(t, (&CORSConfig{}).AllowAnyOrigin())
	assert.True(t, (&CORSConfig{AllowedOrigins: []string{"https://a.example", "*"}}).AllowAnyOrigin())
	assert.False(t, (&CORSConfig{AllowedOrigins: []string{"https://a.example"}}).AllowAnyOrigin())
}
