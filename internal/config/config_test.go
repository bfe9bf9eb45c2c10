package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_YAMLWithDefaults(t *testing.T) {
	path := writeConfig(t, `
postgres:
  dsn: "host=db"
kafka:
  brokers: ["k1:9092", "k2:9092"]
outbox:
  retry_delay: 2m
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "host=db", cfg.Postgres.DSN)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "agenda.item.changed", cfg.Kafka.Topic)
	assert.Equal(t, 2*time.Minute, cfg.Outbox.RetryDelay)
	assert.Equal(t, 5, cfg.Outbox.MaxAttempts)
	assert.Equal(t, 500, cfg.Rebuild.BatchSize)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	path := writeConfig(t, `
postgres:
  dsn: "host=db"
rebuild:
  batch_size: 100
`)
	t.Setenv("AGENDA_POSTGRES_DSN", "host=other")
	t.Setenv("AGENDA_REBUILD_BATCH_SIZE", "250")
	t.Setenv("AGENDA_KAFKA_BROKERS", "a:1,b:2")
	t.Setenv("POSTGRES_PASSWORD", "s3cret")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "host=other password=s3cret", cfg.Postgres.DSN)
	assert.Equal(t, 250, cfg.Rebuild.BatchSize)
	assert.Equal(t, []string{"a:1", "b:2"}, cfg.Kafka.Brokers)
}

func TestLoad_MissingFileUsesEnv(t *testing.T) {
	t.Setenv("AGENDA_POSTGRES_DSN", "host=env")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "host=env", cfg.Postgres.DSN)
}

func TestLoad_RequiresDSN(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9000\n")
	_, err := Load(path)
	assert.Error(t, err)
}
