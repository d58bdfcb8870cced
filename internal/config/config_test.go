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
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := writeConfig(t, `
log_level = "debug"

[binance]
api_key    = "k"
secret_key = "s"

[position]
poll_interval = "250ms"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "k", cfg.Binance.ApiKey)
	assert.Equal(t, 250*time.Millisecond, cfg.Position.PollInterval.Duration)

	// Untouched sections keep their defaults.
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "dengine:targets", cfg.Redis.TargetChannel)
	assert.Equal(t, []string{"ts-p0.5"}, cfg.Position.DefaultFollowups)
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("DENGINE_BINANCE_API_KEY", "env-key")
	t.Setenv("DENGINE_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("DENGINE_POSITION_POLL_INTERVAL", "3s")
	t.Setenv("DENGINE_POSITION_DEFAULT_FOLLOWUPS", "ts-p1, ts-p2")

	path := writeConfig(t, `
[binance]
api_key    = "file-key"
secret_key = "s"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env-key", cfg.Binance.ApiKey)
	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
	assert.Equal(t, 3*time.Second, cfg.Position.PollInterval.Duration)
	assert.Equal(t, []string{"ts-p1", "ts-p2"}, cfg.Position.DefaultFollowups)
}

func TestValidateAcceptsCompleteConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Binance.ApiKey = "k"
	cfg.Binance.SecretKey = "s"
	require.NoError(t, cfg.Validate())
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.LogLevel = "verbose"
	cfg.Redis.Addr = ""
	cfg.Position.PollInterval.Duration = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log_level")
	assert.Contains(t, err.Error(), "binance")
	assert.Contains(t, err.Error(), "redis: addr")
	assert.Contains(t, err.Error(), "poll_interval")
}

func TestValidateSkipsDisabledSections(t *testing.T) {
	cfg := Defaults()
	cfg.Binance.ApiKey = "k"
	cfg.Binance.SecretKey = "s"
	cfg.Postgres.Enabled = false
	cfg.Postgres.Host = ""
	cfg.S3.Enabled = false
	cfg.S3.Bucket = ""

	require.NoError(t, cfg.Validate())
}
