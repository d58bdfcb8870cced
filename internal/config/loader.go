package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies DENGINE_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known DENGINE_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Binance ──
	setStr(&cfg.Binance.ApiKey, "DENGINE_BINANCE_API_KEY")
	setStr(&cfg.Binance.SecretKey, "DENGINE_BINANCE_SECRET_KEY")
	setStr(&cfg.Binance.WsHost, "DENGINE_BINANCE_WS_HOST")
	setBool(&cfg.Binance.Testnet, "DENGINE_BINANCE_TESTNET")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "DENGINE_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "DENGINE_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "DENGINE_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "DENGINE_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "DENGINE_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "DENGINE_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "DENGINE_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "DENGINE_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "DENGINE_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "DENGINE_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "DENGINE_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "DENGINE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "DENGINE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "DENGINE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "DENGINE_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "DENGINE_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "DENGINE_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.TargetChannel, "DENGINE_REDIS_TARGET_CHANNEL")
	setStr(&cfg.Redis.FillChannel, "DENGINE_REDIS_FILL_CHANNEL")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "DENGINE_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "DENGINE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "DENGINE_S3_REGION")
	setStr(&cfg.S3.Bucket, "DENGINE_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "DENGINE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "DENGINE_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "DENGINE_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "DENGINE_S3_FORCE_PATH_STYLE")

	// ── Position ──
	setDuration(&cfg.Position.PollInterval, "DENGINE_POSITION_POLL_INTERVAL")
	setStringSlice(&cfg.Position.DefaultFollowups, "DENGINE_POSITION_DEFAULT_FOLLOWUPS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "DENGINE_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "DENGINE_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "DENGINE_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "DENGINE_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "DENGINE_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
