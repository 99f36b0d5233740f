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
// built-in defaults, applies DEXENGINE_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after
// Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known DEXENGINE_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Engine ──
	setStr(&cfg.Engine.BaseToken, "DEXENGINE_ENGINE_BASE_TOKEN")
	setStr(&cfg.Engine.BaseListingFee, "DEXENGINE_ENGINE_BASE_LISTING_FEE")
	setUint64(&cfg.Engine.FeeGrowthNumerator, "DEXENGINE_ENGINE_FEE_GROWTH_NUMERATOR")
	setUint64(&cfg.Engine.FeeGrowthDenominator, "DEXENGINE_ENGINE_FEE_GROWTH_DENOMINATOR")
	setDuration(&cfg.Engine.OrderTTL, "DEXENGINE_ENGINE_ORDER_TTL")
	setDuration(&cfg.Engine.ClearInterval, "DEXENGINE_ENGINE_CLEAR_INTERVAL")
	setStr(&cfg.Engine.Custody, "DEXENGINE_ENGINE_CUSTODY")
	setStr(&cfg.Engine.Owner, "DEXENGINE_ENGINE_OWNER")
	setInt64(&cfg.Engine.ChainID, "DEXENGINE_ENGINE_CHAIN_ID")
	setStr(&cfg.Engine.OwnerPrivateKey, "DEXENGINE_ENGINE_OWNER_PRIVATE_KEY")
	setStr(&cfg.Engine.OwnerEncryptedKeyPath, "DEXENGINE_ENGINE_OWNER_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Engine.OwnerKeyPassword, "DEXENGINE_ENGINE_OWNER_KEY_PASSWORD")

	// ── Oracle ──
	setStr(&cfg.Oracle.Source, "DEXENGINE_ORACLE_SOURCE")
	setDuration(&cfg.Oracle.RefreshInterval, "DEXENGINE_ORACLE_REFRESH_INTERVAL")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "DEXENGINE_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "DEXENGINE_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "DEXENGINE_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "DEXENGINE_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "DEXENGINE_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "DEXENGINE_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "DEXENGINE_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "DEXENGINE_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "DEXENGINE_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "DEXENGINE_POSTGRES_RUN_MIGRATIONS")
	setInt(&cfg.Postgres.SnapshotKeep, "DEXENGINE_POSTGRES_SNAPSHOT_KEEP")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "DEXENGINE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "DEXENGINE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "DEXENGINE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "DEXENGINE_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "DEXENGINE_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "DEXENGINE_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "DEXENGINE_REDIS_KEY_PREFIX")
	setDuration(&cfg.Redis.LeaseTTL, "DEXENGINE_REDIS_LEASE_TTL")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "DEXENGINE_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "DEXENGINE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "DEXENGINE_S3_REGION")
	setStr(&cfg.S3.Bucket, "DEXENGINE_S3_BUCKET")
	setStr(&cfg.S3.Prefix, "DEXENGINE_S3_PREFIX")
	setStr(&cfg.S3.AccessKey, "DEXENGINE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "DEXENGINE_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "DEXENGINE_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "DEXENGINE_S3_FORCE_PATH_STYLE")

	// ── Pebble ──
	setStr(&cfg.Pebble.Dir, "DEXENGINE_PEBBLE_DIR")
	setInt(&cfg.Pebble.SnapshotKeep, "DEXENGINE_PEBBLE_SNAPSHOT_KEEP")

	// ── Kafka ──
	setBool(&cfg.Kafka.Enabled, "DEXENGINE_KAFKA_ENABLED")
	setStringSlice(&cfg.Kafka.Brokers, "DEXENGINE_KAFKA_BROKERS")
	setStr(&cfg.Kafka.Topic, "DEXENGINE_KAFKA_TOPIC")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "DEXENGINE_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "DEXENGINE_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "DEXENGINE_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "DEXENGINE_SERVER_API_KEY")
	setDuration(&cfg.Server.MaxSkew, "DEXENGINE_SERVER_MAX_SKEW")
	setInt(&cfg.Server.RateLimit, "DEXENGINE_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "DEXENGINE_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "DEXENGINE_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "DEXENGINE_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "DEXENGINE_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "DEXENGINE_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "DEXENGINE_MODE")
	setStr(&cfg.LogLevel, "DEXENGINE_LOG_LEVEL")
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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
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
