// Package config defines the top-level configuration for the exchange engine
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/dexengine/internal/num"
)

// Deployment modes.
const (
	// ModeStandalone keeps everything in one process: pebble for snapshots
	// and events, an in-memory bus and a static oracle.
	ModeStandalone = "standalone"
	// ModeCluster uses postgres, redis, kafka and s3, with a redis lease
	// electing the single writer.
	ModeCluster = "cluster"
)

// Oracle sources.
const (
	OracleStatic = "static"
	OracleRedis  = "redis"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by DEXENGINE_* environment variables.
type Config struct {
	Engine   EngineConfig   `toml:"engine"`
	Oracle   OracleConfig   `toml:"oracle"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Pebble   PebbleConfig   `toml:"pebble"`
	Kafka    KafkaConfig    `toml:"kafka"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// EngineConfig holds the exchange parameters and the owner identity.
type EngineConfig struct {
	// BaseToken, when set, must be the first listing.
	BaseToken string `toml:"base_token"`
	// BaseListingFee is in base token native units, as a base 10 integer.
	BaseListingFee       string   `toml:"base_listing_fee"`
	FeeGrowthNumerator   uint64   `toml:"fee_growth_numerator"`
	FeeGrowthDenominator uint64   `toml:"fee_growth_denominator"`
	OrderTTL             duration `toml:"order_ttl"`
	ClearInterval        duration `toml:"clear_interval"`
	Custody              string   `toml:"custody"`
	// Owner is the initial owner address. When empty it is derived from the
	// owner key.
	Owner string `toml:"owner"`
	// ChainID is the EIP-712 domain chain id for owner signatures.
	ChainID int64 `toml:"chain_id"`

	OwnerPrivateKey       string `toml:"owner_private_key"`
	OwnerEncryptedKeyPath string `toml:"owner_encrypted_key_path"`
	OwnerKeyPassword      string `toml:"owner_key_password"`
}

// OracleConfig selects the price source.
type OracleConfig struct {
	Source string `toml:"source"`
	// Prices maps token address to a decimal price, e.g. "2.5". Static
	// prices also seed the redis cache on start.
	Prices          map[string]string `toml:"prices"`
	RefreshInterval duration          `toml:"refresh_interval"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
	SnapshotKeep  int    `toml:"snapshot_keep"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	KeyPrefix  string   `toml:"key_prefix"`
	LeaseTTL   duration `toml:"lease_ttl"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// PebbleConfig holds the embedded store used in standalone mode.
type PebbleConfig struct {
	Dir          string `toml:"dir"`
	SnapshotKeep int    `toml:"snapshot_keep"`
}

// KafkaConfig holds the event stream export.
type KafkaConfig struct {
	Enabled bool     `toml:"enabled"`
	Brokers []string `toml:"brokers"`
	Topic   string   `toml:"topic"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// HMACKeyConfig is one API key pair accepted for signed requests.
type HMACKeyConfig struct {
	Key    string `toml:"key"`
	Secret string `toml:"secret"`
	// Account binds the key to one trading account. Unbound keys act for
	// any account, like the api_key.
	Account string `toml:"account"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool            `toml:"enabled"`
	Port        int             `toml:"port"`
	CORSOrigins []string        `toml:"cors_origins"`
	APIKey      string          `toml:"api_key"`
	HMACKeys    []HMACKeyConfig `toml:"hmac_keys"`
	MaxSkew     duration        `toml:"max_skew"`
	// RateLimit is requests per RateWindow per client IP, enforced through
	// redis in cluster mode. Zero disables it.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Engine: EngineConfig{
			BaseListingFee:       "1000",
			FeeGrowthNumerator:   5,
			FeeGrowthDenominator: 1000,
			OrderTTL:             duration{7 * 24 * time.Hour},
			ClearInterval:        duration{time.Minute},
			ChainID:              1,
		},
		Oracle: OracleConfig{
			Source:          OracleStatic,
			Prices:          map[string]string{},
			RefreshInterval: duration{5 * time.Second},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "dexengine",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
			SnapshotKeep:  20,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			KeyPrefix:  "dexengine:",
			LeaseTTL:   duration{15 * time.Second},
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "dexengine-archive",
			ForcePathStyle: true,
		},
		Pebble: PebbleConfig{
			Dir:          "data/pebble",
			SnapshotKeep: 20,
		},
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
			Topic:   "dexengine.events",
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			MaxSkew:     duration{30 * time.Second},
			RateLimit:   120,
			RateWindow:  duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"order_filled", "order_expired", "owner_assigned", "ownership_renounced"},
		},
		Mode:     ModeStandalone,
		LogLevel: "info",
	}
}

var validModes = map[string]bool{
	ModeStandalone: true,
	ModeCluster:    true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string
	mode := strings.ToLower(c.Mode)

	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: standalone, cluster)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Engine
	if !common.IsHexAddress(c.Engine.Custody) {
		errs = append(errs, fmt.Sprintf("engine: custody must be a hex address, got %q", c.Engine.Custody))
	}
	if c.Engine.BaseToken != "" && !common.IsHexAddress(c.Engine.BaseToken) {
		errs = append(errs, fmt.Sprintf("engine: base_token must be a hex address, got %q", c.Engine.BaseToken))
	}
	if c.Engine.Owner != "" && !common.IsHexAddress(c.Engine.Owner) {
		errs = append(errs, fmt.Sprintf("engine: owner must be a hex address, got %q", c.Engine.Owner))
	}
	if c.Engine.Owner == "" && c.Engine.OwnerPrivateKey == "" && c.Engine.OwnerEncryptedKeyPath == "" {
		errs = append(errs, "engine: one of owner, owner_private_key or owner_encrypted_key_path must be set")
	}
	if c.Engine.OwnerEncryptedKeyPath != "" && c.Engine.OwnerKeyPassword == "" {
		errs = append(errs, "engine: owner_key_password is required when owner_encrypted_key_path is set")
	}
	if _, err := num.UintFromString(c.Engine.BaseListingFee); err != nil {
		errs = append(errs, fmt.Sprintf("engine: base_listing_fee must be a base 10 integer, got %q", c.Engine.BaseListingFee))
	}
	if c.Engine.FeeGrowthDenominator == 0 {
		errs = append(errs, "engine: fee_growth_denominator must be > 0")
	}
	if c.Engine.OrderTTL.Duration <= 0 {
		errs = append(errs, "engine: order_ttl must be > 0")
	}
	if c.Engine.ClearInterval.Duration <= 0 {
		errs = append(errs, "engine: clear_interval must be > 0")
	}
	if c.Engine.ChainID <= 0 {
		errs = append(errs, "engine: chain_id must be positive")
	}

	// Oracle
	switch c.Oracle.Source {
	case OracleStatic:
	case OracleRedis:
		if mode != ModeCluster {
			errs = append(errs, "oracle: source redis requires mode cluster")
		}
		if c.Oracle.RefreshInterval.Duration <= 0 {
			errs = append(errs, "oracle: refresh_interval must be > 0")
		}
	default:
		errs = append(errs, fmt.Sprintf("oracle: unknown source %q (valid: static, redis)", c.Oracle.Source))
	}
	for token, price := range c.Oracle.Prices {
		if !common.IsHexAddress(token) {
			errs = append(errs, fmt.Sprintf("oracle: price key %q is not a hex address", token))
		}
		if _, err := num.ParseFixed(price); err != nil {
			errs = append(errs, fmt.Sprintf("oracle: price for %s: %v", token, err))
		}
	}

	if mode == ModeStandalone {
		if c.Pebble.Dir == "" {
			errs = append(errs, "pebble: dir must not be empty")
		}
		if c.Pebble.SnapshotKeep < 1 {
			errs = append(errs, "pebble: snapshot_keep must be >= 1")
		}
	}

	if mode == ModeCluster {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
		if c.Postgres.SnapshotKeep < 1 {
			errs = append(errs, "postgres: snapshot_keep must be >= 1")
		}
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
		if c.Redis.LeaseTTL.Duration < 3*time.Second {
			errs = append(errs, "redis: lease_ttl must be >= 3s")
		}
	}

	if c.S3.Enabled && c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty")
	}
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			errs = append(errs, "kafka: brokers must not be empty")
		}
		if c.Kafka.Topic == "" {
			errs = append(errs, "kafka: topic must not be empty")
		}
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		for i, k := range c.Server.HMACKeys {
			if k.Key == "" || k.Secret == "" {
				errs = append(errs, fmt.Sprintf("server: hmac_keys[%d] needs both key and secret", i))
			}
			if k.Account != "" && !common.IsHexAddress(k.Account) {
				errs = append(errs, fmt.Sprintf("server: hmac_keys[%d] account %q is not an address", i, k.Account))
			}
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
			errs = append(errs, "server: rate_window must be > 0 when rate_limit is set")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
