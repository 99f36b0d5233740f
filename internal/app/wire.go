package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/alanyoungcy/dexengine/internal/blob/s3"
	"github.com/alanyoungcy/dexengine/internal/cache/local"
	"github.com/alanyoungcy/dexengine/internal/cache/redis"
	"github.com/alanyoungcy/dexengine/internal/config"
	"github.com/alanyoungcy/dexengine/internal/domain"
	"github.com/alanyoungcy/dexengine/internal/notify"
	"github.com/alanyoungcy/dexengine/internal/server/handler"
	"github.com/alanyoungcy/dexengine/internal/store/pebble"
	"github.com/alanyoungcy/dexengine/internal/store/postgres"
	"github.com/alanyoungcy/dexengine/internal/stream/kafka"
)

// Dependencies bundles every infrastructure dependency the modes need. It is
// constructed by Wire and torn down by the returned cleanup function. Fields
// that the configured mode does not use stay nil.
type Dependencies struct {
	// Persistence
	Snapshots domain.SnapshotStore
	Events    domain.EventStore
	History   domain.OrderHistoryStore
	Audit     domain.AuditStore

	// Caches and messaging
	SignalBus   domain.SignalBus
	PriceCache  domain.PriceCache
	RateLimiter domain.RateLimiter
	Locks       *redis.LockManager

	// Publishers receive every committed event batch.
	Publishers []domain.EventPublisher

	// Blob storage
	Archiver domain.OrderArchiver

	// Notifications
	Notifier *notify.Notifier

	// HealthChecks are reported by GET /api/health.
	HealthChecks map[string]handler.HealthCheck
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{HealthChecks: map[string]handler.HealthCheck{}}

	switch strings.ToLower(cfg.Mode) {
	case config.ModeCluster:
		if err := wireCluster(ctx, cfg, deps, &closers); err != nil {
			cleanup()
			return nil, nil, err
		}
	default:
		if err := wireStandalone(cfg, deps, &closers); err != nil {
			cleanup()
			return nil, nil, err
		}
	}

	// The bus relays events to websocket clients in both modes.
	deps.Publishers = append(deps.Publishers, redis.NewEventPublisher(deps.SignalBus))

	// --- Kafka event export ---
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		closers = append(closers, func() { _ = producer.Close() })
		deps.Publishers = append(deps.Publishers, producer)
	}

	// --- S3 archive of orders that left the book ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			Prefix:         cfg.S3.Prefix,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), s3blob.NewReader(s3Client), deps.Audit)
		deps.HealthChecks["s3"] = s3Client.Health
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if len(senders) > 0 {
		deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	}

	return deps, cleanup, nil
}

// wireStandalone opens the embedded pebble store and the in-process bus.
func wireStandalone(cfg *config.Config, deps *Dependencies, closers *[]func()) error {
	store, err := pebble.Open(cfg.Pebble.Dir, cfg.Pebble.SnapshotKeep)
	if err != nil {
		return fmt.Errorf("wire: pebble: %w", err)
	}
	*closers = append(*closers, func() { _ = store.Close() })

	deps.Snapshots = store
	deps.Events = store
	deps.SignalBus = local.NewBus()
	return nil
}

// wireCluster connects postgres and redis.
func wireCluster(ctx context.Context, cfg *config.Config, deps *Dependencies, closers *[]func()) error {
	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		return fmt.Errorf("wire: postgres: %w", err)
	}
	*closers = append(*closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			return fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.Snapshots = postgres.NewSnapshotStore(pool, cfg.Postgres.SnapshotKeep)
	deps.Events = postgres.NewEventStore(pool)
	deps.History = postgres.NewOrderStore(pool)
	deps.Audit = postgres.NewAuditStore(pool)
	deps.HealthChecks["postgres"] = pool.Ping

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
		KeyPrefix:  cfg.Redis.KeyPrefix,
	})
	if err != nil {
		return fmt.Errorf("wire: redis: %w", err)
	}
	*closers = append(*closers, func() { _ = redisClient.Close() })

	deps.SignalBus = redis.NewSignalBus(redisClient)
	deps.PriceCache = redis.NewPriceCache(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.Locks = redis.NewLockManager(redisClient)
	deps.HealthChecks["redis"] = redisClient.Ping
	return nil
}
