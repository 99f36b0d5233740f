package domain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/dexengine/internal/num"
)

// PriceCache provides fast access to the latest fixed point token prices.
type PriceCache interface {
	SetPrice(ctx context.Context, token common.Address, price *num.Uint, ts time.Time) error
	GetPrice(ctx context.Context, token common.Address) (*num.Uint, time.Time, error)
	GetPrices(ctx context.Context, tokens []common.Address) (map[common.Address]*num.Uint, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// EventPublisher fans committed engine events out to subscribers.
type EventPublisher interface {
	PublishEvents(ctx context.Context, events []Event) error
}
