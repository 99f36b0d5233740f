package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/dexengine/internal/domain"
	"github.com/alanyoungcy/dexengine/internal/num"
)

// PriceTarget receives refreshed prices. *oracle.Snapshot implements it.
type PriceTarget interface {
	Merge(update map[common.Address]*num.Uint, at time.Time) int
}

// TokenLister returns the tokens whose prices should be refreshed.
type TokenLister func() []common.Address

// OracleRefresher copies prices from the shared price cache into the
// in-memory oracle snapshot read by the engine. Cache reads happen outside
// the engine lock.
type OracleRefresher struct {
	cache    domain.PriceCache
	target   PriceTarget
	tokens   TokenLister
	bus      domain.SignalBus
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// PricesChannel carries price refresh notices.
const PricesChannel = "prices"

// NewOracleRefresher creates a refresher polling every interval. bus may be
// nil.
func NewOracleRefresher(
	cache domain.PriceCache,
	target PriceTarget,
	tokens TokenLister,
	bus domain.SignalBus,
	interval time.Duration,
	logger *slog.Logger,
) *OracleRefresher {
	return &OracleRefresher{
		cache:    cache,
		target:   target,
		tokens:   tokens,
		bus:      bus,
		interval: interval,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger.With(slog.String("component", "oracle_refresher")),
	}
}

// Run refreshes immediately and then on every tick until ctx is cancelled.
func (r *OracleRefresher) Run(ctx context.Context) error {
	if _, err := r.Refresh(ctx); err != nil {
		r.logger.WarnContext(ctx, "initial price refresh failed", slog.String("error", err.Error()))
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := r.Refresh(ctx); err != nil {
				r.logger.WarnContext(ctx, "price refresh failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Refresh pulls the cached prices of every listed token and merges them into
// the oracle. Tokens without a cached price keep their previous value.
func (r *OracleRefresher) Refresh(ctx context.Context) (int, error) {
	tokens := r.tokens()
	if len(tokens) == 0 {
		return 0, nil
	}
	prices, err := r.cache.GetPrices(ctx, tokens)
	if err != nil {
		return 0, fmt.Errorf("oracle_refresher: get prices: %w", err)
	}
	n := r.target.Merge(prices, r.now())
	if n > 0 && r.bus != nil {
		payload := fmt.Sprintf(`{"event":"prices_refreshed","count":%d}`, n)
		if err := r.bus.Publish(ctx, PricesChannel, []byte(payload)); err != nil {
			r.logger.WarnContext(ctx, "publish price refresh failed", slog.String("error", err.Error()))
		}
	}
	return n, nil
}

// PublishPrice writes a price into the shared cache, e.g. from an operator
// feed in cluster mode.
func PublishPrice(ctx context.Context, cache domain.PriceCache, token common.Address, price *num.Uint, at time.Time) error {
	if price == nil || price.IsZero() {
		return fmt.Errorf("oracle_refresher: price for %s: %w", token.Hex(), domain.ErrZeroAmount)
	}
	if err := cache.SetPrice(ctx, token, price, at); err != nil {
		return fmt.Errorf("oracle_refresher: set price for %s: %w", token.Hex(), err)
	}
	return nil
}
