package service

import (
	"context"
	"log/slog"
	"time"
)

// ClearingService periodically removes expired orders.
type ClearingService struct {
	exchange *ExchangeService
	interval time.Duration
	logger   *slog.Logger
}

// NewClearingService creates a ClearingService running every interval.
func NewClearingService(exchange *ExchangeService, interval time.Duration, logger *slog.Logger) *ClearingService {
	return &ClearingService{
		exchange: exchange,
		interval: interval,
		logger:   logger.With(slog.String("component", "clearing")),
	}
}

// Run clears expired orders on every tick until ctx is cancelled.
func (c *ClearingService) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.logger.InfoContext(ctx, "clearing started", slog.Duration("interval", c.interval))
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single clearing pass and returns the number of orders
// removed.
func (c *ClearingService) RunOnce(ctx context.Context) int {
	n, err := c.exchange.ClearOrders(ctx)
	if err != nil {
		c.logger.ErrorContext(ctx, "clear orders failed", slog.String("error", err.Error()))
		return 0
	}
	if n > 0 {
		c.logger.InfoContext(ctx, "expired orders cleared", slog.Int("count", n))
	}
	return n
}
