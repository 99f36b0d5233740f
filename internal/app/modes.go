package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/dexengine/internal/config"
	"github.com/alanyoungcy/dexengine/internal/domain"
	"github.com/alanyoungcy/dexengine/internal/exchange"
	"github.com/alanyoungcy/dexengine/internal/ledger"
	"github.com/alanyoungcy/dexengine/internal/num"
	"github.com/alanyoungcy/dexengine/internal/oracle"
	"github.com/alanyoungcy/dexengine/internal/server"
	"github.com/alanyoungcy/dexengine/internal/server/handler"
	"github.com/alanyoungcy/dexengine/internal/server/middleware"
	"github.com/alanyoungcy/dexengine/internal/server/ws"
	"github.com/alanyoungcy/dexengine/internal/service"
)

// writerLeaseKey elects the single cluster node that accepts mutations.
const writerLeaseKey = "engine:writer"

// StandaloneMode runs the engine in a single process backed by pebble and an
// in-memory bus.
func (a *App) StandaloneMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting standalone mode")

	svc, _, err := a.buildExchange(ctx, deps)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	a.startClearing(ctx, g, svc)
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, svc)
	}

	err = g.Wait()
	a.flush(svc)
	return err
}

// ClusterMode waits for the writer lease, then runs the engine backed by
// postgres and redis. Losing the lease stops the node so that a standby can
// take over from the latest snapshot.
func (a *App) ClusterMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting cluster mode")

	lease, err := a.acquireWriterLease(ctx, deps)
	if err != nil {
		return err
	}
	defer lease.Release()

	svc, orc, err := a.buildExchange(ctx, deps)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		select {
		case <-ctx.Done():
			return nil
		case <-lease.Lost():
			return fmt.Errorf("app: writer lease lost")
		}
	})

	a.startClearing(ctx, g, svc)
	if a.cfg.Oracle.Source == config.OracleRedis {
		a.startOracleRefresher(ctx, g, deps, svc, orc)
	}
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, svc)
	}

	err = g.Wait()
	a.flush(svc)
	return err
}

// leaseHolder is the part of a redis lease the cluster mode relies on.
type leaseHolder interface {
	Lost() <-chan struct{}
	Release()
}

// acquireWriterLease blocks until this node holds the writer lease.
func (a *App) acquireWriterLease(ctx context.Context, deps *Dependencies) (leaseHolder, error) {
	if deps.Locks == nil {
		return nil, fmt.Errorf("app: cluster mode requires a lock manager")
	}
	ttl := a.cfg.Redis.LeaseTTL.Duration
	retry := time.NewTicker(ttl / 3)
	defer retry.Stop()

	waiting := false
	for {
		lease, err := deps.Locks.AcquireLease(ctx, writerLeaseKey, ttl, a.logger)
		if err == nil {
			a.logger.InfoContext(ctx, "writer lease acquired", slog.Duration("ttl", ttl))
			return lease, nil
		}
		if !errors.Is(err, domain.ErrLockHeld) {
			return nil, fmt.Errorf("app: acquire writer lease: %w", err)
		}
		if !waiting {
			a.logger.InfoContext(ctx, "writer lease held by another node, standing by")
			waiting = true
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-retry.C:
		}
	}
}

// buildExchange constructs the engine and service and restores the latest
// snapshot when one exists.
func (a *App) buildExchange(ctx context.Context, deps *Dependencies) (*service.ExchangeService, *oracle.Snapshot, error) {
	engCfg, err := a.engineConfig()
	if err != nil {
		return nil, nil, err
	}
	prices, err := a.cfg.Oracle.ParsedPrices()
	if err != nil {
		return nil, nil, fmt.Errorf("app: %w", err)
	}
	orc := oracle.New(prices)

	var snap *domain.Snapshot
	if deps.Snapshots != nil {
		snap, err = service.LoadSnapshot(ctx, deps.Snapshots)
		if err != nil {
			return nil, nil, fmt.Errorf("app: %w", err)
		}
	}

	opts := []exchange.Option{exchange.WithLogger(a.logger)}
	if snap != nil && snap.Engine.OracleSet {
		opts = append(opts, exchange.WithOracle(orc))
	}

	led := ledger.NewMemory()
	eng, err := exchange.New(engCfg, led, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("app: build engine: %w", err)
	}

	sinks := service.Sinks{
		Publishers: deps.Publishers,
		Events:     deps.Events,
		History:    deps.History,
		Snapshots:  deps.Snapshots,
		Archiver:   deps.Archiver,
		Audit:      deps.Audit,
	}
	if deps.Notifier != nil {
		sinks.Notifier = deps.Notifier
	}
	svc := service.NewExchangeService(eng, led, orc, sinks, a.logger)

	if snap != nil {
		if err := svc.Restore(ctx, *snap); err != nil {
			return nil, nil, fmt.Errorf("app: %w", err)
		}
	} else {
		a.logger.InfoContext(ctx, "no snapshot found, starting with an empty book")
	}
	return svc, orc, nil
}

// engineConfig maps the engine section onto exchange.Config.
func (a *App) engineConfig() (exchange.Config, error) {
	ec := a.cfg.Engine
	fee, err := num.UintFromString(ec.BaseListingFee)
	if err != nil {
		return exchange.Config{}, fmt.Errorf("app: base listing fee: %w", err)
	}
	owner, err := ec.OwnerAddress()
	if err != nil {
		return exchange.Config{}, fmt.Errorf("app: %w", err)
	}

	cfg := exchange.Config{
		Custody:              common.HexToAddress(ec.Custody),
		Owner:                owner,
		BaseListingFee:       fee,
		FeeGrowthNumerator:   ec.FeeGrowthNumerator,
		FeeGrowthDenominator: ec.FeeGrowthDenominator,
		OrderTTL:             ec.OrderTTL.Duration,
	}
	if ec.BaseToken != "" {
		cfg.BaseToken = common.HexToAddress(ec.BaseToken)
	}
	return cfg, nil
}

// startClearing adds the periodic clearing of expired orders.
func (a *App) startClearing(ctx context.Context, g *errgroup.Group, svc *service.ExchangeService) {
	clearing := service.NewClearingService(svc, a.cfg.Engine.ClearInterval.Duration, a.logger)
	g.Go(func() error {
		return clearing.Run(ctx)
	})
}

// startOracleRefresher seeds the shared price cache with the configured
// static prices and keeps the in-memory oracle in sync with it.
func (a *App) startOracleRefresher(ctx context.Context, g *errgroup.Group, deps *Dependencies, svc *service.ExchangeService, orc *oracle.Snapshot) {
	now := time.Now().UTC()
	for token, price := range orc.Prices() {
		if err := service.PublishPrice(ctx, deps.PriceCache, token, price, now); err != nil {
			a.logger.WarnContext(ctx, "seed price cache failed",
				slog.String("token", token.Hex()),
				slog.String("error", err.Error()),
			)
		}
	}

	tokens := func() []common.Address {
		listings := svc.Listings()
		out := make([]common.Address, 0, len(listings))
		for _, l := range listings {
			out = append(out, l.Token)
		}
		return out
	}
	refresher := service.NewOracleRefresher(
		deps.PriceCache, orc, tokens, deps.SignalBus,
		a.cfg.Oracle.RefreshInterval.Duration, a.logger,
	)
	g.Go(func() error {
		return refresher.Run(ctx)
	})
}

// startHTTPServer adds the HTTP server and the WebSocket hub to the errgroup.
// The server is shut down gracefully when the context is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, svc *service.ExchangeService) {
	status := func() any { return svc.Status() }

	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: time.Now().UTC(),
		Origins:   a.cfg.Server.CORSOrigins,
		Status:    status,
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	handlers := server.Handlers{
		Health:   handler.NewHealthHandler(deps.HealthChecks, a.logger),
		Status:   handler.NewStatusHandler(a.cfg.Mode, status),
		Listings: handler.NewListingHandler(svc, a.logger),
		Orders:   handler.NewOrderHandler(svc, a.logger),
		Escrow:   handler.NewEscrowHandler(svc, a.logger),
		Admin:    handler.NewAdminHandler(svc, a.cfg.Engine.ChainID, nil, a.logger),
		Events:   handler.NewEventHandler(svc, a.logger),
		Archives: handler.NewArchiveHandler(svc, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		Auth: middleware.AuthConfig{
			APIKey:  a.cfg.Server.APIKey,
			HMAC:    a.cfg.Server.HMACAuth(),
			MaxSkew: a.cfg.Server.MaxSkew.Duration,
		},
		RateLimit:  a.cfg.Server.RateLimit,
		RateWindow: a.cfg.Server.RateWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// flush drains any events still in the engine outbox before the stores are
// closed.
func (a *App) flush(svc *service.ExchangeService) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	svc.Flush(ctx)
}
