package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/dexengine/internal/domain"
	"github.com/alanyoungcy/dexengine/internal/exchange"
	"github.com/alanyoungcy/dexengine/internal/ledger"
	"github.com/alanyoungcy/dexengine/internal/num"
	"github.com/alanyoungcy/dexengine/internal/oracle"
	"github.com/alanyoungcy/dexengine/internal/service"
)

func TestMutationsFanOutEvents(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.bootstrap(t)
	require.NoError(t, h.svc.CreditAccount(ctx, owner, maker, baseTok, e18(10)))
	require.NoError(t, h.svc.CreditAccount(ctx, owner, taker, tokX, e18(5)))

	o, err := h.svc.CreateOrder(ctx, maker, tokX, domain.SideBuy, e18(10))
	require.NoError(t, err)
	assert.True(t, o.Pending.EQ(e18(5)))

	fill, err := h.svc.TakeOrder(ctx, taker, o.ID, e18(5))
	require.NoError(t, err)
	assert.True(t, fill.Filled)

	// Every committed event reached the publisher and the event log in order.
	require.NotEmpty(t, h.publisher.events)
	assert.Equal(t, h.publisher.events, h.events.events)
	for i := 1; i < len(h.events.events); i++ {
		assert.Equal(t, h.events.events[i-1].Seq+1, h.events.events[i].Seq)
	}
	assert.Equal(t, len(h.events.events), h.notifier.count)

	// The filled order left the book but stays queryable.
	rec, err := h.svc.OrderRecord(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusFilled, rec.Status)
	require.Len(t, h.archiver.byReason["filled"], 1)
	assert.Equal(t, o.ID, h.archiver.byReason["filled"][0].ID)

	// The latest snapshot matches the engine.
	latest, err := h.snapshots.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, h.eng.LastSeq(), latest.Seq)
	assert.Equal(t, h.eng.State(), latest.Engine)

	assert.Equal(t, []string{"admin.assign_oracle", "admin.credit", "admin.credit", "admin.credit"}, h.audit.events)

	bals, err := h.svc.Balances(taker)
	require.NoError(t, err)
	require.Len(t, bals, 1)
	assert.Equal(t, baseTok, bals[0].Token)
	assert.True(t, bals[0].Amount.EQ(e18(10)))
}

func TestFailedMutationPublishesNothing(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.bootstrap(t)
	before := len(h.publisher.events)

	_, err := h.svc.CreateOrder(ctx, maker, tokX, domain.SideBuy, e18(10))
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
	assert.Len(t, h.publisher.events, before)

	_, err = h.svc.CreateOrder(ctx, maker, tokX, domain.Side("hold"), e18(1))
	assert.Error(t, err)
}

func TestPublisherFailureDoesNotUndoMutation(t *testing.T) {
	h := newHarness(t)
	h.publisher.err = errors.New("bus down")
	h.bootstrap(t)

	l, err := h.svc.Engine().Listing(tokX)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), l.Index)
	assert.NotEmpty(t, h.events.events)
}

func TestRestoreFromSnapshot(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.bootstrap(t)
	require.NoError(t, h.svc.CreditAccount(ctx, owner, maker, baseTok, e18(10)))
	o, err := h.svc.CreateOrder(ctx, maker, tokX, domain.SideBuy, e18(10))
	require.NoError(t, err)

	snap, err := service.LoadSnapshot(ctx, h.snapshots)
	require.NoError(t, err)
	require.NotNil(t, snap)

	mem := ledger.NewMemory()
	cfg := exchange.DefaultConfig()
	cfg.Custody = custody
	eng, err := exchange.New(cfg, mem, exchange.WithOracle(h.oracle))
	require.NoError(t, err)
	restored := service.NewExchangeService(eng, mem, h.oracle, service.Sinks{Events: h.events}, discardLogger())
	require.NoError(t, restored.Restore(ctx, *snap))

	got, err := eng.ViewOrder(o.ID)
	require.NoError(t, err)
	assert.True(t, got.Principal.EQ(e18(10)))
	custodyBal := mem.BalanceOf(custody, baseTok)
	assert.True(t, custodyBal.EQ(num.Zero().Add(e18(10), num.NewUint(1000))))
	assert.Equal(t, h.eng.LastSeq(), eng.LastSeq())

	empty, err := service.LoadSnapshot(ctx, &memSnapshots{})
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestClearingServiceRefundsExpired(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.bootstrap(t)
	require.NoError(t, h.svc.CreditAccount(ctx, owner, maker, baseTok, e18(10)))
	_, err := h.svc.CreateOrder(ctx, maker, tokX, domain.SideBuy, e18(10))
	require.NoError(t, err)

	clearing := service.NewClearingService(h.svc, time.Minute, discardLogger())
	assert.Equal(t, 0, clearing.RunOnce(ctx))

	h.now = h.now.Add(exchange.DefaultOrderTTL)
	assert.Equal(t, 1, clearing.RunOnce(ctx))
	assert.Len(t, h.archiver.byReason["expired"], 1)

	assert.True(t, h.ledger.BalanceOf(maker, baseTok).EQ(e18(10)))
}

func TestArchivedOrdersReadBack(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.bootstrap(t)
	require.NoError(t, h.svc.CreditAccount(ctx, owner, maker, baseTok, e18(10)))
	require.NoError(t, h.svc.CreditAccount(ctx, owner, taker, tokX, e18(5)))
	o, err := h.svc.CreateOrder(ctx, maker, tokX, domain.SideBuy, e18(10))
	require.NoError(t, err)
	_, err = h.svc.TakeOrder(ctx, taker, o.ID, e18(5))
	require.NoError(t, err)

	infos, err := h.svc.Archives(ctx, "filled")
	require.NoError(t, err)
	require.Len(t, infos, 1)

	orders, err := h.svc.ArchivedOrders(ctx, infos[0].Path)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, o.ID, orders[0].ID)

	bare := service.NewExchangeService(h.eng, h.ledger, h.oracle, service.Sinks{}, discardLogger())
	_, err = bare.Archives(ctx, "filled")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = bare.ArchivedOrders(ctx, infos[0].Path)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAssignOracleWithoutOracle(t *testing.T) {
	cfg := exchange.DefaultConfig()
	cfg.Custody = custody
	cfg.Owner = owner
	mem := ledger.NewMemory()
	eng, err := exchange.New(cfg, mem)
	require.NoError(t, err)
	svc := service.NewExchangeService(eng, mem, nil, service.Sinks{}, discardLogger())
	assert.Error(t, svc.AssignOracle(context.Background(), owner))

	_, err = svc.Events(context.Background(), domain.ListOpts{})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestOracleRefresherMergesCachedPrices(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.bootstrap(t)

	cache := newMapPriceCache()
	require.NoError(t, service.PublishPrice(ctx, cache, tokX, e18(4), t0))
	assert.ErrorIs(t, service.PublishPrice(ctx, cache, baseTok, num.Zero(), t0), domain.ErrZeroAmount)

	snap := oracle.New(nil)
	r := service.NewOracleRefresher(cache, snap, func() []common.Address {
		var out []common.Address
		for _, l := range h.eng.Listings() {
			out = append(out, l.Token)
		}
		return out
	}, nil, time.Second, discardLogger())

	n, err := r.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	p, err := snap.Price(tokX)
	require.NoError(t, err)
	assert.True(t, p.EQ(e18(4)))
	_, err = snap.Price(baseTok)
	assert.ErrorIs(t, err, domain.ErrOraclePriceUnset)
}
