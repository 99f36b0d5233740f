package service_test

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/dexengine/internal/domain"
	"github.com/alanyoungcy/dexengine/internal/exchange"
	"github.com/alanyoungcy/dexengine/internal/ledger"
	"github.com/alanyoungcy/dexengine/internal/num"
	"github.com/alanyoungcy/dexengine/internal/oracle"
	"github.com/alanyoungcy/dexengine/internal/service"
)

var (
	owner   = common.HexToAddress("0x0000000000000000000000000000000000000a01")
	custody = common.HexToAddress("0x0000000000000000000000000000000000000a02")
	maker   = common.HexToAddress("0x0000000000000000000000000000000000000b01")
	taker   = common.HexToAddress("0x0000000000000000000000000000000000000b02")
	baseTok = common.HexToAddress("0x0000000000000000000000000000000000000c01")
	tokX    = common.HexToAddress("0x0000000000000000000000000000000000000c02")

	t0 = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
)

func e18(n uint64) *num.Uint {
	v, err := num.ToFixed(num.NewUint(n), 0)
	if err != nil {
		panic(err)
	}
	return v
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
	err    error
}

func (p *recordingPublisher) PublishEvents(_ context.Context, events []domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return p.err
}

type memSnapshots struct {
	saved []domain.Snapshot
}

func (m *memSnapshots) Save(_ context.Context, snap domain.Snapshot) error {
	m.saved = append(m.saved, snap)
	return nil
}

func (m *memSnapshots) Latest(context.Context) (domain.Snapshot, error) {
	if len(m.saved) == 0 {
		return domain.Snapshot{}, domain.ErrNotFound
	}
	return m.saved[len(m.saved)-1], nil
}

type memEvents struct {
	events []domain.Event
}

func (m *memEvents) Append(_ context.Context, events []domain.Event) error {
	m.events = append(m.events, events...)
	return nil
}

func (m *memEvents) List(_ context.Context, opts domain.ListOpts) ([]domain.Event, error) {
	var out []domain.Event
	for _, ev := range m.events {
		if ev.Seq > opts.AfterSeq {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (m *memEvents) LastSeq(context.Context) (uint64, error) {
	if len(m.events) == 0 {
		return 0, nil
	}
	return m.events[len(m.events)-1].Seq, nil
}

type memHistory struct {
	records map[uint64]domain.OrderRecord
}

func (m *memHistory) Apply(_ context.Context, events []domain.Event) error {
	for _, ev := range events {
		if status, ok := ev.OrderStatus(); ok {
			m.records[ev.Order.ID] = domain.OrderRecord{Order: *ev.Order, Status: status, UpdatedAt: ev.At}
		}
	}
	return nil
}

func (m *memHistory) GetByID(_ context.Context, id uint64) (domain.OrderRecord, error) {
	rec, ok := m.records[id]
	if !ok {
		return domain.OrderRecord{}, domain.ErrNotFound
	}
	return rec, nil
}

func (m *memHistory) ListByMaker(_ context.Context, maker string, _ domain.ListOpts) ([]domain.OrderRecord, error) {
	var out []domain.OrderRecord
	for _, rec := range m.records {
		if rec.Order.Maker.Hex() == maker {
			out = append(out, rec)
		}
	}
	return out, nil
}

type memArchiver struct {
	byReason map[string][]domain.Order
}

func (m *memArchiver) ArchiveOrders(_ context.Context, reason string, orders []domain.Order) (string, error) {
	m.byReason[reason] = append(m.byReason[reason], orders...)
	return "orders/" + reason, nil
}

func (m *memArchiver) ListArchives(_ context.Context, reason string) ([]domain.BlobInfo, error) {
	if len(m.byReason[reason]) == 0 {
		return nil, nil
	}
	return []domain.BlobInfo{{Path: "orders/" + reason}}, nil
}

func (m *memArchiver) ReadArchive(_ context.Context, p string) ([]domain.Order, error) {
	reason, ok := strings.CutPrefix(p, "orders/")
	if !ok || len(m.byReason[reason]) == 0 {
		return nil, domain.ErrNotFound
	}
	return m.byReason[reason], nil
}

type memNotifier struct {
	count int
}

func (m *memNotifier) NotifyEvents(_ context.Context, events []domain.Event) error {
	m.count += len(events)
	return nil
}

type memAudit struct {
	events []string
}

func (m *memAudit) Log(_ context.Context, event string, _ map[string]any) error {
	m.events = append(m.events, event)
	return nil
}

func (m *memAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	out := make([]domain.AuditEntry, len(m.events))
	for i, e := range m.events {
		out[i] = domain.AuditEntry{Event: e}
	}
	return out, nil
}

type harness struct {
	svc       *service.ExchangeService
	eng       *exchange.Engine
	ledger    *ledger.Memory
	oracle    *oracle.Snapshot
	now       time.Time
	publisher *recordingPublisher
	snapshots *memSnapshots
	events    *memEvents
	history   *memHistory
	archiver  *memArchiver
	notifier  *memNotifier
	audit     *memAudit
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		ledger:    ledger.NewMemory(),
		now:       t0,
		publisher: &recordingPublisher{},
		snapshots: &memSnapshots{},
		events:    &memEvents{},
		history:   &memHistory{records: map[uint64]domain.OrderRecord{}},
		archiver:  &memArchiver{byReason: map[string][]domain.Order{}},
		notifier:  &memNotifier{},
		audit:     &memAudit{},
	}
	h.oracle = oracle.New(map[common.Address]*num.Uint{baseTok: e18(2), tokX: e18(1)})

	cfg := exchange.DefaultConfig()
	cfg.Custody = custody
	cfg.Owner = owner
	eng, err := exchange.New(cfg, h.ledger, exchange.WithClock(func() time.Time { return h.now }))
	require.NoError(t, err)
	h.eng = eng
	h.svc = service.NewExchangeService(eng, h.ledger, h.oracle, service.Sinks{
		Publishers: []domain.EventPublisher{h.publisher},
		Events:     h.events,
		History:    h.history,
		Snapshots:  h.snapshots,
		Archiver:   h.archiver,
		Notifier:   h.notifier,
		Audit:      h.audit,
	}, discardLogger())
	return h
}

// bootstrap assigns the oracle and lists the base token and tokX.
func (h *harness) bootstrap(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.svc.AssignOracle(ctx, owner))
	_, err := h.svc.ListToken(ctx, owner, baseTok, 18, domain.OracleSource())
	require.NoError(t, err)
	require.NoError(t, h.svc.CreditAccount(ctx, owner, owner, baseTok, num.NewUint(1_000_000)))
	_, err = h.svc.ListToken(ctx, owner, tokX, 18, domain.OracleSource())
	require.NoError(t, err)
}

type mapPriceCache struct {
	mu     sync.Mutex
	prices map[common.Address]*num.Uint
}

func newMapPriceCache() *mapPriceCache {
	return &mapPriceCache{prices: map[common.Address]*num.Uint{}}
}

func (c *mapPriceCache) SetPrice(_ context.Context, token common.Address, price *num.Uint, _ time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices[token] = price.Clone()
	return nil
}

func (c *mapPriceCache) GetPrice(_ context.Context, token common.Address) (*num.Uint, time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.prices[token]
	if !ok {
		return nil, time.Time{}, domain.ErrNotFound
	}
	return p.Clone(), t0, nil
}

func (c *mapPriceCache) GetPrices(_ context.Context, tokens []common.Address) (map[common.Address]*num.Uint, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := map[common.Address]*num.Uint{}
	for _, tok := range tokens {
		if p, ok := c.prices[tok]; ok {
			out[tok] = p.Clone()
		}
	}
	return out, nil
}
