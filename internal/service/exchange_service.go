package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/dexengine/internal/domain"
	"github.com/alanyoungcy/dexengine/internal/exchange"
	"github.com/alanyoungcy/dexengine/internal/num"
)

// EventNotifier forwards events to operator channels.
type EventNotifier interface {
	NotifyEvents(ctx context.Context, events []domain.Event) error
}

// Sinks are the optional destinations of committed engine events. Nil
// fields are skipped.
type Sinks struct {
	Publishers []domain.EventPublisher
	Events     domain.EventStore
	History    domain.OrderHistoryStore
	Snapshots  domain.SnapshotStore
	Archiver   domain.OrderArchiver
	Notifier   EventNotifier
	Audit      domain.AuditStore
}

// ExchangeService wraps the engine. After every successful mutation it
// drains the engine outbox and hands the events to the configured sinks.
// Sink failures are logged and never undo the mutation.
type ExchangeService struct {
	engine *exchange.Engine
	ledger domain.BalanceLedger
	oracle domain.PriceOracle
	sinks  Sinks
	now    func() time.Time
	logger *slog.Logger

	flushMu sync.Mutex
}

// NewExchangeService creates an ExchangeService. oracle is the price oracle
// assigned by AssignOracle and may be nil when no oracle is configured.
func NewExchangeService(
	engine *exchange.Engine,
	ledger domain.BalanceLedger,
	oracle domain.PriceOracle,
	sinks Sinks,
	logger *slog.Logger,
) *ExchangeService {
	return &ExchangeService{
		engine: engine,
		ledger: ledger,
		oracle: oracle,
		sinks:  sinks,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger.With(slog.String("component", "exchange_service")),
	}
}

// Engine exposes the wrapped engine for read-only views.
func (s *ExchangeService) Engine() *exchange.Engine {
	return s.engine
}

// ---------------------------------------------------------------------------
// Mutations
// ---------------------------------------------------------------------------

// ListToken lists token with the given price source.
func (s *ExchangeService) ListToken(ctx context.Context, caller, token common.Address, decimals uint8, source domain.PriceSource) (domain.Listing, error) {
	l, err := s.engine.ListToken(caller, token, decimals, source)
	if err != nil {
		return domain.Listing{}, err
	}
	s.flush(ctx)
	return l, nil
}

// CreateOrder escrows deposit from maker and books an order on side.
func (s *ExchangeService) CreateOrder(ctx context.Context, maker, token common.Address, side domain.Side, deposit *num.Uint) (domain.Order, error) {
	var (
		o   domain.Order
		err error
	)
	switch side {
	case domain.SideBuy:
		o, err = s.engine.CreateBuyOrder(maker, token, deposit)
	case domain.SideSell:
		o, err = s.engine.CreateSellOrder(maker, token, deposit)
	default:
		return domain.Order{}, fmt.Errorf("service: create order: unknown side %q", side)
	}
	if err != nil {
		return domain.Order{}, err
	}
	s.flush(ctx)
	return o, nil
}

// TakeOrder fills amount of order id for taker.
func (s *ExchangeService) TakeOrder(ctx context.Context, taker common.Address, id uint64, amount *num.Uint) (domain.Fill, error) {
	f, err := s.engine.TakeOrder(taker, id, amount)
	if err != nil {
		return domain.Fill{}, err
	}
	s.flush(ctx)
	return f, nil
}

// SettleOrders fills token orders on side from the caller's escrow.
func (s *ExchangeService) SettleOrders(ctx context.Context, caller, token common.Address, side domain.Side) ([]domain.Fill, error) {
	fills, err := s.engine.SettleOrders(caller, token, side)
	if err != nil {
		return nil, err
	}
	s.flush(ctx)
	return fills, nil
}

// ClearOrders refunds and removes every expired order.
func (s *ExchangeService) ClearOrders(ctx context.Context) (int, error) {
	n, err := s.engine.ClearOrders()
	if err != nil {
		return 0, err
	}
	s.flush(ctx)
	return n, nil
}

// ClearTokenOrders refunds and removes the expired orders of token.
func (s *ExchangeService) ClearTokenOrders(ctx context.Context, token common.Address) (int, error) {
	n, err := s.engine.ClearTokenOrders(token)
	if err != nil {
		return 0, err
	}
	s.flush(ctx)
	return n, nil
}

// Deposit moves amount of token into the caller's escrow.
func (s *ExchangeService) Deposit(ctx context.Context, caller, token common.Address, amount *num.Uint) (*num.Uint, error) {
	bal, err := s.engine.Deposit(caller, token, amount)
	if err != nil {
		return nil, err
	}
	s.flush(ctx)
	return bal, nil
}

// Withdraw returns amount of token from the caller's escrow.
func (s *ExchangeService) Withdraw(ctx context.Context, caller, token common.Address, amount *num.Uint) (*num.Uint, error) {
	bal, err := s.engine.Withdraw(caller, token, amount)
	if err != nil {
		return nil, err
	}
	s.flush(ctx)
	return bal, nil
}

// ---------------------------------------------------------------------------
// Owner operations
// ---------------------------------------------------------------------------

// AssignOracle assigns the configured price oracle.
func (s *ExchangeService) AssignOracle(ctx context.Context, caller common.Address) error {
	if s.oracle == nil {
		return fmt.Errorf("service: assign oracle: no oracle configured")
	}
	if err := s.engine.AssignPriceDAO(caller, s.oracle); err != nil {
		return err
	}
	s.audit(ctx, "admin.assign_oracle", map[string]any{"caller": caller.Hex()})
	s.flush(ctx)
	return nil
}

// AssignOwner transfers ownership.
func (s *ExchangeService) AssignOwner(ctx context.Context, caller, owner common.Address) error {
	if err := s.engine.AssignOwner(caller, owner); err != nil {
		return err
	}
	s.audit(ctx, "admin.assign_owner", map[string]any{"caller": caller.Hex(), "owner": owner.Hex()})
	s.flush(ctx)
	return nil
}

// AssignFeeCollector sets the listing fee recipient.
func (s *ExchangeService) AssignFeeCollector(ctx context.Context, caller, collector common.Address) error {
	if err := s.engine.AssignFeeCollector(caller, collector); err != nil {
		return err
	}
	s.audit(ctx, "admin.assign_fee_collector", map[string]any{"caller": caller.Hex(), "collector": collector.Hex()})
	s.flush(ctx)
	return nil
}

// RenounceOwnership gives up every owner operation for good.
func (s *ExchangeService) RenounceOwnership(ctx context.Context, caller common.Address) error {
	if err := s.engine.RenounceOwnership(caller); err != nil {
		return err
	}
	s.audit(ctx, "admin.renounce", map[string]any{"caller": caller.Hex()})
	s.flush(ctx)
	return nil
}

// CreditAccount mints amount of token into account.
func (s *ExchangeService) CreditAccount(ctx context.Context, caller, account, token common.Address, amount *num.Uint) error {
	if err := s.engine.CreditAccount(caller, account, token, amount); err != nil {
		return err
	}
	s.audit(ctx, "admin.credit", map[string]any{
		"caller":  caller.Hex(),
		"account": account.Hex(),
		"token":   token.Hex(),
		"amount":  amount.String(),
	})
	s.flush(ctx)
	return nil
}

// ---------------------------------------------------------------------------
// Views
// ---------------------------------------------------------------------------

// Balances returns the ledger balances of account for every listed token.
// Zero balances are omitted.
func (s *ExchangeService) Balances(account common.Address) ([]domain.Balance, error) {
	var out []domain.Balance
	for _, l := range s.engine.Listings() {
		if bal := s.ledger.BalanceOf(account, l.Token); !bal.IsZero() {
			out = append(out, domain.Balance{Account: account, Token: l.Token, Amount: bal})
		}
	}
	return out, nil
}

// Events lists persisted events. Without an event store it returns
// domain.ErrNotFound.
func (s *ExchangeService) Events(ctx context.Context, opts domain.ListOpts) ([]domain.Event, error) {
	if s.sinks.Events == nil {
		return nil, fmt.Errorf("service: event log disabled: %w", domain.ErrNotFound)
	}
	return s.sinks.Events.List(ctx, opts)
}

// Archives lists the archive objects written for reason ("filled",
// "expired"). Without an archiver it returns domain.ErrNotFound.
func (s *ExchangeService) Archives(ctx context.Context, reason string) ([]domain.BlobInfo, error) {
	if s.sinks.Archiver == nil {
		return nil, fmt.Errorf("service: order archive disabled: %w", domain.ErrNotFound)
	}
	return s.sinks.Archiver.ListArchives(ctx, reason)
}

// ArchivedOrders returns the orders stored in one archive object.
func (s *ExchangeService) ArchivedOrders(ctx context.Context, objectPath string) ([]domain.Order, error) {
	if s.sinks.Archiver == nil {
		return nil, fmt.Errorf("service: order archive disabled: %w", domain.ErrNotFound)
	}
	return s.sinks.Archiver.ReadArchive(ctx, objectPath)
}

// OrderRecord returns an order from the book, or from the order history once
// it has left the book.
func (s *ExchangeService) OrderRecord(ctx context.Context, id uint64) (domain.OrderRecord, error) {
	o, err := s.engine.ViewOrder(id)
	if err == nil {
		return domain.OrderRecord{Order: o, Status: domain.OrderStatusActive, UpdatedAt: s.now()}, nil
	}
	if s.sinks.History == nil {
		return domain.OrderRecord{}, err
	}
	rec, herr := s.sinks.History.GetByID(ctx, id)
	if herr != nil {
		// The book's error names the id; keep it for the not-found case.
		return domain.OrderRecord{}, err
	}
	return rec, nil
}

// OrdersByMaker lists the order history of maker.
func (s *ExchangeService) OrdersByMaker(ctx context.Context, maker common.Address, opts domain.ListOpts) ([]domain.OrderRecord, error) {
	if s.sinks.History == nil {
		var out []domain.OrderRecord
		for _, o := range s.engine.ListOrders() {
			if o.Maker == maker {
				out = append(out, domain.OrderRecord{Order: o, Status: domain.OrderStatusActive})
			}
		}
		return out, nil
	}
	return s.sinks.History.ListByMaker(ctx, maker.Hex(), opts)
}

// AuditLog lists audit entries.
func (s *ExchangeService) AuditLog(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	if s.sinks.Audit == nil {
		return nil, fmt.Errorf("service: audit log disabled: %w", domain.ErrNotFound)
	}
	return s.sinks.Audit.List(ctx, opts)
}

// ---------------------------------------------------------------------------
// Event fan-out
// ---------------------------------------------------------------------------

// Flush drains pending engine events into the sinks. Mutations flush on
// their own; Flush is for shutdown.
func (s *ExchangeService) Flush(ctx context.Context) {
	s.flush(ctx)
}

func (s *ExchangeService) flush(ctx context.Context) {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	events := s.engine.DrainEvents()
	if len(events) == 0 {
		return
	}
	first, last := events[0].Seq, events[len(events)-1].Seq

	for _, p := range s.sinks.Publishers {
		if err := p.PublishEvents(ctx, events); err != nil {
			s.logger.WarnContext(ctx, "publish events failed",
				slog.Uint64("from_seq", first),
				slog.Uint64("to_seq", last),
				slog.String("error", err.Error()),
			)
		}
	}
	if s.sinks.Events != nil {
		if err := s.sinks.Events.Append(ctx, events); err != nil {
			s.logger.ErrorContext(ctx, "append events failed",
				slog.Uint64("from_seq", first),
				slog.Uint64("to_seq", last),
				slog.String("error", err.Error()),
			)
		}
	}
	if s.sinks.History != nil {
		if err := s.sinks.History.Apply(ctx, events); err != nil {
			s.logger.ErrorContext(ctx, "apply order history failed",
				slog.String("error", err.Error()),
			)
		}
	}
	if s.sinks.Archiver != nil {
		s.archive(ctx, events)
	}
	if s.sinks.Notifier != nil {
		if err := s.sinks.Notifier.NotifyEvents(ctx, events); err != nil {
			s.logger.WarnContext(ctx, "notify failed", slog.String("error", err.Error()))
		}
	}
	if s.sinks.Snapshots != nil {
		s.snapshot(ctx)
	}
}

// archive uploads the orders that left the book, grouped by why they left.
func (s *ExchangeService) archive(ctx context.Context, events []domain.Event) {
	removed := make(map[string][]domain.Order)
	var reasons []string
	for _, ev := range events {
		if !ev.RemovesOrder() || ev.Order == nil {
			continue
		}
		reason := archiveReason(ev.Type)
		if _, ok := removed[reason]; !ok {
			reasons = append(reasons, reason)
		}
		removed[reason] = append(removed[reason], *ev.Order)
	}
	for _, reason := range reasons {
		path, err := s.sinks.Archiver.ArchiveOrders(ctx, reason, removed[reason])
		if err != nil {
			s.logger.ErrorContext(ctx, "archive orders failed",
				slog.String("reason", reason),
				slog.Int("count", len(removed[reason])),
				slog.String("error", err.Error()),
			)
			continue
		}
		s.logger.DebugContext(ctx, "orders archived",
			slog.String("reason", reason),
			slog.String("path", path),
		)
	}
}

func archiveReason(t domain.EventType) string {
	switch t {
	case domain.EventOrderFilled:
		return "filled"
	case domain.EventOrderExpired:
		return "expired"
	default:
		return string(t)
	}
}

func (s *ExchangeService) snapshot(ctx context.Context) {
	snap, ok := s.checkpoint()
	if !ok {
		return
	}
	if err := s.sinks.Snapshots.Save(ctx, snap); err != nil {
		s.logger.ErrorContext(ctx, "save snapshot failed",
			slog.Uint64("seq", snap.Seq),
			slog.String("error", err.Error()),
		)
	}
}

// checkpoint builds a snapshot when the ledger can be captured with the
// engine.
func (s *ExchangeService) checkpoint() (domain.Snapshot, bool) {
	ls, ok := s.ledger.(domain.LedgerSnapshotter)
	if !ok {
		return domain.Snapshot{}, false
	}
	st, ledgerState := s.engine.Checkpoint(ls)
	return domain.Snapshot{
		Seq:     st.LastSeq,
		TakenAt: s.now(),
		Engine:  st,
		Ledger:  ledgerState,
	}, true
}

func (s *ExchangeService) audit(ctx context.Context, event string, detail map[string]any) {
	if s.sinks.Audit == nil {
		return
	}
	if err := s.sinks.Audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
