// Package exchange implements the listing registry, order book and matching
// engine. Every mutating call runs under a single engine mutex and either
// commits all of its ledger movements and index changes or none of them.
package exchange

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/alanyoungcy/dexengine/internal/domain"
	"github.com/alanyoungcy/dexengine/internal/num"
)

// DefaultOrderTTL is how long an order stays active before clearing removes
// it.
const DefaultOrderTTL = 7 * 24 * time.Hour

// Config holds the static engine parameters.
type Config struct {
	// Custody is the account that holds escrowed principal and deposits.
	Custody common.Address
	// Owner is the initial privileged account.
	Owner common.Address
	// BaseToken, when set, must be the first token listed.
	BaseToken common.Address
	// BaseListingFee is the fee for the first non-base listing, in base
	// token native units.
	BaseListingFee *num.Uint
	// FeeGrowthNumerator / FeeGrowthDenominator is the per-listing fee
	// increase ratio.
	FeeGrowthNumerator   uint64
	FeeGrowthDenominator uint64
	OrderTTL             time.Duration
}

// DefaultConfig returns the parameters of the reference deployment.
func DefaultConfig() Config {
	return Config{
		BaseListingFee:       num.NewUint(1000),
		FeeGrowthNumerator:   5,
		FeeGrowthDenominator: 1000,
		OrderTTL:             DefaultOrderTTL,
	}
}

func (c Config) validate() error {
	var errs []error
	if c.Custody == (common.Address{}) {
		errs = append(errs, errors.New("custody account is required"))
	}
	if c.BaseListingFee == nil {
		errs = append(errs, errors.New("base listing fee is required"))
	}
	if c.FeeGrowthDenominator == 0 {
		errs = append(errs, errors.New("fee growth denominator must be positive"))
	}
	if c.OrderTTL <= 0 {
		errs = append(errs, errors.New("order ttl must be positive"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("exchange: invalid config: %w", err)
	}
	return nil
}

// Option customises an Engine.
type Option func(*Engine)

// WithClock replaces time.Now as the engine clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithOracle sets the initial price oracle.
func WithOracle(o domain.PriceOracle) Option {
	return func(e *Engine) { e.oracle = o }
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// AuthState is the engine authorization state: either an active owner or
// renounced, after which no privileged call succeeds.
type AuthState struct {
	Owner     common.Address `json:"owner"`
	Renounced bool           `json:"renounced"`
}

func (a AuthState) authorize(caller common.Address) error {
	if a.Renounced {
		return domain.ErrOwnershipRenounced
	}
	if caller != a.Owner {
		return domain.ErrUnauthorized
	}
	return nil
}

type escrowKey struct {
	account common.Address
	token   common.Address
}

// Engine is the matching engine.
type Engine struct {
	mu sync.Mutex

	cfg    Config
	ledger domain.BalanceLedger
	oracle domain.PriceOracle
	now    func() time.Time
	logger *slog.Logger

	registry *registry
	book     *orderBook
	// escrow holds native amounts deposited by account and token.
	escrow map[escrowKey]*num.Uint

	auth         AuthState
	feeCollector common.Address
	nextOrderID  uint64

	seq    uint64
	outbox []domain.Event
}

// New creates an engine settling against ledger.
func New(cfg Config, ledger domain.BalanceLedger, opts ...Option) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if ledger == nil {
		return nil, errors.New("exchange: ledger is required")
	}
	e := &Engine{
		cfg:         cfg,
		ledger:      ledger,
		now:         time.Now,
		logger:      slog.Default(),
		registry:    newRegistry(cfg.BaseListingFee, cfg.FeeGrowthNumerator, cfg.FeeGrowthDenominator),
		book:        newOrderBook(),
		escrow:      make(map[escrowKey]*num.Uint),
		auth:        AuthState{Owner: cfg.Owner},
		nextOrderID: 1,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(slog.String("component", "exchange"))
	return e, nil
}

// Custody returns the custody account.
func (e *Engine) Custody() common.Address {
	return e.cfg.Custody
}

// OrderTTL returns the expiry window.
func (e *Engine) OrderTTL() time.Duration {
	return e.cfg.OrderTTL
}

// Auth returns the current authorization state.
func (e *Engine) Auth() AuthState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.auth
}

// FeeCollector returns the assigned fee collector, the zero address if none.
func (e *Engine) FeeCollector() common.Address {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.feeCollector
}

// HasOracle reports whether a price oracle is assigned.
func (e *Engine) HasOracle() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.oracle != nil
}

// LastSeq returns the sequence of the most recent event.
func (e *Engine) LastSeq() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.seq
}

// DrainEvents returns the events committed since the previous drain, oldest
// first.
func (e *Engine) DrainEvents() []domain.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := e.outbox
	e.outbox = nil
	return out
}

func (e *Engine) emit(ev domain.Event) {
	e.seq++
	ev.ID = uuid.NewString()
	ev.Seq = e.seq
	if ev.At.IsZero() {
		ev.At = e.now().UTC()
	}
	e.outbox = append(e.outbox, ev)
}

func (e *Engine) newJournal() *journal {
	return &journal{ledger: e.ledger, custody: e.cfg.Custody}
}

// abort rolls back j and returns err. A failed rollback is logged; the
// original error is still returned to the caller.
func (e *Engine) abort(j *journal, op string, err error) error {
	if rbErr := j.rollback(); rbErr != nil {
		e.logger.Error("exchange: rollback failed",
			slog.String("op", op),
			slog.String("cause", err.Error()),
			slog.String("error", rbErr.Error()),
		)
	}
	return fmt.Errorf("exchange: %s: %w", op, err)
}
