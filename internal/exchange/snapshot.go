package exchange

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/alanyoungcy/dexengine/internal/domain"
	"github.com/alanyoungcy/dexengine/internal/num"
)

// State returns a deep copy of the engine state. Pending events are not part
// of the state; drain them before persisting.
func (e *Engine) State() domain.EngineState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stateLocked()
}

// Checkpoint captures the engine state together with the state of l under
// the engine lock. l must be the ledger the engine was built with, and only
// mutated through the engine, for the pair to be consistent.
func (e *Engine) Checkpoint(l domain.LedgerSnapshotter) (domain.EngineState, domain.LedgerState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stateLocked(), l.Snapshot()
}

func (e *Engine) stateLocked() domain.EngineState {
	st := domain.EngineState{
		LastSeq:      e.seq,
		NextOrderID:  e.nextOrderID,
		NextFee:      e.registry.nextFee.Clone(),
		Listings:     e.registry.all(),
		Orders:       cloneOrders(e.book.all()),
		Owner:        e.auth.Owner,
		Renounced:    e.auth.Renounced,
		FeeCollector: e.feeCollector,
		OracleSet:    e.oracle != nil,
	}
	for k, v := range e.escrow {
		st.Escrow = append(st.Escrow, domain.Balance{Account: k.account, Token: k.token, Amount: v.Clone()})
	}
	sortBalances(st.Escrow)
	return st
}

// Restore replaces the engine state with st. The oracle is not part of the
// state and must be supplied through WithOracle or AssignPriceDAO.
func (e *Engine) Restore(st domain.EngineState) error {
	reg, err := e.restoreRegistry(st)
	if err != nil {
		return fmt.Errorf("exchange: restore: %w", err)
	}
	book := newOrderBook()
	for _, o := range st.Orders {
		l, ok := reg.get(o.Token)
		if !ok || l.IsBase() {
			return fmt.Errorf("exchange: restore: order %d on %s: %w", o.ID, o.Token.Hex(), domain.ErrTokenNotListed)
		}
		if o.Price == nil || o.Principal == nil || o.Pending == nil || o.Pending.IsZero() {
			return fmt.Errorf("exchange: restore: order %d has incomplete amounts", o.ID)
		}
		if o.ID == 0 || o.ID >= st.NextOrderID {
			return fmt.Errorf("exchange: restore: order id %d outside [1, %d)", o.ID, st.NextOrderID)
		}
		if _, dup := book.get(o.ID); dup {
			return fmt.Errorf("exchange: restore: duplicate order %d", o.ID)
		}
		c := o.Clone()
		book.add(&c)
	}
	escrow := make(map[escrowKey]*num.Uint, len(st.Escrow))
	for _, b := range st.Escrow {
		if b.Amount != nil && !b.Amount.IsZero() {
			escrow[escrowKey{b.Account, b.Token}] = b.Amount.Clone()
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.registry = reg
	e.book = book
	e.escrow = escrow
	e.auth = AuthState{Owner: st.Owner, Renounced: st.Renounced}
	e.feeCollector = st.FeeCollector
	e.nextOrderID = st.NextOrderID
	if e.nextOrderID == 0 {
		e.nextOrderID = 1
	}
	e.seq = st.LastSeq
	e.outbox = nil
	return nil
}

func (e *Engine) restoreRegistry(st domain.EngineState) (*registry, error) {
	reg := newRegistry(e.cfg.BaseListingFee, e.cfg.FeeGrowthNumerator, e.cfg.FeeGrowthDenominator)
	listings := make([]domain.Listing, len(st.Listings))
	copy(listings, st.Listings)
	sort.Slice(listings, func(i, j int) bool { return listings[i].Index < listings[j].Index })
	for i, l := range listings {
		if l.Index != uint64(i) {
			return nil, fmt.Errorf("listing index %d out of sequence", l.Index)
		}
		if l.Decimals > num.Decimals {
			return nil, fmt.Errorf("listing %s: %w", l.Token.Hex(), domain.ErrInvalidDecimals)
		}
		if _, dup := reg.get(l.Token); dup {
			return nil, fmt.Errorf("listing %s: %w", l.Token.Hex(), domain.ErrAlreadyListed)
		}
		if l.Fee == nil {
			l.Fee = num.Zero()
		}
		reg.add(cloneListing(l), nil)
	}
	if st.NextFee != nil {
		reg.nextFee = st.NextFee.Clone()
	}
	return reg, nil
}

func sortBalances(b []domain.Balance) {
	sort.Slice(b, func(i, j int) bool {
		if c := bytes.Compare(b[i].Account[:], b[j].Account[:]); c != 0 {
			return c < 0
		}
		return bytes.Compare(b[i].Token[:], b[j].Token[:]) < 0
	})
}
