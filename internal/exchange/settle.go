package exchange

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/dexengine/internal/domain"
	"github.com/alanyoungcy/dexengine/internal/num"
)

type plannedFill struct {
	order          *domain.Order
	taken          *num.Uint
	released       *num.Uint
	charge         *num.Uint
	releasedNative *num.Uint
}

// SettleOrders fills the caller's escrowed counter asset into the active
// orders of one side of token, in index order, until the escrow runs out.
// Orders made by the caller are skipped. Every fill is planned before any
// funds move, so a ledger failure leaves orders and escrow untouched.
func (e *Engine) SettleOrders(caller, token common.Address, side domain.Side) ([]domain.Fill, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	op := fmt.Sprintf("settle %s orders on %s", side, token.Hex())
	if side != domain.SideBuy && side != domain.SideSell {
		return nil, fmt.Errorf("exchange: %s: unknown side", op)
	}
	l, err := e.tradable(token)
	if err != nil {
		return nil, err
	}
	base, _ := e.registry.base()
	offered := asset{token: base.Token, decimals: base.Decimals}
	counter := asset{token: l.Token, decimals: l.Decimals}
	if side == domain.SideSell {
		offered, counter = counter, offered
	}

	key := escrowKey{caller, counter.token}
	remaining := e.escrowOf(key)
	if remaining.IsZero() {
		return nil, fmt.Errorf("exchange: %s: no escrow: %w", op, domain.ErrInsufficientBalance)
	}

	var plan []plannedFill
	for _, o := range e.book.tokenOrders(token) {
		if remaining.IsZero() {
			break
		}
		if o.Side != side || o.Maker == caller {
			continue
		}
		p, err := planFill(o, remaining, offered, counter)
		if err != nil {
			return nil, fmt.Errorf("exchange: %s: order %d: %w", op, o.ID, err)
		}
		remaining = num.Zero().Sub(remaining, p.charge)
		plan = append(plan, p)
	}
	if len(plan) == 0 {
		return nil, nil
	}

	j := e.newJournal()
	for _, p := range plan {
		if err := j.transfer(e.cfg.Custody, p.order.Maker, counter.token, p.charge); err != nil {
			return nil, e.abort(j, op, err)
		}
		if err := j.transfer(e.cfg.Custody, caller, offered.token, p.releasedNative); err != nil {
			return nil, e.abort(j, op, err)
		}
	}

	e.setEscrow(key, remaining)
	fills := make([]domain.Fill, 0, len(plan))
	for _, p := range plan {
		fill := e.applyFill(p.order, caller, p.taken, p.released, p.charge, p.releasedNative)
		e.emitFill(domain.EventOrderSettled, p.order, fill)
		fills = append(fills, fill)
	}
	return fills, nil
}

// planFill sizes one settlement: min(escrow, pending), charged in whole
// native units rounded up so a completed order receives at least its pending
// amount.
func planFill(o *domain.Order, escrowNative *num.Uint, offered, counter asset) (plannedFill, error) {
	escrow, err := num.ToFixed(escrowNative, counter.decimals)
	if err != nil {
		return plannedFill{}, domain.ErrAmountOverflow
	}
	p := plannedFill{order: o}
	if escrow.GTE(o.Pending) {
		p.taken = o.Pending.Clone()
		if p.charge, err = num.FromFixedCeil(o.Pending, counter.decimals); err != nil {
			return plannedFill{}, err
		}
	} else {
		p.taken = escrow
		p.charge = escrowNative.Clone()
	}
	if p.released, p.releasedNative, err = release(o, p.taken, offered.decimals); err != nil {
		return plannedFill{}, err
	}
	return p, nil
}
