package exchange

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/dexengine/internal/domain"
	"github.com/alanyoungcy/dexengine/internal/num"
)

// asset is a token together with its native scale.
type asset struct {
	token    common.Address
	decimals uint8
}

// assets returns what the maker of o offered and what it wants in return.
func (e *Engine) assets(o *domain.Order) (offered, counter asset, err error) {
	base, ok := e.registry.base()
	if !ok {
		return asset{}, asset{}, domain.ErrBaseTokenRequired
	}
	l, ok := e.registry.get(o.Token)
	if !ok {
		return asset{}, asset{}, domain.ErrTokenNotListed
	}
	b := asset{token: base.Token, decimals: base.Decimals}
	t := asset{token: l.Token, decimals: l.Decimals}
	if o.Side == domain.SideBuy {
		return b, t, nil
	}
	return t, b, nil
}

// CreateBuyOrder escrows deposit base token units from maker and opens an
// order wanting token in return.
func (e *Engine) CreateBuyOrder(maker, token common.Address, deposit *num.Uint) (domain.Order, error) {
	return e.createOrder(maker, token, domain.SideBuy, deposit)
}

// CreateSellOrder escrows deposit token units from maker and opens an order
// wanting base token in return.
func (e *Engine) CreateSellOrder(maker, token common.Address, deposit *num.Uint) (domain.Order, error) {
	return e.createOrder(maker, token, domain.SideSell, deposit)
}

func (e *Engine) createOrder(maker, token common.Address, side domain.Side, deposit *num.Uint) (domain.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	op := fmt.Sprintf("create %s order on %s", side, token.Hex())
	if deposit == nil || deposit.IsZero() {
		return domain.Order{}, fmt.Errorf("exchange: %s: %w", op, domain.ErrZeroAmount)
	}
	l, err := e.tradable(token)
	if err != nil {
		return domain.Order{}, err
	}
	price, err := e.relativePrice(l)
	if err != nil {
		return domain.Order{}, fmt.Errorf("exchange: %s: %w", op, err)
	}

	o := &domain.Order{
		ID:        e.nextOrderID,
		Token:     token,
		Side:      side,
		Price:     price,
		Maker:     maker,
		CreatedAt: e.now().UTC(),
	}
	offered, _, err := e.assets(o)
	if err != nil {
		return domain.Order{}, fmt.Errorf("exchange: %s: %w", op, err)
	}
	if o.Principal, err = num.ToFixed(deposit, offered.decimals); err != nil {
		return domain.Order{}, fmt.Errorf("exchange: %s: %w", op, domain.ErrAmountOverflow)
	}
	if side == domain.SideBuy {
		o.Pending, err = num.FixedDiv(o.Principal, price)
	} else {
		o.Pending, err = num.FixedMul(o.Principal, price)
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("exchange: %s: %w", op, domain.ErrAmountOverflow)
	}
	if o.Pending.IsZero() {
		return domain.Order{}, fmt.Errorf("exchange: %s: pending rounds to zero: %w", op, domain.ErrZeroAmount)
	}

	j := e.newJournal()
	if err := j.pull(maker, e.cfg.Custody, offered.token, deposit); err != nil {
		return domain.Order{}, e.abort(j, op, err)
	}

	e.nextOrderID++
	e.book.add(o)
	snap := o.Clone()
	e.emit(domain.Event{
		Type:    domain.EventOrderCreated,
		Token:   token,
		Account: maker,
		OrderID: o.ID,
		Amount:  deposit.Clone(),
		Order:   &snap,
	})
	return o.Clone(), nil
}

// TakeBuyOrder pays amount of the listed token to the maker of buy order id
// and releases the proportional base token principal to taker.
func (e *Engine) TakeBuyOrder(taker common.Address, id uint64, amount *num.Uint) (domain.Fill, error) {
	return e.take(taker, id, domain.SideBuy, amount)
}

// TakeSellOrder pays amount of base token to the maker of sell order id and
// releases the proportional listed token principal to taker.
func (e *Engine) TakeSellOrder(taker common.Address, id uint64, amount *num.Uint) (domain.Fill, error) {
	return e.take(taker, id, domain.SideSell, amount)
}

// TakeOrder takes order id whatever its side.
func (e *Engine) TakeOrder(taker common.Address, id uint64, amount *num.Uint) (domain.Fill, error) {
	return e.take(taker, id, "", amount)
}

func (e *Engine) take(taker common.Address, id uint64, side domain.Side, amount *num.Uint) (domain.Fill, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	op := fmt.Sprintf("take order %d", id)
	o, ok := e.book.get(id)
	if !ok || (side != "" && o.Side != side) {
		return domain.Fill{}, fmt.Errorf("exchange: %s: %w", op, domain.ErrOrderDoesNotExist)
	}
	if amount == nil || amount.IsZero() {
		return domain.Fill{}, fmt.Errorf("exchange: %s: %w", op, domain.ErrZeroAmount)
	}
	if taker == o.Maker {
		return domain.Fill{}, fmt.Errorf("exchange: %s: %w", op, domain.ErrDuplicateTransferAddress)
	}
	offered, counter, err := e.assets(o)
	if err != nil {
		return domain.Fill{}, fmt.Errorf("exchange: %s: %w", op, err)
	}

	taken, err := num.ToFixed(amount, counter.decimals)
	if err != nil {
		return domain.Fill{}, fmt.Errorf("exchange: %s: %w", op, domain.ErrAmountOverflow)
	}
	if taken.GT(o.Pending) {
		// Pending need not be a whole number of native units; paying the
		// rounded-up amount takes the rest.
		unit, _ := num.Unit(counter.decimals)
		if num.Zero().Sub(taken, o.Pending).GTE(unit) {
			return domain.Fill{}, fmt.Errorf("exchange: %s: %w", op, domain.ErrExceedsPending)
		}
		taken = o.Pending.Clone()
	}

	released, releasedNative, err := release(o, taken, offered.decimals)
	if err != nil {
		return domain.Fill{}, fmt.Errorf("exchange: %s: %w", op, err)
	}

	j := e.newJournal()
	if err := j.pull(taker, o.Maker, counter.token, amount); err != nil {
		return domain.Fill{}, e.abort(j, op, err)
	}
	if err := j.transfer(e.cfg.Custody, taker, offered.token, releasedNative); err != nil {
		return domain.Fill{}, e.abort(j, op, err)
	}

	fill := e.applyFill(o, taker, taken, released, amount, releasedNative)
	e.emitFill(domain.EventOrderTaken, o, fill)
	return fill, nil
}

// release computes the principal freed by taking taken of o's pending,
// proportionally to the current remaining amounts. The released principal is
// truncated to whole native units so the order's principal always matches
// what custody still holds for it; a full take releases everything.
func release(o *domain.Order, taken *num.Uint, decimals uint8) (released, native *num.Uint, err error) {
	if taken.EQ(o.Pending) {
		released = o.Principal.Clone()
	} else {
		exact, overflow := num.Zero().MulDiv(taken, o.Principal, o.Pending)
		if overflow {
			return nil, nil, domain.ErrAmountOverflow
		}
		if released, err = truncate(exact, decimals); err != nil {
			return nil, nil, err
		}
	}
	if native, err = num.FromFixed(released, decimals); err != nil {
		return nil, nil, err
	}
	return released, native, nil
}

// truncate rounds a fixed point amount down to a whole number of native
// units.
func truncate(v *num.Uint, decimals uint8) (*num.Uint, error) {
	n, err := num.FromFixed(v, decimals)
	if err != nil {
		return nil, err
	}
	return num.ToFixed(n, decimals)
}

// applyFill mutates o after every ledger movement of the fill succeeded and
// removes it from the book once nothing is pending.
func (e *Engine) applyFill(o *domain.Order, taker common.Address, taken, released, takenNative, releasedNative *num.Uint) domain.Fill {
	o.Pending = num.Zero().Sub(o.Pending, taken)
	o.Principal = num.Zero().Sub(o.Principal, released)
	fill := domain.Fill{
		OrderID:          o.ID,
		Token:            o.Token,
		Side:             o.Side,
		Maker:            o.Maker,
		Taker:            taker,
		Taken:            taken.Clone(),
		Released:         released.Clone(),
		TakenNative:      takenNative.Clone(),
		ReleasedNative:   releasedNative.Clone(),
		RemainingPending: o.Pending.Clone(),
		Filled:           o.Pending.IsZero(),
	}
	if fill.Filled {
		e.book.remove(o.ID)
	}
	return fill
}

func (e *Engine) emitFill(typ domain.EventType, o *domain.Order, fill domain.Fill) {
	snap := o.Clone()
	f := fill
	e.emit(domain.Event{
		Type:    typ,
		Token:   o.Token,
		Account: fill.Taker,
		OrderID: o.ID,
		Amount:  fill.TakenNative.Clone(),
		Order:   &snap,
		Fill:    &f,
	})
	if fill.Filled {
		done := o.Clone()
		e.emit(domain.Event{
			Type:    domain.EventOrderFilled,
			Token:   o.Token,
			Account: o.Maker,
			OrderID: o.ID,
			Order:   &done,
		})
	}
}
