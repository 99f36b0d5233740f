package exchange

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/dexengine/internal/domain"
	"github.com/alanyoungcy/dexengine/internal/num"
)

// PriceOf returns the fixed point price of a listed token as resolved by its
// price source.
func (e *Engine) PriceOf(token common.Address) (*num.Uint, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.registry.get(token)
	if !ok {
		return nil, fmt.Errorf("exchange: price of %s: %w", token.Hex(), domain.ErrTokenNotListed)
	}
	var (
		p   *num.Uint
		err error
	)
	if l.Source.Kind == domain.PriceSourceParity {
		p, err = e.parityPrice(l)
	} else {
		p, err = e.priceOf(l)
	}
	if err != nil {
		return nil, fmt.Errorf("exchange: price of %s: %w", token.Hex(), err)
	}
	return p, nil
}

// RelativePrice returns the price of one unit of token expressed in base
// token units, which is what a new order on token would be priced at.
func (e *Engine) RelativePrice(token common.Address) (*num.Uint, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, err := e.tradable(token)
	if err != nil {
		return nil, err
	}
	p, err := e.relativePrice(l)
	if err != nil {
		return nil, fmt.Errorf("exchange: relative price of %s: %w", token.Hex(), err)
	}
	return p, nil
}

func (e *Engine) priceOf(l *domain.Listing) (*num.Uint, error) {
	switch l.Source.Kind {
	case domain.PriceSourceFixed:
		if l.Source.Value == nil || l.Source.Value.IsZero() {
			return nil, domain.ErrOraclePriceUnset
		}
		return l.Source.Value.Clone(), nil
	case domain.PriceSourceOracle:
		if e.oracle == nil {
			return nil, fmt.Errorf("no oracle assigned: %w", domain.ErrOraclePriceUnset)
		}
		p, err := e.oracle.Price(l.Token)
		if err != nil {
			if errors.Is(err, domain.ErrOraclePriceUnset) {
				return nil, err
			}
			return nil, fmt.Errorf("oracle %s: %v: %w", l.Token.Hex(), err, domain.ErrOraclePriceUnset)
		}
		if p == nil || p.IsZero() {
			return nil, fmt.Errorf("zero price for %s: %w", l.Token.Hex(), domain.ErrOraclePriceUnset)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("price source %q: %w", l.Source.Kind, domain.ErrInvalidPriceSource)
	}
}

// parityPrice divides the parity account's normalized base balance by its
// normalized token balance.
func (e *Engine) parityPrice(l *domain.Listing) (*num.Uint, error) {
	base, ok := e.registry.base()
	if !ok {
		return nil, domain.ErrBaseTokenRequired
	}
	acct := l.Source.ParityAccount
	baseBal, err := num.ToFixed(e.ledger.BalanceOf(acct, base.Token), base.Decimals)
	if err != nil {
		return nil, err
	}
	tokenBal, err := num.ToFixed(e.ledger.BalanceOf(acct, l.Token), l.Decimals)
	if err != nil {
		return nil, err
	}
	if baseBal.IsZero() || tokenBal.IsZero() {
		return nil, fmt.Errorf("parity account %s has no balance: %w", acct.Hex(), domain.ErrOraclePriceUnset)
	}
	p, err := num.FixedDiv(baseBal, tokenBal)
	if err != nil {
		return nil, fmt.Errorf("parity price: %w", domain.ErrAmountOverflow)
	}
	if p.IsZero() {
		return nil, fmt.Errorf("parity price rounds to zero: %w", domain.ErrOraclePriceUnset)
	}
	return p, nil
}

// relativePrice is priceOf(base) / priceOf(token), or the parity ratio for
// parity listings.
func (e *Engine) relativePrice(l *domain.Listing) (*num.Uint, error) {
	if l.Source.Kind == domain.PriceSourceParity {
		return e.parityPrice(l)
	}
	base, ok := e.registry.base()
	if !ok {
		return nil, domain.ErrBaseTokenRequired
	}
	basePrice, err := e.priceOf(base)
	if err != nil {
		return nil, err
	}
	tokenPrice, err := e.priceOf(l)
	if err != nil {
		return nil, err
	}
	p, err := num.FixedDiv(basePrice, tokenPrice)
	if err != nil {
		return nil, fmt.Errorf("relative price: %w", domain.ErrAmountOverflow)
	}
	if p.IsZero() {
		return nil, fmt.Errorf("relative price rounds to zero: %w", domain.ErrOraclePriceUnset)
	}
	return p, nil
}

// tradable returns the listing of a non-base token.
func (e *Engine) tradable(token common.Address) (*domain.Listing, error) {
	l, ok := e.registry.get(token)
	if !ok {
		return nil, fmt.Errorf("exchange: %s: %w", token.Hex(), domain.ErrTokenNotListed)
	}
	if l.IsBase() {
		return nil, fmt.Errorf("exchange: %s: %w", token.Hex(), domain.ErrBaseTokenNotTradable)
	}
	return l, nil
}
