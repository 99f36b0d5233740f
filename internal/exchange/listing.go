package exchange

import (
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/dexengine/internal/domain"
	"github.com/alanyoungcy/dexengine/internal/num"
)

// ListToken registers token with the given price source. The first listing
// becomes the base token and is free; every later listing pays the current
// listing fee in base token from caller to the fee collector, or to custody
// while no collector is assigned.
func (e *Engine) ListToken(caller, token common.Address, decimals uint8, source domain.PriceSource) (domain.Listing, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.validateListing(token, decimals, source); err != nil {
		return domain.Listing{}, fmt.Errorf("exchange: list %s: %w", token.Hex(), err)
	}

	listing := domain.Listing{
		Token:    token,
		Decimals: decimals,
		Source:   cloneListing(domain.Listing{Source: source}).Source,
		Index:    uint64(e.registry.count()),
		Fee:      e.registry.fee(),
		ListedAt: e.now().UTC(),
	}

	var nextFee *num.Uint
	j := e.newJournal()
	if !listing.IsBase() {
		var err error
		if nextFee, err = e.registry.grow(listing.Fee); err != nil {
			return domain.Listing{}, fmt.Errorf("exchange: list %s: %w", token.Hex(), err)
		}
		base, _ := e.registry.base()
		if err := j.pull(caller, e.feeRecipient(), base.Token, listing.Fee); err != nil {
			return domain.Listing{}, e.abort(j, "list "+token.Hex(), err)
		}
	}

	e.registry.add(listing, nextFee)
	out := cloneListing(listing)
	e.emit(domain.Event{
		Type:    domain.EventTokenListed,
		Token:   token,
		Account: caller,
		Amount:  out.Fee.Clone(),
		Listing: &out,
	})
	e.logger.Info("token listed",
		slog.String("token", token.Hex()),
		slog.Uint64("index", listing.Index),
		slog.String("source", string(source.Kind)),
		slog.String("fee", listing.Fee.String()),
	)
	return cloneListing(listing), nil
}

// ListParityToken lists token priced by the balances held by parityAccount.
func (e *Engine) ListParityToken(caller, token common.Address, decimals uint8, parityAccount common.Address) (domain.Listing, error) {
	return e.ListToken(caller, token, decimals, domain.ParitySource(parityAccount))
}

func (e *Engine) validateListing(token common.Address, decimals uint8, source domain.PriceSource) error {
	if decimals > num.Decimals {
		return domain.ErrInvalidDecimals
	}
	if _, ok := e.registry.get(token); ok {
		return domain.ErrAlreadyListed
	}
	first := e.registry.count() == 0
	if first && e.cfg.BaseToken != (common.Address{}) && token != e.cfg.BaseToken {
		return domain.ErrBaseTokenRequired
	}
	switch source.Kind {
	case domain.PriceSourceOracle:
	case domain.PriceSourceFixed:
		if source.Value == nil || source.Value.IsZero() {
			return fmt.Errorf("fixed price must be positive: %w", domain.ErrInvalidPriceSource)
		}
	case domain.PriceSourceParity:
		if first {
			return fmt.Errorf("base token cannot use parity pricing: %w", domain.ErrInvalidPriceSource)
		}
		if source.ParityAccount == (common.Address{}) {
			return fmt.Errorf("parity account is required: %w", domain.ErrInvalidPriceSource)
		}
	default:
		return fmt.Errorf("unknown kind %q: %w", source.Kind, domain.ErrInvalidPriceSource)
	}
	return nil
}

func (e *Engine) feeRecipient() common.Address {
	if e.feeCollector != (common.Address{}) {
		return e.feeCollector
	}
	return e.cfg.Custody
}

// Listing returns the registry entry of token.
func (e *Engine) Listing(token common.Address) (domain.Listing, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.registry.get(token)
	if !ok {
		return domain.Listing{}, fmt.Errorf("exchange: %s: %w", token.Hex(), domain.ErrTokenNotListed)
	}
	return cloneListing(*l), nil
}

// Listings returns every listing in listing order.
func (e *Engine) Listings() []domain.Listing {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registry.all()
}

// BaseToken returns the base token listing.
func (e *Engine) BaseToken() (domain.Listing, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.registry.base()
	if !ok {
		return domain.Listing{}, fmt.Errorf("exchange: %w", domain.ErrBaseTokenRequired)
	}
	return cloneListing(*l), nil
}

// NextListingFee returns what the next listing would pay.
func (e *Engine) NextListingFee() *num.Uint {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registry.fee()
}
