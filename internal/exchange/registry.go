package exchange

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/dexengine/internal/domain"
	"github.com/alanyoungcy/dexengine/internal/num"
)

// registry maps tokens to listings. Entries are never removed or modified.
type registry struct {
	listings map[common.Address]*domain.Listing
	ordered  []common.Address

	baseFee *num.Uint
	nextFee *num.Uint
	growNum *num.Uint
	growDen *num.Uint
}

func newRegistry(baseFee *num.Uint, growNum, growDen uint64) *registry {
	return &registry{
		listings: make(map[common.Address]*domain.Listing),
		baseFee:  baseFee.Clone(),
		nextFee:  baseFee.Clone(),
		growNum:  num.NewUint(growNum),
		growDen:  num.NewUint(growDen),
	}
}

func (r *registry) get(token common.Address) (*domain.Listing, bool) {
	l, ok := r.listings[token]
	return l, ok
}

// base returns the index 0 listing.
func (r *registry) base() (*domain.Listing, bool) {
	if len(r.ordered) == 0 {
		return nil, false
	}
	return r.listings[r.ordered[0]], true
}

func (r *registry) count() int {
	return len(r.ordered)
}

// fee returns the fee the next listing pays. The first listing is free.
func (r *registry) fee() *num.Uint {
	if len(r.ordered) == 0 {
		return num.Zero()
	}
	return r.nextFee.Clone()
}

// grow returns fee + floor(fee * num / den).
func (r *registry) grow(fee *num.Uint) (*num.Uint, error) {
	inc, overflow := num.Zero().MulDiv(fee, r.growNum, r.growDen)
	if overflow {
		return nil, domain.ErrAmountOverflow
	}
	next, overflow := num.Zero().AddOverflow(fee, inc)
	if overflow {
		return nil, domain.ErrAmountOverflow
	}
	return next, nil
}

// add appends l and advances the fee schedule. l.Index and l.Fee must already
// be set by the caller.
func (r *registry) add(l domain.Listing, nextFee *num.Uint) {
	r.listings[l.Token] = &l
	r.ordered = append(r.ordered, l.Token)
	if nextFee != nil {
		r.nextFee = nextFee
	}
}

func (r *registry) all() []domain.Listing {
	out := make([]domain.Listing, 0, len(r.ordered))
	for _, t := range r.ordered {
		out = append(out, cloneListing(*r.listings[t]))
	}
	return out
}

func cloneListing(l domain.Listing) domain.Listing {
	if l.Fee != nil {
		l.Fee = l.Fee.Clone()
	}
	if l.Source.Value != nil {
		l.Source.Value = l.Source.Value.Clone()
	}
	return l
}
