package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/dexengine/internal/num"
)

// Side indicates whether the maker offers the base token (buy) or the listed
// token (sell).
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// ParseSide accepts "buy" or "sell" in any case.
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToLower(strings.TrimSpace(s))) {
	case SideBuy:
		return SideBuy, nil
	case SideSell:
		return SideSell, nil
	default:
		return "", fmt.Errorf("unknown side %q", s)
	}
}

// Order is an active maker order. Price, Principal and Pending are 18-decimal
// fixed point values.
type Order struct {
	ID    uint64         `json:"id"`
	Token common.Address `json:"token"`
	Side  Side           `json:"side"`
	// Price is the base-token relative price fixed at creation.
	Price *num.Uint `json:"price"`
	// Principal is the remaining escrowed amount of the offered asset.
	Principal *num.Uint `json:"principal"`
	// Pending is the remaining amount of the counter asset owed to the maker.
	Pending   *num.Uint      `json:"pending"`
	Maker     common.Address `json:"maker"`
	CreatedAt time.Time      `json:"created_at"`
}

// Clone returns a deep copy so callers never share amounts with the book.
func (o Order) Clone() Order {
	out := o
	if o.Price != nil {
		out.Price = o.Price.Clone()
	}
	if o.Principal != nil {
		out.Principal = o.Principal.Clone()
	}
	if o.Pending != nil {
		out.Pending = o.Pending.Clone()
	}
	return out
}

// ExpiresAt returns the instant at which the order becomes clearable.
func (o Order) ExpiresAt(ttl time.Duration) time.Time {
	return o.CreatedAt.Add(ttl)
}

// Fill describes one take or settlement against an order. Taken and Released
// are fixed point; the native fields are what actually moved on the ledger.
type Fill struct {
	OrderID          uint64         `json:"order_id"`
	Token            common.Address `json:"token"`
	Side             Side           `json:"side"`
	Maker            common.Address `json:"maker"`
	Taker            common.Address `json:"taker"`
	Taken            *num.Uint      `json:"taken"`
	Released         *num.Uint      `json:"released"`
	TakenNative      *num.Uint      `json:"taken_native"`
	ReleasedNative   *num.Uint      `json:"released_native"`
	RemainingPending *num.Uint      `json:"remaining_pending"`
	Filled           bool           `json:"filled"`
}
