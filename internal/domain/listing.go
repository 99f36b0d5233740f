package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/dexengine/internal/num"
)

// PriceSourceKind selects how a listing is priced against the base token.
type PriceSourceKind string

const (
	// PriceSourceOracle reads the token price from the assigned oracle.
	PriceSourceOracle PriceSourceKind = "oracle"
	// PriceSourceParity derives the relative price from the base and token
	// balances held by a reference account.
	PriceSourceParity PriceSourceKind = "parity"
	// PriceSourceFixed uses a constant set at listing time.
	PriceSourceFixed PriceSourceKind = "fixed"
)

// PriceSource is fixed at listing time.
type PriceSource struct {
	Kind          PriceSourceKind `json:"kind"`
	ParityAccount common.Address  `json:"parity_account,omitempty"`
	// Value is the fixed point price for PriceSourceFixed.
	Value *num.Uint `json:"value,omitempty"`
}

// OracleSource prices a token through the engine oracle.
func OracleSource() PriceSource {
	return PriceSource{Kind: PriceSourceOracle}
}

// ParitySource prices a token by the balances held by account.
func ParitySource(account common.Address) PriceSource {
	return PriceSource{Kind: PriceSourceParity, ParityAccount: account}
}

// FixedSource prices a token at a constant fixed point value.
func FixedSource(value *num.Uint) PriceSource {
	return PriceSource{Kind: PriceSourceFixed, Value: value}
}

// Listing is the registry entry of a tradable token.
type Listing struct {
	Token    common.Address `json:"token"`
	Decimals uint8          `json:"decimals"`
	Source   PriceSource    `json:"source"`
	// Index is 0 for the base token and increases by one per listing.
	Index uint64 `json:"index"`
	// Fee is the listing fee paid, in base token native units.
	Fee      *num.Uint `json:"fee"`
	ListedAt time.Time `json:"listed_at"`
}

// IsBase reports whether the listing is the base token.
func (l Listing) IsBase() bool {
	return l.Index == 0
}
