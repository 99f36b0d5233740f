package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/dexengine/internal/num"
)

// EngineState is the serializable state of the matching engine. Orders are
// kept in global insertion order; per-token order follows from it.
type EngineState struct {
	LastSeq      uint64         `json:"last_seq"`
	NextOrderID  uint64         `json:"next_order_id"`
	NextFee      *num.Uint      `json:"next_fee"`
	Listings     []Listing      `json:"listings"`
	Orders       []Order        `json:"orders"`
	Escrow       []Balance      `json:"escrow"`
	Owner        common.Address `json:"owner"`
	Renounced    bool           `json:"renounced"`
	FeeCollector common.Address `json:"fee_collector"`
	OracleSet    bool           `json:"oracle_set"`
}

// LedgerState is the serializable state of an in-memory ledger.
type LedgerState struct {
	Balances   []Balance   `json:"balances"`
	Allowances []Allowance `json:"allowances,omitempty"`
}

// Snapshot bundles engine and ledger state at one event sequence.
type Snapshot struct {
	Seq     uint64      `json:"seq"`
	TakenAt time.Time   `json:"taken_at"`
	Engine  EngineState `json:"engine"`
	Ledger  LedgerState `json:"ledger"`
}
