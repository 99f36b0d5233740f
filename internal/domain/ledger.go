package domain

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/dexengine/internal/num"
)

// PriceOracle supplies fixed point token prices. Implementations must answer
// from memory: the engine calls Price while holding its lock.
type PriceOracle interface {
	Price(token common.Address) (*num.Uint, error)
}

// BalanceLedger tracks per-account, per-token custody balances in native
// token units.
type BalanceLedger interface {
	BalanceOf(account, token common.Address) *num.Uint
	Credit(account, token common.Address, amount *num.Uint) error
	Debit(account, token common.Address, amount *num.Uint) error
	Transfer(from, to, token common.Address, amount *num.Uint) error
}

// AllowanceLedger is a BalanceLedger that also enforces spending allowances.
// When the engine's ledger implements it, funds are pulled from accounts with
// TransferFrom on behalf of the custody account.
type AllowanceLedger interface {
	BalanceLedger
	Allowance(owner, spender, token common.Address) *num.Uint
	Approve(owner, spender, token common.Address, amount *num.Uint) error
	TransferFrom(spender, from, to, token common.Address, amount *num.Uint) error
	// RestoreAllowance gives back allowance consumed by a TransferFrom that
	// is being rolled back.
	RestoreAllowance(owner, spender, token common.Address, amount *num.Uint) error
}

// Balance is one ledger or escrow entry.
type Balance struct {
	Account common.Address `json:"account"`
	Token   common.Address `json:"token"`
	Amount  *num.Uint      `json:"amount"`
}

// Allowance is one spending approval.
type Allowance struct {
	Owner   common.Address `json:"owner"`
	Spender common.Address `json:"spender"`
	Token   common.Address `json:"token"`
	Amount  *num.Uint      `json:"amount"`
}

// LedgerSnapshotter is implemented by ledgers whose state is persisted
// alongside the engine snapshot.
type LedgerSnapshotter interface {
	Snapshot() LedgerState
	Restore(state LedgerState) error
}
