package ledger

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/dexengine/internal/domain"
	"github.com/alanyoungcy/dexengine/internal/num"
)

type allowanceKey struct {
	owner   common.Address
	spender common.Address
	token   common.Address
}

// Approvals is a Memory ledger that also tracks spending allowances, so that
// the engine must be approved before it can pull funds from an account.
type Approvals struct {
	*Memory
	allowances map[allowanceKey]*num.Uint
}

var (
	_ domain.AllowanceLedger   = (*Approvals)(nil)
	_ domain.LedgerSnapshotter = (*Approvals)(nil)
)

// NewApprovals returns an empty allowance-enforcing ledger.
func NewApprovals() *Approvals {
	return &Approvals{Memory: NewMemory(), allowances: make(map[allowanceKey]*num.Uint)}
}

// Allowance returns how much spender may still pull from owner.
func (a *Approvals) Allowance(owner, spender, token common.Address) *num.Uint {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if v, ok := a.allowances[allowanceKey{owner, spender, token}]; ok {
		return v.Clone()
	}
	return num.Zero()
}

// Approve sets the allowance, replacing any previous value.
func (a *Approvals) Approve(owner, spender, token common.Address, amount *num.Uint) error {
	if owner == spender {
		return fmt.Errorf("ledger: approve: %w", domain.ErrDuplicateTransferAddress)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	k := allowanceKey{owner, spender, token}
	if amount.IsZero() {
		delete(a.allowances, k)
		return nil
	}
	a.allowances[k] = amount.Clone()
	return nil
}

// TransferFrom moves amount from one account to another on behalf of spender
// and consumes the matching allowance.
func (a *Approvals) TransferFrom(spender, from, to, token common.Address, amount *num.Uint) error {
	if amount.IsZero() {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	k := allowanceKey{from, spender, token}
	if from != spender {
		cur, ok := a.allowances[k]
		if !ok || cur.LT(amount) {
			return fmt.Errorf("ledger: %s pulling %s from %s: %w", spender.Hex(), amount, from.Hex(), domain.ErrInsufficientAllowance)
		}
	}
	if err := a.transferLocked(from, to, token, amount); err != nil {
		return err
	}
	if from == spender {
		return nil
	}
	left := num.Zero().Sub(a.allowances[k], amount)
	if left.IsZero() {
		delete(a.allowances, k)
	} else {
		a.allowances[k] = left
	}
	return nil
}

// RestoreAllowance adds amount back to the allowance.
func (a *Approvals) RestoreAllowance(owner, spender, token common.Address, amount *num.Uint) error {
	if owner == spender || amount.IsZero() {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	k := allowanceKey{owner, spender, token}
	cur, ok := a.allowances[k]
	if !ok {
		cur = num.Zero()
	}
	next, overflow := num.Zero().AddOverflow(cur, amount)
	if overflow {
		return fmt.Errorf("ledger: restore allowance: %w", domain.ErrAmountOverflow)
	}
	a.allowances[k] = next
	return nil
}

// Snapshot returns balances and allowances in a stable order.
func (a *Approvals) Snapshot() domain.LedgerState {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]domain.Allowance, 0, len(a.allowances))
	for k, v := range a.allowances {
		out = append(out, domain.Allowance{Owner: k.owner, Spender: k.spender, Token: k.token, Amount: v.Clone()})
	}
	sort.Slice(out, func(i, j int) bool {
		if c := bytes.Compare(out[i].Owner[:], out[j].Owner[:]); c != 0 {
			return c < 0
		}
		if c := bytes.Compare(out[i].Spender[:], out[j].Spender[:]); c != 0 {
			return c < 0
		}
		return bytes.Compare(out[i].Token[:], out[j].Token[:]) < 0
	})
	return domain.LedgerState{Balances: a.balancesLocked(), Allowances: out}
}

// Restore replaces balances and allowances with state.
func (a *Approvals) Restore(state domain.LedgerState) error {
	balances, err := buildBalances(state.Balances)
	if err != nil {
		return err
	}
	allowances := make(map[allowanceKey]*num.Uint, len(state.Allowances))
	for _, al := range state.Allowances {
		if al.Amount == nil || al.Amount.IsZero() {
			continue
		}
		allowances[allowanceKey{al.Owner, al.Spender, al.Token}] = al.Amount.Clone()
	}
	a.mu.Lock()
	a.balances = balances
	a.allowances = allowances
	a.mu.Unlock()
	return nil
}
