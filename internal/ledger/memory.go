// Package ledger holds in-process implementations of the balance ledger the
// exchange engine settles against.
package ledger

import (
	"bytes"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/dexengine/internal/domain"
	"github.com/alanyoungcy/dexengine/internal/num"
)

type balanceKey struct {
	account common.Address
	token   common.Address
}

// Memory is a mutex guarded map of native token balances.
type Memory struct {
	mu       sync.RWMutex
	balances map[balanceKey]*num.Uint
}

var (
	_ domain.BalanceLedger     = (*Memory)(nil)
	_ domain.LedgerSnapshotter = (*Memory)(nil)
)

// NewMemory returns an empty ledger.
func NewMemory() *Memory {
	return &Memory{balances: make(map[balanceKey]*num.Uint)}
}

// BalanceOf returns a copy of the balance, zero when the account never held
// the token.
func (m *Memory) BalanceOf(account, token common.Address) *num.Uint {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if b, ok := m.balances[balanceKey{account, token}]; ok {
		return b.Clone()
	}
	return num.Zero()
}

// Credit mints amount into account.
func (m *Memory) Credit(account, token common.Address, amount *num.Uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creditLocked(account, token, amount)
}

// Debit burns amount from account.
func (m *Memory) Debit(account, token common.Address, amount *num.Uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.debitLocked(account, token, amount)
}

// Transfer moves amount between accounts. A transfer to self only checks the
// balance.
func (m *Memory) Transfer(from, to, token common.Address, amount *num.Uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transferLocked(from, to, token, amount)
}

func (m *Memory) creditLocked(account, token common.Address, amount *num.Uint) error {
	if amount.IsZero() {
		return nil
	}
	k := balanceKey{account, token}
	cur, ok := m.balances[k]
	if !ok {
		cur = num.Zero()
	}
	next, overflow := num.Zero().AddOverflow(cur, amount)
	if overflow {
		return fmt.Errorf("ledger: credit %s: %w", account.Hex(), domain.ErrAmountOverflow)
	}
	m.balances[k] = next
	return nil
}

func (m *Memory) debitLocked(account, token common.Address, amount *num.Uint) error {
	if amount.IsZero() {
		return nil
	}
	k := balanceKey{account, token}
	cur, ok := m.balances[k]
	if !ok || cur.LT(amount) {
		return fmt.Errorf("ledger: debit %s of %s: %w", amount, account.Hex(), domain.ErrInsufficientBalance)
	}
	next := num.Zero().Sub(cur, amount)
	if next.IsZero() {
		delete(m.balances, k)
		return nil
	}
	m.balances[k] = next
	return nil
}

func (m *Memory) transferLocked(from, to, token common.Address, amount *num.Uint) error {
	if from == to {
		if m.balanceLocked(from, token).LT(amount) {
			return fmt.Errorf("ledger: transfer %s from %s: %w", amount, from.Hex(), domain.ErrInsufficientBalance)
		}
		return nil
	}
	if err := m.debitLocked(from, token, amount); err != nil {
		return err
	}
	if err := m.creditLocked(to, token, amount); err != nil {
		// Undo the debit; crediting back what was just removed cannot overflow.
		_ = m.creditLocked(from, token, amount)
		return err
	}
	return nil
}

func (m *Memory) balanceLocked(account, token common.Address) *num.Uint {
	if b, ok := m.balances[balanceKey{account, token}]; ok {
		return b
	}
	return num.Zero()
}

// Snapshot returns every non-zero balance ordered by account then token.
func (m *Memory) Snapshot() domain.LedgerState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return domain.LedgerState{Balances: m.balancesLocked()}
}

func (m *Memory) balancesLocked() []domain.Balance {
	out := make([]domain.Balance, 0, len(m.balances))
	for k, v := range m.balances {
		out = append(out, domain.Balance{Account: k.account, Token: k.token, Amount: v.Clone()})
	}
	SortBalances(out)
	return out
}

// Restore replaces the ledger contents with state.
func (m *Memory) Restore(state domain.LedgerState) error {
	balances, err := buildBalances(state.Balances)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.balances = balances
	m.mu.Unlock()
	return nil
}

func buildBalances(in []domain.Balance) (map[balanceKey]*num.Uint, error) {
	out := make(map[balanceKey]*num.Uint, len(in))
	for _, b := range in {
		if b.Amount == nil {
			return nil, fmt.Errorf("ledger: restore %s: missing amount", b.Account.Hex())
		}
		if b.Amount.IsZero() {
			continue
		}
		out[balanceKey{b.Account, b.Token}] = b.Amount.Clone()
	}
	return out, nil
}

// SortBalances orders balances by account then token.
func SortBalances(b []domain.Balance) {
	sort.Slice(b, func(i, j int) bool {
		if c := bytes.Compare(b[i].Account[:], b[j].Account[:]); c != 0 {
			return c < 0
		}
		return bytes.Compare(b[i].Token[:], b[j].Token[:]) < 0
	})
}
