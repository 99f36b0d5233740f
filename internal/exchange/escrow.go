package exchange

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/dexengine/internal/domain"
	"github.com/alanyoungcy/dexengine/internal/num"
)

// Deposit moves amount of token from caller into custody and credits the
// caller's escrow, which SettleOrders later spends. It returns the new escrow
// balance.
func (e *Engine) Deposit(caller, token common.Address, amount *num.Uint) (*num.Uint, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	op := "deposit " + token.Hex()
	if amount == nil || amount.IsZero() {
		return nil, fmt.Errorf("exchange: %s: %w", op, domain.ErrZeroAmount)
	}
	if _, ok := e.registry.get(token); !ok {
		return nil, fmt.Errorf("exchange: %s: %w", op, domain.ErrTokenNotListed)
	}
	key := escrowKey{caller, token}
	next, overflow := num.Zero().AddOverflow(e.escrowOf(key), amount)
	if overflow {
		return nil, fmt.Errorf("exchange: %s: %w", op, domain.ErrAmountOverflow)
	}
	j := e.newJournal()
	if err := j.pull(caller, e.cfg.Custody, token, amount); err != nil {
		return nil, e.abort(j, op, err)
	}
	e.setEscrow(key, next)
	e.emit(domain.Event{Type: domain.EventEscrowDeposited, Token: token, Account: caller, Amount: amount.Clone()})
	return next.Clone(), nil
}

// Withdraw returns amount of the caller's escrowed token from custody.
func (e *Engine) Withdraw(caller, token common.Address, amount *num.Uint) (*num.Uint, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	op := "withdraw " + token.Hex()
	if amount == nil || amount.IsZero() {
		return nil, fmt.Errorf("exchange: %s: %w", op, domain.ErrZeroAmount)
	}
	key := escrowKey{caller, token}
	next, under := num.Zero().SubOverflow(e.escrowOf(key), amount)
	if under {
		return nil, fmt.Errorf("exchange: %s: %w", op, domain.ErrInsufficientBalance)
	}
	j := e.newJournal()
	if err := j.transfer(e.cfg.Custody, caller, token, amount); err != nil {
		return nil, e.abort(j, op, err)
	}
	e.setEscrow(key, next)
	e.emit(domain.Event{Type: domain.EventEscrowWithdrawn, Token: token, Account: caller, Amount: amount.Clone()})
	return next, nil
}

// Escrow returns the caller's escrowed native balance of token.
func (e *Engine) Escrow(account, token common.Address) *num.Uint {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.escrowOf(escrowKey{account, token})
}

// Escrows returns every non-zero escrow balance of account.
func (e *Engine) Escrows(account common.Address) []domain.Balance {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []domain.Balance
	for k, v := range e.escrow {
		if k.account == account {
			out = append(out, domain.Balance{Account: k.account, Token: k.token, Amount: v.Clone()})
		}
	}
	sortBalances(out)
	return out
}

func (e *Engine) escrowOf(k escrowKey) *num.Uint {
	if v, ok := e.escrow[k]; ok {
		return v.Clone()
	}
	return num.Zero()
}

func (e *Engine) setEscrow(k escrowKey, v *num.Uint) {
	if v.IsZero() {
		delete(e.escrow, k)
		return
	}
	e.escrow[k] = v.Clone()
}
