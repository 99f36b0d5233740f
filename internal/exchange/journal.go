package exchange

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/dexengine/internal/domain"
	"github.com/alanyoungcy/dexengine/internal/num"
)

type moveKind int

const (
	moveTransfer moveKind = iota
	movePull
	moveCredit
)

type move struct {
	kind   moveKind
	from   common.Address
	to     common.Address
	token  common.Address
	amount *num.Uint
}

// journal records ledger movements made during one engine call so that a
// later failure can undo them in reverse order.
type journal struct {
	ledger  domain.BalanceLedger
	custody common.Address
	moves   []move
}

// transfer moves funds the engine controls, typically out of custody.
func (j *journal) transfer(from, to, token common.Address, amount *num.Uint) error {
	if amount.IsZero() || from == to {
		return nil
	}
	if err := j.ledger.Transfer(from, to, token, amount); err != nil {
		return err
	}
	j.moves = append(j.moves, move{kind: moveTransfer, from: from, to: to, token: token, amount: amount.Clone()})
	return nil
}

// pull moves funds out of an account the engine does not control. With an
// allowance ledger the custody account spends the caller's approval.
func (j *journal) pull(from, to, token common.Address, amount *num.Uint) error {
	if amount.IsZero() || from == to {
		return nil
	}
	if al, ok := j.ledger.(domain.AllowanceLedger); ok {
		if err := al.TransferFrom(j.custody, from, to, token, amount); err != nil {
			return err
		}
		j.moves = append(j.moves, move{kind: movePull, from: from, to: to, token: token, amount: amount.Clone()})
		return nil
	}
	return j.transfer(from, to, token, amount)
}

func (j *journal) credit(to, token common.Address, amount *num.Uint) error {
	if amount.IsZero() {
		return nil
	}
	if err := j.ledger.Credit(to, token, amount); err != nil {
		return err
	}
	j.moves = append(j.moves, move{kind: moveCredit, to: to, token: token, amount: amount.Clone()})
	return nil
}

// rollback reverses every recorded movement, newest first.
func (j *journal) rollback() error {
	var errs []error
	for i := len(j.moves) - 1; i >= 0; i-- {
		m := j.moves[i]
		var err error
		switch m.kind {
		case moveCredit:
			err = j.ledger.Debit(m.to, m.token, m.amount)
		default:
			err = j.ledger.Transfer(m.to, m.from, m.token, m.amount)
			if err == nil && m.kind == movePull {
				err = j.ledger.(domain.AllowanceLedger).RestoreAllowance(m.from, j.custody, m.token, m.amount)
			}
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("undo %s of %s: %w", m.amount, m.token.Hex(), err))
		}
	}
	j.moves = nil
	return errors.Join(errs...)
}
