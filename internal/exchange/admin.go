package exchange

import (
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/dexengine/internal/domain"
	"github.com/alanyoungcy/dexengine/internal/num"
)

// AssignPriceDAO replaces the price oracle used by oracle-priced listings.
func (e *Engine) AssignPriceDAO(caller common.Address, oracle domain.PriceOracle) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.auth.authorize(caller); err != nil {
		return fmt.Errorf("exchange: assign price oracle: %w", err)
	}
	if oracle == nil {
		return fmt.Errorf("exchange: assign price oracle: %w", domain.ErrOraclePriceUnset)
	}
	e.oracle = oracle
	e.emit(domain.Event{Type: domain.EventOracleAssigned, Account: caller})
	return nil
}

// AssignOwner transfers ownership to owner.
func (e *Engine) AssignOwner(caller, owner common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.auth.authorize(caller); err != nil {
		return fmt.Errorf("exchange: assign owner: %w", err)
	}
	if owner == (common.Address{}) {
		return fmt.Errorf("exchange: assign owner: %w", domain.ErrZeroAddress)
	}
	e.auth.Owner = owner
	e.emit(domain.Event{Type: domain.EventOwnerAssigned, Account: owner})
	e.logger.Info("owner assigned", slog.String("owner", owner.Hex()))
	return nil
}

// AssignFeeCollector sets the account that receives listing fees.
func (e *Engine) AssignFeeCollector(caller, collector common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.auth.authorize(caller); err != nil {
		return fmt.Errorf("exchange: assign fee collector: %w", err)
	}
	if collector == (common.Address{}) {
		return fmt.Errorf("exchange: assign fee collector: %w", domain.ErrZeroAddress)
	}
	e.feeCollector = collector
	e.emit(domain.Event{Type: domain.EventFeeCollectorAssigned, Account: collector})
	return nil
}

// RenounceOwnership permanently gives up every privileged operation. Both the
// price oracle and the fee collector must be assigned first.
func (e *Engine) RenounceOwnership(caller common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.auth.authorize(caller); err != nil {
		return fmt.Errorf("exchange: renounce ownership: %w", err)
	}
	if e.oracle == nil || e.feeCollector == (common.Address{}) {
		return fmt.Errorf("exchange: renounce ownership: %w", domain.ErrDependenciesUnset)
	}
	e.auth = AuthState{Renounced: true}
	e.emit(domain.Event{Type: domain.EventOwnershipRenounced, Account: caller})
	e.logger.Warn("ownership renounced", slog.String("by", caller.Hex()))
	return nil
}

// CreditAccount mints amount of token into account on the ledger.
func (e *Engine) CreditAccount(caller, account, token common.Address, amount *num.Uint) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.auth.authorize(caller); err != nil {
		return fmt.Errorf("exchange: credit: %w", err)
	}
	if amount == nil || amount.IsZero() {
		return fmt.Errorf("exchange: credit: %w", domain.ErrZeroAmount)
	}
	if account == (common.Address{}) {
		return fmt.Errorf("exchange: credit: %w", domain.ErrZeroAddress)
	}
	j := e.newJournal()
	if err := j.credit(account, token, amount); err != nil {
		return e.abort(j, "credit", err)
	}
	e.emit(domain.Event{Type: domain.EventAccountCredited, Token: token, Account: account, Amount: amount.Clone()})
	return nil
}
