package exchange

import (
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/dexengine/internal/domain"
	"github.com/alanyoungcy/dexengine/internal/num"
)

// ClearOrders removes every order whose expiry has passed and refunds the
// remaining principal to its maker. It returns the number removed.
func (e *Engine) ClearOrders() (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clear("clear orders", e.book.all())
}

// ClearTokenOrders is ClearOrders restricted to the orders on token.
func (e *Engine) ClearTokenOrders(token common.Address) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.registry.get(token); !ok {
		return 0, fmt.Errorf("exchange: clear %s: %w", token.Hex(), domain.ErrTokenNotListed)
	}
	return e.clear("clear orders on "+token.Hex(), e.book.tokenOrders(token))
}

func (e *Engine) clear(op string, candidates []*domain.Order) (int, error) {
	now := e.now()
	type refund struct {
		order  *domain.Order
		amount *num.Uint
	}
	var expired []refund
	j := e.newJournal()
	for _, o := range candidates {
		if now.Before(o.ExpiresAt(e.cfg.OrderTTL)) {
			continue
		}
		offered, _, err := e.assets(o)
		if err != nil {
			return 0, e.abort(j, op, err)
		}
		amount, err := num.FromFixed(o.Principal, offered.decimals)
		if err != nil {
			return 0, e.abort(j, op, err)
		}
		if err := j.transfer(e.cfg.Custody, o.Maker, offered.token, amount); err != nil {
			return 0, e.abort(j, op, err)
		}
		expired = append(expired, refund{order: o, amount: amount})
	}
	if len(expired) == 0 {
		return 0, nil
	}

	ids := make([]uint64, 0, len(expired))
	for _, r := range expired {
		ids = append(ids, r.order.ID)
		snap := r.order.Clone()
		e.emit(domain.Event{
			Type:    domain.EventOrderExpired,
			Token:   r.order.Token,
			Account: r.order.Maker,
			OrderID: r.order.ID,
			Amount:  r.amount,
			Order:   &snap,
		})
	}
	e.book.remove(ids...)
	e.logger.Info("orders cleared", slog.String("op", op), slog.Int("removed", len(ids)))
	return len(ids), nil
}
