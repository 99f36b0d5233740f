package exchange

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/dexengine/internal/domain"
)

// ViewOrder returns a copy of active order id.
func (e *Engine) ViewOrder(id uint64) (domain.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	o, ok := e.book.get(id)
	if !ok {
		return domain.Order{}, fmt.Errorf("exchange: order %d: %w", id, domain.ErrOrderDoesNotExist)
	}
	return o.Clone(), nil
}

// ViewOrderByToken returns the i-th active order on token.
func (e *Engine) ViewOrderByToken(token common.Address, i int) (domain.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	o, ok := e.book.at(token, i)
	if !ok {
		return domain.Order{}, fmt.Errorf("exchange: order %d of %s: %w", i, token.Hex(), domain.ErrOrderDoesNotExist)
	}
	return o.Clone(), nil
}

// ListOrders returns every active order in creation order.
func (e *Engine) ListOrders() []domain.Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneOrders(e.book.all())
}

// ListTokenOrders returns the active orders on token in index order.
func (e *Engine) ListTokenOrders(token common.Address) []domain.Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneOrders(e.book.tokenOrders(token))
}

// OrderCount returns the number of active orders.
func (e *Engine) OrderCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.len()
}

func cloneOrders(in []*domain.Order) []domain.Order {
	out := make([]domain.Order, 0, len(in))
	for _, o := range in {
		out = append(out, o.Clone())
	}
	return out
}
