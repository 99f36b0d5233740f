package exchange

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/dexengine/internal/domain"
)

// orderBook keeps active orders in global insertion order and, per token, in
// the same relative order. A token's sequence is always a subsequence of the
// global one; positions re-compact when an order is removed.
type orderBook struct {
	orders  map[uint64]*domain.Order
	global  []uint64
	byToken map[common.Address][]uint64
}

func newOrderBook() *orderBook {
	return &orderBook{
		orders:  make(map[uint64]*domain.Order),
		byToken: make(map[common.Address][]uint64),
	}
}

func (b *orderBook) add(o *domain.Order) {
	b.orders[o.ID] = o
	b.global = append(b.global, o.ID)
	b.byToken[o.Token] = append(b.byToken[o.Token], o.ID)
}

func (b *orderBook) get(id uint64) (*domain.Order, bool) {
	o, ok := b.orders[id]
	return o, ok
}

func (b *orderBook) len() int {
	return len(b.global)
}

// at returns the i-th active order on token.
func (b *orderBook) at(token common.Address, i int) (*domain.Order, bool) {
	ids := b.byToken[token]
	if i < 0 || i >= len(ids) {
		return nil, false
	}
	return b.orders[ids[i]], true
}

// tokenOrders returns the active orders on token in index order.
func (b *orderBook) tokenOrders(token common.Address) []*domain.Order {
	ids := b.byToken[token]
	out := make([]*domain.Order, 0, len(ids))
	for _, id := range ids {
		out = append(out, b.orders[id])
	}
	return out
}

// all returns every active order in global order.
func (b *orderBook) all() []*domain.Order {
	out := make([]*domain.Order, 0, len(b.global))
	for _, id := range b.global {
		out = append(out, b.orders[id])
	}
	return out
}

// remove drops the given orders from both indices in a single pass each.
func (b *orderBook) remove(ids ...uint64) {
	if len(ids) == 0 {
		return
	}
	gone := make(map[uint64]struct{}, len(ids))
	tokens := make(map[common.Address]struct{})
	for _, id := range ids {
		o, ok := b.orders[id]
		if !ok {
			continue
		}
		gone[id] = struct{}{}
		tokens[o.Token] = struct{}{}
		delete(b.orders, id)
	}
	b.global = compact(b.global, gone)
	for t := range tokens {
		if rest := compact(b.byToken[t], gone); len(rest) > 0 {
			b.byToken[t] = rest
		} else {
			delete(b.byToken, t)
		}
	}
}

func compact(ids []uint64, gone map[uint64]struct{}) []uint64 {
	out := ids[:0]
	for _, id := range ids {
		if _, ok := gone[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}
