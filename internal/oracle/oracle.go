// Package oracle provides the in-memory price oracle read by the exchange
// engine inside its critical section.
package oracle

import (
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/dexengine/internal/domain"
	"github.com/alanyoungcy/dexengine/internal/num"
)

// Snapshot is a cached set of fixed point token prices. Reads never block on
// I/O; a refresher swaps prices in from outside the engine lock.
type Snapshot struct {
	mu        sync.RWMutex
	prices    map[common.Address]*num.Uint
	updatedAt time.Time
}

var _ domain.PriceOracle = (*Snapshot)(nil)

// New returns a snapshot seeded with prices.
func New(prices map[common.Address]*num.Uint) *Snapshot {
	s := &Snapshot{prices: make(map[common.Address]*num.Uint, len(prices))}
	for token, p := range prices {
		if p != nil && !p.IsZero() {
			s.prices[token] = p.Clone()
		}
	}
	return s
}

// Price returns the cached price of token.
func (s *Snapshot) Price(token common.Address) (*num.Uint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prices[token]
	if !ok {
		return nil, fmt.Errorf("oracle: no price for %s: %w", token.Hex(), domain.ErrOraclePriceUnset)
	}
	return p.Clone(), nil
}

// Set stores a single price. A zero price removes the entry.
func (s *Snapshot) Set(token common.Address, price *num.Uint, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if price == nil || price.IsZero() {
		delete(s.prices, token)
	} else {
		s.prices[token] = price.Clone()
	}
	s.updatedAt = at
}

// Merge overwrites the prices present in update and keeps the rest.
func (s *Snapshot) Merge(update map[common.Address]*num.Uint, at time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for token, p := range update {
		if p == nil || p.IsZero() {
			continue
		}
		s.prices[token] = p.Clone()
		n++
	}
	s.updatedAt = at
	return n
}

// Prices returns a copy of every cached price.
func (s *Snapshot) Prices() map[common.Address]*num.Uint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[common.Address]*num.Uint, len(s.prices))
	for token, p := range s.prices {
		out[token] = p.Clone()
	}
	return out
}

// UpdatedAt returns when prices last changed.
func (s *Snapshot) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatedAt
}
