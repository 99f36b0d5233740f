package crypto

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/dexengine/internal/domain"
)

var (
	ErrSignatureExpired = errors.New("crypto: signature deadline passed")
	ErrNonceReused      = errors.New("crypto: nonce already used")
)

// NonceGuard rejects admin signatures that are expired or replayed. Used
// nonces are remembered until their deadline passes.
type NonceGuard struct {
	mu   sync.Mutex
	used map[common.Address]map[uint64]int64
}

// NewNonceGuard returns an empty guard.
func NewNonceGuard() *NonceGuard {
	return &NonceGuard{used: make(map[common.Address]map[uint64]int64)}
}

// Use consumes nonce for signer. Both errors wrap domain.ErrInvalidSignature.
func (g *NonceGuard) Use(signer common.Address, nonce uint64, deadline int64, now time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	unix := now.Unix()
	if deadline < unix {
		return fmt.Errorf("%w: %w", ErrSignatureExpired, domain.ErrInvalidSignature)
	}
	g.prune(unix)

	nonces := g.used[signer]
	if nonces == nil {
		nonces = make(map[uint64]int64)
		g.used[signer] = nonces
	}
	if _, ok := nonces[nonce]; ok {
		return fmt.Errorf("%w: %w", ErrNonceReused, domain.ErrInvalidSignature)
	}
	nonces[nonce] = deadline
	return nil
}

func (g *NonceGuard) prune(unix int64) {
	for signer, nonces := range g.used {
		for n, deadline := range nonces {
			if deadline < unix {
				delete(nonces, n)
			}
		}
		if len(nonces) == 0 {
			delete(g.used, signer)
		}
	}
}
