package redis

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/dexengine/internal/domain"
)

// unlockLua deletes a lock key only if its value matches the caller's token.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// extendLua resets the TTL of a lock key only if the caller still owns it.
const extendLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`

// LockManager implements domain.LockManager using Redis SETNX with a TTL and
// a Lua-based conditional unlock.
type LockManager struct {
	c        *Client
	rdb      *redis.Client
	unlockSc *redis.Script
	extendSc *redis.Script
}

// NewLockManager creates a LockManager backed by the given Client.
func NewLockManager(c *Client) *LockManager {
	return &LockManager{
		c:        c,
		rdb:      c.Underlying(),
		unlockSc: redis.NewScript(unlockLua),
		extendSc: redis.NewScript(extendLua),
	}
}

func (lm *LockManager) lockKey(key string) string {
	return lm.c.Key("lock", key)
}

// Acquire attempts to obtain a distributed lock for the given key with the
// specified TTL. On success it returns an unlock function that is safe to
// call more than once.
//
// It returns domain.ErrLockHeld if the lock is already held by another party.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.New().String()
	lk := lm.lockKey(key)

	ok, err := lm.rdb.SetNX(ctx, lk, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, domain.ErrLockHeld
	}

	var once sync.Once
	unlock := func() {
		once.Do(func() {
			// Background context so unlock succeeds after the caller's
			// context is cancelled.
			unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = lm.unlockSc.Run(unlockCtx, lm.rdb, []string{lk}, token).Err()
		})
	}
	return unlock, nil
}

// Lease is a lock that is renewed in the background until released. The
// cluster writer holds one for as long as it accepts mutations.
type Lease struct {
	lm     *LockManager
	key    string
	token  string
	ttl    time.Duration
	lost   chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// AcquireLease takes key and keeps renewing it every ttl/3. Lost is closed
// when a renewal finds the lock owned by someone else or expired.
func (lm *LockManager) AcquireLease(ctx context.Context, key string, ttl time.Duration, logger *slog.Logger) (*Lease, error) {
	token := uuid.New().String()
	ok, err := lm.rdb.SetNX(ctx, lm.lockKey(key), token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lease %s: %w", key, err)
	}
	if !ok {
		return nil, domain.ErrLockHeld
	}
	renewCtx, cancel := context.WithCancel(context.Background())
	l := &Lease{
		lm:     lm,
		key:    key,
		token:  token,
		ttl:    ttl,
		lost:   make(chan struct{}),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go l.renew(renewCtx, logger)
	return l, nil
}

func (l *Lease) renew(ctx context.Context, logger *slog.Logger) {
	defer close(l.done)
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := l.lm.extendSc.Run(ctx, l.lm.rdb, []string{l.lm.lockKey(l.key)}, l.token, l.ttl.Milliseconds()).Int64()
			if err != nil {
				logger.Warn("redis: lease renewal failed",
					slog.String("key", l.key),
					slog.String("error", err.Error()),
				)
				continue
			}
			if n == 0 {
				logger.Error("redis: lease lost", slog.String("key", l.key))
				close(l.lost)
				return
			}
		}
	}
}

// Lost is closed when the lease can no longer be renewed.
func (l *Lease) Lost() <-chan struct{} {
	return l.lost
}

// Release stops renewal and deletes the lock if still owned.
func (l *Lease) Release() {
	l.once.Do(func() {
		l.cancel()
		<-l.done
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = l.lm.unlockSc.Run(ctx, l.lm.rdb, []string{l.lm.lockKey(l.key)}, l.token).Err()
	})
}

// Compile-time interface check.
var _ domain.LockManager = (*LockManager)(nil)
