// Package nonce keeps short-lived records of embed URL nonces so a signed URL
// can be redeemed only once within its window.
package nonce

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "embed:nonce:v1:"

var errEmptyNonce = errors.New("empty nonce")

// RedisGuard reserves nonces with SET NX so concurrent verifiers across
// processes agree on the first redeemer.
type RedisGuard struct {
	cache *redis.Client
}

// NewRedisGuard builds a guard on an existing client.
func NewRedisGuard(cache *redis.Client) *RedisGuard {
	return &RedisGuard{cache: cache}
}

// Reserve returns true the first time nonce is seen within ttl.
func (g *RedisGuard) Reserve(ctx context.Context, nonce string, ttl time.Duration) (bool, error) {
	if nonce == "" {
		return false, errEmptyNonce
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return g.cache.SetNX(ctx, keyPrefix+nonce, 1, ttl).Result()
}

// sweepInterval bounds how often MemoryGuard walks its entries to drop
// expired ones.
const sweepInterval = time.Minute

// MemoryGuard is a process-local guard for development and tests.
type MemoryGuard struct {
	mu        sync.Mutex
	now       func() time.Time
	entries   map[string]time.Time
	lastSweep time.Time
}

// NewMemoryGuard builds an empty in-memory guard.
func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{now: time.Now, entries: make(map[string]time.Time)}
}

// Reserve returns true the first time nonce is seen within ttl.
func (g *MemoryGuard) Reserve(_ context.Context, nonce string, ttl time.Duration) (bool, error) {
	if nonce == "" {
		return false, errEmptyNonce
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if now.Sub(g.lastSweep) >= sweepInterval {
		g.sweep(now)
	}
	if exp, held := g.entries[nonce]; held && now.Before(exp) {
		return false, nil
	}
	g.entries[nonce] = now.Add(ttl)
	return true, nil
}

func (g *MemoryGuard) sweep(now time.Time) {
	for k, exp := range g.entries {
		if !now.Before(exp) {
			delete(g.entries, k)
		}
	}
	g.lastSweep = now
}
