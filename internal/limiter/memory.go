package limiter

import (
	"context"
	"encoding/hex"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type attempts struct {
	fails        int
	windowStart  time.Time
	blockedUntil time.Time
}

// Memory is an in-process limiter with the same window and lockout rules as PG.
// Entries are kept in a bounded LRU and expire once neither window nor block applies.
type Memory struct {
	mu     sync.Mutex
	cache  *expirable.LRU[string, attempts]
	policy Policy
	now    func() time.Time
}

// NewMemory constructs an in-memory limiter tracking at most size (username, ip) pairs.
func NewMemory(size int, p Policy) *Memory {
	return &Memory{
		cache:  expirable.NewLRU[string, attempts](size, nil, max(p.Window, p.BlockFor)),
		policy: p,
		now:    time.Now,
	}
}

func key(username string, ipHash []byte) string { return username + "|" + hex.EncodeToString(ipHash) }

// Allow reports whether login is currently allowed and a retry-after duration.
func (l *Memory) Allow(_ context.Context, username string, ipHash []byte) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.cache.Get(key(username, ipHash))
	if !ok {
		return true, 0, nil
	}
	if now := l.now(); a.blockedUntil.After(now) {
		return false, a.blockedUntil.Sub(now), nil
	}
	return true, 0, nil
}

// Success forgets the pair.
func (l *Memory) Success(_ context.Context, username string, ipHash []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cache.Remove(key(username, ipHash))
	return nil
}

// Failure records a failed attempt and blocks the pair once maxFails is reached inside the window.
func (l *Memory) Failure(_ context.Context, username string, ipHash []byte) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := key(username, ipHash)
	now := l.now()
	a, ok := l.cache.Get(k)
	if !ok || now.Sub(a.windowStart) > l.policy.Window {
		a = attempts{windowStart: now}
	}
	a.fails++
	blocked := a.fails >= l.policy.MaxFails
	if blocked {
		a.blockedUntil = now.Add(l.policy.BlockFor)
	}
	l.cache.Add(k, a)
	if blocked {
		return true, l.policy.BlockFor, nil
	}
	return false, 0, nil
}
