// Package limiter throttles login attempts per (username, client ip).
package limiter

import (
	"context"
	"crypto/sha256"
	"time"
)

// Limiter controls login attempts and temporary lockouts.
type Limiter interface {
	// Allow reports whether login is currently allowed and optional retry-after.
	Allow(ctx context.Context, username string, ipHash []byte) (bool, time.Duration, error)
	// Success resets counters after a successful login.
	Success(ctx context.Context, username string, ipHash []byte) error
	// Failure records a failed attempt; may place a temporary block.
	Failure(ctx context.Context, username string, ipHash []byte) (bool, time.Duration, error)
}

// Policy is shared by all implementations: MaxFails failures inside Window
// block the pair for BlockFor.
type Policy struct {
	Window   time.Duration
	MaxFails int
	BlockFor time.Duration
}

// DefaultPolicy allows 5 failures per 15 minutes, then blocks for 15 minutes.
func DefaultPolicy() Policy {
	return Policy{Window: 15 * time.Minute, MaxFails: 5, BlockFor: 15 * time.Minute}
}

// HashIP returns a stable hash for an IP string to avoid storing raw addresses.
func HashIP(ip string) []byte {
	h := sha256.Sum256([]byte(ip))
	return h[:]
}
