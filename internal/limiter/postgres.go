package limiter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the part of a pgx pool the limiter needs.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PG keeps login attempt counters in the auth_limiter table so lockouts survive restarts.
type PG struct {
	q      Querier
	policy Policy
	now    func() time.Time
}

// NewPG constructs a PostgreSQL-backed limiter.
func NewPG(q Querier, p Policy) *PG {
	return &PG{q: q, policy: p, now: time.Now}
}

// Allow reports whether login is currently allowed and a retry-after duration.
func (l *PG) Allow(ctx context.Context, username string, ipHash []byte) (bool, time.Duration, error) {
	const q = `SELECT blocked_until FROM auth_limiter WHERE username=$1 AND ip_hash=$2`
	var blockedUntil time.Time
	err := l.q.QueryRow(ctx, q, username, ipHash).Scan(&blockedUntil)
	if errors.Is(err, pgx.ErrNoRows) {
		return true, 0, nil
	}
	if err != nil {
		return false, 0, fmt.Errorf("limiter allow: %w", err)
	}
	if now := l.now(); blockedUntil.After(now) {
		return false, blockedUntil.Sub(now), nil
	}
	return true, 0, nil
}

// Success resets counters for (username, ip).
func (l *PG) Success(ctx context.Context, username string, ipHash []byte) error {
	const q = `DELETE FROM auth_limiter WHERE username=$1 AND ip_hash=$2`
	_, err := l.q.Exec(ctx, q, username, ipHash)
	return err
}

// Failure counts a failed attempt. Counting restarts when the previous failure is
// older than the window; reaching MaxFails sets blocked_until.
func (l *PG) Failure(ctx context.Context, username string, ipHash []byte) (bool, time.Duration, error) {
	const q = `
INSERT INTO auth_limiter (username, ip_hash, fail_count, blocked_until, updated_at)
VALUES ($1, $2, 1, 'epoch', now())
ON CONFLICT (username, ip_hash) DO UPDATE
SET fail_count = CASE WHEN now() - auth_limiter.updated_at > $3::interval THEN 1 ELSE auth_limiter.fail_count + 1 END,
    updated_at = now()
RETURNING fail_count`
	var fails int
	if err := l.q.QueryRow(ctx, q, username, ipHash, l.policy.Window).Scan(&fails); err != nil {
		return false, 0, fmt.Errorf("limiter failure: %w", err)
	}
	if fails < l.policy.MaxFails {
		return false, 0, nil
	}

	const block = `UPDATE auth_limiter SET blocked_until=$3 WHERE username=$1 AND ip_hash=$2`
	if _, err := l.q.Exec(ctx, block, username, ipHash, l.now().Add(l.policy.BlockFor)); err != nil {
		return false, 0, fmt.Errorf("limiter block: %w", err)
	}
	return true, l.policy.BlockFor, nil
}
