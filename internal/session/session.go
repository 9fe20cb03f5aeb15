// Package session issues and verifies the bearer tokens that bind commands to a user.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/and161185/labkeeper/internal/errs"
)

// Defaults for tokens.
const (
	DefaultTTL    = 30 * time.Minute
	DefaultLeeway = 30 * time.Second
)

// Option configures an Authority.
type Option func(*Authority)

// WithTTL sets the token validity window.
func WithTTL(d time.Duration) Option { return func(a *Authority) { a.ttl = d } }

// WithLeeway sets the clock skew tolerated on expiry.
func WithLeeway(d time.Duration) Option { return func(a *Authority) { a.leeway = d } }

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option { return func(a *Authority) { a.now = now } }

// WithRevocation enables Revoke with a denylist bounded to size entries.
// Entries expire together with the tokens they deny.
func WithRevocation(size int) Option {
	return func(a *Authority) { a.denySize = size }
}

// Authority signs HS256 tokens with a shared secret. It keeps no per-session state
// unless revocation is enabled.
type Authority struct {
	secret   []byte
	ttl      time.Duration
	leeway   time.Duration
	now      func() time.Time
	denySize int
	denied   *expirable.LRU[string, struct{}]
}

// New constructs an Authority. The secret must not be empty.
func New(secret []byte, opts ...Option) (*Authority, error) {
	if len(secret) == 0 {
		return nil, errors.New("session: empty signing secret")
	}
	a := &Authority{secret: secret, ttl: DefaultTTL, leeway: DefaultLeeway, now: time.Now}
	for _, o := range opts {
		o(a)
	}
	if a.ttl <= 0 {
		return nil, fmt.Errorf("session: ttl must be positive, got %s", a.ttl)
	}
	if a.denySize > 0 {
		a.denied = expirable.NewLRU[string, struct{}](a.denySize, nil, a.ttl+a.leeway)
	}
	return a, nil
}

// TTL returns the configured validity window.
func (a *Authority) TTL() time.Duration { return a.ttl }

// Issue returns a signed token bound to username and its expiry time.
func (a *Authority) Issue(username string) (string, time.Time, error) {
	if username == "" {
		return "", time.Time{}, errors.New("session: empty username")
	}
	jti, err := uuid.NewV4()
	if err != nil {
		return "", time.Time{}, err
	}
	now := a.now()
	exp := now.Add(a.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   username,
		ID:        jti.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Verify returns the username bound to token.
// Errors are errs.ErrTokenExpired or errs.ErrTokenInvalid.
func (a *Authority) Verify(token string) (string, error) {
	claims, err := a.parse(token)
	if err != nil {
		return "", err
	}
	if a.denied != nil && a.denied.Contains(claims.ID) {
		return "", errs.ErrTokenInvalid
	}
	return claims.Subject, nil
}

// Revoke denies a still-valid token until it expires. It is a no-op when revocation
// is disabled, so logout stays advisory by default.
func (a *Authority) Revoke(token string) error {
	if a.denied == nil {
		return nil
	}
	claims, err := a.parse(token)
	if err != nil {
		return err
	}
	if claims.ID != "" {
		a.denied.Add(claims.ID, struct{}{})
	}
	return nil
}

// RevocationEnabled reports whether Revoke has any effect.
func (a *Authority) RevocationEnabled() bool { return a.denied != nil }

func (a *Authority) parse(token string) (*jwt.RegisteredClaims, error) {
	if token == "" {
		return nil, errs.ErrTokenInvalid
	}
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	},
		jwt.WithLeeway(a.leeway),
		jwt.WithTimeFunc(a.now),
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, errs.ErrTokenExpired
	case err != nil:
		return nil, fmt.Errorf("%w: %v", errs.ErrTokenInvalid, err)
	case claims.Subject == "":
		return nil, fmt.Errorf("%w: missing subject", errs.ErrTokenInvalid)
	}
	return &claims, nil
}
