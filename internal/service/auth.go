// Package service contains application services for accounts and the lab work collection.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	pkgcrypto "github.com/and161185/labkeeper/internal/crypto"
	"github.com/and161185/labkeeper/internal/errs"
	"github.com/and161185/labkeeper/internal/limiter"
	"github.com/and161185/labkeeper/internal/model"
	"github.com/and161185/labkeeper/internal/repository"
)

// AuthService defines account operations.
type AuthService interface {
	// Register creates a user from the client-side password digest.
	Register(ctx context.Context, username, passwordHash string) error
	// Login applies rate limiting, checks the digest and issues a token.
	Login(ctx context.Context, username, passwordHash, ip string) (token string, expiresAt time.Time, err error)
	// Logout forgets token where the token authority supports it.
	Logout(ctx context.Context, token string) error
}

// TokenIssuer is implemented by session.Authority.
type TokenIssuer interface {
	Issue(username string) (string, time.Time, error)
	Revoke(token string) error
}

type AuthServiceImpl struct {
	users  repository.UserRepository
	tokens TokenIssuer
	lim    limiter.Limiter
}

// NewAuthService constructs AuthService with required dependencies.
func NewAuthService(users repository.UserRepository, tokens TokenIssuer, lim limiter.Limiter) *AuthServiceImpl {
	return &AuthServiceImpl{users: users, tokens: tokens, lim: lim}
}

// Register stores Argon2id(passwordHash) under a fresh salt.
// A taken username yields errs.ErrAlreadyExists.
func (s *AuthServiceImpl) Register(ctx context.Context, username, passwordHash string) error {
	if username == "" || passwordHash == "" {
		return errors.New("empty username/password")
	}
	hash, salt, err := pkgcrypto.NewPasswordHash([]byte(passwordHash))
	if err != nil {
		return err
	}
	u := &model.User{
		Username: username,
		PwdHash:  hash,
		SaltAuth: salt,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return fmt.Errorf("register %q: %w", username, err)
	}
	return nil
}

// Login authenticates with rate limiting by (username, ip). Unknown users and wrong
// digests both yield errs.ErrUnauthorized; other repository errors are returned as is
// and do not count against the limiter.
func (s *AuthServiceImpl) Login(ctx context.Context, username, passwordHash, ip string) (string, time.Time, error) {
	ipHash := limiter.HashIP(ip)

	allowed, _, err := s.lim.Allow(ctx, username, ipHash)
	if err != nil {
		return "", time.Time{}, err
	}
	if !allowed {
		return "", time.Time{}, errs.ErrRateLimited
	}

	u, err := s.users.GetByUsername(ctx, username)
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		return "", time.Time{}, fmt.Errorf("login %q: %w", username, err)
	}
	if err != nil || !pkgcrypto.VerifyPassword([]byte(passwordHash), u.SaltAuth, u.PwdHash) {
		if blocked, _, ferr := s.lim.Failure(ctx, username, ipHash); ferr == nil && blocked {
			return "", time.Time{}, errs.ErrRateLimited
		}
		return "", time.Time{}, errs.ErrUnauthorized
	}

	// best-effort reset
	_ = s.lim.Success(ctx, username, ipHash)

	return s.tokens.Issue(u.Username)
}

// Logout revokes token if revocation is enabled; otherwise the token stays valid until it expires.
func (s *AuthServiceImpl) Logout(_ context.Context, token string) error {
	return s.tokens.Revoke(token)
}
