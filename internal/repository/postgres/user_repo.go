package postgres

import (
	"context"
	"errors"

	"github.com/and161185/labkeeper/internal/errs"
	"github.com/and161185/labkeeper/internal/model"
)

// UserRepo implements UserRepository using PostgreSQL.
type UserRepo struct{ db *DB }

// NewUserRepo constructs a user repository.
func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db} }

// Create inserts a new user row.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	const q = `
INSERT INTO users (username, pwd_hash, salt_auth)
VALUES ($1, $2, $3)`
	_, err := r.db.Pool.Exec(ctx, q, u.Username, u.PwdHash, u.SaltAuth)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// GetByUsername selects a user by username.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	const q = `
SELECT username, pwd_hash, salt_auth, created_at
FROM users WHERE username=$1`
	row := r.db.Pool.QueryRow(ctx, q, username)
	var u model.User
	if err := row.Scan(&u.Username, &u.PwdHash, &u.SaltAuth, &u.CreatedAt); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, errs.ErrNotFound
	}
	return &u, nil
}
