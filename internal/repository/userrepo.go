// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/and161185/labkeeper/internal/model"
)

// UserRepository persists accounts. Users are never updated or deleted.
type UserRepository interface {
	// Create inserts a new user; errs.ErrAlreadyExists if the username is taken.
	Create(ctx context.Context, u *model.User) error
	// GetByUsername loads a user by username; errs.ErrNotFound if absent.
	GetByUsername(ctx context.Context, username string) (*model.User, error)
}
