package repository

import (
	"context"

	"github.com/and161185/labkeeper/internal/model"
)

// LabWorkRepository is the durable copy of the record collection.
// The in-memory store calls it while holding its write lock.
type LabWorkRepository interface {
	// LoadAll returns every stored record, in any order.
	LoadAll(ctx context.Context) ([]*model.LabWork, error)
	// Insert stores a new record; errs.ErrDuplicateID if the id is taken.
	Insert(ctx context.Context, lw *model.LabWork) error
	// Update replaces the mutable fields of the record with lw.ID owned by lw.Owner.
	Update(ctx context.Context, lw *model.LabWork) error
	// DeleteByID removes the record with id owned by owner; errs.ErrNotFound otherwise.
	DeleteByID(ctx context.Context, id int64, owner string) error
	// DeleteByOwner removes all records of owner and reports how many were removed.
	DeleteByOwner(ctx context.Context, owner string) (int64, error)
}
