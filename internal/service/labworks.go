package service

import (
	"context"
	"fmt"

	"github.com/and161185/labkeeper/internal/errs"
	"github.com/and161185/labkeeper/internal/model"
	"github.com/and161185/labkeeper/internal/store"
)

// Collection is the record store as seen by the service. *store.Store implements it.
type Collection interface {
	Add(ctx context.Context, lw *model.LabWork) error
	AddIfGreatestForOwner(ctx context.Context, lw *model.LabWork) (bool, error)
	RemoveByID(ctx context.Context, id int64, owner string) error
	RemoveFirstByOwner(ctx context.Context, owner string) (*model.LabWork, error)
	RemoveHeadByOwner(ctx context.Context, owner string) (*model.LabWork, error)
	ClearByOwner(ctx context.Context, owner string) (int, error)
	Update(ctx context.Context, id int64, fields *model.LabWork, owner string) (*model.LabWork, error)
	List() []*model.LabWork
	Info() store.Info
	SumMinimalPoint() int64
	UniqueMinimalPoints() []int
	MinByDifficulty() (*model.LabWork, bool)
}

// LabWorkService stamps ownership and creation time on incoming records and
// validates them before they reach the store.
type LabWorkService struct {
	col Collection
}

// NewLabWorkService constructs the service over col.
func NewLabWorkService(col Collection) *LabWorkService {
	return &LabWorkService{col: col}
}

// prepare returns a copy of lw owned by owner. Validation errors wrap errs.ErrBadPayload.
func prepare(lw *model.LabWork, owner string) (*model.LabWork, error) {
	if owner == "" {
		return nil, errs.ErrUnauthorized
	}
	c := lw.Clone()
	c.Owner = owner
	if c.CreationDate.IsZero() {
		c.CreationDate = model.Now()
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrBadPayload, err)
	}
	return c, nil
}

// Add inserts lw on behalf of owner.
func (s *LabWorkService) Add(ctx context.Context, owner string, lw *model.LabWork) error {
	c, err := prepare(lw, owner)
	if err != nil {
		return err
	}
	return s.col.Add(ctx, c)
}

// AddIfMax inserts lw if its id exceeds every id owner already has.
func (s *LabWorkService) AddIfMax(ctx context.Context, owner string, lw *model.LabWork) (bool, error) {
	c, err := prepare(lw, owner)
	if err != nil {
		return false, err
	}
	return s.col.AddIfGreatestForOwner(ctx, c)
}

// Update replaces the mutable fields of record id owned by owner.
func (s *LabWorkService) Update(ctx context.Context, owner string, id int64, lw *model.LabWork) (*model.LabWork, error) {
	c, err := prepare(lw, owner)
	if err != nil {
		return nil, err
	}
	return s.col.Update(ctx, id, c, owner)
}

func (s *LabWorkService) RemoveByID(ctx context.Context, owner string, id int64) error {
	return s.col.RemoveByID(ctx, id, owner)
}

func (s *LabWorkService) RemoveFirst(ctx context.Context, owner string) (*model.LabWork, error) {
	return s.col.RemoveFirstByOwner(ctx, owner)
}

func (s *LabWorkService) RemoveHead(ctx context.Context, owner string) (*model.LabWork, error) {
	return s.col.RemoveHeadByOwner(ctx, owner)
}

func (s *LabWorkService) Clear(ctx context.Context, owner string) (int, error) {
	return s.col.ClearByOwner(ctx, owner)
}

func (s *LabWorkService) List() []*model.LabWork                  { return s.col.List() }
func (s *LabWorkService) Info() store.Info                        { return s.col.Info() }
func (s *LabWorkService) SumMinimalPoint() int64                  { return s.col.SumMinimalPoint() }
func (s *LabWorkService) UniqueMinimalPoints() []int              { return s.col.UniqueMinimalPoints() }
func (s *LabWorkService) MinByDifficulty() (*model.LabWork, bool) { return s.col.MinByDifficulty() }
