// Package memory provides in-process repository implementations, used when no DSN is configured.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/and161185/labkeeper/internal/errs"
	"github.com/and161185/labkeeper/internal/model"
)

// Users is an in-memory UserRepository.
type Users struct {
	mu     sync.Mutex
	byName map[string]model.User
}

// NewUsers returns an empty user repository.
func NewUsers() *Users { return &Users{byName: map[string]model.User{}} }

// Create inserts u unless the username is taken.
func (r *Users) Create(_ context.Context, u *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[u.Username]; ok {
		return errs.ErrAlreadyExists
	}
	c := *u
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	r.byName[u.Username] = c
	return nil
}

// GetByUsername returns a copy of the stored user.
func (r *Users) GetByUsername(_ context.Context, username string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byName[username]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &u, nil
}

// LabWorks is an in-memory LabWorkRepository.
type LabWorks struct {
	mu   sync.Mutex
	byID map[int64]*model.LabWork
}

// NewLabWorks returns a repository pre-populated with seed.
func NewLabWorks(seed ...*model.LabWork) *LabWorks {
	r := &LabWorks{byID: make(map[int64]*model.LabWork, len(seed))}
	for _, lw := range seed {
		r.byID[lw.ID] = lw.Clone()
	}
	return r
}

func (r *LabWorks) LoadAll(context.Context) ([]*model.LabWork, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.LabWork, 0, len(r.byID))
	for _, lw := range r.byID {
		out = append(out, lw.Clone())
	}
	return out, nil
}

func (r *LabWorks) Insert(_ context.Context, lw *model.LabWork) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[lw.ID]; ok {
		return errs.ErrDuplicateID
	}
	r.byID[lw.ID] = lw.Clone()
	return nil
}

func (r *LabWorks) Update(_ context.Context, lw *model.LabWork) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.byID[lw.ID]
	if !ok || cur.Owner != lw.Owner {
		return errs.ErrNotFound
	}
	next := lw.Clone()
	next.CreationDate = cur.CreationDate
	r.byID[lw.ID] = next
	return nil
}

func (r *LabWorks) DeleteByID(_ context.Context, id int64, owner string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.byID[id]
	if !ok || cur.Owner != owner {
		return errs.ErrNotFound
	}
	delete(r.byID, id)
	return nil
}

func (r *LabWorks) DeleteByOwner(_ context.Context, owner string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, lw := range r.byID {
		if lw.Owner == owner {
			delete(r.byID, id)
			n++
		}
	}
	return n, nil
}
