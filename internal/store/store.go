// Package store keeps the shared lab work collection in memory, ordered by id,
// and writes every mutation through to a repository.
package store

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/and161185/labkeeper/internal/errs"
	"github.com/and161185/labkeeper/internal/model"
	"github.com/and161185/labkeeper/internal/repository"
)

// Info describes the collection as a whole.
type Info struct {
	Type          string
	InitializedAt time.Time
	Size          int
}

// Option configures a Store.
type Option func(*Store)

// WithSizeObserver registers fn to be called with the new size after every mutation.
func WithSizeObserver(fn func(int)) Option {
	return func(s *Store) { s.observe = fn }
}

// Store is safe for concurrent use. Mutations hold the write lock for the whole
// check, persist and apply sequence, so memory and repository never diverge.
type Store struct {
	mu      sync.RWMutex
	items   []*model.LabWork // sorted by ID
	repo    repository.LabWorkRepository
	initAt  time.Time
	observe func(int)
}

// New returns an empty store backed by repo. Call Load before serving.
func New(repo repository.LabWorkRepository, opts ...Option) *Store {
	s := &Store{repo: repo, initAt: time.Now()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Load replaces the in-memory collection with the repository contents.
func (s *Store) Load(ctx context.Context) error {
	all, err := s.repo.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load labworks: %w", err)
	}
	slices.SortFunc(all, byID)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = all
	s.initAt = time.Now()
	s.changed()
	return nil
}

// Add inserts lw. It never overwrites: an existing id yields errs.ErrDuplicateID.
func (s *Store) Add(ctx context.Context, lw *model.LabWork) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(ctx, lw)
}

// AddIfGreatestForOwner inserts lw only if its id is strictly greater than every id
// owned by lw.Owner, or the owner has no records yet.
func (s *Store) AddIfGreatestForOwner(ctx context.Context, lw *model.LabWork) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.items) - 1; i >= 0; i-- {
		if s.items[i].Owner == lw.Owner {
			if lw.ID <= s.items[i].ID {
				return false, nil
			}
			break
		}
	}
	if err := s.insertLocked(ctx, lw); err != nil {
		return false, err
	}
	return true, nil
}

// RemoveByID deletes the record only when it exists and belongs to owner.
// A foreign record is reported as errs.ErrNotFound.
func (s *Store) RemoveByID(ctx context.Context, id int64, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.find(id)
	if !ok || s.items[i].Owner != owner {
		return errs.ErrNotFound
	}
	return s.deleteLocked(ctx, i)
}

// RemoveFirstByOwner deletes the lowest-id record of owner and returns it.
// It returns (nil, nil) when owner has no records.
func (s *Store) RemoveFirstByOwner(ctx context.Context, owner string) (*model.LabWork, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := slices.IndexFunc(s.items, func(lw *model.LabWork) bool { return lw.Owner == owner })
	if i < 0 {
		return nil, nil
	}
	removed := s.items[i]
	if err := s.deleteLocked(ctx, i); err != nil {
		return nil, err
	}
	return removed, nil
}

// RemoveHeadByOwner is RemoveFirstByOwner under the name used by remove_head.
func (s *Store) RemoveHeadByOwner(ctx context.Context, owner string) (*model.LabWork, error) {
	return s.RemoveFirstByOwner(ctx, owner)
}

// ClearByOwner removes every record of owner and returns how many were removed.
func (s *Store) ClearByOwner(ctx context.Context, owner string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !slices.ContainsFunc(s.items, func(lw *model.LabWork) bool { return lw.Owner == owner }) {
		return 0, nil
	}
	if _, err := s.repo.DeleteByOwner(ctx, owner); err != nil {
		return 0, err
	}
	before := len(s.items)
	s.items = slices.DeleteFunc(s.items, func(lw *model.LabWork) bool { return lw.Owner == owner })
	s.changed()
	return before - len(s.items), nil
}

// Update replaces the mutable fields of record id. ID, Owner and CreationDate
// of the stored record are kept whatever fields carries.
func (s *Store) Update(ctx context.Context, id int64, fields *model.LabWork, owner string) (*model.LabWork, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.find(id)
	if !ok {
		return nil, errs.ErrNotFound
	}
	cur := s.items[i]
	if cur.Owner != owner {
		return nil, errs.ErrForbidden
	}

	next := fields.Clone()
	next.ID = cur.ID
	next.Owner = cur.Owner
	next.CreationDate = cur.CreationDate
	if err := s.repo.Update(ctx, next); err != nil {
		return nil, err
	}
	s.items[i] = next
	return next.Clone(), nil
}

// List returns a copy of the collection ordered by id.
func (s *Store) List() []*model.LabWork {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.LabWork, len(s.items))
	for i, lw := range s.items {
		out[i] = lw.Clone()
	}
	return out
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Info reports the collection type, the time it was loaded and its size.
func (s *Store) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Info{Type: "sorted list of LabWork", InitializedAt: s.initAt, Size: len(s.items)}
}

// SumMinimalPoint sums MinimalPoint over the whole collection.
func (s *Store) SumMinimalPoint() int64 {
	var sum int64
	for _, lw := range s.List() {
		sum += int64(lw.MinimalPoint)
	}
	return sum
}

// UniqueMinimalPoints returns the distinct MinimalPoint values in ascending order.
func (s *Store) UniqueMinimalPoints() []int {
	items := s.List()
	out := make([]int, 0, len(items))
	for _, lw := range items {
		out = append(out, lw.MinimalPoint)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// MinByDifficulty returns the record with the lowest difficulty; the lowest id wins ties.
func (s *Store) MinByDifficulty() (*model.LabWork, bool) {
	items := s.List()
	if len(items) == 0 {
		return nil, false
	}
	// items are id-ordered and MinFunc keeps the first minimum.
	return slices.MinFunc(items, func(a, b *model.LabWork) int {
		return cmp.Compare(a.DifficultyRank(), b.DifficultyRank())
	}), true
}

func (s *Store) find(id int64) (int, bool) {
	return slices.BinarySearchFunc(s.items, id, func(lw *model.LabWork, id int64) int {
		return cmp.Compare(lw.ID, id)
	})
}

func (s *Store) insertLocked(ctx context.Context, lw *model.LabWork) error {
	i, ok := s.find(lw.ID)
	if ok {
		return errs.ErrDuplicateID
	}
	c := lw.Clone()
	if err := s.repo.Insert(ctx, c); err != nil {
		return err
	}
	s.items = slices.Insert(s.items, i, c)
	s.changed()
	return nil
}

func (s *Store) deleteLocked(ctx context.Context, i int) error {
	lw := s.items[i]
	if err := s.repo.DeleteByID(ctx, lw.ID, lw.Owner); err != nil {
		return err
	}
	s.items = slices.Delete(s.items, i, i+1)
	s.changed()
	return nil
}

func (s *Store) changed() {
	if s.observe != nil {
		s.observe(len(s.items))
	}
}

func byID(a, b *model.LabWork) int { return cmp.Compare(a.ID, b.ID) }
