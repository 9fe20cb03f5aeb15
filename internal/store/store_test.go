package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/and161185/labkeeper/internal/errs"
	"github.com/and161185/labkeeper/internal/model"
	"github.com/and161185/labkeeper/internal/repository/memory"
	"github.com/stretchr/testify/require"
)

func lab(id int64, owner string, mp int, d *model.Difficulty) *model.LabWork {
	return &model.LabWork{
		ID:                       id,
		Name:                     "lab",
		Coordinates:              model.Coordinates{X: 1, Y: 1},
		CreationDate:             model.Now(),
		MinimalPoint:             mp,
		PersonalQualitiesMinimum: 1,
		Difficulty:               d,
		Discipline:               model.Discipline{Name: "d", SelfStudyHours: 1},
		Owner:                    owner,
	}
}

func newStore(t *testing.T, seed ...*model.LabWork) *Store {
	t.Helper()
	s := New(memory.NewLabWorks(seed...))
	require.NoError(t, s.Load(context.Background()))
	return s
}

func ids(items []*model.LabWork) []int64 {
	out := make([]int64, 0, len(items))
	for _, lw := range items {
		out = append(out, lw.ID)
	}
	return out
}

// failingRepo fails every write.
type failingRepo struct{}

var errWrite = errors.New("write failed")

func (failingRepo) LoadAll(context.Context) ([]*model.LabWork, error)    { return nil, nil }
func (failingRepo) Insert(context.Context, *model.LabWork) error         { return errWrite }
func (failingRepo) Update(context.Context, *model.LabWork) error         { return errWrite }
func (failingRepo) DeleteByID(context.Context, int64, string) error      { return errWrite }
func (failingRepo) DeleteByOwner(context.Context, string) (int64, error) { return 0, errWrite }

func TestLoad_SortsByID(t *testing.T) {
	t.Parallel()
	s := newStore(t, lab(3, "a", 1, nil), lab(1, "b", 1, nil), lab(2, "a", 1, nil))
	require.Equal(t, []int64{1, 2, 3}, ids(s.List()))
	require.Equal(t, 3, s.Info().Size)
}

func TestAdd_RejectsDuplicateID(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.Add(ctx, lab(2, "alice", 1, nil)))
	require.NoError(t, s.Add(ctx, lab(1, "alice", 1, nil)))
	err := s.Add(ctx, lab(2, "bob", 9, nil))
	require.ErrorIs(t, err, errs.ErrDuplicateID)

	list := s.List()
	require.Equal(t, []int64{1, 2}, ids(list))
	require.Equal(t, "alice", list[1].Owner)
}

func TestRemoveByID_OwnerScoped(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newStore(t, lab(1, "alice", 1, nil))

	require.ErrorIs(t, s.RemoveByID(ctx, 1, "bob"), errs.ErrNotFound)
	require.ErrorIs(t, s.RemoveByID(ctx, 99, "alice"), errs.ErrNotFound)
	require.Equal(t, 1, s.Len())

	require.NoError(t, s.RemoveByID(ctx, 1, "alice"))
	require.Zero(t, s.Len())
}

func TestRemoveFirstByOwner(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newStore(t, lab(1, "bob", 1, nil), lab(4, "alice", 1, nil), lab(2, "alice", 1, nil))

	got, err := s.RemoveFirstByOwner(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, int64(2), got.ID)
	require.Equal(t, []int64{1, 4}, ids(s.List()))

	got, err = s.RemoveHeadByOwner(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, int64(4), got.ID)

	got, err = s.RemoveFirstByOwner(ctx, "alice")
	require.NoError(t, err)
	require.Nil(t, got)
	require.Equal(t, []int64{1}, ids(s.List()))
}

func TestClearByOwner(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newStore(t, lab(1, "alice", 1, nil), lab(2, "alice", 1, nil), lab(3, "bob", 1, nil))

	n, err := s.ClearByOwner(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, []int64{3}, ids(s.List()))

	n, err = s.ClearByOwner(ctx, "alice")
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestUpdate_PreservesIdentity(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	orig := lab(5, "alice", 1, nil)
	s := newStore(t, orig)

	fields := lab(777, "mallory", 42, model.DifficultyPtr(model.DifficultyTerrible))
	fields.Name = "renamed"
	fields.CreationDate = model.LocalDateTime{}

	got, err := s.Update(ctx, 5, fields, "alice")
	require.NoError(t, err)
	require.Equal(t, int64(5), got.ID)
	require.Equal(t, "alice", got.Owner)
	require.Equal(t, orig.CreationDate, got.CreationDate)
	require.Equal(t, "renamed", got.Name)
	require.Equal(t, 42, got.MinimalPoint)

	_, err = s.Update(ctx, 5, fields, "bob")
	require.ErrorIs(t, err, errs.ErrForbidden)
	_, err = s.Update(ctx, 6, fields, "alice")
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestAddIfGreatestForOwner(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newStore(t, lab(100, "bob", 1, nil))

	ok, err := s.AddIfGreatestForOwner(ctx, lab(5, "alice", 1, nil))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.AddIfGreatestForOwner(ctx, lab(3, "alice", 1, nil))
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = s.AddIfGreatestForOwner(ctx, lab(5, "alice", 1, nil))
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, []int64{5, 100}, ids(s.List()))

	// bob's larger id does not count against alice
	ok, err = s.AddIfGreatestForOwner(ctx, lab(6, "alice", 1, nil))
	require.NoError(t, err)
	require.True(t, ok)

	_, err = s.AddIfGreatestForOwner(ctx, lab(100, "alice", 1, nil))
	require.ErrorIs(t, err, errs.ErrDuplicateID)
}

func TestAddIfGreatestForOwner_Concurrent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newStore(t)

	const n = 64
	var wins atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			ok, err := s.AddIfGreatestForOwner(ctx, lab(int64(n-i), "alice", 1, nil))
			if err == nil && ok {
				wins.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	// accepted ids form a strictly increasing sequence in acceptance order,
	// so the store holds exactly the winners and the max is unique.
	list := s.List()
	require.Equal(t, int(wins.Load()), len(list))
	require.GreaterOrEqual(t, len(list), 1)
	seen := map[int64]bool{}
	for _, lw := range list {
		require.False(t, seen[lw.ID])
		seen[lw.ID] = true
	}
}

func TestConcurrentOwnersStayIsolated(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newStore(t)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		owner := string(rune('a' + w))
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 1; i <= 50; i++ {
				_ = s.Add(ctx, lab(int64(w*1000+i), owner, i, nil))
				if i%10 == 0 {
					_, _ = s.RemoveFirstByOwner(ctx, owner)
				}
				_ = s.List()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 8*45, s.Len())
	for _, lw := range s.List() {
		require.Equal(t, string(rune('a'+int(lw.ID/1000))), lw.Owner)
	}
}

func TestAggregates(t *testing.T) {
	t.Parallel()
	s := newStore(t,
		lab(1, "a", 5, model.DifficultyPtr(model.DifficultyTerrible)),
		lab(2, "b", 3, model.DifficultyPtr(model.DifficultyNormal)),
		lab(3, "a", 5, nil),
		lab(4, "b", 1, model.DifficultyPtr(model.DifficultyEasy)),
	)
	require.Equal(t, int64(14), s.SumMinimalPoint())
	require.Equal(t, []int{1, 3, 5}, s.UniqueMinimalPoints())

	lowest, ok := s.MinByDifficulty()
	require.True(t, ok)
	require.Equal(t, int64(3), lowest.ID)

	_, ok = newStore(t).MinByDifficulty()
	require.False(t, ok)
}

func TestSumMinimalPoint_AtUpperBound(t *testing.T) {
	t.Parallel()
	s := newStore(t, lab(1, "a", model.MaxPoint, nil), lab(2, "b", model.MaxPoint, nil), lab(3, "a", 2, nil))
	require.Equal(t, int64(2*model.MaxPoint+2), s.SumMinimalPoint())
}

func TestWriteFailure_LeavesMemoryUnchanged(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New(failingRepo{})
	s.items = []*model.LabWork{lab(1, "alice", 1, nil)}

	require.ErrorIs(t, s.Add(ctx, lab(2, "alice", 1, nil)), errWrite)
	require.ErrorIs(t, s.RemoveByID(ctx, 1, "alice"), errWrite)
	_, err := s.ClearByOwner(ctx, "alice")
	require.ErrorIs(t, err, errWrite)
	_, err = s.Update(ctx, 1, lab(1, "alice", 9, nil), "alice")
	require.ErrorIs(t, err, errWrite)

	list := s.List()
	require.Equal(t, []int64{1}, ids(list))
	require.Equal(t, 1, list[0].MinimalPoint)
}

func TestList_IsSnapshot(t *testing.T) {
	t.Parallel()
	s := newStore(t, lab(1, "a", 1, nil))
	snap := s.List()
	snap[0].Name = "mutated"
	require.Equal(t, "lab", s.List()[0].Name)
}

func TestSizeObserver(t *testing.T) {
	t.Parallel()
	var last int
	s := New(memory.NewLabWorks(), WithSizeObserver(func(n int) { last = n }))
	require.NoError(t, s.Add(context.Background(), lab(1, "a", 1, nil)))
	require.Equal(t, 1, last)
}
