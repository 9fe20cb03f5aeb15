package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/and161185/labkeeper/internal/errs"
	"github.com/and161185/labkeeper/internal/model"
	"github.com/and161185/labkeeper/internal/repository/memory"
	"github.com/and161185/labkeeper/internal/store"
)

func payload(id int64) *model.LabWork {
	return &model.LabWork{
		ID:                       id,
		Name:                     "lab",
		Coordinates:              model.Coordinates{X: 3, Y: 4},
		MinimalPoint:             2,
		PersonalQualitiesMinimum: 1,
		Discipline:               model.Discipline{Name: "math", SelfStudyHours: 2},
		Owner:                    "mallory",
	}
}

func newLabWorks(t *testing.T) (*LabWorkService, *store.Store) {
	t.Helper()
	st := store.New(memory.NewLabWorks())
	require.NoError(t, st.Load(context.Background()))
	return NewLabWorkService(st), st
}

func TestLabWorks_Add_StampsOwnerAndDate(t *testing.T) {
	t.Parallel()
	svc, st := newLabWorks(t)
	in := payload(1)

	require.NoError(t, svc.Add(context.Background(), "alice", in))
	got := st.List()
	require.Len(t, got, 1)
	require.Equal(t, "alice", got[0].Owner)
	require.False(t, got[0].CreationDate.IsZero())
	require.Equal(t, "mallory", in.Owner, "caller's value is not mutated")
}

func TestLabWorks_Add_Validation(t *testing.T) {
	t.Parallel()
	svc, st := newLabWorks(t)
	bad := payload(1)
	bad.Coordinates.X = 1000

	require.ErrorIs(t, svc.Add(context.Background(), "alice", bad), errs.ErrBadPayload)
	require.ErrorIs(t, svc.Add(context.Background(), "", payload(2)), errs.ErrUnauthorized)
	require.Empty(t, st.List())
}

func TestLabWorks_AddIfMaxAndUpdate(t *testing.T) {
	t.Parallel()
	svc, _ := newLabWorks(t)
	ctx := context.Background()

	ok, err := svc.AddIfMax(ctx, "alice", payload(5))
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = svc.AddIfMax(ctx, "alice", payload(3))
	require.NoError(t, err)
	require.False(t, ok)

	upd := payload(999)
	upd.Name = "new"
	got, err := svc.Update(ctx, "alice", 5, upd)
	require.NoError(t, err)
	require.Equal(t, int64(5), got.ID)
	require.Equal(t, "new", got.Name)

	_, err = svc.Update(ctx, "bob", 5, upd)
	require.ErrorIs(t, err, errs.ErrForbidden)
}

func TestLabWorks_RemoveAndClear(t *testing.T) {
	t.Parallel()
	svc, _ := newLabWorks(t)
	ctx := context.Background()
	for _, id := range []int64{1, 2, 3} {
		require.NoError(t, svc.Add(ctx, "alice", payload(id)))
	}
	require.NoError(t, svc.Add(ctx, "bob", payload(4)))

	require.ErrorIs(t, svc.RemoveByID(ctx, "bob", 1), errs.ErrNotFound)
	first, err := svc.RemoveFirst(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, int64(1), first.ID)
	head, err := svc.RemoveHead(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, int64(2), head.ID)

	n, err := svc.Clear(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Len(t, svc.List(), 1)
	require.Equal(t, 1, svc.Info().Size)
	require.Equal(t, int64(2), svc.SumMinimalPoint())
	require.Equal(t, []int{2}, svc.UniqueMinimalPoints())
	lowest, ok := svc.MinByDifficulty()
	require.True(t, ok)
	require.Equal(t, int64(4), lowest.ID)
}
