package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/and161185/labkeeper/internal/errs"
	"github.com/and161185/labkeeper/internal/model"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
)

var labworkCols = []string{
	"id", "name", "coordinate_x", "coordinate_y", "creation_date", "minimal_point",
	"personal_qualities_minimum", "difficulty", "discipline_name", "discipline_self_study_hours", "owner",
}

func sampleLabWork() *model.LabWork {
	return &model.LabWork{
		ID:                       7,
		Name:                     "lab",
		Coordinates:              model.Coordinates{X: 1, Y: 2.5},
		CreationDate:             model.LocalDateTime{Time: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)},
		MinimalPoint:             3,
		PersonalQualitiesMinimum: 4,
		Difficulty:               model.DifficultyPtr(model.DifficultyTerrible),
		Discipline:               model.Discipline{Name: "math", SelfStudyHours: 9},
		Owner:                    "alice",
	}
}

func TestLabWorkRepo_LoadAll(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewLabWorkRepo(db)

	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	hard := "TERRIBLE"
	mock.ExpectQuery(`SELECT id, name, coordinate_x, .* FROM labworks ORDER BY id`).
		WillReturnRows(pgxmock.NewRows(labworkCols).
			AddRow(int64(1), "a", int64(1), 1.5, created, 2, 3, &hard, "math", int64(4), "alice").
			AddRow(int64(2), "b", int64(-5), 0.0, created, 1, 1, (*string)(nil), "art", int64(1), "bob"))

	got, err := r.LoadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, model.DifficultyTerrible, *got[0].Difficulty)
	require.Nil(t, got[1].Difficulty)
	require.Equal(t, "bob", got[1].Owner)
	require.Equal(t, created, got[0].CreationDate.Time)
}

func TestLabWorkRepo_LoadAll_QueryError(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewLabWorkRepo(db)

	mock.ExpectQuery(`SELECT id, name`).WillReturnError(errors.New("db down"))
	_, err := r.LoadAll(context.Background())
	require.Error(t, err)
}

func TestLabWorkRepo_Insert(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewLabWorkRepo(db)
	lw := sampleLabWork()
	diff := "TERRIBLE"

	mock.ExpectExec(`INSERT INTO labworks`).
		WithArgs(lw.ID, lw.Name, lw.Coordinates.X, lw.Coordinates.Y, lw.CreationDate.Time,
			lw.MinimalPoint, lw.PersonalQualitiesMinimum, &diff, lw.Discipline.Name, lw.Discipline.SelfStudyHours, lw.Owner).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, r.Insert(context.Background(), lw))

	mock.ExpectExec(`INSERT INTO labworks`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	require.ErrorIs(t, r.Insert(context.Background(), lw), errs.ErrDuplicateID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLabWorkRepo_Update(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewLabWorkRepo(db)
	lw := sampleLabWork()
	lw.Difficulty = nil

	mock.ExpectExec(`UPDATE labworks SET name=\$3, .* WHERE id=\$1 AND owner=\$2`).
		WithArgs(lw.ID, lw.Owner, lw.Name, lw.Coordinates.X, lw.Coordinates.Y,
			lw.MinimalPoint, lw.PersonalQualitiesMinimum, (*string)(nil), lw.Discipline.Name, lw.Discipline.SelfStudyHours).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, r.Update(context.Background(), lw))

	mock.ExpectExec(`UPDATE labworks`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	require.ErrorIs(t, r.Update(context.Background(), lw), errs.ErrNotFound)
}

func TestLabWorkRepo_DeleteByID(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewLabWorkRepo(db)

	mock.ExpectExec(`DELETE FROM labworks WHERE id=\$1 AND owner=\$2`).
		WithArgs(int64(7), "alice").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	require.NoError(t, r.DeleteByID(context.Background(), 7, "alice"))

	mock.ExpectExec(`DELETE FROM labworks WHERE id=\$1 AND owner=\$2`).
		WithArgs(int64(7), "bob").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	require.ErrorIs(t, r.DeleteByID(context.Background(), 7, "bob"), errs.ErrNotFound)
}

func TestLabWorkRepo_DeleteByOwner(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewLabWorkRepo(db)

	mock.ExpectExec(`DELETE FROM labworks WHERE owner=\$1`).
		WithArgs("alice").
		WillReturnResult(pgxmock.NewResult("DELETE", 3))
	n, err := r.DeleteByOwner(context.Background(), "alice")
	require.NoError(t, err)
	require.Equal(t, int64(3), n)

	mock.ExpectExec(`DELETE FROM labworks WHERE owner=\$1`).
		WithArgs("alice").
		WillReturnError(errors.New("boom"))
	_, err = r.DeleteByOwner(context.Background(), "alice")
	require.Error(t, err)
}
