package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/and161185/labkeeper/internal/errs"
	"github.com/and161185/labkeeper/internal/model"
)

// LabWorkRepo implements LabWorkRepository using PostgreSQL.
type LabWorkRepo struct{ db *DB }

// NewLabWorkRepo constructs a lab work repository.
func NewLabWorkRepo(db *DB) *LabWorkRepo { return &LabWorkRepo{db: db} }

// LoadAll reads the whole table ordered by id.
func (r *LabWorkRepo) LoadAll(ctx context.Context) ([]*model.LabWork, error) {
	const q = `
SELECT id, name, coordinate_x, coordinate_y, creation_date, minimal_point,
       personal_qualities_minimum, difficulty, discipline_name, discipline_self_study_hours, owner
FROM labworks ORDER BY id`
	rows, err := r.db.Pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.LabWork
	for rows.Next() {
		var (
			lw      model.LabWork
			created time.Time
			diff    *string
		)
		if err := rows.Scan(&lw.ID, &lw.Name, &lw.Coordinates.X, &lw.Coordinates.Y, &created,
			&lw.MinimalPoint, &lw.PersonalQualitiesMinimum, &diff,
			&lw.Discipline.Name, &lw.Discipline.SelfStudyHours, &lw.Owner); err != nil {
			return nil, err
		}
		lw.CreationDate = model.LocalDateTime{Time: created.UTC()}
		if diff != nil {
			d := model.Difficulty(*diff)
			lw.Difficulty = &d
		}
		out = append(out, &lw)
	}
	return out, rows.Err()
}

// Insert adds a row; a primary key violation maps to errs.ErrDuplicateID.
func (r *LabWorkRepo) Insert(ctx context.Context, lw *model.LabWork) error {
	const q = `
INSERT INTO labworks (id, name, coordinate_x, coordinate_y, creation_date, minimal_point,
       personal_qualities_minimum, difficulty, discipline_name, discipline_self_study_hours, owner)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`
	_, err := r.db.Pool.Exec(ctx, q, lw.ID, lw.Name, lw.Coordinates.X, lw.Coordinates.Y, lw.CreationDate.Time,
		lw.MinimalPoint, lw.PersonalQualitiesMinimum, difficultyArg(lw.Difficulty),
		lw.Discipline.Name, lw.Discipline.SelfStudyHours, lw.Owner)
	if isUniqueViolation(err) {
		return errs.ErrDuplicateID
	}
	if err != nil {
		return fmt.Errorf("insert labwork %d: %w", lw.ID, err)
	}
	return nil
}

// Update rewrites mutable columns; id, owner and creation_date are left untouched.
func (r *LabWorkRepo) Update(ctx context.Context, lw *model.LabWork) error {
	const q = `
UPDATE labworks
SET name=$3, coordinate_x=$4, coordinate_y=$5, minimal_point=$6, personal_qualities_minimum=$7,
    difficulty=$8, discipline_name=$9, discipline_self_study_hours=$10
WHERE id=$1 AND owner=$2`
	tag, err := r.db.Pool.Exec(ctx, q, lw.ID, lw.Owner, lw.Name, lw.Coordinates.X, lw.Coordinates.Y,
		lw.MinimalPoint, lw.PersonalQualitiesMinimum, difficultyArg(lw.Difficulty),
		lw.Discipline.Name, lw.Discipline.SelfStudyHours)
	if err != nil {
		return fmt.Errorf("update labwork %d: %w", lw.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// DeleteByID removes a single owned row.
func (r *LabWorkRepo) DeleteByID(ctx context.Context, id int64, owner string) error {
	const q = `DELETE FROM labworks WHERE id=$1 AND owner=$2`
	tag, err := r.db.Pool.Exec(ctx, q, id, owner)
	if err != nil {
		return fmt.Errorf("delete labwork %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// DeleteByOwner removes every row of owner.
func (r *LabWorkRepo) DeleteByOwner(ctx context.Context, owner string) (int64, error) {
	const q = `DELETE FROM labworks WHERE owner=$1`
	tag, err := r.db.Pool.Exec(ctx, q, owner)
	if err != nil {
		return 0, fmt.Errorf("delete labworks of %s: %w", owner, err)
	}
	return tag.RowsAffected(), nil
}

func difficultyArg(d *model.Difficulty) *string {
	if d == nil {
		return nil
	}
	s := string(*d)
	return &s
}
