package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/timetable-api/internal/models"
)

// TimetableRepository persists generated timetable headers.
type TimetableRepository struct {
	db *sqlx.DB
}

// NewTimetableRepository constructs repository.
func NewTimetableRepository(db *sqlx.DB) *TimetableRepository {
	return &TimetableRepository{db: db}
}

func (r *TimetableRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts a timetable header. Slots are stored separately.
func (r *TimetableRepository) Create(ctx context.Context, exec sqlx.ExtContext, timetable *models.Timetable) error {
	if timetable == nil {
		return fmt.Errorf("timetable payload is nil")
	}
	if timetable.Semester == "" {
		return fmt.Errorf("semester is required")
	}
	if timetable.ID == "" {
		timetable.ID = uuid.NewString()
	}
	if timetable.Status == "" {
		timetable.Status = models.TimetableStatusDraft
	}
	if timetable.CreatedAt.IsZero() {
		timetable.CreatedAt = time.Now().UTC()
	}

	const query = `
INSERT INTO timetables (id, name, semester, user_id, status, created_at)
VALUES (:id, :name, :semester, :user_id, :status, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, timetable); err != nil {
		return fmt.Errorf("insert timetable: %w", err)
	}
	return nil
}

// ListBySemester returns headers for a semester, newest first. An empty semester lists all.
func (r *TimetableRepository) ListBySemester(ctx context.Context, semester string) ([]models.Timetable, error) {
	var (
		timetables []models.Timetable
		err        error
	)
	if semester == "" {
		const query = `SELECT id, name, semester, user_id, status, created_at FROM timetables ORDER BY created_at DESC`
		err = r.db.SelectContext(ctx, &timetables, query)
	} else {
		const query = `SELECT id, name, semester, user_id, status, created_at FROM timetables WHERE semester = $1 ORDER BY created_at DESC`
		err = r.db.SelectContext(ctx, &timetables, query, semester)
	}
	if err != nil {
		return nil, fmt.Errorf("list timetables: %w", err)
	}
	return timetables, nil
}

// FindByID loads a timetable header by its identifier.
func (r *TimetableRepository) FindByID(ctx context.Context, id string) (*models.Timetable, error) {
	const query = `SELECT id, name, semester, user_id, status, created_at FROM timetables WHERE id = $1`
	var timetable models.Timetable
	if err := r.db.GetContext(ctx, &timetable, query, id); err != nil {
		return nil, err
	}
	return &timetable, nil
}

// UpdateStatus moves a timetable from one status to another. It returns sql.ErrNoRows when
// no timetable with the expected current status exists.
func (r *TimetableRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, from, to models.TimetableStatus) error {
	const query = `UPDATE timetables SET status = $1 WHERE id = $2 AND status = $3`
	result, err := r.exec(exec).ExecContext(ctx, query, to, id, from)
	if err != nil {
		return fmt.Errorf("update timetable status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("timetable status rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a timetable header; slots go with it via ON DELETE CASCADE.
func (r *TimetableRepository) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	const query = `DELETE FROM timetables WHERE id = $1`
	result, err := r.exec(exec).ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete timetable: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("timetable rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
