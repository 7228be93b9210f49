package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/timetable-api/internal/models"
)

// FacultyRepository reads faculty members together with their qualifications.
type FacultyRepository struct {
	db *sqlx.DB
}

// NewFacultyRepository creates a new repository instance.
func NewFacultyRepository(db *sqlx.DB) *FacultyRepository {
	return &FacultyRepository{db: db}
}

// List returns every faculty member ordered by name.
func (r *FacultyRepository) List(ctx context.Context) ([]models.Faculty, error) {
	const query = `SELECT id, name, email, department, subjects, availability, max_hours_per_week, created_at FROM faculty ORDER BY name ASC`
	var faculty []models.Faculty
	if err := r.db.SelectContext(ctx, &faculty, query); err != nil {
		return nil, fmt.Errorf("list faculty: %w", err)
	}
	return faculty, nil
}
