package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/timetable-api/internal/models"
)

// ClassroomRepository reads the classroom roster.
type ClassroomRepository struct {
	db *sqlx.DB
}

// NewClassroomRepository creates a new repository instance.
func NewClassroomRepository(db *sqlx.DB) *ClassroomRepository {
	return &ClassroomRepository{db: db}
}

// List returns every classroom ordered by name.
func (r *ClassroomRepository) List(ctx context.Context) ([]models.Classroom, error) {
	const query = `SELECT id, name, capacity, type, equipment, building, floor, created_at FROM classrooms ORDER BY name ASC`
	var classrooms []models.Classroom
	if err := r.db.SelectContext(ctx, &classrooms, query); err != nil {
		return nil, fmt.Errorf("list classrooms: %w", err)
	}
	return classrooms, nil
}
