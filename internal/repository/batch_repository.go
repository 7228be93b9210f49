package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/timetable-api/internal/models"
)

// BatchRepository reads student batches.
type BatchRepository struct {
	db *sqlx.DB
}

// NewBatchRepository creates a new repository instance.
func NewBatchRepository(db *sqlx.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

// List returns every batch ordered by name.
func (r *BatchRepository) List(ctx context.Context) ([]models.Batch, error) {
	const query = `SELECT id, name, semester, department, strength, subjects, created_at FROM batches ORDER BY name ASC`
	var batches []models.Batch
	if err := r.db.SelectContext(ctx, &batches, query); err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	return batches, nil
}
