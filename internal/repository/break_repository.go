package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/timetable-api/internal/models"
)

// BreakRepository reads recurring break periods.
type BreakRepository struct {
	db *sqlx.DB
}

// NewBreakRepository creates a new repository instance.
func NewBreakRepository(db *sqlx.DB) *BreakRepository {
	return &BreakRepository{db: db}
}

// List returns every break ordered by start time.
func (r *BreakRepository) List(ctx context.Context) ([]models.Break, error) {
	const query = `SELECT id, name, start_time, end_time, days, user_id, created_at FROM breaks ORDER BY start_time ASC`
	var breaks []models.Break
	if err := r.db.SelectContext(ctx, &breaks, query); err != nil {
		return nil, fmt.Errorf("list breaks: %w", err)
	}
	return breaks, nil
}
