package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/timetable-api/internal/models"
)

// TimeSlotRepository manages slots belonging to timetables.
type TimeSlotRepository struct {
	db *sqlx.DB
}

// NewTimeSlotRepository builds repository.
func NewTimeSlotRepository(db *sqlx.DB) *TimeSlotRepository {
	return &TimeSlotRepository{db: db}
}

func (r *TimeSlotRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// InsertBatch stores all slots in a single multi-row statement, so either every slot lands or none do.
func (r *TimeSlotRepository) InsertBatch(ctx context.Context, exec sqlx.ExtContext, slots []models.TimeSlot) error {
	if len(slots) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for i := range slots {
		slot := &slots[i]
		if slot.ID == "" {
			slot.ID = uuid.NewString()
		}
		if slot.CreatedAt.IsZero() {
			slot.CreatedAt = now
		}
	}

	const query = `
INSERT INTO time_slots (id, timetable_id, day, start_time, end_time, subject_id, faculty_id, classroom_id, batch_id, user_id, is_break, break_name, created_at)
VALUES (:id, :timetable_id, :day, :start_time, :end_time, :subject_id, :faculty_id, :classroom_id, :batch_id, :user_id, :is_break, :break_name, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, slots); err != nil {
		return fmt.Errorf("insert time slots: %w", err)
	}
	return nil
}

// ListByTimetable returns the slots of a timetable ordered by weekday, then start time.
func (r *TimeSlotRepository) ListByTimetable(ctx context.Context, timetableID string) ([]models.TimeSlot, error) {
	const query = `SELECT id, timetable_id, day, start_time, end_time, subject_id, faculty_id, classroom_id, batch_id, user_id, is_break, break_name, created_at
FROM time_slots WHERE timetable_id = $1 ORDER BY ` + dayOrderExpr + `, start_time ASC, is_break ASC`
	var slots []models.TimeSlot
	if err := r.db.SelectContext(ctx, &slots, query, timetableID); err != nil {
		return nil, fmt.Errorf("list time slots: %w", err)
	}
	return slots, nil
}

const dayOrderExpr = `CASE day WHEN 'Monday' THEN 1 WHEN 'Tuesday' THEN 2 WHEN 'Wednesday' THEN 3 WHEN 'Thursday' THEN 4 WHEN 'Friday' THEN 5 WHEN 'Saturday' THEN 6 WHEN 'Sunday' THEN 7 ELSE 8 END`
