package models

import (
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
)

// Faculty represents a teaching staff member.
type Faculty struct {
	ID              string         `db:"id" json:"id" validate:"required"`
	Name            string         `db:"name" json:"name"`
	Email           string         `db:"email" json:"email"`
	Department      string         `db:"department" json:"department"`
	Subjects        pq.StringArray `db:"subjects" json:"subjects"`
	Availability    types.JSONText `db:"availability" json:"availability"`
	MaxHoursPerWeek int            `db:"max_hours_per_week" json:"max_hours_per_week" validate:"min=0"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
}

// Teaches reports whether the faculty member is qualified for the subject.
func (f Faculty) Teaches(subjectID string) bool {
	for _, id := range f.Subjects {
		if id == subjectID {
			return true
		}
	}
	return false
}

// AvailabilityMap decodes the day → start times map. Empty payloads yield a nil map.
func (f Faculty) AvailabilityMap() (map[string][]string, error) {
	if len(f.Availability) == 0 || string(f.Availability) == "null" {
		return nil, nil
	}
	var out map[string][]string
	if err := json.Unmarshal(f.Availability, &out); err != nil {
		return nil, err
	}
	return out, nil
}
