package models

import (
	"time"

	"github.com/lib/pq"
)

// Break is a recurring rest period owned by a scheduling user.
type Break struct {
	ID        string         `db:"id" json:"id"`
	Name      string         `db:"name" json:"name"`
	StartTime string         `db:"start_time" json:"start_time"`
	EndTime   string         `db:"end_time" json:"end_time"`
	Days      pq.StringArray `db:"days" json:"days"`
	UserID    string         `db:"user_id" json:"user_id"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
}
