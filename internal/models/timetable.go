package models

import "time"

// TimetableStatus represents lifecycle phases for generated timetables.
type TimetableStatus string

const (
	TimetableStatusDraft     TimetableStatus = "draft"
	TimetableStatusPublished TimetableStatus = "published"
)

// Timetable is one generated weekly schedule for a single batch and semester.
type Timetable struct {
	ID        string          `db:"id" json:"id"`
	Name      string          `db:"name" json:"name"`
	Semester  string          `db:"semester" json:"semester"`
	UserID    string          `db:"user_id" json:"user_id"`
	Status    TimetableStatus `db:"status" json:"status"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	TimeSlots []TimeSlot      `db:"-" json:"time_slots"`
}

// TimeSlot is a single booking inside a timetable, either teaching or a break.
type TimeSlot struct {
	ID          string    `db:"id" json:"id"`
	TimetableID string    `db:"timetable_id" json:"timetable_id"`
	Day         string    `db:"day" json:"day"`
	StartTime   string    `db:"start_time" json:"start_time"`
	EndTime     string    `db:"end_time" json:"end_time"`
	SubjectID   *string   `db:"subject_id" json:"subject_id,omitempty"`
	FacultyID   *string   `db:"faculty_id" json:"faculty_id,omitempty"`
	ClassroomID *string   `db:"classroom_id" json:"classroom_id,omitempty"`
	BatchID     string    `db:"batch_id" json:"batch_id"`
	UserID      string    `db:"user_id" json:"user_id"`
	IsBreak     bool      `db:"is_break" json:"is_break"`
	BreakName   *string   `db:"break_name" json:"break_name,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// TeachingSlots filters out break periods.
func (t *Timetable) TeachingSlots() []TimeSlot {
	if t == nil {
		return nil
	}
	out := make([]TimeSlot, 0, len(t.TimeSlots))
	for _, slot := range t.TimeSlots {
		if !slot.IsBreak {
			out = append(out, slot)
		}
	}
	return out
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
