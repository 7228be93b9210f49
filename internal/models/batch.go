package models

import (
	"time"

	"github.com/lib/pq"
)

// Batch is a cohort of students sharing a semester and subject enrollment.
type Batch struct {
	ID         string         `db:"id" json:"id" validate:"required"`
	Name       string         `db:"name" json:"name"`
	Semester   int            `db:"semester" json:"semester"`
	Department string         `db:"department" json:"department"`
	Strength   int            `db:"strength" json:"strength" validate:"min=1"`
	Subjects   pq.StringArray `db:"subjects" json:"subjects"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
}

// Enrolled reports whether the batch takes the subject.
func (b Batch) Enrolled(subjectID string) bool {
	for _, id := range b.Subjects {
		if id == subjectID {
			return true
		}
	}
	return false
}
