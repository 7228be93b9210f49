package models

import "time"

// SubjectType classifies subjects; lab subjects need lab rooms.
type SubjectType string

const (
	SubjectTypeCore     SubjectType = "core"
	SubjectTypeElective SubjectType = "elective"
	SubjectTypeLab      SubjectType = "lab"
)

// Subject represents an academic subject.
type Subject struct {
	ID         string      `db:"id" json:"id" validate:"required"`
	Name       string      `db:"name" json:"name"`
	Code       string      `db:"code" json:"code"`
	Credits    int         `db:"credits" json:"credits"`
	Type       SubjectType `db:"type" json:"type" validate:"oneof=core elective lab"`
	Semester   int         `db:"semester" json:"semester"`
	Department string      `db:"department" json:"department"`
	CreatedAt  time.Time   `db:"created_at" json:"created_at"`
}

// RequiresLab reports whether the subject must be taught in a lab.
func (s Subject) RequiresLab() bool {
	return s.Type == SubjectTypeLab
}

// FitsClassroom checks kind compatibility and capacity for the given student strength.
func (s Subject) FitsClassroom(room Classroom, strength int) bool {
	if room.Capacity < strength {
		return false
	}
	return s.RequiresLab() == room.IsLab()
}
