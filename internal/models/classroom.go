package models

import (
	"time"

	"github.com/lib/pq"
)

// ClassroomType distinguishes room kinds for subject compatibility.
type ClassroomType string

const (
	ClassroomTypeLecture ClassroomType = "lecture"
	ClassroomTypeLab     ClassroomType = "lab"
	ClassroomTypeSeminar ClassroomType = "seminar"
)

// Classroom represents a bookable teaching room.
type Classroom struct {
	ID        string         `db:"id" json:"id" validate:"required"`
	Name      string         `db:"name" json:"name"`
	Capacity  int            `db:"capacity" json:"capacity" validate:"min=1"`
	Type      ClassroomType  `db:"type" json:"type" validate:"oneof=lecture lab seminar"`
	Equipment pq.StringArray `db:"equipment" json:"equipment"`
	Building  string         `db:"building" json:"building"`
	Floor     int            `db:"floor" json:"floor"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
}

// IsLab reports whether the room is a laboratory.
func (c Classroom) IsLab() bool {
	return c.Type == ClassroomTypeLab
}
