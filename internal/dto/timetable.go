package dto

import (
	"github.com/noah-isme/timetable-api/internal/models"
	"github.com/noah-isme/timetable-api/internal/scheduler"
)

// GenerateTimetableRequest asks for a fresh timetable for the batch of a semester.
type GenerateTimetableRequest struct {
	Semester int    `json:"semester" validate:"required,min=1,max=12"`
	OwnerID  string `json:"ownerId" validate:"omitempty,max=128"`
}

// SubjectDifficulty reports the scarcity score computed for one enrolled subject.
type SubjectDifficulty struct {
	SubjectID          string  `json:"subjectId"`
	SubjectName        string  `json:"subjectName"`
	QualifiedFaculty   int     `json:"qualifiedFaculty"`
	SuitableClassrooms int     `json:"suitableClassrooms"`
	Difficulty         float64 `json:"difficulty"`
}

// GenerationSummary counts what a run produced.
type GenerationSummary struct {
	BatchID     string `json:"batchId"`
	BatchName   string `json:"batchName"`
	Enrolled    int    `json:"enrolled"`
	Scheduled   int    `json:"scheduled"`
	Breaks      int    `json:"breaks"`
	Unscheduled int    `json:"unscheduled"`
}

// GenerateTimetableResponse returns the persisted timetable plus non-fatal warnings.
type GenerateTimetableResponse struct {
	Timetable *models.Timetable   `json:"timetable"`
	Warnings  []scheduler.Warning `json:"warnings"`
	Ranking   []SubjectDifficulty `json:"ranking"`
	Summary   GenerationSummary   `json:"summary"`
}

// TimetableQuery filters timetable listings.
type TimetableQuery struct {
	Semester int `form:"semester" json:"semester" validate:"omitempty,min=1,max=12"`
}
