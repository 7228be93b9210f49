package scheduler

import (
	"fmt"

	"github.com/noah-isme/timetable-api/internal/models"
	appErrors "github.com/noah-isme/timetable-api/pkg/errors"
)

// WarningReason explains why a subject was left out of a timetable.
type WarningReason string

const (
	ReasonNoQualifiedFaculty  WarningReason = "NO_QUALIFIED_FACULTY"
	ReasonNoSuitableClassroom WarningReason = "NO_SUITABLE_CLASSROOM"
	ReasonSlotsExhausted      WarningReason = "SLOTS_EXHAUSTED"
)

// Warning is a non-fatal report about one unscheduled subject.
type Warning struct {
	Code        string        `json:"code"`
	SubjectID   string        `json:"subjectId"`
	SubjectName string        `json:"subjectName"`
	SubjectCode string        `json:"subjectCode"`
	Reason      WarningReason `json:"reason"`
	Message     string        `json:"message"`
}

func newWarning(subject models.Subject, reason WarningReason, strength int) Warning {
	var message string
	switch reason {
	case ReasonNoQualifiedFaculty:
		message = fmt.Sprintf("no faculty assigned to teach %s (%s)", subject.Name, subject.Code)
	case ReasonNoSuitableClassroom:
		message = fmt.Sprintf("no suitable classroom for %s (%s): capacity %d, type %s", subject.Name, subject.Code, strength, subject.Type)
	default:
		message = fmt.Sprintf("could not schedule %s (%s): all slots were busy or no resources were available", subject.Name, subject.Code)
	}
	return Warning{
		Code:        appErrors.ErrUnschedulableSubject.Code,
		SubjectID:   subject.ID,
		SubjectName: subject.Name,
		SubjectCode: subject.Code,
		Reason:      reason,
		Message:     message,
	}
}
