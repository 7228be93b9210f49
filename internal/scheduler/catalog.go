package scheduler

import (
	"fmt"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/timetable-api/internal/models"
	appErrors "github.com/noah-isme/timetable-api/pkg/errors"
)

// Catalog is the read-only snapshot of scheduling data for one generation run.
// Nothing in this package mutates it.
type Catalog struct {
	Classrooms []models.Classroom
	Subjects   []models.Subject
	Faculty    []models.Faculty
	Batches    []models.Batch
	Breaks     []models.Break
}

// NewCatalog bundles the rosters supplied by the data-access collaborator.
func NewCatalog(classrooms []models.Classroom, subjects []models.Subject, faculty []models.Faculty, batches []models.Batch, breaks []models.Break) *Catalog {
	return &Catalog{
		Classrooms: classrooms,
		Subjects:   subjects,
		Faculty:    faculty,
		Batches:    batches,
		Breaks:     breaks,
	}
}

// CheckRosters fails with ErrInputMissing when any required roster is empty.
// Breaks are optional.
func (c *Catalog) CheckRosters() error {
	if c == nil {
		return appErrors.Clone(appErrors.ErrInputMissing, "no scheduling data supplied")
	}
	switch {
	case len(c.Classrooms) == 0:
		return appErrors.Clone(appErrors.ErrInputMissing, "no classrooms found, add classrooms first")
	case len(c.Subjects) == 0:
		return appErrors.Clone(appErrors.ErrInputMissing, "no subjects found, add subjects first")
	case len(c.Faculty) == 0:
		return appErrors.Clone(appErrors.ErrInputMissing, "no faculty found, add faculty first")
	case len(c.Batches) == 0:
		return appErrors.Clone(appErrors.ErrInputMissing, "no batches found, add batches first")
	}
	return nil
}

// ValidateRun checks record-level constraints (positive capacity and strength, known kinds,
// decodable availability maps) on the records one run reads: the target batch, its subjects,
// every classroom, and faculty qualified for at least one of those subjects. Records the run
// never touches cannot fail it.
func (c *Catalog) ValidateRun(v *validator.Validate, batch models.Batch, subjects []models.Subject) error {
	if v == nil {
		v = validator.New()
	}
	if err := v.Struct(batch); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, fmt.Sprintf("invalid batch %s", batch.ID))
	}
	for _, subject := range subjects {
		if err := v.Struct(subject); err != nil {
			return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, fmt.Sprintf("invalid subject %s", subject.ID))
		}
	}
	for _, room := range c.Classrooms {
		if err := v.Struct(room); err != nil {
			return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, fmt.Sprintf("invalid classroom %s", room.ID))
		}
	}
	for _, member := range c.Faculty {
		if !teachesAny(member, subjects) {
			continue
		}
		if err := v.Struct(member); err != nil {
			return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, fmt.Sprintf("invalid faculty %s", member.ID))
		}
		if _, err := member.AvailabilityMap(); err != nil {
			return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, fmt.Sprintf("invalid availability for faculty %s", member.ID))
		}
	}
	return nil
}

func teachesAny(member models.Faculty, subjects []models.Subject) bool {
	for _, subject := range subjects {
		if member.Teaches(subject.ID) {
			return true
		}
	}
	return false
}

// TargetBatch returns the first batch whose semester matches.
func (c *Catalog) TargetBatch(semester int) (models.Batch, error) {
	for _, batch := range c.Batches {
		if batch.Semester == semester {
			return batch, nil
		}
	}
	return models.Batch{}, appErrors.Clone(appErrors.ErrNoTargetBatch, "no student batch found for semester "+strconv.Itoa(semester))
}

// EnrolledSubjects returns catalog subjects the batch is enrolled in, in catalog order.
// Enrolled ids missing from the subject roster are ignored.
func (c *Catalog) EnrolledSubjects(batch models.Batch) ([]models.Subject, error) {
	subjects := make([]models.Subject, 0, len(batch.Subjects))
	for _, subject := range c.Subjects {
		if batch.Enrolled(subject.ID) {
			subjects = append(subjects, subject)
		}
	}
	if len(subjects) == 0 {
		return nil, appErrors.Clone(appErrors.ErrBatchHasNoSubjects, fmt.Sprintf("batch %s is not enrolled in any subjects", batch.Name))
	}
	return subjects, nil
}

// QualifiedFaculty lists faculty able to teach the subject, in roster order.
func (c *Catalog) QualifiedFaculty(subjectID string) []models.Faculty {
	return qualifiedFaculty(c.Faculty, subjectID)
}

// SuitableClassrooms lists rooms matching the subject's kind with enough seats, in roster order.
func (c *Catalog) SuitableClassrooms(subject models.Subject, strength int) []models.Classroom {
	return suitableClassrooms(c.Classrooms, subject, strength)
}

// BreaksOwnedBy returns the breaks of one scheduling user. An empty owner selects every break.
func (c *Catalog) BreaksOwnedBy(ownerID string) []models.Break {
	if ownerID == "" {
		return c.Breaks
	}
	owned := make([]models.Break, 0, len(c.Breaks))
	for _, item := range c.Breaks {
		if item.UserID == ownerID {
			owned = append(owned, item)
		}
	}
	return owned
}

func qualifiedFaculty(roster []models.Faculty, subjectID string) []models.Faculty {
	var out []models.Faculty
	for _, member := range roster {
		if member.Teaches(subjectID) {
			out = append(out, member)
		}
	}
	return out
}

func suitableClassrooms(roster []models.Classroom, subject models.Subject, strength int) []models.Classroom {
	var out []models.Classroom
	for _, room := range roster {
		if subject.FitsClassroom(room, strength) {
			out = append(out, room)
		}
	}
	return out
}
