package scheduler

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/timetable-api/internal/models"
	appErrors "github.com/noah-isme/timetable-api/pkg/errors"
)

// AssembleInput gathers everything the assembler packages into a timetable.
type AssembleInput struct {
	Semester int
	OwnerID  string
	Teaching []models.TimeSlot
	Breaks   []models.TimeSlot
	Now      time.Time
}

// Assemble merges teaching and break slots into a new draft timetable. It fails with
// ErrEmptyResult when there is nothing to persist.
func Assemble(in AssembleInput, newID func() string) (*models.Timetable, error) {
	if len(in.Teaching)+len(in.Breaks) == 0 {
		return nil, appErrors.Clone(appErrors.ErrEmptyResult, "could not generate a timetable: no available slots found, check faculty assignments, batch enrollment and classroom capacity")
	}
	if newID == nil {
		newID = uuid.NewString
	}
	if in.Now.IsZero() {
		in.Now = time.Now().UTC()
	}

	timetable := &models.Timetable{
		ID:        newID(),
		Name:      TimetableName(in.Semester, in.Now),
		Semester:  strconv.Itoa(in.Semester),
		UserID:    in.OwnerID,
		Status:    models.TimetableStatusDraft,
		CreatedAt: in.Now,
	}

	slots := make([]models.TimeSlot, 0, len(in.Teaching)+len(in.Breaks))
	slots = append(slots, in.Teaching...)
	slots = append(slots, in.Breaks...)
	for i := range slots {
		slots[i].ID = newID()
		slots[i].TimetableID = timetable.ID
		slots[i].UserID = in.OwnerID
		slots[i].CreatedAt = in.Now
	}
	sortSlots(slots)
	timetable.TimeSlots = slots
	return timetable, nil
}

// TimetableName derives the display name from the semester and generation date.
func TimetableName(semester int, at time.Time) string {
	return fmt.Sprintf("Semester %d Timetable - %s", semester, at.Format("2006-01-02"))
}

// sortSlots orders by weekday, then start time, with teaching ahead of breaks at equal times.
func sortSlots(slots []models.TimeSlot) {
	sort.SliceStable(slots, func(i, j int) bool {
		di, dj := dayIndex(slots[i].Day), dayIndex(slots[j].Day)
		if di != dj {
			return di < dj
		}
		if slots[i].StartTime != slots[j].StartTime {
			return slots[i].StartTime < slots[j].StartTime
		}
		return !slots[i].IsBreak && slots[j].IsBreak
	})
}
