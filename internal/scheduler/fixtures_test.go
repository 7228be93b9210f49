package scheduler

import (
	"fmt"
	"testing"
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/timetable-api/internal/models"
)

var fixedNow = time.Date(2024, time.March, 4, 8, 0, 0, 0, time.UTC)

// csSem5Catalog builds batch CS-Sem5 (strength 40) with SubjectA (core, 3 faculty,
// 5 lecture rooms) and SubjectB (lab, 1 faculty, 1 lab).
func csSem5Catalog() *Catalog {
	classrooms := []models.Classroom{
		{ID: "lab-1", Name: "Lab 1", Capacity: 45, Type: models.ClassroomTypeLab},
		{ID: "lab-small", Name: "Lab 2", Capacity: 20, Type: models.ClassroomTypeLab},
	}
	for i := 1; i <= 5; i++ {
		classrooms = append(classrooms, models.Classroom{
			ID: fmt.Sprintf("room-%d", i), Name: fmt.Sprintf("Room %d", i), Capacity: 60, Type: models.ClassroomTypeLecture,
		})
	}
	subjects := []models.Subject{
		{ID: "sub-a", Name: "Algorithms", Code: "CS501", Type: models.SubjectTypeCore, Semester: 5},
		{ID: "sub-b", Name: "Networks Lab", Code: "CS502L", Type: models.SubjectTypeLab, Semester: 5},
		{ID: "sub-x", Name: "Compilers", Code: "CS701", Type: models.SubjectTypeCore, Semester: 7},
	}
	faculty := []models.Faculty{
		{ID: "fac-1", Name: "Ada", Subjects: pq.StringArray{"sub-a"}},
		{ID: "fac-2", Name: "Grace", Subjects: pq.StringArray{"sub-a"}},
		{ID: "fac-3", Name: "Edsger", Subjects: pq.StringArray{"sub-a", "sub-x"}},
		{ID: "fac-4", Name: "Barbara", Subjects: pq.StringArray{"sub-b"}},
	}
	batches := []models.Batch{
		{ID: "batch-7", Name: "CS-Sem7", Semester: 7, Strength: 30, Subjects: pq.StringArray{"sub-x"}},
		{ID: "batch-5", Name: "CS-Sem5", Semester: 5, Strength: 40, Subjects: pq.StringArray{"sub-a", "sub-b"}},
	}
	return NewCatalog(classrooms, subjects, faculty, batches, nil)
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%03d", n)
	}
}

func newTestEngine(opts Options, shuffler Shuffler) *Engine {
	return NewEngine(EngineConfig{
		Options:     opts,
		Shuffler:    shuffler,
		Clock:       func() time.Time { return fixedNow },
		IDGenerator: sequentialIDs(),
	})
}

func availability(t *testing.T, raw string) types.JSONText {
	t.Helper()
	text := types.JSONText(raw)
	require.NoError(t, text.Unmarshal(&map[string][]string{}))
	return text
}

// assertTimetableInvariants checks the hard constraints every generated timetable must hold.
func assertTimetableInvariants(t *testing.T, catalog *Catalog, batch models.Batch, timetable *models.Timetable) {
	t.Helper()
	rooms := make(map[string]models.Classroom, len(catalog.Classrooms))
	for _, room := range catalog.Classrooms {
		rooms[room.ID] = room
	}
	subjects := make(map[string]models.Subject, len(catalog.Subjects))
	for _, subject := range catalog.Subjects {
		subjects[subject.ID] = subject
	}
	faculty := make(map[string]models.Faculty, len(catalog.Faculty))
	for _, member := range catalog.Faculty {
		faculty[member.ID] = member
	}

	batchSlots := map[string]bool{}
	facultySlots := map[string]bool{}
	roomSlots := map[string]bool{}
	scheduled := map[string]int{}
	for _, slot := range timetable.TeachingSlots() {
		require.NotNil(t, slot.SubjectID)
		require.NotNil(t, slot.FacultyID)
		require.NotNil(t, slot.ClassroomID)
		key := slot.Day + "|" + slot.StartTime

		require.False(t, batchSlots[key], "batch double booked at %s", key)
		batchSlots[key] = true
		require.False(t, facultySlots[key+"|"+*slot.FacultyID], "faculty double booked at %s", key)
		facultySlots[key+"|"+*slot.FacultyID] = true
		require.False(t, roomSlots[key+"|"+*slot.ClassroomID], "classroom double booked at %s", key)
		roomSlots[key+"|"+*slot.ClassroomID] = true

		subject := subjects[*slot.SubjectID]
		room := rooms[*slot.ClassroomID]
		require.True(t, subject.FitsClassroom(room, batch.Strength), "room %s unsuitable for %s", room.ID, subject.ID)
		require.True(t, faculty[*slot.FacultyID].Teaches(subject.ID), "faculty %s not qualified for %s", *slot.FacultyID, subject.ID)
		require.True(t, batch.Enrolled(subject.ID))
		require.Equal(t, batch.ID, slot.BatchID)

		scheduled[subject.ID]++
		require.LessOrEqual(t, scheduled[subject.ID], 1, "subject %s scheduled more than once", subject.ID)
	}
}
