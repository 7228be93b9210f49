package scheduler

import (
	"sort"

	"github.com/noah-isme/timetable-api/internal/models"
)

// unschedulablePenalty stands in for 1/0 when a subject has no qualified faculty or rooms,
// pushing it to the front of the ranking.
const unschedulablePenalty = 100.0

// RankedSubject carries a subject together with its scarcity figures.
type RankedSubject struct {
	Subject            models.Subject `json:"subject"`
	QualifiedFaculty   int            `json:"qualifiedFaculty"`
	SuitableClassrooms int            `json:"suitableClassrooms"`
	Difficulty         float64        `json:"difficulty"`
	Unschedulable      bool           `json:"unschedulable"`
	Reason             WarningReason  `json:"reason,omitempty"`
}

// RankSubjects orders subjects most-constrained first. Ties keep input order.
func RankSubjects(subjects []models.Subject, batch models.Batch, faculty []models.Faculty, classrooms []models.Classroom) []RankedSubject {
	ranked := make([]RankedSubject, 0, len(subjects))
	for _, subject := range subjects {
		facultyCount := len(qualifiedFaculty(faculty, subject.ID))
		roomCount := len(suitableClassrooms(classrooms, subject, batch.Strength))

		item := RankedSubject{
			Subject:            subject,
			QualifiedFaculty:   facultyCount,
			SuitableClassrooms: roomCount,
			Difficulty:         scarcityScore(facultyCount) + scarcityScore(roomCount),
		}
		switch {
		case facultyCount == 0:
			item.Unschedulable = true
			item.Reason = ReasonNoQualifiedFaculty
		case roomCount == 0:
			item.Unschedulable = true
			item.Reason = ReasonNoSuitableClassroom
		}
		ranked = append(ranked, item)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Difficulty > ranked[j].Difficulty
	})
	return ranked
}

func scarcityScore(count int) float64 {
	if count <= 0 {
		return unschedulablePenalty
	}
	return 1 / float64(count)
}
