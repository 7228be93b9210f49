package scheduler

import "github.com/noah-isme/timetable-api/internal/models"

// InjectBreaks emits one break slot per (break, listed weekday). Breaks bypass the
// allocator's exclusion sets and may overlap teaching windows; consumers resolve overlaps.
func InjectBreaks(breaks []models.Break, batchID string) []models.TimeSlot {
	var slots []models.TimeSlot
	for _, item := range breaks {
		for _, day := range item.Days {
			slots = append(slots, models.TimeSlot{
				Day:       day,
				StartTime: item.StartTime,
				EndTime:   item.EndTime,
				BatchID:   batchID,
				IsBreak:   true,
				BreakName: stringPtr(item.Name),
			})
		}
	}
	return slots
}
