package scheduler

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// TimeWindow is a class-length period within a day, as HH:MM strings.
type TimeWindow struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

func (w TimeWindow) String() string {
	return w.Start + " - " + w.End
}

// Options configures the slot universe and constraint enforcement.
type Options struct {
	Days          []string
	Windows       []TimeWindow
	PeriodsPerDay int
	// EnforceAvailability makes the allocator honour faculty availability maps and weekly hour caps.
	EnforceAvailability bool
}

// DefaultOptions mirrors the standard teaching week: five weekdays, eight hourly windows
// from 09:00, of which the first six are used for classes.
func DefaultOptions() Options {
	return Options{
		Days: []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday"},
		Windows: []TimeWindow{
			{Start: "09:00", End: "10:00"},
			{Start: "10:00", End: "11:00"},
			{Start: "11:00", End: "12:00"},
			{Start: "12:00", End: "13:00"},
			{Start: "13:00", End: "14:00"},
			{Start: "14:00", End: "15:00"},
			{Start: "15:00", End: "16:00"},
			{Start: "16:00", End: "17:00"},
		},
		PeriodsPerDay: 6,
	}
}

func (o Options) normalize() Options {
	def := DefaultOptions()
	if len(o.Days) == 0 {
		o.Days = def.Days
	}
	if len(o.Windows) == 0 {
		o.Windows = def.Windows
	}
	if o.PeriodsPerDay <= 0 {
		o.PeriodsPerDay = def.PeriodsPerDay
	}
	if o.PeriodsPerDay > len(o.Windows) {
		o.PeriodsPerDay = len(o.Windows)
	}
	days := make([]string, 0, len(o.Days))
	for _, day := range o.Days {
		if name := canonicalDay(day); name != "" {
			days = append(days, name)
		}
	}
	o.Days = days
	return o
}

// teachingWindows returns the windows available for classes; the rest are reserved.
func (o Options) teachingWindows() []TimeWindow {
	return o.Windows[:o.PeriodsPerDay]
}

// ParseTimeWindows reads "HH:MM-HH:MM" entries. Windows may not overlap or repeat because
// bookings are keyed by window start.
func ParseTimeWindows(raw []string) ([]TimeWindow, error) {
	windows := make([]TimeWindow, 0, len(raw))
	type span struct {
		entry      string
		start, end time.Time
	}
	spans := make([]span, 0, len(raw))
	for _, entry := range raw {
		parts := strings.SplitN(strings.TrimSpace(entry), "-", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("time window %q must look like HH:MM-HH:MM", entry)
		}
		start, end := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		startAt, err := time.Parse("15:04", start)
		if err != nil {
			return nil, fmt.Errorf("time window %q: invalid start: %w", entry, err)
		}
		endAt, err := time.Parse("15:04", end)
		if err != nil {
			return nil, fmt.Errorf("time window %q: invalid end: %w", entry, err)
		}
		if !endAt.After(startAt) {
			return nil, fmt.Errorf("time window %q ends before it starts", entry)
		}
		windows = append(windows, TimeWindow{Start: start, End: end})
		spans = append(spans, span{entry: entry, start: startAt, end: endAt})
	}

	sort.SliceStable(spans, func(i, j int) bool { return spans[i].start.Before(spans[j].start) })
	for i := 1; i < len(spans); i++ {
		if spans[i].start.Before(spans[i-1].end) {
			return nil, fmt.Errorf("time window %q overlaps %q", spans[i].entry, spans[i-1].entry)
		}
	}
	return windows, nil
}

var weekdayNames = map[string]string{
	"monday":    "Monday",
	"tuesday":   "Tuesday",
	"wednesday": "Wednesday",
	"thursday":  "Thursday",
	"friday":    "Friday",
	"saturday":  "Saturday",
	"sunday":    "Sunday",
}

var weekdayIndex = map[string]int{
	"Monday":    1,
	"Tuesday":   2,
	"Wednesday": 3,
	"Thursday":  4,
	"Friday":    5,
	"Saturday":  6,
	"Sunday":    7,
}

// canonicalDay maps any casing of a weekday name to its title-case form, or "" when unknown.
func canonicalDay(name string) string {
	return weekdayNames[strings.ToLower(strings.TrimSpace(name))]
}

func dayIndex(name string) int {
	if idx, ok := weekdayIndex[canonicalDay(name)]; ok {
		return idx
	}
	return 8
}
