package scheduler

import (
	"go.uber.org/zap"

	"github.com/noah-isme/timetable-api/internal/models"
)

// Allocation is the allocator output: committed teaching slots plus subjects left out.
type Allocation struct {
	Slots       []models.TimeSlot
	Unscheduled []Warning
}

// Allocator places each ranked subject into one weekly (day, window, faculty, classroom)
// booking. It is greedy and never revisits a committed placement.
type Allocator struct {
	days                []string
	windows             []TimeWindow
	shuffler            Shuffler
	enforceAvailability bool
	logger              *zap.Logger
}

// NewAllocator builds an allocator over the configured slot universe.
func NewAllocator(opts Options, shuffler Shuffler, logger *zap.Logger) *Allocator {
	opts = opts.normalize()
	if shuffler == nil {
		shuffler = NewRandomShuffler(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Allocator{
		days:                opts.Days,
		windows:             opts.teachingWindows(),
		shuffler:            shuffler,
		enforceAvailability: opts.EnforceAvailability,
		logger:              logger,
	}
}

// Allocate schedules subjects in ranked order against the catalog rosters.
func (a *Allocator) Allocate(ranked []RankedSubject, batch models.Batch, catalog *Catalog) Allocation {
	candidates := a.candidates()
	state := newAllocationState(catalog.Faculty, a.enforceAvailability)
	result := Allocation{Slots: make([]models.TimeSlot, 0, len(ranked))}

	for _, item := range ranked {
		if item.Unschedulable {
			result.Unscheduled = append(result.Unscheduled, newWarning(item.Subject, item.Reason, batch.Strength))
			a.logger.Warn("subject cannot be scheduled",
				zap.String("subject_id", item.Subject.ID),
				zap.String("subject", item.Subject.Name),
				zap.String("reason", string(item.Reason)),
			)
			continue
		}

		faculty := catalog.QualifiedFaculty(item.Subject.ID)
		rooms := catalog.SuitableClassrooms(item.Subject, batch.Strength)
		slot, ok := state.place(item.Subject, batch, faculty, rooms, candidates)
		if !ok {
			result.Unscheduled = append(result.Unscheduled, newWarning(item.Subject, ReasonSlotsExhausted, batch.Strength))
			a.logger.Warn("no free slot for subject",
				zap.String("subject_id", item.Subject.ID),
				zap.String("subject", item.Subject.Name),
			)
			continue
		}
		result.Slots = append(result.Slots, slot)
	}
	return result
}

// candidates builds the day × window universe and shuffles it once.
func (a *Allocator) candidates() []candidateSlot {
	slots := make([]candidateSlot, 0, len(a.days)*len(a.windows))
	for _, day := range a.days {
		for _, window := range a.windows {
			slots = append(slots, candidateSlot{Day: day, Window: window})
		}
	}
	a.shuffler.Shuffle(len(slots), func(i, j int) {
		slots[i], slots[j] = slots[j], slots[i]
	})
	return slots
}

type candidateSlot struct {
	Day    string
	Window TimeWindow
}

func (c candidateSlot) key() string {
	return c.Day + "|" + c.Window.Start
}

func (c candidateSlot) resourceKey(resourceID string) string {
	return c.key() + "|" + resourceID
}

type exclusionSet map[string]struct{}

func (s exclusionSet) has(key string) bool {
	_, ok := s[key]
	return ok
}

func (s exclusionSet) add(key string) {
	s[key] = struct{}{}
}

type allocationState struct {
	facultyBusy exclusionSet
	roomBusy    exclusionSet
	// batchBusy is keyed by day|time only: a run schedules a single batch.
	batchBusy exclusionSet
	loads     map[string]*facultyLoad
}

func newAllocationState(faculty []models.Faculty, enforce bool) *allocationState {
	state := &allocationState{
		facultyBusy: make(exclusionSet),
		roomBusy:    make(exclusionSet),
		batchBusy:   make(exclusionSet),
	}
	if enforce {
		state.loads = make(map[string]*facultyLoad, len(faculty))
		for _, member := range faculty {
			state.loads[member.ID] = newFacultyLoad(member)
		}
	}
	return state
}

func (s *allocationState) place(subject models.Subject, batch models.Batch, faculty []models.Faculty, rooms []models.Classroom, candidates []candidateSlot) (models.TimeSlot, bool) {
	for _, slot := range candidates {
		if s.batchBusy.has(slot.key()) {
			continue
		}
		member, ok := s.freeFaculty(slot, faculty)
		if !ok {
			continue
		}
		room, ok := s.freeClassroom(slot, rooms)
		if !ok {
			continue
		}

		s.batchBusy.add(slot.key())
		s.facultyBusy.add(slot.resourceKey(member.ID))
		s.roomBusy.add(slot.resourceKey(room.ID))
		if load := s.loads[member.ID]; load != nil {
			load.Reserve()
		}

		return models.TimeSlot{
			Day:         slot.Day,
			StartTime:   slot.Window.Start,
			EndTime:     slot.Window.End,
			SubjectID:   stringPtr(subject.ID),
			FacultyID:   stringPtr(member.ID),
			ClassroomID: stringPtr(room.ID),
			BatchID:     batch.ID,
		}, true
	}
	return models.TimeSlot{}, false
}

func (s *allocationState) freeFaculty(slot candidateSlot, faculty []models.Faculty) (models.Faculty, bool) {
	for _, member := range faculty {
		if s.facultyBusy.has(slot.resourceKey(member.ID)) {
			continue
		}
		if load := s.loads[member.ID]; load != nil && !load.CanTeach(slot.Day, slot.Window.Start) {
			continue
		}
		return member, true
	}
	return models.Faculty{}, false
}

func (s *allocationState) freeClassroom(slot candidateSlot, rooms []models.Classroom) (models.Classroom, bool) {
	for _, room := range rooms {
		if !s.roomBusy.has(slot.resourceKey(room.ID)) {
			return room, true
		}
	}
	return models.Classroom{}, false
}

// facultyLoad tracks availability windows and weekly hours for one faculty member.
// Only consulted when availability enforcement is enabled.
type facultyLoad struct {
	maxPerWeek int
	weekly     int
	// available is nil when the faculty member has no availability map (unrestricted).
	available map[string]map[string]bool
}

func newFacultyLoad(member models.Faculty) *facultyLoad {
	load := &facultyLoad{maxPerWeek: member.MaxHoursPerWeek}
	windows, err := member.AvailabilityMap()
	if err != nil || len(windows) == 0 {
		return load
	}
	load.available = make(map[string]map[string]bool, len(windows))
	for day, starts := range windows {
		name := canonicalDay(day)
		if name == "" {
			continue
		}
		if load.available[name] == nil {
			load.available[name] = make(map[string]bool, len(starts))
		}
		for _, start := range starts {
			load.available[name][start] = true
		}
	}
	return load
}

func (f *facultyLoad) CanTeach(day, start string) bool {
	if f.maxPerWeek > 0 && f.weekly >= f.maxPerWeek {
		return false
	}
	if f.available == nil {
		return true
	}
	return f.available[day][start]
}

func (f *facultyLoad) Reserve() {
	f.weekly++
}

func stringPtr(v string) *string {
	return &v
}
