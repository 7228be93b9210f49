package service

import (
	"context"
	"encoding/json"
	"errors"
	"path"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/timetable-api/internal/dto"
	"github.com/noah-isme/timetable-api/internal/models"
	"github.com/noah-isme/timetable-api/internal/repository"
	"github.com/noah-isme/timetable-api/internal/scheduler"
	appErrors "github.com/noah-isme/timetable-api/pkg/errors"
)

type catalogStub struct {
	catalog *scheduler.Catalog
	err     error
	calls   int
}

func (s *catalogStub) Load(context.Context) (*scheduler.Catalog, error) {
	s.calls++
	return s.catalog, s.err
}

type lockerStub struct {
	busy     bool
	err      error
	acquired []string
	released []string
}

func (l *lockerStub) AcquireLock(_ context.Context, key, _ string, _ time.Duration) (bool, error) {
	if l.err != nil {
		return false, l.err
	}
	if l.busy {
		return false, nil
	}
	l.acquired = append(l.acquired, key)
	return true, nil
}

func (l *lockerStub) ReleaseLock(_ context.Context, key, _ string) error {
	l.released = append(l.released, key)
	return nil
}

type cacheStub struct {
	entries     map[string][]byte
	deleted     []string
	invalidated []string
}

func newCacheStub() *cacheStub {
	return &cacheStub{entries: map[string][]byte{}}
}

func (c *cacheStub) Get(_ context.Context, key string, dest interface{}) (bool, error) {
	entry, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(entry, dest)
}

func (c *cacheStub) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.entries[key] = payload
	return nil
}

func (c *cacheStub) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(c.entries, key)
		c.deleted = append(c.deleted, key)
	}
	return nil
}

func (c *cacheStub) Invalidate(_ context.Context, pattern string) error {
	c.invalidated = append(c.invalidated, pattern)
	for key := range c.entries {
		if matched, _ := path.Match(pattern, key); matched {
			delete(c.entries, key)
		}
	}
	return nil
}

func (c *cacheStub) timetable(t *testing.T, key string) (models.Timetable, bool) {
	t.Helper()
	var out models.Timetable
	entry, ok := c.entries[key]
	if !ok {
		return out, false
	}
	require.NoError(t, json.Unmarshal(entry, &out))
	return out, true
}

type timetableFixture struct {
	service *TimetableService
	mock    sqlmock.Sqlmock
	catalog *catalogStub
	locker  *lockerStub
	cache   *cacheStub
}

func newTimetableServiceFixture(t *testing.T) *timetableFixture {
	return buildTimetableFixture(t, true)
}

// newUntransactedFixture wires no transaction provider, so persistence falls back to
// header-then-slots with a retracting delete.
func newUntransactedFixture(t *testing.T) *timetableFixture {
	return buildTimetableFixture(t, false)
}

func buildTimetableFixture(t *testing.T, transactional bool) *timetableFixture {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	sqlxdb := sqlx.NewDb(db, "sqlmock")

	fixture := &timetableFixture{
		mock:    mock,
		catalog: &catalogStub{catalog: sampleCatalog()},
		locker:  &lockerStub{},
		cache:   newCacheStub(),
	}
	var tx txProvider
	if transactional {
		tx = sqlxdb
	}
	fixture.service = NewTimetableService(TimetableServiceParams{
		Catalog:    fixture.catalog,
		Engine:     scheduler.NewEngine(scheduler.EngineConfig{Shuffler: scheduler.IdentityShuffler()}),
		Timetables: repository.NewTimetableRepository(sqlxdb),
		Slots:      repository.NewTimeSlotRepository(sqlxdb),
		Tx:         tx,
		Locker:     fixture.locker,
		Cache:      fixture.cache,
		Metrics:    NewMetricsService(),
	})
	return fixture
}

func sampleCatalog() *scheduler.Catalog {
	return scheduler.NewCatalog(
		[]models.Classroom{
			{ID: "room-1", Name: "Room 1", Capacity: 50, Type: models.ClassroomTypeLecture},
			{ID: "lab-1", Name: "Lab 1", Capacity: 50, Type: models.ClassroomTypeLab},
		},
		[]models.Subject{
			{ID: "math", Name: "Mathematics", Code: "MA101", Type: models.SubjectTypeCore},
			{ID: "chem-lab", Name: "Chemistry Lab", Code: "CH101L", Type: models.SubjectTypeLab},
			{ID: "art", Name: "Art", Code: "AR101", Type: models.SubjectTypeElective},
		},
		[]models.Faculty{
			{ID: "fac-1", Name: "Ada", Subjects: pq.StringArray{"math", "chem-lab"}},
		},
		[]models.Batch{
			{ID: "batch-1", Name: "Sem1-A", Semester: 1, Strength: 40, Subjects: pq.StringArray{"math", "chem-lab", "art"}},
		},
		[]models.Break{
			{ID: "brk-1", Name: "Lunch", StartTime: "12:00", EndTime: "13:00", Days: pq.StringArray{"Monday"}, UserID: "owner-1"},
		},
	)
}

func TestTimetableServiceGeneratePersistsTimetable(t *testing.T) {
	f := newTimetableServiceFixture(t)
	f.cache.entries[timetableListCacheKey(1)] = []byte(`[]`)
	f.mock.ExpectBegin()
	f.mock.ExpectExec(regexp.QuoteMeta("INSERT INTO timetables")).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "1", "owner-1", "draft", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	f.mock.ExpectExec(regexp.QuoteMeta("INSERT INTO time_slots")).
		WillReturnResult(sqlmock.NewResult(3, 3))
	f.mock.ExpectCommit()

	resp, err := f.service.Generate(context.Background(), dto.GenerateTimetableRequest{Semester: 1, OwnerID: "owner-1"})
	require.NoError(t, err)
	assert.NoError(t, f.mock.ExpectationsWereMet())

	require.NotNil(t, resp.Timetable)
	assert.Len(t, resp.Timetable.TimeSlots, 3)
	assert.Equal(t, 2, resp.Summary.Scheduled)
	assert.Equal(t, 1, resp.Summary.Breaks)
	assert.Equal(t, 1, resp.Summary.Unscheduled)
	require.Len(t, resp.Warnings, 1)
	assert.Equal(t, "art", resp.Warnings[0].SubjectID)
	assert.Equal(t, scheduler.ReasonNoQualifiedFaculty, resp.Warnings[0].Reason)
	require.Len(t, resp.Ranking, 3)
	assert.Equal(t, "art", resp.Ranking[0].SubjectID)

	assert.Equal(t, []string{"timetable:lock:semester:1"}, f.locker.acquired)
	assert.Equal(t, f.locker.acquired, f.locker.released)
	_, cached := f.cache.entries[timetableCacheKey(resp.Timetable.ID)]
	assert.True(t, cached)
	_, listed := f.cache.entries[timetableListCacheKey(1)]
	assert.False(t, listed)
}

func TestTimetableServiceGenerateRollsBackWhenSlotsFail(t *testing.T) {
	f := newTimetableServiceFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectExec(regexp.QuoteMeta("INSERT INTO timetables")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	f.mock.ExpectExec(regexp.QuoteMeta("INSERT INTO time_slots")).
		WillReturnError(errors.New("slot constraint violated"))
	f.mock.ExpectRollback()

	resp, err := f.service.Generate(context.Background(), dto.GenerateTimetableRequest{Semester: 1, OwnerID: "owner-1"})
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.True(t, errors.Is(err, appErrors.ErrPersistenceFailure))
	assert.NoError(t, f.mock.ExpectationsWereMet())
	assert.Empty(t, f.cache.entries)
	assert.Len(t, f.locker.released, 1)
}

func TestTimetableServiceGenerateRollsBackOnDeadline(t *testing.T) {
	f := newTimetableServiceFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectExec(regexp.QuoteMeta("INSERT INTO timetables")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	f.mock.ExpectExec(regexp.QuoteMeta("INSERT INTO time_slots")).
		WillDelayFor(300 * time.Millisecond).
		WillReturnResult(sqlmock.NewResult(3, 3))
	f.mock.ExpectRollback()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := f.service.Generate(ctx, dto.GenerateTimetableRequest{Semester: 1, OwnerID: "owner-1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrPersistenceFailure))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestTimetableServiceGenerateRetractsHeaderWhenCommitFails(t *testing.T) {
	f := newTimetableServiceFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectExec(regexp.QuoteMeta("INSERT INTO timetables")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	f.mock.ExpectExec(regexp.QuoteMeta("INSERT INTO time_slots")).
		WillReturnResult(sqlmock.NewResult(3, 3))
	f.mock.ExpectCommit().WillReturnError(errors.New("connection lost"))
	f.mock.ExpectExec(regexp.QuoteMeta("DELETE FROM timetables WHERE id = $1")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := f.service.Generate(context.Background(), dto.GenerateTimetableRequest{Semester: 1, OwnerID: "owner-1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrPersistenceFailure))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestTimetableServiceGenerateRetractsHeaderWhenSlotsFail(t *testing.T) {
	f := newUntransactedFixture(t)
	f.mock.ExpectExec(regexp.QuoteMeta("INSERT INTO timetables")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	f.mock.ExpectExec(regexp.QuoteMeta("INSERT INTO time_slots")).
		WillReturnError(errors.New("slot constraint violated"))
	f.mock.ExpectExec(regexp.QuoteMeta("DELETE FROM timetables WHERE id = $1")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	resp, err := f.service.Generate(context.Background(), dto.GenerateTimetableRequest{Semester: 1, OwnerID: "owner-1"})
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.True(t, errors.Is(err, appErrors.ErrPersistenceFailure))
	assert.NoError(t, f.mock.ExpectationsWereMet())
	assert.Empty(t, f.cache.entries)
}

func TestTimetableServiceGenerateRetractsHeaderAfterDeadline(t *testing.T) {
	f := newUntransactedFixture(t)
	f.mock.ExpectExec(regexp.QuoteMeta("INSERT INTO timetables")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	f.mock.ExpectExec(regexp.QuoteMeta("INSERT INTO time_slots")).
		WillDelayFor(300 * time.Millisecond).
		WillReturnResult(sqlmock.NewResult(3, 3))
	f.mock.ExpectExec(regexp.QuoteMeta("DELETE FROM timetables WHERE id = $1")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := f.service.Generate(ctx, dto.GenerateTimetableRequest{Semester: 1, OwnerID: "owner-1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrPersistenceFailure))
	assert.NotContains(t, err.Error(), "retract header")
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestTimetableServiceGenerateHeaderFailure(t *testing.T) {
	f := newTimetableServiceFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectExec(regexp.QuoteMeta("INSERT INTO timetables")).
		WillReturnError(errors.New("connection reset"))
	f.mock.ExpectRollback()

	_, err := f.service.Generate(context.Background(), dto.GenerateTimetableRequest{Semester: 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrPersistenceFailure))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestTimetableServiceGenerateRejectsConcurrentRun(t *testing.T) {
	f := newTimetableServiceFixture(t)
	f.locker.busy = true

	_, err := f.service.Generate(context.Background(), dto.GenerateTimetableRequest{Semester: 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrGenerationInProgress))
	assert.Equal(t, 0, f.catalog.calls)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestTimetableServiceGenerateProceedsWhenLockBackendFails(t *testing.T) {
	f := newTimetableServiceFixture(t)
	f.locker.err = errors.New("redis down")
	f.mock.ExpectBegin()
	f.mock.ExpectExec(regexp.QuoteMeta("INSERT INTO timetables")).WillReturnResult(sqlmock.NewResult(1, 1))
	f.mock.ExpectExec(regexp.QuoteMeta("INSERT INTO time_slots")).WillReturnResult(sqlmock.NewResult(2, 2))
	f.mock.ExpectCommit()

	_, err := f.service.Generate(context.Background(), dto.GenerateTimetableRequest{Semester: 1})
	require.NoError(t, err)
	assert.Empty(t, f.locker.released)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestTimetableServiceGenerateEngineErrorsSkipPersistence(t *testing.T) {
	f := newTimetableServiceFixture(t)
	f.catalog.catalog.Classrooms = nil

	_, err := f.service.Generate(context.Background(), dto.GenerateTimetableRequest{Semester: 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrInputMissing))
	assert.Len(t, f.locker.released, 1)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestTimetableServiceGenerateValidation(t *testing.T) {
	f := newTimetableServiceFixture(t)

	_, err := f.service.Generate(context.Background(), dto.GenerateTimetableRequest{Semester: 0})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
	assert.Empty(t, f.locker.acquired)
}

func TestTimetableServiceGenerateCatalogFailure(t *testing.T) {
	f := newTimetableServiceFixture(t)
	f.catalog.err = appErrors.Wrap(errors.New("db down"), appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load scheduling data")

	_, err := f.service.Generate(context.Background(), dto.GenerateTimetableRequest{Semester: 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrInternal))
}

func timetableRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "name", "semester", "user_id", "status", "created_at"})
}

func slotRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "timetable_id", "day", "start_time", "end_time", "subject_id", "faculty_id", "classroom_id", "batch_id", "user_id", "is_break", "break_name", "created_at"})
}

func TestTimetableServiceGetReadsThroughCache(t *testing.T) {
	f := newTimetableServiceFixture(t)
	now := time.Now()
	f.mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, semester, user_id, status, created_at FROM timetables WHERE id = $1")).
		WithArgs("tt-1").
		WillReturnRows(timetableRows().AddRow("tt-1", "Semester 1 Timetable - 2024-03-04", "1", "owner-1", "draft", now))
	f.mock.ExpectQuery(regexp.QuoteMeta("FROM time_slots WHERE timetable_id = $1")).
		WithArgs("tt-1").
		WillReturnRows(slotRows().AddRow("slot-1", "tt-1", "Monday", "09:00", "10:00", "math", "fac-1", "room-1", "batch-1", "owner-1", false, nil, now))

	timetable, hit, err := f.service.Get(context.Background(), "tt-1")
	require.NoError(t, err)
	assert.False(t, hit)
	require.Len(t, timetable.TimeSlots, 1)
	assert.Equal(t, "math", *timetable.TimeSlots[0].SubjectID)

	again, hit, err := f.service.Get(context.Background(), "tt-1")
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, timetable.ID, again.ID)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestTimetableServiceGetNotFound(t *testing.T) {
	f := newTimetableServiceFixture(t)
	f.mock.ExpectQuery(regexp.QuoteMeta("FROM timetables WHERE id = $1")).
		WithArgs("missing").
		WillReturnRows(timetableRows())

	_, _, err := f.service.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestTimetableServiceList(t *testing.T) {
	f := newTimetableServiceFixture(t)
	now := time.Now()
	f.mock.ExpectQuery(regexp.QuoteMeta("FROM timetables WHERE semester = $1 ORDER BY created_at DESC")).
		WithArgs("5").
		WillReturnRows(timetableRows().
			AddRow("tt-2", "Semester 5 Timetable - 2024-03-05", "5", "owner-1", "draft", now).
			AddRow("tt-1", "Semester 5 Timetable - 2024-03-04", "5", "owner-1", "published", now.Add(-24*time.Hour)))

	list, err := f.service.List(context.Background(), dto.TimetableQuery{Semester: 5})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "tt-2", list[0].ID)

	cached, err := f.service.List(context.Background(), dto.TimetableQuery{Semester: 5})
	require.NoError(t, err)
	require.Len(t, cached, 2)
	assert.Equal(t, "tt-1", cached[1].ID)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestTimetableServicePublish(t *testing.T) {
	f := newTimetableServiceFixture(t)
	require.NoError(t, f.cache.Set(context.Background(), timetableCacheKey("tt-1"), &models.Timetable{ID: "tt-1", Status: models.TimetableStatusDraft}, time.Minute))
	f.cache.entries[timetableListCacheKey(0)] = []byte(`[]`)
	now := time.Now()
	f.mock.ExpectExec(regexp.QuoteMeta("UPDATE timetables SET status = $1 WHERE id = $2 AND status = $3")).
		WithArgs("published", "tt-1", "draft").
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectQuery(regexp.QuoteMeta("FROM timetables WHERE id = $1")).
		WithArgs("tt-1").
		WillReturnRows(timetableRows().AddRow("tt-1", "Semester 1 Timetable - 2024-03-04", "1", "owner-1", "published", now))
	f.mock.ExpectQuery(regexp.QuoteMeta("FROM time_slots WHERE timetable_id = $1")).
		WithArgs("tt-1").
		WillReturnRows(slotRows())

	timetable, err := f.service.Publish(context.Background(), "tt-1")
	require.NoError(t, err)
	assert.Equal(t, models.TimetableStatusPublished, timetable.Status)
	cached, ok := f.cache.timetable(t, timetableCacheKey("tt-1"))
	require.True(t, ok)
	assert.Equal(t, models.TimetableStatusPublished, cached.Status)
	assert.Contains(t, f.cache.deleted, timetableCacheKey("tt-1"))
	assert.Equal(t, []string{timetableListPattern}, f.cache.invalidated)
	_, listed := f.cache.entries[timetableListCacheKey(0)]
	assert.False(t, listed)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestTimetableServicePublishRejectsNonDraft(t *testing.T) {
	f := newTimetableServiceFixture(t)
	f.mock.ExpectExec(regexp.QuoteMeta("UPDATE timetables SET status")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	f.mock.ExpectQuery(regexp.QuoteMeta("FROM timetables WHERE id = $1")).
		WithArgs("tt-1").
		WillReturnRows(timetableRows().AddRow("tt-1", "x", "1", "owner-1", "published", time.Now()))

	_, err := f.service.Publish(context.Background(), "tt-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrConflict))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestTimetableServiceDelete(t *testing.T) {
	f := newTimetableServiceFixture(t)
	f.mock.ExpectExec(regexp.QuoteMeta("DELETE FROM timetables WHERE id = $1")).
		WithArgs("tt-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectExec(regexp.QuoteMeta("DELETE FROM timetables WHERE id = $1")).
		WithArgs("tt-404").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, f.service.Delete(context.Background(), "tt-1"))
	assert.Contains(t, f.cache.deleted, timetableCacheKey("tt-1"))
	assert.Contains(t, f.cache.invalidated, timetableListPattern)

	err := f.service.Delete(context.Background(), "tt-404")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}
