package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/timetable-api/internal/dto"
	"github.com/noah-isme/timetable-api/internal/models"
	"github.com/noah-isme/timetable-api/internal/scheduler"
	appErrors "github.com/noah-isme/timetable-api/pkg/errors"
)

type catalogProvider interface {
	Load(ctx context.Context) (*scheduler.Catalog, error)
}

type timetableEngine interface {
	Generate(catalog *scheduler.Catalog, req scheduler.Request) (*scheduler.Result, error)
}

type timetableRepository interface {
	Create(ctx context.Context, exec sqlx.ExtContext, timetable *models.Timetable) error
	ListBySemester(ctx context.Context, semester string) ([]models.Timetable, error)
	FindByID(ctx context.Context, id string) (*models.Timetable, error)
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, from, to models.TimetableStatus) error
	Delete(ctx context.Context, exec sqlx.ExtContext, id string) error
}

type timeSlotRepository interface {
	InsertBatch(ctx context.Context, exec sqlx.ExtContext, slots []models.TimeSlot) error
	ListByTimetable(ctx context.Context, timetableID string) ([]models.TimeSlot, error)
}

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type generationLocker interface {
	AcquireLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, token string) error
}

type timetableCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Invalidate(ctx context.Context, pattern string) error
}

const (
	timetableListPattern = "timetables:list:*"
	retractTimeout       = 5 * time.Second
)

// TimetableServiceConfig tunes locking and caching.
type TimetableServiceConfig struct {
	LockTTL  time.Duration
	CacheTTL time.Duration
}

// TimetableServiceParams groups constructor dependencies.
type TimetableServiceParams struct {
	Catalog    catalogProvider
	Engine     timetableEngine
	Timetables timetableRepository
	Slots      timeSlotRepository
	Tx         txProvider
	Locker     generationLocker
	Cache      timetableCache
	Metrics    *MetricsService
	Validator  *validator.Validate
	Logger     *zap.Logger
	Config     TimetableServiceConfig
}

// TimetableService runs generation end to end and serves stored timetables.
type TimetableService struct {
	catalog    catalogProvider
	engine     timetableEngine
	timetables timetableRepository
	slots      timeSlotRepository
	tx         txProvider
	locker     generationLocker
	cache      timetableCache
	metrics    *MetricsService
	validator  *validator.Validate
	logger     *zap.Logger
	cfg        TimetableServiceConfig
	now        func() time.Time
}

// NewTimetableService constructs a TimetableService with sane defaults.
func NewTimetableService(params TimetableServiceParams) *TimetableService {
	cfg := params.Config
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 2 * time.Minute
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Minute
	}
	validate := params.Validator
	if validate == nil {
		validate = validator.New()
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TimetableService{
		catalog:    params.Catalog,
		engine:     params.Engine,
		timetables: params.Timetables,
		slots:      params.Slots,
		tx:         params.Tx,
		locker:     params.Locker,
		cache:      params.Cache,
		metrics:    params.Metrics,
		validator:  validate,
		logger:     logger,
		cfg:        cfg,
		now:        time.Now,
	}
}

// Generate builds and persists a new draft timetable for the requested semester.
func (s *TimetableService) Generate(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.GenerateTimetableResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid generation request")
	}
	start := s.now()

	release, err := s.lock(ctx, req.Semester)
	if err != nil {
		s.metrics.ObserveGeneration(GenerationOutcomeRejected, s.now().Sub(start), 0)
		return nil, err
	}
	defer release()

	catalog, err := s.catalog.Load(ctx)
	if err != nil {
		s.metrics.ObserveGeneration(GenerationOutcomeFailed, s.now().Sub(start), 0)
		return nil, err
	}

	result, err := s.engine.Generate(catalog, scheduler.Request{Semester: req.Semester, OwnerID: req.OwnerID})
	if err != nil {
		s.metrics.ObserveGeneration(GenerationOutcomeRejected, s.now().Sub(start), 0)
		s.logger.Warn("timetable generation rejected", zap.Int("semester", req.Semester), zap.Error(err))
		return nil, err
	}

	if err := s.persist(ctx, result.Timetable); err != nil {
		s.metrics.ObserveGeneration(GenerationOutcomeFailed, s.now().Sub(start), 0)
		return nil, err
	}
	s.persistCache(ctx, result.Timetable)
	s.invalidateLists(ctx)

	outcome := GenerationOutcomeSuccess
	if len(result.Warnings) > 0 {
		outcome = GenerationOutcomePartial
	}
	for _, warning := range result.Warnings {
		s.metrics.RecordUnscheduled(string(warning.Reason))
	}
	s.metrics.ObserveGeneration(outcome, s.now().Sub(start), len(result.Timetable.TimeSlots))

	return buildGenerateResponse(result), nil
}

// List returns stored timetable headers, newest first. A zero semester lists all.
// Listings are cached per semester and dropped whenever a timetable is created, published or deleted.
func (s *TimetableService) List(ctx context.Context, query dto.TimetableQuery) ([]models.Timetable, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid query parameters")
	}
	key := timetableListCacheKey(query.Semester)
	if s.cache != nil {
		var cached []models.Timetable
		if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
			return cached, nil
		}
	}
	semester := ""
	if query.Semester > 0 {
		semester = strconv.Itoa(query.Semester)
	}
	timetables, err := s.timetables.ListBySemester(ctx, semester)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list timetables")
	}
	if timetables == nil {
		timetables = []models.Timetable{}
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, timetables, s.cfg.CacheTTL); err != nil {
			s.logger.Warn("timetable list cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return timetables, nil
}

// Get returns a timetable with its slots and reports whether it came from cache.
func (s *TimetableService) Get(ctx context.Context, id string) (*models.Timetable, bool, error) {
	if id == "" {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "timetable id is required")
	}
	key := timetableCacheKey(id)
	if s.cache != nil {
		var cached models.Timetable
		hit, err := s.cache.Get(ctx, key, &cached)
		if err == nil && hit {
			return &cached, true, nil
		}
	}

	timetable, err := s.load(ctx, id)
	if err != nil {
		return nil, false, err
	}
	s.persistCache(ctx, timetable)
	return timetable, false, nil
}

// Publish moves a draft timetable to published.
func (s *TimetableService) Publish(ctx context.Context, id string) (*models.Timetable, error) {
	if id == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "timetable id is required")
	}
	err := s.timetables.UpdateStatus(ctx, nil, id, models.TimetableStatusDraft, models.TimetableStatusPublished)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to publish timetable")
		}
		if _, findErr := s.timetables.FindByID(ctx, id); findErr != nil {
			if errors.Is(findErr, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
			}
			return nil, appErrors.Wrap(findErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable")
		}
		return nil, appErrors.Clone(appErrors.ErrConflict, "only draft timetables can be published")
	}
	s.invalidate(ctx, id)
	s.invalidateLists(ctx)

	timetable, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	s.persistCache(ctx, timetable)
	return timetable, nil
}

// Delete removes a timetable together with its slots.
func (s *TimetableService) Delete(ctx context.Context, id string) error {
	if id == "" {
		return appErrors.Clone(appErrors.ErrValidation, "timetable id is required")
	}
	if err := s.timetables.Delete(ctx, nil, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete timetable")
	}
	s.invalidate(ctx, id)
	s.invalidateLists(ctx)
	s.logger.Info("timetable deleted", zap.String("timetable_id", id))
	return nil
}

// persist writes the header and its slots in one transaction. Without a transaction provider
// the header is written first and retracted if the slot write fails.
func (s *TimetableService) persist(ctx context.Context, timetable *models.Timetable) (err error) {
	if s.tx == nil {
		return s.persistUnguarded(ctx, timetable)
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrPersistenceFailure.Code, appErrors.ErrPersistenceFailure.Status, "failed to begin transaction")
	}
	committed := false
	defer func() {
		if err == nil || committed {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Error("rollback timetable transaction", zap.String("timetable_id", timetable.ID), zap.Error(rbErr))
			err = s.retract(ctx, timetable.ID, err)
		}
	}()

	if err = s.timetables.Create(ctx, tx, timetable); err != nil {
		s.logger.Error("insert timetable header", zap.String("timetable_id", timetable.ID), zap.Error(err))
		return appErrors.Wrap(err, appErrors.ErrPersistenceFailure.Code, appErrors.ErrPersistenceFailure.Status, "failed to save timetable")
	}
	if err = s.slots.InsertBatch(ctx, tx, timetable.TimeSlots); err != nil {
		s.logger.Error("insert time slots", zap.String("timetable_id", timetable.ID), zap.Int("slots", len(timetable.TimeSlots)), zap.Error(err))
		return appErrors.Wrap(err, appErrors.ErrPersistenceFailure.Code, appErrors.ErrPersistenceFailure.Status, "failed to save time slots")
	}
	committed = true
	if err = tx.Commit(); err != nil {
		// The commit may have reached the server before the connection failed.
		s.logger.Error("commit timetable transaction", zap.String("timetable_id", timetable.ID), zap.Error(err))
		return s.retract(ctx, timetable.ID, appErrors.Wrap(err, appErrors.ErrPersistenceFailure.Code, appErrors.ErrPersistenceFailure.Status, "failed to commit timetable"))
	}
	return nil
}

func (s *TimetableService) persistUnguarded(ctx context.Context, timetable *models.Timetable) error {
	if err := s.timetables.Create(ctx, nil, timetable); err != nil {
		s.logger.Error("insert timetable header", zap.String("timetable_id", timetable.ID), zap.Error(err))
		return appErrors.Wrap(err, appErrors.ErrPersistenceFailure.Code, appErrors.ErrPersistenceFailure.Status, "failed to save timetable")
	}
	if err := s.slots.InsertBatch(ctx, nil, timetable.TimeSlots); err != nil {
		s.logger.Error("insert time slots", zap.String("timetable_id", timetable.ID), zap.Int("slots", len(timetable.TimeSlots)), zap.Error(err))
		return s.retract(ctx, timetable.ID, appErrors.Wrap(err, appErrors.ErrPersistenceFailure.Code, appErrors.ErrPersistenceFailure.Status, "failed to save time slots"))
	}
	return nil
}

// retract deletes a possibly written header. It runs detached from ctx because a cancelled
// request is the usual reason the write failed in the first place.
func (s *TimetableService) retract(ctx context.Context, id string, cause error) error {
	retractCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), retractTimeout)
	defer cancel()
	if err := s.timetables.Delete(retractCtx, nil, id); err != nil && !errors.Is(err, sql.ErrNoRows) {
		s.logger.Error("retract timetable header", zap.String("timetable_id", id), zap.Error(err))
		return fmt.Errorf("%w; retract header: %v", cause, err)
	}
	return cause
}

func (s *TimetableService) load(ctx context.Context, id string) (*models.Timetable, error) {
	timetable, err := s.timetables.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable")
	}
	slots, err := s.slots.ListByTimetable(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load time slots")
	}
	if slots == nil {
		slots = []models.TimeSlot{}
	}
	timetable.TimeSlots = slots
	return timetable, nil
}

// lock excludes concurrent runs for the same semester. Lock backend failures degrade to an
// unguarded run rather than blocking generation.
func (s *TimetableService) lock(ctx context.Context, semester int) (func(), error) {
	noop := func() {}
	if s.locker == nil {
		return noop, nil
	}
	key := fmt.Sprintf("timetable:lock:semester:%d", semester)
	token := uuid.NewString()
	acquired, err := s.locker.AcquireLock(ctx, key, token, s.cfg.LockTTL)
	if err != nil {
		s.logger.Warn("generation lock unavailable", zap.String("key", key), zap.Error(err))
		return noop, nil
	}
	if !acquired {
		return nil, appErrors.Clone(appErrors.ErrGenerationInProgress, fmt.Sprintf("a timetable for semester %d is already being generated", semester))
	}
	return func() {
		if err := s.locker.ReleaseLock(context.WithoutCancel(ctx), key, token); err != nil {
			s.logger.Warn("release generation lock", zap.String("key", key), zap.Error(err))
		}
	}, nil
}

func (s *TimetableService) persistCache(ctx context.Context, timetable *models.Timetable) {
	if s.cache == nil || timetable == nil {
		return
	}
	if err := s.cache.Set(ctx, timetableCacheKey(timetable.ID), timetable, s.cfg.CacheTTL); err != nil {
		s.logger.Warn("timetable cache write failed", zap.String("timetable_id", timetable.ID), zap.Error(err))
	}
}

func (s *TimetableService) invalidate(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, timetableCacheKey(id)); err != nil {
		s.logger.Warn("timetable cache invalidate failed", zap.String("timetable_id", id), zap.Error(err))
	}
}

// invalidateLists drops every cached listing; any write can change what a listing returns.
func (s *TimetableService) invalidateLists(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, timetableListPattern); err != nil {
		s.logger.Warn("timetable list cache invalidate failed", zap.Error(err))
	}
}

func timetableListCacheKey(semester int) string {
	return fmt.Sprintf("timetables:list:semester:%d", semester)
}

func timetableCacheKey(id string) string {
	return "timetable:" + id
}

func buildGenerateResponse(result *scheduler.Result) *dto.GenerateTimetableResponse {
	ranking := make([]dto.SubjectDifficulty, 0, len(result.Ranking))
	for _, item := range result.Ranking {
		ranking = append(ranking, dto.SubjectDifficulty{
			SubjectID:          item.Subject.ID,
			SubjectName:        item.Subject.Name,
			QualifiedFaculty:   item.QualifiedFaculty,
			SuitableClassrooms: item.SuitableClassrooms,
			Difficulty:         item.Difficulty,
		})
	}
	warnings := result.Warnings
	if warnings == nil {
		warnings = []scheduler.Warning{}
	}
	teaching := len(result.Timetable.TeachingSlots())
	return &dto.GenerateTimetableResponse{
		Timetable: result.Timetable,
		Warnings:  warnings,
		Ranking:   ranking,
		Summary: dto.GenerationSummary{
			BatchID:     result.Batch.ID,
			BatchName:   result.Batch.Name,
			Enrolled:    len(result.Ranking),
			Scheduled:   teaching,
			Breaks:      len(result.Timetable.TimeSlots) - teaching,
			Unscheduled: len(warnings),
		},
	}
}
