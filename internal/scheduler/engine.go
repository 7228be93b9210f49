package scheduler

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/timetable-api/internal/models"
	appErrors "github.com/noah-isme/timetable-api/pkg/errors"
)

// Request selects what to generate.
type Request struct {
	Semester int
	// OwnerID identifies the scheduling user; only their breaks are injected.
	OwnerID string
}

// Result is a successful, possibly partial, generation.
type Result struct {
	Timetable *models.Timetable
	Batch     models.Batch
	Ranking   []RankedSubject
	Warnings  []Warning
}

// EngineConfig wires the engine's collaborators. Zero values fall back to defaults.
type EngineConfig struct {
	Options     Options
	Shuffler    Shuffler
	Validator   *validator.Validate
	Logger      *zap.Logger
	Clock       func() time.Time
	IDGenerator func() string
}

// Engine runs the rank → allocate → breaks → assemble pipeline over a catalog snapshot.
type Engine struct {
	allocator *Allocator
	validator *validator.Validate
	logger    *zap.Logger
	clock     func() time.Time
	newID     func() string
}

// NewEngine constructs an engine.
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Validator == nil {
		cfg.Validator = validator.New()
	}
	if cfg.Clock == nil {
		cfg.Clock = func() time.Time { return time.Now().UTC() }
	}
	if cfg.IDGenerator == nil {
		cfg.IDGenerator = uuid.NewString
	}
	return &Engine{
		allocator: NewAllocator(cfg.Options, cfg.Shuffler, cfg.Logger),
		validator: cfg.Validator,
		logger:    cfg.Logger,
		clock:     cfg.Clock,
		newID:     cfg.IDGenerator,
	}
}

// Generate builds a draft timetable for the batch of the requested semester. Fatal
// conditions return typed errors; unscheduled subjects come back as warnings.
func (e *Engine) Generate(catalog *Catalog, req Request) (*Result, error) {
	if req.Semester < 1 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "semester must be a positive number")
	}
	if err := catalog.CheckRosters(); err != nil {
		return nil, err
	}
	batch, err := catalog.TargetBatch(req.Semester)
	if err != nil {
		return nil, err
	}
	subjects, err := catalog.EnrolledSubjects(batch)
	if err != nil {
		return nil, err
	}
	if err := catalog.ValidateRun(e.validator, batch, subjects); err != nil {
		return nil, err
	}

	ranking := RankSubjects(subjects, batch, catalog.Faculty, catalog.Classrooms)
	allocation := e.allocator.Allocate(ranking, batch, catalog)
	breaks := InjectBreaks(catalog.BreaksOwnedBy(req.OwnerID), batch.ID)

	timetable, err := Assemble(AssembleInput{
		Semester: req.Semester,
		OwnerID:  req.OwnerID,
		Teaching: allocation.Slots,
		Breaks:   breaks,
		Now:      e.clock(),
	}, e.newID)
	if err != nil {
		return nil, err
	}

	e.logger.Info("timetable generated",
		zap.String("timetable_id", timetable.ID),
		zap.String("batch_id", batch.ID),
		zap.Int("semester", req.Semester),
		zap.Int("subjects", len(subjects)),
		zap.Int("scheduled", len(allocation.Slots)),
		zap.Int("breaks", len(breaks)),
		zap.Int("unscheduled", len(allocation.Unscheduled)),
	)

	return &Result{
		Timetable: timetable,
		Batch:     batch,
		Ranking:   ranking,
		Warnings:  allocation.Unscheduled,
	}, nil
}
