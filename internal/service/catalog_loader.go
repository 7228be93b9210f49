package service

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/timetable-api/internal/models"
	"github.com/noah-isme/timetable-api/internal/scheduler"
	appErrors "github.com/noah-isme/timetable-api/pkg/errors"
)

type classroomLister interface {
	List(ctx context.Context) ([]models.Classroom, error)
}

type subjectLister interface {
	List(ctx context.Context) ([]models.Subject, error)
}

type facultyLister interface {
	List(ctx context.Context) ([]models.Faculty, error)
}

type batchLister interface {
	List(ctx context.Context) ([]models.Batch, error)
}

type breakLister interface {
	List(ctx context.Context) ([]models.Break, error)
}

// CatalogSources groups the roster readers the loader fans out to.
type CatalogSources struct {
	Classrooms classroomLister
	Subjects   subjectLister
	Faculty    facultyLister
	Batches    batchLister
	Breaks     breakLister
}

// CatalogLoader snapshots all rosters ahead of a generation run.
type CatalogLoader struct {
	sources CatalogSources
	metrics *MetricsService
	logger  *zap.Logger
}

// NewCatalogLoader constructs a loader. A nil Breaks source yields no breaks.
func NewCatalogLoader(sources CatalogSources, metrics *MetricsService, logger *zap.Logger) *CatalogLoader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogLoader{sources: sources, metrics: metrics, logger: logger}
}

// Load reads the five rosters concurrently and returns them as one catalog.
func (l *CatalogLoader) Load(ctx context.Context) (*scheduler.Catalog, error) {
	catalog := &scheduler.Catalog{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		catalog.Classrooms, err = timed(l, "classrooms", func() ([]models.Classroom, error) { return l.sources.Classrooms.List(gctx) })
		return err
	})
	g.Go(func() (err error) {
		catalog.Subjects, err = timed(l, "subjects", func() ([]models.Subject, error) { return l.sources.Subjects.List(gctx) })
		return err
	})
	g.Go(func() (err error) {
		catalog.Faculty, err = timed(l, "faculty", func() ([]models.Faculty, error) { return l.sources.Faculty.List(gctx) })
		return err
	})
	g.Go(func() (err error) {
		catalog.Batches, err = timed(l, "batches", func() ([]models.Batch, error) { return l.sources.Batches.List(gctx) })
		return err
	})
	if l.sources.Breaks != nil {
		g.Go(func() (err error) {
			catalog.Breaks, err = timed(l, "breaks", func() ([]models.Break, error) { return l.sources.Breaks.List(gctx) })
			return err
		})
	}

	if err := g.Wait(); err != nil {
		l.logger.Error("load scheduling catalog", zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load scheduling data")
	}
	return catalog, nil
}

func timed[T any](l *CatalogLoader, label string, fn func() ([]T, error)) ([]T, error) {
	start := time.Now()
	rows, err := fn()
	l.metrics.ObserveDBQuery("list_"+label, time.Since(start))
	return rows, err
}
