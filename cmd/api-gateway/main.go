package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/timetable-api/api/swagger"
	"github.com/noah-isme/timetable-api/internal/handler"
	internalmiddleware "github.com/noah-isme/timetable-api/internal/middleware"
	"github.com/noah-isme/timetable-api/internal/repository"
	"github.com/noah-isme/timetable-api/internal/scheduler"
	"github.com/noah-isme/timetable-api/internal/service"
	"github.com/noah-isme/timetable-api/pkg/cache"
	"github.com/noah-isme/timetable-api/pkg/config"
	"github.com/noah-isme/timetable-api/pkg/database"
	"github.com/noah-isme/timetable-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/timetable-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/timetable-api/pkg/middleware/requestid"
)

// @title Timetable API
// @version 0.1.0
// @description Generates weekly class timetables from classroom, subject, faculty and batch rosters.
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect postgres", zap.Error(err))
	}
	if cfg.Database.AutoMigrate {
		if err := database.RunMigrations(db.DB, logr); err != nil {
			logr.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	var rdb *redis.Client
	rdb, err = cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, running without cache and generation lock", zap.Error(err))
		rdb = nil
	}

	cacheRepo := repository.NewCacheRepository(rdb, logr)

	router, err := buildRouter(cfg, db, rdb, cacheRepo, logr)
	if err != nil {
		logr.Fatal("failed to build router", zap.Error(err))
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logr.Info("shutting down", zap.String("signal", sig.String()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("server shutdown failed", zap.Error(err))
	}
	if err := db.Close(); err != nil {
		logr.Warn("failed to close postgres", zap.Error(err))
	}
	if err := cacheRepo.Close(); err != nil {
		logr.Warn("failed to close redis", zap.Error(err))
	}
	logr.Info("server stopped")
}

func buildRouter(cfg *config.Config, db *sqlx.DB, rdb *redis.Client, cacheRepo *repository.CacheRepository, logr *zap.Logger) (*gin.Engine, error) {
	windows, err := scheduler.ParseTimeWindows(cfg.Scheduler.TimeWindows)
	if err != nil {
		return nil, fmt.Errorf("scheduler time windows: %w", err)
	}

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Timetable.CacheTTL, logr, rdb != nil)

	loader := service.NewCatalogLoader(service.CatalogSources{
		Classrooms: repository.NewClassroomRepository(db),
		Subjects:   repository.NewSubjectRepository(db),
		Faculty:    repository.NewFacultyRepository(db),
		Batches:    repository.NewBatchRepository(db),
		Breaks:     repository.NewBreakRepository(db),
	}, metricsSvc, logr)

	engine := scheduler.NewEngine(scheduler.EngineConfig{
		Options: scheduler.Options{
			Days:                cfg.Scheduler.Days,
			Windows:             windows,
			PeriodsPerDay:       cfg.Scheduler.PeriodsPerDay,
			EnforceAvailability: cfg.Scheduler.EnforceAvailability,
		},
		Shuffler:  scheduler.NewRandomShuffler(cfg.Scheduler.RandomSeed),
		Validator: validate,
		Logger:    logr,
	})

	timetableSvc := service.NewTimetableService(service.TimetableServiceParams{
		Catalog:    loader,
		Engine:     engine,
		Timetables: repository.NewTimetableRepository(db),
		Slots:      repository.NewTimeSlotRepository(db),
		Tx:         db,
		Locker:     cacheRepo,
		Cache:      cacheSvc,
		Metrics:    metricsSvc,
		Validator:  validate,
		Logger:     logr,
		Config: service.TimetableServiceConfig{
			LockTTL:  cfg.Scheduler.LockTTL,
			CacheTTL: cfg.Timetable.CacheTTL,
		},
	})

	checks := map[string]handler.Pinger{"postgres": db}
	if rdb != nil {
		checks["redis"] = handler.PingerFunc(cacheRepo.Ping)
	}
	metricsHandler := handler.NewMetricsHandler(metricsSvc, checks)
	timetableHandler := handler.NewTimetableHandler(timetableSvc)
	limiter := internalmiddleware.NewRateLimiter(cfg.RateLimit.GeneratePerMinute, cfg.RateLimit.GenerateBurst, logr)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc, "/metrics", "/health", "/ready"))
	r.Use(internalmiddleware.WithResponseMeta())

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	timetables := api.Group("/timetables")
	if cfg.Scheduler.Enabled {
		timetables.POST("/generate", limiter.Handler(), timetableHandler.Generate)
	} else {
		logr.Warn("timetable generation disabled by configuration")
	}
	timetables.GET("", timetableHandler.List)
	timetables.GET("/:id", timetableHandler.Get)
	timetables.POST("/:id/publish", timetableHandler.Publish)
	timetables.DELETE("/:id", timetableHandler.Delete)

	return r, nil
}
