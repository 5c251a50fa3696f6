// Package cmdutil wires repositories and services for CLI commands.
package cmdutil

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"

	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/access"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/config"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/db/bunx"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/gate"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/logger"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/repository"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/services/academicyear"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/services/assignment"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/services/grade"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/services/ledger"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/services/lesson"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/telemetry"
)

// App bundles the database connection with every service built on it.
type App struct {
	DB      *bun.DB
	Metrics *telemetry.Metrics
	Cache   *access.Cache
	Gate    *gate.Gate
	// Cookies is set when the access cache lives in client cookies.
	Cookies *access.CookieCodec

	Grades      *grade.Service
	Years       *academicyear.Service
	Assignments *assignment.Service
	Lessons     *lesson.Service
	Ledger      *ledger.Service

	redis *redis.Client
}

// NewApp connects to the database and access cache backend and wires the services.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	db, err := bunx.NewDB(ctx, cfg.DatabaseURL, cfg.MaxDBConnections)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	metrics, err := telemetry.NewMetrics(nil)
	if err != nil {
		_ = bunx.Close(db)
		return nil, fmt.Errorf("create metrics: %w", err)
	}

	app := &App{DB: db, Metrics: metrics}

	grades := repository.NewBunGradeRepository(db)
	years := repository.NewBunAcademicYearRepository(db)
	assignments := repository.NewBunAssignmentRepository(db)
	lessons := repository.NewBunLessonRepository(db)
	ledgerRepo := repository.NewBunLedgerRepository(db)

	store, err := app.accessStore(ctx, cfg.Access)
	if err != nil {
		app.Close()
		return nil, err
	}

	app.Cache = access.New(store, assignments, cfg.Access.TTL,
		access.WithLogger(logger.Component("access")),
		access.WithMetrics(metrics),
	)
	app.Gate, err = gate.New(app.Cache, logger.Component("gate"), metrics)
	if err != nil {
		app.Close()
		return nil, err
	}

	app.Grades = grade.NewService(grades, logger.Component("grades"))
	app.Years = academicyear.NewService(years, logger.Component("academic-years")).
		WithMetrics(metrics).
		WithPageSize(cfg.PageSize)
	app.Assignments = assignment.NewService(assignments, app.Cache, logger.Component("assignments"))
	app.Lessons = lesson.NewService(lessons, years, logger.Component("lessons"))
	app.Ledger = ledger.NewService(ledgerRepo, years, logger.Component("ledger")).WithMetrics(metrics)

	return app, nil
}

func (a *App) accessStore(ctx context.Context, cfg config.AccessConfig) (access.EntryStore, error) {
	log := logger.Component("access")
	switch cfg.Backend {
	case config.AccessBackendRedis:
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		log.Info().Str("addr", cfg.RedisAddr).Msg("access cache backed by redis")
		return access.NewRedisStore(a.redis, cfg.RedisPrefix), nil
	case config.AccessBackendCookie:
		a.Cookies = access.NewCookieCodec(cfg.CookieName, []byte(cfg.CookieSecret))
		log.Info().Str("cookie", cfg.CookieName).Msg("access cache held in signed cookies")
		return access.NopStore{}, nil
	default:
		log.Info().Int("size", cfg.LRUSize).Msg("access cache held in process")
		return access.NewLRUStore(cfg.LRUSize, cfg.TTL), nil
	}
}

// Close releases the database and cache connections.
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.DB != nil {
		_ = bunx.Close(a.DB)
	}
}
