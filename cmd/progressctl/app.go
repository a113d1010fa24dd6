package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/itlingo/progress-engine/config"
	"github.com/itlingo/progress-engine/internal/application/command"
	"github.com/itlingo/progress-engine/internal/application/query"
	"github.com/itlingo/progress-engine/internal/domain/badge"
	"github.com/itlingo/progress-engine/internal/domain/catalog"
	"github.com/itlingo/progress-engine/internal/domain/leaderboard"
	"github.com/itlingo/progress-engine/internal/domain/progress"
	"github.com/itlingo/progress-engine/internal/domain/quiz"
	"github.com/itlingo/progress-engine/internal/domain/user"
	"github.com/itlingo/progress-engine/internal/infrastructure/auth"
	"github.com/itlingo/progress-engine/internal/infrastructure/persistence/memory"
	"github.com/itlingo/progress-engine/internal/infrastructure/persistence/postgres"
	"github.com/itlingo/progress-engine/internal/infrastructure/persistence/redis"
	"github.com/itlingo/progress-engine/internal/infrastructure/persistence/sqlite"
	"github.com/itlingo/progress-engine/pkg/circuitbreaker"
	"github.com/itlingo/progress-engine/pkg/logger"
	"github.com/itlingo/progress-engine/pkg/retry"
	"github.com/itlingo/progress-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// STORES
// ══════════════════════════════════════════════════════════════════════════════

// catalogWriter upserts catalog content. Every driver has one.
type catalogWriter interface {
	SaveQuiz(ctx context.Context, q quiz.Quiz) error
	SaveLesson(ctx context.Context, l catalog.Lesson) error
	SaveVocabulary(ctx context.Context, v catalog.Vocabulary) error
	SaveBadge(ctx context.Context, b badge.Badge) error
}

// stores is one driver's set of repositories.
type stores struct {
	driver   string
	users    user.Repository
	progress progress.Repository
	quizzes  quiz.Repository
	catalog  catalog.Repository
	badges   badge.Repository
	seeder   catalogWriter

	// migrator is nil when the driver manages its schema itself.
	migrator *postgres.Migrator
	close    func()
}

func memoryStores() *stores {
	s := memory.New()
	return &stores{
		driver:   config.DriverMemory,
		users:    s.Users(),
		progress: s.Progress(),
		quizzes:  s.Quizzes(),
		catalog:  s.Catalog(),
		badges:   s.Badges(),
		seeder:   s,
		close:    func() {},
	}
}

func sqliteStores(ctx context.Context, path string) (*stores, error) {
	db, err := sqlite.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	return &stores{
		driver:   config.DriverSQLite,
		users:    sqlite.NewUserRepository(db),
		progress: sqlite.NewProgressRepository(db),
		quizzes:  sqlite.NewQuizRepository(db),
		catalog:  sqlite.NewCatalogRepository(db),
		badges:   sqlite.NewBadgeRepository(db),
		seeder:   sqlite.NewSeeder(db),
		close:    func() { _ = db.Close() },
	}, nil
}

func postgresStores(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (*stores, error) {
	pgCfg := postgres.DefaultConfig(cfg.URL)
	pgCfg.MaxConns = int32(cfg.MaxConns)
	pgCfg.MinConns = int32(cfg.MinConns)
	pgCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	pgCfg.MaxConnIdleTime = cfg.ConnMaxIdleTime

	policy := retry.DialPolicy(cfg.ConnectAttempts)
	policy.OnRetry = dialLogger(log, "postgres")

	conn, err := retry.Value(ctx, policy, func(ctx context.Context) (*postgres.Connection, error) {
		conn, err := postgres.NewConnection(ctx, pgCfg)
		if err != nil {
			return nil, err
		}
		if err := conn.Ping(ctx); err != nil {
			conn.Close()
			return nil, err
		}
		return conn, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	migrator := postgres.NewMigrator(conn)
	if cfg.AutoMigrate {
		applied, err := migrator.Migrate(ctx)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info("database schema is up to date", logger.Int("applied", applied))
	}

	return &stores{
		driver:   config.DriverPostgres,
		users:    postgres.NewUserRepository(conn),
		progress: postgres.NewProgressRepository(conn),
		quizzes:  postgres.NewQuizRepository(conn),
		catalog:  postgres.NewCatalogRepository(conn),
		badges:   postgres.NewBadgeRepository(conn),
		seeder:   postgres.NewSeeder(conn),
		migrator: migrator,
		close:    conn.Close,
	}, nil
}

func openStores(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (*stores, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return memoryStores(), nil
	case config.DriverSQLite:
		return sqliteStores(ctx, cfg.SQLitePath)
	default:
		return postgresStores(ctx, cfg, log)
	}
}

// openBoard connects the Redis leaderboard. A failure disables the
// projection instead of failing the command.
func openBoard(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) (*redis.Leaderboard, func()) {
	if cfg.Disabled {
		return nil, func() {}
	}

	policy := retry.DialPolicy(cfg.ConnectAttempts)
	policy.OnRetry = dialLogger(log, "redis")

	redisCfg := redis.Config{
		URL:          cfg.URL,
		Host:         cfg.Host,
		Port:         cfg.Port,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		KeyPrefix:    cfg.KeyPrefix,
	}
	cache, err := retry.Value(ctx, policy, func(ctx context.Context) (*redis.Cache, error) {
		cache, err := redis.NewCache(ctx, redisCfg)
		if err != nil && !errors.Is(err, redis.ErrCacheConnection) {
			return nil, retry.Stop(err)
		}
		return cache, err
	})
	if err != nil {
		log.Warn("failed to connect to Redis, leaderboard projection disabled", logger.Err(err))
		return nil, func() {}
	}
	return redis.NewLeaderboard(cache), func() { _ = cache.Close() }
}

func dialLogger(log *logger.Logger, target string) func(int, error, time.Duration) {
	return func(attempt int, err error, wait time.Duration) {
		log.Warn("dial failed, retrying",
			logger.String("target", target),
			logger.Int("attempt", attempt),
			logger.Duration("wait", wait),
			logger.Err(err),
		)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// APPLICATION
// ══════════════════════════════════════════════════════════════════════════════

// app holds everything a subcommand can reach.
type app struct {
	cfg   *config.Config
	log   *logger.Logger
	clock timeutil.Clock

	stores *stores
	board  *redis.Leaderboard // nil without Redis

	coordinator *command.Coordinator
	progress    *query.GetProgressHandler
	lessons     *query.LessonsHandler
	activity    *query.DailyActivityHandler
	badges      *query.UserBadgesHandler
	leaderboard *query.GetLeaderboardHandler

	// verifier is nil when no JWT secret is configured.
	verifier *auth.Verifier

	closers []func()
}

// newApp wires the use cases on top of s. board may be nil.
func newApp(cfg *config.Config, log *logger.Logger, clock timeutil.Clock, s *stores, board *redis.Leaderboard) (*app, error) {
	loc := cfg.App.Location
	if loc == nil {
		loc = time.UTC
	}

	breaker := circuitbreaker.LeaderboardBreaker(func(name string, from, to circuitbreaker.State) {
		log.Warn("circuit breaker state changed",
			logger.String("breaker", name),
			logger.String("from", from.String()),
			logger.String("to", to.String()),
		)
	})

	var projection leaderboard.Board
	if board != nil {
		projection = board
	}

	var features command.FeatureGate
	if cfg.Features != nil {
		features = cfg.Features
	}

	coordinator, err := command.NewCoordinator(command.Deps{
		Users:          s.users,
		Progress:       s.progress,
		Quizzes:        s.quizzes,
		Catalog:        s.catalog,
		Badges:         s.badges,
		Leaderboard:    projection,
		Breaker:        breaker,
		Features:       features,
		Logger:         log,
		Clock:          clock,
		Location:       loc,
		MaxBadgeRounds: cfg.Engine.MaxBadgeRounds,
	})
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:         cfg,
		log:         log,
		clock:       clock,
		stores:      s,
		board:       board,
		coordinator: coordinator,
		progress:    query.NewGetProgressHandler(s.users, s.progress, loc),
		lessons:     query.NewLessonsHandler(s.users, s.progress, s.catalog),
		activity:    query.NewDailyActivityHandler(s.users, s.progress, clock, loc),
		badges:      query.NewUserBadgesHandler(s.users, s.badges),
		leaderboard: query.NewGetLeaderboardHandler(s.users, projection, breaker, cfg.Engine.DefaultLeaderboardLimit, log),
	}

	if cfg.Auth.JWTSecret != "" {
		a.verifier, err = auth.NewVerifier(auth.Config{
			Secret:   cfg.Auth.JWTSecret,
			Issuer:   cfg.Auth.Issuer,
			Audience: cfg.Auth.Audience,
			Leeway:   cfg.Auth.Leeway,
		})
		if err != nil {
			return nil, err
		}
	}

	return a, nil
}

// Close releases the store and cache connections.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.stores.close()
}
