// Package config loads the engine's settings from the environment, with an
// optional .env file underneath.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
	EnvTest        Environment = "test"
)

// Store drivers accepted by DB_DRIVER.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

type Config struct {
	App           AppConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Engine        EngineConfig
	Auth          AuthConfig
	Observability ObservabilityConfig
	Features      *FeatureFlags
}

type AppConfig struct {
	Name        string
	Environment Environment
	Version     string

	// Location buckets daily activity and streak days (APP_TIMEZONE).
	Location *time.Location

	// RequestTimeout bounds one CLI command; 0 disables it.
	RequestTimeout time.Duration
}

type DatabaseConfig struct {
	Driver string // postgres, sqlite or memory

	// URL is the postgres DSN, either DATABASE_URL or assembled from DB_*.
	URL string

	// SQLitePath may be ":memory:".
	SQLitePath string

	MaxConns        int
	MinConns        int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	ConnectAttempts int
	AutoMigrate     bool
}

// RedisConfig locates the XP leaderboard projection.
type RedisConfig struct {
	URL      string // wins over Host and Port
	Host     string
	Port     int
	Password string
	DB       int

	PoolSize        int
	MinIdleConns    int
	DialTimeout     time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	KeyPrefix       string
	ConnectAttempts int

	// Disabled runs without Redis; leaderboard reads fall back to the store.
	Disabled bool
}

type EngineConfig struct {
	// DefaultLeaderboardLimit applies when a caller asks for limit <= 0.
	DefaultLeaderboardLimit int

	// MaxBadgeRounds caps xp_total re-evaluation after badge rewards.
	MaxBadgeRounds int
}

// AuthConfig verifies capability tokens for privileged commands.
type AuthConfig struct {
	JWTSecret string
	Issuer    string
	Audience  string
	Leeway    time.Duration
}

type ObservabilityConfig struct {
	LogLevel  string
	AddCaller bool
}

// Load applies envFiles (".env" when none are given, missing files are
// skipped) and then reads the process environment. Variables already set in
// the environment are never overridden by a file. Malformed values are
// reported rather than replaced by defaults.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("dotenv %s: %w", f, err)
		}
	}

	var e env
	cfg := &Config{
		App: AppConfig{
			Name:           e.str("APP_NAME", "progress-engine"),
			Environment:    Environment(e.str("APP_ENV", string(EnvDevelopment))),
			Version:        e.str("APP_VERSION", "0.1.0"),
			Location:       e.location("APP_TIMEZONE", time.UTC),
			RequestTimeout: e.duration("APP_REQUEST_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			Driver:          strings.ToLower(e.str("DB_DRIVER", DriverPostgres)),
			URL:             e.postgresURL(),
			SQLitePath:      e.str("SQLITE_PATH", "progress.db"),
			MaxConns:        e.integer("DB_MAX_CONNS", 20),
			MinConns:        e.integer("DB_MIN_CONNS", 2),
			ConnMaxLifetime: e.duration("DB_CONN_MAX_LIFETIME", time.Hour),
			ConnMaxIdleTime: e.duration("DB_CONN_MAX_IDLE_TIME", 30*time.Minute),
			ConnectAttempts: e.integer("DB_CONNECT_ATTEMPTS", 3),
			AutoMigrate:     e.boolean("DB_AUTO_MIGRATE", false),
		},
		Redis: RedisConfig{
			URL:             e.str("REDIS_URL", ""),
			Host:            e.str("REDIS_HOST", "localhost"),
			Port:            e.integer("REDIS_PORT", 6379),
			Password:        e.str("REDIS_PASSWORD", ""),
			DB:              e.integer("REDIS_DB", 0),
			PoolSize:        e.integer("REDIS_POOL_SIZE", 10),
			MinIdleConns:    e.integer("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:     e.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:     e.duration("REDIS_READ_TIMEOUT", 2*time.Second),
			WriteTimeout:    e.duration("REDIS_WRITE_TIMEOUT", 2*time.Second),
			KeyPrefix:       e.str("REDIS_KEY_PREFIX", "progress:"),
			ConnectAttempts: e.integer("REDIS_CONNECT_ATTEMPTS", 2),
			Disabled:        e.boolean("REDIS_DISABLED", false),
		},
		Engine: EngineConfig{
			DefaultLeaderboardLimit: e.integer("ENGINE_LEADERBOARD_LIMIT", 10),
			MaxBadgeRounds:          e.integer("ENGINE_MAX_BADGE_ROUNDS", 5),
		},
		Auth: AuthConfig{
			JWTSecret: e.str("JWT_SECRET", ""),
			Issuer:    e.str("JWT_ISSUER", ""),
			Audience:  e.str("JWT_AUDIENCE", ""),
			Leeway:    e.duration("JWT_LEEWAY", 30*time.Second),
		},
		Observability: ObservabilityConfig{
			LogLevel:  e.str("LOG_LEVEL", "info"),
			AddCaller: e.boolean("LOG_ADD_CALLER", false),
		},
		Features: LoadFeatureFlags(),
	}
	if len(e.errs) > 0 {
		return nil, fmt.Errorf("config: %w", errors.Join(e.errs...))
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// Validate checks cross-field rules that single variables cannot express.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) { problems = append(problems, fmt.Sprintf(format, args...)) }

	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.URL == "" {
			add("DATABASE_URL (or DB_HOST/DB_USER) is required for the postgres driver")
		}
	case DriverSQLite:
		if c.Database.SQLitePath == "" {
			add("SQLITE_PATH is required for the sqlite driver")
		}
	case DriverMemory:
	default:
		add("DB_DRIVER must be %q, %q or %q, got %q", DriverPostgres, DriverSQLite, DriverMemory, c.Database.Driver)
	}

	if c.Database.MaxConns < 1 {
		add("DB_MAX_CONNS must be positive")
	}
	if c.IsProduction() && len(c.Auth.JWTSecret) < 32 {
		add("JWT_SECRET must be at least 32 bytes in production")
	}
	if c.Engine.DefaultLeaderboardLimit < 1 {
		add("ENGINE_LEADERBOARD_LIMIT must be positive")
	}
	if c.Engine.MaxBadgeRounds < 1 {
		add("ENGINE_MAX_BADGE_ROUNDS must be positive")
	}

	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("configuration errors:\n  - %s", strings.Join(problems, "\n  - "))
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == EnvProduction
}

// ══════════════════════════════════════════════════════════════════════════════
// ENVIRONMENT READER
// ══════════════════════════════════════════════════════════════════════════════

// env reads variables and remembers every malformed one.
type env struct {
	errs []error
}

func (e *env) str(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// parse reads key with fn, keeping def when the variable is unset.
func parse[T any](e *env, key string, def T, fn func(string) (T, error)) T {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := fn(raw)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s=%q: %w", key, raw, err))
		return def
	}
	return v
}

func (e *env) integer(key string, def int) int {
	return parse(e, key, def, strconv.Atoi)
}

func (e *env) boolean(key string, def bool) bool {
	return parse(e, key, def, strconv.ParseBool)
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	return parse(e, key, def, time.ParseDuration)
}

func (e *env) location(key string, def *time.Location) *time.Location {
	return parse(e, key, def, time.LoadLocation)
}

// postgresURL prefers DATABASE_URL and otherwise assembles a DSN from DB_*
// when both host and user are set.
func (e *env) postgresURL() string {
	if url := e.str("DATABASE_URL", ""); url != "" {
		return url
	}
	host, user := e.str("DB_HOST", ""), e.str("DB_USER", "")
	if host == "" || user == "" {
		return ""
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		user, e.str("DB_PASSWORD", ""), host,
		e.str("DB_PORT", "5432"), e.str("DB_NAME", "progress"), e.str("DB_SSLMODE", "disable"))
}
