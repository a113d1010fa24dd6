package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_SQLiteFromEnv(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", ":memory:")
	t.Setenv("APP_TIMEZONE", "UTC")
	t.Setenv("ENGINE_LEADERBOARD_LIMIT", "25")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, ":memory:", cfg.Database.SQLitePath)
	assert.Equal(t, time.UTC, cfg.App.Location)
	assert.Equal(t, 25, cfg.Engine.DefaultLeaderboardLimit)
	assert.NotNil(t, cfg.Features)
}

func TestLoad_DotEnvFileDoesNotOverrideEnvironment(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("DB_DRIVER=sqlite\nSQLITE_PATH=from-file.db\n"), 0o600))

	t.Setenv("SQLITE_PATH", "from-env.db")
	t.Cleanup(func() { os.Unsetenv("DB_DRIVER") })

	cfg, err := Load(envFile)
	require.NoError(t, err)

	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, "from-env.db", cfg.Database.SQLitePath)
}

func TestValidate(t *testing.T) {
	cfg := &Config{
		App:      AppConfig{Environment: EnvProduction},
		Database: DatabaseConfig{Driver: "mongo", MaxConns: 0},
		Engine:   EngineConfig{DefaultLeaderboardLimit: 10, MaxBadgeRounds: 5},
		Auth:     AuthConfig{JWTSecret: "short"},
	}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_DRIVER")
	assert.Contains(t, err.Error(), "DB_MAX_CONNS")
	assert.Contains(t, err.Error(), "JWT_SECRET")

	cfg.App.Environment = EnvDevelopment
	cfg.Database = DatabaseConfig{Driver: DriverPostgres, URL: "postgres://localhost/progress", MaxConns: 5}
	assert.NoError(t, cfg.Validate())
}

func TestLoad_BadTimezone(t *testing.T) {
	t.Setenv("APP_TIMEZONE", "Mars/Olympus_Mons")
	t.Setenv("DB_DRIVER", "sqlite")

	_, err := Load(filepath.Join(t.TempDir(), "none.env"))
	assert.Error(t, err)
}

func TestLoad_MalformedValuesAreReported(t *testing.T) {
	t.Setenv("DB_DRIVER", "memory")
	t.Setenv("DB_MAX_CONNS", "lots")
	t.Setenv("REDIS_DISABLED", "maybe")

	_, err := Load(filepath.Join(t.TempDir(), "none.env"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_MAX_CONNS")
	assert.Contains(t, err.Error(), "REDIS_DISABLED")
}

func TestLoad_AssemblesPostgresURL(t *testing.T) {
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_USER", "engine")
	t.Setenv("DB_PASSWORD", "pw")

	cfg, err := Load(filepath.Join(t.TempDir(), "none.env"))
	require.NoError(t, err)
	assert.Equal(t, "postgres://engine:pw@db.internal:5432/progress?sslmode=disable", cfg.Database.URL)
}

func TestValidate_MemoryDriverNeedsNoDSN(t *testing.T) {
	cfg := &Config{
		App:      AppConfig{Environment: EnvDevelopment},
		Database: DatabaseConfig{Driver: DriverMemory, MaxConns: 1},
		Engine:   EngineConfig{DefaultLeaderboardLimit: 10, MaxBadgeRounds: 5},
	}
	assert.NoError(t, cfg.Validate())
}
