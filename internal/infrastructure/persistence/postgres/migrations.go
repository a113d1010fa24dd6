package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ErrMigrationFailed wraps any failure while changing the schema.
var ErrMigrationFailed = errors.New("postgres: migration failed")

// migrationLock serialises concurrent migrators (pg_advisory_xact_lock key).
const migrationLock = 7_340_129

// Migration is one embedded schema step.
type Migration struct {
	Version   int
	Name      string
	UpSQL     string
	DownSQL   string
	AppliedAt time.Time
	IsApplied bool
}

// migrations are applied in slice order; versions must increase.
var migrations = []Migration{
	{Version: 1, Name: "create_users", UpSQL: migration001Up, DownSQL: migration001Down},
	{Version: 2, Name: "create_catalog", UpSQL: migration002Up, DownSQL: migration002Down},
	{Version: 3, Name: "create_progress", UpSQL: migration003Up, DownSQL: migration003Down},
	{Version: 4, Name: "create_badges", UpSQL: migration004Up, DownSQL: migration004Down},
}

// Migrator applies the embedded migrations and records them in
// schema_migrations.
type Migrator struct {
	conn *Connection
}

// NewMigrator creates a Migrator.
func NewMigrator(conn *Connection) *Migrator {
	return &Migrator{conn: conn}
}

const createMigrationsTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version    INTEGER PRIMARY KEY,
    name       TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

func (m *Migrator) applied(ctx context.Context, q querier) (map[int]time.Time, error) {
	if _, err := q.Exec(ctx, createMigrationsTable); err != nil {
		return nil, fmt.Errorf("%w: schema_migrations: %v", ErrMigrationFailed, err)
	}

	rows, err := q.Query(ctx, `SELECT version, applied_at FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("%w: list applied: %v", ErrMigrationFailed, err)
	}
	defer rows.Close()

	out := make(map[int]time.Time)
	for rows.Next() {
		var v int
		var at time.Time
		if err := rows.Scan(&v, &at); err != nil {
			return nil, err
		}
		out[v] = at
	}
	return out, rows.Err()
}

// Migrate applies every pending migration, each in its own transaction
// holding the migration lock, and returns how many ran. Concurrent callers
// wait for each other and skip what the winner applied.
func (m *Migrator) Migrate(ctx context.Context) (int, error) {
	ran := 0
	for _, mig := range migrations {
		applied := false
		err := m.conn.WithTx(ctx, writeTx, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, migrationLock); err != nil {
				return err
			}
			done, err := m.applied(ctx, tx)
			if err != nil {
				return err
			}
			if _, ok := done[mig.Version]; ok {
				return nil
			}
			if _, err := tx.Exec(ctx, mig.UpSQL); err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, mig.Version, mig.Name); err != nil {
				return err
			}
			applied = true
			return nil
		})
		if err != nil {
			return ran, fmt.Errorf("%w: %03d_%s: %v", ErrMigrationFailed, mig.Version, mig.Name, err)
		}
		if applied {
			ran++
		}
	}
	return ran, nil
}

// Rollback reverts the newest applied migration. It is a no-op on an empty
// schema and returns the reverted version (0 when nothing ran).
func (m *Migrator) Rollback(ctx context.Context) (int, error) {
	reverted := 0
	err := m.conn.WithTx(ctx, writeTx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, migrationLock); err != nil {
			return err
		}
		done, err := m.applied(ctx, tx)
		if err != nil {
			return err
		}

		for i := len(migrations) - 1; i >= 0; i-- {
			mig := migrations[i]
			if _, ok := done[mig.Version]; !ok {
				continue
			}
			if _, err := tx.Exec(ctx, mig.DownSQL); err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, `DELETE FROM schema_migrations WHERE version = $1`, mig.Version); err != nil {
				return err
			}
			reverted = mig.Version
			return nil
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: rollback: %v", ErrMigrationFailed, err)
	}
	return reverted, nil
}

// Status lists every embedded migration with its applied state.
func (m *Migrator) Status(ctx context.Context) ([]Migration, error) {
	done, err := m.applied(ctx, m.conn)
	if err != nil {
		return nil, err
	}

	out := make([]Migration, len(migrations))
	copy(out, migrations)
	for i := range out {
		if at, ok := done[out[i].Version]; ok {
			out[i].IsApplied = true
			out[i].AppliedAt = at
		}
	}
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: USERS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    auth0_id TEXT UNIQUE,
    email TEXT NOT NULL UNIQUE,
    full_name TEXT NOT NULL DEFAULT '',
    total_xp INTEGER NOT NULL DEFAULT 0,
    current_streak INTEGER NOT NULL DEFAULT 0,
    longest_streak INTEGER NOT NULL DEFAULT 0,
    last_login_at TIMESTAMP WITH TIME ZONE,
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_total_xp CHECK (total_xp >= 0),
    CONSTRAINT valid_streaks CHECK (current_streak >= 0 AND longest_streak >= current_streak)
);

CREATE INDEX IF NOT EXISTS idx_users_active_xp ON users(total_xp DESC, id) WHERE is_active;
`

const migration001Down = `
DROP TABLE IF EXISTS users;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: CATALOG
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
CREATE TABLE IF NOT EXISTS lessons (
    id TEXT PRIMARY KEY,
    topic_id TEXT NOT NULL DEFAULT '',
    title TEXT NOT NULL DEFAULT '',
    xp_reward INTEGER NOT NULL DEFAULT 0,
    prerequisites TEXT[] NOT NULL DEFAULT '{}',
    is_published BOOLEAN NOT NULL DEFAULT FALSE,

    CONSTRAINT valid_lesson_xp CHECK (xp_reward >= 0)
);

CREATE TABLE IF NOT EXISTS vocabulary (
    id TEXT PRIMARY KEY,
    lesson_id TEXT NOT NULL DEFAULT '',
    word TEXT NOT NULL,
    translation TEXT NOT NULL DEFAULT '',
    times_reviewed INTEGER NOT NULL DEFAULT 0,
    average_score INTEGER NOT NULL DEFAULT 0,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS quizzes (
    id TEXT PRIMARY KEY,
    lesson_id TEXT NOT NULL DEFAULT '',
    title TEXT NOT NULL DEFAULT '',
    passing_score INTEGER NOT NULL DEFAULT 70,
    xp_reward INTEGER NOT NULL DEFAULT 0,
    is_published BOOLEAN NOT NULL DEFAULT FALSE,
    total_attempts INTEGER NOT NULL DEFAULT 0,
    average_score INTEGER NOT NULL DEFAULT 0,

    CONSTRAINT valid_passing_score CHECK (passing_score BETWEEN 0 AND 100),
    CONSTRAINT valid_quiz_xp CHECK (xp_reward >= 0)
);

CREATE TABLE IF NOT EXISTS quiz_questions (
    quiz_id TEXT NOT NULL REFERENCES quizzes(id) ON DELETE CASCADE,
    id TEXT NOT NULL,
    prompt TEXT NOT NULL DEFAULT '',
    options JSONB NOT NULL DEFAULT '[]'::jsonb,
    correct_answer TEXT NOT NULL,
    points INTEGER NOT NULL DEFAULT 1,
    position INTEGER NOT NULL DEFAULT 0,

    PRIMARY KEY (quiz_id, id)
);

CREATE INDEX IF NOT EXISTS idx_quiz_questions_position ON quiz_questions(quiz_id, position);
`

const migration002Down = `
DROP TABLE IF EXISTS quiz_questions;
DROP TABLE IF EXISTS quizzes;
DROP TABLE IF EXISTS vocabulary;
DROP TABLE IF EXISTS lessons;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
CREATE TABLE IF NOT EXISTS progress_aggregates (
    user_id TEXT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS lesson_progress (
    user_id TEXT NOT NULL REFERENCES progress_aggregates(user_id) ON DELETE CASCADE,
    lesson_id TEXT NOT NULL,
    seq BIGSERIAL,
    status TEXT NOT NULL,
    completed_at TIMESTAMP WITH TIME ZONE,
    xp_earned INTEGER NOT NULL DEFAULT 0,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (user_id, lesson_id),
    CONSTRAINT valid_lesson_status CHECK (status IN ('not_started', 'in_progress', 'completed'))
);

CREATE INDEX IF NOT EXISTS idx_lesson_progress_completed ON lesson_progress(user_id) WHERE status = 'completed';

CREATE TABLE IF NOT EXISTS quiz_attempts (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL REFERENCES progress_aggregates(user_id) ON DELETE CASCADE,
    quiz_id TEXT NOT NULL,
    score INTEGER NOT NULL,
    passed BOOLEAN NOT NULL,
    correct_count INTEGER NOT NULL,
    total_questions INTEGER NOT NULL,
    answers JSONB NOT NULL DEFAULT '[]'::jsonb,
    duration_seconds INTEGER NOT NULL DEFAULT 0,
    xp_earned INTEGER NOT NULL DEFAULT 0,
    attempted_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_score CHECK (score BETWEEN 0 AND 100)
);

CREATE INDEX IF NOT EXISTS idx_quiz_attempts_user ON quiz_attempts(user_id, attempted_at);

CREATE TABLE IF NOT EXISTS vocabulary_mastery (
    user_id TEXT NOT NULL REFERENCES progress_aggregates(user_id) ON DELETE CASCADE,
    vocabulary_id TEXT NOT NULL,
    seq BIGSERIAL,
    level TEXT NOT NULL DEFAULT 'learning',
    correct_count INTEGER NOT NULL DEFAULT 0,
    incorrect_count INTEGER NOT NULL DEFAULT 0,
    last_reviewed_at TIMESTAMP WITH TIME ZONE NOT NULL,

    PRIMARY KEY (user_id, vocabulary_id),
    CONSTRAINT valid_level CHECK (level IN ('learning', 'familiar', 'mastered'))
);

CREATE INDEX IF NOT EXISTS idx_vocabulary_mastered ON vocabulary_mastery(user_id) WHERE level = 'mastered';

CREATE TABLE IF NOT EXISTS daily_activity (
    user_id TEXT NOT NULL REFERENCES progress_aggregates(user_id) ON DELETE CASCADE,
    day TIMESTAMP WITH TIME ZONE NOT NULL,
    minutes_spent INTEGER NOT NULL DEFAULT 0,
    xp_earned INTEGER NOT NULL DEFAULT 0,
    lessons_completed INTEGER NOT NULL DEFAULT 0,
    quizzes_completed INTEGER NOT NULL DEFAULT 0,

    PRIMARY KEY (user_id, day)
);
`

const migration003Down = `
DROP TABLE IF EXISTS daily_activity;
DROP TABLE IF EXISTS vocabulary_mastery;
DROP TABLE IF EXISTS quiz_attempts;
DROP TABLE IF EXISTS lesson_progress;
DROP TABLE IF EXISTS progress_aggregates;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 004: BADGES
// ══════════════════════════════════════════════════════════════════════════════

const migration004Up = `
CREATE TABLE IF NOT EXISTS badges (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    icon TEXT NOT NULL DEFAULT '',
    condition_type TEXT NOT NULL,
    threshold INTEGER NOT NULL,
    rarity TEXT NOT NULL DEFAULT 'common',
    xp_reward INTEGER NOT NULL DEFAULT 0,
    is_active BOOLEAN NOT NULL DEFAULT TRUE,

    CONSTRAINT valid_condition CHECK (condition_type IN ('lesson_count', 'quiz_score', 'streak_days', 'xp_total', 'vocabulary_mastered'))
);

CREATE INDEX IF NOT EXISTS idx_badges_condition ON badges(condition_type, threshold) WHERE is_active;

CREATE TABLE IF NOT EXISTS user_badges (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    badge_id TEXT NOT NULL REFERENCES badges(id) ON DELETE CASCADE,
    earned_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    UNIQUE (user_id, badge_id)
);

CREATE INDEX IF NOT EXISTS idx_user_badges_recent ON user_badges(user_id, earned_at DESC);
`

const migration004Down = `
DROP TABLE IF EXISTS user_badges;
DROP TABLE IF EXISTS badges;
`
