// Package sqlite implements the repository contracts on a single-file
// SQLite database through sqlx. Writes are serialised on one connection,
// which gives every targeted update the same atomicity as the PostgreSQL
// statements.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"

	"github.com/itlingo/progress-engine/internal/domain/shared"
)

// DB wraps the sqlx handle.
type DB struct {
	x   *sqlx.DB
	now func() time.Time
}

// Open connects to the database at path (":memory:" for a throwaway one)
// and creates the schema if needed.
func Open(ctx context.Context, path string) (*DB, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create data directory: %w", err)
			}
		}
	}

	x, err := sqlx.ConnectContext(ctx, "sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to sqlite: %w", err)
	}

	// SQLite has a single writer; one connection also keeps :memory: alive.
	x.SetMaxOpenConns(1)
	x.SetMaxIdleConns(1)

	if _, err := x.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		x.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := x.ExecContext(ctx, schema); err != nil {
		x.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &DB{x: x, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Close closes the database.
func (db *DB) Close() error {
	return db.x.Close()
}

// withTx runs fn in a transaction and commits when it returns nil.
func (db *DB) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.x.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS AND ENCODING
// ══════════════════════════════════════════════════════════════════════════════

func classify(domain, op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return shared.WrapError(domain, op, shared.ErrNotFound, "record not found", err)
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return shared.WrapError(domain, op, shared.ErrConflict, "record already exists", err)
		case sqlite3.ErrConstraintForeignKey:
			return shared.WrapError(domain, op, shared.ErrNotFound, "referenced record not found", err)
		}
	}
	return shared.Dependency(domain, op, err)
}

// Times are stored as UTC unix nanoseconds so ordering and range scans
// work on plain integers.
func toNanos(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func toNullNanos(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toNanos(*t), Valid: true}
}

func fromNullNanos(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromNanos(n.Int64)
	return &t
}

// limitArg maps "no limit" to SQLite's -1.
func limitArg(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEMA
// ══════════════════════════════════════════════════════════════════════════════

const schema = `
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    auth0_id TEXT UNIQUE,
    email TEXT NOT NULL UNIQUE,
    full_name TEXT NOT NULL DEFAULT '',
    total_xp INTEGER NOT NULL DEFAULT 0 CHECK (total_xp >= 0),
    current_streak INTEGER NOT NULL DEFAULT 0,
    longest_streak INTEGER NOT NULL DEFAULT 0,
    last_login_at INTEGER,
    is_active BOOLEAN NOT NULL DEFAULT 1,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS lessons (
    id TEXT PRIMARY KEY,
    topic_id TEXT NOT NULL DEFAULT '',
    title TEXT NOT NULL DEFAULT '',
    xp_reward INTEGER NOT NULL DEFAULT 0,
    prerequisites TEXT NOT NULL DEFAULT '[]',
    is_published BOOLEAN NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS vocabulary (
    id TEXT PRIMARY KEY,
    lesson_id TEXT NOT NULL DEFAULT '',
    word TEXT NOT NULL,
    translation TEXT NOT NULL DEFAULT '',
    times_reviewed INTEGER NOT NULL DEFAULT 0,
    average_score INTEGER NOT NULL DEFAULT 0,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS quizzes (
    id TEXT PRIMARY KEY,
    lesson_id TEXT NOT NULL DEFAULT '',
    title TEXT NOT NULL DEFAULT '',
    passing_score INTEGER NOT NULL DEFAULT 70,
    xp_reward INTEGER NOT NULL DEFAULT 0,
    is_published BOOLEAN NOT NULL DEFAULT 0,
    total_attempts INTEGER NOT NULL DEFAULT 0,
    average_score INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS quiz_questions (
    quiz_id TEXT NOT NULL REFERENCES quizzes(id) ON DELETE CASCADE,
    id TEXT NOT NULL,
    prompt TEXT NOT NULL DEFAULT '',
    options TEXT NOT NULL DEFAULT '[]',
    correct_answer TEXT NOT NULL,
    points INTEGER NOT NULL DEFAULT 1,
    position INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (quiz_id, id)
);

CREATE TABLE IF NOT EXISTS progress_aggregates (
    user_id TEXT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS lesson_progress (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id TEXT NOT NULL REFERENCES progress_aggregates(user_id) ON DELETE CASCADE,
    lesson_id TEXT NOT NULL,
    status TEXT NOT NULL CHECK (status IN ('not_started', 'in_progress', 'completed')),
    completed_at INTEGER,
    xp_earned INTEGER NOT NULL DEFAULT 0,
    updated_at INTEGER NOT NULL,
    UNIQUE (user_id, lesson_id)
);

CREATE TABLE IF NOT EXISTS quiz_attempts (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    user_id TEXT NOT NULL REFERENCES progress_aggregates(user_id) ON DELETE CASCADE,
    quiz_id TEXT NOT NULL,
    score INTEGER NOT NULL,
    passed BOOLEAN NOT NULL,
    correct_count INTEGER NOT NULL,
    total_questions INTEGER NOT NULL,
    answers TEXT NOT NULL DEFAULT '[]',
    duration_seconds INTEGER NOT NULL DEFAULT 0,
    xp_earned INTEGER NOT NULL DEFAULT 0,
    attempted_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS vocabulary_mastery (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id TEXT NOT NULL REFERENCES progress_aggregates(user_id) ON DELETE CASCADE,
    vocabulary_id TEXT NOT NULL,
    level TEXT NOT NULL DEFAULT 'learning' CHECK (level IN ('learning', 'familiar', 'mastered')),
    correct_count INTEGER NOT NULL DEFAULT 0,
    incorrect_count INTEGER NOT NULL DEFAULT 0,
    last_reviewed_at INTEGER NOT NULL,
    UNIQUE (user_id, vocabulary_id)
);

CREATE TABLE IF NOT EXISTS daily_activity (
    user_id TEXT NOT NULL REFERENCES progress_aggregates(user_id) ON DELETE CASCADE,
    day INTEGER NOT NULL,
    minutes_spent INTEGER NOT NULL DEFAULT 0,
    xp_earned INTEGER NOT NULL DEFAULT 0,
    lessons_completed INTEGER NOT NULL DEFAULT 0,
    quizzes_completed INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (user_id, day)
);

CREATE TABLE IF NOT EXISTS badges (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    icon TEXT NOT NULL DEFAULT '',
    condition_type TEXT NOT NULL,
    threshold INTEGER NOT NULL,
    rarity TEXT NOT NULL DEFAULT 'common',
    xp_reward INTEGER NOT NULL DEFAULT 0,
    is_active BOOLEAN NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS user_badges (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    badge_id TEXT NOT NULL REFERENCES badges(id) ON DELETE CASCADE,
    earned_at INTEGER NOT NULL,
    UNIQUE (user_id, badge_id)
);

CREATE INDEX IF NOT EXISTS idx_users_xp ON users(total_xp DESC, id);
CREATE INDEX IF NOT EXISTS idx_badges_condition ON badges(condition_type, threshold);
CREATE INDEX IF NOT EXISTS idx_user_badges_recent ON user_badges(user_id, earned_at DESC);
`
