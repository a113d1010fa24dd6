package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/itlingo/progress-engine/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// USER REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// UserRepository implements user.Repository for PostgreSQL.
type UserRepository struct {
	conn *Connection
}

var _ user.Repository = (*UserRepository)(nil)

// NewUserRepository creates a new UserRepository.
func NewUserRepository(conn *Connection) *UserRepository {
	return &UserRepository{conn: conn}
}

const userColumns = `id, COALESCE(auth0_id, ''), email, full_name, total_xp, current_streak,
	longest_streak, last_login_at, is_active, created_at, updated_at`

// Create inserts a new user. A duplicate id, email or identity is Conflict.
func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	query := `
		INSERT INTO users (
			id, auth0_id, email, full_name, total_xp, current_streak, longest_streak,
			last_login_at, is_active, created_at, updated_at
		) VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.conn.Exec(ctx, query,
		u.ID,
		u.Auth0ID,
		u.Email,
		u.FullName,
		u.TotalXP,
		u.CurrentStreak,
		u.LongestStreak,
		u.LastLoginAt,
		u.IsActive,
		u.CreatedAt,
		u.UpdatedAt,
	)
	return classify("user", "Create", err)
}

// Get returns a user by id.
func (r *UserRepository) Get(ctx context.Context, id string) (*user.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	u, err := scanUser(r.conn.QueryRow(ctx, query, id))
	if err != nil {
		return nil, classify("user", "Get", err)
	}
	return u, nil
}

// AddXP adds delta to the total in one statement. The total never drops
// below zero.
func (r *UserRepository) AddXP(ctx context.Context, id string, delta int) (int, error) {
	query := `
		UPDATE users
		SET total_xp = GREATEST(total_xp + $2, 0), updated_at = NOW()
		WHERE id = $1
		RETURNING total_xp
	`

	var total int
	if err := r.conn.QueryRow(ctx, query, id, delta).Scan(&total); err != nil {
		return 0, classify("user", "AddXP", err)
	}
	return total, nil
}

// RecordLogin stores the login time and streak counters. The longest
// streak only ever grows.
func (r *UserRepository) RecordLogin(ctx context.Context, id string, at time.Time, next user.StreakState) (*user.User, error) {
	query := `
		UPDATE users SET
			last_login_at = $2,
			current_streak = $3,
			longest_streak = GREATEST(longest_streak, $4, $3),
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + userColumns

	u, err := scanUser(r.conn.QueryRow(ctx, query, id, at, next.Current, next.Longest))
	if err != nil {
		return nil, classify("user", "RecordLogin", err)
	}
	return u, nil
}

// TopByXP returns active users by total XP descending, ties by id.
func (r *UserRepository) TopByXP(ctx context.Context, limit int) ([]*user.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE is_active
		ORDER BY total_xp DESC, id
		LIMIT $1
	`

	rows, err := r.conn.Query(ctx, query, limitArg(limit))
	if err != nil {
		return nil, classify("user", "TopByXP", err)
	}
	defer rows.Close()

	var out []*user.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		out = append(out, u)
	}
	return out, classify("user", "TopByXP", rows.Err())
}

func scanUser(row pgx.Row) (*user.User, error) {
	var u user.User
	err := row.Scan(
		&u.ID,
		&u.Auth0ID,
		&u.Email,
		&u.FullName,
		&u.TotalXP,
		&u.CurrentStreak,
		&u.LongestStreak,
		&u.LastLoginAt,
		&u.IsActive,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}
