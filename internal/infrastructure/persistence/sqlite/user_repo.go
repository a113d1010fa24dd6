package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/itlingo/progress-engine/internal/domain/user"
)

// UserRepository implements user.Repository.
type UserRepository struct {
	db *DB
}

var _ user.Repository = (*UserRepository)(nil)

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

type userRow struct {
	ID            string         `db:"id"`
	Auth0ID       sql.NullString `db:"auth0_id"`
	Email         string         `db:"email"`
	FullName      string         `db:"full_name"`
	TotalXP       int            `db:"total_xp"`
	CurrentStreak int            `db:"current_streak"`
	LongestStreak int            `db:"longest_streak"`
	LastLoginAt   sql.NullInt64  `db:"last_login_at"`
	IsActive      bool           `db:"is_active"`
	CreatedAt     int64          `db:"created_at"`
	UpdatedAt     int64          `db:"updated_at"`
}

func (r userRow) toDomain() *user.User {
	return &user.User{
		ID:            r.ID,
		Auth0ID:       r.Auth0ID.String,
		Email:         r.Email,
		FullName:      r.FullName,
		TotalXP:       r.TotalXP,
		CurrentStreak: r.CurrentStreak,
		LongestStreak: r.LongestStreak,
		LastLoginAt:   fromNullNanos(r.LastLoginAt),
		IsActive:      r.IsActive,
		CreatedAt:     fromNanos(r.CreatedAt),
		UpdatedAt:     fromNanos(r.UpdatedAt),
	}
}

const userColumns = `id, auth0_id, email, full_name, total_xp, current_streak, longest_streak,
	last_login_at, is_active, created_at, updated_at`

func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	_, err := r.db.x.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, NULLIF(?, ''), ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, u.ID, u.Auth0ID, u.Email, u.FullName, u.TotalXP, u.CurrentStreak, u.LongestStreak,
		toNullNanos(u.LastLoginAt), u.IsActive, toNanos(u.CreatedAt), toNanos(u.UpdatedAt))
	return classify("user", "Create", err)
}

func (r *UserRepository) Get(ctx context.Context, id string) (*user.User, error) {
	var row userRow
	if err := r.db.x.GetContext(ctx, &row, `SELECT `+userColumns+` FROM users WHERE id = ?`, id); err != nil {
		return nil, classify("user", "Get", err)
	}
	return row.toDomain(), nil
}

func (r *UserRepository) AddXP(ctx context.Context, id string, delta int) (int, error) {
	var total int
	err := r.db.x.GetContext(ctx, &total, `
		UPDATE users SET total_xp = MAX(total_xp + ?, 0), updated_at = ?
		WHERE id = ?
		RETURNING total_xp
	`, delta, toNanos(r.db.now()), id)
	if err != nil {
		return 0, classify("user", "AddXP", err)
	}
	return total, nil
}

func (r *UserRepository) RecordLogin(ctx context.Context, id string, at time.Time, next user.StreakState) (*user.User, error) {
	var row userRow
	err := r.db.x.GetContext(ctx, &row, `
		UPDATE users SET
			last_login_at = ?,
			current_streak = ?,
			longest_streak = MAX(longest_streak, ?, ?),
			updated_at = ?
		WHERE id = ?
		RETURNING `+userColumns,
		toNanos(at), next.Current, next.Longest, next.Current, toNanos(r.db.now()), id)
	if err != nil {
		return nil, classify("user", "RecordLogin", err)
	}
	return row.toDomain(), nil
}

func (r *UserRepository) TopByXP(ctx context.Context, limit int) ([]*user.User, error) {
	var rows []userRow
	err := r.db.x.SelectContext(ctx, &rows, `
		SELECT `+userColumns+` FROM users
		WHERE is_active
		ORDER BY total_xp DESC, id
		LIMIT ?
	`, limitArg(limit))
	if err != nil {
		return nil, classify("user", "TopByXP", err)
	}

	out := make([]*user.User, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}
