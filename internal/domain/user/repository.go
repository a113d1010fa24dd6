package user

import (
	"context"
	"time"
)

// Repository is the store contract for user records. Counter updates are
// single atomic statements; implementations never read-modify-write XP.
type Repository interface {
	// Create inserts a new user. Returns ErrConflict if the id, email or
	// Auth0 subject is taken.
	Create(ctx context.Context, u *User) error

	// Get returns the user or ErrNotFound.
	Get(ctx context.Context, id string) (*User, error)

	// AddXP atomically adds delta to total XP and returns the new total.
	// The stored total never drops below zero. Returns ErrNotFound for an
	// unknown user.
	AddXP(ctx context.Context, id string, delta int) (int, error)

	// RecordLogin sets last_login_at unconditionally and the streak counters
	// to next. Longest is written as max(stored, next.Longest).
	RecordLogin(ctx context.Context, id string, at time.Time, next StreakState) (*User, error)

	// TopByXP returns active users ordered by total XP descending.
	TopByXP(ctx context.Context, limit int) ([]*User, error)
}
