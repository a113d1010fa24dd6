// Package user holds the identity-linked learner record: the XP total and
// login streak fields the progress engine maintains.
package user

import (
	"strings"
	"time"

	"github.com/itlingo/progress-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: USER
// ══════════════════════════════════════════════════════════════════════════════

// User is the learner record. Identity is owned by the external identity
// provider (Auth0 subject); this engine only reads and updates the
// progress-related fields.
type User struct {
	ID            string
	Auth0ID       string
	Email         string
	FullName      string
	TotalXP       int
	CurrentStreak int
	LongestStreak int
	LastLoginAt   *time.Time
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Streak returns the streak-related slice of the user.
func (u *User) Streak() StreakState {
	return StreakState{
		LastLoginAt: u.LastLoginAt,
		Current:     u.CurrentStreak,
		Longest:     u.LongestStreak,
	}
}

// NewUserParams contains the fields needed to register a user.
type NewUserParams struct {
	ID       string
	Auth0ID  string
	Email    string
	FullName string
	Now      time.Time
}

// NewUser creates a user with zero XP and no streak.
func NewUser(p NewUserParams) (*User, error) {
	if strings.TrimSpace(p.ID) == "" {
		return nil, shared.NewDomainError("user", "NewUser", shared.ErrInvalidInput, "id is required")
	}
	if !strings.Contains(p.Email, "@") {
		return nil, shared.NewDomainError("user", "NewUser", shared.ErrInvalidInput, "email is invalid")
	}
	now := p.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return &User{
		ID:        p.ID,
		Auth0ID:   p.Auth0ID,
		Email:     strings.ToLower(strings.TrimSpace(p.Email)),
		FullName:  strings.TrimSpace(p.FullName),
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}
