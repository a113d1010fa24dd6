package command

import (
	"context"
	"time"

	"github.com/itlingo/progress-engine/internal/domain/badge"
	"github.com/itlingo/progress-engine/internal/domain/shared"
	"github.com/itlingo/progress-engine/internal/domain/user"
	"github.com/itlingo/progress-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// LOGIN COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// LoginCommand records a login.
type LoginCommand struct {
	UserID string
	// At defaults to now if zero.
	At time.Time
}

// LoginResult reports the streak after the login.
type LoginResult struct {
	CurrentStreak  int
	LongestStreak  int
	LastLoginAt    time.Time
	StreakExtended bool
	NewBadges      []badge.Badge
}

// Login runs the streak transition, stores last_login_at and the counters,
// then evaluates streak badges against the new streak.
func (c *Coordinator) Login(ctx context.Context, cmd LoginCommand) (*LoginResult, error) {
	const op = "Login"

	if cmd.UserID == "" {
		return nil, shared.NewDomainError("user", op, shared.ErrInvalidInput, "user_id is required")
	}

	u, err := c.requireUser(ctx, op, cmd.UserID)
	if err != nil {
		return nil, err
	}

	at := cmd.At
	if at.IsZero() {
		at = c.now()
	}

	prev := u.Streak()
	next := user.NextStreak(prev, at)

	stored, err := c.users.RecordLogin(ctx, cmd.UserID, at, next)
	if err != nil {
		return nil, shared.Dependency("user", op, err)
	}

	awarded, _, err := c.settleBadges(ctx, cmd.UserID, badge.ConditionStreakDays, next.Current, stored.TotalXP)
	if err != nil {
		return nil, err
	}

	c.logFor(ctx).Info("login recorded",
		logger.Operation(op),
		logger.UserID(cmd.UserID),
		logger.Streak(stored.CurrentStreak),
		logger.Int("longest_streak", stored.LongestStreak),
	)

	return &LoginResult{
		CurrentStreak:  stored.CurrentStreak,
		LongestStreak:  stored.LongestStreak,
		LastLoginAt:    at,
		StreakExtended: next.Extended(prev),
		NewBadges:      awarded,
	}, nil
}
