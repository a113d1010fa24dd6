package command

import (
	"context"
	"strings"

	"github.com/itlingo/progress-engine/internal/domain/access"
	"github.com/itlingo/progress-engine/internal/domain/badge"
	"github.com/itlingo/progress-engine/internal/domain/shared"
	"github.com/itlingo/progress-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// CORRECT XP COMMAND
// The only path that may lower a user's XP total.
// ══════════════════════════════════════════════════════════════════════════════

// CorrectXPCommand is an administrative XP adjustment.
type CorrectXPCommand struct {
	Actor  access.Capabilities
	UserID string
	Delta  int
	Reason string
}

// Validate validates the command.
func (c CorrectXPCommand) Validate() error {
	if c.UserID == "" {
		return shared.NewDomainError("user", "CorrectXP", shared.ErrInvalidInput, "user_id is required")
	}
	if c.Delta == 0 {
		return shared.NewDomainError("user", "CorrectXP", shared.ErrInvalidInput, "delta must be non-zero")
	}
	if strings.TrimSpace(c.Reason) == "" {
		return shared.NewDomainError("user", "CorrectXP", shared.ErrInvalidInput, "reason is required")
	}
	return nil
}

// CorrectXPResult reports the corrected total.
type CorrectXPResult struct {
	TotalXP   int
	NewBadges []badge.Badge
}

// CorrectXP adjusts XP by cmd.Delta. The total is clamped at zero. Badges
// already held are never revoked.
func (c *Coordinator) CorrectXP(ctx context.Context, cmd CorrectXPCommand) (*CorrectXPResult, error) {
	const op = "CorrectXP"

	if !cmd.Actor.Allows(access.Any, access.CorrectXP) {
		return nil, shared.NewDomainError("user", op, shared.ErrForbidden, "xp:correct capability required")
	}
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	if _, err := c.requireUser(ctx, op, cmd.UserID); err != nil {
		return nil, err
	}

	res := &CorrectXPResult{}
	var err error
	if cmd.Delta > 0 {
		res.TotalXP, res.NewBadges, err = c.creditXP(ctx, cmd.UserID, cmd.Delta)
		if err != nil {
			return nil, err
		}
	} else {
		res.TotalXP, err = c.users.AddXP(ctx, cmd.UserID, cmd.Delta)
		if err != nil {
			return nil, shared.Dependency("user", op, err)
		}
		c.project(ctx, cmd.UserID, res.TotalXP)
	}

	c.logFor(ctx).Warn("xp corrected",
		logger.Operation(op),
		logger.UserID(cmd.UserID),
		logger.XPAmount(cmd.Delta),
		logger.Int("total_xp", res.TotalXP),
		logger.String("reason", cmd.Reason),
	)
	return res, nil
}
