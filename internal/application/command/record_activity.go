package command

import (
	"context"
	"time"

	"github.com/itlingo/progress-engine/internal/domain/progress"
	"github.com/itlingo/progress-engine/internal/domain/shared"
	"github.com/itlingo/progress-engine/pkg/logger"
	"github.com/itlingo/progress-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD DAILY ACTIVITY COMMAND
// Accumulates study time and counters into the bucket of one calendar day.
// ══════════════════════════════════════════════════════════════════════════════

// RecordActivityCommand contains the increments for one user and instant.
type RecordActivityCommand struct {
	UserID string

	// At selects the calendar day in the configured location.
	// Defaults to now if zero.
	At time.Time

	Delta progress.ActivityDelta
}

// Validate validates the command.
func (c RecordActivityCommand) Validate() error {
	if c.UserID == "" {
		return shared.NewDomainError("progress", "RecordDailyActivity", shared.ErrInvalidInput, "user_id is required")
	}
	return c.Delta.Validate()
}

// RecordDailyActivity adds cmd.Delta to the day's bucket. Repeated calls on
// the same day accumulate.
func (c *Coordinator) RecordDailyActivity(ctx context.Context, cmd RecordActivityCommand) (*progress.DailyActivity, error) {
	const op = "RecordDailyActivity"

	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	if _, err := c.requireUser(ctx, op, cmd.UserID); err != nil {
		return nil, err
	}

	at := cmd.At
	if at.IsZero() {
		at = c.now()
	}
	day := timeutil.StartOfDay(at, c.location)

	if err := c.progress.Ensure(ctx, cmd.UserID); err != nil {
		return nil, shared.Dependency("progress", op, err)
	}

	bucket, err := c.progress.IncrementDailyActivity(ctx, cmd.UserID, day, cmd.Delta)
	if err != nil {
		return nil, shared.Dependency("progress", op, err)
	}

	c.logFor(ctx).Info("daily activity recorded",
		logger.Operation(op),
		logger.UserID(cmd.UserID),
		logger.String("day", timeutil.FormatDateIn(day, c.location)),
		logger.Int("minutes", bucket.MinutesSpent),
		logger.XPAmount(bucket.XPEarned),
	)
	return &bucket, nil
}
