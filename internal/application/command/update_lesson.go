package command

import (
	"context"
	"fmt"
	"time"

	"github.com/itlingo/progress-engine/internal/domain/badge"
	"github.com/itlingo/progress-engine/internal/domain/progress"
	"github.com/itlingo/progress-engine/internal/domain/shared"
	"github.com/itlingo/progress-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// UPDATE LESSON STATUS COMMAND
// Starts or completes a lesson. Completion is credited exactly once.
// ══════════════════════════════════════════════════════════════════════════════

// UpdateLessonCommand moves a lesson to a new status for a user.
type UpdateLessonCommand struct {
	UserID   string
	LessonID string
	Status   progress.LessonStatus
}

// Validate validates the command.
func (c UpdateLessonCommand) Validate() error {
	if c.UserID == "" || c.LessonID == "" {
		return shared.NewDomainError("progress", "UpdateLesson", shared.ErrInvalidInput, "user_id and lesson_id are required")
	}
	switch c.Status {
	case progress.LessonNotStarted, progress.LessonInProgress, progress.LessonCompleted:
		return nil
	default:
		return shared.NewDomainError("progress", "UpdateLesson", shared.ErrInvalidInput, fmt.Sprintf("unknown status %q", c.Status))
	}
}

// UpdateLessonResult is the stored lesson entry plus any reward outcome.
type UpdateLessonResult struct {
	Lesson    progress.LessonProgress
	XPAwarded int
	TotalXP   int
	NewBadges []badge.Badge
}

// UpdateLessonStatus applies cmd. Completing an already completed lesson,
// or moving a completed lesson back, fails with Conflict and credits
// nothing. The store enforces the same rule, so of two concurrent
// completions only one is credited.
func (c *Coordinator) UpdateLessonStatus(ctx context.Context, cmd UpdateLessonCommand) (*UpdateLessonResult, error) {
	const op = "UpdateLessonStatus"
	start := time.Now()

	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	u, err := c.requireUser(ctx, op, cmd.UserID)
	if err != nil {
		return nil, err
	}

	lesson, err := c.catalog.GetLesson(ctx, cmd.LessonID)
	if err != nil {
		return nil, shared.Dependency("catalog", op, err)
	}

	if err := c.progress.Ensure(ctx, cmd.UserID); err != nil {
		return nil, shared.Dependency("progress", op, err)
	}

	current, err := c.progress.GetLesson(ctx, cmd.UserID, cmd.LessonID)
	if err != nil {
		return nil, shared.Dependency("progress", op, err)
	}
	if err := progress.CheckTransition(current, cmd.Status); err != nil {
		return nil, err
	}

	now := c.now()
	entry := progress.LessonProgress{
		LessonID:  cmd.LessonID,
		Status:    cmd.Status,
		UpdatedAt: now,
	}
	if cmd.Status == progress.LessonCompleted {
		entry.CompletedAt = &now
		entry.XPEarned = lesson.XPReward
	}

	if err := c.progress.UpsertLesson(ctx, cmd.UserID, entry); err != nil {
		return nil, shared.Dependency("progress", op, err)
	}

	res := &UpdateLessonResult{Lesson: entry, TotalXP: u.TotalXP}
	if cmd.Status != progress.LessonCompleted {
		c.logFor(ctx).Info("lesson status updated",
			logger.Operation(op),
			logger.UserID(cmd.UserID),
			logger.LessonID(cmd.LessonID),
			logger.String("status", string(cmd.Status)),
			logger.Latency(time.Since(start)),
		)
		return res, nil
	}

	res.XPAwarded = lesson.XPReward
	res.TotalXP, res.NewBadges, err = c.creditXP(ctx, cmd.UserID, lesson.XPReward)
	if err != nil {
		return nil, err
	}

	if c.extendedTriggers(cmd.UserID) {
		completed, err := c.progress.CountCompletedLessons(ctx, cmd.UserID)
		if err != nil {
			return nil, shared.Dependency("progress", op, err)
		}
		more, total, err := c.settleBadges(ctx, cmd.UserID, badge.ConditionLessonCount, completed, res.TotalXP)
		if err != nil {
			return nil, err
		}
		res.NewBadges = append(res.NewBadges, more...)
		res.TotalXP = total
	}

	c.logFor(ctx).Info("lesson completed",
		logger.Operation(op),
		logger.UserID(cmd.UserID),
		logger.LessonID(cmd.LessonID),
		logger.XPAmount(res.XPAwarded),
		logger.Int("badges", len(res.NewBadges)),
		logger.Latency(time.Since(start)),
	)
	return res, nil
}
