package command

import (
	"context"

	"github.com/itlingo/progress-engine/internal/domain/badge"
	"github.com/itlingo/progress-engine/internal/domain/shared"
	"github.com/itlingo/progress-engine/pkg/logger"
)

// EvaluateBadgesCommand re-drives badge evaluation for one condition.
type EvaluateBadgesCommand struct {
	UserID    string
	Condition badge.ConditionType
}

// EvaluateBadges recomputes the metric for cmd.Condition from stored state
// and awards whatever is missing. Safe to repeat: awards are idempotent.
func (c *Coordinator) EvaluateBadges(ctx context.Context, cmd EvaluateBadgesCommand) ([]badge.Badge, error) {
	const op = "EvaluateBadges"

	if cmd.UserID == "" {
		return nil, shared.NewDomainError("badge", op, shared.ErrInvalidInput, "user_id is required")
	}
	if _, err := badge.ParseCondition(string(cmd.Condition)); err != nil {
		return nil, err
	}

	u, err := c.requireUser(ctx, op, cmd.UserID)
	if err != nil {
		return nil, err
	}

	value, err := c.metric(ctx, cmd.UserID, cmd.Condition, u.TotalXP, u.CurrentStreak)
	if err != nil {
		return nil, err
	}

	awarded, _, err := c.settleBadges(ctx, cmd.UserID, cmd.Condition, value, u.TotalXP)
	if err != nil {
		return nil, err
	}

	c.logFor(ctx).Info("badges evaluated",
		logger.Operation(op),
		logger.UserID(cmd.UserID),
		logger.String("condition", string(cmd.Condition)),
		logger.Int("value", value),
		logger.Int("awarded", len(awarded)),
	)
	return awarded, nil
}

// metric returns the current value a condition is compared against.
// quiz_score uses the best attempt so far.
func (c *Coordinator) metric(ctx context.Context, userID string, condition badge.ConditionType, totalXP, streak int) (int, error) {
	switch condition {
	case badge.ConditionXPTotal:
		return totalXP, nil
	case badge.ConditionStreakDays:
		return streak, nil
	case badge.ConditionLessonCount:
		n, err := c.progress.CountCompletedLessons(ctx, userID)
		return n, shared.Dependency("progress", "CountCompletedLessons", err)
	case badge.ConditionVocabularyMastered:
		n, err := c.progress.CountMastered(ctx, userID)
		return n, shared.Dependency("progress", "CountMastered", err)
	case badge.ConditionQuizScore:
		agg, err := c.progress.Get(ctx, userID)
		if shared.IsNotFound(err) {
			return 0, nil
		}
		if err != nil {
			return 0, shared.Dependency("progress", "Get", err)
		}
		best := 0
		for _, a := range agg.QuizAttempts {
			if a.Score > best {
				best = a.Score
			}
		}
		return best, nil
	default:
		return 0, shared.NewDomainError("badge", "EvaluateBadges", shared.ErrInvalidInput, "unknown condition "+string(condition))
	}
}
