package command

import (
	"context"
	"time"

	"github.com/itlingo/progress-engine/internal/domain/badge"
	"github.com/itlingo/progress-engine/internal/domain/progress"
	"github.com/itlingo/progress-engine/internal/domain/shared"
	"github.com/itlingo/progress-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// REVIEW VOCABULARY COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// ReviewVocabularyCommand records one review of a vocabulary item.
type ReviewVocabularyCommand struct {
	UserID       string
	VocabularyID string
	Correct      bool

	// Score is an optional 0-100 grade folded into the item's statistics.
	Score *int
}

// Validate validates the command.
func (c ReviewVocabularyCommand) Validate() error {
	if c.UserID == "" || c.VocabularyID == "" {
		return shared.NewDomainError("progress", "ReviewVocabulary", shared.ErrInvalidInput, "user_id and vocabulary_id are required")
	}
	if c.Score != nil && (*c.Score < 0 || *c.Score > 100) {
		return shared.NewDomainError("progress", "ReviewVocabulary", shared.ErrInvalidInput, "score must be 0-100")
	}
	return nil
}

// ReviewVocabularyResult carries the updated mastery entry.
type ReviewVocabularyResult struct {
	Mastery   progress.VocabularyMastery
	NewBadges []badge.Badge
}

// ReviewVocabulary increments the review counter atomically, classifies the
// new counts and stores the level. The level write is conditional on the
// counts it was computed from, so a slower concurrent review cannot
// overwrite a newer level.
func (c *Coordinator) ReviewVocabulary(ctx context.Context, cmd ReviewVocabularyCommand) (*ReviewVocabularyResult, error) {
	const op = "ReviewVocabulary"
	start := time.Now()

	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	u, err := c.requireUser(ctx, op, cmd.UserID)
	if err != nil {
		return nil, err
	}
	if _, err := c.catalog.GetVocabulary(ctx, cmd.VocabularyID); err != nil {
		return nil, shared.Dependency("catalog", op, err)
	}

	if err := c.progress.Ensure(ctx, cmd.UserID); err != nil {
		return nil, shared.Dependency("progress", op, err)
	}

	now := c.now()
	counts, err := c.progress.IncrementReview(ctx, cmd.UserID, cmd.VocabularyID, cmd.Correct, now)
	if err != nil {
		return nil, shared.Dependency("progress", op, err)
	}
	level := counts.Level()
	if err := c.progress.SetMasteryLevel(ctx, cmd.UserID, cmd.VocabularyID, counts, level); err != nil {
		return nil, shared.Dependency("progress", op, err)
	}

	if cmd.Score != nil {
		if _, err := c.catalog.RecordVocabularyReview(ctx, cmd.VocabularyID, *cmd.Score); err != nil {
			return nil, shared.Dependency("catalog", op, err)
		}
	}

	res := &ReviewVocabularyResult{
		Mastery: progress.VocabularyMastery{
			VocabularyID:   cmd.VocabularyID,
			Level:          level,
			CorrectCount:   counts.Correct,
			IncorrectCount: counts.Incorrect,
			LastReviewedAt: now,
		},
	}

	if c.extendedTriggers(cmd.UserID) && level == progress.MasteryMastered {
		mastered, err := c.progress.CountMastered(ctx, cmd.UserID)
		if err != nil {
			return nil, shared.Dependency("progress", op, err)
		}
		res.NewBadges, _, err = c.settleBadges(ctx, cmd.UserID, badge.ConditionVocabularyMastered, mastered, u.TotalXP)
		if err != nil {
			return nil, err
		}
	}

	c.logFor(ctx).Info("vocabulary reviewed",
		logger.Operation(op),
		logger.UserID(cmd.UserID),
		logger.VocabularyID(cmd.VocabularyID),
		logger.Bool("correct", cmd.Correct),
		logger.String("level", string(level)),
		logger.Latency(time.Since(start)),
	)
	return res, nil
}
