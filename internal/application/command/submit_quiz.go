package command

import (
	"context"
	"time"

	"github.com/itlingo/progress-engine/internal/domain/badge"
	"github.com/itlingo/progress-engine/internal/domain/progress"
	"github.com/itlingo/progress-engine/internal/domain/quiz"
	"github.com/itlingo/progress-engine/internal/domain/shared"
	"github.com/itlingo/progress-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SUBMIT QUIZ COMMAND
// Scores a submission, appends the attempt, updates quiz stats and credits XP.
// ══════════════════════════════════════════════════════════════════════════════

// SubmitQuizCommand is one quiz submission.
type SubmitQuizCommand struct {
	UserID          string
	QuizID          string
	Answers         map[string]string // question id -> submitted value
	DurationSeconds int
}

// Validate validates the command.
func (c SubmitQuizCommand) Validate() error {
	if c.UserID == "" || c.QuizID == "" {
		return shared.NewDomainError("quiz", "SubmitQuiz", shared.ErrInvalidInput, "user_id and quiz_id are required")
	}
	if c.DurationSeconds < 0 {
		return shared.NewDomainError("quiz", "SubmitQuiz", shared.ErrInvalidInput, "duration must be non-negative")
	}
	return nil
}

// SubmitQuizResult is returned to the caller.
type SubmitQuizResult struct {
	AttemptID      string
	Score          int
	Passed         bool
	XPAwarded      int
	CorrectCount   int
	TotalQuestions int
	TotalXP        int
	QuizStats      quiz.Stats
	NewBadges      []badge.Badge
}

// SubmitQuiz scores and records an attempt. Every call is a new attempt.
func (c *Coordinator) SubmitQuiz(ctx context.Context, cmd SubmitQuizCommand) (*SubmitQuizResult, error) {
	const op = "SubmitQuiz"
	start := time.Now()

	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	q, err := c.quizzes.Get(ctx, cmd.QuizID)
	if err != nil {
		return nil, shared.Dependency("quiz", op, err)
	}
	if !q.IsPublished {
		return nil, shared.NewDomainError("quiz", op, shared.ErrNotFound, "quiz not found: "+cmd.QuizID)
	}

	if _, err := c.requireUser(ctx, op, cmd.UserID); err != nil {
		return nil, err
	}

	scored, err := quiz.Score(q, cmd.Answers)
	if err != nil {
		return nil, err
	}

	if err := c.progress.Ensure(ctx, cmd.UserID); err != nil {
		return nil, shared.Dependency("progress", op, err)
	}

	attempt := progress.QuizAttempt{
		ID:              c.newID(),
		QuizID:          q.ID,
		Score:           scored.ScorePercent,
		Passed:          scored.Passed,
		CorrectCount:    scored.CorrectCount,
		TotalQuestions:  scored.TotalQuestions,
		Answers:         answerResults(scored.Answers),
		DurationSeconds: cmd.DurationSeconds,
		XPEarned:        scored.XPAwarded,
		AttemptedAt:     c.now(),
	}
	if err := c.progress.AppendQuizAttempt(ctx, cmd.UserID, attempt); err != nil {
		return nil, shared.Dependency("progress", op, err)
	}

	stats, err := c.quizzes.RecordAttempt(ctx, q.ID, scored.ScorePercent)
	if err != nil {
		return nil, shared.Dependency("quiz", op, err)
	}

	total, awarded, err := c.creditXP(ctx, cmd.UserID, scored.XPAwarded)
	if err != nil {
		return nil, err
	}

	if c.extendedTriggers(cmd.UserID) {
		more, t, err := c.settleBadges(ctx, cmd.UserID, badge.ConditionQuizScore, scored.ScorePercent, total)
		if err != nil {
			return nil, err
		}
		awarded = append(awarded, more...)
		total = t
	}

	c.logFor(ctx).Info("quiz submitted",
		logger.Operation(op),
		logger.UserID(cmd.UserID),
		logger.QuizID(q.ID),
		logger.Int("score", scored.ScorePercent),
		logger.Bool("passed", scored.Passed),
		logger.XPAmount(scored.XPAwarded),
		logger.Latency(time.Since(start)),
	)

	return &SubmitQuizResult{
		AttemptID:      attempt.ID,
		Score:          scored.ScorePercent,
		Passed:         scored.Passed,
		XPAwarded:      scored.XPAwarded,
		CorrectCount:   scored.CorrectCount,
		TotalQuestions: scored.TotalQuestions,
		TotalXP:        total,
		QuizStats:      stats,
		NewBadges:      awarded,
	}, nil
}

func answerResults(outcomes []quiz.AnswerOutcome) []progress.AnswerResult {
	out := make([]progress.AnswerResult, len(outcomes))
	for i, o := range outcomes {
		out[i] = progress.AnswerResult{QuestionID: o.QuestionID, Submitted: o.Submitted, Correct: o.Correct}
	}
	return out
}
