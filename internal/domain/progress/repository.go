package progress

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACE
// Every mutation is a targeted update of one sub-entry (match by key, then
// set or increment). Nothing replaces the whole aggregate.
// ══════════════════════════════════════════════════════════════════════════════

// Repository is the store contract for progress aggregates.
type Repository interface {
	// Ensure creates the aggregate for userID if it does not exist yet.
	// Concurrent calls create exactly one.
	Ensure(ctx context.Context, userID string) error

	// Get returns the full aggregate or ErrNotFound when none exists.
	Get(ctx context.Context, userID string) (*Aggregate, error)

	// GetLesson returns the lesson entry, or nil if the user has none.
	GetLesson(ctx context.Context, userID, lessonID string) (*LessonProgress, error)

	// UpsertLesson inserts or updates one lesson entry. The write only
	// applies while the stored entry is not completed; if it is, the call
	// returns ErrConflict and changes nothing.
	UpsertLesson(ctx context.Context, userID string, entry LessonProgress) error

	// AppendQuizAttempt appends an immutable attempt record.
	AppendQuizAttempt(ctx context.Context, userID string, attempt QuizAttempt) error

	// IncrementReview atomically bumps the correct or incorrect counter of
	// one vocabulary entry (creating it at zero) and returns the new counts.
	IncrementReview(ctx context.Context, userID, vocabularyID string, correct bool, at time.Time) (ReviewCounts, error)

	// SetMasteryLevel stores level only if the entry still holds counts,
	// so an older classification cannot overwrite a newer one.
	SetMasteryLevel(ctx context.Context, userID, vocabularyID string, counts ReviewCounts, level MasteryLevel) error

	// IncrementDailyActivity adds delta to the bucket for day, creating it
	// if needed, and returns the accumulated bucket.
	IncrementDailyActivity(ctx context.Context, userID string, day time.Time, delta ActivityDelta) (DailyActivity, error)

	// CountCompletedLessons counts completed lesson entries.
	CountCompletedLessons(ctx context.Context, userID string) (int, error)

	// CountMastered counts vocabulary entries at the mastered level.
	CountMastered(ctx context.Context, userID string) (int, error)

	// ActivityRange returns buckets with from <= day <= to, ascending.
	ActivityRange(ctx context.Context, userID string, from, to time.Time) ([]DailyActivity, error)
}
