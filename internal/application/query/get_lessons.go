package query

import (
	"context"

	"github.com/itlingo/progress-engine/internal/domain/catalog"
	"github.com/itlingo/progress-engine/internal/domain/progress"
	"github.com/itlingo/progress-engine/internal/domain/shared"
	"github.com/itlingo/progress-engine/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// LESSON QUERIES
// Pending lessons and prerequisite checks.
// ══════════════════════════════════════════════════════════════════════════════

// PendingLessonsQuery asks which of LessonIDs are not completed yet.
type PendingLessonsQuery struct {
	UserID    string
	LessonIDs []string
}

// CanStartLessonQuery asks whether every prerequisite of LessonID is done.
type CanStartLessonQuery struct {
	UserID   string
	LessonID string
}

// CanStartLessonResult lists what still blocks the lesson.
type CanStartLessonResult struct {
	LessonID             string   `json:"lesson_id"`
	CanStart             bool     `json:"can_start"`
	MissingPrerequisites []string `json:"missing_prerequisites,omitempty"`
}

// LessonsHandler serves the lesson queries.
type LessonsHandler struct {
	users    user.Repository
	progress progress.Repository
	catalog  catalog.Repository
}

// NewLessonsHandler creates the handler.
func NewLessonsHandler(users user.Repository, progressRepo progress.Repository, catalogRepo catalog.Repository) *LessonsHandler {
	return &LessonsHandler{users: users, progress: progressRepo, catalog: catalogRepo}
}

// aggregate loads the user's aggregate, empty when nothing was recorded.
func (h *LessonsHandler) aggregate(ctx context.Context, op, userID string) (*progress.Aggregate, error) {
	if userID == "" {
		return nil, shared.NewDomainError("query", op, shared.ErrInvalidInput, "user_id is required")
	}
	u, err := h.users.Get(ctx, userID)
	if err != nil {
		return nil, shared.Dependency("query", op, err)
	}
	agg, err := h.progress.Get(ctx, userID)
	if shared.IsNotFound(err) {
		return progress.NewAggregate(userID, u.CreatedAt), nil
	}
	if err != nil {
		return nil, shared.Dependency("query", op, err)
	}
	return agg, nil
}

// PendingLessons returns the ids of q.LessonIDs the user has not
// completed, in input order.
func (h *LessonsHandler) PendingLessons(ctx context.Context, q PendingLessonsQuery) ([]string, error) {
	agg, err := h.aggregate(ctx, "PendingLessons", q.UserID)
	if err != nil {
		return nil, err
	}
	return agg.PendingLessons(q.LessonIDs), nil
}

// CanStartLesson checks the lesson's prerequisites against the user's
// completed lessons.
func (h *LessonsHandler) CanStartLesson(ctx context.Context, q CanStartLessonQuery) (*CanStartLessonResult, error) {
	const op = "CanStartLesson"
	if q.LessonID == "" {
		return nil, shared.NewDomainError("query", op, shared.ErrInvalidInput, "lesson_id is required")
	}

	agg, err := h.aggregate(ctx, op, q.UserID)
	if err != nil {
		return nil, err
	}
	lesson, err := h.catalog.GetLesson(ctx, q.LessonID)
	if err != nil {
		return nil, shared.Dependency("query", op, err)
	}

	missing := lesson.MissingPrerequisites(agg.IsLessonCompleted)
	return &CanStartLessonResult{
		LessonID:             q.LessonID,
		CanStart:             len(missing) == 0,
		MissingPrerequisites: missing,
	}, nil
}
