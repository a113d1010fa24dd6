// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"time"

	"github.com/itlingo/progress-engine/internal/domain/progress"
	"github.com/itlingo/progress-engine/internal/domain/shared"
	"github.com/itlingo/progress-engine/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET PROGRESS QUERY
// Returns the full progress aggregate of a user together with the counters
// kept on the user record.
// ══════════════════════════════════════════════════════════════════════════════

// GetProgressQuery selects one user.
type GetProgressQuery struct {
	UserID string
}

// Validate validates the query.
func (q GetProgressQuery) Validate() error {
	if q.UserID == "" {
		return shared.NewDomainError("query", "GetProgress", shared.ErrInvalidInput, "user_id is required")
	}
	return nil
}

// LessonDTO is one lesson entry.
type LessonDTO struct {
	LessonID    string     `json:"lesson_id"`
	Status      string     `json:"status"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	XPEarned    int        `json:"xp_earned"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// QuizAttemptDTO is one stored attempt.
type QuizAttemptDTO struct {
	ID              string                  `json:"id"`
	QuizID          string                  `json:"quiz_id"`
	Score           int                     `json:"score"`
	Passed          bool                    `json:"passed"`
	CorrectCount    int                     `json:"correct_count"`
	TotalQuestions  int                     `json:"total_questions"`
	Answers         []progress.AnswerResult `json:"answers"`
	DurationSeconds int                     `json:"duration_seconds"`
	XPEarned        int                     `json:"xp_earned"`
	AttemptedAt     time.Time               `json:"attempted_at"`
}

// MasteryDTO is one vocabulary mastery entry.
type MasteryDTO struct {
	VocabularyID   string    `json:"vocabulary_id"`
	Level          string    `json:"level"`
	CorrectCount   int       `json:"correct_count"`
	IncorrectCount int       `json:"incorrect_count"`
	LastReviewedAt time.Time `json:"last_reviewed_at"`
}

// DailyActivityDTO is one day bucket.
type DailyActivityDTO struct {
	Date             string `json:"date"`
	MinutesSpent     int    `json:"minutes_spent"`
	XPEarned         int    `json:"xp_earned"`
	LessonsCompleted int    `json:"lessons_completed"`
	QuizzesCompleted int    `json:"quizzes_completed"`
}

// ProgressDTO is the read model returned by GetProgress.
type ProgressDTO struct {
	UserID        string `json:"user_id"`
	TotalXP       int    `json:"total_xp"`
	CurrentStreak int    `json:"current_streak"`
	LongestStreak int    `json:"longest_streak"`

	CompletedLessons int `json:"completed_lessons"`
	MasteredWords    int `json:"mastered_words"`

	Lessons       []LessonDTO        `json:"lessons"`
	QuizAttempts  []QuizAttemptDTO   `json:"quiz_attempts"`
	Vocabulary    []MasteryDTO       `json:"vocabulary"`
	DailyActivity []DailyActivityDTO `json:"daily_activity"`

	UpdatedAt time.Time `json:"updated_at"`
}

// GetProgressHandler serves GetProgressQuery.
type GetProgressHandler struct {
	users    user.Repository
	progress progress.Repository
	location *time.Location
}

// NewGetProgressHandler creates the handler. Dates are rendered in loc.
func NewGetProgressHandler(users user.Repository, progressRepo progress.Repository, loc *time.Location) *GetProgressHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &GetProgressHandler{users: users, progress: progressRepo, location: loc}
}

// Handle returns the user's progress. A user without any recorded progress
// gets an empty aggregate; an unknown user is NotFound.
func (h *GetProgressHandler) Handle(ctx context.Context, q GetProgressQuery) (*ProgressDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	u, err := h.users.Get(ctx, q.UserID)
	if err != nil {
		return nil, shared.Dependency("query", "GetProgress", err)
	}

	agg, err := h.progress.Get(ctx, q.UserID)
	switch {
	case shared.IsNotFound(err):
		agg = progress.NewAggregate(q.UserID, u.CreatedAt)
	case err != nil:
		return nil, shared.Dependency("query", "GetProgress", err)
	}

	return h.toDTO(u, agg), nil
}

func (h *GetProgressHandler) toDTO(u *user.User, agg *progress.Aggregate) *ProgressDTO {
	dto := &ProgressDTO{
		UserID:           u.ID,
		TotalXP:          u.TotalXP,
		CurrentStreak:    u.CurrentStreak,
		LongestStreak:    u.LongestStreak,
		CompletedLessons: agg.CompletedLessonCount(),
		MasteredWords:    agg.MasteredCount(),
		Lessons:          make([]LessonDTO, 0, len(agg.Lessons)),
		QuizAttempts:     make([]QuizAttemptDTO, 0, len(agg.QuizAttempts)),
		Vocabulary:       make([]MasteryDTO, 0, len(agg.Vocabulary)),
		DailyActivity:    activityDTOs(agg.DailyActivity, h.location),
		UpdatedAt:        agg.UpdatedAt,
	}

	for _, l := range agg.Lessons {
		dto.Lessons = append(dto.Lessons, LessonDTO{
			LessonID:    l.LessonID,
			Status:      string(l.Status),
			CompletedAt: l.CompletedAt,
			XPEarned:    l.XPEarned,
			UpdatedAt:   l.UpdatedAt,
		})
	}
	for _, a := range agg.QuizAttempts {
		dto.QuizAttempts = append(dto.QuizAttempts, QuizAttemptDTO{
			ID:              a.ID,
			QuizID:          a.QuizID,
			Score:           a.Score,
			Passed:          a.Passed,
			CorrectCount:    a.CorrectCount,
			TotalQuestions:  a.TotalQuestions,
			Answers:         a.Answers,
			DurationSeconds: a.DurationSeconds,
			XPEarned:        a.XPEarned,
			AttemptedAt:     a.AttemptedAt,
		})
	}
	for _, v := range agg.Vocabulary {
		dto.Vocabulary = append(dto.Vocabulary, MasteryDTO{
			VocabularyID:   v.VocabularyID,
			Level:          string(v.Level),
			CorrectCount:   v.CorrectCount,
			IncorrectCount: v.IncorrectCount,
			LastReviewedAt: v.LastReviewedAt,
		})
	}
	return dto
}
