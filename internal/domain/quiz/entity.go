// Package quiz contains quiz definitions and the scorer that turns a
// submission into a score, a pass verdict and an XP award.
package quiz

import "context"

// Question is one quiz question. Only CorrectAnswer takes part in scoring;
// Points is carried for display and future weighting.
type Question struct {
	ID            string
	Prompt        string
	Options       []string
	CorrectAnswer string
	Points        int
	Position      int
}

// Stats are the running aggregates maintained per quiz.
type Stats struct {
	TotalAttempts int
	AverageScore  int
}

// Quiz is a quiz definition with its ordered questions.
type Quiz struct {
	ID           string
	LessonID     string
	Title        string
	Questions    []Question
	PassingScore int // percent, 0-100
	XPReward     int
	IsPublished  bool
	Stats        Stats
}

// Repository is the store contract for quizzes.
type Repository interface {
	// Get returns the quiz with its questions ordered by position, or
	// ErrNotFound.
	Get(ctx context.Context, id string) (*Quiz, error)

	// RecordAttempt folds score into the running stats in one atomic
	// statement and returns the new stats.
	RecordAttempt(ctx context.Context, id string, score int) (Stats, error)
}
