// Package catalog exposes the read-mostly learning content the progress
// engine consults: lessons (XP reward, prerequisites) and vocabulary items
// (review statistics). Content authoring lives outside this module.
package catalog

import (
	"context"
	"time"
)

// Lesson is the subset of a lesson the engine needs.
type Lesson struct {
	ID            string
	TopicID       string
	Title         string
	XPReward      int
	Prerequisites []string
	IsPublished   bool
}

// Vocabulary is a vocabulary item with its running review statistics.
type Vocabulary struct {
	ID            string
	LessonID      string
	Word          string
	Translation   string
	TimesReviewed int
	AverageScore  int
	UpdatedAt     time.Time
}

// Repository is the lookup contract for catalog content.
type Repository interface {
	// GetLesson returns the lesson or ErrNotFound.
	GetLesson(ctx context.Context, id string) (*Lesson, error)

	// GetVocabulary returns the vocabulary item or ErrNotFound.
	GetVocabulary(ctx context.Context, id string) (*Vocabulary, error)

	// RecordVocabularyReview folds score (0-100) into the item's running
	// average and increments its review count in one atomic statement.
	RecordVocabularyReview(ctx context.Context, id string, score int) (*Vocabulary, error)
}

// MissingPrerequisites returns the prerequisites of l not in completed,
// in declaration order.
func (l *Lesson) MissingPrerequisites(completed func(lessonID string) bool) []string {
	var missing []string
	for _, id := range l.Prerequisites {
		if !completed(id) {
			missing = append(missing, id)
		}
	}
	return missing
}
