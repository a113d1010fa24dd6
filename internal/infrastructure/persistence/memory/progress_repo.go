package memory

import (
	"context"
	"sort"
	"time"

	"github.com/itlingo/progress-engine/internal/domain/progress"
	"github.com/itlingo/progress-engine/internal/domain/shared"
)

// ProgressRepo implements progress.Repository.
type ProgressRepo struct{ s *Store }

var _ progress.Repository = (*ProgressRepo)(nil)

func cloneAggregate(a *progress.Aggregate) *progress.Aggregate {
	c := *a
	c.Lessons = append([]progress.LessonProgress(nil), a.Lessons...)
	c.QuizAttempts = make([]progress.QuizAttempt, len(a.QuizAttempts))
	for i, q := range a.QuizAttempts {
		q.Answers = append([]progress.AnswerResult(nil), q.Answers...)
		c.QuizAttempts[i] = q
	}
	c.Vocabulary = append([]progress.VocabularyMastery(nil), a.Vocabulary...)
	c.DailyActivity = append([]progress.DailyActivity(nil), a.DailyActivity...)
	return &c
}

// aggregate returns the live aggregate; callers hold the lock.
func (r *ProgressRepo) aggregate(op, userID string) (*progress.Aggregate, error) {
	a, ok := r.s.aggregates[userID]
	if !ok {
		return nil, notFound("progress", op, "progress", userID)
	}
	return a, nil
}

func (r *ProgressRepo) Ensure(_ context.Context, userID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[userID]; !ok {
		return notFound("progress", "Ensure", "user", userID)
	}
	if _, ok := r.s.aggregates[userID]; !ok {
		r.s.aggregates[userID] = progress.NewAggregate(userID, r.s.now())
	}
	return nil
}

func (r *ProgressRepo) Get(_ context.Context, userID string) (*progress.Aggregate, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	a, err := r.aggregate("Get", userID)
	if err != nil {
		return nil, err
	}
	return cloneAggregate(a), nil
}

func (r *ProgressRepo) GetLesson(_ context.Context, userID, lessonID string) (*progress.LessonProgress, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	a, ok := r.s.aggregates[userID]
	if !ok {
		return nil, nil
	}
	if l, found := a.Lesson(lessonID); found {
		return &l, nil
	}
	return nil, nil
}

func (r *ProgressRepo) UpsertLesson(_ context.Context, userID string, entry progress.LessonProgress) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	a, err := r.aggregate("UpsertLesson", userID)
	if err != nil {
		return err
	}
	a.UpdatedAt = r.s.now()
	for i := range a.Lessons {
		if a.Lessons[i].LessonID != entry.LessonID {
			continue
		}
		if a.Lessons[i].IsCompleted() {
			return shared.NewDomainError("progress", "UpsertLesson", shared.ErrConflict, "lesson already completed")
		}
		a.Lessons[i] = entry
		return nil
	}
	a.Lessons = append(a.Lessons, entry)
	return nil
}

func (r *ProgressRepo) AppendQuizAttempt(_ context.Context, userID string, attempt progress.QuizAttempt) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	a, err := r.aggregate("AppendQuizAttempt", userID)
	if err != nil {
		return err
	}
	attempt.Answers = append([]progress.AnswerResult(nil), attempt.Answers...)
	a.QuizAttempts = append(a.QuizAttempts, attempt)
	a.UpdatedAt = r.s.now()
	return nil
}

func (r *ProgressRepo) IncrementReview(_ context.Context, userID, vocabularyID string, correct bool, at time.Time) (progress.ReviewCounts, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	a, err := r.aggregate("IncrementReview", userID)
	if err != nil {
		return progress.ReviewCounts{}, err
	}
	a.UpdatedAt = r.s.now()

	for i := range a.Vocabulary {
		v := &a.Vocabulary[i]
		if v.VocabularyID != vocabularyID {
			continue
		}
		counts := v.Counts().Apply(correct)
		v.CorrectCount, v.IncorrectCount = counts.Correct, counts.Incorrect
		v.LastReviewedAt = at
		return counts, nil
	}

	counts := progress.ReviewCounts{}.Apply(correct)
	a.Vocabulary = append(a.Vocabulary, progress.VocabularyMastery{
		VocabularyID:   vocabularyID,
		Level:          progress.MasteryLearning,
		CorrectCount:   counts.Correct,
		IncorrectCount: counts.Incorrect,
		LastReviewedAt: at,
	})
	return counts, nil
}

func (r *ProgressRepo) SetMasteryLevel(_ context.Context, userID, vocabularyID string, counts progress.ReviewCounts, level progress.MasteryLevel) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	a, err := r.aggregate("SetMasteryLevel", userID)
	if err != nil {
		return err
	}
	for i := range a.Vocabulary {
		v := &a.Vocabulary[i]
		if v.VocabularyID == vocabularyID && v.Counts() == counts {
			v.Level = level
		}
	}
	return nil
}

func (r *ProgressRepo) IncrementDailyActivity(_ context.Context, userID string, day time.Time, delta progress.ActivityDelta) (progress.DailyActivity, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	a, err := r.aggregate("IncrementDailyActivity", userID)
	if err != nil {
		return progress.DailyActivity{}, err
	}
	a.UpdatedAt = r.s.now()

	for i := range a.DailyActivity {
		if a.DailyActivity[i].Day.Equal(day) {
			a.DailyActivity[i] = a.DailyActivity[i].Add(delta)
			return a.DailyActivity[i], nil
		}
	}

	bucket := progress.DailyActivity{Day: day}.Add(delta)
	a.DailyActivity = append(a.DailyActivity, bucket)
	sort.Slice(a.DailyActivity, func(i, j int) bool {
		return a.DailyActivity[i].Day.Before(a.DailyActivity[j].Day)
	})
	return bucket, nil
}

func (r *ProgressRepo) CountCompletedLessons(_ context.Context, userID string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	a, ok := r.s.aggregates[userID]
	if !ok {
		return 0, nil
	}
	return a.CompletedLessonCount(), nil
}

func (r *ProgressRepo) CountMastered(_ context.Context, userID string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	a, ok := r.s.aggregates[userID]
	if !ok {
		return 0, nil
	}
	return a.MasteredCount(), nil
}

func (r *ProgressRepo) ActivityRange(_ context.Context, userID string, from, to time.Time) ([]progress.DailyActivity, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	a, ok := r.s.aggregates[userID]
	if !ok {
		return nil, nil
	}
	var out []progress.DailyActivity
	for _, d := range a.DailyActivity {
		if !d.Day.Before(from) && !d.Day.After(to) {
			out = append(out, d)
		}
	}
	return out, nil
}
