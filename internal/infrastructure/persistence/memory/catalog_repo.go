package memory

import (
	"context"
	"sort"
	"time"

	"github.com/itlingo/progress-engine/internal/domain/badge"
	"github.com/itlingo/progress-engine/internal/domain/catalog"
	"github.com/itlingo/progress-engine/internal/domain/quiz"
)

// ══════════════════════════════════════════════════════════════════════════════
// QUIZZES
// ══════════════════════════════════════════════════════════════════════════════

// QuizRepo implements quiz.Repository.
type QuizRepo struct{ s *Store }

var _ quiz.Repository = (*QuizRepo)(nil)

func (r *QuizRepo) Get(_ context.Context, id string) (*quiz.Quiz, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	q, ok := r.s.quizzes[id]
	if !ok {
		return nil, notFound("quiz", "Get", "quiz", id)
	}
	c := *q
	c.Questions = append([]quiz.Question(nil), q.Questions...)
	sort.SliceStable(c.Questions, func(i, j int) bool { return c.Questions[i].Position < c.Questions[j].Position })
	return &c, nil
}

func (r *QuizRepo) RecordAttempt(_ context.Context, id string, score int) (quiz.Stats, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	q, ok := r.s.quizzes[id]
	if !ok {
		return quiz.Stats{}, notFound("quiz", "RecordAttempt", "quiz", id)
	}
	q.Stats.AverageScore = quiz.RunningAverage(q.Stats.AverageScore, q.Stats.TotalAttempts, score)
	q.Stats.TotalAttempts++
	return q.Stats, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG
// ══════════════════════════════════════════════════════════════════════════════

// CatalogRepo implements catalog.Repository.
type CatalogRepo struct{ s *Store }

var _ catalog.Repository = (*CatalogRepo)(nil)

func (r *CatalogRepo) GetLesson(_ context.Context, id string) (*catalog.Lesson, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	l, ok := r.s.lessons[id]
	if !ok {
		return nil, notFound("catalog", "GetLesson", "lesson", id)
	}
	c := *l
	c.Prerequisites = append([]string(nil), l.Prerequisites...)
	return &c, nil
}

func (r *CatalogRepo) GetVocabulary(_ context.Context, id string) (*catalog.Vocabulary, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	v, ok := r.s.vocabulary[id]
	if !ok {
		return nil, notFound("catalog", "GetVocabulary", "vocabulary", id)
	}
	c := *v
	return &c, nil
}

func (r *CatalogRepo) RecordVocabularyReview(_ context.Context, id string, score int) (*catalog.Vocabulary, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	v, ok := r.s.vocabulary[id]
	if !ok {
		return nil, notFound("catalog", "RecordVocabularyReview", "vocabulary", id)
	}
	v.AverageScore = quiz.RunningAverage(v.AverageScore, v.TimesReviewed, score)
	v.TimesReviewed++
	v.UpdatedAt = r.s.now()
	c := *v
	return &c, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// BADGES
// ══════════════════════════════════════════════════════════════════════════════

// BadgeRepo implements badge.Repository.
type BadgeRepo struct{ s *Store }

var _ badge.Repository = (*BadgeRepo)(nil)

func (r *BadgeRepo) Qualifying(_ context.Context, condition badge.ConditionType, value int) ([]badge.Badge, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []badge.Badge
	for _, b := range r.s.badges {
		if b.Condition == condition && b.Qualifies(value) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Threshold != out[j].Threshold {
			return out[i].Threshold < out[j].Threshold
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *BadgeRepo) HeldBadgeIDs(_ context.Context, userID string) (map[string]struct{}, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	held := make(map[string]struct{}, len(r.s.awards[userID]))
	for id := range r.s.awards[userID] {
		held[id] = struct{}{}
	}
	return held, nil
}

func (r *BadgeRepo) Award(_ context.Context, userID, badgeID string, at time.Time) (badge.UserBadge, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[userID]; !ok {
		return badge.UserBadge{}, false, notFound("badge", "Award", "user", userID)
	}
	if _, ok := r.s.badges[badgeID]; !ok {
		return badge.UserBadge{}, false, notFound("badge", "Award", "badge", badgeID)
	}

	held, ok := r.s.awards[userID]
	if !ok {
		held = make(map[string]badge.UserBadge)
		r.s.awards[userID] = held
	}
	if existing, ok := held[badgeID]; ok {
		return existing, false, nil
	}
	ub := badge.UserBadge{ID: r.s.newID(), UserID: userID, BadgeID: badgeID, EarnedAt: at}
	held[badgeID] = ub
	return ub, true, nil
}

func (r *BadgeRepo) ListEarned(_ context.Context, userID string, limit int) ([]badge.Earned, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	out := make([]badge.Earned, 0, len(r.s.awards[userID]))
	for id, ub := range r.s.awards[userID] {
		out = append(out, badge.Earned{UserBadge: ub, Badge: r.s.badges[id]})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EarnedAt.Equal(out[j].EarnedAt) {
			return out[i].EarnedAt.After(out[j].EarnedAt)
		}
		return out[i].BadgeID < out[j].BadgeID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
