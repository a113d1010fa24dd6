// Package memory is a process-local implementation of every repository
// contract. It honours the same atomicity rules as the SQL stores (one
// mutex serialises each targeted update) and is used by tests and by
// DB_DRIVER=memory runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/itlingo/progress-engine/internal/domain/badge"
	"github.com/itlingo/progress-engine/internal/domain/catalog"
	"github.com/itlingo/progress-engine/internal/domain/progress"
	"github.com/itlingo/progress-engine/internal/domain/quiz"
	"github.com/itlingo/progress-engine/internal/domain/shared"
	"github.com/itlingo/progress-engine/internal/domain/user"
)

// Store holds all state behind one lock.
type Store struct {
	mu sync.Mutex

	users      map[string]*user.User
	aggregates map[string]*progress.Aggregate
	quizzes    map[string]*quiz.Quiz
	lessons    map[string]*catalog.Lesson
	vocabulary map[string]*catalog.Vocabulary
	badges     map[string]badge.Badge
	awards     map[string]map[string]badge.UserBadge // user -> badge -> award

	now   func() time.Time
	newID func() string
}

// New creates an empty store.
func New() *Store {
	return &Store{
		users:      make(map[string]*user.User),
		aggregates: make(map[string]*progress.Aggregate),
		quizzes:    make(map[string]*quiz.Quiz),
		lessons:    make(map[string]*catalog.Lesson),
		vocabulary: make(map[string]*catalog.Vocabulary),
		badges:     make(map[string]badge.Badge),
		awards:     make(map[string]map[string]badge.UserBadge),
		now:        func() time.Time { return time.Now().UTC() },
		newID:      uuid.NewString,
	}
}

// Users returns the user repository view.
func (s *Store) Users() *UserRepo { return &UserRepo{s: s} }

// Progress returns the progress repository view.
func (s *Store) Progress() *ProgressRepo { return &ProgressRepo{s: s} }

// Quizzes returns the quiz repository view.
func (s *Store) Quizzes() *QuizRepo { return &QuizRepo{s: s} }

// Catalog returns the catalog repository view.
func (s *Store) Catalog() *CatalogRepo { return &CatalogRepo{s: s} }

// Badges returns the badge repository view.
func (s *Store) Badges() *BadgeRepo { return &BadgeRepo{s: s} }

// ══════════════════════════════════════════════════════════════════════════════
// SEEDING
// ══════════════════════════════════════════════════════════════════════════════

// PutQuiz stores a copy of q.
func (s *Store) PutQuiz(q quiz.Quiz) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q.Questions = append([]quiz.Question(nil), q.Questions...)
	s.quizzes[q.ID] = &q
}

// PutLesson stores a copy of l.
func (s *Store) PutLesson(l catalog.Lesson) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l.Prerequisites = append([]string(nil), l.Prerequisites...)
	s.lessons[l.ID] = &l
}

// PutVocabulary stores a copy of v.
func (s *Store) PutVocabulary(v catalog.Vocabulary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vocabulary[v.ID] = &v
}

// PutBadge stores a catalog badge.
func (s *Store) PutBadge(b badge.Badge) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.badges[b.ID] = b
}

// SaveQuiz upserts q, keeping the stats of an existing quiz.
func (s *Store) SaveQuiz(_ context.Context, q quiz.Quiz) error {
	s.mu.Lock()
	if existing, ok := s.quizzes[q.ID]; ok {
		q.Stats = existing.Stats
	}
	s.mu.Unlock()
	s.PutQuiz(q)
	return nil
}

// SaveLesson upserts l.
func (s *Store) SaveLesson(_ context.Context, l catalog.Lesson) error {
	s.PutLesson(l)
	return nil
}

// SaveVocabulary upserts v, keeping the review stats of an existing item.
func (s *Store) SaveVocabulary(_ context.Context, v catalog.Vocabulary) error {
	s.mu.Lock()
	if existing, ok := s.vocabulary[v.ID]; ok {
		v.TimesReviewed, v.AverageScore = existing.TimesReviewed, existing.AverageScore
	}
	v.UpdatedAt = s.now()
	s.mu.Unlock()
	s.PutVocabulary(v)
	return nil
}

// SaveBadge upserts b.
func (s *Store) SaveBadge(_ context.Context, b badge.Badge) error {
	s.PutBadge(b)
	return nil
}

// AwardCount returns how many awards exist for (userID, badgeID).
func (s *Store) AwardCount(userID, badgeID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.awards[userID][badgeID]; ok {
		return 1
	}
	return 0
}

func notFound(domain, op, what, id string) error {
	return shared.NewDomainError(domain, op, shared.ErrNotFound, what+" not found: "+id)
}

// ══════════════════════════════════════════════════════════════════════════════
// USERS
// ══════════════════════════════════════════════════════════════════════════════

// UserRepo implements user.Repository.
type UserRepo struct{ s *Store }

var _ user.Repository = (*UserRepo)(nil)

func cloneUser(u *user.User) *user.User {
	c := *u
	if u.LastLoginAt != nil {
		t := *u.LastLoginAt
		c.LastLoginAt = &t
	}
	return &c
}

func (r *UserRepo) Create(_ context.Context, u *user.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[u.ID]; ok {
		return shared.NewDomainError("user", "Create", shared.ErrConflict, "user already exists: "+u.ID)
	}
	for _, existing := range r.s.users {
		if existing.Email == u.Email || (u.Auth0ID != "" && existing.Auth0ID == u.Auth0ID) {
			return shared.NewDomainError("user", "Create", shared.ErrConflict, "email or identity already registered")
		}
	}
	r.s.users[u.ID] = cloneUser(u)
	return nil
}

func (r *UserRepo) Get(_ context.Context, id string) (*user.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[id]
	if !ok {
		return nil, notFound("user", "Get", "user", id)
	}
	return cloneUser(u), nil
}

func (r *UserRepo) AddXP(_ context.Context, id string, delta int) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[id]
	if !ok {
		return 0, notFound("user", "AddXP", "user", id)
	}
	u.TotalXP += delta
	if u.TotalXP < 0 {
		u.TotalXP = 0
	}
	u.UpdatedAt = r.s.now()
	return u.TotalXP, nil
}

func (r *UserRepo) RecordLogin(_ context.Context, id string, at time.Time, next user.StreakState) (*user.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[id]
	if !ok {
		return nil, notFound("user", "RecordLogin", "user", id)
	}
	u.LastLoginAt = &at
	u.CurrentStreak = next.Current
	if next.Longest > u.LongestStreak {
		u.LongestStreak = next.Longest
	}
	if u.CurrentStreak > u.LongestStreak {
		u.LongestStreak = u.CurrentStreak
	}
	u.UpdatedAt = r.s.now()
	return cloneUser(u), nil
}

func (r *UserRepo) TopByXP(_ context.Context, limit int) ([]*user.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	out := make([]*user.User, 0, len(r.s.users))
	for _, u := range r.s.users {
		if u.IsActive {
			out = append(out, cloneUser(u))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalXP != out[j].TotalXP {
			return out[i].TotalXP > out[j].TotalXP
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
