package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itlingo/progress-engine/internal/domain/badge"
	"github.com/itlingo/progress-engine/internal/domain/progress"
	"github.com/itlingo/progress-engine/internal/domain/quiz"
	"github.com/itlingo/progress-engine/internal/domain/shared"
	"github.com/itlingo/progress-engine/internal/domain/user"
)

var now = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func newStoreWithUser(t *testing.T) *Store {
	t.Helper()
	s := New()
	u, err := user.NewUser(user.NewUserParams{ID: "u1", Auth0ID: "auth0|1", Email: "ann@example.com", Now: now})
	require.NoError(t, err)
	require.NoError(t, s.Users().Create(context.Background(), u))
	return s
}

func TestUserRepo(t *testing.T) {
	ctx := context.Background()
	s := newStoreWithUser(t)
	users := s.Users()

	dup, _ := user.NewUser(user.NewUserParams{ID: "u2", Email: "ANN@example.com"})
	assert.True(t, shared.IsConflict(users.Create(ctx, dup)))

	total, err := users.AddXP(ctx, "u1", 25)
	require.NoError(t, err)
	assert.Equal(t, 25, total)

	total, err = users.AddXP(ctx, "u1", -100)
	require.NoError(t, err)
	assert.Equal(t, 0, total)

	_, err = users.AddXP(ctx, "ghost", 1)
	assert.True(t, shared.IsNotFound(err))

	u, err := users.RecordLogin(ctx, "u1", now, user.StreakState{Current: 3, Longest: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, u.LongestStreak)

	u, err = users.RecordLogin(ctx, "u1", now.Add(72*time.Hour), user.StreakState{Current: 1, Longest: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, u.CurrentStreak)
	assert.Equal(t, 3, u.LongestStreak)
}

func TestProgressRepo_Lessons(t *testing.T) {
	ctx := context.Background()
	s := newStoreWithUser(t)
	repo := s.Progress()

	_, err := repo.Get(ctx, "u1")
	assert.True(t, shared.IsNotFound(err))

	require.NoError(t, repo.Ensure(ctx, "u1"))
	require.NoError(t, repo.Ensure(ctx, "u1"))
	assert.True(t, shared.IsNotFound(repo.Ensure(ctx, "ghost")))

	require.NoError(t, repo.UpsertLesson(ctx, "u1", progress.LessonProgress{LessonID: "b", Status: progress.LessonInProgress}))
	require.NoError(t, repo.UpsertLesson(ctx, "u1", progress.LessonProgress{LessonID: "a", Status: progress.LessonCompleted, CompletedAt: &now}))
	require.NoError(t, repo.UpsertLesson(ctx, "u1", progress.LessonProgress{LessonID: "b", Status: progress.LessonCompleted, CompletedAt: &now}))

	err = repo.UpsertLesson(ctx, "u1", progress.LessonProgress{LessonID: "a", Status: progress.LessonInProgress})
	assert.True(t, shared.IsConflict(err))

	agg, err := repo.Get(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, agg.Lessons, 2)
	assert.Equal(t, "b", agg.Lessons[0].LessonID)

	n, err := repo.CountCompletedLessons(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Returned aggregates are copies.
	agg.Lessons[0].Status = progress.LessonNotStarted
	l, err := repo.GetLesson(ctx, "u1", "b")
	require.NoError(t, err)
	assert.Equal(t, progress.LessonCompleted, l.Status)

	missing, err := repo.GetLesson(ctx, "u1", "zzz")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestProgressRepo_ReviewsAreAtomic(t *testing.T) {
	ctx := context.Background()
	s := newStoreWithUser(t)
	repo := s.Progress()
	require.NoError(t, repo.Ensure(ctx, "u1"))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			counts, err := repo.IncrementReview(ctx, "u1", "v1", i%4 != 0, now)
			if err == nil {
				_ = repo.SetMasteryLevel(ctx, "u1", "v1", counts, counts.Level())
			}
		}(i)
	}
	wg.Wait()

	agg, err := repo.Get(ctx, "u1")
	require.NoError(t, err)
	m, ok := agg.Mastery("v1")
	require.True(t, ok)
	assert.Equal(t, 15, m.CorrectCount)
	assert.Equal(t, 5, m.IncorrectCount)
}

func TestProgressRepo_StaleLevelIsIgnored(t *testing.T) {
	ctx := context.Background()
	s := newStoreWithUser(t)
	repo := s.Progress()
	require.NoError(t, repo.Ensure(ctx, "u1"))

	stale, err := repo.IncrementReview(ctx, "u1", "v1", true, now)
	require.NoError(t, err)
	_, err = repo.IncrementReview(ctx, "u1", "v1", true, now)
	require.NoError(t, err)

	require.NoError(t, repo.SetMasteryLevel(ctx, "u1", "v1", stale, progress.MasteryMastered))

	agg, err := repo.Get(ctx, "u1")
	require.NoError(t, err)
	m, _ := agg.Mastery("v1")
	assert.Equal(t, progress.MasteryLearning, m.Level)
}

func TestProgressRepo_DailyActivity(t *testing.T) {
	ctx := context.Background()
	s := newStoreWithUser(t)
	repo := s.Progress()
	require.NoError(t, repo.Ensure(ctx, "u1"))

	d2 := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
	d1 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	_, err := repo.IncrementDailyActivity(ctx, "u1", d2, progress.ActivityDelta{MinutesSpent: 5})
	require.NoError(t, err)
	_, err = repo.IncrementDailyActivity(ctx, "u1", d1, progress.ActivityDelta{MinutesSpent: 1})
	require.NoError(t, err)
	b, err := repo.IncrementDailyActivity(ctx, "u1", d2, progress.ActivityDelta{MinutesSpent: 7, LessonsCompleted: 1})
	require.NoError(t, err)
	assert.Equal(t, 12, b.MinutesSpent)

	days, err := repo.ActivityRange(ctx, "u1", d1, d2)
	require.NoError(t, err)
	require.Len(t, days, 2)
	assert.Equal(t, d1, days[0].Day)
	assert.Equal(t, 1, days[1].LessonsCompleted)
}

func TestQuizRepo_RecordAttempt(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.PutQuiz(quiz.Quiz{ID: "q1", Questions: []quiz.Question{{ID: "b", Position: 2}, {ID: "a", Position: 1}}})

	q, err := s.Quizzes().Get(ctx, "q1")
	require.NoError(t, err)
	assert.Equal(t, "a", q.Questions[0].ID)

	for _, score := range []int{100, 50, 75} {
		_, err := s.Quizzes().RecordAttempt(ctx, "q1", score)
		require.NoError(t, err)
	}
	q, err = s.Quizzes().Get(ctx, "q1")
	require.NoError(t, err)
	assert.Equal(t, quiz.Stats{TotalAttempts: 3, AverageScore: 75}, q.Stats)
}

func TestBadgeRepo(t *testing.T) {
	ctx := context.Background()
	s := newStoreWithUser(t)
	s.PutBadge(badge.Badge{ID: "xp100", Condition: badge.ConditionXPTotal, Threshold: 100, IsActive: true})
	s.PutBadge(badge.Badge{ID: "xp10", Condition: badge.ConditionXPTotal, Threshold: 10, IsActive: true})
	s.PutBadge(badge.Badge{ID: "old", Condition: badge.ConditionXPTotal, Threshold: 1, IsActive: false})
	repo := s.Badges()

	got, err := repo.Qualifying(ctx, badge.ConditionXPTotal, 150)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "xp10", got[0].ID)

	first, created, err := repo.Award(ctx, "u1", "xp10", now)
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := repo.Award(ctx, "u1", "xp10", now.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first, again)

	_, _, err = repo.Award(ctx, "u1", "missing", now)
	assert.True(t, shared.IsNotFound(err))

	held, err := repo.HeldBadgeIDs(ctx, "u1")
	require.NoError(t, err)
	assert.Contains(t, held, "xp10")
}
