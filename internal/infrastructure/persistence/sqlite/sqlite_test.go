package sqlite

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itlingo/progress-engine/internal/domain/badge"
	"github.com/itlingo/progress-engine/internal/domain/catalog"
	"github.com/itlingo/progress-engine/internal/domain/progress"
	"github.com/itlingo/progress-engine/internal/domain/quiz"
	"github.com/itlingo/progress-engine/internal/domain/shared"
	"github.com/itlingo/progress-engine/internal/domain/user"
)

var testNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func openTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func seedUser(t *testing.T, db *DB, id string) {
	t.Helper()

	u, err := user.NewUser(user.NewUserParams{ID: id, Email: id + "@example.com", FullName: "User " + id, Now: testNow})
	require.NoError(t, err)
	require.NoError(t, NewUserRepository(db).Create(context.Background(), u))
}

func TestUserRepository(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewUserRepository(db)
	seedUser(t, db, "u1")
	seedUser(t, db, "u2")

	dup, err := user.NewUser(user.NewUserParams{ID: "u3", Email: "U1@example.com"})
	require.NoError(t, err)
	assert.True(t, shared.IsConflict(repo.Create(ctx, dup)))

	u, err := repo.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1@example.com", u.Email)
	assert.Empty(t, u.Auth0ID)
	assert.Nil(t, u.LastLoginAt)
	assert.True(t, u.CreatedAt.Equal(testNow))

	_, err = repo.Get(ctx, "missing")
	assert.True(t, shared.IsNotFound(err))

	total, err := repo.AddXP(ctx, "u2", 30)
	require.NoError(t, err)
	assert.Equal(t, 30, total)
	total, err = repo.AddXP(ctx, "u1", -5)
	require.NoError(t, err)
	assert.Equal(t, 0, total)
	_, err = repo.AddXP(ctx, "missing", 5)
	assert.True(t, shared.IsNotFound(err))

	u, err = repo.RecordLogin(ctx, "u1", testNow, user.StreakState{Current: 3, Longest: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, u.LongestStreak)
	u, err = repo.RecordLogin(ctx, "u1", testNow.Add(48*time.Hour), user.StreakState{Current: 1, Longest: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, u.CurrentStreak)
	assert.Equal(t, 3, u.LongestStreak)
	require.NotNil(t, u.LastLoginAt)
	assert.True(t, u.LastLoginAt.Equal(testNow.Add(48*time.Hour)))

	top, err := repo.TopByXP(ctx, 0)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "u2", top[0].ID)

	top, err = repo.TopByXP(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, top, 1)
}

func TestProgressRepository_Lessons(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewProgressRepository(db)
	seedUser(t, db, "u1")

	assert.True(t, shared.IsNotFound(repo.Ensure(ctx, "ghost")))
	_, err := repo.Get(ctx, "u1")
	assert.True(t, shared.IsNotFound(err))

	require.NoError(t, repo.Ensure(ctx, "u1"))
	require.NoError(t, repo.Ensure(ctx, "u1"))

	l, err := repo.GetLesson(ctx, "u1", "l1")
	require.NoError(t, err)
	assert.Nil(t, l)

	require.NoError(t, repo.UpsertLesson(ctx, "u1", progress.LessonProgress{LessonID: "l2", Status: progress.LessonInProgress, UpdatedAt: testNow}))
	require.NoError(t, repo.UpsertLesson(ctx, "u1", progress.LessonProgress{LessonID: "l1", Status: progress.LessonInProgress, UpdatedAt: testNow}))

	done := testNow.Add(time.Hour)
	require.NoError(t, repo.UpsertLesson(ctx, "u1", progress.LessonProgress{
		LessonID: "l1", Status: progress.LessonCompleted, CompletedAt: &done, XPEarned: 10, UpdatedAt: done,
	}))

	err = repo.UpsertLesson(ctx, "u1", progress.LessonProgress{LessonID: "l1", Status: progress.LessonInProgress, UpdatedAt: done})
	assert.True(t, shared.IsConflict(err))

	l, err = repo.GetLesson(ctx, "u1", "l1")
	require.NoError(t, err)
	require.NotNil(t, l)
	assert.Equal(t, progress.LessonCompleted, l.Status)
	assert.Equal(t, 10, l.XPEarned)
	require.NotNil(t, l.CompletedAt)
	assert.True(t, l.CompletedAt.Equal(done))

	n, err := repo.CountCompletedLessons(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	agg, err := repo.Get(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, agg.Lessons, 2)
	assert.Equal(t, "l2", agg.Lessons[0].LessonID)
	assert.Equal(t, "l1", agg.Lessons[1].LessonID)
}

func TestProgressRepository_AttemptsAndMastery(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewProgressRepository(db)
	seedUser(t, db, "u1")
	require.NoError(t, repo.Ensure(ctx, "u1"))

	require.NoError(t, repo.AppendQuizAttempt(ctx, "u1", progress.QuizAttempt{
		ID: "a1", QuizID: "q1", Score: 50, CorrectCount: 1, TotalQuestions: 2, XPEarned: 5, AttemptedAt: testNow,
		Answers: []progress.AnswerResult{{QuestionID: "x", Submitted: "1", Correct: true}, {QuestionID: "y", Submitted: "3"}},
	}))
	require.NoError(t, repo.AppendQuizAttempt(ctx, "u1", progress.QuizAttempt{
		ID: "a2", QuizID: "q1", Score: 100, Passed: true, CorrectCount: 2, TotalQuestions: 2, AttemptedAt: testNow,
	}))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			counts, err := repo.IncrementReview(ctx, "u1", "v1", i%4 != 0, testNow)
			if assert.NoError(t, err) {
				assert.NoError(t, repo.SetMasteryLevel(ctx, "u1", "v1", counts, counts.Level()))
			}
		}(i)
	}
	wg.Wait()

	agg, err := repo.Get(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, agg.QuizAttempts, 2)
	assert.Equal(t, "a1", agg.QuizAttempts[0].ID)
	assert.Len(t, agg.QuizAttempts[0].Answers, 2)
	assert.Empty(t, agg.QuizAttempts[1].Answers)

	m, ok := agg.Mastery("v1")
	require.True(t, ok)
	assert.Equal(t, 15, m.CorrectCount)
	assert.Equal(t, 5, m.IncorrectCount)
	assert.Equal(t, progress.MasteryMastered, m.Level)

	// A level computed from older counts is ignored.
	require.NoError(t, repo.SetMasteryLevel(ctx, "u1", "v1", progress.ReviewCounts{Correct: 1}, progress.MasteryLearning))
	n, err := repo.CountMastered(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestProgressRepository_DailyActivity(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewProgressRepository(db)
	seedUser(t, db, "u1")
	require.NoError(t, repo.Ensure(ctx, "u1"))

	day1 := time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)

	_, err := repo.IncrementDailyActivity(ctx, "u1", day2, progress.ActivityDelta{MinutesSpent: 10, XPEarned: 5})
	require.NoError(t, err)
	bucket, err := repo.IncrementDailyActivity(ctx, "u1", day2, progress.ActivityDelta{MinutesSpent: 15, QuizzesCompleted: 1})
	require.NoError(t, err)
	assert.Equal(t, 25, bucket.MinutesSpent)
	assert.Equal(t, 5, bucket.XPEarned)
	assert.Equal(t, 1, bucket.QuizzesCompleted)

	_, err = repo.IncrementDailyActivity(ctx, "u1", day1, progress.ActivityDelta{LessonsCompleted: 1})
	require.NoError(t, err)

	days, err := repo.ActivityRange(ctx, "u1", day1, day2)
	require.NoError(t, err)
	require.Len(t, days, 2)
	assert.True(t, days[0].Day.Equal(day1))
	assert.True(t, days[1].Day.Equal(day2))

	days, err = repo.ActivityRange(ctx, "u1", day2, day2)
	require.NoError(t, err)
	assert.Len(t, days, 1)
}

func TestQuizAndCatalogRepositories(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	seeder := NewSeeder(db)

	require.NoError(t, seeder.SaveQuiz(ctx, quiz.Quiz{
		ID: "q1", Title: "Greetings", PassingScore: 70, XPReward: 20, IsPublished: true,
		Questions: []quiz.Question{
			{ID: "b", CorrectAnswer: "2", Position: 2},
			{ID: "a", CorrectAnswer: "1", Position: 1, Options: []string{"1", "2", "3"}},
		},
	}))

	quizzes := NewQuizRepository(db)
	q, err := quizzes.Get(ctx, "q1")
	require.NoError(t, err)
	require.Len(t, q.Questions, 2)
	assert.Equal(t, "a", q.Questions[0].ID)
	assert.Equal(t, []string{"1", "2", "3"}, q.Questions[0].Options)
	assert.True(t, q.IsPublished)

	_, err = quizzes.Get(ctx, "missing")
	assert.True(t, shared.IsNotFound(err))

	_, err = quizzes.RecordAttempt(ctx, "q1", 100)
	require.NoError(t, err)
	stats, err := quizzes.RecordAttempt(ctx, "q1", 25)
	require.NoError(t, err)
	assert.Equal(t, quiz.Stats{TotalAttempts: 2, AverageScore: 63}, stats)

	// Re-seeding keeps stats and replaces questions.
	require.NoError(t, seeder.SaveQuiz(ctx, quiz.Quiz{ID: "q1", PassingScore: 80, Questions: []quiz.Question{{ID: "c", CorrectAnswer: "x"}}}))
	q, err = quizzes.Get(ctx, "q1")
	require.NoError(t, err)
	assert.Len(t, q.Questions, 1)
	assert.Equal(t, 2, q.Stats.TotalAttempts)

	require.NoError(t, seeder.SaveLesson(ctx, catalog.Lesson{ID: "l2", XPReward: 15, Prerequisites: []string{"l1"}}))
	require.NoError(t, seeder.SaveVocabulary(ctx, catalog.Vocabulary{ID: "v1", Word: "salem", Translation: "hello"}))

	lessons := NewCatalogRepository(db)
	l, err := lessons.GetLesson(ctx, "l2")
	require.NoError(t, err)
	assert.Equal(t, []string{"l1"}, l.Prerequisites)

	_, err = lessons.RecordVocabularyReview(ctx, "v1", 100)
	require.NoError(t, err)
	v, err := lessons.RecordVocabularyReview(ctx, "v1", 70)
	require.NoError(t, err)
	assert.Equal(t, 2, v.TimesReviewed)
	assert.Equal(t, 85, v.AverageScore)

	_, err = lessons.GetVocabulary(ctx, "missing")
	assert.True(t, shared.IsNotFound(err))
}

func TestBadgeRepository(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	seedUser(t, db, "u1")
	seeder := NewSeeder(db)

	for _, b := range []badge.Badge{
		{ID: "b-10", Name: "Ten", Condition: badge.ConditionXPTotal, Threshold: 10, IsActive: true},
		{ID: "b-50", Name: "Fifty", Condition: badge.ConditionXPTotal, Threshold: 50, IsActive: true},
		{ID: "b-off", Name: "Retired", Condition: badge.ConditionXPTotal, Threshold: 1},
		{ID: "b-streak", Name: "Streak", Condition: badge.ConditionStreakDays, Threshold: 1, IsActive: true},
	} {
		require.NoError(t, seeder.SaveBadge(ctx, b))
	}

	repo := NewBadgeRepository(db)
	qualifying, err := repo.Qualifying(ctx, badge.ConditionXPTotal, 60)
	require.NoError(t, err)
	require.Len(t, qualifying, 2)
	assert.Equal(t, "b-10", qualifying[0].ID)
	assert.Equal(t, "b-50", qualifying[1].ID)

	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, isNew, err := repo.Award(ctx, "u1", "b-10", testNow)
			if assert.NoError(t, err) && isNew {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, created)

	_, _, err = repo.Award(ctx, "u1", "b-50", testNow.Add(time.Minute))
	require.NoError(t, err)
	_, _, err = repo.Award(ctx, "u1", "missing", testNow)
	assert.True(t, shared.IsNotFound(err))

	held, err := repo.HeldBadgeIDs(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, held, 2)

	earned, err := repo.ListEarned(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, earned, 2)
	assert.Equal(t, "b-50", earned[0].BadgeID)
	assert.Equal(t, "Fifty", earned[0].Badge.Name)

	earned, err = repo.ListEarned(ctx, "u1", 1)
	require.NoError(t, err)
	assert.Len(t, earned, 1)
}
