package query

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itlingo/progress-engine/internal/domain/badge"
	"github.com/itlingo/progress-engine/internal/domain/catalog"
	"github.com/itlingo/progress-engine/internal/domain/progress"
	"github.com/itlingo/progress-engine/internal/domain/shared"
	"github.com/itlingo/progress-engine/internal/domain/user"
	"github.com/itlingo/progress-engine/internal/infrastructure/persistence/memory"
	"github.com/itlingo/progress-engine/pkg/circuitbreaker"
	"github.com/itlingo/progress-engine/pkg/timeutil"
)

var testNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func seedUser(t *testing.T, store *memory.Store, id, name string, xp int) {
	t.Helper()
	ctx := context.Background()

	u, err := user.NewUser(user.NewUserParams{ID: id, Email: id + "@example.com", FullName: name, Now: testNow})
	require.NoError(t, err)
	require.NoError(t, store.Users().Create(ctx, u))
	if xp > 0 {
		_, err = store.Users().AddXP(ctx, id, xp)
		require.NoError(t, err)
	}
}

func complete(t *testing.T, store *memory.Store, userID, lessonID string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.Progress().Ensure(ctx, userID))
	require.NoError(t, store.Progress().UpsertLesson(ctx, userID, progress.LessonProgress{
		LessonID:    lessonID,
		Status:      progress.LessonCompleted,
		CompletedAt: &testNow,
		UpdatedAt:   testNow,
	}))
}

func TestGetProgress(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	seedUser(t, store, "u1", "Ann", 40)
	h := NewGetProgressHandler(store.Users(), store.Progress(), time.UTC)

	t.Run("empty aggregate for a user without progress", func(t *testing.T) {
		dto, err := h.Handle(ctx, GetProgressQuery{UserID: "u1"})
		require.NoError(t, err)
		assert.Equal(t, 40, dto.TotalXP)
		assert.Empty(t, dto.Lessons)
		assert.Empty(t, dto.QuizAttempts)
		assert.NotNil(t, dto.DailyActivity)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := h.Handle(ctx, GetProgressQuery{UserID: "ghost"})
		assert.True(t, shared.IsNotFound(err))
	})

	t.Run("missing id", func(t *testing.T) {
		_, err := h.Handle(ctx, GetProgressQuery{})
		assert.True(t, shared.IsInvalidInput(err))
	})

	t.Run("recorded progress", func(t *testing.T) {
		complete(t, store, "u1", "l1")
		_, err := store.Progress().IncrementDailyActivity(ctx, "u1", timeutil.StartOfDay(testNow, time.UTC), progress.ActivityDelta{MinutesSpent: 12})
		require.NoError(t, err)

		dto, err := h.Handle(ctx, GetProgressQuery{UserID: "u1"})
		require.NoError(t, err)
		require.Len(t, dto.Lessons, 1)
		assert.Equal(t, "completed", dto.Lessons[0].Status)
		assert.Equal(t, 1, dto.CompletedLessons)
		require.Len(t, dto.DailyActivity, 1)
		assert.Equal(t, "2024-03-10", dto.DailyActivity[0].Date)
		assert.Equal(t, 12, dto.DailyActivity[0].MinutesSpent)
	})
}

func TestLessonsHandler(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	seedUser(t, store, "u1", "Ann", 0)
	store.PutLesson(catalog.Lesson{ID: "l1"})
	store.PutLesson(catalog.Lesson{ID: "l2", Prerequisites: []string{"l1"}})
	store.PutLesson(catalog.Lesson{ID: "l3", Prerequisites: []string{"l1", "l2"}})
	h := NewLessonsHandler(store.Users(), store.Progress(), store.Catalog())

	pending, err := h.PendingLessons(ctx, PendingLessonsQuery{UserID: "u1", LessonIDs: []string{"l3", "l1", "l2"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"l3", "l1", "l2"}, pending)

	res, err := h.CanStartLesson(ctx, CanStartLessonQuery{UserID: "u1", LessonID: "l2"})
	require.NoError(t, err)
	assert.False(t, res.CanStart)
	assert.Equal(t, []string{"l1"}, res.MissingPrerequisites)

	complete(t, store, "u1", "l1")

	pending, err = h.PendingLessons(ctx, PendingLessonsQuery{UserID: "u1", LessonIDs: []string{"l3", "l1", "l2"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"l3", "l2"}, pending)

	res, err = h.CanStartLesson(ctx, CanStartLessonQuery{UserID: "u1", LessonID: "l2"})
	require.NoError(t, err)
	assert.True(t, res.CanStart)

	res, err = h.CanStartLesson(ctx, CanStartLessonQuery{UserID: "u1", LessonID: "l3"})
	require.NoError(t, err)
	assert.Equal(t, []string{"l2"}, res.MissingPrerequisites)

	_, err = h.CanStartLesson(ctx, CanStartLessonQuery{UserID: "u1", LessonID: "nope"})
	assert.True(t, shared.IsNotFound(err))

	_, err = h.PendingLessons(ctx, PendingLessonsQuery{UserID: "ghost"})
	assert.True(t, shared.IsNotFound(err))
}

func TestDailyActivityHandler(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	seedUser(t, store, "u1", "Ann", 0)
	require.NoError(t, store.Progress().Ensure(ctx, "u1"))

	for _, d := range []int{1, 5, 9, 10} {
		day := time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC)
		_, err := store.Progress().IncrementDailyActivity(ctx, "u1", day, progress.ActivityDelta{MinutesSpent: d, XPEarned: 2 * d})
		require.NoError(t, err)
	}

	h := NewDailyActivityHandler(store.Users(), store.Progress(), timeutil.FixedClock{T: testNow}, time.UTC)

	t.Run("default window is the last seven days", func(t *testing.T) {
		res, err := h.Handle(ctx, DailyActivityQuery{UserID: "u1"})
		require.NoError(t, err)
		assert.Equal(t, "2024-03-04", res.From)
		assert.Equal(t, "2024-03-10", res.To)
		require.Len(t, res.Days, 3)
		assert.Equal(t, "2024-03-05", res.Days[0].Date)
		assert.Equal(t, "2024-03-10", res.Days[2].Date)
		assert.Equal(t, 24, res.TotalMinutes)
		assert.Equal(t, 48, res.TotalXP)
		assert.Equal(t, 3, res.ActiveDays)
	})

	t.Run("bounds are inclusive", func(t *testing.T) {
		res, err := h.Handle(ctx, DailyActivityQuery{
			UserID: "u1",
			From:   time.Date(2024, 3, 1, 18, 0, 0, 0, time.UTC),
			To:     time.Date(2024, 3, 5, 1, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err)
		require.Len(t, res.Days, 2)
		assert.Equal(t, "2024-03-01", res.Days[0].Date)
		assert.Equal(t, "2024-03-05", res.Days[1].Date)
	})

	t.Run("inverted range", func(t *testing.T) {
		_, err := h.Handle(ctx, DailyActivityQuery{UserID: "u1", From: testNow, To: testNow.AddDate(0, 0, -1)})
		assert.True(t, shared.IsInvalidInput(err))
	})
}

func TestUserBadgesHandler(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	seedUser(t, store, "u1", "Ann", 0)
	store.PutBadge(badge.Badge{ID: "b1", Name: "First", Condition: badge.ConditionXPTotal, Threshold: 1, IsActive: true})
	store.PutBadge(badge.Badge{ID: "b2", Name: "Second", Condition: badge.ConditionXPTotal, Threshold: 2, IsActive: true, Rarity: badge.RarityRare})

	_, _, err := store.Badges().Award(ctx, "u1", "b1", testNow)
	require.NoError(t, err)
	_, _, err = store.Badges().Award(ctx, "u1", "b2", testNow.Add(time.Hour))
	require.NoError(t, err)

	h := NewUserBadgesHandler(store.Users(), store.Badges())

	all, err := h.Handle(ctx, UserBadgesQuery{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "b2", all[0].BadgeID)
	assert.Equal(t, "Second", all[0].Name)
	assert.Equal(t, "rare", all[0].Rarity)

	one, err := h.Handle(ctx, UserBadgesQuery{UserID: "u1", Limit: 1})
	require.NoError(t, err)
	assert.Len(t, one, 1)
}

func TestGetLeaderboardHandler(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	seedUser(t, store, "u1", "Ann", 30)
	seedUser(t, store, "u2", "Bob", 50)
	seedUser(t, store, "u3", "Cem", 10)

	t.Run("store without projection", func(t *testing.T) {
		h := NewGetLeaderboardHandler(store.Users(), nil, nil, 2, nil)

		res, err := h.Handle(ctx, GetLeaderboardQuery{})
		require.NoError(t, err)
		assert.Equal(t, SourceStore, res.Source)
		require.Len(t, res.Entries, 2)
		assert.Equal(t, "u2", res.Entries[0].UserID)
		assert.Equal(t, 1, res.Entries[0].Rank)
		assert.Equal(t, "Ann", res.Entries[1].FullName)
	})

	t.Run("projection with names", func(t *testing.T) {
		board := memory.NewLeaderboard()
		require.NoError(t, board.SetScore(ctx, "u3", 99))
		require.NoError(t, board.SetScore(ctx, "u1", 30))
		h := NewGetLeaderboardHandler(store.Users(), board, nil, 10, nil)

		res, err := h.Handle(ctx, GetLeaderboardQuery{Limit: 5})
		require.NoError(t, err)
		assert.Equal(t, SourceProjection, res.Source)
		require.Len(t, res.Entries, 2)
		assert.Equal(t, "Cem", res.Entries[0].FullName)
		assert.Equal(t, 99, res.Entries[0].TotalXP)
	})

	t.Run("falls back when the projection fails", func(t *testing.T) {
		board := memory.NewLeaderboard()
		board.FailWith(errors.New("redis: i/o timeout"))
		breaker := circuitbreaker.New("test", circuitbreaker.WithFailureThreshold(1))
		h := NewGetLeaderboardHandler(store.Users(), board, breaker, 10, nil)

		res, err := h.Handle(ctx, GetLeaderboardQuery{})
		require.NoError(t, err)
		assert.Equal(t, SourceStore, res.Source)
		assert.Len(t, res.Entries, 3)
		assert.Equal(t, circuitbreaker.StateOpen, breaker.State())
	})

	t.Run("negative limit", func(t *testing.T) {
		h := NewGetLeaderboardHandler(store.Users(), nil, nil, 10, nil)
		_, err := h.Handle(ctx, GetLeaderboardQuery{Limit: -1})
		assert.True(t, shared.IsInvalidInput(err))
	})
}
