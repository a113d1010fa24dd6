package redis

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs against a real server: TEST_REDIS_ADDR=localhost:6379
func testLeaderboard(t *testing.T) *Leaderboard {
	t.Helper()

	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}

	cfg := DefaultConfig()
	cfg.URL = "redis://" + addr
	cfg.KeyPrefix = "test:" + uuid.NewString() + ":"

	cache, err := NewCache(context.Background(), cfg)
	require.NoError(t, err)

	board := NewLeaderboard(cache)
	t.Cleanup(func() {
		_ = board.Reset(context.Background())
		cache.Close()
	})
	return board
}

func TestLeaderboard_RankingOrder(t *testing.T) {
	board := testLeaderboard(t)
	ctx := context.Background()

	require.NoError(t, board.SetScore(ctx, "alice", 120))
	require.NoError(t, board.SetScore(ctx, "bob", 80))
	require.NoError(t, board.SetScore(ctx, "carol", 120))
	require.NoError(t, board.SetScore(ctx, "bob", 200))

	top, err := board.Top(ctx, 0)
	require.NoError(t, err)
	require.Len(t, top, 3)
	assert.Equal(t, "bob", top[0].UserID)
	assert.Equal(t, 200, top[0].TotalXP)
	assert.Equal(t, "carol", top[1].UserID)
	assert.Equal(t, "alice", top[2].UserID)
	assert.Equal(t, 3, top[2].Rank)

	top, err = board.Top(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, top, 1)

	rank, err := board.Rank(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 3, rank)

	rank, err = board.Rank(ctx, "nobody")
	require.NoError(t, err)
	assert.Zero(t, rank)

	require.NoError(t, board.Remove(ctx, "bob"))
	_, ok, err := board.Score(ctx, "bob")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLeaderboard_Rebuild(t *testing.T) {
	board := testLeaderboard(t)
	ctx := context.Background()

	_, err := board.Meta(ctx)
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, board.SetScore(ctx, "stale", 999))
	require.NoError(t, board.Rebuild(ctx, map[string]int{"u1": 10, "u2": 30}))

	top, err := board.Top(ctx, 10)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "u2", top[0].UserID)

	meta, err := board.Meta(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, meta.Members)
	assert.False(t, meta.RebuiltAt.IsZero())

	xp, ok, err := board.Score(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 10, xp)
}

func TestConfig_Options(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "localhost:6379", cfg.Addr())

	opts, err := cfg.options()
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", opts.Addr)

	cfg.URL = "redis://:secret@cache.internal:6380/2"
	opts, err = cfg.options()
	require.NoError(t, err)
	assert.Equal(t, "cache.internal:6380", opts.Addr)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 2, opts.DB)

	cfg.URL = "http://wrong"
	_, err = cfg.options()
	assert.Error(t, err)
}
