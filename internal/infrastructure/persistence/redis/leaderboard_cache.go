package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/itlingo/progress-engine/internal/domain/leaderboard"
)

// ══════════════════════════════════════════════════════════════════════════════
// XP LEADERBOARD
// ══════════════════════════════════════════════════════════════════════════════

// Leaderboard keeps user XP totals in one sorted set:
//
//	{prefix}leaderboard:xp    userID -> total XP
//	{prefix}leaderboard:meta  JSON LeaderboardMeta of the last rebuild
//
// Equal scores rank by member descending, the same order the in-process
// board uses.
type Leaderboard struct {
	cache *Cache
	now   func() time.Time
}

var _ leaderboard.Board = (*Leaderboard)(nil)

const (
	keyLeaderboardXP   = "leaderboard:xp"
	keyLeaderboardMeta = "leaderboard:meta"
)

// LeaderboardMeta describes the last full rebuild.
type LeaderboardMeta struct {
	RebuiltAt time.Time `json:"rebuilt_at"`
	Members   int       `json:"members"`
}

// NewLeaderboard creates a Leaderboard on cache.
func NewLeaderboard(cache *Cache) *Leaderboard {
	return &Leaderboard{cache: cache, now: func() time.Time { return time.Now().UTC() }}
}

func (l *Leaderboard) key() string {
	return l.cache.Key(keyLeaderboardXP)
}

// SetScore records the absolute total; ZADD overwrites, so replays are safe.
func (l *Leaderboard) SetScore(ctx context.Context, userID string, totalXP int) error {
	return l.cache.Client().ZAdd(ctx, l.key(), redis.Z{
		Score:  float64(totalXP),
		Member: userID,
	}).Err()
}

// Top returns the best limit entries. limit <= 0 returns everyone.
func (l *Leaderboard) Top(ctx context.Context, limit int) ([]leaderboard.Entry, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}

	members, err := l.cache.Client().ZRevRangeWithScores(ctx, l.key(), 0, stop).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]leaderboard.Entry, 0, len(members))
	for _, m := range members {
		id, ok := m.Member.(string)
		if !ok {
			continue
		}
		entries = append(entries, leaderboard.Entry{UserID: id, TotalXP: int(m.Score)})
	}
	return leaderboard.Assign(entries), nil
}

// Rank returns the 1-based position of userID, or 0 when absent.
func (l *Leaderboard) Rank(ctx context.Context, userID string) (int, error) {
	rank, err := l.cache.Client().ZRevRank(ctx, l.key(), userID).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return int(rank) + 1, nil
}

// Rebuild replaces the whole set with totals in one MULTI/EXEC.
func (l *Leaderboard) Rebuild(ctx context.Context, totals map[string]int) error {
	pipe := l.cache.Client().TxPipeline()
	pipe.Del(ctx, l.key())

	if len(totals) > 0 {
		members := make([]redis.Z, 0, len(totals))
		for id, xp := range totals {
			members = append(members, redis.Z{Score: float64(xp), Member: id})
		}
		pipe.ZAdd(ctx, l.key(), members...)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	return l.cache.Set(ctx, keyLeaderboardMeta, LeaderboardMeta{RebuiltAt: l.now(), Members: len(totals)}, 0)
}

// Meta returns the last rebuild metadata, or ErrCacheMiss before the
// first rebuild.
func (l *Leaderboard) Meta(ctx context.Context) (LeaderboardMeta, error) {
	var meta LeaderboardMeta
	err := l.cache.Get(ctx, keyLeaderboardMeta, &meta)
	return meta, err
}

// Remove drops userID from the ranking.
func (l *Leaderboard) Remove(ctx context.Context, userID string) error {
	return l.cache.Client().ZRem(ctx, l.key(), userID).Err()
}

// Reset deletes the ranking and its metadata.
func (l *Leaderboard) Reset(ctx context.Context) error {
	return l.cache.Delete(ctx, keyLeaderboardXP, keyLeaderboardMeta)
}

// Score returns the stored total of userID.
func (l *Leaderboard) Score(ctx context.Context, userID string) (int, bool, error) {
	s, err := l.cache.Client().ZScore(ctx, l.key(), userID).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return int(s), true, nil
}
