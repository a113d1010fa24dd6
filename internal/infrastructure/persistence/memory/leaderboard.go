package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/itlingo/progress-engine/internal/domain/leaderboard"
)

// Leaderboard is an in-process leaderboard.Board.
type Leaderboard struct {
	mu     sync.Mutex
	scores map[string]int
	err    error
}

var _ leaderboard.Board = (*Leaderboard)(nil)

// NewLeaderboard creates an empty board.
func NewLeaderboard() *Leaderboard {
	return &Leaderboard{scores: make(map[string]int)}
}

// FailWith makes every call return err (nil restores normal behaviour).
func (l *Leaderboard) FailWith(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.err = err
}

// Score returns the stored score and whether the user is ranked.
func (l *Leaderboard) Score(userID string) (int, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.scores[userID]
	return s, ok
}

func (l *Leaderboard) SetScore(_ context.Context, userID string, totalXP int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.scores[userID] = totalXP
	return nil
}

func (l *Leaderboard) sorted() []leaderboard.Entry {
	out := make([]leaderboard.Entry, 0, len(l.scores))
	for id, xp := range l.scores {
		out = append(out, leaderboard.Entry{UserID: id, TotalXP: xp})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalXP != out[j].TotalXP {
			return out[i].TotalXP > out[j].TotalXP
		}
		return out[i].UserID > out[j].UserID
	})
	return leaderboard.Assign(out)
}

func (l *Leaderboard) Top(_ context.Context, limit int) ([]leaderboard.Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	out := l.sorted()
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (l *Leaderboard) Rank(_ context.Context, userID string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return 0, l.err
	}
	for _, e := range l.sorted() {
		if e.UserID == userID {
			return e.Rank, nil
		}
	}
	return 0, nil
}
