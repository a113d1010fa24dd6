// Package leaderboard defines the XP ranking read model. The ranking is a
// projection of user totals; the user store stays the source of truth.
package leaderboard

import "context"

// Entry is one ranked position.
type Entry struct {
	Rank     int    `json:"rank"`
	UserID   string `json:"user_id"`
	FullName string `json:"full_name,omitempty"`
	TotalXP  int    `json:"total_xp"`
}

// Board is a ranked XP projection.
type Board interface {
	// SetScore records the absolute XP total of a user.
	SetScore(ctx context.Context, userID string, totalXP int) error

	// Top returns the best limit entries, rank 1 first.
	Top(ctx context.Context, limit int) ([]Entry, error)

	// Rank returns the 1-based rank of userID, or 0 when unranked.
	Rank(ctx context.Context, userID string) (int, error)
}

// Assign numbers entries 1..n in their current order.
func Assign(entries []Entry) []Entry {
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}
