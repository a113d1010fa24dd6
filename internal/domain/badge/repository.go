package badge

import (
	"context"
	"time"
)

// Repository is the store contract for badges and awards.
type Repository interface {
	// Qualifying returns active catalog badges of condition with
	// threshold <= value, lowest threshold first.
	Qualifying(ctx context.Context, condition ConditionType, value int) ([]Badge, error)

	// HeldBadgeIDs returns the ids of badges userID already holds.
	HeldBadgeIDs(ctx context.Context, userID string) (map[string]struct{}, error)

	// Award stores the (user, badge) pair if absent. When another writer got
	// there first, the existing record is returned with created=false and
	// no error.
	Award(ctx context.Context, userID, badgeID string, at time.Time) (UserBadge, bool, error)

	// ListEarned returns the user's awards joined with the catalog, most
	// recent first. limit <= 0 means no limit.
	ListEarned(ctx context.Context, userID string, limit int) ([]Earned, error)
}
