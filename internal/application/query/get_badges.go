package query

import (
	"context"
	"time"

	"github.com/itlingo/progress-engine/internal/domain/badge"
	"github.com/itlingo/progress-engine/internal/domain/shared"
	"github.com/itlingo/progress-engine/internal/domain/user"
)

// UserBadgesQuery lists earned badges. Limit <= 0 means all.
type UserBadgesQuery struct {
	UserID string
	Limit  int
}

// BadgeDTO is an earned badge joined with its catalog entry.
type BadgeDTO struct {
	BadgeID     string    `json:"badge_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Icon        string    `json:"icon,omitempty"`
	Rarity      string    `json:"rarity,omitempty"`
	Condition   string    `json:"condition"`
	Threshold   int       `json:"threshold"`
	EarnedAt    time.Time `json:"earned_at"`
}

// UserBadgesHandler serves UserBadgesQuery.
type UserBadgesHandler struct {
	users  user.Repository
	badges badge.Repository
}

// NewUserBadgesHandler creates the handler.
func NewUserBadgesHandler(users user.Repository, badges badge.Repository) *UserBadgesHandler {
	return &UserBadgesHandler{users: users, badges: badges}
}

// Handle returns the user's badges, most recent first.
func (h *UserBadgesHandler) Handle(ctx context.Context, q UserBadgesQuery) ([]BadgeDTO, error) {
	const op = "UserBadges"

	if q.UserID == "" {
		return nil, shared.NewDomainError("query", op, shared.ErrInvalidInput, "user_id is required")
	}
	if _, err := h.users.Get(ctx, q.UserID); err != nil {
		return nil, shared.Dependency("query", op, err)
	}

	earned, err := h.badges.ListEarned(ctx, q.UserID, q.Limit)
	if err != nil {
		return nil, shared.Dependency("query", op, err)
	}

	out := make([]BadgeDTO, 0, len(earned))
	for _, e := range earned {
		out = append(out, BadgeDTO{
			BadgeID:     e.BadgeID,
			Name:        e.Badge.Name,
			Description: e.Badge.Description,
			Icon:        e.Badge.Icon,
			Rarity:      string(e.Badge.Rarity),
			Condition:   string(e.Badge.Condition),
			Threshold:   e.Badge.Threshold,
			EarnedAt:    e.EarnedAt,
		})
	}
	return out, nil
}
