package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/itlingo/progress-engine/internal/domain/badge"
)

// ══════════════════════════════════════════════════════════════════════════════
// BADGE REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// BadgeRepository implements badge.Repository for PostgreSQL.
type BadgeRepository struct {
	conn *Connection
}

var _ badge.Repository = (*BadgeRepository)(nil)

// NewBadgeRepository creates a new BadgeRepository.
func NewBadgeRepository(conn *Connection) *BadgeRepository {
	return &BadgeRepository{conn: conn}
}

var newID = uuid.NewString

const badgeColumns = `b.id, b.name, b.description, b.icon, b.condition_type, b.threshold, b.rarity, b.xp_reward, b.is_active`

// Qualifying returns active badges of condition with threshold <= value.
func (r *BadgeRepository) Qualifying(ctx context.Context, condition badge.ConditionType, value int) ([]badge.Badge, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT `+badgeColumns+`
		FROM badges b
		WHERE b.condition_type = $1 AND b.is_active AND b.threshold <= $2
		ORDER BY b.threshold, b.id
	`, string(condition), value)
	if err != nil {
		return nil, classify("badge", "Qualifying", err)
	}
	defer rows.Close()

	var out []badge.Badge
	for rows.Next() {
		var b badge.Badge
		if err := scanBadge(rows, &b); err != nil {
			return nil, classify("badge", "Qualifying", err)
		}
		out = append(out, b)
	}
	return out, classify("badge", "Qualifying", rows.Err())
}

// HeldBadgeIDs returns the ids of badges the user holds.
func (r *BadgeRepository) HeldBadgeIDs(ctx context.Context, userID string) (map[string]struct{}, error) {
	rows, err := r.conn.Query(ctx, `SELECT badge_id FROM user_badges WHERE user_id = $1`, userID)
	if err != nil {
		return nil, classify("badge", "HeldBadgeIDs", err)
	}
	defer rows.Close()

	held := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, classify("badge", "HeldBadgeIDs", err)
		}
		held[id] = struct{}{}
	}
	return held, classify("badge", "HeldBadgeIDs", rows.Err())
}

// Award inserts the award unless (user, badge) already exists. created
// reports whether this call wrote the row; otherwise the stored award is
// returned.
func (r *BadgeRepository) Award(ctx context.Context, userID, badgeID string, at time.Time) (badge.UserBadge, bool, error) {
	ub := badge.UserBadge{ID: newID(), UserID: userID, BadgeID: badgeID}

	err := r.conn.QueryRow(ctx, `
		INSERT INTO user_badges (id, user_id, badge_id, earned_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, badge_id) DO NOTHING
		RETURNING earned_at
	`, ub.ID, userID, badgeID, at).Scan(&ub.EarnedAt)
	if err == nil {
		return ub, true, nil
	}
	if !IsNoRows(err) {
		return badge.UserBadge{}, false, classify("badge", "Award", err)
	}

	err = r.conn.QueryRow(ctx, `
		SELECT id, earned_at FROM user_badges WHERE user_id = $1 AND badge_id = $2
	`, userID, badgeID).Scan(&ub.ID, &ub.EarnedAt)
	if err != nil {
		return badge.UserBadge{}, false, classify("badge", "Award", err)
	}
	return ub, false, nil
}

// ListEarned returns awards joined with their badge, most recent first.
func (r *BadgeRepository) ListEarned(ctx context.Context, userID string, limit int) ([]badge.Earned, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT ub.id, ub.user_id, ub.badge_id, ub.earned_at, `+badgeColumns+`
		FROM user_badges ub
		JOIN badges b ON b.id = ub.badge_id
		WHERE ub.user_id = $1
		ORDER BY ub.earned_at DESC, ub.badge_id
		LIMIT $2
	`, userID, limitArg(limit))
	if err != nil {
		return nil, classify("badge", "ListEarned", err)
	}
	defer rows.Close()

	var out []badge.Earned
	for rows.Next() {
		var e badge.Earned
		var condition, rarity string
		if err := rows.Scan(&e.ID, &e.UserID, &e.BadgeID, &e.EarnedAt,
			&e.Badge.ID, &e.Badge.Name, &e.Badge.Description, &e.Badge.Icon, &condition,
			&e.Badge.Threshold, &rarity, &e.Badge.XPReward, &e.Badge.IsActive); err != nil {
			return nil, classify("badge", "ListEarned", err)
		}
		e.Badge.Condition = badge.ConditionType(condition)
		e.Badge.Rarity = badge.Rarity(rarity)
		out = append(out, e)
	}
	return out, classify("badge", "ListEarned", rows.Err())
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanBadge(row scanner, b *badge.Badge) error {
	var condition, rarity string
	if err := row.Scan(&b.ID, &b.Name, &b.Description, &b.Icon, &condition, &b.Threshold, &rarity, &b.XPReward, &b.IsActive); err != nil {
		return err
	}
	b.Condition = badge.ConditionType(condition)
	b.Rarity = badge.Rarity(rarity)
	return nil
}
