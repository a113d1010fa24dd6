package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/itlingo/progress-engine/internal/domain/badge"
)

// BadgeRepository implements badge.Repository.
type BadgeRepository struct {
	db *DB
}

var _ badge.Repository = (*BadgeRepository)(nil)

// NewBadgeRepository creates a new BadgeRepository.
func NewBadgeRepository(db *DB) *BadgeRepository {
	return &BadgeRepository{db: db}
}

type badgeRow struct {
	ID          string `db:"id"`
	Name        string `db:"name"`
	Description string `db:"description"`
	Icon        string `db:"icon"`
	Condition   string `db:"condition_type"`
	Threshold   int    `db:"threshold"`
	Rarity      string `db:"rarity"`
	XPReward    int    `db:"xp_reward"`
	IsActive    bool   `db:"is_active"`
}

func badgeToRow(b badge.Badge) badgeRow {
	return badgeRow{
		ID:          b.ID,
		Name:        b.Name,
		Description: b.Description,
		Icon:        b.Icon,
		Condition:   string(b.Condition),
		Threshold:   b.Threshold,
		Rarity:      string(b.Rarity),
		XPReward:    b.XPReward,
		IsActive:    b.IsActive,
	}
}

func (r badgeRow) toDomain() badge.Badge {
	return badge.Badge{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Icon:        r.Icon,
		Condition:   badge.ConditionType(r.Condition),
		Threshold:   r.Threshold,
		Rarity:      badge.Rarity(r.Rarity),
		XPReward:    r.XPReward,
		IsActive:    r.IsActive,
	}
}

const badgeColumns = `b.id, b.name, b.description, b.icon, b.condition_type, b.threshold, b.rarity, b.xp_reward, b.is_active`

func (r *BadgeRepository) Qualifying(ctx context.Context, condition badge.ConditionType, value int) ([]badge.Badge, error) {
	var rows []badgeRow
	err := r.db.x.SelectContext(ctx, &rows, `
		SELECT `+badgeColumns+` FROM badges b
		WHERE b.condition_type = ? AND b.is_active AND b.threshold <= ?
		ORDER BY b.threshold, b.id
	`, string(condition), value)
	if err != nil {
		return nil, classify("badge", "Qualifying", err)
	}

	out := make([]badge.Badge, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

func (r *BadgeRepository) HeldBadgeIDs(ctx context.Context, userID string) (map[string]struct{}, error) {
	var ids []string
	if err := r.db.x.SelectContext(ctx, &ids, `SELECT badge_id FROM user_badges WHERE user_id = ?`, userID); err != nil {
		return nil, classify("badge", "HeldBadgeIDs", err)
	}

	held := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		held[id] = struct{}{}
	}
	return held, nil
}

// Award relies on UNIQUE (user_id, badge_id): DO NOTHING returns no row
// when another caller got there first.
func (r *BadgeRepository) Award(ctx context.Context, userID, badgeID string, at time.Time) (badge.UserBadge, bool, error) {
	ub := badge.UserBadge{ID: uuid.NewString(), UserID: userID, BadgeID: badgeID}

	var earned int64
	err := r.db.x.GetContext(ctx, &earned, `
		INSERT INTO user_badges (id, user_id, badge_id, earned_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, badge_id) DO NOTHING
		RETURNING earned_at
	`, ub.ID, userID, badgeID, toNanos(at))
	if err == nil {
		ub.EarnedAt = fromNanos(earned)
		return ub, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return badge.UserBadge{}, false, classify("badge", "Award", err)
	}

	var existing struct {
		ID       string `db:"id"`
		EarnedAt int64  `db:"earned_at"`
	}
	if err := r.db.x.GetContext(ctx, &existing, `
		SELECT id, earned_at FROM user_badges WHERE user_id = ? AND badge_id = ?
	`, userID, badgeID); err != nil {
		return badge.UserBadge{}, false, classify("badge", "Award", err)
	}
	ub.ID = existing.ID
	ub.EarnedAt = fromNanos(existing.EarnedAt)
	return ub, false, nil
}

func (r *BadgeRepository) ListEarned(ctx context.Context, userID string, limit int) ([]badge.Earned, error) {
	var rows []struct {
		AwardID  string `db:"award_id"`
		UserID   string `db:"user_id"`
		EarnedAt int64  `db:"earned_at"`
		badgeRow
	}
	err := r.db.x.SelectContext(ctx, &rows, `
		SELECT ub.id AS award_id, ub.user_id, ub.earned_at, `+badgeColumns+`
		FROM user_badges ub
		JOIN badges b ON b.id = ub.badge_id
		WHERE ub.user_id = ?
		ORDER BY ub.earned_at DESC, ub.badge_id
		LIMIT ?
	`, userID, limitArg(limit))
	if err != nil {
		return nil, classify("badge", "ListEarned", err)
	}

	out := make([]badge.Earned, len(rows))
	for i, row := range rows {
		b := row.badgeRow.toDomain()
		out[i] = badge.Earned{
			UserBadge: badge.UserBadge{ID: row.AwardID, UserID: row.UserID, BadgeID: b.ID, EarnedAt: fromNanos(row.EarnedAt)},
			Badge:     b,
		}
	}
	return out, nil
}
