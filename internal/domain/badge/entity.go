// Package badge contains the badge catalog, user awards and the evaluator
// that decides which badges a metric value newly qualifies for.
package badge

import (
	"time"

	"github.com/itlingo/progress-engine/internal/domain/shared"
)

// ConditionType is the metric a badge threshold is compared against.
// The set is fixed.
type ConditionType string

const (
	ConditionLessonCount        ConditionType = "lesson_count"
	ConditionQuizScore          ConditionType = "quiz_score"
	ConditionStreakDays         ConditionType = "streak_days"
	ConditionXPTotal            ConditionType = "xp_total"
	ConditionVocabularyMastered ConditionType = "vocabulary_mastered"
)

// AllConditions lists every condition type.
var AllConditions = []ConditionType{
	ConditionLessonCount,
	ConditionQuizScore,
	ConditionStreakDays,
	ConditionXPTotal,
	ConditionVocabularyMastered,
}

// ParseCondition validates a condition name.
func ParseCondition(s string) (ConditionType, error) {
	for _, c := range AllConditions {
		if string(c) == s {
			return c, nil
		}
	}
	return "", shared.NewDomainError("badge", "ParseCondition", shared.ErrInvalidInput, "unknown condition type: "+s)
}

// Rarity is a display tier.
type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

// Badge is an immutable catalog entry.
type Badge struct {
	ID          string
	Name        string
	Description string
	Icon        string
	Condition   ConditionType
	Threshold   int
	Rarity      Rarity
	XPReward    int
	IsActive    bool
}

// Qualifies reports whether value meets the badge threshold.
func (b Badge) Qualifies(value int) bool {
	return b.IsActive && b.Threshold <= value
}

// UserBadge records that a user earned a badge. At most one per pair.
type UserBadge struct {
	ID       string
	UserID   string
	BadgeID  string
	EarnedAt time.Time
}

// Earned joins an award with its catalog entry.
type Earned struct {
	UserBadge
	Badge Badge
}
