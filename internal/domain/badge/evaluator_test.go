package badge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itlingo/progress-engine/internal/domain/shared"
)

type stubRepo struct {
	catalog []Badge
	held    map[string]struct{}
	err     error
}

func (s *stubRepo) Qualifying(_ context.Context, c ConditionType, v int) ([]Badge, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []Badge
	for _, b := range s.catalog {
		if b.Condition == c && b.Threshold <= v && b.IsActive {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *stubRepo) HeldBadgeIDs(context.Context, string) (map[string]struct{}, error) {
	return s.held, nil
}

func (s *stubRepo) Award(context.Context, string, string, time.Time) (UserBadge, bool, error) {
	return UserBadge{}, false, errors.New("not used")
}

func (s *stubRepo) ListEarned(context.Context, string, int) ([]Earned, error) {
	return nil, nil
}

func xpBadges() []Badge {
	return []Badge{
		{ID: "xp100", Condition: ConditionXPTotal, Threshold: 100, IsActive: true},
		{ID: "xp500", Condition: ConditionXPTotal, Threshold: 500, IsActive: true},
		{ID: "xp1000", Condition: ConditionXPTotal, Threshold: 1000, IsActive: true},
		{ID: "retired", Condition: ConditionXPTotal, Threshold: 10, IsActive: false},
		{ID: "streak3", Condition: ConditionStreakDays, Threshold: 3, IsActive: true},
	}
}

func TestSelect(t *testing.T) {
	held := map[string]struct{}{"xp100": {}}

	got := Select(xpBadges(), held, ConditionXPTotal, 600)

	require.Len(t, got, 1)
	assert.Equal(t, "xp500", got[0].ID)
}

func TestSelect_ThresholdIsInclusive(t *testing.T) {
	got := Select(xpBadges(), nil, ConditionXPTotal, 500)

	ids := make([]string, 0, len(got))
	for _, b := range got {
		ids = append(ids, b.ID)
	}
	assert.Equal(t, []string{"xp100", "xp500"}, ids)
}

func TestEvaluator_Evaluate(t *testing.T) {
	repo := &stubRepo{catalog: xpBadges(), held: map[string]struct{}{"streak3": {}}}
	ev := NewEvaluator(repo)

	got, err := ev.Evaluate(context.Background(), "u1", ConditionStreakDays, 7)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = ev.Evaluate(context.Background(), "u1", ConditionXPTotal, 150)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "xp100", got[0].ID)
}

func TestEvaluator_PropagatesStoreErrors(t *testing.T) {
	down := shared.WrapError("badge", "Qualifying", shared.ErrDependency, "store operation failed", errors.New("timeout"))
	ev := NewEvaluator(&stubRepo{err: down})

	_, err := ev.Evaluate(context.Background(), "u1", ConditionXPTotal, 150)
	assert.True(t, shared.IsDependency(err))
}

func TestParseCondition(t *testing.T) {
	c, err := ParseCondition("vocabulary_mastered")
	require.NoError(t, err)
	assert.Equal(t, ConditionVocabularyMastered, c)

	_, err = ParseCondition("totalXP")
	assert.True(t, shared.IsInvalidInput(err))
}
