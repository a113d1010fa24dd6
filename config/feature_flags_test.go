package config

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeatureFlags_Defaults(t *testing.T) {
	ff := NewFeatureFlags()

	assert.False(t, ff.Enabled(FeatureBadgeRewards, "u1"))
	assert.True(t, ff.Enabled(FeatureExtendedBadgeTriggers, "u1"))
	assert.True(t, ff.Enabled(FeatureLeaderboardLive, "u1"))
	assert.False(t, ff.Enabled("unknown.feature", "u1"))
}

func TestFeatureFlags_EnvOverride(t *testing.T) {
	t.Setenv("FEATURE_GAMIFICATION_BADGE_REWARDS", "true")
	t.Setenv("FEATURE_LEADERBOARD_LIVE", "0")

	ff := LoadFeatureFlags()

	assert.True(t, ff.Enabled(FeatureBadgeRewards, "u1"))
	assert.False(t, ff.Enabled(FeatureLeaderboardLive, "u1"))
}

func TestFeatureFlags_RolloutIsStablePerUser(t *testing.T) {
	ff := NewFeatureFlags()
	require.NoError(t, ff.SetRolloutPercent(FeatureBadgeRewards, 30))

	enabled := 0
	for i := 0; i < 1000; i++ {
		id := fmt.Sprintf("user-%d", i)
		first := ff.Enabled(FeatureBadgeRewards, id)
		assert.Equal(t, first, ff.Enabled(FeatureBadgeRewards, id))
		if first {
			enabled++
		}
	}
	assert.InDelta(t, 300, enabled, 80)
}

func TestFeatureFlags_UserOverrideWins(t *testing.T) {
	ff := NewFeatureFlags()
	ff.SetUserOverride("u1", FeatureExtendedBadgeTriggers, false)

	assert.False(t, ff.Enabled(FeatureExtendedBadgeTriggers, "u1"))
	assert.True(t, ff.Enabled(FeatureExtendedBadgeTriggers, "u2"))

	ff.ClearUserOverrides("u1")
	assert.True(t, ff.Enabled(FeatureExtendedBadgeTriggers, "u1"))
}

func TestFeatureFlags_SetRolloutPercent(t *testing.T) {
	ff := NewFeatureFlags()

	assert.ErrorIs(t, ff.SetRolloutPercent("nope", 10), ErrFeatureNotFound)
	assert.ErrorIs(t, ff.SetRolloutPercent(FeatureBadgeRewards, 101), ErrInvalidRolloutPercent)

	require.NoError(t, ff.SetRolloutPercent(FeatureBadgeRewards, 100))
	assert.True(t, ff.Enabled(FeatureBadgeRewards, "u1"))
	require.NoError(t, ff.SetRolloutPercent(FeatureBadgeRewards, 0))
	assert.False(t, ff.Enabled(FeatureBadgeRewards, "u1"))
}

func TestFeatureFlags_Features(t *testing.T) {
	t.Setenv("FEATURE_LEADERBOARD_LIVE", "25")
	t.Setenv("FEATURE_GAMIFICATION_BADGE_REWARDS", "sometimes")

	features := LoadFeatureFlags().Features()
	require.Len(t, features, 3)
	assert.Equal(t, FeatureBadgeRewards, features[0].Name)
	assert.Equal(t, 0, features[0].RolloutPercent)
	assert.Equal(t, FeatureLeaderboardLive, features[2].Name)
	assert.Equal(t, 25, features[2].RolloutPercent)
}
