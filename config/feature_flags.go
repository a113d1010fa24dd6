package config

import (
	"errors"
	"hash/fnv"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Feature names consulted by the progress coordinator.
const (
	// Credit a badge's XP reward the first time it is awarded.
	FeatureBadgeRewards = "gamification.badge_rewards"

	// Evaluate lesson_count, quiz_score and vocabulary_mastered badges.
	FeatureExtendedBadgeTriggers = "gamification.extended_badge_triggers"

	// Project XP totals into the Redis leaderboard.
	FeatureLeaderboardLive = "leaderboard.live"
)

var (
	ErrFeatureNotFound       = errors.New("feature not found")
	ErrInvalidRolloutPercent = errors.New("rollout percent must be 0-100")
)

// Feature is one toggle. RolloutPercent 0 is off, 100 is on for everyone.
type Feature struct {
	Name           string `json:"name"`
	Description    string `json:"description"`
	RolloutPercent int    `json:"rollout_percent"`
}

// FeatureFlags holds the toggles plus per-user overrides. A user's rollout
// bucket is a hash of feature and user id, so raising the percentage only
// ever adds users.
type FeatureFlags struct {
	mu        sync.RWMutex
	features  map[string]Feature
	overrides map[string]map[string]bool // user -> feature -> enabled
}

// NewFeatureFlags returns the defaults, ignoring the environment.
func NewFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{
		features:  make(map[string]Feature),
		overrides: make(map[string]map[string]bool),
	}
	for _, f := range []Feature{
		{FeatureBadgeRewards, "Credit badge XP rewards on first award", 0},
		{FeatureExtendedBadgeTriggers, "Evaluate lesson, quiz score and vocabulary badges", 100},
		{FeatureLeaderboardLive, "Keep the Redis XP leaderboard in sync", 100},
	} {
		ff.features[f.Name] = f
	}
	return ff
}

// LoadFeatureFlags applies FEATURE_<NAME> variables on top of the defaults.
// A value is a bool (on/off) or a 0-100 rollout percentage:
//
//	FEATURE_GAMIFICATION_BADGE_REWARDS=true
//	FEATURE_LEADERBOARD_LIVE=50
func LoadFeatureFlags() *FeatureFlags {
	ff := NewFeatureFlags()
	for name, f := range ff.features {
		raw := strings.TrimSpace(os.Getenv(envKey(name)))
		if raw == "" {
			continue
		}
		if on, err := strconv.ParseBool(raw); err == nil {
			f.RolloutPercent = 0
			if on {
				f.RolloutPercent = 100
			}
		} else if p, err := strconv.Atoi(raw); err == nil && p >= 0 && p <= 100 {
			f.RolloutPercent = p
		}
		ff.features[name] = f
	}
	return ff
}

// "leaderboard.live" -> "FEATURE_LEADERBOARD_LIVE"
func envKey(name string) string {
	return "FEATURE_" + strings.ToUpper(strings.ReplaceAll(name, ".", "_"))
}

// Enabled reports whether feature is on for userID. Unknown features are
// off; a user override beats the rollout.
func (ff *FeatureFlags) Enabled(feature, userID string) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	if on, ok := ff.overrides[userID][feature]; ok {
		return on
	}
	f, ok := ff.features[feature]
	if !ok {
		return false
	}
	switch {
	case f.RolloutPercent >= 100:
		return true
	case f.RolloutPercent <= 0 || userID == "":
		return false
	default:
		return bucket(feature, userID) < f.RolloutPercent
	}
}

func bucket(feature, userID string) int {
	h := fnv.New32a()
	h.Write([]byte(feature))
	h.Write([]byte(userID))
	return int(h.Sum32() % 100)
}

// SetRolloutPercent changes a feature for everyone.
func (ff *FeatureFlags) SetRolloutPercent(feature string, percent int) error {
	if percent < 0 || percent > 100 {
		return ErrInvalidRolloutPercent
	}

	ff.mu.Lock()
	defer ff.mu.Unlock()

	f, ok := ff.features[feature]
	if !ok {
		return ErrFeatureNotFound
	}
	f.RolloutPercent = percent
	ff.features[feature] = f
	return nil
}

// SetUserOverride forces feature on or off for one user.
func (ff *FeatureFlags) SetUserOverride(userID, feature string, enabled bool) {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	if ff.overrides[userID] == nil {
		ff.overrides[userID] = make(map[string]bool)
	}
	ff.overrides[userID][feature] = enabled
}

// ClearUserOverrides drops every override of userID.
func (ff *FeatureFlags) ClearUserOverrides(userID string) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	delete(ff.overrides, userID)
}

// Features returns the toggles sorted by name.
func (ff *FeatureFlags) Features() []Feature {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	out := make([]Feature, 0, len(ff.features))
	for _, f := range ff.features {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
