package user

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextStreak(t *testing.T) {
	last := time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		prev        StreakState
		at          time.Time
		wantCurrent int
		wantLongest int
	}{
		{
			name:        "first login",
			prev:        StreakState{Current: 0, Longest: 4},
			at:          last,
			wantCurrent: 1,
			wantLongest: 4,
		},
		{
			name:        "first login with empty history",
			prev:        StreakState{},
			at:          last,
			wantCurrent: 1,
			wantLongest: 1,
		},
		{
			name:        "one day later increments",
			prev:        StreakState{LastLoginAt: &last, Current: 3, Longest: 3},
			at:          last.Add(25 * time.Hour),
			wantCurrent: 4,
			wantLongest: 4,
		},
		{
			name:        "same day is unchanged",
			prev:        StreakState{LastLoginAt: &last, Current: 3, Longest: 7},
			at:          last.Add(6 * time.Hour),
			wantCurrent: 3,
			wantLongest: 7,
		},
		{
			name:        "next calendar day under 24h is unchanged",
			prev:        StreakState{LastLoginAt: &last, Current: 3, Longest: 3},
			at:          last.Add(20 * time.Hour),
			wantCurrent: 3,
			wantLongest: 3,
		},
		{
			name:        "three days later resets",
			prev:        StreakState{LastLoginAt: &last, Current: 9, Longest: 9},
			at:          last.Add(3 * 24 * time.Hour),
			wantCurrent: 1,
			wantLongest: 9,
		},
		{
			name:        "clock skew backwards is unchanged",
			prev:        StreakState{LastLoginAt: &last, Current: 2, Longest: 5},
			at:          last.Add(-2 * time.Hour),
			wantCurrent: 2,
			wantLongest: 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextStreak(tt.prev, tt.at)

			require.NotNil(t, got.LastLoginAt)
			assert.True(t, got.LastLoginAt.Equal(tt.at))
			assert.Equal(t, tt.wantCurrent, got.Current)
			assert.Equal(t, tt.wantLongest, got.Longest)
			assert.GreaterOrEqual(t, got.Longest, got.Current)
		})
	}
}

func TestStreakState_Extended(t *testing.T) {
	last := time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)
	prev := StreakState{LastLoginAt: &last, Current: 1, Longest: 1}

	assert.True(t, NextStreak(prev, last.Add(24*time.Hour)).Extended(prev))
	assert.False(t, NextStreak(prev, last.Add(time.Hour)).Extended(prev))
}

func TestNewUser(t *testing.T) {
	now := time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)
	u, err := NewUser(NewUserParams{ID: "u1", Auth0ID: "auth0|1", Email: " Ana@Example.com ", Now: now})
	require.NoError(t, err)

	assert.Equal(t, "ana@example.com", u.Email)
	assert.True(t, u.IsActive)
	assert.Zero(t, u.TotalXP)
	assert.Nil(t, u.LastLoginAt)
	assert.Equal(t, now, u.CreatedAt)

	_, err = NewUser(NewUserParams{ID: "", Email: "a@b.c"})
	assert.Error(t, err)
	_, err = NewUser(NewUserParams{ID: "u2", Email: "nope"})
	assert.Error(t, err)
}
