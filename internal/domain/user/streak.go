package user

import (
	"time"

	"github.com/itlingo/progress-engine/pkg/timeutil"
)

// StreakState is the input and output of the streak transition.
type StreakState struct {
	LastLoginAt *time.Time
	Current     int
	Longest     int
}

// NextStreak applies a login at `at` to prev.
//
// The day difference is floor(elapsed / 24h) with no calendar correction:
// 1 extends the streak, more than 1 restarts it, 0 (or a clock that went
// backwards) leaves it unchanged. A first login starts at 1. LastLoginAt is
// always moved to `at`.
func NextStreak(prev StreakState, at time.Time) StreakState {
	next := StreakState{
		LastLoginAt: &at,
		Current:     prev.Current,
		Longest:     prev.Longest,
	}

	if prev.LastLoginAt == nil {
		next.Current = 1
	} else {
		switch days := timeutil.ElapsedDays(*prev.LastLoginAt, at); {
		case days == 1:
			next.Current = prev.Current + 1
		case days > 1:
			next.Current = 1
		}
	}

	if next.Current > next.Longest {
		next.Longest = next.Current
	}
	return next
}

// Extended reports whether the transition grew the streak.
func (s StreakState) Extended(prev StreakState) bool {
	return s.Current > prev.Current
}
