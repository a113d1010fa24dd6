// Package timeutil provides the calendar helpers the progress engine needs:
// daily activity buckets in a configured location and elapsed-day arithmetic
// for streaks.
// No external dependencies - uses only standard library.
package timeutil

import (
	"time"
)

// Day is one calendar day.
const Day = 24 * time.Hour

// Common date formats.
const (
	// FormatDate is the standard date format (YYYY-MM-DD).
	FormatDate = "2006-01-02"
	// FormatDateTime is the standard datetime format.
	FormatDateTime = "2006-01-02 15:04"
)

// Clock abstracts time.Now so use cases can be tested deterministically.
type Clock interface {
	Now() time.Time
}

// SystemClock returns the wall clock time.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns T.
type FixedClock struct{ T time.Time }

func (c FixedClock) Now() time.Time { return c.T }

// LoadLocation resolves an IANA zone name. Empty means UTC.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" || name == "UTC" {
		return time.UTC, nil
	}
	return time.LoadLocation(name)
}

// StartOfDay returns midnight of t's calendar day in loc.
// A nil loc means UTC.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// EndOfDay returns the last nanosecond of t's calendar day in loc.
func EndOfDay(t time.Time, loc *time.Location) time.Time {
	return StartOfDay(t, loc).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// IsSameDay checks if two instants fall on the same calendar day in loc.
func IsSameDay(t1, t2 time.Time, loc *time.Location) bool {
	return StartOfDay(t1, loc).Equal(StartOfDay(t2, loc))
}

// ElapsedDays returns floor((to - from) / 24h). The result is negative when
// to precedes from. No calendar or DST corrections are applied.
func ElapsedDays(from, to time.Time) int {
	d := to.Sub(from)
	days := int(d / Day)
	if d < 0 && d%Day != 0 {
		days--
	}
	return days
}

// FormatDateIn formats t as YYYY-MM-DD in loc.
func FormatDateIn(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(FormatDate)
}

// ParseDateIn parses a YYYY-MM-DD string as midnight in loc.
func ParseDateIn(value string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	return time.ParseInLocation(FormatDate, value, loc)
}
