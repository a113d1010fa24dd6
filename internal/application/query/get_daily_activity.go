package query

import (
	"context"
	"time"

	"github.com/itlingo/progress-engine/internal/domain/progress"
	"github.com/itlingo/progress-engine/internal/domain/shared"
	"github.com/itlingo/progress-engine/internal/domain/user"
	"github.com/itlingo/progress-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// DAILY ACTIVITY QUERY
// ══════════════════════════════════════════════════════════════════════════════

// DailyActivityQuery selects day buckets in [From, To]. Both ends are
// truncated to the start of their day. A zero To means today; a zero From
// means six days before To.
type DailyActivityQuery struct {
	UserID string
	From   time.Time
	To     time.Time
}

// DailyActivityResult is the range plus totals over it.
type DailyActivityResult struct {
	From         string             `json:"from"`
	To           string             `json:"to"`
	Days         []DailyActivityDTO `json:"days"`
	TotalMinutes int                `json:"total_minutes"`
	TotalXP      int                `json:"total_xp"`
	ActiveDays   int                `json:"active_days"`
}

// DailyActivityHandler serves DailyActivityQuery.
type DailyActivityHandler struct {
	users    user.Repository
	progress progress.Repository
	clock    timeutil.Clock
	location *time.Location
}

// NewDailyActivityHandler creates the handler. Days are bucketed in loc.
func NewDailyActivityHandler(users user.Repository, progressRepo progress.Repository, clock timeutil.Clock, loc *time.Location) *DailyActivityHandler {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &DailyActivityHandler{users: users, progress: progressRepo, clock: clock, location: loc}
}

// Handle returns buckets with From <= day <= To, ascending.
func (h *DailyActivityHandler) Handle(ctx context.Context, q DailyActivityQuery) (*DailyActivityResult, error) {
	const op = "DailyActivityRange"

	if q.UserID == "" {
		return nil, shared.NewDomainError("query", op, shared.ErrInvalidInput, "user_id is required")
	}

	to := q.To
	if to.IsZero() {
		to = h.clock.Now()
	}
	to = timeutil.StartOfDay(to, h.location)

	from := q.From
	if from.IsZero() {
		from = to.AddDate(0, 0, -6)
	}
	from = timeutil.StartOfDay(from, h.location)

	if from.After(to) {
		return nil, shared.NewDomainError("query", op, shared.ErrInvalidInput, "from must not be after to")
	}

	if _, err := h.users.Get(ctx, q.UserID); err != nil {
		return nil, shared.Dependency("query", op, err)
	}

	days, err := h.progress.ActivityRange(ctx, q.UserID, from, to)
	if err != nil {
		return nil, shared.Dependency("query", op, err)
	}

	res := &DailyActivityResult{
		From: timeutil.FormatDateIn(from, h.location),
		To:   timeutil.FormatDateIn(to, h.location),
		Days: activityDTOs(days, h.location),
	}
	for _, d := range days {
		res.TotalMinutes += d.MinutesSpent
		res.TotalXP += d.XPEarned
		if d.MinutesSpent > 0 || d.XPEarned > 0 || d.LessonsCompleted > 0 || d.QuizzesCompleted > 0 {
			res.ActiveDays++
		}
	}
	return res, nil
}

func activityDTOs(days []progress.DailyActivity, loc *time.Location) []DailyActivityDTO {
	out := make([]DailyActivityDTO, 0, len(days))
	for _, d := range days {
		out = append(out, DailyActivityDTO{
			Date:             timeutil.FormatDateIn(d.Day, loc),
			MinutesSpent:     d.MinutesSpent,
			XPEarned:         d.XPEarned,
			LessonsCompleted: d.LessonsCompleted,
			QuizzesCompleted: d.QuizzesCompleted,
		})
	}
	return out
}
