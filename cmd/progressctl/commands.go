package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/itlingo/progress-engine/internal/application/command"
	"github.com/itlingo/progress-engine/internal/application/query"
	"github.com/itlingo/progress-engine/internal/domain/access"
	"github.com/itlingo/progress-engine/internal/domain/badge"
	"github.com/itlingo/progress-engine/internal/domain/progress"
	"github.com/itlingo/progress-engine/internal/domain/user"
	"github.com/itlingo/progress-engine/internal/infrastructure/persistence/redis"
	"github.com/itlingo/progress-engine/pkg/logger"
	"github.com/itlingo/progress-engine/pkg/timeutil"
)

type subcommand struct {
	summary string
	run     func(ctx context.Context, a *app, args []string, out io.Writer) error
}

var commands = map[string]subcommand{
	"migrate":         {"apply, list (-status) or revert (-rollback) schema migrations", runMigrate},
	"seed":            {"load quizzes, lessons, vocabulary and badges from a JSON file", runSeed},
	"register":        {"create a user", runRegister},
	"progress":        {"show a user's progress", runProgress},
	"login":           {"record a login and update the streak", runLogin},
	"lesson":          {"set a lesson status (completing credits XP)", runLesson},
	"complete-lesson": {"complete a lesson and credit its XP", runLesson},
	"submit-quiz":     {"score a quiz attempt", runSubmitQuiz},
	"review":          {"record a vocabulary review", runReview},
	"activity":        {"add study time and counters to a day", runActivity},
	"activity-report": {"summarise daily activity over a date range", runActivityReport},
	"pending-lessons": {"list lessons the user has not completed", runPendingLessons},
	"can-start":       {"check lesson prerequisites", runCanStart},
	"badges":          {"list earned badges", runBadges},
	"evaluate-badges": {"re-run badge evaluation for one condition", runEvaluateBadges},
	"leaderboard":     {"show the XP leaderboard", runLeaderboard},
	"correct-xp":      {"adjust a user's XP (requires the xp:correct capability)", runCorrectXP},
	"issue-token":     {"sign a capability token (non-production only)", runIssueToken},
	"features":        {"show feature flags, optionally as seen by one user", runFeatures},
}

func commandNames() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func parse(fs *flag.FlagSet, args []string, required ...string) error {
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %s: %v", errUsage, fs.Name(), err)
	}
	for _, name := range required {
		if f := fs.Lookup(name); f != nil && f.Value.String() == "" {
			return fmt.Errorf("%w: %s: -%s is required", errUsage, fs.Name(), name)
		}
	}
	return nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

type badgeView struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Condition string `json:"condition"`
	Threshold int    `json:"threshold"`
	XPReward  int    `json:"xp_reward,omitempty"`
}

func badgeViews(badges []badge.Badge) []badgeView {
	out := make([]badgeView, 0, len(badges))
	for _, b := range badges {
		out = append(out, badgeView{
			ID:        b.ID,
			Name:      b.Name,
			Condition: string(b.Condition),
			Threshold: b.Threshold,
			XPReward:  b.XPReward,
		})
	}
	return out
}

func (a *app) parseDay(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return timeutil.ParseDateIn(value, a.cfg.App.Location)
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEMA AND CATALOG
// ══════════════════════════════════════════════════════════════════════════════

func runMigrate(ctx context.Context, a *app, args []string, out io.Writer) error {
	fs := newFlagSet("migrate")
	status := fs.Bool("status", false, "list migrations without applying")
	rollback := fs.Bool("rollback", false, "revert the newest applied migration")
	if err := parse(fs, args); err != nil {
		return err
	}
	m := a.stores.migrator
	if m == nil {
		return writeJSON(out, map[string]any{"driver": a.stores.driver, "applied": 0, "note": "schema is managed on open"})
	}

	switch {
	case *status:
		list, err := m.Status(ctx)
		if err != nil {
			return err
		}
		rows := make([]map[string]any, 0, len(list))
		for _, mig := range list {
			row := map[string]any{"version": mig.Version, "name": mig.Name, "applied": mig.IsApplied}
			if mig.IsApplied {
				row["applied_at"] = mig.AppliedAt
			}
			rows = append(rows, row)
		}
		return writeJSON(out, map[string]any{"migrations": rows})

	case *rollback:
		version, err := m.Rollback(ctx)
		if err != nil {
			return err
		}
		a.log.Warn("migration rolled back", logger.Int("version", version))
		return writeJSON(out, map[string]any{"driver": a.stores.driver, "reverted": version})

	default:
		applied, err := m.Migrate(ctx)
		if err != nil {
			return err
		}
		a.log.Info("migrations applied", logger.Int("applied", applied))
		return writeJSON(out, map[string]any{"driver": a.stores.driver, "applied": applied})
	}
}

func runSeed(ctx context.Context, a *app, args []string, out io.Writer) error {
	fs := newFlagSet("seed")
	file := fs.String("file", "", "catalog JSON file")
	if err := parse(fs, args, "file"); err != nil {
		return err
	}

	f, err := os.Open(*file)
	if err != nil {
		return err
	}
	defer f.Close()

	cat, err := decodeCatalog(f)
	if err != nil {
		return fmt.Errorf("%s: %w", *file, err)
	}

	counts, err := cat.apply(ctx, a.stores.seeder)
	if err != nil {
		return err
	}
	a.log.Info("catalog seeded",
		logger.Int("quizzes", counts.Quizzes),
		logger.Int("lessons", counts.Lessons),
		logger.Int("vocabulary", counts.Vocabulary),
		logger.Int("badges", counts.Badges),
	)
	return writeJSON(out, counts)
}

// ══════════════════════════════════════════════════════════════════════════════
// USERS
// ══════════════════════════════════════════════════════════════════════════════

func runRegister(ctx context.Context, a *app, args []string, out io.Writer) error {
	fs := newFlagSet("register")
	id := fs.String("id", "", "user id")
	email := fs.String("email", "", "email address")
	name := fs.String("name", "", "full name")
	auth0 := fs.String("auth0", "", "identity provider subject")
	if err := parse(fs, args, "id", "email"); err != nil {
		return err
	}

	u, err := user.NewUser(user.NewUserParams{
		ID:       *id,
		Auth0ID:  *auth0,
		Email:    *email,
		FullName: *name,
		Now:      a.clock.Now().UTC(),
	})
	if err != nil {
		return err
	}
	if err := a.stores.users.Create(ctx, u); err != nil {
		return err
	}
	if err := a.stores.progress.Ensure(ctx, u.ID); err != nil {
		return err
	}
	a.log.Info("user registered", logger.UserID(u.ID))
	return writeJSON(out, map[string]any{"id": u.ID, "email": u.Email, "full_name": u.FullName})
}

func runLogin(ctx context.Context, a *app, args []string, out io.Writer) error {
	fs := newFlagSet("login")
	userID := fs.String("user", "", "user id")
	at := fs.String("at", "", "login time (RFC 3339, default now)")
	if err := parse(fs, args, "user"); err != nil {
		return err
	}

	cmd := command.LoginCommand{UserID: *userID}
	if *at != "" {
		t, err := time.Parse(time.RFC3339, *at)
		if err != nil {
			return fmt.Errorf("%w: -at: %v", errUsage, err)
		}
		cmd.At = t
	}

	res, err := a.coordinator.Login(ctx, cmd)
	if err != nil {
		return err
	}
	return writeJSON(out, map[string]any{
		"current_streak": res.CurrentStreak,
		"longest_streak": res.LongestStreak,
		"new_badges":     badgeViews(res.NewBadges),
	})
}

func runCorrectXP(ctx context.Context, a *app, args []string, out io.Writer) error {
	fs := newFlagSet("correct-xp")
	token := fs.String("token", os.Getenv("PROGRESS_TOKEN"), "capability token (default $PROGRESS_TOKEN)")
	userID := fs.String("user", "", "user id")
	delta := fs.Int("delta", 0, "XP adjustment, may be negative")
	reason := fs.String("reason", "", "audit reason")
	if err := parse(fs, args, "token", "user", "reason"); err != nil {
		return err
	}
	if a.verifier == nil {
		return errors.New("JWT_SECRET is not configured")
	}

	principal, err := a.verifier.Verify(*token)
	if err != nil {
		return err
	}

	res, err := a.coordinator.CorrectXP(ctx, command.CorrectXPCommand{
		Actor:  principal.Capabilities,
		UserID: *userID,
		Delta:  *delta,
		Reason: *reason,
	})
	if err != nil {
		return err
	}
	a.log.Info("xp corrected",
		logger.UserID(*userID),
		logger.String("actor", principal.Subject),
		logger.XPAmount(*delta),
		logger.String("reason", *reason),
	)
	return writeJSON(out, map[string]any{"total_xp": res.TotalXP, "new_badges": badgeViews(res.NewBadges)})
}

func runIssueToken(_ context.Context, a *app, args []string, out io.Writer) error {
	fs := newFlagSet("issue-token")
	subject := fs.String("sub", "", "token subject")
	roles := fs.String("roles", "", "comma-separated roles")
	perms := fs.String("perms", "", "comma-separated permissions, e.g. "+access.CorrectXP)
	ttl := fs.Duration("ttl", time.Hour, "token lifetime")
	if err := parse(fs, args, "sub"); err != nil {
		return err
	}
	if a.cfg.IsProduction() {
		return errors.New("issue-token is disabled in production")
	}
	if a.verifier == nil {
		return errors.New("JWT_SECRET is not configured")
	}

	token, err := a.verifier.Issue(*subject, splitList(*roles), splitList(*perms), *ttl)
	if err != nil {
		return err
	}
	return writeJSON(out, map[string]string{"token": token})
}

func runFeatures(_ context.Context, a *app, args []string, out io.Writer) error {
	fs := newFlagSet("features")
	userID := fs.String("user", "", "evaluate the flags for this user")
	if err := parse(fs, args); err != nil {
		return err
	}
	if a.cfg.Features == nil {
		return writeJSON(out, map[string]any{"features": []any{}})
	}

	rows := make([]map[string]any, 0, 3)
	for _, f := range a.cfg.Features.Features() {
		row := map[string]any{"name": f.Name, "description": f.Description, "rollout_percent": f.RolloutPercent}
		if *userID != "" {
			row["enabled"] = a.cfg.Features.Enabled(f.Name, *userID)
		}
		rows = append(rows, row)
	}
	return writeJSON(out, map[string]any{"features": rows})
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

func runProgress(ctx context.Context, a *app, args []string, out io.Writer) error {
	fs := newFlagSet("progress")
	userID := fs.String("user", "", "user id")
	if err := parse(fs, args, "user"); err != nil {
		return err
	}

	dto, err := a.progress.Handle(ctx, query.GetProgressQuery{UserID: *userID})
	if err != nil {
		return err
	}
	return writeJSON(out, dto)
}

func runLesson(ctx context.Context, a *app, args []string, out io.Writer) error {
	fs := newFlagSet("lesson")
	userID := fs.String("user", "", "user id")
	lessonID := fs.String("lesson", "", "lesson id")
	status := fs.String("status", string(progress.LessonCompleted), "not_started, in_progress or completed")
	if err := parse(fs, args, "user", "lesson"); err != nil {
		return err
	}

	s, err := progress.ParseLessonStatus(*status)
	if err != nil {
		return err
	}

	res, err := a.coordinator.UpdateLessonStatus(ctx, command.UpdateLessonCommand{
		UserID:   *userID,
		LessonID: *lessonID,
		Status:   s,
	})
	if err != nil {
		return err
	}
	return writeJSON(out, map[string]any{
		"lesson_id":  res.Lesson.LessonID,
		"status":     res.Lesson.Status,
		"xp_awarded": res.XPAwarded,
		"total_xp":   res.TotalXP,
		"new_badges": badgeViews(res.NewBadges),
	})
}

func runSubmitQuiz(ctx context.Context, a *app, args []string, out io.Writer) error {
	fs := newFlagSet("submit-quiz")
	userID := fs.String("user", "", "user id")
	quizID := fs.String("quiz", "", "quiz id")
	answers := fs.String("answers", "", `answers as JSON: {"question_id":"answer"}`)
	duration := fs.Int("duration", 0, "time spent in seconds")
	if err := parse(fs, args, "user", "quiz", "answers"); err != nil {
		return err
	}

	var submitted map[string]string
	if err := json.Unmarshal([]byte(*answers), &submitted); err != nil {
		return fmt.Errorf("%w: -answers: %v", errUsage, err)
	}

	res, err := a.coordinator.SubmitQuiz(ctx, command.SubmitQuizCommand{
		UserID:          *userID,
		QuizID:          *quizID,
		Answers:         submitted,
		DurationSeconds: *duration,
	})
	if err != nil {
		return err
	}
	return writeJSON(out, map[string]any{
		"attempt_id":      res.AttemptID,
		"score":           res.Score,
		"passed":          res.Passed,
		"correct_count":   res.CorrectCount,
		"total_questions": res.TotalQuestions,
		"xp_awarded":      res.XPAwarded,
		"total_xp":        res.TotalXP,
		"quiz_attempts":   res.QuizStats.TotalAttempts,
		"quiz_average":    res.QuizStats.AverageScore,
		"new_badges":      badgeViews(res.NewBadges),
	})
}

func runReview(ctx context.Context, a *app, args []string, out io.Writer) error {
	fs := newFlagSet("review")
	userID := fs.String("user", "", "user id")
	word := fs.String("word", "", "vocabulary id")
	correct := fs.Bool("correct", false, "the answer was correct")
	score := fs.Int("score", -1, "optional 0-100 review score")
	if err := parse(fs, args, "user", "word"); err != nil {
		return err
	}

	cmd := command.ReviewVocabularyCommand{UserID: *userID, VocabularyID: *word, Correct: *correct}
	if *score >= 0 {
		cmd.Score = score
	}

	res, err := a.coordinator.ReviewVocabulary(ctx, cmd)
	if err != nil {
		return err
	}
	return writeJSON(out, map[string]any{
		"vocabulary_id":   res.Mastery.VocabularyID,
		"level":           res.Mastery.Level,
		"correct_count":   res.Mastery.CorrectCount,
		"incorrect_count": res.Mastery.IncorrectCount,
		"new_badges":      badgeViews(res.NewBadges),
	})
}

func runActivity(ctx context.Context, a *app, args []string, out io.Writer) error {
	fs := newFlagSet("activity")
	userID := fs.String("user", "", "user id")
	day := fs.String("date", "", "calendar day YYYY-MM-DD (default today)")
	minutes := fs.Int("minutes", 0, "minutes spent")
	xp := fs.Int("xp", 0, "XP earned")
	lessons := fs.Int("lessons", 0, "lessons completed")
	quizzes := fs.Int("quizzes", 0, "quizzes completed")
	if err := parse(fs, args, "user"); err != nil {
		return err
	}

	at, err := a.parseDay(*day)
	if err != nil {
		return fmt.Errorf("%w: -date: %v", errUsage, err)
	}

	bucket, err := a.coordinator.RecordDailyActivity(ctx, command.RecordActivityCommand{
		UserID: *userID,
		At:     at,
		Delta: progress.ActivityDelta{
			MinutesSpent:     *minutes,
			XPEarned:         *xp,
			LessonsCompleted: *lessons,
			QuizzesCompleted: *quizzes,
		},
	})
	if err != nil {
		return err
	}
	return writeJSON(out, query.DailyActivityDTO{
		Date:             timeutil.FormatDateIn(bucket.Day, a.cfg.App.Location),
		MinutesSpent:     bucket.MinutesSpent,
		XPEarned:         bucket.XPEarned,
		LessonsCompleted: bucket.LessonsCompleted,
		QuizzesCompleted: bucket.QuizzesCompleted,
	})
}

func runActivityReport(ctx context.Context, a *app, args []string, out io.Writer) error {
	fs := newFlagSet("activity-report")
	userID := fs.String("user", "", "user id")
	from := fs.String("from", "", "first day YYYY-MM-DD (default 6 days before -to)")
	to := fs.String("to", "", "last day YYYY-MM-DD (default today)")
	if err := parse(fs, args, "user"); err != nil {
		return err
	}

	q := query.DailyActivityQuery{UserID: *userID}
	var err error
	if q.From, err = a.parseDay(*from); err != nil {
		return fmt.Errorf("%w: -from: %v", errUsage, err)
	}
	if q.To, err = a.parseDay(*to); err != nil {
		return fmt.Errorf("%w: -to: %v", errUsage, err)
	}

	res, err := a.activity.Handle(ctx, q)
	if err != nil {
		return err
	}
	return writeJSON(out, res)
}

func runPendingLessons(ctx context.Context, a *app, args []string, out io.Writer) error {
	fs := newFlagSet("pending-lessons")
	userID := fs.String("user", "", "user id")
	lessons := fs.String("lessons", "", "comma-separated lesson ids")
	if err := parse(fs, args, "user", "lessons"); err != nil {
		return err
	}

	pending, err := a.lessons.PendingLessons(ctx, query.PendingLessonsQuery{
		UserID:    *userID,
		LessonIDs: splitList(*lessons),
	})
	if err != nil {
		return err
	}
	if pending == nil {
		pending = []string{}
	}
	return writeJSON(out, map[string]any{"pending": pending})
}

func runCanStart(ctx context.Context, a *app, args []string, out io.Writer) error {
	fs := newFlagSet("can-start")
	userID := fs.String("user", "", "user id")
	lessonID := fs.String("lesson", "", "lesson id")
	if err := parse(fs, args, "user", "lesson"); err != nil {
		return err
	}

	res, err := a.lessons.CanStartLesson(ctx, query.CanStartLessonQuery{UserID: *userID, LessonID: *lessonID})
	if err != nil {
		return err
	}
	return writeJSON(out, res)
}

// ══════════════════════════════════════════════════════════════════════════════
// BADGES AND LEADERBOARD
// ══════════════════════════════════════════════════════════════════════════════

func runBadges(ctx context.Context, a *app, args []string, out io.Writer) error {
	fs := newFlagSet("badges")
	userID := fs.String("user", "", "user id")
	limit := fs.Int("limit", 0, "most recent n badges (0 for all)")
	if err := parse(fs, args, "user"); err != nil {
		return err
	}

	earned, err := a.badges.Handle(ctx, query.UserBadgesQuery{UserID: *userID, Limit: *limit})
	if err != nil {
		return err
	}
	return writeJSON(out, map[string]any{"badges": earned})
}

func runEvaluateBadges(ctx context.Context, a *app, args []string, out io.Writer) error {
	fs := newFlagSet("evaluate-badges")
	userID := fs.String("user", "", "user id")
	condition := fs.String("condition", "", "lesson_count, quiz_score, streak_days, xp_total or vocabulary_mastered")
	if err := parse(fs, args, "user", "condition"); err != nil {
		return err
	}

	c, err := badge.ParseCondition(*condition)
	if err != nil {
		return err
	}

	awarded, err := a.coordinator.EvaluateBadges(ctx, command.EvaluateBadgesCommand{UserID: *userID, Condition: c})
	if err != nil {
		return err
	}
	return writeJSON(out, map[string]any{"new_badges": badgeViews(awarded)})
}

func runLeaderboard(ctx context.Context, a *app, args []string, out io.Writer) error {
	fs := newFlagSet("leaderboard")
	limit := fs.Int("limit", 0, "number of entries (default from config)")
	rebuild := fs.Bool("rebuild", false, "rebuild the Redis projection from the user store first")
	status := fs.Bool("status", false, "show the Redis projection's last rebuild and, with -user, one score")
	userID := fs.String("user", "", "user for -status")
	remove := fs.String("remove", "", "drop this user from the Redis projection")
	if err := parse(fs, args); err != nil {
		return err
	}

	if *status || *remove != "" {
		if a.board == nil {
			return errBoardDisabled
		}
	}
	if *remove != "" {
		if err := a.board.Remove(ctx, *remove); err != nil {
			return err
		}
		a.log.Info("removed from leaderboard", logger.UserID(*remove))
	}
	if *status {
		return leaderboardStatus(ctx, a, *userID, out)
	}

	if *rebuild {
		if err := rebuildLeaderboard(ctx, a); err != nil {
			return err
		}
	}

	res, err := a.leaderboard.Handle(ctx, query.GetLeaderboardQuery{Limit: *limit})
	if err != nil {
		return err
	}
	return writeJSON(out, res)
}

var errBoardDisabled = errors.New("leaderboard projection is not configured (Redis disabled or unreachable)")

func leaderboardStatus(ctx context.Context, a *app, userID string, out io.Writer) error {
	res := map[string]any{"rebuilt": false}
	meta, err := a.board.Meta(ctx)
	switch {
	case err == nil:
		res["rebuilt"] = true
		res["rebuilt_at"] = meta.RebuiltAt
		res["members"] = meta.Members
	case !errors.Is(err, redis.ErrCacheMiss):
		return err
	}

	if userID != "" {
		xp, ok, err := a.board.Score(ctx, userID)
		if err != nil {
			return err
		}
		res["user_id"] = userID
		res["ranked"] = ok
		res["total_xp"] = xp
	}
	return writeJSON(out, res)
}

func rebuildLeaderboard(ctx context.Context, a *app) error {
	if a.board == nil {
		return errBoardDisabled
	}

	start := time.Now()
	users, err := a.stores.users.TopByXP(ctx, 0)
	if err != nil {
		return err
	}
	totals := make(map[string]int, len(users))
	for _, u := range users {
		totals[u.ID] = u.TotalXP
	}
	if err := a.board.Rebuild(ctx, totals); err != nil {
		return err
	}

	a.log.Info("leaderboard rebuilt",
		logger.Int("members", len(totals)),
		logger.Latency(time.Since(start)),
	)
	return nil
}
