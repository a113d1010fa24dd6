// Package command contains write operations (CQRS - Commands).
//
// The Coordinator is the only writer of progress state. Each use case loads
// what it needs, runs the pure calculators from the domain packages, and
// applies the result through targeted repository updates. Steps are not
// wrapped in one transaction: a failure after XP was credited leaves the
// credit in place, and badge evaluation can be re-driven with
// EvaluateBadges.
package command

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/itlingo/progress-engine/internal/domain/badge"
	"github.com/itlingo/progress-engine/internal/domain/catalog"
	"github.com/itlingo/progress-engine/internal/domain/leaderboard"
	"github.com/itlingo/progress-engine/internal/domain/progress"
	"github.com/itlingo/progress-engine/internal/domain/quiz"
	"github.com/itlingo/progress-engine/internal/domain/shared"
	"github.com/itlingo/progress-engine/internal/domain/user"
	"github.com/itlingo/progress-engine/pkg/circuitbreaker"
	"github.com/itlingo/progress-engine/pkg/logger"
	"github.com/itlingo/progress-engine/pkg/timeutil"
)

// Feature names consulted by the coordinator.
const (
	FeatureBadgeRewards          = "gamification.badge_rewards"
	FeatureExtendedBadgeTriggers = "gamification.extended_badge_triggers"
	FeatureLeaderboardLive       = "leaderboard.live"
)

// FeatureGate answers per-user feature checks.
type FeatureGate interface {
	Enabled(feature, userID string) bool
}

// StaticGate enables exactly the listed features for everyone.
type StaticGate map[string]bool

func (g StaticGate) Enabled(feature, _ string) bool { return g[feature] }

// Deps are the collaborators of the Coordinator.
type Deps struct {
	Users    user.Repository
	Progress progress.Repository
	Quizzes  quiz.Repository
	Catalog  catalog.Repository
	Badges   badge.Repository

	// Optional. Without a board the XP projection is skipped.
	Leaderboard leaderboard.Board
	Breaker     *circuitbreaker.CircuitBreaker

	Features FeatureGate
	Logger   *logger.Logger
	Clock    timeutil.Clock
	Location *time.Location
	NewID    func() string

	// MaxBadgeRounds bounds xp_total re-evaluation after badge rewards.
	MaxBadgeRounds int
}

// Coordinator orchestrates the progress use cases.
type Coordinator struct {
	users     user.Repository
	progress  progress.Repository
	quizzes   quiz.Repository
	catalog   catalog.Repository
	badges    badge.Repository
	evaluator *badge.Evaluator

	board   leaderboard.Board
	breaker *circuitbreaker.CircuitBreaker

	features  FeatureGate
	log       *logger.Logger
	clock     timeutil.Clock
	location  *time.Location
	newID     func() string
	maxRounds int
}

// NewCoordinator validates deps and fills defaults.
func NewCoordinator(d Deps) (*Coordinator, error) {
	if d.Users == nil || d.Progress == nil || d.Quizzes == nil || d.Catalog == nil || d.Badges == nil {
		return nil, errors.New("coordinator: users, progress, quizzes, catalog and badges repositories are required")
	}
	if d.Features == nil {
		d.Features = StaticGate{FeatureExtendedBadgeTriggers: true, FeatureLeaderboardLive: true}
	}
	if d.Logger == nil {
		d.Logger = logger.Nop()
	}
	if d.Clock == nil {
		d.Clock = timeutil.SystemClock{}
	}
	if d.Location == nil {
		d.Location = time.UTC
	}
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}
	if d.MaxBadgeRounds <= 0 {
		d.MaxBadgeRounds = 5
	}
	if d.Leaderboard != nil && d.Breaker == nil {
		d.Breaker = circuitbreaker.LeaderboardBreaker(nil)
	}

	return &Coordinator{
		users:     d.Users,
		progress:  d.Progress,
		quizzes:   d.Quizzes,
		catalog:   d.Catalog,
		badges:    d.Badges,
		evaluator: badge.NewEvaluator(d.Badges),
		board:     d.Leaderboard,
		breaker:   d.Breaker,
		features:  d.Features,
		log:       d.Logger.With(logger.Component("coordinator")),
		clock:     d.Clock,
		location:  d.Location,
		newID:     d.NewID,
		maxRounds: d.MaxBadgeRounds,
	}, nil
}

// logFor prefers the request-scoped logger carried by ctx.
func (c *Coordinator) logFor(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx, nil); l != nil {
		return l.With(logger.Component("coordinator"))
	}
	return c.log
}

func (c *Coordinator) now() time.Time {
	return c.clock.Now().UTC()
}

// ══════════════════════════════════════════════════════════════════════════════
// SHARED STEPS
// ══════════════════════════════════════════════════════════════════════════════

// requireUser loads the user or fails with NotFound.
func (c *Coordinator) requireUser(ctx context.Context, op, userID string) (*user.User, error) {
	u, err := c.users.Get(ctx, userID)
	if err != nil {
		return nil, shared.Dependency("user", op, err)
	}
	return u, nil
}

// creditXP adds xp to the user's total, projects the new total and settles
// xp_total badges.
func (c *Coordinator) creditXP(ctx context.Context, userID string, xp int) (int, []badge.Badge, error) {
	total, err := c.users.AddXP(ctx, userID, xp)
	if err != nil {
		return 0, nil, shared.Dependency("user", "AddXP", err)
	}
	c.project(ctx, userID, total)
	awarded, total, err := c.settleBadges(ctx, userID, badge.ConditionXPTotal, total, total)
	return total, awarded, err
}

// settleBadges awards every badge of condition that value qualifies for.
// With badge rewards enabled, each newly won badge credits its XP reward
// once, which can in turn qualify further xp_total badges; that loop runs
// at most maxRounds times. Returns all awarded badges and the latest total.
func (c *Coordinator) settleBadges(ctx context.Context, userID string, condition badge.ConditionType, value, totalXP int) ([]badge.Badge, int, error) {
	awarded, err := c.award(ctx, userID, condition, value)
	if err != nil {
		return nil, totalXP, err
	}
	all := awarded

	if !c.features.Enabled(FeatureBadgeRewards, userID) {
		return all, totalXP, nil
	}

	for round := 0; round < c.maxRounds; round++ {
		reward := 0
		for _, b := range awarded {
			reward += b.XPReward
		}
		if reward <= 0 {
			break
		}

		totalXP, err = c.users.AddXP(ctx, userID, reward)
		if err != nil {
			return all, totalXP, shared.Dependency("user", "AddXP", err)
		}
		c.project(ctx, userID, totalXP)

		awarded, err = c.award(ctx, userID, badge.ConditionXPTotal, totalXP)
		if err != nil {
			return all, totalXP, err
		}
		all = append(all, awarded...)
	}
	return all, totalXP, nil
}

// award runs the evaluator and stores each award. Only badges this call
// actually created are returned; a concurrent winner's award is a no-op.
func (c *Coordinator) award(ctx context.Context, userID string, condition badge.ConditionType, value int) ([]badge.Badge, error) {
	candidates, err := c.evaluator.Evaluate(ctx, userID, condition, value)
	if err != nil {
		return nil, shared.Dependency("badge", "Evaluate", err)
	}

	var created []badge.Badge
	for _, b := range candidates {
		_, isNew, err := c.badges.Award(ctx, userID, b.ID, c.now())
		if err != nil {
			return created, shared.Dependency("badge", "Award", err)
		}
		if !isNew {
			continue
		}
		created = append(created, b)
		c.logFor(ctx).Info("badge awarded",
			logger.UserID(userID),
			logger.BadgeID(b.ID),
			logger.String("condition", string(condition)),
			logger.Int("value", value),
		)
	}
	return created, nil
}

// extendedTriggers reports whether lesson, quiz score and vocabulary
// badges are evaluated for userID.
func (c *Coordinator) extendedTriggers(userID string) bool {
	return c.features.Enabled(FeatureExtendedBadgeTriggers, userID)
}

// project pushes the total into the leaderboard. Failures are logged and
// never returned.
func (c *Coordinator) project(ctx context.Context, userID string, totalXP int) {
	if c.board == nil || !c.features.Enabled(FeatureLeaderboardLive, userID) {
		return
	}
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.board.SetScore(ctx, userID, totalXP)
	})
	if err != nil {
		c.logFor(ctx).Warn("leaderboard projection failed",
			logger.UserID(userID),
			logger.XPAmount(totalXP),
			logger.String("breaker", c.breaker.State().String()),
			logger.Err(err),
		)
	}
}
