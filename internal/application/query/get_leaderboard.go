package query

import (
	"context"
	"time"

	"github.com/itlingo/progress-engine/internal/domain/leaderboard"
	"github.com/itlingo/progress-engine/internal/domain/shared"
	"github.com/itlingo/progress-engine/internal/domain/user"
	"github.com/itlingo/progress-engine/pkg/circuitbreaker"
	"github.com/itlingo/progress-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET LEADERBOARD QUERY
// Served from the ranked projection when one is configured and reachable,
// otherwise straight from the user store.
// ══════════════════════════════════════════════════════════════════════════════

const maxLeaderboardLimit = 100

// GetLeaderboardQuery contains the query parameters.
type GetLeaderboardQuery struct {
	// Limit defaults to the handler's default and is capped at 100.
	Limit int
}

// GetLeaderboardResult is the ranked list.
type GetLeaderboardResult struct {
	Entries     []leaderboard.Entry `json:"entries"`
	Source      string              `json:"source"`
	GeneratedAt time.Time           `json:"generated_at"`
}

// Leaderboard sources.
const (
	SourceProjection = "projection"
	SourceStore      = "store"
)

// GetLeaderboardHandler serves GetLeaderboardQuery.
type GetLeaderboardHandler struct {
	users        user.Repository
	board        leaderboard.Board
	breaker      *circuitbreaker.CircuitBreaker
	defaultLimit int
	log          *logger.Logger
}

// NewGetLeaderboardHandler creates the handler. board and breaker may be
// nil; without a board every request reads the user store.
func NewGetLeaderboardHandler(
	users user.Repository,
	board leaderboard.Board,
	breaker *circuitbreaker.CircuitBreaker,
	defaultLimit int,
	log *logger.Logger,
) *GetLeaderboardHandler {
	if defaultLimit <= 0 {
		defaultLimit = 10
	}
	if log == nil {
		log = logger.Nop()
	}
	if board != nil && breaker == nil {
		breaker = circuitbreaker.LeaderboardBreaker(nil)
	}
	return &GetLeaderboardHandler{
		users:        users,
		board:        board,
		breaker:      breaker,
		defaultLimit: defaultLimit,
		log:          log.With(logger.Component("leaderboard_query")),
	}
}

// Handle returns the top entries.
func (h *GetLeaderboardHandler) Handle(ctx context.Context, q GetLeaderboardQuery) (*GetLeaderboardResult, error) {
	if q.Limit < 0 {
		return nil, shared.NewDomainError("query", "GetLeaderboard", shared.ErrInvalidInput, "limit cannot be negative")
	}
	limit := q.Limit
	if limit == 0 {
		limit = h.defaultLimit
	}
	if limit > maxLeaderboardLimit {
		limit = maxLeaderboardLimit
	}

	if h.board != nil {
		entries, err := h.fromProjection(ctx, limit)
		if err == nil {
			return &GetLeaderboardResult{Entries: entries, Source: SourceProjection, GeneratedAt: time.Now().UTC()}, nil
		}
		h.log.Warn("leaderboard projection unavailable, reading user store",
			logger.String("breaker", h.breaker.State().String()),
			logger.Err(err),
		)
	}

	entries, err := h.fromStore(ctx, limit)
	if err != nil {
		return nil, err
	}
	return &GetLeaderboardResult{Entries: entries, Source: SourceStore, GeneratedAt: time.Now().UTC()}, nil
}

func (h *GetLeaderboardHandler) fromProjection(ctx context.Context, limit int) ([]leaderboard.Entry, error) {
	var entries []leaderboard.Entry
	err := h.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		entries, err = h.board.Top(ctx, limit)
		return err
	})
	if err != nil {
		return nil, err
	}

	for i := range entries {
		u, err := h.users.Get(ctx, entries[i].UserID)
		if err != nil {
			if shared.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		entries[i].FullName = u.FullName
	}
	return entries, nil
}

func (h *GetLeaderboardHandler) fromStore(ctx context.Context, limit int) ([]leaderboard.Entry, error) {
	users, err := h.users.TopByXP(ctx, limit)
	if err != nil {
		return nil, shared.Dependency("query", "GetLeaderboard", err)
	}
	entries := make([]leaderboard.Entry, len(users))
	for i, u := range users {
		entries[i] = leaderboard.Entry{UserID: u.ID, FullName: u.FullName, TotalXP: u.TotalXP}
	}
	return leaderboard.Assign(entries), nil
}
