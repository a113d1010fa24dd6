// Package circuitbreaker guards best-effort side effects such as the Redis XP
// leaderboard, so an outage there sheds calls quickly instead of stalling
// every progress request behind a dead dependency.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State is the position of a breaker in the closed, open, half-open cycle.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

var stateNames = [...]string{
	StateClosed:   "closed",
	StateOpen:     "open",
	StateHalfOpen: "half-open",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

var (
	// ErrCircuitOpen rejects a call while the breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrTooManyRequests rejects a call once every half-open probe slot is taken.
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// settings are fixed at construction.
type settings struct {
	name             string
	failureThreshold int
	successThreshold int
	cooldown         time.Duration
	maxProbes        int
	onStateChange    func(name string, from, to State)
	isFailure        func(error) bool
	now              func() time.Time
}

// Option customises a breaker built by New.
type Option func(*settings)

// WithFailureThreshold sets how many consecutive failures open a closed breaker.
func WithFailureThreshold(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.failureThreshold = n
		}
	}
}

// WithSuccessThreshold sets how many probe successes close a half-open breaker.
func WithSuccessThreshold(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.successThreshold = n
		}
	}
}

// WithCooldown sets how long an open breaker waits before probing.
func WithCooldown(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.cooldown = d
		}
	}
}

// WithMaxHalfOpenRequests bounds concurrent probes.
func WithMaxHalfOpenRequests(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.maxProbes = n
		}
	}
}

func WithOnStateChange(fn func(name string, from, to State)) Option {
	return func(s *settings) { s.onStateChange = fn }
}

// WithIsFailure narrows which errors count against the breaker. Caller
// cancellation never counts.
func WithIsFailure(fn func(error) bool) Option {
	return func(s *settings) { s.isFailure = fn }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

// Counts are the breaker's counters. Consecutive runs reset on every state
// change; Requests and TotalFailures accumulate for the breaker's lifetime.
type Counts struct {
	Requests             int
	TotalFailures        int
	ConsecutiveSuccesses int
	ConsecutiveFailures  int
}

func (c *Counts) success() {
	c.Requests++
	c.ConsecutiveSuccesses++
	c.ConsecutiveFailures = 0
}

func (c *Counts) failure() {
	c.Requests++
	c.TotalFailures++
	c.ConsecutiveFailures++
	c.ConsecutiveSuccesses = 0
}

// CircuitBreaker is safe for concurrent use.
type CircuitBreaker struct {
	cfg settings

	mu    sync.Mutex
	state State
	// generation increments on every state change; outcomes reported for an
	// older generation are dropped.
	generation uint64
	counts     Counts
	reopenAt   time.Time
	probes     int
}

// New builds a closed breaker. Without options it opens after 5 consecutive
// failures, probes after 30s and closes after 2 successful probes.
func New(name string, opts ...Option) *CircuitBreaker {
	cfg := settings{
		name:             name,
		failureThreshold: 5,
		successThreshold: 2,
		cooldown:         30 * time.Second,
		maxProbes:        1,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &CircuitBreaker{cfg: cfg}
}

// LeaderboardBreaker guards the Redis XP leaderboard. The projection can be
// rebuilt from the store, so it trips after 3 failures and probes every 15s.
func LeaderboardBreaker(onStateChange func(name string, from, to State)) *CircuitBreaker {
	return New("leaderboard",
		WithFailureThreshold(3),
		WithSuccessThreshold(1),
		WithCooldown(15*time.Second),
		WithOnStateChange(onStateChange),
	)
}

// Execute calls fn unless the breaker rejects it, then records the result.
// The error of fn is returned unchanged.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	gen, err := cb.acquire()
	if err != nil {
		return err
	}
	err = fn(ctx)
	cb.release(gen, err)
	return err
}

func (cb *CircuitBreaker) acquire() (uint64, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.cfg.now()
	cb.advance(now)

	switch cb.state {
	case StateOpen:
		return 0, ErrCircuitOpen
	case StateHalfOpen:
		if cb.probes >= cb.cfg.maxProbes {
			return 0, ErrTooManyRequests
		}
		cb.probes++
	}
	return cb.generation, nil
}

func (cb *CircuitBreaker) release(gen uint64, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if gen != cb.generation {
		return
	}
	if cb.state == StateHalfOpen && cb.probes > 0 {
		cb.probes--
	}

	if !cb.held(err) {
		cb.counts.success()
		if cb.state == StateHalfOpen && cb.counts.ConsecutiveSuccesses >= cb.cfg.successThreshold {
			cb.transition(StateClosed)
		}
		return
	}

	cb.counts.failure()
	if cb.state == StateHalfOpen || cb.counts.ConsecutiveFailures >= cb.cfg.failureThreshold {
		cb.reopenAt = cb.cfg.now().Add(cb.cfg.cooldown)
		cb.transition(StateOpen)
	}
}

// held reports whether err counts against the breaker.
func (cb *CircuitBreaker) held(err error) bool {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return false
	case cb.cfg.isFailure != nil:
		return cb.cfg.isFailure(err)
	default:
		return true
	}
}

// advance moves an open breaker whose cooldown has elapsed to half-open.
func (cb *CircuitBreaker) advance(now time.Time) {
	if cb.state == StateOpen && !now.Before(cb.reopenAt) {
		cb.transition(StateHalfOpen)
	}
}

func (cb *CircuitBreaker) transition(to State) {
	if cb.state == to {
		return
	}
	from := cb.state
	cb.state = to
	cb.generation++
	cb.probes = 0
	cb.counts.ConsecutiveFailures = 0
	cb.counts.ConsecutiveSuccesses = 0

	if cb.cfg.onStateChange != nil {
		cb.cfg.onStateChange(cb.cfg.name, from, to)
	}
}

// State returns the current state, moving to half-open if the cooldown has
// elapsed.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.advance(cb.cfg.now())
	return cb.state
}

// Counts returns a copy of the counters.
func (cb *CircuitBreaker) Counts() Counts {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.counts
}

func (cb *CircuitBreaker) Name() string { return cb.cfg.name }
