// Package retry retries startup dials (database pool, Redis) with capped
// exponential backoff and jitter.
//
// Request paths never retry: a failed store write surfaces to the caller as
// a Dependency error. Only establishing a connection is retried here.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// stopError marks an error that must not be retried.
type stopError struct {
	err error
}

func (e *stopError) Error() string { return e.err.Error() }
func (e *stopError) Unwrap() error { return e.err }

// Stop wraps err so Do returns it immediately.
// Use it for failures another attempt cannot fix (bad URL, auth).
func Stop(err error) error {
	if err == nil {
		return nil
	}
	return &stopError{err: err}
}

// IsStop reports whether err was wrapped by Stop.
func IsStop(err error) bool {
	var s *stopError
	return errors.As(err, &s)
}

// Policy describes how often and how long to wait.
type Policy struct {
	// Attempts is the total number of calls, including the first. Values
	// below 1 mean a single call.
	Attempts int

	// Base is the delay before the second call; it doubles per attempt.
	Base time.Duration

	// Max caps a single delay.
	Max time.Duration

	// Jitter spreads each delay by ±Jitter (0.1 = 10%).
	Jitter float64

	// OnRetry is called before each wait.
	OnRetry func(attempt int, err error, wait time.Duration)

	// sleep is replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// DialPolicy is the default for opening connections at startup.
func DialPolicy(attempts int) Policy {
	return Policy{
		Attempts: attempts,
		Base:     250 * time.Millisecond,
		Max:      5 * time.Second,
		Jitter:   0.1,
	}
}

// Delay returns the wait after the given failed attempt (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(p.Base) * math.Pow(2, float64(attempt-1))
	if p.Max > 0 && d > float64(p.Max) {
		d = float64(p.Max)
	}
	if p.Jitter > 0 {
		d += d * p.Jitter * (rand.Float64()*2 - 1)
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// Do calls op until it succeeds, returns a Stop error, the attempts run
// out or ctx is done. The last error from op is returned unwrapped.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var last error
	for attempt := 1; ; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		var s *stopError
		if errors.As(err, &s) {
			return s.err
		}
		last = err

		if attempt >= attempts {
			return last
		}

		wait := p.Delay(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, wait)
		}
		if sleep(ctx, wait) != nil {
			return last
		}
	}
}

// Value is Do for operations that produce a result.
func Value[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := p.Do(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
