package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noSleep(waits *[]time.Duration) func(context.Context, time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return ctx.Err()
	}
}

func TestPolicy_RetriesUntilSuccess(t *testing.T) {
	var waits []time.Duration
	p := Policy{Attempts: 5, Base: 10 * time.Millisecond, Max: time.Second, sleep: noSleep(&waits)}

	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, waits)
}

func TestPolicy_ReturnsLastErrorWhenExhausted(t *testing.T) {
	var waits []time.Duration
	var retried []int
	p := Policy{
		Attempts: 3,
		Base:     time.Millisecond,
		OnRetry:  func(attempt int, _ error, _ time.Duration) { retried = append(retried, attempt) },
		sleep:    noSleep(&waits),
	}

	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("attempt failed")
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
	assert.Len(t, waits, 2)
}

func TestPolicy_StopIsNotRetried(t *testing.T) {
	bad := errors.New("invalid connection string")
	p := Policy{Attempts: 5, Base: time.Millisecond}

	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return Stop(bad)
	})

	assert.Equal(t, bad, err)
	assert.Equal(t, 1, calls)
	assert.True(t, IsStop(Stop(bad)))
	assert.Nil(t, Stop(nil))
}

func TestPolicy_CancelledContextEndsWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := DialPolicy(10).Do(ctx, func(context.Context) error {
		calls++
		return errors.New("down")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestPolicy_Delay(t *testing.T) {
	p := Policy{Base: 100 * time.Millisecond, Max: 300 * time.Millisecond}
	assert.Equal(t, 100*time.Millisecond, p.Delay(1))
	assert.Equal(t, 200*time.Millisecond, p.Delay(2))
	assert.Equal(t, 300*time.Millisecond, p.Delay(3))
	assert.Equal(t, 300*time.Millisecond, p.Delay(10))

	p.Jitter = 0.1
	for i := 0; i < 50; i++ {
		d := p.Delay(1)
		assert.GreaterOrEqual(t, d, 90*time.Millisecond)
		assert.LessOrEqual(t, d, 110*time.Millisecond)
	}
}

func TestValue(t *testing.T) {
	var waits []time.Duration
	p := Policy{Attempts: 2, sleep: noSleep(&waits)}

	calls := 0
	got, err := Value(context.Background(), p, func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("not yet")
		}
		return "pool", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "pool", got)
}
