package redial

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoffSequence(t *testing.T) {
	b := NewBackoffWithConfig(BackoffConfig{
		Initial:    1 * time.Second,
		Max:        60 * time.Second,
		Multiplier: 2.0,
		Jitter:     -1, // disabled for a deterministic sequence
	})

	want := []time.Duration{
		1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
		16 * time.Second, 32 * time.Second, 60 * time.Second, 60 * time.Second,
	}
	for i, w := range want {
		assert.Equal(t, w, b.Next(), "attempt %d", i+1)
	}
	assert.Equal(t, len(want), b.Attempts())

	b.Reset()
	assert.Equal(t, 0, b.Attempts())
	assert.Equal(t, 1*time.Second, b.Next())
}

func TestBackoffJitterBounds(t *testing.T) {
	b := NewBackoffWithConfig(BackoffConfig{
		Initial: 100 * time.Millisecond,
		Jitter:  0.25,
	})

	for i := 0; i < 50; i++ {
		d := b.Peek()
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.LessOrEqual(t, d, 125*time.Millisecond)
	}
}

func TestBackoffDefaults(t *testing.T) {
	b := NewBackoff()
	assert.Equal(t, InitialBackoff, b.Current())
}

func TestRedialerSucceedsAfterFailures(t *testing.T) {
	calls := 0
	r := NewWithBackoff(func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	}, NewBackoffWithConfig(BackoffConfig{Initial: time.Millisecond, Jitter: -1}))

	var attempts []int
	r.OnAttempt = func(attempt int, delay time.Duration, err error) {
		attempts = append(attempts, attempt)
		assert.Error(t, err)
	}

	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, attempts)
	assert.Equal(t, 0, r.Attempts(), "backoff resets on success")
}

func TestRedialerFirstAttemptImmediate(t *testing.T) {
	r := NewWithBackoff(func(ctx context.Context) error {
		return nil
	}, NewBackoffWithConfig(BackoffConfig{Initial: time.Hour}))

	start := time.Now()
	require.NoError(t, r.Run(context.Background()))
	assert.Less(t, time.Since(start), time.Second)
}

func TestRedialerCancelDuringDelay(t *testing.T) {
	r := NewWithBackoff(func(ctx context.Context) error {
		return errors.New("connection refused")
	}, NewBackoffWithConfig(BackoffConfig{Initial: time.Hour}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("redialer did not stop after cancel")
	}
}

func TestRedialerCancelledContextNotRetried(t *testing.T) {
	calls := 0
	r := New(func(ctx context.Context) error {
		calls++
		return ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, r.Run(ctx), context.Canceled)
	assert.Equal(t, 1, calls)
}
