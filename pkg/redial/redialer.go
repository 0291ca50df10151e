// Package redial retries a connect function with exponential backoff.
//
// The redialer is caller-driven: it does not watch connections or decide
// when a session is lost. The owner of the session calls Run when it wants
// the link back, and cancels the context when it no longer does.
package redial

import (
	"context"
	"time"
)

// ConnectFunc attempts one connection. A nil return means connected.
type ConnectFunc func(ctx context.Context) error

// Redialer retries a ConnectFunc until it succeeds or the context ends.
type Redialer struct {
	connect ConnectFunc
	backoff *Backoff

	// OnAttempt, if set, is called before each retry delay with the
	// attempt number (1-based), the delay about to be waited, and the
	// error that caused the retry.
	OnAttempt func(attempt int, delay time.Duration, err error)
}

// New creates a redialer with default backoff.
func New(connect ConnectFunc) *Redialer {
	return NewWithBackoff(connect, NewBackoff())
}

// NewWithBackoff creates a redialer with a custom backoff schedule.
func NewWithBackoff(connect ConnectFunc, backoff *Backoff) *Redialer {
	return &Redialer{connect: connect, backoff: backoff}
}

// Run attempts to connect until success. The first attempt is immediate;
// each failure waits out the next backoff delay. On success the backoff
// resets and Run returns nil. If the context is cancelled, Run returns
// the context error.
func (r *Redialer) Run(ctx context.Context) error {
	for {
		err := r.connect(ctx)
		if err == nil {
			r.backoff.Reset()
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		delay := r.backoff.Next()
		if r.OnAttempt != nil {
			r.OnAttempt(r.backoff.Attempts(), delay, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Attempts returns the number of failed attempts since the last success.
func (r *Redialer) Attempts() int {
	return r.backoff.Attempts()
}
