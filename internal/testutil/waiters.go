// Package testutil provides polling helpers for tests that assert on
// eventually-consistent state: a job reaching a terminal status, a
// connection count settling after attach/detach, a subscription
// delivering its first message.
package testutil

import (
	"context"
	"fmt"
	"time"
)

// Waiter polls a condition at a fixed interval until it is true or a
// timeout elapses.
type Waiter struct {
	timeout  time.Duration
	interval time.Duration
}

// NewWaiter creates a Waiter with the given timeout and polling interval.
func NewWaiter(timeout, interval time.Duration) *Waiter {
	return &Waiter{timeout: timeout, interval: interval}
}

// DefaultWaiter returns a waiter tuned for in-memory store tests: short
// timeout, fast polling, since nothing here crosses a network.
func DefaultWaiter() *Waiter {
	return NewWaiter(2*time.Second, 10*time.Millisecond)
}

// WaitFor blocks until condition returns true or the waiter's timeout
// elapses, whichever comes first.
func (w *Waiter) WaitFor(ctx context.Context, condition func() bool, description string) error {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	if condition() {
		return nil
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for: %s (timeout: %v)", description, w.timeout)
		case <-ticker.C:
			if condition() {
				return nil
			}
		}
	}
}

// WaitFor is a package-level convenience using DefaultWaiter.
func WaitFor(ctx context.Context, condition func() bool, description string) error {
	return DefaultWaiter().WaitFor(ctx, condition, description)
}
