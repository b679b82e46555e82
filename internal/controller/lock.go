// Package controller implements the scaling control loop: the single
// serialized path through which webhook- and schedule-triggered decisions
// mutate external cluster capacity. It owns the scaling lock and the
// idempotency cache.
package controller

import (
	"context"
	"time"
)

// ScalingLock is the mutual-exclusion token guarding capacity mutations.
// At most one capacity read-modify-write is in flight at any instant,
// regardless of trigger source. Acquisition waits at most the caller's
// timeout; there is no FIFO fairness, but starvation is bounded by the
// timeout.
type ScalingLock struct {
	sem chan struct{}
}

// NewScalingLock creates an unheld lock.
func NewScalingLock() *ScalingLock {
	return &ScalingLock{sem: make(chan struct{}, 1)}
}

// Acquire attempts to take the lock, waiting up to wait. It returns false if
// the lock could not be acquired before the timeout or context cancellation.
func (l *ScalingLock) Acquire(ctx context.Context, wait time.Duration) bool {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case l.sem <- struct{}{}:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

// Release returns the lock. Calling Release without holding the lock panics,
// which is intentional: it indicates a control-loop bug.
func (l *ScalingLock) Release() {
	select {
	case <-l.sem:
	default:
		panic("controller: Release called on unheld ScalingLock")
	}
}
