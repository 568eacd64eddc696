// Package lock provides distributed and local locking abstractions.
// For single-node deployments, memory-based locks are used.
// For distributed deployments, Redis-based locks can be used.
package lock

import (
	"context"
	"time"

	"github.com/prn-tf/alexander-assets/internal/repository"
)

// Locker defines the interface for distributed/local locking.
// It has the same shape as repository.DistributedLock so Redis-backed
// locks can be used directly.
type Locker = repository.DistributedLock

// Lock tracks one key on a Locker for the duration of a job.
type Lock struct {
	locker Locker
	key    string
	held   bool
}

// NewLock creates a new Lock instance.
func NewLock(locker Locker, key string) *Lock {
	return &Lock{
		locker: locker,
		key:    key,
	}
}

// Acquire attempts to acquire the lock once.
func (l *Lock) Acquire(ctx context.Context, ttl time.Duration) (bool, error) {
	acquired, err := l.locker.Acquire(ctx, l.key, ttl)
	if err != nil {
		return false, err
	}
	l.held = acquired
	return acquired, nil
}

// AcquireWithin retries Acquire until wait has elapsed, polling at most
// once per second.
func (l *Lock) AcquireWithin(ctx context.Context, ttl, wait time.Duration) (bool, error) {
	if wait <= 0 {
		return l.Acquire(ctx, ttl)
	}
	delay := min(wait, time.Second)

	acquired, err := l.locker.AcquireWithRetry(ctx, l.key, ttl, int(wait/delay), delay)
	if err != nil {
		return false, err
	}
	l.held = acquired
	return acquired, nil
}

// Extend pushes the expiry of a held lock. The lock counts as lost when
// the locker reports it is no longer ours.
func (l *Lock) Extend(ctx context.Context, ttl time.Duration) error {
	if !l.held {
		return nil
	}
	extended, err := l.locker.Extend(ctx, l.key, ttl)
	if err != nil {
		return err
	}
	l.held = extended
	return nil
}

// Release releases the lock if held.
func (l *Lock) Release(ctx context.Context) error {
	if !l.held {
		return nil
	}
	_, err := l.locker.Release(ctx, l.key)
	l.held = false
	return err
}

// IsHeld returns whether the lock is held.
func (l *Lock) IsHeld() bool {
	return l.held
}

// =============================================================================
// Lock Keys
// =============================================================================

// Keys provides lock key generation for common scenarios.
var Keys = lockKeys{}

type lockKeys struct{}

// VariationCleanup returns the lock key for unused-variation cleanup runs.
func (lockKeys) VariationCleanup() string {
	return "lock:cleanup:variations"
}
