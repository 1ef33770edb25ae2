package strategy

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ForkLimiter bounds the number of concurrent host dispatches across every
// caller that shares it, the way Ansible's `forks` setting bounds the whole
// process rather than one strategy invocation at a time.
type ForkLimiter struct {
	mu  sync.RWMutex
	sem *semaphore.Weighted
}

// NewForkLimiter creates a limiter allowing up to n concurrent acquisitions.
// n <= 0 is treated as 1.
func NewForkLimiter(n int) *ForkLimiter {
	if n <= 0 {
		n = 1
	}
	return &ForkLimiter{sem: semaphore.NewWeighted(int64(n))}
}

// Acquire blocks until a slot is free or ctx is done.
func (f *ForkLimiter) Acquire(ctx context.Context) error {
	f.mu.RLock()
	sem := f.sem
	f.mu.RUnlock()
	return sem.Acquire(ctx, 1)
}

// Release frees a slot acquired via Acquire.
func (f *ForkLimiter) Release() {
	f.mu.RLock()
	sem := f.sem
	f.mu.RUnlock()
	sem.Release(1)
}

// SetForks changes the bound. It replaces the underlying semaphore, so it
// should only be called between runs, not while acquisitions are in flight.
func (f *ForkLimiter) SetForks(n int) {
	if n <= 0 {
		n = 1
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sem = semaphore.NewWeighted(int64(n))
}

// DefaultForkLimiter is the process-wide fork bound shared by strategies and
// the task runner, so `forks` genuinely caps total in-flight host dispatches
// across concurrent task, handler, and fact-gather execution rather than
// each call site enforcing its own independent limit.
var DefaultForkLimiter = NewForkLimiter(5)
