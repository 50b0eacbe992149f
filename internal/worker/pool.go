// Package worker bounds how many completion requests are in flight at once
// and fans tasks out under that bound.
package worker

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// DefaultLimit is the number of simultaneous completion requests.
const DefaultLimit = 4

// Limiter is a counting semaphore. Waiters are served in arrival order.
// A Limiter belongs to one invocation; create a new one per run.
type Limiter struct {
	sem  *semaphore.Weighted
	size int
}

// NewLimiter creates a limiter admitting n concurrent holders. n <= 0 means
// DefaultLimit.
func NewLimiter(n int) *Limiter {
	if n <= 0 {
		n = DefaultLimit
	}
	return &Limiter{
		sem:  semaphore.NewWeighted(int64(n)),
		size: n,
	}
}

// Acquire blocks until a slot is free or ctx is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("failed to acquire worker slot: %w", err)
	}
	return nil
}

// Release frees a slot taken by Acquire.
func (l *Limiter) Release() {
	l.sem.Release(1)
}

// Do runs fn while holding one slot.
func (l *Limiter) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := l.Acquire(ctx); err != nil {
		return err
	}
	defer l.Release()
	return fn(ctx)
}

// Size returns the number of slots.
func (l *Limiter) Size() int {
	return l.size
}

// Result is the outcome of one dispatched task.
type Result[R any] struct {
	Value R
	Err   error
}

// Dispatch runs fn once per item under l and returns the results in item
// order, whatever order the tasks finish in. Slots are taken in item order,
// so tasks start in that order too. A failing task does not cancel the
// others.
func Dispatch[T, R any](ctx context.Context, l *Limiter, items []T, fn func(ctx context.Context, item T) (R, error)) []Result[R] {
	results := make([]Result[R], len(items))

	var g errgroup.Group
	for i, item := range items {
		i, item := i, item
		if err := l.Acquire(ctx); err != nil {
			results[i].Err = err
			continue
		}
		g.Go(func() error {
			defer l.Release()
			results[i].Value, results[i].Err = fn(ctx, item)
			// errors travel in results so every task runs to completion
			return nil
		})
	}
	_ = g.Wait()

	return results
}
