// Package gate bounds the number of concurrent calls into a costly dependency.
package gate

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// DefaultSize is the default number of concurrent slots.
const DefaultSize = 3

// Gate admits at most Size concurrent holders; excess callers block until a slot frees.
type Gate struct {
	sem      *semaphore.Weighted
	size     int
	inFlight atomic.Int64
}

// New creates a Gate with n slots. n < 1 falls back to DefaultSize.
func New(n int) *Gate {
	if n < 1 {
		n = DefaultSize
	}
	return &Gate{
		sem:  semaphore.NewWeighted(int64(n)),
		size: n,
	}
}

// Size returns the number of slots.
func (g *Gate) Size() int { return g.size }

// InFlight returns the number of currently running holders.
func (g *Gate) InFlight() int { return int(g.inFlight.Load()) }

// Do runs fn while holding a slot. It returns ctx.Err() without running fn if
// ctx ends while waiting. No timeout is imposed on fn itself.
func (g *Gate) Do(ctx context.Context, fn func(ctx context.Context)) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	g.inFlight.Add(1)
	defer func() {
		g.inFlight.Add(-1)
		g.sem.Release(1)
	}()
	fn(ctx)
	return nil
}

// WithSlot runs fn under a slot of g and returns its result.
func WithSlot[T any](ctx context.Context, g *Gate, fn func(ctx context.Context) T) (T, error) {
	var out T
	err := g.Do(ctx, func(ctx context.Context) {
		out = fn(ctx)
	})
	return out, err
}
