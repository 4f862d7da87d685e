package concurrency

import (
	"context"
	"runtime"

	"github.com/sourcegraph/conc/pool"
)

// NewPool returns a new pool where each task respects context cancellation.
// Wait() will only return the first error seen. A non positive maxGoroutines
// defaults to GOMAXPROCS.
func NewPool(ctx context.Context, maxGoroutines int) *pool.ContextPool {
	if maxGoroutines <= 0 {
		maxGoroutines = runtime.GOMAXPROCS(0)
	}
	return pool.New().
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError().
		WithMaxGoroutines(maxGoroutines)
}
