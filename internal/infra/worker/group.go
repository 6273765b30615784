package worker

import (
	"context"
	"sync"
)

// Result carries the outcome of one operation. Err is set only for that
// operation's own failure; siblings are unaffected.
type Result[T any] struct {
	Value T
	Err   error
}

// ProgressFunc is invoked once per completed operation, in completion
// order, with the running completed count and the total.
type ProgressFunc func(completed, total int)

// Op is one independent unit of remote work.
type Op[T any] func(ctx context.Context) (T, error)

// RunAll executes ops with at most limit in flight at once. The result at
// index i always corresponds to ops[i] regardless of completion order, and
// one operation failing never cancels or blocks the others. RunAll blocks
// until every operation has finished; callers needing fire-and-forget use
// Pool instead.
func RunAll[T any](ctx context.Context, limit int, ops []Op[T], progress ProgressFunc) []Result[T] {
	if len(ops) == 0 {
		return nil
	}
	if limit <= 0 {
		limit = 1
	}

	results := make([]Result[T], len(ops))
	gate := make(chan struct{}, limit)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		completed int
	)

	for i, op := range ops {
		wg.Add(1)
		go func(idx int, run Op[T]) {
			defer wg.Done()
			gate <- struct{}{}
			defer func() { <-gate }()

			v, err := run(ctx)
			results[idx] = Result[T]{Value: v, Err: err}

			mu.Lock()
			completed++
			done := completed
			if progress != nil {
				progress(done, len(ops))
			}
			mu.Unlock()
		}(i, op)
	}
	wg.Wait()

	return results
}
