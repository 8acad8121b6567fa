package core

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// FanOutResult is the outcome of one fan-out task.
type FanOutResult[T any] struct {
	Index  int
	Result T
	Err    error
}

// FanOut runs fn for each of n items with at most maxConcurrency in flight.
// An error from one worker does not cancel its siblings; the stage composes
// results after all finish. Results come back indexed in input order.
// maxConcurrency < 1 means run everything sequentially.
func FanOut[T any](ctx context.Context, n, maxConcurrency int, fn func(ctx context.Context, index int) (T, error)) []FanOutResult[T] {
	results := make([]FanOutResult[T], n)
	if n == 0 {
		return results
	}
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}

	sem := semaphore.NewWeighted(int64(maxConcurrency))
	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		if err := sem.Acquire(ctx, 1); err != nil {
			// Context cancelled: record the error for the remaining items
			// without starting them.
			for j := i; j < n; j++ {
				results[j] = FanOutResult[T]{Index: j, Err: err}
			}
			break
		}

		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			defer sem.Release(1)
			result, err := fn(ctx, index)
			results[index] = FanOutResult[T]{Index: index, Result: result, Err: err}
		}(i)
	}

	wg.Wait()
	return results
}

// FanOutErrors collects the non-nil errors from results.
func FanOutErrors[T any](results []FanOutResult[T]) []error {
	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return errs
}
