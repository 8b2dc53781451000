// Package taskqueue runs one worker invocation per item under a fixed
// concurrency ceiling and collects every outcome.
package taskqueue

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"golang.org/x/sync/semaphore"

	"ytsubs/internal/services"
)

// Worker processes a single item.
type Worker[T, R any] func(ctx context.Context, item T) (R, error)

// Success records an item whose worker returned without error.
type Success[T, R any] struct {
	Index  int
	Item   T
	Result R
}

// Failure records an item whose worker returned an error or panicked.
type Failure[T any] struct {
	Index int
	Item  T
	Err   error
}

// Result holds the outcome buckets of one Run. Entries appear in completion
// order; Index refers to the position in the submitted slice.
type Result[T, R any] struct {
	Succeeded []Success[T, R]
	Failed    []Failure[T]
}

// Total returns the number of items with a terminal outcome.
func (r Result[T, R]) Total() int {
	return len(r.Succeeded) + len(r.Failed)
}

// PanicError is the failure recorded when a worker panics.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("worker panic: %v", e.Value)
}

// Run executes worker for every item with at most concurrency invocations in
// flight. Items are admitted in submission order. A failing worker only
// affects its own item. Run returns after every item has an outcome; the
// only error it returns is a configuration error for concurrency < 1.
//
// If ctx is cancelled while items are still waiting for admission, those
// items are recorded as failures carrying the context error.
func Run[T, R any](ctx context.Context, items []T, concurrency int, worker Worker[T, R]) (Result[T, R], error) {
	var result Result[T, R]
	if concurrency < 1 {
		return result, services.Wrap(
			services.ErrConfiguration,
			"taskqueue",
			"run",
			fmt.Sprintf("concurrency must be at least 1, got %d", concurrency),
			nil,
		)
	}
	if worker == nil {
		return result, services.Wrap(services.ErrConfiguration, "taskqueue", "run", "worker is required", nil)
	}
	if len(items) == 0 {
		return result, nil
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = semaphore.NewWeighted(int64(concurrency))
	)

	record := func(index int, item T, value R, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			result.Failed = append(result.Failed, Failure[T]{Index: index, Item: item, Err: err})
			return
		}
		result.Succeeded = append(result.Succeeded, Success[T, R]{Index: index, Item: item, Result: value})
	}

	for index, item := range items {
		if err := sem.Acquire(ctx, 1); err != nil {
			var zero R
			record(index, item, zero, fmt.Errorf("not admitted: %w", err))
			continue
		}
		wg.Add(1)
		go func(index int, item T) {
			defer wg.Done()
			defer sem.Release(1)
			value, err := invoke(ctx, worker, item)
			record(index, item, value, err)
		}(index, item)
	}
	wg.Wait()
	return result, nil
}

func invoke[T, R any](ctx context.Context, worker Worker[T, R], item T) (value R, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return worker(ctx, item)
}
