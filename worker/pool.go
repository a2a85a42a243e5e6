// Package worker runs independent items through a bounded set of
// goroutines. Results are collected in completion order behind a single
// mutex and progress is tracked with an atomic counter.
package worker

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
)

// DefaultWorkers is used when a pool is built with a non-positive size.
const DefaultWorkers = 5

// Result is the outcome of one item.
type Result[T, R any] struct {
	// Index is the item's position in the input slice.
	Index int
	Item  T
	Value R
	Err   error
}

// Pool processes items with at most Workers concurrent calls.
type Pool[T, R any] struct {
	workers    int
	onProgress func(done, total int)
}

// Option configures a Pool.
type Option func(*options)

type options struct {
	onProgress func(done, total int)
}

// WithProgress registers a callback invoked after every finished item.
// It may be called from several goroutines at once.
func WithProgress(fn func(done, total int)) Option {
	return func(o *options) { o.onProgress = fn }
}

// New returns a pool of the given size.
func New[T, R any](workers int, opts ...Option) *Pool[T, R] {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return &Pool[T, R]{workers: workers, onProgress: o.onProgress}
}

// Workers returns the concurrency limit.
func (p *Pool[T, R]) Workers() int { return p.workers }

// Run calls fn for every item and returns the results in completion order.
// Once ctx is cancelled no new item is started; items already started run
// to completion with a context that is not cancelled, so their results are
// kept. Use Ordered to restore input order.
func (p *Pool[T, R]) Run(ctx context.Context, items []T, fn func(ctx context.Context, item T) (R, error)) []Result[T, R] {
	var (
		mu        sync.Mutex
		results   = make([]Result[T, R], 0, len(items))
		completed atomic.Int64
		wg        sync.WaitGroup
	)
	sem := make(chan struct{}, p.workers)
	workCtx := context.WithoutCancel(ctx)
	total := len(items)

dispatch:
	for i, item := range items {
		select {
		case <-ctx.Done():
		case sem <- struct{}{}:
		}
		if ctx.Err() != nil {
			slog.Info("worker pool stopped accepting work", "dispatched", i, "total", total)
			break dispatch
		}
		wg.Add(1)
		go func(idx int, it T) {
			defer wg.Done()
			defer func() { <-sem }()

			v, err := fn(workCtx, it)

			mu.Lock()
			results = append(results, Result[T, R]{Index: idx, Item: it, Value: v, Err: err})
			mu.Unlock()

			done := int(completed.Add(1))
			if p.onProgress != nil {
				p.onProgress(done, total)
			}
		}(i, item)
	}

	wg.Wait()
	return results
}

// Ordered sorts results by input position in place and returns them.
func Ordered[T, R any](results []Result[T, R]) []Result[T, R] {
	sort.Slice(results, func(i, j int) bool { return results[i].Index < results[j].Index })
	return results
}

// Failed counts results that carry an error.
func Failed[T, R any](results []Result[T, R]) int {
	n := 0
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}
