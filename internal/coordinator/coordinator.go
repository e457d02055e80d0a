package coordinator

import (
	"context"
	"sync"

	"pricewatch/internal/fetcher"
)

// DefaultConcurrency is used when New is given a non-positive limit
const DefaultConcurrency = 4

// Coordinator runs fetchers concurrently and collects their results
type Coordinator struct {
	concurrency int
}

// New creates a new Coordinator running at most concurrency fetchers at once
func New(concurrency int) *Coordinator {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Coordinator{
		concurrency: concurrency,
	}
}

// Concurrency returns the fan-out limit.
func (c *Coordinator) Concurrency() int {
	return c.concurrency
}

// Run executes all fetchers and returns one result per fetcher, in input
// order regardless of completion order. Each fetcher runs in its own
// goroutine and sends its result to a shared channel. A fetcher that has
// not started when ctx is done reports ctx.Err().
func (c *Coordinator) Run(ctx context.Context, fetchers []fetcher.Fetcher) []fetcher.Result {
	results := make([]fetcher.Result, len(fetchers))
	if len(fetchers) == 0 {
		return results
	}

	resultChan := make(chan fetcher.Result, len(fetchers))
	sem := make(chan struct{}, c.concurrency)

	var wg sync.WaitGroup

	for i, f := range fetchers {
		wg.Add(1)
		go func(idx int, ft fetcher.Fetcher) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				resultChan <- fetcher.Result{Index: idx, Key: ft.Key(), Error: ctx.Err()}
				return
			}

			record, err := ft.Fetch(ctx)

			resultChan <- fetcher.Result{
				Index:  idx,
				Key:    ft.Key(),
				Record: record,
				Error:  err,
			}
		}(i, f)
	}

	// Close the result channel when all workers are done
	go func() {
		wg.Wait()
		close(resultChan)
	}()

	for result := range resultChan {
		results[result.Index] = result
	}

	return results
}
