package storage

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

// FetchResult contains the outcome of a batch fetch.
type FetchResult struct {
	Objects map[string][]byte
	Errors  map[string]error
}

// Fetcher reads many objects in parallel.
type Fetcher struct {
	storage     ObjectStorage
	concurrency int
}

// NewFetcher creates a fetcher running at most concurrency reads at once.
func NewFetcher(storage ObjectStorage, concurrency int) *Fetcher {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Fetcher{storage: storage, concurrency: concurrency}
}

// Fetch reads every key. Per-key failures are reported in the result;
// the error is only set when ctx ends before all reads were started.
func (f *Fetcher) Fetch(ctx context.Context, keys []string) (*FetchResult, error) {
	result := &FetchResult{
		Objects: make(map[string][]byte, len(keys)),
		Errors:  make(map[string]error),
	}

	sem := semaphore.NewWeighted(int64(f.concurrency))
	var wg sync.WaitGroup
	var mu sync.Mutex
	var acquireErr error

	for _, key := range keys {
		if err := sem.Acquire(ctx, 1); err != nil {
			acquireErr = fmt.Errorf("semaphore acquire failed: %w", err)
			break
		}

		wg.Add(1)
		go func(key string) {
			defer sem.Release(1)
			defer wg.Done()

			data, err := f.storage.Get(ctx, key)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Errors[key] = err
				return
			}
			result.Objects[key] = data
		}(key)
	}

	wg.Wait()
	return result, acquireErr
}
