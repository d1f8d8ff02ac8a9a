// Copyright 2023 Wayback Archiver. All rights reserved.
// Use of this source code is governed by the MIT
// license that can be found in the LICENSE file.

package imageproxy

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// BatchImageResult is one entry of a FetchImagesBatch response: either
// Result or Err is set, never both, and the slice returned to the caller
// preserves the order of the requested URLs regardless of which fetch
// finished first.
type BatchImageResult struct {
	URL    string
	Result *FetchResult
	Err    error
}

// fetchBatch runs fetchOne over urls with at most maxConcurrent in flight
// at a time, returning results in the same order as urls. If ctx is
// canceled, in-flight fetches are given the chance to return a context
// error but already-completed results are preserved.
func fetchBatch(ctx context.Context, urls []string, maxConcurrent int, fetchOne func(context.Context, string) (*FetchResult, error)) []BatchImageResult {
	results := make([]BatchImageResult, len(urls))
	sem := semaphore.NewWeighted(int64(maxConcurrent))

	var wg sync.WaitGroup
	for i, u := range urls {
		i, u := i, u
		wg.Add(1)
		go func() {
			defer wg.Done()

			if err := sem.Acquire(ctx, 1); err != nil {
				results[i] = BatchImageResult{URL: u, Err: err}
				return
			}
			defer sem.Release(1)

			result, err := fetchOne(ctx, u)
			results[i] = BatchImageResult{URL: u, Result: result, Err: err}
		}()
	}
	wg.Wait()

	return results
}
