package imageproxy

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

func TestFetchBatchPreservesOrder(t *testing.T) {
	urls := []string{"u0", "u1", "u2", "u3", "u4"}

	results := fetchBatch(context.Background(), urls, 2, func(ctx context.Context, u string) (*FetchResult, error) {
		// Reverse-ish completion order to prove ordering isn't
		// completion-order-dependent.
		time.Sleep(time.Duration(5-int(u[1]-'0')) * time.Millisecond)
		return &FetchResult{ContentType: u}, nil
	})

	for i, u := range urls {
		if results[i].URL != u {
			t.Fatalf("results[%d].URL = %q, want %q", i, results[i].URL, u)
		}
		if results[i].Result == nil || results[i].Result.ContentType != u {
			t.Fatalf("results[%d] mismatched result for %q", i, u)
		}
	}
}

func TestFetchBatchBoundsConcurrency(t *testing.T) {
	const maxConcurrent = 3
	urls := make([]string, 20)
	for i := range urls {
		urls[i] = fmt.Sprintf("u%d", i)
	}

	var current, max int64
	fetchBatch(context.Background(), urls, maxConcurrent, func(ctx context.Context, u string) (*FetchResult, error) {
		n := atomic.AddInt64(&current, 1)
		for {
			m := atomic.LoadInt64(&max)
			if n <= m || atomic.CompareAndSwapInt64(&max, m, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		atomic.AddInt64(&current, -1)
		return &FetchResult{}, nil
	})

	if max > maxConcurrent {
		t.Errorf("observed concurrency %d exceeds bound %d", max, maxConcurrent)
	}
}

func TestFetchBatchPropagatesErrors(t *testing.T) {
	urls := []string{"ok", "bad"}
	results := fetchBatch(context.Background(), urls, 2, func(ctx context.Context, u string) (*FetchResult, error) {
		if u == "bad" {
			return nil, newHTTPError(404)
		}
		return &FetchResult{ContentType: "image/png"}, nil
	})

	if results[0].Err != nil {
		t.Errorf("results[0].Err = %v, want nil", results[0].Err)
	}
	if results[1].Err == nil {
		t.Errorf("results[1].Err = nil, want an error")
	}
}
