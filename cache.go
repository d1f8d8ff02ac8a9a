// Copyright 2023 Wayback Archiver. All rights reserved.
// Use of this source code is governed by the MIT
// license that can be found in the LICENSE file.

package imageproxy

import (
	lru "github.com/hashicorp/golang-lru"
)

// cachedResponse is what the proxy core stores per URL: the validated
// fetch result. No insertion time is recorded; entries leave the cache
// only by LRU eviction or clear.
type cachedResponse struct {
	result *FetchResult
}

// responseCache is an in-memory, per-process LRU cache keyed by the
// requested URL. It is never written to disk, matching the non-goal that
// the image cache does not persist across restarts.
type responseCache struct {
	lru *lru.Cache
}

func newResponseCache(capacity int) *responseCache {
	c, err := lru.New(capacity)
	if err != nil {
		// lru.New only errors on capacity <= 0, already guarded by
		// newProxyOptions; fall back to a minimal cache rather than panic.
		c, _ = lru.New(1)
	}
	return &responseCache{lru: c}
}

func (c *responseCache) get(url string) (*FetchResult, bool) {
	v, ok := c.lru.Get(url)
	if !ok {
		return nil, false
	}
	return v.(cachedResponse).result, true
}

func (c *responseCache) put(url string, result *FetchResult) {
	c.lru.Add(url, cachedResponse{result: result})
}

func (c *responseCache) clear() {
	c.lru.Purge()
}

func (c *responseCache) len() int {
	return c.lru.Len()
}
