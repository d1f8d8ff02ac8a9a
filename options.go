// Copyright 2023 Wayback Archiver. All rights reserved.
// Use of this source code is governed by the MIT
// license that can be found in the LICENSE file.

package imageproxy

// ProxyOption configures a Proxy at construction time, overriding values
// that would otherwise come from the Store's ProxyConfig.
type ProxyOption func(*proxyOptions)

type proxyOptions struct {
	maxConcurrent int
	cacheCapacity int
}

// WithMaxConcurrent bounds how many fetches FetchImagesBatch runs at once.
func WithMaxConcurrent(n int) ProxyOption {
	return func(o *proxyOptions) { o.maxConcurrent = n }
}

// WithCacheCapacity sets the maximum number of entries the response cache
// holds before evicting the least recently used one.
func WithCacheCapacity(n int) ProxyOption {
	return func(o *proxyOptions) { o.cacheCapacity = n }
}

func newProxyOptions(cfg ProxyConfig, opts ...ProxyOption) proxyOptions {
	o := proxyOptions{maxConcurrent: cfg.MaxConcurrent, cacheCapacity: cfg.CacheCapacity}
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxConcurrent <= 0 {
		o.maxConcurrent = 8
	}
	if o.maxConcurrent > 32 {
		o.maxConcurrent = 32
	}
	if o.cacheCapacity <= 0 {
		o.cacheCapacity = 100
	}
	return o
}
