// Copyright 2023 Wayback Archiver. All rights reserved.
// Use of this source code is governed by the MIT
// license that can be found in the LICENSE file.

package imageproxy

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ProxyStatus reports the liveness of the initialized proxy, combining
// tunnel health with cache occupancy.
type ProxyStatus struct {
	Initialized    bool
	TunnelConnected bool
	SinceHandshake time.Duration
	CacheEntries   int
}

// proxyState is everything a running proxy needs: the persisted WARP
// identity, the live tunnel, the fetcher built on top of it, and the
// response cache. There is at most one of these alive in a process at a
// time, guarded by globalMu below — the single-writer state cell spec
// requires.
type proxyState struct {
	store   *Store
	tunnel  *Tunnel
	fetcher *Fetcher
	cache   *responseCache
	opts    proxyOptions
}

var (
	globalMu sync.RWMutex
	global   *proxyState
)

// Init provisions (if necessary) and connects the proxy's WARP tunnel,
// using storagePath for the persisted warp_config.json. Calling Init again
// while already initialized is a no-op; call Shutdown first to
// re-initialize with different options.
func Init(ctx context.Context, storagePath string, opts ...ProxyOption) error {
	globalMu.Lock()
	defer globalMu.Unlock()
	if global != nil {
		return nil
	}

	store, err := LoadOrCreate(storagePath)
	if err != nil {
		return asError(KindInitializationFailed, err)
	}

	warpCfg, ok := store.WarpConfig()
	if !ok {
		slog.Info("provisioning new WARP identity")
		warpCfg, err = NewProvisioner().Provision(ctx)
		if err != nil {
			return asError(KindProvisioningFailed, err)
		}
		if err := store.UpdateWarpConfig(warpCfg); err != nil {
			return asError(KindInitializationFailed, err)
		}
	}

	tunnel := NewTunnel(warpCfg)
	if err := tunnel.Connect(); err != nil {
		return asError(KindInitializationFailed, err)
	}
	slog.Info("tunnel connected", "endpoint", warpCfg.Peer.Endpoint)

	proxyCfg := store.ProxyConfig()
	o := newProxyOptions(proxyCfg, opts...)

	global = &proxyState{
		store:   store,
		tunnel:  tunnel,
		fetcher: NewFetcher(tunnel, WithLimits(proxyCfg.Limits)),
		cache:   newResponseCache(o.cacheCapacity),
		opts:    o,
	}
	return nil
}

func withState(fn func(*proxyState) error) error {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if global == nil {
		return ErrNotInitialized
	}
	return fn(global)
}

// Status reports whether the proxy is initialized and, if so, the health
// of its tunnel and cache.
func Status() ProxyStatus {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if global == nil {
		return ProxyStatus{}
	}
	st := global.tunnel.Status()
	return ProxyStatus{
		Initialized:    true,
		TunnelConnected: st.Connected,
		SinceHandshake: st.SinceHandshake,
		CacheEntries:   global.cache.len(),
	}
}

// FetchImage fetches url, serving a cached response when one exists.
// headers is accepted for interface symmetry with a mail client that
// forwards the originating request's headers, but the fetcher always
// sends its own fixed header profile (see applyFetchHeaders) — image
// requests never carry caller-supplied headers through to the origin.
func FetchImage(ctx context.Context, url string, headers map[string]string) (*FetchResult, error) {
	var result *FetchResult
	err := withState(func(s *proxyState) error {
		if cached, ok := s.cache.get(url); ok {
			hit := *cached
			hit.FromCache = true
			result = &hit
			return nil
		}
		r, err := s.fetcher.Fetch(ctx, url)
		if err != nil {
			return err
		}
		s.cache.put(url, r)
		result = r
		return nil
	})
	return result, err
}

// FetchImagesBatch fetches each of urls, bounded by the proxy's configured
// concurrency limit, and returns results in the same order as urls.
func FetchImagesBatch(ctx context.Context, urls []string, headers map[string]string) ([]BatchImageResult, error) {
	var out []BatchImageResult
	err := withState(func(s *proxyState) error {
		out = fetchBatch(ctx, urls, s.opts.maxConcurrent, func(ctx context.Context, u string) (*FetchResult, error) {
			if cached, ok := s.cache.get(u); ok {
				hit := *cached
				hit.FromCache = true
				return &hit, nil
			}
			r, err := s.fetcher.Fetch(ctx, u)
			if err != nil {
				return nil, err
			}
			s.cache.put(u, r)
			return r, nil
		})
		return nil
	})
	return out, err
}

// ClearCache discards all cached responses without affecting the tunnel.
func ClearCache() error {
	return withState(func(s *proxyState) error {
		s.cache.clear()
		return nil
	})
}

// Shutdown tears down the tunnel and releases the initialized proxy.
// Calling Shutdown when not initialized is a no-op.
func Shutdown() error {
	globalMu.Lock()
	defer globalMu.Unlock()
	if global == nil {
		return nil
	}
	err := global.tunnel.Close()
	global = nil
	slog.Info("proxy shut down")
	return err
}
