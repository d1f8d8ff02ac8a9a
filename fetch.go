// Copyright 2023 Wayback Archiver. All rights reserved.
// Use of this source code is governed by the MIT
// license that can be found in the LICENSE file.

package imageproxy

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/http2"
)

// FetchResult is a successfully retrieved and validated image. FromCache is
// set by the proxy core (see FetchImage), not by Fetch itself: a Fetch
// always reports a fresh origin hit, with FinalURL set to the request's URL
// after any redirects were followed.
type FetchResult struct {
	ContentType string
	Data        []byte
	FromCache   bool
	FinalURL    string
}

// DialFunc dials network/addr the way a Fetcher's transport needs to,
// either through a Tunnel (production) or directly (tests only, see
// newDirectFetcher).
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Fetcher retrieves and validates remote images. Its transport is always
// supplied by the caller (through the tunnel in production, direct dial in
// tests) so that the HTTP policy below — redirects, size caps, content
// type — is exercised identically regardless of what's underneath.
type Fetcher struct {
	limits FetchLimits
	client *http.Client
}

// FetcherOption configures a Fetcher at construction time.
type FetcherOption func(*fetcherConfig)

type fetcherConfig struct {
	limits FetchLimits
}

// WithLimits overrides the default FetchLimits.
func WithLimits(l FetchLimits) FetcherOption {
	return func(c *fetcherConfig) { c.limits = l }
}

func newFetcher(dialPlain, dialTLS DialFunc, opts ...FetcherOption) *Fetcher {
	cfg := fetcherConfig{limits: defaultFetchLimits()}
	for _, opt := range opts {
		opt(&cfg)
	}

	transport := &http.Transport{
		DialContext:    dialPlain,
		DialTLSContext: dialTLS,
	}
	_ = http2.ConfigureTransport(transport) // negotiate h2 over TLS when offered; no-op over plain http

	client := &http.Client{
		Timeout: time.Duration(cfg.limits.TimeoutSeconds) * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) > cfg.limits.MaxRedirects {
				return newTooManyRedirectsError(len(via))
			}
			return nil
		},
	}

	return &Fetcher{limits: cfg.limits, client: client}
}

// NewFetcher returns a Fetcher whose transport dials through tunnel,
// resolving hostnames via DNS-over-HTTPS carried over the same tunnel.
// This is the production constructor: spec requires the tunnel to be the
// path image fetches actually take.
func NewFetcher(tunnel *Tunnel, opts ...FetcherOption) *Fetcher {
	res := newResolver(tunnel)
	return newFetcher(dialThroughTunnel(tunnel, res), dialTLSThroughTunnel(tunnel, res), opts...)
}

// newDirectFetcher returns a Fetcher that dials the network directly,
// bypassing the tunnel entirely. It exists only so the HTTP policy tests
// in this package can exercise Fetch against an httptest.Server on
// 127.0.0.1, which is unreachable from inside the WARP-routed netstack
// without a live peer; it is not exported for use by callers.
func newDirectFetcher(opts ...FetcherOption) *Fetcher {
	var d net.Dialer
	dial := func(ctx context.Context, network, addr string) (net.Conn, error) {
		return d.DialContext(ctx, network, addr)
	}
	return newFetcher(dial, wrapTLS(dial), opts...)
}

// wrapTLS returns a dial function that calls dial, then completes a TLS
// handshake over the result — used wherever a Fetcher's DialTLSContext
// needs to hand http.Transport an already-negotiated connection.
func wrapTLS(dial DialFunc) DialFunc {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		raw, err := dial(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			host = addr
		}
		tlsConn := tls.Client(raw, &tls.Config{ServerName: host, NextProtos: []string{"h2", "http/1.1"}})
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			raw.Close()
			return nil, newError(KindTLS, "handshake with "+host, err)
		}
		return tlsConn, nil
	}
}

// Fetch retrieves rawURL, enforcing scheme validation, header hygiene, a
// redirect cap, a content-type allow-list and a size limit, in that order.
// It does not sniff the body's byte signature against the claimed content
// type; SniffImageType/ValidateImageData are available for callers that
// want that check on top of this one.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*FetchResult, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, newError(KindInvalidURL, rawURL, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, newError(KindInvalidURL, rawURL, err)
	}
	applyFetchHeaders(req)

	resp, err := f.client.Do(req)
	if err != nil {
		if rerr, ok := err.(*url.Error); ok {
			if e, ok := rerr.Err.(*Error); ok {
				return nil, e
			}
			if rerr.Timeout() {
				return nil, newTimeoutError(f.limits.TimeoutSeconds)
			}
		}
		return nil, asError(KindNetworkUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newHTTPError(resp.StatusCode)
	}

	ct := normalizeContentType(resp.Header.Get("Content-Type"))
	if !f.limits.IsContentTypeAllowed(ct) {
		return nil, &Error{Kind: KindInvalidContentType, Detail: ct}
	}

	if resp.ContentLength > f.limits.MaxImageSize {
		return nil, newTooLargeError(resp.ContentLength, f.limits.MaxImageSize)
	}

	limited := io.LimitReader(resp.Body, f.limits.MaxImageSize+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, newError(KindNetworkUnavailable, "read body", err)
	}
	if int64(len(data)) > f.limits.MaxImageSize {
		return nil, newTooLargeError(int64(len(data)), f.limits.MaxImageSize)
	}

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return &FetchResult{ContentType: ct, Data: data, FinalURL: finalURL}, nil
}
