// Copyright 2023 Wayback Archiver. All rights reserved.
// Use of this source code is governed by the MIT
// license that can be found in the LICENSE file.

package imageproxy

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"net/netip"

	"github.com/miekg/dns"
)

const dohEndpoint = "https://1.1.1.1/dns-query"

// resolver resolves hostnames to A records via DNS-over-HTTPS, carried
// over the tunnel so a lookup never leaks the hostname outside it. It is
// deliberately not a fallback-to-plaintext resolver: per the fetcher's
// non-goal of hiding metadata beyond the client IP, a DoH failure is
// reported rather than retried against an unencrypted resolver.
type resolver struct {
	client *http.Client
}

func newResolver(tunnel *Tunnel) *resolver {
	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return tunnel.DialTCP(ctx, network, addr)
		},
	}
	return &resolver{client: &http.Client{Transport: transport}}
}

// Resolve looks up the first IPv4 address for host. If host is already a
// literal IP address it is returned unchanged.
func (r *resolver) Resolve(ctx context.Context, host string) (netip.Addr, error) {
	if addr, err := netip.ParseAddr(host); err == nil {
		return addr, nil
	}

	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(host), dns.TypeA)
	msg.RecursionDesired = true

	packed, err := msg.Pack()
	if err != nil {
		return netip.Addr{}, newError(KindDNS, "pack query", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, dohEndpoint, bytes.NewReader(packed))
	if err != nil {
		return netip.Addr{}, newError(KindDNS, "build doh request", err)
	}
	req.Header.Set("Content-Type", "application/dns-message")
	req.Header.Set("Accept", "application/dns-message")

	resp, err := r.client.Do(req)
	if err != nil {
		return netip.Addr{}, newError(KindDNS, "doh request to "+host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return netip.Addr{}, newError(KindDNS, "doh returned non-200", nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return netip.Addr{}, newError(KindDNS, "read doh response", err)
	}

	answer := new(dns.Msg)
	if err := answer.Unpack(body); err != nil {
		return netip.Addr{}, newError(KindDNS, "unpack doh response", err)
	}

	for _, rr := range answer.Answer {
		if a, ok := rr.(*dns.A); ok {
			addr, ok := netip.AddrFromSlice(a.A.To4())
			if ok {
				return addr, nil
			}
		}
	}
	return netip.Addr{}, newError(KindDNS, "no A record for "+host, nil)
}

// dialThroughTunnel returns a dial function that resolves the host via DoH
// and dials the resulting address through the tunnel, without performing a
// TLS handshake — used by the fetcher for plain-http origins.
func dialThroughTunnel(tunnel *Tunnel, res *resolver) DialFunc {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, newError(KindInvalidURL, "split host port", err)
		}

		ip, err := res.Resolve(ctx, host)
		if err != nil {
			return nil, err
		}

		return tunnel.DialTCP(ctx, network, net.JoinHostPort(ip.String(), port))
	}
}

// dialTLSThroughTunnel is dialThroughTunnel followed by a TLS handshake —
// used by the fetcher for https origins.
func dialTLSThroughTunnel(tunnel *Tunnel, res *resolver) DialFunc {
	return wrapTLS(dialThroughTunnel(tunnel, res))
}
