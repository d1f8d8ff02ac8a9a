// Copyright 2023 Wayback Archiver. All rights reserved.
// Use of this source code is governed by the MIT
// license that can be found in the LICENSE file.

package imageproxy

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.zx2c4.com/wireguard/device"
	"golang.zx2c4.com/wireguard/tun/netstack"
)

// Status reports the live state of a Tunnel, derived from the WireGuard
// device's own UAPI rather than a hand-tracked connection flag.
type Status struct {
	Connected       bool
	LastHandshake   time.Time
	SinceHandshake  time.Duration
	Endpoint        string
}

// Tunnel is the facade in front of the userspace WireGuard device and the
// gVisor network stack it drives. All dialed connections share the single
// underlying device, but Connect/Close/Status are the only calls that need
// to be serialized against each other; a dialed net.Conn is safe for its
// own caller to use without going back through the Tunnel.
type Tunnel struct {
	mu       sync.Mutex
	cfg      WarpConfig
	net      *netstack.Net
	dev      *device.Device
	endpoint string
}

// NewTunnel returns a Tunnel configured from cfg. Connect must be called
// before DialTCP.
func NewTunnel(cfg WarpConfig) *Tunnel {
	return &Tunnel{cfg: cfg, endpoint: cfg.Peer.Endpoint}
}

// Connect brings up the virtual device and WireGuard peer, sending the
// initial handshake. It is idempotent; calling Connect on an already
// connected Tunnel is a no-op.
func (t *Tunnel) Connect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.dev != nil {
		return nil
	}

	tnet, dev, err := newWireGuardDevice(t.cfg, device.LogLevelError)
	if err != nil {
		return err
	}
	t.net = tnet
	t.dev = dev
	return nil
}

// Close tears down the device and releases its resources. Connections
// dialed through the tunnel are invalidated.
func (t *Tunnel) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.dev == nil {
		return nil
	}
	t.dev.Close()
	t.dev = nil
	t.net = nil
	return nil
}

// DialTCP dials host:port through the tunnel's virtual TCP/IP stack,
// returning a net.Conn whose Read/Write/Close correspond to spec's
// tcp_recv/tcp_send/tcp_close operations. The connection is owned by the
// caller from this point on.
func (t *Tunnel) DialTCP(ctx context.Context, network, addr string) (net.Conn, error) {
	t.mu.Lock()
	tnet := t.net
	t.mu.Unlock()
	if tnet == nil {
		return nil, newError(KindTunnel, "tunnel not connected", nil)
	}

	conn, err := tnet.DialContext(ctx, network, addr)
	if err != nil {
		return nil, newError(KindNetworkUnavailable, "dial "+addr, err)
	}
	return conn, nil
}

// Status queries the device's live UAPI state and reports whether the
// most recent handshake is still fresh enough to consider the tunnel
// connected (WireGuard re-handshakes roughly every two minutes; anything
// older than three suggests the peer has gone away).
func (t *Tunnel) Status() Status {
	t.mu.Lock()
	dev := t.dev
	endpoint := t.endpoint
	t.mu.Unlock()

	st := Status{Endpoint: endpoint}
	if dev == nil {
		return st
	}

	raw, err := dev.IpcGet()
	if err != nil {
		return st
	}

	var sec, nsec int64
	scanner := bufio.NewScanner(strings.NewReader(raw))
	for scanner.Scan() {
		line := scanner.Text()
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		switch k {
		case "last_handshake_time_sec":
			sec, _ = strconv.ParseInt(v, 10, 64)
		case "last_handshake_time_nsec":
			nsec, _ = strconv.ParseInt(v, 10, 64)
		}
	}

	if sec > 0 {
		st.LastHandshake = time.Unix(sec, nsec)
		st.SinceHandshake = time.Since(st.LastHandshake)
		st.Connected = st.SinceHandshake < 3*time.Minute
	}
	return st
}
