// Copyright 2023 Wayback Archiver. All rights reserved.
// Use of this source code is governed by the MIT
// license that can be found in the LICENSE file.

package imageproxy

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/netip"

	"golang.zx2c4.com/wireguard/conn"
	"golang.zx2c4.com/wireguard/device"
	"golang.zx2c4.com/wireguard/tun/netstack"
)

// keyToHex converts a base64 WireGuard key, as stored in WarpConfig and
// exchanged with the Cloudflare API, into the hex encoding the device
// UAPI (IpcSet) expects.
func keyToHex(b64 string) (string, error) {
	decoded, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return "", newError(KindCrypto, "invalid base64 key", err)
	}
	if len(decoded) != 32 {
		return "", newError(KindCrypto, "key must be 32 bytes", nil)
	}
	return hex.EncodeToString(decoded), nil
}

func parseAddrList(addrs []string) ([]netip.Addr, error) {
	out := make([]netip.Addr, 0, len(addrs))
	for _, s := range addrs {
		// Address fields from WARP may carry a /32 or /128 suffix; strip it.
		if i := lastIndexByte(s, '/'); i >= 0 {
			s = s[:i]
		}
		addr, err := netip.ParseAddr(s)
		if err != nil {
			return nil, newError(KindTunnel, "parse interface address "+s, err)
		}
		out = append(out, addr)
	}
	return out, nil
}

func lastIndexByte(s string, b byte) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == b {
			return i
		}
	}
	return -1
}

// newWireGuardDevice brings up a userspace WireGuard interface for cfg and
// returns the gVisor-backed network stack dialing through it, along with
// the device itself so the caller can query handshake status and tear it
// down. The device's internal goroutines own the Noise IK handshake, cookie
// replies and keepalive timers from this point on; callers never drive a
// manual poll/tick loop.
func newWireGuardDevice(cfg WarpConfig, logLevel int) (*netstack.Net, *device.Device, error) {
	localAddrs, err := parseAddrList(cfg.Interface.Address)
	if err != nil {
		return nil, nil, err
	}
	dnsAddrs, err := parseAddrList(cfg.Interface.DNS)
	if err != nil {
		return nil, nil, err
	}

	mtu := cfg.Interface.MTU
	if mtu == 0 {
		mtu = device.DefaultMTU
	}

	tun, tnet, err := netstack.CreateNetTUN(localAddrs, dnsAddrs, mtu)
	if err != nil {
		return nil, nil, newError(KindTunnel, "create virtual device", err)
	}

	privHex, err := keyToHex(cfg.Interface.PrivateKey)
	if err != nil {
		return nil, nil, err
	}
	pubHex, err := keyToHex(cfg.Peer.PublicKey)
	if err != nil {
		return nil, nil, err
	}

	var uapi bytes.Buffer
	fmt.Fprintf(&uapi, "private_key=%s\n", privHex)
	fmt.Fprintf(&uapi, "public_key=%s\n", pubHex)
	fmt.Fprintf(&uapi, "endpoint=%s\n", cfg.Peer.Endpoint)
	for _, allowed := range cfg.Peer.AllowedIPs {
		fmt.Fprintf(&uapi, "allowed_ip=%s\n", allowed)
	}
	if cfg.Peer.KeepAlive > 0 {
		fmt.Fprintf(&uapi, "persistent_keepalive_interval=%d\n", cfg.Peer.KeepAlive)
	}

	dev := device.NewDevice(tun, conn.NewDefaultBind(), device.NewLogger(logLevel, "imageproxy: "))
	if err := dev.IpcSet(uapi.String()); err != nil {
		dev.Close()
		return nil, nil, newError(KindTunnel, "configure device", err)
	}
	if err := dev.Up(); err != nil {
		dev.Close()
		return nil, nil, newError(KindTunnel, "bring up device", err)
	}

	return tnet, dev, nil
}
