// Copyright 2023 Wayback Archiver. All rights reserved.
// Use of this source code is governed by the MIT
// license that can be found in the LICENSE file.

package imageproxy

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/adrg/xdg"
)

const configFileName = "warp_config.json"

// defaultAllowedContentTypes is the allow-list of image content types this
// proxy will ever return to a caller, normalized to lowercase without
// parameters.
var defaultAllowedContentTypes = []string{
	"image/jpeg",
	"image/png",
	"image/gif",
	"image/webp",
	"image/svg+xml",
	"image/bmp",
	"image/x-icon",
	"image/vnd.microsoft.icon",
}

// FetchLimits bounds what the image fetcher will accept from an origin.
type FetchLimits struct {
	MaxImageSize        int64    `json:"max_image_size"`
	MaxRedirects        int      `json:"max_redirects"`
	TimeoutSeconds       int      `json:"timeout_seconds"`
	AllowedContentTypes []string `json:"allowed_content_types"`
}

// IsContentTypeAllowed reports whether ct (already normalized, see
// normalizeContentType) is in the allow-list, treating any "icon" variant
// as equivalent to the canonical ICO types.
func (l FetchLimits) IsContentTypeAllowed(ct string) bool {
	for _, allowed := range l.AllowedContentTypes {
		if ct == allowed {
			return true
		}
		if strings.Contains(allowed, "icon") && strings.Contains(ct, "icon") {
			return true
		}
	}
	return false
}

func defaultFetchLimits() FetchLimits {
	return FetchLimits{
		MaxImageSize:   10 << 20, // 10 MiB
		MaxRedirects:   5,
		TimeoutSeconds: 30,
		AllowedContentTypes: append([]string(nil), defaultAllowedContentTypes...),
	}
}

// ProxyConfig holds the operator-tunable knobs of the proxy core that are
// not part of the WARP identity.
type ProxyConfig struct {
	Limits        FetchLimits `json:"limits"`
	MaxConcurrent int         `json:"max_concurrent"`
	CacheCapacity int         `json:"cache_capacity"`
}

func defaultProxyConfig() ProxyConfig {
	return ProxyConfig{
		Limits:        defaultFetchLimits(),
		MaxConcurrent: 8,
		CacheCapacity: 100,
	}
}

// WarpAccountData is the Cloudflare-issued identity for this device.
type WarpAccountData struct {
	AccountID   string `json:"account_id"`
	DeviceID    string `json:"device_id"`
	AccessToken string `json:"access_token"`
	WarpEnabled bool    `json:"warp_enabled"`
	// License is the WARP+ license key applied to this device, empty for
	// a free account.
	License string `json:"license,omitempty"`
}

// WarpInterfaceConfig is the local side of the WireGuard interface.
type WarpInterfaceConfig struct {
	PrivateKey string   `json:"private_key"` // base64
	Address    []string `json:"address"`
	// AddressIPv6 is the interface's IPv6 address as assigned by
	// Cloudflare. It is stored for completeness but never dialed: the
	// tunnel's transport path is IPv4-only (see Tunnel).
	AddressIPv6 string   `json:"address_ipv6,omitempty"`
	DNS         []string `json:"dns"`
	MTU         int      `json:"mtu"`
}

// WarpPeerConfig is the Cloudflare WARP edge peer.
type WarpPeerConfig struct {
	PublicKey  string   `json:"public_key"` // base64
	Endpoint   string   `json:"endpoint"`
	// EndpointIPv6 is the peer's IPv6 endpoint address, stored alongside
	// Endpoint but not used for dialing (see AddressIPv6).
	EndpointIPv6 string   `json:"endpoint_ipv6,omitempty"`
	AllowedIPs   []string `json:"allowed_ips"`
	KeepAlive    int      `json:"persistent_keepalive"`
}

// WarpConfig is the full tunnel configuration round-tripped through
// warp_config.json, written atomically by Store.save.
type WarpConfig struct {
	Account   WarpAccountData     `json:"account"`
	Interface WarpInterfaceConfig `json:"interface"`
	Peer      WarpPeerConfig      `json:"peer"`
	// AccountType is the Cloudflare-reported plan tier ("free", "team",
	// ...).
	AccountType string `json:"account_type"`
	// LastUpdated is the Unix timestamp (seconds) this configuration was
	// last written, refreshed on every Store.UpdateWarpConfig call.
	LastUpdated int64 `json:"last_updated"`
}

type onDisk struct {
	Warp  *WarpConfig `json:"warp,omitempty"`
	Proxy ProxyConfig `json:"proxy"`
}

// Store owns the on-disk configuration file. It is safe for concurrent
// use; reads take the read lock, UpdateWarpConfig takes the write lock and
// persists before releasing it.
type Store struct {
	mu   sync.RWMutex
	path string
	warp *WarpConfig
	cfg  ProxyConfig
}

// DefaultStoragePath returns the XDG-compliant default location for
// warp_config.json, used when the host application does not supply its
// own storage directory.
func DefaultStoragePath() (string, error) {
	return xdg.DataFile(filepath.Join("imageproxy", configFileName))
}

// LoadOrCreate reads path if it exists, otherwise returns a Store with
// proxy defaults and no WARP credentials. path's parent directory is
// created if missing.
func LoadOrCreate(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, newError(KindStorage, "create config directory", err)
	}

	s := &Store{path: path, cfg: defaultProxyConfig()}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, newError(KindStorage, "read config file", err)
	}

	var d onDisk
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, newError(KindStorage, "parse config file", err)
	}
	s.warp = d.Warp
	if d.Proxy.MaxConcurrent > 0 {
		s.cfg = d.Proxy
	}
	if s.cfg.Limits.AllowedContentTypes == nil {
		s.cfg.Limits = defaultFetchLimits()
	}
	return s, nil
}

// HasCredentials reports whether a WARP identity has been provisioned.
func (s *Store) HasCredentials() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.warp != nil
}

// WarpConfig returns a copy of the current tunnel configuration and
// whether one is present.
func (s *Store) WarpConfig() (WarpConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.warp == nil {
		return WarpConfig{}, false
	}
	return *s.warp, true
}

// ProxyConfig returns a copy of the current proxy tuning parameters.
func (s *Store) ProxyConfig() ProxyConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// UpdateWarpConfig replaces the tunnel configuration and persists it,
// stamping LastUpdated with the current time.
func (s *Store) UpdateWarpConfig(cfg WarpConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg.LastUpdated = time.Now().Unix()
	s.warp = &cfg
	return s.save()
}

// save serializes the store and atomically replaces the config file:
// write to a temp file in the same directory, then rename over path, so a
// crash mid-write never corrupts a previously valid file.
func (s *Store) save() error {
	d := onDisk{Warp: s.warp, Proxy: s.cfg}
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return newError(KindStorage, "marshal config", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return newError(KindStorage, "write temp config file", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return newError(KindStorage, "replace config file", err)
	}
	return nil
}
