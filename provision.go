// Copyright 2023 Wayback Archiver. All rights reserved.
// Use of this source code is governed by the MIT
// license that can be found in the LICENSE file.

package imageproxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/avast/retry-go"
	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"
)

const (
	warpAPIBase    = "https://api.cloudflareclient.com"
	warpAPIVersion = "v0a884"
	warpUserAgent  = "okhttp/3.12.1"
)

// Provisioner registers a fresh device identity with the Cloudflare WARP
// API and turns on the WARP routing flag, producing a WarpConfig ready to
// hand to the tunnel. It never touches disk; Store persistence is the
// caller's job.
type Provisioner struct {
	httpClient *http.Client
}

// NewProvisioner returns a Provisioner that talks to the WARP API over a
// plain (non-tunneled) HTTP client, since provisioning necessarily happens
// before the tunnel exists.
func NewProvisioner() *Provisioner {
	return &Provisioner{httpClient: &http.Client{Timeout: 30 * time.Second}}
}

type regRequest struct {
	Key       string `json:"key"`
	InstallID string `json:"install_id"`
	FCMToken  string `json:"fcm_token"`
	Tos       string `json:"tos"`
	Model     string `json:"model"`
	Type      string `json:"type"`
	Locale    string `json:"locale"`
}

type regPeerConfig struct {
	PublicKey string `json:"public_key"`
	Endpoint  struct {
		Host string `json:"host"`
		V4   string `json:"v4"`
		V6   string `json:"v6"`
	} `json:"endpoint"`
}

type regInterfaceConfig struct {
	Addresses struct {
		V4 string `json:"v4"`
		V6 string `json:"v6"`
	} `json:"addresses"`
}

type regConfig struct {
	Peers     []regPeerConfig    `json:"peers"`
	Interface regInterfaceConfig `json:"interface"`
}

type regResponse struct {
	ID      string `json:"id"`
	Token   string `json:"token"`
	Account struct {
		ID          string `json:"id"`
		AccountType string `json:"account_type"`
		License     string `json:"license"`
	} `json:"account"`
	Config regConfig `json:"config"`
}

func (p *Provisioner) do(ctx context.Context, method, path, token string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return newError(KindProvisioningFailed, "marshal request", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, warpAPIBase+"/"+warpAPIVersion+path, reqBody)
	if err != nil {
		return newError(KindProvisioningFailed, "build request", err)
	}
	req.Header.Set("User-Agent", warpUserAgent)
	req.Header.Set("Accept-Encoding", "gzip")
	if body != nil {
		req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	var resp *http.Response
	err = retry.Do(
		func() error {
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return err
				}
				req.Body = body
			}
			var doErr error
			resp, doErr = p.httpClient.Do(req)
			return doErr
		},
		retry.Attempts(3),
		retry.Delay(250*time.Millisecond),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return newError(KindProvisioningFailed, "request to "+path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newError(KindProvisioningFailed, fmt.Sprintf("%s returned status %d", path, resp.StatusCode), nil)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return newError(KindProvisioningFailed, "decode response from "+path, err)
		}
	}
	return nil
}

// Provision runs the full WARP onboarding sequence: generate a keypair,
// register the device, fetch the assigned peer/interface configuration,
// then flip warp_enabled on. The returned WarpConfig is ready to pass to
// a Tunnel.
func (p *Provisioner) Provision(ctx context.Context) (WarpConfig, error) {
	key, err := wgtypes.GeneratePrivateKey()
	if err != nil {
		return WarpConfig{}, newError(KindCrypto, "generate private key", err)
	}

	reg := regRequest{
		Key:       key.PublicKey().String(),
		InstallID: "",
		FCMToken:  "",
		Tos:       timestamp(),
		Model:     "PC",
		Type:      "Android",
		Locale:    "en_US",
	}

	var resp regResponse
	if err := p.do(ctx, http.MethodPost, "/reg", "", reg, &resp); err != nil {
		return WarpConfig{}, err
	}

	var fetched regResponse
	if err := p.do(ctx, http.MethodGet, "/reg/"+resp.ID, resp.Token, nil, &fetched); err != nil {
		return WarpConfig{}, err
	}
	if len(fetched.Config.Peers) == 0 {
		fetched = resp
	}

	patch := map[string]any{"warp_enabled": true}
	if err := p.do(ctx, http.MethodPatch, "/reg/"+resp.ID, resp.Token, patch, nil); err != nil {
		return WarpConfig{}, err
	}

	if len(fetched.Config.Peers) == 0 {
		return WarpConfig{}, newError(KindProvisioningFailed, "no peer returned by WARP API", nil)
	}
	peer := fetched.Config.Peers[0]
	endpoint := peer.Endpoint.V4
	if endpoint == "" {
		endpoint = peer.Endpoint.Host
	}

	accountType := fetched.Account.AccountType
	if accountType == "" {
		accountType = "free"
	}

	return WarpConfig{
		Account: WarpAccountData{
			AccountID:   fetched.Account.ID,
			DeviceID:    resp.ID,
			AccessToken: resp.Token,
			WarpEnabled: true,
			License:     fetched.Account.License,
		},
		Interface: WarpInterfaceConfig{
			PrivateKey:  key.String(),
			Address:     addressList(fetched.Config.Interface.Addresses.V4),
			AddressIPv6: fetched.Config.Interface.Addresses.V6,
			DNS:         []string{"1.1.1.1"},
			MTU:         1420,
		},
		Peer: WarpPeerConfig{
			PublicKey:    peer.PublicKey,
			Endpoint:     withDefaultPort(endpoint, 2408),
			EndpointIPv6: peer.Endpoint.V6,
			AllowedIPs:   []string{"0.0.0.0/0"},
			KeepAlive:    25,
		},
		AccountType: accountType,
		LastUpdated: time.Now().Unix(),
	}, nil
}

func addressList(v4 string) []string {
	if v4 == "" {
		return nil
	}
	return []string{v4}
}

func timestamp() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.000-07:00")
}

func withDefaultPort(hostport string, def int) string {
	if hostport == "" {
		return hostport
	}
	for i := len(hostport) - 1; i >= 0; i-- {
		if hostport[i] == ':' {
			return hostport
		}
		if hostport[i] == ']' {
			break
		}
	}
	return fmt.Sprintf("%s:%d", hostport, def)
}
