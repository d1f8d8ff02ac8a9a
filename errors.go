// Copyright 2023 Wayback Archiver. All rights reserved.
// Use of this source code is governed by the MIT
// license that can be found in the LICENSE file.

package imageproxy

import (
	"errors"
	"fmt"
)

// Kind identifies the class of an Error, mirroring the closed set of
// failure modes the proxy can report to a caller.
type Kind int

const (
	// KindNotInitialized means a caller invoked an operation before Init.
	KindNotInitialized Kind = iota
	// KindInitializationFailed means Init itself could not complete.
	KindInitializationFailed
	// KindProvisioningFailed means the WARP registration handshake failed.
	KindProvisioningFailed
	// KindTunnel means the WireGuard transport or virtual stack failed.
	KindTunnel
	// KindInvalidURL means a fetch target was not an http(s) URL.
	KindInvalidURL
	// KindHTTP means the origin responded with a non-2xx status.
	KindHTTP
	// KindInvalidContentType means the response's content type isn't an
	// allowed image type.
	KindInvalidContentType
	// KindResponseTooLarge means the body exceeded the configured limit.
	KindResponseTooLarge
	// KindTooManyRedirects means the redirect cap was exceeded.
	KindTooManyRedirects
	// KindTimeout means the fetch did not complete within its deadline.
	KindTimeout
	// KindDNS means resolving the origin host failed.
	KindDNS
	// KindTLS means the TLS handshake to the origin failed.
	KindTLS
	// KindStorage means the on-disk configuration could not be read or
	// written.
	KindStorage
	// KindCrypto means a key was malformed or a cryptographic operation
	// failed.
	KindCrypto
	// KindNetworkUnavailable means the tunnel has no route to the origin.
	KindNetworkUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindNotInitialized:
		return "not initialized"
	case KindInitializationFailed:
		return "initialization failed"
	case KindProvisioningFailed:
		return "provisioning failed"
	case KindTunnel:
		return "tunnel error"
	case KindInvalidURL:
		return "invalid url"
	case KindHTTP:
		return "http error"
	case KindInvalidContentType:
		return "invalid content type"
	case KindResponseTooLarge:
		return "response too large"
	case KindTooManyRedirects:
		return "too many redirects"
	case KindTimeout:
		return "timeout"
	case KindDNS:
		return "dns error"
	case KindTLS:
		return "tls error"
	case KindStorage:
		return "storage error"
	case KindCrypto:
		return "crypto error"
	case KindNetworkUnavailable:
		return "network unavailable"
	default:
		return "unknown error"
	}
}

// Error is the single error type the package returns. It carries enough
// structured payload (Status, Size/Max, Count) for callers to branch on
// without string matching, and always wraps the underlying cause when one
// exists so errors.Is/errors.As chains through it.
type Error struct {
	Kind   Kind
	Status int   // set for KindHTTP
	Size   int64 // set for KindResponseTooLarge
	Max    int64 // set for KindResponseTooLarge
	Count  int   // set for KindTooManyRedirects
	Detail string
	Err    error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindHTTP:
		return fmt.Sprintf("%s: status %d", e.Kind, e.Status)
	case KindResponseTooLarge:
		return fmt.Sprintf("%s: %d bytes exceeds limit of %d", e.Kind, e.Size, e.Max)
	case KindTooManyRedirects:
		return fmt.Sprintf("%s: %d redirects exceeds limit", e.Kind, e.Count)
	case KindInvalidContentType, KindInvalidURL:
		if e.Detail != "" {
			return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
		}
		return e.Kind.String()
	}
	if e.Err != nil {
		if e.Detail != "" {
			return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same Kind, so callers can
// write errors.Is(err, imageproxy.ErrNotInitialized) style checks against
// the sentinel values below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinel values for errors.Is comparisons against a bare Kind, with no
// payload.
var (
	ErrNotInitialized      = &Error{Kind: KindNotInitialized}
	ErrInitializationFailed = &Error{Kind: KindInitializationFailed}
	ErrProvisioningFailed  = &Error{Kind: KindProvisioningFailed}
	ErrTunnel              = &Error{Kind: KindTunnel}
	ErrInvalidURL          = &Error{Kind: KindInvalidURL}
	ErrDNS                 = &Error{Kind: KindDNS}
	ErrTLS                 = &Error{Kind: KindTLS}
	ErrStorage             = &Error{Kind: KindStorage}
	ErrCrypto              = &Error{Kind: KindCrypto}
	ErrNetworkUnavailable  = &Error{Kind: KindNetworkUnavailable}
)

func newError(kind Kind, detail string, err error) *Error {
	return &Error{Kind: kind, Detail: detail, Err: err}
}

func newHTTPError(status int) *Error {
	return &Error{Kind: KindHTTP, Status: status}
}

func newTooLargeError(size, max int64) *Error {
	return &Error{Kind: KindResponseTooLarge, Size: size, Max: max}
}

func newTooManyRedirectsError(count int) *Error {
	return &Error{Kind: KindTooManyRedirects, Count: count}
}

func newTimeoutError(seconds int) *Error {
	return &Error{Kind: KindTimeout, Detail: fmt.Sprintf("%ds", seconds)}
}

// asError unwraps err into *Error if possible, otherwise wraps it as a
// generic error of kind.
func asError(kind Kind, err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return newError(kind, "", err)
}
