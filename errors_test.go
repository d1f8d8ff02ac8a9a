package imageproxy

import (
	"errors"
	"testing"
)

func TestErrorIsMatchesByKind(t *testing.T) {
	err := newHTTPError(404)
	if !errors.Is(err, &Error{Kind: KindHTTP}) {
		t.Errorf("expected errors.Is to match on Kind alone")
	}
	if errors.Is(err, ErrTunnel) {
		t.Errorf("expected no match across different Kinds")
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := newError(KindStorage, "write config", cause)
	if !errors.Is(err, cause) {
		t.Errorf("expected errors.Is to find the wrapped cause")
	}
}

func TestAsErrorPassesThroughExisting(t *testing.T) {
	original := newTooManyRedirectsError(6)
	wrapped := asError(KindNetworkUnavailable, original)
	if wrapped.Kind != KindTooManyRedirects {
		t.Errorf("expected asError to preserve the original Kind, got %v", wrapped.Kind)
	}
}

func TestAsErrorWrapsForeignError(t *testing.T) {
	foreign := errors.New("plain error")
	wrapped := asError(KindDNS, foreign)
	if wrapped.Kind != KindDNS {
		t.Errorf("Kind = %v, want KindDNS", wrapped.Kind)
	}
	if !errors.Is(wrapped, foreign) {
		t.Errorf("expected wrapped error to still unwrap to the foreign cause")
	}
}
