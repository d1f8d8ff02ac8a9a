package imageproxy

import (
	"errors"
	"testing"
)

func TestKeyToHex(t *testing.T) {
	// 32 zero bytes, base64-encoded.
	zero := "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA="
	hex, err := keyToHex(zero)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "0000000000000000000000000000000000000000000000000000000000000000"[:64]
	if hex != want {
		t.Errorf("keyToHex() = %q, want %q", hex, want)
	}
}

func TestKeyToHexRejectsWrongLength(t *testing.T) {
	_, err := keyToHex("dG9vc2hvcnQ=") // "tooshort", far fewer than 32 bytes
	var e *Error
	if !errors.As(err, &e) || e.Kind != KindCrypto {
		t.Fatalf("expected KindCrypto, got %v", err)
	}
}

func TestKeyToHexRejectsInvalidBase64(t *testing.T) {
	_, err := keyToHex("not-valid-base64!!")
	var e *Error
	if !errors.As(err, &e) || e.Kind != KindCrypto {
		t.Fatalf("expected KindCrypto, got %v", err)
	}
}

func TestParseAddrList(t *testing.T) {
	addrs, err := parseAddrList([]string{"10.0.0.2/32", "1.1.1.1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(addrs) != 2 {
		t.Fatalf("len(addrs) = %d, want 2", len(addrs))
	}
	if addrs[0].String() != "10.0.0.2" {
		t.Errorf("addrs[0] = %s, want 10.0.0.2", addrs[0])
	}
}

func TestParseAddrListRejectsGarbage(t *testing.T) {
	if _, err := parseAddrList([]string{"not-an-ip"}); err == nil {
		t.Errorf("expected an error for an unparsable address")
	}
}
