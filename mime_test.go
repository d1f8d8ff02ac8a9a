package imageproxy

import "testing"

func TestSniffImageType(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"png", []byte("\x89PNG\r\n\x1a\nrest"), "image/png"},
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0}, "image/jpeg"},
		{"gif87", []byte("GIF87a..."), "image/gif"},
		{"gif89", []byte("GIF89a..."), "image/gif"},
		{"webp", append([]byte("RIFF\x00\x00\x00\x00WEBP"), "VP8 "...), "image/webp"},
		{"bmp", []byte{0x42, 0x4D, 0, 0}, "image/bmp"},
		{"ico", []byte{0x00, 0x00, 0x01, 0x00}, "image/x-icon"},
		{"svg", []byte(`<?xml version="1.0"?><svg xmlns="http://www.w3.org/2000/svg"></svg>`), "image/svg+xml"},
		{"unknown", []byte("not an image"), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SniffImageType(tt.data); got != tt.want {
				t.Errorf("SniffImageType() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNormalizeContentType(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"image/PNG", "image/png"},
		{" image/jpeg ; charset=binary", "image/jpeg"},
		{"IMAGE/GIF", "image/gif"},
	}
	for _, tt := range tests {
		if got := normalizeContentType(tt.in); got != tt.want {
			t.Errorf("normalizeContentType(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValidateImageData(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\nrest")
	ico := []byte{0x00, 0x00, 0x01, 0x00}

	tests := []struct {
		name    string
		data    []byte
		claimed string
		want    bool
	}{
		{"matching", png, "image/png", true},
		{"mismatch", png, "image/gif", false},
		{"icon variants equivalent", ico, "image/vnd.microsoft.icon", true},
		{"unsniffable accepted on claim", []byte("plain text body"), "image/jpeg", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateImageData(tt.data, tt.claimed); got != tt.want {
				t.Errorf("ValidateImageData() = %v, want %v", got, tt.want)
			}
		})
	}
}
