// Copyright 2023 Wayback Archiver. All rights reserved.
// Use of this source code is governed by the MIT
// license that can be found in the LICENSE file.

package imageproxy

import (
	"bytes"
	"strings"
)

// normalizeContentType lowercases a Content-Type header value and strips
// any ";charset=..." style parameters, so allow-list comparisons never
// depend on an origin's exact casing or parameter ordering.
func normalizeContentType(ct string) string {
	ct = strings.ToLower(strings.TrimSpace(ct))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.TrimSpace(ct)
}

// SniffImageType inspects the leading bytes of data and returns the MIME
// type of the image format it recognizes, or "" if none match. This backs
// ValidateImageData, which cross-checks an origin's claimed Content-Type
// against what the bytes actually are. Fetch does not call either of these
// itself — they are exported for callers that want byte-signature
// verification on top of the fetch path's own content-type allow-list.
func SniffImageType(data []byte) string {
	switch {
	case bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")):
		return "image/png"
	case bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}):
		return "image/jpeg"
	case bytes.HasPrefix(data, []byte("GIF87a")), bytes.HasPrefix(data, []byte("GIF89a")):
		return "image/gif"
	case len(data) >= 12 && bytes.HasPrefix(data, []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return "image/webp"
	case bytes.HasPrefix(data, []byte{0x42, 0x4D}):
		return "image/bmp"
	case bytes.HasPrefix(data, []byte{0x00, 0x00, 0x01, 0x00}):
		return "image/x-icon"
	case looksLikeSVG(data):
		return "image/svg+xml"
	default:
		return ""
	}
}

func looksLikeSVG(data []byte) bool {
	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	lower := strings.ToLower(string(head))
	return strings.Contains(lower, "<svg")
}

// ValidateImageData reports whether data's sniffed type is consistent with
// claimedType. The various "icon" MIME spellings are treated as
// equivalent, matching FetchLimits.IsContentTypeAllowed's own icon
// equivalence; any other difference between the sniffed and claimed type
// (an ICO body labelled image/png, for example) is reported as inconsistent.
func ValidateImageData(data []byte, claimedType string) bool {
	sniffed := SniffImageType(data)
	if sniffed == "" {
		// Formats this proxy doesn't sniff (rare) are accepted on the
		// claimed type alone; size/type-allow-list checks already ran.
		return true
	}
	claimed := normalizeContentType(claimedType)
	if sniffed == claimed {
		return true
	}
	if strings.Contains(sniffed, "icon") && strings.Contains(claimed, "icon") {
		return true
	}
	return false
}
