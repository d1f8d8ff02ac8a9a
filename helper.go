// Copyright 2023 Wayback Archiver. All rights reserved.
// Use of this source code is governed by the MIT
// license that can be found in the LICENSE file.

package imageproxy

import "net/http"

const fetchUserAgent = "Mozilla/5.0 (compatible; ImageProxy/1.0)"

// applyFetchHeaders sets the fixed header profile every outbound image
// request carries: a generic user agent (not the mail client's or the
// host OS's), an Accept limited to images, and explicitly no referrer. The
// profile never varies per-request, so it carries no signal beyond "some
// copy of this proxy made this request".
func applyFetchHeaders(req *http.Request) {
	req.Header.Set("User-Agent", fetchUserAgent)
	req.Header.Set("Accept", "image/*")
	req.Header.Del("Referer")
	req.Header.Del("Cookie")
}
