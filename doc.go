// Copyright 2023 Wayback Archiver. All rights reserved.
// Use of this source code is governed by the MIT
// license that can be found in the LICENSE file.

/*
Package imageproxy fetches remote images referenced by HTML mail bodies
through a userspace WireGuard tunnel to Cloudflare WARP, so the origin
server only ever sees the WARP exit IP. It provisions its own WARP
identity on first use, caches recent responses, and exposes a bounded
concurrent batch-fetch API for a mail client's rendering pipeline.
*/
package imageproxy // import "github.com/letterbox-mail/imageproxy"
