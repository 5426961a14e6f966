package rewrite

import (
	"net/http"

	"github.com/antoine78910/ecomefficiency-sub002/internal/utils"
)

// CopyResponseHeaders relays upstream response headers to the browser.
// Hop-by-hop headers, restrictive security policies, Set-Cookie and
// Location are excluded; the last two are re-emitted separately by the
// namespace translator and the redirect follower. For HTML responses the
// body length changes under rewriting, so encoding and length headers are
// dropped and the content type is forced.
func CopyResponseHeaders(dst, src http.Header, isHTML bool) {
	for name, values := range src {
		canonical := http.CanonicalHeaderKey(name)
		if utils.HopByHopHeaders[canonical] || utils.DropResponseHeaders[canonical] {
			continue
		}
		if canonical == "Set-Cookie" || canonical == "Location" {
			continue
		}
		if isHTML && (canonical == "Content-Encoding" || canonical == "Content-Length" || canonical == "Content-Type") {
			continue
		}
		for _, v := range values {
			dst.Add(canonical, v)
		}
	}
	if isHTML {
		dst.Set("Content-Type", "text/html; charset=utf-8")
	}
}
