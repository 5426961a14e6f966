package proxy

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/antoine78910/ecomefficiency-sub002/internal/security"
	"github.com/antoine78910/ecomefficiency-sub002/internal/session"
	"github.com/antoine78910/ecomefficiency-sub002/internal/utils"
)

// buildUpstreamRequest constructs the outbound request for one inbound
// browser request. Headers are built from a curated set rather than copied
// wholesale, which is what strips hop-by-hop and CDN-edge identifying
// headers: anything not explicitly forwarded never reaches the upstream.
func (p *Proxy) buildUpstreamRequest(r *http.Request, target *url.URL, prefix string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(r.Context(), r.Method, target.String(), r.Body)
	if err != nil {
		return nil, err
	}
	req.ContentLength = r.ContentLength

	for _, h := range utils.PassthroughRequestHeaders {
		if v := r.Header.Get(h); v != "" {
			req.Header.Set(h, v)
		}
	}

	// The rewriter works on decoded bytes; upstream compression would mean
	// decoding twice on the way back out.
	req.Header.Set("Accept-Encoding", "identity")

	// Upstream CSRF checks expect a same-origin referer, which stops being
	// naturally true once requests come through the proxy.
	origin := p.cfg.originString()
	req.Header.Set("Origin", origin)
	req.Header.Set("Referer", origin+"/")

	if raw := r.Header.Get("Cookie"); raw != "" {
		filtered := session.FilterCookieHeader(raw, prefix)
		if filtered != "" {
			req.Header.Set("Cookie", filtered)
			p.attachDerivedToken(req, filtered)
		}
	}

	ip := security.GetClientIP(r)
	req.Header.Set("X-Forwarded-For", ip)
	req.Header.Set("X-Real-Ip", ip)

	return req, nil
}

// attachDerivedToken synthesizes bearer headers from a cookie whose value
// is a JSON payload embedding an access token. Some upstreams expect the
// token out-of-band from the cookie for API calls.
func (p *Proxy) attachDerivedToken(req *http.Request, cookieHeader string) {
	if p.cfg.TokenCookie == "" || p.cfg.TokenField == "" {
		return
	}
	raw, ok := session.CookieValue(cookieHeader, p.cfg.TokenCookie)
	if !ok {
		return
	}
	token := extractJSONField(raw, p.cfg.TokenField)
	if token == "" {
		return
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if p.cfg.VendorTokenHeader != "" {
		req.Header.Set(p.cfg.VendorTokenHeader, token)
	}
}

// extractJSONField pulls a string field out of a cookie value holding JSON,
// tolerating URL-encoded values. Returns "" when the value is not JSON or
// the field is absent; a malformed token cookie must never fail a request.
func extractJSONField(value, field string) string {
	if decoded, err := url.QueryUnescape(value); err == nil {
		value = decoded
	}
	if !strings.HasPrefix(strings.TrimSpace(value), "{") {
		return ""
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(value), &payload); err != nil {
		return ""
	}
	if s, ok := payload[field].(string); ok {
		return s
	}
	return ""
}
