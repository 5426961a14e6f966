package rewrite

import (
	"net/url"
	"strings"

	"github.com/antoine78910/ecomefficiency-sub002/internal/session"
)

// Rewriter rewrites upstream-facing URLs into proxy-relative form for one
// target. It is pure configuration and safe for concurrent use.
type Rewriter struct {
	// Origin is the upstream app origin the proxied page came from.
	Origin *url.URL

	// Route is the proxy route mapping shared with the redirect follower
	// and the shim generator.
	Route session.Route

	// Hosts are third-party API hostnames folded into same-origin routes.
	Hosts []HostRule

	// DropHosts are telemetry/monitoring hosts whose script and link tags
	// are removed outright; once proxied they only add noise and failures.
	DropHosts []string
}

var skipSchemes = []string{"#", "javascript:", "mailto:", "tel:", "data:", "blob:", "about:"}

// RewriteURL maps one attribute URL to its proxy-relative equivalent.
// URLs the proxy has no business touching come back unchanged.
func (rw *Rewriter) RewriteURL(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return raw
	}
	lower := strings.ToLower(s)
	for _, p := range skipSchemes {
		if strings.HasPrefix(lower, p) {
			return raw
		}
	}

	if strings.HasPrefix(s, "//") {
		return rw.rewriteAbsolute("https:" + s)
	}
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return rw.rewriteAbsolute(s)
	}
	if strings.HasPrefix(s, "/") {
		path, rest := splitPathSuffix(s)
		return rw.Route.ProxyPath(path) + rest
	}
	// Relative paths resolve against the (already rewritten) document URL.
	return raw
}

func (rw *Rewriter) rewriteAbsolute(s string) string {
	u, err := url.Parse(s)
	if err != nil {
		return s
	}
	rest := ""
	if u.RawQuery != "" {
		rest += "?" + u.RawQuery
	}
	if u.Fragment != "" {
		rest += "#" + u.Fragment
	}

	host := strings.ToLower(u.Host)
	if host == strings.ToLower(rw.Origin.Host) {
		return rw.Route.ProxyPath(u.EscapedPath()) + rest
	}
	for _, hr := range rw.Hosts {
		if host == hr.Host {
			return hr.Path + u.EscapedPath() + rest
		}
	}
	return s
}

// DropHost reports whether a script/link URL points at a telemetry host.
func (rw *Rewriter) DropHost(raw string) bool {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "//") {
		s = "https:" + s
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Host)
	for _, d := range rw.DropHosts {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

func splitPathSuffix(s string) (path, rest string) {
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		return s[:i], s[i:]
	}
	return s, ""
}
