package session

import "strings"

// Route is the pure mapping between upstream paths and proxy paths for one
// target. The redirect follower, the response rewriter, and the injected
// runtime shim all derive their rewrites from this mapping, so they cannot
// diverge for the same input.
type Route struct {
	// BasePath is the session-aware proxy prefix, e.g. "/proxy/eleven".
	// No trailing slash.
	BasePath string

	// AssetBase is the origin-agnostic passthrough prefix for bundler chunk
	// paths, e.g. "/proxy/eleven-assets". Assets under it are shared by all
	// slots so the browser cache is not busted per slot.
	AssetBase string

	// AssetPrefixes are upstream path prefixes routed through AssetBase,
	// e.g. "/_next/", "/static/".
	AssetPrefixes []string
}

// ProxyPath maps an upstream path to its proxy-relative equivalent.
func (rt Route) ProxyPath(upstreamPath string) string {
	if upstreamPath == "" {
		upstreamPath = "/"
	}
	if !strings.HasPrefix(upstreamPath, "/") {
		upstreamPath = "/" + upstreamPath
	}
	if rt.IsAssetPath(upstreamPath) {
		return rt.AssetBase + upstreamPath
	}
	return rt.BasePath + upstreamPath
}

// UpstreamPath inverts ProxyPath. The second return is false when proxyPath
// is not under this route at all.
func (rt Route) UpstreamPath(proxyPath string) (string, bool) {
	for _, base := range []string{rt.AssetBase, rt.BasePath} {
		if base == "" {
			continue
		}
		if proxyPath == base {
			return "/", true
		}
		if strings.HasPrefix(proxyPath, base+"/") {
			return proxyPath[len(base):], true
		}
	}
	return "", false
}

func (rt Route) IsAssetPath(upstreamPath string) bool {
	for _, p := range rt.AssetPrefixes {
		if strings.HasPrefix(upstreamPath, p) {
			return true
		}
	}
	return false
}
