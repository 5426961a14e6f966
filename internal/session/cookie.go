package session

import "strings"

// The cookie namespace translator is the enforcement point for session
// isolation: the browser only ever sees namespaced cookie names, the
// upstream only ever sees original names, and cookies belonging to another
// slot never make it upstream.

// FilterCookieHeader parses an inbound Cookie header, keeps only the pairs
// carrying the current slot's prefix, strips the prefix and re-serializes.
// Pairs from other slots are silently dropped, as are unparseable pairs.
func FilterCookieHeader(header, prefix string) string {
	if header == "" {
		return ""
	}
	var out []string
	for _, part := range strings.Split(header, ";") {
		part = strings.TrimSpace(part)
		eq := strings.IndexByte(part, '=')
		if eq <= 0 {
			continue
		}
		name := part[:eq]
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		out = append(out, name[len(prefix):]+part[eq:])
	}
	return strings.Join(out, "; ")
}

// NamespaceSetCookie rewrites one upstream Set-Cookie header for the
// browser: the name gains the slot prefix, Domain is removed so the cookie
// binds to the proxy's own host, Path is pinned to the proxy base path, and
// SameSite/Secure are adjusted for the serving scheme. Returns "" when the
// header is unparseable, which drops it.
func NamespaceSetCookie(raw, prefix, basePath string, secure bool) string {
	parts := strings.Split(raw, ";")
	first := strings.TrimSpace(parts[0])
	eq := strings.IndexByte(first, '=')
	if eq <= 0 {
		return ""
	}

	out := []string{prefix + first}
	sawPath := false
	for _, part := range parts[1:] {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key := part
		if i := strings.IndexByte(part, '='); i >= 0 {
			key = part[:i]
		}
		switch strings.ToLower(key) {
		case "domain":
			// dropped: the cookie must bind to the proxy host
		case "path":
			out = append(out, "Path="+basePath)
			sawPath = true
		case "samesite":
			// rewritten below from the serving scheme
		case "secure":
			if secure {
				out = append(out, part)
			}
		default:
			out = append(out, part)
		}
	}
	if !sawPath {
		out = append(out, "Path="+basePath)
	}
	if secure {
		// Cross-context iframes and auth popups need SameSite=None, which
		// browsers only accept together with Secure.
		out = append(out, "SameSite=None")
		if !containsFold(out, "Secure") {
			out = append(out, "Secure")
		}
	} else {
		out = append(out, "SameSite=Lax")
	}
	return strings.Join(out, "; ")
}

func containsFold(parts []string, v string) bool {
	for _, p := range parts {
		if strings.EqualFold(p, v) {
			return true
		}
	}
	return false
}

// CookieValue extracts a single cookie's value from a raw Cookie header.
// Used for token derivation after the prefix has been stripped.
func CookieValue(header, name string) (string, bool) {
	for _, part := range strings.Split(header, ";") {
		part = strings.TrimSpace(part)
		if strings.HasPrefix(part, name+"=") {
			return part[len(name)+1:], true
		}
	}
	return "", false
}
