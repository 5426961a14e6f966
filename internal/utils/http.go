package utils

import (
	"fmt"
	"net/http"
	"strings"
)

var StandardWebPorts = map[string]bool{
	"80":  true,
	"443": true,
}

// GetScheme determines the scheme (http/https) from the request
func GetScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	return "http"
}

// IsServedOverHTTPS reports whether the browser-facing connection is HTTPS,
// either directly or behind a TLS-terminating edge.
func IsServedOverHTTPS(r *http.Request) bool {
	return GetScheme(r) == "https"
}

// IsDefaultPort returns true if the port is a standard web port (80, 443)
func IsDefaultPort(port string) bool {
	return StandardWebPorts[port]
}

// ConstructURL builds a URL string and removes standard web ports if present
func ConstructURL(scheme, host, path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	hostname := host
	port := ""
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		hostname = host[:idx]
		port = host[idx+1:]
	}

	if port == "" || IsDefaultPort(port) {
		return fmt.Sprintf("%s://%s%s", scheme, hostname, path)
	}
	return fmt.Sprintf("%s://%s:%s%s", scheme, hostname, port, path)
}
