package rewrite

// HostRule maps an absolute third-party API hostname onto a same-origin
// proxy sub-route, so browser-enforced CORS never blocks a call the proxy
// can make server-to-server. The same table drives the server-side HTML
// rewriter and the generated runtime shim, which keeps the two sides of the
// rewrite from drifting apart.
type HostRule struct {
	Host string `json:"host"` // "api.elevenlabs.io"
	Path string `json:"path"` // "/proxy/eleven/api"
}
