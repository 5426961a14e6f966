package utils

var HopByHopHeaders = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailers":            true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
}

// EdgeClientHeaders are CDN-edge headers that identify the proxy's own
// infrastructure to the upstream. They are stripped before forwarding and
// replaced with X-Forwarded-For/X-Real-Ip carrying the true client IP.
var EdgeClientHeaders = []string{
	"Cf-Connecting-Ip",
	"Cf-Ipcountry",
	"Cf-Ray",
	"Cf-Visitor",
	"Cdn-Loop",
	"Forwarded",
	"True-Client-Ip",
	"X-Vercel-Forwarded-For",
	"X-Vercel-Ip-Country",
	"X-Vercel-Id",
	"Fly-Client-Ip",
	"Fly-Forwarded-Proto",
}

// PassthroughRequestHeaders are forwarded to the upstream verbatim.
var PassthroughRequestHeaders = []string{
	"User-Agent",
	"Accept",
	"Accept-Language",
	"Content-Type",
	"X-Requested-With",
}

// DropResponseHeaders are never relayed back to the browser. Set-Cookie and
// Location are handled separately by the namespace translator and the
// redirect follower.
var DropResponseHeaders = map[string]bool{
	"Content-Security-Policy":             true,
	"Content-Security-Policy-Report-Only": true,
	"Strict-Transport-Security":           true,
	"Public-Key-Pins":                     true,
	"X-Frame-Options":                     true,
	"Report-To":                           true,
	"Nel":                                 true,
	"Alt-Svc":                             true,
}
