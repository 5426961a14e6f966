package proxy

import (
	"fmt"
	"net/url"

	"github.com/antoine78910/ecomefficiency-sub002/internal/constants"
	"github.com/antoine78910/ecomefficiency-sub002/internal/credentials"
	"github.com/antoine78910/ecomefficiency-sub002/internal/rewrite"
	"github.com/antoine78910/ecomefficiency-sub002/internal/session"
)

// Config describes one proxied upstream target. One Proxy is constructed
// per target; there is no module-level target state.
type Config struct {
	// Name is the short route name, e.g. "eleven".
	Name string

	// Service is the credential service tag used by the provider chain and
	// the spreadsheet labels, e.g. "elevenlabs".
	Service string

	// Origin is the upstream app origin, e.g. https://elevenlabs.io.
	Origin *url.URL

	// APIOrigin is the upstream API origin when it lives on its own host.
	// May be nil.
	APIOrigin *url.URL

	// Route is the proxy route mapping for this target.
	Route session.Route

	// CookiePrefixFormat renders the per-slot cookie namespace, e.g.
	// "s%s_" or "PP_s%s_".
	CookiePrefixFormat string

	// LoginPaths are the upstream paths recognized as the login page.
	LoginPaths []string

	// ProbePath is the proxied same-origin path the runtime shim probes to
	// detect an unauthenticated session. Empty disables the auth guard.
	ProbePath string

	// Hosts fold third-party API hostnames into same-origin sub-routes.
	Hosts []rewrite.HostRule

	// DropHosts are telemetry hosts whose tags are removed from markup.
	DropHosts []string

	// TokenCookie names an upstream cookie whose JSON payload carries an
	// access token; when set, a bearer header is synthesized from it.
	TokenCookie string

	// TokenField is the JSON field holding the token inside TokenCookie.
	TokenField string

	// VendorTokenHeader is an additional vendor-specific header that
	// receives the derived token, e.g. "xi-api-key".
	VendorTokenHeader string

	// Credentials resolves pooled account credentials per slot.
	Credentials credentials.Provider
}

// CookiePrefix renders the cookie namespace for one slot.
func (c *Config) CookiePrefix(slot session.Slot) string {
	return fmt.Sprintf(c.CookiePrefixFormat, slot.Key)
}

// SlotCookieName is the proxy-own cookie remembering the active slot for
// this service.
func (c *Config) SlotCookieName() string {
	return c.Name + constants.SlotCookieSuffix
}

func (c *Config) IsLoginPath(upstreamPath string) bool {
	for _, p := range c.LoginPaths {
		if upstreamPath == p {
			return true
		}
	}
	return false
}

func (c *Config) originString() string {
	return c.Origin.Scheme + "://" + c.Origin.Host
}

// sameSite reports whether host belongs to this target's upstream, meaning
// the redirect follower may follow a hop there itself instead of handing
// the redirect back to the browser.
func (c *Config) sameSite(host string) bool {
	if host == c.Origin.Host {
		return true
	}
	if c.APIOrigin != nil && host == c.APIOrigin.Host {
		return true
	}
	for _, hr := range c.Hosts {
		if host == hr.Host {
			return true
		}
	}
	return false
}

func (c *Config) rewriter() *rewrite.Rewriter {
	return &rewrite.Rewriter{
		Origin:    c.Origin,
		Route:     c.Route,
		Hosts:     c.Hosts,
		DropHosts: c.DropHosts,
	}
}
