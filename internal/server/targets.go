package server

import (
	"net/http"
	"net/url"

	"github.com/antoine78910/ecomefficiency-sub002/internal/constants"
	"github.com/antoine78910/ecomefficiency-sub002/internal/credentials"
	"github.com/antoine78910/ecomefficiency-sub002/internal/proxy"
	"github.com/antoine78910/ecomefficiency-sub002/internal/rewrite"
	"github.com/antoine78910/ecomefficiency-sub002/internal/session"
	"github.com/antoine78910/ecomefficiency-sub002/internal/utils"
)

var telemetryHosts = []string{
	"googletagmanager.com",
	"google-analytics.com",
	"sentry.io",
	"posthog.com",
	"intercom.io",
	"datadoghq.com",
}

// buildTargets assembles the proxied target table. Adding a target is a
// matter of appending a Config here; everything downstream is generic.
func buildTargets() []*proxy.Config {
	return []*proxy.Config{
		elevenConfig(),
		pipiadsConfig(),
	}
}

func elevenConfig() *proxy.Config {
	origin, _ := url.Parse("https://elevenlabs.io")
	apiOrigin, _ := url.Parse("https://api.elevenlabs.io")

	return &proxy.Config{
		Name:      "eleven",
		Service:   "elevenlabs",
		Origin:    origin,
		APIOrigin: apiOrigin,
		Route: session.Route{
			BasePath:      "/proxy/eleven",
			AssetBase:     "/proxy/eleven-assets",
			AssetPrefixes: []string{"/_next/"},
		},
		CookiePrefixFormat: "s%s_",
		LoginPaths:         []string{"/app/sign-in", "/sign-in"},
		ProbePath:          "/app/home",
		Hosts: []rewrite.HostRule{
			{Host: "api.elevenlabs.io", Path: "/proxy/eleven/api"},
			{Host: "api.us.elevenlabs.io", Path: "/proxy/eleven/api-us"},
		},
		DropHosts:         telemetryHosts,
		TokenCookie:       "session",
		TokenField:        "access_token",
		VendorTokenHeader: "xi-api-key",
		Credentials:       credentialChain("elevenlabs"),
	}
}

func pipiadsConfig() *proxy.Config {
	origin, _ := url.Parse("https://www.pipiads.com")
	apiOrigin, _ := url.Parse("https://api.pipiads.com")

	return &proxy.Config{
		Name:      "pipiads",
		Service:   "pipiads",
		Origin:    origin,
		APIOrigin: apiOrigin,
		Route: session.Route{
			BasePath:      "/proxy/pipiads",
			AssetBase:     "/proxy/pipiads-assets",
			AssetPrefixes: []string{"/_next/", "/_nuxt/"},
		},
		CookiePrefixFormat: "PP_s%s_",
		LoginPaths:         []string{"/login"},
		ProbePath:          "/dashboard",
		Hosts: []rewrite.HostRule{
			{Host: "api.pipiads.com", Path: "/proxy/pipiads/api"},
		},
		DropHosts:   telemetryHosts,
		Credentials: credentialChain("pipiads"),
	}
}

// credentialChain wires the resolution order: environment pairs first, the
// published spreadsheet second, its CSV export last.
func credentialChain(service string) credentials.Provider {
	client := &http.Client{Timeout: constants.CredentialTimeout}
	return credentials.NewChain(service,
		&credentials.EnvProvider{Service: service},
		&credentials.SheetProvider{
			URL:     utils.GetEnv(constants.EnvSheetURL, ""),
			Service: service,
			Client:  client,
		},
		&credentials.CSVProvider{
			URL:     utils.GetEnv(constants.EnvSheetCSVURL, ""),
			Service: service,
			Client:  client,
		},
	)
}
