package proxy

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/antoine78910/ecomefficiency-sub002/internal/constants"
	"github.com/antoine78910/ecomefficiency-sub002/internal/credentials"
	"github.com/antoine78910/ecomefficiency-sub002/internal/rewrite"
	"github.com/antoine78910/ecomefficiency-sub002/internal/session"
	"github.com/antoine78910/ecomefficiency-sub002/internal/utils"
)

type staticProvider struct {
	email    string
	password string
}

func (s staticProvider) Name() string { return "static" }

func (s staticProvider) Resolve(ctx context.Context, slot string) (credentials.Credentials, error) {
	return credentials.Credentials{Slot: slot, Email: s.email, Password: s.password}, nil
}

func newTestProxy(t *testing.T, upstream *httptest.Server) *Proxy {
	t.Helper()
	origin, err := url.Parse(upstream.URL)
	if err != nil {
		t.Fatalf("parse upstream URL: %v", err)
	}
	cfg := &Config{
		Name:    "eleven",
		Service: "elevenlabs",
		Origin:  origin,
		Route: session.Route{
			BasePath:      "/proxy/eleven",
			AssetBase:     "/proxy/eleven-assets",
			AssetPrefixes: []string{"/_next/"},
		},
		CookiePrefixFormat: "s%s_",
		LoginPaths:         []string{"/app/sign-in"},
		ProbePath:          "/app/home",
		DropHosts:          []string{"googletagmanager.com"},
		TokenCookie:        "session",
		TokenField:         "access_token",
		VendorTokenHeader:  "xi-api-key",
	}
	return New(cfg, nil)
}

func TestServeAppRewritesAndNamespaces(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Set-Cookie", "session=abc; Path=/; Domain=.elevenlabs.io; HttpOnly")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		io.WriteString(w, `<html><head><title>x</title></head><body><a href="/app/home">home</a></body></html>`)
	}))
	defer upstream.Close()

	p := newTestProxy(t, upstream)
	req := httptest.NewRequest(http.MethodGet, "/proxy/eleven/?acc=2", nil)
	req.Header.Set("Accept", "text/html")
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `href="/proxy/eleven/app/home"`) {
		t.Errorf("root-relative link not rewritten:\n%s", body)
	}
	if !strings.Contains(body, "__eeproxy_loader") {
		t.Error("early boot shim missing from document head")
	}

	var sessionCookie, slotCookie string
	for _, sc := range rec.Header().Values("Set-Cookie") {
		if strings.HasPrefix(sc, "s2_session=") {
			sessionCookie = sc
		}
		if strings.HasPrefix(sc, "eleven_slot=") {
			slotCookie = sc
		}
	}
	if sessionCookie == "" {
		t.Fatalf("upstream cookie not namespaced for slot 2: %v", rec.Header().Values("Set-Cookie"))
	}
	if strings.Contains(sessionCookie, "Domain=") {
		t.Errorf("Domain attribute survived translation: %q", sessionCookie)
	}
	if !strings.Contains(sessionCookie, "Path=/proxy/eleven") {
		t.Errorf("cookie path not pinned to route base: %q", sessionCookie)
	}
	if !strings.HasPrefix(slotCookie, "eleven_slot=2") {
		t.Errorf("slot cookie = %q, want eleven_slot=2", slotCookie)
	}
}

func TestOutboundCookiesFilteredPerSlot(t *testing.T) {
	var seenCookie atomic.Value
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenCookie.Store(r.Header.Get("Cookie"))
	}))
	defer upstream.Close()

	p := newTestProxy(t, upstream)
	req := httptest.NewRequest(http.MethodGet, "/proxy/eleven/app/home?acc=2", nil)
	req.Header.Set("Cookie", "s2_theme=dark; s1_theme=light; eleven_slot=2; unrelated=x")
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)

	got, _ := seenCookie.Load().(string)
	if got != "theme=dark" {
		t.Errorf("upstream Cookie = %q, want only slot 2 cookies unprefixed", got)
	}
}

func TestEdgeHeadersNeverReachUpstream(t *testing.T) {
	var seen atomic.Value
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen.Store(r.Header.Clone())
	}))
	defer upstream.Close()

	p := newTestProxy(t, upstream)
	req := httptest.NewRequest(http.MethodGet, "/proxy/eleven/app/home", nil)
	for _, h := range utils.EdgeClientHeaders {
		req.Header.Set(h, "leak")
	}
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)

	got, _ := seen.Load().(http.Header)
	for _, h := range utils.EdgeClientHeaders {
		if got.Get(h) != "" {
			t.Errorf("edge header %s leaked upstream", h)
		}
	}
}

func TestDerivedBearerToken(t *testing.T) {
	var auth, vendor atomic.Value
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth.Store(r.Header.Get("Authorization"))
		vendor.Store(r.Header.Get("xi-api-key"))
	}))
	defer upstream.Close()

	p := newTestProxy(t, upstream)
	req := httptest.NewRequest(http.MethodGet, "/proxy/eleven/app/home", nil)
	req.Header.Set("Cookie", `s1_session=%7B%22access_token%22%3A%22tok123%22%7D`)
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)

	if got, _ := auth.Load().(string); got != "Bearer tok123" {
		t.Errorf("Authorization = %q, want Bearer tok123", got)
	}
	if got, _ := vendor.Load().(string); got != "tok123" {
		t.Errorf("xi-api-key = %q, want tok123", got)
	}
}

func TestRedirectChainFollowedServerSide(t *testing.T) {
	var step2Cookie atomic.Value
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Set-Cookie", "handshake=1; Path=/")
		http.Redirect(w, r, "/step2", http.StatusFound)
	})
	mux.HandleFunc("/step2", func(w http.ResponseWriter, r *http.Request) {
		step2Cookie.Store(r.Header.Get("Cookie"))
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, "<html><head></head><body>done</body></html>")
	})
	upstream := httptest.NewServer(mux)
	defer upstream.Close()

	p := newTestProxy(t, upstream)
	req := httptest.NewRequest(http.MethodGet, "/proxy/eleven/login", nil)
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 after server-side follow", rec.Code)
	}
	if got, _ := step2Cookie.Load().(string); !strings.Contains(got, "handshake=1") {
		t.Errorf("hop cookie not replayed on next hop, got %q", got)
	}
	var namespaced bool
	for _, sc := range rec.Header().Values("Set-Cookie") {
		if strings.HasPrefix(sc, "s1_handshake=") {
			namespaced = true
		}
	}
	if !namespaced {
		t.Errorf("intermediate hop Set-Cookie lost: %v", rec.Header().Values("Set-Cookie"))
	}
}

func TestRedirectLoopReturns599(t *testing.T) {
	var hits atomic.Int64
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Redirect(w, r, "/login", http.StatusFound)
	}))
	defer upstream.Close()

	p := newTestProxy(t, upstream)
	req := httptest.NewRequest(http.MethodGet, "/proxy/eleven/login", nil)
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)

	if rec.Code != constants.StatusRedirectLoop {
		t.Fatalf("status = %d, want %d", rec.Code, constants.StatusRedirectLoop)
	}
	// Initial request plus the full hop allowance, nothing beyond.
	if got := hits.Load(); got != int64(constants.MaxRedirectHops)+1 {
		t.Errorf("upstream requests = %d, want %d", got, constants.MaxRedirectHops+1)
	}
}

func TestOffSiteRedirectHandedToBrowser(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "https://accounts.google.com/o/oauth2/auth", http.StatusFound)
	}))
	defer upstream.Close()

	p := newTestProxy(t, upstream)
	req := httptest.NewRequest(http.MethodGet, "/proxy/eleven/login", nil)
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "https://accounts.google.com/o/oauth2/auth" {
		t.Errorf("off-site Location rewritten: %q", loc)
	}
}

func TestSlotMarkerRedirectsToCanonicalPath(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("marker redirect must not reach the upstream")
	}))
	defer upstream.Close()

	p := newTestProxy(t, upstream)
	req := httptest.NewRequest(http.MethodGet, "/proxy/eleven/s/3/app/home", nil)
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/proxy/eleven/app/home" {
		t.Errorf("Location = %q, want slot-free canonical path", loc)
	}
	var slotCookie string
	for _, sc := range rec.Header().Values("Set-Cookie") {
		if strings.HasPrefix(sc, "eleven_slot=3") {
			slotCookie = sc
		}
	}
	if slotCookie == "" {
		t.Errorf("slot cookie not pinned before redirect: %v", rec.Header().Values("Set-Cookie"))
	}
}

func TestAutoLoginInjectedOnLoginPath(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, "<html><head></head><body><form></form></body></html>")
	}))
	defer upstream.Close()

	p := newTestProxy(t, upstream)
	p.cfg.Credentials = staticProvider{email: "pool2@example.com", password: "hunter2"}

	req := httptest.NewRequest(http.MethodGet, "/proxy/eleven/app/sign-in?acc=2", nil)
	req.Header.Set("Accept", "text/html")
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, "pool2@example.com") {
		t.Error("auto-login payload missing from login document")
	}

	// Any other path stays clean.
	req = httptest.NewRequest(http.MethodGet, "/proxy/eleven/app/home?acc=2", nil)
	req.Header.Set("Accept", "text/html")
	rec = httptest.NewRecorder()
	p.ServeHTTP(rec, req)
	if strings.Contains(rec.Body.String(), "pool2@example.com") {
		t.Error("auto-login payload leaked onto a non-login document")
	}
}

func TestSPARootFallbackOnClientError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			w.Header().Set("Content-Type", "text/html")
			io.WriteString(w, "<html><head></head><body>root doc</body></html>")
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, "<html><body>not found</body></html>")
	})
	upstream := httptest.NewServer(mux)
	defer upstream.Close()

	p := newTestProxy(t, upstream)
	req := httptest.NewRequest(http.MethodGet, "/proxy/eleven/app/deep/link", nil)
	req.Header.Set("Accept", "text/html")
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 from root fallback", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "root doc") {
		t.Errorf("fallback served wrong document:\n%s", rec.Body.String())
	}
}

func TestAssetPassthroughSkipsCookies(t *testing.T) {
	var seenCookie, seenPath atomic.Value
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenCookie.Store(r.Header.Get("Cookie"))
		seenPath.Store(r.URL.Path)
		w.Header().Set("Content-Type", "application/javascript")
		w.Header().Set("Cache-Control", "public, max-age=31536000")
		io.WriteString(w, "console.log(1)")
	}))
	defer upstream.Close()

	p := newTestProxy(t, upstream)
	req := httptest.NewRequest(http.MethodGet, "/proxy/eleven-assets/_next/static/chunks/main.js", nil)
	req.Header.Set("Cookie", "s1_session=abc")
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got, _ := seenCookie.Load().(string); got != "" {
		t.Errorf("cookies forwarded to asset host: %q", got)
	}
	if got, _ := seenPath.Load().(string); got != "/_next/static/chunks/main.js" {
		t.Errorf("upstream asset path = %q", got)
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "public, max-age=31536000" {
		t.Errorf("asset caching header lost: %q", cc)
	}
}

func TestAPISubRouteTargetsRuleHost(t *testing.T) {
	var seenPath atomic.Value
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenPath.Store(r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"ok":true}`)
	}))
	defer api.Close()
	apiURL, _ := url.Parse(api.URL)

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("API sub-route hit the app origin")
	}))
	defer upstream.Close()

	p := newTestProxy(t, upstream)
	p.cfg.Hosts = []rewrite.HostRule{{Host: apiURL.Host, Path: "/proxy/eleven/api"}}
	p.rewriter = p.cfg.rewriter()
	// The test API server only speaks plain HTTP.
	p.cfg.APIOrigin = apiURL
	p.client.Transport = rewriteSchemeTransport{host: apiURL.Host}

	req := httptest.NewRequest(http.MethodGet, "/proxy/eleven/api/v1/user", nil)
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got, _ := seenPath.Load().(string); got != "/v1/user" {
		t.Errorf("API upstream path = %q, want /v1/user", got)
	}
}

// rewriteSchemeTransport downgrades requests for one host to plain HTTP so
// an httptest server can stand in for an HTTPS API origin.
type rewriteSchemeTransport struct {
	host string
}

func (t rewriteSchemeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Host == t.host {
		req.URL.Scheme = "http"
	}
	return http.DefaultTransport.RoundTrip(req)
}
