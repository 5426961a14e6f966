package proxy

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/antoine78910/ecomefficiency-sub002/internal/constants"
	"github.com/antoine78910/ecomefficiency-sub002/internal/inject"
	"github.com/antoine78910/ecomefficiency-sub002/internal/rewrite"
	"github.com/antoine78910/ecomefficiency-sub002/internal/security"
	"github.com/antoine78910/ecomefficiency-sub002/internal/session"
	"github.com/antoine78910/ecomefficiency-sub002/internal/utils"
)

// Proxy serves one upstream target. It is stateless across requests: the
// only state threaded through a request is its own cookie jar inside the
// redirect follower, so one goroutine per request needs no locking.
type Proxy struct {
	cfg      *Config
	client   *http.Client
	rewriter *rewrite.Rewriter
	audit    *security.AuditLogger
}

func New(cfg *Config, audit *security.AuditLogger) *Proxy {
	return &Proxy{
		cfg: cfg,
		client: &http.Client{
			Timeout: constants.UpstreamTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				// Redirects are followed manually; see redirect.go.
				return http.ErrUseLastResponse
			},
		},
		rewriter: cfg.rewriter(),
		audit:    audit,
	}
}

func (p *Proxy) Config() *Config { return p.cfg }

func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if isWebSocketRequest(r) {
		p.serveWebSocket(w, r)
		return
	}

	if strings.HasPrefix(r.URL.Path, p.cfg.Route.AssetBase+"/") {
		p.serveAsset(w, r)
		return
	}

	// Same-origin API sub-routes come before app route resolution: their
	// prefixes may nest under the app base path.
	for _, rule := range p.cfg.Hosts {
		if r.URL.Path == rule.Path || strings.HasPrefix(r.URL.Path, rule.Path+"/") {
			p.serveAPI(w, r, rule.Host, strings.TrimPrefix(r.URL.Path, rule.Path))
			return
		}
	}

	res := session.Resolve(p.cfg.Route, p.cfg.SlotCookieName(), r)
	if res.RedirectTo != "" {
		p.setSlotCookie(w, r, res.Slot)
		http.Redirect(w, r, res.RedirectTo, http.StatusFound)
		return
	}

	p.serveApp(w, r, res)
}

func (p *Proxy) serveApp(w http.ResponseWriter, r *http.Request, res session.Resolution) {
	prefix := p.cfg.CookiePrefix(res.Slot)

	target := *p.cfg.Origin
	target.Path = res.UpstreamPath
	target.RawQuery = forwardedQuery(r)

	req, err := p.buildUpstreamRequest(r, &target, prefix)
	if err != nil {
		http.Error(w, "Bad Gateway", http.StatusBadGateway)
		return
	}

	resp, setCookies, err := p.follow(req)
	if errors.Is(err, ErrTooManyRedirects) {
		if p.audit != nil {
			p.audit.LogRedirectLoop(p.cfg.Name, target.String())
		}
		log.Printf("⛔ Redirect loop on %s %s", p.cfg.Name, res.UpstreamPath)
		w.WriteHeader(constants.StatusRedirectLoop)
		return
	}
	if err != nil {
		log.Printf("❌ Upstream %s unreachable: %v", p.cfg.Name, err)
		http.Error(w, "Bad Gateway", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	// Single-page apps commonly 404 unknown deep links server-side; serve
	// the root document instead so the client-side router can take over.
	if p.shouldFallbackToRoot(r, res, resp) {
		resp.Body.Close()
		rootTarget := *p.cfg.Origin
		rootTarget.Path = "/"
		rootReq, rootErr := p.buildUpstreamRequest(r, &rootTarget, prefix)
		if rootErr == nil {
			if rootResp, rootCookies, rootErr := p.follow(rootReq); rootErr == nil {
				resp = rootResp
				setCookies = append(setCookies, rootCookies...)
				defer resp.Body.Close()
			}
		}
	}

	isHTML := strings.Contains(resp.Header.Get("Content-Type"), "text/html")
	secure := utils.IsServedOverHTTPS(r)

	rewrite.CopyResponseHeaders(w.Header(), resp.Header, isHTML)
	for _, sc := range setCookies {
		if v := session.NamespaceSetCookie(sc, prefix, p.cfg.Route.BasePath, secure); v != "" {
			w.Header().Add("Set-Cookie", v)
		}
	}
	p.setSlotCookie(w, r, res.Slot)

	if loc := resp.Header.Get("Location"); loc != "" && resp.StatusCode >= 300 && resp.StatusCode < 400 {
		w.Header().Set("Location", p.rewriter.RewriteURL(loc))
	}

	w.WriteHeader(resp.StatusCode)

	if !isHTML {
		io.Copy(w, resp.Body)
		return
	}

	inj := p.injection(r.Context(), res, resp.StatusCode)
	if err := p.rewriter.RewriteHTML(resp.Body, w, inj); err != nil {
		log.Printf("⚠️  HTML rewrite for %s interrupted: %v", p.cfg.Name, err)
	}
}

// serveAPI proxies one of the folded third-party API hostnames. Cookies
// still translate through the slot namespace, but API responses are never
// rewritten or injected.
func (p *Proxy) serveAPI(w http.ResponseWriter, r *http.Request, host, upstreamPath string) {
	res := session.Resolve(p.cfg.Route, p.cfg.SlotCookieName(), r)
	prefix := p.cfg.CookiePrefix(res.Slot)

	if upstreamPath == "" {
		upstreamPath = "/"
	}
	target := url.URL{Scheme: "https", Host: host, Path: upstreamPath, RawQuery: forwardedQuery(r)}

	req, err := p.buildUpstreamRequest(r, &target, prefix)
	if err != nil {
		http.Error(w, "Bad Gateway", http.StatusBadGateway)
		return
	}

	resp, setCookies, err := p.follow(req)
	if errors.Is(err, ErrTooManyRedirects) {
		w.WriteHeader(constants.StatusRedirectLoop)
		return
	}
	if err != nil {
		http.Error(w, "Bad Gateway", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	secure := utils.IsServedOverHTTPS(r)
	rewrite.CopyResponseHeaders(w.Header(), resp.Header, false)
	for _, sc := range setCookies {
		if v := session.NamespaceSetCookie(sc, prefix, p.cfg.Route.BasePath, secure); v != "" {
			w.Header().Add("Set-Cookie", v)
		}
	}
	if loc := resp.Header.Get("Location"); loc != "" && resp.StatusCode >= 300 && resp.StatusCode < 400 {
		w.Header().Set("Location", p.rewriter.RewriteURL(loc))
	}

	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body)
}

// serveAsset streams bundler chunks straight through. Assets are
// origin-agnostic: no cookies go upstream, nothing is rewritten, and the
// upstream's own encoding and caching headers survive so every slot shares
// one browser cache entry.
func (p *Proxy) serveAsset(w http.ResponseWriter, r *http.Request) {
	upstreamPath := strings.TrimPrefix(r.URL.Path, p.cfg.Route.AssetBase)

	target := *p.cfg.Origin
	target.Path = upstreamPath
	target.RawQuery = r.URL.RawQuery

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target.String(), nil)
	if err != nil {
		http.Error(w, "Bad Gateway", http.StatusBadGateway)
		return
	}
	for _, h := range []string{"User-Agent", "Accept", "Accept-Language", "Accept-Encoding", "If-None-Match", "If-Modified-Since", "Range"} {
		if v := r.Header.Get(h); v != "" {
			req.Header.Set(h, v)
		}
	}
	req.Header.Set("Referer", p.cfg.originString()+"/")

	resp, err := p.client.Do(req)
	if err != nil {
		http.Error(w, "Bad Gateway", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	rewrite.CopyResponseHeaders(w.Header(), resp.Header, false)
	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body)
}

func (p *Proxy) injection(ctx context.Context, res session.Resolution, status int) rewrite.Injection {
	shim := inject.ShimConfig{
		Service:      p.cfg.Name,
		Slot:         res.Slot.Key,
		CookiePrefix: p.cfg.CookiePrefix(res.Slot),
		BasePath:     p.cfg.Route.BasePath,
		AssetBase:    p.cfg.Route.AssetBase,
		OriginHost:   p.cfg.Origin.Host,
		Hosts:        p.cfg.Hosts,
		LoginPath:    p.loginPath(),
		ProbePath:    p.cfg.ProbePath,
	}

	inj := rewrite.Injection{
		EarlyBoot: inject.EarlyBoot(shim),
		HeadEnd:   inject.RuntimePatch(shim),
	}

	if status < 400 && p.cfg.Credentials != nil && p.cfg.IsLoginPath(res.UpstreamPath) {
		cctx, cancel := context.WithTimeout(ctx, constants.CredentialTimeout)
		defer cancel()
		creds, err := p.cfg.Credentials.Resolve(cctx, res.Slot.Key)
		if err == nil && creds.Complete() {
			inj.HeadEnd += inject.AutoLogin(shim, creds)
			if p.audit != nil && creds.Source != "" {
				p.audit.LogCredentialSource(p.cfg.Service, res.Slot.Key, creds.Source)
			}
		}
		// Unresolved credentials suppress auto-login and nothing else; the
		// user lands on the real form.
	}
	return inj
}

func (p *Proxy) loginPath() string {
	if len(p.cfg.LoginPaths) > 0 {
		return p.cfg.LoginPaths[0]
	}
	return ""
}

func (p *Proxy) shouldFallbackToRoot(r *http.Request, res session.Resolution, resp *http.Response) bool {
	if r.Method != http.MethodGet || res.UpstreamPath == "/" {
		return false
	}
	if resp.StatusCode < 400 || resp.StatusCode >= 500 {
		return false
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

func (p *Proxy) setSlotCookie(w http.ResponseWriter, r *http.Request, slot session.Slot) {
	secure := utils.IsServedOverHTTPS(r)
	sameSite := http.SameSiteLaxMode
	if secure {
		sameSite = http.SameSiteNoneMode
	}
	http.SetCookie(w, &http.Cookie{
		Name:     p.cfg.SlotCookieName(),
		Value:    slot.Key,
		Path:     p.cfg.Route.BasePath,
		Secure:   secure,
		SameSite: sameSite,
		HttpOnly: false, // the runtime shim reads it to detect slot changes
	})
}

// forwardedQuery strips the proxy's own slot-selection parameters before
// the query goes upstream.
func forwardedQuery(r *http.Request) string {
	q := r.URL.Query()
	q.Del(constants.SlotQueryParam)
	q.Del(constants.SessionQueryParam)
	return q.Encode()
}

func isWebSocketRequest(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket") &&
		strings.Contains(strings.ToLower(r.Header.Get("Connection")), "upgrade")
}
