package proxy

import (
	"errors"
	"net/http"
	"strings"

	"github.com/antoine78910/ecomefficiency-sub002/internal/constants"
)

// ErrTooManyRedirects means the upstream bounced the follower past the hop
// bound. The handler turns it into the synthetic 599 terminal status.
var ErrTooManyRedirects = errors.New("redirect hop bound exceeded")

// cookieJar is the per-request jar the follower threads through a redirect
// chain. It lives for one chain and is discarded with the request.
type cookieJar struct {
	order  []string
	values map[string]string
}

func newCookieJar(cookieHeader string) *cookieJar {
	jar := &cookieJar{values: make(map[string]string)}
	for _, part := range strings.Split(cookieHeader, ";") {
		part = strings.TrimSpace(part)
		if eq := strings.IndexByte(part, '='); eq > 0 {
			jar.set(part[:eq], part[eq+1:])
		}
	}
	return jar
}

func (j *cookieJar) set(name, value string) {
	if _, ok := j.values[name]; !ok {
		j.order = append(j.order, name)
	}
	j.values[name] = value
}

func (j *cookieJar) update(resp *http.Response) {
	for _, c := range resp.Cookies() {
		if c.Name != "" {
			j.set(c.Name, c.Value)
		}
	}
}

func (j *cookieJar) header() string {
	var parts []string
	for _, name := range j.order {
		parts = append(parts, name+"="+j.values[name])
	}
	return strings.Join(parts, "; ")
}

// follow performs the upstream round trip, following same-site redirects
// itself instead of delegating to the HTTP client. Every hop re-attaches
// the jar, absorbs the hop's Set-Cookie headers, and re-forges Referer for
// the new location. All Set-Cookie headers seen along the chain are
// returned so the namespace translator rewrites each one exactly once.
//
// Off-site redirects terminate the chain and go back to the browser with a
// rewritten Location. A chain still redirecting after the hop bound
// returns ErrTooManyRedirects.
func (p *Proxy) follow(req *http.Request) (*http.Response, []string, error) {
	jar := newCookieJar(req.Header.Get("Cookie"))
	var setCookies []string

	current := req
	for hop := 0; hop <= constants.MaxRedirectHops; hop++ {
		resp, err := p.client.Do(current)
		if err != nil {
			return nil, nil, err
		}

		setCookies = append(setCookies, resp.Header["Set-Cookie"]...)
		jar.update(resp)

		location := resp.Header.Get("Location")
		if resp.StatusCode < 300 || resp.StatusCode >= 400 || location == "" {
			return resp, setCookies, nil
		}

		next, err := current.URL.Parse(location)
		if err != nil {
			return resp, setCookies, nil
		}
		if !p.cfg.sameSite(next.Host) {
			// OAuth consent screens and the like: the browser has to visit
			// these itself.
			return resp, setCookies, nil
		}
		if hop == constants.MaxRedirectHops {
			resp.Body.Close()
			return nil, setCookies, ErrTooManyRedirects
		}
		resp.Body.Close()

		// Redirect hops are replayed as GET: the chains worth following
		// server-side are login/session handshakes, and replaying request
		// bodies across 307 hops is not worth the complexity.
		hopReq, err := http.NewRequestWithContext(req.Context(), http.MethodGet, next.String(), nil)
		if err != nil {
			return nil, setCookies, err
		}
		hopReq.Header = req.Header.Clone()
		hopReq.Header.Del("Content-Type")
		if cookie := jar.header(); cookie != "" {
			hopReq.Header.Set("Cookie", cookie)
		} else {
			hopReq.Header.Del("Cookie")
		}
		hopReq.Header.Set("Referer", next.Scheme+"://"+next.Host+"/")
		current = hopReq
	}

	return nil, setCookies, ErrTooManyRedirects
}
