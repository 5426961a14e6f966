package proxy

import (
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/antoine78910/ecomefficiency-sub002/internal/constants"
	"github.com/antoine78910/ecomefficiency-sub002/internal/session"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  constants.WSBufferSize,
	WriteBufferSize: constants.WSBufferSize,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// serveWebSocket upgrades the browser connection and bridges it to the
// matching upstream socket. The upstream handshake carries the slot's real
// cookies and a forged Origin, same as plain requests.
func (p *Proxy) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	res := session.Resolve(p.cfg.Route, p.cfg.SlotCookieName(), r)
	prefix := p.cfg.CookiePrefix(res.Slot)

	target := url.URL{
		Scheme:   "wss",
		Host:     p.cfg.Origin.Host,
		Path:     res.UpstreamPath,
		RawQuery: forwardedQuery(r),
	}
	for _, rule := range p.cfg.Hosts {
		if r.URL.Path == rule.Path || strings.HasPrefix(r.URL.Path, rule.Path+"/") {
			target.Host = rule.Host
			target.Path = strings.TrimPrefix(r.URL.Path, rule.Path)
			break
		}
	}
	if target.Path == "" {
		target.Path = "/"
	}

	header := http.Header{}
	header.Set("Origin", p.cfg.originString())
	header.Set("User-Agent", r.Header.Get("User-Agent"))
	if cookie := session.FilterCookieHeader(r.Header.Get("Cookie"), prefix); cookie != "" {
		header.Set("Cookie", cookie)
	}
	if proto := r.Header.Get("Sec-Websocket-Protocol"); proto != "" {
		header.Set("Sec-Websocket-Protocol", proto)
	}

	upstream, resp, err := websocket.DefaultDialer.DialContext(r.Context(), target.String(), header)
	if err != nil {
		status := http.StatusBadGateway
		if resp != nil {
			status = resp.StatusCode
		}
		log.Printf("❌ WebSocket dial to %s failed: %v", target.Host, err)
		http.Error(w, "Bad Gateway", status)
		return
	}
	defer upstream.Close()

	respHeader := http.Header{}
	if proto := upstream.Subprotocol(); proto != "" {
		respHeader.Set("Sec-Websocket-Protocol", proto)
	}
	client, err := wsUpgrader.Upgrade(w, r, respHeader)
	if err != nil {
		return
	}
	defer client.Close()

	errc := make(chan error, 2)
	go pumpFrames(client, upstream, errc)
	go pumpFrames(upstream, client, errc)
	<-errc
}

func pumpFrames(dst, src *websocket.Conn, errc chan<- error) {
	for {
		msgType, data, err := src.ReadMessage()
		if err != nil {
			errc <- err
			return
		}
		if err := dst.WriteMessage(msgType, data); err != nil {
			errc <- err
			return
		}
	}
}
