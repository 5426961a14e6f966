package session

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/antoine78910/ecomefficiency-sub002/internal/constants"
)

// Slot identifies which pooled upstream account and cookie namespace a
// browser is using. The key is either a small positive integer rendered in
// decimal or an opaque alphanumeric token. Slots are derived fresh on every
// request and never persisted server-side.
type Slot struct {
	Key string
}

func DefaultSlot() Slot {
	return Slot{Key: constants.DefaultSlot}
}

func (s Slot) IsDefault() bool {
	return s.Key == constants.DefaultSlot
}

// ValidKey reports whether key is a well-formed slot token. Malformed tokens
// are treated as absent by the resolver, never as an error.
func ValidKey(key string) bool {
	if key == "" || len(key) > constants.MaxSlotKeyLength {
		return false
	}
	for i := 0; i < len(key); i++ {
		c := key[i]
		if c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' {
			continue
		}
		return false
	}
	if n, err := strconv.Atoi(key); err == nil {
		return n >= 1 && n <= constants.MaxSlotIndex
	}
	return true
}

// Resolution is the outcome of deriving a session slot from an inbound
// request. When RedirectTo is non-empty the handler must 302 there before
// doing anything else: the slot marker is stripped from the visible path so
// it never leaks into bookmarks or shared links.
type Resolution struct {
	Slot         Slot
	UpstreamPath string
	RedirectTo   string
}

// Resolve derives the session slot and upstream path for an inbound request.
// Precedence: slot marker in the path, then the acc/session query parameters,
// then the proxy-own slot cookie, then the default slot.
func Resolve(rt Route, slotCookie string, r *http.Request) Resolution {
	upstreamPath, ok := rt.UpstreamPath(r.URL.Path)
	if !ok {
		upstreamPath = "/"
	}

	// Path-encoded marker: /s/<token>/rest
	trimmed := strings.TrimPrefix(upstreamPath, "/")
	if parts := strings.SplitN(trimmed, "/", 3); len(parts) >= 2 && parts[0] == constants.SlotPathMarker && ValidKey(parts[1]) {
		rest := "/"
		if len(parts) == 3 {
			rest = "/" + parts[2]
		}
		redirect := rt.ProxyPath(rest)
		if r.URL.RawQuery != "" {
			redirect += "?" + r.URL.RawQuery
		}
		return Resolution{
			Slot:         Slot{Key: parts[1]},
			UpstreamPath: rest,
			RedirectTo:   redirect,
		}
	}

	q := r.URL.Query()
	if key := q.Get(constants.SlotQueryParam); ValidKey(key) {
		return Resolution{Slot: Slot{Key: key}, UpstreamPath: upstreamPath}
	}
	if key := q.Get(constants.SessionQueryParam); ValidKey(key) {
		return Resolution{Slot: Slot{Key: key}, UpstreamPath: upstreamPath}
	}

	if slotCookie != "" {
		if c, err := r.Cookie(slotCookie); err == nil && ValidKey(c.Value) {
			return Resolution{Slot: Slot{Key: c.Value}, UpstreamPath: upstreamPath}
		}
	}

	return Resolution{Slot: DefaultSlot(), UpstreamPath: upstreamPath}
}
