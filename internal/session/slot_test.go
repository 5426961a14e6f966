package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestValidKey(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"1", true},
		{"42", true},
		{"99", true},
		{"0", false},
		{"100", false},
		{"abc123XYZ", true},
		{"", false},
		{"with space", false},
		{"semi;colon", false},
		{"dot.dot", false},
		{"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", false}, // 33 chars
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := ValidKey(tt.key); got != tt.want {
				t.Errorf("ValidKey(%q) = %v, want %v", tt.key, got, tt.want)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	rt := Route{
		BasePath:      "/proxy/eleven",
		AssetBase:     "/proxy/eleven-assets",
		AssetPrefixes: []string{"/_next/"},
	}

	tests := []struct {
		name         string
		target       string
		wantSlot     string
		wantPath     string
		wantRedirect string
	}{
		{
			name:         "path marker stripped and redirected",
			target:       "/proxy/eleven/s/k9f2/app/home",
			wantSlot:     "k9f2",
			wantPath:     "/app/home",
			wantRedirect: "/proxy/eleven/app/home",
		},
		{
			name:         "path marker with query keeps query",
			target:       "/proxy/eleven/s/2/app/home?tab=x",
			wantSlot:     "2",
			wantPath:     "/app/home",
			wantRedirect: "/proxy/eleven/app/home?tab=x",
		},
		{
			name:         "bare marker redirects to root",
			target:       "/proxy/eleven/s/7",
			wantSlot:     "7",
			wantPath:     "/",
			wantRedirect: "/proxy/eleven/",
		},
		{
			name:     "acc query parameter",
			target:   "/proxy/eleven/app/home?acc=2",
			wantSlot: "2",
			wantPath: "/app/home",
		},
		{
			name:     "session query parameter",
			target:   "/proxy/eleven/app/home?session=k9f2",
			wantSlot: "k9f2",
			wantPath: "/app/home",
		},
		{
			name:     "malformed acc falls back to default",
			target:   "/proxy/eleven/app/home?acc=%21%21",
			wantSlot: "1",
			wantPath: "/app/home",
		},
		{
			name:     "malformed path token treated as a path segment",
			target:   "/proxy/eleven/s/not%20valid/x",
			wantSlot: "1",
			wantPath: "/s/not valid/x",
		},
		{
			name:     "no marker defaults to slot 1",
			target:   "/proxy/eleven/app/home",
			wantSlot: "1",
			wantPath: "/app/home",
		},
		{
			name:     "base path alone",
			target:   "/proxy/eleven",
			wantSlot: "1",
			wantPath: "/",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", tt.target, nil)
			res := Resolve(rt, "", r)
			if res.Slot.Key != tt.wantSlot {
				t.Errorf("slot = %q, want %q", res.Slot.Key, tt.wantSlot)
			}
			if res.UpstreamPath != tt.wantPath {
				t.Errorf("upstream path = %q, want %q", res.UpstreamPath, tt.wantPath)
			}
			if res.RedirectTo != tt.wantRedirect {
				t.Errorf("redirect = %q, want %q", res.RedirectTo, tt.wantRedirect)
			}
		})
	}
}

func TestResolveSlotCookie(t *testing.T) {
	rt := Route{BasePath: "/proxy/pipiads"}

	r := httptest.NewRequest("GET", "/proxy/pipiads/dashboard", nil)
	r.AddCookie(&http.Cookie{Name: "pipiads_slot", Value: "3"})
	if res := Resolve(rt, "pipiads_slot", r); res.Slot.Key != "3" {
		t.Errorf("slot from cookie = %q, want %q", res.Slot.Key, "3")
	}

	// Query parameter wins over the slot cookie.
	r2 := httptest.NewRequest("GET", "/proxy/pipiads/dashboard?acc=5", nil)
	r2.AddCookie(&http.Cookie{Name: "pipiads_slot", Value: "3"})
	if res := Resolve(rt, "pipiads_slot", r2); res.Slot.Key != "5" {
		t.Errorf("slot with query override = %q, want %q", res.Slot.Key, "5")
	}

	// Malformed cookie value falls back to the default slot.
	r3 := httptest.NewRequest("GET", "/proxy/pipiads/dashboard", nil)
	r3.AddCookie(&http.Cookie{Name: "pipiads_slot", Value: "bad value"})
	if res := Resolve(rt, "pipiads_slot", r3); res.Slot.Key != "1" {
		t.Errorf("slot with malformed cookie = %q, want %q", res.Slot.Key, "1")
	}
}
