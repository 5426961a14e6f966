package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/antoine78910/ecomefficiency-sub002/internal/constants"
	"github.com/antoine78910/ecomefficiency-sub002/internal/security"
	"github.com/antoine78910/ecomefficiency-sub002/internal/session"
)

func TestHandleHealth(t *testing.T) {
	s, err := NewServer()
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	defer s.Cleanup()

	req := httptest.NewRequest(http.MethodGet, constants.EndpointHealth, nil)
	rec := httptest.NewRecorder()
	s.HandleHealth(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if payload["status"] != "ok" {
		t.Errorf("status field = %v", payload["status"])
	}
	if payload["targets"].(float64) < 2 {
		t.Errorf("targets = %v, want at least the two built-ins", payload["targets"])
	}
}

func TestHandleNewSession(t *testing.T) {
	s, err := NewServer()
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	defer s.Cleanup()

	req := httptest.NewRequest(http.MethodGet, constants.EndpointNewSession+"?service=eleven", nil)
	rec := httptest.NewRecorder()
	s.HandleNewSession(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var payload map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if !session.ValidKey(payload["slot"]) {
		t.Errorf("minted slot %q is not a valid slot key", payload["slot"])
	}
	if !strings.HasPrefix(payload["url"], "/proxy/eleven/?"+constants.SessionQueryParam+"=") {
		t.Errorf("session URL = %q", payload["url"])
	}
	if !strings.HasPrefix(payload["link"], "http://") || !strings.Contains(payload["link"], payload["url"]) {
		t.Errorf("session link = %q", payload["link"])
	}

	// Two mints never collide.
	rec2 := httptest.NewRecorder()
	s.HandleNewSession(rec2, req)
	var payload2 map[string]string
	json.Unmarshal(rec2.Body.Bytes(), &payload2)
	if payload2["slot"] == payload["slot"] {
		t.Error("minted slot keys collided")
	}
}

func TestHandleNewSessionUnknownService(t *testing.T) {
	s, err := NewServer()
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	defer s.Cleanup()

	req := httptest.NewRequest(http.MethodGet, constants.EndpointNewSession+"?service=nope", nil)
	rec := httptest.NewRecorder()
	s.HandleNewSession(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestLimitMiddlewareBlocks(t *testing.T) {
	s := &Server{
		Limiter: security.NewRequestLimiter(security.NewMemoryCounterStore(), 2, constants.RateLimitWindow),
	}
	defer s.Limiter.Close()

	var served int
	h := s.limit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		served++
	}))

	for i := 0; i < 4; i++ {
		req := httptest.NewRequest(http.MethodGet, "/proxy/eleven/", nil)
		req.RemoteAddr = "10.1.2.3:5555"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if i < 2 && rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i, rec.Code)
		}
		if i >= 2 && rec.Code != http.StatusTooManyRequests {
			t.Fatalf("request %d: status = %d, want 429", i, rec.Code)
		}
	}
	if served != 2 {
		t.Errorf("served = %d, want 2", served)
	}
}
