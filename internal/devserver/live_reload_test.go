package devserver

import (
	"net/http/httptest"
	"testing"
)

func TestIsLocalOriginAllowsNoOriginHeader(t *testing.T) {
	r := httptest.NewRequest("GET", "/__livereload", nil)
	if !isLocalOrigin(r) {
		t.Error("expected request with no Origin header to be allowed")
	}
}

func TestIsLocalOriginAllowsMatchingHost(t *testing.T) {
	r := httptest.NewRequest("GET", "/__livereload", nil)
	r.Host = "myapp.local"
	r.Header.Set("Origin", "http://myapp.local:8000")
	if !isLocalOrigin(r) {
		t.Error("expected origin matching request host to be allowed")
	}
}

func TestIsLocalOriginAllowsLocalhostVariants(t *testing.T) {
	r := httptest.NewRequest("GET", "/__livereload", nil)
	r.Host = "example.com"
	for _, origin := range []string{
		"http://localhost:5173",
		"http://127.0.0.1:5173",
		"http://app.localhost:5173",
	} {
		r.Header.Set("Origin", origin)
		if !isLocalOrigin(r) {
			t.Errorf("expected origin %q to be allowed", origin)
		}
	}
}

func TestIsLocalOriginRejectsForeignOrigin(t *testing.T) {
	r := httptest.NewRequest("GET", "/__livereload", nil)
	r.Host = "example.com"
	r.Header.Set("Origin", "https://evil.example.net")
	if isLocalOrigin(r) {
		t.Error("expected foreign origin to be rejected")
	}
}

func TestLiveReloadBroadcastToNoClientsIsNoop(t *testing.T) {
	lr := newLiveReload(nil)
	lr.broadcast(reloadEvent{Updated: []string{"/app.js"}})
	if len(lr.conns) != 0 {
		t.Errorf("expected no connections, got %d", len(lr.conns))
	}
}
