package devserver

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

func TestMimeForOverridesThenBuiltinThenStdlib(t *testing.T) {
	if got := mimeFor("/main.js", nil); got != "application/javascript" {
		t.Errorf("mimeFor(.js) = %q, want application/javascript", got)
	}
	overrides := map[string]string{".js": "text/plain"}
	if got := mimeFor("/main.js", overrides); got != "text/plain" {
		t.Errorf("mimeFor with override = %q, want text/plain", got)
	}
	if got := mimeFor("/unknown.zzz", nil); got != "application/octet-stream" {
		t.Errorf("mimeFor(unknown) = %q, want application/octet-stream", got)
	}
}

func TestNewProxyTableSortsLongestPrefixFirst(t *testing.T) {
	pt := newProxyTable([]string{"/api=http://localhost:9000", "/api/v2=http://localhost:9001"})
	if len(pt.prefixes) != 2 {
		t.Fatalf("got %d prefixes, want 2", len(pt.prefixes))
	}
	if pt.prefixes[0] != "/api/v2" {
		t.Errorf("prefixes[0] = %q, want /api/v2 (longest first)", pt.prefixes[0])
	}
	if _, ok := pt.match("/api/v2/widgets"); !ok {
		t.Error("expected /api/v2/widgets to match a proxy prefix")
	}
	if _, ok := pt.match("/unrelated"); ok {
		t.Error("expected /unrelated to match no proxy prefix")
	}
}

func TestNewProxyTableSkipsMalformedSpecs(t *testing.T) {
	pt := newProxyTable([]string{"not-a-valid-spec", "/ok=http://localhost:9000"})
	if len(pt.prefixes) != 1 || pt.prefixes[0] != "/ok" {
		t.Fatalf("prefixes = %v, want only [/ok]", pt.prefixes)
	}
}

func TestInjectLiveReloadScriptIntoHead(t *testing.T) {
	html := []byte("<html><head><title>x</title></head><body></body></html>")
	out := injectLiveReloadScript(html)
	if !strings.Contains(string(out), "__devserver_client.js") {
		t.Fatalf("injected output missing client script reference: %s", out)
	}
}

func TestInjectLiveReloadScriptWithoutHead(t *testing.T) {
	html := []byte("<body>no head here</body>")
	out := injectLiveReloadScript(html)
	if !strings.HasPrefix(string(out), "<script") {
		t.Fatalf("expected script prepended, got %s", out)
	}
}

func TestServeStaticServesFileFromOutDir(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/dist/app.js", []byte("console.log(1)"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	s := New(Options{OutDir: "/dist"}, fs, zap.NewNop(), nil)

	req := httptest.NewRequest(http.MethodGet, "/app.js", nil)
	rec := httptest.NewRecorder()
	s.serveStatic(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/javascript" {
		t.Errorf("Content-Type = %q, want application/javascript", got)
	}
	if rec.Body.String() != "console.log(1)" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestServeStaticInjectsLiveReloadIntoHTML(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/dist/index.html", []byte("<html><head></head><body></body></html>"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	s := New(Options{OutDir: "/dist"}, fs, zap.NewNop(), nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	s.serveStatic(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "__devserver_client.js") {
		t.Errorf("expected live reload script injected, got %s", rec.Body.String())
	}
}

func TestServeStatic404ForMissingFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	s := New(Options{OutDir: "/dist"}, fs, zap.NewNop(), nil)

	req := httptest.NewRequest(http.MethodGet, "/missing.js", nil)
	rec := httptest.NewRecorder()
	s.serveStatic(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestAddrDefaults(t *testing.T) {
	if got := (Options{}).Addr(); got != "127.0.0.1:8000" {
		t.Errorf("Addr() = %q, want 127.0.0.1:8000", got)
	}
	if got := (Options{Host: "0.0.0.0", Port: 3000}).Addr(); got != "0.0.0.0:3000" {
		t.Errorf("Addr() = %q, want 0.0.0.0:3000", got)
	}
}
