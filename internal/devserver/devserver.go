// Package devserver implements the local HTTP server behind the
// `devServer` option: an HTTP server, WebSocket live-reload, and MIME
// table (no directory listing). It serves the output tree the Driver last
// wrote, pushes live-reload notifications over a WebSocket channel after
// every incremental rebuild, optionally reverse-proxies API prefixes, and
// exposes build-progress gauges on /metrics.
package devserver

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/pleasebuild/jspack/internal/driver"
)

// Options configures one Server, built from a devServer config value of
// boolean, port, host-string, or full server-options shape.
type Options struct {
	Host string
	Port int

	// OutDir is the directory served as static files; it must match the
	// Driver's configured OutDir.
	OutDir string

	// Proxies is a list of "prefix=target" strings, same shape
	// please_js/dev and please_js/esmdev already accept on the CLI.
	Proxies []string

	// MimeTypes overrides/extends the MIME table (// `mimeTypes`), applied on top of this package's built-in table (mime.go).
	MimeTypes map[string]string

	// EsmDev switches on the alternate unbundled-ESM serve mode folded in
	// from please_js/esmdev.
	EsmDev bool

	// Metrics enables the /metrics Prometheus endpoint.
	Metrics bool
}

// Addr is the host:port the server listens on.
func (o Options) Addr() string {
	host := o.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := o.Port
	if port == 0 {
		port = 8000
	}
	return fmt.Sprintf("%s:%d", host, port)
}

// Server is the dev HTTP server. It reads the output tree from fs (the
// same afero.Fs the Driver wrote to — an OsFs in normal operation, a
// MemMapFs when the build ran with noWrite), and rebroadcasts live-reload
// events to connected WebSocket clients after each rebuild.
type Server struct {
	opts Options
	fs   afero.Fs
	log  *zap.Logger

	reload *liveReload
	proxy  *proxyTable
	metrics *metricsSet
	esm    *esmHandler

	httpServer *http.Server
}

// New creates a Server. When Options.Metrics is true, /metrics polls bc;
// a nil bc leaves the endpoint up with every gauge reading 0 until
// SetBuildContext supplies one.
func New(opts Options, fs afero.Fs, log *zap.Logger, bc *driver.BuildContext) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		opts:   opts,
		fs:     fs,
		log:    log,
		reload: newLiveReload(log),
		proxy:  newProxyTable(opts.Proxies),
	}
	if opts.Metrics {
		s.metrics = newMetricsSet(bc)
	}
	if opts.EsmDev {
		s.esm = newEsmHandler(fs, opts, log)
	}
	return s
}

// SetBuildContext swaps the BuildContext the /metrics gauges read from
// after an incremental rebuild produces a new one.
func (s *Server) SetBuildContext(bc *driver.BuildContext) {
	if s.metrics != nil {
		s.metrics.SetBuildContext(bc)
	}
}

// ImportMap sets the bare-specifier import map used in --esm-dev mode; a
// no-op when the server was created without Options.EsmDev.
func (s *Server) ImportMap(entries map[string]string) {
	if s.esm != nil {
		s.esm.SetImportMap(entries)
	}
}

// NotifyBuilt tells every connected live-reload client which output paths
// changed, matching please_js/dev's onBuildComplete diffing but driven by
// the Driver's BuildContext.Files() rather than esbuild's OutputFiles.
func (s *Server) NotifyBuilt(added, removed, updated []string) {
	s.reload.broadcast(reloadEvent{Added: added, Removed: removed, Updated: updated})
}

// ListenAndServe starts the server and blocks until Shutdown is called
// (the caller calls Shutdown from a signal handler, the
// same split please_js/dev's Run uses between its own http.Server and
// esbuild's ctx.Serve).
func (s *Server) ListenAndServe() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/__livereload", s.reload.handleWebSocket)
	mux.HandleFunc("/__devserver_client.js", serveClientScript)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.handler())
	}
	if s.esm != nil {
		mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			if rp, ok := s.proxy.match(r.URL.Path); ok {
				rp.ServeHTTP(w, r)
				return
			}
			s.esm.ServeHTTP(w, r)
		})
	} else {
		mux.HandleFunc("/", s.serveStatic)
	}

	s.httpServer = &http.Server{Addr: s.opts.Addr(), Handler: mux}
	s.log.Info("dev server listening", zap.String("addr", s.opts.Addr()))
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server, closing live-reload connections
// first so browsers see a clean disconnect instead of a hung socket.
func (s *Server) Shutdown() error {
	s.reload.closeAll()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Close()
}

// serveStatic implements the bundled-output serve path: proxy match,
// static file from OutDir, 404 — directory listing is declined per
// note that it stays out of scope.
func (s *Server) serveStatic(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	urlPath := r.URL.Path

	if rp, ok := s.proxy.match(urlPath); ok {
		s.log.Debug("proxy", zap.String("method", r.Method), zap.String("path", urlPath))
		rp.ServeHTTP(w, r)
		return
	}

	if urlPath == "/" {
		urlPath = "/index.html"
	}
	filePath := path.Join(s.opts.OutDir, path.Clean("/"+urlPath))
	info, err := s.fs.Stat(filePath)
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		s.log.Debug("request", zap.String("path", urlPath), zap.Int("status", 404), zap.Duration("elapsed", time.Since(start)))
		return
	}

	if strings.HasSuffix(urlPath, ".html") {
		content, err := afero.ReadFile(s.fs, filePath)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(injectLiveReloadScript(content))
		s.log.Debug("request", zap.String("path", urlPath), zap.Int("status", 200), zap.Duration("elapsed", time.Since(start)))
		return
	}

	f, err := s.fs.Open(filePath)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", mimeFor(urlPath, s.opts.MimeTypes))
	http.ServeContent(w, r, filePath, info.ModTime(), f.(fileSeeker))
	s.log.Debug("request", zap.String("path", urlPath), zap.Int("status", 200), zap.Duration("elapsed", time.Since(start)))
}

// fileSeeker is the subset of afero.File http.ServeContent needs.
type fileSeeker interface {
	Read(p []byte) (n int, err error)
	Seek(offset int64, whence int) (int64, error)
}

// proxyTable is a longest-prefix-first reverse-proxy router, grounded on
// please_js/dev.parseProxies (the same function please_js/esmdev reuses
// verbatim).
type proxyTable struct {
	proxies  map[string]*httputil.ReverseProxy
	prefixes []string
}

func newProxyTable(specs []string) *proxyTable {
	proxies := make(map[string]*httputil.ReverseProxy, len(specs))
	var prefixes []string
	for _, spec := range specs {
		parts := strings.SplitN(spec, "=", 2)
		if len(parts) != 2 {
			continue
		}
		prefix := strings.TrimSpace(parts[0])
		target := strings.TrimSpace(parts[1])
		rp, err := newReverseProxy(target)
		if err != nil {
			continue
		}
		proxies[prefix] = rp
		prefixes = append(prefixes, prefix)
	}
	sort.Slice(prefixes, func(i, j int) bool { return len(prefixes[i]) > len(prefixes[j]) })
	return &proxyTable{proxies: proxies, prefixes: prefixes}
}

func (p *proxyTable) match(urlPath string) (*httputil.ReverseProxy, bool) {
	for _, prefix := range p.prefixes {
		if strings.HasPrefix(urlPath, prefix) {
			return p.proxies[prefix], true
		}
	}
	return nil, false
}
