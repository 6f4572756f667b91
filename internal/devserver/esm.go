package devserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"path"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// esmHandler is the alternate "--esm-dev" serve mode // folds in from please_js/esmdev: browsers load unbundled native ESM
// through an <script type="importmap">, with TS/TSX/JSX transformed
// on-demand per request instead of pre-bundled through the Driver, the
// same trade please_js/esmdev makes against its own esbuild-direct
// prebundle cache.
type esmHandler struct {
	fs   afero.Fs
	opts Options
	log  *zap.Logger

	// importMap holds bare-specifier -> URL entries; populated from
	// Options via SetImportMap (tsconfig path aliases, local workspace
	// libraries), mirroring please_js/esmdev/server.go's own import-map
	// assembly.
	importMap map[string]string

	// ReactRefresh toggles injection of the Fast Refresh preamble script
	// please_js/esmdev wires in ahead of any .jsx/.tsx module.
	ReactRefresh bool
}

func newEsmHandler(fs afero.Fs, opts Options, log *zap.Logger) *esmHandler {
	return &esmHandler{fs: fs, opts: opts, log: log, importMap: make(map[string]string)}
}

// SetImportMap replaces the bare-specifier import map, e.g. from parsed
// tsconfig "paths" entries or discovered local workspace packages.
func (e *esmHandler) SetImportMap(entries map[string]string) {
	e.importMap = entries
}

const reactRefreshPreamble = `import RefreshRuntime from "/@react-refresh";
RefreshRuntime.injectIntoGlobalHook(window);
window.$RefreshReg$ = () => {};
window.$RefreshSig$ = () => (type) => type;
window.__vite_plugin_react_preamble_installed__ = true;
`

func (e *esmHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	urlPath := r.URL.Path

	switch {
	case urlPath == "/@react-refresh":
		http.NotFound(w, r) // served by the app's own dependency bundle when present
		return
	case strings.HasSuffix(urlPath, ".ts") || strings.HasSuffix(urlPath, ".tsx") ||
		strings.HasSuffix(urlPath, ".jsx"):
		e.serveTransformed(w, r, urlPath)
		return
	case strings.HasSuffix(urlPath, ".css"):
		e.serveCSSAsModule(w, r, urlPath)
		return
	case strings.HasSuffix(urlPath, ".html") || urlPath == "/":
		e.serveHTML(w, r, urlPath)
		return
	default:
		e.serveStaticOrFallback(w, r, urlPath)
	}
}

// serveTransformed compiles one TS/TSX/JSX source file to ESM JS via
// api.Transform, the same single-file call please_js/transpile.go and
// internal/compile/esbuild.Compiler use for the build-time path — here
// invoked per-request instead of once per build.
func (e *esmHandler) serveTransformed(w http.ResponseWriter, r *http.Request, urlPath string) {
	content, ok := e.readSource(urlPath)
	if !ok {
		http.NotFound(w, r)
		return
	}

	loader := api.LoaderTS
	switch path.Ext(urlPath) {
	case ".tsx":
		loader = api.LoaderTSX
	case ".jsx":
		loader = api.LoaderJSX
	}

	result := api.Transform(string(content), api.TransformOptions{
		Loader:     loader,
		Format:     api.FormatESModule,
		Target:     api.ESNext,
		JSX:        api.JSXAutomatic,
		Sourcemap:  api.SourceMapInline,
		Sourcefile: path.Base(urlPath),
	})
	if len(result.Errors) > 0 {
		http.Error(w, result.Errors[0].Text, http.StatusInternalServerError)
		return
	}

	body := result.Code
	if e.ReactRefresh && (strings.HasSuffix(urlPath, ".jsx") || strings.HasSuffix(urlPath, ".tsx")) {
		body = append([]byte(reactRefreshPreamble), body...)
	}

	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Write(body)
}

// serveCSSAsModule wraps a stylesheet as an ES module that injects a
// <style> tag on import, the same "CSS as JS module" trick
// please_js/esmdev uses so unbundled component code can `import
// "./x.css"` without a bundler rewriting that specifier. Tailwind-built
// CSS passes through unmodified ("Tailwind pass-through"):
// this function does not run any CSS transform of its own, only wraps it.
func (e *esmHandler) serveCSSAsModule(w http.ResponseWriter, r *http.Request, urlPath string) {
	content, ok := e.readSource(urlPath)
	if !ok {
		http.NotFound(w, r)
		return
	}
	if r.URL.Query().Has("raw") {
		w.Header().Set("Content-Type", "text/css")
		w.Write(content)
		return
	}

	css, _ := json.Marshal(string(content))
	module := "const css = " + string(css) + `;
let style = document.createElement("style");
style.textContent = css;
document.head.appendChild(style);
export default css;
`
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Write([]byte(module))
}

// serveHTML injects the import map and the live-reload client script into
// an HTML entry point, please_js/esmdev/server.go's "HTML injection" step.
func (e *esmHandler) serveHTML(w http.ResponseWriter, r *http.Request, urlPath string) {
	if urlPath == "/" {
		urlPath = "/index.html"
	}
	content, ok := e.readSource(urlPath)
	if !ok {
		http.NotFound(w, r)
		return
	}

	importMapJSON, _ := json.Marshal(struct {
		Imports map[string]string `json:"imports"`
	}{Imports: e.importMap})

	injected := `<script type="importmap">` + string(importMapJSON) + `</script>
<script type="module" src="/__devserver_client.js"></script>
`
	out := bytes.Replace(content, []byte("<head>"), []byte("<head>\n"+injected), 1)
	if bytes.Equal(out, content) {
		out = append([]byte(injected), content...)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(out)
}

func (e *esmHandler) serveStaticOrFallback(w http.ResponseWriter, r *http.Request, urlPath string) {
	if content, ok := e.readSource(urlPath); ok {
		w.Header().Set("Content-Type", mimeFor(urlPath, e.opts.MimeTypes))
		w.Write(content)
		return
	}
	// SPA fallback, matching please_js/dev's own index.html fallback.
	if content, ok := e.readSource("/index.html"); ok {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(content)
		return
	}
	http.NotFound(w, r)
}

func (e *esmHandler) readSource(urlPath string) ([]byte, bool) {
	filePath := path.Join(e.opts.OutDir, path.Clean("/"+urlPath))
	content, err := afero.ReadFile(e.fs, filePath)
	if err != nil {
		return nil, false
	}
	return content, true
}
