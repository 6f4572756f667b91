package devserver

import (
	"mime"
	"path/filepath"
)

// builtinMimeTypes is the dev server's extension-to-MIME table, the same
// extension-keyed shape please_js/common.Loaders uses for esbuild loaders,
// applied here to content types instead. Callers extend or override it via
// Options.MimeTypes.
var builtinMimeTypes = map[string]string{
	".js":    "application/javascript",
	".mjs":   "application/javascript",
	".cjs":   "application/javascript",
	".ts":    "application/javascript",
	".tsx":   "application/javascript",
	".jsx":   "application/javascript",
	".css":   "text/css",
	".html":  "text/html; charset=utf-8",
	".json":  "application/json",
	".svg":   "image/svg+xml",
	".png":   "image/png",
	".jpg":   "image/jpeg",
	".jpeg":  "image/jpeg",
	".gif":   "image/gif",
	".webp":  "image/webp",
	".woff":  "font/woff",
	".woff2": "font/woff2",
	".ttf":   "font/ttf",
	".eot":   "application/vnd.ms-fontobject",
	".map":   "application/json",
	".wasm":  "application/wasm",
}

// mimeFor resolves urlPath's content type, checking overrides first, then
// the built-in table, then falling back to the standard library's own
// system MIME database.
func mimeFor(urlPath string, overrides map[string]string) string {
	ext := filepath.Ext(urlPath)
	if overrides != nil {
		if t, ok := overrides[ext]; ok {
			return t
		}
	}
	if t, ok := builtinMimeTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}
