// Package sourcemap implements the source-map composer: given a module's
// final in-memory source map, it rewrites source paths, optionally fills
// sourcesContent, and emits the map either inline (base64 data URI) or as
// a sibling ".map" module, appending the appropriate URL comment to the
// generated content.
package sourcemap

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/pleasebuild/jspack/internal/module"
)

// SourcesPolicy decides how Sources[i] entries are rewritten.
type SourcesPolicy int

const (
	// SourcesRelativeToMap rewrites sources relative to the map's own
	// output directory (the default).
	SourcesRelativeToMap SourcesPolicy = iota
	// SourcesRelativeToRoot rewrites sources relative to a fixed project
	// root.
	SourcesRelativeToRoot
	// SourcesFileURL emits OS-absolute file:/// URLs.
	SourcesFileURL
	// SourcesFunc defers to Options.SourcesFunc.
	SourcesFunc
)

// Options configures one Compose call.
type Options struct {
	Inline             bool
	SourcesPolicy      SourcesPolicy
	ProjectRoot        string
	SourcesFunc        func(source string) string
	FillSourcesContent bool
	ReadSource         func(path string) (string, error)
}

// Result is what Compose produces: content with the URL comment appended,
// and — when not inlined — a sibling module path/bytes for the driver to
// write.
type Result struct {
	Content      []byte
	SiblingPath  string
	SiblingBytes []byte
}

// mimeIsCSS decides which URL-comment style to append: JS-style // vs
// CSS-style /* */, chosen by MIME type.
func mimeIsCSS(mimeType, path string) bool {
	if mimeType == "text/css" {
		return true
	}
	return mimeType == "" && filepath.Ext(path) == ".css"
}

// Compose rewrites sm's sources per opts, emits it inline or as a sibling,
// and returns m's final content with the URL comment appended.
func Compose(m *module.Module, sm *module.SourceMap, content []byte, mimeType string, opts Options) (*Result, error) {
	if sm == nil {
		return &Result{Content: content}, nil
	}

	mapPath := m.Path + ".map"
	rewritten := make([]string, len(sm.Sources))
	for i, s := range sm.Sources {
		rewritten[i] = rewriteSource(s, m.Path, mapPath, opts)
	}
	sm.Sources = rewritten

	if opts.FillSourcesContent && len(sm.SourcesContent) < len(sm.Sources) {
		sm.SourcesContent = fillSourcesContent(sm, opts.ReadSource)
	}

	encoded, err := json.Marshal(sourceMapJSON{
		Version:        3,
		File:           sm.File,
		SourceRoot:     sm.SourceRoot,
		Sources:        sm.Sources,
		SourcesContent: sm.SourcesContent,
		Names:          sm.Names,
		Mappings:       sm.Mappings,
	})
	if err != nil {
		return nil, fmt.Errorf("sourcemap: marshal: %w", err)
	}

	comment, siblingPath, siblingBytes := urlComment(mimeIsCSS(mimeType, m.Path), opts.Inline, mapPath, encoded)
	out := append(append([]byte(nil), content...), []byte(comment)...)
	return &Result{Content: out, SiblingPath: siblingPath, SiblingBytes: siblingBytes}, nil
}

func rewriteSource(source, modulePath, mapPath string, opts Options) string {
	switch opts.SourcesPolicy {
	case SourcesFunc:
		if opts.SourcesFunc != nil {
			return opts.SourcesFunc(source)
		}
		return source
	case SourcesFileURL:
		abs, err := filepath.Abs(source)
		if err != nil {
			return source
		}
		return "file://" + filepath.ToSlash(abs)
	case SourcesRelativeToRoot:
		if opts.ProjectRoot == "" {
			return source
		}
		rel, err := filepath.Rel(opts.ProjectRoot, source)
		if err != nil {
			return source
		}
		return filepath.ToSlash(rel)
	default: // SourcesRelativeToMap
		rel, err := filepath.Rel(filepath.Dir(mapPath), source)
		if err != nil {
			return source
		}
		return filepath.ToSlash(rel)
	}
}

func fillSourcesContent(sm *module.SourceMap, read func(string) (string, error)) []string {
	out := make([]string, len(sm.Sources))
	copy(out, sm.SourcesContent)
	for i := len(sm.SourcesContent); i < len(sm.Sources); i++ {
		if read == nil {
			continue
		}
		if content, err := read(sm.Sources[i]); err == nil {
			out[i] = content
		}
	}
	return out
}

func urlComment(isCSS, inline bool, mapPath string, encoded []byte) (comment, siblingPath string, siblingBytes []byte) {
	var url string
	if inline {
		url = "data:application/json;charset=utf-8;base64," + base64.StdEncoding.EncodeToString(encoded)
	} else {
		url = filepath.Base(mapPath)
		siblingPath = mapPath
		siblingBytes = encoded
	}
	if isCSS {
		return fmt.Sprintf("\n/*# sourceMappingURL=%s */\n", url), siblingPath, siblingBytes
	}
	return fmt.Sprintf("\n//# sourceMappingURL=%s\n", url), siblingPath, siblingBytes
}

type sourceMapJSON struct {
	Version        int      `json:"version"`
	File           string   `json:"file,omitempty"`
	SourceRoot     string   `json:"sourceRoot,omitempty"`
	Sources        []string `json:"sources"`
	SourcesContent []string `json:"sourcesContent,omitempty"`
	Names          []string `json:"names,omitempty"`
	Mappings       string   `json:"mappings"`
}

// ComposeChain walks an old map through a new map's positions, used inside
// Module whenever new content replaces old content while SourceMapEnabled
// . This minimal port treats
// chaining as "keep the newest map but remember the old map's file as an
// extra original source" rather than recomputing composite mappings,
// since neither please_js nor the rest of the pack carries a VLQ mappings
// composer; genuinely walking mappings needs a dedicated decoder this
// port does not implement.
func ComposeChain(old, new *module.SourceMap) *module.SourceMap {
	if old == nil {
		return new
	}
	if new == nil {
		return old
	}
	if old.File != "" && !contains(new.Sources, old.File) {
		new.Sources = append(new.Sources, old.File)
		if len(old.SourcesContent) > 0 {
			new.SourcesContent = append(new.SourcesContent, old.SourcesContent...)
		}
	}
	return new
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
