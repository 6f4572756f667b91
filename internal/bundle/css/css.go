// Package css implements the CSS Bundler, discovering
// @import rules and url(...) references with
// github.com/tree-sitter/tree-sitter-css, the same grammar
// bennypowers-cem depends on. Structurally this mirrors
// bennypowers-mappa/trace: an embedded .scm query run once per parse, with
// capture names switched on to build module.Dependency records.
package css

import (
	"context"
	"embed"
	"fmt"
	"strings"
	"sync"

	ts "github.com/tree-sitter/go-tree-sitter"
	tsCSS "github.com/tree-sitter/tree-sitter-css/bindings/go"

	"github.com/pleasebuild/jspack/internal/bundle"
	"github.com/pleasebuild/jspack/internal/module"
)

//go:embed queries/*.scm
var queryFiles embed.FS

var (
	language     = ts.NewLanguage(tsCSS.Language())
	queryOnce    sync.Once
	compiled     *ts.Query
	compileErr   error
	parserPool   = sync.Pool{New: func() any {
		p := ts.NewParser()
		if err := p.SetLanguage(language); err != nil {
			panic("css: failed to set language: " + err.Error())
		}
		return p
	}}
)

func query() (*ts.Query, error) {
	queryOnce.Do(func() {
		data, err := queryFiles.ReadFile("queries/import.scm")
		if err != nil {
			compileErr = err
			return
		}
		q, _, err := ts.NewQuery(language, string(data))
		if err != nil {
			compileErr = fmt.Errorf("css: compiling import query: %w", err)
			return
		}
		compiled = q
	})
	return compiled, compileErr
}

// Bundler is the CSS Bundler implementation.
type Bundler struct{}

func New() *Bundler { return &Bundler{} }

func (b *Bundler) ReadMode() bundle.ReadMode { return bundle.ReadText }

// Parse scans CSS content for @import rules and url(...) references,
// registering one module.Dependency plus one module.ReplaceRange per
// reference so Generate can substitute the resolved output URL later.
func (b *Bundler) Parse(ctx context.Context, m *module.Module, bd bundle.Builder) error {
	content, err := m.Content()
	if err != nil {
		return err
	}
	q, err := query()
	if err != nil {
		return err
	}

	p := parserPool.Get().(*ts.Parser)
	defer func() { p.Reset(); parserPool.Put(p) }()

	tree := p.Parse(content, nil)
	if tree == nil {
		return fmt.Errorf("css: failed to parse %s", m.Path)
	}
	defer tree.Close()

	cursor := ts.NewQueryCursor()
	defer cursor.Close()

	names := q.CaptureNames()
	matches := cursor.Matches(q, tree.RootNode(), content)
	for {
		match := matches.Next()
		if match == nil {
			break
		}
		for _, capture := range match.Captures {
			name := names[capture.Index]
			if name != "import.spec" && name != "url.spec" {
				continue
			}
			raw := capture.Node.Utf8Text(content)
			spec := strings.Trim(raw, `"'`)
			if spec == "" || strings.HasPrefix(spec, "data:") {
				continue
			}
			start := int(capture.Node.StartByte())
			end := int(capture.Node.EndByte())
			depType := "url"
			if name == "import.spec" {
				depType = "import"
			}
			dep := bundle.ParseDependencyURL(spec, depType, false, start, end)
			m.AddDependency(dep)
			m.AddReplaceRange(module.ReplaceRange{
				Start: start,
				End:   end,
				Dep:   dep,
				Rewrite: func(d *module.Dependency) (string, error) {
					if d.SkipResolve || d.ResolvedFile == nil {
						return raw, nil
					}
					return fmt.Sprintf("%q", d.ResolvedFile.Path), nil
				},
			})
		}
	}
	return nil
}

// Resolve treats protocol-relative, absolute-URL and root-absolute
// references as external, everything else as a
// same-tree relative path for the driver to resolve against the importing
// module's directory.
func (b *Bundler) Resolve(ctx context.Context, dep *module.Dependency, m *module.Module, bd bundle.Builder) (string, bool, error) {
	if dep.SkipResolve {
		return "", false, nil
	}
	if isExternalURL(dep.Pathname) {
		return "", false, nil
	}
	return bundle.ResolveRelative(dep.Pathname, m.Path)
}

// Generate replays the registered replace ranges over the original content
// to produce the final CSS text.
func (b *Bundler) Generate(ctx context.Context, m *module.Module, bd bundle.Builder) ([]byte, *module.SourceMap, error) {
	content, err := m.Content()
	if err != nil {
		return nil, nil, err
	}
	out, err := bundle.ApplyReplaceRanges(content, m.ReplaceRanges, m.Dependencies)
	if err != nil {
		return nil, nil, err
	}
	return out, m.SourceMapData(), nil
}

func isExternalURL(u string) bool {
	if strings.HasPrefix(u, "//") || strings.HasPrefix(u, "/") {
		return true
	}
	if i := strings.Index(u, "://"); i > 0 && i < 10 {
		return true
	}
	return false
}
