// Package js implements the JS/TS Bundler: static
// import/export-from specifiers, dynamic import(), and CommonJS require()
// calls, discovered with github.com/tree-sitter/tree-sitter-typescript —
// the same grammar and go-tree-sitter bindings
// bennypowers-mappa/trace/queries.go and bennypowers-cem use for their own
// import tracing.
package js

import (
	"context"
	"embed"
	"fmt"
	"strings"
	"sync"

	ts "github.com/tree-sitter/go-tree-sitter"
	tsTypescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"

	"github.com/pleasebuild/jspack/internal/bundle"
	"github.com/pleasebuild/jspack/internal/module"
)

//go:embed queries/*.scm
var queryFiles embed.FS

var (
	language   = ts.NewLanguage(tsTypescript.LanguageTSX())
	queryOnce  sync.Once
	compiled   *ts.Query
	compileErr error
	parserPool = sync.Pool{New: func() any {
		p := ts.NewParser()
		if err := p.SetLanguage(language); err != nil {
			panic("js: failed to set language: " + err.Error())
		}
		return p
	}}
)

func query() (*ts.Query, error) {
	queryOnce.Do(func() {
		data, err := queryFiles.ReadFile("queries/imports.scm")
		if err != nil {
			compileErr = err
			return
		}
		q, _, err := ts.NewQuery(language, string(data))
		if err != nil {
			compileErr = fmt.Errorf("js: compiling imports query: %w", err)
			return
		}
		compiled = q
	})
	return compiled, compileErr
}

// Bundler is the JS/TS Bundler implementation. Dependencies captured as
// "dynamicImport.spec" are always marked Dependency.Dynamic, whose failure
// to resolve is a warning, not an error.
type Bundler struct {
}

func New() *Bundler { return &Bundler{} }

func (b *Bundler) ReadMode() bundle.ReadMode { return bundle.ReadText }

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
		return fmt.Errorf("js: failed to parse %s", m.Path)
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
			switch name {
			case "import.spec", "reexport.spec", "dynamicImport.spec", "require.spec":
			default:
				continue
			}

			raw := capture.Node.Utf8Text(content)
			spec := strings.Trim(raw, `"'`+"`")
			if spec == "" {
				continue
			}

			start := int(capture.Node.StartByte())
			end := int(capture.Node.EndByte())

			depType := "import"
			dynamic := false
			switch name {
			case "reexport.spec":
				depType = "reexport"
			case "dynamicImport.spec":
				depType = "import"
				dynamic = true
			case "require.spec":
				depType = "require"
			}

			dep := bundle.ParseDependencyURL(spec, depType, dynamic, start, end)
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

func (b *Bundler) Resolve(ctx context.Context, dep *module.Dependency, m *module.Module, bd bundle.Builder) (string, bool, error) {
	if isBareSpecifier(dep.Pathname) {
		// Bare specifiers (npm package names) are out of this bundler's
		// resolution scope in this port (the moduleconfig-driven resolver
		// is common.ModuleResolvePlugin in tools/please_js, used by the
		// esbuild bundle path). Ignore silently rather than erroring every
		// node_modules import.
		return "", false, nil
	}
	if isExternalURL(dep.Pathname) {
		return "", false, nil
	}
	return bundle.ResolveRelative(dep.Pathname, m.Path)
}

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

func isBareSpecifier(spec string) bool {
	return spec != "" && spec[0] != '.' && spec[0] != '/'
}

func isExternalURL(u string) bool {
	if strings.HasPrefix(u, "/") {
		return true
	}
	if i := strings.Index(u, "://"); i > 0 && i < 10 {
		return true
	}
	return false
}
