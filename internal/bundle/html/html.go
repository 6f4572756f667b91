// Package html implements the HTML Bundler: it finds
// <script src>, <link href> and <img src> references the same way the CSS
// and JS bundlers find theirs, and additionally carves inline <style> and
// <script> element bodies out into their own sub-file Modules so the
// rest of the pipeline (CSS/JS bundlers, processors) can run over them
// unmodified. Grounded on
// github.com/tree-sitter/tree-sitter-html, the grammar
// bennypowers-cem and bennypowers-mappa/trace both use for HTML.
package html

import (
	"context"
	"embed"
	"fmt"
	"strings"
	"sync"

	ts "github.com/tree-sitter/go-tree-sitter"
	tsHtml "github.com/tree-sitter/tree-sitter-html/bindings/go"

	"github.com/pleasebuild/jspack/internal/bundle"
	"github.com/pleasebuild/jspack/internal/module"
)

//go:embed queries/*.scm
var queryFiles embed.FS

var (
	language   = ts.NewLanguage(tsHtml.Language())
	queryOnce  sync.Once
	compiled   *ts.Query
	compileErr error
	parserPool = sync.Pool{New: func() any {
		p := ts.NewParser()
		if err := p.SetLanguage(language); err != nil {
			panic("html: failed to set language: " + err.Error())
		}
		return p
	}}
)

func query() (*ts.Query, error) {
	queryOnce.Do(func() {
		data, err := queryFiles.ReadFile("queries/refs.scm")
		if err != nil {
			compileErr = err
			return
		}
		q, _, err := ts.NewQuery(language, string(data))
		if err != nil {
			compileErr = fmt.Errorf("html: compiling refs query: %w", err)
			return
		}
		compiled = q
	})
	return compiled, compileErr
}

// Bundler is the HTML Bundler implementation.
type Bundler struct{}

func New() *Bundler { return &Bundler{} }

func (b *Bundler) ReadMode() bundle.ReadMode { return bundle.ReadText }

// Parse discovers src/href references and carves out inline <style>/<script>
// bodies as sub-files.
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
		return fmt.Errorf("html: failed to parse %s", m.Path)
	}
	defer tree.Close()

	cursor := ts.NewQueryCursor()
	defer cursor.Close()

	names := q.CaptureNames()
	matches := cursor.Matches(q, tree.RootNode(), content)

	var cssIndex, jsIndex int
	for {
		match := matches.Next()
		if match == nil {
			break
		}
		for _, capture := range match.Captures {
			name := names[capture.Index]
			switch name {
			case "script.src", "link.href", "img.src":
				b.addRefDependency(m, capture, content, name)
			case "style.body":
				path := fmt.Sprintf("%s.%d.css", m.OriginalPath, cssIndex)
				cssIndex++
				b.addSubfile(m, bd, capture, content, path)
			case "inlinescript.body":
				path := fmt.Sprintf("%s.%d.js", m.OriginalPath, jsIndex)
				jsIndex++
				b.addSubfile(m, bd, capture, content, path)
			}
		}
	}
	return nil
}

func (b *Bundler) addRefDependency(m *module.Module, capture ts.QueryCapture, content []byte, name string) {
	raw := capture.Node.Utf8Text(content)
	spec := strings.TrimSpace(raw)
	if spec == "" || strings.HasPrefix(spec, "data:") {
		return
	}
	start := int(capture.Node.StartByte())
	end := int(capture.Node.EndByte())
	depType := "src"
	if name == "link.href" {
		depType = "href"
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
			return d.ResolvedFile.Path, nil
		},
	})
}

// addSubfile registers an inline block as its own Module via bd.CreateSubfile
// and a ReplaceRange that substitutes the generated sub-file's final content
// back into the parent document at Generate time.
func (b *Bundler) addSubfile(m *module.Module, bd bundle.Builder, capture ts.QueryCapture, content []byte, path string) {
	start := int(capture.Node.StartByte())
	end := int(capture.Node.EndByte())
	body := content[start:end]
	sub := bd.CreateSubfile(m, path, body, start, nil)
	dep := &module.Dependency{
		URL:      path,
		Index:    start,
		EndIndex: end,
		Type:     "inline",
		Inline:   true,
		ResolvedFile: sub,
	}
	m.AddDependency(dep)
	m.AddReplaceRange(module.ReplaceRange{
		Start: start,
		End:   end,
		Dep:   dep,
		Rewrite: func(d *module.Dependency) (string, error) {
			out, err := d.ResolvedFile.Content()
			if err != nil {
				return "", err
			}
			return string(out), nil
		},
	})
}

// Resolve treats root-absolute and external references as out of scope;
// inline sub-file dependencies are already resolved during Parse.
func (b *Bundler) Resolve(ctx context.Context, dep *module.Dependency, m *module.Module, bd bundle.Builder) (string, bool, error) {
	if dep.Inline {
		return "", false, nil
	}
	if dep.SkipResolve {
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

func isExternalURL(u string) bool {
	if strings.HasPrefix(u, "//") || strings.HasPrefix(u, "/") {
		return true
	}
	if i := strings.Index(u, "://"); i > 0 && i < 10 {
		return true
	}
	return false
}

