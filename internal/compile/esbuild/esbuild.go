// Package esbuild wraps github.com/evanw/esbuild/pkg/api as two
// pipeline.Processor implementations: a compiler that transpiles
// TS/TSX/JSX to JS, and an optimizer that minifies JS/CSS. Both follow
// please_js/transpile.go's use of api.Transform (a single-file transform,
// not api.Build's whole-graph bundling, since bundling here is the
// separate Bundler contract in internal/bundle).
package esbuild

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/pleasebuild/jspack/internal/module"
	"github.com/pleasebuild/jspack/internal/pipeline"
)

// loaders mirrors please_js/common's extension-to-loader table.
var loaders = map[string]api.Loader{
	".js":   api.LoaderJS,
	".jsx":  api.LoaderJSX,
	".ts":   api.LoaderTS,
	".tsx":  api.LoaderTSX,
	".mjs":  api.LoaderJS,
	".cjs":  api.LoaderJS,
	".json": api.LoaderJSON,
	".css":  api.LoaderCSS,
}

// Compiler transpiles TS/TSX/JSX to JS via api.Transform, rewriting the
// module's extension to ".js" (from .ts, .tsx or .jsx) or leaving a source map chained onto
// whatever was already present.
type Compiler struct {
	Target string // esbuild target string, e.g. "es2020"; "" means ESNext
	JSX    api.JSXMode
}

func NewCompiler() *Compiler { return &Compiler{JSX: api.JSXAutomatic} }

func (c *Compiler) Process(ctx context.Context, m *module.Module, options map[string]any, b pipeline.Builder) error {
	content, err := m.Content()
	if err != nil {
		return err
	}
	loader, ok := loaders[m.Ext()]
	if !ok {
		loader = api.LoaderJS
	}

	target := c.target(options)
	result := api.Transform(string(content), api.TransformOptions{
		Loader:     loader,
		Format:     api.FormatESModule,
		Target:     target,
		JSX:        c.JSX,
		Sourcemap:  api.SourceMapExternal,
		SourceRoot: filepath.Dir(m.Path),
		Sourcefile: filepath.Base(m.Path),
	})
	if len(result.Errors) > 0 {
		for _, e := range result.Errors {
			m.AddLog(diagnosticFromMessage(e))
		}
		return fmt.Errorf("esbuild: compiling %s: %s", m.Path, result.Errors[0].Text)
	}
	for _, w := range result.Warnings {
		m.AddLog(diagnosticFromMessage(w))
	}

	var sm *module.SourceMap
	if len(result.Map) > 0 {
		sm = &module.SourceMap{
			File:    filepath.Base(m.Path),
			Sources: []string{filepath.Base(m.Path)},
			Mappings: string(result.Map),
		}
	}
	m.SetData(module.Data{Kind: module.DataBinary, Bytes: result.Code}, sm, composeChain)

	ext := m.Ext()
	if ext == ".ts" || ext == ".tsx" || ext == ".jsx" {
		m.Path = strings.TrimSuffix(m.Path, ext) + ".js"
	}
	return nil
}

func (c *Compiler) target(options map[string]any) api.Target {
	if v, ok := options["target"].(string); ok {
		if t, ok := targetFromString(v); ok {
			return t
		}
	}
	if t, ok := targetFromString(c.Target); ok {
		return t
	}
	return api.ESNext
}

func targetFromString(s string) (api.Target, bool) {
	switch s {
	case "es2015":
		return api.ES2015, true
	case "es2017":
		return api.ES2017, true
	case "es2020":
		return api.ES2020, true
	case "esnext", "":
		return api.ESNext, false
	default:
		return api.ESNext, false
	}
}

// Optimizer minifies JS/CSS content via api.Transform's minify flags.
type Optimizer struct{}

func NewOptimizer() *Optimizer { return &Optimizer{} }

func (o *Optimizer) Parallel() bool { return true }

func (o *Optimizer) Process(ctx context.Context, m *module.Module, options map[string]any, b pipeline.Builder) error {
	content, err := m.Content()
	if err != nil {
		return err
	}
	loader, ok := loaders[m.Ext()]
	if !ok {
		loader = api.LoaderJS
	}

	result := api.Transform(string(content), api.TransformOptions{
		Loader:            loader,
		MinifyWhitespace:  true,
		MinifyIdentifiers: true,
		MinifySyntax:      true,
		Sourcemap:         api.SourceMapExternal,
		Sourcefile:        filepath.Base(m.Path),
	})
	if len(result.Errors) > 0 {
		for _, e := range result.Errors {
			m.AddLog(diagnosticFromMessage(e))
		}
		return fmt.Errorf("esbuild: optimizing %s: %s", m.Path, result.Errors[0].Text)
	}

	var sm *module.SourceMap
	if len(result.Map) > 0 {
		sm = &module.SourceMap{File: filepath.Base(m.Path), Mappings: string(result.Map)}
	}
	m.SetData(module.Data{Kind: module.DataBinary, Bytes: result.Code}, sm, composeChain)
	return nil
}

func diagnosticFromMessage(msg api.Message) module.LogEntry {
	e := module.LogEntry{
		Severity: module.SeverityError,
		Source:   "esbuild",
		Message:  msg.Text,
	}
	if msg.Location != nil {
		e.Line = msg.Location.Line
		e.Column = msg.Location.Column
		e.FileName = msg.Location.File
	}
	return e
}

// composeChain is a minimal source-map chain composer: when the module
// already carries a map (e.g. it was already carved from HTML), the new
// map's sources are pointed at the old map's file so a later
// internal/sourcemap pass can flatten the chain.
func composeChain(old, new *module.SourceMap) *module.SourceMap {
	if old == nil {
		return new
	}
	if new == nil {
		return old
	}
	new.Sources = append(append([]string(nil), new.Sources...), old.File)
	new.SourcesContent = append(append([]string(nil), new.SourcesContent...), old.Mappings)
	return new
}
