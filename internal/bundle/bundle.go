// Package bundle implements the bundler contract and registry: an
// extension-keyed map from file extension to a Bundler that can parse a
// module's content for dependency references, resolve those references
// to absolute paths, optionally bundle a set of entries, and generate
// final output content. Concrete bundlers (JS/TS, CSS, HTML) live in the
// sibling js/css/html packages; the bundlers themselves are external
// collaborators to the core, so this package only defines the contract
// and the registry that dispatches to them.
package bundle

import (
	"context"
	"fmt"

	"github.com/pleasebuild/jspack/internal/module"
	"github.com/pleasebuild/jspack/internal/pipeline"
)

// ReadMode mirrors pipeline.ReadMode; a Bundler declares how its Parse
// wants the module's content populated.
type ReadMode = pipeline.ReadMode

const (
	ReadNone   = pipeline.ReadNone
	ReadText   = pipeline.ReadText
	ReadBinary = pipeline.ReadBinary
)

// Builder is the subset of driver services a Bundler may call back into.
type Builder interface {
	pipeline.Builder
	GetModule(path string) *module.Module
	LoadFile(m *module.Module)
	// CreateSubfile carves a byte range of a parent module into its own
	// Module, e.g. an inline <style>/<script> block inside HTML.
	CreateSubfile(parent *module.Module, path string, content []byte, index int, sm *module.SourceMap) *module.Module
}

// Bundler implements some subset of parse/resolve/bundle/generate for one
// registered extension. Every method is optional:
// returning (nil, false) from a type assertion on the narrower interfaces
// below lets a Bundler implement only what it needs.
type Bundler interface {
	// ReadMode is the preferred read mode for Parse.
	ReadMode() ReadMode
}

// Parser is implemented by bundlers that scan content for dependencies.
type Parser interface {
	Parse(ctx context.Context, m *module.Module, b Builder) error
}

// Resolver is implemented by bundlers that resolve a dependency's URL to an
// absolute path. Returning ("", true, nil) means "let the driver log cannot
// find"; returning ok=false means "ignore silently" (protocol-relative
// URLs, host-qualified URLs, root-absolute paths).
type Resolver interface {
	Resolve(ctx context.Context, dep *module.Dependency, m *module.Module, b Builder) (path string, ok bool, err error)
}

// Combiner is implemented by bundlers with a bundle-time, whole-entry-list
// pass (e.g. common-chunk extraction). Only the minimal contract is
// specified: it may return new synthetic entry modules.
type Combiner interface {
	Bundle(ctx context.Context, entries []*module.Module, b Builder) ([]*module.Module, error)
}

// Generator is implemented by bundlers that produce final content (and
// optionally a source map) from the parsed representation, evaluating any
// pending replace ranges registered during Parse.
type Generator interface {
	Generate(ctx context.Context, m *module.Module, b Builder) (content []byte, sourceMap *module.SourceMap, err error)
}

// Registry maps a file extension ("." included, e.g. ".js") to a Bundler.
// Registering nil disables a bundler for that extension.
type Registry struct {
	byExt map[string]Bundler
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byExt: make(map[string]Bundler)}
}

// Register binds a Bundler to an extension. Passing a nil bundler disables
// any previously registered bundler for that extension.
func (r *Registry) Register(ext string, b Bundler) {
	if b == nil {
		delete(r.byExt, ext)
		return
	}
	r.byExt[ext] = b
}

// Lookup returns the Bundler registered for ext, if any.
func (r *Registry) Lookup(ext string) (Bundler, bool) {
	b, ok := r.byExt[ext]
	return b, ok
}

// All returns every distinct Bundler currently registered, used by the
// driver's bundle phase to invoke each registered bundler's Combiner
// with the entry list, if it has one.
func (r *Registry) All() []Bundler {
	seen := make(map[Bundler]bool)
	var out []Bundler
	for _, b := range r.byExt {
		if !seen[b] {
			seen[b] = true
			out = append(out, b)
		}
	}
	return out
}

// ErrNotFound is a sentinel a Resolve implementation may wrap in its error
// return; the driver logs any non-nil Resolve error as an error on the
// referencing module. The plain "cannot find" case needs no error: it maps
// onto Go's (string, bool, error) return shape as ok=true with an empty
// path, while ok=false + err=nil means "ignore silently".
var ErrNotFound = fmt.Errorf("dependency not found")
