// Package driver implements the build orchestrator: the phased
// full/incremental/pathOnly build modes, the BuildContext
// progress record, and the Driver type that wires every other core
// component (module table, deferred barrier, processor chains, bundler
// registry, external-module policy, source-map composer, watcher index)
// together behind the pipeline.Builder/bundle.Builder interfaces those
// packages depend on.
package driver

import (
	"github.com/pleasebuild/jspack/internal/bundle"
	"github.com/pleasebuild/jspack/internal/external"
	"github.com/pleasebuild/jspack/internal/match"
	"github.com/pleasebuild/jspack/internal/pipeline"
	"github.com/pleasebuild/jspack/internal/plugin"
	"github.com/pleasebuild/jspack/internal/sourcemap"
)

// BuildMode selects one of the three build strategies.
type BuildMode int

const (
	ModeFull BuildMode = iota
	ModeIncremental
	ModePathOnly
)

// SourceMapMode mirrors the config's tri-state `sourceMap` option:
// false, true, or a detailed record.
type SourceMapMode struct {
	Enabled bool
	Inline  bool
	Policy  sourcemap.SourcesPolicy
}

// Config is the recognised configuration record.
type Config struct {
	RootDir string
	OutDir  string

	Match   match.Matcher
	Exclude match.Matcher

	Compilers  *pipeline.Chain
	Optimizers *pipeline.Chain

	Bundlers *bundle.Registry
	External *external.Registry

	Optimize  bool
	SourceMap SourceMapMode

	Clean        bool
	Bail         bool
	NoPathCheck  bool
	NoWrite      bool
	ParallelSize int

	Encoding  string
	MimeTypes map[string]string

	Plugins *plugin.Registry

	Version string
}

func (c *Config) mimeFor(ext string) string {
	if c.MimeTypes != nil {
		if t, ok := c.MimeTypes[ext]; ok {
			return t
		}
	}
	return defaultMimeTypes[ext]
}

// defaultMimeTypes is a small built-in table; callers override/extend via
// Config.MimeTypes.
var defaultMimeTypes = map[string]string{
	".js":   "application/javascript",
	".mjs":  "application/javascript",
	".cjs":  "application/javascript",
	".ts":   "application/javascript",
	".tsx":  "application/javascript",
	".jsx":  "application/javascript",
	".css":  "text/css",
	".html": "text/html",
	".json": "application/json",
	".svg":  "image/svg+xml",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
	".woff": "font/woff",
	".woff2": "font/woff2",
}
