// Package config loads the recognised configuration record from a
// jspack.yaml/jspack.json file, CLI flags, and JSPACK_*-prefixed
// environment variables, using github.com/spf13/viper exactly as
// bennypowers-cem/cmd.initConfig loads its own cem.yaml — merged here
// into a driver.Config plus the two CLI-only knobs (watch, devServer)
// the core driver has no use for.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/pleasebuild/jspack/internal/bundle"
	"github.com/pleasebuild/jspack/internal/driver"
	"github.com/pleasebuild/jspack/internal/external"
	"github.com/pleasebuild/jspack/internal/match"
	"github.com/pleasebuild/jspack/internal/pipeline"
	"github.com/pleasebuild/jspack/internal/plugin"
	"github.com/pleasebuild/jspack/internal/sourcemap"
)

// ProcessorRule mirrors one entry of the compilers/optimizers list.
type ProcessorRule struct {
	Match    []string       `mapstructure:"match"`
	Exclude  []string       `mapstructure:"exclude"`
	Use      string         `mapstructure:"use"`
	Name     string         `mapstructure:"name"`
	Options  map[string]any `mapstructure:"options"`
	OutPath  string         `mapstructure:"outPath"`
	Read     string         `mapstructure:"read"`
	Break    bool           `mapstructure:"break"`
	Parallel bool           `mapstructure:"parallel"`
}

// ExternalRule mirrors one entry of the bundler.externalModules list.
type ExternalRule struct {
	Match   []string `mapstructure:"match"`
	Exclude []string `mapstructure:"exclude"`
	Type    string   `mapstructure:"matchType"`
	MinSize int      `mapstructure:"minSize"`
	OutPath string   `mapstructure:"outPath"`
}

// WatchOptions mirrors the `watch` option when it is a record rather
// than a bare bool.
type WatchOptions struct {
	Enabled bool `mapstructure:"enabled"`
	DebounceMS int `mapstructure:"debounceMs"`
}

// DevServerOptions mirrors the `devServer` option.
type DevServerOptions struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Host    string `mapstructure:"host"`
	EsmDev  bool   `mapstructure:"esmDev"`
}

// File is the raw shape read from jspack.yaml/jspack.json before it is
// compiled into a driver.Config.
type File struct {
	RootDir string   `mapstructure:"rootDir"`
	OutDir  string   `mapstructure:"outDir"`
	Match   []string `mapstructure:"match"`
	Exclude []string `mapstructure:"exclude"`

	Compilers  []ProcessorRule `mapstructure:"compilers"`
	Optimizers []ProcessorRule `mapstructure:"optimizers"`

	BundlerTarget    string         `mapstructure:"bundler.target"`
	ExternalModules  []ExternalRule `mapstructure:"bundler.externalModules"`
	DisabledBundlers []string       `mapstructure:"bundler.disabled"`

	Optimize  bool `mapstructure:"optimize"`
	SourceMap any  `mapstructure:"sourceMap"`

	Clean       bool `mapstructure:"clean"`
	Bail        bool `mapstructure:"bail"`
	NoPathCheck bool `mapstructure:"noPathCheck"`
	NoWrite     bool `mapstructure:"noWrite"`
	Parallel    int  `mapstructure:"parallel"`

	Encoding  string            `mapstructure:"encoding"`
	MimeTypes map[string]string `mapstructure:"mimeTypes"`

	InstallCommand        string `mapstructure:"installCommand"`
	InstallDevDependency  string `mapstructure:"installDevDependency"`

	Watch     WatchOptions     `mapstructure:"watch"`
	DevServer DevServerOptions `mapstructure:"devServer"`

	Version string `mapstructure:"version"`
}

// Load reads jspack.yaml/jspack.json from dir, or from configFile
// directly when non-empty (the CLI's --config flag), merges
// JSPACK_*-prefixed env vars and returns the raw File record. Callers
// compose the driver.Config themselves via Compile since a few fields
// (Bundlers, Plugins, Compilers/Optimizers chains) need runtime-registered
// constructors the config file cannot name directly — only the `use`
// plugin reference string is on disk.
func Load(dir, configFile string) (*File, error) {
	v := viper.New()
	v.SetConfigName("jspack")
	v.AddConfigPath(dir)
	v.SetEnvPrefix("JSPACK")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if configFile != "" {
		v.SetConfigFile(configFile)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("config: reading %s: %w", dir, err)
		}
	}

	var f File
	if err := v.Unmarshal(&f); err != nil {
		return nil, fmt.Errorf("config: decoding: %w", err)
	}
	if f.RootDir == "" {
		f.RootDir = "."
	}
	if f.OutDir == "" {
		f.OutDir = "dist"
	}
	return &f, nil
}

// ResolveProcessor resolves a ProcessorRule's "use" plugin reference to a
// pipeline.Processor; the registry is supplied by the caller so config
// stays independent of which plugins are compiled in.
type ResolveProcessor func(use string) (pipeline.Processor, error)

// CompileChain builds a pipeline.Chain from an ordered rule list: each
// rule becomes one Node, and both NextTrue and NextFalse point at the
// next rule's Node, so a rule that doesn't Break falls through to the
// next one and a non-match simply skips that rule rather than
// abandoning the chain.
func CompileChain(rules []ProcessorRule, resolve ResolveProcessor) (*pipeline.Chain, error) {
	if len(rules) == 0 {
		return &pipeline.Chain{}, nil
	}
	nodes := make([]*pipeline.Node, len(rules))
	for i, r := range rules {
		n := &pipeline.Node{
			Name:     r.Name,
			OutPath:  r.OutPath,
			Break:    r.Break,
			Parallel: r.Parallel,
			Options:  r.Options,
			Ref:      r.Use,
		}
		n.Match = buildMatcher(r.Match, r.Exclude)
		n.Read = readModeOf(r.Read)
		if resolve != nil && r.Use != "" {
			if proc, err := resolve(r.Use); err == nil {
				n.Processor = proc
			}
		}
		nodes[i] = n
	}
	for i := 0; i < len(nodes)-1; i++ {
		nodes[i].NextTrue = nodes[i+1]
		nodes[i].NextFalse = nodes[i+1]
	}
	return &pipeline.Chain{Root: nodes[0]}, nil
}

func buildMatcher(include, exclude []string) match.Matcher {
	inc := match.CompileGlobs(include)
	if len(exclude) == 0 {
		return inc
	}
	return match.All{inc, match.Not{Matcher: match.CompileGlobs(exclude)}}
}

func readModeOf(s string) pipeline.ReadMode {
	switch s {
	case "text":
		return pipeline.ReadText
	case "binary":
		return pipeline.ReadBinary
	default:
		return pipeline.ReadNone
	}
}

// CompileExternalRegistry builds an external.Registry from the config's
// bundler.externalModules list.
func CompileExternalRegistry(rules []ExternalRule) *external.Registry {
	compiled := make([]external.Rule, 0, len(rules))
	for _, r := range rules {
		compiled = append(compiled, external.Rule{
			Match:   buildMatcher(r.Match, nil),
			Exclude: match.CompileGlobs(r.Exclude),
			Type:    match.Glob{Pattern: r.Type},
			MinSize: r.MinSize,
			OutPath: r.OutPath,
		})
	}
	return external.NewRegistry(compiled)
}

// CompileSourceMapMode interprets tri-state
// `sourceMap` option: false | true | a detailed record with an inline
// flag and a sources policy name.
func CompileSourceMapMode(raw any) driver.SourceMapMode {
	switch v := raw.(type) {
	case bool:
		return driver.SourceMapMode{Enabled: v}
	case map[string]any:
		mode := driver.SourceMapMode{Enabled: true}
		if inline, ok := v["inline"].(bool); ok {
			mode.Inline = inline
		}
		if policy, ok := v["sourcesPolicy"].(string); ok {
			mode.Policy = sourcesPolicyOf(policy)
		}
		return mode
	default:
		return driver.SourceMapMode{}
	}
}

func sourcesPolicyOf(s string) sourcemap.SourcesPolicy {
	switch s {
	case "relativeToRoot":
		return sourcemap.SourcesRelativeToRoot
	case "fileURL":
		return sourcemap.SourcesFileURL
	default:
		return sourcemap.SourcesRelativeToMap
	}
}

// Compile assembles a driver.Config from a loaded File plus the
// runtime-registered pieces (bundler registry, plugin registry,
// plugin-resolving callback for processor rules) that cannot be named
// from the config file alone.
func Compile(f *File, bundlers *bundle.Registry, plugins *plugin.Registry, resolve ResolveProcessor) (*driver.Config, error) {
	compilers, err := CompileChain(f.Compilers, resolve)
	if err != nil {
		return nil, err
	}
	optimizers, err := CompileChain(f.Optimizers, resolve)
	if err != nil {
		return nil, err
	}

	rootAbs, err := filepath.Abs(f.RootDir)
	if err != nil {
		return nil, fmt.Errorf("config: resolving rootDir: %w", err)
	}
	outAbs, err := filepath.Abs(f.OutDir)
	if err != nil {
		return nil, fmt.Errorf("config: resolving outDir: %w", err)
	}

	return &driver.Config{
		RootDir:      rootAbs,
		OutDir:       outAbs,
		Match:        buildMatcher(f.Match, nil),
		Exclude:      match.CompileGlobs(f.Exclude),
		Compilers:    compilers,
		Optimizers:   optimizers,
		Bundlers:     bundlers,
		Plugins:      plugins,
		External:     CompileExternalRegistry(f.ExternalModules),
		Optimize:     f.Optimize,
		SourceMap:    CompileSourceMapMode(f.SourceMap),
		Clean:        f.Clean,
		Bail:         f.Bail,
		NoPathCheck:  f.NoPathCheck,
		NoWrite:      f.NoWrite,
		ParallelSize: f.Parallel,
		Encoding:     f.Encoding,
		MimeTypes:    f.MimeTypes,
		Version:      f.Version,
	}, nil
}
