package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/pleasebuild/jspack/internal/bundle"
	"github.com/pleasebuild/jspack/internal/bundle/css"
	"github.com/pleasebuild/jspack/internal/bundle/html"
	"github.com/pleasebuild/jspack/internal/bundle/js"
	"github.com/pleasebuild/jspack/internal/config"
	"github.com/pleasebuild/jspack/internal/driver"
	"github.com/pleasebuild/jspack/internal/errs"
	"github.com/pleasebuild/jspack/internal/pipeline"
	"github.com/pleasebuild/jspack/internal/plugin"
)

// jsExtensions lists every extension the js.Bundler claims, mirroring
// please_js/common.Loaders' own JS/TS/JSX table.
var jsExtensions = []string{".js", ".mjs", ".cjs", ".jsx", ".ts", ".tsx"}

// defaultBundlers registers the three built-in bundlers against the
// extensions they own. A config's bundler.disabled list can later call
// Register(ext, nil) to turn one off.
func defaultBundlers(disabled []string) *bundle.Registry {
	reg := bundle.NewRegistry()
	jsBundler := js.New()
	for _, ext := range jsExtensions {
		reg.Register(ext, jsBundler)
	}
	reg.Register(".css", css.New())
	reg.Register(".html", html.New())

	for _, ext := range disabled {
		reg.Register(ext, nil)
	}
	return reg
}

// bootstrapBuilder satisfies pipeline.Builder just well enough to resolve
// processor-chain plugin references at config-compile time, before a
// Driver (the real Builder every loaded module sees) exists. Only
// ResolvePlugin does real work; the rest are the same fallbacks the
// compiled-in processors never call during construction.
type bootstrapBuilder struct {
	plugins *plugin.Registry
}

func (b bootstrapBuilder) ReadFile(path string) ([]byte, error) { return os.ReadFile(path) }
func (b bootstrapBuilder) BuildHash() uint64                    { return 0 }
func (b bootstrapBuilder) Version() string                      { return version }
func (b bootstrapBuilder) ResolvePlugin(ref string) (pipeline.Processor, error) {
	return b.plugins.Resolve(context.Background(), ref, nil, b)
}

// loadConfig reads jspack.yaml/jspack.json from rootDir (or the
// explicit --config path) and compiles it into a driver.Config, wiring
// the default bundler registry and a plugin registry whose install hook
// shells out to the configured installCommand template.
func loadConfig(rootDir string) (*driver.Config, *plugin.Registry, error) {
	f, err := config.Load(rootDir, viper.GetString("configFile"))
	if err != nil {
		return nil, nil, errs.NewConfigError("failed to load configuration", err.Error(),
			"check jspack.yaml/jspack.json for syntax errors", err)
	}
	if rootDir != "" && rootDir != "." {
		f.RootDir = rootDir
	}
	if outDir := viper.GetString("outDir"); outDir != "" && outDir != "dist" {
		f.OutDir = outDir
	}

	plugins := plugin.New(plugin.CommandInstaller(f.InstallCommand))
	bundlers := defaultBundlers(f.DisabledBundlers)
	bootstrap := bootstrapBuilder{plugins: plugins}

	resolve := func(use string) (pipeline.Processor, error) {
		return bootstrap.ResolvePlugin(use)
	}

	cfg, err := config.Compile(f, bundlers, plugins, resolve)
	if err != nil {
		return nil, nil, errs.NewConfigError("failed to compile configuration", err.Error(), "", err)
	}
	return cfg, plugins, nil
}

// outputFs picks the afero filesystem Driver writes through: a real OS
// filesystem for normal builds, or an in-memory one for --no-write dry
// runs, the same seam driver.New's own doc comment describes.
func outputFs(cfg *driver.Config) afero.Fs {
	if cfg.NoWrite {
		return afero.NewMemMapFs()
	}
	return afero.NewOsFs()
}

func checkRootDir(cfg *driver.Config) error {
	if cfg.RootDir == "" {
		return fmt.Errorf("jspack: rootDir is empty")
	}
	return nil
}
