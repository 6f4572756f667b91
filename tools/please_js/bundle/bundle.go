package bundle

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/pleasebuild/jspack/tools/please_js/common"
)

// Args holds the arguments for the bundle subcommand.
type Args struct {
	Entry        string
	Out          string
	ModuleConfig string
	Format       string
	Platform     string
	Target       string
	Mode         string // "development" or "production", drives MergeEnvDefines and .env selection
	External     []string
	Defines      []string // "key=value" pairs, take priority over auto-injected env defines
	TailwindBin  string   // optional; enables common.TailwindPlugin when set
	TailwindConfig string
}

// Run bundles a single JS/TS entry point using esbuild's whole-graph
// Bundle mode. Bare specifiers are resolved against the moduleconfig map
// via common.ModuleResolvePlugin rather than a node_modules symlink farm,
// so this path shares its resolution and env/define plumbing with the
// rest of the please_js-derived plugin set instead of duplicating it.
func Run(args Args) error {
	moduleMap, err := common.ParseModuleConfig(args.ModuleConfig)
	if err != nil {
		return fmt.Errorf("failed to parse moduleconfig: %w", err)
	}

	if outDir := filepath.Dir(args.Out); outDir != "" && outDir != "." {
		if err := os.MkdirAll(outDir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	mode := args.Mode
	if mode == "" {
		mode = "production"
	}
	defines := common.ParseDefines(args.Defines)
	if envDefines, err := common.LoadEnvFiles(filepath.Join(filepath.Dir(args.Entry), ".env"), mode, "PLZ_"); err != nil {
		return fmt.Errorf("failed to load .env files: %w", err)
	} else {
		for k, v := range envDefines {
			if _, ok := defines[k]; !ok {
				defines[k] = v
			}
		}
	}
	common.MergeEnvDefines(defines, mode)

	plugins := []api.Plugin{
		common.ModuleResolvePlugin(moduleMap, args.Platform),
		common.RawImportPlugin(),
	}
	if args.TailwindBin != "" {
		plugins = append(plugins, common.TailwindPlugin(args.TailwindBin, args.TailwindConfig))
	}

	result := api.Build(api.BuildOptions{
		EntryPoints: []string{args.Entry},
		Outfile:     args.Out,
		Bundle:      true,
		Write:       true,
		Format:      common.ParseFormat(args.Format),
		Platform:    common.ParsePlatform(args.Platform),
		Target:      api.ESNext,
		LogLevel:    api.LogLevelInfo,
		External:    args.External,
		Plugins:     plugins,
		Loader:      common.Loaders,
		Define:      defines,
		Sourcemap:   api.SourceMapLinked,
	})

	if len(result.Errors) > 0 {
		return fmt.Errorf("esbuild bundle failed with %d errors", len(result.Errors))
	}
	return nil
}
