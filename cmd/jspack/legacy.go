package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pleasebuild/jspack/internal/errs"
	"github.com/pleasebuild/jspack/internal/npm"
	plzbundle "github.com/pleasebuild/jspack/tools/please_js/bundle"
	"github.com/pleasebuild/jspack/tools/please_js/transpile"
)

// The three commands below are the pre-Driver esbuild-only entry points
// please_js/main.go exposed (bundle, transpile, resolve). They stay
// available as standalone single-purpose commands for Please BUILD
// rules that invoke jspack directly against one entry point or lockfile
// rather than running a full build of the module graph.

var bundleCmd = &cobra.Command{
	Use:   "bundle",
	Short: "Bundle a single JS/TS entry point with esbuild (legacy, non-graph)",
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		entry, _ := flags.GetString("entry")
		out, _ := flags.GetString("out")
		moduleConfig, _ := flags.GetString("module-config")
		format, _ := flags.GetString("format")
		platform, _ := flags.GetString("platform")
		target, _ := flags.GetString("target")
		external, _ := flags.GetStringSlice("external")
		mode, _ := flags.GetString("mode")
		defines, _ := flags.GetStringSlice("define")
		tailwindBin, _ := flags.GetString("tailwind-bin")
		tailwindConfig, _ := flags.GetString("tailwind-config")

		err := plzbundle.Run(plzbundle.Args{
			Entry:          entry,
			Out:            out,
			ModuleConfig:   moduleConfig,
			Format:         format,
			Platform:       platform,
			Target:         target,
			Mode:           mode,
			External:       external,
			Defines:        defines,
			TailwindBin:    tailwindBin,
			TailwindConfig: tailwindConfig,
		})
		if err != nil {
			return errs.NewBuildError("bundle failed", err.Error(), "", err)
		}
		return nil
	},
}

var transpileCmd = &cobra.Command{
	Use:   "transpile",
	Short: "Transpile source files individually without bundling (legacy, non-graph)",
	RunE: func(cmd *cobra.Command, args []string) error {
		outDir, _ := cmd.Flags().GetString("out-dir")
		err := transpile.Run(transpile.Args{OutDir: outDir, Srcs: args})
		if err != nil {
			return errs.NewBuildError("transpile failed", err.Error(), "", err)
		}
		return nil
	},
}

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Generate Please BUILD files from a package-lock.json",
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		lockfile, _ := flags.GetString("lockfile")
		out, _ := flags.GetString("out")
		noDev, _ := flags.GetBool("no-dev")
		subinclude, _ := flags.GetString("subinclude")
		workspace, _ := flags.GetString("workspace")

		lockfiles := []string{lockfile}
		if workspace != "" {
			found, err := npm.DiscoverLockfiles(workspace)
			if err != nil {
				return errs.NewBuildError("resolve failed", err.Error(), "", err)
			}
			lockfiles = found
		}

		var totalPkgs, totalConflicts int
		for _, lf := range lockfiles {
			result, err := npm.Resolve(npm.Options{
				Lockfile:       lf,
				Out:            out,
				NoDev:          noDev,
				SubincludePath: subinclude,
			})
			if err != nil {
				return errs.NewBuildError("resolve failed", fmt.Sprintf("%s: %v", lf, err), "check package-lock.json is lockfileVersion 2 or 3", err)
			}
			totalPkgs += result.Packages
			totalConflicts += result.ConflictTargets
		}
		cmd.Printf("generated %d package(s), %d conflict target(s) from %d lockfile(s)\n", totalPkgs, totalConflicts, len(lockfiles))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(bundleCmd, transpileCmd, resolveCmd)

	bundleCmd.Flags().String("entry", "", "entry point file")
	bundleCmd.Flags().String("out", "", "output file")
	bundleCmd.Flags().String("module-config", "", "moduleconfig file mapping module names to paths")
	bundleCmd.Flags().String("format", "esm", "output format: esm, cjs, iife")
	bundleCmd.Flags().String("platform", "browser", "target platform: browser, node")
	bundleCmd.Flags().String("target", "esnext", "esbuild target")
	bundleCmd.Flags().StringSlice("external", nil, "packages to mark external")
	bundleCmd.Flags().String("mode", "production", "build mode: production or development, drives .env selection and import.meta.env defines")
	bundleCmd.Flags().StringSlice("define", nil, "additional key=value defines, take priority over auto-injected env defines")
	bundleCmd.Flags().String("tailwind-bin", "", "path to the tailwindcss CLI binary; enables @tailwind directive processing when set")
	bundleCmd.Flags().String("tailwind-config", "", "tailwind config path passed to the tailwindcss CLI")
	bundleCmd.MarkFlagRequired("entry")
	bundleCmd.MarkFlagRequired("out")

	transpileCmd.Flags().String("out-dir", "", "output directory")
	transpileCmd.MarkFlagRequired("out-dir")

	resolveCmd.Flags().String("lockfile", "package-lock.json", "path to package-lock.json")
	resolveCmd.Flags().String("out", "npm_modules", "output directory for generated BUILD files")
	resolveCmd.Flags().Bool("no-dev", false, "exclude devDependencies")
	resolveCmd.Flags().String("subinclude", "//build_defs:npm.build_defs", "subinclude path for the generated npm_module macro")
	resolveCmd.Flags().String("workspace", "", "pnpm-workspace.yaml path; when set, resolves every matched package's lockfile instead of --lockfile")
}
