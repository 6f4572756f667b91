package main

import (
	"context"
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pleasebuild/jspack/internal/driver"
	"github.com/pleasebuild/jspack/internal/errs"
	"github.com/pleasebuild/jspack/internal/watch"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Run a full build of the module graph",
	RunE: func(cmd *cobra.Command, args []string) error {
		rootDir := viper.GetString("rootDir")
		cfg, _, err := loadConfig(rootDir)
		if err != nil {
			return err
		}
		if err := checkRootDir(cfg); err != nil {
			return errs.NewConfigError("invalid rootDir", err.Error(), "pass --root-dir or set rootDir in jspack.yaml", err)
		}
		applyBuildFlagOverrides(cmd, cfg)

		log := newLogger()
		defer log.Sync()

		d := driver.New(cfg, outputFs(cfg), log, watch.NewIndex())

		spinner, _ := pterm.DefaultSpinner.Start("Building...")
		bc, err := d.Build(context.Background(), driver.ModeFull, nil)
		if err != nil {
			spinner.Fail("Build failed")
			return errs.NewBuildError("build failed", err.Error(), "", err)
		}
		if bc.Aborted() {
			spinner.Fail("Build aborted")
			return errs.NewBuildError("build aborted", "a module's loader reported an abort", "", nil)
		}

		spinner.Success(fmt.Sprintf("Built %d files in %s", len(bc.Files()), bc.Elapsed().Round(timeRoundUnit)))
		if bc.ErrorCount() > 0 {
			pterm.Warning.Printf("%d error(s), %d warning(s)\n", bc.ErrorCount(), bc.WarningCount())
		}
		if cfg.Bail && bc.ErrorCount() > 0 {
			return errs.NewBuildError("build completed with errors", fmt.Sprintf("%d module(s) failed to load", bc.ErrorCount()), "", nil)
		}
		return nil
	},
}

// applyBuildFlagOverrides lets --clean/--bail/--no-write win over whatever
// jspack.yaml set, matching please_js/main.go's own flag-overrides-config
// precedence for its go-flags options.
func applyBuildFlagOverrides(cmd *cobra.Command, cfg *driver.Config) {
	if cmd.Flags().Changed("clean") {
		cfg.Clean, _ = cmd.Flags().GetBool("clean")
	}
	if cmd.Flags().Changed("bail") {
		cfg.Bail, _ = cmd.Flags().GetBool("bail")
	}
	if cmd.Flags().Changed("no-write") {
		cfg.NoWrite, _ = cmd.Flags().GetBool("no-write")
	}
}

const timeRoundUnit = 1_000_000 // round Elapsed() to millisecond precision

func init() {
	rootCmd.AddCommand(buildCmd)

	buildCmd.Flags().Bool("clean", false, "remove outDir before building")
	buildCmd.Flags().Bool("bail", false, "abort the build on the first module error")
	buildCmd.Flags().Bool("no-write", false, "build without writing output files (dry run)")
}
