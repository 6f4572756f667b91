// jspack builds front-end asset graphs the way please_js's esbuild
// wrapper commands did, but through the driver-owned two-phase
// load/emit pipeline instead of shelling out to esbuild.Build directly.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pleasebuild/jspack/internal/errs"
)

var rootCmd = &cobra.Command{
	Use:   "jspack",
	Short: "Build and serve front-end asset graphs",
	Long: `jspack walks a module dependency graph rooted at rootDir, loads and
bundles JS/TS, CSS and HTML assets concurrently, and writes a mirrored
output tree to outDir. It supports incremental rebuilds via a filesystem
watcher and a local development server with live reload.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		errs.Fatal(asBuildError(err), viper.GetBool("json"))
	}
}

// asBuildError returns err unchanged: an *errs.BuildError carries its own
// exit code, and errs.Fatal reports anything else (flag parsing,
// cobra-internal errors) as an internal error with errs.ExitInternal.
func asBuildError(err error) error {
	return err
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file (default: <rootDir>/jspack.yaml)")
	rootCmd.PersistentFlags().String("root-dir", ".", "project root directory")
	rootCmd.PersistentFlags().String("out-dir", "dist", "output directory")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose logging output")
	rootCmd.PersistentFlags().Bool("json", false, "emit fatal errors as JSON")
	rootCmd.PersistentFlags().Bool("no-color", false, "disable colored output")

	viper.BindPFlag("configFile", rootCmd.PersistentFlags().Lookup("config"))
	viper.BindPFlag("rootDir", rootCmd.PersistentFlags().Lookup("root-dir"))
	viper.BindPFlag("outDir", rootCmd.PersistentFlags().Lookup("out-dir"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	viper.BindPFlag("noColor", rootCmd.PersistentFlags().Lookup("no-color"))

	cobra.OnInitialize(initLogging)
}

func initLogging() {
	if viper.GetBool("noColor") || os.Getenv("NO_COLOR") != "" {
		color.NoColor = true
		pterm.DisableColor()
	}
	if viper.GetBool("verbose") {
		pterm.EnableDebugMessages()
	}
}

// newLogger builds the zap.Logger every driver.New call is handed,
// matching please_js's reliance on structured logging for build
// diagnostics rather than print statements scattered through the
// pipeline.
func newLogger() *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.DisableStacktrace = true
	if !viper.GetBool("verbose") {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	log, err := cfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "jspack: failed to initialize logger: %v\n", err)
		return zap.NewNop()
	}
	return log
}

func main() {
	Execute()
}
