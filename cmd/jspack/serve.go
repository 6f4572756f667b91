package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pleasebuild/jspack/internal/devserver"
	"github.com/pleasebuild/jspack/internal/driver"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Build, watch, and serve the output tree with live reload",
	Long: `serve runs an initial build, starts the filesystem watcher, and serves
outDir over HTTP with WebSocket-based live reload. Pass --esm-dev to
serve outDir as unbundled native ES modules instead, transforming any
.ts/.tsx/.jsx file found there on each request; source files outside
outDir are not served.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rootDir := viper.GetString("rootDir")
		cfg, _, err := loadConfig(rootDir)
		if err != nil {
			return err
		}
		if err := checkRootDir(cfg); err != nil {
			return err
		}

		log := newLogger()
		defer log.Sync()

		d, bc, err := runInitialBuild(cfg, log)
		if err != nil {
			return err
		}
		reportBuild(bc, "Initial build")

		opts := devserver.Options{
			Host:      viper.GetString("serve.host"),
			Port:      viper.GetInt("serve.port"),
			OutDir:    cfg.OutDir,
			Proxies:   viper.GetStringSlice("serve.proxy"),
			MimeTypes: cfg.MimeTypes,
			EsmDev:    viper.GetBool("serve.esmDev"),
			Metrics:   viper.GetBool("serve.metrics"),
		}
		srv := devserver.New(opts, outputFs(cfg), log, bc)

		errCh := make(chan error, 1)
		go func() {
			pterm.Success.Printf("Serving %s on http://%s\n", cfg.OutDir, opts.Addr())
			errCh <- srv.ListenAndServe()
		}()

		go func() {
			_ = runWatchLoop(d, cfg, log, func(bc *driver.BuildContext, paths []string) {
				srv.SetBuildContext(bc)
				srv.NotifyBuilt(nil, nil, paths)
			})
			errCh <- nil
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		select {
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("dev server: %w", err)
			}
		case <-sigCh:
			pterm.Info.Println("Shutting down...")
		}
		return srv.Shutdown()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "127.0.0.1", "address to bind the dev server to")
	serveCmd.Flags().Int("port", 8000, "port to serve on")
	serveCmd.Flags().StringSlice("proxy", nil, "reverse proxy rules as prefix=target (repeatable)")
	serveCmd.Flags().Bool("esm-dev", false, "serve outDir as unbundled native ES modules, transforming TS/TSX/JSX on demand")
	serveCmd.Flags().Bool("metrics", false, "expose build metrics at /metrics")

	viper.BindPFlag("serve.host", serveCmd.Flags().Lookup("host"))
	viper.BindPFlag("serve.port", serveCmd.Flags().Lookup("port"))
	viper.BindPFlag("serve.proxy", serveCmd.Flags().Lookup("proxy"))
	viper.BindPFlag("serve.esmDev", serveCmd.Flags().Lookup("esm-dev"))
	viper.BindPFlag("serve.metrics", serveCmd.Flags().Lookup("metrics"))
}
