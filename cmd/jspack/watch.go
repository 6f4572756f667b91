package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pleasebuild/jspack/internal/driver"
	"github.com/pleasebuild/jspack/internal/errs"
	"github.com/pleasebuild/jspack/internal/match"
	"github.com/pleasebuild/jspack/internal/module"
	"github.com/pleasebuild/jspack/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Build once, then rebuild incrementally on file changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		rootDir := viper.GetString("rootDir")
		cfg, _, err := loadConfig(rootDir)
		if err != nil {
			return err
		}
		if err := checkRootDir(cfg); err != nil {
			return errs.NewConfigError("invalid rootDir", err.Error(), "pass --root-dir or set rootDir in jspack.yaml", err)
		}

		log := newLogger()
		defer log.Sync()

		d, bc, err := runInitialBuild(cfg, log)
		if err != nil {
			return err
		}
		reportBuild(bc, "Initial build")

		return runWatchLoop(d, cfg, log, nil)
	},
}

// runInitialBuild runs the ModeFull build every watch/serve invocation
// starts from: the watcher only ever handles the incremental deltas
// after an initial full pass populates the module table and watch
// index.
func runInitialBuild(cfg *driver.Config, log *zap.Logger) (*driver.Driver, *driver.BuildContext, error) {
	d := driver.New(cfg, outputFs(cfg), log, watch.NewIndex())
	bc, err := d.Build(context.Background(), driver.ModeFull, nil)
	if err != nil {
		return nil, nil, errs.NewBuildError("initial build failed", err.Error(), "", err)
	}
	return d, bc, nil
}

func reportBuild(bc *driver.BuildContext, label string) {
	pterm.Success.Printf("%s: %d files in %s\n", label, len(bc.Files()), bc.Elapsed().Round(timeRoundUnit))
	if bc.ErrorCount() > 0 {
		pterm.Warning.Printf("%d error(s), %d warning(s)\n", bc.ErrorCount(), bc.WarningCount())
	}
}

// onRebuild is an optional hook invoked after each incremental rebuild
// with the fresh BuildContext and the paths that were (re)built, used by
// `serve` to push a live reload notification and refresh /metrics
// without watch having to know about devserver.
type onRebuildFunc func(bc *driver.BuildContext, paths []string)

// runWatchLoop watches cfg.RootDir and feeds every debounced change
// through the reverse-dependency index to compute the minimal dirty
// entry set, then runs a ModeIncremental build for it. Blocks until
// SIGINT/SIGTERM.
func runWatchLoop(d *driver.Driver, cfg *driver.Config, log *zap.Logger, onRebuild onRebuildFunc) error {
	ignore := match.NewIgnoreMatcher(filepath.Join(cfg.RootDir, ".jspackignore"))
	w, err := watch.New(cfg.RootDir, ignore, 100*time.Millisecond)
	if err != nil {
		return errs.NewWatchError("failed to start filesystem watcher", err.Error(), "", err)
	}
	defer w.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	pterm.Info.Println("Watching for changes...")
	for {
		select {
		case ev, ok := <-w.Events():
			if !ok {
				return nil
			}
			dirty := dirtyEntriesFor(d, ev)
			if len(dirty) == 0 {
				continue
			}
			for _, p := range dirty {
				if m, ok := d.Table().Lookup(p); ok {
					m.Reset(module.Initial)
				}
			}
			bc, err := d.Build(context.Background(), driver.ModeIncremental, dirty)
			if err != nil {
				log.Warn("incremental build failed", zap.Error(err))
				pterm.Error.Printf("Rebuild failed: %v\n", err)
				continue
			}
			reportBuild(bc, "Rebuilt")
			if onRebuild != nil {
				onRebuild(bc, bc.Files())
			}
		case err, ok := <-w.Errors():
			if !ok {
				return nil
			}
			log.Warn("watcher error", zap.Error(err))
		case <-sigCh:
			pterm.Info.Println("Shutting down watcher...")
			return nil
		}
	}
}

// dirtyEntriesFor resolves one debounced filesystem event to the set of
// entry-module paths that must be reloaded: every depender the reverse
// index knows about, plus the changed path itself when it is a tracked
// module that still exists.
func dirtyEntriesFor(d *driver.Driver, ev watch.Event) []string {
	deleted := ev.Kind == watch.Deleted
	dependers := d.WatchIndex().Dependers(ev.Path, deleted)

	seen := make(map[string]bool, len(dependers)+1)
	var out []string
	add := func(path string) {
		if !seen[path] {
			seen[path] = true
			out = append(out, path)
		}
	}
	for _, m := range dependers {
		add(m.OriginalPath)
	}
	if _, ok := d.Table().Lookup(ev.Path); ok && !deleted {
		add(ev.Path)
	}
	if deleted {
		d.Table().Delete(ev.Path)
	}
	return out
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
