package driver

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pleasebuild/jspack/internal/bundle"
	"github.com/pleasebuild/jspack/internal/deferred"
	"github.com/pleasebuild/jspack/internal/module"
	"github.com/pleasebuild/jspack/internal/pipeline"
	"github.com/pleasebuild/jspack/internal/sourcemap"
	"github.com/pleasebuild/jspack/internal/watch"
)

// emittedEntry records one claim on the emittedFiles index, used to
// detect and resolve output-path collisions between two modules.
type emittedEntry struct {
	module       *module.Module
	originalFile string
}

// Driver owns every core component for one build lifetime and implements
// both pipeline.Builder and bundle.Builder so the processor chain and
// bundlers can call back into it for file reads, plugin resolution, and
// subfile creation.
type Driver struct {
	cfg   *Config
	fs    afero.Fs
	log   *zap.Logger
	table *module.Table

	watchIndex *watch.Index

	barrier *deferred.Barrier

	buildHash uint64

	emitMu       sync.Mutex
	emittedFiles map[string]*emittedEntry
	emitStarted  map[*module.Module]chan struct{}

	bc       *BuildContext
	pathOnly bool
}

// New creates a Driver. fs is the output filesystem (afero.NewOsFs() in
// production, afero.NewMemMapFs() for noWrite/pathOnly modes and tests,
// the same seam please_js's own dry-run flags approximate with a bool —
// generalized here the way kraklabs-cie abstracts its storage layer).
func New(cfg *Config, fs afero.Fs, log *zap.Logger, watchIndex *watch.Index) *Driver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Driver{
		cfg:        cfg,
		fs:         fs,
		log:        log,
		table:      module.NewTable(),
		watchIndex: watchIndex,
	}
}

// Table exposes the module table for watcher-driven invalidation.
func (d *Driver) Table() *module.Table { return d.table }

// WatchIndex exposes the reverse-dependency index so the CLI's watch loop
// can resolve a changed filesystem path to the set of entry modules that
// need reloading.
func (d *Driver) WatchIndex() *watch.Index { return d.watchIndex }

// --- pipeline.Builder / bundle.Builder ---

func (d *Driver) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

func (d *Driver) BuildHash() uint64 { return d.buildHash }

func (d *Driver) Version() string {
	if d.cfg != nil && d.cfg.Version != "" {
		return d.cfg.Version
	}
	return "dev"
}

func (d *Driver) ResolvePlugin(ref string) (pipeline.Processor, error) {
	if d.cfg == nil || d.cfg.Plugins == nil {
		return nil, fmt.Errorf("driver: no plugin registry configured")
	}
	return d.cfg.Plugins.Resolve(context.Background(), ref, nil, d)
}

func (d *Driver) GetModule(path string) *module.Module { return d.table.GetModule(path) }

// LoadFile fans out a recursive dependency load. It brackets the call with
// the active build's deferred barrier (Reject before spawning, Resolve
// once the goroutine returns) so loadAll's barrier.Wait() does not release
// until every transitively-reached dependency has finished loading, not
// just the entry-list loadFile calls it awaits directly.
func (d *Driver) LoadFile(m *module.Module) {
	b := d.barrier
	if b != nil {
		b.Reject()
	}
	go func() {
		if b != nil {
			defer b.Resolve()
		}
		if err := d.loadFile(context.Background(), m); err != nil {
			if b != nil {
				b.Fail(err)
			}
			d.log.Warn("load failed", zap.String("path", m.OriginalPath), zap.Error(err))
		}
	}()
}

func (d *Driver) CreateSubfile(parent *module.Module, path string, content []byte, index int, sm *module.SourceMap) *module.Module {
	return d.table.CreateSubfile(parent, path, content, index, sm)
}

// --- build phases ---

// Build runs the full phase sequence for mode against entries. For
// ModeFull, entries is ignored and the tree is scanned;
// for ModeIncremental/ModePathOnly, entries must be supplied by the
// caller (the watcher, or the CLI's initial dirty set).
func (d *Driver) Build(ctx context.Context, mode BuildMode, entries []string) (*BuildContext, error) {
	d.buildHash = freshBuildHash()
	d.table.NewBuild(d.buildHash)
	d.emitMu.Lock()
	d.emittedFiles = make(map[string]*emittedEntry)
	d.emitStarted = make(map[*module.Module]chan struct{})
	d.emitMu.Unlock()

	d.bc = newBuildContext(mode, d.buildHash)
	d.pathOnly = mode == ModePathOnly

	if mode == ModeFull {
		if d.cfg.Clean && !d.cfg.NoWrite {
			if err := d.cleanOutDir(); err != nil {
				return d.bc, err
			}
		}
		scanned, err := d.scan()
		if err != nil {
			return d.bc, err
		}
		entries = scanned
	}

	d.bc.setTotalTasks(int64(len(entries))*2 + 2)
	d.bc.taskDone() // buildStart/clean accounted as task 1

	entryModules := make([]*module.Module, 0, len(entries))
	for _, e := range entries {
		m := d.table.GetModule(e)
		entryModules = append(entryModules, m)
	}

	if err := d.loadAll(ctx, entryModules); err != nil {
		if d.cfg.Bail {
			return d.bc, err
		}
	}
	if d.bc.Aborted() {
		return d.bc, nil
	}

	if d.cfg.Bundlers != nil {
		for _, b := range d.cfg.Bundlers.All() {
			if combiner, ok := b.(bundle.Combiner); ok {
				_, _ = combiner.Bundle(ctx, entryModules, d)
			}
		}
	}
	d.bc.taskDone()

	for _, m := range entryModules {
		if err := d.emitFile(ctx, m); err != nil && d.cfg.Bail {
			return d.bc, err
		}
	}

	return d.bc, nil
}

// loadAll fans out loadFile for every entry and awaits the deferred
// barrier draining completely before returning. The barrier is shared with
// every recursive Driver.LoadFile call made while loading these entries
// (see LoadFile), so barrier.Wait() only releases once the full,
// transitively-reachable dependency graph has finished loading — not just
// the entries themselves.
func (d *Driver) loadAll(ctx context.Context, entries []*module.Module) error {
	barrier := deferred.New()
	d.barrier = barrier
	defer func() { d.barrier = nil }()

	g, gctx := errgroup.WithContext(ctx)
	for _, m := range entries {
		m := m
		barrier.Reject()
		g.Go(func() error {
			defer barrier.Resolve()
			err := d.loadFile(gctx, m)
			if err != nil {
				barrier.Fail(err)
			}
			return err
		})
	}
	loadErr := g.Wait()
	barrierErr := barrier.Wait()
	if loadErr != nil {
		return loadErr
	}
	return barrierErr
}

func (d *Driver) cleanOutDir() error {
	if d.cfg.OutDir == "" {
		return nil
	}
	if err := d.fs.RemoveAll(d.cfg.OutDir); err != nil {
		return err
	}
	return d.fs.MkdirAll(d.cfg.OutDir, 0o755)
}

func freshBuildHash() uint64 {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return binary.LittleEndian.Uint64(b[:])
}

// scan walks rootDir honoring match/exclude, pruning excluded directories
// outright, and returns the matched paths sorted.
func (d *Driver) scan() ([]string, error) {
	var out []string
	root := d.cfg.RootDir
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if d.cfg.Exclude != nil && d.cfg.Exclude.Match(path) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			return nil
		}
		if d.cfg.Match != nil && !d.cfg.Match.Match(path) {
			return nil
		}
		out = append(out, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

// mimeAndExt is a small shared helper used by both load and emit to keep
// Module.Type in sync with its current extension.
func (d *Driver) stampMime(m *module.Module) {
	m.Type = d.cfg.mimeFor(m.Ext())
}

func (d *Driver) composeSourceMap(m *module.Module, content []byte) ([]byte, *sourcemapSibling, error) {
	if !d.cfg.SourceMap.Enabled {
		return content, nil, nil
	}
	sm := m.SourceMapData()
	if sm == nil {
		return content, nil, nil
	}
	res, err := sourcemap.Compose(m, sm, content, m.Type, sourcemap.Options{
		Inline:        d.cfg.SourceMap.Inline,
		SourcesPolicy: d.cfg.SourceMap.Policy,
	})
	if err != nil {
		return nil, nil, err
	}
	var sib *sourcemapSibling
	if res.SiblingPath != "" {
		sib = &sourcemapSibling{path: res.SiblingPath, bytes: res.SiblingBytes}
	}
	return res.Content, sib, nil
}

type sourcemapSibling struct {
	path  string
	bytes []byte
}

// applyExternalPolicy runs the external-module extraction policy for a
// non-entry module reached only via dependency resolution.
func (d *Driver) applyExternalPolicy(m *module.Module) error {
	if d.cfg.External == nil {
		m.NoWrite = true
		return nil
	}
	return d.cfg.External.Apply(m)
}

// finalOutPath rebases an absolute path that still lives under RootDir
// onto the mirrored location under OutDir (spec section 1: the driver
// "writes a mirrored output tree"). A path a processor's outPath
// template or a bundler already rewrote to live under OutDir, or to
// somewhere outside RootDir entirely (e.g. a templated flat/hashed
// name), is left alone; outsideOutDir's caller-side check still catches
// anything that ends up escaping OutDir.
func (d *Driver) finalOutPath(path string) string {
	if d.cfg.OutDir == "" {
		return path
	}
	if filepath.IsAbs(path) && d.cfg.RootDir != "" {
		if rel, err := filepath.Rel(d.cfg.RootDir, path); err == nil &&
			rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return filepath.Join(d.cfg.OutDir, rel)
		}
	}
	if !filepath.IsAbs(path) {
		return filepath.Join(d.cfg.OutDir, path)
	}
	return path
}

// outsideOutDir reports whether path escapes cfg.OutDir, honoring
// NoPathCheck.
func (d *Driver) outsideOutDir(path string) bool {
	if d.cfg.NoPathCheck || d.cfg.OutDir == "" {
		return false
	}
	rel, err := filepath.Rel(d.cfg.OutDir, path)
	if err != nil {
		return true
	}
	return rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
