// Package watch implements the reverse-dependency index and filesystem
// watcher. please_js's own dev server delegates watching entirely to
// esbuild's built-in watch mode, which only knows about files esbuild
// itself read; this build needs to invalidate modules across all three
// bundlers (JS, CSS, HTML) plus processor-only assets, so it watches the
// real filesystem with github.com/fsnotify/fsnotify and drives
// invalidation off the module graph instead.
package watch

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/pleasebuild/jspack/internal/match"
	"github.com/pleasebuild/jspack/internal/module"
)

// EdgeKind distinguishes the two reverse-dependency edge kinds.
type EdgeKind int

const (
	// Reload: the depending module must be re-loaded when the target
	// changes or is deleted.
	Reload EdgeKind = iota
	// ReloadOnDelete: only deletion of the target invalidates the
	// depender (mutual output-path watches).
	ReloadOnDelete
)

type edge struct {
	from *module.Module
	kind EdgeKind
}

// Index is the reverse-dependency index: for each path, the set of
// modules to invalidate if it changes.
type Index struct {
	mu    sync.Mutex
	edges map[string][]edge
}

func NewIndex() *Index {
	return &Index{edges: make(map[string][]edge)}
}

// Populate (re)populates the edges for depender from its current
// dependency list, done at the end of each load.
func (idx *Index) Populate(depender *module.Module) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.removeLocked(depender)
	for _, dep := range depender.Dependencies {
		if dep.ResolvedFile == nil {
			continue
		}
		kind := Reload
		if dep.Dynamic {
			kind = ReloadOnDelete
		}
		target := dep.ResolvedFile.OriginalPath
		idx.edges[target] = append(idx.edges[target], edge{from: depender, kind: kind})
	}
}

// AddMutualWatch records a ReloadOnDelete edge between two output paths
// unrelated to the dependency graph (e.g. an external-module collision
// watch, where deleting either file should invalidate the other).
func (idx *Index) AddMutualWatch(target, depender *module.Module) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.edges[target.OriginalPath] = append(idx.edges[target.OriginalPath], edge{from: depender, kind: ReloadOnDelete})
}

func (idx *Index) removeLocked(depender *module.Module) {
	for target, edges := range idx.edges {
		filtered := edges[:0]
		for _, e := range edges {
			if e.from != depender {
				filtered = append(filtered, e)
			}
		}
		if len(filtered) == 0 {
			delete(idx.edges, target)
		} else {
			idx.edges[target] = filtered
		}
	}
}

// Dependers returns the modules that should be invalidated when target
// changes (reload edges) or is deleted (reload + reloadOnDelete edges).
func (idx *Index) Dependers(target string, deleted bool) []*module.Module {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	var out []*module.Module
	for _, e := range idx.edges[target] {
		if e.kind == Reload || deleted {
			out = append(out, e.from)
		}
	}
	return out
}

// EventKind mirrors the three filesystem events a watched path can
// produce, which the driver maps onto module states.
type EventKind int

const (
	Created EventKind = iota
	Changed
	Deleted
)

// Event is a debounced, deduplicated filesystem change ready for the
// driver to act on.
type Event struct {
	Path string
	Kind EventKind
}

// Watcher wraps fsnotify with ignore-pattern filtering and debouncing.
type Watcher struct {
	fsw     *fsnotify.Watcher
	ignore  *match.IgnoreMatcher
	debounce time.Duration
	events  chan Event
	errors  chan error
	done    chan struct{}
}

// New creates a Watcher rooted at root, recursively adding every
// directory not matched by ignore.
func New(root string, ignore *match.IgnoreMatcher, debounce time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		fsw:      fsw,
		ignore:   ignore,
		debounce: debounce,
		events:   make(chan Event),
		errors:   make(chan error),
		done:     make(chan struct{}),
	}
	if err := w.addTree(root); err != nil {
		fsw.Close()
		return nil, err
	}
	go w.run()
	return w, nil
}

func (w *Watcher) addTree(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if w.ignore != nil && w.ignore.Match(path) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			return w.fsw.Add(path)
		}
		return nil
	})
}

// Events returns the channel of debounced, deduplicated events.
func (w *Watcher) Events() <-chan Event { return w.events }

// Errors returns the channel of watcher-level errors (fsnotify errors, not
// per-module load errors).
func (w *Watcher) Errors() <-chan error { return w.errors }

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}

// run debounces bursts of fsnotify events for the same path into a single
// Event, coalescing write+write into one Changed and create-then-remove
// into nothing.
func (w *Watcher) run() {
	pending := make(map[string]EventKind)
	var timer *time.Timer
	var timerC <-chan time.Time
	flush := func() {
		for path, kind := range pending {
			select {
			case w.events <- Event{Path: path, Kind: kind}:
			case <-w.done:
				return
			}
		}
		pending = make(map[string]EventKind)
	}
	for {
		select {
		case <-w.done:
			return
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			case <-w.done:
			}
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if w.ignore != nil && w.ignore.Match(ev.Name) {
				continue
			}
			switch {
			case ev.Op&fsnotify.Create != 0:
				pending[ev.Name] = Created
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					w.fsw.Add(ev.Name)
				}
			case ev.Op&fsnotify.Remove != 0, ev.Op&fsnotify.Rename != 0:
				if kind, ok := pending[ev.Name]; ok && kind == Created {
					delete(pending, ev.Name)
				} else {
					pending[ev.Name] = Deleted
				}
			case ev.Op&fsnotify.Write != 0:
				if _, exists := pending[ev.Name]; !exists {
					pending[ev.Name] = Changed
				}
			default:
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}
		case <-timerC:
			flush()
			timer = nil
			timerC = nil
		}
	}
}
