// Package plugin implements the lazy processor/bundler plugin registry.
// Runtime package installation stays out of the core; an install hook is
// exposed for the CLI layer to shell out to the configured package
// manager. A logical plugin name resolves to either a compiled-in
// constructor or, if missing, a single-flight install attempt through a
// caller-supplied InstallFunc; a package that failed to install once is
// never retried within the same build.
package plugin

import (
	"context"
	"fmt"
	"sync"

	"github.com/pleasebuild/jspack/internal/pipeline"
)

// Constructor builds a Processor from a plugin's user-supplied options,
// mirroring a plugin module's default export: a constructor taking
// (options, builder).
type Constructor func(options map[string]any, b pipeline.Builder) (pipeline.Processor, error)

// InstallFunc attempts to install a missing package (e.g. by shelling out
// to the configured installCommand template) and returns once it's
// available on disk, or an error if the install failed.
type InstallFunc func(ctx context.Context, pkg string) error

// Registry resolves plugin references to Processors, serializing install
// attempts per package into a single-flight queue and remembering
// failures so a package that previously failed is not retried.
type Registry struct {
	mu      sync.Mutex
	builtin map[string]Constructor
	install InstallFunc

	inflight map[string]*sync.WaitGroup
	failed   map[string]error
}

// New creates a Registry with no built-ins and no install hook (lookups
// for anything not later registered with Register will fail outright).
func New(install InstallFunc) *Registry {
	return &Registry{
		builtin:  make(map[string]Constructor),
		install:  install,
		inflight: make(map[string]*sync.WaitGroup),
		failed:   make(map[string]error),
	}
}

// Register binds a compiled-in Constructor to a logical plugin name, used
// for processors/bundlers shipped with the binary (esbuild compiler,
// optimizer, etc.) that never need the install path.
func (r *Registry) Register(name string, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builtin[name] = ctor
}

// Resolve returns the Processor for ref, installing it on first use if
// it's not a built-in and an InstallFunc was configured.
func (r *Registry) Resolve(ctx context.Context, ref string, options map[string]any, b pipeline.Builder) (pipeline.Processor, error) {
	r.mu.Lock()
	if ctor, ok := r.builtin[ref]; ok {
		r.mu.Unlock()
		return ctor(options, b)
	}
	if err, failed := r.failed[ref]; failed {
		r.mu.Unlock()
		return nil, err
	}

	if wg, inflight := r.inflight[ref]; inflight {
		r.mu.Unlock()
		wg.Wait()
		return r.Resolve(ctx, ref, options, b)
	}

	if r.install == nil {
		err := fmt.Errorf("plugin: %q not found and no install hook configured", ref)
		r.failed[ref] = err
		r.mu.Unlock()
		return nil, err
	}

	wg := &sync.WaitGroup{}
	wg.Add(1)
	r.inflight[ref] = wg
	r.mu.Unlock()

	err := r.install(ctx, ref)

	r.mu.Lock()
	delete(r.inflight, ref)
	ctor, registered := r.builtin[ref]
	switch {
	case err != nil:
		r.failed[ref] = fmt.Errorf("plugin: installing %q: %w", ref, err)
	case !registered:
		// Installed successfully but nothing called Register for this
		// name afterward; without that there is no way to construct a
		// Processor, so remember this the same as an install failure
		// rather than re-running the installer on every subsequent file.
		r.failed[ref] = fmt.Errorf("plugin: %q installed but no constructor registered for it", ref)
	}
	failErr := r.failed[ref]
	r.mu.Unlock()
	wg.Done()

	if failErr != nil {
		return nil, failErr
	}
	return ctor(options, b)
}
