package driver

import (
	"context"
	"fmt"

	"github.com/pleasebuild/jspack/internal/bundle"
	"github.com/pleasebuild/jspack/internal/module"
)

// loadFile compiles the module, binds a bundler, parses it for
// dependencies, and recursively (without awaiting) loads every resolved
// dependency. loadAll brackets the top-level entries with the deferred
// barrier; recursive calls made from here go through Driver.LoadFile,
// which reject/resolves against that same barrier and spawns its own
// goroutine per dependency rather than awaiting it inline.
func (d *Driver) loadFile(ctx context.Context, m *module.Module) error {
	if m.GetState() != module.Initial {
		return nil
	}
	m.SetState(module.Loading)
	startState := module.Loading

	if err := d.populateData(m); err != nil {
		m.AddLog(module.LogEntry{Severity: module.SeverityError, Source: "load", Message: err.Error()})
		d.bc.recordError()
		d.bc.taskDone()
		return err
	}

	if d.cfg.Compilers != nil {
		if err := d.cfg.Compilers.Run(ctx, m, d); err != nil {
			d.bc.recordError()
			d.bc.taskDone()
			return err
		}
	}
	if m.GetState() != startState {
		return nil // aborted: another phase took over
	}

	d.stampMime(m)

	var bd bundle.Bundler
	var hasBundler bool
	if d.cfg.Bundlers != nil {
		bd, hasBundler = d.cfg.Bundlers.Lookup(m.Ext())
	}
	if hasBundler {
		m.Bundler = bd
		if parser, ok := bd.(bundle.Parser); ok {
			if err := parser.Parse(ctx, m, d); err != nil {
				m.AddLog(module.LogEntry{Severity: module.SeverityError, Source: "bundler.parse", Message: err.Error()})
				d.bc.recordError()
			}
		}
	}

	d.resolveDependencies(ctx, m, bd, hasBundler)

	m.SetState(module.Loaded)
	if d.watchIndex != nil {
		d.watchIndex.Populate(m)
	}
	d.bc.taskDone()
	return nil
}

func (d *Driver) populateData(m *module.Module) error {
	if m.HasData() {
		return nil
	}
	if d.pathOnly {
		m.SetData(module.Data{Kind: module.DataText, Text: ""}, nil, nil)
		return nil
	}
	content, err := d.ReadFile(m.Path)
	if err != nil {
		return err
	}
	m.SetData(module.Data{Kind: module.DataBinary, Bytes: content}, nil, nil)
	return nil
}

// resolveDependencies implements the per-dependency resolve/recurse loop:
// call the bundler's Resolve, log a "cannot find" warning or error when it
// comes back empty, and recursively loadFile the result without awaiting
// it.
func (d *Driver) resolveDependencies(ctx context.Context, m *module.Module, bd bundle.Bundler, hasBundler bool) {
	var resolver bundle.Resolver
	if hasBundler {
		resolver, _ = bd.(bundle.Resolver)
	}
	for _, dep := range m.Dependencies {
		if dep.ResolvedFile != nil {
			d.LoadFile(dep.ResolvedFile)
			continue
		}
		if dep.SkipResolve {
			continue
		}
		if resolver == nil {
			continue
		}
		path, ok, err := resolver.Resolve(ctx, dep, m, d)
		if err != nil {
			m.AddLog(module.LogEntry{Severity: module.SeverityError, Source: "bundler.resolve", Message: err.Error()})
			d.bc.recordError()
			continue
		}
		if !ok {
			continue
		}
		if path == "" {
			if dep.Dynamic {
				m.AddLog(module.LogEntry{Severity: module.SeverityWarning, Source: "bundler.resolve", Message: fmt.Sprintf("cannot find %q", dep.URL)})
				d.bc.recordWarning()
			} else {
				m.AddLog(module.LogEntry{Severity: module.SeverityError, Source: "bundler.resolve", Message: fmt.Sprintf("cannot find %q", dep.URL)})
				d.bc.recordError()
			}
			continue
		}
		dep.ResolvedPath = path
		dep.ResolvedFile = d.GetModule(path)
		d.LoadFile(dep.ResolvedFile)
	}
}
