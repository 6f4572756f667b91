package driver

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"

	"github.com/pleasebuild/jspack/internal/bundle"
	"github.com/pleasebuild/jspack/internal/module"
)

// skippedFromEmitWait reports whether dep is one of the dependency kinds
// emit never kicks off or awaits content for on the parent's behalf —
// "external"/"externalList" typed deps, which the external-module policy
// (§4.6) extracts independently of the parent's own emit. Static imports
// ("import") are NOT skipped: they participate fully in cycle detection
// and content-generation ordering, matching §4.5's "for staticImport +
// non-dynamic cycles, the dependency is cleared and an error is emitted" —
// that rule is meaningless if staticImport edges are never walked.
func skippedFromEmitWait(dep *module.Dependency) bool {
	if dep.Inline {
		return false
	}
	switch dep.Type {
	case "external", "externalList":
		return true
	default:
		return false
	}
}

// emitFile implements §4.5's two-pass emit. Pass A (markEmitCycles) is a
// plain synchronous recursive walk — no goroutines, no channels — because
// that's what makes cycle detection deterministic: the source's pass A
// runs synchronously up to its first await (`dep.resolvedFile.promise =
// emitFile(...)` starts executing inline before yielding), so "module X is
// Emitting but has no promise yet" only ever means true call-stack
// re-entry, i.e. a real cycle. Modelling pass A itself with goroutines (as
// a prior version of this function did) turns that single-threaded
// guarantee into a data race: two real OS threads can both observe
// "Emitting, no promise" on a diamond dependency that isn't actually
// circular, or (worse) both sides of a genuine cycle can fail to observe
// each other and deadlock waiting on channels that are never closed.
// Pass B (emitContent) is where concurrency belongs — generating content
// and writing output is the I/O-bound part the spec's await points model.
func (d *Driver) emitFile(ctx context.Context, m *module.Module) error {
	if m.GetState() != module.Loaded {
		return nil
	}
	d.markEmitCycles(m)
	return d.emitContent(ctx, m)
}

// markEmitCycles is emit's pass A. It marks m (and every reachable, not
// yet emitted dependency) Emitting, and flags a dependency Circular the
// moment the walk re-enters a module that is already Emitting on the
// current call stack.
func (d *Driver) markEmitCycles(m *module.Module) {
	if m.GetState() != module.Loaded {
		return
	}
	m.SetState(module.Emitting)
	for _, dep := range m.Dependencies {
		if dep.ResolvedFile == nil || skippedFromEmitWait(dep) {
			continue
		}
		target := dep.ResolvedFile
		switch target.GetState() {
		case module.Loaded:
			d.markEmitCycles(target)
		case module.Emitting:
			d.markCircular(dep, m, target)
		}
	}
}

// markCircular applies §4.5/§7's circular-dependency resolution: an
// inline+dynamic cycle is demoted to non-inline with a warning (the
// target is still reachable by normal non-inline reference); any other
// cycle (a static import, per §7's table) has its back-edge cleared and
// an error is logged on the module that discovered the cycle.
func (d *Driver) markCircular(dep *module.Dependency, m, target *module.Module) {
	dep.Circular = true
	if dep.Inline && dep.Dynamic {
		dep.Inline = false
		m.AddLog(module.LogEntry{
			Severity: module.SeverityWarning,
			Source:   "emit",
			Message:  fmt.Sprintf("circular dependency on %q, inlining disabled", target.OriginalPath),
		})
		d.bc.recordWarning()
		return
	}
	dep.ResolvedFile = nil
	m.AddLog(module.LogEntry{
		Severity: module.SeverityError,
		Source:   "emit",
		Message:  fmt.Sprintf("circular dependency on %q", target.OriginalPath),
	})
	d.bc.recordError()
}

// emitContent is emit's pass B plus the generate/optimize/write sequence.
// Each module's "promise" that its content has been generated is a
// channel in d.emitStarted, registered here (strictly after pass A has
// already run to completion for the whole subtree) so concurrent callers
// sharing a diamond dependency wait for the single in-flight emit instead
// of redoing it.
func (d *Driver) emitContent(ctx context.Context, m *module.Module) error {
	d.emitMu.Lock()
	done, already := d.emitStarted[m]
	if !already {
		done = make(chan struct{})
		d.emitStarted[m] = done
	}
	d.emitMu.Unlock()
	if already {
		<-done
		return nil
	}
	defer close(done)

	// Await every non-circular, non-skipped dependency's content
	// generation concurrently before generating m's own content.
	var wg sync.WaitGroup
	for _, dep := range m.Dependencies {
		if dep.ResolvedFile == nil || skippedFromEmitWait(dep) || dep.Circular {
			continue
		}
		wg.Add(1)
		go func(dep *module.Dependency, target *module.Module) {
			defer wg.Done()
			if err := d.emitContent(ctx, target); err != nil {
				target.AddLog(module.LogEntry{Severity: module.SeverityError, Source: "emit", Message: err.Error()})
			}
			if target.NoWrite {
				dep.Inline = true
			}
			if dep.Inline && !target.HasData() {
				if _, err := target.Content(); err != nil {
					m.AddLog(module.LogEntry{Severity: module.SeverityError, Source: "emit", Message: err.Error()})
				}
			}
		}(dep, dep.ResolvedFile)
	}
	wg.Wait()

	generated := m.Clone()
	generated.SetState(module.Emitting)

	if hasErr := d.runGenerate(ctx, generated); hasErr != nil {
		generated.AddLog(module.LogEntry{Severity: module.SeverityError, Source: "bundler.generate", Message: hasErr.Error()})
		d.bc.recordError()
	}

	if d.cfg.Optimize && d.cfg.Optimizers != nil {
		if err := d.cfg.Optimizers.Run(ctx, generated, d); err != nil {
			generated.AddLog(module.LogEntry{Severity: module.SeverityError, Source: "optimize", Message: err.Error()})
			d.bc.recordError()
		}
	}

	if generated.IsExternal {
		if err := d.applyExternalPolicy(generated); err != nil {
			generated.AddLog(module.LogEntry{Severity: module.SeverityError, Source: "external", Message: err.Error()})
		}
	}

	if err := d.writeGenerated(m, generated); err != nil {
		generated.AddLog(module.LogEntry{Severity: module.SeverityError, Source: "write", Message: err.Error()})
		d.bc.recordError()
	}

	// Mirror the clone's final content, path, and NoWrite verdict back onto
	// the table-owned module: a parent awaiting this dependency (above)
	// reads target.NoWrite/target.Content(), and a bundler's replace-range
	// callback reads target.Path to rewrite a reference to it (e.g.
	// html.go's href rewrite) — all against the original module, not
	// generated, since generated is local to this call.
	if b, err := generated.Content(); err == nil {
		m.SetData(module.Data{Kind: module.DataBinary, Bytes: b}, generated.SourceMapData(), nil)
	}
	m.Path = generated.Path
	m.NoWrite = generated.NoWrite

	m.SetState(module.Emitted)
	d.bc.taskDone()
	return nil
}

// runGenerate invokes the bundler's Generate, if any, producing the
// module's final content and source map.
func (d *Driver) runGenerate(ctx context.Context, m *module.Module) error {
	if d.cfg.Bundlers == nil {
		return nil
	}
	bd, ok := d.cfg.Bundlers.Lookup(m.Ext())
	if !ok {
		return nil
	}
	gen, ok := bd.(bundle.Generator)
	if !ok {
		return nil
	}
	content, sm, err := gen.Generate(ctx, m, d)
	if err != nil {
		return err
	}
	m.SetData(module.Data{Kind: module.DataBinary, Bytes: content}, sm, nil)
	return nil
}

// writeGenerated detects output-path conflicts against emittedFiles,
// composes the source map, and performs the actual write (the
// external-module policy has already run in emitContent). orig is the long-lived,
// table-owned module generated was cloned from: collision bookkeeping
// (emittedFiles, AddMutualWatch) must key off orig, not generated, since
// generated is discarded at the end of this build and a watch edge
// pointing at it would be a dangling reference the next build could
// never match back up with table.Lookup.
func (d *Driver) writeGenerated(orig, m *module.Module) error {
	if m.NoWrite {
		return nil
	}

	outPath := d.finalOutPath(m.Path)
	if d.outsideOutDir(outPath) {
		m.NoWrite = true
		return fmt.Errorf("output path %q escapes outDir", outPath)
	}
	if d.cfg.OutDir != "" && outPath == m.OriginalPath {
		m.NoWrite = true
		return fmt.Errorf("output path %q equals source path", outPath)
	}
	m.Path = outPath

	rel, err := filepath.Rel(d.cfg.OutDir, outPath)
	if err != nil {
		rel = outPath
	}

	d.emitMu.Lock()
	if existing, collides := d.emittedFiles[rel]; collides && existing.originalFile != m.OriginalPath {
		d.emitMu.Unlock()
		m.NoWrite = true
		if d.watchIndex != nil {
			d.watchIndex.AddMutualWatch(existing.module, orig)
			d.watchIndex.AddMutualWatch(orig, existing.module)
		}
		return fmt.Errorf("output path collision at %q between %q and %q", rel, existing.originalFile, m.OriginalPath)
	}
	d.emittedFiles[rel] = &emittedEntry{module: orig, originalFile: m.OriginalPath}
	d.emitMu.Unlock()

	content, err := m.Content()
	if err != nil {
		return err
	}
	content, sibling, err := d.composeSourceMap(m, content)
	if err != nil {
		return err
	}

	if d.cfg.NoWrite {
		d.bc.recordFile(outPath)
		return nil
	}
	if err := d.writeFile(outPath, content); err != nil {
		return err
	}
	d.bc.recordFile(outPath)
	if sibling != nil {
		sibOut := sibling.path
		if d.cfg.OutDir != "" && !filepath.IsAbs(sibOut) {
			sibOut = filepath.Join(d.cfg.OutDir, sibOut)
		}
		if err := d.writeFile(sibOut, sibling.bytes); err != nil {
			return err
		}
		d.bc.recordFile(sibOut)
	}
	return nil
}

func (d *Driver) writeFile(path string, content []byte) error {
	if err := d.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return afero.WriteFile(d.fs, path, content, 0o644)
}
