package driver

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/pleasebuild/jspack/internal/bundle"
	"github.com/pleasebuild/jspack/internal/bundle/js"
	"github.com/pleasebuild/jspack/internal/match"
	"github.com/pleasebuild/jspack/internal/module"
	"github.com/pleasebuild/jspack/internal/pipeline"
	"github.com/pleasebuild/jspack/internal/watch"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// S1: a single file with no bundler and no processors copies straight
// through to the mirrored output tree.
func TestBuildTrivialCopy(t *testing.T) {
	root := t.TempDir()
	out := filepath.Join(t.TempDir(), "out")
	writeFile(t, filepath.Join(root, "entry.txt"), "hello")

	fs := afero.NewMemMapFs()
	drv := New(&Config{RootDir: root, OutDir: out}, fs, nil, nil)

	bc, err := drv.Build(context.Background(), ModeFull, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if bc.ErrorCount() != 0 {
		t.Fatalf("ErrorCount = %d, want 0", bc.ErrorCount())
	}
	if got := len(bc.Files()); got != 1 {
		t.Fatalf("Files = %d, want 1: %v", got, bc.Files())
	}

	got, err := afero.ReadFile(fs, filepath.Join(out, "entry.txt"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("content = %q, want %q", got, "hello")
	}
}

// S2: two JS files that statically import each other must resolve as one
// circular edge (error) rather than hanging or reporting no error at all —
// the bug the maintainer flagged in skippedFromEmitWait/emitFile.
func TestBuildCircularStaticImport(t *testing.T) {
	root := t.TempDir()
	out := filepath.Join(t.TempDir(), "out")
	writeFile(t, filepath.Join(root, "a.js"), "import './b.js';\n")
	writeFile(t, filepath.Join(root, "b.js"), "import './a.js';\n")

	bundlers := bundle.NewRegistry()
	bundlers.Register(".js", js.New())

	fs := afero.NewMemMapFs()
	drv := New(&Config{RootDir: root, OutDir: out, Bundlers: bundlers}, fs, nil, nil)

	done := make(chan struct {
		bc  *BuildContext
		err error
	}, 1)
	go func() {
		bc, err := drv.Build(context.Background(), ModeFull, nil)
		done <- struct {
			bc  *BuildContext
			err error
		}{bc, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			t.Fatalf("Build: %v", r.err)
		}
		if r.bc.ErrorCount() != 1 {
			t.Errorf("ErrorCount = %d, want 1 (one circular static-import edge)", r.bc.ErrorCount())
		}
		if r.bc.WarningCount() != 0 {
			t.Errorf("WarningCount = %d, want 0", r.bc.WarningCount())
		}
		if got := len(r.bc.Files()); got != 2 {
			t.Errorf("Files = %d, want 2 (both sides still emit)", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Build deadlocked on a circular static import")
	}
}

// S4: two entries whose outPath template collapses to the same output
// path must leave exactly one written and flag the other with NoWrite and
// an error; deleting either source afterwards frees the slot for the
// other on the next incremental build.
func TestBuildOutputCollisionAndRecovery(t *testing.T) {
	root := t.TempDir()
	out := filepath.Join(t.TempDir(), "out")
	pathA := filepath.Join(root, "a", "entry.js")
	pathB := filepath.Join(root, "b", "entry.js")
	writeFile(t, pathA, "console.log('a');\n")
	writeFile(t, pathB, "console.log('b');\n")

	flatten := &pipeline.Chain{Root: &pipeline.Node{
		Match:     match.Always,
		OutPath:   "<name>.<ext>",
		Processor: pipeline.ProcessorFunc(func(context.Context, *module.Module, map[string]any, pipeline.Builder) error { return nil }),
	}}

	fs := afero.NewMemMapFs()
	idx := watch.NewIndex()
	cfg := &Config{RootDir: root, OutDir: out, Compilers: flatten}
	drv := New(cfg, fs, nil, idx)

	bc, err := drv.Build(context.Background(), ModeFull, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if bc.ErrorCount() != 1 {
		t.Fatalf("ErrorCount = %d, want 1 (output collision)", bc.ErrorCount())
	}
	if got := len(bc.Files()); got != 1 {
		t.Fatalf("Files = %d, want 1", got)
	}

	outPath := filepath.Join(out, "entry.js")
	got, err := afero.ReadFile(fs, outPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "console.log('a');\n" {
		t.Fatalf("first writer should be a/entry.js (sorted first), got %q", got)
	}

	moduleA, ok := drv.Table().Lookup(pathA)
	if !ok {
		t.Fatalf("module for %s not found", pathA)
	}
	moduleB, ok := drv.Table().Lookup(pathB)
	if !ok {
		t.Fatalf("module for %s not found", pathB)
	}
	if !moduleB.NoWrite {
		t.Fatalf("losing module should have NoWrite set")
	}

	if err := os.Remove(pathA); err != nil {
		t.Fatalf("remove: %v", err)
	}
	dirty := watch.Invalidate(watch.Event{Path: pathA, Kind: watch.Deleted}, drv.Table(), drv.WatchIndex())
	if len(dirty) != 1 || dirty[0] != moduleB {
		t.Fatalf("Invalidate = %+v, want [b's module]", dirty)
	}

	moduleB.Reset(module.Initial)
	bc2, err := drv.Build(context.Background(), ModeIncremental, []string{moduleB.OriginalPath})
	if err != nil {
		t.Fatalf("Build (incremental): %v", err)
	}
	if bc2.ErrorCount() != 0 {
		t.Fatalf("ErrorCount = %d, want 0 after the colliding slot freed up", bc2.ErrorCount())
	}
	got2, err := afero.ReadFile(fs, outPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got2) != "console.log('b');\n" {
		t.Errorf("content = %q, want b's content now that a is gone", got2)
	}
}

// S6: deleting a statically-imported dependency invalidates the importing
// entry through the watch index, and the entry still rebuilds (with a
// logged "cannot find" error) rather than failing the whole build.
func TestBuildIncrementalDelete(t *testing.T) {
	root := t.TempDir()
	out := filepath.Join(t.TempDir(), "out")
	entryPath := filepath.Join(root, "entry.js")
	depPath := filepath.Join(root, "dep.js")
	writeFile(t, entryPath, "import './dep.js';\nconsole.log('entry');\n")
	writeFile(t, depPath, "export const x = 1;\n")

	bundlers := bundle.NewRegistry()
	bundlers.Register(".js", js.New())

	fs := afero.NewMemMapFs()
	idx := watch.NewIndex()
	drv := New(&Config{RootDir: root, OutDir: out, Bundlers: bundlers}, fs, nil, idx)

	bc, err := drv.Build(context.Background(), ModeFull, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if bc.ErrorCount() != 0 {
		t.Fatalf("ErrorCount = %d, want 0 on the first build", bc.ErrorCount())
	}

	entryModule, ok := drv.Table().Lookup(entryPath)
	if !ok {
		t.Fatalf("module for %s not found", entryPath)
	}

	if err := os.Remove(depPath); err != nil {
		t.Fatalf("remove: %v", err)
	}
	dirty := watch.Invalidate(watch.Event{Path: depPath, Kind: watch.Deleted}, drv.Table(), drv.WatchIndex())
	if len(dirty) != 1 || dirty[0] != entryModule {
		t.Fatalf("Invalidate = %+v, want [entry's module]", dirty)
	}
	if _, stillThere := drv.Table().Lookup(depPath); stillThere {
		t.Fatalf("deleted dependency should be removed from the table")
	}

	entryModule.Reset(module.Initial)
	bc2, err := drv.Build(context.Background(), ModeIncremental, []string{entryModule.OriginalPath})
	if err != nil {
		t.Fatalf("Build (incremental): %v", err)
	}
	if bc2.ErrorCount() != 1 {
		t.Fatalf("ErrorCount = %d, want 1 (missing static import)", bc2.ErrorCount())
	}
	if got := len(entryModule.Dependencies); got != 1 || entryModule.Dependencies[0].ResolvedFile != nil {
		t.Errorf("entry's dependency should survive unresolved, got %+v", entryModule.Dependencies)
	}

	if _, err := afero.ReadFile(fs, filepath.Join(out, "entry.js")); err != nil {
		t.Errorf("entry should still be written despite the missing dependency: %v", err)
	}
}
