package js

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pleasebuild/jspack/internal/module"
)

func newModule(t *testing.T, path, content string) *module.Module {
	t.Helper()
	table := module.NewTable()
	m := table.GetModule(path)
	m.SetData(module.Data{Kind: module.DataText, Text: content}, nil, nil)
	return m
}

func TestParseFindsStaticAndDynamicAndRequire(t *testing.T) {
	src := `import foo from "./foo.js";
export { bar } from "./bar.js";
const lazy = () => import("./lazy.js");
const legacy = require("./legacy.js");
`
	m := newModule(t, "/src/app.js", src)
	b := New()
	if err := b.Parse(context.Background(), m, nil); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(m.Dependencies) != 4 {
		t.Fatalf("got %d dependencies, want 4: %+v", len(m.Dependencies), m.Dependencies)
	}
	want := []struct {
		url     string
		typ     string
		dynamic bool
	}{
		{"./foo.js", "import", false},
		{"./bar.js", "reexport", false},
		{"./lazy.js", "import", true},
		{"./legacy.js", "require", false},
	}
	for i, w := range want {
		got := m.Dependencies[i]
		if got.URL != w.url || got.Type != w.typ || got.Dynamic != w.dynamic {
			t.Errorf("dep %d = %+v, want %+v", i, got, w)
		}
	}
}

func TestParseStripsReservedQueryParams(t *testing.T) {
	src := `import x from "./x.js?noCheckQuery&foo=1";`
	m := newModule(t, "/src/app.js", src)
	b := New()
	if err := b.Parse(context.Background(), m, nil); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	dep := m.Dependencies[0]
	if !dep.SkipResolve {
		t.Errorf("expected SkipResolve from noCheckQuery, got %+v", dep)
	}
	if dep.Query.Has("noCheckQuery") {
		t.Errorf("reserved param should be removed from Query: %v", dep.Query)
	}
	if dep.Query.Get("foo") != "1" {
		t.Errorf("non-reserved param should survive, got %v", dep.Query)
	}
}

func TestResolveIgnoresBareSpecifiers(t *testing.T) {
	m := newModule(t, "/src/app.js", "")
	b := New()
	dep := &module.Dependency{Pathname: "react"}
	_, ok, err := b.Resolve(context.Background(), dep, m, nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if ok {
		t.Errorf("expected bare specifier to be ignored")
	}
}

func TestResolveRelative(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "src", "nested"), 0o755); err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(root, "src", "util.js")
	if err := os.WriteFile(want, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	m := newModule(t, filepath.Join(root, "src", "nested", "app.js"), "")
	b := New()
	dep := &module.Dependency{Pathname: "../util.js"}
	path, ok, err := b.Resolve(context.Background(), dep, m, nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !ok || path != want {
		t.Errorf("Resolve = %q, %v, want %s, true", path, ok, want)
	}
}
