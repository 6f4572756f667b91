package external

import (
	"strings"
	"testing"

	"github.com/pleasebuild/jspack/internal/match"
	"github.com/pleasebuild/jspack/internal/module"
)

func newModule(t *testing.T, path string, size int) *module.Module {
	t.Helper()
	table := module.NewTable()
	m := table.GetModule(path)
	m.Size = size
	return m
}

func TestApplyMatchesRuleAndSetsPath(t *testing.T) {
	reg := NewRegistry([]Rule{
		{Match: match.Glob{Pattern: "**/*.png"}, OutPath: "assets/logo.png"},
	})
	m := newModule(t, "/src/logo.png", 100)
	if err := reg.Apply(m); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if m.NoWrite {
		t.Errorf("expected matched module to be written, not inlined")
	}
	if m.Path != "assets/logo.png" {
		t.Errorf("Path = %q, want assets/logo.png", m.Path)
	}
}

func TestApplyNoMatchMarksNoWrite(t *testing.T) {
	reg := NewRegistry([]Rule{
		{Match: match.Glob{Pattern: "**/*.png"}, MinSize: 1024},
	})
	m := newModule(t, "/src/tiny.png", 10)
	if err := reg.Apply(m); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !m.NoWrite {
		t.Errorf("expected unmatched module to be marked NoWrite for inlining")
	}
}

func TestApplyDedupesCollisions(t *testing.T) {
	reg := NewRegistry([]Rule{
		{Match: match.Always, OutPath: "assets/shared.png"},
	})
	a := newModule(t, "/src/a.png", 100)
	b := newModule(t, "/src/b.png", 100)
	if err := reg.Apply(a); err != nil {
		t.Fatalf("Apply a: %v", err)
	}
	if err := reg.Apply(b); err != nil {
		t.Fatalf("Apply b: %v", err)
	}
	if a.Path == b.Path {
		t.Errorf("expected colliding output paths to be deduped, both got %q", a.Path)
	}
	if b.Path != "assets/shared.png-2" {
		t.Errorf("Path = %q, want assets/shared.png-2", b.Path)
	}
}

func TestEncodeDataURI(t *testing.T) {
	uri := EncodeDataURI("image/png", []byte("hi"))
	if !strings.HasPrefix(uri, "data:image/png;base64,") {
		t.Errorf("EncodeDataURI = %q", uri)
	}
}
