package pipeline

import (
	"context"
	"fmt"
	"testing"

	"github.com/pleasebuild/jspack/internal/match"
	"github.com/pleasebuild/jspack/internal/module"
)

type fakeBuilder struct {
	files map[string][]byte
	hash  uint64
	ver   string
}

func (f *fakeBuilder) ReadFile(path string) ([]byte, error) {
	b, ok := f.files[path]
	if !ok {
		return nil, fmt.Errorf("no such file %s", path)
	}
	return b, nil
}
func (f *fakeBuilder) BuildHash() uint64 { return f.hash }
func (f *fakeBuilder) Version() string   { return f.ver }
func (f *fakeBuilder) ResolvePlugin(ref string) (Processor, error) {
	return nil, fmt.Errorf("plugin %q not registered", ref)
}

func upperProcessor() Processor {
	return ProcessorFunc(func(ctx context.Context, m *module.Module, opts map[string]any, b Builder) error {
		content, err := m.Content()
		if err != nil {
			return err
		}
		upper := make([]byte, len(content))
		for i, c := range content {
			if c >= 'a' && c <= 'z' {
				c -= 'a' - 'A'
			}
			upper[i] = c
		}
		m.SetData(module.Data{Kind: module.DataBinary, Bytes: upper}, nil, nil)
		return nil
	})
}

func TestChainRunsMatchedNodeAndAppliesOutPath(t *testing.T) {
	tbl := module.NewTable()
	m := tbl.GetModule("/src/a.txt")

	chain := &Chain{Root: &Node{
		Match:     match.Glob{Pattern: "**/*.txt"},
		Read:      ReadText,
		Processor: upperProcessor(),
		OutPath:   "<dir>/<name>.out",
	}}
	b := &fakeBuilder{files: map[string][]byte{"/src/a.txt": []byte("hi")}}

	if err := chain.Run(context.Background(), m, b); err != nil {
		t.Fatal(err)
	}
	content, err := m.Content()
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != "HI" {
		t.Errorf("content = %q, want %q", content, "HI")
	}
	if m.Path != "/src/a.out" {
		t.Errorf("path = %q, want %q", m.Path, "/src/a.out")
	}
}

func TestChainSkipsUnmatchedNode(t *testing.T) {
	tbl := module.NewTable()
	m := tbl.GetModule("/src/a.css")
	m.SetData(module.Data{Kind: module.DataText, Text: "body{}"}, nil, nil)

	chain := &Chain{Root: &Node{
		Match:     match.Glob{Pattern: "**/*.ts"},
		Processor: upperProcessor(),
	}}
	b := &fakeBuilder{}
	if err := chain.Run(context.Background(), m, b); err != nil {
		t.Fatal(err)
	}
	content, _ := m.Content()
	if string(content) != "body{}" {
		t.Errorf("unmatched node should not have run: content = %q", content)
	}
}

func TestChainAbortsOnStateDivergence(t *testing.T) {
	tbl := module.NewTable()
	m := tbl.GetModule("/src/a.txt")
	m.SetData(module.Data{Kind: module.DataText, Text: "hi"}, nil, nil)

	var ran bool
	chain := &Chain{Root: &Node{
		Match: match.Always,
		Processor: ProcessorFunc(func(ctx context.Context, mm *module.Module, opts map[string]any, b Builder) error {
			ran = true
			mm.SetState(module.Changing) // simulate another phase taking over mid-chain
			return nil
		}),
		NextTrue: &Node{
			Match: match.Always,
			Processor: ProcessorFunc(func(ctx context.Context, mm *module.Module, opts map[string]any, b Builder) error {
				t.Fatal("second node must not run after state diverged")
				return nil
			}),
		},
	}}
	if err := chain.Run(context.Background(), m, &fakeBuilder{}); err != nil {
		t.Fatal(err)
	}
	if !ran {
		t.Fatal("expected first node to run")
	}
}

func TestResolveProcessorRemembersFailure(t *testing.T) {
	tbl := module.NewTable()
	m1 := tbl.GetModule("/src/a.less")
	m2 := tbl.GetModule("/src/b.less")

	node := &Node{Match: match.Always, Ref: "less-compiler"}
	chain := &Chain{Root: node}
	b := &fakeBuilder{}

	if err := chain.Run(context.Background(), m1, b); err != nil {
		t.Fatal(err)
	}
	if len(m1.Logs) != 1 {
		t.Fatalf("expected one skip warning logged, got %d", len(m1.Logs))
	}

	if err := chain.Run(context.Background(), m2, b); err != nil {
		t.Fatal(err)
	}
	if len(m2.Logs) != 1 {
		t.Fatalf("second module should get the same remembered failure, got %d logs", len(m2.Logs))
	}
}

func TestExpandOutPathVariables(t *testing.T) {
	tbl := module.NewTable()
	m := tbl.GetModule("/src/a.js")
	m.SetData(module.Data{Kind: module.DataText, Text: "var x=1"}, nil, nil)
	b := &fakeBuilder{hash: 0xABCDEF, ver: "1.2.3"}

	out, err := ExpandOutPath("<dir>/<name>-<md5:8>-<buildhash:4>.<ext>", m, b)
	if err != nil {
		t.Fatal(err)
	}
	wantPrefix := "/src/a-"
	if len(out) < len(wantPrefix) || out[:len(wantPrefix)] != wantPrefix {
		t.Errorf("ExpandOutPath = %q, want prefix %q", out, wantPrefix)
	}

	gotMD5, _ := staticDigest([]byte("var x=1"))
	if !contains(out, gotMD5[:8]) {
		t.Errorf("ExpandOutPath = %q, want it to contain md5 prefix %q", out, gotMD5[:8])
	}
}

func contains(s, sub string) bool {
	return len(sub) == 0 || (len(s) >= len(sub) && indexOf(s, sub) >= 0)
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}
