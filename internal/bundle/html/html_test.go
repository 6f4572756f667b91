package html

import (
	"context"
	"testing"

	"github.com/pleasebuild/jspack/internal/module"
	"github.com/pleasebuild/jspack/internal/pipeline"
)

// fakeBuilder implements bundle.Builder for these tests, backed by a real
// module.Table so CreateSubfile behaves like the driver's would.
type fakeBuilder struct {
	table *module.Table
}

func (f *fakeBuilder) CreateSubfile(parent *module.Module, path string, content []byte, index int, sm *module.SourceMap) *module.Module {
	return f.table.CreateSubfile(parent, path, content, index, sm)
}

func (f *fakeBuilder) GetModule(path string) *module.Module { return f.table.GetModule(path) }
func (f *fakeBuilder) LoadFile(m *module.Module)            {}
func (f *fakeBuilder) ReadFile(path string) ([]byte, error) { return nil, nil }
func (f *fakeBuilder) BuildHash() uint64                    { return 1 }
func (f *fakeBuilder) Version() string                      { return "test" }
func (f *fakeBuilder) ResolvePlugin(ref string) (pipeline.Processor, error) {
	return nil, nil
}

func newModule(t *testing.T, table *module.Table, path, content string) *module.Module {
	t.Helper()
	m := table.GetModule(path)
	m.SetData(module.Data{Kind: module.DataText, Text: content}, nil, nil)
	return m
}

func TestParseFindsScriptLinkImgReferences(t *testing.T) {
	src := `<html><head><link href="./app.css"></head>
<body><img src="./logo.png"><script src="./app.js"></script></body></html>`
	table := module.NewTable()
	m := newModule(t, table, "/src/index.html", src)
	b := New()
	if err := b.Parse(context.Background(), m, &fakeBuilder{table: table}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	urls := map[string]bool{}
	for _, d := range m.Dependencies {
		urls[d.URL] = true
	}
	for _, want := range []string{"./app.css", "./logo.png", "./app.js"} {
		if !urls[want] {
			t.Errorf("missing dependency %q, got %+v", want, m.Dependencies)
		}
	}
}

func TestParseExtractsInlineStyleAsSubfile(t *testing.T) {
	src := `<html><head><style>.a { color: red; }</style></head><body></body></html>`
	table := module.NewTable()
	m := newModule(t, table, "/src/index.html", src)
	b := New()
	if err := b.Parse(context.Background(), m, &fakeBuilder{table: table}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	sub, ok := table.Lookup("/src/index.html.0.css")
	if !ok {
		t.Fatalf("expected inline style sub-file to be registered")
	}
	if sub.SourceFile != m {
		t.Errorf("sub-file SourceFile back-pointer not set")
	}
	content, err := sub.Content()
	if err != nil {
		t.Fatalf("sub.Content: %v", err)
	}
	if len(content) == 0 {
		t.Errorf("expected non-empty inline style content")
	}
}

func TestResolveIgnoresInlineAndExternal(t *testing.T) {
	table := module.NewTable()
	m := newModule(t, table, "/src/index.html", "")
	b := New()
	_, ok, err := b.Resolve(context.Background(), &module.Dependency{Inline: true}, m, &fakeBuilder{table: table})
	if err != nil || ok {
		t.Errorf("inline dependency should be ignored by Resolve, got ok=%v err=%v", ok, err)
	}
	_, ok, err = b.Resolve(context.Background(), &module.Dependency{URL: "https://example.com/a.js", Pathname: "https://example.com/a.js"}, m, &fakeBuilder{table: table})
	if err != nil || ok {
		t.Errorf("external URL should be ignored by Resolve, got ok=%v err=%v", ok, err)
	}
}
