package sourcemap

import (
	"strings"
	"testing"

	"github.com/pleasebuild/jspack/internal/module"
)

func newModule(path string) *module.Module {
	table := module.NewTable()
	return table.GetModule(path)
}

func TestComposeAppendsJSStyleComment(t *testing.T) {
	m := newModule("/out/app.js")
	sm := &module.SourceMap{Sources: []string{"/src/app.ts"}, Mappings: "AAAA"}
	res, err := Compose(m, sm, []byte("console.log(1);"), "application/javascript", Options{})
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if !strings.Contains(string(res.Content), "//# sourceMappingURL=app.js.map") {
		t.Errorf("Content = %q, missing JS-style comment", res.Content)
	}
	if res.SiblingPath != "/out/app.js.map" {
		t.Errorf("SiblingPath = %q", res.SiblingPath)
	}
}

func TestComposeAppendsCSSStyleComment(t *testing.T) {
	m := newModule("/out/app.css")
	sm := &module.SourceMap{Sources: []string{"/src/app.css"}, Mappings: "AAAA"}
	res, err := Compose(m, sm, []byte(".a{color:red}"), "text/css", Options{})
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if !strings.Contains(string(res.Content), "/*# sourceMappingURL=app.css.map */") {
		t.Errorf("Content = %q, missing CSS-style comment", res.Content)
	}
}

func TestComposeInlineEmitsDataURI(t *testing.T) {
	m := newModule("/out/app.js")
	sm := &module.SourceMap{Sources: []string{"/src/app.ts"}, Mappings: "AAAA"}
	res, err := Compose(m, sm, []byte("x"), "", Options{Inline: true})
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if res.SiblingPath != "" {
		t.Errorf("expected no sibling path in inline mode, got %q", res.SiblingPath)
	}
	if !strings.Contains(string(res.Content), "data:application/json;charset=utf-8;base64,") {
		t.Errorf("Content = %q, missing inline data URI", res.Content)
	}
}

func TestComposeNilMapIsNoop(t *testing.T) {
	m := newModule("/out/app.js")
	res, err := Compose(m, nil, []byte("x"), "", Options{})
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if string(res.Content) != "x" {
		t.Errorf("Content = %q, want unchanged", res.Content)
	}
}

func TestComposeChainKeepsOldFileAsSource(t *testing.T) {
	old := &module.SourceMap{File: "app.ts", Mappings: "AAAA"}
	new := &module.SourceMap{Sources: []string{"app.tsx"}, Mappings: "BBBB"}
	out := ComposeChain(old, new)
	found := false
	for _, s := range out.Sources {
		if s == "app.ts" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected chained map to retain old file as a source, got %+v", out.Sources)
	}
}
