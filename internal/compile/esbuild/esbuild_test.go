package esbuild

import (
	"context"
	"strings"
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

func TestCompilerTranspilesTypeScript(t *testing.T) {
	m := newModule(t, "/src/app.ts", "const x: number = 1;\nexport default x;")
	c := NewCompiler()
	if err := c.Process(context.Background(), m, nil, nil); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if m.Path != "/src/app.js" {
		t.Errorf("expected .ts to be rewritten to .js, got %s", m.Path)
	}
	out, err := m.Content()
	if err != nil {
		t.Fatalf("Content: %v", err)
	}
	if strings.Contains(string(out), ": number") {
		t.Errorf("expected type annotation to be stripped, got %q", out)
	}
}

func TestCompilerTranspilesJSXRewritesExtension(t *testing.T) {
	m := newModule(t, "/src/app.jsx", `export default () => <div>hi</div>;`)
	c := NewCompiler()
	if err := c.Process(context.Background(), m, nil, nil); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if m.Path != "/src/app.js" {
		t.Errorf("expected .jsx to be rewritten to .js, got %s", m.Path)
	}
}

func TestOptimizerMinifiesJS(t *testing.T) {
	m := newModule(t, "/out/app.js", `function add(firstNumber, secondNumber) { return firstNumber + secondNumber; }`)
	o := NewOptimizer()
	if !o.Parallel() {
		t.Fatalf("expected Optimizer to declare itself parallel-capable")
	}
	if err := o.Process(context.Background(), m, nil, nil); err != nil {
		t.Fatalf("Process: %v", err)
	}
	out, err := m.Content()
	if err != nil {
		t.Fatalf("Content: %v", err)
	}
	if len(out) == 0 {
		t.Fatalf("expected non-empty minified output")
	}
	if strings.Contains(string(out), "firstNumber") {
		t.Errorf("expected identifier minification to rename firstNumber, got %q", out)
	}
}
