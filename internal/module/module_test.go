package module

import "testing"

func TestGetModuleIsStableAndLazy(t *testing.T) {
	tbl := NewTable()
	a := tbl.GetModule("/src/a.js")
	b := tbl.GetModule("/src/a.js")
	if a != b {
		t.Fatalf("GetModule returned two different Modules for the same path")
	}
	if a.State != Initial {
		t.Errorf("new module state = %v, want Initial", a.State)
	}
	if a.HasData() {
		t.Errorf("new module should have no data until a reader demands it")
	}
}

func TestResetClearsLoadPhaseState(t *testing.T) {
	tbl := NewTable()
	m := tbl.GetModule("/src/a.js")
	m.Path = "/dist/a.js"
	m.AddDependency(&Dependency{URL: "./b.js"})
	m.AddLog(LogEntry{Message: "oops"})
	m.Props["custom"] = 1
	m.SetData(Data{Kind: DataText, Text: "var x = 1"}, nil, nil)

	m.Reset(Initial)

	if m.Path != m.OriginalPath {
		t.Errorf("Reset did not restore Path to OriginalPath: %s != %s", m.Path, m.OriginalPath)
	}
	if len(m.Dependencies) != 0 || len(m.Logs) != 0 || len(m.Props) != 0 {
		t.Errorf("Reset did not clear dependencies/logs/props")
	}
	if m.HasData() {
		t.Errorf("Reset did not clear data")
	}
	if m.State != Initial {
		t.Errorf("Reset did not set requested state")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	tbl := NewTable()
	m := tbl.GetModule("/src/a.js")
	m.SetData(Data{Kind: DataText, Text: "one"}, nil, nil)
	m.AddDependency(&Dependency{URL: "./b.js"})

	c := m.Clone()
	c.SetData(Data{Kind: DataText, Text: "two"}, nil, nil)

	orig, err := m.Content()
	if err != nil {
		t.Fatal(err)
	}
	if string(orig) != "one" {
		t.Errorf("mutating the clone mutated the loaded module: %s", orig)
	}
	if len(c.Dependencies) != 1 {
		t.Errorf("clone should retain a snapshot of dependencies")
	}
}

func TestSetDataComposesSourceMapChain(t *testing.T) {
	tbl := NewTable()
	m := tbl.GetModule("/src/a.ts")
	m.SourceMapEnabled = true
	m.SetData(Data{Kind: DataText, Text: "x"}, &SourceMap{Sources: []string{"a.ts"}}, nil)

	var composeCalled bool
	compose := func(old, new *SourceMap) *SourceMap {
		composeCalled = true
		return &SourceMap{Sources: append(append([]string(nil), old.Sources...), new.Sources...)}
	}
	m.SetData(Data{Kind: DataText, Text: "y"}, &SourceMap{Sources: []string{"a.js.tmp"}}, compose)

	if !composeCalled {
		t.Fatalf("expected source map composition on the second SetData call")
	}
	if got := m.SourceMapData().Sources; len(got) != 2 {
		t.Errorf("composed source map sources = %v, want 2 entries", got)
	}
}

func TestComputeDigests(t *testing.T) {
	tbl := NewTable()
	m := tbl.GetModule("/src/a.js")
	m.SetData(Data{Kind: DataText, Text: "var x = 1"}, nil, nil)
	if err := m.ComputeDigests(); err != nil {
		t.Fatal(err)
	}
	if m.MD5 == "" || m.SHA1 == "" || m.Size != len("var x = 1") {
		t.Errorf("ComputeDigests did not populate MD5/SHA1/Size: %+v", m)
	}
}
