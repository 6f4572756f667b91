package watch

import (
	"testing"

	"github.com/pleasebuild/jspack/internal/module"
)

func link(parent, child *module.Module, dynamic bool) {
	parent.AddDependency(&module.Dependency{
		URL:          child.OriginalPath,
		ResolvedFile: child,
		Dynamic:      dynamic,
	})
}

func TestPopulateAndDependersReload(t *testing.T) {
	table := module.NewTable()
	a := table.GetModule("/src/a.js")
	b := table.GetModule("/src/b.js")
	link(a, b, false)

	idx := NewIndex()
	idx.Populate(a)

	dependers := idx.Dependers("/src/b.js", false)
	if len(dependers) != 1 || dependers[0] != a {
		t.Fatalf("Dependers = %+v, want [a]", dependers)
	}
}

func TestDependersReloadOnDeleteOnlyFiresOnDelete(t *testing.T) {
	table := module.NewTable()
	a := table.GetModule("/src/a.js")
	b := table.GetModule("/src/b.js")
	link(a, b, true) // dynamic => ReloadOnDelete edge

	idx := NewIndex()
	idx.Populate(a)

	if got := idx.Dependers("/src/b.js", false); len(got) != 0 {
		t.Errorf("expected no dependers on non-delete event, got %+v", got)
	}
	if got := idx.Dependers("/src/b.js", true); len(got) != 1 {
		t.Errorf("expected depender on delete event, got %+v", got)
	}
}

func TestPopulateRemovesStaleEdges(t *testing.T) {
	table := module.NewTable()
	a := table.GetModule("/src/a.js")
	b := table.GetModule("/src/b.js")
	c := table.GetModule("/src/c.js")
	link(a, b, false)

	idx := NewIndex()
	idx.Populate(a)

	a.Dependencies = nil
	link(a, c, false)
	idx.Populate(a)

	if got := idx.Dependers("/src/b.js", false); len(got) != 0 {
		t.Errorf("expected stale edge to b removed, got %+v", got)
	}
	if got := idx.Dependers("/src/c.js", false); len(got) != 1 {
		t.Errorf("expected new edge to c, got %+v", got)
	}
}

func TestInvalidateCascadesThroughReverseIndex(t *testing.T) {
	table := module.NewTable()
	entry := table.GetModule("/src/entry.js")
	mid := table.GetModule("/src/mid.js")
	leaf := table.GetModule("/src/leaf.css")
	entry.SetState(module.Loaded)
	mid.SetState(module.Loaded)
	leaf.SetState(module.Loaded)
	link(entry, mid, false)
	link(mid, leaf, false)

	idx := NewIndex()
	idx.Populate(entry)
	idx.Populate(mid)

	dirty := Invalidate(Event{Path: "/src/leaf.css", Kind: Changed}, table, idx)

	if leaf.GetState() != module.Changing {
		t.Errorf("leaf state = %v, want Changing", leaf.GetState())
	}
	if mid.GetState() != module.Changing {
		t.Errorf("mid state = %v, want Changing", mid.GetState())
	}
	if entry.GetState() != module.Changing {
		t.Errorf("entry state = %v, want Changing", entry.GetState())
	}
	if len(dirty) != 3 {
		t.Errorf("dirty = %+v, want 3 modules", dirty)
	}
}

func TestInvalidateOnDeleteRemovesFromTable(t *testing.T) {
	table := module.NewTable()
	m := table.GetModule("/src/gone.css")
	m.SetState(module.Loaded)

	idx := NewIndex()
	Invalidate(Event{Path: "/src/gone.css", Kind: Deleted}, table, idx)

	if _, ok := table.Lookup("/src/gone.css"); ok {
		t.Errorf("expected deleted module to be removed from table")
	}
}

func TestInvalidateUnknownPathIsNoop(t *testing.T) {
	table := module.NewTable()
	idx := NewIndex()
	dirty := Invalidate(Event{Path: "/never/seen.js", Kind: Changed}, table, idx)
	if dirty != nil {
		t.Errorf("expected no dirty modules for unknown path, got %+v", dirty)
	}
}
