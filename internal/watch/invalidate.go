package watch

import "github.com/pleasebuild/jspack/internal/module"

// Invalidate cascades a filesystem Event through table and idx, setting
// each affected module's state according to the event kind, and returns
// every module that needs to be re-loaded.
func Invalidate(ev Event, table *module.Table, idx *Index) []*module.Module {
	affected, ok := table.Lookup(ev.Path)
	if !ok {
		// Not a module we've ever tracked (e.g. a brand-new file with no
		// depender yet); nothing to cascade.
		return nil
	}

	var directState module.State
	switch ev.Kind {
	case Created:
		directState = module.Creating
	case Deleted:
		directState = module.Deleting
	default:
		directState = module.Changing
	}
	affected.SetState(directState)

	seen := map[*module.Module]bool{affected: true}
	queue := []*module.Module{affected}
	var dirty []*module.Module
	if ev.Kind != Deleted {
		dirty = append(dirty, affected)
	}

	deleted := ev.Kind == Deleted
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, dep := range idx.Dependers(cur.OriginalPath, deleted) {
			if seen[dep] {
				continue
			}
			seen[dep] = true
			if !dep.GetState().Pending() {
				dep.SetState(module.Changing)
			}
			dirty = append(dirty, dep)
			queue = append(queue, dep)
		}
	}

	if ev.Kind == Deleted {
		affected.SetState(module.Deleted)
		table.Delete(ev.Path)
	}
	return dirty
}
