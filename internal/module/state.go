package module

// State is a Module's position in its lifecycle. On the happy path it moves
// strictly forward: Initial -> Loading -> Loaded -> Emitting -> Emitted.
// A watcher-driven reset can return a module to Initial or Deleted from any
// state, and an aborted build drives loading/loaded/emitting modules to
// Changing so in-flight callbacks notice the mismatch at their next
// checkpoint.
type State int

const (
	Initial State = iota
	Loading
	Loaded
	Emitting
	Emitted
	Deleted
	Changing
	Creating
	Deleting
)

func (s State) String() string {
	switch s {
	case Initial:
		return "initial"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Emitting:
		return "emitting"
	case Emitted:
		return "emitted"
	case Deleted:
		return "deleted"
	case Changing:
		return "changing"
	case Creating:
		return "creating"
	case Deleting:
		return "deleting"
	default:
		return "unknown"
	}
}

// Pending reports whether the state represents a watcher-scheduled change
// that has not yet been picked up by an incremental rebuild.
func (s State) Pending() bool {
	switch s {
	case Changing, Creating, Deleting:
		return true
	default:
		return false
	}
}
