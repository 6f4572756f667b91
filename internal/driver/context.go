package driver

import (
	"sync"
	"sync/atomic"
	"time"
)

// BuildContext is the progress/error record reported to the optional
// reporter .
type BuildContext struct {
	Mode      BuildMode
	StartTime time.Time

	totalTasks int64
	doneTasks  int64

	errorCount   int64
	warningCount int64

	aborted int32

	Hash uint64

	mu    sync.Mutex
	files []string
}

func newBuildContext(mode BuildMode, hash uint64) *BuildContext {
	return &BuildContext{Mode: mode, StartTime: nowFunc(), Hash: hash}
}

// nowFunc is indirected so tests can freeze time; production always uses
// time.Now.
var nowFunc = time.Now

func (bc *BuildContext) setTotalTasks(n int64) { atomic.StoreInt64(&bc.totalTasks, n) }

func (bc *BuildContext) taskDone() { atomic.AddInt64(&bc.doneTasks, 1) }

// Progress returns the completion fraction in [0,1].
func (bc *BuildContext) Progress() float64 {
	total := atomic.LoadInt64(&bc.totalTasks)
	if total == 0 {
		return 0
	}
	done := atomic.LoadInt64(&bc.doneTasks)
	return float64(done) / float64(total)
}

func (bc *BuildContext) recordError()   { atomic.AddInt64(&bc.errorCount, 1) }
func (bc *BuildContext) recordWarning() { atomic.AddInt64(&bc.warningCount, 1) }

// ErrorCount and WarningCount report accumulated log severities across the
// build (build-context fields).
func (bc *BuildContext) ErrorCount() int64   { return atomic.LoadInt64(&bc.errorCount) }
func (bc *BuildContext) WarningCount() int64 { return atomic.LoadInt64(&bc.warningCount) }

func (bc *BuildContext) markAborted() { atomic.StoreInt32(&bc.aborted, 1) }

// Aborted reports whether the build was abandoned mid-flight.
func (bc *BuildContext) Aborted() bool { return atomic.LoadInt32(&bc.aborted) == 1 }

func (bc *BuildContext) recordFile(path string) {
	bc.mu.Lock()
	bc.files = append(bc.files, path)
	bc.mu.Unlock()
}

// Files returns every path written (or would-have-been-written, in
// noWrite mode) during this build.
func (bc *BuildContext) Files() []string {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return append([]string(nil), bc.files...)
}

// Elapsed is the time since the build started.
func (bc *BuildContext) Elapsed() time.Duration { return nowFunc().Sub(bc.StartTime) }
