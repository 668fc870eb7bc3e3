package scan

import (
	"sync"
	"time"

	"github.com/standardbeagle/themescan/internal/types"
)

// Emitter receives every frame of a scan, terminal frame last
type Emitter func(types.ScanProgress)

// Progress ranges of the scan phases
const (
	progressInit        = 0
	progressEnumerating = 1
	progressListing     = 8
	progressScanStart   = 10
	progressScanEnd     = 99
	progressDone        = 100

	// sections split scanning between the schema pass and the assignment pass
	progressSchemaEnd = 40
)

// ProgressTracker serializes the frames of one scan
// Purpose: Keep progress non-decreasing and guarantee exactly one terminal frame at 100.
// Gotchas: Enumeration and listing report from different goroutines, so every
// update goes through mu; a lower value than the last one is raised, never emitted as-is.
type ProgressTracker struct {
	mu        sync.Mutex
	emit      Emitter
	last      int
	status    types.ScanStatus
	finished  bool
	startTime time.Time
}

// NewProgressTracker creates a tracker that forwards frames to emit
func NewProgressTracker(emit Emitter) *ProgressTracker {
	if emit == nil {
		emit = func(types.ScanProgress) {}
	}
	return &ProgressTracker{emit: emit, status: types.StatusInit, startTime: time.Now()}
}

// Update emits a non-terminal frame. Values are clamped to [last, 99].
func (pt *ProgressTracker) Update(progress int, status types.ScanStatus, message string) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	if pt.finished {
		return
	}
	if progress > progressScanEnd {
		progress = progressScanEnd
	}
	if progress < pt.last {
		progress = pt.last
	}
	pt.last = progress
	if status != "" {
		pt.status = status
	}
	pt.emit(types.ScanProgress{Progress: progress, Status: pt.status, Message: message})
}

// Range returns a ProgressFunc mapping scanned/total linearly onto [lo, hi]
func (pt *ProgressTracker) Range(lo, hi int, status types.ScanStatus) ProgressFunc {
	return func(scanned, total int) {
		p := hi
		if total > 0 {
			p = lo + (hi-lo)*scanned/total
		}
		pt.Update(p, status, "")
	}
}

// Finish emits the terminal frame. results may accompany err for a partial
// scan. Only the first call has an effect.
func (pt *ProgressTracker) Finish(results interface{}, err error) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	if pt.finished {
		return
	}
	pt.finished = true
	pt.last = progressDone

	frame := types.ScanProgress{Progress: progressDone, Results: results}
	if err != nil {
		pt.status = types.StatusError
		frame.Error = err.Error()
		frame.Message = "Scan failed"
	} else {
		pt.status = types.StatusDone
		frame.Message = "Scan complete"
	}
	frame.Status = pt.status
	pt.emit(frame)
}

// Last returns the most recent progress value
func (pt *ProgressTracker) Last() int {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	return pt.last
}

// Finished reports whether the terminal frame was emitted
func (pt *ProgressTracker) Finished() bool {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	return pt.finished
}

// Elapsed returns the time since the tracker was created
func (pt *ProgressTracker) Elapsed() time.Duration {
	return time.Since(pt.startTime)
}
