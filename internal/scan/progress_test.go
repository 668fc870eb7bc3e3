package scan

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/themescan/internal/types"
)

type frameRecorder struct {
	mu     sync.Mutex
	frames []types.ScanProgress
}

func (r *frameRecorder) Emit(p types.ScanProgress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, p)
}

func (r *frameRecorder) Frames() []types.ScanProgress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.ScanProgress(nil), r.frames...)
}

// assertWellFormed checks progress never decreases and exactly one terminal frame at 100 ends the stream
func assertWellFormed(t *testing.T, frames []types.ScanProgress) types.ScanProgress {
	t.Helper()
	require.NotEmpty(t, frames)

	for i := 1; i < len(frames); i++ {
		assert.GreaterOrEqual(t, frames[i].Progress, frames[i-1].Progress, "frame %d regressed", i)
	}
	for i, f := range frames[:len(frames)-1] {
		assert.False(t, f.IsTerminal(), "frame %d is terminal before the end", i)
		assert.Less(t, f.Progress, 100, "frame %d reached 100 early", i)
		assert.Nil(t, f.Results)
		assert.Empty(t, f.Error)
	}

	last := frames[len(frames)-1]
	assert.True(t, last.IsTerminal())
	assert.Equal(t, 100, last.Progress)
	return last
}

func TestProgressTrackerClamps(t *testing.T) {
	rec := &frameRecorder{}
	pt := NewProgressTracker(rec.Emit)

	pt.Update(0, types.StatusInit, "start")
	pt.Update(30, types.StatusScanning, "")
	pt.Update(20, "", "late report")
	pt.Update(150, types.StatusMatching, "")
	pt.Finish([]string{"a"}, nil)
	pt.Update(50, types.StatusScanning, "after finish")
	pt.Finish(nil, errors.New("ignored"))

	frames := rec.Frames()
	last := assertWellFormed(t, frames)
	require.Len(t, frames, 5)

	assert.Equal(t, 30, frames[2].Progress)
	assert.Equal(t, types.StatusScanning, frames[2].Status, "empty status keeps the previous one")
	assert.Equal(t, 99, frames[3].Progress)
	assert.Equal(t, types.StatusDone, last.Status)
	assert.Equal(t, []string{"a"}, last.Results)
	assert.True(t, pt.Finished())
}

func TestProgressTrackerError(t *testing.T) {
	rec := &frameRecorder{}
	pt := NewProgressTracker(rec.Emit)

	pt.Update(10, types.StatusScanning, "")
	pt.Finish([]string{"partial"}, errors.New("rate limited"))

	last := assertWellFormed(t, rec.Frames())
	assert.Equal(t, types.StatusError, last.Status)
	assert.Equal(t, "rate limited", last.Error)
	assert.Equal(t, []string{"partial"}, last.Results)
}

func TestProgressTrackerRange(t *testing.T) {
	rec := &frameRecorder{}
	pt := NewProgressTracker(rec.Emit)

	onProgress := pt.Range(10, 99, types.StatusScanning)
	for scanned := 2; scanned <= 10; scanned += 2 {
		onProgress(scanned, 10)
	}

	var got []int
	for _, f := range rec.Frames() {
		got = append(got, f.Progress)
	}
	assert.Equal(t, []int{27, 45, 63, 81, 99}, got)
	assert.Equal(t, 99, pt.Last())
}

func TestProgressTrackerNilEmitter(t *testing.T) {
	pt := NewProgressTracker(nil)
	pt.Update(5, types.StatusInit, "")
	pt.Finish(nil, nil)
	assert.Equal(t, 100, pt.Last())
}
