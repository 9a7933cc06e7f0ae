package console

import (
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/progress"

	"github.com/OpenTraceLab/OpenTraceKNX/pkg/keyspace"
	"github.com/OpenTraceLab/OpenTraceKNX/pkg/search"
)

// ProgressView draws one tracker per search stage.
type ProgressView struct {
	pw       progress.Writer
	trackers map[keyspace.Stage]*progress.Tracker
}

// NewProgressView returns a view rendering to w.
func NewProgressView(w io.Writer) *ProgressView {
	pw := progress.NewWriter()
	pw.SetOutputWriter(w)
	pw.SetAutoStop(false)
	pw.SetTrackerLength(30)
	pw.SetUpdateFrequency(250 * time.Millisecond)
	pw.SetStyle(progress.StyleDefault)
	pw.Style().Visibility.ETA = true
	pw.Style().Visibility.Speed = true
	pw.Style().Visibility.Value = true

	return &ProgressView{
		pw:       pw,
		trackers: make(map[keyspace.Stage]*progress.Tracker),
	}
}

// Run renders events from ch until it is closed.
func (v *ProgressView) Run(ch <-chan search.Progress) {
	v.Start()
	for p := range ch {
		v.apply(p)
	}
	v.Stop()
}

// Stop ends rendering and waits for the last frame. Stop is repeated because
// a render that has not finished starting ignores it.
func (v *ProgressView) Stop() {
	for v.pw.IsRenderInProgress() {
		v.pw.Stop()
		time.Sleep(10 * time.Millisecond)
	}
}

// Track adds a free-standing tracker, used by the benchmark.
func (v *ProgressView) Track(message string, total int64) *progress.Tracker {
	t := &progress.Tracker{Message: message, Total: total, Units: progress.UnitsDefault}
	v.pw.AppendTracker(t)
	return t
}

// Start begins rendering in the background.
func (v *ProgressView) Start() {
	go v.pw.Render()
	for !v.pw.IsRenderInProgress() {
		time.Sleep(time.Millisecond)
	}
}

func (v *ProgressView) tracker(p search.Progress) *progress.Tracker {
	t, ok := v.trackers[p.Stage]
	if !ok {
		t = v.Track(p.Stage.String(), int64(p.Total))
		v.trackers[p.Stage] = t
	}
	return t
}

func (v *ProgressView) apply(p search.Progress) {
	t := v.tracker(p)
	if p.Done {
		t.MarkAsDone()
		return
	}
	t.SetValue(position(p))
}

// position converts the logical index of p to a count of indices covered.
// Dictionary indices are already 1-based line numbers.
func position(p search.Progress) int64 {
	if p.Stage == keyspace.StageDictionary {
		return int64(p.Index)
	}
	return int64(p.Index) + 1
}
