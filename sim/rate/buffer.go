package rate

import (
	"fmt"
	"sort"
	"time"

	"github.com/guspollitzer/workflow-backlog-projection/sim"
)

// BufferWindow sets the buffer bounds of a stage from From until the next window.
type BufferWindow struct {
	From time.Time
	Min  time.Duration
	Max  time.Duration
}

// BufferSchedule implements sim.BufferPolicy. The desired buffer of a stage is
// the midpoint of the window in force; before the first window the first one
// applies. Stages without windows want no buffer.
type BufferSchedule struct {
	windows           sim.StageMap[[]BufferWindow]
	capAtLastDeadline bool
}

// NewBufferSchedule validates and sorts the windows of every stage. With
// capAtLastDeadline the buffer never reaches past the last upcoming deadline.
func NewBufferSchedule(windows sim.StageMap[[]BufferWindow], capAtLastDeadline bool) (*BufferSchedule, error) {
	sorted := sim.StageMap[[]BufferWindow]{}
	for _, e := range windows.Entries() {
		ws := append([]BufferWindow(nil), e.Value...)
		for i, w := range ws {
			if w.Min < 0 || w.Max < w.Min {
				return nil, fmt.Errorf("stage %s window %d: need 0 <= min <= max, got min=%s max=%s", e.Stage, i, w.Min, w.Max)
			}
		}
		sort.SliceStable(ws, func(i, j int) bool { return ws[i].From.Before(ws[j].From) })
		sorted = sorted.With(e.Stage, ws)
	}
	return &BufferSchedule{windows: sorted, capAtLastDeadline: capAtLastDeadline}, nil
}

// DesiredBufferSize returns how much look-ahead work the stage should hold at at.
func (b *BufferSchedule) DesiredBufferSize(stage sim.StageID, at time.Time, upcoming sim.UpcomingSlas) time.Duration {
	ws, ok := b.windows.Get(stage)
	if !ok || len(ws) == 0 {
		return 0
	}
	w := ws[0]
	for _, candidate := range ws[1:] {
		if candidate.From.After(at) {
			break
		}
		w = candidate
	}
	desired := w.Min + (w.Max-w.Min)/2
	if b.capAtLastDeadline {
		if last, ok := upcoming.Last(); ok {
			desired = min(desired, max(0, last.Sub(at)))
		}
	}
	return desired
}

// InflectionPointsBetween returns the window starts inside (from, to), sorted.
func (b *BufferSchedule) InflectionPointsBetween(from, to time.Time) []time.Time {
	var points []time.Time
	b.windows.Each(func(_ sim.StageID, ws []BufferWindow) {
		for _, w := range ws {
			if w.From.After(from) && w.From.Before(to) {
				points = append(points, w.From)
			}
		}
	})
	sort.Slice(points, func(i, j int) bool { return points[i].Before(points[j]) })
	return points
}

// FixedBuffer wants the same buffer in front of every stage at all times.
type FixedBuffer time.Duration

func (f FixedBuffer) DesiredBufferSize(sim.StageID, time.Time, sim.UpcomingSlas) time.Duration {
	return time.Duration(f)
}

func (FixedBuffer) InflectionPointsBetween(time.Time, time.Time) []time.Time { return nil }
