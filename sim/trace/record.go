// Package trace flattens estimated trajectories into per-step records and
// aggregates them into per-stage summaries for reporting.
package trace

import "time"

// StageRecord captures one stage over one trajectory step.
type StageRecord struct {
	Start     time.Time
	End       time.Time
	Stage     string
	Initial   int64
	Incoming  int64
	Processed int64
	Shortage  int64
	Final     int64
}

// HeadcountRecord captures the headcount the overseer sized for one stage over
// one step.
type HeadcountRecord struct {
	Start     time.Time
	End       time.Time
	Stage     string
	Headcount int64
}

// Hours returns the step length in hours.
func (r HeadcountRecord) Hours() float64 { return r.End.Sub(r.Start).Hours() }
