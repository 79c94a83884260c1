package trace

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/guspollitzer/workflow-backlog-projection/sim"
)

// StageSummary aggregates the records of one stage over a whole trajectory.
type StageSummary struct {
	Stage        string
	Incoming     int64
	Processed    int64
	Shortage     int64
	PeakBacklog  int64
	FinalBacklog int64
}

// TraceSummary aggregates a ProjectionTrace.
type TraceSummary struct {
	Steps  int
	Stages []StageSummary // in order of first appearance
}

// HeadcountSummary aggregates the sized headcount of one stage.
type HeadcountSummary struct {
	Stage string
	Peak  int64
	Mean  float64 // weighted by step length
}

// OversightSummary aggregates the headcount records of a ProjectionTrace.
type OversightSummary struct {
	Stages []HeadcountSummary // in order of first appearance
}

// Summarize computes per-stage totals of a trajectory.
func Summarize(steps []sim.WorkflowTrajectoryStep) *TraceSummary {
	pt := NewProjectionTrace()
	pt.RecordTrajectory(steps)
	summary := SummarizeTrace(pt)
	summary.Steps = len(steps)
	return summary
}

// SummarizeOversight computes per-stage headcount statistics of an oversaw trajectory.
func SummarizeOversight(oversaw []sim.WorkflowTrajectoryOversawStep) *OversightSummary {
	pt := NewProjectionTrace()
	pt.RecordOversight(oversaw)
	return SummarizeHeadcounts(pt)
}

// SummarizeTrace aggregates the stage records of a trace.
// Safe for nil or empty traces (returns zero-value fields).
func SummarizeTrace(pt *ProjectionTrace) *TraceSummary {
	summary := &TraceSummary{}
	if pt == nil {
		return summary
	}
	index := make(map[string]int)
	steps := make(map[int64]bool)
	for _, r := range pt.Stages {
		steps[r.Start.UnixNano()] = true
		i, ok := index[r.Stage]
		if !ok {
			i = len(summary.Stages)
			index[r.Stage] = i
			summary.Stages = append(summary.Stages, StageSummary{Stage: r.Stage, PeakBacklog: r.Initial})
		}
		s := &summary.Stages[i]
		s.Incoming += r.Incoming
		s.Processed += r.Processed
		s.Shortage += r.Shortage
		s.PeakBacklog = max(s.PeakBacklog, r.Initial, r.Final)
		s.FinalBacklog = r.Final
	}
	summary.Steps = len(steps)
	return summary
}

// SummarizeHeadcounts aggregates the headcount records of a trace.
// Safe for nil or empty traces.
func SummarizeHeadcounts(pt *ProjectionTrace) *OversightSummary {
	summary := &OversightSummary{}
	if pt == nil {
		return summary
	}
	index := make(map[string]int)
	var headcounts, hours [][]float64
	for _, r := range pt.Headcounts {
		i, ok := index[r.Stage]
		if !ok {
			i = len(summary.Stages)
			index[r.Stage] = i
			summary.Stages = append(summary.Stages, HeadcountSummary{Stage: r.Stage})
			headcounts = append(headcounts, nil)
			hours = append(hours, nil)
		}
		summary.Stages[i].Peak = max(summary.Stages[i].Peak, r.Headcount)
		headcounts[i] = append(headcounts[i], float64(r.Headcount))
		hours[i] = append(hours[i], r.Hours())
	}
	for i := range summary.Stages {
		weights := hours[i]
		if floats.Sum(weights) <= 0 {
			weights = nil
		}
		summary.Stages[i].Mean = stat.Mean(headcounts[i], weights)
	}
	return summary
}
