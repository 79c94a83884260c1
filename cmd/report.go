package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/guspollitzer/workflow-backlog-projection/sim"
	"github.com/guspollitzer/workflow-backlog-projection/sim/scenario"
	"github.com/guspollitzer/workflow-backlog-projection/sim/trace"
)

// Report is the outcome of one projection.
type Report struct {
	Workflow  sim.WorkflowKind
	Start     time.Time
	Trace     *trace.ProjectionTrace
	Summary   *trace.TraceSummary
	Oversight *trace.OversightSummary // nil unless oversight was requested
}

// project runs the trajectory estimator from the scenario clock and, when
// asked, the overseer on its result.
func project(inputs *scenario.Inputs, withOversight bool) (*Report, error) {
	start := inputs.Clock.Now()
	steps, err := sim.EstimateTrajectory(start, inputs.Backlog, inputs.Slas, inputs.Estimator, inputs.Invariants)
	if err != nil {
		return nil, err
	}
	pt := trace.NewProjectionTrace()
	pt.RecordTrajectory(steps)
	report := &Report{
		Workflow: inputs.Topology.Kind,
		Start:    start,
		Trace:    pt,
		Summary:  trace.Summarize(steps),
	}
	if withOversight {
		overseer := sim.NewOverseer(inputs.Topology, inputs.Plan, inputs.Buffer)
		oversaw, err := overseer.OverseeTrajectory(steps, inputs.Consumption, inputs.InitialDownstream)
		if err != nil {
			return nil, err
		}
		pt.RecordOversight(oversaw)
		report.Oversight = trace.SummarizeHeadcounts(pt)
	}
	return report, nil
}

// Write prints the report. Steps are listed only at TraceLevelSteps.
func (r *Report) Write(w io.Writer, level trace.TraceLevel) {
	fmt.Fprintf(w, "=== Backlog Projection: %s from %s ===\n", r.Workflow, r.Start.Format(time.RFC3339))
	fmt.Fprintf(w, "Steps                : %d\n", r.Summary.Steps)

	if level == trace.TraceLevelSteps {
		fmt.Fprintln(w, "--- Steps ---")
		for _, rec := range r.Trace.Stages {
			fmt.Fprintf(w, "[%s, %s) %-16s initial=%d incoming=%d processed=%d shortage=%d final=%d\n",
				rec.Start.Format(time.RFC3339), rec.End.Format(time.RFC3339), rec.Stage,
				rec.Initial, rec.Incoming, rec.Processed, rec.Shortage, rec.Final)
		}
		for _, rec := range r.Trace.Headcounts {
			fmt.Fprintf(w, "[%s, %s) %-16s headcount=%d\n",
				rec.Start.Format(time.RFC3339), rec.End.Format(time.RFC3339), rec.Stage, rec.Headcount)
		}
	}

	fmt.Fprintln(w, "--- Stages ---")
	for _, s := range r.Summary.Stages {
		fmt.Fprintf(w, "%-16s incoming=%d processed=%d shortage=%d peak_backlog=%d final_backlog=%d\n",
			s.Stage, s.Incoming, s.Processed, s.Shortage, s.PeakBacklog, s.FinalBacklog)
	}
	if r.Oversight != nil {
		fmt.Fprintln(w, "--- Optimum Headcount ---")
		for _, s := range r.Oversight.Stages {
			fmt.Fprintf(w, "%-16s peak=%d mean=%.2f\n", s.Stage, s.Peak, s.Mean)
		}
	}
}
