package sim

import (
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
)

// EstimateTrajectory forecasts the backlog of every stage of a workflow from
// start until the last known deadline.
//
// The horizon is cut at every inflection point (each distinct future deadline
// plus those reported by the processing-order and buffer policies); estimator
// runs once per resulting interval, each step starting from the previous
// step's final backlog. Deadlines are gathered from slas and from the SLAs
// already tagging the starting backlog. Without future deadlines the
// trajectory is empty.
//
// A contract violation detected while estimating aborts the computation and is
// returned as an *InvariantViolation.
func EstimateTrajectory(
	start time.Time,
	backlog StageMap[Queue],
	slas []Sla,
	estimator StepEstimator,
	inv *Invariants,
) (steps []WorkflowTrajectoryStep, err error) {
	if err := inv.Validate(); err != nil {
		return nil, err
	}
	if estimator == nil {
		return nil, fmt.Errorf("step estimator must not be nil")
	}
	for _, s := range backlog.Stages() {
		if !inv.Topology.Contains(s) {
			return nil, fmt.Errorf("backlog holds stage %s outside workflow %s", s, inv.Topology.Kind)
		}
	}
	defer func() {
		if err != nil {
			steps = nil
		}
	}()
	defer recoverViolation(&err)

	known := append([]Sla(nil), slas...)
	backlog.Each(func(_ StageID, q Queue) {
		for _, p := range Breakdown(q) {
			known = append(known, p.Sla)
		}
	})
	upcoming := GroupSlasByDeadline(known).After(start)
	last, ok := upcoming.Last()
	if !ok {
		logrus.Debugf("no deadline after %s; empty trajectory", start.Format(time.RFC3339))
		return nil, nil
	}

	points := inflectionPoints(start, last, upcoming, inv)
	steps = make([]WorkflowTrajectoryStep, 0, len(points))
	stepStart := start
	for _, stepEnd := range points {
		step := estimator(&stepContext{
			start:    stepStart,
			end:      stepEnd,
			backlog:  backlog,
			upcoming: upcoming.After(stepStart),
			inv:      inv,
		})
		steps = append(steps, step)
		backlog = step.FinalBacklog()
		stepStart = stepEnd
	}
	logrus.Debugf("estimated %d steps over [%s, %s]", len(steps), start.Format(time.RFC3339), last.Format(time.RFC3339))
	return steps, nil
}

// inflectionPoints returns the sorted, de-duplicated instants in (start, last]
// at which some simulation input changes. last is always included.
func inflectionPoints(start, last time.Time, upcoming UpcomingSlas, inv *Invariants) []time.Time {
	candidates := upcoming.Deadlines()
	candidates = append(candidates, inv.Policy.InflectionPointsBetween(start, last)...)
	candidates = append(candidates, inv.Buffer.InflectionPointsBetween(start, last)...)
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Before(candidates[j]) })

	points := make([]time.Time, 0, len(candidates))
	for _, t := range candidates {
		if !t.After(start) || t.After(last) {
			continue
		}
		if n := len(points); n > 0 && points[n-1].Equal(t) {
			continue
		}
		points = append(points, t)
	}
	return points
}
