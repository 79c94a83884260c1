package sim

import (
	"fmt"
	"math"
	"time"

	"golang.org/x/sync/errgroup"
)

// StageTrajectoryOversawStep enriches a forward stage step with the minimum
// headcount the stage needs to keep its downstream supplied.
type StageTrajectoryOversawStep struct {
	Raw              *StageTrajectoryStep
	OptimumHeadcount int64
}

// WorkflowTrajectoryOversawStep holds the oversaw stages of one interval.
// Only human-powered stages appear.
type WorkflowTrajectoryOversawStep struct {
	Start  time.Time
	End    time.Time
	Stages StageMap[StageTrajectoryOversawStep]
}

// Overseer sizes headcount backwards, from each final stage to the root,
// against a downstream consumption signal. Branches of a step are walked on
// separate goroutines, so the plan and buffer policy must be safe for
// concurrent reads.
type Overseer struct {
	topology *Topology
	plan     StaffingPlan
	buffer   BufferPolicy
}

// NewOverseer creates an Overseer sharing the plan and buffer policy the
// forward trajectory was estimated with.
func NewOverseer(topology *Topology, plan StaffingPlan, buffer BufferPolicy) *Overseer {
	if topology == nil || plan == nil || buffer == nil {
		panic("NewOverseer: topology, plan and buffer must not be nil")
	}
	return &Overseer{topology: topology, plan: plan, buffer: buffer}
}

// OverseeTrajectory computes, for every step and human-powered stage, the
// minimum headcount needed to satisfy downstream consumption while keeping
// the desired buffer in front of every stage.
//
// initialSplit holds, per final stage, units already available downstream at
// the start of the trajectory; they serve demand before any stage is sized.
// Branches sharing upstream stages add their headcounts; branches disagreeing
// on the raw step of a shared stage abort with an *InvariantViolation.
func (o *Overseer) OverseeTrajectory(
	steps []WorkflowTrajectoryStep,
	consumption DownstreamConsumption,
	initialSplit StageMap[Queue],
) (oversaw []WorkflowTrajectoryOversawStep, err error) {
	if consumption == nil {
		return nil, fmt.Errorf("downstream consumption must not be nil")
	}
	defer func() {
		if err != nil {
			oversaw = nil
		}
	}()
	defer recoverViolation(&err)

	finals := o.topology.FinalStages()
	stock := make([]int64, len(finals))
	for i, f := range finals {
		if q, ok := initialSplit.Get(f); ok && q != nil {
			stock[i] = q.Total()
		}
	}

	oversaw = make([]WorkflowTrajectoryOversawStep, 0, len(steps))
	for _, step := range steps {
		seeds := make([]int64, len(finals))
		for i, f := range finals {
			demand := consumption.Integral(f, step.Start, step.End).Total()
			served := min(stock[i], demand)
			stock[i] -= served
			seeds[i] = demand - served
		}
		stages, err := o.overseeStep(step, finals, seeds)
		if err != nil {
			return nil, err
		}
		oversaw = append(oversaw, WorkflowTrajectoryOversawStep{Start: step.Start, End: step.End, Stages: stages})
	}
	return oversaw, nil
}

// overseeStep walks every final-stage branch of one step concurrently and
// merges the branches in final-stage order.
func (o *Overseer) overseeStep(step WorkflowTrajectoryStep, finals []StageID, seeds []int64) (StageMap[StageTrajectoryOversawStep], error) {
	branches := make([]StageMap[StageTrajectoryOversawStep], len(finals))
	var g errgroup.Group
	for i := range finals {
		i := i
		g.Go(func() (err error) {
			defer recoverViolation(&err)
			branches[i] = o.walkBranch(step, finals[i], seeds[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return StageMap[StageTrajectoryOversawStep]{}, err
	}
	return mergeBranches(step, branches), nil
}

// mergeBranches adds the headcounts of stages shared by several branches.
// Shared stages must wrap the very same raw step.
func mergeBranches(step WorkflowTrajectoryStep, branches []StageMap[StageTrajectoryOversawStep]) StageMap[StageTrajectoryOversawStep] {
	var merged StageMap[StageTrajectoryOversawStep]
	for _, b := range branches {
		merged = merged.Merge(b, func(x, y StageTrajectoryOversawStep) StageTrajectoryOversawStep {
			mustHold(x.Raw == y.Raw, "branches agree on shared stages",
				"stage %s has diverging raw steps in [%s, %s)", x.Raw.Stage, step.Start, step.End)
			return StageTrajectoryOversawStep{Raw: x.Raw, OptimumHeadcount: x.OptimumHeadcount + y.OptimumHeadcount}
		})
	}
	return merged
}

// walkBranch sizes the stages from finalStage back to the root.
func (o *Overseer) walkBranch(step WorkflowTrajectoryStep, finalStage StageID, desiredPower int64) StageMap[StageTrajectoryOversawStep] {
	var out StageMap[StageTrajectoryOversawStep]
	for stage := finalStage; stage != NoStage; stage = stage.Predecessor() {
		if !stage.IsHumanPowered() {
			// A release gate is sized by the forward pass; the walk goes on
			// with the same demand.
			continue
		}
		raw, ok := step.Stages.Get(stage)
		mustHold(ok, "trajectory step covers every stage", "stage %s missing from [%s, %s)", stage, step.Start, step.End)

		productivity := o.plan.AverageProductivity(stage, step.Start, step.End)
		if productivity <= 0 {
			out = out.With(stage, StageTrajectoryOversawStep{Raw: raw, OptimumHeadcount: 0})
			desiredPower = 0
			continue
		}
		headcount := max(0, int64(math.Ceil(float64(desiredPower)/productivity)))
		buffer := o.buffer.DesiredBufferSize(stage, step.End, step.Upcoming)
		upstream := o.plan.IntegrateThroughput(stage, step.Start, step.End.Add(buffer)) - float64(raw.InitialQueue.Total())
		out = out.With(stage, StageTrajectoryOversawStep{Raw: raw, OptimumHeadcount: headcount})
		desiredPower = max(0, roundUnits(upstream))
	}
	return out
}
