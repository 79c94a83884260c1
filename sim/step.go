package sim

import (
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"
)

// StageTrajectoryStep is one stage's state over one interval.
type StageTrajectoryStep struct {
	Stage                  StageID
	InitialQueue           Queue           // backlog at interval start
	IncomingQueue          Queue           // units received from upstream during the interval
	ProcessedByDestination StageMap[Queue] // processed units by destination stage
	FinalQueue             Queue           // backlog at interval end
	ProcessedTotal         int64
	QueueShortage          int64 // processing power left unused for lack of work
}

// newStageStep builds a stage step, checking that the final backlog is exactly
// initial + incoming - processed.
func newStageStep(stage StageID, initial, incoming Queue, split Split, final Queue, processedTotal, shortage int64) *StageTrajectoryStep {
	mustHold(split.ProcessedTotal() == processedTotal, "processed equals requested",
		"stage %s routed %d units, processed %d", stage, split.ProcessedTotal(), processedTotal)
	mustHold(final.Total() == initial.Total()+incoming.Total()-processedTotal, "stage conservation",
		"stage %s: final %d != initial %d + incoming %d - processed %d",
		stage, final.Total(), initial.Total(), incoming.Total(), processedTotal)
	mustHold(shortage >= 0, "non-negative shortage", "stage %s shortage %d", stage, shortage)
	return &StageTrajectoryStep{
		Stage:                  stage,
		InitialQueue:           initial,
		IncomingQueue:          incoming,
		ProcessedByDestination: split.Processed,
		FinalQueue:             final,
		ProcessedTotal:         processedTotal,
		QueueShortage:          shortage,
	}
}

// WorkflowTrajectoryStep is the state of every stage of a workflow over
// [Start, End). Upcoming holds the SLAs whose deadline is after Start.
type WorkflowTrajectoryStep struct {
	Start    time.Time
	End      time.Time
	Stages   StageMap[*StageTrajectoryStep]
	Upcoming UpcomingSlas
}

// FinalBacklog returns the per-stage backlog at the end of the step.
func (s WorkflowTrajectoryStep) FinalBacklog() StageMap[Queue] {
	return MapStageValues(s.Stages, func(_ StageID, st *StageTrajectoryStep) Queue { return st.FinalQueue })
}

// Invariants are the parameters shared by every step of a trajectory.
type Invariants struct {
	Topology *Topology
	Plan     StaffingPlan
	Arrivals UpstreamArrivals
	Policy   ProcessingOrderPolicy
	Buffer   BufferPolicy
}

// Validate checks that every collaborator is present.
func (inv *Invariants) Validate() error {
	switch {
	case inv == nil:
		return fmt.Errorf("invariants must not be nil")
	case inv.Topology == nil:
		return fmt.Errorf("invariants: topology must not be nil")
	case inv.Plan == nil:
		return fmt.Errorf("invariants: staffing plan must not be nil")
	case inv.Arrivals == nil:
		return fmt.Errorf("invariants: upstream arrivals must not be nil")
	case inv.Policy == nil:
		return fmt.Errorf("invariants: processing order policy must not be nil")
	case inv.Buffer == nil:
		return fmt.Errorf("invariants: buffer policy must not be nil")
	}
	return nil
}

// stepContext carries everything one step needs. It is read-only.
type stepContext struct {
	start    time.Time
	end      time.Time
	backlog  StageMap[Queue]
	upcoming UpcomingSlas
	inv      *Invariants
}

// StepEstimator is the per-interval state transition of a workflow.
type StepEstimator func(ctx *stepContext) WorkflowTrajectoryStep

var (
	// WavelessStep cascades upstream arrivals through a workflow whose first
	// stage is human-powered.
	WavelessStep StepEstimator = estimateWavelessStep
	// WaveGatedStep sizes the release of a non-human gate from the buffer
	// policy before cascading.
	WaveGatedStep StepEstimator = estimateWaveGatedStep
)

var stepEstimators = [workflowKindCount]StepEstimator{
	Inbound:        estimateWavelessStep,
	OutboundDirect: estimateWaveGatedStep,
	OutboundWall:   estimateWaveGatedStep,
}

// StepEstimatorFor returns the step estimator of a workflow kind.
func StepEstimatorFor(kind WorkflowKind) StepEstimator {
	if kind < 0 || kind >= workflowKindCount {
		panic(fmt.Sprintf("StepEstimatorFor: unknown workflow kind %d", int(kind)))
	}
	return stepEstimators[kind]
}

func (ctx *stepContext) backlogAt(stage StageID) Queue {
	if q, ok := ctx.backlog.Get(stage); ok && q != nil {
		return q
	}
	return EmptyQueueFor(stage.Discipline())
}

// processingPower is the rounded throughput integral of the stage over the
// step, zero when the stage's productivity is not positive.
func (ctx *stepContext) processingPower(stage StageID) int64 {
	if ctx.inv.Plan.AverageProductivity(stage, ctx.start, ctx.end) <= 0 {
		return 0
	}
	return max(0, roundUnits(ctx.inv.Plan.IntegrateThroughput(stage, ctx.start, ctx.end)))
}

func roundUnits(x float64) int64 {
	return int64(math.RoundToEven(x))
}

func (ctx *stepContext) workflowStep(stages StageMap[*StageTrajectoryStep]) WorkflowTrajectoryStep {
	return WorkflowTrajectoryStep{Start: ctx.start, End: ctx.end, Stages: stages, Upcoming: ctx.upcoming}
}

func estimateWavelessStep(ctx *stepContext) WorkflowTrajectoryStep {
	incoming := ctx.inv.Arrivals.Integral(ctx.start, ctx.end)
	stages := ctx.cascade(ctx.inv.Topology.Root(), incoming, StageMap[*StageTrajectoryStep]{})
	return ctx.workflowStep(stages)
}

func estimateWaveGatedStep(ctx *stepContext) WorkflowTrajectoryStep {
	topology := ctx.inv.Topology
	gate := topology.Root()
	mustHold(!gate.IsHumanPowered(), "wave gate is not human-powered", "stage %s is human-powered", gate)
	processing := topology.ProcessingStages()
	mustHold(len(processing) > 0, "wave gate feeds a processing stage", "workflow %s has none", topology.Kind)
	first := processing[0]

	// Release enough for the first processing stage to end the step holding the
	// desired buffer. Arrivals during the step are not counted: the wave is
	// sized at the start of the interval.
	buffer := ctx.inv.Buffer.DesiredBufferSize(first, ctx.start, ctx.upcoming)
	desired := roundUnits(ctx.inv.Plan.IntegrateThroughput(first, ctx.start, ctx.end.Add(buffer))) - ctx.backlogAt(first).Total()

	gateInitial := ctx.backlogAt(gate)
	achievable := max(0, min(gateInitial.Total(), desired))
	split := ctx.inv.Policy.Decide(gate, gateInitial, achievable, ctx.start, ctx.end, ctx.upcoming)
	incoming := ctx.inv.Arrivals.Integral(ctx.start, ctx.end)

	gateStep := newStageStep(gate, gateInitial, incoming, split, split.Remaining.Append(incoming),
		achievable, max(0, desired-achievable))
	logrus.Debugf("[%s, %s) wave %s: desired=%d released=%d buffer=%s",
		ctx.start.Format(time.RFC3339), ctx.end.Format(time.RFC3339), gate, desired, achievable, buffer)

	stages := StageMapOf(StageEntry[*StageTrajectoryStep]{Stage: gate, Value: gateStep})
	for _, e := range split.Processed.Entries() {
		stages = ctx.cascade(e.Stage, e.Value, stages)
	}
	return ctx.workflowStep(stages)
}

// cascade estimates the step of stage, fed with incoming, and of every stage
// it transitively feeds.
func (ctx *stepContext) cascade(stage StageID, incoming Queue, done StageMap[*StageTrajectoryStep]) StageMap[*StageTrajectoryStep] {
	mustHold(!done.Has(stage), "stage estimated once per step", "stage %s reached twice", stage)
	initial := ctx.backlogAt(stage)
	available := initial.Append(incoming)
	power := ctx.processingPower(stage)
	processed := min(available.Total(), power)
	shortage := max(0, power-available.Total())

	split := ctx.inv.Policy.Decide(stage, available, processed, ctx.start, ctx.end, ctx.upcoming)
	step := newStageStep(stage, initial, incoming, split, split.Remaining, processed, shortage)
	logrus.Debugf("[%s, %s) %s: initial=%d incoming=%d processed=%d shortage=%d",
		ctx.start.Format(time.RFC3339), ctx.end.Format(time.RFC3339), stage,
		initial.Total(), incoming.Total(), processed, shortage)

	done = done.With(stage, step)
	for _, e := range split.Processed.Entries() {
		if e.Stage == stage {
			continue
		}
		done = ctx.cascade(e.Stage, e.Value, done)
	}
	return done
}
