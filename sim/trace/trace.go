package trace

import "github.com/guspollitzer/workflow-backlog-projection/sim"

// TraceLevel controls how much of a projection is reported.
type TraceLevel string

const (
	// TraceLevelNone reports the summary only.
	TraceLevelNone TraceLevel = "none"
	// TraceLevelSteps also reports every step of every stage.
	TraceLevelSteps TraceLevel = "steps"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:  true,
	TraceLevelSteps: true,
	"":              true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// ProjectionTrace holds the flattened records of a projection.
type ProjectionTrace struct {
	Stages     []StageRecord
	Headcounts []HeadcountRecord
}

// NewProjectionTrace creates a ProjectionTrace ready for recording.
func NewProjectionTrace() *ProjectionTrace {
	return &ProjectionTrace{
		Stages:     make([]StageRecord, 0),
		Headcounts: make([]HeadcountRecord, 0),
	}
}

// RecordTrajectory appends one record per step and stage, in step order and
// stage id order within a step.
func (pt *ProjectionTrace) RecordTrajectory(steps []sim.WorkflowTrajectoryStep) {
	for _, step := range steps {
		step.Stages.Each(func(stage sim.StageID, st *sim.StageTrajectoryStep) {
			pt.Stages = append(pt.Stages, StageRecord{
				Start:     step.Start,
				End:       step.End,
				Stage:     stage.String(),
				Initial:   st.InitialQueue.Total(),
				Incoming:  st.IncomingQueue.Total(),
				Processed: st.ProcessedTotal,
				Shortage:  st.QueueShortage,
				Final:     st.FinalQueue.Total(),
			})
		})
	}
}

// RecordOversight appends one headcount record per step and human-powered stage.
func (pt *ProjectionTrace) RecordOversight(oversaw []sim.WorkflowTrajectoryOversawStep) {
	for _, step := range oversaw {
		step.Stages.Each(func(stage sim.StageID, st sim.StageTrajectoryOversawStep) {
			pt.Headcounts = append(pt.Headcounts, HeadcountRecord{
				Start:     step.Start,
				End:       step.End,
				Stage:     stage.String(),
				Headcount: st.OptimumHeadcount,
			})
		})
	}
}
