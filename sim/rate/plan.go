package rate

import (
	"fmt"
	"time"

	"github.com/guspollitzer/workflow-backlog-projection/sim"
)

// StagePlan is the staffing of one stage: how many heads work over time and
// how many units per hour each head processes.
type StagePlan struct {
	Headcount    Trajectory
	Productivity Trajectory
}

// StaffingPlan implements sim.StaffingPlan from per-stage headcount and
// productivity trajectories. Stages without a plan have no throughput.
// It is immutable and safe for concurrent use.
type StaffingPlan struct {
	stages     sim.StageMap[StagePlan]
	throughput sim.StageMap[Trajectory]
}

// NewStaffingPlan validates the per-stage plans and precomputes throughput.
func NewStaffingPlan(stages sim.StageMap[StagePlan]) (*StaffingPlan, error) {
	for _, e := range stages.Entries() {
		if !e.Value.Headcount.IsNonNegative() {
			return nil, fmt.Errorf("stage %s: headcount must be >= 0", e.Stage)
		}
		if !e.Value.Productivity.IsNonNegative() {
			return nil, fmt.Errorf("stage %s: productivity must be >= 0", e.Stage)
		}
	}
	throughput := sim.MapStageValues(stages, func(_ sim.StageID, p StagePlan) Trajectory {
		return Product(p.Headcount, p.Productivity)
	})
	return &StaffingPlan{stages: stages, throughput: throughput}, nil
}

// IntegrateThroughput returns the units the stage processes over [from, to).
func (p *StaffingPlan) IntegrateThroughput(stage sim.StageID, from, to time.Time) float64 {
	t, ok := p.throughput.Get(stage)
	if !ok {
		return 0
	}
	return t.Integrate(from, to)
}

// AverageProductivity returns the units a single head processes over [from, to).
func (p *StaffingPlan) AverageProductivity(stage sim.StageID, from, to time.Time) float64 {
	s, ok := p.stages.Get(stage)
	if !ok {
		return 0
	}
	return s.Productivity.Integrate(from, to)
}

// Stages lists the stages with a plan.
func (p *StaffingPlan) Stages() []sim.StageID { return p.stages.Stages() }
