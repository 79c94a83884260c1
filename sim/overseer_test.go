package sim

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func headcountOf(t *testing.T, step WorkflowTrajectoryOversawStep, s StageID) int64 {
	t.Helper()
	st, ok := step.Stages.Get(s)
	require.True(t, ok, "stage %s not oversaw", s)
	return st.OptimumHeadcount
}

func inboundTrajectory(t *testing.T, plan constantPlan, deadlines ...float64) []WorkflowTrajectoryStep {
	t.Helper()
	var slas []Sla
	for i, d := range deadlines {
		slas = append(slas, sla(fmt.Sprintf("d%d", i), d))
	}
	inv := invariantsFor(Inbound, plan, noArrivals{OldestFirst}, fixedBuffer{})
	backlog := StageMapOf(StageEntry[Queue]{CheckIn, batchQueue(Portion{sla("A", deadlines[0]), 10})})
	steps, err := EstimateTrajectory(at(0), backlog, slas, WavelessStep, inv)
	require.NoError(t, err)
	return steps
}

func TestOverseeTrajectory_Inbound_SizesBackwards(t *testing.T) {
	// GIVEN the two-stage inbound trajectory and a demand of 6/h at putAway
	plan := constantPlan{perHour: map[StageID]float64{CheckIn: 5, PutAway: 8}}
	steps := inboundTrajectory(t, plan, 2)
	overseer := NewOverseer(TopologyOf(Inbound), plan, fixedBuffer{})

	// WHEN oversaw
	oversaw, err := overseer.OverseeTrajectory(steps, constantDemand{perHour: 6}, StageMap[Queue]{})

	// THEN putAway needs ceil(12/16) heads and checkIn must feed its 16 units of throughput
	require.NoError(t, err)
	require.Len(t, oversaw, 1)
	assert.Equal(t, int64(1), headcountOf(t, oversaw[0], PutAway))
	assert.Equal(t, int64(2), headcountOf(t, oversaw[0], CheckIn))
	raw, _ := oversaw[0].Stages.Get(CheckIn)
	assert.Same(t, stageStep(t, steps[0], CheckIn), raw.Raw)
}

func TestOverseeTrajectory_NoProductivity_ZeroHeadcountUpstream(t *testing.T) {
	plan := constantPlan{perHour: map[StageID]float64{CheckIn: 5}}
	steps := inboundTrajectory(t, plan, 2)
	overseer := NewOverseer(TopologyOf(Inbound), plan, fixedBuffer{})

	oversaw, err := overseer.OverseeTrajectory(steps, constantDemand{perHour: 6}, StageMap[Queue]{})

	require.NoError(t, err)
	assert.Equal(t, int64(0), headcountOf(t, oversaw[0], PutAway))
	assert.Equal(t, int64(0), headcountOf(t, oversaw[0], CheckIn))
}

func TestOverseeTrajectory_InitialDownstreamStock_ServesDemandFirst(t *testing.T) {
	// GIVEN 20 units already downstream and two 2h steps demanding 12 each
	plan := constantPlan{perHour: map[StageID]float64{CheckIn: 5, PutAway: 8}}
	steps := inboundTrajectory(t, plan, 2, 4)
	require.Len(t, steps, 2)
	overseer := NewOverseer(TopologyOf(Inbound), plan, fixedBuffer{})
	stock := StageMapOf(StageEntry[Queue]{PutAway, NewSlaQueue(Portion{Quantity: 20})})

	// WHEN oversaw
	oversaw, err := overseer.OverseeTrajectory(steps, constantDemand{perHour: 6}, stock)

	// THEN the first step needs no putAway heads and the second covers the 4 missing units
	require.NoError(t, err)
	assert.Equal(t, int64(0), headcountOf(t, oversaw[0], PutAway))
	assert.Equal(t, int64(1), headcountOf(t, oversaw[1], PutAway))
}

func TestOverseeTrajectory_OutboundWall_MergesSharedStages(t *testing.T) {
	// GIVEN a wall trajectory with every processing stage at 10/h over one hour
	perHour := map[StageID]float64{PickingForWall: 10, PackingNotWalled: 10, Walling: 10, PackingWalled: 10}
	plan := constantPlan{perHour: perHour}
	inv := invariantsFor(OutboundWall, plan, noArrivals{EarliestDeadlineFirst}, fixedBuffer{})
	backlog := StageMapOf(StageEntry[Queue]{WavingForWall, NewSlaQueue(Portion{sla("A", 1), 100})})
	steps, err := EstimateTrajectory(at(0), backlog, nil, WaveGatedStep, inv)
	require.NoError(t, err)

	// WHEN oversaw with 10 units/h demanded at each final stage
	overseer := NewOverseer(inv.Topology, plan, fixedBuffer{})
	oversaw, err := overseer.OverseeTrajectory(steps, constantDemand{perHour: 10}, StageMap[Queue]{})
	require.NoError(t, err)

	// THEN picking, shared by both branches, adds their headcounts and the gate is not sized
	step := oversaw[0]
	assert.Equal(t, []StageID{PickingForWall, PackingNotWalled, Walling, PackingWalled}, step.Stages.Stages())
	assert.Equal(t, int64(2), headcountOf(t, step, PickingForWall))
	assert.Equal(t, int64(1), headcountOf(t, step, PackingNotWalled))
	assert.Equal(t, int64(1), headcountOf(t, step, Walling))
	assert.Equal(t, int64(1), headcountOf(t, step, PackingWalled))

	again, err := overseer.OverseeTrajectory(steps, constantDemand{perHour: 10}, StageMap[Queue]{})
	require.NoError(t, err)
	assert.Equal(t, oversaw, again)
}

func TestOverseeTrajectory_MissingStage_ReturnsViolation(t *testing.T) {
	plan := constantPlan{perHour: map[StageID]float64{CheckIn: 5, PutAway: 8}}
	steps := []WorkflowTrajectoryStep{{Start: at(0), End: at(1)}}
	overseer := NewOverseer(TopologyOf(Inbound), plan, fixedBuffer{})

	oversaw, err := overseer.OverseeTrajectory(steps, constantDemand{perHour: 1}, StageMap[Queue]{})

	assert.Nil(t, oversaw)
	var violation *InvariantViolation
	require.ErrorAs(t, err, &violation)
	assert.Equal(t, "trajectory step covers every stage", violation.Invariant)
}

func TestOverseeTrajectory_NilConsumption_Error(t *testing.T) {
	overseer := NewOverseer(TopologyOf(Inbound), constantPlan{}, fixedBuffer{})

	_, err := overseer.OverseeTrajectory(nil, nil, StageMap[Queue]{})

	assert.ErrorContains(t, err, "downstream consumption must not be nil")
	assert.Panics(t, func() { NewOverseer(nil, constantPlan{}, fixedBuffer{}) })
}

func TestMergeBranches_SharedStage(t *testing.T) {
	step := WorkflowTrajectoryStep{Start: at(0), End: at(1)}
	picking := &StageTrajectoryStep{Stage: PickingForWall}
	branch := func(raw *StageTrajectoryStep, headcount int64) StageMap[StageTrajectoryOversawStep] {
		return StageMapOf(StageEntry[StageTrajectoryOversawStep]{
			Stage: PickingForWall, Value: StageTrajectoryOversawStep{Raw: raw, OptimumHeadcount: headcount},
		})
	}

	t.Run("same raw step adds headcounts", func(t *testing.T) {
		merged := mergeBranches(step, []StageMap[StageTrajectoryOversawStep]{branch(picking, 1), branch(picking, 2)})

		got, ok := merged.Get(PickingForWall)
		require.True(t, ok)
		assert.Same(t, picking, got.Raw)
		assert.Equal(t, int64(3), got.OptimumHeadcount)
	})

	t.Run("diverging raw steps abort", func(t *testing.T) {
		// GIVEN two branches wrapping different raw steps for picking
		other := &StageTrajectoryStep{Stage: PickingForWall}

		// WHEN merged
		err := func() (err error) {
			defer recoverViolation(&err)
			mergeBranches(step, []StageMap[StageTrajectoryOversawStep]{branch(picking, 1), branch(other, 2)})
			return nil
		}()

		// THEN the consistency check fires
		var violation *InvariantViolation
		require.ErrorAs(t, err, &violation)
		assert.Equal(t, "branches agree on shared stages", violation.Invariant)
		assert.Contains(t, violation.Detail, "stage pickingForWall")
	})
}
