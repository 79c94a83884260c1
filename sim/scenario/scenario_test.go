package scenario

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guspollitzer/workflow-backlog-projection/sim"
)

const wallScenario = `
workflow: outbound-wall
now: 2026-01-05T08:00:00Z
slas:
  - id: cpt-10
    deadline: 2026-01-05T10:00:00Z
  - deadline: 2026-01-05T12:00:00Z
backlog:
  wavingForWall:
    - portions:
        - {sla: cpt-10, quantity: 30}
        - {deadline: 2026-01-05T12:00:00Z, quantity: 20}
    - portions:
        - {sla: cpt-10, quantity: 5}
  pickingForWall:
    - portions:
        - {quantity: 4}
staffing:
  pickingForWall:
    headcount: [{at: 2026-01-05T08:00:00Z, value: 2}]
    productivity: [{at: 2026-01-05T08:00:00Z, value: 10}]
arrivals:
  - sla: cpt-10
    rate: [{at: 2026-01-05T08:00:00Z, value: 12}]
shares:
  walling: 3
  packingNotWalled: 1
buffer:
  cap_at_last_deadline: true
  windows:
    pickingForWall:
      - {from: 2026-01-05T08:00:00Z, min: 30m, max: 90m}
consumption:
  packingWalled: [{at: 2026-01-05T08:00:00Z, value: 6}]
initial_downstream:
  packingWalled: 7
`

func writeTempYAML(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadScenario_ValidYAML_LoadsCorrectly(t *testing.T) {
	s, err := LoadScenario(writeTempYAML(t, wallScenario))
	require.NoError(t, err)

	assert.Equal(t, "outbound-wall", s.Workflow)
	assert.Equal(t, time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC), s.Now.UTC())
	require.Len(t, s.Slas, 2)
	assert.Equal(t, "cpt-10", s.Slas[0].ID)
	assert.Empty(t, s.Slas[1].ID)
	require.Len(t, s.Backlog["wavingForWall"], 2)
	assert.Equal(t, 90*time.Minute, s.Buffer.Windows["pickingForWall"][0].Max)
	assert.NoError(t, s.Validate())
}

func TestLoadScenario_UnknownKey_ReturnsError(t *testing.T) {
	_, err := LoadScenario(writeTempYAML(t, "workflow: inbound\nhorizn: 3\n"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing scenario")
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"unknown workflow", "workflow: returns\n", "unknown workflow"},
		{"sla without deadline", "workflow: inbound\nslas: [{id: a}]\n", "slas[0]: deadline is required"},
		{"duplicate sla id", "workflow: inbound\nslas: [{id: a, deadline: 2026-01-05T10:00:00Z}, {id: a, deadline: 2026-01-05T11:00:00Z}]\n", `duplicate id "a"`},
		{"unknown stage", "workflow: inbound\nbacklog: {sorting: []}\n", `unknown stage "sorting"`},
		{"stage of another workflow", "workflow: inbound\nstaffing: {walling: {}}\n", "not part of workflow inbound"},
		{"negative quantity", "workflow: inbound\nbacklog: {checkIn: [{portions: [{quantity: -1}]}]}\n", "quantity must be non-negative"},
		{"unknown sla reference", "workflow: inbound\nbacklog: {checkIn: [{portions: [{sla: x, quantity: 1}]}]}\n", `unknown sla "x"`},
		{"ambiguous deadline reference", `workflow: inbound
slas: [{deadline: 2026-01-05T10:00:00Z}, {deadline: 2026-01-05T10:00:00Z}]
arrivals: [{deadline: 2026-01-05T10:00:00Z, rate: []}]
`, "matches 2 slas"},
		{"negative rate", "workflow: inbound\narrivals: [{rate: [{at: 2026-01-05T08:00:00Z, value: -2}]}]\n", "must be non-negative"},
		{"negative share", "workflow: outbound-wall\nshares: {walling: -1}\n", "shares.walling"},
		{"inverted buffer window", "workflow: inbound\nbuffer: {windows: {checkIn: [{from: 2026-01-05T08:00:00Z, min: 2h, max: 1h}]}}\n", "need 0 <= min <= max"},
		{"consumption at a non-final stage", "workflow: inbound\nconsumption: {checkIn: []}\n", "not a final stage"},
		{"negative initial downstream", "workflow: inbound\ninitial_downstream: {putAway: -3}\n", "initial_downstream.putAway"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s, err := ParseScenario([]byte(tc.yaml))
			require.NoError(t, err)

			err = s.Validate()

			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestBuild_WallScenario_EngineInputs(t *testing.T) {
	// GIVEN the wall scenario
	s, err := ParseScenario([]byte(wallScenario))
	require.NoError(t, err)

	// WHEN built without a clock override
	inputs, err := s.Build(time.Time{})
	require.NoError(t, err)

	// THEN the clock, topology and SLAs come from the file
	assert.Equal(t, time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC), inputs.Clock.Now())
	assert.Equal(t, sim.OutboundWall, inputs.Topology.Kind)
	require.Len(t, inputs.Slas, 2)
	cpt10 := inputs.Slas[0]
	anonymous := inputs.Slas[1]
	assert.Equal(t, DerivedSlaID(1, anonymous.Deadline), anonymous.ID)

	// AND the gate backlog is deadline-only while picking keeps its batch
	gate, _ := inputs.Backlog.Get(sim.WavingForWall)
	require.IsType(t, &sim.SlaQueue{}, gate)
	assert.Equal(t, int64(35), gate.(*sim.SlaQueue).QuantityOf(cpt10))
	assert.Equal(t, int64(20), gate.(*sim.SlaQueue).QuantityOf(anonymous))
	picking, _ := inputs.Backlog.Get(sim.PickingForWall)
	require.IsType(t, &sim.BatchQueue{}, picking)
	assert.Equal(t, int64(4), picking.Total())

	// AND every stage of the workflow has a queue
	assert.Equal(t, inputs.Topology.Stages(), inputs.Backlog.Stages())

	// AND the collaborators reflect the file
	assert.InDelta(t, 40.0, inputs.Plan.IntegrateThroughput(sim.PickingForWall, inputs.Clock.Now(), inputs.Clock.Now().Add(2*time.Hour)), 1e-9)
	arrived := inputs.Invariants.Arrivals.Integral(inputs.Clock.Now(), inputs.Clock.Now().Add(time.Hour))
	assert.Equal(t, int64(12), arrived.Total())
	assert.IsType(t, &sim.SlaQueue{}, arrived)
	upcoming := sim.GroupSlasByDeadline(inputs.Slas)
	assert.Equal(t, time.Hour, inputs.Buffer.DesiredBufferSize(sim.PickingForWall, inputs.Clock.Now(), upcoming))
	stock, _ := inputs.InitialDownstream.Get(sim.PackingWalled)
	assert.Equal(t, int64(7), stock.Total())
	assert.Equal(t, int64(12), inputs.Consumption.Integral(sim.PackingWalled, inputs.Clock.Now(), inputs.Clock.Now().Add(2*time.Hour)).Total())
}

func TestBuild_NowOverrideAndMissingNow(t *testing.T) {
	s, err := ParseScenario([]byte("workflow: inbound\n"))
	require.NoError(t, err)

	_, err = s.Build(time.Time{})
	assert.ErrorContains(t, err, "now is required")

	override := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
	inputs, err := s.Build(override)
	require.NoError(t, err)
	assert.Equal(t, override, inputs.Clock.Now())
}

func TestBuild_EstimatesEndToEnd(t *testing.T) {
	s, err := ParseScenario([]byte(wallScenario))
	require.NoError(t, err)
	inputs, err := s.Build(time.Time{})
	require.NoError(t, err)

	steps, err := sim.EstimateTrajectory(inputs.Clock.Now(), inputs.Backlog, inputs.Slas, inputs.Estimator, inputs.Invariants)
	require.NoError(t, err)
	require.NotEmpty(t, steps)
	assert.Equal(t, time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC), steps[len(steps)-1].End)

	oversaw, err := sim.NewOverseer(inputs.Topology, inputs.Plan, inputs.Buffer).
		OverseeTrajectory(steps, inputs.Consumption, inputs.InitialDownstream)
	require.NoError(t, err)
	assert.Len(t, oversaw, len(steps))
}

func TestDerivedSlaID_Deterministic(t *testing.T) {
	d := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, DerivedSlaID(1, d), DerivedSlaID(1, d.In(time.FixedZone("ART", -3*3600))))
	assert.NotEqual(t, DerivedSlaID(1, d), DerivedSlaID(2, d))
	assert.Len(t, DerivedSlaID(0, d), 36)
}

func TestBuild_UnstaffedProcessingStages(t *testing.T) {
	// GIVEN the wall scenario, which only staffs picking
	s, err := ParseScenario([]byte(wallScenario))
	require.NoError(t, err)
	inputs, err := s.Build(time.Time{})
	require.NoError(t, err)

	// WHEN the staffed stages are compared with the topology
	got := unstaffed(inputs.Topology, inputs.Plan.Stages())

	// THEN every other human-powered stage is reported, the gate is not
	assert.Equal(t, []sim.StageID{sim.PackingNotWalled, sim.Walling, sim.PackingWalled}, got)
}
