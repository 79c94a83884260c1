package scenario

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/guspollitzer/workflow-backlog-projection/sim"
	"github.com/guspollitzer/workflow-backlog-projection/sim/rate"
)

// slaNamespace scopes the name-based ids derived for SLAs declared without one.
var slaNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("workflow-backlog-projection/sla"))

// DerivedSlaID returns the id given to the i-th declared SLA when it has none.
// The same position and deadline always produce the same id.
func DerivedSlaID(i int, deadline time.Time) string {
	name := fmt.Sprintf("%d/%s", i, deadline.UTC().Format(time.RFC3339Nano))
	return uuid.NewSHA1(slaNamespace, []byte(name)).String()
}

// Inputs are the engine inputs described by a scenario.
type Inputs struct {
	Clock             sim.FixedClock
	Topology          *sim.Topology
	Backlog           sim.StageMap[sim.Queue]
	Slas              []sim.Sla
	Estimator         sim.StepEstimator
	Invariants        *sim.Invariants
	Plan              *rate.StaffingPlan
	Buffer            *rate.BufferSchedule
	Consumption       *rate.Consumption
	InitialDownstream sim.StageMap[sim.Queue]
}

// Build validates the scenario and converts it into engine inputs. A non-zero
// now overrides the scenario's own instant.
func (s *Scenario) Build(now time.Time) (*Inputs, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if now.IsZero() {
		now = s.Now
	}
	if now.IsZero() {
		return nil, fmt.Errorf("now is required, in the scenario or as an override")
	}
	kind, _ := sim.ParseWorkflowKind(s.Workflow)
	topology := sim.TopologyOf(kind)
	index, _ := resolveSlas(s.Slas)

	backlog, err := s.buildBacklog(topology, index)
	if err != nil {
		return nil, err
	}
	plan, err := s.buildPlan(topology)
	if err != nil {
		return nil, err
	}
	arrivals, err := s.buildArrivals(topology, index)
	if err != nil {
		return nil, err
	}
	buffer, err := s.buildBuffer()
	if err != nil {
		return nil, err
	}
	consumption, err := s.buildConsumption()
	if err != nil {
		return nil, err
	}

	var shares sim.StageMap[float64]
	for name, v := range s.Shares {
		stage, _ := sim.ParseStage(name)
		shares = shares.With(stage, v)
	}
	var initial sim.StageMap[sim.Queue]
	for name, v := range s.InitialDownstream {
		stage, _ := sim.ParseStage(name)
		initial = initial.With(stage, sim.NewSlaQueue(sim.Portion{Quantity: v}))
	}

	return &Inputs{
		Clock:     sim.FixedClock{Instant: now.UTC()},
		Topology:  topology,
		Backlog:   backlog,
		Slas:      index.slas,
		Estimator: sim.StepEstimatorFor(kind),
		Invariants: &sim.Invariants{
			Topology: topology,
			Plan:     plan,
			Arrivals: arrivals,
			Policy:   sim.NewDisciplinePolicy(topology, shares),
			Buffer:   buffer,
		},
		Plan:              plan,
		Buffer:            buffer,
		Consumption:       consumption,
		InitialDownstream: initial,
	}, nil
}

func (s *Scenario) buildBacklog(topology *sim.Topology, index *slaIndex) (sim.StageMap[sim.Queue], error) {
	var backlog sim.StageMap[sim.Queue]
	for _, name := range sortedKeys(s.Backlog) {
		stage, _ := sim.ParseStage(name)
		batches := make([]sim.Batch, 0, len(s.Backlog[name]))
		var all []sim.Portion
		for i, b := range s.Backlog[name] {
			portions := make([]sim.Portion, 0, len(b.Portions))
			for j, p := range b.Portions {
				sla, err := index.resolve(p.SlaRef)
				if err != nil {
					return backlog, fmt.Errorf("backlog.%s[%d].portions[%d]: %w", name, i, j, err)
				}
				portions = append(portions, sim.Portion{Sla: sla, Quantity: p.Quantity})
			}
			batches = append(batches, sim.NewBatch(portions...))
			all = append(all, portions...)
		}
		if stage.Discipline() == sim.EarliestDeadlineFirst {
			backlog = backlog.With(stage, sim.NewSlaQueue(all...))
		} else {
			backlog = backlog.With(stage, sim.NewBatchQueue(batches...))
		}
	}
	for _, stage := range topology.Stages() {
		if !backlog.Has(stage) {
			backlog = backlog.With(stage, sim.EmptyQueueFor(stage.Discipline()))
		}
	}
	return backlog, nil
}

func (s *Scenario) buildPlan(topology *sim.Topology) (*rate.StaffingPlan, error) {
	var stages sim.StageMap[rate.StagePlan]
	for _, name := range sortedKeys(s.Staffing) {
		stage, _ := sim.ParseStage(name)
		st := s.Staffing[name]
		headcount, err := trajectoryOf(st.Headcount)
		if err != nil {
			return nil, fmt.Errorf("staffing.%s.headcount: %w", name, err)
		}
		productivity, err := trajectoryOf(st.Productivity)
		if err != nil {
			return nil, fmt.Errorf("staffing.%s.productivity: %w", name, err)
		}
		stages = stages.With(stage, rate.StagePlan{Headcount: headcount, Productivity: productivity})
	}
	plan, err := rate.NewStaffingPlan(stages)
	if err != nil {
		return nil, err
	}
	for _, stage := range unstaffed(topology, plan.Stages()) {
		logrus.Warnf("stage %s has no staffing; treating its throughput as zero", stage)
	}
	return plan, nil
}

// unstaffed returns the human-powered stages of topology missing from staffed.
func unstaffed(topology *sim.Topology, staffed []sim.StageID) []sim.StageID {
	var out []sim.StageID
	for _, stage := range topology.ProcessingStages() {
		if !slices.Contains(staffed, stage) {
			out = append(out, stage)
		}
	}
	return out
}

func (s *Scenario) buildArrivals(topology *sim.Topology, index *slaIndex) (*rate.Arrivals, error) {
	streams := make([]rate.Stream, 0, len(s.Arrivals))
	for i, a := range s.Arrivals {
		sla, err := index.resolve(a.SlaRef)
		if err != nil {
			return nil, fmt.Errorf("arrivals[%d]: %w", i, err)
		}
		t, err := trajectoryOf(a.Rate)
		if err != nil {
			return nil, fmt.Errorf("arrivals[%d].rate: %w", i, err)
		}
		streams = append(streams, rate.Stream{Sla: sla, Rate: t})
	}
	return rate.NewArrivals(topology.Root().Discipline(), streams...)
}

func (s *Scenario) buildBuffer() (*rate.BufferSchedule, error) {
	var windows sim.StageMap[[]rate.BufferWindow]
	for _, name := range sortedKeys(s.Buffer.Windows) {
		stage, _ := sim.ParseStage(name)
		ws := make([]rate.BufferWindow, len(s.Buffer.Windows[name]))
		for i, w := range s.Buffer.Windows[name] {
			ws[i] = rate.BufferWindow{From: w.From.UTC(), Min: w.Min, Max: w.Max}
		}
		windows = windows.With(stage, ws)
	}
	return rate.NewBufferSchedule(windows, s.Buffer.CapAtLastDeadline)
}

func (s *Scenario) buildConsumption() (*rate.Consumption, error) {
	var demand sim.StageMap[rate.Trajectory]
	for _, name := range sortedKeys(s.Consumption) {
		stage, _ := sim.ParseStage(name)
		t, err := trajectoryOf(s.Consumption[name])
		if err != nil {
			return nil, fmt.Errorf("consumption.%s: %w", name, err)
		}
		demand = demand.With(stage, t)
	}
	return rate.NewConsumption(demand)
}

func trajectoryOf(points []RatePoint) (rate.Trajectory, error) {
	out := make([]rate.Point, len(points))
	for i, p := range points {
		out[i] = rate.Point{At: p.At.UTC(), Rate: p.Value}
	}
	return rate.NewTrajectory(out...)
}

// slaIndex resolves SLA references against the declared SLAs.
type slaIndex struct {
	slas       []sim.Sla
	byID       map[string]sim.Sla
	byDeadline map[int64][]sim.Sla // SLAs declared without id
}

func resolveSlas(specs []SlaSpec) (*slaIndex, error) {
	index := &slaIndex{byID: make(map[string]sim.Sla), byDeadline: make(map[int64][]sim.Sla)}
	for i, spec := range specs {
		if spec.Deadline.IsZero() {
			return nil, fmt.Errorf("slas[%d]: deadline is required", i)
		}
		deadline := spec.Deadline.UTC()
		id := spec.ID
		if id == "" {
			id = DerivedSlaID(i, deadline)
		}
		if _, dup := index.byID[id]; dup {
			return nil, fmt.Errorf("slas[%d]: duplicate id %q", i, id)
		}
		sla := sim.Sla{ID: id, Deadline: deadline}
		index.slas = append(index.slas, sla)
		index.byID[id] = sla
		if spec.ID == "" {
			index.byDeadline[deadline.UnixNano()] = append(index.byDeadline[deadline.UnixNano()], sla)
		}
	}
	return index, nil
}

func (x *slaIndex) resolve(ref SlaRef) (sim.Sla, error) {
	switch {
	case ref.Sla != "" && ref.Deadline != nil:
		return sim.Sla{}, fmt.Errorf("reference sets both sla %q and deadline; set one", ref.Sla)
	case ref.Sla != "":
		sla, ok := x.byID[ref.Sla]
		if !ok {
			return sim.Sla{}, fmt.Errorf("unknown sla %q", ref.Sla)
		}
		return sla, nil
	case ref.Deadline != nil:
		candidates := x.byDeadline[ref.Deadline.UTC().UnixNano()]
		switch len(candidates) {
		case 0:
			return sim.Sla{}, fmt.Errorf("no sla declared without id has deadline %s", ref.Deadline.UTC().Format(time.RFC3339))
		case 1:
			return candidates[0], nil
		default:
			return sim.Sla{}, fmt.Errorf("deadline %s matches %d slas declared without id; give them ids", ref.Deadline.UTC().Format(time.RFC3339), len(candidates))
		}
	default:
		return sim.Sla{}, nil
	}
}
