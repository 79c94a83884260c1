package sim

import "fmt"

// WorkflowKind identifies one of the closed set of fulfillment pipelines.
type WorkflowKind int

const (
	Inbound WorkflowKind = iota
	OutboundDirect
	OutboundWall
	workflowKindCount
)

var workflowKindNames = [workflowKindCount]string{
	Inbound:        "inbound",
	OutboundDirect: "outbound-direct",
	OutboundWall:   "outbound-wall",
}

func (k WorkflowKind) String() string {
	if k < 0 || k >= workflowKindCount {
		return fmt.Sprintf("WorkflowKind(%d)", int(k))
	}
	return workflowKindNames[k]
}

// ParseWorkflowKind maps a workflow name ("inbound", "outbound-direct", "outbound-wall") to its kind.
func ParseWorkflowKind(name string) (WorkflowKind, error) {
	for k, n := range workflowKindNames {
		if n == name {
			return WorkflowKind(k), nil
		}
	}
	return 0, fmt.Errorf("unknown workflow %q; valid: inbound, outbound-direct, outbound-wall", name)
}

// QueueDiscipline decides which queued units a stage processes first.
type QueueDiscipline int

const (
	// OldestFirst consumes arrival batches in order (FIFO).
	OldestFirst QueueDiscipline = iota
	// EarliestDeadlineFirst consumes units by nearest SLA deadline (FEFO).
	EarliestDeadlineFirst
)

func (d QueueDiscipline) String() string {
	switch d {
	case OldestFirst:
		return "oldest-first"
	case EarliestDeadlineFirst:
		return "earliest-deadline-first"
	default:
		return fmt.Sprintf("QueueDiscipline(%d)", int(d))
	}
}

// StageID is a stable dense integer identifying a stage across all workflows.
// It indexes StageMap arrays.
type StageID int

// NoStage marks the absence of a predecessor.
const NoStage StageID = -1

const (
	CheckIn StageID = iota
	PutAway
	WavingDirect
	PickingDirect
	PackingDirect
	WavingForWall
	PickingForWall
	PackingNotWalled
	Walling
	PackingWalled
	stageCount
)

// StageCount is the number of stages across every workflow.
const StageCount = int(stageCount)

// StageDef is the immutable definition of a stage.
type StageDef struct {
	ID           StageID
	Name         string
	Workflow     WorkflowKind
	HumanPowered bool
	Discipline   QueueDiscipline
	Predecessor  StageID
}

// stageDefs is indexed by StageID. Order within a workflow is topological.
var stageDefs = [stageCount]StageDef{
	CheckIn: {CheckIn, "checkIn", Inbound, true, OldestFirst, NoStage},
	PutAway: {PutAway, "putAway", Inbound, true, OldestFirst, CheckIn},

	WavingDirect:  {WavingDirect, "wavingDirect", OutboundDirect, false, EarliestDeadlineFirst, NoStage},
	PickingDirect: {PickingDirect, "pickingDirect", OutboundDirect, true, OldestFirst, WavingDirect},
	PackingDirect: {PackingDirect, "packingDirect", OutboundDirect, true, OldestFirst, PickingDirect},

	WavingForWall:    {WavingForWall, "wavingForWall", OutboundWall, false, EarliestDeadlineFirst, NoStage},
	PickingForWall:   {PickingForWall, "pickingForWall", OutboundWall, true, OldestFirst, WavingForWall},
	PackingNotWalled: {PackingNotWalled, "packingNotWalled", OutboundWall, true, OldestFirst, PickingForWall},
	Walling:          {Walling, "walling", OutboundWall, true, OldestFirst, PickingForWall},
	PackingWalled:    {PackingWalled, "packingWalled", OutboundWall, true, OldestFirst, Walling},
}

// Def returns the stage definition. Panics on an id outside the closed set.
func (s StageID) Def() StageDef {
	if s < 0 || s >= stageCount {
		panic(fmt.Sprintf("StageID.Def: unknown stage %d", int(s)))
	}
	return stageDefs[s]
}

func (s StageID) String() string {
	if s < 0 || s >= stageCount {
		return fmt.Sprintf("StageID(%d)", int(s))
	}
	return stageDefs[s].Name
}

// IsHumanPowered reports whether headcount is meaningful for the stage.
func (s StageID) IsHumanPowered() bool { return s.Def().HumanPowered }

// Discipline returns the stage's queue discipline.
func (s StageID) Discipline() QueueDiscipline { return s.Def().Discipline }

// Predecessor returns the stage feeding this one, or NoStage.
func (s StageID) Predecessor() StageID { return s.Def().Predecessor }

// ParseStage maps a stage name to its id.
func ParseStage(name string) (StageID, error) {
	for _, def := range stageDefs {
		if def.Name == name {
			return def.ID, nil
		}
	}
	return NoStage, fmt.Errorf("unknown stage %q", name)
}

// Topology is the derived wiring of one workflow: its stages in id order,
// successors, the root and the final stages.
type Topology struct {
	Kind       WorkflowKind
	stages     []StageID
	successors [stageCount][]StageID
	members    stageSet
}

var topologies = func() [workflowKindCount]*Topology {
	var all [workflowKindCount]*Topology
	for k := WorkflowKind(0); k < workflowKindCount; k++ {
		t := &Topology{Kind: k}
		for _, def := range stageDefs {
			if def.Workflow != k {
				continue
			}
			t.stages = append(t.stages, def.ID)
			t.members = t.members.with(def.ID)
			if def.Predecessor != NoStage {
				t.successors[def.Predecessor] = append(t.successors[def.Predecessor], def.ID)
			}
		}
		all[k] = t
	}
	return all
}()

// TopologyOf returns the immutable topology of a workflow kind.
func TopologyOf(kind WorkflowKind) *Topology {
	if kind < 0 || kind >= workflowKindCount {
		panic(fmt.Sprintf("TopologyOf: unknown workflow kind %d", int(kind)))
	}
	return topologies[kind]
}

// Stages returns every stage of the workflow in id order.
func (t *Topology) Stages() []StageID {
	return append([]StageID(nil), t.stages...)
}

// Contains reports whether the stage belongs to this workflow.
func (t *Topology) Contains(s StageID) bool { return t.members.has(s) }

// Successors returns the stages fed by s, in id order.
func (t *Topology) Successors(s StageID) []StageID {
	return append([]StageID(nil), t.successors[s]...)
}

// Root returns the single stage without predecessor.
func (t *Topology) Root() StageID {
	for _, s := range t.stages {
		if s.Predecessor() == NoStage {
			return s
		}
	}
	panic(fmt.Sprintf("Topology %s has no root", t.Kind))
}

// FinalStages returns the leaves, whose completion counts toward SLA satisfaction.
func (t *Topology) FinalStages() []StageID {
	var finals []StageID
	for _, s := range t.stages {
		if len(t.successors[s]) == 0 {
			finals = append(finals, s)
		}
	}
	return finals
}

// ProcessingStages returns the human-powered stages in id order.
func (t *Topology) ProcessingStages() []StageID {
	var out []StageID
	for _, s := range t.stages {
		if s.IsHumanPowered() {
			out = append(out, s)
		}
	}
	return out
}

// IsWaveGated reports whether the root is a non-human release gate.
func (t *Topology) IsWaveGated() bool {
	return !t.Root().IsHumanPowered()
}

// stageSet is a presence bitset indexed by StageID.
type stageSet uint32

func (b stageSet) has(s StageID) bool { return b&(1<<uint(s)) != 0 }
func (b stageSet) with(s StageID) stageSet { return b | 1<<uint(s) }
func (b stageSet) count() int {
	n := 0
	for ; b != 0; b &= b - 1 {
		n++
	}
	return n
}
