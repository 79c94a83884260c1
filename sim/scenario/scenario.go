// Package scenario loads a workflow backlog scenario from YAML and turns it
// into the inputs of the trajectory estimator and the overseer.
package scenario

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/guspollitzer/workflow-backlog-projection/sim"
)

// Scenario is the top-level scenario file.
// Loaded from YAML via LoadScenario(path).
type Scenario struct {
	Workflow string    `yaml:"workflow"`
	Now      time.Time `yaml:"now"`
	Slas     []SlaSpec `yaml:"slas"`

	Backlog           map[string][]BatchSpec  `yaml:"backlog,omitempty"`
	Staffing          map[string]StaffingSpec `yaml:"staffing,omitempty"`
	Arrivals          []ArrivalSpec           `yaml:"arrivals,omitempty"`
	Shares            map[string]float64      `yaml:"shares,omitempty"`
	Buffer            BufferSpec              `yaml:"buffer,omitempty"`
	Consumption       map[string][]RatePoint  `yaml:"consumption,omitempty"`
	InitialDownstream map[string]int64        `yaml:"initial_downstream,omitempty"`
}

// SlaSpec declares a deadline. Without an id one is derived from the deadline
// and the position in the list.
type SlaSpec struct {
	ID       string    `yaml:"id,omitempty"`
	Deadline time.Time `yaml:"deadline"`
}

// SlaRef points at a declared SLA by id or, for SLAs declared without one, by
// deadline. An empty reference means untracked units.
type SlaRef struct {
	Sla      string     `yaml:"sla,omitempty"`
	Deadline *time.Time `yaml:"deadline,omitempty"`
}

// PortionSpec is a quantity of units of one SLA.
type PortionSpec struct {
	SlaRef   `yaml:",inline"`
	Quantity int64 `yaml:"quantity"`
}

// BatchSpec is one queued arrival cohort. Deadline-ordered stages ignore the
// batch boundaries.
type BatchSpec struct {
	Portions []PortionSpec `yaml:"portions"`
}

// RatePoint sets a rate from At onwards.
type RatePoint struct {
	At    time.Time `yaml:"at"`
	Value float64   `yaml:"value"`
}

// StaffingSpec is the plan of one stage: heads over time and units per head
// per hour over time.
type StaffingSpec struct {
	Headcount    []RatePoint `yaml:"headcount"`
	Productivity []RatePoint `yaml:"productivity"`
}

// ArrivalSpec is the forecast arrival rate of one SLA into the first stage.
type ArrivalSpec struct {
	SlaRef `yaml:",inline"`
	Rate   []RatePoint `yaml:"rate"`
}

// BufferSpec configures the scheduled buffer policy.
type BufferSpec struct {
	CapAtLastDeadline bool                    `yaml:"cap_at_last_deadline,omitempty"`
	Windows           map[string][]WindowSpec `yaml:"windows,omitempty"`
}

// WindowSpec bounds the look-ahead of a stage from From onwards.
type WindowSpec struct {
	From time.Time     `yaml:"from"`
	Min  time.Duration `yaml:"min"`
	Max  time.Duration `yaml:"max"`
}

// LoadScenario reads and parses a YAML scenario file.
// Uses strict parsing: unrecognized keys (typos) are rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses a YAML scenario document.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("parsing scenario: %w", err)
	}
	return &s, nil
}

// Validate checks that all fields in the scenario are valid.
func (s *Scenario) Validate() error {
	kind, err := sim.ParseWorkflowKind(s.Workflow)
	if err != nil {
		return fmt.Errorf("workflow: %w", err)
	}
	topology := sim.TopologyOf(kind)
	index, err := resolveSlas(s.Slas)
	if err != nil {
		return err
	}

	for _, name := range sortedKeys(s.Backlog) {
		if err := validateStage("backlog", name, topology); err != nil {
			return err
		}
		for i, b := range s.Backlog[name] {
			for j, p := range b.Portions {
				if p.Quantity < 0 {
					return fmt.Errorf("backlog.%s[%d].portions[%d]: quantity must be non-negative, got %d", name, i, j, p.Quantity)
				}
				if _, err := index.resolve(p.SlaRef); err != nil {
					return fmt.Errorf("backlog.%s[%d].portions[%d]: %w", name, i, j, err)
				}
			}
		}
	}
	for _, name := range sortedKeys(s.Staffing) {
		if err := validateStage("staffing", name, topology); err != nil {
			return err
		}
		st := s.Staffing[name]
		if err := validateRates(fmt.Sprintf("staffing.%s.headcount", name), st.Headcount); err != nil {
			return err
		}
		if err := validateRates(fmt.Sprintf("staffing.%s.productivity", name), st.Productivity); err != nil {
			return err
		}
	}
	for i, a := range s.Arrivals {
		if _, err := index.resolve(a.SlaRef); err != nil {
			return fmt.Errorf("arrivals[%d]: %w", i, err)
		}
		if err := validateRates(fmt.Sprintf("arrivals[%d].rate", i), a.Rate); err != nil {
			return err
		}
	}
	for _, name := range sortedKeys(s.Shares) {
		if err := validateStage("shares", name, topology); err != nil {
			return err
		}
		if v := s.Shares[name]; math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("shares.%s must be a finite non-negative number, got %f", name, v)
		}
	}
	for _, name := range sortedKeys(s.Buffer.Windows) {
		if err := validateStage("buffer.windows", name, topology); err != nil {
			return err
		}
		for i, w := range s.Buffer.Windows[name] {
			if w.Min < 0 || w.Max < w.Min {
				return fmt.Errorf("buffer.windows.%s[%d]: need 0 <= min <= max, got min=%s max=%s", name, i, w.Min, w.Max)
			}
		}
	}
	for _, name := range sortedKeys(s.Consumption) {
		if err := validateFinalStage("consumption", name, topology); err != nil {
			return err
		}
		if err := validateRates("consumption."+name, s.Consumption[name]); err != nil {
			return err
		}
	}
	for _, name := range sortedKeys(s.InitialDownstream) {
		if err := validateFinalStage("initial_downstream", name, topology); err != nil {
			return err
		}
		if v := s.InitialDownstream[name]; v < 0 {
			return fmt.Errorf("initial_downstream.%s must be non-negative, got %d", name, v)
		}
	}
	return nil
}

func validateStage(field, name string, topology *sim.Topology) error {
	stage, err := sim.ParseStage(name)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if !topology.Contains(stage) {
		return fmt.Errorf("%s: stage %s is not part of workflow %s", field, stage, topology.Kind)
	}
	return nil
}

func validateFinalStage(field, name string, topology *sim.Topology) error {
	if err := validateStage(field, name, topology); err != nil {
		return err
	}
	stage, _ := sim.ParseStage(name)
	for _, f := range topology.FinalStages() {
		if f == stage {
			return nil
		}
	}
	return fmt.Errorf("%s: stage %s is not a final stage of workflow %s", field, stage, topology.Kind)
}

func validateRates(field string, points []RatePoint) error {
	for i, p := range points {
		if math.IsNaN(p.Value) || math.IsInf(p.Value, 0) {
			return fmt.Errorf("%s[%d] must be a finite number, got %f", field, i, p.Value)
		}
		if p.Value < 0 {
			return fmt.Errorf("%s[%d] must be non-negative, got %f", field, i, p.Value)
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
