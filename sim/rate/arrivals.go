package rate

import (
	"fmt"
	"sort"
	"time"

	"github.com/guspollitzer/workflow-backlog-projection/sim"
)

// Stream is the forecast arrival rate of units belonging to one SLA.
type Stream struct {
	Sla  sim.Sla
	Rate Trajectory
}

// Arrivals implements sim.UpstreamArrivals from per-SLA rate streams. The
// queue it returns uses the representation the receiving stage works on.
type Arrivals struct {
	discipline sim.QueueDiscipline
	streams    []Stream
}

// NewArrivals builds the arrival forecast for a workflow whose root stage
// consumes with discipline. Streams of the same SLA are summed.
func NewArrivals(discipline sim.QueueDiscipline, streams ...Stream) (*Arrivals, error) {
	bySla := make(map[sim.Sla][]Trajectory)
	for i, s := range streams {
		if !s.Rate.IsNonNegative() {
			return nil, fmt.Errorf("stream %d (sla %q): rate must be >= 0", i, s.Sla.ID)
		}
		bySla[s.Sla] = append(bySla[s.Sla], s.Rate)
	}
	a := &Arrivals{discipline: discipline}
	for sla, rates := range bySla {
		a.streams = append(a.streams, Stream{Sla: sla, Rate: Sum(rates...)})
	}
	sort.Slice(a.streams, func(i, j int) bool {
		x, y := a.streams[i].Sla, a.streams[j].Sla
		if !x.Deadline.Equal(y.Deadline) {
			return x.Deadline.Before(y.Deadline)
		}
		return x.ID < y.ID
	})
	return a, nil
}

// Integral returns the whole units arriving over [from, to) as one batch, or
// as a deadline-only queue for earliest-deadline-first receivers.
func (a *Arrivals) Integral(from, to time.Time) sim.Queue {
	portions := make([]sim.Portion, 0, len(a.streams))
	for _, s := range a.streams {
		if n := s.Rate.IntegerIntegral(from, to); n > 0 {
			portions = append(portions, sim.Portion{Sla: s.Sla, Quantity: n})
		}
	}
	if a.discipline == sim.EarliestDeadlineFirst {
		return sim.NewSlaQueue(portions...)
	}
	return sim.NewBatchQueue(sim.NewBatch(portions...))
}

// Consumption implements sim.DownstreamConsumption from a demand rate per
// final stage. Demand carries no SLA.
type Consumption struct {
	demand sim.StageMap[Trajectory]
}

// NewConsumption validates the per-final-stage demand rates.
func NewConsumption(demand sim.StageMap[Trajectory]) (*Consumption, error) {
	for _, e := range demand.Entries() {
		if !e.Value.IsNonNegative() {
			return nil, fmt.Errorf("stage %s: demand must be >= 0", e.Stage)
		}
	}
	return &Consumption{demand: demand}, nil
}

// Integral returns the whole units demanded at finalStage over [from, to).
func (c *Consumption) Integral(finalStage sim.StageID, from, to time.Time) sim.Queue {
	t, ok := c.demand.Get(finalStage)
	if !ok {
		return sim.NewSlaQueue()
	}
	return sim.NewSlaQueue(sim.Portion{Quantity: max(0, t.IntegerIntegral(from, to))})
}
