package sim

import (
	"math"
	"time"

	"github.com/guspollitzer/workflow-backlog-projection/sim/internal/testutil"
)

func at(hours float64) time.Time { return testutil.At(hours) }

func sla(id string, deadlineHours float64) Sla { return Sla{ID: id, Deadline: at(deadlineHours)} }

// constantPlan staffs every listed stage with one head at a constant rate.
type constantPlan struct {
	perHour map[StageID]float64
}

func (p constantPlan) IntegrateThroughput(s StageID, from, to time.Time) float64 {
	return p.perHour[s] * to.Sub(from).Hours()
}

func (p constantPlan) AverageProductivity(s StageID, from, to time.Time) float64 {
	return p.perHour[s] * to.Sub(from).Hours()
}

// steadyArrivals feeds one SLA at a constant rate, rounding cumulative units
// from testutil.Epoch so that partitions add up.
type steadyArrivals struct {
	sla        Sla
	perHour    float64
	discipline QueueDiscipline
}

func (a steadyArrivals) Integral(from, to time.Time) Queue {
	cumulative := func(t time.Time) int64 {
		return int64(math.RoundToEven(a.perHour * t.Sub(testutil.Epoch).Hours()))
	}
	n := cumulative(to) - cumulative(from)
	if a.discipline == EarliestDeadlineFirst {
		return NewSlaQueue(Portion{Sla: a.sla, Quantity: n})
	}
	return NewBatchQueue(NewBatch(Portion{Sla: a.sla, Quantity: n}))
}

type noArrivals struct{ discipline QueueDiscipline }

func (a noArrivals) Integral(_, _ time.Time) Queue { return EmptyQueueFor(a.discipline) }

// fixedBuffer wants the same look-ahead everywhere and may report extra
// inflection points.
type fixedBuffer struct {
	size   time.Duration
	points []time.Time
}

func (b fixedBuffer) DesiredBufferSize(StageID, time.Time, UpcomingSlas) time.Duration { return b.size }

func (b fixedBuffer) InflectionPointsBetween(from, to time.Time) []time.Time {
	var out []time.Time
	for _, p := range b.points {
		if p.After(from) && p.Before(to) {
			out = append(out, p)
		}
	}
	return out
}

// constantDemand consumes the same number of units per hour at every final stage.
type constantDemand struct{ perHour float64 }

func (d constantDemand) Integral(_ StageID, from, to time.Time) Queue {
	return NewSlaQueue(Portion{Quantity: int64(math.RoundToEven(d.perHour * to.Sub(from).Hours()))})
}

func invariantsFor(kind WorkflowKind, plan StaffingPlan, arrivals UpstreamArrivals, buffer BufferPolicy) *Invariants {
	topology := TopologyOf(kind)
	return &Invariants{
		Topology: topology,
		Plan:     plan,
		Arrivals: arrivals,
		Policy:   NewDisciplinePolicy(topology, StageMap[float64]{}),
		Buffer:   buffer,
	}
}

func batchQueue(portions ...Portion) *BatchQueue { return NewBatchQueue(NewBatch(portions...)) }
