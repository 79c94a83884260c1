package sim

import (
	"fmt"
	"time"
)

// ProcessingOrderPolicy decides which queued units a stage processes during an
// interval and where they go next.
//
// Decide must return queues such that the processed values total exactly
// quantity and remaining.Total() + quantity == initial.Total(). Callers
// guarantee 0 <= quantity <= initial.Total() and that (start, end) does not
// straddle any instant reported by InflectionPointsBetween.
type ProcessingOrderPolicy interface {
	Decide(stage StageID, initial Queue, quantity int64, start, end time.Time, upcoming UpcomingSlas) Split
	InflectionPointsBetween(from, to time.Time) []time.Time
}

// Split is the outcome of a processing decision. Processed is keyed by
// destination stage; a final stage keys its output under its own id, meaning
// the units left the workflow.
type Split struct {
	Remaining Queue
	Processed StageMap[Queue]
}

// ProcessedTotal sums the processed queues of every destination.
func (s Split) ProcessedTotal() int64 {
	var total int64
	s.Processed.Each(func(_ StageID, q Queue) { total += q.Total() })
	return total
}

// DisciplinePolicy applies each stage's own queue discipline (oldest-first on
// batch-ordered queues, earliest-deadline-first on deadline-only queues) and
// routes the processed units to the stage's successors by RoutingShares.
// It reports no inflection points.
type DisciplinePolicy struct {
	topology *Topology
	shares   StageMap[float64]
}

// NewDisciplinePolicy creates the policy for a topology. shares weights each
// destination among its siblings; missing or non-positive weights fall back to
// equal shares among the successors of the same stage.
func NewDisciplinePolicy(topology *Topology, shares StageMap[float64]) *DisciplinePolicy {
	if topology == nil {
		panic("NewDisciplinePolicy: topology must not be nil")
	}
	return &DisciplinePolicy{topology: topology, shares: shares}
}

// Decide implements ProcessingOrderPolicy.
func (p *DisciplinePolicy) Decide(stage StageID, initial Queue, quantity int64, _, _ time.Time, upcoming UpcomingSlas) Split {
	mustHold(quantity >= 0, "non-negative quantity to process", "stage %s asked to process %d", stage, quantity)
	mustHold(quantity <= initial.Total(), "quantity within queue", "stage %s asked to process %d of %d", stage, quantity, initial.Total())

	var remaining Queue
	var processed *BatchQueue
	switch stage.Discipline() {
	case OldestFirst:
		remaining, processed = consumeOldestFirst(asBatchQueue(initial), quantity)
	case EarliestDeadlineFirst:
		remaining, processed = consumeEarliestDeadlineFirst(asSlaQueue(initial), quantity, upcoming)
	default:
		panic(fmt.Sprintf("DisciplinePolicy: unhandled discipline %v", stage.Discipline()))
	}

	split := Split{Remaining: remaining, Processed: p.route(stage, processed)}
	mustHold(split.ProcessedTotal() == quantity, "processed equals requested",
		"stage %s processed %d, requested %d", stage, split.ProcessedTotal(), quantity)
	mustHold(remaining.Total()+quantity == initial.Total(), "remaining equals initial minus processed",
		"stage %s: %d + %d != %d", stage, remaining.Total(), quantity, initial.Total())
	return split
}

// InflectionPointsBetween implements ProcessingOrderPolicy. Neither discipline
// changes its decision over time.
func (p *DisciplinePolicy) InflectionPointsBetween(_, _ time.Time) []time.Time {
	return nil
}

// route distributes processed among the successors of stage. Destination
// quantities follow the running-remainder rule over successors in id order;
// each destination takes its units from the front of the processed queue.
func (p *DisciplinePolicy) route(stage StageID, processed *BatchQueue) StageMap[Queue] {
	successors := p.topology.Successors(stage)
	if len(successors) == 0 {
		return StageMapOf[Queue](StageEntry[Queue]{Stage: stage, Value: processed})
	}
	if len(successors) == 1 {
		return StageMapOf[Queue](StageEntry[Queue]{Stage: successors[0], Value: processed})
	}

	weights := make([]float64, len(successors))
	var weightTotal float64
	for i, s := range successors {
		if w, ok := p.shares.Get(s); ok && w > 0 {
			weights[i] = w
			weightTotal += w
		}
	}
	if weightTotal <= 0 {
		for i := range weights {
			weights[i] = 1
		}
		weightTotal = float64(len(weights))
	}

	var routed StageMap[Queue]
	rest := processed
	total := processed.Total()
	var cumulativeWeight float64
	var allocated int64
	for i, s := range successors {
		cumulativeWeight += weights[i]
		target := int64(float64(total) * cumulativeWeight / weightTotal)
		if i == len(successors)-1 {
			target = total
		}
		share := target - allocated
		allocated += share
		var taken *BatchQueue
		rest, taken = consumeOldestFirst(rest, share)
		routed = routed.With(s, taken)
	}
	return routed
}

// consumeOldestFirst takes whole batches in arrival order while they fit and
// splits the first batch that does not.
func consumeOldestFirst(q *BatchQueue, quantity int64) (remaining, taken *BatchQueue) {
	batches := q.Batches()
	var takenBatches []Batch
	left := quantity
	i := 0
	for ; i < len(batches) && left > 0; i++ {
		b := batches[i]
		if b.total <= left {
			takenBatches = append(takenBatches, b)
			left -= b.total
			continue
		}
		stay, part := b.split(left)
		takenBatches = append(takenBatches, part)
		batches[i] = stay
		left = 0
		break
	}
	mustHold(left == 0, "quantity within queue", "%d units missing from a queue of %d", left, q.Total())
	return NewBatchQueue(batches[i:]...), NewBatchQueue(takenBatches...)
}

// consumeEarliestDeadlineFirst drains the SLAs by ascending deadline, matching
// queued units to upcoming SLAs by ID. Units whose SLA is not among upcoming
// (including untracked ones) form a single bucket consumed last, in the
// queue's canonical order.
func consumeEarliestDeadlineFirst(q *SlaQueue, quantity int64, upcoming UpcomingSlas) (remaining *SlaQueue, taken *BatchQueue) {
	waiting := make([]int64, len(q.portions))
	byID := make(map[string][]int)
	for i, p := range q.portions {
		waiting[i] = p.Quantity
		if p.Sla.IsTracked() {
			byID[p.Sla.ID] = append(byID[p.Sla.ID], i)
		}
	}

	var processed []Portion
	left := quantity
	take := func(i int) {
		if waiting[i] == 0 || left == 0 {
			return
		}
		n := min(waiting[i], left)
		waiting[i] -= n
		left -= n
		processed = append(processed, Portion{Sla: q.portions[i].Sla, Quantity: n})
	}

	scheduled := make([]bool, len(q.portions))
	for _, sla := range upcoming.Ordered() {
		for _, i := range byID[sla.ID] {
			scheduled[i] = true
			take(i)
		}
	}
	for i := range q.portions {
		if !scheduled[i] {
			take(i)
		}
	}
	mustHold(left == 0, "quantity within queue", "%d units missing from a queue of %d", left, q.Total())

	rest := make([]Portion, len(q.portions))
	for i, p := range q.portions {
		rest[i] = Portion{Sla: p.Sla, Quantity: waiting[i]}
	}
	return NewSlaQueue(rest...), NewBatchQueue(NewBatch(processed...))
}
