// Queue representations of a stage backlog. Queues are immutable values:
// every operation returns a new queue and never touches its receiver.

package sim

import (
	"fmt"
	"math/bits"
	"sort"
	"strings"
)

// Queue is a bag of otherwise indistinguishable units, each tagged with the SLA
// it belongs to. Implementations must be immutable and satisfy
// a.Append(b).Total() == a.Total() + b.Total().
type Queue interface {
	Total() int64
	Append(other Queue) Queue
}

// Portion is a quantity of units belonging to one SLA.
type Portion struct {
	Sla      Sla
	Quantity int64
}

// Batch is one arrival cohort broken down by SLA. Its total is the sum of its
// portions and is always positive for batches stored in a BatchQueue.
type Batch struct {
	total    int64
	portions []Portion
}

// NewBatch builds a batch keeping the given portion order. Zero portions are
// dropped and repeated SLAs are merged into their first occurrence.
func NewBatch(portions ...Portion) Batch {
	var b Batch
	index := make(map[Sla]int, len(portions))
	for _, p := range portions {
		mustHold(p.Quantity >= 0, "non-negative portion", "sla %q has quantity %d", p.Sla.ID, p.Quantity)
		p.Sla = p.Sla.canonical()
		if p.Quantity == 0 {
			continue
		}
		if i, ok := index[p.Sla]; ok {
			b.portions[i].Quantity += p.Quantity
		} else {
			index[p.Sla] = len(b.portions)
			b.portions = append(b.portions, p)
		}
		b.total += p.Quantity
	}
	return b
}

// Total returns the number of units in the batch.
func (b Batch) Total() int64 { return b.total }

// Portions returns a copy of the batch's SLA breakdown in its fixed order.
func (b Batch) Portions() []Portion { return append([]Portion(nil), b.portions...) }

// split divides the batch into a left part that stays queued and a right part
// of exactly right units. Each portion contributes to the right side with
// floor(cumulative*right/total) minus what earlier portions already gave, so
// the rounding remainder always lands on later portions of the fixed order.
func (b Batch) split(right int64) (left, taken Batch) {
	mustHold(right >= 0 && right <= b.total, "split within batch", "requested %d of a batch of %d", right, b.total)
	switch right {
	case 0:
		return b, Batch{}
	case b.total:
		return Batch{}, b
	}
	var cumulative, allocated int64
	for _, p := range b.portions {
		cumulative += p.Quantity
		share := mulDiv(cumulative, right, b.total) - allocated
		allocated += share
		if share > 0 {
			taken.portions = append(taken.portions, Portion{Sla: p.Sla, Quantity: share})
			taken.total += share
		}
		if rest := p.Quantity - share; rest > 0 {
			left.portions = append(left.portions, Portion{Sla: p.Sla, Quantity: rest})
			left.total += rest
		}
	}
	mustHold(taken.total == right, "split allocates exactly", "allocated %d, requested %d", taken.total, right)
	mustHold(left.total+taken.total == b.total, "split conserves units", "%d + %d != %d", left.total, taken.total, b.total)
	return left, taken
}

// mulDiv computes floor(a*b/c) for non-negative operands without overflowing
// the intermediate product. The quotient must fit in 63 bits.
func mulDiv(a, b, c int64) int64 {
	hi, lo := bits.Mul64(uint64(a), uint64(b))
	q, _ := bits.Div64(hi, lo, uint64(c))
	return int64(q)
}

// BatchQueue is the batch-ordered representation: arrival cohorts in order,
// each broken down by SLA. Used by oldest-first stages.
type BatchQueue struct {
	total   int64
	batches []Batch
}

// NewBatchQueue builds a queue from batches in arrival order. Empty batches are dropped.
func NewBatchQueue(batches ...Batch) *BatchQueue {
	q := &BatchQueue{}
	for _, b := range batches {
		if b.total == 0 {
			continue
		}
		q.batches = append(q.batches, b)
		q.total += b.total
	}
	return q
}

// Total returns the number of units in the queue.
func (q *BatchQueue) Total() int64 {
	if q == nil {
		return 0
	}
	return q.total
}

// Batches returns the batches in arrival order.
func (q *BatchQueue) Batches() []Batch {
	if q == nil {
		return nil
	}
	return append([]Batch(nil), q.batches...)
}

// Append returns a queue with the units of q followed by those of other.
// A deadline-only queue is appended as a single batch.
func (q *BatchQueue) Append(other Queue) Queue {
	o := asBatchQueue(other)
	if o.Total() == 0 {
		return q.orEmpty()
	}
	if q.Total() == 0 {
		return o
	}
	batches := make([]Batch, 0, len(q.batches)+len(o.batches))
	batches = append(batches, q.batches...)
	batches = append(batches, o.batches...)
	return &BatchQueue{total: q.total + o.total, batches: batches}
}

func (q *BatchQueue) orEmpty() *BatchQueue {
	if q == nil {
		return &BatchQueue{}
	}
	return q
}

func (q *BatchQueue) String() string {
	var sb strings.Builder
	sb.WriteString("[")
	for i, b := range q.Batches() {
		if i > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString(formatPortions(b.portions))
	}
	sb.WriteString("]")
	return sb.String()
}

// SlaQueue is the deadline-only representation: quantity per SLA without batch
// order. Portions are kept sorted by deadline then SLA ID, all positive.
// Used by earliest-deadline-first stages.
type SlaQueue struct {
	total    int64
	portions []Portion
}

// NewSlaQueue builds a deadline-only queue, merging repeated SLAs.
func NewSlaQueue(portions ...Portion) *SlaQueue {
	merged := make(map[Sla]int64, len(portions))
	for _, p := range portions {
		mustHold(p.Quantity >= 0, "non-negative portion", "sla %q has quantity %d", p.Sla.ID, p.Quantity)
		merged[p.Sla.canonical()] += p.Quantity
	}
	q := &SlaQueue{}
	for sla, quantity := range merged {
		if quantity == 0 {
			continue
		}
		q.portions = append(q.portions, Portion{Sla: sla, Quantity: quantity})
		q.total += quantity
	}
	sort.Slice(q.portions, func(i, j int) bool { return slaLess(q.portions[i].Sla, q.portions[j].Sla) })
	return q
}

// Total returns the number of units in the queue.
func (q *SlaQueue) Total() int64 {
	if q == nil {
		return 0
	}
	return q.total
}

// Portions returns the per-SLA quantities sorted by deadline.
func (q *SlaQueue) Portions() []Portion {
	if q == nil {
		return nil
	}
	return append([]Portion(nil), q.portions...)
}

// QuantityOf returns the units queued for sla.
func (q *SlaQueue) QuantityOf(sla Sla) int64 {
	sla = sla.canonical()
	for _, p := range q.Portions() {
		if p.Sla == sla {
			return p.Quantity
		}
	}
	return 0
}

// Append merges the per-SLA quantities of both queues.
func (q *SlaQueue) Append(other Queue) Queue {
	o := asSlaQueue(other)
	if o.Total() == 0 {
		if q == nil {
			return &SlaQueue{}
		}
		return q
	}
	if q.Total() == 0 {
		return o
	}
	return NewSlaQueue(append(q.Portions(), o.portions...)...)
}

func (q *SlaQueue) String() string {
	return "{" + formatPortions(q.Portions()) + "}"
}

// Breakdown aggregates the units of any engine queue per SLA, sorted by deadline.
func Breakdown(q Queue) []Portion {
	return asSlaQueue(q).Portions()
}

// EmptyQueueFor returns the empty queue of the representation a discipline works on.
func EmptyQueueFor(d QueueDiscipline) Queue {
	if d == EarliestDeadlineFirst {
		return &SlaQueue{}
	}
	return &BatchQueue{}
}

func asBatchQueue(q Queue) *BatchQueue {
	switch v := q.(type) {
	case nil:
		return &BatchQueue{}
	case *BatchQueue:
		return v.orEmpty()
	case *SlaQueue:
		return NewBatchQueue(NewBatch(v.Portions()...))
	default:
		panic(&InvariantViolation{Invariant: "known queue representation", Detail: fmt.Sprintf("%T", q)})
	}
}

func asSlaQueue(q Queue) *SlaQueue {
	switch v := q.(type) {
	case nil:
		return &SlaQueue{}
	case *SlaQueue:
		if v == nil {
			return &SlaQueue{}
		}
		return v
	case *BatchQueue:
		var all []Portion
		for _, b := range v.Batches() {
			all = append(all, b.portions...)
		}
		return NewSlaQueue(all...)
	default:
		panic(&InvariantViolation{Invariant: "known queue representation", Detail: fmt.Sprintf("%T", q)})
	}
}

func formatPortions(portions []Portion) string {
	parts := make([]string, len(portions))
	for i, p := range portions {
		id := p.Sla.ID
		if !p.Sla.IsTracked() {
			id = "-"
		}
		parts[i] = fmt.Sprintf("%s:%d", id, p.Quantity)
	}
	return strings.Join(parts, ",")
}
