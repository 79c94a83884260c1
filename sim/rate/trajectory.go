// Package rate provides piecewise-constant rate trajectories and the concrete
// engine collaborators built on them: staffing plans, upstream arrivals,
// downstream consumption and scheduled buffer policies.
package rate

import (
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
)

// Point sets the rate (units per hour) from At until the next point.
type Point struct {
	At   time.Time
	Rate float64
}

// Trajectory is a piecewise-constant rate over time. Before its first point the
// first rate holds, so a single point describes a constant rate. The zero
// Trajectory is constantly zero.
type Trajectory struct {
	points []Point
}

// NewTrajectory builds a trajectory from points in any order. When two points
// share an instant the later argument wins. Rates must be finite.
func NewTrajectory(points ...Point) (Trajectory, error) {
	sorted := make([]Point, 0, len(points))
	for i, p := range points {
		if math.IsNaN(p.Rate) || math.IsInf(p.Rate, 0) {
			return Trajectory{}, fmt.Errorf("point %d: rate must be finite, got %f", i, p.Rate)
		}
		sorted = append(sorted, p)
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].At.Before(sorted[j].At) })
	unique := sorted[:0]
	for _, p := range sorted {
		if n := len(unique); n > 0 && unique[n-1].At.Equal(p.At) {
			unique[n-1] = p
			continue
		}
		unique = append(unique, p)
	}
	return Trajectory{points: unique}, nil
}

// MustTrajectory is NewTrajectory for literal inputs; it panics on error.
func MustTrajectory(points ...Point) Trajectory {
	t, err := NewTrajectory(points...)
	if err != nil {
		panic(err)
	}
	return t
}

// constantOrigin anchors constant trajectories. Durations from it to any
// realistic instant fit in a time.Duration.
var constantOrigin = time.Unix(0, 0).UTC()

// Constant returns a trajectory with the same rate at every instant.
func Constant(rate float64) Trajectory {
	return MustTrajectory(Point{At: constantOrigin, Rate: rate})
}

// Points returns a copy of the trajectory's points in time order.
func (t Trajectory) Points() []Point { return append([]Point(nil), t.points...) }

// RateAt returns the rate in force at the given instant.
func (t Trajectory) RateAt(at time.Time) float64 {
	if len(t.points) == 0 {
		return 0
	}
	i := sort.Search(len(t.points), func(i int) bool { return t.points[i].At.After(at) })
	if i == 0 {
		return t.points[0].Rate
	}
	return t.points[i-1].Rate
}

// Integrate returns the definite integral of the rate over [from, to), in units.
// It is additive over partitions and Integrate(to, from) == -Integrate(from, to).
func (t Trajectory) Integrate(from, to time.Time) float64 {
	if from.After(to) {
		return -t.Integrate(to, from)
	}
	if len(t.points) == 0 || from.Equal(to) {
		return 0
	}
	bounds := t.breakpoints(from, to)
	rates := make([]float64, len(bounds)-1)
	hours := make([]float64, len(bounds)-1)
	for i := range rates {
		rates[i] = t.RateAt(bounds[i])
		hours[i] = bounds[i+1].Sub(bounds[i]).Hours()
	}
	return floats.Dot(rates, hours)
}

// IntegerIntegral returns whole units over [from, to) as the difference of the
// rounded cumulative integrals from the trajectory origin, so integer results
// over consecutive intervals add up to the integer result over their union.
func (t Trajectory) IntegerIntegral(from, to time.Time) int64 {
	origin := t.origin()
	return int64(math.RoundToEven(t.Integrate(origin, to))) - int64(math.RoundToEven(t.Integrate(origin, from)))
}

// IsNonNegative reports whether every rate is >= 0.
func (t Trajectory) IsNonNegative() bool {
	for _, p := range t.points {
		if p.Rate < 0 {
			return false
		}
	}
	return true
}

func (t Trajectory) origin() time.Time {
	if len(t.points) == 0 {
		return time.Time{}
	}
	return t.points[0].At
}

// breakpoints returns from, the points strictly inside (from, to), and to.
func (t Trajectory) breakpoints(from, to time.Time) []time.Time {
	bounds := []time.Time{from}
	for _, p := range t.points {
		if p.At.After(from) && p.At.Before(to) {
			bounds = append(bounds, p.At)
		}
	}
	return append(bounds, to)
}

// Product returns the pointwise product of two trajectories.
func Product(a, b Trajectory) Trajectory {
	if len(a.points) == 0 || len(b.points) == 0 {
		return Trajectory{}
	}
	instants := make([]time.Time, 0, len(a.points)+len(b.points))
	for _, p := range a.points {
		instants = append(instants, p.At)
	}
	for _, p := range b.points {
		instants = append(instants, p.At)
	}
	points := make([]Point, len(instants))
	for i, at := range instants {
		points[i] = Point{At: at, Rate: a.RateAt(at) * b.RateAt(at)}
	}
	return MustTrajectory(points...)
}

// Sum returns the pointwise sum of trajectories.
func Sum(ts ...Trajectory) Trajectory {
	var instants []time.Time
	for _, t := range ts {
		for _, p := range t.points {
			instants = append(instants, p.At)
		}
	}
	points := make([]Point, len(instants))
	for i, at := range instants {
		rates := make([]float64, len(ts))
		for j, t := range ts {
			rates[j] = t.RateAt(at)
		}
		points[i] = Point{At: at, Rate: floats.Sum(rates)}
	}
	return MustTrajectory(points...)
}
