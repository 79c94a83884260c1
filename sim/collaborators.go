package sim

import "time"

// StaffingPlan is what the engine needs to know about planned throughput.
type StaffingPlan interface {
	// IntegrateThroughput returns the units the stage can process over [from, to).
	IntegrateThroughput(stage StageID, from, to time.Time) float64
	// AverageProductivity returns the units a single head processes over [from, to).
	AverageProductivity(stage StageID, from, to time.Time) float64
}

// UpstreamArrivals forecasts the work entering the first stage of a workflow.
type UpstreamArrivals interface {
	// Integral returns the units arriving during [from, to).
	Integral(from, to time.Time) Queue
}

// BufferPolicy decides how much look-ahead work should wait in front of a stage.
type BufferPolicy interface {
	DesiredBufferSize(stage StageID, at time.Time, upcoming UpcomingSlas) time.Duration
	InflectionPointsBetween(from, to time.Time) []time.Time
}

// DownstreamConsumption is the observed or forecast output demanded at each final stage.
type DownstreamConsumption interface {
	Integral(finalStage StageID, from, to time.Time) Queue
}

// Clock supplies the instant a computation is anchored at.
type Clock interface {
	Now() time.Time
}

// FixedClock always returns the same instant, freezing time for one request.
type FixedClock struct {
	Instant time.Time
}

func (c FixedClock) Now() time.Time { return c.Instant }
