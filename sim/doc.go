// Package sim forecasts how the backlog of every stage of a fulfillment
// workflow evolves until the last known delivery deadline, and sizes the
// headcount each stage needs to keep its downstream supplied.
//
// # Reading Guide
//
//   - stage.go: the closed set of stages and the topology of each workflow
//   - queue.go: the two immutable queue representations (batch-ordered, deadline-only)
//   - processing_order.go: oldest-first and earliest-deadline-first consumption, routing to successors
//   - step.go: the waveless and wave-gated step estimators
//   - trajectory.go: inflection points and the step loop (EstimateTrajectory)
//   - overseer.go: the backward headcount pass (Overseer.OverseeTrajectory)
//
// # Collaborators
//
// The engine never fetches data. Callers inject small interfaces:
//   - StaffingPlan: throughput integral and per-head productivity of a stage
//   - UpstreamArrivals: work entering the first stage
//   - BufferPolicy: desired look-ahead in front of a stage
//   - ProcessingOrderPolicy: which units are processed first
//   - DownstreamConsumption: demand at the final stages (overseer only)
//
// Concrete rate-based implementations live in sim/rate; scenario files are
// loaded by sim/scenario; sim/trace summarizes results.
//
// Every computation is pure and deterministic: identical inputs yield deeply
// equal outputs. Broken contracts panic with *InvariantViolation internally
// and surface as errors from the entry points.
package sim
