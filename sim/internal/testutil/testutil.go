// Package testutil provides shared test infrastructure for the projection
// engine: instant fixtures and float assertion helpers used across sim/ and
// its sub-packages.
package testutil

import (
	"math"
	"testing"
	"time"
)

// Epoch is the instant test scenarios start at.
var Epoch = time.Date(2026, time.January, 5, 8, 0, 0, 0, time.UTC)

// At returns the instant hours after Epoch. Fractions are allowed.
func At(hours float64) time.Time {
	return Epoch.Add(time.Duration(hours * float64(time.Hour)))
}

// AssertFloat64Equal compares two float64 values with relative tolerance.
func AssertFloat64Equal(t *testing.T, name string, want, got, relTol float64) {
	t.Helper()
	if want == 0 && got == 0 {
		return
	}
	diff := math.Abs(want - got)
	maxVal := math.Max(math.Abs(want), math.Abs(got))
	if diff/maxVal > relTol {
		t.Errorf("%s: got %v, want %v (diff=%v, relDiff=%v)", name, got, want, diff, diff/maxVal)
	}
}
