// Package testutil provides shared test utilities and fixtures.
//
// This package centralises common grid and candidate fixtures to
// reduce duplication across test files.
package testutil

import (
	"math"
	"testing"
	"time"

	"github.com/halcyon-data/stormtrack/internal/grid"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// AssertInDelta fails the test unless got is within delta of want.
func AssertInDelta(t *testing.T, got, want, delta float64) {
	t.Helper()
	if math.Abs(got-want) > delta {
		t.Errorf("value = %g, want %g ± %g", got, want, delta)
	}
}

// UniformAxis returns n axis coordinates starting at start with the
// given step.
func UniformAxis(start, step float64, n int) []float64 {
	axis := make([]float64, n)
	for i := range axis {
		axis[i] = start + float64(i)*step
	}
	return axis
}

// NewTestGrid builds an nlat×nlon global 1-degree grid at the given
// time step with a single variable filled with fill.
func NewTestGrid(t *testing.T, ts time.Time, nlat, nlon int, varName string, fill float64) *grid.Grid {
	t.Helper()
	g, err := grid.New(ts, UniformAxis(-float64(nlat)/2, 1, nlat), UniformAxis(0, 1, nlon), true)
	if err != nil {
		t.Fatalf("build test grid: %v", err)
	}
	samples := make([]float64, nlat*nlon)
	for i := range samples {
		samples[i] = fill
	}
	if err := g.SetVar(varName, samples); err != nil {
		t.Fatalf("set test variable: %v", err)
	}
	return g
}

// StepTime returns the timestamp of the n-th 6-hourly step of a fixed
// reference run, for tests that need ordered time steps.
func StepTime(n int) time.Time {
	base := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	return base.Add(time.Duration(n) * 6 * time.Hour)
}
