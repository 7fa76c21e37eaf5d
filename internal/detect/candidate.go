package detect

import "time"

// Candidate is a single grid cell that satisfied every detect
// criterion at one time step. Candidates are immutable after creation:
// the detector builds them, the stitcher only reads them.
type Candidate struct {
	Time time.Time

	// Seq is the per-time-step ordinal, assigned in ascending grid
	// index order. Unique within a step; used for deterministic
	// tie-breaks downstream.
	Seq int

	// Grid location.
	GridIdx int
	I, J    int // longitude column, latitude row
	Lat     float64
	Lon     float64

	// Values holds the detect-criteria variable samples at the cell.
	Values map[string]float64
}
