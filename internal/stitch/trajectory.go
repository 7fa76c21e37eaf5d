package stitch

import (
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/halcyon-data/stormtrack/internal/grid"
)

// State is the lifecycle state of an in-progress trajectory.
type State string

const (
	// StateOpen marks a trajectory still eligible for extension.
	StateOpen State = "open"
	// StateClosed is terminal: the gap budget ran out or the stream
	// ended. Closed trajectories are evaluated against the duration
	// policy and either retained or dropped.
	StateClosed State = "closed"
)

// Point is one trajectory position. Filled points are synthesised by
// gap interpolation rather than observed by the detector.
type Point struct {
	Time    time.Time
	Step    int // model step number within the run
	Lat     float64
	Lon     float64
	I, J    int
	GridIdx int
	Values  map[string]float64
	Filled  bool
}

// Trajectory is a finalized, time-ordered chain of points for one
// tracked feature. Identifiers are assigned in creation order and are
// stable for a given input sequence and parameter set.
type Trajectory struct {
	ID     string
	Points []Point
}

// DurationSteps is the number of observed (non-filled) points, the
// quantity the minimum-duration policy applies to.
func (t *Trajectory) DurationSteps() int {
	n := 0
	for _, p := range t.Points {
		if !p.Filled {
			n++
		}
	}
	return n
}

// Elapsed is the wall-clock span from first to last point.
func (t *Trajectory) Elapsed() time.Duration {
	if len(t.Points) == 0 {
		return 0
	}
	return t.Points[len(t.Points)-1].Time.Sub(t.Points[0].Time)
}

// PathLengthDeg is the summed great-circle arc between consecutive
// points, in degrees.
func (t *Trajectory) PathLengthDeg() float64 {
	var total float64
	for i := 1; i < len(t.Points); i++ {
		a, b := t.Points[i-1], t.Points[i]
		total += grid.GreatCircleDeg(a.Lat, a.Lon, b.Lat, b.Lon)
	}
	return total
}

// MeanValue returns the mean of a named criterion variable over the
// trajectory's observed points, and false when the variable is absent.
func (t *Trajectory) MeanValue(name string) (float64, bool) {
	var samples []float64
	for _, p := range t.Points {
		if p.Filled {
			continue
		}
		if v, ok := p.Values[name]; ok {
			samples = append(samples, v)
		}
	}
	if len(samples) == 0 {
		return 0, false
	}
	return stat.Mean(samples, nil), true
}

// trackSlot is the stitcher's arena entry for one in-progress
// trajectory: an explicit state tag plus the consecutive-gap counter,
// addressed by index rather than pointer-chased.
type trackSlot struct {
	state    State
	seq      int // creation order, drives identifier assignment
	gapRun   int // consecutive missing steps since the last link
	lastStep int // model step of the last linked point
	points   []Point
}

func (s *trackSlot) head() Point { return s.points[len(s.points)-1] }
