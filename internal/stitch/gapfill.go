package stitch

import (
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/interp"

	"github.com/halcyon-data/stormtrack/internal/grid"
)

// fillTrajectoryGaps inserts interpolated points for the missing steps
// inside a trajectory. Position, grid indices, and criterion values
// are piecewise-linear in the model step; longitudes are unwrapped
// before fitting so a track crossing the 0/360 seam interpolates along
// the short way around. Filled points are flagged and carry no grid
// cell index.
func fillTrajectoryGaps(t *Trajectory, _ time.Duration) error {
	if len(t.Points) < 2 {
		return nil
	}
	gapped := false
	for i := 1; i < len(t.Points); i++ {
		if t.Points[i].Step-t.Points[i-1].Step > 1 {
			gapped = true
			break
		}
	}
	if !gapped {
		return nil
	}

	n := len(t.Points)
	xs := make([]float64, n)
	lats := make([]float64, n)
	lons := make([]float64, n)
	is := make([]float64, n)
	js := make([]float64, n)
	for k, p := range t.Points {
		xs[k] = float64(p.Step)
		lats[k] = p.Lat
		is[k] = float64(p.I)
		js[k] = float64(p.J)
		if k == 0 {
			lons[k] = p.Lon
		} else {
			lons[k] = lons[k-1] + grid.WrapLonDelta(p.Lon-t.Points[k-1].Lon)
		}
	}

	var latPL, lonPL, iPL, jPL interp.PiecewiseLinear
	if err := latPL.Fit(xs, lats); err != nil {
		return fmt.Errorf("fit lat: %w", err)
	}
	if err := lonPL.Fit(xs, lons); err != nil {
		return fmt.Errorf("fit lon: %w", err)
	}
	if err := iPL.Fit(xs, is); err != nil {
		return fmt.Errorf("fit i: %w", err)
	}
	if err := jPL.Fit(xs, js); err != nil {
		return fmt.Errorf("fit j: %w", err)
	}

	// Criterion variables present at every observed point get the same
	// treatment; partially-present variables are left out of filled
	// points rather than invented.
	varPLs := make(map[string]*interp.PiecewiseLinear)
	for _, name := range commonVarNames(t.Points) {
		ys := make([]float64, n)
		for k, p := range t.Points {
			ys[k] = p.Values[name]
		}
		pl := &interp.PiecewiseLinear{}
		if err := pl.Fit(xs, ys); err != nil {
			return fmt.Errorf("fit %s: %w", name, err)
		}
		varPLs[name] = pl
	}

	filled := make([]Point, 0, t.Points[n-1].Step-t.Points[0].Step+1)
	for k := 0; k < n; k++ {
		filled = append(filled, t.Points[k])
		if k == n-1 {
			break
		}
		a, b := t.Points[k], t.Points[k+1]
		span := b.Step - a.Step
		for step := a.Step + 1; step < b.Step; step++ {
			x := float64(step)
			frac := float64(step-a.Step) / float64(span)
			values := make(map[string]float64, len(varPLs))
			for name, pl := range varPLs {
				values[name] = pl.Predict(x)
			}
			filled = append(filled, Point{
				Time:    a.Time.Add(time.Duration(frac * float64(b.Time.Sub(a.Time)))),
				Step:    step,
				Lat:     latPL.Predict(x),
				Lon:     grid.WrapLon(lonPL.Predict(x)),
				I:       int(math.Round(iPL.Predict(x))),
				J:       int(math.Round(jPL.Predict(x))),
				GridIdx: -1,
				Values:  values,
				Filled:  true,
			})
		}
	}
	t.Points = filled
	return nil
}

// commonVarNames returns, sorted, the variable names present in every
// point of the slice.
func commonVarNames(points []Point) []string {
	if len(points) == 0 {
		return nil
	}
	var names []string
	for name := range points[0].Values {
		common := true
		for _, p := range points[1:] {
			if _, ok := p.Values[name]; !ok {
				common = false
				break
			}
		}
		if common {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
