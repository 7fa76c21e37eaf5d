package detect

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/halcyon-data/stormtrack/internal/grid"
)

// ErrMissingVariable reports a grid that lacks a variable the detect
// parameter set names. The failing time step is absent from the
// candidate store; the run itself continues.
var ErrMissingVariable = errors.New("missing variable")

// closedContourSectors is the number of bearing sectors a closed
// contour must rise in. Eight sectors approximate "in every direction"
// on a rectangular mesh.
const closedContourSectors = 8

// Detector evaluates a detect parameter set against field grids.
// Radius neighborhoods are precomputed once per grid topology and
// reused across time steps, so per-step detection touches only the
// bounded search windows.
type Detector struct {
	params Params

	mu        sync.Mutex
	topo      topoKey
	neighbors map[float64]*grid.Neighborhood
}

type topoKey struct {
	nlat, nlon             int
	lat0, lon0, latN, lonN float64
	global                 bool
}

// New validates the parameter set and returns a detector for it.
func New(params Params) (*Detector, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Detector{
		params:    params,
		neighbors: make(map[float64]*grid.Neighborhood),
	}, nil
}

// Detect produces the candidate set for one time step. It is a pure
// function of the grid and the detector's parameters; running it twice
// on the same inputs yields identical candidates.
func (d *Detector) Detect(g *grid.Grid) ([]Candidate, error) {
	if g == nil || g.NumCells() == 0 {
		return nil, fmt.Errorf("%w: empty grid", ErrInvalidParameter)
	}
	for _, name := range d.params.Vars() {
		if _, ok := g.Var(name); !ok {
			return nil, fmt.Errorf("%w: %q not in grid at %s", ErrMissingVariable, name, g.Time.Format("2006-01-02T15:04Z"))
		}
	}

	// Each criterion qualifies its own cell set; a candidate cell must
	// survive every one.
	qualifying := make([]bool, g.NumCells())
	for i := range qualifying {
		qualifying[i] = true
	}
	for _, c := range d.params.Criteria {
		mask, err := d.evalCriterion(g, c)
		if err != nil {
			return nil, err
		}
		for i := range qualifying {
			qualifying[i] = qualifying[i] && mask[i]
		}
	}

	var cands []Candidate
	seq := 0
	for idx, ok := range qualifying {
		if !ok {
			continue
		}
		j, i := g.Coords(idx)
		values := make(map[string]float64, len(d.params.Criteria))
		for _, name := range d.params.Vars() {
			v, _ := g.Value(name, idx)
			values[name] = v
		}
		cands = append(cands, Candidate{
			Time:    g.Time,
			Seq:     seq,
			GridIdx: idx,
			I:       i,
			J:       j,
			Lat:     g.Lat[j],
			Lon:     g.Lon[i],
			Values:  values,
		})
		seq++
	}
	return cands, nil
}

func (d *Detector) evalCriterion(g *grid.Grid, c Criterion) ([]bool, error) {
	samples, ok := g.Var(c.Var)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMissingVariable, c.Var)
	}

	switch c.Kind {
	case KindExtremum:
		return d.evalExtremum(g, samples, c), nil
	case KindClosedContour:
		return d.evalClosedContour(g, samples, c), nil
	case KindThreshold:
		return d.evalThreshold(g, samples, c), nil
	}
	return nil, fmt.Errorf("%w: unknown criterion kind %q", ErrInvalidParameter, c.Kind)
}

// evalExtremum marks cells that are the extremum of their radius
// neighborhood. Exact ties go to the lowest grid index for minima and
// the highest for maxima, so repeated runs agree cell for cell.
func (d *Detector) evalExtremum(g *grid.Grid, samples []float64, c Criterion) []bool {
	nb := d.neighborhood(g, c.RadiusDeg)
	mask := make([]bool, len(samples))
	for idx := range samples {
		center := samples[idx]
		isExtremum := true
		nb.Visit(idx, func(n int, _ float64) {
			if !isExtremum {
				return
			}
			v := samples[n]
			switch c.Extremum {
			case ExtremumMin:
				if v < center || (v == center && n < idx) {
					isExtremum = false
				}
			case ExtremumMax:
				if v > center || (v == center && n > idx) {
					isExtremum = false
				}
			}
		})
		mask[idx] = isExtremum
	}
	return mask
}

// evalClosedContour marks cells whose field rises (minima) or falls
// (maxima) by at least Delta within the radius in every bearing
// sector that contains grid cells.
func (d *Detector) evalClosedContour(g *grid.Grid, samples []float64, c Criterion) []bool {
	nb := d.neighborhood(g, c.RadiusDeg)
	mask := make([]bool, len(samples))
	var sectorRise [closedContourSectors]float64
	var sectorSeen [closedContourSectors]bool

	for idx := range samples {
		center := samples[idx]
		latC, lonC := g.CellLatLon(idx)
		for s := range sectorRise {
			sectorRise[s] = math.Inf(-1)
			sectorSeen[s] = false
		}
		nb.Visit(idx, func(n int, _ float64) {
			latN, lonN := g.CellLatLon(n)
			bearing := math.Atan2(latN-latC, grid.WrapLonDelta(lonN-lonC))
			s := int(math.Floor((bearing + math.Pi) / (2 * math.Pi) * closedContourSectors))
			if s >= closedContourSectors {
				s = closedContourSectors - 1
			}
			rise := samples[n] - center
			if c.Extremum == ExtremumMax {
				rise = center - samples[n]
			}
			if rise > sectorRise[s] {
				sectorRise[s] = rise
			}
			sectorSeen[s] = true
		})

		closed := false
		for s := range sectorRise {
			if !sectorSeen[s] {
				continue
			}
			closed = true
			if sectorRise[s] < c.Delta {
				closed = false
				break
			}
		}
		mask[idx] = closed
	}
	return mask
}

// evalThreshold marks cells with a qualifying sample within the radius
// (the cell itself when the radius is zero).
func (d *Detector) evalThreshold(g *grid.Grid, samples []float64, c Criterion) []bool {
	mask := make([]bool, len(samples))
	meets := func(v float64) bool {
		if c.Op == OpGE {
			return v >= c.Threshold
		}
		return v <= c.Threshold
	}
	if c.RadiusDeg == 0 {
		for idx, v := range samples {
			mask[idx] = meets(v)
		}
		return mask
	}
	nb := d.neighborhood(g, c.RadiusDeg)
	for idx := range samples {
		if meets(samples[idx]) {
			mask[idx] = true
			continue
		}
		found := false
		nb.Visit(idx, func(n int, _ float64) {
			if !found && meets(samples[n]) {
				found = true
			}
		})
		mask[idx] = found
	}
	return mask
}

// neighborhood returns the cached radius index for the grid's
// topology, rebuilding the cache when the topology changes (a new run
// on a different mesh).
func (d *Detector) neighborhood(g *grid.Grid, radiusDeg float64) *grid.Neighborhood {
	key := topoKey{
		nlat:   g.NLat(),
		nlon:   g.NLon(),
		lat0:   g.Lat[0],
		lon0:   g.Lon[0],
		latN:   g.Lat[g.NLat()-1],
		lonN:   g.Lon[g.NLon()-1],
		global: g.Global,
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.topo != key {
		d.topo = key
		d.neighbors = make(map[float64]*grid.Neighborhood)
	}
	nb, ok := d.neighbors[radiusDeg]
	if !ok {
		nb = grid.NewNeighborhood(g, radiusDeg)
		d.neighbors[radiusDeg] = nb
	}
	return nb
}
