package grid

import (
	"fmt"
	"sort"
	"time"
)

// Grid is one time step's gridded scalar fields on a fixed
// latitude/longitude mesh. Latitude and longitude axes are monotonic
// increasing and immutable once the grid is built. Every variable
// array holds exactly one value per cell in row-major order
// (idx = j*NLon + i, j indexing latitude).
type Grid struct {
	Time time.Time

	// Lat and Lon are the axis coordinates in degrees. Lon spans
	// [0, 360) for global grids.
	Lat []float64
	Lon []float64

	// Global marks a periodic longitude axis (wraparound neighbours).
	Global bool

	vars map[string][]float64
}

// New builds a grid with the given axes. Axes must be monotonic
// increasing and non-empty; they are referenced, not copied, so the
// caller must not mutate them afterwards.
func New(ts time.Time, lat, lon []float64, global bool) (*Grid, error) {
	if len(lat) == 0 || len(lon) == 0 {
		return nil, fmt.Errorf("grid axes must be non-empty (got %d lat, %d lon)", len(lat), len(lon))
	}
	if !sort.Float64sAreSorted(lat) {
		return nil, fmt.Errorf("latitude axis is not monotonic increasing")
	}
	if !sort.Float64sAreSorted(lon) {
		return nil, fmt.Errorf("longitude axis is not monotonic increasing")
	}
	return &Grid{
		Time:   ts,
		Lat:    lat,
		Lon:    lon,
		Global: global,
		vars:   make(map[string][]float64),
	}, nil
}

// NLat returns the number of latitude rows.
func (g *Grid) NLat() int { return len(g.Lat) }

// NLon returns the number of longitude columns.
func (g *Grid) NLon() int { return len(g.Lon) }

// NumCells returns the total cell count.
func (g *Grid) NumCells() int { return len(g.Lat) * len(g.Lon) }

// Idx converts a (row, column) pair to the flat cell index.
func (g *Grid) Idx(j, i int) int { return j*len(g.Lon) + i }

// Coords converts a flat cell index back to (row, column).
func (g *Grid) Coords(idx int) (j, i int) {
	return idx / len(g.Lon), idx % len(g.Lon)
}

// CellLatLon returns the (lat, lon) coordinates of a flat cell index.
func (g *Grid) CellLatLon(idx int) (lat, lon float64) {
	j, i := g.Coords(idx)
	return g.Lat[j], g.Lon[i]
}

// SetVar attaches a variable array to the grid. The array length must
// match the cell count exactly.
func (g *Grid) SetVar(name string, samples []float64) error {
	if len(samples) != g.NumCells() {
		return fmt.Errorf("variable %q has %d samples, grid has %d cells", name, len(samples), g.NumCells())
	}
	g.vars[name] = samples
	return nil
}

// Var returns the sample array for a named variable, or false when the
// grid does not carry it.
func (g *Grid) Var(name string) ([]float64, bool) {
	v, ok := g.vars[name]
	return v, ok
}

// Value returns the sample of a named variable at a flat cell index.
func (g *Grid) Value(name string, idx int) (float64, bool) {
	v, ok := g.vars[name]
	if !ok {
		return 0, false
	}
	return v[idx], true
}

// VarNames returns the names of all attached variables in sorted order.
func (g *Grid) VarNames() []string {
	names := make([]string, 0, len(g.vars))
	for name := range g.vars {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
