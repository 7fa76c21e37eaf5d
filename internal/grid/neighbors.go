package grid

import "math"

// Neighborhood is a precomputed radius index over a grid's topology.
// For every latitude row it stores which neighbouring rows fall inside
// the search radius and the longitude index half-width needed at each,
// so a radius query touches only a bounded window instead of the whole
// grid. Cells inside the window are still verified against the exact
// great-circle distance before being visited.
type Neighborhood struct {
	g      *Grid
	radius float64
	rows   [][]rowWindow
}

type rowWindow struct {
	j     int // neighbour row
	halfW int // longitude index half-width at that row
}

// NewNeighborhood precomputes the radius index for the given grid and
// search radius (degrees of great-circle arc, must be positive).
func NewNeighborhood(g *Grid, radiusDeg float64) *Neighborhood {
	nlat, nlon := g.NLat(), g.NLon()

	lonStep := 360.0
	if nlon > 1 {
		lonStep = (g.Lon[nlon-1] - g.Lon[0]) / float64(nlon-1)
	}

	sinHalfR := math.Sin(radiusDeg * degToRad / 2)
	target := sinHalfR * sinHalfR

	rows := make([][]rowWindow, nlat)
	for j := 0; j < nlat; j++ {
		cosJ := math.Cos(g.Lat[j] * degToRad)
		for jn := 0; jn < nlat; jn++ {
			dphi := (g.Lat[jn] - g.Lat[j]) * degToRad
			sinHalfDphi := math.Sin(dphi / 2)
			rem := target - sinHalfDphi*sinHalfDphi
			if rem < 0 {
				continue // row entirely outside the radius
			}
			cosJn := math.Cos(g.Lat[jn] * degToRad)
			denom := cosJ * cosJn
			halfW := nlon - 1
			if denom > 1e-12 {
				s := math.Sqrt(rem / denom)
				if s < 1 {
					dlamDeg := 2 * math.Asin(s) / degToRad
					halfW = int(math.Ceil(dlamDeg / math.Abs(lonStep)))
				}
			}
			if halfW > nlon-1 {
				halfW = nlon - 1
			}
			rows[j] = append(rows[j], rowWindow{j: jn, halfW: halfW})
		}
	}

	return &Neighborhood{g: g, radius: radiusDeg, rows: rows}
}

// Radius returns the search radius the index was built for.
func (n *Neighborhood) Radius() float64 { return n.radius }

// Visit calls fn for every cell within the radius of the centre cell,
// excluding the centre itself. Iteration order is deterministic
// (row-major over the window).
func (n *Neighborhood) Visit(centerIdx int, fn func(idx int, dist float64)) {
	g := n.g
	nlon := g.NLon()
	jc, ic := g.Coords(centerIdx)
	latC, lonC := g.Lat[jc], g.Lon[ic]

	for _, w := range n.rows[jc] {
		lo, hi := -w.halfW, w.halfW
		if g.Global && 2*w.halfW+1 > nlon {
			// Window wraps the whole row: visit each column once.
			lo, hi = 0, nlon-1
		}
		for di := lo; di <= hi; di++ {
			in := ic + di
			if g.Global {
				in = ((in % nlon) + nlon) % nlon
			} else if in < 0 || in >= nlon {
				continue
			}
			idx := g.Idx(w.j, in)
			if idx == centerIdx {
				continue
			}
			d := GreatCircleDeg(latC, lonC, g.Lat[w.j], g.Lon[in])
			if d <= n.radius {
				fn(idx, d)
			}
		}
	}
}
