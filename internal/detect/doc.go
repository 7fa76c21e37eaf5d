// Package detect scans one time step's field grid for candidate storm
// points.
//
// A detect parameter set is a list of enumerated criteria (local
// extremum, closed contour, threshold). Each criterion independently
// qualifies a set of grid cells; a candidate is emitted for every cell
// in the intersection. Detection is a pure function of the grid and
// the parameters, deterministic including extremum tie-breaks.
package detect
