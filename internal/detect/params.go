package detect

import (
	"errors"
	"fmt"

	"github.com/halcyon-data/stormtrack/internal/units"
)

// ErrInvalidParameter reports a malformed detect parameter set. It is
// fatal at pipeline start: a run never proceeds with a bad policy.
var ErrInvalidParameter = errors.New("invalid detect parameter")

// ExtremumType selects which extremum a criterion looks for.
type ExtremumType string

const (
	ExtremumMin ExtremumType = "min"
	ExtremumMax ExtremumType = "max"
)

// CriterionKind enumerates the recognised detect criteria. New track
// types combine these options in configuration; the detector has no
// per-track-type code paths.
type CriterionKind string

const (
	// KindExtremum qualifies cells that are the local extremum of Var
	// within RadiusDeg.
	KindExtremum CriterionKind = "extremum"
	// KindClosedContour qualifies cells where Var rises (min) or falls
	// (max) by at least Delta in every direction within RadiusDeg.
	KindClosedContour CriterionKind = "closed_contour"
	// KindThreshold qualifies cells with a Var sample beyond Threshold
	// somewhere within RadiusDeg (0 = at the cell itself).
	KindThreshold CriterionKind = "threshold"
)

// ThresholdOp is the comparison direction for threshold criteria.
type ThresholdOp string

const (
	OpGE ThresholdOp = "ge"
	OpLE ThresholdOp = "le"
)

// Criterion is one detect sub-criterion. Fields are interpreted
// according to Kind; unused fields are ignored.
type Criterion struct {
	Kind      CriterionKind `json:"kind"`
	Var       string        `json:"var"`
	Extremum  ExtremumType  `json:"extremum,omitempty"`
	RadiusDeg float64       `json:"radius_deg,omitempty"`
	Delta     float64       `json:"delta,omitempty"`
	Threshold float64       `json:"threshold,omitempty"`
	Op        ThresholdOp   `json:"op,omitempty"`

	// RequireKind, when set, pins the physical dimensionality the
	// named variable must have (e.g. a wind-speed threshold criterion
	// pointing at a pressure field is a configuration mistake).
	RequireKind units.Kind `json:"require_kind,omitempty"`
}

// Params is a track type's detect parameter set.
type Params struct {
	Criteria []Criterion `json:"criteria"`
}

// Validate checks the parameter set. All failures wrap
// ErrInvalidParameter.
func (p Params) Validate() error {
	if len(p.Criteria) == 0 {
		return fmt.Errorf("%w: no criteria configured", ErrInvalidParameter)
	}
	for i, c := range p.Criteria {
		if c.Var == "" {
			return fmt.Errorf("%w: criterion %d has no variable", ErrInvalidParameter, i)
		}
		if c.RequireKind != "" && units.KindFor(c.Var) != c.RequireKind {
			return fmt.Errorf("%w: criterion %d: variable %q has kind %q, criterion requires %q",
				ErrInvalidParameter, i, c.Var, units.KindFor(c.Var), c.RequireKind)
		}
		switch c.Kind {
		case KindExtremum:
			if c.Extremum != ExtremumMin && c.Extremum != ExtremumMax {
				return fmt.Errorf("%w: criterion %d: extremum must be min or max, got %q",
					ErrInvalidParameter, i, c.Extremum)
			}
			if c.RadiusDeg <= 0 {
				return fmt.Errorf("%w: criterion %d: extremum radius must be positive, got %g",
					ErrInvalidParameter, i, c.RadiusDeg)
			}
		case KindClosedContour:
			if c.Extremum != ExtremumMin && c.Extremum != ExtremumMax {
				return fmt.Errorf("%w: criterion %d: closed contour extremum must be min or max, got %q",
					ErrInvalidParameter, i, c.Extremum)
			}
			if c.RadiusDeg <= 0 {
				return fmt.Errorf("%w: criterion %d: closed contour radius must be positive, got %g",
					ErrInvalidParameter, i, c.RadiusDeg)
			}
			if c.Delta <= 0 {
				return fmt.Errorf("%w: criterion %d: closed contour delta must be positive, got %g",
					ErrInvalidParameter, i, c.Delta)
			}
		case KindThreshold:
			if c.Op != OpGE && c.Op != OpLE {
				return fmt.Errorf("%w: criterion %d: threshold op must be ge or le, got %q",
					ErrInvalidParameter, i, c.Op)
			}
			if c.RadiusDeg < 0 {
				return fmt.Errorf("%w: criterion %d: threshold radius must be non-negative, got %g",
					ErrInvalidParameter, i, c.RadiusDeg)
			}
		default:
			return fmt.Errorf("%w: criterion %d: unknown kind %q", ErrInvalidParameter, i, c.Kind)
		}
	}
	return nil
}

// Vars returns the distinct variable names the parameter set reads, in
// criterion order.
func (p Params) Vars() []string {
	seen := make(map[string]bool, len(p.Criteria))
	var names []string
	for _, c := range p.Criteria {
		if !seen[c.Var] {
			seen[c.Var] = true
			names = append(names, c.Var)
		}
	}
	return names
}
