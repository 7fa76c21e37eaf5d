package stitch

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidStitchParameter reports a malformed stitch parameter set.
// Like detect validation it is fatal at pipeline start.
var ErrInvalidStitchParameter = errors.New("invalid stitch parameter")

// AssociationMode selects how open trajectories claim candidates.
type AssociationMode string

const (
	// AssocNearest is the default: each open trajectory proposes its
	// nearest in-gate candidate; competition for the same candidate is
	// won by the smaller displacement.
	AssocNearest AssociationMode = "nearest"
	// AssocOptimal solves the same one-to-one linking globally with
	// the Kuhn–Munkres assignment instead of the greedy rule.
	AssocOptimal AssociationMode = "optimal"
)

// Params is a track type's stitch parameter set.
type Params struct {
	// MaxDisplacementDeg is the largest great-circle displacement
	// (degrees of arc) a feature may move per time step. The linking
	// gate scales with the number of steps elapsed since the
	// trajectory's last linked point, so a feature coasting across a
	// gap is allowed proportionally more travel.
	MaxDisplacementDeg float64 `json:"max_displacement_deg"`

	// MaxGapSteps is the largest run of consecutive missing steps a
	// trajectory survives. Zero means any miss closes the trajectory.
	MaxGapSteps int `json:"max_gap_steps"`

	// MinDurationSteps is the minimum number of observed points a
	// closed trajectory needs to be retained.
	MinDurationSteps int `json:"min_duration_steps"`

	// TimeStepPeriod is the nominal model step period. When set, gaps
	// are counted in model steps derived from timestamps, so a step
	// whose detection failed (absent from the store) still counts as
	// missing. When zero, gaps are counted in store positions.
	TimeStepPeriod time.Duration `json:"time_step_period,omitempty"`

	// Association defaults to AssocNearest when empty.
	Association AssociationMode `json:"association,omitempty"`

	// FillGaps interpolates trajectory points for gapped steps after
	// stitching. Filled points are flagged and do not count toward
	// the duration policy.
	FillGaps bool `json:"fill_gaps,omitempty"`
}

// Validate checks the parameter set. All failures wrap
// ErrInvalidStitchParameter.
func (p Params) Validate() error {
	if p.MaxDisplacementDeg <= 0 {
		return fmt.Errorf("%w: max displacement must be positive, got %g",
			ErrInvalidStitchParameter, p.MaxDisplacementDeg)
	}
	if p.MaxGapSteps < 0 {
		return fmt.Errorf("%w: max gap must be non-negative, got %d",
			ErrInvalidStitchParameter, p.MaxGapSteps)
	}
	if p.MinDurationSteps <= 0 {
		return fmt.Errorf("%w: min duration must be positive, got %d",
			ErrInvalidStitchParameter, p.MinDurationSteps)
	}
	if p.TimeStepPeriod < 0 {
		return fmt.Errorf("%w: time step period must be non-negative, got %s",
			ErrInvalidStitchParameter, p.TimeStepPeriod)
	}
	switch p.Association {
	case "", AssocNearest, AssocOptimal:
	default:
		return fmt.Errorf("%w: unknown association mode %q",
			ErrInvalidStitchParameter, p.Association)
	}
	return nil
}

// association returns the effective association mode.
func (p Params) association() AssociationMode {
	if p.Association == "" {
		return AssocNearest
	}
	return p.Association
}
