package policy

import (
	"errors"
	"testing"

	"github.com/halcyon-data/stormtrack/internal/detect"
	"github.com/halcyon-data/stormtrack/internal/stitch"
)

func validPolicy(name string) TrackTypePolicy {
	return TrackTypePolicy{
		Name: name,
		Detect: detect.Params{
			Criteria: []detect.Criterion{
				{Kind: detect.KindExtremum, Var: "psl", Extremum: detect.ExtremumMin, RadiusDeg: 5},
			},
		},
		Stitch: stitch.Params{MaxDisplacementDeg: 5, MaxGapSteps: 1, MinDurationSteps: 4},
	}
}

func TestTrackTypePolicy_Validate(t *testing.T) {
	if err := validPolicy("tc").Validate(); err != nil {
		t.Fatalf("valid policy rejected: %v", err)
	}

	t.Run("bad name", func(t *testing.T) {
		p := validPolicy("has space")
		if !errors.Is(p.Validate(), ErrInvalidPolicy) {
			t.Error("name with space accepted")
		}
		p = validPolicy("")
		if !errors.Is(p.Validate(), ErrInvalidPolicy) {
			t.Error("empty name accepted")
		}
	})

	t.Run("detect errors surface", func(t *testing.T) {
		p := validPolicy("tc")
		p.Detect.Criteria[0].RadiusDeg = -1
		err := p.Validate()
		if !errors.Is(err, ErrInvalidPolicy) {
			t.Errorf("err = %v, want ErrInvalidPolicy", err)
		}
		if !errors.Is(err, detect.ErrInvalidParameter) {
			t.Errorf("err = %v, want wrapped ErrInvalidParameter", err)
		}
	})

	t.Run("stitch errors surface", func(t *testing.T) {
		p := validPolicy("tc")
		p.Stitch.MinDurationSteps = 0
		err := p.Validate()
		if !errors.Is(err, ErrInvalidPolicy) || !errors.Is(err, stitch.ErrInvalidStitchParameter) {
			t.Errorf("err = %v, want ErrInvalidPolicy wrapping ErrInvalidStitchParameter", err)
		}
	})
}

func TestValidateAll_DuplicateNames(t *testing.T) {
	err := ValidateAll([]TrackTypePolicy{validPolicy("tc"), validPolicy("tc")})
	if !errors.Is(err, ErrInvalidPolicy) {
		t.Errorf("duplicate names accepted: %v", err)
	}
	if err := ValidateAll([]TrackTypePolicy{validPolicy("tc"), validPolicy("psl-low")}); err != nil {
		t.Errorf("distinct names rejected: %v", err)
	}
}
