// Package policy defines the per-track-type parameter bundle that
// drives detection and stitching. A policy is plain data: track types
// differ only in their criteria and linking thresholds, never in code
// paths.
package policy

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/halcyon-data/stormtrack/internal/detect"
	"github.com/halcyon-data/stormtrack/internal/stitch"
)

// ErrInvalidPolicy reports a policy that cannot drive a run.
var ErrInvalidPolicy = errors.New("invalid track type policy")

// nameRe limits track type names to identifier-ish strings, since the
// name becomes the trajectory ID prefix and a file name component.
var nameRe = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_-]*$`)

// TrackTypePolicy is the complete parameterization of one track type,
// such as tropical cyclones or polar lows. Policies are immutable for
// the duration of a run.
type TrackTypePolicy struct {
	Name   string        `json:"name"`
	Detect detect.Params `json:"detect"`
	Stitch stitch.Params `json:"stitch"`
}

// Validate checks the whole bundle. Any failure is fatal at pipeline
// start; no partial runs.
func (p TrackTypePolicy) Validate() error {
	if !nameRe.MatchString(p.Name) {
		return fmt.Errorf("%w: bad name %q", ErrInvalidPolicy, p.Name)
	}
	if err := p.Detect.Validate(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidPolicy, p.Name, err)
	}
	if err := p.Stitch.Validate(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidPolicy, p.Name, err)
	}
	return nil
}

// ValidateAll checks a set of policies and rejects duplicate names.
func ValidateAll(policies []TrackTypePolicy) error {
	seen := make(map[string]bool, len(policies))
	for _, p := range policies {
		if err := p.Validate(); err != nil {
			return err
		}
		if seen[p.Name] {
			return fmt.Errorf("%w: duplicate track type %q", ErrInvalidPolicy, p.Name)
		}
		seen[p.Name] = true
	}
	return nil
}
