package stitch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/halcyon-data/stormtrack/internal/detect"
	"github.com/halcyon-data/stormtrack/internal/monitoring"
)

// ErrEmptyCandidateStore reports a stitch over a store with no
// appended time steps.
var ErrEmptyCandidateStore = errors.New("empty candidate store")

// Stitcher links a candidate store's per-step candidates into
// trajectories. It is single-use per call: Stitch holds no state
// between runs, so the same store and parameters always produce the
// same trajectories.
type Stitcher struct {
	params Params
	prefix string
}

// New validates the parameter set and returns a stitcher. prefix
// (normally the track type name) becomes the leading component of
// trajectory identifiers.
func New(params Params, prefix string) (*Stitcher, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if prefix == "" {
		prefix = "track"
	}
	return &Stitcher{params: params, prefix: prefix}, nil
}

// Stitch makes one sequential pass over the store. Cancellation is
// checked per time step; a canceled run returns the trajectories
// already closed and retained, with the context's error.
func (s *Stitcher) Stitch(ctx context.Context, store *CandidateStore) ([]Trajectory, error) {
	if store == nil || store.Len() == 0 {
		return nil, ErrEmptyCandidateStore
	}

	var (
		arena   []*trackSlot
		nextSeq int
		t0      time.Time
	)

	pos := -1
	for ts, cands := range store.All() {
		pos++
		if pos == 0 {
			t0 = ts
		}
		if err := ctx.Err(); err != nil {
			// Open trajectories are discarded; whatever already closed
			// and meets the duration policy is still returned.
			return s.finalize(arena), err
		}

		step := s.modelStep(pos, t0, ts)

		// Close trajectories whose implicit gap (steps absent from the
		// store since their last link) already exceeds the budget.
		var open []*trackSlot
		var gates []float64
		for _, slot := range arena {
			if slot.state != StateOpen {
				continue
			}
			elapsed := step - slot.lastStep
			if elapsed-1 > s.params.MaxGapSteps {
				slot.gapRun = elapsed - 1
				slot.state = StateClosed
				continue
			}
			open = append(open, slot)
			// The gate scales with the steps elapsed since the last
			// linked point: a feature coasting across a gap may travel
			// proportionally further.
			gates = append(gates, s.params.MaxDisplacementDeg*float64(elapsed))
		}

		links := associate(s.params.association(), open, cands, gates)

		claimed := make([]bool, len(cands))
		linked := make([]bool, len(open))
		for _, l := range links {
			slot := open[l.slot]
			slot.points = append(slot.points, pointFromCandidate(cands[l.cand], step))
			slot.lastStep = step
			slot.gapRun = 0
			claimed[l.cand] = true
			linked[l.slot] = true
		}

		// Unmatched trajectories take a miss; the run of consecutive
		// missing steps closing the trajectory once it exceeds max-gap.
		for k, slot := range open {
			if linked[k] {
				continue
			}
			slot.gapRun = step - slot.lastStep
			if slot.gapRun > s.params.MaxGapSteps {
				slot.state = StateClosed
			}
		}

		// Unclaimed candidates seed new trajectories in candidate
		// (per-step ordinal) order.
		for c := range cands {
			if claimed[c] {
				continue
			}
			arena = append(arena, &trackSlot{
				state:    StateOpen,
				seq:      nextSeq,
				lastStep: step,
				points:   []Point{pointFromCandidate(cands[c], step)},
			})
			nextSeq++
		}
	}

	// Stream end closes everything still open.
	for _, slot := range arena {
		slot.state = StateClosed
	}

	trajectories := s.finalize(arena)
	if s.params.FillGaps {
		for i := range trajectories {
			if err := fillTrajectoryGaps(&trajectories[i], s.params.TimeStepPeriod); err != nil {
				return nil, fmt.Errorf("fill gaps in %s: %w", trajectories[i].ID, err)
			}
		}
	}
	monitoring.Logf("stitch: %d candidates over %d steps -> %d trajectories (%d started)",
		totalCandidates(store), store.Len(), len(trajectories), nextSeq)
	return trajectories, nil
}

// finalize drops closed trajectories below the duration floor and
// assigns sequential identifiers to the survivors in creation order.
func (s *Stitcher) finalize(arena []*trackSlot) []Trajectory {
	var out []Trajectory
	for _, slot := range arena {
		if slot.state != StateClosed {
			continue
		}
		if len(slot.points) < s.params.MinDurationSteps {
			continue
		}
		out = append(out, Trajectory{
			ID:     fmt.Sprintf("%s_%04d", s.prefix, len(out)+1),
			Points: slot.points,
		})
	}
	return out
}

// modelStep maps a store entry to its model step number. With a
// configured step period the number comes from the timestamp, so steps
// missing from the store still advance the count; otherwise the store
// position is the step.
func (s *Stitcher) modelStep(pos int, t0, ts time.Time) int {
	if s.params.TimeStepPeriod <= 0 {
		return pos
	}
	return int(math.Round(float64(ts.Sub(t0)) / float64(s.params.TimeStepPeriod)))
}

func pointFromCandidate(c detect.Candidate, step int) Point {
	return Point{
		Time:    c.Time,
		Step:    step,
		Lat:     c.Lat,
		Lon:     c.Lon,
		I:       c.I,
		J:       c.J,
		GridIdx: c.GridIdx,
		Values:  c.Values,
	}
}

func totalCandidates(store *CandidateStore) int {
	n := 0
	for _, cands := range store.All() {
		n += len(cands)
	}
	return n
}
