package stitch

import (
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/halcyon-data/stormtrack/internal/detect"
)

// ErrOutOfOrderTimeStep reports an append whose timestamp is not
// strictly greater than the previous one. This is an upstream
// sequencing bug and is always surfaced, never recovered.
var ErrOutOfOrderTimeStep = errors.New("out-of-order time step")

// TimeStep is one appended (timestamp, candidate set) pair.
type TimeStep struct {
	Time       time.Time
	Candidates []detect.Candidate
}

// CandidateStore is the time-ordered accumulation of candidates across
// a run. Appended candidate sets are copied and immutable afterwards.
type CandidateStore struct {
	steps []TimeStep
}

// NewCandidateStore returns an empty store.
func NewCandidateStore() *CandidateStore {
	return &CandidateStore{}
}

// Append records one time step's candidates. The timestamp must be
// strictly greater than the previously appended one. An empty or nil
// candidate set is a valid step (nothing detected).
func (s *CandidateStore) Append(ts time.Time, cands []detect.Candidate) error {
	if n := len(s.steps); n > 0 && !ts.After(s.steps[n-1].Time) {
		return fmt.Errorf("%w: %s does not follow %s",
			ErrOutOfOrderTimeStep, ts.Format(time.RFC3339), s.steps[n-1].Time.Format(time.RFC3339))
	}
	copied := make([]detect.Candidate, len(cands))
	copy(copied, cands)
	s.steps = append(s.steps, TimeStep{Time: ts, Candidates: copied})
	return nil
}

// Len returns the number of appended time steps.
func (s *CandidateStore) Len() int { return len(s.steps) }

// All iterates the appended (timestamp, candidate set) pairs in
// insertion order. The yielded slices must not be mutated.
func (s *CandidateStore) All() iter.Seq2[time.Time, []detect.Candidate] {
	return func(yield func(time.Time, []detect.Candidate) bool) {
		for _, step := range s.steps {
			if !yield(step.Time, step.Candidates) {
				return
			}
		}
	}
}

// times returns the timestamps of all appended steps.
func (s *CandidateStore) times() []time.Time {
	ts := make([]time.Time, len(s.steps))
	for i, step := range s.steps {
		ts[i] = step.Time
	}
	return ts
}
