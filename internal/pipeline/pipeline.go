// Package pipeline runs track type policies over a time series of
// field grids: detection fanned out across worker goroutines, results
// re-sequenced into the candidate store, stitching sequentially after.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"runtime"
	"sync"
	"time"

	"github.com/halcyon-data/stormtrack/internal/detect"
	"github.com/halcyon-data/stormtrack/internal/grid"
	"github.com/halcyon-data/stormtrack/internal/policy"
	"github.com/halcyon-data/stormtrack/internal/stitch"
	"github.com/halcyon-data/stormtrack/internal/timeutil"
)

// Runner executes one track type policy over a grid series. Detection
// steps are independent (one grid per task, no shared mutable state),
// so they run on a worker pool; the candidate store still receives
// them in timestamp order through a reorder buffer keyed by the task
// sequence number.
type Runner struct {
	policy   policy.TrackTypePolicy
	detector *detect.Detector
	workers  int
	clock    timeutil.Clock
}

// Option adjusts a Runner.
type Option func(*Runner)

// WithWorkers sets the detection worker count. Values below 1 fall
// back to GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(r *Runner) {
		if n >= 1 {
			r.workers = n
		}
	}
}

// WithClock swaps the wall clock used for run timing diagnostics.
func WithClock(c timeutil.Clock) Option {
	return func(r *Runner) {
		if c != nil {
			r.clock = c
		}
	}
}

// NewRunner validates the policy and builds a runner for it. A bad
// policy aborts here, before any step runs.
func NewRunner(p policy.TrackTypePolicy, opts ...Option) (*Runner, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	det, err := detect.New(p.Detect)
	if err != nil {
		return nil, err
	}
	r := &Runner{
		policy:   p,
		detector: det,
		workers:  runtime.GOMAXPROCS(0),
		clock:    timeutil.RealClock{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

type task struct {
	seq  int
	grid *grid.Grid
}

type result struct {
	seq   int
	ts    time.Time
	cands []detect.Candidate
	err   error
}

// Run consumes the grid series, which must be in strictly increasing
// time order, and returns the retained trajectories. A step whose
// detection fails is logged on the ops stream and becomes a gap in the
// store, never a run failure. Cancellation is cooperative: open
// trajectories are discarded and the context error returned alongside
// whatever had already closed.
func (r *Runner) Run(ctx context.Context, grids iter.Seq[*grid.Grid]) ([]stitch.Trajectory, error) {
	start := r.clock.Now()
	store, err := r.Detect(ctx, grids)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return nil, err
	}
	detectErr := err

	stitcher, err := stitch.New(r.policy.Stitch, r.policy.Name)
	if err != nil {
		return nil, err
	}
	trajectories, err := stitcher.Stitch(ctx, store)
	if errors.Is(err, stitch.ErrEmptyCandidateStore) && detectErr != nil {
		// Nothing was detected before cancellation.
		return nil, detectErr
	}
	if err != nil {
		return trajectories, err
	}
	Diagf("%s: %d trajectories retained in %s", r.policy.Name, len(trajectories), r.clock.Since(start))
	return trajectories, detectErr
}

// Detect runs the detection stage only, returning the populated
// candidate store. Exposed so callers can persist raw candidates or
// stitch with different parameters later.
func (r *Runner) Detect(ctx context.Context, grids iter.Seq[*grid.Grid]) (*stitch.CandidateStore, error) {
	tasks := make(chan task)
	results := make(chan result, r.workers)

	var wg sync.WaitGroup
	for w := 0; w < r.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range tasks {
				cands, err := r.detector.Detect(t.grid)
				results <- result{seq: t.seq, ts: t.grid.Time, cands: cands, err: err}
			}
		}()
	}

	// Producer walks the series, cancellation checked per step.
	prodErr := make(chan error, 1)
	go func() {
		defer close(tasks)
		seq := 0
		for g := range grids {
			select {
			case <-ctx.Done():
				prodErr <- ctx.Err()
				return
			case tasks <- task{seq: seq, grid: g}:
				seq++
			}
		}
		prodErr <- nil
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	// Reorder buffer: results arrive in completion order and are
	// released to the store in sequence order. Its size is bounded by
	// the worker count, since at most that many steps are in flight.
	store := stitch.NewCandidateStore()
	pending := make(map[int]result, r.workers)
	next := 0
	var appendErr error
	for res := range results {
		pending[res.seq] = res
		for {
			ready, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			next++
			if appendErr != nil {
				continue // drain only, the run is already failed
			}
			if ready.err != nil {
				Opsf("%s: step %s skipped: %v", r.policy.Name, ready.ts.Format(time.RFC3339), ready.err)
				continue
			}
			Tracef("%s: step %s: %d candidates", r.policy.Name, ready.ts.Format(time.RFC3339), len(ready.cands))
			if err := store.Append(ready.ts, ready.cands); err != nil {
				appendErr = fmt.Errorf("%s: %w", r.policy.Name, err)
			}
		}
	}
	if appendErr != nil {
		return nil, appendErr
	}
	if err := <-prodErr; err != nil {
		return store, err
	}
	return store, nil
}

// TrackTypeResult is one track type's outcome from a parallel run.
type TrackTypeResult struct {
	Policy       policy.TrackTypePolicy
	Trajectories []stitch.Trajectory
	Err          error
}

// RunAll executes independent track types fully in parallel, each with
// its own runner over its own pass of the grid series. source is
// called once per track type and must return an independent iterator.
func RunAll(ctx context.Context, policies []policy.TrackTypePolicy, source func() iter.Seq[*grid.Grid], opts ...Option) ([]TrackTypeResult, error) {
	if err := policy.ValidateAll(policies); err != nil {
		return nil, err
	}

	out := make([]TrackTypeResult, len(policies))
	var wg sync.WaitGroup
	for i, p := range policies {
		runner, err := NewRunner(p, opts...)
		if err != nil {
			return nil, err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			trajectories, err := runner.Run(ctx, source())
			out[i] = TrackTypeResult{Policy: p, Trajectories: trajectories, Err: err}
		}()
	}
	wg.Wait()

	var errs []error
	for _, res := range out {
		if res.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", res.Policy.Name, res.Err))
		}
	}
	return out, errors.Join(errs...)
}
