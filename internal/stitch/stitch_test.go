package stitch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/halcyon-data/stormtrack/internal/detect"
	"github.com/halcyon-data/stormtrack/internal/testutil"
)

// cand builds a minimal candidate at a position. seq is the per-step
// ordinal the detector would have assigned.
func cand(n, seq int, lat, lon float64) detect.Candidate {
	return detect.Candidate{
		Time:   testutil.StepTime(n),
		Seq:    seq,
		Lat:    lat,
		Lon:    lon,
		Values: map[string]float64{"psl": 99000 - float64(n)*100},
	}
}

// storeOf appends one candidate set per step, nil entries meaning an
// empty step.
func storeOf(t *testing.T, steps ...[]detect.Candidate) *CandidateStore {
	t.Helper()
	store := NewCandidateStore()
	for n, cands := range steps {
		if err := store.Append(testutil.StepTime(n), cands); err != nil {
			t.Fatalf("append step %d: %v", n, err)
		}
	}
	return store
}

func mustStitcher(t *testing.T, p Params) *Stitcher {
	t.Helper()
	s, err := New(p, "tc")
	if err != nil {
		t.Fatalf("new stitcher: %v", err)
	}
	return s
}

func TestStitch_SingleMovingFeature(t *testing.T) {
	// One candidate drifting 1 degree east per step for 5 steps.
	var steps [][]detect.Candidate
	for n := 0; n < 5; n++ {
		steps = append(steps, []detect.Candidate{cand(n, 0, 10, 40+float64(n))})
	}
	s := mustStitcher(t, Params{MaxDisplacementDeg: 2, MaxGapSteps: 0, MinDurationSteps: 3})

	trajectories, err := s.Stitch(context.Background(), storeOf(t, steps...))
	if err != nil {
		t.Fatal(err)
	}
	if len(trajectories) != 1 {
		t.Fatalf("got %d trajectories, want 1", len(trajectories))
	}
	tr := trajectories[0]
	if tr.ID != "tc_0001" {
		t.Errorf("ID = %q, want tc_0001", tr.ID)
	}
	if len(tr.Points) != 5 {
		t.Fatalf("got %d points, want 5", len(tr.Points))
	}
	for n, p := range tr.Points {
		if p.Step != n || p.Lon != 40+float64(n) {
			t.Errorf("point %d: step %d lon %g, want step %d lon %g", n, p.Step, p.Lon, n, 40+float64(n))
		}
		if p.Filled {
			t.Errorf("point %d unexpectedly flagged filled", n)
		}
	}
	if got := tr.DurationSteps(); got != 5 {
		t.Errorf("DurationSteps = %d, want 5", got)
	}
}

func TestStitch_GapBridging(t *testing.T) {
	present := []detect.Candidate{cand(0, 0, 10, 40)}
	steps := [][]detect.Candidate{
		present,
		{cand(1, 0, 10, 41)},
		nil, // missed detection
		{cand(3, 0, 10, 43)},
	}

	t.Run("max gap 1 bridges", func(t *testing.T) {
		s := mustStitcher(t, Params{MaxDisplacementDeg: 1.5, MaxGapSteps: 1, MinDurationSteps: 2})
		trajectories, err := s.Stitch(context.Background(), storeOf(t, steps...))
		if err != nil {
			t.Fatal(err)
		}
		if len(trajectories) != 1 {
			t.Fatalf("got %d trajectories, want 1", len(trajectories))
		}
		if got := len(trajectories[0].Points); got != 3 {
			t.Errorf("got %d points, want 3 (steps 0, 1, 3)", got)
		}
		// The step-3 link crosses 2 degrees over 2 elapsed steps; the
		// gate scaled with the gap, so 1.5 deg/step admitted it.
		last := trajectories[0].Points[2]
		if last.Step != 3 || last.Lon != 43 {
			t.Errorf("last point step %d lon %g, want 3 / 43", last.Step, last.Lon)
		}
	})

	t.Run("max gap 0 splits", func(t *testing.T) {
		s := mustStitcher(t, Params{MaxDisplacementDeg: 1.5, MaxGapSteps: 0, MinDurationSteps: 1})
		trajectories, err := s.Stitch(context.Background(), storeOf(t, steps...))
		if err != nil {
			t.Fatal(err)
		}
		if len(trajectories) != 2 {
			t.Fatalf("got %d trajectories, want 2", len(trajectories))
		}
		if len(trajectories[0].Points) != 2 || len(trajectories[1].Points) != 1 {
			t.Errorf("point counts = %d, %d; want 2, 1",
				len(trajectories[0].Points), len(trajectories[1].Points))
		}
	})

	t.Run("displacement gate not scaled enough", func(t *testing.T) {
		// 0.9 deg/step gives a 1.8 degree gate over the 2-step gap,
		// short of the 2 degrees travelled, so the trajectory closes.
		s := mustStitcher(t, Params{MaxDisplacementDeg: 0.9, MaxGapSteps: 1, MinDurationSteps: 1})
		trajectories, err := s.Stitch(context.Background(), storeOf(t, steps...))
		if err != nil {
			t.Fatal(err)
		}
		if len(trajectories) != 2 {
			t.Fatalf("got %d trajectories, want 2", len(trajectories))
		}
	})
}

func TestStitch_TimeStepPeriodCountsAbsentSteps(t *testing.T) {
	// Steps 0 and 2 appended; step 1 missing from the store entirely
	// (detection failed). With the step period configured the absent
	// step counts as a gap.
	store := NewCandidateStore()
	if err := store.Append(testutil.StepTime(0), []detect.Candidate{cand(0, 0, 10, 40)}); err != nil {
		t.Fatal(err)
	}
	if err := store.Append(testutil.StepTime(2), []detect.Candidate{cand(2, 0, 10, 42)}); err != nil {
		t.Fatal(err)
	}

	t.Run("strict gap closes across absent step", func(t *testing.T) {
		s := mustStitcher(t, Params{
			MaxDisplacementDeg: 1.5, MaxGapSteps: 0, MinDurationSteps: 1,
			TimeStepPeriod: 6 * time.Hour,
		})
		trajectories, err := s.Stitch(context.Background(), store)
		if err != nil {
			t.Fatal(err)
		}
		if len(trajectories) != 2 {
			t.Fatalf("got %d trajectories, want 2 (split at absent step)", len(trajectories))
		}
	})

	t.Run("without period the store positions are adjacent", func(t *testing.T) {
		s := mustStitcher(t, Params{MaxDisplacementDeg: 2.5, MaxGapSteps: 0, MinDurationSteps: 1})
		trajectories, err := s.Stitch(context.Background(), store)
		if err != nil {
			t.Fatal(err)
		}
		if len(trajectories) != 1 {
			t.Fatalf("got %d trajectories, want 1", len(trajectories))
		}
	})
}

func TestStitch_TwoParallelFeatures(t *testing.T) {
	// Two features far apart, both drifting east. Each must keep its
	// own chain with no crossover.
	var steps [][]detect.Candidate
	for n := 0; n < 4; n++ {
		steps = append(steps, []detect.Candidate{
			cand(n, 0, 10, 40+float64(n)),
			cand(n, 1, -30, 200+float64(n)),
		})
	}
	s := mustStitcher(t, Params{MaxDisplacementDeg: 2, MaxGapSteps: 0, MinDurationSteps: 2})

	trajectories, err := s.Stitch(context.Background(), storeOf(t, steps...))
	if err != nil {
		t.Fatal(err)
	}
	if len(trajectories) != 2 {
		t.Fatalf("got %d trajectories, want 2", len(trajectories))
	}
	for _, tr := range trajectories {
		if len(tr.Points) != 4 {
			t.Errorf("%s: %d points, want 4", tr.ID, len(tr.Points))
		}
		lat := tr.Points[0].Lat
		for _, p := range tr.Points {
			if p.Lat != lat {
				t.Errorf("%s mixed latitudes: %g and %g", tr.ID, lat, p.Lat)
			}
		}
	}
}

func TestStitch_ConflictSmallerDisplacementWins(t *testing.T) {
	// Two trajectories, one candidate at step 1 between them but closer
	// to the first. The second takes a miss and closes (max gap 0).
	steps := [][]detect.Candidate{
		{cand(0, 0, 10, 40), cand(0, 1, 10, 44)},
		{cand(1, 0, 10, 41)},
	}
	s := mustStitcher(t, Params{MaxDisplacementDeg: 4, MaxGapSteps: 0, MinDurationSteps: 1})

	trajectories, err := s.Stitch(context.Background(), storeOf(t, steps...))
	if err != nil {
		t.Fatal(err)
	}
	if len(trajectories) != 2 {
		t.Fatalf("got %d trajectories, want 2", len(trajectories))
	}
	if len(trajectories[0].Points) != 2 {
		t.Errorf("winner has %d points, want 2", len(trajectories[0].Points))
	}
	if trajectories[0].Points[1].Lon != 41 {
		t.Errorf("winner extended to lon %g, want 41", trajectories[0].Points[1].Lon)
	}
	if len(trajectories[1].Points) != 1 {
		t.Errorf("loser has %d points, want 1", len(trajectories[1].Points))
	}
}

func TestStitch_OptimalAssociationMinimizesTotal(t *testing.T) {
	// Heads at lon 40 and 41; next-step candidates at 40.9 and 41.8
	// with a 1 degree gate. Both heads prefer 40.9; the second head is
	// much closer and wins it greedily, leaving the first head unable
	// to reach 41.8 (1.77 degrees away). The global assignment instead
	// pairs 40->40.9 and 41->41.8, keeping both trajectories alive.
	steps := [][]detect.Candidate{
		{cand(0, 0, 10, 40), cand(0, 1, 10, 41)},
		{cand(1, 0, 10, 40.9), cand(1, 1, 10, 41.8)},
	}

	t.Run("greedy loser takes the miss", func(t *testing.T) {
		s := mustStitcher(t, Params{MaxDisplacementDeg: 1, MaxGapSteps: 0, MinDurationSteps: 2})
		trajectories, err := s.Stitch(context.Background(), storeOf(t, steps...))
		if err != nil {
			t.Fatal(err)
		}
		if len(trajectories) != 1 {
			t.Fatalf("got %d trajectories, want 1 (loser closed below min duration)", len(trajectories))
		}
		if got := trajectories[0].Points[0].Lon; got != 41 {
			t.Errorf("surviving trajectory starts at lon %g, want 41", got)
		}
	})

	t.Run("optimal links both", func(t *testing.T) {
		s := mustStitcher(t, Params{
			MaxDisplacementDeg: 1, MaxGapSteps: 0, MinDurationSteps: 2,
			Association: AssocOptimal,
		})
		trajectories, err := s.Stitch(context.Background(), storeOf(t, steps...))
		if err != nil {
			t.Fatal(err)
		}
		if len(trajectories) != 2 {
			t.Fatalf("got %d trajectories, want 2", len(trajectories))
		}
		for _, tr := range trajectories {
			if len(tr.Points) != 2 {
				t.Errorf("%s: %d points, want 2", tr.ID, len(tr.Points))
			}
		}
	})
}

func TestStitch_MinDurationDropsShortTracks(t *testing.T) {
	steps := [][]detect.Candidate{
		{cand(0, 0, 10, 40), cand(0, 1, -40, 300)},
		{cand(1, 0, 10, 41)},
		{cand(2, 0, 10, 42)},
	}
	s := mustStitcher(t, Params{MaxDisplacementDeg: 2, MaxGapSteps: 0, MinDurationSteps: 3})

	trajectories, err := s.Stitch(context.Background(), storeOf(t, steps...))
	if err != nil {
		t.Fatal(err)
	}
	if len(trajectories) != 1 {
		t.Fatalf("got %d trajectories, want 1 (single-point track dropped)", len(trajectories))
	}
	if len(trajectories[0].Points) != 3 {
		t.Errorf("got %d points, want 3", len(trajectories[0].Points))
	}
}

func TestStitch_Deterministic(t *testing.T) {
	var steps [][]detect.Candidate
	for n := 0; n < 6; n++ {
		steps = append(steps, []detect.Candidate{
			cand(n, 0, 10, 40+float64(n)),
			cand(n, 1, 11, 40.5+float64(n)),
			cand(n, 2, -30, 200-float64(n)),
		})
	}
	p := Params{MaxDisplacementDeg: 2, MaxGapSteps: 1, MinDurationSteps: 2}

	run := func() []Trajectory {
		s := mustStitcher(t, p)
		out, err := s.Stitch(context.Background(), storeOf(t, steps...))
		if err != nil {
			t.Fatal(err)
		}
		return out
	}

	first := run()
	second := run()
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("repeated stitch differs (-first +second):\n%s", diff)
	}
}

func TestStitch_EmptyStore(t *testing.T) {
	s := mustStitcher(t, Params{MaxDisplacementDeg: 2, MinDurationSteps: 1})
	if _, err := s.Stitch(context.Background(), NewCandidateStore()); !errors.Is(err, ErrEmptyCandidateStore) {
		t.Errorf("Stitch(empty) = %v, want ErrEmptyCandidateStore", err)
	}
	if _, err := s.Stitch(context.Background(), nil); !errors.Is(err, ErrEmptyCandidateStore) {
		t.Errorf("Stitch(nil) = %v, want ErrEmptyCandidateStore", err)
	}
}

func TestStitch_Cancellation(t *testing.T) {
	var steps [][]detect.Candidate
	for n := 0; n < 4; n++ {
		steps = append(steps, []detect.Candidate{cand(n, 0, 10, 40+float64(n))})
	}
	s := mustStitcher(t, Params{MaxDisplacementDeg: 2, MaxGapSteps: 0, MinDurationSteps: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	trajectories, err := s.Stitch(ctx, storeOf(t, steps...))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Stitch = %v, want context.Canceled", err)
	}
	// Nothing had closed before the first step, so nothing is returned.
	if len(trajectories) != 0 {
		t.Errorf("got %d trajectories after immediate cancel, want 0", len(trajectories))
	}
}

func TestStitch_InvalidParams(t *testing.T) {
	if _, err := New(Params{MaxDisplacementDeg: -1, MinDurationSteps: 1}, "tc"); !errors.Is(err, ErrInvalidStitchParameter) {
		t.Errorf("New = %v, want ErrInvalidStitchParameter", err)
	}
}

func TestStitch_NewTrajectoriesSeedInCandidateOrder(t *testing.T) {
	// Two unclaimed candidates at step 0 seed trajectories in per-step
	// ordinal order, reflected in the identifier sequence.
	steps := [][]detect.Candidate{
		{cand(0, 0, 10, 40), cand(0, 1, 50, 120)},
		{cand(1, 0, 10, 41), cand(1, 1, 50, 121)},
	}
	s := mustStitcher(t, Params{MaxDisplacementDeg: 2, MaxGapSteps: 0, MinDurationSteps: 1})

	trajectories, err := s.Stitch(context.Background(), storeOf(t, steps...))
	if err != nil {
		t.Fatal(err)
	}
	if len(trajectories) != 2 {
		t.Fatalf("got %d trajectories, want 2", len(trajectories))
	}
	if trajectories[0].ID != "tc_0001" || trajectories[0].Points[0].Lat != 10 {
		t.Errorf("first trajectory = %s at lat %g, want tc_0001 at 10",
			trajectories[0].ID, trajectories[0].Points[0].Lat)
	}
	if trajectories[1].ID != "tc_0002" || trajectories[1].Points[0].Lat != 50 {
		t.Errorf("second trajectory = %s at lat %g, want tc_0002 at 50",
			trajectories[1].ID, trajectories[1].Points[0].Lat)
	}
}
