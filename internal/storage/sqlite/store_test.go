package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/halcyon-data/stormtrack/internal/stitch"
	"github.com/halcyon-data/stormtrack/internal/testutil"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "stormtrack.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleTrajectories() []stitch.Trajectory {
	return []stitch.Trajectory{
		{
			ID: "tc_0001",
			Points: []stitch.Point{
				{Time: testutil.StepTime(0), Step: 0, Lat: 10, Lon: 40, I: 40, J: 30, GridIdx: 1240,
					Values: map[string]float64{"psl": 99000}},
				{Time: testutil.StepTime(1), Step: 1, Lat: 10.5, Lon: 41, I: 41, J: 30, GridIdx: 1241,
					Filled: true, Values: map[string]float64{"psl": 98950}},
				{Time: testutil.StepTime(2), Step: 2, Lat: 11, Lon: 42, I: 42, J: 31, GridIdx: 1302,
					Values: map[string]float64{"psl": 98900}},
			},
		},
		{
			ID: "tc_0002",
			Points: []stitch.Point{
				{Time: testutil.StepTime(3), Step: 3, Lat: -5, Lon: 200, I: 200, J: 15, GridIdx: 915,
					Values: map[string]float64{"psl": 99500}},
			},
		},
	}
}

func TestStore_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	runID, err := s.CreateRun(ctx, "tc", "data/psl.csv", []byte(`{"name":"tc"}`))
	if err != nil {
		t.Fatal(err)
	}
	want := sampleTrajectories()
	if err := s.SaveTrajectories(ctx, runID, want); err != nil {
		t.Fatal(err)
	}

	got, err := s.Trajectories(ctx, runID)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("trajectories differ (-want +got):\n%s", diff)
	}
}

func TestStore_Runs(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first, err := s.CreateRun(ctx, "tc", "a.csv", []byte(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.CreateRun(ctx, "psl-low", "b.csv", []byte(`{}`))
	if err != nil {
		t.Fatal(err)
	}

	runs, err := s.Runs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
	ids := map[string]bool{first: true, second: true}
	for _, r := range runs {
		if !ids[r.ID] {
			t.Errorf("unexpected run %s", r.ID)
		}
		if r.CreatedAt.IsZero() {
			t.Errorf("run %s has zero created_at", r.ID)
		}
	}
}

func TestStore_UnknownRun(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Trajectories(context.Background(), "nope"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("err = %v, want ErrRunNotFound", err)
	}
}

func TestStore_MigrationsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stormtrack.db")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	s.Close()

	// Reopening must be a no-op migration, not a failure.
	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	s.Close()
}
