package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"iter"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/halcyon-data/stormtrack/internal/grid"
	"github.com/halcyon-data/stormtrack/internal/ingest"
	"github.com/halcyon-data/stormtrack/internal/pipeline"
	"github.com/halcyon-data/stormtrack/internal/runconfig"
	"github.com/halcyon-data/stormtrack/internal/storage/sqlite"
	"github.com/halcyon-data/stormtrack/internal/trackfile"
	"github.com/halcyon-data/stormtrack/internal/units"
)

func main() {
	var configPath string
	var verbose bool
	var trace bool

	flag.StringVar(&configPath, "config", "stormtrack.yaml", "path to run configuration")
	flag.BoolVar(&verbose, "verbose", false, "enable diagnostic logging")
	flag.BoolVar(&trace, "trace", false, "enable per-step trace logging")
	flag.Parse()

	writers := pipeline.LogWriters{Ops: os.Stderr}
	if verbose {
		writers.Diag = os.Stderr
	}
	if trace {
		writers.Trace = os.Stderr
	}
	pipeline.SetLogWriters(writers)

	if err := run(configPath); err != nil {
		log.Fatalf("stormtrack: %v", err)
	}
}

func run(configPath string) error {
	cfg, err := runconfig.Load(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	grids, err := ingest.ReadSeries(cfg.Input.Path, cfg.Input.Global)
	if err != nil {
		return err
	}

	var opts []pipeline.Option
	if cfg.Workers > 0 {
		opts = append(opts, pipeline.WithWorkers(cfg.Workers))
	}
	source := func() iter.Seq[*grid.Grid] { return ingest.Series(grids) }
	results, runErr := pipeline.RunAll(ctx, cfg.TrackTypes, source, opts...)
	if runErr != nil {
		// Partial results may still be worth writing; report at the end.
		pipeline.Opsf("run finished with errors: %v", runErr)
	}

	var store *sqlite.Store
	if cfg.Output.Database != "" {
		store, err = sqlite.Open(cfg.Output.Database)
		if err != nil {
			return err
		}
		defer store.Close()
	}

	for _, res := range results {
		if res.Err != nil {
			continue
		}
		fmt.Printf("%s: %d trajectories\n", res.Policy.Name, len(res.Trajectories))
		printSummary(res)

		if cfg.Output.Dir != "" {
			if err := os.MkdirAll(cfg.Output.Dir, 0o755); err != nil {
				return err
			}
			path := filepath.Join(cfg.Output.Dir, res.Policy.Name+".txt")
			if err := trackfile.WriteFile(path, res.Trajectories); err != nil {
				return err
			}
		}

		if store != nil {
			policyJSON, err := json.Marshal(res.Policy)
			if err != nil {
				return err
			}
			runID, err := store.CreateRun(ctx, res.Policy.Name, cfg.Input.Path, policyJSON)
			if err != nil {
				return err
			}
			if err := store.SaveTrajectories(ctx, runID, res.Trajectories); err != nil {
				return err
			}
			fmt.Printf("%s: persisted as run %s\n", res.Policy.Name, runID)
		}
	}
	return runErr
}

// printSummary lists each trajectory with the mean of the policy's
// first criterion variable, pressures converted to hPa for reading.
func printSummary(res pipeline.TrackTypeResult) {
	if len(res.Policy.Detect.Criteria) == 0 {
		return
	}
	name := res.Policy.Detect.Criteria[0].Var
	for _, tr := range res.Trajectories {
		mean, ok := tr.MeanValue(name)
		if !ok {
			continue
		}
		if units.KindFor(name) == units.Pressure {
			fmt.Printf("  %s: %d points, %.1f deg path, mean %s %.1f hPa\n",
				tr.ID, len(tr.Points), tr.PathLengthDeg(), name, units.ConvertPressure(mean, "hPa"))
			continue
		}
		fmt.Printf("  %s: %d points, %.1f deg path, mean %s %.4g %s\n",
			tr.ID, len(tr.Points), tr.PathLengthDeg(), name, mean, units.UnitsFor(name))
	}
}
