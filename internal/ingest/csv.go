// Package ingest reads field grid series from disk. The supported
// format is long-form CSV: a header of time,lat,lon followed by one
// column per variable, one row per cell sample, complete mesh per
// timestamp.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/halcyon-data/stormtrack/internal/grid"
	"github.com/halcyon-data/stormtrack/internal/monitoring"
)

// ErrBadSeries reports a series file the reader cannot turn into a
// complete grid sequence.
var ErrBadSeries = errors.New("bad grid series")

type cellRow struct {
	ts       time.Time
	lat, lon float64
	values   []float64
}

// ReadSeries parses the CSV at path into time-ordered grids. Every
// timestamp must cover the full lat x lon mesh; a missing cell is a
// hard error, since silently sparse input would skew detection.
func ReadSeries(path string, global bool) ([]*grid.Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open series: %w", err)
	}
	defer f.Close()
	grids, err := readSeries(f, global)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return grids, nil
}

func readSeries(r io.Reader, global bool) ([]*grid.Grid, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: read header: %v", ErrBadSeries, err)
	}
	if len(header) < 4 ||
		!strings.EqualFold(header[0], "time") ||
		!strings.EqualFold(header[1], "lat") ||
		!strings.EqualFold(header[2], "lon") {
		return nil, fmt.Errorf("%w: header must be time,lat,lon,<variables>, got %v", ErrBadSeries, header)
	}
	varNames := make([]string, len(header)-3)
	copy(varNames, header[3:])

	var (
		rows    []cellRow
		latSet  = map[float64]bool{}
		lonSet  = map[float64]bool{}
		timeSet = map[time.Time]bool{}
	)
	line := 1
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrBadSeries, line, err)
		}
		row, err := parseRow(record, len(varNames))
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrBadSeries, line, err)
		}
		latSet[row.lat] = true
		lonSet[row.lon] = true
		timeSet[row.ts] = true
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no samples", ErrBadSeries)
	}

	lat := sortedKeys(latSet)
	lon := sortedKeys(lonSet)
	times := make([]time.Time, 0, len(timeSet))
	for ts := range timeSet {
		times = append(times, ts)
	}
	sort.Slice(times, func(a, b int) bool { return times[a].Before(times[b]) })

	if len(rows) != len(times)*len(lat)*len(lon) {
		return nil, fmt.Errorf("%w: %d samples for %d steps on a %dx%d mesh",
			ErrBadSeries, len(rows), len(times), len(lat), len(lon))
	}

	latIdx := indexOf(lat)
	lonIdx := indexOf(lon)
	stepIdx := make(map[time.Time]int, len(times))
	for n, ts := range times {
		stepIdx[ts] = n
	}

	grids := make([]*grid.Grid, len(times))
	samples := make([][][]float64, len(times))
	for n, ts := range times {
		g, err := grid.New(ts, lat, lon, global)
		if err != nil {
			return nil, err
		}
		grids[n] = g
		samples[n] = make([][]float64, len(varNames))
		for v := range varNames {
			samples[n][v] = make([]float64, len(lat)*len(lon))
		}
	}

	seen := make([]bool, len(times)*len(lat)*len(lon))
	nlon := len(lon)
	for _, row := range rows {
		n := stepIdx[row.ts]
		j, i := latIdx[row.lat], lonIdx[row.lon]
		cell := j*nlon + i
		flat := n*len(lat)*nlon + cell
		if seen[flat] {
			return nil, fmt.Errorf("%w: duplicate sample at %s (%g, %g)",
				ErrBadSeries, row.ts.Format(time.RFC3339), row.lat, row.lon)
		}
		seen[flat] = true
		for v := range varNames {
			samples[n][v][cell] = row.values[v]
		}
	}

	for n := range grids {
		for v, name := range varNames {
			if err := grids[n].SetVar(name, samples[n][v]); err != nil {
				return nil, err
			}
		}
	}
	monitoring.Logf("ingest: %d steps on a %dx%d mesh, variables %v",
		len(times), len(lat), len(lon), varNames)
	return grids, nil
}

func parseRow(record []string, nvars int) (cellRow, error) {
	if len(record) != 3+nvars {
		return cellRow{}, fmt.Errorf("%d fields, want %d", len(record), 3+nvars)
	}
	ts, err := time.Parse(time.RFC3339, record[0])
	if err != nil {
		return cellRow{}, fmt.Errorf("bad time %q: %v", record[0], err)
	}
	lat, err := strconv.ParseFloat(record[1], 64)
	if err != nil {
		return cellRow{}, fmt.Errorf("bad lat %q: %v", record[1], err)
	}
	lon, err := strconv.ParseFloat(record[2], 64)
	if err != nil {
		return cellRow{}, fmt.Errorf("bad lon %q: %v", record[2], err)
	}
	values := make([]float64, nvars)
	for v := 0; v < nvars; v++ {
		values[v], err = strconv.ParseFloat(record[3+v], 64)
		if err != nil {
			return cellRow{}, fmt.Errorf("bad value %q: %v", record[3+v], err)
		}
	}
	return cellRow{ts: ts.UTC(), lat: lat, lon: lon, values: values}, nil
}

func sortedKeys(set map[float64]bool) []float64 {
	keys := make([]float64, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Float64s(keys)
	return keys
}

func indexOf(axis []float64) map[float64]int {
	idx := make(map[float64]int, len(axis))
	for i, v := range axis {
		idx[v] = i
	}
	return idx
}

// Series adapts a grid slice to the iterator the pipeline consumes.
func Series(grids []*grid.Grid) iter.Seq[*grid.Grid] {
	return func(yield func(*grid.Grid) bool) {
		for _, g := range grids {
			if !yield(g) {
				return
			}
		}
	}
}
