// Package trackfile writes trajectories in the TempestExtremes text
// track format: one "start" header per trajectory followed by one line
// per point with grid indices, position, criterion values, and date.
package trackfile

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/halcyon-data/stormtrack/internal/stitch"
)

// Write renders the trajectories to w. Variable columns appear in
// sorted name order, consistent across every line of the file.
func Write(w io.Writer, trajectories []stitch.Trajectory) error {
	bw := bufio.NewWriter(w)
	for _, tr := range trajectories {
		if len(tr.Points) == 0 {
			continue
		}
		if err := writeTrajectory(bw, tr); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteFile writes the trajectories to a new file at path.
func WriteFile(path string, trajectories []stitch.Trajectory) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create track file: %w", err)
	}
	if err := Write(f, trajectories); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeTrajectory(w *bufio.Writer, tr stitch.Trajectory) error {
	first := tr.Points[0].Time
	_, err := fmt.Fprintf(w, "start   %d      %d    %d       %d      %d\n",
		len(tr.Points), first.Year(), int(first.Month()), first.Day(), first.Hour())
	if err != nil {
		return err
	}

	vars := varColumns(tr)
	for _, p := range tr.Points {
		_, err := fmt.Fprintf(w, "        %d     %d     %.6f      %.6f   ",
			p.I, p.J, p.Lon, p.Lat)
		if err != nil {
			return err
		}
		for _, name := range vars {
			if _, err := fmt.Fprintf(w, " %.6e ", p.Values[name]); err != nil {
				return err
			}
		}
		_, err = fmt.Fprintf(w, "   %d    %d       %d      %d \n",
			p.Time.Year(), int(p.Time.Month()), p.Time.Day(), p.Time.Hour())
		if err != nil {
			return err
		}
	}
	return nil
}

// varColumns returns the sorted variable names present in the
// trajectory's observed points. Filled points may lack some variables;
// they still get a column, reading as zero.
func varColumns(tr stitch.Trajectory) []string {
	seen := map[string]bool{}
	for _, p := range tr.Points {
		if p.Filled {
			continue
		}
		for name := range p.Values {
			seen[name] = true
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
