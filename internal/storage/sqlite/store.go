// Package sqlite persists runs and their trajectories. The tracking
// core never touches this layer; it is driven from cmd after a run
// completes, and by analysis tooling afterwards.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/halcyon-data/stormtrack/internal/stitch"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrRunNotFound reports a lookup for an unknown run ID.
var ErrRunNotFound = errors.New("run not found")

// Store wraps the SQLite database holding runs, trajectories, and
// their points.
type Store struct {
	db *sql.DB
}

// Run is one persisted tracking run.
type Run struct {
	ID        string
	TrackType string
	InputPath string
	Policy    string // policy JSON as configured for the run
	CreatedAt time.Time
}

// Open opens (creating if needed) the database at path and applies any
// pending schema migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON; PRAGMA journal_mode = WAL;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrateUp() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load embedded migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("create sqlite migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	// Closing m would close the shared DB handle, so it is left to be
	// collected.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// CreateRun records a new run and returns its generated ID.
func (s *Store) CreateRun(ctx context.Context, trackType, inputPath string, policyJSON []byte) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, track_type, input_path, policy) VALUES (?, ?, ?, ?)`,
		id, trackType, inputPath, string(policyJSON))
	if err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}
	return id, nil
}

// SaveTrajectories persists a run's trajectories and points in one
// transaction.
func (s *Store) SaveTrajectories(ctx context.Context, runID string, trajectories []stitch.Trajectory) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	trStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO trajectories (run_id, id, duration_steps, start_time, end_time) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare trajectories: %w", err)
	}
	defer trStmt.Close()
	ptStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO trajectory_points (run_id, trajectory_id, step, time, lat, lon, i, j, grid_idx, filled, field_values)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare points: %w", err)
	}
	defer ptStmt.Close()

	for _, tr := range trajectories {
		if len(tr.Points) == 0 {
			continue
		}
		first, last := tr.Points[0], tr.Points[len(tr.Points)-1]
		if _, err := trStmt.ExecContext(ctx, runID, tr.ID, tr.DurationSteps(),
			first.Time.UTC(), last.Time.UTC()); err != nil {
			return fmt.Errorf("insert trajectory %s: %w", tr.ID, err)
		}
		for _, p := range tr.Points {
			values, err := json.Marshal(p.Values)
			if err != nil {
				return fmt.Errorf("marshal values for %s step %d: %w", tr.ID, p.Step, err)
			}
			if _, err := ptStmt.ExecContext(ctx, runID, tr.ID, p.Step, p.Time.UTC(),
				p.Lat, p.Lon, p.I, p.J, p.GridIdx, p.Filled, string(values)); err != nil {
				return fmt.Errorf("insert point %s step %d: %w", tr.ID, p.Step, err)
			}
		}
	}
	return tx.Commit()
}

// Runs lists persisted runs, newest first.
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, track_type, input_path, policy, created_at FROM runs ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.TrackType, &r.InputPath, &r.Policy, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Trajectories loads a run's trajectories with their points in step
// order.
func (s *Store) Trajectories(ctx context.Context, runID string) ([]stitch.Trajectory, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM runs WHERE id = ?)`, runID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check run: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT p.trajectory_id, p.step, p.time, p.lat, p.lon, p.i, p.j, p.grid_idx, p.filled, p.field_values
		 FROM trajectory_points p
		 JOIN trajectories t ON t.run_id = p.run_id AND t.id = p.trajectory_id
		 WHERE p.run_id = ?
		 ORDER BY t.rowid, p.step`, runID)
	if err != nil {
		return nil, fmt.Errorf("query points: %w", err)
	}
	defer rows.Close()

	var (
		out     []stitch.Trajectory
		current *stitch.Trajectory
	)
	for rows.Next() {
		var (
			id         string
			p          stitch.Point
			valuesJSON string
		)
		if err := rows.Scan(&id, &p.Step, &p.Time, &p.Lat, &p.Lon, &p.I, &p.J, &p.GridIdx, &p.Filled, &valuesJSON); err != nil {
			return nil, fmt.Errorf("scan point: %w", err)
		}
		if err := json.Unmarshal([]byte(valuesJSON), &p.Values); err != nil {
			return nil, fmt.Errorf("unmarshal values: %w", err)
		}
		p.Time = p.Time.UTC()
		if current == nil || current.ID != id {
			out = append(out, stitch.Trajectory{ID: id})
			current = &out[len(out)-1]
		}
		current.Points = append(current.Points, p)
	}
	return out, rows.Err()
}
