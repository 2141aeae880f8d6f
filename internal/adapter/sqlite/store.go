// Package sqlite persists estimation runs and their observations.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/wind-estimation-service/internal/domain"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// Store writes runs and observations to a SQLite database.
// It implements pipeline.BatchLoader.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens or creates the database at path and applies the schema.
func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// One connection serializes writers and keeps PRAGMAs in effect.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA foreign_keys = ON; PRAGMA busy_timeout = 5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure sqlite: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	logger.Info("sqlite store ready", "path", path)
	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// LoadBatch records the run if it is new and upserts the observations,
// keyed by run ID and target time, in one transaction. Replaying a batch
// leaves the database unchanged.
func (s *Store) LoadBatch(ctx context.Context, run domain.Run, observations []domain.Observation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	_, err = tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO runs (run_id, source, started_at, window_ns, min_airspeed, max_airspeed)
		VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.Source, run.StartedAt.UnixNano(), int64(run.Window), run.MinAirspeed, run.MaxAirspeed,
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO observations (
			run_id, time_ns, airspeed, wind_east, wind_north, wind_speed, wind_direction,
			converged, cost, iterations, evaluations,
			sample_time_ns, track_angle, ground_speed, lat, lng, alt, window_velocities
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i := range observations {
		o := &observations[i]
		velocities, err := json.Marshal(o.Velocities)
		if err != nil {
			return fmt.Errorf("encode velocities at %s: %w", o.Time, err)
		}
		_, err = stmt.ExecContext(ctx,
			run.ID, int64(o.Time), o.Solution.Airspeed, o.Solution.WindEast, o.Solution.WindNorth,
			o.WindSpeed, o.WindDirection,
			o.Converged, o.Cost, o.Iterations, o.Evaluations,
			int64(o.Sample.Time), o.Sample.TrackAngle, o.Sample.GroundSpeed, o.Sample.Lat, o.Sample.Lng, o.Sample.Alt,
			string(velocities),
		)
		if err != nil {
			return fmt.Errorf("insert observation at %s: %w", o.Time, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.logger.Debug("observations stored", "run_id", run.ID, "count", len(observations))
	return nil
}

// ListRuns returns stored runs, newest first.
func (s *Store) ListRuns(ctx context.Context) ([]domain.Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, source, started_at, window_ns, min_airspeed, max_airspeed
		FROM runs
		ORDER BY started_at DESC, run_id`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetRun returns a single run by ID.
func (s *Store) GetRun(ctx context.Context, runID string) (domain.Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT run_id, source, started_at, window_ns, min_airspeed, max_airspeed
		FROM runs
		WHERE run_id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Run{}, fmt.Errorf("%w: %s", domain.ErrRunNotFound, runID)
	}
	return run, err
}

// ListObservations returns a run's observations ordered by target time.
func (s *Store) ListObservations(ctx context.Context, runID string) ([]domain.Observation, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT time_ns, airspeed, wind_east, wind_north, wind_speed, wind_direction,
		       converged, cost, iterations, evaluations,
		       sample_time_ns, track_angle, ground_speed, lat, lng, alt, window_velocities
		FROM observations
		WHERE run_id = ?
		ORDER BY time_ns`, runID)
	if err != nil {
		return nil, fmt.Errorf("query observations: %w", err)
	}
	defer rows.Close()

	var out []domain.Observation
	for rows.Next() {
		var (
			o          domain.Observation
			t, sampleT int64
			velocities string
		)
		err := rows.Scan(
			&t, &o.Solution.Airspeed, &o.Solution.WindEast, &o.Solution.WindNorth, &o.WindSpeed, &o.WindDirection,
			&o.Converged, &o.Cost, &o.Iterations, &o.Evaluations,
			&sampleT, &o.Sample.TrackAngle, &o.Sample.GroundSpeed, &o.Sample.Lat, &o.Sample.Lng, &o.Sample.Alt,
			&velocities,
		)
		if err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		if err := json.Unmarshal([]byte(velocities), &o.Velocities); err != nil {
			return nil, fmt.Errorf("decode velocities at %s: %w", time.Duration(t), err)
		}
		o.Time = time.Duration(t)
		o.Sample.Time = time.Duration(sampleT)
		out = append(out, o)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (domain.Run, error) {
	var (
		run       domain.Run
		startedAt int64
		window    int64
	)
	if err := sc.Scan(&run.ID, &run.Source, &startedAt, &window, &run.MinAirspeed, &run.MaxAirspeed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Run{}, err
		}
		return domain.Run{}, fmt.Errorf("scan run: %w", err)
	}
	run.StartedAt = time.Unix(0, startedAt).UTC()
	run.Window = time.Duration(window)
	return run, nil
}
