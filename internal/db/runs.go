package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/restframe/internal/pipeline"
)

// Run statuses.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// Run is one invocation of a processing command.
type Run struct {
	RunID      string
	Command    string
	InputPath  string
	AuxPath    string
	OutputPath string
	ConfigJSON string
	Version    string
	Status     string
	Error      string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// TreeRun is the ledger row of one processed tree.
type TreeRun struct {
	RunID         string
	Tree          string
	DecayMode     string
	ReferenceMass float64
	Entries       int64
	Written       int64
	Skipped       int64
	Flagged       int64
	PoolSize      int
	RecordedAt    time.Time
}

// SkippedEvent is the ledger row of one skipped or flagged entry.
type SkippedEvent struct {
	ID          int64
	RunID       string
	Tree        string
	Entry       int64
	RunNumber   int64
	EventNumber int64
	Reason      string
	Flagged     bool
}

// RunStore reads and writes the run ledger.
type RunStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewRunStore creates a store over an already migrated database.
func NewRunStore(db *DB) *RunStore {
	return &RunStore{db: db.DB, now: time.Now}
}

// StartRun inserts a new running run. RunID and StartedAt are assigned when
// empty.
func (s *RunStore) StartRun(ctx context.Context, run *Run) error {
	if run.RunID == "" {
		run.RunID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = s.now().UTC()
	}
	if run.ConfigJSON == "" {
		run.ConfigJSON = "{}"
	}
	run.Status = RunStatusRunning

	return retryOnBusy(func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO runs (
				run_id, command, input_path, aux_path, output_path,
				config_json, version, status, started_unix
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.RunID, run.Command, run.InputPath, nullString(run.AuxPath), run.OutputPath,
			run.ConfigJSON, run.Version, run.Status, unixSeconds(run.StartedAt),
		)
		if err != nil {
			return fmt.Errorf("insert run: %w", err)
		}
		return nil
	})
}

// FinishRun marks a run completed, or failed when runErr is not nil.
func (s *RunStore) FinishRun(ctx context.Context, runID string, runErr error) error {
	status, msg := RunStatusCompleted, ""
	if runErr != nil {
		status, msg = RunStatusFailed, runErr.Error()
	}
	finished := unixSeconds(s.now().UTC())

	return retryOnBusy(func() error {
		result, err := s.db.ExecContext(ctx, `
			UPDATE runs SET status = ?, error = ?, finished_unix = ?
			WHERE run_id = ?`,
			status, nullString(msg), finished, runID,
		)
		if err != nil {
			return fmt.Errorf("finish run: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("run %s not found", runID)
		}
		return nil
	})
}

// RecordTree stores the summary of one processed tree.
func (s *RunStore) RecordTree(ctx context.Context, runID string, summary pipeline.TreeSummary) error {
	return retryOnBusy(func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO tree_runs (
				run_id, tree, decay_mode, reference_mass,
				entries, written, skipped, flagged, pool_size, recorded_unix
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, summary.Tree, summary.Mode, summary.ReferenceMass,
			summary.Entries, summary.Written, summary.Skipped, summary.Flagged, summary.PoolSize,
			unixSeconds(s.now().UTC()),
		)
		if err != nil {
			return fmt.Errorf("insert tree run %s: %w", summary.Tree, err)
		}
		return nil
	})
}

// RecordEvent stores one skipped or flagged entry.
func (s *RunStore) RecordEvent(ctx context.Context, runID string, issue pipeline.EventIssue) error {
	return retryOnBusy(func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO skipped_events (
				run_id, tree, entry, run_number, event_number, reason, flagged
			) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			runID, issue.Tree, issue.Entry, issue.RunNumber, issue.EventNumber, issue.Reason, issue.Flagged,
		)
		if err != nil {
			return fmt.Errorf("insert skipped event: %w", err)
		}
		return nil
	})
}

// GetRun returns one run, or an error wrapping sql.ErrNoRows.
func (s *RunStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT run_id, command, input_path, aux_path, output_path, config_json,
		       version, status, error, started_unix, finished_unix
		FROM runs WHERE run_id = ?`, runID)
	r, err := scanRun(row)
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", runID, err)
	}
	return r, nil
}

// ListRuns returns the most recent runs first.
func (s *RunStore) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, command, input_path, aux_path, output_path, config_json,
		       version, status, error, started_unix, finished_unix
		FROM runs ORDER BY started_unix DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// ListTreeRuns returns the tree summaries of a run in processing order.
func (s *RunStore) ListTreeRuns(ctx context.Context, runID string) ([]TreeRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, tree, decay_mode, reference_mass,
		       entries, written, skipped, flagged, pool_size, recorded_unix
		FROM tree_runs WHERE run_id = ? ORDER BY recorded_unix, tree`, runID)
	if err != nil {
		return nil, fmt.Errorf("list tree runs: %w", err)
	}
	defer rows.Close()

	var out []TreeRun
	for rows.Next() {
		var t TreeRun
		var recorded float64
		if err := rows.Scan(&t.RunID, &t.Tree, &t.DecayMode, &t.ReferenceMass,
			&t.Entries, &t.Written, &t.Skipped, &t.Flagged, &t.PoolSize, &recorded); err != nil {
			return nil, fmt.Errorf("scan tree run: %w", err)
		}
		t.RecordedAt = fromUnixSeconds(recorded)
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListSkippedEvents returns the skipped and flagged entries of a run.
func (s *RunStore) ListSkippedEvents(ctx context.Context, runID string) ([]SkippedEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, tree, entry, run_number, event_number, reason, flagged
		FROM skipped_events WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list skipped events: %w", err)
	}
	defer rows.Close()

	var out []SkippedEvent
	for rows.Next() {
		var e SkippedEvent
		var runNumber, eventNumber sql.NullInt64
		if err := rows.Scan(&e.ID, &e.RunID, &e.Tree, &e.Entry, &runNumber, &eventNumber, &e.Reason, &e.Flagged); err != nil {
			return nil, fmt.Errorf("scan skipped event: %w", err)
		}
		e.RunNumber, e.EventNumber = runNumber.Int64, eventNumber.Int64
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteRun removes a run and, through the foreign keys, its trees and events.
func (s *RunStore) DeleteRun(ctx context.Context, runID string) error {
	return retryOnBusy(func() error {
		result, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE run_id = ?`, runID)
		if err != nil {
			return fmt.Errorf("delete run: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("run %s not found", runID)
		}
		return nil
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var r Run
	var aux, errMsg sql.NullString
	var started float64
	var finished sql.NullFloat64
	if err := row.Scan(&r.RunID, &r.Command, &r.InputPath, &aux, &r.OutputPath, &r.ConfigJSON,
		&r.Version, &r.Status, &errMsg, &started, &finished); err != nil {
		return nil, err
	}
	r.AuxPath = aux.String
	r.Error = errMsg.String
	r.StartedAt = fromUnixSeconds(started)
	if finished.Valid {
		t := fromUnixSeconds(finished.Float64)
		r.FinishedAt = &t
	}
	return &r, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// RunRecorder binds a RunStore to one run so it can serve as a
// pipeline.Recorder.
type RunRecorder struct {
	Store *RunStore
	RunID string
}

func (r RunRecorder) RecordEvent(ctx context.Context, issue pipeline.EventIssue) error {
	return r.Store.RecordEvent(ctx, r.RunID, issue)
}

func (r RunRecorder) RecordTree(ctx context.Context, summary pipeline.TreeSummary) error {
	return r.Store.RecordTree(ctx, r.RunID, summary)
}
