// Package db provides the sqlite sweep ledger: sweeps, their runs and a
// per-sweep event timeline.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Sweep statuses.
const (
	SweepRunning     = "running"
	SweepDone        = "done"
	SweepFailed      = "failed"
	SweepCanceled    = "canceled"
	SweepInterrupted = "interrupted"
)

// Run statuses.
const (
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrNotFound is returned when a sweep does not exist.
var ErrNotFound = errors.New("not found")

// Store provides persistence for sweeps and runs.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates a ledger store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Counts tallies the outcome of a sweep.
type Counts struct {
	Attempted int
	Skipped   int
	Failed    int
	Succeeded int
}

// Sweep is one ledger row of the sweeps table.
type Sweep struct {
	ID        string
	CreatedAt time.Time
	EndedAt   time.Time
	Condition string
	Mode      string
	GridKeys  string
	OutputDir string
	Status    string
	Counts
}

// RunRow is one executed combination.
type RunRow struct {
	SweepID         string
	Seq             int
	TestName        string
	Status          string
	ExitCode        int
	StartedAt       time.Time
	EndedAt         time.Time
	AssignmentsJSON string
	RecordPath      string
	Error           string
}

// Duration returns the wall time of the run.
func (r RunRow) Duration() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}

// Event represents a timeline event for a sweep.
type Event struct {
	Seq      int
	Time     time.Time
	Type     string
	Message  string
	DataJSON string
}

// CreateSweep inserts the sweep record and a sweep_started event.
func (s *Store) CreateSweep(ctx context.Context, sw Sweep) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin create sweep: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO sweeps(sweep_id, created_at, condition, mode, grid_keys, output_dir, status)
		VALUES(?, ?, ?, ?, ?, ?, ?)`,
		sw.ID, formatTime(sw.CreatedAt), sw.Condition, sw.Mode, nullableString(sw.GridKeys), sw.OutputDir, SweepRunning); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert sweep: %w", err)
	}
	if err := s.insertEvent(ctx, tx, sw.ID, Event{Type: "sweep_started", Message: "sweep started"}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create sweep: %w", err)
	}
	return nil
}

// RecordRun inserts a run row and a run_recorded event in one transaction.
func (s *Store) RecordRun(ctx context.Context, run RunRow) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin record run: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO runs(sweep_id, seq, test_name, status, exit_code, started_at, ended_at, assignments_json, record_path, error)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.SweepID, run.Seq, run.TestName, run.Status, run.ExitCode, formatTime(run.StartedAt), formatTime(run.EndedAt),
		run.AssignmentsJSON, nullableString(run.RecordPath), nullableString(run.Error)); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert run: %w", err)
	}
	ev := Event{Type: "run_recorded", Message: fmt.Sprintf("%s %s", run.TestName, run.Status)}
	if err := s.insertEvent(ctx, tx, run.SweepID, ev); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit record run: %w", err)
	}
	return nil
}

// AddEvent appends an event to the sweep timeline.
func (s *Store) AddEvent(ctx context.Context, sweepID string, ev Event) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin add event: %w", err)
	}
	if err := s.insertEvent(ctx, tx, sweepID, ev); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit add event: %w", err)
	}
	return nil
}

// FinishSweep stores the final status and counts of a sweep.
func (s *Store) FinishSweep(ctx context.Context, sweepID, status string, counts Counts) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin finish sweep: %w", err)
	}
	res, err := tx.ExecContext(ctx, `UPDATE sweeps SET status=?, ended_at=?, attempted=?, skipped=?, failed=?, succeeded=? WHERE sweep_id=?`,
		status, formatTime(s.now()), counts.Attempted, counts.Skipped, counts.Failed, counts.Succeeded, sweepID)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("update sweep: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		_ = tx.Rollback()
		return fmt.Errorf("finish sweep %s: %w", sweepID, ErrNotFound)
	}
	if err := s.insertEvent(ctx, tx, sweepID, Event{Type: "sweep_finished", Message: "sweep " + status}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit finish sweep: %w", err)
	}
	return nil
}

// MarkInterrupted flags sweeps left running on outputDir by a dead process.
// Callers must hold the output directory lock.
func (s *Store) MarkInterrupted(ctx context.Context, outputDir string) (int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT sweep_id FROM sweeps WHERE status=? AND output_dir=?`, SweepRunning, outputDir)
	if err != nil {
		return 0, fmt.Errorf("list stale sweeps: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return 0, fmt.Errorf("scan stale sweep: %w", err)
		}
		ids = append(ids, id)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate stale sweeps: %w", err)
	}

	for _, id := range ids {
		tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
		if err != nil {
			return 0, fmt.Errorf("begin mark interrupted: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE sweeps SET status=? WHERE sweep_id=?`, SweepInterrupted, id); err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("mark sweep %s interrupted: %w", id, err)
		}
		if err := s.insertEvent(ctx, tx, id, Event{Type: "sweep_interrupted", Message: "sweep found running at startup"}); err != nil {
			_ = tx.Rollback()
			return 0, err
		}
		if err := tx.Commit(); err != nil {
			return 0, fmt.Errorf("commit mark interrupted: %w", err)
		}
	}
	return len(ids), nil
}

// ListSweeps returns sweeps newest first. limit <= 0 means no limit.
func (s *Store) ListSweeps(ctx context.Context, limit int) ([]Sweep, error) {
	query := sweepSelect + ` ORDER BY created_at DESC, sweep_id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sweeps: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Sweep
	for rows.Next() {
		sw, err := scanSweep(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sweeps: %w", err)
	}
	return out, nil
}

// GetSweep returns a sweep by id. An empty id selects the newest sweep.
func (s *Store) GetSweep(ctx context.Context, sweepID string) (Sweep, error) {
	var row *sql.Row
	if sweepID == "" {
		row = s.db.QueryRowContext(ctx, sweepSelect+` ORDER BY created_at DESC LIMIT 1`)
	} else {
		row = s.db.QueryRowContext(ctx, sweepSelect+` WHERE sweep_id=?`, sweepID)
	}
	sw, err := scanSweep(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Sweep{}, fmt.Errorf("sweep %q: %w", sweepID, ErrNotFound)
	}
	return sw, err
}

// ListRuns returns the runs of a sweep in execution order.
func (s *Store) ListRuns(ctx context.Context, sweepID string) ([]RunRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT sweep_id, seq, test_name, status, exit_code, started_at, ended_at, assignments_json,
		COALESCE(record_path, ''), COALESCE(error, '') FROM runs WHERE sweep_id=? ORDER BY seq`, sweepID)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []RunRow
	for rows.Next() {
		var r RunRow
		var started, ended string
		if err := rows.Scan(&r.SweepID, &r.Seq, &r.TestName, &r.Status, &r.ExitCode, &started, &ended,
			&r.AssignmentsJSON, &r.RecordPath, &r.Error); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt, _ = time.Parse(timeLayout, started)
		r.EndedAt, _ = time.Parse(timeLayout, ended)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}

// ListEvents returns the timeline of a sweep.
func (s *Store) ListEvents(ctx context.Context, sweepID string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT seq, ts, type, message, COALESCE(data_json, '') FROM events WHERE sweep_id=? ORDER BY seq`, sweepID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Event
	for rows.Next() {
		var ev Event
		var ts string
		if err := rows.Scan(&ev.Seq, &ts, &ev.Type, &ev.Message, &ev.DataJSON); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Time, _ = time.Parse(timeLayout, ts)
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

const sweepSelect = `SELECT sweep_id, created_at, COALESCE(ended_at, ''), condition, mode, COALESCE(grid_keys, ''), output_dir, status,
	attempted, skipped, failed, succeeded FROM sweeps`

type scanner interface {
	Scan(dest ...any) error
}

func scanSweep(row scanner) (Sweep, error) {
	var sw Sweep
	var created, ended string
	if err := row.Scan(&sw.ID, &created, &ended, &sw.Condition, &sw.Mode, &sw.GridKeys, &sw.OutputDir, &sw.Status,
		&sw.Attempted, &sw.Skipped, &sw.Failed, &sw.Succeeded); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Sweep{}, err
		}
		return Sweep{}, fmt.Errorf("scan sweep: %w", err)
	}
	sw.CreatedAt, _ = time.Parse(timeLayout, created)
	if ended != "" {
		sw.EndedAt, _ = time.Parse(timeLayout, ended)
	}
	return sw, nil
}

func (s *Store) insertEvent(ctx context.Context, tx *sql.Tx, sweepID string, ev Event) error {
	seq, err := s.nextSeq(ctx, tx, sweepID)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO events(sweep_id, seq, ts, type, message, data_json) VALUES(?, ?, ?, ?, ?, ?)`,
		sweepID, seq, formatTime(s.now()), ev.Type, ev.Message, nullableString(ev.DataJSON)); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (s *Store) nextSeq(ctx context.Context, tx *sql.Tx, sweepID string) (int, error) {
	var seq int
	row := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM events WHERE sweep_id=?`, sweepID)
	if err := row.Scan(&seq); err != nil {
		return 0, fmt.Errorf("read event seq: %w", err)
	}
	return seq + 1, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
