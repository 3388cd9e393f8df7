// Package store persists run history to a local SQLite database. The store
// is an absorbed layer: write failures are logged and reported to the
// caller, but callers (the agent executor, the delegation workflow) never
// let them fail a run.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"conductor/internal/agent"
	"conductor/internal/logging"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id              TEXT PRIMARY KEY,
	agent           TEXT NOT NULL,
	model           TEXT NOT NULL DEFAULT '',
	mode            TEXT NOT NULL DEFAULT '',
	started_at      TIMESTAMP NOT NULL,
	completed_at    TIMESTAMP NOT NULL,
	turns           INTEGER NOT NULL DEFAULT 0,
	budget_exceeded INTEGER NOT NULL DEFAULT 0,
	structured      INTEGER NOT NULL DEFAULT 0,
	summary         TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS tool_calls (
	run_id      TEXT NOT NULL REFERENCES runs(id),
	call_id     TEXT NOT NULL,
	tool        TEXT NOT NULL,
	status      TEXT NOT NULL,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	error       TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_runs_agent ON runs(agent, started_at);
CREATE INDEX IF NOT EXISTS idx_tool_calls_run ON tool_calls(run_id);
`

// RunStore records and queries completed runs. Implements agent.Recorder.
type RunStore struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens (creating if needed) the run history database at path.
func Open(path string) (*RunStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Open")
	defer timer.Stop()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("set busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("set journal_mode=WAL: %v", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	logging.Store("run history store open at %s", path)
	return &RunStore{db: db}, nil
}

// Close closes the underlying database.
func (s *RunStore) Close() error {
	return s.db.Close()
}

// RecordRun persists a run and its tool calls in one transaction.
func (s *RunStore) RecordRun(ctx context.Context, rec agent.RunRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("run id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, agent, model, mode, started_at, completed_at,
			turns, budget_exceeded, structured, summary)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Agent, rec.Model, rec.Mode,
		rec.StartedAt.UTC(), rec.CompletedAt.UTC(),
		rec.Turns, boolInt(rec.BudgetExceeded), boolInt(rec.Structured), rec.Summary)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", rec.ID, err)
	}

	if err := insertToolCalls(ctx, tx, rec.ID, rec.ToolCalls); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run %s: %w", rec.ID, err)
	}
	logging.StoreDebug("recorded run %s (%s, %d turns, %d tool calls)",
		rec.ID, rec.Agent, rec.Turns, len(rec.ToolCalls))
	return nil
}

// RecordToolCalls appends tool calls to an already-recorded run.
func (s *RunStore) RecordToolCalls(ctx context.Context, runID string, calls []agent.ToolCallRecord) error {
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertToolCalls(ctx, tx, runID, calls); err != nil {
		return err
	}
	return tx.Commit()
}

func insertToolCalls(ctx context.Context, tx *sql.Tx, runID string, calls []agent.ToolCallRecord) error {
	for _, tc := range calls {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO tool_calls (run_id, call_id, tool, status, duration_ms, error)
			VALUES (?, ?, ?, ?, ?, ?)`,
			runID, tc.CallID, tc.Tool, tc.Status, tc.DurationMs, tc.Error)
		if err != nil {
			return fmt.Errorf("insert tool call %s: %w", tc.CallID, err)
		}
	}
	return nil
}

// RecentRuns returns the most recent runs, newest first.
func (s *RunStore) RecentRuns(ctx context.Context, limit int) ([]agent.RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agent, model, mode, started_at, completed_at,
			turns, budget_exceeded, structured, summary
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent runs: %w", err)
	}
	defer rows.Close()
	return scanRuns(rows)
}

// RunsByAgent returns the most recent runs of one agent, newest first.
func (s *RunStore) RunsByAgent(ctx context.Context, agentName string, limit int) ([]agent.RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agent, model, mode, started_at, completed_at,
			turns, budget_exceeded, structured, summary
		FROM runs WHERE agent = ? ORDER BY started_at DESC LIMIT ?`, agentName, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs for %s: %w", agentName, err)
	}
	defer rows.Close()
	return scanRuns(rows)
}

// ToolCalls returns the recorded tool calls of one run, in insertion order.
func (s *RunStore) ToolCalls(ctx context.Context, runID string) ([]agent.ToolCallRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT call_id, tool, status, duration_ms, error
		FROM tool_calls WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("query tool calls for %s: %w", runID, err)
	}
	defer rows.Close()

	var calls []agent.ToolCallRecord
	for rows.Next() {
		var tc agent.ToolCallRecord
		if err := rows.Scan(&tc.CallID, &tc.Tool, &tc.Status, &tc.DurationMs, &tc.Error); err != nil {
			return nil, fmt.Errorf("scan tool call: %w", err)
		}
		calls = append(calls, tc)
	}
	return calls, rows.Err()
}

func scanRuns(rows *sql.Rows) ([]agent.RunRecord, error) {
	var recs []agent.RunRecord
	for rows.Next() {
		var rec agent.RunRecord
		var started, completed time.Time
		var budget, structured int
		err := rows.Scan(&rec.ID, &rec.Agent, &rec.Model, &rec.Mode,
			&started, &completed, &rec.Turns, &budget, &structured, &rec.Summary)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		rec.StartedAt = started
		rec.CompletedAt = completed
		rec.BudgetExceeded = budget != 0
		rec.Structured = structured != 0
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
