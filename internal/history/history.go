// Package history records chain runs in a SQLite database under the state
// dir. The store is write-mostly: the orchestrator appends run and session
// rows as the chain progresses, and the status command reads them back. Chain
// decisions never depend on this store; the plan file stays the ground truth.
package history

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"chainrunner/internal/usage"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	started_at    TIMESTAMP NOT NULL,
	finished_at   TIMESTAMP,
	max_sessions  INTEGER NOT NULL,
	state         TEXT,
	sessions_run  INTEGER
);

CREATE TABLE IF NOT EXISTS sessions (
	run_id         TEXT NOT NULL REFERENCES runs(id),
	number         INTEGER NOT NULL,
	outcome        TEXT NOT NULL,
	reason         TEXT NOT NULL,
	input_tokens   INTEGER NOT NULL,
	output_tokens  INTEGER NOT NULL,
	cost_usd       REAL NOT NULL,
	finished_at    TIMESTAMP NOT NULL,
	PRIMARY KEY (run_id, number)
);
`

// Store is a SQLite-backed chain history.
type Store struct {
	db *sql.DB
}

// RunRecord is one chain invocation.
type RunRecord struct {
	ID          string
	StartedAt   time.Time
	FinishedAt  time.Time
	MaxSessions int
	State       string
	SessionsRun int
}

// SessionRecord is one session within a run.
type SessionRecord struct {
	RunID        string
	Number       int
	Outcome      string
	Reason       string
	InputTokens  int
	OutputTokens int
	CostUSD      float64
	FinishedAt   time.Time
}

// Open opens (or creates) the history database under the state dir.
func Open(stateDir string) (*Store, error) {
	path := filepath.Join(stateDir, "history.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply history schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// BeginRun records the start of a chain invocation.
func (s *Store) BeginRun(runID string, startedAt time.Time, maxSessions int) error {
	_, err := s.db.Exec(
		`INSERT INTO runs (id, started_at, max_sessions) VALUES (?, ?, ?)`,
		runID, startedAt.UTC(), maxSessions)
	if err != nil {
		return fmt.Errorf("failed to record run start: %w", err)
	}
	return nil
}

// RecordSession records one session's terminal state.
func (s *Store) RecordSession(runID string, number int, outcome, reason string, stats usage.Stats) error {
	_, err := s.db.Exec(
		`INSERT INTO sessions (run_id, number, outcome, reason, input_tokens, output_tokens, cost_usd, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, number, outcome, reason,
		stats.InputTokens, stats.OutputTokens, stats.TotalCostUSD, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record session: %w", err)
	}
	return nil
}

// FinishRun records a chain's terminal state.
func (s *Store) FinishRun(runID, state string, sessionsRun int) error {
	_, err := s.db.Exec(
		`UPDATE runs SET finished_at = ?, state = ?, sessions_run = ? WHERE id = ?`,
		time.Now().UTC(), state, sessionsRun, runID)
	if err != nil {
		return fmt.Errorf("failed to record run end: %w", err)
	}
	return nil
}

// RecentRuns returns the most recent runs, newest first.
func (s *Store) RecentRuns(limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query(
		`SELECT id, started_at, COALESCE(finished_at, started_at), max_sessions,
		        COALESCE(state, ''), COALESCE(sessions_run, 0)
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var r RunRecord
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.MaxSessions, &r.State, &r.SessionsRun); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Sessions returns all sessions of a run in order.
func (s *Store) Sessions(runID string) ([]SessionRecord, error) {
	rows, err := s.db.Query(
		`SELECT run_id, number, outcome, reason, input_tokens, output_tokens, cost_usd, finished_at
		 FROM sessions WHERE run_id = ? ORDER BY number`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []SessionRecord
	for rows.Next() {
		var r SessionRecord
		if err := rows.Scan(&r.RunID, &r.Number, &r.Outcome, &r.Reason,
			&r.InputTokens, &r.OutputTokens, &r.CostUSD, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		sessions = append(sessions, r)
	}
	return sessions, rows.Err()
}
