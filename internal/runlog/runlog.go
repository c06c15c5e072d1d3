// Package runlog records pipeline runs in a local SQLite file so that
// cleaning stages leave an audit trail: what ran, when, and how many
// records each stage processed, kept, dropped and staged.
package runlog

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Run is one pipeline stage execution.
type Run struct {
	ID          int64
	Stage       string
	Label       string
	StartedAt   time.Time
	CompletedAt *time.Time

	Processed  int
	Kept       int
	Dropped    int
	Staged     int
	Advisories int
}

// Ledger is the run bookkeeping store.
type Ledger struct {
	db *sql.DB
}

// Open opens (and if necessary creates) the ledger at path.
func Open(path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open run ledger %s: %w", path, err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS pipeline_run (
			run_id INTEGER PRIMARY KEY AUTOINCREMENT,
			stage TEXT NOT NULL,
			run_label TEXT NOT NULL,
			started_at TIMESTAMP NOT NULL,
			completed_at TIMESTAMP,
			processed INTEGER NOT NULL DEFAULT 0,
			kept INTEGER NOT NULL DEFAULT 0,
			dropped INTEGER NOT NULL DEFAULT 0,
			staged INTEGER NOT NULL DEFAULT 0,
			advisories INTEGER NOT NULL DEFAULT 0
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create pipeline_run table: %w", err)
	}

	return &Ledger{db: db}, nil
}

// Close closes the underlying database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// StartRun inserts a new run row and returns it.
func (l *Ledger) StartRun(stage, label string) (*Run, error) {
	run := &Run{
		Stage:     stage,
		Label:     label,
		StartedAt: time.Now().UTC(),
	}

	result, err := l.db.Exec(`
		INSERT INTO pipeline_run (stage, run_label, started_at)
		VALUES (?, ?, ?)
	`, run.Stage, run.Label, run.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	run.ID, err = result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read run id: %w", err)
	}

	return run, nil
}

// CompleteRun marks a run completed with its final counters.
func (l *Ledger) CompleteRun(run *Run) error {
	now := time.Now().UTC()
	run.CompletedAt = &now

	_, err := l.db.Exec(`
		UPDATE pipeline_run
		SET completed_at = ?, processed = ?, kept = ?, dropped = ?, staged = ?, advisories = ?
		WHERE run_id = ?
	`, now, run.Processed, run.Kept, run.Dropped, run.Staged, run.Advisories, run.ID)
	if err != nil {
		return fmt.Errorf("failed to complete run %d: %w", run.ID, err)
	}

	return nil
}

// RecentRuns returns the most recent runs, newest first.
func (l *Ledger) RecentRuns(limit int) ([]Run, error) {
	rows, err := l.db.Query(`
		SELECT run_id, stage, run_label, started_at, completed_at,
		       processed, kept, dropped, staged, advisories
		FROM pipeline_run
		ORDER BY run_id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		if err := rows.Scan(
			&run.ID, &run.Stage, &run.Label, &run.StartedAt, &run.CompletedAt,
			&run.Processed, &run.Kept, &run.Dropped, &run.Staged, &run.Advisories,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}
