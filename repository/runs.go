package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/guiasync/tracking-reconciler/common/db"
)

// ScrapeRun is one row of run history.
type ScrapeRun struct {
	ID         string
	StartedAt  time.Time
	FinishedAt *time.Time
	Total      int
	Resolved   int
	Empty      int
	Command    string
}

const schema = `
CREATE TABLE IF NOT EXISTS scrape_runs (
	id UUID PRIMARY KEY,
	started_at TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ,
	total INTEGER NOT NULL DEFAULT 0,
	resolved INTEGER NOT NULL DEFAULT 0,
	empty INTEGER NOT NULL DEFAULT 0,
	command TEXT NOT NULL DEFAULT ''
)`

// RunRepository persists scrape run history.
type RunRepository struct {
	db *db.DB
}

// NewRunRepository creates a run repository over an open database handle.
func NewRunRepository(database *db.DB) *RunRepository {
	return &RunRepository{db: database}
}

// EnsureSchema creates the run-history table if it does not exist.
func (r *RunRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("creating scrape_runs table: %w", err)
	}
	return nil
}

// Create inserts a new run row and returns it with a fresh ID.
func (r *RunRepository) Create(ctx context.Context, command string, total int) (*ScrapeRun, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}

	run := &ScrapeRun{
		ID:        id.String(),
		StartedAt: time.Now().UTC(),
		Total:     total,
		Command:   command,
	}

	_, err = r.db.Pool.Exec(ctx,
		`INSERT INTO scrape_runs (id, started_at, total, command) VALUES ($1, $2, $3, $4)`,
		run.ID, run.StartedAt, run.Total, run.Command,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting scrape run: %w", err)
	}
	return run, nil
}

// Finish stamps the run as completed with its final counters.
func (r *RunRepository) Finish(ctx context.Context, runID string, total, resolved, empty int) error {
	now := time.Now().UTC()
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE scrape_runs SET finished_at = $2, total = $3, resolved = $4, empty = $5 WHERE id = $1`,
		runID, now, total, resolved, empty,
	)
	if err != nil {
		return fmt.Errorf("finishing scrape run: %w", err)
	}
	return nil
}

// Latest returns the most recent runs, newest first.
func (r *RunRepository) Latest(ctx context.Context, limit int) ([]ScrapeRun, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT id, started_at, finished_at, total, resolved, empty, command
		 FROM scrape_runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying scrape runs: %w", err)
	}
	defer rows.Close()

	var runs []ScrapeRun
	for rows.Next() {
		var run ScrapeRun
		if err := rows.Scan(&run.ID, &run.StartedAt, &run.FinishedAt, &run.Total, &run.Resolved, &run.Empty, &run.Command); err != nil {
			return nil, fmt.Errorf("scanning scrape run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
