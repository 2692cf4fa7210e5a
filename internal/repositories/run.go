package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vishkrish200/spotify-organiser/internal/models"
	"github.com/vishkrish200/spotify-organiser/internal/shared"
)

// RunRepository implements models.Repository[*models.IngestRun].
//
// Run rows back the status command and the minimum-interval skip check.
type RunRepository struct {
	db *sql.DB
}

// NewRunRepository creates a new RunRepository with the given database connection
func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

const runColumns = `id, sequence, started_at, finished_at, status, items_processed, items_dropped, error_count, backpressure_events, created_at, updated_at`

// Create inserts a new [models.IngestRun] with generated ID and sequence
func (r *RunRepository) Create(run *models.IngestRun) error {
	sequence, err := NextSequence(r.db, "ingest_runs")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	run.SetID(shared.GenerateID())
	run.SetSequence(sequence)

	if err := run.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT INTO ingest_runs (id, sequence, started_at, finished_at, status, items_processed, items_dropped, error_count, backpressure_events, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var finished any
	if at := run.FinishedAt(); at != nil {
		finished = *at
	}

	_, err = r.db.Exec(query,
		run.ID(),
		sequence,
		run.StartedAt(),
		finished,
		run.Status(),
		run.ItemsProcessed(),
		run.ItemsDropped(),
		run.ErrorCount(),
		run.BackpressureEvents(),
		run.CreatedAt(),
		run.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	return nil
}

// Get retrieves a run by ID
func (r *RunRepository) Get(id string) (*models.IngestRun, error) {
	query := `SELECT ` + runColumns + ` FROM ingest_runs WHERE id = ?`
	return scanRun(r.db.QueryRow(query, id))
}

// Update persists a run's mutable fields, typically after Finish.
func (r *RunRepository) Update(run *models.IngestRun) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	run.Touch()

	query := `
		UPDATE ingest_runs
		SET finished_at = ?, status = ?, items_processed = ?, items_dropped = ?, error_count = ?, backpressure_events = ?, updated_at = ?
		WHERE id = ?
	`

	var finished any
	if at := run.FinishedAt(); at != nil {
		finished = *at
	}

	result, err := r.db.Exec(query,
		finished,
		run.Status(),
		run.ItemsProcessed(),
		run.ItemsDropped(),
		run.ErrorCount(),
		run.BackpressureEvents(),
		run.UpdatedAt(),
		run.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("run not found: %s", run.ID())
	}

	return nil
}

// Delete removes a run row
func (r *RunRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM ingest_runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("run not found: %s", id)
	}

	return nil
}

// List retrieves runs matching the given criteria, newest first
func (r *RunRepository) List(criteria map[string]any) ([]*models.IngestRun, error) {
	query := `SELECT ` + runColumns + ` FROM ingest_runs`
	args := []any{}

	if status, ok := criteria["status"].(string); ok && status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}

	query += " ORDER BY sequence DESC"

	if limit, ok := criteria["limit"].(int); ok && limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.IngestRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return runs, nil
}

// LastCompleted returns the most recent completed run, or nil when no ingest
// has finished yet.
func (r *RunRepository) LastCompleted() (*models.IngestRun, error) {
	query := `SELECT ` + runColumns + ` FROM ingest_runs WHERE status = ? ORDER BY sequence DESC LIMIT 1`

	run, err := scanRun(r.db.QueryRow(query, models.RunStatusCompleted))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return run, nil
}

func scanRun(row rowScanner) (*models.IngestRun, error) {
	var (
		id           string
		sequence     int
		startedAt    time.Time
		finishedAt   sql.NullTime
		status       string
		processed    int
		dropped      int
		errCount     int
		backpressure int
		createdAt    time.Time
		updatedAt    time.Time
	)

	err := row.Scan(&id, &sequence, &startedAt, &finishedAt, &status, &processed, &dropped, &errCount, &backpressure, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run not found: %w", sql.ErrNoRows)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	run := &models.IngestRun{}
	run.Restore(id, sequence, createdAt, updatedAt, nil)

	var finished *time.Time
	if finishedAt.Valid {
		finished = &finishedAt.Time
	}
	run.RestoreRunFields(startedAt, finished, status, processed, dropped, errCount, backpressure)

	return run, nil
}
