package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/aevon-lab/cohort/internal/core/storage"
	"github.com/google/uuid"
)

const defaultRunsLimit = 50

// RunsAdapter implements storage.RunStore for PostgreSQL.
type RunsAdapter struct {
	db         *sql.DB
	stmtInsert *sql.Stmt
}

var _ storage.RunStore = (*RunsAdapter)(nil)

// NewRunsAdapter opens a pool for dsn and prepares the insert statement.
//
// IMPORTANT: the report_runs table must exist; run migrations first.
func NewRunsAdapter(ctx context.Context, dsn string, maxOpenConns, maxIdleConns int) (*RunsAdapter, error) {
	db, err := openDB(ctx, dsn, maxOpenConns, maxIdleConns)
	if err != nil {
		return nil, err
	}
	a, err := NewRunsAdapterFromDB(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

// NewRunsAdapterFromDB validates the schema and prepares statements on an
// existing pool. The adapter takes ownership of db.
func NewRunsAdapterFromDB(ctx context.Context, db *sql.DB) (*RunsAdapter, error) {
	if err := validateSchema(ctx, db); err != nil {
		return nil, fmt.Errorf("schema validation failed - did you run migrations?: %w", err)
	}

	stmt, err := db.PrepareContext(ctx, queryInsertRun)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare insertRun statement: %w", err)
	}

	slog.Info("[Postgres] Run store initialized")
	return &RunsAdapter{db: db, stmtInsert: stmt}, nil
}

func validateSchema(ctx context.Context, db *sql.DB) error {
	var exists bool
	if err := db.QueryRowContext(ctx, queryRunsTableExists).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check schema: %w", err)
	}
	if !exists {
		return fmt.Errorf("report_runs table does not exist")
	}
	return nil
}

// RecordRun inserts run, assigning an ID when it has none.
func (a *RunsAdapter) RecordRun(ctx context.Context, run storage.Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	var runErr sql.NullString
	if run.Error != "" {
		runErr = sql.NullString{String: run.Error, Valid: true}
	}
	_, err := a.stmtInsert.ExecContext(ctx,
		run.ID,
		run.Pipeline,
		run.Fingerprint,
		run.Status,
		run.RowsRead,
		run.Groups,
		run.RowsEmitted,
		runErr,
		run.StartedAt,
		run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", run.ID, err)
	}
	return nil
}

// ListRuns returns the latest runs, newest first. An empty pipeline lists
// every pipeline.
func (a *RunsAdapter) ListRuns(ctx context.Context, pipeline string, limit int) ([]storage.Run, error) {
	if limit <= 0 {
		limit = defaultRunsLimit
	}

	var (
		rows *sql.Rows
		err  error
	)
	if pipeline == "" {
		rows, err = a.db.QueryContext(ctx, queryListAllRuns, limit)
	} else {
		rows, err = a.db.QueryContext(ctx, queryListRuns, pipeline, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []storage.Run
	for rows.Next() {
		var (
			run    storage.Run
			runErr sql.NullString
		)
		if err := rows.Scan(
			&run.ID,
			&run.Pipeline,
			&run.Fingerprint,
			&run.Status,
			&run.RowsRead,
			&run.Groups,
			&run.RowsEmitted,
			&runErr,
			&run.StartedAt,
			&run.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		run.Error = runErr.String
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}

// Ping checks that the run store database is reachable.
func (a *RunsAdapter) Ping(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

// Close releases the prepared statement and the pool.
func (a *RunsAdapter) Close() error {
	var firstErr error
	if a.stmtInsert != nil {
		if err := a.stmtInsert.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := a.db.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
