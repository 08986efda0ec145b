package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/aevon-lab/cohort/internal/core/row"
	"github.com/aevon-lab/cohort/internal/core/storage"
)

const defaultBatchSize = 500

// Sink inserts rows into a table, one transaction per batch. Rows of a failed
// batch are rolled back, so the reported count is exactly the committed rows.
type Sink struct {
	db          *sql.DB
	dialect     Dialect
	table       string
	createTable bool
	batchSize   int
	ownsDB      bool
	created     bool
}

// NewSink wraps db. When ownsDB is set, Close closes the pool.
func NewSink(db *sql.DB, dialect Dialect, d storage.TargetDescriptor, ownsDB bool) *Sink {
	batch := d.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	return &Sink{
		db:          db,
		dialect:     dialect,
		table:       d.Table,
		createTable: d.CreateTable,
		batchSize:   batch,
		ownsDB:      ownsDB,
	}
}

// Write inserts rows in order and returns how many were committed.
func (s *Sink) Write(ctx context.Context, columns []string, rows []row.Row) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if s.createTable && !s.created {
		ddl, err := BuildCreate(s.dialect, s.table, columns, rows)
		if err != nil {
			return 0, err
		}
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return 0, fmt.Errorf("%s: create table %s: %w", s.dialect.Name, s.table, err)
		}
		s.created = true
	}

	insert, err := BuildInsert(s.dialect, s.table, columns)
	if err != nil {
		return 0, err
	}

	written := 0
	for start := 0; start < len(rows); start += s.batchSize {
		end := start + s.batchSize
		if end > len(rows) {
			end = len(rows)
		}
		if err := s.writeBatch(ctx, insert, columns, rows[start:end]); err != nil {
			return written, err
		}
		written += end - start
	}

	slog.Debug("[SQL] Rows inserted", "backend", s.dialect.Name, "table", s.table, "rows", written)
	return written, nil
}

func (s *Sink) writeBatch(ctx context.Context, insert string, columns []string, rows []row.Row) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin tx: %w", s.dialect.Name, err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return fmt.Errorf("%s: prepare insert: %w", s.dialect.Name, err)
	}
	defer stmt.Close()

	args := make([]any, len(columns))
	for _, r := range rows {
		for i, c := range columns {
			args[i] = r.Value(c).Any()
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("%s: insert: %w", s.dialect.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", s.dialect.Name, err)
	}
	return nil
}

func (s *Sink) Close() error {
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}
