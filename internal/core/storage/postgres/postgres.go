// Package postgres registers the "postgres" source and sink kinds and
// implements the run audit store on PostgreSQL.
package postgres

import (
	"context"
	"database/sql"

	"github.com/aevon-lab/cohort/internal/core/row"
	"github.com/aevon-lab/cohort/internal/core/storage/sqldb"
	"github.com/lib/pq" // Register postgres driver
)

// Dialect renders $n placeholders and quotes identifiers with pq.QuoteIdentifier.
var Dialect = sqldb.Dialect{
	Name:        "postgres",
	Driver:      "postgres",
	Placeholder: sqldb.Dollar,
	QuoteIdent:  pq.QuoteIdentifier,
	ColumnType:  columnType,
}

// openDB is a test hook that points to sqldb.Open by default.
var openDB = func(ctx context.Context, dsn string, maxOpenConns, maxIdleConns int) (*sql.DB, error) {
	return sqldb.Open(ctx, Dialect.Driver, dsn, maxOpenConns, maxIdleConns)
}

func init() {
	sqldb.Register(Dialect, func(ctx context.Context, dsn string, maxOpenConns, maxIdleConns int) (*sql.DB, error) {
		return openDB(ctx, dsn, maxOpenConns, maxIdleConns)
	})
}

func columnType(k row.Kind) string {
	switch k {
	case row.KindInt:
		return "BIGINT"
	case row.KindDecimal:
		return "NUMERIC"
	case row.KindTime:
		return "TIMESTAMPTZ"
	case row.KindBool:
		return "BOOLEAN"
	}
	return "TEXT"
}
