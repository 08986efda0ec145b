// Package sqlite registers the "sqlite" source and sink kinds using the pure
// Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/aevon-lab/cohort/internal/core/row"
	"github.com/aevon-lab/cohort/internal/core/storage/sqldb"
	_ "modernc.org/sqlite" // Register sqlite driver
)

// Dialect renders ? placeholders and double-quoted identifiers.
var Dialect = sqldb.Dialect{
	Name:        "sqlite",
	Driver:      "sqlite",
	Placeholder: sqldb.Question,
	QuoteIdent:  sqldb.QuoteDouble,
	ColumnType:  columnType,
}

// openDB is a test hook that points to Open by default.
var openDB = Open

func init() {
	sqldb.Register(Dialect, func(ctx context.Context, dsn string, maxOpenConns, maxIdleConns int) (*sql.DB, error) {
		return openDB(ctx, dsn, maxOpenConns, maxIdleConns)
	})
}

// Open opens a sqlite database. A DSN without a scheme is a file path.
func Open(ctx context.Context, dsn string, maxOpenConns, maxIdleConns int) (*sql.DB, error) {
	db, err := sqldb.Open(ctx, Dialect.Driver, dsn, maxOpenConns, maxIdleConns)
	if err != nil {
		return nil, err
	}
	if !strings.Contains(dsn, "mode=ro") {
		_, _ = db.ExecContext(ctx, "PRAGMA busy_timeout = 5000")
	}
	return db, nil
}

func columnType(k row.Kind) string {
	switch k {
	case row.KindInt:
		return "INTEGER"
	case row.KindDecimal:
		return "NUMERIC"
	case row.KindTime:
		return "TIMESTAMP"
	case row.KindBool:
		return "BOOLEAN"
	}
	return "TEXT"
}
