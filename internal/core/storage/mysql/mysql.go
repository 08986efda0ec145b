// Package mysql registers the "mysql" source and sink kinds.
package mysql

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aevon-lab/cohort/internal/core/row"
	"github.com/aevon-lab/cohort/internal/core/storage/sqldb"
	driver "github.com/go-sql-driver/mysql"
)

// Dialect renders ? placeholders and backtick-quoted identifiers.
var Dialect = sqldb.Dialect{
	Name:        "mysql",
	Driver:      "mysql",
	Placeholder: sqldb.Question,
	QuoteIdent:  sqldb.QuoteBacktick,
	ColumnType:  columnType,
}

// openDB is a test hook that points to Open by default.
var openDB = Open

func init() {
	sqldb.Register(Dialect, func(ctx context.Context, dsn string, maxOpenConns, maxIdleConns int) (*sql.DB, error) {
		return openDB(ctx, dsn, maxOpenConns, maxIdleConns)
	})
}

// Open normalizes dsn and opens a pool.
func Open(ctx context.Context, dsn string, maxOpenConns, maxIdleConns int) (*sql.DB, error) {
	normalized, err := NormalizeDSN(dsn)
	if err != nil {
		return nil, err
	}
	return sqldb.Open(ctx, Dialect.Driver, normalized, maxOpenConns, maxIdleConns)
}

// NormalizeDSN turns on parseTime so DATETIME columns scan as time.Time.
func NormalizeDSN(dsn string) (string, error) {
	cfg, err := driver.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("mysql: invalid dsn: %w", err)
	}
	cfg.ParseTime = true
	return cfg.FormatDSN(), nil
}

func columnType(k row.Kind) string {
	switch k {
	case row.KindInt:
		return "BIGINT"
	case row.KindDecimal:
		return "DECIMAL(38,10)"
	case row.KindTime:
		return "DATETIME(6)"
	case row.KindBool:
		return "BOOLEAN"
	}
	return "TEXT"
}
