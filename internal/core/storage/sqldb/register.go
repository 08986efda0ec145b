package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/aevon-lab/cohort/internal/core/storage"
)

// OpenFunc opens a connection pool for a descriptor's DSN.
type OpenFunc func(ctx context.Context, dsn string, maxOpenConns, maxIdleConns int) (*sql.DB, error)

// Register wires the dialect's source and sink into the storage factory under
// d.Name. Each source or sink owns the pool that open returns.
func Register(d Dialect, open OpenFunc) {
	storage.RegisterSource(d.Name, func(ctx context.Context, desc storage.SourceDescriptor) (storage.RowSource, error) {
		if strings.TrimSpace(desc.Table) == "" {
			return nil, fmt.Errorf("%s: source table must not be empty", d.Name)
		}
		db, err := open(ctx, desc.DSN, desc.MaxOpenConns, desc.MaxIdleConns)
		if err != nil {
			return nil, err
		}
		return NewSource(db, d, desc, true), nil
	})

	storage.RegisterSink(d.Name, func(ctx context.Context, desc storage.TargetDescriptor) (storage.Sink, error) {
		if strings.TrimSpace(desc.Table) == "" {
			return nil, fmt.Errorf("%s: sink table must not be empty", d.Name)
		}
		db, err := open(ctx, desc.DSN, desc.MaxOpenConns, desc.MaxIdleConns)
		if err != nil {
			return nil, err
		}
		return NewSink(db, d, desc, true), nil
	})
}
