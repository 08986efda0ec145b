package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

const connectPingTimeout = 5 * time.Second

// Open opens a pool for driver and verifies it with a ping.
func Open(ctx context.Context, driver, dsn string, maxOpenConns, maxIdleConns int) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%s: dsn must not be empty", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}

	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
	}
	if maxIdleConns > 0 {
		db.SetMaxIdleConns(maxIdleConns)
	}
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, connectPingTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w", driver, err)
	}

	slog.Debug("[SQL] Connection pool configured",
		"driver", driver,
		"max_open_conns", maxOpenConns,
		"max_idle_conns", maxIdleConns)
	return db, nil
}
