package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/aevon-lab/cohort/internal/core/predicate"
	"github.com/aevon-lab/cohort/internal/core/row"
	"github.com/aevon-lab/cohort/internal/core/storage"
	"github.com/aevon-lab/cohort/internal/core/storage/sqldb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubOpenDB(t *testing.T) sqlmock.Sqlmock {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	orig := openDB
	t.Cleanup(func() { openDB = orig })

	openDB = func(ctx context.Context, dsn string, maxOpenConns, maxIdleConns int) (*sql.DB, error) {
		require.Equal(t, "postgres://reports", dsn)
		return db, nil
	}
	return mock
}

func TestRegistration_SourceUsesOpenHook(t *testing.T) {
	mock := stubOpenDB(t)
	ctx := context.Background()

	src, err := storage.OpenSource(ctx, storage.SourceDescriptor{
		Kind:    "postgres",
		DSN:     "postgres://reports",
		Table:   "public.orders",
		Columns: []string{"user_id"},
		Filter: predicate.Conjunction{
			{Column: "status", Predicate: predicate.Ne(row.String("void"))},
		},
	})
	require.NoError(t, err)
	require.IsType(t, &sqldb.Source{}, src)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "user_id" FROM "public"."orders" WHERE "status" <> $1`)).
		WithArgs("void").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(int64(7)))
	mock.ExpectClose()

	it, err := src.Fetch(ctx)
	require.NoError(t, err)
	rows, err := row.Collect(it)
	require.NoError(t, err)
	require.NoError(t, it.Close())
	require.Len(t, rows, 1)
	assert.Equal(t, int64(7), rows[0].Value("user_id").Any())

	require.NoError(t, src.Close())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistration_SinkRequiresTable(t *testing.T) {
	stubOpenDB(t)

	_, err := storage.OpenSink(context.Background(), storage.TargetDescriptor{
		Kind: "postgres",
		DSN:  "postgres://reports",
	})
	require.Error(t, err)
}

func TestColumnType(t *testing.T) {
	assert.Equal(t, "BIGINT", columnType(row.KindInt))
	assert.Equal(t, "NUMERIC", columnType(row.KindDecimal))
	assert.Equal(t, "TIMESTAMPTZ", columnType(row.KindTime))
	assert.Equal(t, "BOOLEAN", columnType(row.KindBool))
	assert.Equal(t, "TEXT", columnType(row.KindString))
}

func newRunsAdapter(t *testing.T) (*RunsAdapter, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta(queryRunsTableExists)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectPrepare(regexp.QuoteMeta(queryInsertRun))

	adapter, err := NewRunsAdapterFromDB(context.Background(), db)
	require.NoError(t, err)
	return adapter, mock
}

func TestRunsAdapter_RecordRun(t *testing.T) {
	adapter, mock := newRunsAdapter(t)
	started := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	finished := started.Add(2 * time.Second)

	tests := []struct {
		name    string
		run     storage.Run
		errArg  any
		execErr error
		wantErr bool
	}{
		{
			name: "success",
			run: storage.Run{
				Pipeline: "orders_per_user", Fingerprint: "fp", Status: storage.RunSucceeded,
				RowsRead: 3, Groups: 2, RowsEmitted: 2, StartedAt: started, FinishedAt: finished,
			},
			errArg: nil,
		},
		{
			name: "failed run keeps error text",
			run: storage.Run{
				ID: "run-2", Pipeline: "orders_per_user", Fingerprint: "fp", Status: storage.RunFailed,
				Error: "source postgres: query failed", StartedAt: started, FinishedAt: finished,
			},
			errArg: "source postgres: query failed",
		},
		{
			name: "exec error is wrapped",
			run: storage.Run{
				ID: "run-3", Pipeline: "orders_per_user", Status: storage.RunSucceeded,
				StartedAt: started, FinishedAt: finished,
			},
			errArg:  nil,
			execErr: errors.New("connection refused"),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := mock.ExpectExec(regexp.QuoteMeta(queryInsertRun)).WithArgs(
				sqlmock.AnyArg(),
				tt.run.Pipeline,
				tt.run.Fingerprint,
				tt.run.Status,
				tt.run.RowsRead,
				tt.run.Groups,
				tt.run.RowsEmitted,
				tt.errArg,
				tt.run.StartedAt,
				tt.run.FinishedAt,
			)
			if tt.execErr != nil {
				exec.WillReturnError(tt.execErr)
			} else {
				exec.WillReturnResult(sqlmock.NewResult(0, 1))
			}

			err := adapter.RecordRun(context.Background(), tt.run)
			if tt.wantErr {
				require.ErrorIs(t, err, tt.execErr)
				return
			}
			require.NoError(t, err)
		})
	}
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunsAdapter_ListRuns(t *testing.T) {
	adapter, mock := newRunsAdapter(t)
	started := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	cols := []string{
		"id", "pipeline", "fingerprint", "status",
		"rows_read", "group_count", "rows_emitted", "error",
		"started_at", "finished_at",
	}
	mock.ExpectQuery(regexp.QuoteMeta(queryListRuns)).
		WithArgs("orders_per_user", defaultRunsLimit).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("run-2", "orders_per_user", "fp", "failed", int64(0), int64(0), int64(0), "boom", started, started).
			AddRow("run-1", "orders_per_user", "fp", "succeeded", int64(3), int64(2), int64(2), nil, started, started))

	runs, err := adapter.ListRuns(context.Background(), "orders_per_user", 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "boom", runs[0].Error)
	assert.Equal(t, int64(2), runs[1].Groups)
	assert.Empty(t, runs[1].Error)

	mock.ExpectQuery(regexp.QuoteMeta(queryListAllRuns)).
		WithArgs(5).
		WillReturnError(errors.New("timeout"))
	_, err = adapter.ListRuns(context.Background(), "", 5)
	require.Error(t, err)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewRunsAdapterFromDB_MissingTable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(queryRunsTableExists)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	_, err = NewRunsAdapterFromDB(context.Background(), db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "report_runs table does not exist")
}

func TestRunsAdapter_PingAndClose(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta(queryRunsTableExists)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectPrepare(regexp.QuoteMeta(queryInsertRun))
	adapter, err := NewRunsAdapterFromDB(context.Background(), db)
	require.NoError(t, err)

	mock.ExpectPing()
	require.NoError(t, adapter.Ping(context.Background()))

	mock.ExpectClose()

	require.NoError(t, adapter.Close())
	require.NoError(t, mock.ExpectationsWereMet())
}
