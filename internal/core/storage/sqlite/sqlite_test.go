package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/aevon-lab/cohort/internal/core/predicate"
	"github.com/aevon-lab/cohort/internal/core/row"
	"github.com/aevon-lab/cohort/internal/core/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSinkThenSource_RoundTrip(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "cohort.db")

	sink, err := storage.OpenSink(ctx, storage.TargetDescriptor{
		Kind:        "sqlite",
		DSN:         dsn,
		Table:       "orders",
		CreateTable: true,
		BatchSize:   2,
	})
	require.NoError(t, err)

	h := row.NewHeader("user_id", "amount", "region")
	rows := []row.Row{
		row.New(h, row.Int(1), row.Int(10), row.String("eu")),
		row.New(h, row.Int(1), row.Int(20), row.String("us")),
		row.New(h, row.Int(2), row.Int(5), row.Null()),
	}
	n, err := sink.Write(ctx, h.Names(), rows)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.NoError(t, sink.Close())

	src, err := storage.OpenSource(ctx, storage.SourceDescriptor{
		Kind:    "sqlite",
		DSN:     dsn,
		Table:   "orders",
		Columns: []string{"user_id", "amount"},
		Filter: predicate.Conjunction{
			{Column: "region", Predicate: predicate.NotNull()},
		},
	})
	require.NoError(t, err)
	defer src.Close()

	it, err := src.Fetch(ctx)
	require.NoError(t, err)
	defer it.Close()

	got, err := row.Collect(it)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "{user_id: 1, amount: 10}", got[0].String())
	assert.Equal(t, "{user_id: 1, amount: 20}", got[1].String())
}

func TestOpen_EmptyDSN(t *testing.T) {
	_, err := Open(context.Background(), "", 0, 0)
	require.Error(t, err)
}

func TestColumnType(t *testing.T) {
	assert.Equal(t, "INTEGER", columnType(row.KindInt))
	assert.Equal(t, "TIMESTAMP", columnType(row.KindTime))
}
