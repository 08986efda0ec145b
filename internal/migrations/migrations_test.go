package migrations

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationFiles_ArePaired(t *testing.T) {
	up, err := fs.Glob(MigrationFiles, "*.up.sql")
	require.NoError(t, err)
	down, err := fs.Glob(MigrationFiles, "*.down.sql")
	require.NoError(t, err)

	require.NotEmpty(t, up)
	assert.Len(t, down, len(up))
}

func TestMigrationFiles_CreateRunsTable(t *testing.T) {
	body, err := fs.ReadFile(MigrationFiles, "000001_create_report_runs.up.sql")
	require.NoError(t, err)
	for _, col := range []string{"id", "pipeline", "fingerprint", "status", "rows_read", "group_count", "rows_emitted", "error", "started_at", "finished_at"} {
		assert.Contains(t, string(body), col)
	}
}
