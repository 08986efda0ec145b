package postgres

// SQL queries for the run audit store

const (
	// queryRunsTableExists backs schema validation at startup.
	queryRunsTableExists = `
		SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_name = 'report_runs'
		)
	`

	// queryInsertRun records one run. ON CONFLICT keeps retries idempotent.
	queryInsertRun = `
		INSERT INTO report_runs (
			id, pipeline, fingerprint, status,
			rows_read, group_count, rows_emitted, error,
			started_at, finished_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`

	// queryListRuns returns the latest runs of one pipeline, newest first.
	queryListRuns = `
		SELECT
			id, pipeline, fingerprint, status,
			rows_read, group_count, rows_emitted, error,
			started_at, finished_at
		FROM report_runs
		WHERE pipeline = $1
		ORDER BY started_at DESC
		LIMIT $2
	`

	// queryListAllRuns is queryListRuns without the pipeline filter.
	queryListAllRuns = `
		SELECT
			id, pipeline, fingerprint, status,
			rows_read, group_count, rows_emitted, error,
			started_at, finished_at
		FROM report_runs
		ORDER BY started_at DESC
		LIMIT $1
	`
)
