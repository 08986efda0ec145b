package storage

import (
	"context"
	"time"
)

// Run statuses recorded in the run audit store.
const (
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// Run is one recorded pipeline execution.
type Run struct {
	ID          string    `json:"id"`
	Pipeline    string    `json:"pipeline"`
	Fingerprint string    `json:"fingerprint"`
	Status      string    `json:"status"`
	RowsRead    int64     `json:"rows_read"`
	Groups      int64     `json:"groups"`
	RowsEmitted int64     `json:"rows_emitted"`
	Error       string    `json:"error,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

// RunStore persists run records.
type RunStore interface {
	RecordRun(ctx context.Context, run Run) error
	ListRuns(ctx context.Context, pipeline string, limit int) ([]Run, error)
	Close() error
}
