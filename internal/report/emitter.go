// Package report emits aggregated rows to a sink.
package report

import (
	"context"
	"errors"
	"log/slog"

	coreerrors "github.com/aevon-lab/cohort/internal/core/errors"
	"github.com/aevon-lab/cohort/internal/core/row"
	"github.com/aevon-lab/cohort/internal/core/storage"
)

// Emitter writes rows to one sink in order.
type Emitter struct {
	name string
	sink storage.Sink
}

// NewEmitter wraps sink; name identifies it in errors and logs.
func NewEmitter(name string, sink storage.Sink) *Emitter {
	return &Emitter{name: name, sink: sink}
}

// Emit writes rows and returns how many the sink accepted. On failure the
// error is a *SinkError carrying that count.
func (e *Emitter) Emit(ctx context.Context, columns []string, rows []row.Row) (int, error) {
	n, err := e.sink.Write(ctx, columns, rows)
	if err != nil {
		reason := "write failed"
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "timed out"
		}
		slog.Error("[Emitter] Sink write failed",
			"sink", e.name,
			"rows_emitted", n,
			"rows_total", len(rows),
			"error", err,
		)
		return n, &coreerrors.SinkError{Sink: e.name, Reason: reason, RowsEmitted: n, Err: err}
	}
	return n, nil
}

// Close closes the sink. A close failure after rows were written means they
// may not be durable, so it is reported as a SinkError too.
func (e *Emitter) Close(rowsEmitted int) error {
	if err := e.sink.Close(); err != nil {
		return &coreerrors.SinkError{Sink: e.name, Reason: "close failed", RowsEmitted: rowsEmitted, Err: err}
	}
	return nil
}
