// Package memory registers the "memory" source and sink and the "pipeline"
// source, which reads the rows an upstream pipeline emitted.
package memory

import (
	"context"
	"fmt"

	coreerrors "github.com/aevon-lab/cohort/internal/core/errors"
	"github.com/aevon-lab/cohort/internal/core/predicate"
	"github.com/aevon-lab/cohort/internal/core/row"
	"github.com/aevon-lab/cohort/internal/core/storage"
)

func init() {
	storage.RegisterSource("memory", newSource("memory"))
	storage.RegisterSource("pipeline", newSource("pipeline"))
	storage.RegisterSink("memory", func(_ context.Context, d storage.TargetDescriptor) (storage.Sink, error) {
		if d.Memory == nil {
			return nil, fmt.Errorf("memory sink: no table attached")
		}
		return &Sink{table: d.Memory}, nil
	})
}

func newSource(kind string) storage.SourceFactory {
	return func(_ context.Context, d storage.SourceDescriptor) (storage.RowSource, error) {
		if d.Memory == nil {
			if kind == "pipeline" {
				return nil, fmt.Errorf("pipeline source %q: upstream output not available", d.Pipeline)
			}
			return nil, fmt.Errorf("memory source: no table attached")
		}
		name := kind
		if d.Pipeline != "" {
			name = kind + ":" + d.Pipeline
		}
		return &Source{name: name, table: d.Memory, columns: d.Columns, filter: d.Filter}, nil
	}
}

// Source iterates a snapshot of a Table taken at Fetch time.
type Source struct {
	name    string
	table   *storage.Table
	columns []string
	filter  predicate.Conjunction
}

// NewSource reads from table with an optional projection and filter.
func NewSource(table *storage.Table, columns []string, filter predicate.Conjunction) *Source {
	return &Source{name: "memory", table: table, columns: columns, filter: filter}
}

func (s *Source) Fetch(ctx context.Context) (storage.RowIterator, error) {
	cols, rows := s.table.Snapshot()
	known := row.NewHeader(cols...)
	for _, c := range s.columns {
		if !known.Has(c) {
			return nil, &coreerrors.SourceError{Source: s.name, Reason: "unknown column", Err: fmt.Errorf("%q", c)}
		}
	}
	if err := s.filter.Validate(known.Has); err != nil {
		return nil, &coreerrors.SourceError{Source: s.name, Reason: "invalid filter", Err: err}
	}

	out := cols
	if len(s.columns) > 0 {
		out = s.columns
	}
	h := row.NewHeader(out...)

	selected := make([]row.Row, 0, len(rows))
	for _, r := range rows {
		if !s.filter.Match(r) {
			continue
		}
		vals := make([]row.Value, h.Len())
		for i, n := range out {
			vals[i] = r.Value(n)
		}
		selected = append(selected, row.New(h, vals...))
	}
	return row.NewSliceIterator(out, selected), nil
}

func (s *Source) Close() error { return nil }

// Sink appends to a Table.
type Sink struct {
	table *storage.Table
}

// NewSink appends to table.
func NewSink(table *storage.Table) *Sink { return &Sink{table: table} }

func (s *Sink) Write(_ context.Context, columns []string, rows []row.Row) (int, error) {
	s.table.Append(columns, rows)
	return len(rows), nil
}

func (s *Sink) Close() error { return nil }
