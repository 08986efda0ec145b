package sqldb

import (
	"context"
	"database/sql"
	"fmt"

	coreerrors "github.com/aevon-lab/cohort/internal/core/errors"
	"github.com/aevon-lab/cohort/internal/core/row"
	"github.com/aevon-lab/cohort/internal/core/storage"
)

// Source reads rows with a SELECT built from a source descriptor.
type Source struct {
	db      *sql.DB
	dialect Dialect
	desc    storage.SourceDescriptor
	ownsDB  bool
}

// NewSource wraps db. When ownsDB is set, Close closes the pool.
func NewSource(db *sql.DB, dialect Dialect, d storage.SourceDescriptor, ownsDB bool) *Source {
	return &Source{db: db, dialect: dialect, desc: d, ownsDB: ownsDB}
}

func (s *Source) name() string {
	return s.dialect.Name + ":" + s.desc.Table
}

// Fetch runs the query. Each call re-queries from the start.
func (s *Source) Fetch(ctx context.Context) (storage.RowIterator, error) {
	query, args, err := BuildSelect(s.dialect, s.desc.Table, s.desc.Columns, s.desc.Filter)
	if err != nil {
		return nil, &coreerrors.SourceError{Source: s.name(), Reason: "invalid query", Err: err}
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &coreerrors.SourceError{Source: s.name(), Reason: "query failed", Err: err}
	}
	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, &coreerrors.SourceError{Source: s.name(), Reason: "read columns", Err: err}
	}

	types := make([]row.Type, len(cols))
	for i, c := range cols {
		types[i] = s.desc.Types[c]
	}
	return &rowsIterator{
		source: s.name(),
		rows:   rows,
		header: row.NewHeader(cols...),
		types:  types,
		raw:    make([]any, len(cols)),
	}, nil
}

func (s *Source) Close() error {
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}

type rowsIterator struct {
	source string
	rows   *sql.Rows
	header *row.Header
	types  []row.Type
	raw    []any
	cur    row.Row
	err    error
	closed bool
}

func (it *rowsIterator) Columns() []string { return it.header.Names() }

func (it *rowsIterator) Next() bool {
	if it.closed || it.err != nil {
		return false
	}
	if !it.rows.Next() {
		if err := it.rows.Err(); err != nil {
			it.err = &coreerrors.SourceError{Source: it.source, Reason: "iterate rows", Err: err}
		}
		it.Close()
		return false
	}

	dest := make([]any, len(it.raw))
	for i := range it.raw {
		dest[i] = &it.raw[i]
	}
	if err := it.rows.Scan(dest...); err != nil {
		it.err = &coreerrors.SourceError{Source: it.source, Reason: "scan row", Err: err}
		it.Close()
		return false
	}

	vals := make([]row.Value, len(it.raw))
	for i, raw := range it.raw {
		v, err := convert(raw, it.types[i])
		if err != nil {
			it.err = &coreerrors.SourceError{
				Source: it.source,
				Reason: "malformed row",
				Err:    fmt.Errorf("column %s: %w", it.header.Names()[i], err),
			}
			it.Close()
			return false
		}
		vals[i] = v
	}
	it.cur = row.New(it.header, vals...)
	return true
}

// convert applies a declared type to text values; everything else goes
// through row.FromAny.
func convert(raw any, t row.Type) (row.Value, error) {
	if t == row.TypeAuto {
		return row.FromAny(raw), nil
	}
	switch v := raw.(type) {
	case []byte:
		return row.Parse(string(v), t)
	case string:
		return row.Parse(v, t)
	}
	return row.FromAny(raw), nil
}

func (it *rowsIterator) Row() row.Row { return it.cur }
func (it *rowsIterator) Err() error   { return it.err }

func (it *rowsIterator) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	return it.rows.Close()
}
