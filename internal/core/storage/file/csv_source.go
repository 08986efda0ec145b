package file

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	coreerrors "github.com/aevon-lab/cohort/internal/core/errors"
	"github.com/aevon-lab/cohort/internal/core/predicate"
	"github.com/aevon-lab/cohort/internal/core/row"
	"github.com/aevon-lab/cohort/internal/core/storage"
)

const utf8BOM = "\uFEFF"

// CSVSource reads a CSV file whose first record is the header. Cells are typed
// by the descriptor's declared types and inferred otherwise; empty cells are
// null. Filter conditions are applied while reading.
type CSVSource struct {
	path    string
	columns []string
	types   map[string]row.Type
	filter  predicate.Conjunction
}

// NewCSVSource validates the descriptor.
func NewCSVSource(d storage.SourceDescriptor) (*CSVSource, error) {
	if strings.TrimSpace(d.Path) == "" {
		return nil, fmt.Errorf("csv: source path must not be empty")
	}
	return &CSVSource{path: d.Path, columns: d.Columns, types: d.Types, filter: d.Filter}, nil
}

func (s *CSVSource) name() string { return "csv:" + s.path }

// Fetch opens the file and reads the header. Each call starts from the top.
func (s *CSVSource) Fetch(ctx context.Context) (storage.RowIterator, error) {
	rc, err := openReader(s.path)
	if err != nil {
		return nil, &coreerrors.SourceError{Source: s.name(), Reason: "open failed", Err: err}
	}

	r := csv.NewReader(rc)
	r.ReuseRecord = true
	header, err := r.Read()
	if err != nil {
		rc.Close()
		if errors.Is(err, io.EOF) {
			err = fmt.Errorf("missing header row")
		}
		return nil, &coreerrors.SourceError{Source: s.name(), Reason: "read header", Err: err}
	}
	names := make([]string, len(header))
	for i, h := range header {
		names[i] = strings.TrimSpace(strings.TrimPrefix(h, utf8BOM))
	}
	fileHeader := row.NewHeader(names...)

	for _, c := range append(append([]string(nil), s.columns...), s.filter.Columns()...) {
		if !fileHeader.Has(c) {
			rc.Close()
			return nil, &coreerrors.SourceError{Source: s.name(), Reason: "read header", Err: fmt.Errorf("unknown column %q", c)}
		}
	}
	out := fileHeader
	if len(s.columns) > 0 {
		out = row.NewHeader(s.columns...)
	}

	types := make([]row.Type, len(names))
	for i, n := range names {
		types[i] = s.types[n]
	}
	return &csvIterator{
		ctx:    ctx,
		source: s.name(),
		rc:     rc,
		r:      r,
		in:     fileHeader,
		out:    out,
		types:  types,
		filter: s.filter,
		line:   1,
	}, nil
}

func (s *CSVSource) Close() error { return nil }

type csvIterator struct {
	ctx    context.Context
	source string
	rc     io.ReadCloser
	r      *csv.Reader
	in     *row.Header
	out    *row.Header
	types  []row.Type
	filter predicate.Conjunction
	line   int
	cur    row.Row
	err    error
	closed bool
}

func (it *csvIterator) Columns() []string { return it.out.Names() }

func (it *csvIterator) Next() bool {
	for {
		if it.closed || it.err != nil {
			return false
		}
		if err := it.ctx.Err(); err != nil {
			it.fail("cancelled", err)
			return false
		}
		record, err := it.r.Read()
		if errors.Is(err, io.EOF) {
			it.Close()
			return false
		}
		it.line++
		if err != nil {
			it.fail("malformed row", err)
			return false
		}
		if len(record) != it.in.Len() {
			it.fail("malformed row", fmt.Errorf("line %d: %d fields, header has %d", it.line, len(record), it.in.Len()))
			return false
		}

		vals := make([]row.Value, len(record))
		for i, cell := range record {
			v, err := row.Parse(cell, it.types[i])
			if err != nil {
				it.fail("malformed row", fmt.Errorf("line %d column %s: %w", it.line, it.in.Names()[i], err))
				return false
			}
			vals[i] = v
		}
		r := row.New(it.in, vals...)
		if !it.filter.Match(r) {
			continue
		}
		if it.out != it.in {
			projected := make([]row.Value, it.out.Len())
			for j, n := range it.out.Names() {
				projected[j] = r.Value(n)
			}
			r = row.New(it.out, projected...)
		}
		it.cur = r
		return true
	}
}

func (it *csvIterator) fail(reason string, err error) {
	it.err = &coreerrors.SourceError{Source: it.source, Reason: reason, Err: err}
	it.Close()
}

func (it *csvIterator) Row() row.Row { return it.cur }
func (it *csvIterator) Err() error   { return it.err }

func (it *csvIterator) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	return it.rc.Close()
}
