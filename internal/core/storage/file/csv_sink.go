package file

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/aevon-lab/cohort/internal/core/row"
)

// CSVSink writes a header on the first Write and one record per row. Nulls
// are empty cells.
type CSVSink struct {
	path   string
	out    io.WriteCloser
	w      *csv.Writer
	header bool
}

// NewCSVSink creates or truncates path.
func NewCSVSink(path string) (*CSVSink, error) {
	out, err := createWriter(path)
	if err != nil {
		return nil, fmt.Errorf("csv sink: %w", err)
	}
	return &CSVSink{path: path, out: out, w: csv.NewWriter(out)}, nil
}

func (s *CSVSink) Write(ctx context.Context, columns []string, rows []row.Row) (int, error) {
	if !s.header {
		if err := s.w.Write(columns); err != nil {
			return 0, fmt.Errorf("csv sink %s: write header: %w", s.path, err)
		}
		s.header = true
	}

	record := make([]string, len(columns))
	written := 0
	for _, r := range rows {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		for i, c := range columns {
			record[i] = r.Value(c).String()
		}
		if err := s.w.Write(record); err != nil {
			return written, fmt.Errorf("csv sink %s: %w", s.path, err)
		}
		written++
	}
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return 0, fmt.Errorf("csv sink %s: flush: %w", s.path, err)
	}
	return written, nil
}

func (s *CSVSink) Close() error {
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		s.out.Close()
		return err
	}
	return s.out.Close()
}
