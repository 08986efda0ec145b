package file

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/aevon-lab/cohort/internal/core/row"
)

// JSONLSink writes one JSON object per row with keys in column order.
type JSONLSink struct {
	path string
	out  io.WriteCloser
	buf  *bufio.Writer
}

// NewJSONLSink creates or truncates path.
func NewJSONLSink(path string) (*JSONLSink, error) {
	out, err := createWriter(path)
	if err != nil {
		return nil, fmt.Errorf("jsonl sink: %w", err)
	}
	return &JSONLSink{path: path, out: out, buf: bufio.NewWriter(out)}, nil
}

func (s *JSONLSink) Write(ctx context.Context, columns []string, rows []row.Row) (int, error) {
	enc := json.NewEncoder(s.buf)
	written := 0
	for _, r := range rows {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		if err := enc.Encode(r.Project(columns...)); err != nil {
			return written, fmt.Errorf("jsonl sink %s: %w", s.path, err)
		}
		written++
	}
	if err := s.buf.Flush(); err != nil {
		return 0, fmt.Errorf("jsonl sink %s: flush: %w", s.path, err)
	}
	return written, nil
}

func (s *JSONLSink) Close() error {
	if err := s.buf.Flush(); err != nil {
		s.out.Close()
		return err
	}
	return s.out.Close()
}
