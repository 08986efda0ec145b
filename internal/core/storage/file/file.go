// Package file registers the file-backed kinds: the "csv" source and the
// "csv", "jsonl" and "console" sinks. Paths ending in .gz are gzip-compressed.
package file

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aevon-lab/cohort/internal/core/storage"
	"github.com/klauspost/compress/gzip"
)

func init() {
	storage.RegisterSource("csv", func(_ context.Context, d storage.SourceDescriptor) (storage.RowSource, error) {
		return NewCSVSource(d)
	})
	storage.RegisterSink("csv", func(_ context.Context, d storage.TargetDescriptor) (storage.Sink, error) {
		return NewCSVSink(d.Path)
	})
	storage.RegisterSink("jsonl", func(_ context.Context, d storage.TargetDescriptor) (storage.Sink, error) {
		return NewJSONLSink(d.Path)
	})
	storage.RegisterSink("console", func(_ context.Context, d storage.TargetDescriptor) (storage.Sink, error) {
		return NewConsoleSink(d.Writer), nil
	})
}

func compressed(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".gz")
}

type readCloser struct {
	io.Reader
	closers []io.Closer
}

func (r *readCloser) Close() error {
	var firstErr error
	for _, c := range r.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func openReader(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if !compressed(path) {
		return f, nil
	}
	zr, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("gzip %s: %w", path, err)
	}
	return &readCloser{Reader: zr, closers: []io.Closer{zr, f}}, nil
}

type writeCloser struct {
	io.Writer
	closers []io.Closer
}

func (w *writeCloser) Close() error {
	var firstErr error
	for _, c := range w.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func createWriter(path string) (io.WriteCloser, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("path must not be empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	if !compressed(path) {
		return f, nil
	}
	zw := gzip.NewWriter(f)
	return &writeCloser{Writer: zw, closers: []io.Closer{zw, f}}, nil
}
