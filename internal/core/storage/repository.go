package storage

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/aevon-lab/cohort/internal/core/predicate"
	"github.com/aevon-lab/cohort/internal/core/row"
)

// SourceDescriptor describes where a pipeline reads its rows from. Sources are
// built per run from a descriptor; nothing is looked up by table name globally.
type SourceDescriptor struct {
	Kind       string                // postgres, sqlite, mysql, csv, memory, pipeline
	Connection string                // named connection in the app config
	DSN        string                // resolved from Connection by the runner
	Table      string                // SQL sources
	Columns    []string              // projection; empty selects every column
	Filter     predicate.Conjunction // pushed down as a WHERE clause where supported
	Path       string                // file sources
	Types      map[string]row.Type   // declared column types for text values
	Pipeline   string                // upstream pipeline for kind pipeline
	Memory     *Table                // in-memory rows for kind memory and pipeline
	Timeout    time.Duration

	MaxOpenConns int
	MaxIdleConns int
}

// TargetDescriptor describes where a pipeline's aggregated rows go.
type TargetDescriptor struct {
	Kind        string // console, csv, jsonl, postgres, sqlite, mysql, memory
	Connection  string
	DSN         string
	Table       string
	Path        string
	Writer      io.Writer // console output; stdout when nil
	Memory      *Table
	CreateTable bool // create the SQL table from the first batch when missing
	BatchSize   int  // rows per transaction for SQL sinks
	Timeout     time.Duration

	MaxOpenConns int
	MaxIdleConns int
}

// RowIterator is a row.Iterator that holds resources. Close must be called on
// every exit path and is safe to call more than once.
type RowIterator interface {
	row.Iterator
	Close() error
}

// RowSource yields rows lazily. Fetch may be called again to restart from the
// beginning (re-query).
type RowSource interface {
	Fetch(ctx context.Context) (RowIterator, error)
	Close() error
}

// Sink accepts rows in order. Write returns how many rows the sink accepted,
// which is also meaningful when err is non-nil.
type Sink interface {
	Write(ctx context.Context, columns []string, rows []row.Row) (int, error)
	Close() error
}

// SourceFactory builds a RowSource for one descriptor.
type SourceFactory func(ctx context.Context, d SourceDescriptor) (RowSource, error)

// SinkFactory builds a Sink for one descriptor.
type SinkFactory func(ctx context.Context, d TargetDescriptor) (Sink, error)

var (
	mu      sync.RWMutex
	sources = map[string]SourceFactory{}
	sinks   = map[string]SinkFactory{}
)

// RegisterSource makes a source kind available to OpenSource. Backends call it
// from init; registering the same kind twice panics.
func RegisterSource(kind string, f SourceFactory) {
	mu.Lock()
	defer mu.Unlock()
	if _, dup := sources[kind]; dup {
		panic(fmt.Sprintf("storage: source kind %q registered twice", kind))
	}
	sources[kind] = f
}

// RegisterSink makes a sink kind available to OpenSink.
func RegisterSink(kind string, f SinkFactory) {
	mu.Lock()
	defer mu.Unlock()
	if _, dup := sinks[kind]; dup {
		panic(fmt.Sprintf("storage: sink kind %q registered twice", kind))
	}
	sinks[kind] = f
}

// OpenSource builds the source registered for d.Kind.
func OpenSource(ctx context.Context, d SourceDescriptor) (RowSource, error) {
	mu.RLock()
	f, ok := sources[d.Kind]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown source kind %q (registered: %v)", d.Kind, SourceKinds())
	}
	return f(ctx, d)
}

// OpenSink builds the sink registered for d.Kind.
func OpenSink(ctx context.Context, d TargetDescriptor) (Sink, error) {
	mu.RLock()
	f, ok := sinks[d.Kind]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown sink kind %q (registered: %v)", d.Kind, SinkKinds())
	}
	return f(ctx, d)
}

// SourceKinds lists registered source kinds, sorted.
func SourceKinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	return sortedKeys(sources)
}

// SinkKinds lists registered sink kinds, sorted.
func SinkKinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	return sortedKeys(sinks)
}

// HasSource reports whether kind is registered.
func HasSource(kind string) bool {
	mu.RLock()
	defer mu.RUnlock()
	_, ok := sources[kind]
	return ok
}

// HasSink reports whether kind is registered.
func HasSink(kind string) bool {
	mu.RLock()
	defer mu.RUnlock()
	_, ok := sinks[kind]
	return ok
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Table is an in-memory result set shared between a memory sink and a memory
// or pipeline source. It is safe for concurrent use.
type Table struct {
	mu      sync.RWMutex
	columns []string
	rows    []row.Row
}

// NewTable returns a table holding rows.
func NewTable(columns []string, rows []row.Row) *Table {
	return &Table{columns: append([]string(nil), columns...), rows: rows}
}

// Append adds rows. The first call fixes the column list.
func (t *Table) Append(columns []string, rows []row.Row) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.columns == nil {
		t.columns = append([]string(nil), columns...)
	}
	t.rows = append(t.rows, rows...)
}

// Reset drops every row and the column list.
func (t *Table) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.columns, t.rows = nil, nil
}

// Snapshot returns the columns and a copy of the row slice.
func (t *Table) Snapshot() ([]string, []row.Row) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]string(nil), t.columns...), append([]row.Row(nil), t.rows...)
}

func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows)
}
