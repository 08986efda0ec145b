package row

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Header holds the ordered column names shared by every row of a batch.
type Header struct {
	names []string
	index map[string]int
}

// NewHeader builds a header. Duplicate names resolve to their first position.
func NewHeader(names ...string) *Header {
	h := &Header{
		names: append([]string(nil), names...),
		index: make(map[string]int, len(names)),
	}
	for i, n := range names {
		if _, exists := h.index[n]; !exists {
			h.index[n] = i
		}
	}
	return h
}

// Names returns a copy of the column names in order.
func (h *Header) Names() []string { return append([]string(nil), h.names...) }

func (h *Header) Len() int { return len(h.names) }

// Index returns the position of name.
func (h *Header) Index(name string) (int, bool) {
	i, ok := h.index[name]
	return i, ok
}

// Has reports whether name is one of the header's columns.
func (h *Header) Has(name string) bool {
	_, ok := h.index[name]
	return ok
}

// Extend returns a new header with names appended. Names already present are
// not repeated, so Extend can be used to overwrite a column.
func (h *Header) Extend(names ...string) *Header {
	out := append([]string(nil), h.names...)
	for _, n := range names {
		if !h.Has(n) {
			out = append(out, n)
		}
	}
	return NewHeader(out...)
}

// Row is an ordered mapping from column name to Value. Rows are immutable:
// every modifier returns a copy.
type Row struct {
	h      *Header
	values []Value
}

// New returns a row over h. Missing trailing values are null; extra values are
// dropped.
func New(h *Header, values ...Value) Row {
	vals := make([]Value, h.Len())
	copy(vals, values)
	return Row{h: h, values: vals}
}

// FromMap builds a single row whose columns follow the order of cols.
func FromMap(cols []string, m map[string]Value) Row {
	h := NewHeader(cols...)
	vals := make([]Value, h.Len())
	for i, c := range h.names {
		vals[i] = m[c]
	}
	return Row{h: h, values: vals}
}

func (r Row) Header() *Header { return r.h }

func (r Row) Len() int { return len(r.values) }

// Columns returns the column names in order.
func (r Row) Columns() []string {
	if r.h == nil {
		return nil
	}
	return r.h.Names()
}

// Values returns a copy of the row's values in column order.
func (r Row) Values() []Value { return append([]Value(nil), r.values...) }

// At returns the value at position i.
func (r Row) At(i int) Value {
	if i < 0 || i >= len(r.values) {
		return Null()
	}
	return r.values[i]
}

// Get returns the value of column name and whether the column exists.
func (r Row) Get(name string) (Value, bool) {
	if r.h == nil {
		return Null(), false
	}
	i, ok := r.h.index[name]
	if !ok {
		return Null(), false
	}
	return r.values[i], true
}

// Value returns the value of column name, or null when the column is absent.
func (r Row) Value(name string) Value {
	v, _ := r.Get(name)
	return v
}

// Set returns a copy of r with column name set to v, appending the column when
// it does not exist yet.
func (r Row) Set(name string, v Value) Row {
	if r.h != nil {
		if i, ok := r.h.index[name]; ok {
			vals := r.Values()
			vals[i] = v
			return Row{h: r.h, values: vals}
		}
	}
	h := NewHeader(name)
	if r.h != nil {
		h = r.h.Extend(name)
	}
	vals := make([]Value, h.Len())
	copy(vals, r.values)
	vals[h.index[name]] = v
	return Row{h: h, values: vals}
}

// Rebase returns a copy of r laid out under h, which must extend r's header.
// Columns of h that r lacks are taken from extra by name.
func (r Row) Rebase(h *Header, extra map[string]Value) Row {
	vals := make([]Value, h.Len())
	for i, n := range h.names {
		if v, ok := extra[n]; ok {
			vals[i] = v
			continue
		}
		vals[i] = r.Value(n)
	}
	return Row{h: h, values: vals}
}

// Project returns a row with only the named columns, in the given order.
func (r Row) Project(names ...string) Row {
	h := NewHeader(names...)
	vals := make([]Value, h.Len())
	for i, n := range h.names {
		vals[i] = r.Value(n)
	}
	return Row{h: h, values: vals}
}

// Map returns the row as a name → value map.
func (r Row) Map() map[string]Value {
	m := make(map[string]Value, len(r.values))
	if r.h == nil {
		return m
	}
	for i, n := range r.h.names {
		m[n] = r.values[i]
	}
	return m
}

// Equal reports whether both rows have the same columns and equal values.
func (r Row) Equal(o Row) bool {
	if r.Len() != o.Len() {
		return false
	}
	for i := range r.values {
		if r.h.names[i] != o.h.names[i] || !r.values[i].Equal(o.values[i]) {
			return false
		}
	}
	return true
}

func (r Row) String() string {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, v := range r.values {
		if i > 0 {
			buf.WriteString(", ")
		}
		fmt.Fprintf(&buf, "%s: ", r.h.names[i])
		if v.IsNull() {
			buf.WriteString("null")
			continue
		}
		buf.WriteString(v.String())
	}
	buf.WriteByte('}')
	return buf.String()
}

// MarshalJSON writes the row as a JSON object with keys in column order.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, v := range r.values {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(r.h.names[i])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		b, err := v.MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", r.h.names[i], err)
		}
		buf.Write(b)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Iterator is a lazy, single-pass sequence of rows.
//
// Columns is available before the first call to Next so that consumers can
// validate column references before any row is read.
type Iterator interface {
	Columns() []string
	Next() bool
	Row() Row
	Err() error
}

// SliceIterator iterates over rows held in memory.
type SliceIterator struct {
	cols []string
	rows []Row
	pos  int
}

// NewSliceIterator returns an iterator over rows with the given columns.
func NewSliceIterator(cols []string, rows []Row) *SliceIterator {
	return &SliceIterator{cols: append([]string(nil), cols...), rows: rows, pos: -1}
}

func (it *SliceIterator) Columns() []string { return append([]string(nil), it.cols...) }

func (it *SliceIterator) Next() bool {
	if it.pos+1 >= len(it.rows) {
		it.pos = len(it.rows)
		return false
	}
	it.pos++
	return true
}

func (it *SliceIterator) Row() Row {
	if it.pos < 0 || it.pos >= len(it.rows) {
		return Row{}
	}
	return it.rows[it.pos]
}

func (it *SliceIterator) Err() error { return nil }

// Close is a no-op; it lets SliceIterator stand in for closable iterators.
func (it *SliceIterator) Close() error { return nil }

// Collect drains it into a slice.
func Collect(it Iterator) ([]Row, error) {
	var out []Row
	for it.Next() {
		out = append(out, it.Row())
	}
	if err := it.Err(); err != nil {
		return out, err
	}
	return out, nil
}
