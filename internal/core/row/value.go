package row

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Kind is the scalar type carried by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindInt
	KindDecimal
	KindString
	KindTime
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInt:
		return "int"
	case KindDecimal:
		return "decimal"
	case KindString:
		return "string"
	case KindTime:
		return "timestamp"
	case KindBool:
		return "bool"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is an immutable scalar cell. The zero Value is null.
type Value struct {
	kind Kind
	i    int64
	d    decimal.Decimal
	s    string
	t    time.Time
	b    bool
}

// Null returns the null value.
func Null() Value { return Value{} }

// Int returns an integer value.
func Int(v int64) Value { return Value{kind: KindInt, i: v} }

// Decimal returns an exact decimal value.
func Decimal(d decimal.Decimal) Value { return Value{kind: KindDecimal, d: d} }

// Float converts f to an exact decimal value.
func Float(f float64) Value { return Decimal(decimal.NewFromFloat(f)) }

// String returns a text value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Time returns a timestamp value normalised to UTC.
func Time(t time.Time) Value { return Value{kind: KindTime, t: t.UTC()} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

func (v Value) Kind() Kind      { return v.kind }
func (v Value) IsNull() bool    { return v.kind == KindNull }
func (v Value) IsNumeric() bool { return v.kind == KindInt || v.kind == KindDecimal }

// Numeric returns the value as a decimal. Integers and decimals always convert;
// strings convert when they parse as a number. Everything else reports false.
func (v Value) Numeric() (decimal.Decimal, bool) {
	switch v.kind {
	case KindInt:
		return decimal.NewFromInt(v.i), true
	case KindDecimal:
		return v.d, true
	case KindString:
		d, err := decimal.NewFromString(strings.TrimSpace(v.s))
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	}
	return decimal.Zero, false
}

// Timestamp returns the time carried by a timestamp value.
func (v Value) Timestamp() (time.Time, bool) {
	if v.kind != KindTime {
		return time.Time{}, false
	}
	return v.t, true
}

// Text returns the string carried by a text value.
func (v Value) Text() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.s, true
}

// Any returns a plain Go value suitable for database/sql parameters.
// Decimals are passed as their exact string form.
func (v Value) Any() any {
	switch v.kind {
	case KindInt:
		return v.i
	case KindDecimal:
		return v.d.String()
	case KindString:
		return v.s
	case KindTime:
		return v.t
	case KindBool:
		return v.b
	}
	return nil
}

// String renders the value for text output. Null renders as an empty string.
func (v Value) String() string {
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindDecimal:
		return v.d.String()
	case KindString:
		return v.s
	case KindTime:
		return v.t.Format(time.RFC3339)
	case KindBool:
		return strconv.FormatBool(v.b)
	}
	return ""
}

// Equal reports structural equality. Null equals null only; integers and
// decimals compare numerically.
func (v Value) Equal(o Value) bool {
	if v.kind == KindNull || o.kind == KindNull {
		return v.kind == o.kind
	}
	c, ok := compare(v, o)
	return ok && c == 0
}

// MarshalJSON writes numbers unquoted and timestamps as RFC 3339 strings.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindInt:
		return []byte(strconv.FormatInt(v.i, 10)), nil
	case KindDecimal:
		return []byte(v.d.String()), nil
	case KindBool:
		return []byte(strconv.FormatBool(v.b)), nil
	case KindTime:
		return json.Marshal(v.t.Format(time.RFC3339Nano))
	}
	return json.Marshal(v.s)
}

// Compare orders two values. Nulls sort first, numbers compare numerically,
// and values of unrelated kinds are ordered by kind.
func Compare(a, b Value) int {
	if c, ok := compare(a, b); ok {
		return c
	}
	ka, kb := rank(a.kind), rank(b.kind)
	switch {
	case ka < kb:
		return -1
	case ka > kb:
		return 1
	}
	return 0
}

// Comparable reports whether a and b can be ordered against each other.
func Comparable(a, b Value) bool {
	_, ok := compare(a, b)
	return ok
}

func compare(a, b Value) (int, bool) {
	if a.IsNumeric() && b.IsNumeric() {
		if a.kind == KindInt && b.kind == KindInt {
			switch {
			case a.i < b.i:
				return -1, true
			case a.i > b.i:
				return 1, true
			}
			return 0, true
		}
		da, _ := a.Numeric()
		db, _ := b.Numeric()
		return da.Cmp(db), true
	}
	if a.kind != b.kind {
		return 0, false
	}
	switch a.kind {
	case KindNull:
		return 0, true
	case KindString:
		return strings.Compare(a.s, b.s), true
	case KindTime:
		return a.t.Compare(b.t), true
	case KindBool:
		switch {
		case a.b == b.b:
			return 0, true
		case !a.b:
			return -1, true
		}
		return 1, true
	}
	return 0, false
}

// rank places numbers of either representation on the same level.
func rank(k Kind) int {
	switch k {
	case KindNull:
		return 0
	case KindInt, KindDecimal:
		return 1
	case KindString:
		return 2
	case KindTime:
		return 3
	case KindBool:
		return 4
	}
	return 5
}

// AppendKey appends an unambiguous encoding of v to buf. Values that are Equal
// produce identical encodings, so the result can key a map.
func AppendKey(buf []byte, v Value) []byte {
	var body string
	tag := byte('0' + rank(v.kind))
	switch v.kind {
	case KindNull:
		return append(buf, tag, 0)
	case KindInt:
		body = strconv.FormatInt(v.i, 10)
	case KindDecimal:
		// String() drops trailing zeros, so 1.50 and 1.5 share a key.
		body = v.d.String()
	case KindString:
		body = v.s
	case KindTime:
		// Seconds and nanoseconds separately: UnixNano overflows outside 1678-2262.
		body = strconv.FormatInt(v.t.Unix(), 10) + "." + strconv.Itoa(v.t.Nanosecond())
	case KindBool:
		body = strconv.FormatBool(v.b)
	}
	buf = append(buf, tag)
	buf = strconv.AppendInt(buf, int64(len(body)), 10)
	buf = append(buf, ':')
	return append(buf, body...)
}
