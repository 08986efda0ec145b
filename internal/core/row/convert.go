package row

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Type is a declared column type used when decoding untyped text.
type Type string

const (
	TypeAuto      Type = ""
	TypeInt       Type = "int"
	TypeDecimal   Type = "decimal"
	TypeString    Type = "string"
	TypeTimestamp Type = "timestamp"
	TypeBool      Type = "bool"
)

// ParseType validates a declared column type name.
func ParseType(s string) (Type, error) {
	switch t := Type(strings.ToLower(strings.TrimSpace(s))); t {
	case TypeAuto, TypeInt, TypeDecimal, TypeString, TypeTimestamp, TypeBool:
		return t, nil
	case "integer", "bigint":
		return TypeInt, nil
	case "numeric", "float", "double":
		return TypeDecimal, nil
	case "text":
		return TypeString, nil
	case "time", "date", "datetime":
		return TypeTimestamp, nil
	case "boolean":
		return TypeBool, nil
	}
	return "", fmt.Errorf("unsupported column type %q", s)
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTime accepts RFC 3339 and the common SQL date/datetime layouts.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

// Parse decodes text as a value of type t. Empty text is null for every type
// except string. TypeAuto infers the narrowest kind that fits.
func Parse(text string, t Type) (Value, error) {
	if t == TypeString {
		return String(text), nil
	}
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Null(), nil
	}
	switch t {
	case TypeAuto:
		return Infer(trimmed), nil
	case TypeInt:
		i, err := strconv.ParseInt(trimmed, 10, 64)
		if err != nil {
			return Null(), fmt.Errorf("invalid int %q", text)
		}
		return Int(i), nil
	case TypeDecimal:
		d, err := decimal.NewFromString(trimmed)
		if err != nil {
			return Null(), fmt.Errorf("invalid decimal %q", text)
		}
		return Decimal(d), nil
	case TypeTimestamp:
		ts, err := ParseTime(trimmed)
		if err != nil {
			return Null(), err
		}
		return Time(ts), nil
	case TypeBool:
		b, err := strconv.ParseBool(trimmed)
		if err != nil {
			return Null(), fmt.Errorf("invalid bool %q", text)
		}
		return Bool(b), nil
	}
	return Null(), fmt.Errorf("unsupported column type %q", t)
}

// Infer picks a kind for untyped text: int, decimal, bool, timestamp, then string.
func Infer(text string) Value {
	if text == "" {
		return Null()
	}
	if i, err := strconv.ParseInt(text, 10, 64); err == nil {
		return Int(i)
	}
	if d, err := decimal.NewFromString(text); err == nil {
		return Decimal(d)
	}
	switch strings.ToLower(text) {
	case "true":
		return Bool(true)
	case "false":
		return Bool(false)
	}
	if ts, err := ParseTime(text); err == nil {
		return Time(ts)
	}
	return String(text)
}

// FromAny converts a value produced by database/sql or a decoder into a Value.
// Byte slices hold numeric text for DECIMAL/NUMERIC columns in most drivers, so
// they become numbers when they parse as one and strings otherwise.
func FromAny(v any) Value {
	switch val := v.(type) {
	case nil:
		return Null()
	case Value:
		return val
	case int64:
		return Int(val)
	case int:
		return Int(int64(val))
	case int32:
		return Int(int64(val))
	case int16:
		return Int(int64(val))
	case int8:
		return Int(int64(val))
	case uint32:
		return Int(int64(val))
	case uint8:
		return Int(int64(val))
	case uint64:
		return Decimal(decimal.NewFromBigInt(new(big.Int).SetUint64(val), 0))
	case float64:
		return Float(val)
	case float32:
		return Float(float64(val))
	case decimal.Decimal:
		return Decimal(val)
	case bool:
		return Bool(val)
	case time.Time:
		return Time(val)
	case string:
		return String(val)
	case []byte:
		s := string(val)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return Int(i)
		}
		if d, err := decimal.NewFromString(s); err == nil {
			return Decimal(d)
		}
		return String(s)
	}
	return String(fmt.Sprint(v))
}
