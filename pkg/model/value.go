// pkg/model/value.go
package model

import (
	"fmt"
	"math"
	"time"
)

// Value is a single table cell. A cell is either missing or holds one of
// string, int64, float64, bool or time.Time (other types are kept as-is).
type Value struct {
	data  interface{}
	valid bool
}

// Null returns a missing cell
func Null() Value {
	return Value{}
}

// ValueOf wraps a raw value. nil and NaN become missing cells, []byte
// becomes a string and narrower integer kinds are widened to int64.
func ValueOf(v interface{}) Value {
	switch val := v.(type) {
	case nil:
		return Null()
	case Value:
		return val
	case float64:
		if math.IsNaN(val) {
			return Null()
		}
		return Value{data: val, valid: true}
	case float32:
		if math.IsNaN(float64(val)) {
			return Null()
		}
		return Value{data: float64(val), valid: true}
	case []byte:
		return Value{data: string(val), valid: true}
	case int:
		return Value{data: int64(val), valid: true}
	case int8:
		return Value{data: int64(val), valid: true}
	case int16:
		return Value{data: int64(val), valid: true}
	case int32:
		return Value{data: int64(val), valid: true}
	case *string:
		if val == nil {
			return Null()
		}
		return Value{data: *val, valid: true}
	default:
		return Value{data: v, valid: true}
	}
}

// IsNull reports whether the cell is missing
func (v Value) IsNull() bool {
	return !v.valid
}

// Interface returns the underlying value, nil when missing
func (v Value) Interface() interface{} {
	if !v.valid {
		return nil
	}
	return v.data
}

// String renders the cell for logs and audit records
func (v Value) String() string {
	if !v.valid {
		return "NULL"
	}
	switch val := v.data.(type) {
	case string:
		return val
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// key returns a type-qualified representation used for row identity
func (v Value) key() string {
	if !v.valid {
		return "\x00"
	}
	if t, ok := v.data.(time.Time); ok {
		return "time.Time=" + t.UTC().Format(time.RFC3339Nano)
	}
	return fmt.Sprintf("%T=%v", v.data, v.data)
}

// Equal reports whether two cells hold the same typed value.
// Two missing cells are equal.
func (v Value) Equal(other Value) bool {
	return v.key() == other.key()
}
