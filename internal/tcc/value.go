package tcc

import (
	"encoding/json"
	"math"
	"strconv"
)

// ValueKind tags the variant held by a Value
type ValueKind uint8

const (
	KindFloat ValueKind = iota
	KindInt
	KindBool
)

// Value is a live parameter value. The zero Value is the float 0.
// Values are comparable with ==.
type Value struct {
	kind ValueKind
	f    float64
	i    int64
	b    bool
}

func FloatValue(f float64) Value { return Value{kind: KindFloat, f: f} }
func IntValue(i int64) Value     { return Value{kind: KindInt, i: i} }
func BoolValue(b bool) Value     { return Value{kind: KindBool, b: b} }

func (v Value) Kind() ValueKind { return v.kind }

// Equal is == except that any two NaN floats are equal
func (v Value) Equal(o Value) bool {
	if v.kind == KindFloat && o.kind == KindFloat && math.IsNaN(v.f) && math.IsNaN(o.f) {
		return true
	}
	return v == o
}

// Float returns the numeric projection of the value; booleans map to 0 and 1.
func (v Value) Float() float64 {
	switch v.kind {
	case KindInt:
		return float64(v.i)
	case KindBool:
		if v.b {
			return 1
		}
		return 0
	default:
		return v.f
	}
}

// Int returns the value truncated to an integer.
func (v Value) Int() int64 {
	switch v.kind {
	case KindFloat:
		return int64(v.f)
	case KindBool:
		if v.b {
			return 1
		}
		return 0
	default:
		return v.i
	}
}

// Bool reports whether the value is non-zero.
func (v Value) Bool() bool {
	switch v.kind {
	case KindFloat:
		return v.f != 0
	case KindInt:
		return v.i != 0
	default:
		return v.b
	}
}

// Interface returns the value as float64, int64 or bool.
func (v Value) Interface() any {
	switch v.kind {
	case KindInt:
		return v.i
	case KindBool:
		return v.b
	default:
		return v.f
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}
