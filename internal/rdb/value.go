package rdb

import (
	"math"
	"strconv"
)

// Value is the result of decoding one RDB string: either raw bytes or
// an integer preserved from the INT8/INT16/INT32 encodings. Keeping
// integers distinct matters to the memory estimator (integers embed in
// the robj) and to emitters that print integer keys unquoted.
type Value struct {
	raw   []byte
	num   int64
	isInt bool
}

// BytesValue wraps raw bytes.
func BytesValue(b []byte) Value { return Value{raw: b} }

// IntValue wraps a decoded integer.
func IntValue(n int64) Value { return Value{num: n, isInt: true} }

// IsInt reports whether the value came from an integer encoding.
func (v Value) IsInt() bool { return v.isInt }

// Int returns the integer value; only meaningful when IsInt is true.
func (v Value) Int() int64 { return v.num }

// Raw returns the underlying bytes, nil for integer values.
func (v Value) Raw() []byte { return v.raw }

// Bytes returns the value as bytes, formatting integers in decimal.
func (v Value) Bytes() []byte {
	if v.isInt {
		return strconv.AppendInt(nil, v.num, 10)
	}
	return v.raw
}

// String renders the value for diagnostics and raw-policy output.
func (v Value) String() string {
	if v.isInt {
		return strconv.FormatInt(v.num, 10)
	}
	return string(v.raw)
}

// Len is the length of the byte rendering. Integer values report the
// machine word length through the estimator instead; see
// memory.elementLength.
func (v Value) Len() int {
	if v.isInt {
		return len(strconv.FormatInt(v.num, 10))
	}
	return len(v.raw)
}

// AsInt returns the value as an integer when it either is one or its
// bytes parse as a signed decimal.
func (v Value) AsInt() (int64, bool) {
	if v.isInt {
		return v.num, true
	}
	n, err := strconv.ParseInt(string(v.raw), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Score is a sorted-set score: a float (possibly NaN or an infinity)
// or, when an ASCII score fails to parse, the raw bytes.
type Score struct {
	f     float64
	raw   []byte
	isNum bool
}

// FloatScore wraps a numeric score.
func FloatScore(f float64) Score { return Score{f: f, isNum: true} }

// RawScore wraps score bytes that did not parse as a float.
func RawScore(b []byte) Score { return Score{raw: b} }

// IsFloat reports whether the score carries a numeric value.
func (s Score) IsFloat() bool { return s.isNum }

// Float returns the numeric score; only meaningful when IsFloat is true.
func (s Score) Float() float64 { return s.f }

// Raw returns the unparsed score bytes, nil for numeric scores.
func (s Score) Raw() []byte { return s.raw }

// String renders the score the way the emitters print it.
func (s Score) String() string {
	if !s.isNum {
		return string(s.raw)
	}
	switch {
	case math.IsNaN(s.f):
		return "NaN"
	case math.IsInf(s.f, 1):
		return "Infinity"
	case math.IsInf(s.f, -1):
		return "-Infinity"
	}
	return strconv.FormatFloat(s.f, 'g', -1, 64)
}
