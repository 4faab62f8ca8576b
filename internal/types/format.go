package types

import (
	"math"
	"strconv"
)

// Format renders v in PostgreSQL's text output format, the form sent to
// clients in text-format DataRow messages. NULL renders as "".
func Format(v Value) string {
	switch v.Type {
	case TypeNull:
		return ""
	case TypeBool:
		if v.B {
			return "t"
		}
		return "f"
	case TypeInt, TypeBigInt:
		return strconv.FormatInt(v.I64, 10)
	case TypeNumeric:
		return FormatNumeric(v.D)
	case TypeFloat:
		return FormatFloat(v.F64)
	case TypeString:
		return v.S
	case TypeTimestamp:
		return v.T.Format("2006-01-02 15:04:05.999999")
	}
	return ""
}

// FormatFloat mirrors float8out with extra_float_digits = 1: the shortest
// representation that round-trips.
func FormatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// String implements fmt.Stringer for debugging and test output; NULL shows
// as "NULL".
func (v Value) String() string {
	if v.IsNull() {
		return "NULL"
	}
	return Format(v)
}
