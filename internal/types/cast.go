package types

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"pgmem/internal/pgerr"
)

// Cast converts v to type to using explicit cast semantics. Callers that need
// implicit or assignment semantics check CanCoerce first.
func Cast(v Value, to DataType) (Value, error) {
	if v.IsNull() || v.Type == to || to == TypeNull || to == TypeUnknown {
		return v, nil
	}
	if v.Type == TypeString {
		return parseText(v.S, to)
	}
	if to == TypeString {
		return Text(castText(v)), nil
	}
	switch v.Type {
	case TypeInt, TypeBigInt:
		switch to {
		case TypeInt:
			if v.I64 > math.MaxInt32 || v.I64 < math.MinInt32 {
				return Null(), pgerr.OutOfRange("integer")
			}
			return Int(v.I64), nil
		case TypeBigInt:
			return BigInt(v.I64), nil
		case TypeNumeric:
			return Numeric(decimal.NewFromInt(v.I64)), nil
		case TypeFloat:
			return Float(float64(v.I64)), nil
		case TypeBool:
			if v.Type == TypeInt {
				return Bool(v.I64 != 0), nil
			}
		}
	case TypeNumeric:
		switch to {
		case TypeInt, TypeBigInt:
			// numeric to integer rounds half away from zero.
			r := v.D.Round(0)
			if !r.IsInteger() || r.GreaterThan(decimal.NewFromInt(math.MaxInt64)) || r.LessThan(decimal.NewFromInt(math.MinInt64)) {
				return Null(), pgerr.OutOfRange(to.Name())
			}
			return Cast(BigInt(r.IntPart()), to)
		case TypeFloat:
			f, _ := v.D.Float64()
			return Float(f), nil
		}
	case TypeFloat:
		switch to {
		case TypeInt, TypeBigInt:
			if math.IsNaN(v.F64) || math.IsInf(v.F64, 0) {
				return Null(), pgerr.OutOfRange(to.Name())
			}
			// float to integer rounds half to even, like rint().
			r := math.RoundToEven(v.F64)
			if r >= math.MaxInt64 || r < math.MinInt64 {
				return Null(), pgerr.OutOfRange(to.Name())
			}
			return Cast(BigInt(int64(r)), to)
		case TypeNumeric:
			if math.IsNaN(v.F64) || math.IsInf(v.F64, 0) {
				return Null(), pgerr.FeatureNotSupported("cannot convert %s to numeric", FormatFloat(v.F64))
			}
			return Numeric(NumericFromFloat(v.F64)), nil
		}
	case TypeBool:
		if to == TypeInt {
			if v.B {
				return Int(1), nil
			}
			return Int(0), nil
		}
	}
	return Null(), pgerr.CannotCoerce(v.Type.Name(), to.Name())
}

// castText is the text form a value takes when cast to text. It differs from
// the wire form only for booleans ('true' rather than 't').
func castText(v Value) string {
	if v.Type == TypeBool {
		if v.B {
			return "true"
		}
		return "false"
	}
	return Format(v)
}

// parseText runs the input function of type to over s.
func parseText(s string, to DataType) (Value, error) {
	switch to {
	case TypeString:
		return Text(s), nil
	case TypeBool:
		b, ok := ParseBool(s)
		if !ok {
			return Null(), pgerr.InvalidText("boolean", s)
		}
		return Bool(b), nil
	case TypeInt, TypeBigInt:
		t := strings.TrimSpace(s)
		i, err := strconv.ParseInt(t, 10, 64)
		if err != nil {
			if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
				return Null(), pgerr.New(pgerr.KindType, pgerr.CodeNumericValueOutOfRange,
					"value %q is out of range for type %s", s, to.Name())
			}
			return Null(), pgerr.InvalidText(to.Name(), s)
		}
		if to == TypeInt && (i > math.MaxInt32 || i < math.MinInt32) {
			return Null(), pgerr.New(pgerr.KindType, pgerr.CodeNumericValueOutOfRange,
				"value %q is out of range for type integer", s)
		}
		if to == TypeInt {
			return Int(i), nil
		}
		return BigInt(i), nil
	case TypeNumeric:
		d, err := decimal.NewFromString(strings.TrimSpace(s))
		if err != nil {
			return Null(), pgerr.InvalidText("numeric", s)
		}
		return Numeric(d), nil
	case TypeFloat:
		t := strings.ToLower(strings.TrimSpace(s))
		switch t {
		case "nan":
			return Float(math.NaN()), nil
		case "infinity", "inf", "+infinity", "+inf":
			return Float(math.Inf(1)), nil
		case "-infinity", "-inf":
			return Float(math.Inf(-1)), nil
		}
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			if errors.Is(err, strconv.ErrRange) {
				return Null(), floatOutOfRange(s)
			}
			return Null(), pgerr.InvalidText("double precision", s)
		}
		if f == 0 && nonZeroMantissa(t) {
			return Null(), floatOutOfRange(s)
		}
		return Float(f), nil
	case TypeTimestamp:
		ts, ok := ParseTimestamp(s)
		if !ok {
			return Null(), pgerr.New(pgerr.KindType, pgerr.CodeInvalidDatetimeFormat,
				"invalid input syntax for type timestamp: %q", s)
		}
		return Timestamp(ts), nil
	}
	return Null(), pgerr.CannotCoerce("text", to.Name())
}

func floatOutOfRange(s string) error {
	return pgerr.New(pgerr.KindType, pgerr.CodeNumericValueOutOfRange,
		"%q is out of range for type double precision", s)
}

// nonZeroMantissa reports whether a decimal float literal has a non-zero
// digit before its exponent, so that parsing it as 0 was an underflow.
func nonZeroMantissa(s string) bool {
	for _, r := range s {
		if r == 'e' || r == 'E' {
			return false
		}
		if r >= '1' && r <= '9' {
			return true
		}
	}
	return false
}

// ParseBool implements PostgreSQL's boolin: surrounding whitespace is
// ignored and any case-insensitive unique prefix of the accepted words works.
func ParseBool(s string) (bool, bool) {
	t := strings.ToLower(strings.TrimSpace(s))
	if t == "" {
		return false, false
	}
	switch t {
	case "1":
		return true, true
	case "0":
		return false, true
	case "on":
		return true, true
	}
	if len(t) >= 2 && strings.HasPrefix("off", t) {
		return false, true
	}
	for _, w := range []string{"true", "yes"} {
		if strings.HasPrefix(w, t) {
			return true, true
		}
	}
	for _, w := range []string{"false", "no"} {
		if strings.HasPrefix(w, t) {
			return false, true
		}
	}
	return false, false
}

var timestampLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999-07",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTimestamp accepts the ISO 8601 forms PostgreSQL's default DateStyle
// reads. A zone offset, when present, is dropped after conversion to UTC.
func ParseTimestamp(s string) (time.Time, bool) {
	t := strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, t); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}
