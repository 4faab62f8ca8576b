package types

import (
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"pgmem/internal/pgerr"
)

// Compare orders two non-NULL values. Values of different numeric domains
// are compared in the wider domain; any other type pair is an error.
func Compare(a, b Value) (int, error) {
	if a.Type != b.Type {
		ra, rb := numericRank(a.Type), numericRank(b.Type)
		if ra == 0 || rb == 0 {
			return 0, undefinedBinary(OpEq, a.Type, b.Type)
		}
		to := a.Type
		if rb > ra {
			to = b.Type
		}
		var err error
		if a, err = Cast(a, to); err != nil {
			return 0, err
		}
		if b, err = Cast(b, to); err != nil {
			return 0, err
		}
	}
	switch a.Type {
	case TypeBool:
		switch {
		case a.B == b.B:
			return 0, nil
		case !a.B:
			return -1, nil
		default:
			return 1, nil
		}
	case TypeInt, TypeBigInt:
		return cmpOrdered(a.I64, b.I64), nil
	case TypeNumeric:
		return a.D.Cmp(b.D), nil
	case TypeFloat:
		return compareFloat(a.F64, b.F64), nil
	case TypeString:
		return strings.Compare(a.S, b.S), nil
	case TypeTimestamp:
		return a.T.Compare(b.T), nil
	}
	return 0, pgerr.Internal("cannot compare values of type %s", a.Type.Name())
}

func cmpOrdered[T int64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// compareFloat follows PostgreSQL: NaN equals NaN and sorts above
// everything else.
func compareFloat(a, b float64) int {
	an, bn := math.IsNaN(a), math.IsNaN(b)
	switch {
	case an && bn:
		return 0
	case an:
		return 1
	case bn:
		return -1
	}
	return cmpOrdered(a, b)
}

// Key returns a string that is equal for two values exactly when they are
// the same for grouping and DISTINCT purposes. Unlike '=', NULL has a key,
// so NULLs group together.
func (v Value) Key() string {
	switch v.Type {
	case TypeNull:
		return "N"
	case TypeBool:
		if v.B {
			return "b1"
		}
		return "b0"
	case TypeInt, TypeBigInt:
		// Integers share a key space with numerics so 1 and 1.0 group together.
		return "n" + strconv.FormatInt(v.I64, 10)
	case TypeNumeric:
		return "n" + v.D.String()
	case TypeFloat:
		f := v.F64
		if f == 0 {
			f = 0 // folds -0 into 0
		}
		if f == math.Trunc(f) && math.Abs(f) < 1e15 {
			return "n" + strconv.FormatInt(int64(f), 10)
		}
		return "f" + strconv.FormatFloat(f, 'g', -1, 64)
	case TypeString:
		return "s" + v.S
	case TypeTimestamp:
		return "t" + v.T.Format("2006-01-02T15:04:05.999999999")
	}
	return "?"
}

// RowKey concatenates the keys of vals.
func RowKey(vals []Value) string {
	var sb strings.Builder
	for _, v := range vals {
		k := v.Key()
		sb.WriteString(strconv.Itoa(len(k)))
		sb.WriteByte(':')
		sb.WriteString(k)
	}
	return sb.String()
}

// NumericFromFloat converts f exactly enough for comparisons and casts.
func NumericFromFloat(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}
