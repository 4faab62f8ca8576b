package types

import (
	"github.com/shopspring/decimal"

	"pgmem/internal/pgerr"
)

// numericMinSigDigits matches PostgreSQL's NUMERIC_MIN_SIG_DIGITS: division
// keeps at least this many significant digits.
const numericMinSigDigits = 16

func numericArith(op Op, a, b Value) (Value, error) {
	x, y := a.D, b.D
	switch op {
	case OpAdd:
		return Numeric(x.Add(y)), nil
	case OpSub:
		return Numeric(x.Sub(y)), nil
	case OpMul:
		return Numeric(x.Mul(y)), nil
	case OpDiv:
		if y.IsZero() {
			return Null(), pgerr.DivisionByZero()
		}
		return Numeric(NumericDiv(x, y)), nil
	case OpMod:
		if y.IsZero() {
			return Null(), pgerr.DivisionByZero()
		}
		return Numeric(x.Mod(y)), nil
	case OpPow:
		if x.IsZero() && y.IsNegative() {
			return Null(), pgerr.New(pgerr.KindEval, "2201F", "zero raised to a negative power is undefined")
		}
		return Numeric(x.Pow(y)), nil
	}
	return Null(), pgerr.Internal("numeric operator %s", op)
}

// NumericDiv divides with PostgreSQL's result scale: enough fractional
// digits for numericMinSigDigits significant digits, and never fewer than
// either input's scale.
func NumericDiv(x, y decimal.Decimal) decimal.Decimal {
	w1, f1 := nbaseWeight(x)
	w2, f2 := nbaseWeight(y)
	qweight := w1 - w2
	if f1 <= f2 {
		qweight--
	}
	rscale := numericMinSigDigits - qweight*4
	rscale = max(rscale, Scale(x), Scale(y), 0)
	rscale = min(rscale, 1000)
	return x.DivRound(y, int32(rscale))
}

// Scale returns the number of fractional digits d displays with.
func Scale(d decimal.Decimal) int {
	if e := d.Exponent(); e < 0 {
		return int(-e)
	}
	return 0
}

// nbaseWeight returns the weight and leading digit of |d| in base 10000,
// the representation PostgreSQL's scale rules are written against.
func nbaseWeight(d decimal.Decimal) (int, int64) {
	d = d.Abs()
	if d.IsZero() {
		return 0, 0
	}
	base := decimal.NewFromInt(10000)
	weight := 0
	for d.GreaterThanOrEqual(base) {
		d = d.Div(base)
		weight++
	}
	for d.LessThan(decimal.NewFromInt(1)) {
		d = d.Mul(base)
		weight--
	}
	return weight, d.IntPart()
}

// FormatNumeric renders d the way PostgreSQL's numeric_out does: fixed
// point, keeping the value's scale.
func FormatNumeric(d decimal.Decimal) string {
	if s := Scale(d); s > 0 {
		return d.StringFixed(int32(s))
	}
	return d.String()
}
