package types

import (
	"math"

	"pgmem/internal/pgerr"
)

// Op is a binary or unary operator.
type Op int

const (
	OpAdd Op = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpPow
	OpConcat
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpAnd
	OpOr
	OpLike
	OpNotLike
	OpILike
	OpNotILike
	OpNeg
	OpPlus
	OpNot
)

var opSymbols = map[Op]string{
	OpAdd:      "+",
	OpSub:      "-",
	OpMul:      "*",
	OpDiv:      "/",
	OpMod:      "%",
	OpPow:      "^",
	OpConcat:   "||",
	OpEq:       "=",
	OpNe:       "<>",
	OpLt:       "<",
	OpLe:       "<=",
	OpGt:       ">",
	OpGe:       ">=",
	OpAnd:      "AND",
	OpOr:       "OR",
	OpLike:     "~~",
	OpNotLike:  "!~~",
	OpILike:    "~~*",
	OpNotILike: "!~~*",
	OpNeg:      "-",
	OpPlus:     "+",
	OpNot:      "NOT",
}

func (o Op) String() string {
	return opSymbols[o]
}

// IsComparison reports whether o is one of = <> < <= > >=.
func (o Op) IsComparison() bool {
	return o >= OpEq && o <= OpGe
}

// IsArithmetic reports whether o is + - * / % ^.
func (o Op) IsArithmetic() bool {
	return o >= OpAdd && o <= OpPow
}

// IsLike reports whether o is one of the pattern matching operators.
func (o Op) IsLike() bool {
	return o >= OpLike && o <= OpNotILike
}

// Operator is a resolved binary operator: the types both operands must be
// converted to and the type of the result.
type Operator struct {
	Op     Op
	Left   DataType
	Right  DataType
	Result DataType
}

// ResolveBinary picks the operator implementation for the operand types,
// following PostgreSQL's resolution rules restricted to the supported types.
func ResolveBinary(op Op, l, r DataType) (Operator, error) {
	switch {
	case op == OpAnd || op == OpOr:
		for _, t := range []DataType{l, r} {
			if !t.IsUntyped() && t != TypeBool {
				return Operator{}, pgerr.DatatypeMismatch("argument of %s must be type boolean, not type %s", op, t.Name())
			}
		}
		return Operator{Op: op, Left: TypeBool, Right: TypeBool, Result: TypeBool}, nil

	case op.IsArithmetic():
		common, ok := CommonType(l, r)
		if !ok || (!common.IsNumeric() && !common.IsUntyped()) {
			return Operator{}, undefinedBinary(op, l, r)
		}
		if common.IsUntyped() {
			// 'a' + 'b' has no candidate in PostgreSQL either.
			if l == TypeUnknown || r == TypeUnknown {
				return Operator{}, undefinedBinary(op, l, r)
			}
			common = TypeInt
		}
		res := common
		if op == OpPow && common != TypeNumeric {
			common, res = TypeFloat, TypeFloat
		}
		return Operator{Op: op, Left: common, Right: common, Result: res}, nil

	case op.IsComparison():
		common, ok := CommonType(l, r)
		if !ok {
			return Operator{}, undefinedBinary(op, l, r)
		}
		if common.IsUntyped() {
			common = TypeString
		}
		return Operator{Op: op, Left: common, Right: common, Result: TypeBool}, nil

	case op == OpConcat:
		// text || anything and anything || text, untyped literals count as text.
		textish := func(t DataType) bool { return t == TypeString || t.IsUntyped() }
		if !textish(l) && !textish(r) {
			return Operator{}, undefinedBinary(op, l, r)
		}
		return Operator{Op: op, Left: TypeString, Right: TypeString, Result: TypeString}, nil

	case op.IsLike():
		textish := func(t DataType) bool { return t == TypeString || t.IsUntyped() }
		if !textish(l) || !textish(r) {
			return Operator{}, undefinedBinary(op, l, r)
		}
		return Operator{Op: op, Left: TypeString, Right: TypeString, Result: TypeBool}, nil
	}
	return Operator{}, undefinedBinary(op, l, r)
}

// ResolveUnary returns the result type of a prefix operator.
func ResolveUnary(op Op, t DataType) (DataType, error) {
	switch op {
	case OpNot:
		if !t.IsUntyped() && t != TypeBool {
			return TypeNull, pgerr.DatatypeMismatch("argument of NOT must be type boolean, not type %s", t.Name())
		}
		return TypeBool, nil
	case OpNeg, OpPlus:
		if t.IsNumeric() {
			return t, nil
		}
		if t == TypeNull {
			return TypeInt, nil
		}
	}
	return TypeNull, pgerr.UndefinedOperator(op.String() + " " + t.Name())
}

func undefinedBinary(op Op, l, r DataType) error {
	return pgerr.UndefinedOperator(l.Name() + " " + op.String() + " " + r.Name())
}

// EvalBinary applies a resolved, non-logical operator to two values that
// already have the operator's operand types. NULL operands yield NULL.
func EvalBinary(o Operator, a, b Value) (Value, error) {
	if a.IsNull() || b.IsNull() {
		return Null(), nil
	}
	switch {
	case o.Op.IsComparison():
		c, err := Compare(a, b)
		if err != nil {
			return Null(), err
		}
		return Bool(compareResult(o.Op, c)), nil
	case o.Op.IsArithmetic():
		return arith(o.Op, o.Result, a, b)
	case o.Op == OpConcat:
		return Text(a.S + b.S), nil
	case o.Op.IsLike():
		caseless := o.Op == OpILike || o.Op == OpNotILike
		m, err := Like(a.S, b.S, caseless)
		if err != nil {
			return Null(), err
		}
		if o.Op == OpNotLike || o.Op == OpNotILike {
			m = !m
		}
		return Bool(m), nil
	}
	return Null(), pgerr.Internal("operator %s is not a value operator", o.Op)
}

func compareResult(op Op, c int) bool {
	switch op {
	case OpEq:
		return c == 0
	case OpNe:
		return c != 0
	case OpLt:
		return c < 0
	case OpLe:
		return c <= 0
	case OpGt:
		return c > 0
	default:
		return c >= 0
	}
}

// Negate applies unary minus.
func Negate(v Value) (Value, error) {
	switch v.Type {
	case TypeNull:
		return v, nil
	case TypeInt:
		if v.I64 == math.MinInt32 {
			return Null(), pgerr.OutOfRange("integer")
		}
		return Int(-v.I64), nil
	case TypeBigInt:
		if v.I64 == math.MinInt64 {
			return Null(), pgerr.OutOfRange("bigint")
		}
		return BigInt(-v.I64), nil
	case TypeNumeric:
		return Numeric(v.D.Neg()), nil
	case TypeFloat:
		return Float(-v.F64), nil
	}
	return Null(), pgerr.UndefinedOperator("- " + v.Type.Name())
}

func arith(op Op, t DataType, a, b Value) (Value, error) {
	switch t {
	case TypeInt, TypeBigInt:
		return intArith(op, t, a.I64, b.I64)
	case TypeNumeric:
		return numericArith(op, a, b)
	case TypeFloat:
		return floatArith(op, a.F64, b.F64)
	}
	return Null(), pgerr.Internal("arithmetic on %s", t.Name())
}

func intArith(op Op, t DataType, a, b int64) (Value, error) {
	var r int64
	overflow := false
	switch op {
	case OpAdd:
		r = a + b
		overflow = (r > a) != (b > 0)
	case OpSub:
		r = a - b
		overflow = (r < a) != (b > 0)
	case OpMul:
		r = a * b
		overflow = a != 0 && (r/a != b || (a == -1 && b == math.MinInt64))
	case OpDiv:
		if b == 0 {
			return Null(), pgerr.DivisionByZero()
		}
		if a == math.MinInt64 && b == -1 {
			overflow = true
		} else {
			r = a / b
		}
	case OpMod:
		if b == 0 {
			return Null(), pgerr.DivisionByZero()
		}
		if b == -1 {
			r = 0
		} else {
			r = a % b
		}
	default:
		return Null(), pgerr.Internal("integer operator %s", op)
	}
	if t == TypeInt {
		if overflow || r > math.MaxInt32 || r < math.MinInt32 {
			return Null(), pgerr.OutOfRange("integer")
		}
		return Int(r), nil
	}
	if overflow {
		return Null(), pgerr.OutOfRange("bigint")
	}
	return BigInt(r), nil
}

func floatArith(op Op, a, b float64) (Value, error) {
	var r float64
	switch op {
	case OpAdd:
		r = a + b
	case OpSub:
		r = a - b
	case OpMul:
		r = a * b
	case OpDiv:
		if b == 0 {
			return Null(), pgerr.DivisionByZero()
		}
		r = a / b
	case OpMod:
		return Null(), pgerr.UndefinedOperator("double precision % double precision")
	case OpPow:
		if a == 0 && b < 0 {
			return Null(), pgerr.New(pgerr.KindEval, "2201F", "zero raised to a negative power is undefined")
		}
		r = math.Pow(a, b)
	}
	if math.IsInf(r, 0) && !math.IsInf(a, 0) && !math.IsInf(b, 0) {
		return Null(), pgerr.New(pgerr.KindType, pgerr.CodeNumericValueOutOfRange, "value out of range: overflow")
	}
	return Float(r), nil
}
