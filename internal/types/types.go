// Package types is the engine's type system: the value domains, the tagged
// Value union, three-valued logic, implicit coercion, operator resolution
// and explicit casts.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// DataType represents the logical type of a value or expression.
type DataType int

const (
	// TypeNull is the type of a bare NULL literal. It adopts the type its
	// context demands.
	TypeNull DataType = iota
	// TypeUnknown is the type of an untyped string literal ('abc').
	// Like PostgreSQL's "unknown" pseudo type it is resolved by context.
	TypeUnknown
	TypeBool
	TypeInt    // integer (int4)
	TypeBigInt // bigint (int8)
	TypeNumeric
	TypeFloat // double precision
	TypeString
	TypeTimestamp
)

// Name returns the PostgreSQL name of the type, as used in error messages.
func (t DataType) Name() string {
	switch t {
	case TypeNull, TypeUnknown:
		return "unknown"
	case TypeBool:
		return "boolean"
	case TypeInt:
		return "integer"
	case TypeBigInt:
		return "bigint"
	case TypeNumeric:
		return "numeric"
	case TypeFloat:
		return "double precision"
	case TypeString:
		return "text"
	case TypeTimestamp:
		return "timestamp without time zone"
	default:
		return "???"
	}
}

func (t DataType) String() string {
	return t.Name()
}

// IsNumeric reports whether t is one of the numeric domains.
func (t DataType) IsNumeric() bool {
	return numericRank(t) > 0
}

// IsUntyped reports whether t still needs context to become a real type.
func (t DataType) IsUntyped() bool {
	return t == TypeNull || t == TypeUnknown
}

// Value represents a single cell in a table (one column in one row) or the
// result of an expression. Only the field matching Type should be read; the
// zero Value is NULL.
type Value struct {
	Type DataType

	I64 int64           // for TypeInt, TypeBigInt
	F64 float64         // for TypeFloat
	S   string          // for TypeString
	B   bool            // for TypeBool
	D   decimal.Decimal // for TypeNumeric
	T   time.Time       // for TypeTimestamp
}

// Row represents one record: a slice of Values, one per column.
type Row []Value

// Copy returns a copy of r that shares no backing array with it.
func (r Row) Copy() Row {
	out := make(Row, len(r))
	copy(out, r)
	return out
}

// Null returns the NULL value.
func Null() Value { return Value{Type: TypeNull} }

func Bool(b bool) Value { return Value{Type: TypeBool, B: b} }

func Int(i int64) Value { return Value{Type: TypeInt, I64: i} }

func BigInt(i int64) Value { return Value{Type: TypeBigInt, I64: i} }

func Float(f float64) Value { return Value{Type: TypeFloat, F64: f} }

func Numeric(d decimal.Decimal) Value { return Value{Type: TypeNumeric, D: d} }

func Text(s string) Value { return Value{Type: TypeString, S: s} }

func Timestamp(t time.Time) Value { return Value{Type: TypeTimestamp, T: t} }

// IsNull reports whether v is NULL.
func (v Value) IsNull() bool {
	return v.Type == TypeNull
}

// LookupType maps a SQL type name (already lower-cased, modifiers stripped)
// to a DataType.
func LookupType(name string) (DataType, bool) {
	switch name {
	case "int", "integer", "int4", "smallint", "int2", "serial", "serial4", "smallserial", "serial2":
		return TypeInt, true
	case "bigint", "int8", "bigserial", "serial8":
		return TypeBigInt, true
	case "numeric", "decimal":
		return TypeNumeric, true
	case "real", "float4", "float8", "float", "double precision", "double":
		return TypeFloat, true
	case "text", "varchar", "character varying", "char", "character", "bpchar", "string", "name":
		return TypeString, true
	case "bool", "boolean":
		return TypeBool, true
	case "timestamp", "timestamptz", "timestamp without time zone", "timestamp with time zone":
		return TypeTimestamp, true
	default:
		return TypeNull, false
	}
}

// IsSerial reports whether a type name declares an auto-incrementing column.
func IsSerial(name string) bool {
	switch name {
	case "serial", "serial4", "bigserial", "serial8", "smallserial", "serial2":
		return true
	}
	return false
}
