package types

// CoercionContext says how permissive a conversion may be, mirroring
// PostgreSQL's implicit / assignment / explicit cast contexts.
type CoercionContext int

const (
	CoerceImplicit CoercionContext = iota
	CoerceAssignment
	CoerceExplicit
)

// numericRank orders the numeric domains from narrowest to widest.
// Zero means "not numeric".
func numericRank(t DataType) int {
	switch t {
	case TypeInt:
		return 1
	case TypeBigInt:
		return 2
	case TypeNumeric:
		return 3
	case TypeFloat:
		return 4
	default:
		return 0
	}
}

// CommonType returns the type two operands are converted to before being
// compared or combined. Numeric domains widen toward the widest present
// domain; untyped literals adopt their partner's type; text never meets a
// numeric implicitly.
func CommonType(a, b DataType) (DataType, bool) {
	switch {
	case a == b:
		if a.IsUntyped() {
			// Two untyped literals resolve as text, NULL with NULL stays NULL.
			if a == TypeUnknown {
				return TypeString, true
			}
			return TypeNull, true
		}
		return a, true
	case a.IsUntyped() && b.IsUntyped():
		return TypeString, true
	case a.IsUntyped():
		return b, true
	case b.IsUntyped():
		return a, true
	}
	ra, rb := numericRank(a), numericRank(b)
	if ra > 0 && rb > 0 {
		if ra > rb {
			return a, true
		}
		return b, true
	}
	return TypeNull, false
}

// CanCoerce reports whether a value of type from may be converted to type to
// in the given context.
func CanCoerce(from, to DataType, ctx CoercionContext) bool {
	if from == to || from == TypeNull {
		return true
	}
	if from == TypeUnknown {
		// An untyped literal is parsed by the target type's input function.
		return true
	}
	rf, rt := numericRank(from), numericRank(to)
	if rf > 0 && rt > 0 {
		if rf < rt {
			return true
		}
		return ctx >= CoerceAssignment
	}
	if to == TypeString && ctx >= CoerceAssignment {
		return true
	}
	if ctx < CoerceExplicit {
		return false
	}
	return explicitCastExists(from, to)
}

func explicitCastExists(from, to DataType) bool {
	switch {
	case from == TypeString:
		return to != TypeNull
	case to == TypeString:
		return true
	case from == TypeBool:
		return to == TypeInt
	case to == TypeBool:
		return from == TypeInt
	}
	return false
}

// ResolveCommon finds the single type a list of expressions (CASE branches,
// COALESCE arguments, IN lists) resolves to.
func ResolveCommon(ts []DataType) (DataType, bool) {
	out := TypeNull
	for _, t := range ts {
		c, ok := CommonType(out, t)
		if !ok {
			return TypeNull, false
		}
		out = c
	}
	if out == TypeUnknown {
		out = TypeString
	}
	return out, true
}
