package types

// Tristate is the result of a predicate under three-valued logic.
type Tristate uint8

const (
	False Tristate = iota
	True
	Unknown
)

func (t Tristate) String() string {
	switch t {
	case True:
		return "true"
	case False:
		return "false"
	default:
		return "unknown"
	}
}

// Truth interprets a boolean (or NULL) value as a Tristate.
func Truth(v Value) Tristate {
	if v.IsNull() {
		return Unknown
	}
	if v.B {
		return True
	}
	return False
}

// Value converts t back to a boolean value, unknown becoming NULL.
func (t Tristate) Value() Value {
	switch t {
	case True:
		return Bool(true)
	case False:
		return Bool(false)
	default:
		return Null()
	}
}

// And is the three-valued conjunction.
func And(a, b Tristate) Tristate {
	if a == False || b == False {
		return False
	}
	if a == Unknown || b == Unknown {
		return Unknown
	}
	return True
}

// Or is the three-valued disjunction.
func Or(a, b Tristate) Tristate {
	if a == True || b == True {
		return True
	}
	if a == Unknown || b == Unknown {
		return Unknown
	}
	return False
}

// Not is the three-valued negation.
func Not(a Tristate) Tristate {
	switch a {
	case True:
		return False
	case False:
		return True
	default:
		return Unknown
	}
}
