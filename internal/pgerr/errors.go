package pgerr

// Constructors for the errors raised in more than one place. Messages follow
// PostgreSQL's wording so clients matching on text behave the same.

func Syntax(format string, args ...any) *Error {
	return New(KindParse, CodeSyntaxError, format, args...)
}

func UndefinedTable(name string) *Error {
	return New(KindUndefinedTable, CodeUndefinedTable, "relation %q does not exist", name)
}

func MissingFromEntry(name string) *Error {
	return New(KindUndefinedTable, CodeUndefinedTable, "missing FROM-clause entry for table %q", name)
}

func UndefinedColumn(name string) *Error {
	return New(KindUndefinedColumn, CodeUndefinedColumn, "column %q does not exist", name)
}

func UndefinedColumnOf(name, table string) *Error {
	return New(KindUndefinedColumn, CodeUndefinedColumn, "column %q of relation %q does not exist", name, table)
}

func DuplicateTable(name string) *Error {
	return New(KindDuplicateTable, CodeDuplicateTable, "relation %q already exists", name)
}

func DuplicateColumn(name, table string) *Error {
	return New(KindSchema, CodeDuplicateColumn, "column %q of relation %q already exists", name, table)
}

func AmbiguousColumn(name string) *Error {
	return New(KindSchema, CodeAmbiguousColumn, "column reference %q is ambiguous", name)
}

func DuplicateAlias(name string) *Error {
	return New(KindSchema, CodeDuplicateAlias, "table name %q specified more than once", name)
}

func InvalidSchema(name string) *Error {
	return New(KindSchema, CodeInvalidSchemaName, "schema %q does not exist", name)
}

func UndefinedFunction(signature string) *Error {
	return New(KindUnknownFunction, CodeUndefinedFunction, "function %s does not exist", signature).
		WithHint("No function matches the given name and argument types. You might need to add explicit type casts.")
}

func UndefinedOperator(signature string) *Error {
	return New(KindType, CodeUndefinedFunction, "operator does not exist: %s", signature).
		WithHint("No operator matches the given name and argument types. You might need to add explicit type casts.")
}

func DatatypeMismatch(format string, args ...any) *Error {
	return New(KindType, CodeDatatypeMismatch, format, args...)
}

func CannotCoerce(from, to string) *Error {
	return New(KindType, CodeCannotCoerce, "cannot cast type %s to %s", from, to)
}

func InvalidText(typeName, input string) *Error {
	return New(KindType, CodeInvalidTextRepresentation, "invalid input syntax for type %s: %q", typeName, input)
}

func OutOfRange(typeName string) *Error {
	return New(KindType, CodeNumericValueOutOfRange, "%s out of range", typeName)
}

func DivisionByZero() *Error {
	return New(KindEval, CodeDivisionByZero, "division by zero")
}

func Grouping(format string, args ...any) *Error {
	return New(KindSchema, CodeGroupingError, format, args...)
}

func FeatureNotSupported(format string, args ...any) *Error {
	return New(KindSchema, CodeFeatureNotSupported, format, args...)
}

func Internal(format string, args ...any) *Error {
	return New(KindInternal, CodeInternalError, format, args...)
}

// WithHint sets the HINT field and returns e.
func (e *Error) WithHint(hint string) *Error {
	e.PG.Hint = hint
	return e
}
