// Package pgerr defines the structured errors returned by the engine.
//
// Every failure surfaced by the engine is an *Error. It carries the
// engine-level Kind used by callers that only care about the category, and a
// *pgconn.PgError holding the PostgreSQL SQLSTATE, severity and message that
// the wire layer forwards verbatim to clients.
package pgerr

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Kind classifies an error independently of its SQLSTATE.
type Kind int

const (
	KindInternal Kind = iota
	KindParse
	KindUndefinedTable
	KindUndefinedColumn
	KindDuplicateTable
	KindType
	KindSchema
	KindConstraint
	KindUnknownFunction
	KindEval
)

func (k Kind) String() string {
	switch k {
	case KindParse:
		return "ParseError"
	case KindUndefinedTable:
		return "UndefinedTable"
	case KindUndefinedColumn:
		return "UndefinedColumn"
	case KindDuplicateTable:
		return "DuplicateTable"
	case KindType:
		return "TypeError"
	case KindSchema:
		return "SchemaError"
	case KindConstraint:
		return "ConstraintViolation"
	case KindUnknownFunction:
		return "UnknownFunction"
	case KindEval:
		return "EvalError"
	default:
		return "InternalError"
	}
}

// SQLSTATE codes used by the engine.
const (
	CodeSyntaxError               = "42601"
	CodeUndefinedTable            = "42P01"
	CodeUndefinedColumn           = "42703"
	CodeUndefinedFunction         = "42883"
	CodeUndefinedObject           = "42704"
	CodeDuplicateObject           = "42710"
	CodeInvalidForeignKey         = "42830"
	CodeInsufficientPrivilege     = "42501"
	CodeReservedName              = "42939"
	CodeInvalidTableDefinition    = "42P16"
	CodeInvalidParameterValue     = "22023"
	CodeUndefinedParameter        = "42704"
	CodeDuplicateTable            = "42P07"
	CodeDuplicateSchema           = "42P06"
	CodeDuplicateColumn           = "42701"
	CodeDuplicateAlias            = "42712"
	CodeAmbiguousColumn           = "42702"
	CodeGroupingError             = "42803"
	CodeDatatypeMismatch          = "42804"
	CodeCannotCoerce              = "42846"
	CodeInvalidColumnReference    = "42P10"
	CodeWrongObjectType           = "42809"
	CodeInvalidSchemaName         = "3F000"
	CodeDependentObjects          = "2BP01"
	CodeInvalidTextRepresentation = "22P02"
	CodeNumericValueOutOfRange    = "22003"
	CodeStringDataRightTruncation = "22001"
	CodeDivisionByZero            = "22012"
	CodeInvalidEscapeSequence     = "22025"
	CodeInvalidDatetimeFormat     = "22007"
	CodeCardinalityViolation      = "21000"
	CodeInvalidRowCountInLimit    = "2201W"
	CodeInvalidRowCountInOffset   = "2201X"
	CodeSequenceLimitExceeded     = "2200H"
	CodeNotNullViolation          = "23502"
	CodeForeignKeyViolation       = "23503"
	CodeUniqueViolation           = "23505"
	CodeCheckViolation            = "23514"
	CodeInFailedTransaction       = "25P02"
	CodeActiveTransaction         = "25001"
	CodeNoActiveTransaction       = "25P01"
	CodeQueryCanceled             = "57014"
	CodeTooManyConnections        = "53300"
	CodeProtocolViolation         = "08P01"
	CodeFeatureNotSupported       = "0A000"
	CodeInternalError             = "XX000"
)

// Error is the engine's structured error.
type Error struct {
	Kind Kind
	PG   *pgconn.PgError
}

func (e *Error) Error() string {
	return e.PG.Error()
}

// Unwrap exposes the PostgreSQL error so errors.As(err, **pgconn.PgError)
// works on anything the engine returns.
func (e *Error) Unwrap() error {
	return e.PG
}

// Code returns the SQLSTATE.
func (e *Error) Code() string {
	return e.PG.Code
}

// Message returns the bare PostgreSQL message, without severity or code.
func (e *Error) Message() string {
	return e.PG.Message
}

// New builds an error of the given kind and SQLSTATE.
func New(kind Kind, code, format string, args ...any) *Error {
	return &Error{
		Kind: kind,
		PG: &pgconn.PgError{
			Severity:            "ERROR",
			SeverityUnlocalized: "ERROR",
			Code:                code,
			Message:             fmt.Sprintf(format, args...),
		},
	}
}

// WithDetail sets the DETAIL field and returns e.
func (e *Error) WithDetail(format string, args ...any) *Error {
	e.PG.Detail = fmt.Sprintf(format, args...)
	return e
}

// WithTable records the schema/table/constraint an error refers to.
func (e *Error) WithTable(schema, table, constraint string) *Error {
	e.PG.SchemaName = schema
	e.PG.TableName = table
	e.PG.ConstraintName = constraint
	return e
}

// As extracts an *Error from err.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the Kind of err, KindInternal for foreign errors.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the SQLSTATE of err, CodeInternalError for foreign errors.
func CodeOf(err error) string {
	var pg *pgconn.PgError
	if errors.As(err, &pg) {
		return pg.Code
	}
	return CodeInternalError
}

// HasCode reports whether err carries the given SQLSTATE.
func HasCode(err error, code string) bool {
	return CodeOf(err) == code
}

// ToPgError converts any error into a *pgconn.PgError suitable for the wire.
func ToPgError(err error) *pgconn.PgError {
	var pg *pgconn.PgError
	if errors.As(err, &pg) {
		return pg
	}
	return Internal("%v", err).PG
}

// Notice builds a NOTICE or WARNING message.
func Notice(severity, code, format string, args ...any) *pgconn.Notice {
	return &pgconn.Notice{
		Severity:            severity,
		SeverityUnlocalized: severity,
		Code:                code,
		Message:             fmt.Sprintf(format, args...),
	}
}

// Canceled converts a context error into 57014.
func Canceled(err error) *Error {
	return New(KindEval, CodeQueryCanceled, "canceling statement due to user request").
		WithDetail("%v", err)
}
