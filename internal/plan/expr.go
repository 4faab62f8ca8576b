package plan

import (
	"slices"

	"pgmem/internal/functions"
	"pgmem/internal/sql"
	"pgmem/internal/types"
)

// Expr is a bound scalar expression. Column references are resolved to
// positions and every operand already has the type its operator expects.
type Expr interface {
	Type() types.DataType
}

// Const is a constant. T differs from Value.Type for NULLs and for untyped
// string literals (T = TypeUnknown) that no context has resolved.
type Const struct {
	Value types.Value
	T     types.DataType
}

// ColRef reads position Index of the current row.
type ColRef struct {
	Index int
	T     types.DataType
}

// OuterRef reads position Index of the row Depth levels up the environment
// chain; it is how correlated subqueries see the enclosing query.
type OuterRef struct {
	Depth int
	Index int
	T     types.DataType
}

// Unary is -x, +x or NOT x.
type Unary struct {
	Op      types.Op
	Operand Expr
	T       types.DataType
}

// Binary applies a resolved operator. AND and OR are evaluated lazily.
type Binary struct {
	Op    types.Operator
	Left  Expr
	Right Expr
}

// IsTest is IS [NOT] NULL / TRUE / FALSE / UNKNOWN.
type IsTest struct {
	Operand Expr
	Test    sql.IsTest
	Not     bool
}

// InList is x [NOT] IN (a, b, ...), with all operands of type Op.Left.
type InList struct {
	Operand Expr
	List    []Expr
	Op      types.Operator
	Not     bool
}

// When is one branch of a Case.
type When struct {
	Cond   Expr
	Result Expr
}

// Case is a searched CASE; simple CASE, COALESCE and NULLIF are rewritten
// into it.
type Case struct {
	Whens []When
	Else  Expr
	T     types.DataType
}

// Cast converts its operand. MaxLen truncates text for explicit casts to
// varchar(n).
type Cast struct {
	Operand Expr
	To      types.DataType
	MaxLen  int
}

// Call invokes a scalar builtin.
type Call struct {
	Fn   *functions.Builtin
	Args []Expr
}

// SubqueryKind distinguishes the uses of a subquery in an expression.
type SubqueryKind int

const (
	ScalarSubquery SubqueryKind = iota
	ExistsSubquery
	InSubquery
)

// Subquery runs Plan with the current row as its outer environment. For
// InSubquery, Operand is compared with each row using Op, the subquery's
// values first being cast to Op.Right.
type Subquery struct {
	Kind    SubqueryKind
	Plan    Node
	Operand Expr
	Op      types.Operator
	Not     bool
	T       types.DataType
}

func (e *Const) Type() types.DataType    { return e.T }
func (e *ColRef) Type() types.DataType   { return e.T }
func (e *OuterRef) Type() types.DataType { return e.T }
func (e *Unary) Type() types.DataType    { return e.T }
func (e *Binary) Type() types.DataType   { return e.Op.Result }
func (e *IsTest) Type() types.DataType   { return types.TypeBool }
func (e *InList) Type() types.DataType   { return types.TypeBool }
func (e *Case) Type() types.DataType     { return e.T }
func (e *Cast) Type() types.DataType     { return e.To }
func (e *Call) Type() types.DataType     { return e.Fn.Result }
func (e *Subquery) Type() types.DataType { return e.T }

// Equal reports whether two bound expressions compute the same thing. It is
// used to match select-list entries against GROUP BY and ORDER BY
// expressions; subqueries never compare equal.
func Equal(a, b Expr) bool {
	switch x := a.(type) {
	case *Const:
		y, ok := b.(*Const)
		return ok && x.T == y.T && x.Value.Type == y.Value.Type && x.Value.Key() == y.Value.Key()
	case *ColRef:
		y, ok := b.(*ColRef)
		return ok && x.Index == y.Index
	case *OuterRef:
		y, ok := b.(*OuterRef)
		return ok && x.Depth == y.Depth && x.Index == y.Index
	case *Unary:
		y, ok := b.(*Unary)
		return ok && x.Op == y.Op && Equal(x.Operand, y.Operand)
	case *Binary:
		y, ok := b.(*Binary)
		return ok && x.Op == y.Op && Equal(x.Left, y.Left) && Equal(x.Right, y.Right)
	case *IsTest:
		y, ok := b.(*IsTest)
		return ok && x.Test == y.Test && x.Not == y.Not && Equal(x.Operand, y.Operand)
	case *InList:
		y, ok := b.(*InList)
		return ok && x.Not == y.Not && Equal(x.Operand, y.Operand) && equalList(x.List, y.List)
	case *Case:
		y, ok := b.(*Case)
		if !ok || len(x.Whens) != len(y.Whens) || !Equal(x.Else, y.Else) {
			return false
		}
		for i := range x.Whens {
			if !Equal(x.Whens[i].Cond, y.Whens[i].Cond) || !Equal(x.Whens[i].Result, y.Whens[i].Result) {
				return false
			}
		}
		return true
	case *Cast:
		y, ok := b.(*Cast)
		return ok && x.To == y.To && x.MaxLen == y.MaxLen && Equal(x.Operand, y.Operand)
	case *Call:
		y, ok := b.(*Call)
		return ok && x.Fn.Name == y.Fn.Name && slices.Equal(x.Fn.Params, y.Fn.Params) && equalList(x.Args, y.Args)
	case nil:
		return b == nil
	}
	return false
}

func equalList(a, b []Expr) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}
