package plan

import (
	"pgmem/internal/catalog"
	"pgmem/internal/functions"
	"pgmem/internal/pgerr"
	"pgmem/internal/sql"
	"pgmem/internal/types"
)

// Planner binds statements against a catalog. Unqualified table names are
// resolved through path.
type Planner struct {
	cat  *catalog.Catalog
	path []string
}

// New creates a planner for one statement.
func New(cat *catalog.Catalog, path []string) *Planner {
	return &Planner{cat: cat, path: path}
}

// bind resolves and type-checks e in scope s.
func (p *Planner) bind(s *scope, e sql.Expr) (Expr, error) {
	if s.agg != nil {
		if k := p.groupedExpr(s, e); k >= 0 {
			return &ColRef{Index: k, T: s.agg.groups[k].Type()}, nil
		}
	}

	switch e := e.(type) {
	case *sql.Literal:
		return literal(e.Value), nil
	case *sql.ColumnRef:
		return p.bindColumn(s, e)
	case *sql.UnaryExpr:
		return p.bindUnary(s, e)
	case *sql.BinaryExpr:
		l, err := p.bind(s, e.Left)
		if err != nil {
			return nil, err
		}
		r, err := p.bind(s, e.Right)
		if err != nil {
			return nil, err
		}
		return binary(e.Op, l, r)
	case *sql.IsExpr:
		return p.bindIs(s, e)
	case *sql.BetweenExpr:
		var rewritten sql.Expr = &sql.BinaryExpr{
			Op:    types.OpAnd,
			Left:  &sql.BinaryExpr{Op: types.OpGe, Left: e.Expr, Right: e.Low},
			Right: &sql.BinaryExpr{Op: types.OpLe, Left: e.Expr, Right: e.High},
		}
		if e.Not {
			rewritten = &sql.UnaryExpr{Op: types.OpNot, Operand: rewritten}
		}
		return p.bind(s, rewritten)
	case *sql.InExpr:
		if e.Subquery != nil {
			return p.bindInSubquery(s, e)
		}
		return p.bindInList(s, e)
	case *sql.ExistsExpr:
		sub, err := p.planSelect(e.Subquery, s)
		if err != nil {
			return nil, err
		}
		return &Subquery{Kind: ExistsSubquery, Plan: sub, T: types.TypeBool}, nil
	case *sql.SubqueryExpr:
		sub, err := p.planSelect(e.Select, s)
		if err != nil {
			return nil, err
		}
		cols := sub.Columns()
		if len(cols) != 1 {
			return nil, pgerr.Syntax("subquery must return only one column")
		}
		return &Subquery{Kind: ScalarSubquery, Plan: sub, T: cols[0].Type}, nil
	case *sql.CastExpr:
		return p.bindCast(s, e)
	case *sql.FuncCall:
		return p.bindFunc(s, e)
	case *sql.CaseExpr:
		return p.bindCase(s, e)
	case *sql.Star:
		return nil, pgerr.Syntax("syntax error at or near \"*\"")
	case *sql.DefaultExpr:
		return nil, pgerr.Syntax("DEFAULT is not allowed in this context")
	}
	return nil, pgerr.Internal("unexpected expression node %T", e)
}

// groupedExpr reports which GROUP BY expression e computes, or -1. Columns
// and constants go through the normal path.
func (p *Planner) groupedExpr(s *scope, e sql.Expr) int {
	switch x := e.(type) {
	case *sql.Literal, *sql.ColumnRef, *sql.SubqueryExpr, *sql.ExistsExpr:
		return -1
	case *sql.FuncCall:
		if isAggregateCall(x) {
			return -1
		}
	}
	bound, err := p.bind(s.input(), e)
	if err != nil {
		return -1
	}
	return s.agg.matchGroup(bound)
}

func literal(v types.Value) *Const {
	switch v.Type {
	case types.TypeNull:
		return &Const{Value: v, T: types.TypeNull}
	case types.TypeString:
		return &Const{Value: v, T: types.TypeUnknown}
	}
	return &Const{Value: v, T: v.Type}
}

func (p *Planner) bindColumn(s *scope, ref *sql.ColumnRef) (Expr, error) {
	for depth, cur := 0, s; cur != nil; depth, cur = depth+1, cur.parent {
		idx, ok, err := cur.lookup(ref)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		col := cur.cols[idx]
		if cur.agg != nil {
			k := cur.agg.groupOf(idx)
			if k < 0 {
				return nil, ungrouped(col)
			}
			idx = k
		}
		if depth == 0 {
			return &ColRef{Index: idx, T: col.typ}, nil
		}
		return &OuterRef{Depth: depth, Index: idx, T: col.typ}, nil
	}
	return nil, s.missing(ref)
}

func ungrouped(col scopeCol) error {
	return pgerr.Grouping("column \"%s.%s\" must appear in the GROUP BY clause or be used in an aggregate function",
		col.table, col.name)
}

// coerce converts e to type to. Untyped constants are converted now, so a
// malformed literal fails at plan time as it does in PostgreSQL. ok is false
// when no conversion exists in ctx.
func coerce(e Expr, to types.DataType, ctx types.CoercionContext) (Expr, bool, error) {
	from := e.Type()
	if from == to || to.IsUntyped() {
		return e, true, nil
	}
	if c, isConst := e.(*Const); isConst && from.IsUntyped() {
		v, err := types.Cast(c.Value, to)
		if err != nil {
			return nil, true, err
		}
		return &Const{Value: v, T: to}, true, nil
	}
	if !types.CanCoerce(from, to, ctx) {
		return nil, false, nil
	}
	return &Cast{Operand: e, To: to}, true, nil
}

// settle gives an untyped expression the type text, as PostgreSQL does for
// output columns.
func settle(e Expr) Expr {
	if !e.Type().IsUntyped() {
		return e
	}
	out, _, err := coerce(e, types.TypeString, types.CoerceImplicit)
	if err != nil {
		return e
	}
	return out
}

// boolArg requires e to be boolean, naming the construct in the error.
func boolArg(e Expr, what string) (Expr, error) {
	out, ok, err := coerce(e, types.TypeBool, types.CoerceImplicit)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, pgerr.DatatypeMismatch("argument of %s must be type boolean, not type %s", what, e.Type().Name())
	}
	return out, nil
}

// binary resolves op for the operand types and converts both operands.
func binary(op types.Op, l, r Expr) (Expr, error) {
	o, err := types.ResolveBinary(op, l.Type(), r.Type())
	if err != nil {
		return nil, err
	}
	ctx := types.CoerceImplicit
	if op == types.OpConcat {
		// text || 1 converts the non-text side with its output function.
		ctx = types.CoerceAssignment
	}
	if l, err = operand(l, o.Left, ctx); err != nil {
		return nil, err
	}
	if r, err = operand(r, o.Right, ctx); err != nil {
		return nil, err
	}
	return &Binary{Op: o, Left: l, Right: r}, nil
}

func operand(e Expr, to types.DataType, ctx types.CoercionContext) (Expr, error) {
	out, ok, err := coerce(e, to, ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, pgerr.CannotCoerce(e.Type().Name(), to.Name())
	}
	return out, nil
}

func (p *Planner) bindUnary(s *scope, e *sql.UnaryExpr) (Expr, error) {
	x, err := p.bind(s, e.Operand)
	if err != nil {
		return nil, err
	}
	if e.Op == types.OpNot {
		if x, err = boolArg(x, "NOT"); err != nil {
			return nil, err
		}
		return &Unary{Op: types.OpNot, Operand: x, T: types.TypeBool}, nil
	}
	t, err := types.ResolveUnary(e.Op, x.Type())
	if err != nil {
		return nil, err
	}
	if x, err = operand(x, t, types.CoerceImplicit); err != nil {
		return nil, err
	}
	return &Unary{Op: e.Op, Operand: x, T: t}, nil
}

func (p *Planner) bindIs(s *scope, e *sql.IsExpr) (Expr, error) {
	x, err := p.bind(s, e.Expr)
	if err != nil {
		return nil, err
	}
	if e.Test != sql.IsNull {
		what := "IS "
		if e.Not {
			what += "NOT "
		}
		switch e.Test {
		case sql.IsTrue:
			what += "TRUE"
		case sql.IsFalse:
			what += "FALSE"
		default:
			what += "UNKNOWN"
		}
		if x, err = boolArg(x, what); err != nil {
			return nil, err
		}
	}
	return &IsTest{Operand: x, Test: e.Test, Not: e.Not}, nil
}

func (p *Planner) bindInList(s *scope, e *sql.InExpr) (Expr, error) {
	x, err := p.bind(s, e.Expr)
	if err != nil {
		return nil, err
	}
	list := make([]Expr, len(e.List))
	ts := []types.DataType{x.Type()}
	for i, item := range e.List {
		if list[i], err = p.bind(s, item); err != nil {
			return nil, err
		}
		ts = append(ts, list[i].Type())
	}
	common, ok := types.ResolveCommon(ts)
	if !ok {
		for _, item := range list {
			if _, err := types.ResolveBinary(types.OpEq, x.Type(), item.Type()); err != nil {
				return nil, err
			}
		}
		return nil, mismatch("IN", ts)
	}
	if common == types.TypeNull {
		common = types.TypeString
	}
	if x, err = operand(x, common, types.CoerceImplicit); err != nil {
		return nil, err
	}
	for i := range list {
		if list[i], err = operand(list[i], common, types.CoerceImplicit); err != nil {
			return nil, err
		}
	}
	op := types.Operator{Op: types.OpEq, Left: common, Right: common, Result: types.TypeBool}
	return &InList{Operand: x, List: list, Op: op, Not: e.Not}, nil
}

func (p *Planner) bindInSubquery(s *scope, e *sql.InExpr) (Expr, error) {
	x, err := p.bind(s, e.Expr)
	if err != nil {
		return nil, err
	}
	sub, err := p.planSelect(e.Subquery, s)
	if err != nil {
		return nil, err
	}
	cols := sub.Columns()
	if len(cols) != 1 {
		return nil, pgerr.Syntax("subquery has too many columns")
	}
	op, err := types.ResolveBinary(types.OpEq, x.Type(), cols[0].Type)
	if err != nil {
		return nil, err
	}
	if x, err = operand(x, op.Left, types.CoerceImplicit); err != nil {
		return nil, err
	}
	return &Subquery{Kind: InSubquery, Plan: sub, Operand: x, Op: op, Not: e.Not, T: types.TypeBool}, nil
}

// mismatch reports the first pair of types in ts that has no common type.
func mismatch(what string, ts []types.DataType) error {
	acc := types.TypeNull
	for _, t := range ts {
		c, ok := types.CommonType(acc, t)
		if !ok {
			return pgerr.DatatypeMismatch("%s types %s and %s cannot be matched", what, acc.Name(), t.Name())
		}
		acc = c
	}
	return pgerr.DatatypeMismatch("%s types cannot be matched", what)
}

// common converts exprs to their common type; untyped results become text.
func common(what string, exprs []Expr) (types.DataType, error) {
	ts := make([]types.DataType, len(exprs))
	for i, e := range exprs {
		ts[i] = e.Type()
	}
	t, ok := types.ResolveCommon(ts)
	if !ok {
		return t, mismatch(what, ts)
	}
	if t.IsUntyped() {
		t = types.TypeString
	}
	for i, e := range exprs {
		out, err := operand(e, t, types.CoerceImplicit)
		if err != nil {
			return t, err
		}
		exprs[i] = out
	}
	return t, nil
}

func (p *Planner) bindCase(s *scope, e *sql.CaseExpr) (Expr, error) {
	var subject Expr
	if e.Operand != nil {
		var err error
		if subject, err = p.bind(s, e.Operand); err != nil {
			return nil, err
		}
	}
	out := &Case{}
	results := make([]Expr, 0, len(e.Whens)+1)
	for _, w := range e.Whens {
		cond, err := p.bind(s, w.Cond)
		if err != nil {
			return nil, err
		}
		if subject != nil {
			if cond, err = binary(types.OpEq, subject, cond); err != nil {
				return nil, err
			}
		}
		if cond, err = boolArg(cond, "CASE/WHEN"); err != nil {
			return nil, err
		}
		res, err := p.bind(s, w.Result)
		if err != nil {
			return nil, err
		}
		out.Whens = append(out.Whens, When{Cond: cond})
		results = append(results, res)
	}
	var elseExpr Expr = &Const{Value: types.Null(), T: types.TypeNull}
	if e.Else != nil {
		var err error
		if elseExpr, err = p.bind(s, e.Else); err != nil {
			return nil, err
		}
	}
	results = append(results, elseExpr)
	t, err := common("CASE", results)
	if err != nil {
		return nil, err
	}
	for i := range out.Whens {
		out.Whens[i].Result = results[i]
	}
	out.Else = results[len(results)-1]
	out.T = t
	return out, nil
}

func (p *Planner) bindCast(s *scope, e *sql.CastExpr) (Expr, error) {
	to, maxLen, err := ResolveType(e.Type)
	if err != nil {
		return nil, err
	}
	x, err := p.bind(s, e.Expr)
	if err != nil {
		return nil, err
	}
	if c, ok := x.(*Const); ok && c.T.IsUntyped() {
		v, err := types.Cast(c.Value, to)
		if err != nil {
			return nil, err
		}
		return &Const{Value: Truncate(v, maxLen), T: to}, nil
	}
	if x.Type() == to && maxLen == 0 {
		return x, nil
	}
	if !types.CanCoerce(x.Type(), to, types.CoerceExplicit) {
		return nil, pgerr.CannotCoerce(x.Type().Name(), to.Name())
	}
	return &Cast{Operand: x, To: to, MaxLen: maxLen}, nil
}

// Truncate applies an explicit varchar(n) cast, which silently cuts.
func Truncate(v types.Value, maxLen int) types.Value {
	if maxLen <= 0 || v.Type != types.TypeString {
		return v
	}
	r := []rune(v.S)
	if len(r) <= maxLen {
		return v
	}
	return types.Text(string(r[:maxLen]))
}

func isAggregateCall(f *sql.FuncCall) bool {
	return (f.Schema == "" || f.Schema == catalog.PgCatalogSchema) && functions.IsAggregate(f.Name)
}

func (p *Planner) bindFunc(s *scope, f *sql.FuncCall) (Expr, error) {
	if f.Schema != "" && !p.cat.HasSchema(f.Schema) {
		return nil, pgerr.InvalidSchema(f.Schema)
	}
	if isAggregateCall(f) {
		return p.bindAggregate(s, f)
	}
	if f.Star {
		return nil, pgerr.New(pgerr.KindUnknownFunction, pgerr.CodeWrongObjectType,
			"%s(*) specified, but %s is not an aggregate function", f.Name, f.Name)
	}
	if f.Distinct {
		return nil, pgerr.New(pgerr.KindUnknownFunction, pgerr.CodeWrongObjectType,
			"DISTINCT specified, but %s is not an aggregate function", f.Name)
	}

	args := make([]Expr, len(f.Args))
	ts := make([]types.DataType, len(f.Args))
	for i, a := range f.Args {
		x, err := p.bind(s, a)
		if err != nil {
			return nil, err
		}
		args[i], ts[i] = x, x.Type()
	}
	if f.Schema != "" && f.Schema != catalog.PgCatalogSchema {
		return nil, pgerr.UndefinedFunction(functions.Signature(f.Schema, f.Name, ts))
	}

	switch f.Name {
	case "coalesce":
		return coalesce(args)
	case "nullif":
		if len(args) == 2 {
			return nullif(args[0], args[1])
		}
	}

	b, ok := functions.LookupScalar(f.Name, ts)
	if !ok {
		return nil, pgerr.UndefinedFunction(functions.Signature(f.Schema, f.Name, ts))
	}
	for i := range args {
		x, err := operand(args[i], b.Param(i), types.CoerceImplicit)
		if err != nil {
			return nil, err
		}
		args[i] = x
	}
	return &Call{Fn: b, Args: args}, nil
}

// coalesce(a, b, c) is CASE WHEN a IS NOT NULL THEN a WHEN b IS NOT NULL
// THEN b ELSE c END, which keeps its lazy evaluation.
func coalesce(args []Expr) (Expr, error) {
	if len(args) == 0 {
		return nil, pgerr.Syntax("syntax error at or near \")\"")
	}
	t, err := common("COALESCE", args)
	if err != nil {
		return nil, err
	}
	out := &Case{T: t, Else: args[len(args)-1]}
	for _, a := range args[:len(args)-1] {
		out.Whens = append(out.Whens, When{Cond: &IsTest{Operand: a, Test: sql.IsNull, Not: true}, Result: a})
	}
	return out, nil
}

// nullif(a, b) is CASE WHEN a = b THEN NULL ELSE a END.
func nullif(a, b Expr) (Expr, error) {
	eq, err := binary(types.OpEq, a, b)
	if err != nil {
		return nil, err
	}
	a = settle(a)
	return &Case{
		Whens: []When{{Cond: eq, Result: &Const{Value: types.Null(), T: a.Type()}}},
		Else:  a,
		T:     a.Type(),
	}, nil
}

func (p *Planner) bindAggregate(s *scope, f *sql.FuncCall) (Expr, error) {
	if s.inAggArgs {
		return nil, pgerr.Grouping("aggregate function calls cannot be nested")
	}
	// An aggregate over outer columns only is computed by the outer query.
	depth := aggregateLevel(s, f)
	for range depth {
		s = s.parent
	}
	if s.agg == nil {
		clause := s.clause
		if clause == "" {
			clause = "this context"
		}
		return nil, pgerr.Grouping("aggregate functions are not allowed in %s", clause)
	}
	inner := s.input()
	inner.inAggArgs = true

	var args []Expr
	var ts []types.DataType
	if !f.Star {
		if len(f.Args) == 0 {
			return nil, pgerr.UndefinedFunction(functions.Signature(f.Schema, f.Name, nil))
		}
		for _, a := range f.Args {
			x, err := p.bind(inner, a)
			if err != nil {
				return nil, err
			}
			args = append(args, x)
			ts = append(ts, x.Type())
		}
	}
	agg, ok := functions.LookupAggregate(f.Name, ts)
	if !ok {
		return nil, pgerr.UndefinedFunction(functions.Signature(f.Schema, f.Name, ts))
	}
	for i := range args {
		x, err := operand(args[i], agg.Params[i], types.CoerceImplicit)
		if err != nil {
			return nil, err
		}
		args[i] = x
	}
	s.agg.calls = append(s.agg.calls, AggCall{Agg: agg, Args: args, Distinct: f.Distinct})
	idx := len(s.agg.groups) + len(s.agg.calls) - 1
	if depth > 0 {
		return &OuterRef{Depth: depth, Index: idx, T: agg.Result}, nil
	}
	return &ColRef{Index: idx, T: agg.Result}, nil
}

// ResolveType maps a type name to its domain and varchar length limit.
func ResolveType(tn sql.TypeName) (types.DataType, int, error) {
	t, ok := types.LookupType(tn.Name)
	if !ok || types.IsSerial(tn.Name) {
		return types.TypeNull, 0, pgerr.New(pgerr.KindType, pgerr.CodeUndefinedObject, "type %q does not exist", tn.Name)
	}
	maxLen := 0
	switch tn.Name {
	case "char", "character", "bpchar":
		maxLen = 1
		fallthrough
	case "varchar", "character varying":
		if len(tn.Args) > 0 {
			if tn.Args[0] < 1 {
				return types.TypeNull, 0, pgerr.New(pgerr.KindType, pgerr.CodeInvalidParameterValue,
					"length for type %s must be at least 1", tn.Name)
			}
			maxLen = tn.Args[0]
		}
	}
	return t, maxLen, nil
}
