package exec

import (
	"pgmem/internal/pgerr"
	"pgmem/internal/plan"
	"pgmem/internal/sql"
	"pgmem/internal/types"
)

// Eval computes e over env. Operands arrive with the types their operators
// expect, so evaluation never converts implicitly.
func (ex *Executor) Eval(e plan.Expr, env *Env) (types.Value, error) {
	switch e := e.(type) {
	case *plan.Const:
		return e.Value, nil

	case *plan.ColRef:
		return env.Row[e.Index], nil

	case *plan.OuterRef:
		cur := env
		for i := 0; i < e.Depth; i++ {
			cur = cur.Outer
		}
		return cur.Row[e.Index], nil

	case *plan.Unary:
		v, err := ex.Eval(e.Operand, env)
		if err != nil {
			return types.Null(), err
		}
		switch e.Op {
		case types.OpNot:
			return types.Not(types.Truth(v)).Value(), nil
		case types.OpNeg:
			return types.Negate(v)
		}
		return v, nil

	case *plan.Binary:
		return ex.evalBinary(e, env)

	case *plan.IsTest:
		v, err := ex.Eval(e.Operand, env)
		if err != nil {
			return types.Null(), err
		}
		var res bool
		switch e.Test {
		case sql.IsNull, sql.IsUnknown:
			res = v.IsNull()
		case sql.IsTrue:
			res = types.Truth(v) == types.True
		case sql.IsFalse:
			res = types.Truth(v) == types.False
		}
		return types.Bool(res != e.Not), nil

	case *plan.InList:
		x, err := ex.Eval(e.Operand, env)
		if err != nil || x.IsNull() {
			return types.Null(), err
		}
		sawNull := false
		for _, item := range e.List {
			v, err := ex.Eval(item, env)
			if err != nil {
				return types.Null(), err
			}
			eq, err := types.EvalBinary(e.Op, x, v)
			if err != nil {
				return types.Null(), err
			}
			switch types.Truth(eq) {
			case types.True:
				return types.Bool(!e.Not), nil
			case types.Unknown:
				sawNull = true
			}
		}
		if sawNull {
			return types.Null(), nil
		}
		return types.Bool(e.Not), nil

	case *plan.Case:
		for _, w := range e.Whens {
			c, err := ex.Eval(w.Cond, env)
			if err != nil {
				return types.Null(), err
			}
			if types.Truth(c) == types.True {
				return ex.Eval(w.Result, env)
			}
		}
		return ex.Eval(e.Else, env)

	case *plan.Cast:
		v, err := ex.Eval(e.Operand, env)
		if err != nil {
			return types.Null(), err
		}
		out, err := types.Cast(v, e.To)
		if err != nil {
			return types.Null(), err
		}
		return plan.Truncate(out, e.MaxLen), nil

	case *plan.Call:
		args := make([]types.Value, len(e.Args))
		for i, a := range e.Args {
			v, err := ex.Eval(a, env)
			if err != nil {
				return types.Null(), err
			}
			if v.IsNull() && e.Fn.Strict {
				return types.Null(), nil
			}
			args[i] = v
		}
		return e.Fn.Impl(ex.fn, args)

	case *plan.Subquery:
		return ex.evalSubquery(e, env)
	}
	return types.Null(), pgerr.Internal("unexpected expression %T", e)
}

// evalBinary evaluates AND and OR lazily: the right side is skipped once the
// left side decides the result.
func (ex *Executor) evalBinary(e *plan.Binary, env *Env) (types.Value, error) {
	l, err := ex.Eval(e.Left, env)
	if err != nil {
		return types.Null(), err
	}
	switch e.Op.Op {
	case types.OpAnd, types.OpOr:
		lt := types.Truth(l)
		if (e.Op.Op == types.OpAnd && lt == types.False) || (e.Op.Op == types.OpOr && lt == types.True) {
			return lt.Value(), nil
		}
		r, err := ex.Eval(e.Right, env)
		if err != nil {
			return types.Null(), err
		}
		if e.Op.Op == types.OpAnd {
			return types.And(lt, types.Truth(r)).Value(), nil
		}
		return types.Or(lt, types.Truth(r)).Value(), nil
	}
	r, err := ex.Eval(e.Right, env)
	if err != nil {
		return types.Null(), err
	}
	return types.EvalBinary(e.Op, l, r)
}

func (ex *Executor) evalSubquery(e *plan.Subquery, env *Env) (types.Value, error) {
	var x types.Value
	if e.Kind == plan.InSubquery {
		var err error
		if x, err = ex.Eval(e.Operand, env); err != nil {
			return types.Null(), err
		}
	}
	it, err := ex.Open(e.Plan, env)
	if err != nil {
		return types.Null(), err
	}
	defer it.Close()

	switch e.Kind {
	case plan.ExistsSubquery:
		_, ok, err := it.Next()
		return types.Bool(ok), err

	case plan.ScalarSubquery:
		row, ok, err := it.Next()
		if err != nil || !ok {
			return types.Null(), err
		}
		_, more, err := it.Next()
		if err != nil {
			return types.Null(), err
		}
		if more {
			return types.Null(), pgerr.New(pgerr.KindEval, pgerr.CodeCardinalityViolation,
				"more than one row returned by a subquery used as an expression")
		}
		return row[0], nil
	}

	sawNull := false
	for {
		row, ok, err := it.Next()
		if err != nil {
			return types.Null(), err
		}
		if !ok {
			break
		}
		if x.IsNull() {
			sawNull = true
			break
		}
		v, err := types.Cast(row[0], e.Op.Right)
		if err != nil {
			return types.Null(), err
		}
		eq, err := types.EvalBinary(e.Op, x, v)
		if err != nil {
			return types.Null(), err
		}
		switch types.Truth(eq) {
		case types.True:
			return types.Bool(!e.Not), nil
		case types.Unknown:
			sawNull = true
		}
	}
	if sawNull {
		return types.Null(), nil
	}
	return types.Bool(e.Not), nil
}
