package sql

// RenameColumnRefs returns a copy of e in which references to column old are
// renamed. e itself is left untouched; subqueries are shared, not copied.
func RenameColumnRefs(e Expr, old, name string) Expr {
	switch x := e.(type) {
	case nil:
		return nil
	case *ColumnRef:
		cp := *x
		if cp.Column == old {
			cp.Column = name
		}
		return &cp
	case *UnaryExpr:
		return &UnaryExpr{Op: x.Op, Operand: RenameColumnRefs(x.Operand, old, name)}
	case *BinaryExpr:
		return &BinaryExpr{Op: x.Op, Left: RenameColumnRefs(x.Left, old, name), Right: RenameColumnRefs(x.Right, old, name)}
	case *IsExpr:
		return &IsExpr{Expr: RenameColumnRefs(x.Expr, old, name), Test: x.Test, Not: x.Not}
	case *BetweenExpr:
		return &BetweenExpr{
			Expr: RenameColumnRefs(x.Expr, old, name),
			Low:  RenameColumnRefs(x.Low, old, name),
			High: RenameColumnRefs(x.High, old, name),
			Not:  x.Not,
		}
	case *InExpr:
		return &InExpr{Expr: RenameColumnRefs(x.Expr, old, name), List: renameList(x.List, old, name), Subquery: x.Subquery, Not: x.Not}
	case *CastExpr:
		return &CastExpr{Expr: RenameColumnRefs(x.Expr, old, name), Type: x.Type}
	case *FuncCall:
		cp := *x
		cp.Args = renameList(x.Args, old, name)
		return &cp
	case *CaseExpr:
		cp := &CaseExpr{Operand: RenameColumnRefs(x.Operand, old, name), Else: RenameColumnRefs(x.Else, old, name)}
		for _, w := range x.Whens {
			cp.Whens = append(cp.Whens, WhenClause{
				Cond:   RenameColumnRefs(w.Cond, old, name),
				Result: RenameColumnRefs(w.Result, old, name),
			})
		}
		return cp
	}
	return e
}

func renameList(list []Expr, old, name string) []Expr {
	if list == nil {
		return nil
	}
	out := make([]Expr, len(list))
	for i, e := range list {
		out[i] = RenameColumnRefs(e, old, name)
	}
	return out
}

// ReferencesColumn reports whether e mentions column name outside of
// subqueries.
func ReferencesColumn(e Expr, name string) bool {
	switch x := e.(type) {
	case *ColumnRef:
		return x.Column == name
	case *UnaryExpr:
		return ReferencesColumn(x.Operand, name)
	case *BinaryExpr:
		return ReferencesColumn(x.Left, name) || ReferencesColumn(x.Right, name)
	case *IsExpr:
		return ReferencesColumn(x.Expr, name)
	case *BetweenExpr:
		return ReferencesColumn(x.Expr, name) || ReferencesColumn(x.Low, name) || ReferencesColumn(x.High, name)
	case *InExpr:
		return ReferencesColumn(x.Expr, name) || anyReferences(x.List, name)
	case *CastExpr:
		return ReferencesColumn(x.Expr, name)
	case *FuncCall:
		return anyReferences(x.Args, name)
	case *CaseExpr:
		if ReferencesColumn(x.Operand, name) || ReferencesColumn(x.Else, name) {
			return true
		}
		for _, w := range x.Whens {
			if ReferencesColumn(w.Cond, name) || ReferencesColumn(w.Result, name) {
				return true
			}
		}
	}
	return false
}

func anyReferences(list []Expr, name string) bool {
	for _, e := range list {
		if ReferencesColumn(e, name) {
			return true
		}
	}
	return false
}
