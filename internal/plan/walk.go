package plan

import "pgmem/internal/sql"

// walkSQL calls fn for e and its sub-expressions, depth first, stopping
// early when fn returns false. Subqueries are not entered.
func walkSQL(e sql.Expr, fn func(sql.Expr) bool) bool {
	if e == nil {
		return true
	}
	if !fn(e) {
		return false
	}
	switch x := e.(type) {
	case *sql.UnaryExpr:
		return walkSQL(x.Operand, fn)
	case *sql.BinaryExpr:
		return walkSQL(x.Left, fn) && walkSQL(x.Right, fn)
	case *sql.IsExpr:
		return walkSQL(x.Expr, fn)
	case *sql.BetweenExpr:
		return walkSQL(x.Expr, fn) && walkSQL(x.Low, fn) && walkSQL(x.High, fn)
	case *sql.InExpr:
		if !walkSQL(x.Expr, fn) {
			return false
		}
		for _, item := range x.List {
			if !walkSQL(item, fn) {
				return false
			}
		}
	case *sql.CastExpr:
		return walkSQL(x.Expr, fn)
	case *sql.FuncCall:
		for _, a := range x.Args {
			if !walkSQL(a, fn) {
				return false
			}
		}
	case *sql.CaseExpr:
		if !walkSQL(x.Operand, fn) {
			return false
		}
		for _, w := range x.Whens {
			if !walkSQL(w.Cond, fn) || !walkSQL(w.Result, fn) {
				return false
			}
		}
		return walkSQL(x.Else, fn)
	}
	return true
}

// containsAggregate reports whether e calls an aggregate that belongs to
// the query level of s.
func containsAggregate(s *scope, e sql.Expr) bool {
	found := false
	walkSQL(e, func(x sql.Expr) bool {
		if f, ok := x.(*sql.FuncCall); ok && isAggregateCall(f) && aggregateLevel(s, f) == 0 {
			found = true
		}
		return !found
	})
	return found
}

func containsSubquery(e sql.Expr) bool {
	found := false
	walkSQL(e, func(x sql.Expr) bool {
		switch x.(type) {
		case *sql.SubqueryExpr, *sql.ExistsExpr:
			found = true
		case *sql.InExpr:
			found = x.(*sql.InExpr).Subquery != nil
		}
		return !found
	})
	return found
}

// ReferencedColumns lists the unqualified names of the columns e mentions,
// in order of first appearance.
func ReferencedColumns(e sql.Expr) []string {
	var out []string
	seen := map[string]bool{}
	walkSQL(e, func(x sql.Expr) bool {
		if ref, ok := x.(*sql.ColumnRef); ok && !seen[ref.Column] {
			seen[ref.Column] = true
			out = append(out, ref.Column)
		}
		return true
	})
	return out
}

// aggregateLevel returns how many query levels above s the aggregate f
// belongs to: the innermost level any of its argument columns come from,
// or 0 when the arguments reference no columns.
func aggregateLevel(s *scope, f *sql.FuncCall) int {
	level := -1
	for _, a := range f.Args {
		walkSQL(a, func(x sql.Expr) bool {
			if ref, ok := x.(*sql.ColumnRef); ok {
				if d := columnDepth(s, ref); d >= 0 && (level < 0 || d < level) {
					level = d
				}
			}
			return true
		})
	}
	return max(level, 0)
}

// columnDepth returns the query level ref resolves at, or -1.
func columnDepth(s *scope, ref *sql.ColumnRef) int {
	for depth, cur := 0, s; cur != nil; depth, cur = depth+1, cur.parent {
		if _, ok, err := cur.lookup(ref); ok && err == nil {
			return depth
		} else if err != nil {
			return -1
		}
	}
	return -1
}
