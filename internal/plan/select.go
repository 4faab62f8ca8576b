package plan

import (
	"fmt"

	"pgmem/internal/pgerr"
	"pgmem/internal/sql"
	"pgmem/internal/types"
)

// Select plans a query. The returned node's columns are the result columns.
func (p *Planner) Select(sel *sql.SelectStmt) (Node, error) {
	return p.planSelect(sel, nil)
}

// target is a select-list entry after * expansion. Expanded columns have no
// AST and read input column col.
type target struct {
	ast  sql.Expr
	col  int
	name string
}

// planSelect builds
//
//	Scan/Join -> Filter(WHERE) -> Aggregate -> Filter(HAVING) -> Project
//	-> Distinct -> Sort -> Limit -> Trim
//
// outer is the scope of the enclosing query for subqueries, nil at top level.
func (p *Planner) planSelect(sel *sql.SelectStmt, outer *scope) (Node, error) {
	node, s, err := p.planFromList(sel.From, outer)
	if err != nil {
		return nil, err
	}
	targets, err := expandTargets(s, sel.Targets)
	if err != nil {
		return nil, err
	}

	if sel.Where != nil {
		w, err := p.bind(s.with("WHERE"), sel.Where)
		if err != nil {
			return nil, err
		}
		if w, err = boolArg(w, "WHERE"); err != nil {
			return nil, err
		}
		node = &Filter{Input: node, Pred: w}
	}

	proj := s
	var agg *aggState
	if len(sel.GroupBy) > 0 || sel.Having != nil || hasAggregate(s, sel) {
		agg = &aggState{}
		gs := s.with("GROUP BY")
		for _, g := range sel.GroupBy {
			e, err := p.bindGroupKey(gs, g, targets)
			if err != nil {
				return nil, err
			}
			agg.groups = append(agg.groups, e)
		}
		agg.addDependentGroups(s)
		proj = s.with("")
		proj.agg = agg
	}

	exprs := make([]Expr, 0, len(targets))
	cols := make([]Column, 0, len(targets))
	sl := proj.with("SELECT")
	for _, t := range targets {
		var e Expr
		if t.ast == nil {
			e, err = starColumn(proj, t.col)
		} else {
			e, err = p.bind(sl, t.ast)
		}
		if err != nil {
			return nil, err
		}
		e = settle(e)
		exprs = append(exprs, e)
		cols = append(cols, Column{Name: t.name, Type: e.Type()})
	}

	var having Expr
	if sel.Having != nil {
		h, err := p.bind(proj.with("HAVING"), sel.Having)
		if err != nil {
			return nil, err
		}
		if having, err = boolArg(h, "HAVING"); err != nil {
			return nil, err
		}
	}

	keys, exprs, err := p.bindOrderBy(proj.with("ORDER BY"), sel, targets, exprs)
	if err != nil {
		return nil, err
	}
	for _, e := range exprs[len(cols):] {
		cols = append(cols, Column{Name: "?column?", Type: e.Type()})
	}

	if agg != nil {
		aggCols := make([]Column, 0, len(agg.groups)+len(agg.calls))
		for _, g := range agg.groups {
			aggCols = append(aggCols, Column{Name: "?group?", Type: g.Type()})
		}
		for _, c := range agg.calls {
			aggCols = append(aggCols, Column{Name: c.Agg.Name, Type: c.Agg.Result})
		}
		node = &Aggregate{Input: node, Groups: agg.groups, Aggs: agg.calls, Cols: aggCols}
		if having != nil {
			node = &Filter{Input: node, Pred: having}
		}
	}

	node = &Project{Input: node, Exprs: exprs, Cols: cols}
	if sel.Distinct {
		node = &Distinct{Input: node}
	}
	if len(keys) > 0 {
		node = &Sort{Input: node, Keys: keys}
	}
	if sel.Limit != nil || sel.Offset != nil {
		lim := &Limit{Input: node}
		if sel.Limit != nil {
			if lim.Count, err = p.bindLimit(sel.Limit, "LIMIT"); err != nil {
				return nil, err
			}
		}
		if sel.Offset != nil {
			if lim.Offset, err = p.bindLimit(sel.Offset, "OFFSET"); err != nil {
				return nil, err
			}
		}
		node = lim
	}
	if len(exprs) > len(targets) {
		node = &Trim{Input: node, Width: len(targets)}
	}
	return node, nil
}

func expandTargets(s *scope, items []sql.SelectTarget) ([]target, error) {
	var out []target
	for _, item := range items {
		star, ok := item.Expr.(*sql.Star)
		if !ok {
			name := item.Alias
			if name == "" {
				name = FigureName(item.Expr)
			}
			out = append(out, target{ast: item.Expr, name: name})
			continue
		}
		lo, hi := 0, len(s.cols)
		if star.Table != "" {
			v, found := s.findVar(star.Schema, star.Table)
			if !found {
				return nil, s.missing(&sql.ColumnRef{Schema: star.Schema, Table: star.Table, Column: "*"})
			}
			lo, hi = v.start, v.end
		} else if !s.hasFrom {
			return nil, pgerr.Syntax("SELECT * with no tables specified is not valid")
		}
		for i := lo; i < hi; i++ {
			out = append(out, target{col: i, name: s.cols[i].name})
		}
	}
	return out, nil
}

// starColumn binds an expanded * column, which in a grouped query must be
// a grouping column.
func starColumn(s *scope, idx int) (Expr, error) {
	col := s.cols[idx]
	if s.agg != nil {
		k := s.agg.groupOf(idx)
		if k < 0 {
			return nil, ungrouped(col)
		}
		return &ColRef{Index: k, T: col.typ}, nil
	}
	return &ColRef{Index: idx, T: col.typ}, nil
}

// hasAggregate reports whether the select list or ORDER BY call an
// aggregate of this query level.
func hasAggregate(s *scope, sel *sql.SelectStmt) bool {
	for _, t := range sel.Targets {
		if containsAggregate(s, t.Expr) {
			return true
		}
	}
	for _, o := range sel.OrderBy {
		if containsAggregate(s, o.Expr) {
			return true
		}
	}
	return false
}

// bindGroupKey resolves a GROUP BY item: an ordinal names a select-list
// entry, a bare name prefers an input column over an output alias, anything
// else is an expression over the input.
func (p *Planner) bindGroupKey(s *scope, g sql.Expr, targets []target) (Expr, error) {
	if n, ok := ordinal(g); ok {
		if n < 1 || n > int64(len(targets)) {
			return nil, pgerr.New(pgerr.KindParse, pgerr.CodeInvalidColumnReference,
				"GROUP BY position %d is not in select list", n)
		}
		t := targets[n-1]
		if t.ast == nil {
			return &ColRef{Index: t.col, T: s.cols[t.col].typ}, nil
		}
		return p.bind(s, t.ast)
	}
	if ref, ok := g.(*sql.ColumnRef); ok && ref.Table == "" {
		if _, found, err := s.lookup(ref); err == nil && !found {
			for _, t := range targets {
				if t.ast != nil && t.name == ref.Column {
					return p.bind(s, t.ast)
				}
			}
		}
	}
	return p.bind(s, g)
}

// ordinal recognises an integer constant used as a column position.
func ordinal(e sql.Expr) (int64, bool) {
	lit, ok := e.(*sql.Literal)
	if !ok || (lit.Value.Type != types.TypeInt && lit.Value.Type != types.TypeBigInt) {
		return 0, false
	}
	return lit.Value.I64, true
}

// bindOrderBy resolves ORDER BY items to positions in the projected row,
// appending hidden columns for expressions that are not in the select list.
func (p *Planner) bindOrderBy(s *scope, sel *sql.SelectStmt, targets []target, exprs []Expr) ([]SortKey, []Expr, error) {
	var keys []SortKey
	for _, item := range sel.OrderBy {
		idx := -1
		if n, ok := ordinal(item.Expr); ok {
			if n < 1 || n > int64(len(targets)) {
				return nil, nil, pgerr.New(pgerr.KindParse, pgerr.CodeInvalidColumnReference,
					"ORDER BY position %d is not in select list", n)
			}
			idx = int(n - 1)
		} else if lit, ok := item.Expr.(*sql.Literal); ok && lit.Value.Type == types.TypeString {
			return nil, nil, pgerr.Syntax("non-integer constant in ORDER BY")
		} else if ref, ok := item.Expr.(*sql.ColumnRef); ok && ref.Table == "" {
			for i, t := range targets {
				if t.name != ref.Column {
					continue
				}
				if idx >= 0 && !Equal(exprs[idx], exprs[i]) {
					return nil, nil, pgerr.New(pgerr.KindSchema, pgerr.CodeAmbiguousColumn,
						"ORDER BY %q is ambiguous", ref.Column)
				}
				if idx < 0 {
					idx = i
				}
			}
		}

		if idx < 0 {
			e, err := p.bind(s, item.Expr)
			if err != nil {
				return nil, nil, err
			}
			e = settle(e)
			for i := range exprs {
				if Equal(exprs[i], e) {
					idx = i
					break
				}
			}
			if idx < 0 {
				if sel.Distinct {
					return nil, nil, pgerr.New(pgerr.KindParse, pgerr.CodeInvalidColumnReference,
						"for SELECT DISTINCT, ORDER BY expressions must appear in select list")
				}
				exprs = append(exprs, e)
				idx = len(exprs) - 1
			}
		}

		// PostgreSQL's default: NULLs are larger than every value.
		nullsFirst := item.Desc
		switch item.Nulls {
		case sql.NullsFirst:
			nullsFirst = true
		case sql.NullsLast:
			nullsFirst = false
		}
		keys = append(keys, SortKey{Index: idx, Desc: item.Desc, NullsFirst: nullsFirst})
	}
	return keys, exprs, nil
}

func (p *Planner) bindLimit(e sql.Expr, clause string) (Expr, error) {
	x, err := p.bind(&scope{clause: clause}, e)
	if err != nil {
		return nil, err
	}
	out, ok, err := coerce(x, types.TypeBigInt, types.CoerceAssignment)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, pgerr.DatatypeMismatch("argument of %s must be type bigint, not type %s", clause, x.Type().Name())
	}
	return out, nil
}

// planFromList cross joins the FROM items. An empty FROM yields one empty
// row.
func (p *Planner) planFromList(items []sql.TableExpr, outer *scope) (Node, *scope, error) {
	s := &scope{parent: outer, hasFrom: len(items) > 0}
	if len(items) == 0 {
		return &Values{Rows: [][]Expr{{}}}, s, nil
	}
	var node Node
	for _, te := range items {
		n, frag, err := p.planFromItem(te, outer)
		if err != nil {
			return nil, nil, err
		}
		if err := s.merge(frag); err != nil {
			return nil, nil, err
		}
		if node == nil {
			node = n
			continue
		}
		node = &Join{Kind: sql.JoinCross, Left: node, Right: n, Cols: joinCols(node, n)}
	}
	return node, s, nil
}

func joinCols(l, r Node) []Column {
	out := make([]Column, 0, len(l.Columns())+len(r.Columns()))
	out = append(out, l.Columns()...)
	return append(out, r.Columns()...)
}

func (p *Planner) planFromItem(te sql.TableExpr, outer *scope) (Node, *scope, error) {
	frag := &scope{parent: outer, hasFrom: true}
	switch x := te.(type) {
	case *sql.TableRef:
		t, err := p.cat.LookupTable(x.Name, p.path)
		if err != nil {
			return nil, nil, err
		}
		v := rangeVar{name: t.Name, schema: t.Schema, relation: t.Name}
		if pk := t.PrimaryKey(); pk != nil {
			v.key = pk.Columns
		}
		if x.Alias != "" {
			v.name, v.schema = x.Alias, ""
		}
		scan := &Scan{Table: t}
		cols := make([]scopeCol, len(t.Columns))
		for i, c := range t.Columns {
			scan.Cols = append(scan.Cols, Column{Name: c.Name, Type: c.Type})
			cols[i] = scopeCol{name: c.Name, table: v.name, typ: c.Type}
		}
		frag.addVar(v, cols)
		return scan, frag, nil

	case *sql.SubqueryTable:
		sub, err := p.planSelect(x.Select, outer)
		if err != nil {
			return nil, nil, err
		}
		cols, err := aliasColumns(x.Alias, sub.Columns(), x.ColumnAliases)
		if err != nil {
			return nil, nil, err
		}
		frag.addVar(rangeVar{name: x.Alias}, cols)
		return sub, frag, nil

	case *sql.ValuesTable:
		vals, err := p.planValues(x.Rows, outer)
		if err != nil {
			return nil, nil, err
		}
		cols, err := aliasColumns(x.Alias, vals.Cols, x.ColumnAliases)
		if err != nil {
			return nil, nil, err
		}
		frag.addVar(rangeVar{name: x.Alias}, cols)
		return vals, frag, nil

	case *sql.JoinExpr:
		l, lf, err := p.planFromItem(x.Left, outer)
		if err != nil {
			return nil, nil, err
		}
		r, rf, err := p.planFromItem(x.Right, outer)
		if err != nil {
			return nil, nil, err
		}
		if err := frag.merge(lf); err != nil {
			return nil, nil, err
		}
		if err := frag.merge(rf); err != nil {
			return nil, nil, err
		}
		join := &Join{Kind: x.Type, Left: l, Right: r, Cols: joinCols(l, r)}
		if x.On != nil {
			on, err := p.bind(frag.with("JOIN conditions"), x.On)
			if err != nil {
				return nil, nil, err
			}
			if join.On, err = boolArg(on, "JOIN/ON"); err != nil {
				return nil, nil, err
			}
		}
		return join, frag, nil
	}
	return nil, nil, pgerr.Internal("unexpected FROM item %T", te)
}

func aliasColumns(alias string, cols []Column, names []string) ([]scopeCol, error) {
	if len(names) > len(cols) {
		return nil, pgerr.New(pgerr.KindSchema, pgerr.CodeInvalidColumnReference,
			"table %q has %d columns available but %d columns specified", alias, len(cols), len(names))
	}
	out := make([]scopeCol, len(cols))
	for i, c := range cols {
		out[i] = scopeCol{name: c.Name, table: alias, typ: c.Type}
		if i < len(names) {
			out[i].name = names[i]
		}
	}
	return out, nil
}

// planValues binds a VALUES list; each column takes the common type of its
// entries.
func (p *Planner) planValues(rows [][]sql.Expr, outer *scope) (*Values, error) {
	s := &scope{parent: outer, clause: "VALUES"}
	out := &Values{Rows: make([][]Expr, len(rows))}
	for i, row := range rows {
		out.Rows[i] = make([]Expr, len(row))
		for j, e := range row {
			x, err := p.bind(s, e)
			if err != nil {
				return nil, err
			}
			out.Rows[i][j] = x
		}
	}
	width := len(rows[0])
	for j := 0; j < width; j++ {
		column := make([]Expr, len(rows))
		for i := range rows {
			column[i] = out.Rows[i][j]
		}
		t, err := common("VALUES", column)
		if err != nil {
			return nil, err
		}
		for i := range rows {
			out.Rows[i][j] = column[i]
		}
		out.Cols = append(out.Cols, Column{Name: fmt.Sprintf("column%d", j+1), Type: t})
	}
	return out, nil
}

// FigureName derives an output column name the way PostgreSQL does for
// select-list entries without an alias.
func FigureName(e sql.Expr) string {
	switch x := e.(type) {
	case *sql.ColumnRef:
		return x.Column
	case *sql.FuncCall:
		return x.Name
	case *sql.CastExpr:
		if n := FigureName(x.Expr); n != "?column?" {
			return n
		}
		return typeLabel(x.Type.Name)
	case *sql.CaseExpr:
		return "case"
	case *sql.ExistsExpr:
		return "exists"
	case *sql.SubqueryExpr:
		if len(x.Select.Targets) == 1 {
			t := x.Select.Targets[0]
			if t.Alias != "" {
				return t.Alias
			}
			if _, star := t.Expr.(*sql.Star); !star {
				return FigureName(t.Expr)
			}
		}
	case *sql.Literal:
		if x.Value.Type == types.TypeBool {
			return "bool"
		}
	}
	return "?column?"
}

// typeLabel is the internal type name PostgreSQL uses to label casts.
func typeLabel(name string) string {
	switch name {
	case "int", "integer", "int4":
		return "int4"
	case "bigint", "int8":
		return "int8"
	case "smallint", "int2":
		return "int2"
	case "double precision", "float", "float8", "double":
		return "float8"
	case "real", "float4":
		return "float4"
	case "boolean", "bool":
		return "bool"
	case "character varying", "varchar":
		return "varchar"
	case "character", "char", "bpchar":
		return "bpchar"
	case "decimal", "numeric":
		return "numeric"
	case "timestamp without time zone", "timestamp":
		return "timestamp"
	case "timestamp with time zone", "timestamptz":
		return "timestamptz"
	}
	return name
}
