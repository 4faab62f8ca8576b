package plan

import (
	"pgmem/internal/catalog"
	"pgmem/internal/pgerr"
	"pgmem/internal/sql"
	"pgmem/internal/types"
)

// tableScope exposes the columns of t, as seen by the expressions of a
// write statement or a constraint.
func tableScope(t *catalog.Table, alias string) *scope {
	s := &scope{hasFrom: true}
	v := rangeVar{name: t.Name, schema: t.Schema, relation: t.Name}
	if alias != "" {
		v.name, v.schema = alias, ""
	}
	cols := make([]scopeCol, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = scopeCol{name: c.Name, table: v.name, typ: c.Type}
	}
	s.addVar(v, cols)
	return s
}

// Insert plans INSERT ... VALUES and INSERT ... SELECT.
func (p *Planner) Insert(stmt *sql.InsertStmt) (*Insert, error) {
	t, err := p.cat.LookupTable(stmt.Table, p.path)
	if err != nil {
		return nil, err
	}
	out := &Insert{Table: t}
	explicit := len(stmt.Columns) > 0
	if explicit {
		seen := make(map[string]bool, len(stmt.Columns))
		for _, name := range stmt.Columns {
			if seen[name] {
				return nil, pgerr.New(pgerr.KindSchema, pgerr.CodeDuplicateColumn,
					"column %q specified more than once", name)
			}
			seen[name] = true
			_, idx, err := t.Column(name)
			if err != nil {
				return nil, err
			}
			out.Targets = append(out.Targets, idx)
		}
	} else {
		for i := range t.Columns {
			out.Targets = append(out.Targets, i)
		}
	}

	width := 0
	if stmt.Select != nil {
		q, err := p.planSelect(stmt.Select, nil)
		if err != nil {
			return nil, err
		}
		cols := q.Columns()
		width = len(cols)
		if err := insertArity(width, len(out.Targets), explicit); err != nil {
			return nil, err
		}
		for i, c := range cols {
			col := t.Columns[out.Targets[i]]
			if !types.CanCoerce(c.Type, col.Type, types.CoerceAssignment) {
				return nil, assignMismatch(col, c.Type, "expression")
			}
		}
		out.Query = q
	} else {
		width = len(stmt.Rows[0])
		vs := &scope{clause: "VALUES"}
		for _, row := range stmt.Rows {
			if len(row) != width {
				return nil, pgerr.Syntax("VALUES lists must all be the same length")
			}
			if err := insertArity(width, len(out.Targets), explicit); err != nil {
				return nil, err
			}
			bound := make([]Expr, width)
			for i, e := range row {
				if _, isDefault := e.(*sql.DefaultExpr); isDefault {
					continue
				}
				x, err := p.bind(vs, e)
				if err != nil {
					return nil, err
				}
				if bound[i], err = assign(t.Columns[out.Targets[i]], x); err != nil {
					return nil, err
				}
			}
			out.Rows = append(out.Rows, bound)
		}
	}
	out.Targets = out.Targets[:width]

	if out.Defaults, err = p.defaults(t); err != nil {
		return nil, err
	}
	if out.Checks, err = p.checks(t); err != nil {
		return nil, err
	}
	if out.Returning, err = p.returning(tableScope(t, ""), stmt.Returning); err != nil {
		return nil, err
	}
	return out, nil
}

func insertArity(values, targets int, explicit bool) error {
	if values > targets {
		return pgerr.Syntax("INSERT has more expressions than target columns")
	}
	if values < targets && explicit {
		return pgerr.Syntax("INSERT has more target columns than expressions")
	}
	return nil
}

// assign converts x for storage in col, as INSERT and UPDATE do.
func assign(col *catalog.Column, x Expr) (Expr, error) {
	out, ok, err := coerce(x, col.Type, types.CoerceAssignment)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, assignMismatch(col, x.Type(), "expression")
	}
	return out, nil
}

func assignMismatch(col *catalog.Column, from types.DataType, what string) error {
	return pgerr.DatatypeMismatch("column %q is of type %s but %s is of type %s",
		col.Name, col.TypeName(), what, from.Name()).
		WithHint("You will need to rewrite or cast the expression.")
}

// Update plans UPDATE ... SET ... [WHERE].
func (p *Planner) Update(stmt *sql.UpdateStmt) (*Update, error) {
	t, err := p.cat.LookupTable(stmt.Table, p.path)
	if err != nil {
		return nil, err
	}
	s := tableScope(t, stmt.Alias)
	out := &Update{Table: t}
	seen := make(map[string]bool, len(stmt.Assignments))
	set := s.with("UPDATE")
	for _, a := range stmt.Assignments {
		if seen[a.Column] {
			return nil, pgerr.Syntax("multiple assignments to same column %q", a.Column)
		}
		seen[a.Column] = true
		col, idx, err := t.Column(a.Column)
		if err != nil {
			return nil, err
		}
		item := SetItem{Column: idx}
		if _, isDefault := a.Value.(*sql.DefaultExpr); !isDefault {
			x, err := p.bind(set, a.Value)
			if err != nil {
				return nil, err
			}
			if item.Value, err = assign(col, x); err != nil {
				return nil, err
			}
		}
		out.Set = append(out.Set, item)
	}
	if stmt.Where != nil {
		w, err := p.bind(s.with("WHERE"), stmt.Where)
		if err != nil {
			return nil, err
		}
		if out.Where, err = boolArg(w, "WHERE"); err != nil {
			return nil, err
		}
	}
	if out.Defaults, err = p.defaults(t); err != nil {
		return nil, err
	}
	if out.Checks, err = p.checks(t); err != nil {
		return nil, err
	}
	if out.Returning, err = p.returning(s, stmt.Returning); err != nil {
		return nil, err
	}
	return out, nil
}

// Delete plans DELETE FROM ... [WHERE].
func (p *Planner) Delete(stmt *sql.DeleteStmt) (*Delete, error) {
	t, err := p.cat.LookupTable(stmt.Table, p.path)
	if err != nil {
		return nil, err
	}
	s := tableScope(t, stmt.Alias)
	out := &Delete{Table: t}
	if stmt.Where != nil {
		w, err := p.bind(s.with("WHERE"), stmt.Where)
		if err != nil {
			return nil, err
		}
		if out.Where, err = boolArg(w, "WHERE"); err != nil {
			return nil, err
		}
	}
	if out.Returning, err = p.returning(s, stmt.Returning); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Planner) returning(s *scope, items []sql.SelectTarget) (*Returning, error) {
	if len(items) == 0 {
		return nil, nil
	}
	targets, err := expandTargets(s, items)
	if err != nil {
		return nil, err
	}
	rs := s.with("RETURNING")
	out := &Returning{}
	for _, t := range targets {
		var e Expr
		if t.ast == nil {
			e = &ColRef{Index: t.col, T: s.cols[t.col].typ}
		} else if e, err = p.bind(rs, t.ast); err != nil {
			return nil, err
		}
		e = settle(e)
		out.Exprs = append(out.Exprs, e)
		out.Cols = append(out.Cols, Column{Name: t.name, Type: e.Type()})
	}
	return out, nil
}

func (p *Planner) defaults(t *catalog.Table) ([]Expr, error) {
	out := make([]Expr, len(t.Columns))
	for i, c := range t.Columns {
		if c.Default == nil {
			continue
		}
		x, err := p.Default(c, c.Default)
		if err != nil {
			return nil, err
		}
		out[i] = x
	}
	return out, nil
}

func (p *Planner) checks(t *catalog.Table) ([]Check, error) {
	var out []Check
	for _, con := range t.Constraints {
		if con.Kind != catalog.Check {
			continue
		}
		x, err := p.CheckExpr(t, con.Check)
		if err != nil {
			return nil, err
		}
		out = append(out, Check{Constraint: con, Expr: x})
	}
	return out, nil
}

// Default binds the DEFAULT expression of col. It is used when a column is
// defined, to reject bad defaults early, and by every write.
func (p *Planner) Default(col *catalog.Column, e sql.Expr) (Expr, error) {
	var bad error
	walkSQL(e, func(x sql.Expr) bool {
		switch x := x.(type) {
		case *sql.ColumnRef:
			bad = pgerr.FeatureNotSupported("cannot use column reference in DEFAULT expression")
		case *sql.SubqueryExpr, *sql.ExistsExpr:
			bad = pgerr.FeatureNotSupported("cannot use subquery in DEFAULT expression")
		case *sql.InExpr:
			if x.Subquery != nil {
				bad = pgerr.FeatureNotSupported("cannot use subquery in DEFAULT expression")
			}
		}
		return bad == nil
	})
	if bad != nil {
		return nil, bad
	}
	x, err := p.bind(&scope{clause: "DEFAULT expressions"}, e)
	if err != nil {
		return nil, err
	}
	out, ok, err := coerce(x, col.Type, types.CoerceAssignment)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, assignMismatch(col, x.Type(), "default expression")
	}
	return out, nil
}

// CheckExpr binds a CHECK predicate over the columns of t.
func (p *Planner) CheckExpr(t *catalog.Table, e sql.Expr) (Expr, error) {
	if containsSubquery(e) {
		return nil, pgerr.FeatureNotSupported("cannot use subquery in check constraint")
	}
	x, err := p.bind(tableScope(t, "").with("check constraints"), e)
	if err != nil {
		return nil, err
	}
	return boolArg(x, "CHECK")
}
