package sql

import "pgmem/internal/types"

// parseSelectStatement parses a top-level query, which may be wrapped in
// parentheses.
func (p *parser) parseSelectStatement() (Statement, error) {
	if p.acceptOp("(") {
		sel, err := p.parseSelectStatement()
		if err != nil {
			return nil, err
		}
		if err := p.expectOp(")"); err != nil {
			return nil, err
		}
		return sel, nil
	}
	return p.parseSelect()
}

// parseSelect parses
//
//	SELECT [DISTINCT] targets [FROM ...] [WHERE ...] [GROUP BY ...]
//	       [HAVING ...] [ORDER BY ...] [LIMIT n] [OFFSET n]
//
// or a bare VALUES list, which is treated as SELECT * FROM (VALUES ...).
func (p *parser) parseSelect() (*SelectStmt, error) {
	sel := &SelectStmt{}
	if p.isKeyword("values") {
		rows, err := p.parseValuesRows()
		if err != nil {
			return nil, err
		}
		sel.Targets = []SelectTarget{{Expr: &Star{}}}
		sel.From = []TableExpr{&ValuesTable{Rows: rows, Alias: "*VALUES*"}}
		return sel, p.parseSelectTail(sel)
	}

	if err := p.expectKeyword("select"); err != nil {
		return nil, err
	}
	if p.acceptKeyword("distinct") {
		if p.isKeyword("on") {
			return nil, featureAt(p.peek().pos, "SELECT DISTINCT ON is not supported")
		}
		sel.Distinct = true
	} else {
		p.acceptKeyword("all")
	}

	if !p.atEnd() && !p.isKeyword("from") && !p.isOp(")") {
		targets, err := p.parseTargetList()
		if err != nil {
			return nil, err
		}
		sel.Targets = targets
	}

	if p.acceptKeyword("from") {
		from, err := p.parseFromList()
		if err != nil {
			return nil, err
		}
		sel.From = from
	}

	if p.acceptKeyword("where") {
		w, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		sel.Where = w
	}

	if p.acceptKeyword("group", "by") {
		exprs, err := p.parseExprList()
		if err != nil {
			return nil, err
		}
		sel.GroupBy = exprs
	}

	if p.acceptKeyword("having") {
		h, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		sel.Having = h
	}

	return sel, p.parseSelectTail(sel)
}

// parseSelectTail reads ORDER BY, LIMIT and OFFSET, in either order for the
// last two.
func (p *parser) parseSelectTail(sel *SelectStmt) error {
	for _, kw := range []string{"union", "intersect", "except"} {
		if p.isKeyword(kw) {
			return featureAt(p.peek().pos, "set operations are not supported")
		}
	}

	if p.acceptKeyword("order", "by") {
		items, err := p.parseOrderBy()
		if err != nil {
			return err
		}
		sel.OrderBy = items
	}

	for {
		switch {
		case sel.Limit == nil && p.acceptKeyword("limit"):
			if p.acceptKeyword("all") {
				continue
			}
			e, err := p.parseExpr()
			if err != nil {
				return err
			}
			sel.Limit = e
		case sel.Offset == nil && p.acceptKeyword("offset"):
			e, err := p.parseExpr()
			if err != nil {
				return err
			}
			sel.Offset = e
			if !p.acceptKeyword("rows") {
				p.acceptKeyword("row")
			}
		case sel.Limit == nil && p.acceptKeyword("fetch"):
			if !p.acceptKeyword("first") {
				if err := p.expectKeyword("next"); err != nil {
					return err
				}
			}
			var e Expr = &Literal{Value: types.Int(1)}
			if !p.isKeyword("row") && !p.isKeyword("rows") {
				n, err := p.parseExpr()
				if err != nil {
					return err
				}
				e = n
			}
			if !p.acceptKeyword("rows") {
				if err := p.expectKeyword("row"); err != nil {
					return err
				}
			}
			if err := p.expectKeyword("only"); err != nil {
				return err
			}
			sel.Limit = e
		default:
			if p.isKeyword("for") {
				return featureAt(p.peek().pos, "SELECT ... FOR UPDATE/SHARE is not supported")
			}
			return nil
		}
	}
}

func (p *parser) parseTargetList() ([]SelectTarget, error) {
	var out []SelectTarget
	for {
		var target SelectTarget
		if p.acceptOp("*") {
			target.Expr = &Star{}
		} else {
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			target.Expr = e
			if _, star := e.(*Star); !star {
				alias, err := p.parseOptAlias()
				if err != nil {
					return nil, err
				}
				target.Alias = alias
			}
		}
		out = append(out, target)
		if !p.acceptOp(",") {
			return out, nil
		}
	}
}

func (p *parser) parseOrderBy() ([]OrderItem, error) {
	var out []OrderItem
	for {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		item := OrderItem{Expr: e}
		if p.acceptKeyword("desc") {
			item.Desc = true
		} else {
			p.acceptKeyword("asc")
		}
		if p.isKeyword("using") {
			return nil, featureAt(p.peek().pos, "ORDER BY ... USING is not supported")
		}
		switch {
		case p.acceptKeyword("nulls", "first"):
			item.Nulls = NullsFirst
		case p.acceptKeyword("nulls", "last"):
			item.Nulls = NullsLast
		}
		out = append(out, item)
		if !p.acceptOp(",") {
			return out, nil
		}
	}
}

func (p *parser) parseFromList() ([]TableExpr, error) {
	var out []TableExpr
	for {
		te, err := p.parseJoinedTable()
		if err != nil {
			return nil, err
		}
		out = append(out, te)
		if !p.acceptOp(",") {
			return out, nil
		}
	}
}

// parseJoinedTable reads a FROM item followed by any number of joins,
// which associate to the left.
func (p *parser) parseJoinedTable() (TableExpr, error) {
	left, err := p.parseTablePrimary()
	if err != nil {
		return nil, err
	}
	for {
		if p.isKeyword("natural") {
			return nil, featureAt(p.peek().pos, "NATURAL JOIN is not supported")
		}
		jt, ok := p.parseJoinType()
		if !ok {
			return left, nil
		}
		right, err := p.parseTablePrimary()
		if err != nil {
			return nil, err
		}
		join := &JoinExpr{Type: jt, Left: left, Right: right}
		if jt != JoinCross {
			if p.isKeyword("using") {
				return nil, featureAt(p.peek().pos, "JOIN ... USING is not supported")
			}
			if err := p.expectKeyword("on"); err != nil {
				return nil, err
			}
			on, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			join.On = on
		}
		left = join
	}
}

func (p *parser) parseJoinType() (JoinType, bool) {
	switch {
	case p.acceptKeyword("join"), p.acceptKeyword("inner", "join"):
		return JoinInner, true
	case p.acceptKeyword("cross", "join"):
		return JoinCross, true
	case p.acceptKeyword("left", "join"), p.acceptKeyword("left", "outer", "join"):
		return JoinLeft, true
	case p.acceptKeyword("right", "join"), p.acceptKeyword("right", "outer", "join"):
		return JoinRight, true
	case p.acceptKeyword("full", "join"), p.acceptKeyword("full", "outer", "join"):
		return JoinFull, true
	}
	return JoinInner, false
}

func (p *parser) parseTablePrimary() (TableExpr, error) {
	if p.isKeyword("lateral") {
		return nil, featureAt(p.peek().pos, "LATERAL is not supported")
	}
	if p.acceptOp("(") {
		switch {
		case p.isKeyword("select"):
			sub, err := p.parseSelect()
			if err != nil {
				return nil, err
			}
			if err := p.expectOp(")"); err != nil {
				return nil, err
			}
			alias, cols, err := p.parseTableAlias()
			if err != nil {
				return nil, err
			}
			if alias == "" {
				return nil, syntaxAt(p.peek().pos, "subquery in FROM must have an alias")
			}
			return &SubqueryTable{Select: sub, Alias: alias, ColumnAliases: cols}, nil

		case p.isKeyword("values"):
			rows, err := p.parseValuesRows()
			if err != nil {
				return nil, err
			}
			if err := p.expectOp(")"); err != nil {
				return nil, err
			}
			alias, cols, err := p.parseTableAlias()
			if err != nil {
				return nil, err
			}
			if alias == "" {
				return nil, syntaxAt(p.peek().pos, "VALUES in FROM must have an alias")
			}
			return &ValuesTable{Rows: rows, Alias: alias, ColumnAliases: cols}, nil
		}

		inner, err := p.parseJoinedTable()
		if err != nil {
			return nil, err
		}
		if err := p.expectOp(")"); err != nil {
			return nil, err
		}
		return inner, nil
	}

	name, err := p.parseQualifiedName()
	if err != nil {
		return nil, err
	}
	if p.isOp("(") {
		return nil, featureAt(p.peek().pos, "set-returning functions in FROM are not supported")
	}
	alias, cols, err := p.parseTableAlias()
	if err != nil {
		return nil, err
	}
	if cols != nil {
		return nil, featureAt(p.peek().pos, "column aliases on tables are not supported")
	}
	return &TableRef{Name: name, Alias: alias}, nil
}

// parseTableAlias reads "[AS] alias [(col, ...)]".
func (p *parser) parseTableAlias() (string, []string, error) {
	alias, err := p.parseOptAlias()
	if err != nil || alias == "" {
		return alias, nil, err
	}
	if !p.isOp("(") {
		return alias, nil, nil
	}
	cols, err := p.parseIdentList()
	if err != nil {
		return "", nil, err
	}
	return alias, cols, nil
}

// parseValuesRows reads "VALUES (a, b), (c, d)". All rows must have the
// same width.
func (p *parser) parseValuesRows() ([][]Expr, error) {
	if err := p.expectKeyword("values"); err != nil {
		return nil, err
	}
	var rows [][]Expr
	for {
		start := p.peek().pos
		if err := p.expectOp("("); err != nil {
			return nil, err
		}
		row, err := p.parseExprList()
		if err != nil {
			return nil, err
		}
		if err := p.expectOp(")"); err != nil {
			return nil, err
		}
		if len(rows) > 0 && len(row) != len(rows[0]) {
			return nil, syntaxAt(start, "VALUES lists must all be the same length")
		}
		rows = append(rows, row)
		if !p.acceptOp(",") {
			return rows, nil
		}
	}
}
