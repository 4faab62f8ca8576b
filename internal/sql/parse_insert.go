package sql

// parseInsert parses
//
//	INSERT INTO t [(cols)] {VALUES (...), ... | SELECT ... | DEFAULT VALUES}
//	       [RETURNING targets]
func (p *parser) parseInsert() (Statement, error) {
	if err := p.expectKeyword("insert", "into"); err != nil {
		return nil, err
	}
	name, err := p.parseQualifiedName()
	if err != nil {
		return nil, err
	}
	stmt := &InsertStmt{Table: name}
	if p.acceptKeyword("as") {
		return nil, featureAt(p.peek().pos, "INSERT target aliases are not supported")
	}

	// A parenthesis here is either the column list or a parenthesised query.
	if p.isOp("(") && !isKeywordToken(p.peekAt(1), "select") && !isKeywordToken(p.peekAt(1), "values") {
		cols, err := p.parseIdentList()
		if err != nil {
			return nil, err
		}
		stmt.Columns = cols
	}

	switch {
	case p.acceptKeyword("default", "values"):
		stmt.Rows = [][]Expr{{}}
	case p.isKeyword("values"):
		rows, err := p.parseValuesRows()
		if err != nil {
			return nil, err
		}
		// A VALUES list followed by ORDER BY/LIMIT is a query, not plain rows.
		if p.isKeyword("order") || p.isKeyword("limit") || p.isKeyword("offset") {
			sel := &SelectStmt{
				Targets: []SelectTarget{{Expr: &Star{}}},
				From:    []TableExpr{&ValuesTable{Rows: rows, Alias: "*VALUES*"}},
			}
			if err := p.parseSelectTail(sel); err != nil {
				return nil, err
			}
			stmt.Select = sel
		} else {
			stmt.Rows = rows
		}
	case p.isKeyword("select") || p.isOp("("):
		sel, err := p.parseSelectStatement()
		if err != nil {
			return nil, err
		}
		stmt.Select = sel.(*SelectStmt)
	default:
		return nil, p.unexpected()
	}

	if p.isKeyword("on") {
		return nil, featureAt(p.peek().pos, "ON CONFLICT is not supported")
	}
	returning, err := p.parseReturning()
	if err != nil {
		return nil, err
	}
	stmt.Returning = returning
	return stmt, nil
}

// parseReturning reads an optional RETURNING clause.
func (p *parser) parseReturning() ([]SelectTarget, error) {
	if !p.acceptKeyword("returning") {
		return nil, nil
	}
	return p.parseTargetList()
}
