package sql

// parseCreateIndex parses
//
//	CREATE [UNIQUE] INDEX [IF NOT EXISTS] [name] ON table (col [, ...])
func (p *parser) parseCreateIndex() (Statement, error) {
	p.next()
	stmt := &CreateIndexStmt{Unique: p.acceptKeyword("unique")}
	if err := p.expectKeyword("index"); err != nil {
		return nil, err
	}
	p.acceptKeyword("concurrently")
	stmt.IfNotExists = p.acceptKeyword("if", "not", "exists")
	if !p.isKeyword("on") {
		name, err := p.parseIdent()
		if err != nil {
			return nil, err
		}
		stmt.Name = name
	}
	if err := p.expectKeyword("on"); err != nil {
		return nil, err
	}
	table, err := p.parseQualifiedName()
	if err != nil {
		return nil, err
	}
	stmt.Table = table
	if p.acceptKeyword("using") {
		if _, err := p.parseIdent(); err != nil {
			return nil, err
		}
	}

	if err := p.expectOp("("); err != nil {
		return nil, err
	}
	for {
		col, err := p.parseIdent()
		if err != nil {
			if p.isOp("(") || p.peek().kind != tkIdent {
				return nil, featureAt(p.peek().pos, "expression indexes are not supported")
			}
			return nil, err
		}
		if !p.acceptKeyword("asc") {
			p.acceptKeyword("desc")
		}
		if !p.acceptKeyword("nulls", "first") {
			p.acceptKeyword("nulls", "last")
		}
		stmt.Columns = append(stmt.Columns, col)
		if !p.acceptOp(",") {
			break
		}
	}
	if err := p.expectOp(")"); err != nil {
		return nil, err
	}
	if p.isKeyword("where") {
		return nil, featureAt(p.peek().pos, "partial indexes are not supported")
	}
	return stmt, nil
}
