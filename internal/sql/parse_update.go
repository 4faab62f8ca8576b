package sql

// parseUpdate parses
//
//	UPDATE t [[AS] alias] SET col = expr [, ...] [WHERE cond] [RETURNING ...]
func (p *parser) parseUpdate() (Statement, error) {
	p.next()
	name, err := p.parseQualifiedName()
	if err != nil {
		return nil, err
	}
	stmt := &UpdateStmt{Table: name}
	if !p.isKeyword("set") {
		alias, err := p.parseOptAlias()
		if err != nil {
			return nil, err
		}
		stmt.Alias = alias
	}
	if err := p.expectKeyword("set"); err != nil {
		return nil, err
	}

	for {
		col, err := p.parseIdent()
		if err != nil {
			return nil, err
		}
		// SET t.col = ... names the target table's column.
		if p.acceptOp(".") {
			if col, err = p.parseColLabel(); err != nil {
				return nil, err
			}
		}
		if p.isOp("(") {
			return nil, featureAt(p.peek().pos, "multiple-column UPDATE SET is not supported")
		}
		if err := p.expectOp("="); err != nil {
			return nil, err
		}
		value, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		stmt.Assignments = append(stmt.Assignments, Assignment{Column: col, Value: value})
		if !p.acceptOp(",") {
			break
		}
	}

	if p.isKeyword("from") {
		return nil, featureAt(p.peek().pos, "UPDATE ... FROM is not supported")
	}
	if p.acceptKeyword("where") {
		w, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		stmt.Where = w
	}
	returning, err := p.parseReturning()
	if err != nil {
		return nil, err
	}
	stmt.Returning = returning
	return stmt, nil
}
