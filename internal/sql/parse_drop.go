package sql

// parseDrop parses DROP TABLE, DROP SCHEMA and DROP INDEX.
func (p *parser) parseDrop() (Statement, error) {
	p.next()
	switch {
	case p.acceptKeyword("table"):
		stmt := &DropTableStmt{IfExists: p.acceptKeyword("if", "exists")}
		names, err := p.parseQualifiedNameList()
		if err != nil {
			return nil, err
		}
		stmt.Tables = names
		stmt.Cascade = p.parseDropBehavior()
		return stmt, nil

	case p.acceptKeyword("schema"):
		stmt := &DropSchemaStmt{IfExists: p.acceptKeyword("if", "exists")}
		for {
			name, err := p.parseIdent()
			if err != nil {
				return nil, err
			}
			stmt.Names = append(stmt.Names, name)
			if !p.acceptOp(",") {
				break
			}
		}
		stmt.Cascade = p.parseDropBehavior()
		return stmt, nil

	case p.acceptKeyword("index"):
		p.acceptKeyword("concurrently")
		stmt := &DropIndexStmt{IfExists: p.acceptKeyword("if", "exists")}
		names, err := p.parseQualifiedNameList()
		if err != nil {
			return nil, err
		}
		stmt.Names = names
		p.parseDropBehavior()
		return stmt, nil
	}
	return nil, p.unexpected()
}

// parseDropBehavior reads an optional CASCADE or RESTRICT; it reports
// whether CASCADE was given.
func (p *parser) parseDropBehavior() bool {
	if p.acceptKeyword("cascade") {
		return true
	}
	p.acceptKeyword("restrict")
	return false
}

// parseTruncate parses TRUNCATE [TABLE] name [, ...]
// [RESTART IDENTITY | CONTINUE IDENTITY] [CASCADE | RESTRICT].
func (p *parser) parseTruncate() (Statement, error) {
	p.next()
	p.acceptKeyword("table")
	names, err := p.parseQualifiedNameList()
	if err != nil {
		return nil, err
	}
	stmt := &TruncateStmt{Tables: names}
	if p.acceptKeyword("restart", "identity") {
		stmt.RestartIdentity = true
	} else {
		p.acceptKeyword("continue", "identity")
	}
	stmt.Cascade = p.parseDropBehavior()
	return stmt, nil
}
