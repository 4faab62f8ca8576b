package sql

// parseDelete parses DELETE FROM t [[AS] alias] [WHERE cond] [RETURNING ...].
func (p *parser) parseDelete() (Statement, error) {
	if err := p.expectKeyword("delete", "from"); err != nil {
		return nil, err
	}
	name, err := p.parseQualifiedName()
	if err != nil {
		return nil, err
	}
	stmt := &DeleteStmt{Table: name}
	alias, err := p.parseOptAlias()
	if err != nil {
		return nil, err
	}
	stmt.Alias = alias

	if p.isKeyword("using") {
		return nil, featureAt(p.peek().pos, "DELETE ... USING is not supported")
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
