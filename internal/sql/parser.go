package sql

// Parse parses a query string that must contain exactly one statement. A
// trailing semicolon is allowed.
func Parse(query string) (Statement, error) {
	stmts, err := ParseAll(query)
	if err != nil {
		return nil, err
	}
	switch len(stmts) {
	case 0:
		return nil, syntaxAt(len(query), "syntax error at end of input")
	case 1:
		return stmts[0], nil
	default:
		return nil, syntaxAt(0, "cannot insert multiple commands into a single statement")
	}
}

// ParseAll parses a semicolon separated script. Empty statements are
// skipped, so an all-whitespace query yields no statements.
func ParseAll(query string) ([]Statement, error) {
	toks, err := lex(query)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}

	var out []Statement
	for {
		for p.acceptOp(";") {
		}
		if p.peek().kind == tkEOF {
			return out, nil
		}
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		out = append(out, stmt)
		if !p.atEnd() {
			return nil, p.unexpected()
		}
	}
}

func (p *parser) parseStatement() (Statement, error) {
	t := p.peek()
	if t.kind == tkOp && t.text == "(" {
		return p.parseSelectStatement()
	}
	if t.kind != tkIdent || t.quoted {
		return nil, p.unexpected()
	}

	switch t.text {
	case "select", "values":
		return p.parseSelectStatement()
	case "insert":
		return p.parseInsert()
	case "update":
		return p.parseUpdate()
	case "delete":
		return p.parseDelete()
	case "create":
		switch {
		case isKeywordToken(p.peekAt(1), "table"),
			isKeywordToken(p.peekAt(2), "table") && (isKeywordToken(p.peekAt(1), "temp") ||
				isKeywordToken(p.peekAt(1), "temporary") || isKeywordToken(p.peekAt(1), "unlogged")):
			return p.parseCreateTable()
		case isKeywordToken(p.peekAt(1), "schema"):
			return p.parseCreateSchema()
		case isKeywordToken(p.peekAt(1), "index"), isKeywordToken(p.peekAt(1), "unique"):
			return p.parseCreateIndex()
		}
	case "drop":
		return p.parseDrop()
	case "alter":
		return p.parseAlterTable()
	case "truncate":
		return p.parseTruncate()
	case "begin", "start":
		return p.parseBegin()
	case "commit", "end":
		return p.parseCommit()
	case "rollback", "abort":
		return p.parseRollback()
	case "set":
		return p.parseSet()
	case "show":
		return p.parseShow()
	}
	return nil, p.unexpected()
}
