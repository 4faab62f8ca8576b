package sql

import "strings"

// parseBegin handles BEGIN [WORK|TRANSACTION] and START TRANSACTION. Any
// transaction modes (ISOLATION LEVEL ..., READ ONLY) are accepted and ignored:
// every transaction is serializable here.
func (p *parser) parseBegin() (Statement, error) {
	if p.acceptKeyword("start") {
		if err := p.expectKeyword("transaction"); err != nil {
			return nil, err
		}
	} else {
		p.next()
		if !p.acceptKeyword("work") {
			p.acceptKeyword("transaction")
		}
	}
	p.skipToEnd()
	return &BeginTxStmt{}, nil
}

func (p *parser) parseCommit() (Statement, error) {
	p.next()
	if !p.acceptKeyword("work") {
		p.acceptKeyword("transaction")
	}
	return &CommitTxStmt{}, nil
}

func (p *parser) parseRollback() (Statement, error) {
	p.next()
	if !p.acceptKeyword("work") {
		p.acceptKeyword("transaction")
	}
	if p.isKeyword("to") {
		return nil, featureAt(p.peek().pos, "savepoints are not supported")
	}
	return &RollbackTxStmt{}, nil
}

// parseSet handles SET [SESSION|LOCAL] name {=|TO} value and
// SET TIME ZONE value.
func (p *parser) parseSet() (Statement, error) {
	p.next()
	if !p.acceptKeyword("session") {
		p.acceptKeyword("local")
	}
	if p.acceptKeyword("time", "zone") {
		return &SetStmt{Name: "timezone", Value: p.restAsText()}, nil
	}
	name, err := p.parseColLabel()
	if err != nil {
		return nil, err
	}
	for p.acceptOp(".") {
		part, err := p.parseColLabel()
		if err != nil {
			return nil, err
		}
		name += "." + part
	}
	if !p.acceptOp("=") {
		if err := p.expectKeyword("to"); err != nil {
			return nil, err
		}
	}
	if p.acceptKeyword("default") {
		return &SetStmt{Name: name}, nil
	}
	if p.atEnd() {
		return nil, p.unexpected()
	}
	return &SetStmt{Name: name, Value: p.restAsText()}, nil
}

func (p *parser) parseShow() (Statement, error) {
	p.next()
	if p.acceptKeyword("time", "zone") {
		return &ShowStmt{Name: "timezone"}, nil
	}
	name, err := p.parseColLabel()
	if err != nil {
		return nil, err
	}
	for p.acceptOp(".") {
		part, err := p.parseColLabel()
		if err != nil {
			return nil, err
		}
		name += "." + part
	}
	return &ShowStmt{Name: name}, nil
}

// restAsText joins the remaining list items of the statement with ", ".
// Quoted strings contribute their contents.
func (p *parser) restAsText() string {
	var parts []string
	for !p.atEnd() {
		if t := p.next(); t.kind != tkOp || t.text != "," {
			parts = append(parts, t.text)
		}
	}
	return strings.Join(parts, ", ")
}

func (p *parser) skipToEnd() {
	for !p.atEnd() {
		p.next()
	}
}
