package sql

// parseCreateTable parses
//
//	CREATE [TEMP] TABLE [IF NOT EXISTS] name (element [, ...])
//
// where an element is a column definition or a table constraint.
func (p *parser) parseCreateTable() (Statement, error) {
	p.next()
	if !p.acceptKeyword("temporary") && !p.acceptKeyword("temp") {
		p.acceptKeyword("unlogged")
	}
	if err := p.expectKeyword("table"); err != nil {
		return nil, err
	}
	stmt := &CreateTableStmt{IfNotExists: p.acceptKeyword("if", "not", "exists")}
	name, err := p.parseQualifiedName()
	if err != nil {
		return nil, err
	}
	stmt.Table = name

	if p.isKeyword("as") {
		return nil, featureAt(p.peek().pos, "CREATE TABLE AS is not supported")
	}
	if err := p.expectOp("("); err != nil {
		return nil, err
	}
	if !p.isOp(")") {
		for {
			if err := p.parseTableElement(stmt); err != nil {
				return nil, err
			}
			if !p.acceptOp(",") {
				break
			}
		}
	}
	if err := p.expectOp(")"); err != nil {
		return nil, err
	}
	return stmt, nil
}

func (p *parser) parseTableElement(stmt *CreateTableStmt) error {
	if p.isKeyword("constraint") || p.isKeyword("primary") || p.isKeyword("unique") ||
		p.isKeyword("foreign") || p.isKeyword("check") {
		c, err := p.parseTableConstraint()
		if err != nil {
			return err
		}
		stmt.Constraints = append(stmt.Constraints, c)
		return nil
	}
	if p.isKeyword("like") {
		return featureAt(p.peek().pos, "CREATE TABLE ... LIKE is not supported")
	}
	col, err := p.parseColumnDef()
	if err != nil {
		return err
	}
	stmt.Columns = append(stmt.Columns, col)
	return nil
}

// parseColumnDef reads "name type [column constraints...]".
func (p *parser) parseColumnDef() (ColumnDef, error) {
	var col ColumnDef
	name, err := p.parseIdent()
	if err != nil {
		return col, err
	}
	col.Name = name
	if col.Type, err = p.parseTypeName(); err != nil {
		return col, err
	}

	for {
		constraintName := ""
		if p.acceptKeyword("constraint") {
			if constraintName, err = p.parseIdent(); err != nil {
				return col, err
			}
		}
		switch {
		case p.acceptKeyword("not", "null"):
			col.NotNull = true
		case p.acceptKeyword("null"):
			col.NotNull = false
		case p.acceptKeyword("primary", "key"):
			col.PrimaryKey = true
		case p.acceptKeyword("unique"):
			col.Unique = true
		case p.acceptKeyword("default"):
			if col.Default, err = p.parseOther(); err != nil {
				return col, err
			}
		case p.acceptKeyword("references"):
			if col.References, err = p.parseReferences(); err != nil {
				return col, err
			}
		case p.acceptKeyword("check"):
			if col.Check, err = p.parseParenExpr(); err != nil {
				return col, err
			}
			col.CheckName = constraintName
		case p.acceptKeyword("collate"):
			if _, err := p.parseColLabel(); err != nil {
				return col, err
			}
		case p.isKeyword("generated"):
			return col, featureAt(p.peek().pos, "generated columns are not supported")
		default:
			if constraintName != "" {
				return col, p.unexpected()
			}
			return col, nil
		}
	}
}

// parseTableConstraint reads "[CONSTRAINT name] PRIMARY KEY (...) | UNIQUE (...)
// | FOREIGN KEY (...) REFERENCES ... | CHECK (...)".
func (p *parser) parseTableConstraint() (TableConstraint, error) {
	var c TableConstraint
	var err error
	if p.acceptKeyword("constraint") {
		if c.Name, err = p.parseIdent(); err != nil {
			return c, err
		}
	}
	switch {
	case p.acceptKeyword("primary", "key"):
		c.Kind = ConstraintPrimaryKey
		c.Columns, err = p.parseIdentList()
	case p.acceptKeyword("unique"):
		c.Kind = ConstraintUnique
		c.Columns, err = p.parseIdentList()
	case p.acceptKeyword("foreign", "key"):
		c.Kind = ConstraintForeignKey
		if c.Columns, err = p.parseIdentList(); err != nil {
			return c, err
		}
		if err = p.expectKeyword("references"); err != nil {
			return c, err
		}
		c.References, err = p.parseReferences()
	case p.acceptKeyword("check"):
		c.Kind = ConstraintCheck
		c.Check, err = p.parseParenExpr()
	default:
		return c, p.unexpected()
	}
	return c, err
}

// parseReferences reads the part after REFERENCES.
func (p *parser) parseReferences() (*ForeignKeyRef, error) {
	name, err := p.parseQualifiedName()
	if err != nil {
		return nil, err
	}
	ref := &ForeignKeyRef{Table: name}
	if p.isOp("(") {
		if ref.Columns, err = p.parseIdentList(); err != nil {
			return nil, err
		}
	}
	for {
		switch {
		case p.acceptKeyword("on", "delete"):
			if ref.OnDelete, err = p.parseRefAction(); err != nil {
				return nil, err
			}
		case p.acceptKeyword("on", "update"):
			action, err := p.parseRefAction()
			if err != nil {
				return nil, err
			}
			if action != RefNoAction && action != RefRestrict {
				return nil, featureAt(p.peek().pos, "ON UPDATE actions other than NO ACTION are not supported")
			}
		case p.acceptKeyword("match", "simple"), p.acceptKeyword("match", "full"):
		case p.acceptKeyword("not", "deferrable"), p.acceptKeyword("initially", "immediate"):
		case p.isKeyword("deferrable") || p.isKeyword("initially"):
			return nil, featureAt(p.peek().pos, "deferrable constraints are not supported")
		default:
			return ref, nil
		}
	}
}

func (p *parser) parseRefAction() (RefAction, error) {
	switch {
	case p.acceptKeyword("no", "action"):
		return RefNoAction, nil
	case p.acceptKeyword("restrict"):
		return RefRestrict, nil
	case p.acceptKeyword("cascade"):
		return RefCascade, nil
	case p.acceptKeyword("set", "null"):
		return RefSetNull, nil
	case p.isKeyword("set"):
		return 0, featureAt(p.peek().pos, "ON DELETE SET DEFAULT is not supported")
	}
	return 0, p.unexpected()
}

func (p *parser) parseParenExpr() (Expr, error) {
	if err := p.expectOp("("); err != nil {
		return nil, err
	}
	e, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expectOp(")"); err != nil {
		return nil, err
	}
	return e, nil
}

// parseCreateSchema parses CREATE SCHEMA [IF NOT EXISTS] name.
func (p *parser) parseCreateSchema() (Statement, error) {
	if err := p.expectKeyword("create", "schema"); err != nil {
		return nil, err
	}
	stmt := &CreateSchemaStmt{IfNotExists: p.acceptKeyword("if", "not", "exists")}
	name, err := p.parseIdent()
	if err != nil {
		return nil, err
	}
	stmt.Name = name
	if p.isKeyword("authorization") {
		return nil, featureAt(p.peek().pos, "CREATE SCHEMA ... AUTHORIZATION is not supported")
	}
	return stmt, nil
}
