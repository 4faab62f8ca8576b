package sql

// parseAlterTable parses ALTER TABLE [IF EXISTS] name action [, action ...].
//
// Supported actions:
//
//	ADD [COLUMN] [IF NOT EXISTS] coldef
//	ADD [CONSTRAINT name] table_constraint
//	DROP [COLUMN] [IF EXISTS] name [CASCADE|RESTRICT]
//	DROP CONSTRAINT [IF EXISTS] name
//	ALTER [COLUMN] name {SET|DROP} NOT NULL
//	ALTER [COLUMN] name SET DEFAULT expr | DROP DEFAULT
//	RENAME [COLUMN] a TO b
//	RENAME TO new_name
func (p *parser) parseAlterTable() (Statement, error) {
	if err := p.expectKeyword("alter", "table"); err != nil {
		return nil, err
	}
	stmt := &AlterTableStmt{IfExists: p.acceptKeyword("if", "exists")}
	p.acceptKeyword("only")
	name, err := p.parseQualifiedName()
	if err != nil {
		return nil, err
	}
	stmt.Table = name

	if p.acceptKeyword("rename") {
		action, err := p.parseRename()
		if err != nil {
			return nil, err
		}
		stmt.Actions = []AlterAction{action}
		return stmt, nil
	}

	for {
		action, err := p.parseAlterAction()
		if err != nil {
			return nil, err
		}
		stmt.Actions = append(stmt.Actions, action)
		if !p.acceptOp(",") {
			return stmt, nil
		}
	}
}

func (p *parser) parseRename() (AlterAction, error) {
	if p.acceptKeyword("to") {
		name, err := p.parseIdent()
		if err != nil {
			return nil, err
		}
		return &RenameTable{New: name}, nil
	}
	if p.isKeyword("constraint") {
		return nil, featureAt(p.peek().pos, "RENAME CONSTRAINT is not supported")
	}
	p.acceptKeyword("column")
	old, err := p.parseIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("to"); err != nil {
		return nil, err
	}
	name, err := p.parseIdent()
	if err != nil {
		return nil, err
	}
	return &RenameColumn{Old: old, New: name}, nil
}

func (p *parser) parseAlterAction() (AlterAction, error) {
	switch {
	case p.acceptKeyword("add"):
		if p.isKeyword("constraint") || p.isKeyword("primary") || p.isKeyword("unique") ||
			p.isKeyword("foreign") || p.isKeyword("check") {
			c, err := p.parseTableConstraint()
			if err != nil {
				return nil, err
			}
			return &AddConstraint{Constraint: c}, nil
		}
		p.acceptKeyword("column")
		action := &AddColumn{IfNotExists: p.acceptKeyword("if", "not", "exists")}
		col, err := p.parseColumnDef()
		if err != nil {
			return nil, err
		}
		action.Column = col
		return action, nil

	case p.acceptKeyword("drop"):
		if p.acceptKeyword("constraint") {
			action := &DropConstraint{IfExists: p.acceptKeyword("if", "exists")}
			name, err := p.parseIdent()
			if err != nil {
				return nil, err
			}
			action.Name = name
			p.parseDropBehavior()
			return action, nil
		}
		p.acceptKeyword("column")
		action := &DropColumn{IfExists: p.acceptKeyword("if", "exists")}
		name, err := p.parseIdent()
		if err != nil {
			return nil, err
		}
		action.Name = name
		p.parseDropBehavior()
		return action, nil

	case p.acceptKeyword("alter"):
		p.acceptKeyword("column")
		col, err := p.parseIdent()
		if err != nil {
			return nil, err
		}
		switch {
		case p.acceptKeyword("set", "not", "null"):
			return &SetNotNull{Column: col, NotNull: true}, nil
		case p.acceptKeyword("drop", "not", "null"):
			return &SetNotNull{Column: col}, nil
		case p.acceptKeyword("set", "default"):
			def, err := p.parseOther()
			if err != nil {
				return nil, err
			}
			return &SetDefault{Column: col, Default: def}, nil
		case p.acceptKeyword("drop", "default"):
			return &SetDefault{Column: col}, nil
		case p.isKeyword("type") || p.isKeyword("set"):
			return nil, featureAt(p.peek().pos, "changing column types is not supported")
		}
	}
	return nil, p.unexpected()
}
