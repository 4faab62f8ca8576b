package engine

import (
	"context"
	"slices"

	"pgmem/internal/catalog"
	"pgmem/internal/exec"
	"pgmem/internal/pgerr"
	"pgmem/internal/plan"
	"pgmem/internal/sql"
	"pgmem/internal/types"
)

// executeAlterTable applies the actions in order. They succeed or fail
// together.
func (e *DBEngine) executeAlterTable(ctx context.Context, cat *catalog.Catalog, s *sql.AlterTableStmt) (*Result, error) {
	res := &Result{Tag: "ALTER TABLE"}
	t, err := cat.LookupTable(s.Table, e.searchPath())
	if err != nil {
		if s.IfExists && isMissing(err) {
			res.Notices = append(res.Notices, pgerr.Notice("NOTICE", "00000",
				"relation %q does not exist, skipping", s.Table.Name))
			return res, nil
		}
		return nil, err
	}

	a := &alteration{e: e, cat: cat, t: t, ex: exec.New(ctx, cat, e), res: res}
	err = atomically(cat, func() error {
		for _, action := range s.Actions {
			if err := a.apply(action); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.log.Info("table altered", "table", t.QualifiedName(), "actions", len(s.Actions))
	return res, nil
}

// alteration is one ALTER TABLE statement in progress.
type alteration struct {
	e   *DBEngine
	cat *catalog.Catalog
	t   *catalog.Table
	ex  *exec.Executor
	res *Result
}

func (a *alteration) notice(format string, args ...any) {
	a.res.Notices = append(a.res.Notices, pgerr.Notice("NOTICE", "00000", format, args...))
}

func (a *alteration) apply(action sql.AlterAction) error {
	t := a.t
	switch act := action.(type) {
	case *sql.AddColumn:
		return a.addColumn(act)

	case *sql.DropColumn:
		if t.ColumnIndex(act.Name) < 0 {
			if act.IfExists {
				a.notice("column %q of relation %q does not exist, skipping", act.Name, t.Name)
				return nil
			}
			return pgerr.UndefinedColumnOf(act.Name, t.Name)
		}
		return a.dropColumn(act.Name)

	case *sql.RenameColumn:
		if err := t.RenameColumn(act.Old, act.New); err != nil {
			return err
		}
		for _, ref := range a.cat.ReferencesTo(t) {
			ref.Table.RenameReferencedColumn(t.Schema, t.Name, act.Old, act.New)
		}
		for _, idx := range a.indexesOf() {
			for i, c := range idx.Columns {
				if c == act.Old {
					idx.Columns[i] = act.New
				}
			}
		}
		return nil

	case *sql.RenameTable:
		return a.cat.RenameTable(t, act.New)

	case *sql.SetNotNull:
		col, _, err := t.Column(act.Column)
		if err != nil {
			return err
		}
		if act.NotNull {
			if err := a.ex.ValidateNotNull(t, col.Name); err != nil {
				return err
			}
			col.NotNull = true
			return nil
		}
		if pk := t.PrimaryKey(); pk != nil && slices.Contains(pk.Columns, col.Name) {
			return pgerr.New(pgerr.KindSchema, pgerr.CodeInvalidTableDefinition,
				"column %q is in a primary key", col.Name)
		}
		col.NotNull = false
		return nil

	case *sql.SetDefault:
		col, _, err := t.Column(act.Column)
		if err != nil {
			return err
		}
		if act.Default != nil {
			if _, err := plan.New(a.cat, a.e.searchPath()).Default(col, act.Default); err != nil {
				return err
			}
		}
		col.Default = act.Default
		col.Sequence = nil
		return nil

	case *sql.AddConstraint:
		con, check, err := a.e.buildConstraint(a.cat, t, act.Constraint)
		if err != nil {
			return err
		}
		if err := t.AddConstraint(con); err != nil {
			return err
		}
		return a.ex.ValidateConstraint(t, con, check)

	case *sql.DropConstraint:
		return a.dropConstraint(act)
	}
	return pgerr.FeatureNotSupported("unsupported ALTER TABLE action %T", action)
}

// addColumn appends a column and fills the existing rows with its default,
// evaluated once per row.
func (a *alteration) addColumn(act *sql.AddColumn) error {
	t := a.t
	def := act.Column
	if t.ColumnIndex(def.Name) >= 0 {
		if act.IfNotExists {
			a.notice("column %q of relation %q already exists, skipping", def.Name, t.Name)
			return nil
		}
		return pgerr.DuplicateColumn(def.Name, t.Name)
	}
	col, err := columnFromDef(t, def)
	if err != nil {
		return err
	}

	var dflt plan.Expr
	if def.Default != nil {
		if dflt, err = plan.New(a.cat, a.e.searchPath()).Default(col, def.Default); err != nil {
			return err
		}
	}
	fill := make([]types.Value, t.RowCount())
	for i := range fill {
		switch {
		case dflt != nil:
			fill[i], err = a.ex.Eval(dflt, &exec.Env{})
		case col.Sequence != nil:
			fill[i], err = types.Cast(types.BigInt(col.Sequence.Next()), col.Type)
		default:
			fill[i] = types.Null()
		}
		if err != nil {
			return err
		}
		if col.NotNull && fill[i].IsNull() {
			return pgerr.New(pgerr.KindConstraint, pgerr.CodeNotNullViolation,
				"column %q of relation %q contains null values", col.Name, t.Name).
				WithTable(t.Schema, t.Name, "")
		}
	}
	if err := t.AddColumn(col, fill); err != nil {
		return err
	}

	for _, tc := range columnConstraints([]sql.ColumnDef{def}) {
		con, check, err := a.e.buildConstraint(a.cat, t, tc)
		if err != nil {
			return err
		}
		if err := t.AddConstraint(con); err != nil {
			return err
		}
		if err := a.ex.ValidateConstraint(t, con, check); err != nil {
			return err
		}
	}
	return nil
}

// dropColumn removes a column with the constraints and indexes that use it.
// Foreign keys in other tables that reference it block the drop.
func (a *alteration) dropColumn(name string) error {
	t := a.t
	for _, ref := range a.cat.ReferencesTo(t) {
		if ref.Table != t && slices.Contains(ref.Constraint.RefColumns, name) {
			return pgerr.New(pgerr.KindSchema, pgerr.CodeDependentObjects,
				"cannot drop column %s of table %s because other objects depend on it", name, t.Name).
				WithDetail("constraint %s on table %s depends on column %s of table %s",
					ref.Constraint.Name, ref.Table.Name, name, t.Name).
				WithHint("Use DROP ... CASCADE to drop the dependent objects too.")
		}
	}
	schema, err := a.cat.Schema(t.Schema)
	if err != nil {
		return err
	}
	for _, idx := range a.indexesOf() {
		if slices.Contains(idx.Columns, name) {
			delete(schema.Indexes, idx.Name)
		}
	}
	return t.DropColumn(name)
}

func (a *alteration) dropConstraint(act *sql.DropConstraint) error {
	t := a.t
	con := t.Constraint(act.Name)
	if con == nil || con.Index != "" {
		if act.IfExists {
			a.notice("constraint %q of relation %q does not exist, skipping", act.Name, t.Name)
			return nil
		}
		return pgerr.New(pgerr.KindSchema, pgerr.CodeUndefinedObject,
			"constraint %q of relation %q does not exist", act.Name, t.Name)
	}
	if con.Kind == catalog.PrimaryKey || con.Kind == catalog.Unique {
		for _, ref := range a.cat.ReferencesTo(t) {
			if ref.Table != t && sameColumns(ref.Constraint.RefColumns, con.Columns) && !a.otherKey(con, ref.Constraint.RefColumns) {
				return pgerr.New(pgerr.KindSchema, pgerr.CodeDependentObjects,
					"cannot drop constraint %s on table %s because other objects depend on it", con.Name, t.Name).
					WithDetail("constraint %s on table %s depends on index %s",
						ref.Constraint.Name, ref.Table.Name, con.Name).
					WithHint("Use DROP ... CASCADE to drop the dependent objects too.")
			}
		}
	}
	t.DropConstraint(con.Name)
	return nil
}

// otherKey reports whether a key other than con also covers cols.
func (a *alteration) otherKey(con *catalog.Constraint, cols []string) bool {
	for _, c := range a.t.Constraints {
		if c != con && (c.Kind == catalog.PrimaryKey || c.Kind == catalog.Unique) && sameColumns(c.Columns, cols) {
			return true
		}
	}
	return false
}

// indexesOf lists the indexes on the altered table.
func (a *alteration) indexesOf() []*catalog.Index {
	schema, err := a.cat.Schema(a.t.Schema)
	if err != nil {
		return nil
	}
	var out []*catalog.Index
	for _, idx := range schema.Indexes {
		if idx.Table == a.t.Name {
			out = append(out, idx)
		}
	}
	return out
}

func sameColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for _, c := range a {
		if !slices.Contains(b, c) {
			return false
		}
	}
	return true
}
