package exec

import (
	"strings"

	"pgmem/internal/catalog"
	"pgmem/internal/pgerr"
	"pgmem/internal/plan"
	"pgmem/internal/sql"
	"pgmem/internal/types"
)

// WriteResult is the outcome of INSERT, UPDATE or DELETE.
type WriteResult struct {
	Count     int64
	Returning []types.Row // nil without RETURNING
}

// Insert adds the rows of n. Nothing is stored unless every row passes
// every constraint.
func (ex *Executor) Insert(n *plan.Insert) (res WriteResult, err error) {
	t := n.Table
	restore := saveSequences(t)
	defer func() {
		if err != nil {
			restore()
		}
	}()

	var sources [][]*types.Value
	if n.Query != nil {
		rows, err := ex.Query(n.Query)
		if err != nil {
			return res, err
		}
		for _, r := range rows {
			src := make([]*types.Value, len(n.Targets))
			for i, pos := range n.Targets {
				v, err := types.Cast(r[i], t.Columns[pos].Type)
				if err != nil {
					return res, err
				}
				src[i] = &v
			}
			sources = append(sources, src)
		}
	} else {
		env := &Env{}
		for _, exprs := range n.Rows {
			src := make([]*types.Value, len(exprs))
			for i, e := range exprs {
				if e == nil {
					continue
				}
				v, err := ex.Eval(e, env)
				if err != nil {
					return res, err
				}
				src[i] = &v
			}
			sources = append(sources, src)
		}
	}

	existing := t.Rows()
	all := make([]types.Row, len(existing), len(existing)+len(sources))
	copy(all, existing)
	added := make([]types.Row, 0, len(sources))
	for _, src := range sources {
		row := make(types.Row, len(t.Columns))
		given := make([]bool, len(t.Columns))
		for i, pos := range n.Targets {
			if src[i] != nil {
				row[pos], given[pos] = *src[i], true
			}
		}
		for i := range t.Columns {
			if given[i] {
				continue
			}
			if row[i], err = ex.defaultValue(t, i, n.Defaults); err != nil {
				return res, err
			}
		}
		if err := ex.checkRow(t, row, n.Checks); err != nil {
			return res, err
		}
		all = append(all, row)
		added = append(added, row)
	}
	if err := checkUnique(t, all); err != nil {
		return res, err
	}

	w := ex.newWriteSet()
	w.set(t, all)
	w.written[t] = true
	if err := w.checkForeignKeys(); err != nil {
		return res, err
	}
	if res.Returning, err = ex.returning(n.Returning, added); err != nil {
		return res, err
	}
	res.Count = int64(len(added))
	return res, w.commit()
}

// Update rewrites the matching rows. The WHERE clause and the new values are
// evaluated against the table as it was before the statement.
func (ex *Executor) Update(n *plan.Update) (res WriteResult, err error) {
	t := n.Table
	restore := saveSequences(t)
	defer func() {
		if err != nil {
			restore()
		}
	}()

	old := t.Rows()
	next := make([]types.Row, len(old))
	var changed []types.Row
	for i, row := range old {
		next[i] = row
		env := &Env{Row: row}
		if n.Where != nil {
			v, err := ex.Eval(n.Where, env)
			if err != nil {
				return res, err
			}
			if types.Truth(v) != types.True {
				continue
			}
		}
		nr := row.Copy()
		for _, item := range n.Set {
			var v types.Value
			if item.Value == nil {
				v, err = ex.defaultValue(t, item.Column, n.Defaults)
			} else {
				v, err = ex.Eval(item.Value, env)
			}
			if err != nil {
				return res, err
			}
			nr[item.Column] = v
		}
		if err := ex.checkRow(t, nr, n.Checks); err != nil {
			return res, err
		}
		next[i] = nr
		changed = append(changed, nr)
	}
	if err := checkUnique(t, next); err != nil {
		return res, err
	}

	w := ex.newWriteSet()
	w.set(t, next)
	w.written[t] = true
	w.removed[t] = true
	if err := w.checkForeignKeys(); err != nil {
		return res, err
	}
	if res.Returning, err = ex.returning(n.Returning, changed); err != nil {
		return res, err
	}
	res.Count = int64(len(changed))
	return res, w.commit()
}

// Delete removes the matching rows and applies the ON DELETE actions of
// foreign keys that reference them.
func (ex *Executor) Delete(n *plan.Delete) (WriteResult, error) {
	var res WriteResult
	t := n.Table
	rows := t.Rows()
	doomed := make([]bool, len(rows))
	var gone []types.Row
	for i, row := range rows {
		if n.Where != nil {
			v, err := ex.Eval(n.Where, &Env{Row: row})
			if err != nil {
				return res, err
			}
			if types.Truth(v) != types.True {
				continue
			}
		}
		doomed[i] = true
		gone = append(gone, row)
	}

	w := ex.newWriteSet()
	if err := w.deleteWhere(t, func(i int, _ types.Row) bool { return doomed[i] }); err != nil {
		return res, err
	}
	if err := w.checkForeignKeys(); err != nil {
		return res, err
	}
	var err error
	if res.Returning, err = ex.returning(n.Returning, gone); err != nil {
		return res, err
	}
	res.Count = int64(len(gone))
	return res, w.commit()
}

func (ex *Executor) returning(r *plan.Returning, rows []types.Row) ([]types.Row, error) {
	if r == nil {
		return nil, nil
	}
	out := make([]types.Row, 0, len(rows))
	for _, row := range rows {
		env := &Env{Row: row}
		vals := make(types.Row, len(r.Exprs))
		for i, e := range r.Exprs {
			v, err := ex.Eval(e, env)
			if err != nil {
				return nil, err
			}
			vals[i] = v
		}
		out = append(out, vals)
	}
	return out, nil
}

// defaultValue computes the value of column i when none was given: its
// DEFAULT, the next value of its sequence, or NULL.
func (ex *Executor) defaultValue(t *catalog.Table, i int, defaults []plan.Expr) (types.Value, error) {
	if defaults[i] != nil {
		return ex.Eval(defaults[i], &Env{})
	}
	col := t.Columns[i]
	if col.Sequence != nil {
		v, err := types.Cast(types.BigInt(col.Sequence.Next()), col.Type)
		if err != nil {
			return types.Null(), pgerr.New(pgerr.KindEval, pgerr.CodeSequenceLimitExceeded,
				"nextval: reached maximum value of sequence %q", col.Sequence.Name)
		}
		return v, nil
	}
	return types.Null(), nil
}

// saveSequences records the sequences of t so a failed statement can put
// them back.
func saveSequences(t *catalog.Table) func() {
	saved := make(map[*catalog.Sequence]int64)
	for _, c := range t.Columns {
		if c.Sequence != nil {
			saved[c.Sequence] = c.Sequence.Last
		}
	}
	return func() {
		for s, last := range saved {
			s.Last = last
		}
	}
}

// checkRow enforces the per-row constraints: varchar length, NOT NULL and
// CHECK. A CHECK that evaluates to NULL passes.
func (ex *Executor) checkRow(t *catalog.Table, row types.Row, checks []plan.Check) error {
	for i, col := range t.Columns {
		v := row[i]
		if v.IsNull() {
			if col.NotNull {
				return pgerr.New(pgerr.KindConstraint, pgerr.CodeNotNullViolation,
					"null value in column %q of relation %q violates not-null constraint", col.Name, t.Name).
					WithDetail("Failing row contains %s.", failingRow(row)).
					WithTable(t.Schema, t.Name, "")
			}
			continue
		}
		if col.MaxLen > 0 && v.Type == types.TypeString && len([]rune(v.S)) > col.MaxLen {
			return pgerr.New(pgerr.KindType, pgerr.CodeStringDataRightTruncation,
				"value too long for type %s", col.TypeName())
		}
	}
	env := &Env{Row: row}
	for _, c := range checks {
		v, err := ex.Eval(c.Expr, env)
		if err != nil {
			return err
		}
		if types.Truth(v) == types.False {
			return pgerr.New(pgerr.KindConstraint, pgerr.CodeCheckViolation,
				"new row for relation %q violates check constraint %q", t.Name, c.Constraint.Name).
				WithDetail("Failing row contains %s.", failingRow(row)).
				WithTable(t.Schema, t.Name, c.Constraint.Name)
		}
	}
	return nil
}

func failingRow(row types.Row) string {
	parts := make([]string, len(row))
	for i, v := range row {
		if v.IsNull() {
			parts[i] = "null"
		} else {
			parts[i] = types.Format(v)
		}
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// checkUnique verifies the primary key and unique constraints of t over the
// complete new contents. Keys containing NULL never conflict.
func checkUnique(t *catalog.Table, rows []types.Row) error {
	for _, con := range t.Constraints {
		if con.Kind != catalog.PrimaryKey && con.Kind != catalog.Unique {
			continue
		}
		pos, err := t.Positions(con.Columns)
		if err != nil {
			return err
		}
		seen := make(map[string]struct{}, len(rows))
		for _, row := range rows {
			vals, ok := project(row, pos)
			if !ok {
				continue
			}
			k := types.RowKey(vals)
			if _, dup := seen[k]; dup {
				return pgerr.New(pgerr.KindConstraint, pgerr.CodeUniqueViolation,
					"duplicate key value violates unique constraint %q", con.Name).
					WithDetail("Key (%s)=(%s) already exists.", strings.Join(con.Columns, ", "), formatKey(vals)).
					WithTable(t.Schema, t.Name, con.Name)
			}
			seen[k] = struct{}{}
		}
	}
	return nil
}

// project picks the values at pos; ok is false when any of them is NULL.
func project(row types.Row, pos []int) ([]types.Value, bool) {
	out := make([]types.Value, len(pos))
	for i, p := range pos {
		if row[p].IsNull() {
			return nil, false
		}
		out[i] = row[p]
	}
	return out, true
}

func formatKey(vals []types.Value) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = types.Format(v)
	}
	return strings.Join(parts, ", ")
}

// writeSet stages the new contents of every table a statement touches.
type writeSet struct {
	ex    *Executor
	rows  map[*catalog.Table][]types.Row
	order []*catalog.Table

	// written tables gained or changed rows, so their outgoing foreign
	// keys are checked; removed tables lost or changed rows, so the
	// foreign keys pointing at them are.
	written map[*catalog.Table]bool
	removed map[*catalog.Table]bool
}

func (ex *Executor) newWriteSet() *writeSet {
	return &writeSet{
		ex:      ex,
		rows:    make(map[*catalog.Table][]types.Row),
		written: make(map[*catalog.Table]bool),
		removed: make(map[*catalog.Table]bool),
	}
}

func (w *writeSet) current(t *catalog.Table) []types.Row {
	if rows, ok := w.rows[t]; ok {
		return rows
	}
	return t.Rows()
}

func (w *writeSet) set(t *catalog.Table, rows []types.Row) {
	if _, ok := w.rows[t]; !ok {
		w.order = append(w.order, t)
	}
	w.rows[t] = rows
}

func (w *writeSet) commit() error {
	for _, t := range w.order {
		if err := t.ReplaceAll(w.rows[t]); err != nil {
			return err
		}
	}
	return nil
}

// deleteWhere removes the rows of t selected by doomed, then applies the
// ON DELETE action of every foreign key referencing t. NO ACTION and
// RESTRICT are left to checkForeignKeys.
func (w *writeSet) deleteWhere(t *catalog.Table, doomed func(int, types.Row) bool) error {
	var keep, gone []types.Row
	for i, row := range w.current(t) {
		if doomed(i, row) {
			gone = append(gone, row)
		} else {
			keep = append(keep, row)
		}
	}
	if len(gone) == 0 {
		return nil
	}
	if keep == nil {
		keep = make([]types.Row, 0)
	}
	w.set(t, keep)
	w.removed[t] = true

	for _, ref := range w.ex.cat.ReferencesTo(t) {
		con := ref.Constraint
		if con.OnDelete != sql.RefCascade && con.OnDelete != sql.RefSetNull {
			continue
		}
		parentPos, err := t.Positions(con.RefColumns)
		if err != nil {
			return err
		}
		childPos, err := ref.Table.Positions(con.Columns)
		if err != nil {
			return err
		}
		goneKeys := make(map[string]struct{}, len(gone))
		for _, row := range gone {
			if vals, ok := project(row, parentPos); ok {
				goneKeys[types.RowKey(vals)] = struct{}{}
			}
		}
		references := func(_ int, row types.Row) bool {
			vals, ok := project(row, childPos)
			if !ok {
				return false
			}
			_, hit := goneKeys[types.RowKey(vals)]
			return hit
		}

		if con.OnDelete == sql.RefCascade {
			if err := w.deleteWhere(ref.Table, references); err != nil {
				return err
			}
			continue
		}
		if err := w.setNull(ref.Table, childPos, references); err != nil {
			return err
		}
	}
	return nil
}

// setNull implements ON DELETE SET NULL for the rows of t selected by match.
func (w *writeSet) setNull(t *catalog.Table, pos []int, match func(int, types.Row) bool) error {
	cur := w.current(t)
	next := make([]types.Row, len(cur))
	for i, row := range cur {
		next[i] = row
		if !match(i, row) {
			continue
		}
		nr := row.Copy()
		for _, p := range pos {
			col := t.Columns[p]
			if col.NotNull {
				return pgerr.New(pgerr.KindConstraint, pgerr.CodeNotNullViolation,
					"null value in column %q of relation %q violates not-null constraint", col.Name, t.Name).
					WithTable(t.Schema, t.Name, "")
			}
			nr[p] = types.Null()
		}
		next[i] = nr
	}
	w.set(t, next)
	w.removed[t] = true
	return nil
}

// checkForeignKeys validates every foreign key touched by the staged
// changes against the staged contents. Keys with a NULL column are not
// checked.
func (w *writeSet) checkForeignKeys() error {
	for _, t := range w.order {
		if !w.written[t] {
			continue
		}
		for _, con := range t.Constraints {
			if con.Kind != catalog.ForeignKey {
				continue
			}
			parent, ok := w.ex.cat.Table(con.RefSchema, con.RefTable)
			if !ok {
				continue
			}
			if vals, missing, err := w.orphan(t, con, parent); err != nil {
				return err
			} else if missing {
				return pgerr.New(pgerr.KindConstraint, pgerr.CodeForeignKeyViolation,
					"insert or update on table %q violates foreign key constraint %q", t.Name, con.Name).
					WithDetail("Key (%s)=(%s) is not present in table %q.",
						strings.Join(con.Columns, ", "), formatKey(vals), parent.Name).
					WithTable(t.Schema, t.Name, con.Name)
			}
		}
	}
	for _, t := range w.order {
		if !w.removed[t] {
			continue
		}
		for _, ref := range w.ex.cat.ReferencesTo(t) {
			con := ref.Constraint
			if vals, missing, err := w.orphan(ref.Table, con, t); err != nil {
				return err
			} else if missing {
				return pgerr.New(pgerr.KindConstraint, pgerr.CodeForeignKeyViolation,
					"update or delete on table %q violates foreign key constraint %q on table %q",
					t.Name, con.Name, ref.Table.Name).
					WithDetail("Key (%s)=(%s) is still referenced from table %q.",
						strings.Join(con.RefColumns, ", "), formatKey(vals), ref.Table.Name).
					WithTable(ref.Table.Schema, ref.Table.Name, con.Name)
			}
		}
	}
	return nil
}

// orphan finds a row of child whose key under con has no match in parent.
func (w *writeSet) orphan(child *catalog.Table, con *catalog.Constraint, parent *catalog.Table) ([]types.Value, bool, error) {
	parentPos, err := parent.Positions(con.RefColumns)
	if err != nil {
		return nil, false, err
	}
	childPos, err := child.Positions(con.Columns)
	if err != nil {
		return nil, false, err
	}
	keys := make(map[string]struct{})
	for _, row := range w.current(parent) {
		if vals, ok := project(row, parentPos); ok {
			keys[types.RowKey(vals)] = struct{}{}
		}
	}
	for _, row := range w.current(child) {
		vals, ok := project(row, childPos)
		if !ok {
			continue
		}
		if _, hit := keys[types.RowKey(vals)]; !hit {
			return vals, true, nil
		}
	}
	return nil, false, nil
}
