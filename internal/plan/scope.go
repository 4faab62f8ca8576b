package plan

import (
	"pgmem/internal/pgerr"
	"pgmem/internal/sql"
	"pgmem/internal/types"
)

// scopeCol is a column visible to expressions of one query level.
type scopeCol struct {
	name  string
	table string // range variable the column belongs to
	typ   types.DataType
}

// rangeVar is a FROM item. schema is set only for unaliased tables, so
// schema.table.column references work for them alone; relation keeps the
// underlying table name of an aliased table for error messages.
type rangeVar struct {
	name       string
	schema     string
	relation   string
	key        []string // primary key columns of a base table
	start, end int
}

// aggState collects what a grouped query level needs: the bound GROUP BY
// expressions and the aggregate calls found while binding.
type aggState struct {
	groups []Expr
	calls  []AggCall
}

// groupOf returns the group position that is exactly column idx, or -1.
func (a *aggState) groupOf(idx int) int {
	for k, g := range a.groups {
		if c, ok := g.(*ColRef); ok && c.Index == idx {
			return k
		}
	}
	return -1
}

// matchGroup returns the group position equal to e, or -1.
func (a *aggState) matchGroup(e Expr) int {
	for k, g := range a.groups {
		if Equal(g, e) {
			return k
		}
	}
	return -1
}

// addDependentGroups groups by every column of a range variable whose
// primary key is fully grouped. Those columns are functionally dependent on
// the key, so the groups do not change.
func (a *aggState) addDependentGroups(s *scope) {
	for _, v := range s.vars {
		if len(v.key) == 0 || !a.keyGrouped(s, v) {
			continue
		}
		for i := v.start; i < v.end; i++ {
			if a.groupOf(i) < 0 {
				a.groups = append(a.groups, &ColRef{Index: i, T: s.cols[i].typ})
			}
		}
	}
}

func (a *aggState) keyGrouped(s *scope, v rangeVar) bool {
	for _, k := range v.key {
		found := false
		for i := v.start; i < v.end; i++ {
			if s.cols[i].name == k && a.groupOf(i) >= 0 {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// scope is the name environment of one query level. Scopes chain to the
// enclosing query through parent; copies made with with() share columns.
type scope struct {
	cols    []scopeCol
	vars    []rangeVar
	parent  *scope
	hasFrom bool

	// clause names the clause being bound, for "not allowed" errors.
	clause string
	// agg is set while binding the select list, HAVING and ORDER BY of a
	// grouped query: columns then resolve to group positions.
	agg *aggState
	// inAggArgs is set while binding the arguments of an aggregate.
	inAggArgs bool
}

func (s *scope) with(clause string) *scope {
	cp := *s
	cp.clause = clause
	return &cp
}

// input returns a copy of s that resolves columns against the raw input
// rows, as aggregate arguments do.
func (s *scope) input() *scope {
	cp := *s
	cp.agg = nil
	return &cp
}

func (s *scope) addVar(v rangeVar, cols []scopeCol) {
	v.start = len(s.cols)
	s.cols = append(s.cols, cols...)
	v.end = len(s.cols)
	s.vars = append(s.vars, v)
}

// merge appends the items of other, rejecting duplicate range names.
func (s *scope) merge(other *scope) error {
	for _, v := range other.vars {
		for _, mine := range s.vars {
			if mine.name == v.name {
				return pgerr.DuplicateAlias(v.name)
			}
		}
		s.addVar(v, other.cols[v.start:v.end])
	}
	return nil
}

func (s *scope) findVar(schema, name string) (rangeVar, bool) {
	for _, v := range s.vars {
		if v.name == name && (schema == "" || v.schema == schema) {
			return v, true
		}
	}
	return rangeVar{}, false
}

// lookup searches this level only. A qualifier naming a range variable of
// this level settles the search here, found or not.
func (s *scope) lookup(ref *sql.ColumnRef) (int, bool, error) {
	lo, hi := 0, len(s.cols)
	if ref.Table != "" {
		v, ok := s.findVar(ref.Schema, ref.Table)
		if !ok {
			return -1, false, nil
		}
		lo, hi = v.start, v.end
	}
	found := -1
	for i := lo; i < hi; i++ {
		if s.cols[i].name != ref.Column {
			continue
		}
		if found >= 0 {
			return -1, false, pgerr.AmbiguousColumn(refName(ref))
		}
		found = i
	}
	if found < 0 {
		if ref.Table != "" {
			return -1, false, undefinedQualified(ref)
		}
		return -1, false, nil
	}
	return found, true, nil
}

// missing builds the error for a reference no level could resolve.
func (s *scope) missing(ref *sql.ColumnRef) error {
	if ref.Table == "" {
		return pgerr.UndefinedColumn(ref.Column)
	}
	for cur := s; cur != nil; cur = cur.parent {
		for _, v := range cur.vars {
			if v.relation == ref.Table && v.name != ref.Table {
				return pgerr.New(pgerr.KindUndefinedTable, pgerr.CodeUndefinedTable,
					"invalid reference to FROM-clause entry for table %q", ref.Table).
					WithHint("Perhaps you meant to reference the table alias \"" + v.name + "\".")
			}
		}
	}
	if ref.Schema != "" {
		for cur := s; cur != nil; cur = cur.parent {
			if _, ok := cur.findVar("", ref.Table); ok {
				return undefinedQualified(ref)
			}
		}
	}
	return pgerr.MissingFromEntry(ref.Table)
}

func refName(ref *sql.ColumnRef) string {
	name := ref.Column
	if ref.Table != "" {
		name = ref.Table + "." + name
	}
	if ref.Schema != "" {
		name = ref.Schema + "." + name
	}
	return name
}

func undefinedQualified(ref *sql.ColumnRef) error {
	return pgerr.New(pgerr.KindUndefinedColumn, pgerr.CodeUndefinedColumn, "column %s does not exist", refName(ref))
}
