package plan

import (
	"testing"

	"pgmem/internal/catalog"
	"pgmem/internal/pgerr"
	"pgmem/internal/sql"
	"pgmem/internal/types"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat := catalog.New()
	users := catalog.NewTable(catalog.PublicSchema, "users", []*catalog.Column{
		{Name: "id", Type: types.TypeInt, NotNull: true, Sequence: &catalog.Sequence{Name: "users_id_seq"}},
		{Name: "name", Type: types.TypeString, MaxLen: 20},
		{Name: "active", Type: types.TypeBool, Default: &sql.Literal{Value: types.Bool(true)}},
	})
	if err := users.AddConstraint(&catalog.Constraint{Kind: catalog.PrimaryKey, Columns: []string{"id"}}); err != nil {
		t.Fatalf("AddConstraint failed: %v", err)
	}
	orders := catalog.NewTable(catalog.PublicSchema, "orders", []*catalog.Column{
		{Name: "id", Type: types.TypeInt},
		{Name: "user_id", Type: types.TypeInt},
		{Name: "amount", Type: types.TypeNumeric},
	})
	check := &sql.BinaryExpr{Op: types.OpGe, Left: &sql.ColumnRef{Column: "amount"}, Right: &sql.Literal{Value: types.Int(0)}}
	if err := orders.AddConstraint(&catalog.Constraint{Kind: catalog.Check, Columns: []string{"amount"}, Check: check}); err != nil {
		t.Fatalf("AddConstraint failed: %v", err)
	}
	for _, tbl := range []*catalog.Table{users, orders} {
		if err := cat.AddTable(tbl); err != nil {
			t.Fatalf("AddTable failed: %v", err)
		}
	}
	return cat
}

func planQuery(t *testing.T, cat *catalog.Catalog, query string) (Node, error) {
	t.Helper()
	stmt, err := sql.Parse(query)
	if err != nil {
		t.Fatalf("Parse(%q) failed: %v", query, err)
	}
	sel, ok := stmt.(*sql.SelectStmt)
	if !ok {
		t.Fatalf("expected *sql.SelectStmt, got %T", stmt)
	}
	return New(cat, catalog.DefaultSearchPath).Select(sel)
}

func TestSelectColumns(t *testing.T) {
	cat := testCatalog(t)

	cases := []struct {
		query string
		names []string
		types []types.DataType
	}{
		{
			"SELECT * FROM users",
			[]string{"id", "name", "active"},
			[]types.DataType{types.TypeInt, types.TypeString, types.TypeBool},
		},
		{
			"SELECT u.name, id + 1 AS next, 'x', 1.5 FROM users u",
			[]string{"name", "next", "?column?", "?column?"},
			[]types.DataType{types.TypeString, types.TypeInt, types.TypeString, types.TypeNumeric},
		},
		{
			"SELECT count(*), sum(amount), max(o.id) FROM orders o",
			[]string{"count", "sum", "max"},
			[]types.DataType{types.TypeBigInt, types.TypeNumeric, types.TypeInt},
		},
		{
			"SELECT CAST(id AS bigint), 1::float, CASE WHEN true THEN 1 END, true FROM users",
			[]string{"id", "float8", "case", "bool"},
			[]types.DataType{types.TypeBigInt, types.TypeFloat, types.TypeInt, types.TypeBool},
		},
		{
			"SELECT x.a, x.b FROM (SELECT id, name FROM users) AS x(a, b)",
			[]string{"a", "b"},
			[]types.DataType{types.TypeInt, types.TypeString},
		},
		{
			"SELECT * FROM (VALUES (1, 'a'), (2.5, NULL)) v",
			[]string{"column1", "column2"},
			[]types.DataType{types.TypeNumeric, types.TypeString},
		},
	}

	for _, tc := range cases {
		node, err := planQuery(t, cat, tc.query)
		if err != nil {
			t.Fatalf("%s: plan failed: %v", tc.query, err)
		}
		cols := node.Columns()
		if len(cols) != len(tc.names) {
			t.Fatalf("%s: expected %d columns, got %d", tc.query, len(tc.names), len(cols))
		}
		for i := range cols {
			if cols[i].Name != tc.names[i] {
				t.Fatalf("%s: column %d: expected name %q, got %q", tc.query, i, tc.names[i], cols[i].Name)
			}
			if cols[i].Type != tc.types[i] {
				t.Fatalf("%s: column %d: expected type %v, got %v", tc.query, i, tc.types[i], cols[i].Type)
			}
		}
	}
}

func TestSelectPlanShape(t *testing.T) {
	cat := testCatalog(t)

	// 1. Grouped query ordered by an aggregate that is not selected.
	node, err := planQuery(t, cat,
		"SELECT user_id FROM orders WHERE amount > 0 GROUP BY user_id HAVING count(*) > 1 ORDER BY sum(amount) DESC LIMIT 5")
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}

	// 2. Walk down: Trim -> Limit -> Sort -> Project -> Filter -> Aggregate -> Filter -> Scan.
	trim, ok := node.(*Trim)
	if !ok || trim.Width != 1 {
		t.Fatalf("expected Trim to width 1, got %T", node)
	}
	limit, ok := trim.Input.(*Limit)
	if !ok || limit.Count == nil || limit.Offset != nil {
		t.Fatalf("expected Limit with count only, got %T", trim.Input)
	}
	sortNode, ok := limit.Input.(*Sort)
	if !ok || len(sortNode.Keys) != 1 {
		t.Fatalf("expected Sort with one key, got %T", limit.Input)
	}
	key := sortNode.Keys[0]
	if key.Index != 1 || !key.Desc || !key.NullsFirst {
		t.Fatalf("expected DESC NULLS FIRST on hidden column 1, got %+v", key)
	}
	proj, ok := sortNode.Input.(*Project)
	if !ok || len(proj.Exprs) != 2 {
		t.Fatalf("expected Project with 2 exprs, got %T", sortNode.Input)
	}
	having, ok := proj.Input.(*Filter)
	if !ok {
		t.Fatalf("expected HAVING filter, got %T", proj.Input)
	}
	agg, ok := having.Input.(*Aggregate)
	if !ok {
		t.Fatalf("expected Aggregate, got %T", having.Input)
	}
	if len(agg.Groups) != 1 || len(agg.Aggs) != 2 {
		t.Fatalf("expected 1 group and 2 aggregates, got %d and %d", len(agg.Groups), len(agg.Aggs))
	}
	if _, ok := agg.Input.(*Filter); !ok {
		t.Fatalf("expected WHERE filter under Aggregate, got %T", agg.Input)
	}

	// 3. A repeated ORDER BY expression reuses the select-list column.
	node, err = planQuery(t, cat, "SELECT id * 2 FROM users ORDER BY id * 2")
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}
	if _, ok := node.(*Sort); !ok {
		t.Fatalf("expected Sort without Trim, got %T", node)
	}

	// 4. A GROUP BY expression matches the same expression in the select list.
	if _, err := planQuery(t, cat, "SELECT id % 2, count(*) FROM users GROUP BY id % 2"); err != nil {
		t.Fatalf("expected grouped expression to bind, got %v", err)
	}
	if _, err := planQuery(t, cat, "SELECT name AS n FROM users GROUP BY n"); err != nil {
		t.Fatalf("expected GROUP BY output alias to bind, got %v", err)
	}
}

func TestCorrelatedSubquery(t *testing.T) {
	cat := testCatalog(t)

	node, err := planQuery(t, cat,
		"SELECT name FROM users u WHERE EXISTS (SELECT 1 FROM orders o WHERE o.user_id = u.id)")
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}
	proj := node.(*Project)
	filter := proj.Input.(*Filter)
	sub, ok := filter.Pred.(*Subquery)
	if !ok || sub.Kind != ExistsSubquery {
		t.Fatalf("expected EXISTS subquery predicate, got %T", filter.Pred)
	}
	inner := sub.Plan.(*Project).Input.(*Filter)
	eq := inner.Pred.(*Binary)
	outer, ok := eq.Right.(*OuterRef)
	if !ok || outer.Depth != 1 || outer.Index != 0 {
		t.Fatalf("expected OuterRef{Depth: 1, Index: 0}, got %#v", eq.Right)
	}
}

func TestBindErrors(t *testing.T) {
	cat := testCatalog(t)

	cases := []struct {
		query string
		code  string
	}{
		{"SELECT nope FROM users", pgerr.CodeUndefinedColumn},
		{"SELECT users.nope FROM users", pgerr.CodeUndefinedColumn},
		{"SELECT id FROM users, orders", pgerr.CodeAmbiguousColumn},
		{"SELECT x.id FROM users", pgerr.CodeUndefinedTable},
		{"SELECT users.id FROM users u", pgerr.CodeUndefinedTable},
		{"SELECT * FROM users u, orders u", pgerr.CodeDuplicateAlias},
		{"SELECT * FROM nope", pgerr.CodeUndefinedTable},
		{"SELECT *", pgerr.CodeSyntaxError},
		{"SELECT name, count(*) FROM users", pgerr.CodeGroupingError},
		{"SELECT id FROM users WHERE count(*) > 1", pgerr.CodeGroupingError},
		{"SELECT sum(count(*)) FROM users", pgerr.CodeGroupingError},
		{"SELECT id FROM users GROUP BY 3", pgerr.CodeInvalidColumnReference},
		{"SELECT id FROM users ORDER BY 2", pgerr.CodeInvalidColumnReference},
		{"SELECT DISTINCT id FROM users ORDER BY name", pgerr.CodeInvalidColumnReference},
		{"SELECT id FROM users WHERE id", pgerr.CodeDatatypeMismatch},
		{"SELECT id FROM users LIMIT 'a'", pgerr.CodeInvalidTextRepresentation},
		{"SELECT id FROM users LIMIT true", pgerr.CodeDatatypeMismatch},
		{"SELECT id + 'x' FROM users", pgerr.CodeInvalidTextRepresentation},
		{"SELECT id + active FROM users", pgerr.CodeUndefinedFunction},
		{"SELECT nope_fn(1)", pgerr.CodeUndefinedFunction},
		{"SELECT lower(1)", pgerr.CodeUndefinedFunction},
		{"SELECT nope.lower('A')", pgerr.CodeInvalidSchemaName},
		{"SELECT CAST(active AS timestamp) FROM users", pgerr.CodeCannotCoerce},
		{"SELECT CAST(1 AS nope)", pgerr.CodeUndefinedObject},
		{"SELECT (SELECT id, name FROM users)", pgerr.CodeSyntaxError},
		{"SELECT * FROM (SELECT 1) AS x(a, b)", pgerr.CodeInvalidColumnReference},
		{"SELECT * FROM (VALUES (1), ('a'::text)) v", pgerr.CodeDatatypeMismatch},
		{"SELECT 1 IN (1, 'a'::text)", pgerr.CodeUndefinedFunction},
	}

	for _, tc := range cases {
		stmt, err := sql.Parse(tc.query)
		if err == nil {
			_, err = New(cat, catalog.DefaultSearchPath).Select(stmt.(*sql.SelectStmt))
		}
		if err == nil {
			t.Fatalf("%s: expected error %s, got nil", tc.query, tc.code)
		}
		if got := pgerr.CodeOf(err); got != tc.code {
			t.Fatalf("%s: expected code %s, got %s (%v)", tc.query, tc.code, got, err)
		}
	}
}

func TestErrorMessages(t *testing.T) {
	cat := testCatalog(t)

	cases := []struct {
		query string
		msg   string
	}{
		{"SELECT name, count(*) FROM users",
			`column "users.name" must appear in the GROUP BY clause or be used in an aggregate function`},
		{"SELECT users.id FROM users u",
			`invalid reference to FROM-clause entry for table "users"`},
		{"SELECT users.nope FROM users", "column users.nope does not exist"},
		{"SELECT id FROM users WHERE count(*) > 1", "aggregate functions are not allowed in WHERE"},
		{"SELECT id FROM users WHERE name", "argument of WHERE must be type boolean, not type text"},
	}
	for _, tc := range cases {
		_, err := planQuery(t, cat, tc.query)
		pe, ok := pgerr.As(err)
		if !ok {
			t.Fatalf("%s: expected *pgerr.Error, got %v", tc.query, err)
		}
		if pe.Message() != tc.msg {
			t.Fatalf("%s: expected message %q, got %q", tc.query, tc.msg, pe.Message())
		}
	}
}

func TestPlanWrites(t *testing.T) {
	cat := testCatalog(t)
	p := New(cat, catalog.DefaultSearchPath)

	parse := func(query string) sql.Statement {
		t.Helper()
		stmt, err := sql.Parse(query)
		if err != nil {
			t.Fatalf("Parse(%q) failed: %v", query, err)
		}
		return stmt
	}

	// 1. INSERT without a column list may omit trailing columns.
	ins, err := p.Insert(parse("INSERT INTO users VALUES (1, 'ann')").(*sql.InsertStmt))
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if len(ins.Targets) != 2 || ins.Defaults[2] == nil {
		t.Fatalf("expected 2 targets and a bound default for active, got %v", ins.Targets)
	}

	// 2. DEFAULT leaves a nil slot; RETURNING * exposes every column.
	ins, err = p.Insert(parse("INSERT INTO users (name, id) VALUES (DEFAULT, 7) RETURNING *").(*sql.InsertStmt))
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if ins.Rows[0][0] != nil || ins.Targets[0] != 1 {
		t.Fatalf("expected DEFAULT slot for name, got %#v", ins.Rows[0][0])
	}
	if ins.Returning == nil || len(ins.Returning.Cols) != 3 {
		t.Fatalf("expected 3 RETURNING columns")
	}

	// 3. Checks are bound for writes to orders.
	upd, err := p.Update(parse("UPDATE orders SET amount = amount - 1 WHERE id = 1").(*sql.UpdateStmt))
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if len(upd.Checks) != 1 || upd.Checks[0].Constraint.Name != "orders_amount_check" {
		t.Fatalf("expected orders_amount_check to be bound, got %d checks", len(upd.Checks))
	}

	// 4. Error cases.
	failing := []struct {
		query string
		code  string
	}{
		{"INSERT INTO users (id, id) VALUES (1, 2)", pgerr.CodeDuplicateColumn},
		{"INSERT INTO users (nope) VALUES (1)", pgerr.CodeUndefinedColumn},
		{"INSERT INTO users (id) VALUES (1, 'a')", pgerr.CodeSyntaxError},
		{"INSERT INTO users (id, name) VALUES (1)", pgerr.CodeSyntaxError},
		{"INSERT INTO users VALUES (1, 'a', true, 4)", pgerr.CodeSyntaxError},
		{"INSERT INTO users (active) VALUES (1.5)", pgerr.CodeDatatypeMismatch},
		{"INSERT INTO users (id) VALUES ('x')", pgerr.CodeInvalidTextRepresentation},
		{"INSERT INTO users (active) SELECT amount FROM orders", pgerr.CodeDatatypeMismatch},
		{"UPDATE users SET id = 1, id = 2", pgerr.CodeSyntaxError},
		{"UPDATE users SET nope = 1", pgerr.CodeUndefinedColumn},
		{"UPDATE users SET id = 1 WHERE name", pgerr.CodeDatatypeMismatch},
		{"DELETE FROM users WHERE count(*) > 0", pgerr.CodeGroupingError},
		{"DELETE FROM users u WHERE users.id = 1", pgerr.CodeUndefinedTable},
	}
	for _, tc := range failing {
		var err error
		switch stmt := parse(tc.query).(type) {
		case *sql.InsertStmt:
			_, err = p.Insert(stmt)
		case *sql.UpdateStmt:
			_, err = p.Update(stmt)
		case *sql.DeleteStmt:
			_, err = p.Delete(stmt)
		}
		if got := pgerr.CodeOf(err); got != tc.code {
			t.Fatalf("%s: expected code %s, got %s (%v)", tc.query, tc.code, got, err)
		}
	}
}

func TestDefaultExpressions(t *testing.T) {
	cat := testCatalog(t)
	p := New(cat, catalog.DefaultSearchPath)
	col := &catalog.Column{Name: "n", Type: types.TypeInt}

	if _, err := p.Default(col, &sql.ColumnRef{Column: "id"}); !pgerr.HasCode(err, pgerr.CodeFeatureNotSupported) {
		t.Fatalf("expected 0A000 for column reference, got %v", err)
	}
	if _, err := p.Default(col, &sql.Literal{Value: types.Bool(true)}); !pgerr.HasCode(err, pgerr.CodeDatatypeMismatch) {
		t.Fatalf("expected 42804 for boolean default, got %v", err)
	}
	x, err := p.Default(col, &sql.Literal{Value: types.Text("42")})
	if err != nil {
		t.Fatalf("Default failed: %v", err)
	}
	c, ok := x.(*Const)
	if !ok || c.Value.Type != types.TypeInt || c.Value.I64 != 42 {
		t.Fatalf("expected folded int 42, got %#v", x)
	}

	if cols := ReferencedColumns(&sql.BinaryExpr{
		Op:    types.OpAnd,
		Left:  &sql.ColumnRef{Column: "a"},
		Right: &sql.BinaryExpr{Op: types.OpGt, Left: &sql.ColumnRef{Column: "b"}, Right: &sql.ColumnRef{Column: "a"}},
	}); len(cols) != 2 || cols[0] != "a" || cols[1] != "b" {
		t.Fatalf("expected [a b], got %v", cols)
	}
}
