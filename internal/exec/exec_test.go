package exec

import (
	"context"
	"testing"
	"time"

	"pgmem/internal/catalog"
	"pgmem/internal/pgerr"
	"pgmem/internal/plan"
	"pgmem/internal/sql"
	"pgmem/internal/types"
)

type fixedSession struct{}

func (fixedSession) Now() time.Time { return time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC) }
func (fixedSession) Setting(name string) string { return "" }

// newTestCatalog builds
//
//	users(id serial primary key, name varchar(5) not null)
//	orders(id int primary key check (id > 0), user_id int references users on delete cascade)
//	tags(label text unique, user_id int references users on delete set null)
func newTestCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat := catalog.New()
	users := catalog.NewTable(catalog.PublicSchema, "users", []*catalog.Column{
		{Name: "id", Type: types.TypeInt, NotNull: true, Sequence: &catalog.Sequence{Name: "users_id_seq"}},
		{Name: "name", Type: types.TypeString, MaxLen: 5, NotNull: true},
	})
	orders := catalog.NewTable(catalog.PublicSchema, "orders", []*catalog.Column{
		{Name: "id", Type: types.TypeInt, NotNull: true},
		{Name: "user_id", Type: types.TypeInt},
	})
	tags := catalog.NewTable(catalog.PublicSchema, "tags", []*catalog.Column{
		{Name: "label", Type: types.TypeString},
		{Name: "user_id", Type: types.TypeInt},
	})
	cons := []struct {
		t   *catalog.Table
		con *catalog.Constraint
	}{
		{users, &catalog.Constraint{Kind: catalog.PrimaryKey, Columns: []string{"id"}}},
		{orders, &catalog.Constraint{Kind: catalog.PrimaryKey, Columns: []string{"id"}}},
		{orders, &catalog.Constraint{Kind: catalog.Check, Columns: []string{"id"},
			Check: &sql.BinaryExpr{Op: types.OpGt, Left: &sql.ColumnRef{Column: "id"}, Right: &sql.Literal{Value: types.Int(0)}}}},
		{orders, &catalog.Constraint{Kind: catalog.ForeignKey, Columns: []string{"user_id"},
			RefSchema: catalog.PublicSchema, RefTable: "users", RefColumns: []string{"id"}, OnDelete: sql.RefCascade}},
		{tags, &catalog.Constraint{Kind: catalog.Unique, Columns: []string{"label"}}},
		{tags, &catalog.Constraint{Kind: catalog.ForeignKey, Columns: []string{"user_id"},
			RefSchema: catalog.PublicSchema, RefTable: "users", RefColumns: []string{"id"}, OnDelete: sql.RefSetNull}},
	}
	for _, c := range cons {
		if err := c.t.AddConstraint(c.con); err != nil {
			t.Fatalf("AddConstraint failed: %v", err)
		}
	}
	for _, tbl := range []*catalog.Table{users, orders, tags} {
		if err := cat.AddTable(tbl); err != nil {
			t.Fatalf("AddTable failed: %v", err)
		}
	}
	return cat
}

// run plans and executes one statement, returning query rows or the
// RETURNING rows of a write.
func run(t *testing.T, cat *catalog.Catalog, query string) ([]types.Row, error) {
	t.Helper()
	stmt, err := sql.Parse(query)
	if err != nil {
		t.Fatalf("Parse(%q) failed: %v", query, err)
	}
	p := plan.New(cat, catalog.DefaultSearchPath)
	ex := New(context.Background(), cat, fixedSession{})
	switch s := stmt.(type) {
	case *sql.SelectStmt:
		node, err := p.Select(s)
		if err != nil {
			return nil, err
		}
		return ex.Query(node)
	case *sql.InsertStmt:
		n, err := p.Insert(s)
		if err != nil {
			return nil, err
		}
		res, err := ex.Insert(n)
		return res.Returning, err
	case *sql.UpdateStmt:
		n, err := p.Update(s)
		if err != nil {
			return nil, err
		}
		res, err := ex.Update(n)
		return res.Returning, err
	case *sql.DeleteStmt:
		n, err := p.Delete(s)
		if err != nil {
			return nil, err
		}
		res, err := ex.Delete(n)
		return res.Returning, err
	}
	t.Fatalf("unsupported statement %T", stmt)
	return nil, nil
}

func mustRun(t *testing.T, cat *catalog.Catalog, query string) []types.Row {
	t.Helper()
	rows, err := run(t, cat, query)
	if err != nil {
		t.Fatalf("%s: %v", query, err)
	}
	return rows
}

// render formats rows as text, NULL as "NULL", for compact comparisons.
func render(rows []types.Row) [][]string {
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = make([]string, len(r))
		for j, v := range r {
			out[i][j] = v.String()
		}
	}
	return out
}

func expectRows(t *testing.T, query string, got []types.Row, want [][]string) {
	t.Helper()
	g := render(got)
	if len(g) != len(want) {
		t.Fatalf("%s: expected %d rows, got %d: %v", query, len(want), len(g), g)
	}
	for i := range want {
		if len(g[i]) != len(want[i]) {
			t.Fatalf("%s: row %d: expected %v, got %v", query, i, want[i], g[i])
		}
		for j := range want[i] {
			if g[i][j] != want[i][j] {
				t.Fatalf("%s: row %d: expected %v, got %v", query, i, want[i], g[i])
			}
		}
	}
}

func seed(t *testing.T, cat *catalog.Catalog) {
	t.Helper()
	mustRun(t, cat, "INSERT INTO users (name) VALUES ('ann'), ('bob'), ('cy')")
	mustRun(t, cat, "INSERT INTO orders VALUES (10, 1), (11, 1), (12, 2), (13, NULL)")
	mustRun(t, cat, "INSERT INTO tags VALUES ('a', 1), ('b', 2), (NULL, NULL)")
}

func TestQueries(t *testing.T) {
	cat := newTestCatalog(t)
	seed(t, cat)

	cases := []struct {
		query string
		want  [][]string
	}{
		{"SELECT 1, 'wow'", [][]string{{"1", "wow"}}},
		{"SELECT id, name FROM users ORDER BY id DESC", [][]string{{"3", "cy"}, {"2", "bob"}, {"1", "ann"}}},
		{"SELECT u.name, o.id FROM users u JOIN orders o ON o.user_id = u.id ORDER BY o.id",
			[][]string{{"ann", "10"}, {"ann", "11"}, {"bob", "12"}}},
		{"SELECT u.name, o.id FROM users u LEFT JOIN orders o ON o.user_id = u.id ORDER BY u.id, o.id",
			[][]string{{"ann", "10"}, {"ann", "11"}, {"bob", "12"}, {"cy", "NULL"}}},
		{"SELECT u.name, o.id FROM users u RIGHT JOIN orders o ON o.user_id = u.id ORDER BY o.id",
			[][]string{{"ann", "10"}, {"ann", "11"}, {"bob", "12"}, {"NULL", "13"}}},
		{"SELECT u.name, o.id FROM users u FULL JOIN orders o ON o.user_id = u.id ORDER BY o.id NULLS FIRST, u.id",
			[][]string{{"cy", "NULL"}, {"ann", "10"}, {"ann", "11"}, {"bob", "12"}, {"NULL", "13"}}},
		{"SELECT count(*) FROM users, orders", [][]string{{"12"}}},
		{"SELECT user_id, count(*) FROM orders GROUP BY user_id ORDER BY user_id NULLS FIRST",
			[][]string{{"NULL", "1"}, {"1", "2"}, {"2", "1"}}},
		{"SELECT count(user_id), count(DISTINCT user_id), sum(id), avg(id) FROM orders",
			[][]string{{"3", "2", "46", "11.5000000000000000"}}},
		{"SELECT count(*), sum(id), max(id) FROM orders WHERE id > 100", [][]string{{"0", "NULL", "NULL"}}},
		{"SELECT name FROM users u WHERE EXISTS (SELECT 1 FROM orders o WHERE o.user_id = u.id) ORDER BY 1",
			[][]string{{"ann"}, {"bob"}}},
		{"SELECT name FROM users WHERE id NOT IN (SELECT user_id FROM orders WHERE user_id IS NOT NULL)",
			[][]string{{"cy"}}},
		{"SELECT name FROM users WHERE id NOT IN (SELECT user_id FROM orders)", nil},
		{"SELECT name, (SELECT count(*) FROM orders o WHERE o.user_id = u.id) FROM users u ORDER BY name",
			[][]string{{"ann", "2"}, {"bob", "1"}, {"cy", "0"}}},
		{"SELECT DISTINCT user_id IS NULL FROM orders ORDER BY 1", [][]string{{"f"}, {"t"}}},
		{"SELECT id FROM orders ORDER BY id LIMIT 2 OFFSET 1", [][]string{{"11"}, {"12"}}},
		{"SELECT id FROM orders LIMIT NULL OFFSET 3", [][]string{{"13"}}},
		{"SELECT false AND 1/0 = 1, true OR 1/0 = 1", [][]string{{"f", "t"}}},
		{"SELECT NULL AND false, NULL OR true, NULL AND true", [][]string{{"f", "t", "NULL"}}},
		{"SELECT 2 IN (1, NULL), 1 IN (1, NULL), NULL IN (1)", [][]string{{"NULL", "t", "NULL"}}},
		{"SELECT CASE WHEN id > 11 THEN 'big' ELSE 'small' END FROM orders WHERE id < 13 ORDER BY id",
			[][]string{{"small"}, {"small"}, {"big"}}},
		{"SELECT coalesce(NULL, user_id, 0), nullif(id, 10) FROM orders ORDER BY id",
			[][]string{{"1", "NULL"}, {"1", "11"}, {"2", "12"}, {"0", "13"}}},
		{"SELECT * FROM (VALUES (1, 'x'), (2, 'y')) AS v(n, s) WHERE n > 1", [][]string{{"2", "y"}}},
		{"SELECT CAST('abcdef' AS varchar(3)), 'tru'::bool", [][]string{{"abc", "t"}}},
	}
	for _, tc := range cases {
		expectRows(t, tc.query, mustRun(t, cat, tc.query), tc.want)
	}
}

func TestQueryErrors(t *testing.T) {
	cat := newTestCatalog(t)
	seed(t, cat)

	cases := []struct {
		query string
		code  string
	}{
		{"SELECT (SELECT id FROM users)", pgerr.CodeCardinalityViolation},
		{"SELECT 1/0", pgerr.CodeDivisionByZero},
		{"SELECT id FROM users LIMIT -1", pgerr.CodeInvalidRowCountInLimit},
		{"SELECT id FROM users OFFSET -1", pgerr.CodeInvalidRowCountInOffset},
		{"SELECT 2147483647 + id FROM users", pgerr.CodeNumericValueOutOfRange},
	}
	for _, tc := range cases {
		_, err := run(t, cat, tc.query)
		if got := pgerr.CodeOf(err); got != tc.code {
			t.Fatalf("%s: expected code %s, got %s (%v)", tc.query, tc.code, got, err)
		}
	}
}

func TestLimitStopsPulling(t *testing.T) {
	cat := newTestCatalog(t)
	seed(t, cat)

	// Row 3 would divide by zero; the limit never asks for it.
	rows := mustRun(t, cat, "SELECT 6 / (3 - id) FROM users LIMIT 2")
	expectRows(t, "limit", rows, [][]string{{"3"}, {"6"}})

	if _, err := run(t, cat, "SELECT 6 / (3 - id) FROM users"); !pgerr.HasCode(err, pgerr.CodeDivisionByZero) {
		t.Fatalf("expected division by zero without limit, got %v", err)
	}
}

func TestInsertConstraints(t *testing.T) {
	cat := newTestCatalog(t)
	seed(t, cat)
	users, _ := cat.Table(catalog.PublicSchema, "users")

	// 1. RETURNING shows serial values and defaults.
	rows := mustRun(t, cat, "INSERT INTO users (name) VALUES ('dee') RETURNING id, upper(name)")
	expectRows(t, "returning", rows, [][]string{{"4", "DEE"}})

	// 2. Violations fail the whole statement.
	cases := []struct {
		query string
		code  string
		msg   string
	}{
		{"INSERT INTO users (name) VALUES ('eve'), (NULL)", pgerr.CodeNotNullViolation,
			`null value in column "name" of relation "users" violates not-null constraint`},
		{"INSERT INTO users (name) VALUES ('toolong')", pgerr.CodeStringDataRightTruncation,
			"value too long for type character varying(5)"},
		{"INSERT INTO users VALUES (1, 'dup')", pgerr.CodeUniqueViolation,
			`duplicate key value violates unique constraint "users_pkey"`},
		{"INSERT INTO users (name) VALUES ('x'), ('y'), ('z') RETURNING 1/0", pgerr.CodeDivisionByZero, ""},
		{"INSERT INTO orders VALUES (0, 1)", pgerr.CodeCheckViolation,
			`new row for relation "orders" violates check constraint "orders_id_check"`},
		{"INSERT INTO orders VALUES (20, 99)", pgerr.CodeForeignKeyViolation,
			`insert or update on table "orders" violates foreign key constraint "orders_user_id_fkey"`},
		{"INSERT INTO tags VALUES ('c', 1), ('c', 2)", pgerr.CodeUniqueViolation,
			`duplicate key value violates unique constraint "tags_label_key"`},
	}
	for _, tc := range cases {
		_, err := run(t, cat, tc.query)
		pe, ok := pgerr.As(err)
		if !ok {
			t.Fatalf("%s: expected *pgerr.Error, got %v", tc.query, err)
		}
		if pe.Code() != tc.code {
			t.Fatalf("%s: expected code %s, got %s (%v)", tc.query, tc.code, pe.Code(), err)
		}
		if tc.msg != "" && pe.Message() != tc.msg {
			t.Fatalf("%s: expected message %q, got %q", tc.query, tc.msg, pe.Message())
		}
	}

	// 3. Nothing from the failed statements is visible and the sequence
	// did not move.
	if users.RowCount() != 4 {
		t.Fatalf("expected 4 users, got %d", users.RowCount())
	}
	rows = mustRun(t, cat, "INSERT INTO users (name) VALUES ('fay') RETURNING id")
	expectRows(t, "sequence", rows, [][]string{{"5"}})

	// 4. NULL keys never conflict.
	mustRun(t, cat, "INSERT INTO tags VALUES (NULL, 1), (NULL, 2)")

	// 5. Detail carries the offending key.
	_, err := run(t, cat, "INSERT INTO orders VALUES (10, 1)")
	pe, _ := pgerr.As(err)
	if pe == nil || pe.PG.Detail != "Key (id)=(10) already exists." {
		t.Fatalf("expected key detail, got %v", err)
	}
}

func TestUpdate(t *testing.T) {
	cat := newTestCatalog(t)
	seed(t, cat)

	// 1. SET expressions see the old row.
	rows := mustRun(t, cat, "UPDATE orders SET id = user_id + 100, user_id = id - 9 WHERE id = 10 RETURNING id, user_id")
	expectRows(t, "update", rows, [][]string{{"101", "1"}})

	// 2. Swapping keys in one statement is fine because uniqueness is
	// checked on the final contents.
	mustRun(t, cat, "UPDATE users SET id = 3 - id WHERE id < 3")
	expectRows(t, "swap", mustRun(t, cat, "SELECT name FROM users ORDER BY id"), [][]string{{"bob"}, {"ann"}, {"cy"}})

	// 3. Violations.
	cases := []struct {
		query string
		code  string
	}{
		{"UPDATE users SET id = 2 WHERE id = 1", pgerr.CodeUniqueViolation},
		{"UPDATE users SET name = NULL", pgerr.CodeNotNullViolation},
		{"UPDATE orders SET id = -id", pgerr.CodeCheckViolation},
		{"UPDATE orders SET user_id = 42", pgerr.CodeForeignKeyViolation},
		{"UPDATE users SET id = id + 10", pgerr.CodeForeignKeyViolation},
	}
	for _, tc := range cases {
		_, err := run(t, cat, tc.query)
		if got := pgerr.CodeOf(err); got != tc.code {
			t.Fatalf("%s: expected code %s, got %s (%v)", tc.query, tc.code, got, err)
		}
	}

	// 4. A matching-nothing update succeeds with no rows.
	if rows := mustRun(t, cat, "UPDATE users SET name = 'q' WHERE false RETURNING *"); len(rows) != 0 {
		t.Fatalf("expected no rows, got %d", len(rows))
	}
}

func TestDeleteForeignKeyActions(t *testing.T) {
	cat := newTestCatalog(t)
	seed(t, cat)

	// 1. Deleting ann cascades to her orders and nulls her tag.
	rows := mustRun(t, cat, "DELETE FROM users WHERE name = 'ann' RETURNING id")
	expectRows(t, "delete", rows, [][]string{{"1"}})
	expectRows(t, "orders", mustRun(t, cat, "SELECT id FROM orders ORDER BY id"), [][]string{{"12"}, {"13"}})
	expectRows(t, "tags", mustRun(t, cat, "SELECT label, user_id FROM tags ORDER BY label NULLS LAST"),
		[][]string{{"a", "NULL"}, {"b", "2"}, {"NULL", "NULL"}})

	// 2. A NO ACTION reference blocks the delete.
	tags, _ := cat.Table(catalog.PublicSchema, "tags")
	tags.Constraints[1].OnDelete = sql.RefNoAction
	_, err := run(t, cat, "DELETE FROM users WHERE id = 2")
	pe, ok := pgerr.As(err)
	if !ok || pe.Code() != pgerr.CodeForeignKeyViolation {
		t.Fatalf("expected foreign key violation, got %v", err)
	}
	want := `update or delete on table "users" violates foreign key constraint "tags_user_id_fkey" on table "tags"`
	if pe.Message() != want {
		t.Fatalf("expected message %q, got %q", want, pe.Message())
	}

	// 3. The failed delete left orders untouched even though its cascade
	// had been staged.
	expectRows(t, "orders", mustRun(t, cat, "SELECT id FROM orders ORDER BY id"), [][]string{{"12"}, {"13"}})
}
