package catalog

import (
	"testing"

	"pgmem/internal/pgerr"
	"pgmem/internal/sql"
	"pgmem/internal/types"
)

func usersTable() *Table {
	return NewTable(PublicSchema, "users", []*Column{
		{Name: "id", Type: types.TypeInt, NotNull: true},
		{Name: "name", Type: types.TypeString},
		{Name: "active", Type: types.TypeBool},
	})
}

// TestCatalogCreateReplaceScan verifies that we can create a table, store
// rows and read them back.
func TestCatalogCreateReplaceScan(t *testing.T) {
	cat := New()

	// 1. Create table "users"
	if err := cat.AddTable(usersTable()); err != nil {
		t.Fatalf("AddTable failed: %v", err)
	}

	// 2. Resolve it through the search path
	tbl, err := cat.LookupTable(sql.TableName{Name: "users"}, DefaultSearchPath)
	if err != nil {
		t.Fatalf("LookupTable failed: %v", err)
	}

	// 3. Store two rows
	rows := []types.Row{
		{types.Int(1), types.Text("Alice"), types.Bool(true)},
		{types.Int(2), types.Null(), types.Bool(false)},
	}
	if err := tbl.ReplaceAll(rows); err != nil {
		t.Fatalf("ReplaceAll failed: %v", err)
	}

	// 4. Scan
	got := tbl.Rows()
	if len(got) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(got))
	}
	if got[0][1].S != "Alice" || !got[1][1].IsNull() {
		t.Fatalf("unexpected rows: %v", got)
	}
	if names := tbl.ColumnNames(); len(names) != 3 || names[2] != "active" {
		t.Fatalf("unexpected column names: %v", names)
	}
}

func TestCatalogReplaceAllRejectsBadRows(t *testing.T) {
	tbl := usersTable()
	if err := tbl.ReplaceAll([]types.Row{{types.Int(1)}}); err == nil {
		t.Fatalf("expected error for short row")
	}
	if err := tbl.ReplaceAll([]types.Row{{types.Text("x"), types.Null(), types.Null()}}); err == nil {
		t.Fatalf("expected error for type mismatch")
	}
	if tbl.RowCount() != 0 {
		t.Fatalf("expected failed ReplaceAll to leave the table empty, got %d rows", tbl.RowCount())
	}
}

func TestCatalogLookupErrors(t *testing.T) {
	cat := New()

	_, err := cat.LookupTable(sql.TableName{Name: "nope"}, DefaultSearchPath)
	if pgerr.CodeOf(err) != pgerr.CodeUndefinedTable {
		t.Fatalf("expected 42P01, got %v", err)
	}

	_, err = cat.LookupTable(sql.TableName{Schema: "mystery_schema", Name: "nope"}, DefaultSearchPath)
	if pgerr.CodeOf(err) != pgerr.CodeInvalidSchemaName {
		t.Fatalf("expected 3F000, got %v", err)
	}
	if e, _ := pgerr.As(err); e.Message() != `schema "mystery_schema" does not exist` {
		t.Fatalf("unexpected message %q", e.Message())
	}

	_, err = cat.LookupTable(sql.TableName{Schema: "public", Name: "nope"}, DefaultSearchPath)
	if e, _ := pgerr.As(err); e == nil || e.Message() != `relation "public.nope" does not exist` {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestCatalogDuplicateTable(t *testing.T) {
	cat := New()
	if err := cat.AddTable(usersTable()); err != nil {
		t.Fatalf("AddTable failed: %v", err)
	}
	err := cat.AddTable(usersTable())
	if pgerr.CodeOf(err) != pgerr.CodeDuplicateTable {
		t.Fatalf("expected 42P07, got %v", err)
	}
}

func TestCatalogSchemas(t *testing.T) {
	cat := New()
	if !cat.HasSchema(PublicSchema) || !cat.HasSchema(PgCatalogSchema) {
		t.Fatalf("expected public and pg_catalog to exist")
	}

	created, err := cat.CreateSchema("app", false)
	if err != nil || !created {
		t.Fatalf("CreateSchema failed: %v", err)
	}
	if created, err := cat.CreateSchema("app", true); err != nil || created {
		t.Fatalf("expected IF NOT EXISTS to be a no-op, got %v %v", created, err)
	}
	if _, err := cat.CreateSchema("app", false); pgerr.CodeOf(err) != pgerr.CodeDuplicateSchema {
		t.Fatalf("expected 42P06, got %v", err)
	}

	tbl := NewTable("app", "things", []*Column{{Name: "id", Type: types.TypeInt}})
	if err := cat.AddTable(tbl); err != nil {
		t.Fatalf("AddTable failed: %v", err)
	}
	if err := cat.DropSchema("app", false); pgerr.CodeOf(err) != pgerr.CodeDependentObjects {
		t.Fatalf("expected 2BP01 for non-empty schema, got %v", err)
	}
	if err := cat.DropSchema("app", true); err != nil {
		t.Fatalf("DropSchema CASCADE failed: %v", err)
	}
	if cat.HasSchema("app") {
		t.Fatalf("expected schema to be gone")
	}
}

func TestCatalogForeignKeysBlockDrop(t *testing.T) {
	cat := New()
	parent := NewTable(PublicSchema, "parent", []*Column{{Name: "id", Type: types.TypeInt}})
	if err := parent.AddConstraint(&Constraint{Kind: PrimaryKey, Columns: []string{"id"}}); err != nil {
		t.Fatalf("AddConstraint failed: %v", err)
	}
	child := NewTable(PublicSchema, "child", []*Column{{Name: "parent_id", Type: types.TypeInt}})
	fk := &Constraint{Kind: ForeignKey, Columns: []string{"parent_id"},
		RefSchema: PublicSchema, RefTable: "parent", RefColumns: []string{"id"}}
	if err := child.AddConstraint(fk); err != nil {
		t.Fatalf("AddConstraint failed: %v", err)
	}
	if fk.Name != "child_parent_id_fkey" {
		t.Fatalf("expected generated name child_parent_id_fkey, got %q", fk.Name)
	}
	for _, tbl := range []*Table{parent, child} {
		if err := cat.AddTable(tbl); err != nil {
			t.Fatalf("AddTable failed: %v", err)
		}
	}

	err := cat.DropTables([]*Table{parent}, false)
	if pgerr.CodeOf(err) != pgerr.CodeDependentObjects {
		t.Fatalf("expected 2BP01, got %v", err)
	}
	if _, ok := cat.Table(PublicSchema, "parent"); !ok {
		t.Fatalf("expected parent to survive a failed drop")
	}

	// Dropping both together needs no CASCADE.
	if err := cat.DropTables([]*Table{parent, child}, false); err != nil {
		t.Fatalf("DropTables failed: %v", err)
	}
	if cat.TableCount() != 0 {
		t.Fatalf("expected no tables, got %d", cat.TableCount())
	}
}

func TestCatalogCloneRestore(t *testing.T) {
	cat := New()
	tbl := usersTable()
	tbl.Columns[0].Sequence = &Sequence{Name: "users_id_seq"}
	if err := cat.AddTable(tbl); err != nil {
		t.Fatalf("AddTable failed: %v", err)
	}
	if err := tbl.ReplaceAll([]types.Row{{types.Int(1), types.Text("a"), types.Bool(true)}}); err != nil {
		t.Fatalf("ReplaceAll failed: %v", err)
	}
	tbl.Columns[0].Sequence.Next()

	snap := cat.Clone()

	if err := tbl.ReplaceAll(nil); err != nil {
		t.Fatalf("ReplaceAll failed: %v", err)
	}
	tbl.Columns[0].Sequence.Next()
	if err := tbl.RenameColumn("name", "label"); err != nil {
		t.Fatalf("RenameColumn failed: %v", err)
	}

	cat.Restore(snap)
	restored, _ := cat.Table(PublicSchema, "users")
	if restored.RowCount() != 1 {
		t.Fatalf("expected 1 row after restore, got %d", restored.RowCount())
	}
	if restored.ColumnIndex("name") != 1 {
		t.Fatalf("expected column name to be restored")
	}
	if got := restored.Columns[0].Sequence.Last; got != 1 {
		t.Fatalf("expected sequence at 1 after restore, got %d", got)
	}
}

func TestTableAddDropColumn(t *testing.T) {
	tbl := usersTable()
	if err := tbl.ReplaceAll([]types.Row{{types.Int(1), types.Text("a"), types.Bool(true)}}); err != nil {
		t.Fatalf("ReplaceAll failed: %v", err)
	}
	if err := tbl.AddConstraint(&Constraint{Kind: Unique, Columns: []string{"name"}}); err != nil {
		t.Fatalf("AddConstraint failed: %v", err)
	}

	if err := tbl.AddColumn(&Column{Name: "age", Type: types.TypeInt}, []types.Value{types.Int(30)}); err != nil {
		t.Fatalf("AddColumn failed: %v", err)
	}
	if got := tbl.Rows()[0][3]; got.I64 != 30 {
		t.Fatalf("expected filled value 30, got %v", got)
	}
	if err := tbl.AddColumn(&Column{Name: "age", Type: types.TypeInt}, []types.Value{types.Null()}); pgerr.CodeOf(err) != pgerr.CodeDuplicateColumn {
		t.Fatalf("expected 42701, got %v", err)
	}

	if err := tbl.DropColumn("name"); err != nil {
		t.Fatalf("DropColumn failed: %v", err)
	}
	if len(tbl.Rows()[0]) != 3 || tbl.ColumnIndex("age") != 2 {
		t.Fatalf("unexpected shape after drop: %v", tbl.ColumnNames())
	}
	if tbl.Constraint("users_name_key") != nil {
		t.Fatalf("expected constraint on dropped column to go away")
	}
}
