package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"pgmem/internal/catalog"
	"pgmem/internal/types"
)

func addUsers(t *testing.T, cat *catalog.Catalog) *catalog.Table {
	t.Helper()
	tbl := catalog.NewTable(catalog.PublicSchema, "users", []*catalog.Column{
		{Name: "id", Type: types.TypeInt},
		{Name: "name", Type: types.TypeString},
	})
	if err := cat.AddTable(tbl); err != nil {
		t.Fatalf("AddTable failed: %v", err)
	}
	return tbl
}

// TestMemstoreCommitKeepsChanges verifies that changes made inside a
// transaction survive Commit.
func TestMemstoreCommitKeepsChanges(t *testing.T) {
	store := New(nil)
	ctx := context.Background()

	// 1. Begin a transaction with a snapshot.
	tx, err := store.Begin(ctx, true)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if !tx.Snapshot() {
		t.Fatalf("expected snapshot transaction")
	}

	// 2. Create a table and add a row.
	tbl := addUsers(t, tx.Catalog())
	if err := tbl.ReplaceAll([]types.Row{{types.Int(1), types.Text("Alice")}}); err != nil {
		t.Fatalf("ReplaceAll failed: %v", err)
	}

	// 3. Commit and look again from a fresh transaction.
	if err := store.Commit(tx); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	tx, err = store.Begin(ctx, false)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	defer store.Commit(tx)

	got, ok := tx.Catalog().Table(catalog.PublicSchema, "users")
	if !ok {
		t.Fatalf("expected table users after commit")
	}
	if got.RowCount() != 1 {
		t.Fatalf("expected 1 row, got %d", got.RowCount())
	}
}

// TestMemstoreRollbackRestoresSnapshot verifies that Rollback undoes both
// schema and data changes.
func TestMemstoreRollbackRestoresSnapshot(t *testing.T) {
	cat := catalog.New()
	tbl := addUsers(t, cat)
	if err := tbl.ReplaceAll([]types.Row{{types.Int(1), types.Text("Alice")}}); err != nil {
		t.Fatalf("ReplaceAll failed: %v", err)
	}
	store := New(cat)
	ctx := context.Background()

	tx, err := store.Begin(ctx, true)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	live, _ := tx.Catalog().Table(catalog.PublicSchema, "users")
	if err := live.ReplaceAll(nil); err != nil {
		t.Fatalf("ReplaceAll failed: %v", err)
	}
	if err := tx.Catalog().DropTables([]*catalog.Table{live}, false); err != nil {
		t.Fatalf("DropTables failed: %v", err)
	}

	if err := store.Rollback(tx); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}
	restored, ok := cat.Table(catalog.PublicSchema, "users")
	if !ok {
		t.Fatalf("expected users to be restored")
	}
	if restored.RowCount() != 1 {
		t.Fatalf("expected 1 row after rollback, got %d", restored.RowCount())
	}

	// A finished transaction cannot be finished again.
	if err := store.Commit(tx); err == nil {
		t.Fatalf("expected error committing a finished transaction")
	}
}

// TestMemstoreBeginWaits verifies that a second transaction waits for the
// first and gives up when its context ends.
func TestMemstoreBeginWaits(t *testing.T) {
	store := New(nil)

	tx, err := store.Begin(context.Background(), false)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := store.Begin(ctx, false); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	acquired := make(chan error, 1)
	go func() {
		tx2, err := store.Begin(context.Background(), false)
		if err == nil {
			err = store.Commit(tx2)
		}
		acquired <- err
	}()
	if err := store.Commit(tx); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	select {
	case err := <-acquired:
		if err != nil {
			t.Fatalf("second transaction failed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("second transaction never started")
	}
}
