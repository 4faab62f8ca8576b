package storage

import (
	"context"

	"pgmem/internal/catalog"
)

// Tx is exclusive access to a catalog. While a Tx is open no other
// transaction of the same Engine can begin.
type Tx interface {
	// Catalog returns the catalog the transaction works on.
	Catalog() *catalog.Catalog

	// Snapshot reports whether Rollback restores the catalog to its state
	// at Begin.
	Snapshot() bool
}

// Engine hands out transactions over one catalog.
//
// Implementations:
//   - memstore: a catalog in process memory, shared by every session that
//     holds the same Engine
type Engine interface {
	// Begin waits until the catalog is free or ctx is done. With snapshot
	// set, the catalog is copied so Rollback can undo the transaction.
	Begin(ctx context.Context, snapshot bool) (Tx, error)

	// Commit keeps the changes made by tx and releases the catalog.
	Commit(tx Tx) error

	// Rollback releases the catalog, first restoring the Begin state when
	// tx was started with a snapshot.
	Rollback(tx Tx) error
}
