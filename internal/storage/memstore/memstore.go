package memstore

import (
	"context"
	"fmt"

	"pgmem/internal/catalog"
	"pgmem/internal/storage"
)

type memEngine struct {
	// sem holds one token while a transaction is open.
	sem chan struct{}
	cat *catalog.Catalog
}

// New creates an in-memory storage engine around cat. A nil cat starts from
// an empty catalog.
func New(cat *catalog.Catalog) storage.Engine {
	if cat == nil {
		cat = catalog.New()
	}
	return &memEngine{
		sem: make(chan struct{}, 1),
		cat: cat,
	}
}

// memTx represents a transaction on top of memEngine.
type memTx struct {
	eng  *memEngine
	snap *catalog.Catalog // nil without snapshot
	done bool
}

func (tx *memTx) Catalog() *catalog.Catalog { return tx.eng.cat }

func (tx *memTx) Snapshot() bool { return tx.snap != nil }

// Begin starts a new transaction once the previous one has finished.
func (e *memEngine) Begin(ctx context.Context, snapshot bool) (storage.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("begin tx: %w", ctx.Err())
	}
	tx := &memTx{eng: e}
	if snapshot {
		tx.snap = e.cat.Clone()
	}
	return tx, nil
}

// Commit finishes a transaction.
func (e *memEngine) Commit(tx storage.Tx) error {
	mt, err := e.own(tx)
	if err != nil {
		return err
	}
	e.release(mt)
	return nil
}

// Rollback aborts a transaction and puts back the snapshot, if any.
func (e *memEngine) Rollback(tx storage.Tx) error {
	mt, err := e.own(tx)
	if err != nil {
		return err
	}
	if mt.snap != nil {
		e.cat.Restore(mt.snap)
	}
	e.release(mt)
	return nil
}

func (e *memEngine) own(tx storage.Tx) (*memTx, error) {
	mt, ok := tx.(*memTx)
	if !ok || mt.eng != e {
		return nil, fmt.Errorf("transaction does not belong to this engine")
	}
	if mt.done {
		return nil, fmt.Errorf("transaction already finished")
	}
	return mt, nil
}

func (e *memEngine) release(tx *memTx) {
	tx.done = true
	tx.snap = nil
	<-e.sem
}
