// Package exec runs plans produced by package plan against the catalog.
//
// Queries run as pull-based iterators: every node opens its children and
// produces rows one at a time, so a Limit stops its input early. Writes
// compute the complete new contents of every affected table first and swap
// them in only when all constraints hold, so a failed statement changes
// nothing.
package exec

import (
	"context"

	"pgmem/internal/catalog"
	"pgmem/internal/functions"
	"pgmem/internal/pgerr"
	"pgmem/internal/plan"
	"pgmem/internal/types"
)

// Env is the row environment of expression evaluation. Outer links to the
// row of the enclosing query for correlated subqueries.
type Env struct {
	Row   types.Row
	Outer *Env
}

// Iterator produces the rows of one plan node.
type Iterator interface {
	// Next returns the next row, or ok=false when the input is exhausted.
	Next() (row types.Row, ok bool, err error)
	Close()
}

// Executor runs plans for one statement.
type Executor struct {
	ctx context.Context
	cat *catalog.Catalog
	fn  functions.Context
}

// New creates an executor. fn provides the session state builtins read.
func New(ctx context.Context, cat *catalog.Catalog, fn functions.Context) *Executor {
	return &Executor{ctx: ctx, cat: cat, fn: fn}
}

// Query runs a query plan to completion.
func (ex *Executor) Query(n plan.Node) ([]types.Row, error) {
	return ex.collect(n, nil)
}

func (ex *Executor) collect(n plan.Node, outer *Env) ([]types.Row, error) {
	it, err := ex.Open(n, outer)
	if err != nil {
		return nil, err
	}
	defer it.Close()
	rows := make([]types.Row, 0)
	for {
		row, ok, err := it.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return rows, nil
		}
		rows = append(rows, row)
	}
}

// Open starts iterating n. outer is the environment of the enclosing query
// when n is a subquery.
func (ex *Executor) Open(n plan.Node, outer *Env) (Iterator, error) {
	switch n := n.(type) {
	case *plan.Scan:
		return &scanIter{ex: ex, rows: n.Table.Rows()}, nil
	case *plan.Values:
		return &valuesIter{ex: ex, node: n, env: &Env{Outer: outer}}, nil
	case *plan.Filter:
		in, err := ex.Open(n.Input, outer)
		if err != nil {
			return nil, err
		}
		return &filterIter{ex: ex, in: in, pred: n.Pred, outer: outer}, nil
	case *plan.Join:
		return ex.openJoin(n, outer)
	case *plan.Aggregate:
		return ex.openAggregate(n, outer)
	case *plan.Project:
		in, err := ex.Open(n.Input, outer)
		if err != nil {
			return nil, err
		}
		return &projectIter{ex: ex, in: in, exprs: n.Exprs, outer: outer}, nil
	case *plan.Distinct:
		in, err := ex.Open(n.Input, outer)
		if err != nil {
			return nil, err
		}
		return &distinctIter{in: in, seen: make(map[string]struct{})}, nil
	case *plan.Sort:
		return ex.openSort(n, outer)
	case *plan.Limit:
		return ex.openLimit(n, outer)
	case *plan.Trim:
		in, err := ex.Open(n.Input, outer)
		if err != nil {
			return nil, err
		}
		return &trimIter{in: in, width: n.Width}, nil
	}
	return nil, pgerr.Internal("unexpected plan node %T", n)
}
