package exec

import (
	"slices"

	"pgmem/internal/pgerr"
	"pgmem/internal/plan"
	"pgmem/internal/sql"
	"pgmem/internal/types"
)

type scanIter struct {
	ex   *Executor
	rows []types.Row
	pos  int
}

func (it *scanIter) Next() (types.Row, bool, error) {
	if err := it.ex.ctx.Err(); err != nil {
		return nil, false, err
	}
	if it.pos >= len(it.rows) {
		return nil, false, nil
	}
	row := it.rows[it.pos]
	it.pos++
	return row, true, nil
}

func (it *scanIter) Close() {}

type valuesIter struct {
	ex   *Executor
	node *plan.Values
	env  *Env
	pos  int
}

func (it *valuesIter) Next() (types.Row, bool, error) {
	if it.pos >= len(it.node.Rows) {
		return nil, false, nil
	}
	exprs := it.node.Rows[it.pos]
	it.pos++
	row := make(types.Row, len(exprs))
	for i, e := range exprs {
		v, err := it.ex.Eval(e, it.env)
		if err != nil {
			return nil, false, err
		}
		row[i] = v
	}
	return row, true, nil
}

func (it *valuesIter) Close() {}

type filterIter struct {
	ex    *Executor
	in    Iterator
	pred  plan.Expr
	outer *Env
}

func (it *filterIter) Next() (types.Row, bool, error) {
	for {
		row, ok, err := it.in.Next()
		if err != nil || !ok {
			return nil, false, err
		}
		v, err := it.ex.Eval(it.pred, &Env{Row: row, Outer: it.outer})
		if err != nil {
			return nil, false, err
		}
		if types.Truth(v) == types.True {
			return row, true, nil
		}
	}
}

func (it *filterIter) Close() { it.in.Close() }

type projectIter struct {
	ex    *Executor
	in    Iterator
	exprs []plan.Expr
	outer *Env
}

func (it *projectIter) Next() (types.Row, bool, error) {
	row, ok, err := it.in.Next()
	if err != nil || !ok {
		return nil, false, err
	}
	env := &Env{Row: row, Outer: it.outer}
	out := make(types.Row, len(it.exprs))
	for i, e := range it.exprs {
		if out[i], err = it.ex.Eval(e, env); err != nil {
			return nil, false, err
		}
	}
	return out, true, nil
}

func (it *projectIter) Close() { it.in.Close() }

type distinctIter struct {
	in   Iterator
	seen map[string]struct{}
}

func (it *distinctIter) Next() (types.Row, bool, error) {
	for {
		row, ok, err := it.in.Next()
		if err != nil || !ok {
			return nil, false, err
		}
		k := types.RowKey(row)
		if _, dup := it.seen[k]; dup {
			continue
		}
		it.seen[k] = struct{}{}
		return row, true, nil
	}
}

func (it *distinctIter) Close() { it.in.Close() }

type trimIter struct {
	in    Iterator
	width int
}

func (it *trimIter) Next() (types.Row, bool, error) {
	row, ok, err := it.in.Next()
	if err != nil || !ok {
		return nil, false, err
	}
	return row[:it.width:it.width], true, nil
}

func (it *trimIter) Close() { it.in.Close() }

// sliceIter replays materialised rows.
type sliceIter struct {
	rows []types.Row
	pos  int
}

func (it *sliceIter) Next() (types.Row, bool, error) {
	if it.pos >= len(it.rows) {
		return nil, false, nil
	}
	row := it.rows[it.pos]
	it.pos++
	return row, true, nil
}

func (it *sliceIter) Close() {}

// joinIter is a nested-loop join. The right input is materialised once; the
// left input streams.
type joinIter struct {
	ex      *Executor
	node    *plan.Join
	left    Iterator
	right   []types.Row
	matched []bool // right rows that joined, for RIGHT and FULL joins
	outer   *Env
	pending []types.Row
	done    bool
}

func (ex *Executor) openJoin(n *plan.Join, outer *Env) (Iterator, error) {
	right, err := ex.collect(n.Right, outer)
	if err != nil {
		return nil, err
	}
	left, err := ex.Open(n.Left, outer)
	if err != nil {
		return nil, err
	}
	return &joinIter{
		ex:      ex,
		node:    n,
		left:    left,
		right:   right,
		matched: make([]bool, len(right)),
		outer:   outer,
	}, nil
}

func (it *joinIter) Next() (types.Row, bool, error) {
	for len(it.pending) == 0 {
		if it.done {
			return nil, false, nil
		}
		if err := it.advance(); err != nil {
			return nil, false, err
		}
	}
	row := it.pending[0]
	it.pending = it.pending[1:]
	return row, true, nil
}

// advance joins the next left row, or emits the unmatched right rows once
// the left side is exhausted.
func (it *joinIter) advance() error {
	kind := it.node.Kind
	leftRow, ok, err := it.left.Next()
	if err != nil {
		return err
	}
	if !ok {
		it.done = true
		if kind == sql.JoinRight || kind == sql.JoinFull {
			width := len(it.node.Left.Columns())
			for i, r := range it.right {
				if !it.matched[i] {
					it.pending = append(it.pending, concatRows(nullRow(width), r))
				}
			}
		}
		return nil
	}
	found := false
	for i, r := range it.right {
		row := concatRows(leftRow, r)
		if it.node.On != nil {
			v, err := it.ex.Eval(it.node.On, &Env{Row: row, Outer: it.outer})
			if err != nil {
				return err
			}
			if types.Truth(v) != types.True {
				continue
			}
		}
		found = true
		it.matched[i] = true
		it.pending = append(it.pending, row)
	}
	if !found && (kind == sql.JoinLeft || kind == sql.JoinFull) {
		it.pending = append(it.pending, concatRows(leftRow, nullRow(len(it.node.Right.Columns()))))
	}
	return nil
}

func (it *joinIter) Close() { it.left.Close() }

func concatRows(a, b types.Row) types.Row {
	out := make(types.Row, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}

func nullRow(n int) types.Row {
	return make(types.Row, n)
}

func (ex *Executor) openSort(n *plan.Sort, outer *Env) (Iterator, error) {
	rows, err := ex.collect(n.Input, outer)
	if err != nil {
		return nil, err
	}
	var cmpErr error
	slices.SortStableFunc(rows, func(a, b types.Row) int {
		for _, k := range n.Keys {
			c, err := compareKey(a[k.Index], b[k.Index], k)
			if err != nil && cmpErr == nil {
				cmpErr = err
			}
			if c != 0 {
				return c
			}
		}
		return 0
	})
	if cmpErr != nil {
		return nil, cmpErr
	}
	return &sliceIter{rows: rows}, nil
}

func compareKey(a, b types.Value, k plan.SortKey) (int, error) {
	an, bn := a.IsNull(), b.IsNull()
	switch {
	case an && bn:
		return 0, nil
	case an || bn:
		c := 1
		if an == k.NullsFirst {
			c = -1
		}
		return c, nil
	}
	c, err := types.Compare(a, b)
	if k.Desc {
		c = -c
	}
	return c, err
}

type limitIter struct {
	in     Iterator
	skip   int64
	remain int64 // negative means unlimited
}

func (ex *Executor) openLimit(n *plan.Limit, outer *Env) (Iterator, error) {
	env := &Env{Outer: outer}
	it := &limitIter{remain: -1}
	if n.Count != nil {
		v, err := ex.Eval(n.Count, env)
		if err != nil {
			return nil, err
		}
		if !v.IsNull() {
			if v.I64 < 0 {
				return nil, pgerr.New(pgerr.KindEval, pgerr.CodeInvalidRowCountInLimit, "LIMIT must not be negative")
			}
			it.remain = v.I64
		}
	}
	if n.Offset != nil {
		v, err := ex.Eval(n.Offset, env)
		if err != nil {
			return nil, err
		}
		if !v.IsNull() {
			if v.I64 < 0 {
				return nil, pgerr.New(pgerr.KindEval, pgerr.CodeInvalidRowCountInOffset, "OFFSET must not be negative")
			}
			it.skip = v.I64
		}
	}
	in, err := ex.Open(n.Input, outer)
	if err != nil {
		return nil, err
	}
	it.in = in
	return it, nil
}

func (it *limitIter) Next() (types.Row, bool, error) {
	if it.remain == 0 {
		return nil, false, nil
	}
	for it.skip > 0 {
		_, ok, err := it.in.Next()
		if err != nil || !ok {
			return nil, false, err
		}
		it.skip--
	}
	row, ok, err := it.in.Next()
	if err != nil || !ok {
		return nil, false, err
	}
	if it.remain > 0 {
		it.remain--
	}
	return row, true, nil
}

func (it *limitIter) Close() { it.in.Close() }
