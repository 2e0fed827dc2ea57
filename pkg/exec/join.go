// pkg/exec/join.go
package exec

import (
	"fmt"

	"grizzly/pkg/plan"
	"grizzly/pkg/schema"
	"grizzly/pkg/types"
)

// runJoin materializes both inputs, rejects mismatched key types up front,
// then dispatches on the strategy the optimizer picked.
func (e *Executor) runJoin(node *plan.Join) (*Result, error) {
	left, err := e.run(node.Left)
	if err != nil {
		return nil, err
	}
	right, err := e.run(node.Right)
	if err != nil {
		return nil, err
	}

	li, err := left.Schema.ColumnIndex(node.LeftCol)
	if err != nil {
		return nil, err
	}
	ri, err := right.Schema.ColumnIndex(node.RightCol)
	if err != nil {
		return nil, err
	}
	lt, rt := left.Schema.Column(li).Type, right.Schema.Column(ri).Type
	if lt != rt {
		return nil, fmt.Errorf("join keys %s (%s) and %s (%s): %w",
			node.LeftCol, lt, node.RightCol, rt, types.ErrTypeMismatch)
	}

	s, err := joinSchema(left.Schema, right.Schema)
	if err != nil {
		return nil, err
	}
	out := &Result{Schema: s}

	if node.Strategy == plan.HashStrategy {
		out.Rows = hashJoin(left, right, li, ri, node.Type)
	} else {
		out.Rows = nestedLoopJoin(left, right, li, ri, node.Type)
	}
	return out, nil
}

// joinSchema concatenates left and right columns. Right-side names that
// collide with a left-side name get a numeric suffix so the combined schema
// stays unambiguous.
func joinSchema(l, r *schema.Schema) (*schema.Schema, error) {
	defs := make([]schema.ColumnDef, 0, l.NumColumns()+r.NumColumns())
	defs = append(defs, l.Columns()...)
	taken := make(map[string]struct{}, len(defs))
	for _, d := range defs {
		taken[d.Name] = struct{}{}
	}
	for _, d := range r.Columns() {
		name := d.Name
		for i := 1; ; i++ {
			if _, ok := taken[name]; !ok {
				break
			}
			name = fmt.Sprintf("%s_%d", d.Name, i)
		}
		taken[name] = struct{}{}
		defs = append(defs, schema.ColumnDef{Name: name, Type: d.Type})
	}
	return schema.New(defs)
}

// hashJoin builds a hash multimap on the smaller input and probes with the
// larger one. Duplicate keys on the build side all stay in the map, so a
// probe row matching k build rows emits k combined rows. Hash buckets are
// candidates only; every probe verifies full key equality.
func hashJoin(left, right *Result, li, ri int, jt plan.JoinType) [][]types.Value {
	build, probe := left, right
	bi, pi := li, ri
	buildIsLeft := true
	if len(right.Rows) < len(left.Rows) {
		build, probe = right, left
		bi, pi = ri, li
		buildIsLeft = false
	}

	ht := make(map[uint64][]int, len(build.Rows))
	for i, row := range build.Rows {
		key := row[bi]
		if key.IsNull() {
			continue // nulls never join
		}
		h := key.HashKey()
		ht[h] = append(ht[h], i)
	}

	buildMatched := make([]bool, len(build.Rows))
	probeMatched := make([]bool, len(probe.Rows))

	var out [][]types.Value
	emit := func(buildRow, probeRow []types.Value) {
		if buildIsLeft {
			out = append(out, combine(buildRow, probeRow))
		} else {
			out = append(out, combine(probeRow, buildRow))
		}
	}

	for p, probeRow := range probe.Rows {
		key := probeRow[pi]
		if key.IsNull() {
			continue
		}
		for _, b := range ht[key.HashKey()] {
			if !build.Rows[b][bi].Equal(key) {
				continue
			}
			emit(build.Rows[b], probeRow)
			buildMatched[b] = true
			probeMatched[p] = true
		}
	}

	leftMatched, rightMatched := buildMatched, probeMatched
	if !buildIsLeft {
		leftMatched, rightMatched = probeMatched, buildMatched
	}
	out = padUnmatched(out, left, right, leftMatched, rightMatched, jt)
	return out
}

// nestedLoopJoin compares every pair of rows. Quadratic but allocation
// free on the inner loop; the optimizer only picks it when the hash build
// side would not fit in memory.
func nestedLoopJoin(left, right *Result, li, ri int, jt plan.JoinType) [][]types.Value {
	leftMatched := make([]bool, len(left.Rows))
	rightMatched := make([]bool, len(right.Rows))

	var out [][]types.Value
	for l, leftRow := range left.Rows {
		lk := leftRow[li]
		if lk.IsNull() {
			continue
		}
		for r, rightRow := range right.Rows {
			if !lk.Equal(rightRow[ri]) {
				continue
			}
			out = append(out, combine(leftRow, rightRow))
			leftMatched[l] = true
			rightMatched[r] = true
		}
	}
	return padUnmatched(out, left, right, leftMatched, rightMatched, jt)
}

// padUnmatched appends the outer-join rows: unmatched left rows padded with
// nulls on the right for LEFT and FULL, the mirror for RIGHT and FULL.
func padUnmatched(out [][]types.Value, left, right *Result, leftMatched, rightMatched []bool, jt plan.JoinType) [][]types.Value {
	if jt == plan.LeftJoin || jt == plan.FullJoin {
		pad := nullRow(right.Schema)
		for l, matched := range leftMatched {
			if !matched {
				out = append(out, combine(left.Rows[l], pad))
			}
		}
	}
	if jt == plan.RightJoin || jt == plan.FullJoin {
		pad := nullRow(left.Schema)
		for r, matched := range rightMatched {
			if !matched {
				out = append(out, combine(pad, right.Rows[r]))
			}
		}
	}
	return out
}

func combine(l, r []types.Value) []types.Value {
	row := make([]types.Value, 0, len(l)+len(r))
	row = append(row, l...)
	return append(row, r...)
}

func nullRow(s *schema.Schema) []types.Value {
	row := make([]types.Value, s.NumColumns())
	for i, col := range s.Columns() {
		row[i] = types.Null(col.Type)
	}
	return row
}
