// pkg/optimizer/index_selection.go
package optimizer

import (
	"grizzly/pkg/plan"
	"grizzly/pkg/table"
	"grizzly/pkg/types"
)

// indexablePredicate is one conjunct of the form `column = literal` or
// `column BETWEEN low AND high`.
type indexablePredicate struct {
	column string
	eq     *types.Value
	low    *types.Value
	high   *types.Value
}

// selectIndexes rewrites Filter(Scan) pairs into IndexScan nodes when an
// index exists on a predicate column and the predicate is selective enough.
// With a conjunctive predicate only the indexed conjunct moves into the
// scan; the rest stays behind as a residual filter.
func (o *Optimizer) selectIndexes(n plan.Node) plan.Node {
	switch node := n.(type) {
	case *plan.Filter:
		node.Child = o.selectIndexes(node.Child)

		scan, ok := node.Child.(*plan.Scan)
		if !ok {
			return node
		}
		tbl, err := o.db.GetTable(scan.Table)
		if err != nil {
			return node
		}

		conjuncts := splitConjuncts(node.Predicate)
		for i, c := range conjuncts {
			pred := extractIndexable(c)
			if pred == nil {
				continue
			}
			idx, ok := tbl.IndexOn(pred.column)
			if !ok {
				continue
			}
			sel := o.predicateSelectivity(tbl, pred)
			if sel >= IndexScanMaxSelectivity {
				continue
			}

			matches := int64(float64(tbl.RowCount()) * sel)
			if matches < 1 {
				matches = 1
			}
			indexScan := &plan.IndexScan{
				Table:     scan.Table,
				Index:     idx.Name,
				Column:    pred.column,
				Eq:        pred.eq,
				Low:       pred.low,
				High:      pred.high,
				Rows:      matches,
				TableRows: int64(tbl.RowCount()),
			}

			rest := joinConjuncts(append(conjuncts[:i:i], conjuncts[i+1:]...))
			if rest == nil {
				return indexScan
			}
			return &plan.Filter{
				Child:       indexScan,
				Predicate:   rest,
				Selectivity: node.Selectivity,
			}
		}
		return node

	case *plan.Projection:
		node.Child = o.selectIndexes(node.Child)
		return node
	case *plan.Limit:
		node.Child = o.selectIndexes(node.Child)
		return node
	case *plan.Aggregate:
		node.Child = o.selectIndexes(node.Child)
		return node
	case *plan.Join:
		node.Left = o.selectIndexes(node.Left)
		node.Right = o.selectIndexes(node.Right)
		return node
	default:
		return n
	}
}

// estimateSelectivity estimates the pass fraction of an arbitrary filter
// predicate using the statistics of the tables under child.
func (o *Optimizer) estimateSelectivity(pred plan.Expr, child plan.Node) float64 {
	tbl := o.baseTable(child)
	if tbl == nil {
		return plan.DefaultFilterSelectivity
	}
	sel := 1.0
	matched := false
	for _, c := range splitConjuncts(pred) {
		p := extractIndexable(c)
		if p == nil {
			continue
		}
		sel *= o.predicateSelectivity(tbl, p)
		matched = true
	}
	if !matched {
		return plan.DefaultFilterSelectivity
	}
	return sel
}

// predicateSelectivity estimates one conjunct against column statistics:
// 1/distinct for equality, range width over the column's span for BETWEEN.
func (o *Optimizer) predicateSelectivity(tbl *table.Table, pred *indexablePredicate) float64 {
	col, err := tbl.ColumnByName(pred.column)
	if err != nil {
		return plan.DefaultFilterSelectivity
	}

	if pred.eq != nil {
		est := col.EstimateCardinality()
		if est.Distinct <= 0 {
			return plan.DefaultFilterSelectivity
		}
		return 1.0 / float64(est.Distinct)
	}

	min, max, ok := col.MinMax()
	if !ok {
		return plan.DefaultFilterSelectivity
	}
	minF, okMin := min.AsFloat()
	maxF, okMax := max.AsFloat()
	lowF, okLow := pred.low.AsFloat()
	highF, okHigh := pred.high.AsFloat()
	if !okMin || !okMax || !okLow || !okHigh || maxF <= minF {
		return plan.DefaultFilterSelectivity
	}
	sel := (highF - lowF) / (maxF - minF)
	if sel < 0 {
		return 0
	}
	if sel > 1 {
		return 1
	}
	return sel
}

// baseTable returns the single table feeding child, nil for joins or
// unknown sources.
func (o *Optimizer) baseTable(n plan.Node) *table.Table {
	switch node := n.(type) {
	case *plan.Scan:
		t, err := o.db.GetTable(node.Table)
		if err != nil {
			return nil
		}
		return t
	case *plan.IndexScan:
		t, err := o.db.GetTable(node.Table)
		if err != nil {
			return nil
		}
		return t
	case *plan.Filter:
		return o.baseTable(node.Child)
	case *plan.Projection:
		return o.baseTable(node.Child)
	case *plan.Limit:
		return o.baseTable(node.Child)
	default:
		return nil
	}
}

// splitConjuncts flattens a tree of ANDs into its conjuncts.
func splitConjuncts(e plan.Expr) []plan.Expr {
	if b, ok := e.(*plan.Binary); ok && b.Op == plan.OpAnd {
		return append(splitConjuncts(b.Left), splitConjuncts(b.Right)...)
	}
	return []plan.Expr{e}
}

// joinConjuncts rebuilds an AND tree; nil for an empty list.
func joinConjuncts(conjuncts []plan.Expr) plan.Expr {
	if len(conjuncts) == 0 {
		return nil
	}
	out := conjuncts[0]
	for _, c := range conjuncts[1:] {
		out = &plan.Binary{Op: plan.OpAnd, Left: out, Right: c}
	}
	return out
}

// extractIndexable matches `column = literal` (either orientation) and
// `column BETWEEN low AND high`.
func extractIndexable(e plan.Expr) *indexablePredicate {
	b, ok := e.(*plan.Binary)
	if !ok {
		return nil
	}
	switch b.Op {
	case plan.OpEq:
		if col, ok := b.Left.(*plan.ColumnRef); ok {
			if lit, ok := b.Right.(*plan.Literal); ok {
				v := lit.Value
				return &indexablePredicate{column: col.Name, eq: &v}
			}
		}
		if col, ok := b.Right.(*plan.ColumnRef); ok {
			if lit, ok := b.Left.(*plan.Literal); ok {
				v := lit.Value
				return &indexablePredicate{column: col.Name, eq: &v}
			}
		}
	case plan.OpBetween:
		if col, ok := b.Left.(*plan.ColumnRef); ok {
			if r, ok := b.Right.(*plan.Range); ok {
				low, high := r.Low, r.High
				return &indexablePredicate{column: col.Name, low: &low, high: &high}
			}
		}
	}
	return nil
}
