// pkg/plan/node.go
package plan

import (
	"fmt"
	"math"
	"strings"

	"grizzly/pkg/types"
)

// Cost constants for the additive cost model. Tuple costs follow the usual
// convention that CPU work is two orders of magnitude cheaper than a row
// fetch.
const (
	CPUTupleCost = 0.01
	// DefaultFilterSelectivity is assumed when no statistics narrowed a
	// predicate down.
	DefaultFilterSelectivity = 0.33
)

// Node is one operator in a logical query plan.
type Node interface {
	// EstimatedRows is the number of rows this operator is expected to emit.
	EstimatedRows() int64
	// EstimatedCost is the cumulative cost of this operator and everything
	// below it.
	EstimatedCost() float64
	// Label renders the operator for explain output.
	Label() string
	// Children returns the operator's inputs, left to right.
	Children() []Node
}

// Scan reads every row of a table.
type Scan struct {
	Table string
	Rows  int64 // table row count, filled by the planner
}

func (n *Scan) EstimatedRows() int64    { return n.Rows }
func (n *Scan) EstimatedCost() float64  { return float64(n.Rows) }
func (n *Scan) Label() string           { return fmt.Sprintf("Scan %s (rows=%d)", n.Table, n.Rows) }
func (n *Scan) Children() []Node        { return nil }

// IndexScan probes a B+Tree index instead of scanning the table. Either Eq
// is set (point lookup) or Low/High are (range scan).
type IndexScan struct {
	Table     string
	Index     string
	Column    string
	Eq        *types.Value
	Low       *types.Value
	High      *types.Value
	Rows      int64 // estimated matches
	TableRows int64
}

func (n *IndexScan) EstimatedRows() int64 { return n.Rows }

func (n *IndexScan) EstimatedCost() float64 {
	if n.TableRows <= 1 {
		return float64(n.Rows) + 1
	}
	return math.Log2(float64(n.TableRows)) + float64(n.Rows)
}

func (n *IndexScan) Label() string {
	if n.Eq != nil {
		return fmt.Sprintf("IndexScan %s.%s [%s = %s] (rows=%d)",
			n.Table, n.Index, n.Column, n.Eq, n.Rows)
	}
	return fmt.Sprintf("IndexScan %s.%s [%s BETWEEN %s AND %s] (rows=%d)",
		n.Table, n.Index, n.Column, n.Low, n.High, n.Rows)
}
func (n *IndexScan) Children() []Node { return nil }

// Filter drops rows that fail a predicate.
type Filter struct {
	Child       Node
	Predicate   Expr
	Selectivity float64 // fraction of input rows that pass, 0 means unknown
}

func (n *Filter) selectivity() float64 {
	if n.Selectivity <= 0 || n.Selectivity > 1 {
		return DefaultFilterSelectivity
	}
	return n.Selectivity
}

func (n *Filter) EstimatedRows() int64 {
	return int64(float64(n.Child.EstimatedRows()) * n.selectivity())
}

func (n *Filter) EstimatedCost() float64 {
	return n.Child.EstimatedCost() + float64(n.Child.EstimatedRows())*CPUTupleCost
}

func (n *Filter) Label() string {
	return fmt.Sprintf("Filter [%s] (rows=%d)", n.Predicate, n.EstimatedRows())
}
func (n *Filter) Children() []Node { return []Node{n.Child} }

// Projection keeps only the named columns.
type Projection struct {
	Child   Node
	Columns []string
}

func (n *Projection) EstimatedRows() int64 { return n.Child.EstimatedRows() }
func (n *Projection) EstimatedCost() float64 {
	return n.Child.EstimatedCost() + float64(n.Child.EstimatedRows())*CPUTupleCost
}
func (n *Projection) Label() string {
	return fmt.Sprintf("Projection [%s]", strings.Join(n.Columns, ", "))
}
func (n *Projection) Children() []Node { return []Node{n.Child} }

// JoinType enumerates the supported join semantics.
type JoinType int

const (
	InnerJoin JoinType = iota
	LeftJoin
	RightJoin
	FullJoin
)

func (jt JoinType) String() string {
	switch jt {
	case InnerJoin:
		return "inner"
	case LeftJoin:
		return "left"
	case RightJoin:
		return "right"
	case FullJoin:
		return "full"
	default:
		return "?"
	}
}

// JoinStrategy is how a join will be executed.
type JoinStrategy int

const (
	// NestedLoop compares every pair of rows. Always correct, quadratic.
	NestedLoop JoinStrategy = iota
	// HashStrategy builds an in-memory hash table on the smaller side.
	HashStrategy
)

func (js JoinStrategy) String() string {
	if js == HashStrategy {
		return "hash"
	}
	return "nested_loop"
}

// Join combines two inputs on an equality key.
type Join struct {
	Left     Node
	Right    Node
	Type     JoinType
	Strategy JoinStrategy
	LeftCol  string
	RightCol string
}

func (n *Join) EstimatedRows() int64 {
	// Equality joins rarely multiply cardinality; without per-column
	// statistics, assume the larger side bounds the output.
	l, r := n.Left.EstimatedRows(), n.Right.EstimatedRows()
	if l > r {
		return l
	}
	return r
}

func (n *Join) EstimatedCost() float64 {
	l := float64(n.Left.EstimatedRows())
	r := float64(n.Right.EstimatedRows())
	base := n.Left.EstimatedCost() + n.Right.EstimatedCost()
	if n.Strategy == HashStrategy {
		return base + l + r
	}
	return base + l*r
}

func (n *Join) Label() string {
	return fmt.Sprintf("Join %s/%s [%s = %s] (rows=%d)",
		n.Type, n.Strategy, n.LeftCol, n.RightCol, n.EstimatedRows())
}
func (n *Join) Children() []Node { return []Node{n.Left, n.Right} }

// Limit emits at most N rows.
type Limit struct {
	Child Node
	N     int64
}

func (n *Limit) EstimatedRows() int64 {
	if rows := n.Child.EstimatedRows(); rows < n.N {
		return rows
	}
	return n.N
}
func (n *Limit) EstimatedCost() float64 { return n.Child.EstimatedCost() }
func (n *Limit) Label() string          { return fmt.Sprintf("Limit %d", n.N) }
func (n *Limit) Children() []Node       { return []Node{n.Child} }

// AggSpec is one aggregate output column.
type AggSpec struct {
	Func   string // SUM, AVG, COUNT, MIN, MAX
	Column string
	As     string
}

// Aggregate groups rows and computes aggregate functions per group.
type Aggregate struct {
	Child   Node
	GroupBy []string
	Aggs    []AggSpec
}

func (n *Aggregate) EstimatedRows() int64 {
	if len(n.GroupBy) == 0 {
		return 1
	}
	// Without group statistics, assume grouping reduces rows tenfold.
	rows := n.Child.EstimatedRows() / 10
	if rows < 1 {
		rows = 1
	}
	return rows
}

func (n *Aggregate) EstimatedCost() float64 {
	return n.Child.EstimatedCost() + float64(n.Child.EstimatedRows())*CPUTupleCost
}

func (n *Aggregate) Label() string {
	parts := make([]string, len(n.Aggs))
	for i, a := range n.Aggs {
		parts[i] = fmt.Sprintf("%s(%s)", a.Func, a.Column)
	}
	if len(n.GroupBy) > 0 {
		return fmt.Sprintf("Aggregate [%s] group by %s",
			strings.Join(parts, ", "), strings.Join(n.GroupBy, ", "))
	}
	return fmt.Sprintf("Aggregate [%s]", strings.Join(parts, ", "))
}
func (n *Aggregate) Children() []Node { return []Node{n.Child} }

// QueryPlan wraps the root of a logical plan. The optimizer rewrites it in
// place.
type QueryPlan struct {
	Root Node
}
