// pkg/table/aggregate.go
package table

import (
	"errors"
	"fmt"

	"grizzly/pkg/types"
)

var (
	ErrNotNumeric = errors.New("aggregate requires a numeric column")
	ErrEmptyInput = errors.New("aggregate over zero rows")
)

// AggregateOp identifies an aggregate function.
type AggregateOp int

const (
	AggSum AggregateOp = iota
	AggAvg
	AggMin
	AggMax
	AggCount
)

func (op AggregateOp) String() string {
	switch op {
	case AggSum:
		return "SUM"
	case AggAvg:
		return "AVG"
	case AggMin:
		return "MIN"
	case AggMax:
		return "MAX"
	case AggCount:
		return "COUNT"
	default:
		return "?"
	}
}

// AggregateResult carries the computed value plus the exact rows that
// contributed to it, so callers can re-verify the number against its
// sources. ContributingRows is nil for unfiltered aggregates (every row
// contributed).
type AggregateResult struct {
	Value            types.Value
	RowCount         int64
	ContributingRows []uint32
}

// Predicate decides whether a row contributes to a filtered aggregate.
type Predicate func(rowID int, row []types.Value) bool

// Aggregate computes op over every row of columnName.
func (t *Table) Aggregate(columnName string, op AggregateOp) (AggregateResult, error) {
	return t.aggregate(columnName, op, nil)
}

// AggregateFiltered computes op over the rows accepted by pred, recording
// each contributing row id.
func (t *Table) AggregateFiltered(columnName string, op AggregateOp, pred Predicate) (AggregateResult, error) {
	if pred == nil {
		return t.Aggregate(columnName, op)
	}
	return t.aggregate(columnName, op, pred)
}

func (t *Table) aggregate(columnName string, op AggregateOp, pred Predicate) (AggregateResult, error) {
	ci, err := t.schema.ColumnIndex(columnName)
	if err != nil {
		return AggregateResult{}, fmt.Errorf("table %s: %w", t.name, err)
	}
	col := t.columns[ci]

	if (op == AggSum || op == AggAvg) && !col.Type().IsNumeric() {
		return AggregateResult{}, fmt.Errorf("table %s: %w: %s is %s",
			t.name, ErrNotNumeric, columnName, col.Type())
	}

	acc := newAccumulator(op, col.Type())
	var contributing []uint32
	if pred != nil {
		row := make([]types.Value, len(t.columns))
		for r := 0; r < t.rowCount; r++ {
			for i, c := range t.columns {
				row[i], _ = c.Get(r)
			}
			if !pred(r, row) {
				continue
			}
			acc.add(row[ci])
			contributing = append(contributing, uint32(r))
		}
	} else {
		for _, v := range col.Values() {
			acc.add(v)
		}
	}

	value, n, err := acc.result()
	if err != nil {
		return AggregateResult{}, fmt.Errorf("table %s: %s(%s): %w", t.name, op, columnName, err)
	}
	return AggregateResult{Value: value, RowCount: n, ContributingRows: contributing}, nil
}

// accumulator folds values for one aggregate op.
type accumulator struct {
	op      AggregateOp
	typ     types.DataType
	n       int64
	sumI    int64
	sumF    float64
	best    types.Value // min or max so far
	hasBest bool
}

func newAccumulator(op AggregateOp, typ types.DataType) *accumulator {
	return &accumulator{op: op, typ: typ}
}

func (a *accumulator) add(v types.Value) {
	a.n++
	switch a.op {
	case AggSum, AggAvg:
		if i, ok := v.AsInt(); ok && (a.typ == types.Int32 || a.typ == types.Int64) {
			a.sumI += i
		} else if f, ok := v.AsFloat(); ok {
			a.sumF += f
		}
	case AggMin:
		if !a.hasBest {
			a.best, a.hasBest = v, true
		} else if cmp, err := v.Compare(a.best); err == nil && cmp < 0 {
			a.best = v
		}
	case AggMax:
		if !a.hasBest {
			a.best, a.hasBest = v, true
		} else if cmp, err := v.Compare(a.best); err == nil && cmp > 0 {
			a.best = v
		}
	}
}

func (a *accumulator) result() (types.Value, int64, error) {
	switch a.op {
	case AggCount:
		return types.NewInt64(a.n), a.n, nil
	case AggSum:
		if a.typ == types.Int32 || a.typ == types.Int64 {
			return types.NewInt64(a.sumI), a.n, nil
		}
		return types.NewFloat64(a.sumF), a.n, nil
	case AggAvg:
		if a.n == 0 {
			return types.Value{}, 0, ErrEmptyInput
		}
		total := a.sumF
		if a.typ == types.Int32 || a.typ == types.Int64 {
			total = float64(a.sumI)
		}
		return types.NewFloat64(total / float64(a.n)), a.n, nil
	case AggMin, AggMax:
		if !a.hasBest {
			return types.Value{}, 0, ErrEmptyInput
		}
		return a.best, a.n, nil
	default:
		return types.Value{}, 0, fmt.Errorf("unknown aggregate op %d", a.op)
	}
}
