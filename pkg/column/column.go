// pkg/column/column.go
package column

import (
	"errors"
	"fmt"

	"grizzly/pkg/types"
)

var (
	ErrOutOfBounds = errors.New("row id out of bounds")
)

// Column is the backing store for one schema field across all rows of a
// table. Every value carries the column's tag; Append rejects anything else.
type Column struct {
	name   string
	typ    types.DataType
	values []types.Value

	stats columnStats
}

// columnStats caches min/max and the cardinality estimator. Mutations other
// than Append invalidate the cache; it is rebuilt by a full scan on the
// next read.
type columnStats struct {
	dirty     bool
	hasMinMax bool
	min       types.Value
	max       types.Value
	estimator *estimator
}

// New creates an empty column.
func New(name string, typ types.DataType) *Column {
	return &Column{
		name: name,
		typ:  typ,
		stats: columnStats{
			estimator: newEstimator(),
		},
	}
}

func (c *Column) Name() string        { return c.name }
func (c *Column) Type() types.DataType { return c.typ }
func (c *Column) Len() int            { return len(c.values) }

// Append adds a value to the end of the column.
func (c *Column) Append(v types.Value) error {
	if v.Type() != c.typ {
		return fmt.Errorf("%w: column %s expects %s, got %s",
			types.ErrTypeMismatch, c.name, c.typ, v.Type())
	}
	c.values = append(c.values, v)
	if !c.stats.dirty {
		c.observe(v)
	}
	return nil
}

// Get returns the value at rowID.
func (c *Column) Get(rowID int) (types.Value, error) {
	if rowID < 0 || rowID >= len(c.values) {
		return types.Value{}, fmt.Errorf("%w: row %d of %d in column %s",
			ErrOutOfBounds, rowID, len(c.values), c.name)
	}
	return c.values[rowID], nil
}

// Set replaces the value at rowID. Cached statistics are invalidated.
func (c *Column) Set(rowID int, v types.Value) error {
	if rowID < 0 || rowID >= len(c.values) {
		return fmt.Errorf("%w: row %d of %d in column %s",
			ErrOutOfBounds, rowID, len(c.values), c.name)
	}
	if v.Type() != c.typ {
		return fmt.Errorf("%w: column %s expects %s, got %s",
			types.ErrTypeMismatch, c.name, c.typ, v.Type())
	}
	c.values[rowID] = v
	c.stats.dirty = true
	return nil
}

// RemoveAt deletes the value at rowID, shifting later rows down by one.
func (c *Column) RemoveAt(rowID int) error {
	if rowID < 0 || rowID >= len(c.values) {
		return fmt.Errorf("%w: row %d of %d in column %s",
			ErrOutOfBounds, rowID, len(c.values), c.name)
	}
	c.values = append(c.values[:rowID], c.values[rowID+1:]...)
	c.stats.dirty = true
	return nil
}

// Values returns the column's backing slice. Callers must treat it as
// read-only; the lakehouse codecs read it directly to avoid a copy.
func (c *Column) Values() []types.Value { return c.values }

// Slice returns a copy of rows [from, to).
func (c *Column) Slice(from, to int) []types.Value {
	out := make([]types.Value, to-from)
	copy(out, c.values[from:to])
	return out
}

// MinMax returns the smallest and largest value currently stored. The
// second return is false for an empty column.
func (c *Column) MinMax() (min, max types.Value, ok bool) {
	c.refresh()
	return c.stats.min, c.stats.max, c.stats.hasMinMax
}

// observe folds one appended value into the cached statistics.
func (c *Column) observe(v types.Value) {
	if !c.stats.hasMinMax {
		c.stats.min = v
		c.stats.max = v
		c.stats.hasMinMax = true
	} else {
		if cmp, err := v.Compare(c.stats.min); err == nil && cmp < 0 {
			c.stats.min = v
		}
		if cmp, err := v.Compare(c.stats.max); err == nil && cmp > 0 {
			c.stats.max = v
		}
	}
	c.stats.estimator.add(v.HashKey())
}

// refresh rebuilds cached statistics after an invalidating mutation.
func (c *Column) refresh() {
	if !c.stats.dirty {
		return
	}
	c.stats.hasMinMax = false
	c.stats.estimator = newEstimator()
	c.stats.dirty = false
	for _, v := range c.values {
		c.observe(v)
	}
}
