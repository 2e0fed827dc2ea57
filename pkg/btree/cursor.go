// pkg/btree/cursor.go
package btree

import "grizzly/pkg/types"

// Cursor iterates leaf entries in ascending key order by following the
// leaf chain. Each RangeScan/Scan call returns a fresh cursor, so scans are
// restartable by construction.
type Cursor struct {
	leaf    *node
	pos     int          // entry index within leaf
	idx     int          // row-id index within entry
	high    *types.Value // inclusive upper bound, nil for unbounded
	current struct {
		key   types.Value
		rowID uint32
		ok    bool
	}
}

// RangeScan returns a cursor over all (key, rowID) pairs with
// low <= key <= high, ascending by key.
func (t *Tree) RangeScan(low, high types.Value) *Cursor {
	c := &Cursor{leaf: t.leafFor(low), high: &high}
	c.pos = t.findPosition(c.leaf, low)
	c.skipEmpty()
	return c
}

// Scan returns a cursor over the entire tree.
func (t *Tree) Scan() *Cursor {
	c := &Cursor{leaf: t.leftmostLeaf()}
	c.skipEmpty()
	return c
}

// skipEmpty advances past exhausted leaves so pos always references a live
// entry (or the cursor is done).
func (c *Cursor) skipEmpty() {
	for c.leaf != nil && c.pos >= len(c.leaf.entries) {
		c.leaf = c.leaf.next
		c.pos = 0
	}
}

// Next advances the cursor. It returns false when the scan is exhausted or
// the next key exceeds the upper bound.
func (c *Cursor) Next() bool {
	c.current.ok = false
	if c.leaf == nil {
		return false
	}
	e := c.leaf.entries[c.pos]
	if c.high != nil && compareKeys(e.key, *c.high) > 0 {
		c.leaf = nil
		return false
	}

	c.current.key = e.key
	c.current.rowID = e.rowIDs[c.idx]
	c.current.ok = true

	c.idx++
	if c.idx >= len(e.rowIDs) {
		c.idx = 0
		c.pos++
		c.skipEmpty()
	}
	return true
}

// Key returns the key at the cursor. Valid only after Next returned true.
func (c *Cursor) Key() types.Value { return c.current.key }

// RowID returns the row id at the cursor. Valid only after Next returned true.
func (c *Cursor) RowID() uint32 { return c.current.rowID }

// Collect drains the cursor into a row-id slice.
func (c *Cursor) Collect() []uint32 {
	var out []uint32
	for c.Next() {
		out = append(out, c.RowID())
	}
	return out
}
