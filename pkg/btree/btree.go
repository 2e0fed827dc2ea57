// pkg/btree/btree.go
//
// In-memory order-N B+Tree mapping column values to row ids. Internal nodes
// hold separator keys and children; leaves hold (key, row ids) entries and
// are chained left-to-right, which is what makes rangeScan O(log N + k).
// Duplicate keys are allowed: each leaf entry carries the row-id list for
// its key, so non-unique columns index cleanly without unbalancing the tree.
package btree

import (
	"sort"

	"grizzly/pkg/types"
)

const (
	// DefaultOrder is the branching factor used when callers pass 0.
	DefaultOrder = 32
	// MinOrder is the smallest branching factor that still splits sanely.
	MinOrder = 4
)

// Tree is a B+Tree index over a single column.
type Tree struct {
	order    int
	root     *node
	height   int
	keyCount int64 // distinct keys
	rowCount int64 // total row ids
}

// Stats reports the tree shape for the optimizer's cost model and tests.
type Stats struct {
	Height   int
	KeyCount int64
	RowCount int64
}

type entry struct {
	key    types.Value
	rowIDs []uint32
}

type node struct {
	leaf bool

	// Leaf nodes.
	entries []entry
	next    *node // non-owning traversal link, never used to free

	// Internal nodes. keys[i] is the smallest key reachable under
	// children[i+1].
	keys     []types.Value
	children []*node
}

// New creates an empty tree with the given order (max children per internal
// node; a leaf splits when it reaches order keys). Order 0 selects
// DefaultOrder.
func New(order int) *Tree {
	if order == 0 {
		order = DefaultOrder
	}
	if order < MinOrder {
		order = MinOrder
	}
	return &Tree{
		order:  order,
		root:   &node{leaf: true},
		height: 1,
	}
}

// Stats returns the current tree shape.
func (t *Tree) Stats() Stats {
	return Stats{Height: t.height, KeyCount: t.keyCount, RowCount: t.rowCount}
}

// Order returns the branching factor fixed at creation.
func (t *Tree) Order() int { return t.order }

// compareKeys orders index keys. Keys in one tree all come from one column
// and therefore share a tag; the tag fallback only exists so a malformed
// mixed insert stays deterministic instead of panicking.
func compareKeys(a, b types.Value) int {
	if c, err := a.Compare(b); err == nil {
		return c
	}
	return int(a.Type()) - int(b.Type())
}

// splitResult propagates a node split to the parent during insert.
type splitResult struct {
	promotedKey types.Value
	right       *node
}

// Insert adds (key, rowID). Inserting an existing key appends the row id to
// that key's list.
func (t *Tree) Insert(key types.Value, rowID uint32) {
	split := t.insertRecursive(t.root, key, rowID)
	if split != nil {
		t.root = &node{
			keys:     []types.Value{split.promotedKey},
			children: []*node{t.root, split.right},
		}
		t.height++
	}
}

func (t *Tree) insertRecursive(n *node, key types.Value, rowID uint32) *splitResult {
	if n.leaf {
		return t.insertIntoLeaf(n, key, rowID)
	}

	idx := t.findChild(n, key)
	split := t.insertRecursive(n.children[idx], key, rowID)
	if split == nil {
		return nil
	}

	// Child split: separator goes in at idx, new right sibling at idx+1.
	n.keys = append(n.keys, types.Value{})
	copy(n.keys[idx+1:], n.keys[idx:])
	n.keys[idx] = split.promotedKey

	n.children = append(n.children, nil)
	copy(n.children[idx+2:], n.children[idx+1:])
	n.children[idx+1] = split.right

	if len(n.children) <= t.order {
		return nil
	}
	return t.splitInternal(n)
}

func (t *Tree) insertIntoLeaf(n *node, key types.Value, rowID uint32) *splitResult {
	pos := t.findPosition(n, key)
	if pos < len(n.entries) && compareKeys(n.entries[pos].key, key) == 0 {
		n.entries[pos].rowIDs = append(n.entries[pos].rowIDs, rowID)
		t.rowCount++
		return nil
	}

	n.entries = append(n.entries, entry{})
	copy(n.entries[pos+1:], n.entries[pos:])
	n.entries[pos] = entry{key: key, rowIDs: []uint32{rowID}}
	t.keyCount++
	t.rowCount++

	if len(n.entries) < t.order {
		return nil
	}
	return t.splitLeaf(n)
}

// splitLeaf moves the upper half of a full leaf into a new right sibling
// and promotes the sibling's first key.
func (t *Tree) splitLeaf(n *node) *splitResult {
	mid := len(n.entries) / 2
	right := &node{leaf: true}
	right.entries = append(right.entries, n.entries[mid:]...)
	n.entries = n.entries[:mid:mid]

	right.next = n.next
	n.next = right

	return &splitResult{promotedKey: right.entries[0].key, right: right}
}

// splitInternal splits an overflowing internal node at the median key,
// which moves up to the parent rather than being duplicated.
func (t *Tree) splitInternal(n *node) *splitResult {
	midIdx := len(n.keys) / 2
	promoted := n.keys[midIdx]

	right := &node{}
	right.keys = append(right.keys, n.keys[midIdx+1:]...)
	right.children = append(right.children, n.children[midIdx+1:]...)

	n.keys = n.keys[:midIdx:midIdx]
	n.children = n.children[:midIdx+1 : midIdx+1]

	return &splitResult{promotedKey: promoted, right: right}
}

// findChild returns the child index to descend into for key.
func (t *Tree) findChild(n *node, key types.Value) int {
	return sort.Search(len(n.keys), func(i int) bool {
		return compareKeys(key, n.keys[i]) < 0
	})
}

// findPosition returns the position of the first entry with key >= the
// search key. Shared by the leaf insert and lookup paths.
func (t *Tree) findPosition(n *node, key types.Value) int {
	return sort.Search(len(n.entries), func(i int) bool {
		return compareKeys(n.entries[i].key, key) >= 0
	})
}

// Search returns the row ids stored under key.
func (t *Tree) Search(key types.Value) ([]uint32, bool) {
	n := t.root
	for !n.leaf {
		n = n.children[t.findChild(n, key)]
	}
	pos := t.findPosition(n, key)
	if pos < len(n.entries) && compareKeys(n.entries[pos].key, key) == 0 {
		out := make([]uint32, len(n.entries[pos].rowIDs))
		copy(out, n.entries[pos].rowIDs)
		return out, true
	}
	return nil, false
}

// Delete removes one (key, rowID) pairing. The entry disappears when its
// last row id is removed; structural rebalancing is deliberately lazy, the
// tree stays valid and searchable (same strategy SQLite uses).
func (t *Tree) Delete(key types.Value, rowID uint32) bool {
	n := t.root
	for !n.leaf {
		n = n.children[t.findChild(n, key)]
	}
	pos := t.findPosition(n, key)
	if pos >= len(n.entries) || compareKeys(n.entries[pos].key, key) != 0 {
		return false
	}
	ids := n.entries[pos].rowIDs
	for i, id := range ids {
		if id == rowID {
			n.entries[pos].rowIDs = append(ids[:i], ids[i+1:]...)
			t.rowCount--
			if len(n.entries[pos].rowIDs) == 0 {
				n.entries = append(n.entries[:pos], n.entries[pos+1:]...)
				t.keyCount--
			}
			return true
		}
	}
	return false
}

// leftmostLeaf descends to the first leaf of the tree.
func (t *Tree) leftmostLeaf() *node {
	n := t.root
	for !n.leaf {
		n = n.children[0]
	}
	return n
}

// leafFor descends to the leaf that would contain key.
func (t *Tree) leafFor(key types.Value) *node {
	n := t.root
	for !n.leaf {
		n = n.children[t.findChild(n, key)]
	}
	return n
}

// checkDepths verifies all leaves sit at the same depth. Test hook.
func (t *Tree) checkDepths() bool {
	depth := -1
	ok := true
	var walk func(n *node, d int)
	walk = func(n *node, d int) {
		if n.leaf {
			if depth == -1 {
				depth = d
			} else if depth != d {
				ok = false
			}
			return
		}
		for _, c := range n.children {
			walk(c, d+1)
		}
	}
	walk(t.root, 1)
	return ok && (depth == t.height || t.keyCount == 0)
}
