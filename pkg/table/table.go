// pkg/table/table.go
package table

import (
	"errors"
	"fmt"

	"grizzly/pkg/btree"
	"grizzly/pkg/column"
	"grizzly/pkg/schema"
	"grizzly/pkg/types"
)

var (
	ErrIndexExists   = errors.New("index already exists")
	ErrIndexNotFound = errors.New("index not found")
)

// Index is a named B+Tree over one column of a table.
type Index struct {
	Name   string
	Column string
	Tree   *btree.Tree
}

// Table is a named set of columns sharing one schema. All columns always
// hold exactly rowCount values; that invariant is re-checked after every
// mutation and a violation panics, since it can only be a programming error.
type Table struct {
	name       string
	schema     *schema.Schema
	columns    []*column.Column
	rowCount   int
	indexes    map[string]*Index
	btreeOrder int
}

// Option configures a table at creation.
type Option func(*Table)

// WithBTreeOrder sets the branching factor for indexes created on the table.
func WithBTreeOrder(order int) Option {
	return func(t *Table) { t.btreeOrder = order }
}

// New creates an empty table for the given schema.
func New(name string, s *schema.Schema, opts ...Option) *Table {
	t := &Table{
		name:    name,
		schema:  s,
		indexes: make(map[string]*Index),
	}
	for _, col := range s.Columns() {
		t.columns = append(t.columns, column.New(col.Name, col.Type))
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Table) Name() string           { return t.name }
func (t *Table) Schema() *schema.Schema { return t.schema }
func (t *Table) RowCount() int          { return t.rowCount }

// Column returns the column at schema position i.
func (t *Table) Column(i int) *column.Column { return t.columns[i] }

// ColumnByName resolves a column by name.
func (t *Table) ColumnByName(name string) (*column.Column, error) {
	i, err := t.schema.ColumnIndex(name)
	if err != nil {
		return nil, fmt.Errorf("table %s: %w", t.name, err)
	}
	return t.columns[i], nil
}

// InsertRow validates and appends one row, keeping all indexes live. The
// append is atomic: validation happens before any column is touched.
func (t *Table) InsertRow(values []types.Value) error {
	if err := t.schema.Validate(values); err != nil {
		return fmt.Errorf("table %s: %w", t.name, err)
	}
	for i, v := range values {
		// Cannot fail: Validate already matched every tag.
		if err := t.columns[i].Append(v); err != nil {
			panic(fmt.Sprintf("table %s: append after validate: %v", t.name, err))
		}
	}
	rowID := uint32(t.rowCount)
	t.rowCount++

	for _, idx := range t.indexes {
		ci, _ := t.schema.ColumnIndex(idx.Column)
		idx.Tree.Insert(values[ci], rowID)
	}

	t.assertColumnLengths()
	return nil
}

// UpdateRow replaces the row at rowID. Indexed columns are re-keyed in
// place; row ids do not move.
func (t *Table) UpdateRow(rowID int, values []types.Value) error {
	if rowID < 0 || rowID >= t.rowCount {
		return fmt.Errorf("table %s: %w: row %d of %d",
			t.name, column.ErrOutOfBounds, rowID, t.rowCount)
	}
	if err := t.schema.Validate(values); err != nil {
		return fmt.Errorf("table %s: %w", t.name, err)
	}

	old := make([]types.Value, len(t.columns))
	for i, col := range t.columns {
		v, err := col.Get(rowID)
		if err != nil {
			return err
		}
		old[i] = v
	}
	for i, v := range values {
		if err := t.columns[i].Set(rowID, v); err != nil {
			return err
		}
	}
	for _, idx := range t.indexes {
		ci, _ := t.schema.ColumnIndex(idx.Column)
		if !old[ci].Equal(values[ci]) {
			idx.Tree.Delete(old[ci], uint32(rowID))
			idx.Tree.Insert(values[ci], uint32(rowID))
		}
	}

	t.assertColumnLengths()
	return nil
}

// DeleteRow removes the row at rowID. Rows above it shift down by one, so
// every index is rebuilt from its column.
// TODO: patch row ids in place instead of rebuilding once deletes show up
// on a hot path.
func (t *Table) DeleteRow(rowID int) error {
	if rowID < 0 || rowID >= t.rowCount {
		return fmt.Errorf("table %s: %w: row %d of %d",
			t.name, column.ErrOutOfBounds, rowID, t.rowCount)
	}
	for _, col := range t.columns {
		if err := col.RemoveAt(rowID); err != nil {
			return err
		}
	}
	t.rowCount--
	for _, idx := range t.indexes {
		t.rebuildIndex(idx)
	}

	t.assertColumnLengths()
	return nil
}

// GetRow returns a copy of the row at rowID.
func (t *Table) GetRow(rowID int) ([]types.Value, error) {
	if rowID < 0 || rowID >= t.rowCount {
		return nil, fmt.Errorf("table %s: %w: row %d of %d",
			t.name, column.ErrOutOfBounds, rowID, t.rowCount)
	}
	row := make([]types.Value, len(t.columns))
	for i, col := range t.columns {
		v, err := col.Get(rowID)
		if err != nil {
			return nil, err
		}
		row[i] = v
	}
	return row, nil
}

// Rows calls fn for every row in row-id order, stopping early if fn
// returns false. The row slice is reused between calls.
func (t *Table) Rows(fn func(rowID int, row []types.Value) bool) {
	row := make([]types.Value, len(t.columns))
	for r := 0; r < t.rowCount; r++ {
		for i, col := range t.columns {
			row[i], _ = col.Get(r)
		}
		if !fn(r, row) {
			return
		}
	}
}

// CreateIndex builds a B+Tree index over columnName from the column's
// current contents, then keeps it live across future mutations.
func (t *Table) CreateIndex(indexName, columnName string) error {
	if _, ok := t.indexes[indexName]; ok {
		return fmt.Errorf("table %s: %w: %s", t.name, ErrIndexExists, indexName)
	}
	ci, err := t.schema.ColumnIndex(columnName)
	if err != nil {
		return fmt.Errorf("table %s: %w", t.name, err)
	}
	idx := &Index{Name: indexName, Column: columnName, Tree: btree.New(t.btreeOrder)}
	for rowID, v := range t.columns[ci].Values() {
		idx.Tree.Insert(v, uint32(rowID))
	}
	t.indexes[indexName] = idx
	return nil
}

// DropIndex removes an index.
func (t *Table) DropIndex(indexName string) error {
	if _, ok := t.indexes[indexName]; !ok {
		return fmt.Errorf("table %s: %w: %s", t.name, ErrIndexNotFound, indexName)
	}
	delete(t.indexes, indexName)
	return nil
}

// Index returns the named index.
func (t *Table) Index(indexName string) (*Index, error) {
	idx, ok := t.indexes[indexName]
	if !ok {
		return nil, fmt.Errorf("table %s: %w: %s", t.name, ErrIndexNotFound, indexName)
	}
	return idx, nil
}

// IndexOn returns an index keyed by columnName, if one exists. The planner
// uses this to rewrite scan+filter pairs into index scans.
func (t *Table) IndexOn(columnName string) (*Index, bool) {
	for _, idx := range t.indexes {
		if idx.Column == columnName {
			return idx, true
		}
	}
	return nil, false
}

// IndexNames lists the table's indexes.
func (t *Table) IndexNames() []string {
	names := make([]string, 0, len(t.indexes))
	for name := range t.indexes {
		names = append(names, name)
	}
	return names
}

func (t *Table) rebuildIndex(idx *Index) {
	ci, _ := t.schema.ColumnIndex(idx.Column)
	idx.Tree = btree.New(t.btreeOrder)
	for rowID, v := range t.columns[ci].Values() {
		idx.Tree.Insert(v, uint32(rowID))
	}
}

// assertColumnLengths enforces the table invariant: every column holds
// exactly rowCount values.
func (t *Table) assertColumnLengths() {
	for _, col := range t.columns {
		if col.Len() != t.rowCount {
			panic(fmt.Sprintf("table %s: column %s has %d values, table has %d rows",
				t.name, col.Name(), col.Len(), t.rowCount))
		}
	}
}
