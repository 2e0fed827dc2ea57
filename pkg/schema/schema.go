// pkg/schema/schema.go
package schema

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"

	"grizzly/pkg/types"
)

var (
	ErrColumnNotFound  = errors.New("column not found")
	ErrColumnExists    = errors.New("column already exists")
	ErrSchemaViolation = errors.New("schema violation")
)

// ColumnDef defines one column: a name and its scalar type.
type ColumnDef struct {
	Name string
	Type types.DataType
}

// Schema is an ordered list of column definitions. It is immutable after
// table creation; there is no ALTER TABLE in this engine.
type Schema struct {
	columns []ColumnDef
	byName  map[string]int
}

// New builds a schema from column definitions. Duplicate column names are
// rejected.
func New(columns []ColumnDef) (*Schema, error) {
	byName := make(map[string]int, len(columns))
	for i, col := range columns {
		if col.Name == "" {
			return nil, fmt.Errorf("%w: empty column name at position %d", ErrSchemaViolation, i)
		}
		if _, ok := byName[col.Name]; ok {
			return nil, fmt.Errorf("%w: %s", ErrColumnExists, col.Name)
		}
		byName[col.Name] = i
	}
	defs := make([]ColumnDef, len(columns))
	copy(defs, columns)
	return &Schema{columns: defs, byName: byName}, nil
}

// MustNew is New for statically known schemas, panicking on error.
func MustNew(columns []ColumnDef) *Schema {
	s, err := New(columns)
	if err != nil {
		panic(err)
	}
	return s
}

// Columns returns the ordered column definitions. Callers must not mutate
// the returned slice.
func (s *Schema) Columns() []ColumnDef { return s.columns }

// NumColumns returns the number of columns.
func (s *Schema) NumColumns() int { return len(s.columns) }

// Column returns the definition at position i.
func (s *Schema) Column(i int) ColumnDef { return s.columns[i] }

// ColumnIndex resolves a column name to its position.
func (s *Schema) ColumnIndex(name string) (int, error) {
	i, ok := s.byName[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrColumnNotFound, name)
	}
	return i, nil
}

// HasColumn reports whether the schema contains the named column.
func (s *Schema) HasColumn(name string) bool {
	_, ok := s.byName[name]
	return ok
}

// Validate checks a row against the schema: correct arity and a matching
// tag in every slot.
func (s *Schema) Validate(values []types.Value) error {
	if len(values) != len(s.columns) {
		return fmt.Errorf("%w: expected %d values, got %d",
			ErrSchemaViolation, len(s.columns), len(values))
	}
	for i, v := range values {
		if v.Type() != s.columns[i].Type {
			return fmt.Errorf("%w: column %s expects %s, got %s",
				types.ErrTypeMismatch, s.columns[i].Name, s.columns[i].Type, v.Type())
		}
		// Nulls exist only in query results, never in stored rows.
		if v.IsNull() {
			return fmt.Errorf("%w: column %s cannot store NULL",
				ErrSchemaViolation, s.columns[i].Name)
		}
	}
	return nil
}

// Fingerprint returns a stable 64-bit hash of the schema shape. Incremental
// snapshot application uses it to reject deltas taken under a different
// schema.
func (s *Schema) Fingerprint() uint64 {
	dig := xxhash.New()
	for _, col := range s.columns {
		dig.WriteString(col.Name)
		dig.WriteString(":")
		dig.WriteString(col.Type.String())
		dig.WriteString(";")
	}
	return dig.Sum64()
}

// String renders the schema as "name type, name type, ...".
func (s *Schema) String() string {
	var b strings.Builder
	for i, col := range s.columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(col.Name)
		b.WriteString(" ")
		b.WriteString(col.Type.String())
	}
	return b.String()
}
