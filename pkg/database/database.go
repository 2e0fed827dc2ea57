// pkg/database/database.go
package database

import (
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"grizzly/pkg/schema"
	"grizzly/pkg/table"
)

var (
	ErrTableExists   = errors.New("table already exists")
	ErrTableNotFound = errors.New("table not found")
)

// Database is a named collection of tables. It is the ownership root: the
// tables, their columns and their indexes all live and die with it. It is
// a single-writer structure; concurrent mutation needs external locking.
type Database struct {
	name       string
	tables     map[string]*table.Table
	logger     *zap.Logger
	btreeOrder int
}

// Option configures a database at creation.
type Option func(*Database)

// WithLogger attaches a structured logger. DDL and persistence log at Info;
// row mutation never logs.
func WithLogger(logger *zap.Logger) Option {
	return func(db *Database) { db.logger = logger }
}

// WithBTreeOrder sets the branching factor for indexes on tables created
// through this database.
func WithBTreeOrder(order int) Option {
	return func(db *Database) { db.btreeOrder = order }
}

// New creates an empty database.
func New(name string, opts ...Option) *Database {
	db := &Database{
		name:   name,
		tables: make(map[string]*table.Table),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(db)
	}
	return db
}

func (db *Database) Name() string { return db.name }

// CreateTable creates an empty table under the given schema.
func (db *Database) CreateTable(name string, s *schema.Schema) (*table.Table, error) {
	if _, ok := db.tables[name]; ok {
		return nil, fmt.Errorf("database %s: %w: %s", db.name, ErrTableExists, name)
	}
	t := table.New(name, s, table.WithBTreeOrder(db.btreeOrder))
	db.tables[name] = t
	db.logger.Info("table created",
		zap.String("database", db.name),
		zap.String("table", name),
		zap.Int("columns", s.NumColumns()))
	return t, nil
}

// AddTable registers an already-built table, e.g. one reconstructed by the
// lakehouse loader.
func (db *Database) AddTable(t *table.Table) error {
	if _, ok := db.tables[t.Name()]; ok {
		return fmt.Errorf("database %s: %w: %s", db.name, ErrTableExists, t.Name())
	}
	db.tables[t.Name()] = t
	return nil
}

// GetTable returns the named table.
func (db *Database) GetTable(name string) (*table.Table, error) {
	t, ok := db.tables[name]
	if !ok {
		return nil, fmt.Errorf("database %s: %w: %s", db.name, ErrTableNotFound, name)
	}
	return t, nil
}

// DropTable removes a table and everything it owns.
func (db *Database) DropTable(name string) error {
	if _, ok := db.tables[name]; !ok {
		return fmt.Errorf("database %s: %w: %s", db.name, ErrTableNotFound, name)
	}
	delete(db.tables, name)
	db.logger.Info("table dropped",
		zap.String("database", db.name),
		zap.String("table", name))
	return nil
}

// TableNames lists the tables in sorted order.
func (db *Database) TableNames() []string {
	names := make([]string, 0, len(db.tables))
	for name := range db.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Stats summarizes the database for monitoring and the CLI.
type Stats struct {
	Tables    int
	TotalRows int64
	Indexes   int
}

// Stats reports table, row and index counts.
func (db *Database) Stats() Stats {
	var s Stats
	s.Tables = len(db.tables)
	for _, t := range db.tables {
		s.TotalRows += int64(t.RowCount())
		s.Indexes += len(t.IndexNames())
	}
	return s
}
