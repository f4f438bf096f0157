// Package adapter provides warehouse adapter interfaces and implementations
// for the lakemill pipeline. An adapter is the storage engine collaborator:
// it loads delimited text into tables and executes the pipeline's SQL.
package adapter

import (
	"context"
	"database/sql"
)

// Config holds the configuration for connecting to a warehouse.
type Config struct {
	// Type specifies the warehouse type (e.g., "duckdb", "postgres")
	Type string

	// Path is the file path for file-based engines. Use ":memory:" for an
	// in-memory database.
	Path string

	// Host is the hostname for network-based engines
	Host string

	// Port is the port number for network-based engines
	Port int

	// Database is the database name
	Database string

	// Username for authentication
	Username string

	// Password for authentication
	Password string

	// Options contains additional driver-specific options
	Options map[string]string
}

// Column describes one column of a warehouse table.
type Column struct {
	Name     string
	Type     string
	Nullable bool
	Position int
}

// Metadata holds metadata about a warehouse table.
type Metadata struct {
	Schema   string
	Name     string
	Columns  []Column
	RowCount int64
}

// Rows wraps sql.Rows to provide a consistent interface across adapters.
type Rows struct {
	*sql.Rows
}

// Adapter is the interface every warehouse engine must implement.
type Adapter interface {
	// Connect establishes a connection using the provided config.
	Connect(ctx context.Context, cfg Config) error

	// Close closes the connection and releases resources.
	Close() error

	// Exec executes a SQL statement that doesn't return rows.
	Exec(ctx context.Context, sql string) error

	// Query executes a SQL statement that returns rows.
	Query(ctx context.Context, sql string) (*Rows, error)

	// CreateSchema creates a schema if it does not already exist.
	CreateSchema(ctx context.Context, name string) error

	// OverwriteTableAs atomically replaces table with the result of
	// selectSQL. A concurrent reader sees either the old table or the new
	// one, never a half-written state.
	OverwriteTableAs(ctx context.Context, table, selectSQL string) error

	// LoadCSV fully replaces table with the contents of the delimited file
	// at path. The header row supplies the column names and every column is
	// loaded as text, with no type inference. When skipRagged is true, rows
	// with a wrong field count are dropped instead of failing the load.
	LoadCSV(ctx context.Context, table, path string, skipRagged bool) error

	// TableMetadata retrieves metadata for a table ("schema.name" or bare).
	TableMetadata(ctx context.Context, table string) (*Metadata, error)

	// DialectName returns the SQL dialect name for this adapter.
	DialectName() string
}
