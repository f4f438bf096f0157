package adapter

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx database/sql driver
)

func init() {
	Register("postgres", func() Adapter { return NewPostgresAdapter() })
}

// insertBatchSize bounds the number of rows per INSERT during CSV loads.
const insertBatchSize = 500

// PostgresAdapter implements the Adapter interface for PostgreSQL via the
// pgx database/sql driver.
type PostgresAdapter struct {
	db     *sql.DB
	config Config
}

// NewPostgresAdapter creates a new Postgres adapter instance.
func NewPostgresAdapter() *PostgresAdapter {
	return &PostgresAdapter{}
}

// Connect establishes a connection to PostgreSQL.
func (a *PostgresAdapter) Connect(ctx context.Context, cfg Config) error {
	db, err := sql.Open("pgx", buildPostgresDSN(cfg))
	if err != nil {
		return fmt.Errorf("failed to open postgres connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping postgres: %w", err)
	}

	a.db = db
	a.config = cfg

	return nil
}

// buildPostgresDSN builds a postgres:// connection URL from the config.
func buildPostgresDSN(cfg Config) string {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 5432
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", host, port),
		Path:   "/" + cfg.Database,
	}
	if cfg.Username != "" {
		u.User = url.UserPassword(cfg.Username, cfg.Password)
	}

	q := u.Query()
	for k, v := range cfg.Options {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()

	return u.String()
}

// Close closes the Postgres connection.
func (a *PostgresAdapter) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

// Exec executes a SQL statement that doesn't return rows.
func (a *PostgresAdapter) Exec(ctx context.Context, sqlStr string) error {
	if a.db == nil {
		return fmt.Errorf("database connection not established")
	}

	if _, err := a.db.ExecContext(ctx, sqlStr); err != nil {
		return fmt.Errorf("failed to execute SQL: %w", err)
	}

	return nil
}

// Query executes a SQL statement that returns rows.
func (a *PostgresAdapter) Query(ctx context.Context, sqlStr string) (*Rows, error) {
	if a.db == nil {
		return nil, fmt.Errorf("database connection not established")
	}

	//nolint:rowserrcheck // rows.Err() must be checked by caller after iteration completes
	rows, err := a.db.QueryContext(ctx, sqlStr)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}

	return &Rows{Rows: rows}, nil
}

// CreateSchema creates a schema if it does not already exist.
func (a *PostgresAdapter) CreateSchema(ctx context.Context, name string) error {
	return a.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", name))
}

// OverwriteTableAs replaces table with the result of selectSQL. Postgres has
// no CREATE OR REPLACE TABLE, so the new table is built under a scratch name
// and swapped in inside one transaction.
func (a *PostgresAdapter) OverwriteTableAs(ctx context.Context, table, selectSQL string) error {
	if a.db == nil {
		return fmt.Errorf("database connection not established")
	}

	schema, name := splitTable(table)
	scratch := name + "__incoming"

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmts := []string{
		fmt.Sprintf("DROP TABLE IF EXISTS %s", qualify(schema, scratch)),
		fmt.Sprintf("CREATE TABLE %s AS %s", qualify(schema, scratch), selectSQL),
		fmt.Sprintf("DROP TABLE IF EXISTS %s", qualify(schema, name)),
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s", qualify(schema, scratch), name),
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to overwrite table %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit overwrite of %s: %w", table, err)
	}
	return nil
}

// LoadCSV fully replaces table with the contents of the file at path.
// Every column is created as TEXT; the swap happens in one transaction.
func (a *PostgresAdapter) LoadCSV(ctx context.Context, table, path string, skipRagged bool) error {
	if a.db == nil {
		return fmt.Errorf("database connection not established")
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return fmt.Errorf("failed to read header row: %w", err)
	}

	schema, name := splitTable(table)
	scratch := name + "__incoming"

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	colDefs := make([]string, len(header))
	for i, col := range header {
		colDefs[i] = quoteDoubleIdent(col) + " TEXT"
	}

	setup := []string{
		fmt.Sprintf("DROP TABLE IF EXISTS %s", qualify(schema, scratch)),
		fmt.Sprintf("CREATE TABLE %s (%s)", qualify(schema, scratch), strings.Join(colDefs, ", ")),
	}
	for _, stmt := range setup {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create load table: %w", err)
		}
	}

	insert := func(batch [][]string) error {
		if len(batch) == 0 {
			return nil
		}
		var sb strings.Builder
		args := make([]any, 0, len(batch)*len(header))
		fmt.Fprintf(&sb, "INSERT INTO %s VALUES ", qualify(schema, scratch))
		for i, record := range batch {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString("(")
			for j, field := range record {
				if j > 0 {
					sb.WriteString(", ")
				}
				fmt.Fprintf(&sb, "$%d", len(args)+1)
				args = append(args, field)
			}
			sb.WriteString(")")
		}
		if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
			return fmt.Errorf("failed to insert rows: %w", err)
		}
		return nil
	}

	var batch [][]string
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read source row: %w", err)
		}
		if len(record) != len(header) {
			if skipRagged {
				continue
			}
			return fmt.Errorf("row has %d fields, header has %d", len(record), len(header))
		}
		batch = append(batch, record)
		if len(batch) >= insertBatchSize {
			if err := insert(batch); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := insert(batch); err != nil {
		return err
	}

	swap := []string{
		fmt.Sprintf("DROP TABLE IF EXISTS %s", qualify(schema, name)),
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s", qualify(schema, scratch), name),
	}
	for _, stmt := range swap {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to swap in table %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit load of %s: %w", table, err)
	}
	return nil
}

// TableMetadata retrieves metadata for a table ("schema.name" or bare).
func (a *PostgresAdapter) TableMetadata(ctx context.Context, table string) (*Metadata, error) {
	if a.db == nil {
		return nil, fmt.Errorf("database connection not established")
	}

	schema, tableName := splitTable(table)
	if schema == "" {
		schema = "public"
	}

	query := `
		SELECT
			column_name,
			data_type,
			is_nullable,
			ordinal_position
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position
	`

	rows, err := a.db.QueryContext(ctx, query, schema, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to query column metadata: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var columns []Column
	for rows.Next() {
		var col Column
		var nullable string
		if err := rows.Scan(&col.Name, &col.Type, &nullable, &col.Position); err != nil {
			return nil, fmt.Errorf("failed to scan column metadata: %w", err)
		}
		col.Nullable = nullable == "YES"
		columns = append(columns, col)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating column metadata: %w", err)
	}

	if len(columns) == 0 {
		return nil, fmt.Errorf("table %s not found", table)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s", qualify(schema, tableName)) //nolint:gosec // table names come from the fixed catalog
	var rowCount int64
	if err := a.db.QueryRowContext(ctx, countQuery).Scan(&rowCount); err != nil {
		rowCount = 0
	}

	return &Metadata{
		Schema:   schema,
		Name:     tableName,
		Columns:  columns,
		RowCount: rowCount,
	}, nil
}

// DialectName returns "postgres".
func (a *PostgresAdapter) DialectName() string {
	return "postgres"
}

// splitTable splits "schema.name" into its parts; schema is empty for a
// bare table name.
func splitTable(table string) (schema, name string) {
	if parts := strings.SplitN(table, ".", 2); len(parts) == 2 {
		return parts[0], parts[1]
	}
	return "", table
}

// qualify joins a schema and table name, omitting the schema when empty.
func qualify(schema, name string) string {
	if schema == "" {
		return name
	}
	return schema + "." + name
}

// quoteDoubleIdent quotes an identifier with double quotes.
func quoteDoubleIdent(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// Ensure PostgresAdapter implements Adapter interface
var _ Adapter = (*PostgresAdapter)(nil)
