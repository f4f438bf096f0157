package dialect

import "fmt"

func init() {
	Register(DuckDB{})
}

// DuckDB implements Dialect for DuckDB. TRY_CAST does the heavy lifting:
// it returns NULL instead of raising on values that do not parse.
type DuckDB struct{}

// Name returns "duckdb".
func (DuckDB) Name() string { return "duckdb" }

// QuoteIdent quotes an identifier for DuckDB.
func (DuckDB) QuoteIdent(ident string) string { return quoteDouble(ident) }

// ColumnType returns the DuckDB type name for a plan type.
func (DuckDB) ColumnType(t Type) string {
	switch t {
	case TypeInteger:
		return "INTEGER"
	case TypeDouble:
		return "DOUBLE"
	default:
		return "VARCHAR"
	}
}

// SafeCast folds empty strings to NULL and uses TRY_CAST for typed columns.
func (d DuckDB) SafeCast(expr string, t Type) string {
	cleaned := fmt.Sprintf("NULLIF(TRIM(%s), '')", expr)
	if t == TypeText {
		return cleaned
	}
	return fmt.Sprintf("TRY_CAST(%s AS %s)", cleaned, d.ColumnType(t))
}

// CastFails is true when the value is present but TRY_CAST yields NULL.
func (d DuckDB) CastFails(expr string, t Type) string {
	if t == TypeText {
		return "FALSE"
	}
	cleaned := fmt.Sprintf("NULLIF(TRIM(%s), '')", expr)
	return fmt.Sprintf("(%s IS NOT NULL AND TRY_CAST(%s AS %s) IS NULL)", cleaned, cleaned, d.ColumnType(t))
}
