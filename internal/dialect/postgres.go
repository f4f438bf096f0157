package dialect

import "fmt"

func init() {
	Register(Postgres{})
}

// Postgres implements Dialect for PostgreSQL. Postgres has no TRY_CAST, so
// typed casts are guarded by a regex match on the trimmed value.
type Postgres struct{}

const (
	// At most 18 digits always fits BIGINT, so the range probe below can
	// never itself overflow.
	pgIntegerPattern = `^[+-]?[0-9]{1,18}$`
	pgDoublePattern  = `^[+-]?([0-9]+\.?[0-9]*|\.[0-9]+)([eE][+-]?[0-9]+)?$`

	pgIntMin = "-2147483648"
	pgIntMax = "2147483647"
)

// Name returns "postgres".
func (Postgres) Name() string { return "postgres" }

// QuoteIdent quotes an identifier for Postgres.
func (Postgres) QuoteIdent(ident string) string { return quoteDouble(ident) }

// ColumnType returns the Postgres type name for a plan type.
func (Postgres) ColumnType(t Type) string {
	switch t {
	case TypeInteger:
		return "INTEGER"
	case TypeDouble:
		return "DOUBLE PRECISION"
	default:
		return "TEXT"
	}
}

func pgPattern(t Type) string {
	if t == TypeInteger {
		return pgIntegerPattern
	}
	return pgDoublePattern
}

// SafeCast folds empty strings to NULL and casts only values that match the
// type's pattern, so malformed input becomes NULL rather than an error.
// Integers additionally pass through a BIGINT range probe; CASE arms
// evaluate in order, so the probe only sees values the pattern admits and
// the final cast only sees values inside INTEGER range.
func (d Postgres) SafeCast(expr string, t Type) string {
	cleaned := fmt.Sprintf("NULLIF(TRIM(%s), '')", expr)
	switch t {
	case TypeText:
		return cleaned
	case TypeInteger:
		return fmt.Sprintf(
			"(CASE WHEN %s ~ '%s' THEN (CASE WHEN CAST(%s AS BIGINT) BETWEEN %s AND %s THEN CAST(%s AS INTEGER) END) END)",
			cleaned, pgIntegerPattern, cleaned, pgIntMin, pgIntMax, cleaned)
	default:
		return fmt.Sprintf("(CASE WHEN %s ~ '%s' THEN CAST(%s AS %s) END)",
			cleaned, pgPattern(t), cleaned, d.ColumnType(t))
	}
}

// CastFails is true when the value is present but does not match the
// type's pattern, or (for integers) does not fit INTEGER range.
func (d Postgres) CastFails(expr string, t Type) string {
	if t == TypeText {
		return "FALSE"
	}
	cleaned := fmt.Sprintf("NULLIF(TRIM(%s), '')", expr)
	if t == TypeInteger {
		return fmt.Sprintf(
			"(CASE WHEN %s IS NULL THEN FALSE WHEN %s !~ '%s' THEN TRUE ELSE CAST(%s AS BIGINT) NOT BETWEEN %s AND %s END)",
			cleaned, cleaned, pgIntegerPattern, cleaned, pgIntMin, pgIntMax)
	}
	return fmt.Sprintf("(%s IS NOT NULL AND %s !~ '%s')", cleaned, cleaned, pgPattern(t))
}
