package dialect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypeValid(t *testing.T) {
	assert.True(t, TypeText.Valid())
	assert.True(t, TypeInteger.Valid())
	assert.True(t, TypeDouble.Valid())
	assert.False(t, Type("varchar").Valid())
	assert.False(t, Type("").Valid())
}

func TestRegistry(t *testing.T) {
	d, ok := Get("duckdb")
	require.True(t, ok)
	assert.Equal(t, "duckdb", d.Name())

	d, ok = Get("postgres")
	require.True(t, ok)
	assert.Equal(t, "postgres", d.Name())

	// Lookup is case-insensitive
	_, ok = Get("DuckDB")
	assert.True(t, ok)

	_, ok = Get("snowflake")
	assert.False(t, ok)

	assert.Contains(t, Names(), "duckdb")
	assert.Contains(t, Names(), "postgres")
}

func TestQuoteIdent(t *testing.T) {
	var d DuckDB
	assert.Equal(t, `"id_student"`, d.QuoteIdent("id_student"))
	assert.Equal(t, `"od""d"`, d.QuoteIdent(`od"d`))
}

func TestDuckDBSafeCast(t *testing.T) {
	var d DuckDB

	assert.Equal(t, `NULLIF(TRIM("region"), '')`, d.SafeCast(`"region"`, TypeText))
	assert.Equal(t,
		`TRY_CAST(NULLIF(TRIM("id_student"), '') AS INTEGER)`,
		d.SafeCast(`"id_student"`, TypeInteger))
	assert.Equal(t,
		`TRY_CAST(NULLIF(TRIM("score"), '') AS DOUBLE)`,
		d.SafeCast(`"score"`, TypeDouble))
}

func TestDuckDBCastFails(t *testing.T) {
	var d DuckDB

	// Text never fails a cast.
	assert.Equal(t, "FALSE", d.CastFails(`"region"`, TypeText))

	pred := d.CastFails(`"score"`, TypeDouble)
	assert.Contains(t, pred, "IS NOT NULL")
	assert.Contains(t, pred, "TRY_CAST")
	assert.Contains(t, pred, "IS NULL")
}

func TestPostgresSafeCast(t *testing.T) {
	var d Postgres

	assert.Equal(t, `NULLIF(TRIM("region"), '')`, d.SafeCast(`"region"`, TypeText))

	cast := d.SafeCast(`"id_student"`, TypeInteger)
	assert.Contains(t, cast, "CASE WHEN")
	assert.Contains(t, cast, pgIntegerPattern)
	assert.Contains(t, cast, "CAST(NULLIF(TRIM(\"id_student\"), '') AS INTEGER)")
	// Out-of-range digit strings must become NULL, not an engine error, so
	// the cast is gated on a BIGINT range probe.
	assert.Contains(t, cast, "CAST(NULLIF(TRIM(\"id_student\"), '') AS BIGINT) BETWEEN -2147483648 AND 2147483647")

	cast = d.SafeCast(`"score"`, TypeDouble)
	assert.Contains(t, cast, pgDoublePattern)
	assert.Contains(t, cast, "DOUBLE PRECISION")
}

func TestPostgresCastFails(t *testing.T) {
	var d Postgres

	assert.Equal(t, "FALSE", d.CastFails(`"region"`, TypeText))

	pred := d.CastFails(`"weight"`, TypeInteger)
	assert.Contains(t, pred, "IS NULL THEN FALSE")
	assert.Contains(t, pred, "!~")
	assert.Contains(t, pred, pgIntegerPattern)
	// A value like 99999999999 matches the digit pattern but overflows
	// INTEGER; it counts as a cast failure instead of erroring the build.
	assert.Contains(t, pred, "NOT BETWEEN -2147483648 AND 2147483647")

	pred = d.CastFails(`"score"`, TypeDouble)
	assert.Contains(t, pred, "IS NOT NULL")
	assert.Contains(t, pred, pgDoublePattern)
}

func TestPostgresIntegerPatternBounded(t *testing.T) {
	// The pattern itself caps the digit count so the BIGINT probe can
	// never overflow.
	assert.NotRegexp(t, pgIntegerPattern, "1234567890123456789")
	assert.Regexp(t, pgIntegerPattern, "-2147483648")
	assert.Regexp(t, pgIntegerPattern, "99999999999")
}

func TestColumnTypes(t *testing.T) {
	var duck DuckDB
	assert.Equal(t, "INTEGER", duck.ColumnType(TypeInteger))
	assert.Equal(t, "DOUBLE", duck.ColumnType(TypeDouble))
	assert.Equal(t, "VARCHAR", duck.ColumnType(TypeText))

	var pg Postgres
	assert.Equal(t, "INTEGER", pg.ColumnType(TypeInteger))
	assert.Equal(t, "DOUBLE PRECISION", pg.ColumnType(TypeDouble))
	assert.Equal(t, "TEXT", pg.ColumnType(TypeText))
}
