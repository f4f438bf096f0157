// Package plan declares the per-table transform descriptors that move raw
// text tables into the typed base layer. A descriptor is an ordered list of
// {source column, target column, type}; one generic routine renders it into
// projection, reject, and validation SQL for whichever dialect the
// warehouse speaks.
package plan

import (
	"fmt"
	"strings"

	"github.com/lakemill/lakemill/internal/dialect"
)

// Column maps one source column onto a canonical target column.
type Column struct {
	// Source is the column name in the raw table.
	Source string
	// Target is the canonical column name in the base table.
	Target string
	// Type is the logical type the value is coerced to.
	Type dialect.Type
}

// Table is the transform descriptor for one base-layer table.
type Table struct {
	// Name is the base-layer table name (e.g. "student").
	Name string
	// Source is the raw-layer table the transform reads from.
	Source string
	// Columns is the ordered projection. Anything not listed is dropped.
	Columns []Column
}

// RejectTable returns the name of the side table that receives rows whose
// values fail a declared cast.
func (t *Table) RejectTable() string {
	return t.Name + "_rejects"
}

// CastColumns returns the columns with a non-text target type.
func (t *Table) CastColumns() []Column {
	var cast []Column
	for _, c := range t.Columns {
		if c.Type != dialect.TypeText {
			cast = append(cast, c)
		}
	}
	return cast
}

// HasCasts reports whether any column declares a typed cast.
func (t *Table) HasCasts() bool {
	return len(t.CastColumns()) > 0
}

// badRowPredicate is the OR of every column's cast-failure predicate. It is
// never NULL, so negating it is safe in a WHERE clause.
func (t *Table) badRowPredicate(d dialect.Dialect) string {
	var preds []string
	for _, c := range t.CastColumns() {
		preds = append(preds, d.CastFails(d.QuoteIdent(c.Source), c.Type))
	}
	return strings.Join(preds, " OR ")
}

// SelectSQL renders the projection+cast statement reading from the fully
// qualified raw table. With excludeBad set, rows failing any declared cast
// are filtered out (they are routed to the reject table instead); without
// it, failing values are coerced to NULL and the row is kept.
func (t *Table) SelectSQL(d dialect.Dialect, from string, excludeBad bool) string {
	exprs := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		exprs[i] = fmt.Sprintf("%s AS %s", d.SafeCast(d.QuoteIdent(c.Source), c.Type), d.QuoteIdent(c.Target))
	}

	sql := fmt.Sprintf("SELECT %s FROM %s", strings.Join(exprs, ", "), from)
	if excludeBad && t.HasCasts() {
		sql += fmt.Sprintf(" WHERE NOT (%s)", t.badRowPredicate(d))
	}
	return sql
}

// RejectSQL renders the statement that collects rejected rows, one output
// row per failing column, carrying the full source row plus the offending
// column name and value. Returns "" when the plan declares no casts.
func (t *Table) RejectSQL(d dialect.Dialect, from string) string {
	cast := t.CastColumns()
	if len(cast) == 0 {
		return ""
	}

	sourceCols := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		sourceCols[i] = d.QuoteIdent(c.Source)
	}
	projection := strings.Join(sourceCols, ", ")

	selects := make([]string, len(cast))
	for i, c := range cast {
		selects[i] = fmt.Sprintf(
			"SELECT %s, '%s' AS reject_column, %s AS reject_value FROM %s WHERE %s",
			projection, c.Source, d.QuoteIdent(c.Source), from,
			d.CastFails(d.QuoteIdent(c.Source), c.Type),
		)
	}
	return strings.Join(selects, " UNION ALL ")
}

// BadRowCountSQL renders a count of rows that fail at least one declared
// cast. Returns "" when the plan declares no casts.
func (t *Table) BadRowCountSQL(d dialect.Dialect, from string) string {
	if !t.HasCasts() {
		return ""
	}
	return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", from, t.badRowPredicate(d))
}

// Validate checks the descriptor for internal consistency.
func (t *Table) Validate() error {
	if t.Name == "" || t.Source == "" {
		return fmt.Errorf("plan must name both its table and its source")
	}
	if len(t.Columns) == 0 {
		return fmt.Errorf("plan %s has no columns", t.Name)
	}
	seen := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		if c.Source == "" || c.Target == "" {
			return fmt.Errorf("plan %s has a column without source or target", t.Name)
		}
		if !c.Type.Valid() {
			return fmt.Errorf("plan %s column %s has unknown type %q", t.Name, c.Target, c.Type)
		}
		if seen[c.Target] {
			return fmt.Errorf("plan %s declares target column %s twice", t.Name, c.Target)
		}
		seen[c.Target] = true
	}
	return nil
}
