// Package star declares the star-schema descriptors built from the base
// layer: deduplicated dimensions and left-outer-join facts. Like the base
// transform plans, the descriptors are interpreted by generic SQL
// renderers; nothing here is bespoke per table.
package star

import (
	"fmt"
	"strings"

	"github.com/lakemill/lakemill/internal/dialect"
)

// Dimension describes one dimension table.
type Dimension struct {
	// Name is the star-layer table name (e.g. "dim_student").
	Name string
	// Source is the base-layer table the dimension projects from.
	Source string
	// Columns is the projected column list.
	Columns []string
	// Distinct collapses the projection to distinct tuples.
	Distinct bool
	// Key, when set, forces one row per key tuple: rows are ranked by
	// OrderBy descending and only the first survives. Used where source
	// attributes may drift across rows sharing a key.
	Key []string
	// OrderBy is the resolution order for Key (ranked descending).
	OrderBy []string
	// AssertUnique, when set, names a column whose values must be unique in
	// the source; a violation fails the build rather than fanning out.
	AssertUnique string
}

// Fact describes one fact table: an event-grain base table left-joined to
// its descriptive dimension source. Every left row is preserved; a join
// miss leaves the carried columns NULL.
type Fact struct {
	// Name is the star-layer table name (e.g. "fact_assessment_score").
	Name string
	// Left is the event-grain base table.
	Left string
	// Right is the base table supplying descriptive columns.
	Right string
	// Key is the join column, expected unique on the right.
	Key string
	// LeftColumns are carried from the event table.
	LeftColumns []string
	// RightColumns are carried from the dimension side (NULL on join miss).
	RightColumns []string
}

// SelectSQL renders the dimension projection reading from the fully
// qualified base table.
func (dim *Dimension) SelectSQL(d dialect.Dialect, from string) string {
	cols := quoteAll(d, dim.Columns)
	projection := strings.Join(cols, ", ")

	if len(dim.Key) > 0 {
		inner := append([]string{}, cols...)
		var order []string
		for _, c := range dim.OrderBy {
			order = append(order, d.QuoteIdent(c)+" DESC")
		}
		window := fmt.Sprintf("ROW_NUMBER() OVER (PARTITION BY %s ORDER BY %s) AS row_rank",
			strings.Join(quoteAll(d, dim.Key), ", "), strings.Join(order, ", "))
		return fmt.Sprintf("SELECT %s FROM (SELECT %s, %s FROM %s) ranked WHERE row_rank = 1",
			projection, strings.Join(inner, ", "), window, from)
	}

	if dim.Distinct {
		return fmt.Sprintf("SELECT DISTINCT %s FROM %s", projection, from)
	}
	return fmt.Sprintf("SELECT %s FROM %s", projection, from)
}

// DriftCountSQL renders a count of key tuples whose projected attributes
// vary across source rows. Only meaningful for keyed dimensions; returns ""
// otherwise. Drift is resolved deterministically by SelectSQL, but the
// count is surfaced so operators can see the ambiguity.
func (dim *Dimension) DriftCountSQL(d dialect.Dialect, from string) string {
	if len(dim.Key) == 0 {
		return ""
	}
	projection := strings.Join(quoteAll(d, dim.Columns), ", ")
	key := strings.Join(quoteAll(d, dim.Key), ", ")
	return fmt.Sprintf(
		"SELECT COUNT(*) FROM (SELECT %s FROM (SELECT DISTINCT %s FROM %s) tuples GROUP BY %s HAVING COUNT(*) > 1) drift",
		key, projection, from, key,
	)
}

// UniqueViolationsSQL renders a count of duplicated AssertUnique values in
// the source. Returns "" when no uniqueness assertion is declared.
func (dim *Dimension) UniqueViolationsSQL(d dialect.Dialect, from string) string {
	if dim.AssertUnique == "" {
		return ""
	}
	col := d.QuoteIdent(dim.AssertUnique)
	return fmt.Sprintf(
		"SELECT COUNT(*) FROM (SELECT %s FROM %s GROUP BY %s HAVING COUNT(*) > 1) dup",
		col, from, col,
	)
}

// SelectSQL renders the left-outer-join statement for the fact, reading
// from fully qualified left and right tables.
func (f *Fact) SelectSQL(d dialect.Dialect, leftFrom, rightFrom string) string {
	var exprs []string
	for _, c := range f.LeftColumns {
		exprs = append(exprs, "l."+d.QuoteIdent(c))
	}
	for _, c := range f.RightColumns {
		exprs = append(exprs, "r."+d.QuoteIdent(c))
	}
	key := d.QuoteIdent(f.Key)
	return fmt.Sprintf("SELECT %s FROM %s l LEFT JOIN %s r ON l.%s = r.%s",
		strings.Join(exprs, ", "), leftFrom, rightFrom, key, key)
}

// RightUniqueViolationsSQL renders a count of duplicated join keys on the
// right side. A non-zero result means the join would multiply event rows.
func (f *Fact) RightUniqueViolationsSQL(d dialect.Dialect, rightFrom string) string {
	key := d.QuoteIdent(f.Key)
	return fmt.Sprintf(
		"SELECT COUNT(*) FROM (SELECT %s FROM %s GROUP BY %s HAVING COUNT(*) > 1) dup",
		key, rightFrom, key,
	)
}

func quoteAll(d dialect.Dialect, cols []string) []string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = d.QuoteIdent(c)
	}
	return quoted
}
