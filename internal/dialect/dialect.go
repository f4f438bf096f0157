// Package dialect abstracts the SQL differences between warehouse engines.
// The pipeline only needs a small surface: identifier quoting, column type
// names, and guarded casts that turn unparseable text into NULL instead of
// an engine error.
package dialect

import (
	"sort"
	"strings"
	"sync"
)

// Type is a logical column type in a transform plan.
type Type string

const (
	// TypeText passes the raw value through, with empty strings folded to NULL.
	TypeText Type = "text"
	// TypeInteger coerces to a signed integer.
	TypeInteger Type = "integer"
	// TypeDouble coerces to a double-precision float.
	TypeDouble Type = "double"
)

// Valid reports whether t is a known plan type.
func (t Type) Valid() bool {
	switch t {
	case TypeText, TypeInteger, TypeDouble:
		return true
	}
	return false
}

// Dialect generates engine-specific SQL fragments.
type Dialect interface {
	// Name returns the dialect name (e.g. "duckdb", "postgres").
	Name() string

	// QuoteIdent quotes a single identifier.
	QuoteIdent(ident string) string

	// ColumnType returns the SQL type name for a plan type.
	ColumnType(t Type) string

	// SafeCast returns an expression that casts the text column expr to t,
	// yielding NULL for empty strings and unparseable values.
	SafeCast(expr string, t Type) string

	// CastFails returns a predicate that is true when expr holds a
	// non-empty value that does not parse as t. Never evaluates to NULL.
	CastFails(expr string, t Type) string
}

var (
	mu       sync.RWMutex
	registry = make(map[string]Dialect)
)

// Register makes a dialect available by name. Called from init().
func Register(d Dialect) {
	mu.Lock()
	defer mu.Unlock()
	registry[d.Name()] = d
}

// Get returns the dialect registered under name.
func Get(name string) (Dialect, bool) {
	mu.RLock()
	defer mu.RUnlock()
	d, ok := registry[strings.ToLower(name)]
	return d, ok
}

// Names returns the registered dialect names, sorted.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// quoteDouble quotes an identifier with double quotes, doubling any
// embedded quote. Shared by the built-in dialects.
func quoteDouble(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}
