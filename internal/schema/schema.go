// Package schema holds the typed column model shared by the probe, the
// evolver, and the storage backends.
//
// Two ideas live here:
//
//   - ColumnSpec: the per-run registry entry for a column a source file will
//     populate. It binds the canonical column name to the coercion kind that
//     drives both DDL planning and per-cell value conversion, so column
//     handling stays typed instead of stringly plumbed through SQL builders.
//
//   - Snapshot: an explicit, immutable view of a live table's column set,
//     fetched from the store. Evolution is expressed as Missing(diff) against
//     a Snapshot and a fresh Snapshot afterwards, never as "fire the ALTER
//     and hope".
package schema

import (
	"sort"
	"strings"

	"fleetimport/internal/coerce"
)

// ColumnSpec describes one column a run will write: its canonical snake_case
// name and the coercion kind applied to every raw cell bound for it.
type ColumnSpec struct {
	Name string
	Kind coerce.Kind
}

// Coerce converts a raw cell value for this column. Nil means "nothing to
// write" and is never an error.
func (c ColumnSpec) Coerce(raw any) any {
	return coerce.Value(c.Name, c.Kind, raw)
}

// Column is one live column as reported by the store.
type Column struct {
	Name     string
	DataType string
	Nullable bool
}

// Snapshot is the column set of a live table at a point in time. It is a
// value: mutating the database does not mutate a Snapshot already in hand.
type Snapshot struct {
	Table string

	cols map[string]Column
}

// NewSnapshot builds a Snapshot from the columns a backend read off the
// catalog. Column names are matched case-insensitively because backends
// differ in how they report identifier case.
func NewSnapshot(table string, cols []Column) Snapshot {
	m := make(map[string]Column, len(cols))
	for _, c := range cols {
		m[strings.ToLower(c.Name)] = c
	}
	return Snapshot{Table: table, cols: m}
}

// Has reports whether the table had the named column when the snapshot was
// taken.
func (s Snapshot) Has(name string) bool {
	_, ok := s.cols[strings.ToLower(name)]
	return ok
}

// Len returns the number of columns in the snapshot.
func (s Snapshot) Len() int { return len(s.cols) }

// Columns returns the snapshot's columns sorted by name.
func (s Snapshot) Columns() []Column {
	out := make([]Column, 0, len(s.cols))
	for _, c := range s.cols {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Missing returns, in input order, the specs whose columns the snapshot does
// not have. Duplicate spec names yield a single entry.
func (s Snapshot) Missing(specs []ColumnSpec) []ColumnSpec {
	seen := make(map[string]struct{}, len(specs))
	out := make([]ColumnSpec, 0)
	for _, spec := range specs {
		key := strings.ToLower(spec.Name)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if !s.Has(spec.Name) {
			out = append(out, spec)
		}
	}
	return out
}

// TableDef declares the fixed part of a target table: the surrogate key, the
// base columns every import relies on, and the natural-key uniqueness that
// upserts pivot on. Backends create it idempotently.
type TableDef struct {
	Name       string
	PrimaryKey string // serial surrogate id column
	Columns    []ColumnSpec
	Unique     []string
}
