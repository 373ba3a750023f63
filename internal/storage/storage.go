// Package storage defines the backend-agnostic store interface the import
// pipeline runs against, plus the factory registry backends register into.
//
// The interface is intentionally minimal: schema introspection, additive
// DDL, and row primitives (insert, conditional insert, lookup, update).
// Upsert policy lives in the pipeline; each backend only implements these
// primitives in its own idiomatic way (Postgres ON CONFLICT, SQLite OR
// IGNORE, MSSQL conditional DML).
package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"fleetimport/internal/schema"
)

// Config selects and connects a backend.
//
// Kind must match a registered backend kind ("postgres", "sqlite", "mssql").
// DSN is passed through to the backend factory; validation is
// backend-specific.
type Config struct {
	Kind string
	DSN  string
}

// Lookup describes a single-row id lookup: return the Return column of the
// first row of Table matching every Where condition. OrderBy, when set, pins
// which row "first" means.
type Lookup struct {
	Table   string
	Return  string
	Where   map[string]any
	OrderBy string
}

// UpdateSpec describes a partial row update. Set columns are overwritten.
// MergeJSON columns are shallow-unioned into the existing document rather
// than replaced, so earlier import runs keep their contributions.
type UpdateSpec struct {
	Set       map[string]any
	MergeJSON map[string]JSON
	Where     map[string]any
}

// Store is the backend contract the pipeline drives.
type Store interface {
	// Close releases backend resources. Call once at shutdown.
	Close()

	// EnsureTable creates the table with its surrogate key, base columns,
	// and natural-key unique constraint if it does not exist.
	EnsureTable(ctx context.Context, def schema.TableDef) error

	// Snapshot reads the table's current column set from the catalog.
	Snapshot(ctx context.Context, table string) (schema.Snapshot, error)

	// AddColumns adds the given columns. Columns that already exist are
	// left untouched.
	AddColumns(ctx context.Context, table string, cols []schema.ColumnSpec) error

	// FindID runs a Lookup. ok is false when no row matches.
	FindID(ctx context.Context, q Lookup) (id int64, ok bool, err error)

	// Insert writes one row and returns its surrogate id.
	Insert(ctx context.Context, table string, values map[string]any) (int64, error)

	// InsertIgnore writes one row unless a row with the same values in
	// conflictCols already exists. Reports whether a row was written.
	InsertIgnore(ctx context.Context, table string, values map[string]any, conflictCols []string) (bool, error)

	// Update applies an UpdateSpec. A zero-row match is not an error.
	Update(ctx context.Context, table string, spec UpdateSpec) error
}

type factory func(ctx context.Context, cfg Config) (Store, error)

var (
	mu        sync.RWMutex
	factories = map[string]factory{}
)

// Register registers a backend under a kind. Call from an init() in the
// backend package.
//
// Panics on empty kind, nil factory, or duplicate registration; ambiguous
// backend selection should fail at startup, not at open time.
func Register(kind string, f factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}

	factories[kind] = f
}

// Open constructs a Store using the registered factory for cfg.Kind.
func Open(ctx context.Context, cfg Config) (Store, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported storage kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}

// NormalizeKey converts a natural-key value to a canonical string form,
// suitable for in-memory dedupe and lookup caches ("Maersk Line" or
// "TRIU1234567"). Backends must not assume a particular underlying type for
// keys; this helper keeps caches consistent across backends.
func NormalizeKey(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case []byte:
		return strings.TrimSpace(string(t))
	case int64:
		return fmt.Sprintf("%d", t)
	case int:
		return fmt.Sprintf("%d", t)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// SortedKeys returns m's keys in sorted order so generated SQL is
// deterministic and testable.
func SortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
