// Package postgres implements storage.Store on PostgreSQL via pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fleetimport/internal/coerce"
	"fleetimport/internal/schema"
	"fleetimport/internal/storage"
)

func init() {
	storage.Register("postgres", New)
}

// Store implements storage.Store for Postgres. All SQL generation lives in
// pure builder functions so placeholder numbering, ident quoting, and the
// jsonb merge expression are unit-testable without a database.
type Store struct {
	pool *pgxpool.Pool
}

// New opens a pgx connection pool against cfg.DSN.
func New(ctx context.Context, cfg storage.Config) (storage.Store, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: open pool: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close closes the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// typeFor maps a coercion kind to its Postgres column type.
func typeFor(k coerce.Kind) string {
	switch k {
	case coerce.Integer:
		return "BIGINT"
	case coerce.Double:
		return "DOUBLE PRECISION"
	case coerce.Boolean:
		return "BOOLEAN"
	case coerce.Date:
		return "TIMESTAMPTZ"
	case coerce.JSON:
		return "JSONB"
	default:
		return "TEXT"
	}
}

func (s *Store) EnsureTable(ctx context.Context, def schema.TableDef) error {
	sql := buildCreateSQL(def)
	if _, err := s.pool.Exec(ctx, sql); err != nil {
		return fmt.Errorf("postgres: ensure table %s: %w", def.Name, err)
	}
	return nil
}

func (s *Store) Snapshot(ctx context.Context, table string) (schema.Snapshot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT column_name, data_type, is_nullable = 'YES'
		FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1`, table)
	if err != nil {
		return schema.Snapshot{}, fmt.Errorf("postgres: snapshot %s: %w", table, err)
	}
	defer rows.Close()

	var cols []schema.Column
	for rows.Next() {
		var c schema.Column
		if err := rows.Scan(&c.Name, &c.DataType, &c.Nullable); err != nil {
			return schema.Snapshot{}, fmt.Errorf("postgres: snapshot %s: %w", table, err)
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return schema.Snapshot{}, fmt.Errorf("postgres: snapshot %s: %w", table, err)
	}
	return schema.NewSnapshot(table, cols), nil
}

func (s *Store) AddColumns(ctx context.Context, table string, cols []schema.ColumnSpec) error {
	for _, c := range cols {
		sql := fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s %s;",
			pgIdent(table), pgIdent(c.Name), typeFor(c.Kind))
		if _, err := s.pool.Exec(ctx, sql); err != nil {
			return fmt.Errorf("postgres: add column %s.%s: %w", table, c.Name, err)
		}
	}
	return nil
}

func (s *Store) FindID(ctx context.Context, q storage.Lookup) (int64, bool, error) {
	sql, args := buildLookupSQL(q)

	var id int64
	err := s.pool.QueryRow(ctx, sql, args...).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("postgres: lookup %s: %w", q.Table, err)
	}
	return id, true, nil
}

func (s *Store) Insert(ctx context.Context, table string, values map[string]any) (int64, error) {
	sql, args, err := buildInsertSQL(table, values, nil, true)
	if err != nil {
		return 0, err
	}

	var id int64
	if err := s.pool.QueryRow(ctx, sql, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("postgres: insert into %s: %w", table, err)
	}
	return id, nil
}

func (s *Store) InsertIgnore(ctx context.Context, table string, values map[string]any, conflictCols []string) (bool, error) {
	sql, args, err := buildInsertSQL(table, values, conflictCols, false)
	if err != nil {
		return false, err
	}

	cmd, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		return false, fmt.Errorf("postgres: insert into %s: %w", table, err)
	}
	return cmd.RowsAffected() > 0, nil
}

func (s *Store) Update(ctx context.Context, table string, spec storage.UpdateSpec) error {
	if len(spec.Set) == 0 && len(spec.MergeJSON) == 0 {
		return nil
	}
	sql, args, err := buildUpdateSQL(table, spec)
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("postgres: update %s: %w", table, err)
	}
	return nil
}

// pgIdent returns a double-quoted Postgres identifier.
func pgIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// buildCreateSQL generates idempotent DDL for a table: surrogate key, base
// columns, and the natural-key unique constraint upserts rely on.
func buildCreateSQL(def schema.TableDef) string {
	parts := make([]string, 0, len(def.Columns)+2)
	parts = append(parts, pgIdent(def.PrimaryKey)+" BIGSERIAL PRIMARY KEY")
	for _, c := range def.Columns {
		parts = append(parts, pgIdent(c.Name)+" "+typeFor(c.Kind))
	}
	if len(def.Unique) > 0 {
		quoted := make([]string, len(def.Unique))
		for i, c := range def.Unique {
			quoted[i] = pgIdent(c)
		}
		parts = append(parts, "UNIQUE ("+strings.Join(quoted, ", ")+")")
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n);",
		pgIdent(def.Name), strings.Join(parts, ",\n  "))
}

// buildInsertSQL constructs a single-row INSERT with deterministic column
// order. JSON values bind as text with a ::jsonb cast. With conflictCols it
// appends ON CONFLICT ... DO NOTHING; with returning it appends RETURNING id.
func buildInsertSQL(table string, values map[string]any, conflictCols []string, returning bool) (string, []any, error) {
	cols := storage.SortedKeys(values)

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(pgIdent(table))
	b.WriteString(" (")
	for i, c := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgIdent(c))
	}
	b.WriteString(") VALUES (")

	args := make([]any, 0, len(cols))
	for i, c := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		p := fmt.Sprintf("$%d", i+1)
		if doc, ok := values[c].(storage.JSON); ok {
			enc, err := doc.Encode()
			if err != nil {
				return "", nil, err
			}
			b.WriteString(p + "::jsonb")
			args = append(args, enc)
			continue
		}
		b.WriteString(p)
		args = append(args, values[c])
	}
	b.WriteString(")")

	if len(conflictCols) > 0 {
		b.WriteString(" ON CONFLICT (")
		for i, c := range conflictCols {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(pgIdent(c))
		}
		b.WriteString(") DO NOTHING")
	}
	if returning {
		b.WriteString(" RETURNING id")
	}
	b.WriteString(";")
	return b.String(), args, nil
}

// buildUpdateSQL constructs an UPDATE. Merge columns use
// COALESCE(col, '{}'::jsonb) || $n::jsonb so repeated imports union their
// audit blobs instead of overwriting them.
func buildUpdateSQL(table string, spec storage.UpdateSpec) (string, []any, error) {
	var b strings.Builder
	b.WriteString("UPDATE ")
	b.WriteString(pgIdent(table))
	b.WriteString(" SET ")

	args := make([]any, 0, len(spec.Set)+len(spec.MergeJSON)+len(spec.Where))
	p := 0
	next := func() string {
		p++
		return fmt.Sprintf("$%d", p)
	}

	first := true
	for _, c := range storage.SortedKeys(spec.Set) {
		if !first {
			b.WriteString(", ")
		}
		first = false
		if doc, ok := spec.Set[c].(storage.JSON); ok {
			enc, err := doc.Encode()
			if err != nil {
				return "", nil, err
			}
			b.WriteString(pgIdent(c) + " = " + next() + "::jsonb")
			args = append(args, enc)
			continue
		}
		b.WriteString(pgIdent(c) + " = " + next())
		args = append(args, spec.Set[c])
	}
	for _, c := range storage.SortedKeys(spec.MergeJSON) {
		if !first {
			b.WriteString(", ")
		}
		first = false
		enc, err := spec.MergeJSON[c].Encode()
		if err != nil {
			return "", nil, err
		}
		ident := pgIdent(c)
		b.WriteString(ident + " = COALESCE(" + ident + ", '{}'::jsonb) || " + next() + "::jsonb")
		args = append(args, enc)
	}

	b.WriteString(" WHERE ")
	for i, c := range storage.SortedKeys(spec.Where) {
		if i > 0 {
			b.WriteString(" AND ")
		}
		b.WriteString(pgIdent(c) + " = " + next())
		args = append(args, spec.Where[c])
	}
	b.WriteString(";")
	return b.String(), args, nil
}

func buildLookupSQL(q storage.Lookup) (string, []any) {
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(pgIdent(q.Return))
	b.WriteString(" FROM ")
	b.WriteString(pgIdent(q.Table))
	b.WriteString(" WHERE ")

	args := make([]any, 0, len(q.Where))
	for i, c := range storage.SortedKeys(q.Where) {
		if i > 0 {
			b.WriteString(" AND ")
		}
		b.WriteString(fmt.Sprintf("%s = $%d", pgIdent(c), i+1))
		args = append(args, q.Where[c])
	}
	if q.OrderBy != "" {
		b.WriteString(" ORDER BY " + pgIdent(q.OrderBy))
	}
	b.WriteString(" LIMIT 1;")
	return b.String(), args
}
