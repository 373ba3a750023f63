// Package sqlite implements storage.Store on SQLite via the modernc driver.
// Useful for local runs and tests; no server required.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"fleetimport/internal/coerce"
	"fleetimport/internal/schema"
	"fleetimport/internal/storage"
)

func init() {
	storage.Register("sqlite", New)
}

// Store implements storage.Store for SQLite.
//
// SQLite has no native timestamp or json types, so times are stored as
// RFC3339Nano TEXT and json documents as TEXT merged application-side.
type Store struct {
	db *sql.DB
}

// New opens the SQLite database at cfg.DSN (a file path or ":memory:").
func New(ctx context.Context, cfg storage.Config) (storage.Store, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", cfg.DSN, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping %s: %w", cfg.DSN, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() {
	s.db.Close()
}

func typeFor(k coerce.Kind) string {
	switch k {
	case coerce.Integer, coerce.Boolean:
		return "INTEGER"
	case coerce.Double:
		return "REAL"
	default:
		// Text, Date (RFC3339Nano), JSON (serialized document).
		return "TEXT"
	}
}

// bindValue converts pipeline values to driver-friendly forms.
func bindValue(v any) (any, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano), nil
	case storage.JSON:
		return t.Encode()
	default:
		return v, nil
	}
}

func bindAll(values map[string]any, cols []string) ([]any, error) {
	args := make([]any, 0, len(cols))
	for _, c := range cols {
		v, err := bindValue(values[c])
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}
	return args, nil
}

func (s *Store) EnsureTable(ctx context.Context, def schema.TableDef) error {
	parts := make([]string, 0, len(def.Columns)+2)
	parts = append(parts, sqlIdent(def.PrimaryKey)+" INTEGER PRIMARY KEY AUTOINCREMENT")
	for _, c := range def.Columns {
		parts = append(parts, sqlIdent(c.Name)+" "+typeFor(c.Kind))
	}
	if len(def.Unique) > 0 {
		quoted := make([]string, len(def.Unique))
		for i, c := range def.Unique {
			quoted[i] = sqlIdent(c)
		}
		parts = append(parts, "UNIQUE ("+strings.Join(quoted, ", ")+")")
	}

	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n);",
		sqlIdent(def.Name), strings.Join(parts, ",\n  "))
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("sqlite: ensure table %s: %w", def.Name, err)
	}
	return nil
}

func (s *Store) Snapshot(ctx context.Context, table string) (schema.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, type, "notnull" FROM pragma_table_info(?)`, table)
	if err != nil {
		return schema.Snapshot{}, fmt.Errorf("sqlite: snapshot %s: %w", table, err)
	}
	defer rows.Close()

	var cols []schema.Column
	for rows.Next() {
		var c schema.Column
		var notNull int
		if err := rows.Scan(&c.Name, &c.DataType, &notNull); err != nil {
			return schema.Snapshot{}, fmt.Errorf("sqlite: snapshot %s: %w", table, err)
		}
		c.Nullable = notNull == 0
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return schema.Snapshot{}, fmt.Errorf("sqlite: snapshot %s: %w", table, err)
	}
	return schema.NewSnapshot(table, cols), nil
}

// AddColumns adds each missing column. SQLite has no ADD COLUMN IF NOT
// EXISTS, so the live column set guards each ALTER.
func (s *Store) AddColumns(ctx context.Context, table string, cols []schema.ColumnSpec) error {
	snap, err := s.Snapshot(ctx, table)
	if err != nil {
		return err
	}
	for _, c := range cols {
		if snap.Has(c.Name) {
			continue
		}
		ddl := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s;",
			sqlIdent(table), sqlIdent(c.Name), typeFor(c.Kind))
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("sqlite: add column %s.%s: %w", table, c.Name, err)
		}
	}
	return nil
}

func (s *Store) FindID(ctx context.Context, q storage.Lookup) (int64, bool, error) {
	where := storage.SortedKeys(q.Where)
	conds := make([]string, len(where))
	args := make([]any, 0, len(where))
	for i, c := range where {
		conds[i] = sqlIdent(c) + " = ?"
		v, err := bindValue(q.Where[c])
		if err != nil {
			return 0, false, err
		}
		args = append(args, v)
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s",
		sqlIdent(q.Return), sqlIdent(q.Table), strings.Join(conds, " AND "))
	if q.OrderBy != "" {
		query += " ORDER BY " + sqlIdent(q.OrderBy)
	}
	query += " LIMIT 1;"

	var id int64
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("sqlite: lookup %s: %w", q.Table, err)
	}
	return id, true, nil
}

func (s *Store) Insert(ctx context.Context, table string, values map[string]any) (int64, error) {
	cols := storage.SortedKeys(values)
	args, err := bindAll(values, cols)
	if err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx, insertSQL("INSERT INTO ", table, cols), args...)
	if err != nil {
		return 0, fmt.Errorf("sqlite: insert into %s: %w", table, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("sqlite: insert into %s: %w", table, err)
	}
	return id, nil
}

// InsertIgnore relies on the table's UNIQUE constraint over conflictCols;
// INSERT OR IGNORE skips the row when the constraint would fire.
func (s *Store) InsertIgnore(ctx context.Context, table string, values map[string]any, conflictCols []string) (bool, error) {
	cols := storage.SortedKeys(values)
	args, err := bindAll(values, cols)
	if err != nil {
		return false, err
	}

	res, err := s.db.ExecContext(ctx, insertSQL("INSERT OR IGNORE INTO ", table, cols), args...)
	if err != nil {
		return false, fmt.Errorf("sqlite: insert into %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: insert into %s: %w", table, err)
	}
	return n > 0, nil
}

// Update merges json documents application-side: the current document is
// read, unioned with the patch, and written back in one transaction.
func (s *Store) Update(ctx context.Context, table string, spec storage.UpdateSpec) error {
	if len(spec.Set) == 0 && len(spec.MergeJSON) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: update %s: %w", table, err)
	}
	defer tx.Rollback()

	where := storage.SortedKeys(spec.Where)
	conds := make([]string, len(where))
	whereArgs := make([]any, 0, len(where))
	for i, c := range where {
		conds[i] = sqlIdent(c) + " = ?"
		v, err := bindValue(spec.Where[c])
		if err != nil {
			return err
		}
		whereArgs = append(whereArgs, v)
	}
	whereSQL := strings.Join(conds, " AND ")

	set := make(map[string]any, len(spec.Set)+len(spec.MergeJSON))
	for k, v := range spec.Set {
		set[k] = v
	}
	for _, c := range storage.SortedKeys(spec.MergeJSON) {
		var base sql.NullString
		q := fmt.Sprintf("SELECT %s FROM %s WHERE %s LIMIT 1;", sqlIdent(c), sqlIdent(table), whereSQL)
		if err := tx.QueryRowContext(ctx, q, whereArgs...).Scan(&base); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil // nothing to update
			}
			return fmt.Errorf("sqlite: update %s: %w", table, err)
		}
		merged, err := storage.MergeDocs(base.String, spec.MergeJSON[c])
		if err != nil {
			return err
		}
		set[c] = merged
	}

	setCols := storage.SortedKeys(set)
	assigns := make([]string, len(setCols))
	args := make([]any, 0, len(setCols)+len(whereArgs))
	for i, c := range setCols {
		assigns[i] = sqlIdent(c) + " = ?"
		v, err := bindValue(set[c])
		if err != nil {
			return err
		}
		args = append(args, v)
	}
	args = append(args, whereArgs...)

	stmt := fmt.Sprintf("UPDATE %s SET %s WHERE %s;",
		sqlIdent(table), strings.Join(assigns, ", "), whereSQL)
	if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("sqlite: update %s: %w", table, err)
	}
	return tx.Commit()
}

func insertSQL(prefix, table string, cols []string) string {
	quoted := make([]string, len(cols))
	marks := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = sqlIdent(c)
		marks[i] = "?"
	}
	return prefix + sqlIdent(table) +
		" (" + strings.Join(quoted, ", ") + ") VALUES (" + strings.Join(marks, ", ") + ");"
}

func sqlIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}
