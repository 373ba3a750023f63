// Package mssql implements storage.Store on Microsoft SQL Server.
package mssql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/microsoft/go-mssqldb"

	"fleetimport/internal/coerce"
	"fleetimport/internal/schema"
	"fleetimport/internal/storage"
)

func init() {
	storage.Register("mssql", New)
}

// Store implements storage.Store for SQL Server.
//
// SQL Server has no CREATE TABLE IF NOT EXISTS or ADD COLUMN IF NOT EXISTS,
// so DDL is guarded with sys.tables / sys.columns existence checks. JSON
// documents are stored as NVARCHAR(MAX) and merged application-side.
type Store struct {
	db *sql.DB
}

// New constructs a Store using database/sql and the "sqlserver" driver, and
// validates connectivity via PingContext.
func New(ctx context.Context, cfg storage.Config) (storage.Store, error) {
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("mssql: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("mssql: ping: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() {
	s.db.Close()
}

func typeFor(k coerce.Kind) string {
	switch k {
	case coerce.Integer:
		return "BIGINT"
	case coerce.Double:
		return "FLOAT"
	case coerce.Boolean:
		return "BIT"
	case coerce.Date:
		return "DATETIMEOFFSET"
	default:
		// Text and JSON documents.
		return "NVARCHAR(MAX)"
	}
}

func bindValue(v any) (any, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case storage.JSON:
		return t.Encode()
	default:
		return v, nil
	}
}

// EnsureTable creates the table unless sys.tables already has it. The guard
// keeps the call idempotent without IF NOT EXISTS syntax.
func (s *Store) EnsureTable(ctx context.Context, def schema.TableDef) error {
	parts := make([]string, 0, len(def.Columns)+2)
	parts = append(parts, mssqlIdent(def.PrimaryKey)+" BIGINT IDENTITY(1,1) PRIMARY KEY")
	for _, c := range def.Columns {
		colType := typeFor(c.Kind)
		if contains(def.Unique, c.Name) && colType == "NVARCHAR(MAX)" {
			// MAX columns cannot participate in a unique constraint.
			colType = "NVARCHAR(450)"
		}
		parts = append(parts, mssqlIdent(c.Name)+" "+colType)
	}
	if len(def.Unique) > 0 {
		quoted := make([]string, len(def.Unique))
		for i, c := range def.Unique {
			quoted[i] = mssqlIdent(c)
		}
		parts = append(parts, "UNIQUE ("+strings.Join(quoted, ", ")+")")
	}

	ddl := fmt.Sprintf(
		"IF NOT EXISTS (SELECT 1 FROM sys.tables WHERE name = @p1)\nBEGIN\n  CREATE TABLE %s (\n    %s\n  );\nEND;",
		mssqlIdent(def.Name), strings.Join(parts, ",\n    "))
	if _, err := s.db.ExecContext(ctx, ddl, def.Name); err != nil {
		return fmt.Errorf("mssql: ensure table %s: %w", def.Name, err)
	}
	return nil
}

func (s *Store) Snapshot(ctx context.Context, table string) (schema.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.name, t.name, c.is_nullable
		FROM sys.columns c
		JOIN sys.types t ON t.user_type_id = c.user_type_id
		WHERE c.object_id = OBJECT_ID(@p1)`, table)
	if err != nil {
		return schema.Snapshot{}, fmt.Errorf("mssql: snapshot %s: %w", table, err)
	}
	defer rows.Close()

	var cols []schema.Column
	for rows.Next() {
		var c schema.Column
		if err := rows.Scan(&c.Name, &c.DataType, &c.Nullable); err != nil {
			return schema.Snapshot{}, fmt.Errorf("mssql: snapshot %s: %w", table, err)
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return schema.Snapshot{}, fmt.Errorf("mssql: snapshot %s: %w", table, err)
	}
	return schema.NewSnapshot(table, cols), nil
}

// AddColumns adds each column behind a sys.columns existence check.
func (s *Store) AddColumns(ctx context.Context, table string, cols []schema.ColumnSpec) error {
	for _, c := range cols {
		ddl := fmt.Sprintf(
			"IF NOT EXISTS (SELECT 1 FROM sys.columns WHERE object_id = OBJECT_ID(@p1) AND name = @p2)\nBEGIN\n  ALTER TABLE %s ADD %s %s;\nEND;",
			mssqlIdent(table), mssqlIdent(c.Name), typeFor(c.Kind))
		if _, err := s.db.ExecContext(ctx, ddl, table, c.Name); err != nil {
			return fmt.Errorf("mssql: add column %s.%s: %w", table, c.Name, err)
		}
	}
	return nil
}

func (s *Store) FindID(ctx context.Context, q storage.Lookup) (int64, bool, error) {
	where := storage.SortedKeys(q.Where)
	conds := make([]string, len(where))
	args := make([]any, 0, len(where))
	for i, c := range where {
		conds[i] = fmt.Sprintf("%s = @p%d", mssqlIdent(c), i+1)
		v, err := bindValue(q.Where[c])
		if err != nil {
			return 0, false, err
		}
		args = append(args, v)
	}

	query := fmt.Sprintf("SELECT TOP 1 %s FROM %s WHERE %s",
		mssqlIdent(q.Return), mssqlIdent(q.Table), strings.Join(conds, " AND "))
	if q.OrderBy != "" {
		query += " ORDER BY " + mssqlIdent(q.OrderBy)
	}
	query += ";"

	var id int64
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("mssql: lookup %s: %w", q.Table, err)
	}
	return id, true, nil
}

func (s *Store) Insert(ctx context.Context, table string, values map[string]any) (int64, error) {
	cols := storage.SortedKeys(values)
	quoted := make([]string, len(cols))
	marks := make([]string, len(cols))
	args := make([]any, 0, len(cols))
	for i, c := range cols {
		quoted[i] = mssqlIdent(c)
		marks[i] = fmt.Sprintf("@p%d", i+1)
		v, err := bindValue(values[c])
		if err != nil {
			return 0, err
		}
		args = append(args, v)
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) OUTPUT INSERTED.id VALUES (%s);",
		mssqlIdent(table), strings.Join(quoted, ", "), strings.Join(marks, ", "))

	var id int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("mssql: insert into %s: %w", table, err)
	}
	return id, nil
}

// InsertIgnore guards the INSERT with a NOT EXISTS check over conflictCols,
// mirroring what ON CONFLICT DO NOTHING does elsewhere.
func (s *Store) InsertIgnore(ctx context.Context, table string, values map[string]any, conflictCols []string) (bool, error) {
	cols := storage.SortedKeys(values)
	quoted := make([]string, len(cols))
	marks := make([]string, len(cols))
	args := make([]any, 0, len(cols))
	pos := make(map[string]int, len(cols))
	for i, c := range cols {
		quoted[i] = mssqlIdent(c)
		marks[i] = fmt.Sprintf("@p%d", i+1)
		pos[c] = i + 1
		v, err := bindValue(values[c])
		if err != nil {
			return false, err
		}
		args = append(args, v)
	}

	guards := make([]string, len(conflictCols))
	for i, c := range conflictCols {
		guards[i] = fmt.Sprintf("%s = @p%d", mssqlIdent(c), pos[c])
	}

	query := fmt.Sprintf(
		"IF NOT EXISTS (SELECT 1 FROM %s WHERE %s)\nBEGIN\n  INSERT INTO %s (%s) VALUES (%s);\nEND;",
		mssqlIdent(table), strings.Join(guards, " AND "),
		mssqlIdent(table), strings.Join(quoted, ", "), strings.Join(marks, ", "))

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("mssql: insert into %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mssql: insert into %s: %w", table, err)
	}
	return n > 0, nil
}

// Update merges json documents application-side inside a transaction, like
// the SQLite backend.
func (s *Store) Update(ctx context.Context, table string, spec storage.UpdateSpec) error {
	if len(spec.Set) == 0 && len(spec.MergeJSON) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("mssql: update %s: %w", table, err)
	}
	defer tx.Rollback()

	p := 0
	next := func() string {
		p++
		return fmt.Sprintf("@p%d", p)
	}

	set := make(map[string]any, len(spec.Set)+len(spec.MergeJSON))
	for k, v := range spec.Set {
		set[k] = v
	}

	where := storage.SortedKeys(spec.Where)
	for _, c := range storage.SortedKeys(spec.MergeJSON) {
		conds := make([]string, len(where))
		readArgs := make([]any, 0, len(where))
		for i, w := range where {
			conds[i] = fmt.Sprintf("%s = @p%d", mssqlIdent(w), i+1)
			v, err := bindValue(spec.Where[w])
			if err != nil {
				return err
			}
			readArgs = append(readArgs, v)
		}
		q := fmt.Sprintf("SELECT TOP 1 %s FROM %s WHERE %s;",
			mssqlIdent(c), mssqlIdent(table), strings.Join(conds, " AND "))

		var base sql.NullString
		if err := tx.QueryRowContext(ctx, q, readArgs...).Scan(&base); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return fmt.Errorf("mssql: update %s: %w", table, err)
		}
		merged, err := storage.MergeDocs(base.String, spec.MergeJSON[c])
		if err != nil {
			return err
		}
		set[c] = merged
	}

	assigns := make([]string, 0, len(set))
	args := make([]any, 0, len(set)+len(where))
	for _, c := range storage.SortedKeys(set) {
		v, err := bindValue(set[c])
		if err != nil {
			return err
		}
		assigns = append(assigns, mssqlIdent(c)+" = "+next())
		args = append(args, v)
	}
	conds := make([]string, len(where))
	for i, w := range where {
		v, err := bindValue(spec.Where[w])
		if err != nil {
			return err
		}
		conds[i] = mssqlIdent(w) + " = " + next()
		args = append(args, v)
	}

	stmt := fmt.Sprintf("UPDATE %s SET %s WHERE %s;",
		mssqlIdent(table), strings.Join(assigns, ", "), strings.Join(conds, " AND "))
	if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("mssql: update %s: %w", table, err)
	}
	return tx.Commit()
}

func mssqlIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
