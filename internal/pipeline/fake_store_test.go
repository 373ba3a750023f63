package pipeline

import (
	"context"
	"fmt"

	"fleetimport/internal/schema"
	"fleetimport/internal/storage"
)

// fakeStore is an in-memory storage.Store for pipeline tests. It mirrors
// the backend contract closely enough to exercise upsert, evolution, and
// join logic without a database.
type fakeStore struct {
	tables map[string]*fakeTable

	// failInsertKey makes Insert fail for rows whose values contain this
	// string, to test row fault isolation.
	failInsertKey string
}

type fakeTable struct {
	def    schema.TableDef
	cols   map[string]bool
	rows   []map[string]any
	nextID int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{tables: map[string]*fakeTable{}}
}

func (f *fakeStore) Close() {}

func (f *fakeStore) EnsureTable(ctx context.Context, def schema.TableDef) error {
	if _, ok := f.tables[def.Name]; ok {
		return nil
	}
	t := &fakeTable{def: def, cols: map[string]bool{def.PrimaryKey: true}, nextID: 1}
	for _, c := range def.Columns {
		t.cols[c.Name] = true
	}
	f.tables[def.Name] = t
	return nil
}

func (f *fakeStore) table(name string) (*fakeTable, error) {
	t, ok := f.tables[name]
	if !ok {
		return nil, fmt.Errorf("fake: no table %s", name)
	}
	return t, nil
}

func (f *fakeStore) Snapshot(ctx context.Context, name string) (schema.Snapshot, error) {
	t, err := f.table(name)
	if err != nil {
		return schema.Snapshot{}, err
	}
	cols := make([]schema.Column, 0, len(t.cols))
	for c := range t.cols {
		cols = append(cols, schema.Column{Name: c, Nullable: true})
	}
	return schema.NewSnapshot(name, cols), nil
}

func (f *fakeStore) AddColumns(ctx context.Context, name string, cols []schema.ColumnSpec) error {
	t, err := f.table(name)
	if err != nil {
		return err
	}
	for _, c := range cols {
		t.cols[c.Name] = true
	}
	return nil
}

func match(row map[string]any, where map[string]any) bool {
	for k, v := range where {
		if storage.NormalizeKey(row[k]) != storage.NormalizeKey(v) {
			return false
		}
	}
	return true
}

func (f *fakeStore) FindID(ctx context.Context, q storage.Lookup) (int64, bool, error) {
	t, err := f.table(q.Table)
	if err != nil {
		return 0, false, err
	}
	for _, row := range t.rows {
		if match(row, q.Where) {
			id, _ := row[q.Return].(int64)
			return id, true, nil
		}
	}
	return 0, false, nil
}

func (f *fakeStore) Insert(ctx context.Context, name string, values map[string]any) (int64, error) {
	t, err := f.table(name)
	if err != nil {
		return 0, err
	}
	if f.failInsertKey != "" {
		for _, v := range values {
			if s, ok := v.(string); ok && s == f.failInsertKey {
				return 0, fmt.Errorf("fake: forced insert failure")
			}
		}
	}
	row := map[string]any{t.def.PrimaryKey: t.nextID}
	for k, v := range values {
		row[k] = v
	}
	t.nextID++
	t.rows = append(t.rows, row)
	return row[t.def.PrimaryKey].(int64), nil
}

func (f *fakeStore) InsertIgnore(ctx context.Context, name string, values map[string]any, conflictCols []string) (bool, error) {
	t, err := f.table(name)
	if err != nil {
		return false, err
	}
	where := map[string]any{}
	for _, c := range conflictCols {
		where[c] = values[c]
	}
	for _, row := range t.rows {
		if match(row, where) {
			return false, nil
		}
	}
	_, err = f.Insert(ctx, name, values)
	if err != nil {
		return false, err
	}
	return true, nil
}

func (f *fakeStore) Update(ctx context.Context, name string, spec storage.UpdateSpec) error {
	t, err := f.table(name)
	if err != nil {
		return err
	}
	for _, row := range t.rows {
		if !match(row, spec.Where) {
			continue
		}
		for k, v := range spec.Set {
			row[k] = v
		}
		for k, patch := range spec.MergeJSON {
			base, _ := row[k].(storage.JSON)
			merged := storage.JSON{}
			for bk, bv := range base {
				merged[bk] = bv
			}
			for pk, pv := range patch {
				merged[pk] = pv
			}
			row[k] = merged
		}
	}
	return nil
}

// find returns the first row matching where, for assertions.
func (f *fakeStore) find(name string, where map[string]any) map[string]any {
	t := f.tables[name]
	if t == nil {
		return nil
	}
	for _, row := range t.rows {
		if match(row, where) {
			return row
		}
	}
	return nil
}

func (f *fakeStore) count(name string) int {
	if t := f.tables[name]; t != nil {
		return len(t.rows)
	}
	return 0
}
