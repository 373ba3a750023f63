package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"fleetimport/internal/coerce"
	"fleetimport/internal/loader"
	"fleetimport/internal/probe"
	"fleetimport/internal/report"
	"fleetimport/internal/schema"
	"fleetimport/internal/storage"
)

// preferredColumns are curated master-sheet columns that always exist on the
// target table with a pinned type, whether or not the current file maps a
// header onto them. This reserves stable columns for the fields the fleet
// team actually queries.
var preferredColumns = []schema.ColumnSpec{
	{Name: "product_type", Kind: coerce.Text},
	{Name: "size_type", Kind: coerce.Text},
	{Name: "group_name", Kind: coerce.Text},
	{Name: "gku_product_name", Kind: coerce.Text},
	{Name: "category", Kind: coerce.Text},
	{Name: "depot", Kind: coerce.Text},
	{Name: "yom", Kind: coerce.Integer},
	{Name: "grade", Kind: coerce.Text},
	{Name: "reefer_unit", Kind: coerce.Text},
	{Name: "reefer_model", Kind: coerce.Text},
	{Name: "image_links", Kind: coerce.Text},
	{Name: "size", Kind: coerce.Integer},
	{Name: "master_sheet_data", Kind: coerce.JSON},
	{Name: "excel_metadata", Kind: coerce.JSON},
}

// kindOverrides pins inference for the curated columns.
var kindOverrides = func() map[string]coerce.Kind {
	m := make(map[string]coerce.Kind, len(preferredColumns))
	for _, c := range preferredColumns {
		m[c.Name] = c.Kind
	}
	return m
}()

// keyCandidates are canonical column names that identify the container code
// column, in preference order.
var keyCandidates = []string{
	"container_code", "container_no", "container_number", "container_id",
	"container", "unit_no", "unit_number",
}

// containerCodePattern is the value-shape fallback when no candidate header
// is present: container codes are at least six alphanumeric/dash characters.
var containerCodePattern = regexp.MustCompile(`^[A-Za-z0-9-]{6,}$`)

// statusColumns are enum-backed columns the upserter never blind-overwrites.
// Operators edit these in the application and a re-import must not clobber
// them or violate the enum domain.
var statusColumns = map[string]bool{
	"status": true,
}

// containerTypeRules derive the containers "type" column from the product
// description on insert. First match wins; anything unrecognized is dry.
var containerTypeRules = []struct {
	substr string
	typ    string
}{
	{"reefer", "refrigerated"},
	{"refrigerated", "refrigerated"},
	{"dry", "dry"},
	{"special", "special"},
}

func deriveContainerType(product string) string {
	p := strings.ToLower(product)
	for _, r := range containerTypeRules {
		if strings.Contains(p, r.substr) {
			return r.typ
		}
	}
	return "dry"
}

// auditColumns are the json documents holding the raw source row per
// record. Both receive the same snapshot; excel_metadata is the column the
// rest of the application reads, master_sheet_data the one the fleet team
// queries directly.
var auditColumns = []string{"master_sheet_data", "excel_metadata"}

// ImportMaster imports a container master sheet into table: evolves the
// schema additively, then upserts one record per container code.
func (imp *Importer) ImportMaster(ctx context.Context, sheet *loader.Sheet, table string) error {
	started := imp.clock()
	st := imp.Run.Stage("master")

	rows := rowsAsMaps(sheet.Rows)
	specs, byHeader := probe.BuildColumns(sheet.Headers, rows, probe.SampleLimit, kindOverrides)

	keyHeader, keyCol := detectKey(sheet.Headers, byHeader, rows)
	if keyCol == "" {
		return fmt.Errorf("pipeline: no container code column in sheet %s", sheet.Name)
	}
	imp.logf("stage=master table=%s key_column=%s mapped_columns=%d", table, keyCol, len(specs))

	if err := imp.evolveMaster(ctx, table, keyCol, specs); err != nil {
		return err
	}
	snap, err := imp.Store.Snapshot(ctx, table)
	if err != nil {
		return err
	}

	kinds := make(map[string]coerce.Kind, len(specs))
	for _, spec := range specs {
		kinds[spec.Name] = spec.Kind
	}

	seen := map[string]bool{}
	for _, row := range sheet.Rows {
		imp.upsertMasterRow(ctx, st, snap, table, keyHeader, keyCol, byHeader, kinds, row, seen)
	}

	imp.finishStage("master", started, len(sheet.Rows))
	return nil
}

// evolveMaster ensures the table and additively adds whatever columns this
// file populates. DDL failures are fatal for the run; row writes depend on
// the schema being correct.
func (imp *Importer) evolveMaster(ctx context.Context, table, keyCol string, specs []schema.ColumnSpec) error {
	base := []schema.ColumnSpec{
		{Name: keyCol, Kind: coerce.Text},
		{Name: "type", Kind: coerce.Text},
		{Name: "created_at", Kind: coerce.Date},
		{Name: "updated_at", Kind: coerce.Date},
	}
	base = append(base, preferredColumns...)

	def := schema.TableDef{
		Name:       table,
		PrimaryKey: "id",
		Columns:    base,
		Unique:     []string{keyCol},
	}
	if err := imp.Store.EnsureTable(ctx, def); err != nil {
		return err
	}

	snap, err := imp.Store.Snapshot(ctx, table)
	if err != nil {
		return err
	}
	wanted := append(append([]schema.ColumnSpec{}, base...), specs...)
	missing := snap.Missing(wanted)
	if len(missing) == 0 {
		return nil
	}
	imp.logf("stage=schema table=%s add_columns=%d", table, len(missing))
	return imp.Store.AddColumns(ctx, table, missing)
}

// upsertMasterRow processes one source row. Row-level problems are tallied,
// never propagated.
func (imp *Importer) upsertMasterRow(
	ctx context.Context,
	st *report.Stage,
	snap schema.Snapshot,
	table, keyHeader, keyCol string,
	byHeader map[string]string,
	kinds map[string]coerce.Kind,
	row loader.Row,
	seen map[string]bool,
) {
	key, _ := coerce.TextValue(row[keyHeader]).(string)
	if key == "" {
		outcome(st, "skipped", "missing_key")
		return
	}
	norm := storage.NormalizeKey(key)
	if seen[norm] {
		outcome(st, "skipped", "duplicate")
		return
	}
	seen[norm] = true

	fields := make(map[string]any)
	audit := storage.JSON{}
	for header, col := range byHeader {
		if col == "" || !snap.Has(col) {
			continue
		}
		raw, present := row[header]
		if !present || coerce.IsNull(raw) {
			continue
		}
		if s, ok := coerce.TextValue(raw).(string); ok {
			audit[col] = s
		}
		if col == keyCol || isAuditColumn(col) {
			continue
		}
		if v := coerce.Value(col, kinds[col], raw); v != nil {
			fields[col] = v
		}
	}

	if len(fields) == 0 && len(audit) == 0 {
		outcome(st, "skipped", "empty_row")
		return
	}

	id, exists, err := imp.Store.FindID(ctx, storage.Lookup{
		Table:  table,
		Return: "id",
		Where:  map[string]any{keyCol: key},
	})
	if err != nil {
		imp.logf("stage=master key=%s status=error err=%v", key, err)
		outcome(st, "errored", "")
		return
	}

	now := imp.clock()
	if !exists {
		values := make(map[string]any, len(fields)+5)
		for k, v := range fields {
			values[k] = v
		}
		values[keyCol] = key
		product, _ := fields["product_type"].(string)
		values["type"] = deriveContainerType(product)
		for _, col := range auditColumns {
			values[col] = audit
		}
		values["created_at"] = now
		values["updated_at"] = now

		if _, err := imp.Store.Insert(ctx, table, values); err != nil {
			imp.logf("stage=master key=%s status=error err=%v", key, err)
			outcome(st, "errored", "")
			return
		}
		outcome(st, "created", "")
		return
	}

	set := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		if statusColumns[k] {
			continue
		}
		set[k] = v
	}
	set["updated_at"] = now

	merge := make(map[string]storage.JSON, len(auditColumns))
	for _, col := range auditColumns {
		merge[col] = audit
	}
	err = imp.Store.Update(ctx, table, storage.UpdateSpec{
		Set:       set,
		MergeJSON: merge,
		Where:     map[string]any{"id": id},
	})
	if err != nil {
		imp.logf("stage=master key=%s status=error err=%v", key, err)
		outcome(st, "errored", "")
		return
	}
	outcome(st, "updated", "")
}

func isAuditColumn(col string) bool {
	for _, c := range auditColumns {
		if c == col {
			return true
		}
	}
	return false
}

// detectKey finds the container code column: a candidate canonical name if
// one mapped, otherwise the first column, but only when its sampled values
// all look like container codes. Restricting the fallback to the first
// column keeps short sheets from electing an arbitrary code-shaped column.
func detectKey(headers []string, byHeader map[string]string, rows []map[string]any) (header, col string) {
	for _, cand := range keyCandidates {
		for _, h := range headers {
			if byHeader[h] == cand {
				return h, cand
			}
		}
	}

	limit := len(rows)
	if limit > probe.SampleLimit {
		limit = probe.SampleLimit
	}
	if len(headers) > 0 {
		h := headers[0]
		if c := byHeader[h]; c != "" && columnLooksLikeCode(h, rows[:limit]) {
			return h, c
		}
	}
	return "", ""
}

func columnLooksLikeCode(header string, rows []map[string]any) bool {
	seen := false
	for _, r := range rows {
		raw, ok := r[header]
		if !ok || coerce.IsNull(raw) {
			continue
		}
		s, _ := coerce.TextValue(raw).(string)
		if s == "" || !containerCodePattern.MatchString(s) {
			return false
		}
		seen = true
	}
	return seen
}
