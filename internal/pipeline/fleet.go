package pipeline

import (
	"context"
	"fmt"
	"time"

	"fleetimport/internal/coerce"
	"fleetimport/internal/loader"
	"fleetimport/internal/probe"
	"fleetimport/internal/schema"
	"fleetimport/internal/storage"
)

// FleetFields names the canonical columns the fleet stages read from the
// merged sheet. Zero values fall back to the vendor defaults.
type FleetFields struct {
	Customer    string   // customer name, natural key of the customers table
	Container   string   // container code
	JobOrder    string   // service request natural key
	Status      string   // request status, preserved on re-import
	RequestedAt string   // request date
	MergeKeys   []string // composite business key joining the two sheets
}

func (f FleetFields) withDefaults() FleetFields {
	if f.Customer == "" {
		f.Customer = "customer_name"
	}
	if f.Container == "" {
		f.Container = "container_no"
	}
	if f.JobOrder == "" {
		f.JobOrder = "job_order"
	}
	if f.Status == "" {
		f.Status = "status"
	}
	if f.RequestedAt == "" {
		f.RequestedAt = "request_date"
	}
	if len(f.MergeKeys) == 0 {
		f.MergeKeys = []string{"order_no", "quotation_no"}
	}
	return f
}

// Target tables for the fleet stages.
const (
	customersTable  = "customers"
	containersTable = "containers"
	ownershipTable  = "container_ownership_history"
	requestsTable   = "container_service_requests"
)

// ImportFleet imports interdependent entities from a pair of sheets:
// customers first, then containers with their ownership history, then
// service requests. Later stages resolve foreign keys by natural-key lookup
// against what earlier stages wrote.
func (imp *Importer) ImportFleet(ctx context.Context, orders, quotes *loader.Sheet, fields FleetFields) error {
	fields = fields.withDefaults()

	merged := orders
	if quotes != nil {
		leftKeys := headersFor(orders, fields.MergeKeys)
		rightKeys := headersFor(quotes, fields.MergeKeys)
		merged = MergeSheets(orders, quotes, leftKeys, rightKeys)
		imp.logf("stage=merge left=%d right=%d merged=%d", len(orders.Rows), len(quotes.Rows), len(merged.Rows))
	}

	if err := imp.ensureFleetTables(ctx); err != nil {
		return err
	}

	customerH := headerFor(merged, fields.Customer)
	containerH := headerFor(merged, fields.Container)
	jobOrderH := headerFor(merged, fields.JobOrder)
	statusH := headerFor(merged, fields.Status)
	requestedH := headerFor(merged, fields.RequestedAt)
	productH := headerFor(merged, "product")
	if jobOrderH == "" {
		return fmt.Errorf("pipeline: no %s column in sheet %s", fields.JobOrder, merged.Name)
	}

	customers := imp.importCustomers(ctx, merged, customerH)
	imp.importContainers(ctx, merged, containerH, customerH, productH, customers)
	imp.importRequests(ctx, merged, jobOrderH, containerH, customerH, statusH, requestedH, customers)
	return nil
}

// ensureFleetTables creates all four target tables before any row writes,
// so every stage runs against a settled schema.
func (imp *Importer) ensureFleetTables(ctx context.Context) error {
	defs := []schema.TableDef{
		{
			Name:       customersTable,
			PrimaryKey: "id",
			Columns: []schema.ColumnSpec{
				{Name: "name", Kind: coerce.Text},
				{Name: "created_at", Kind: coerce.Date},
				{Name: "updated_at", Kind: coerce.Date},
			},
			Unique: []string{"name"},
		},
		{
			Name:       containersTable,
			PrimaryKey: "id",
			Columns: []schema.ColumnSpec{
				{Name: "container_code", Kind: coerce.Text},
				{Name: "type", Kind: coerce.Text},
				{Name: "created_at", Kind: coerce.Date},
			},
			Unique: []string{"container_code"},
		},
		{
			Name:       ownershipTable,
			PrimaryKey: "id",
			Columns: []schema.ColumnSpec{
				{Name: "container_id", Kind: coerce.Integer},
				{Name: "customer_id", Kind: coerce.Integer},
				{Name: "is_current", Kind: coerce.Boolean},
				{Name: "assigned_at", Kind: coerce.Date},
			},
		},
		{
			Name:       requestsTable,
			PrimaryKey: "id",
			Columns: []schema.ColumnSpec{
				{Name: "job_order", Kind: coerce.Text},
				{Name: "customer_id", Kind: coerce.Integer},
				{Name: "container_id", Kind: coerce.Integer},
				{Name: "status", Kind: coerce.Text},
				{Name: "requested_at", Kind: coerce.Date},
				{Name: "request_data", Kind: coerce.JSON},
				{Name: "created_at", Kind: coerce.Date},
			},
			Unique: []string{"job_order"},
		},
	}
	for _, def := range defs {
		if err := imp.Store.EnsureTable(ctx, def); err != nil {
			return err
		}
	}
	return nil
}

// importCustomers creates one customer per distinct name and returns the
// normalized-name to id cache later stages join against.
func (imp *Importer) importCustomers(ctx context.Context, sheet *loader.Sheet, customerH string) map[string]int64 {
	started := imp.clock()
	st := imp.Run.Stage("customers")
	ids := make(map[string]int64)

	for _, row := range sheet.Rows {
		name, _ := coerce.TextValue(row[customerH]).(string)
		if name == "" {
			outcome(st, "skipped", "missing_key")
			continue
		}
		norm := storage.NormalizeKey(name)
		if _, ok := ids[norm]; ok {
			outcome(st, "skipped", "duplicate")
			continue
		}

		id, exists, err := imp.Store.FindID(ctx, storage.Lookup{
			Table:  customersTable,
			Return: "id",
			Where:  map[string]any{"name": name},
		})
		if err != nil {
			imp.logf("stage=customers key=%s status=error err=%v", name, err)
			outcome(st, "errored", "")
			continue
		}
		if exists {
			ids[norm] = id
			outcome(st, "skipped", "exists")
			continue
		}

		now := imp.clock()
		id, err = imp.Store.Insert(ctx, customersTable, map[string]any{
			"name":       name,
			"created_at": now,
			"updated_at": now,
		})
		if err != nil {
			imp.logf("stage=customers key=%s status=error err=%v", name, err)
			outcome(st, "errored", "")
			continue
		}
		ids[norm] = id
		outcome(st, "created", "")
	}

	imp.finishStage("customers", started, len(sheet.Rows))
	return ids
}

// importContainers creates containers and maintains their ownership
// history: at most one current owner per container, previous owners closed
// out, a repeated (container, owner) pair left untouched.
func (imp *Importer) importContainers(ctx context.Context, sheet *loader.Sheet, containerH, customerH, productH string, customers map[string]int64) {
	started := imp.clock()
	st := imp.Run.Stage("containers")
	seen := map[string]bool{}

	for _, row := range sheet.Rows {
		code, _ := coerce.TextValue(row[containerH]).(string)
		if code == "" {
			outcome(st, "skipped", "missing_key")
			continue
		}
		norm := storage.NormalizeKey(code)
		if seen[norm] {
			outcome(st, "skipped", "duplicate")
			continue
		}
		seen[norm] = true

		name, _ := coerce.TextValue(row[customerH]).(string)
		customerID, ok := customers[storage.NormalizeKey(name)]
		if !ok {
			imp.logf("stage=containers key=%s skip=unresolved_customer customer=%q", code, name)
			outcome(st, "skipped", "unresolved_customer")
			continue
		}

		now := imp.clock()
		containerID, exists, err := imp.Store.FindID(ctx, storage.Lookup{
			Table:  containersTable,
			Return: "id",
			Where:  map[string]any{"container_code": code},
		})
		if err != nil {
			imp.logf("stage=containers key=%s status=error err=%v", code, err)
			outcome(st, "errored", "")
			continue
		}
		created := false
		if !exists {
			product, _ := coerce.TextValue(row[productH]).(string)
			containerID, err = imp.Store.Insert(ctx, containersTable, map[string]any{
				"container_code": code,
				"type":           deriveContainerType(product),
				"created_at":     now,
			})
			if err != nil {
				imp.logf("stage=containers key=%s status=error err=%v", code, err)
				outcome(st, "errored", "")
				continue
			}
			created = true
		}

		changed, err := imp.assignOwner(ctx, containerID, customerID, now)
		if err != nil {
			imp.logf("stage=containers key=%s status=error err=%v", code, err)
			outcome(st, "errored", "")
			continue
		}
		switch {
		case created:
			outcome(st, "created", "")
		case changed:
			outcome(st, "updated", "")
		default:
			outcome(st, "skipped", "unchanged")
		}
	}

	imp.finishStage("containers", started, len(sheet.Rows))
}

// assignOwner makes customerID the container's current owner. Reports
// whether anything changed.
func (imp *Importer) assignOwner(ctx context.Context, containerID, customerID int64, now time.Time) (bool, error) {
	current, hasOwner, err := imp.Store.FindID(ctx, storage.Lookup{
		Table:  ownershipTable,
		Return: "customer_id",
		Where:  map[string]any{"container_id": containerID, "is_current": true},
	})
	if err != nil {
		return false, err
	}
	if hasOwner && current == customerID {
		return false, nil
	}
	if hasOwner {
		err := imp.Store.Update(ctx, ownershipTable, storage.UpdateSpec{
			Set:   map[string]any{"is_current": false},
			Where: map[string]any{"container_id": containerID, "is_current": true},
		})
		if err != nil {
			return false, err
		}
	}
	_, err = imp.Store.Insert(ctx, ownershipTable, map[string]any{
		"container_id": containerID,
		"customer_id":  customerID,
		"is_current":   true,
		"assigned_at":  now,
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// importRequests imports service requests keyed by job order. The owning
// customer resolves by name first; when the name is missing or unknown the
// stage falls back to the container's current owner. The fallback can
// attribute a request to a stale owner if ownership changed after the
// request was raised; operators review the skip log when that matters.
func (imp *Importer) importRequests(ctx context.Context, sheet *loader.Sheet, jobOrderH, containerH, customerH, statusH, requestedH string, customers map[string]int64) {
	started := imp.clock()
	st := imp.Run.Stage("service_requests")

	for _, row := range sheet.Rows {
		jobOrder, _ := coerce.TextValue(row[jobOrderH]).(string)
		if jobOrder == "" {
			outcome(st, "skipped", "missing_key")
			continue
		}

		code, _ := coerce.TextValue(row[containerH]).(string)
		var containerID any
		if code != "" {
			id, ok, err := imp.Store.FindID(ctx, storage.Lookup{
				Table:  containersTable,
				Return: "id",
				Where:  map[string]any{"container_code": code},
			})
			if err != nil {
				imp.logf("stage=service_requests key=%s status=error err=%v", jobOrder, err)
				outcome(st, "errored", "")
				continue
			}
			if ok {
				containerID = id
			}
		}

		name, _ := coerce.TextValue(row[customerH]).(string)
		customerID, resolved := customers[storage.NormalizeKey(name)]
		if !resolved && containerID != nil {
			id, ok, err := imp.Store.FindID(ctx, storage.Lookup{
				Table:  ownershipTable,
				Return: "customer_id",
				Where:  map[string]any{"container_id": containerID, "is_current": true},
			})
			if err != nil {
				imp.logf("stage=service_requests key=%s status=error err=%v", jobOrder, err)
				outcome(st, "errored", "")
				continue
			}
			if ok {
				customerID, resolved = id, true
			}
		}
		if !resolved {
			imp.logf("stage=service_requests key=%s skip=unresolved_customer customer=%q container=%q",
				jobOrder, name, code)
			outcome(st, "skipped", "unresolved_customer")
			continue
		}

		values := map[string]any{
			"job_order":    jobOrder,
			"customer_id":  customerID,
			"request_data": auditFor(row),
			"created_at":   imp.clock(),
		}
		if containerID != nil {
			values["container_id"] = containerID
		}
		if s, ok := coerce.TextValue(row[statusH]).(string); ok {
			values["status"] = s
		}
		if t := coerce.Value("requested_at", coerce.Date, row[requestedH]); t != nil {
			values["requested_at"] = t
		}

		inserted, err := imp.Store.InsertIgnore(ctx, requestsTable, values, []string{"job_order"})
		if err != nil {
			imp.logf("stage=service_requests key=%s status=error err=%v", jobOrder, err)
			outcome(st, "errored", "")
			continue
		}
		if inserted {
			outcome(st, "created", "")
		} else {
			outcome(st, "skipped", "duplicate")
		}
	}

	imp.finishStage("service_requests", started, len(sheet.Rows))
}

// auditFor snapshots the raw row as a json document keyed by canonical
// column name.
func auditFor(row loader.Row) storage.JSON {
	doc := storage.JSON{}
	for header, raw := range row {
		col := probe.MapHeader(header)
		if col == "" || coerce.IsNull(raw) {
			continue
		}
		if s, ok := coerce.TextValue(raw).(string); ok {
			doc[col] = s
		}
	}
	return doc
}

// headerFor finds the raw header that maps onto the canonical column name.
func headerFor(sheet *loader.Sheet, col string) string {
	for _, h := range sheet.Headers {
		if probe.MapHeader(h) == col {
			return h
		}
	}
	return ""
}

func headersFor(sheet *loader.Sheet, cols []string) []string {
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		if h := headerFor(sheet, c); h != "" {
			out = append(out, h)
		}
	}
	return out
}
