package schema

import (
	"testing"

	"fleetimport/internal/coerce"
)

func snap() Snapshot {
	return NewSnapshot("reefer_master", []Column{
		{Name: "id", DataType: "bigint"},
		{Name: "container_code", DataType: "text"},
		{Name: "YOM", DataType: "bigint", Nullable: true},
	})
}

func TestSnapshotHasIsCaseInsensitive(t *testing.T) {
	t.Parallel()

	s := snap()
	for _, name := range []string{"yom", "YOM", "Container_Code"} {
		if !s.Has(name) {
			t.Fatalf("Has(%q) = false, want true", name)
		}
	}
	if s.Has("grade") {
		t.Fatalf("Has(%q) = true, want false", "grade")
	}
}

func TestSnapshotMissing(t *testing.T) {
	t.Parallel()

	s := snap()
	specs := []ColumnSpec{
		{Name: "container_code", Kind: coerce.Text},
		{Name: "grade", Kind: coerce.Text},
		{Name: "yom", Kind: coerce.Integer},
		{Name: "grade", Kind: coerce.Text}, // duplicate, must not double-report
		{Name: "size", Kind: coerce.Integer},
	}

	missing := s.Missing(specs)
	if len(missing) != 2 {
		t.Fatalf("Missing returned %d specs, want 2: %+v", len(missing), missing)
	}
	if missing[0].Name != "grade" || missing[1].Name != "size" {
		t.Fatalf("Missing order = [%s %s], want [grade size]", missing[0].Name, missing[1].Name)
	}
}

// Missing against a snapshot that already holds every spec must be empty, so
// a second import of the same file plans zero DDL.
func TestSnapshotMissingIdempotent(t *testing.T) {
	t.Parallel()

	s := snap()
	specs := []ColumnSpec{
		{Name: "container_code", Kind: coerce.Text},
		{Name: "yom", Kind: coerce.Integer},
	}
	if got := s.Missing(specs); len(got) != 0 {
		t.Fatalf("Missing on satisfied snapshot = %+v, want empty", got)
	}
}

func TestSnapshotColumnsSorted(t *testing.T) {
	t.Parallel()

	cols := snap().Columns()
	for i := 1; i < len(cols); i++ {
		if cols[i-1].Name >= cols[i].Name {
			t.Fatalf("Columns not sorted: %q before %q", cols[i-1].Name, cols[i].Name)
		}
	}
}

func TestColumnSpecCoerce(t *testing.T) {
	t.Parallel()

	spec := ColumnSpec{Name: "yom", Kind: coerce.Integer}
	if got := spec.Coerce("2019"); got != int64(2019) {
		t.Fatalf("Coerce(%q) = %v, want 2019", "2019", got)
	}
	if got := spec.Coerce("N/A"); got != nil {
		t.Fatalf("Coerce(%q) = %v, want nil", "N/A", got)
	}
}
