package probe

import (
	"math/rand"
	"testing"
	"time"

	"fleetimport/internal/coerce"
)

func TestMapHeader(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		// Aliased spellings whose normalized form diverges from the target.
		{"Category(Condition and usage state)", "category"},
		{"Category (Condition and usage state)", "category"},
		{"Reefer Unit Model Name (Thinline / MP)", "reefer_model"},
		{"Condition (CW / Ready / Repair)", "condition"},
		{"Container No/Vehicle No.", "container_no"},
		{"Order Received Number", "order_no"},
		// Everything else falls through to normalization.
		{"GROUP NAME", "group_name"},
		{"  YOM  ", "yom"},
		{"Image Links", "image_links"},
		{"Machinery Sl no", "machinery_sl_no"},
		{"Set Temp (C)", "set_temp_c"},
		{"Container No.", "container_no"},
		{"___", ""},
		{"", ""},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			if got := MapHeader(tt.in); got != tt.want {
				t.Fatalf("MapHeader(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeField(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"Container Code", "container_code"},
		{"depot/location", "depot_location"},
		{"a--b  c", "a_b_c"},
		{"Grade!!", "grade"},
		{"_lead_", "lead"},
		{"GROSS__WT", "gross_wt"},
	}
	for _, tt := range tests {
		if got := NormalizeField(tt.in); got != tt.want {
			t.Fatalf("NormalizeField(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTruncateFieldKeepsUTF8Boundary(t *testing.T) {
	t.Parallel()

	long := ""
	for len(long) < 80 {
		long += "abcdefgh"
	}
	if got := truncateField(long); len(got) != 63 {
		t.Fatalf("truncateField length = %d, want 63", len(got))
	}
	if got := truncateField("short"); got != "short" {
		t.Fatalf("truncateField(%q) = %q", "short", got)
	}
}

func TestInfer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		samples []any
		want    coerce.Kind
	}{
		{"integers", []any{"2019", "2021", "", "N/A", "1998"}, coerce.Integer},
		{"doubles", []any{"4.5", "-0.25", "12"}, coerce.Double},
		{"booleans", []any{"yes", "no", "Y"}, coerce.Boolean},
		{"zero-one strings are flags, not integers", []any{"1", "0", "1", "0"}, coerce.Boolean},
		{"native zero-one numbers are flags too", []any{int64(1), float64(0)}, coerce.Boolean},
		{"other integers are not flags", []any{"1", "0", "2"}, coerce.Integer},
		{"dates", []any{"15.3.24", "Sep'20", "2024-01-02"}, coerce.Date},
		{"numeric strings are not dates", []any{"45292", "45293"}, coerce.Integer},
		{"mixed falls back to text", []any{"2019", "40ft HC"}, coerce.Text},
		{"all null stays text", []any{"", nil, "NA"}, coerce.Text},
		{"native times", []any{nativeTime(), nativeTime()}, coerce.Date},
		{"whole floats count as integers", []any{float64(2021), float64(1998)}, coerce.Integer},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Infer(tt.samples); got != tt.want {
				t.Fatalf("Infer(%v) = %v, want %v", tt.samples, got, tt.want)
			}
		})
	}
}

// Inference must not depend on the order rows arrive in.
func TestInferOrderIndependent(t *testing.T) {
	t.Parallel()

	samples := []any{"2019", "", "4.5", "NA", "12", "-3"}
	want := Infer(samples)

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		shuffled := append([]any(nil), samples...)
		rng.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})
		if got := Infer(shuffled); got != want {
			t.Fatalf("Infer unstable under shuffle: %v vs %v", got, want)
		}
	}
}

func TestBuildColumns(t *testing.T) {
	t.Parallel()

	headers := []string{"Container No.", "YOM", "SIZE", "Size", "Grade", ""}
	rows := []map[string]any{
		{"Container No.": "TRIU1234567", "YOM": "2019", "SIZE": "40", "Size": "40", "Grade": "A"},
		{"Container No.": "MSKU7654321", "YOM": "2021", "SIZE": "20", "Size": "20", "Grade": "B+"},
	}
	overrides := map[string]coerce.Kind{"yom": coerce.Integer, "size": coerce.Integer}

	specs, byHeader := BuildColumns(headers, rows, SampleLimit, overrides)

	wantNames := []string{"container_no", "yom", "size", "grade"}
	if len(specs) != len(wantNames) {
		t.Fatalf("BuildColumns returned %d specs, want %d: %+v", len(specs), len(wantNames), specs)
	}
	for i, name := range wantNames {
		if specs[i].Name != name {
			t.Fatalf("specs[%d].Name = %q, want %q", i, specs[i].Name, name)
		}
	}

	// Duplicate mapped column: first header wins, second maps to nothing.
	if byHeader["SIZE"] != "size" || byHeader["Size"] != "" {
		t.Fatalf("duplicate mapping: SIZE=%q Size=%q", byHeader["SIZE"], byHeader["Size"])
	}
	if byHeader[""] != "" {
		t.Fatalf("empty header mapped to %q", byHeader[""])
	}

	for _, spec := range specs {
		switch spec.Name {
		case "yom", "size":
			if spec.Kind != coerce.Integer {
				t.Fatalf("%s inferred as %v, want Integer", spec.Name, spec.Kind)
			}
		case "grade":
			if spec.Kind != coerce.Text {
				t.Fatalf("grade inferred as %v, want Text", spec.Kind)
			}
		}
	}
}

func nativeTime() any {
	return time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC)
}
