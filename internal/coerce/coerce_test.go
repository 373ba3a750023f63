package coerce

import (
	"testing"
	"time"
)

//
// Value / IsNull
//

// TestIsNull verifies the null-ish markers spreadsheets use.
//
// This function is correctness-critical because a value recognized as null is
// skipped by the upsert loop, which is what keeps re-imports from blanking
// already populated fields.
func TestIsNull(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   any
		want bool
	}{
		{"nil", nil, true},
		{"empty string", "", true},
		{"whitespace", "   ", true},
		{"na upper", "NA", true},
		{"na lower", "na", true},
		{"n slash a", "N/A", true},
		{"n slash a lower", "n/a", true},
		{"real value", "40ft", false},
		{"zero number", float64(0), false},
		{"word containing na", "nathan", false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := IsNull(tt.in); got != tt.want {
				t.Fatalf("IsNull(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

// TestIntegerExtraction verifies numeric extraction from annotated cells,
// including the "Minus 18degc" sign-word convention.
func TestIntegerExtraction(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		field string
		in    any
		want  any
	}{
		{"sign word", "temperature", "Minus 18degc", int64(-18)},
		{"plain year", "yom", "2019", int64(2019)},
		{"embedded number", "size", "40ft HC", int64(40)},
		{"already negative", "temperature", "-20C", int64(-20)},
		{"sign word on negative literal", "temperature", "minus -5", int64(-5)},
		{"native float", "yom", float64(2021), int64(2021)},
		{"no digits", "yom", "unknown", nil},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Value(tt.field, Integer, tt.in); got != tt.want {
				t.Fatalf("Value(%q, Integer, %v) = %v, want %v", tt.field, tt.in, got, tt.want)
			}
		})
	}
}

// TestDoubleExtraction verifies decimal extraction keeps the fractional part
// and honors the sign word.
func TestDoubleExtraction(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		field string
		in    any
		want  any
	}{
		{"decimal with unit", "set_point", "4.5 C", 4.5},
		{"sign word decimal", "set_point", "Minus 0.5C", -0.5},
		{"integer text", "amount", "1200", float64(1200)},
		{"native", "amount", 3.25, 3.25},
		{"garbage", "amount", "tbd", nil},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Value(tt.field, Double, tt.in); got != tt.want {
				t.Fatalf("Value(%q, Double, %v) = %v, want %v", tt.field, tt.in, got, tt.want)
			}
		})
	}
}

// TestBooleanRejectsAmbiguous verifies ambiguous booleans coerce to nil
// instead of a guess.
func TestBooleanRejectsAmbiguous(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   any
		want any
	}{
		{"yes", "yes", true},
		{"no", "NO", false},
		{"numeric one", "1", true},
		{"ambiguous word", "maybe", nil},
		{"native bool", true, true},
		{"numeric two", float64(2), nil},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Value("blocked", Boolean, tt.in); got != tt.want {
				t.Fatalf("Value(blocked, Boolean, %v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

// TestValueNullPropagation verifies the null markers short-circuit every kind.
func TestValueNullPropagation(t *testing.T) {
	t.Parallel()

	for _, kind := range []Kind{Text, Integer, Double, Boolean, Date} {
		kind := kind
		t.Run(kind.String(), func(t *testing.T) {
			t.Parallel()
			if got := Value("any", kind, "N/A"); got != nil {
				t.Fatalf("Value(any, %v, N/A) = %v, want nil", kind, got)
			}
		})
	}
}

// TestTextValueTrims verifies text coercion trims and stringifies.
func TestTextValueTrims(t *testing.T) {
	t.Parallel()

	if got := Value("grade", Text, "  A  "); got != "A" {
		t.Fatalf("Value(grade, Text) = %v, want A", got)
	}
	if got := Value("yom", Text, float64(2019)); got != "2019" {
		t.Fatalf("Value(yom, Text, 2019.0) = %v, want 2019", got)
	}
}

// An absent cell reaches TextValue as nil and must stay nil, not become a
// printable placeholder string.
func TestTextValueNil(t *testing.T) {
	t.Parallel()

	if got := TextValue(nil); got != nil {
		t.Fatalf("TextValue(nil) = %v, want nil", got)
	}
}

// TestDateKindStoresInstant verifies Date fields coerce through ParseDate to
// a UTC instant.
func TestDateKindStoresInstant(t *testing.T) {
	t.Parallel()

	got := Value("mfg_date", Date, "Sep'20")
	want := time.Date(2020, time.September, 1, 0, 0, 0, 0, time.UTC)
	if got != want {
		t.Fatalf("Value(mfg_date, Date, Sep'20) = %v, want %v", got, want)
	}
	if got := Value("mfg_date", Date, "not a date"); got != nil {
		t.Fatalf("Value(mfg_date, Date, junk) = %v, want nil", got)
	}
}
