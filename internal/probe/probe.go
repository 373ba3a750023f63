// Package probe turns raw spreadsheet headers and sample rows into a typed
// column plan. It maps vendor headers onto canonical column names and infers
// a coercion kind per column from a bounded sample of the data.
package probe

import (
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"fleetimport/internal/coerce"
	"fleetimport/internal/schema"
)

// SampleLimit caps how many rows inference reads per column. Fleet master
// sheets run to tens of thousands of rows and types stabilize long before
// that.
const SampleLimit = 200

// headerAliases maps headers exactly as they appear in the vendor sheets
// onto canonical column names. Lookup happens after trimming but before
// normalization, so entries must match the raw spelling. Only headers whose
// normalized form diverges from the wanted column need an entry; everything
// else falls through to NormalizeField.
var headerAliases = map[string]string{
	"Category(Condition and usage state)":    "category",
	"Category (Condition and usage state)":   "category",
	"Reefer Unit Model Name (Thinline / MP)": "reefer_model",
	"Condition (CW / Ready / Repair)":        "condition",
	"Container No/Vehicle No.":               "container_no",

	// The quotation sheet spells the shared order number differently from
	// the orders sheet; both must land on the same column for the merge join.
	"Order Received Number": "order_no",
}

// MapHeader resolves a raw spreadsheet header to its canonical column name.
// Known vendor spellings map through the alias table; everything else is
// normalized into a safe identifier. Returns "" for headers that normalize
// to nothing.
func MapHeader(h string) string {
	h = strings.TrimSpace(h)
	if h == "" {
		return ""
	}
	if alias, ok := headerAliases[h]; ok {
		return alias
	}
	return truncateField(NormalizeField(h))
}

// NormalizeField converts an arbitrary input string into a safe, lowercase
// identifier suitable for column and table names.
func NormalizeField(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	s = strings.ToLower(s)

	var b strings.Builder
	b.Grow(len(s))

	lastUnderscore := false
	for _, r := range s {
		if r == ' ' || r == '-' || r == '.' || r == '/' || r == '\\' || r == ':' || r == ';' || r == '_' {
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
			continue
		}

		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}

		// Drop everything else.
	}

	return strings.Trim(b.String(), "_")
}

// truncateField enforces backend identifier length limits while preserving
// UTF-8 validity.
func truncateField(s string) string {
	const maxLen = 63
	if len(s) <= maxLen {
		return s
	}
	b := []byte(s)
	cut := maxLen
	for cut > 0 && !utf8.Valid(b[:cut]) {
		cut--
	}
	if cut <= 0 {
		return s[:maxLen]
	}
	return string(b[:cut])
}

// Infer picks a coercion kind for one column from its sampled values. Every
// non-null sample must satisfy a kind's predicate for the kind to win, so
// the result does not depend on sample order. Columns with no usable sample
// stay Text.
func Infer(samples []any) coerce.Kind {
	var seen bool
	allInt := true
	allBool := true
	allDate := true
	allDouble := true

	for _, raw := range samples {
		if coerce.IsNull(raw) {
			continue
		}
		seen = true

		switch v := raw.(type) {
		case time.Time:
			allInt, allBool, allDouble = false, false, false
			continue
		case bool:
			allInt, allDate, allDouble = false, false, false
			continue
		case int:
			allDate = false
			if v != 0 && v != 1 {
				allBool = false
			}
			continue
		case int64:
			allDate = false
			if v != 0 && v != 1 {
				allBool = false
			}
			continue
		case float64:
			allDate = false
			if v != 0 && v != 1 {
				allBool = false
			}
			if v != float64(int64(v)) {
				allInt = false
			}
			continue
		}

		s := strings.TrimSpace(stringify(raw))
		if allInt {
			if _, err := strconv.ParseInt(s, 10, 64); err != nil {
				allInt = false
			}
		}
		if allBool {
			if _, ok := coerce.ParseBoolLoose(s); !ok {
				allBool = false
			}
		}
		if allDouble {
			if _, err := strconv.ParseFloat(s, 64); err != nil {
				allDouble = false
			}
		}
		if allDate {
			// A bare numeric string is a plausible serial at almost any
			// magnitude, so numbers never vote for Date on their own.
			if _, err := strconv.ParseFloat(s, 64); err == nil {
				allDate = false
			} else if _, ok := coerce.ParseDate(s); !ok {
				allDate = false
			}
		}
	}

	if !seen {
		return coerce.Text
	}
	// Boolean outranks Integer so that all-0/1 columns stay flags.
	switch {
	case allBool:
		return coerce.Boolean
	case allInt:
		return coerce.Integer
	case allDate:
		return coerce.Date
	case allDouble:
		return coerce.Double
	default:
		return coerce.Text
	}
}

func stringify(raw any) string {
	switch v := raw.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return ""
	}
}

// BuildColumns maps every header, infers a kind per mapped column from up to
// limit sample rows, and returns the column plan plus the raw-header to
// column-name mapping. Overrides pin kinds for curated columns regardless of
// what the sample looks like. When two headers map to the same column the
// first one wins and later duplicates map to "".
func BuildColumns(headers []string, rows []map[string]any, limit int, overrides map[string]coerce.Kind) ([]schema.ColumnSpec, map[string]string) {
	if limit <= 0 || limit > len(rows) {
		limit = len(rows)
	}
	sample := rows[:limit]

	specs := make([]schema.ColumnSpec, 0, len(headers))
	byHeader := make(map[string]string, len(headers))
	taken := make(map[string]struct{}, len(headers))

	for _, h := range headers {
		col := MapHeader(h)
		if col == "" {
			byHeader[h] = ""
			continue
		}
		if _, dup := taken[col]; dup {
			byHeader[h] = ""
			continue
		}
		taken[col] = struct{}{}
		byHeader[h] = col

		kind, pinned := overrides[col]
		if !pinned {
			values := make([]any, 0, len(sample))
			for _, r := range sample {
				values = append(values, r[h])
			}
			kind = Infer(values)
		}
		specs = append(specs, schema.ColumnSpec{Name: col, Kind: kind})
	}

	return specs, byHeader
}
