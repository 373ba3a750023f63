// Package coerce converts raw spreadsheet cell values into typed values
// suitable for relational storage.
//
// The package is responsible for:
//   - Recognizing the null-ish values messy exports use ("", "NA", "N/A")
//   - Extracting numbers out of annotated cells ("Minus 18degc" -> -18)
//   - Parsing the date shapes spreadsheets produce (Excel day serials,
//     dot dates like "15.3.24", month-year tokens like "Sep'20")
//   - Rejecting ambiguous booleans instead of guessing
//
// Design constraints:
//   - Coercion never fails: an unusable value coerces to nil, and the
//     caller decides whether nil means "skip" or "leave unchanged".
//   - The same input always produces the same output; there is no locale
//     or clock dependence.
package coerce

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Kind selects the coercion applied to a field's raw values. It also drives
// the SQL type a backend materializes for the field.
type Kind int

const (
	Text Kind = iota
	Integer
	Double
	Boolean
	Date
	JSON
)

// String returns the lowercase label used in logs and DDL planning.
func (k Kind) String() string {
	switch k {
	case Integer:
		return "integer"
	case Double:
		return "double"
	case Boolean:
		return "boolean"
	case Date:
		return "date"
	case JSON:
		return "json"
	default:
		return "text"
	}
}

// ExtractFn pulls a parseable numeric substring out of annotated cell text.
// The boolean reports whether anything usable was found.
type ExtractFn func(s string) (string, bool)

// extractor binds an ExtractFn to the fields it applies to. Field quirks are
// rows in this table, not branches in Value: a new unit suffix or sign word
// becomes an addition here.
type extractor struct {
	field   *regexp.Regexp
	extract ExtractFn
}

var (
	fieldAny = regexp.MustCompile(``)

	intPattern   = regexp.MustCompile(`-?\d+`)
	floatPattern = regexp.MustCompile(`-?\d+(?:\.\d+)?`)
	minusWord    = regexp.MustCompile(`(?i)^\s*minus\b`)
)

// integerExtractors is consulted in order for Integer fields; the first entry
// whose field pattern matches wins. The catch-all handles plain digits plus
// the "Minus 18degc" convention seen in temperature columns.
var integerExtractors = []extractor{
	{fieldAny, extractSigned(intPattern)},
}

// doubleExtractors mirrors integerExtractors for decimal fields.
var doubleExtractors = []extractor{
	{fieldAny, extractSigned(floatPattern)},
}

// extractSigned returns an ExtractFn that takes the first number matching
// pattern and negates it when the cell text leads with the word "minus".
func extractSigned(pattern *regexp.Regexp) ExtractFn {
	return func(s string) (string, bool) {
		m := pattern.FindString(s)
		if m == "" {
			return "", false
		}
		if minusWord.MatchString(s) && !strings.HasPrefix(m, "-") {
			m = "-" + m
		}
		return m, true
	}
}

func extractFor(field string, table []extractor) ExtractFn {
	for _, e := range table {
		if e.field.MatchString(field) {
			return e.extract
		}
	}
	return nil
}

// IsNull reports whether a raw cell value carries no information. Blank
// strings and the literal NA / N/A markers all count as null.
func IsNull(raw any) bool {
	if raw == nil {
		return true
	}
	s, ok := raw.(string)
	if !ok {
		return false
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return true
	}
	switch strings.ToUpper(s) {
	case "NA", "N/A":
		return true
	}
	return false
}

// Value coerces raw for the named field according to kind. It returns nil
// when the value is null-ish or cannot be interpreted; it never returns an
// error, matching the row-tolerant posture of the import loop.
func Value(field string, kind Kind, raw any) any {
	if raw == nil || IsNull(raw) {
		return nil
	}

	switch kind {
	case Integer:
		return IntegerValue(field, raw)
	case Double:
		return DoubleValue(field, raw)
	case Boolean:
		return BooleanValue(raw)
	case Date:
		if t, ok := ParseDate(raw); ok {
			return t
		}
		return nil
	case JSON:
		return raw
	default:
		return TextValue(raw)
	}
}

// TextValue returns the trimmed string form of raw, or nil for nil or
// empty input. Absent cells read from a row map arrive here as nil and
// must not turn into a printable placeholder.
func TextValue(raw any) any {
	if raw == nil {
		return nil
	}
	switch t := raw.(type) {
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil
		}
		return s
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(t, 10)
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		s := strings.TrimSpace(fmt.Sprint(t))
		if s == "" {
			return nil
		}
		return s
	}
}

// IntegerValue extracts a signed integer from raw, or nil.
func IntegerValue(field string, raw any) any {
	switch t := raw.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case string:
		fn := extractFor(field, integerExtractors)
		if fn == nil {
			return nil
		}
		m, ok := fn(t)
		if !ok {
			return nil
		}
		n, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			return nil
		}
		return n
	default:
		return nil
	}
}

// DoubleValue extracts a signed decimal from raw, or nil.
func DoubleValue(field string, raw any) any {
	switch t := raw.(type) {
	case float64:
		return t
	case int64:
		return float64(t)
	case int:
		return float64(t)
	case string:
		fn := extractFor(field, doubleExtractors)
		if fn == nil {
			return nil
		}
		m, ok := fn(t)
		if !ok {
			return nil
		}
		f, err := strconv.ParseFloat(m, 64)
		if err != nil {
			return nil
		}
		return f
	default:
		return nil
	}
}

// BooleanValue coerces only values that pass the loose boolean test.
// Ambiguous values ("maybe", "blocked?") coerce to nil rather than a guess.
func BooleanValue(raw any) any {
	switch t := raw.(type) {
	case bool:
		return t
	case string:
		if b, ok := ParseBoolLoose(t); ok {
			return b
		}
		return nil
	case float64:
		if t == 0 {
			return false
		}
		if t == 1 {
			return true
		}
		return nil
	default:
		return nil
	}
}

// ParseBoolLoose accepts the common truthy/falsy spellings, case-insensitive.
func ParseBoolLoose(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "t", "true", "yes", "y":
		return true, true
	case "0", "f", "false", "no", "n":
		return false, true
	default:
		return false, false
	}
}

