package coerce

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// serialEpoch is the Excel day-serial epoch. Excel counts days from
// 1899-12-30 (the off-by-two accounts for the fictitious 1900 leap day).
var serialEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// dateLayouts are tried in order for plainly formatted date strings.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02.01.2006",
	"02/01/2006",
	"01/02/2006",
}

var (
	dotDatePattern  = regexp.MustCompile(`^(\d{1,2})\.(\d{1,2})\.(\d{2}|\d{4})$`)
	monthYearSuffix = regexp.MustCompile(`^([A-Za-z]+)'?(\d{2})$`)
)

var monthsByPrefix = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

// ParseDate interprets the date shapes that occur in fleet spreadsheets.
//
// Checked in order, first match wins:
//  1. native time.Time values (XLSX cells already typed as dates)
//  2. numbers, treated as Excel day serials
//  3. standard layouts (RFC3339, ISO dates, dotted and slashed dates)
//  4. "D.M.YY" / "D.M.YYYY" dot dates; two-digit years land in 20xx
//  5. "Sep'20" / "September20" month-year tokens, first of the month
//
// The result is always UTC. Anything else reports ok=false.
func ParseDate(raw any) (time.Time, bool) {
	switch t := raw.(type) {
	case time.Time:
		if t.IsZero() {
			return time.Time{}, false
		}
		return t.UTC(), true
	case float64:
		return fromSerial(t)
	case int64:
		return fromSerial(float64(t))
	case int:
		return fromSerial(float64(t))
	case string:
		return parseDateString(t)
	default:
		return time.Time{}, false
	}
}

func fromSerial(serial float64) (time.Time, bool) {
	if serial <= 0 || serial > 1e7 {
		return time.Time{}, false
	}
	ms := int64(serial * 86400000)
	return serialEpoch.Add(time.Duration(ms) * time.Millisecond), true
}

func parseDateString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	// Pure numbers are day serials, not years: "45292" means 2024-01-01.
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return fromSerial(n)
	}

	for _, lay := range dateLayouts {
		if t, err := time.Parse(lay, s); err == nil {
			return t.UTC(), true
		}
	}

	if m := dotDatePattern.FindStringSubmatch(s); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		if len(m[3]) == 2 {
			year += 2000
		}
		return buildDate(year, month, day)
	}

	if m := monthYearSuffix.FindStringSubmatch(s); m != nil {
		month, ok := monthsByPrefix[strings.ToLower(m[1])[:min(3, len(m[1]))]]
		if !ok || !validMonthName(m[1]) {
			return time.Time{}, false
		}
		yy, _ := strconv.Atoi(m[2])
		return time.Date(2000+yy, month, 1, 0, 0, 0, 0, time.UTC), true
	}

	return time.Time{}, false
}

// validMonthName accepts full month names and their three-letter
// abbreviations, case-insensitive. "m" or "ma" alone is rejected.
func validMonthName(name string) bool {
	n := strings.ToLower(name)
	if len(n) < 3 {
		return false
	}
	for m := time.January; m <= time.December; m++ {
		full := strings.ToLower(m.String())
		if n == full || n == full[:3] {
			return true
		}
	}
	return false
}

func buildDate(year, month, day int) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// Reject rollovers like 31.2.24 -> March 2.
	if t.Day() != day || int(t.Month()) != month {
		return time.Time{}, false
	}
	return t, true
}
