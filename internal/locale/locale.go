// Package locale converts raw Danish-formatted text into typed values.
//
// Exports from the line-of-business system use comma as the decimal separator
// and period as the thousands separator, and write dates in a handful of
// regional encodings. These functions never fail hard: malformed input
// converts to a missing value so that one bad cell cannot abort a file.
package locale

import (
	"math"
	"strings"
	"time"
)

// DateLayouts are tried in this exact order when resolving a date column's
// format. The first layout that parses at least one value in the column wins
// for the whole column; formats are never mixed within one column.
var DateLayouts = []string{
	"02-01-2006", // 01-12-2024
	"02/01/2006", // 01/12/2024
	"20060102",   // 20241201
	"2006-01-02", // 2024-12-01
	"02.01.2006", // 01.12.2024
	"02-01-06",   // 01-12-24
	"02/01/06",   // 01/12/24
}

// CanonicalDateLayout is the normalized textual date form the warehouse
// stores: fixed-width ddmmyyyy.
const CanonicalDateLayout = "02012006"

// autoLayouts is the bounded day-first fallback used when none of the fixed
// DateLayouts parses anything in a column.
var autoLayouts = []string{
	"2-1-2006", "2/1/2006", "2.1.2006",
	"2-1-06", "2/1/06",
	"2006-1-2",
	"02-01-2006 15:04:05", "2006-01-02 15:04:05",
	"2 January 2006", "2 Jan 2006",
}

// ParseFloat converts Danish-formatted numeric text to a float64.
// Both separators present: period is grouping, comma is decimal.
// Only a comma: decimal separator. Neither: parsed as-is.
func ParseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	hasDot := strings.Contains(s, ".")
	hasComma := strings.Contains(s, ",")
	switch {
	case hasDot && hasComma:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	case hasComma:
		s = strings.ReplaceAll(s, ",", ".")
	}
	f, err := parseFloatStrict(s)
	if err != nil {
		return 0, false
	}
	return f, true
}

// ParseInt converts grouped integer text ("1.234" -> 1234) to an int64,
// flooring any fractional remainder. Text containing a comma is fractional
// under the decimal convention and must be redirected to ParseFloat at the
// column level before this is called.
func ParseInt(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	s = strings.ReplaceAll(s, ".", "")
	f, err := parseFloatStrict(s)
	if err != nil {
		return 0, false
	}
	return int64(math.Floor(f)), true
}

// ParseDate parses s under one fixed layout.
func ParseDate(s, layout string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// ParseDateAuto is the locale-agnostic fallback with day-before-month
// preference, tried only after every fixed layout failed for a column.
func ParseDateAuto(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range DateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	for _, layout := range autoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// DetectDateLayout returns the first layout in DateLayouts that parses at
// least one of the given values. The empty string with ok=false means no
// fixed layout matched anything.
func DetectDateLayout(values []string) (string, bool) {
	for _, layout := range DateLayouts {
		for _, v := range values {
			if _, ok := ParseDate(v, layout); ok {
				return layout, true
			}
		}
	}
	return "", false
}

// Canonical renders a parsed date in the warehouse's ddmmyyyy form.
func Canonical(t time.Time) string {
	return t.Format(CanonicalDateLayout)
}
