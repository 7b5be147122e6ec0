// Package classify suggests a column type from a bounded prefix sample of
// raw text values. It is a deliberate speed-over-exhaustiveness heuristic:
// only the first SampleSize non-null values are inspected, and anything
// ambiguous falls back to text.
package classify

import (
	"regexp"
	"strings"
)

// Hint is the suggested type for a column.
type Hint string

const (
	HintText    Hint = "text"
	HintDate    Hint = "date"
	HintInteger Hint = "integer"
	HintFloat   Hint = "float"
)

// SampleSize bounds how many non-null values are inspected per column.
const SampleSize = 100

var datePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\d{1,2}[-/.]\d{1,2}[-/.]\d{2,4}`),
	regexp.MustCompile(`^\d{4}-\d{1,2}-\d{1,2}`),
}

var digitsOnly = regexp.MustCompile(`^\d+$`)

// Suggest classifies a column from its non-null sample values, first match
// wins:
//
//  1. empty sample -> text
//  2. any value shaped like a date -> date
//  3. all values digits after stripping separators -> integer,
//     or float if any sampled value contained a comma
//  4. otherwise -> text
func Suggest(values []string) Hint {
	if len(values) > SampleSize {
		values = values[:SampleSize]
	}
	if len(values) == 0 {
		return HintText
	}

	for _, p := range datePatterns {
		for _, v := range values {
			if p.MatchString(v) {
				return HintDate
			}
		}
	}

	hasComma := false
	numeric := true
	for _, v := range values {
		if strings.Contains(v, ",") {
			hasComma = true
		}
		stripped := strings.NewReplacer(".", "", ",", "").Replace(v)
		if !digitsOnly.MatchString(stripped) {
			numeric = false
			break
		}
	}
	if numeric {
		if hasComma {
			return HintFloat
		}
		return HintInteger
	}

	return HintText
}
