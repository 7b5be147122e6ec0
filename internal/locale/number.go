package locale

import (
	"fmt"
	"regexp"
	"strconv"
)

// numericPattern validates plain decimal text after separator normalization.
// It deliberately rejects the exotic forms strconv accepts (hex floats,
// Inf/NaN words, underscores) since the source system never emits them.
var numericPattern = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

func parseFloatStrict(s string) (float64, error) {
	if !numericPattern.MatchString(s) {
		return 0, fmt.Errorf("not numeric: %q", s)
	}
	return strconv.ParseFloat(s, 64)
}
