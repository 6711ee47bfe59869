package model

import (
	"fmt"
	"regexp"
	"strconv"
)

var quarterPattern = regexp.MustCompile(`^\s*(\d{4})\s*-?\s*[Qq]?0?([1-4])\s*$`)

// ParseQuarter accepts "1990Q4", "1990-Q4", "1990 q4" and "1990-04" forms
func ParseQuarter(s string) (year, quarter int, ok bool) {
	m := quarterPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, false
	}
	year, _ = strconv.Atoi(m[1])
	quarter, _ = strconv.Atoi(m[2])
	return year, quarter, true
}

// CanonicalQuarter returns s as "YYYYQn", or false when s is not a quarter
func CanonicalQuarter(s string) (string, bool) {
	y, q, ok := ParseQuarter(s)
	if !ok {
		return "", false
	}
	return fmt.Sprintf("%dQ%d", y, q), true
}

// QuarterIndex maps a quarter onto a continuous scale so that adjacent
// quarters differ by one
func QuarterIndex(s string) (int, bool) {
	y, q, ok := ParseQuarter(s)
	if !ok {
		return 0, false
	}
	return y*4 + q - 1, true
}
