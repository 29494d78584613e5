// Package normalize parses the loosely formatted numbers and timestamps found in
// analysis-history responses and rendered activity pages.
package normalize

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// FormatError reports a numeric or date literal that could not be interpreted.
// It is always local to one field.
type FormatError struct {
	Input  string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("cannot parse %q: %s", e.Input, e.Reason)
}

func formatErr(input, reason string) error {
	return &FormatError{Input: input, Reason: reason}
}

// ParseCount interprets a rendered count such as "1,234", "2k" or "1.5k".
// Thousands separators must group digits in threes. A k suffix multiplies by
// 1000 and truncates any fractional remainder. Input mixing ',' and 'k' is
// rejected as ambiguous.
func ParseCount(raw string) (int, error) {
	s := strings.TrimSpace(raw)
	if s == "" || !containsDigit(s) {
		return 0, formatErr(raw, "no digits")
	}

	lower := strings.ToLower(s)
	hasK := strings.HasSuffix(lower, "k")
	if strings.Contains(s, ",") && strings.ContainsAny(lower, "k") {
		return 0, formatErr(raw, "both thousands separator and k suffix")
	}

	if hasK {
		return parseKilo(raw, strings.TrimSpace(s[:len(s)-1]))
	}
	if strings.Contains(s, ",") {
		digits, err := stripGrouping(raw, s)
		if err != nil {
			return 0, err
		}
		s = digits
	}
	if !allDigits(s) {
		return 0, formatErr(raw, "not an integer count")
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, formatErr(raw, err.Error())
	}
	return n, nil
}

// parseKilo handles "<int>[.<frac>]k" using integer arithmetic so that
// "1.2k" is exactly 1200 and "1.2345k" truncates to 1234.
func parseKilo(raw, num string) (int, error) {
	intPart, fracPart, hasDot := strings.Cut(num, ".")
	if intPart == "" || !allDigits(intPart) {
		return 0, formatErr(raw, "invalid k-suffixed count")
	}
	if hasDot && (fracPart == "" || !allDigits(fracPart)) {
		return 0, formatErr(raw, "invalid k-suffixed count")
	}
	whole, err := strconv.Atoi(intPart)
	if err != nil {
		return 0, formatErr(raw, err.Error())
	}
	if whole > (math.MaxInt-999)/1000 {
		return 0, formatErr(raw, "k-suffixed count out of range")
	}
	for len(fracPart) < 3 {
		fracPart += "0"
	}
	milli, err := strconv.Atoi(fracPart[:3])
	if err != nil {
		return 0, formatErr(raw, err.Error())
	}
	return whole*1000 + milli, nil
}

// stripGrouping removes ',' separators after checking they group digits in threes.
func stripGrouping(raw, s string) (string, error) {
	groups := strings.Split(s, ",")
	if len(groups[0]) == 0 || len(groups[0]) > 3 || !allDigits(groups[0]) {
		return "", formatErr(raw, "malformed thousands grouping")
	}
	for _, g := range groups[1:] {
		if len(g) != 3 || !allDigits(g) {
			return "", formatErr(raw, "malformed thousands grouping")
		}
	}
	return strings.Join(groups, ""), nil
}

// ParsePercentage returns the numeric value of a rendered percentage such as
// "85.3%". The trailing '%' is optional.
func ParsePercentage(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
	if s == "" || !containsDigit(s) {
		return 0, formatErr(raw, "no numeric value")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, formatErr(raw, "not a number")
	}
	return v, nil
}

// timestampLayouts covers the API form ("+0200"), RFC 3339 ("+02:00" or "Z")
// and the space-separated form written by tabular exports.
var timestampLayouts = []string{
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04:05.999999999-0700",
	time.RFC3339Nano,
	"2006-01-02 15:04:05-07:00",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05-0700",
}

// ParseTimestamp parses an ISO-8601 timestamp carrying a numeric offset (or Z).
// The offset is preserved on the returned time; compare in UTC.
func ParseTimestamp(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, formatErr(raw, "not an ISO-8601 timestamp with offset")
}

// FormatSelectedDate renders t the way the activity page expects its
// selected_date parameter: UTC with a literal "+0000" offset.
func FormatSelectedDate(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05") + "+0000"
}

func containsDigit(s string) bool {
	return strings.ContainsAny(s, "0123456789")
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
