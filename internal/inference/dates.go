package inference

import (
	"strings"
	"time"
	"unicode"

	"github.com/araddon/dateparse"
)

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"01/02/2006 15:04:05",
	"02-Jan-2006",
	"Jan 2, 2006",
	"January 2, 2006",
	time.RFC1123,
	time.RFC1123Z,
}

// ParseDate tries the fixed layouts first and then dateparse in strict mode.
// Strings without any date separator are rejected so bare numbers never
// parse as timestamps.
func ParseDate(s string) (time.Time, bool) {
	if s == "" || !looksLikeDate(s) {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	t, err := dateparse.ParseStrict(s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func looksLikeDate(s string) bool {
	hasDigit := false
	for _, r := range s {
		if unicode.IsDigit(r) {
			hasDigit = true
			break
		}
	}
	return hasDigit && strings.ContainsAny(s, "-/:, ")
}
