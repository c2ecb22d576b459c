package coupon

import (
	"regexp"
	"strings"
	"time"

	"github.com/go-faster/errors"
)

var dateLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02 03:04:05 PM",
	"2006-01-02 03:04 PM",
	"2006-01-02 03PM",
	"2006-01-02 03 PM",
	time.RFC3339,
}

var (
	spaceRun    = regexp.MustCompile(`\s+`)
	meridiemDot = regexp.MustCompile(`(?i)([ap])\.?m\.?`)
	meridiemGap = regexp.MustCompile(`(\S)(AM|PM)\b`)
)

// ErrInvalidDate is returned by ParseTime for unrecognized input.
var ErrInvalidDate = errors.New("invalid date/time format: use 'YYYY-MM-DD HH:MM' or 'YYYY-MM-DD h:MM AM/PM'")

// normalizeDate collapses whitespace and rewrites meridiem spellings like
// "p.m." and "5pm" to the canonical "PM" form with a preceding space.
func normalizeDate(s string) string {
	s = spaceRun.ReplaceAllString(strings.TrimSpace(s), " ")
	s = meridiemDot.ReplaceAllString(s, "${1}M")
	s = strings.ToUpper(s)
	return meridiemGap.ReplaceAllString(s, "$1 $2")
}

// ParseTime parses an administrator-entered timestamp in loc, trying each
// supported layout in turn. Hour-only values ("2025-01-02 5PM") are accepted.
func ParseTime(s string, loc *time.Location) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return time.Time{}, errors.New("date string is required")
	}
	if loc == nil {
		loc = time.UTC
	}
	norm := normalizeDate(s)
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, norm, loc); err == nil {
			return t, nil
		}
		// Single-digit hours ("5 PM") do not satisfy the zero-padded layout.
		if t, err := time.ParseInLocation(strings.Replace(layout, "03", "3", 1), norm, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, ErrInvalidDate
}
