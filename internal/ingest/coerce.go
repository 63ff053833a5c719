package ingest

import (
	"strconv"
	"strings"
	"time"
)

// parseFloat64Or parses a string as a float64, returning def if parsing fails.
// CRM amount fields arrive as strings and are sometimes blank.
func parseFloat64Or(s string, def float64) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return v
}

// parseIntOr parses a string as an integer, returning def if parsing fails.
func parseIntOr(s string, def int) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		// Unit counts occasionally arrive as "2.0".
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return def
		}
		return int(f)
	}
	return v
}

// parseTimeOr parses a CRM timestamp, which may be an ISO-8601 string or an
// epoch-milliseconds number, returning def when neither parses.
func parseTimeOr(s string, def time.Time) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	if strings.Contains(s, "T") {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t
		}
		return def
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return def
	}
	return time.UnixMilli(ms).UTC()
}

// parseTimePtr is parseTimeOr with a nil result instead of a fallback.
func parseTimePtr(s string) *time.Time {
	t := parseTimeOr(s, time.Time{})
	if t.IsZero() {
		return nil
	}
	return &t
}

// normStr trims a string and maps empty to nil for nullable text columns.
func normStr(s string) any {
	t := strings.TrimSpace(s)
	if t == "" {
		return nil
	}
	return t
}

// startOfDay truncates a time to midnight UTC.
func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
