package messages

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	// EarliestPlausible is the lower bound of a usable message date.
	EarliestPlausible = time.Date(1990, time.January, 1, 0, 0, 0, 0, time.UTC)
	// FutureTolerance is how far ahead of now a message date may lie.
	FutureTolerance = 2 * 365 * 24 * time.Hour
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// SafeTimestamp maps a created_at value to unix milliseconds. Values that do
// not parse, or that lie before 1990 or more than two years after now, map to
// 0 so they sort first instead of failing.
func SafeTimestamp(raw string, now time.Time) int64 {
	t, ok := parseTimestamp(strings.TrimSpace(raw))
	if !ok {
		return 0
	}
	if t.Before(EarliestPlausible) || t.After(now.Add(FutureTolerance)) {
		return 0
	}
	return t.UnixMilli()
}

func parseTimestamp(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	if isDigits(raw) {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return time.Time{}, false
		}
		// 11+ digits cannot be seconds within the plausible window.
		if len(raw) > 10 {
			return time.UnixMilli(n).UTC(), true
		}
		return time.Unix(n, 0).UTC(), true
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// SortByTimestamp orders records ascending by safe timestamp. The sort is
// stable, equal timestamps keep their incoming order.
func SortByTimestamp(records []Message) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp < records[j].Timestamp
	})
}
