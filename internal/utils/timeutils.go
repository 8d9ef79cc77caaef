package utils

import (
	"fmt"
	"time"
)

// HistoryTimeLayout is the fixed timestamp format used for history rows.
const HistoryTimeLayout = time.RFC3339

// FormatTimestamp renders a history timestamp in UTC.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(HistoryTimeLayout)
}

// ParseTimestamp returns the time encoded in a history row, or an error.
func ParseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("empty time value")
	}
	t, err := time.Parse(HistoryTimeLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time: %w", err)
	}
	return t, nil
}
