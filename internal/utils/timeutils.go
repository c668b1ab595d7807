package utils

import (
	"fmt"
	"time"
)

// timestampLayouts are the accepted ingest timestamp formats, tried in order.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTimestamp returns a time from the provided string or an error. Several
// common layouts are accepted because uploaded logs rarely agree on one.
func ParseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("empty time value")
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported time format %q", value)
}

// FloorTo truncates t down to a multiple of step.
func FloorTo(t time.Time, step time.Duration) time.Time {
	return t.Truncate(step)
}

// CeilTo rounds t up to the next multiple of step. A value already on the
// boundary is returned unchanged.
func CeilTo(t time.Time, step time.Duration) time.Time {
	floored := t.Truncate(step)
	if floored.Equal(t) {
		return t
	}
	return floored.Add(step)
}
