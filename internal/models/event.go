package models

import "time"

// RequiredFields is the set of record fields a batch must carry to be accepted.
var RequiredFields = []string{"timestamp", "source_id", "dest_id", "bytes_sent", "failed_logins"}

// RawRecord is a single ingested record before validation. Fields beyond the
// required set are preserved untouched in Extra after normalisation.
type RawRecord map[string]any

// Event is a validated, normalised network event. Immutable once built;
// identity is positional within its batch.
type Event struct {
	Timestamp    time.Time      `json:"timestamp"`
	SourceID     string         `json:"source_id"`
	DestID       string         `json:"dest_id"`
	BytesSent    int            `json:"bytes_sent"`
	FailedLogins int            `json:"failed_logins"`
	Extra        map[string]any `json:"extra,omitempty"`
}

// HasTimestamp reports whether the event carries a usable timestamp. Events
// whose timestamp failed to parse keep the zero value and are excluded from
// time-based operations.
func (e Event) HasTimestamp() bool {
	return !e.Timestamp.IsZero()
}

// ScoredEvent pairs an Event with its outlier label. Labels are a function of
// the whole batch's feature distribution, not of the row alone.
type ScoredEvent struct {
	Event
	IsOutlier bool `json:"is_outlier"`
}

// Alert is an outlier event enriched with severity and location. Created once
// per detection run and never mutated afterwards.
type Alert struct {
	Event
	Severity Severity `json:"severity"`
	Lat      float64  `json:"lat"`
	Lon      float64  `json:"lon"`
}

// Located reports whether the alert carries a resolved coordinate. The (0,0)
// pair is the "unlocated" sentinel and must never be rendered as a position.
func (a Alert) Located() bool {
	return a.Lat != 0 || a.Lon != 0
}

// Severity captures alert impact tiers.
type Severity string

const (
	SeverityLow    Severity = "Low"
	SeverityMedium Severity = "Medium"
	SeverityHigh   Severity = "High"
)

// ParseSeverity maps user input to a Severity, reporting whether it matched.
func ParseSeverity(value string) (Severity, bool) {
	switch value {
	case string(SeverityLow):
		return SeverityLow, true
	case string(SeverityMedium):
		return SeverityMedium, true
	case string(SeverityHigh):
		return SeverityHigh, true
	}
	return "", false
}
