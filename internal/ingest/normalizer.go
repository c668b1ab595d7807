package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kratosops/warroom/internal/models"
	"github.com/kratosops/warroom/internal/utils"
)

// ErrUnparseableTimestamps signals that no row in the batch carried a usable
// timestamp. Partial parse failures are not fatal; only a fully unparseable
// batch is rejected.
var ErrUnparseableTimestamps = errors.New("no parseable timestamps in batch")

// NormalizeBatch coerces a validated batch into canonical events: timestamps
// parsed to time.Time (rows that fail keep the zero sentinel and stay out of
// time-based operations), counters clamped to non-negative ints, and the
// batch stably sorted by timestamp so windowing is well-defined.
func NormalizeBatch(records []models.RawRecord) ([]models.Event, error) {
	events := make([]models.Event, 0, len(records))
	parsed := 0

	for _, rec := range records {
		ts, ok := coerceTimestamp(rec["timestamp"])
		if ok {
			parsed++
		}
		event := models.Event{
			Timestamp:    ts,
			SourceID:     coerceString(rec["source_id"]),
			DestID:       coerceString(rec["dest_id"]),
			BytesSent:    coerceCount(rec["bytes_sent"]),
			FailedLogins: coerceCount(rec["failed_logins"]),
			Extra:        extraFields(rec),
		}
		events = append(events, event)
	}

	if len(records) > 0 && parsed == 0 {
		return nil, utils.NewAppError("normalize", "batch rejected", ErrUnparseableTimestamps)
	}

	// Stable sort keeps the original order for equal timestamps; rows with
	// the zero sentinel gather at the front.
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})

	return events, nil
}

func coerceTimestamp(value any) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		if v.IsZero() {
			return time.Time{}, false
		}
		return v, true
	case string:
		t, err := utils.ParseTimestamp(strings.TrimSpace(v))
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	default:
		return time.Time{}, false
	}
}

func coerceString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

// coerceCount turns string-or-numeric input into a non-negative int.
// Unparseable and negative values clamp to zero rather than failing the row.
func coerceCount(value any) int {
	n := 0
	switch v := value.(type) {
	case int:
		n = v
	case int64:
		n = int(v)
	case float64:
		n = int(v)
	case json.Number:
		if f, err := v.Float64(); err == nil {
			n = int(f)
		}
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			n = int(f)
		}
	}
	if n < 0 {
		return 0
	}
	return n
}

func extraFields(rec models.RawRecord) map[string]any {
	required := make(map[string]struct{}, len(models.RequiredFields))
	for _, f := range models.RequiredFields {
		required[f] = struct{}{}
	}
	var extra map[string]any
	for key, value := range rec {
		if _, ok := required[key]; ok {
			continue
		}
		if extra == nil {
			extra = make(map[string]any)
		}
		extra[key] = value
	}
	return extra
}
