package ingest

import (
	"errors"
	"testing"
	"time"

	"github.com/kratosops/warroom/internal/models"
)

func validRecord(ts string) models.RawRecord {
	return models.RawRecord{
		"timestamp":     ts,
		"source_id":     "203.0.113.9",
		"dest_id":       "10.0.0.100",
		"bytes_sent":    1200,
		"failed_logins": 2,
	}
}

func TestValidateBatchMissingFields(t *testing.T) {
	records := []models.RawRecord{
		validRecord("2025-01-01T00:00:00Z"),
		{
			"timestamp": "2025-01-01T00:01:00Z",
			"source_id": "10.0.0.1",
		},
	}

	err := ValidateBatch(records)
	if err == nil {
		t.Fatalf("expected schema error, got nil")
	}
	var schemaErr *SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("expected *SchemaError, got %T", err)
	}
	if schemaErr.Row != 1 {
		t.Fatalf("expected offending row 1, got %d", schemaErr.Row)
	}
	if len(schemaErr.Missing) != 3 {
		t.Fatalf("expected 3 missing fields, got %v", schemaErr.Missing)
	}
}

func TestValidateBatchPassesThrough(t *testing.T) {
	records := []models.RawRecord{validRecord("2025-01-01T00:00:00Z")}
	if err := ValidateBatch(records); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ValidateBatch(nil); err != nil {
		t.Fatalf("empty batch should validate, got %v", err)
	}
}

func TestNormalizeBatchCoercion(t *testing.T) {
	records := []models.RawRecord{
		{
			"timestamp":     "2025-01-01 00:05:00",
			"source_id":     "192.168.1.5",
			"dest_id":       "10.0.0.200",
			"bytes_sent":    "1500",
			"failed_logins": -4,
			"protocol":      "tcp",
		},
	}

	events, err := NormalizeBatch(records)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	ev := events[0]
	if ev.BytesSent != 1500 {
		t.Fatalf("expected bytes_sent 1500, got %d", ev.BytesSent)
	}
	if ev.FailedLogins != 0 {
		t.Fatalf("negative failed_logins should clamp to 0, got %d", ev.FailedLogins)
	}
	if !ev.HasTimestamp() {
		t.Fatalf("expected parsed timestamp")
	}
	if ev.Extra["protocol"] != "tcp" {
		t.Fatalf("extra fields must pass through untouched, got %v", ev.Extra)
	}
}

func TestNormalizeBatchPartialTimestampFailure(t *testing.T) {
	records := []models.RawRecord{
		validRecord("not-a-time"),
		validRecord("2025-01-01T00:02:00Z"),
	}

	events, err := NormalizeBatch(records)
	if err != nil {
		t.Fatalf("partial failures must not be fatal: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected both rows kept, got %d", len(events))
	}
	// The sentinel row sorts first and is excluded from time-based ops.
	if events[0].HasTimestamp() {
		t.Fatalf("expected first row to carry the unknown-timestamp sentinel")
	}
	if !events[1].HasTimestamp() {
		t.Fatalf("expected second row timestamp to parse")
	}
}

func TestNormalizeBatchAllTimestampsUnparseable(t *testing.T) {
	records := []models.RawRecord{validRecord("nope"), validRecord("")}

	_, err := NormalizeBatch(records)
	if !errors.Is(err, ErrUnparseableTimestamps) {
		t.Fatalf("expected ErrUnparseableTimestamps, got %v", err)
	}
}

func TestNormalizeBatchStableSort(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	records := []models.RawRecord{
		{
			"timestamp":     base.Add(time.Minute).Format(time.RFC3339),
			"source_id":     "first-at-t1",
			"dest_id":       "d",
			"bytes_sent":    1,
			"failed_logins": 0,
		},
		{
			"timestamp":     base.Format(time.RFC3339),
			"source_id":     "at-t0",
			"dest_id":       "d",
			"bytes_sent":    1,
			"failed_logins": 0,
		},
		{
			"timestamp":     base.Add(time.Minute).Format(time.RFC3339),
			"source_id":     "second-at-t1",
			"dest_id":       "d",
			"bytes_sent":    1,
			"failed_logins": 0,
		},
	}

	events, err := NormalizeBatch(records)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := []string{events[0].SourceID, events[1].SourceID, events[2].SourceID}
	want := []string{"at-t0", "first-at-t1", "second-at-t1"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sort order mismatch at %d: got %v want %v", i, got, want)
		}
	}
}
