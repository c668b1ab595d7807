package ingest

import (
	"fmt"
	"strings"

	"github.com/kratosops/warroom/internal/models"
)

// SchemaError reports that a batch is missing required record fields. The
// whole batch is rejected; there is no partial processing.
type SchemaError struct {
	Missing []string
	Row     int
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("record %d missing required fields: %s", e.Row, strings.Join(e.Missing, ", "))
}

// ValidateBatch checks that every record exposes the required field set
// (timestamp, source_id, dest_id, bytes_sent, failed_logins). It is a pure
// check: on success the batch passes through unchanged. An empty batch is
// valid; the scorer handles it downstream.
func ValidateBatch(records []models.RawRecord) error {
	for i, rec := range records {
		var missing []string
		for _, field := range models.RequiredFields {
			if _, ok := rec[field]; !ok {
				missing = append(missing, field)
			}
		}
		if len(missing) > 0 {
			return &SchemaError{Missing: missing, Row: i}
		}
	}
	return nil
}
