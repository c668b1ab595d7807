// Package report aggregates a window's visible alerts for the dashboard and
// export collaborators: severity counts, trend buckets, heat points, and a
// most-recent-first feed.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/kratosops/warroom/internal/models"
	"github.com/kratosops/warroom/internal/utils"
)

// TrendBucket is an aggregated alert count for one time bucket.
type TrendBucket struct {
	Start time.Time `json:"start"`
	Count int       `json:"count"`
}

// SourceCount ranks a source identifier by alert volume.
type SourceCount struct {
	SourceID string `json:"source_id"`
	Count    int    `json:"count"`
}

// HeatPoint is a renderable map coordinate. Unlocated alerts never become
// heat points.
type HeatPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// FeedLine is one human-readable threat-feed entry.
type FeedLine struct {
	Timestamp    time.Time       `json:"timestamp"`
	Severity     models.Severity `json:"severity"`
	SourceID     string          `json:"source_id"`
	DestID       string          `json:"dest_id"`
	BytesSent    int             `json:"bytes_sent"`
	FailedLogins int             `json:"failed_logins"`
}

func (l FeedLine) String() string {
	return fmt.Sprintf("[%s] %s | %s -> %s | failed_logins=%d bytes=%d",
		l.Timestamp.Format(time.RFC3339), l.Severity, l.SourceID, l.DestID, l.FailedLogins, l.BytesSent)
}

// Summary is the aggregate view of one window's visible alerts.
type Summary struct {
	TotalEvents    int                     `json:"total_events"`
	VisibleAlerts  int                     `json:"visible_alerts"`
	SeverityCounts map[models.Severity]int `json:"severity_counts"`
	Trend          []TrendBucket           `json:"trend"`
	HeatPoints     []HeatPoint             `json:"heat_points"`
	TopSources     []SourceCount           `json:"top_sources"`
	Feed           []FeedLine              `json:"feed"`
}

const feedLimit = 10

// BuildSummary aggregates visible alerts against the full batch size.
// bucket controls trend granularity and defaults to one hour.
func BuildSummary(totalEvents int, visible []models.Alert, bucket time.Duration) Summary {
	if bucket <= 0 {
		bucket = time.Hour
	}

	summary := Summary{
		TotalEvents:    totalEvents,
		VisibleAlerts:  len(visible),
		SeverityCounts: make(map[models.Severity]int, 3),
		HeatPoints:     Heat(visible),
	}

	buckets := make(map[time.Time]int)
	sources := make(map[string]int)
	for _, alert := range visible {
		summary.SeverityCounts[alert.Severity]++
		sources[alert.SourceID]++
		if alert.HasTimestamp() {
			buckets[utils.FloorTo(alert.Timestamp, bucket)]++
		}
	}

	summary.Trend = make([]TrendBucket, 0, len(buckets))
	for start, count := range buckets {
		summary.Trend = append(summary.Trend, TrendBucket{Start: start, Count: count})
	}
	sort.Slice(summary.Trend, func(i, j int) bool {
		return summary.Trend[i].Start.Before(summary.Trend[j].Start)
	})

	summary.TopSources = make([]SourceCount, 0, len(sources))
	for src, count := range sources {
		summary.TopSources = append(summary.TopSources, SourceCount{SourceID: src, Count: count})
	}
	sort.Slice(summary.TopSources, func(i, j int) bool {
		if summary.TopSources[i].Count != summary.TopSources[j].Count {
			return summary.TopSources[i].Count > summary.TopSources[j].Count
		}
		return summary.TopSources[i].SourceID < summary.TopSources[j].SourceID
	})

	summary.Feed = Feed(visible, feedLimit)
	return summary
}

// Heat returns the renderable coordinates of the visible set. The (0,0)
// sentinel means "no location" and is filtered out before any spatial
// aggregation.
func Heat(visible []models.Alert) []HeatPoint {
	points := make([]HeatPoint, 0, len(visible))
	for _, alert := range visible {
		if !alert.Located() {
			continue
		}
		points = append(points, HeatPoint{Lat: alert.Lat, Lon: alert.Lon})
	}
	return points
}

// Feed returns up to limit feed lines, most recent first. Ties keep batch
// order reversed so the newest arrival leads.
func Feed(visible []models.Alert, limit int) []FeedLine {
	if limit <= 0 {
		limit = feedLimit
	}
	ordered := append([]models.Alert(nil), visible...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.After(ordered[j].Timestamp)
	})
	if len(ordered) > limit {
		ordered = ordered[:limit]
	}

	feed := make([]FeedLine, 0, len(ordered))
	for _, alert := range ordered {
		feed = append(feed, FeedLine{
			Timestamp:    alert.Timestamp,
			Severity:     alert.Severity,
			SourceID:     alert.SourceID,
			DestID:       alert.DestID,
			BytesSent:    alert.BytesSent,
			FailedLogins: alert.FailedLogins,
		})
	}
	return feed
}

// WriteCSV renders the visible set in the downstream export contract:
// timestamp, source_id, dest_id, bytes_sent, failed_logins, severity, lat, lon.
func WriteCSV(w io.Writer, visible []models.Alert) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"timestamp", "source_id", "dest_id", "bytes_sent", "failed_logins", "severity", "lat", "lon"}); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, alert := range visible {
		ts := ""
		if alert.HasTimestamp() {
			ts = alert.Timestamp.Format(time.RFC3339)
		}
		row := []string{
			ts,
			alert.SourceID,
			alert.DestID,
			strconv.Itoa(alert.BytesSent),
			strconv.Itoa(alert.FailedLogins),
			string(alert.Severity),
			strconv.FormatFloat(alert.Lat, 'f', -1, 64),
			strconv.FormatFloat(alert.Lon, 'f', -1, 64),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}
