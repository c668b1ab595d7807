package geo

import (
	"context"
	"log/slog"
	"time"

	"github.com/kratosops/warroom/internal/metrics"
	"github.com/kratosops/warroom/internal/models"
)

// Enricher stamps alerts with coordinates. Resolution order: private or
// reserved ranges go straight to the sentinel, then the static table, then
// the optional external resolver under a bounded timeout. Failures are
// isolated per identifier and degrade to the sentinel; Enrich never returns
// an error.
type Enricher struct {
	logger   *slog.Logger
	static   *StaticResolver
	external Resolver
	timeout  time.Duration
}

// NewEnricher builds an Enricher. external may be nil, in which case unknown
// identifiers simply stay unlocated.
func NewEnricher(logger *slog.Logger, static *StaticResolver, external Resolver, timeout time.Duration) *Enricher {
	if logger == nil {
		logger = slog.Default()
	}
	if static == nil {
		static = NewStaticResolver(DefaultStaticTable())
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Enricher{
		logger:   logger,
		static:   static,
		external: external,
		timeout:  timeout,
	}
}

// Enrich resolves each alert's source identifier and returns the alerts with
// lat/lon set. Repeated identifiers within the batch resolve once.
func (e *Enricher) Enrich(ctx context.Context, alerts []models.Alert) []models.Alert {
	memo := make(map[string]Location, len(alerts))
	enriched := make([]models.Alert, len(alerts))
	for i, alert := range alerts {
		loc, ok := memo[alert.SourceID]
		if !ok {
			loc = e.resolve(ctx, alert.SourceID)
			memo[alert.SourceID] = loc
		}
		alert.Lat = loc.Lat
		alert.Lon = loc.Lon
		enriched[i] = alert
	}
	return enriched
}

// Resolve answers for a single identifier, degrading to the sentinel on any
// lookup failure.
func (e *Enricher) Resolve(ctx context.Context, sourceID string) Location {
	return e.resolve(ctx, sourceID)
}

func (e *Enricher) resolve(ctx context.Context, sourceID string) Location {
	if sourceID == "" {
		return Unlocated
	}

	if PrivateOrReserved(sourceID) {
		metrics.ObserveGeoLookup(metrics.GeoResultPrivate)
		return Unlocated
	}

	if loc, err := e.static.Resolve(ctx, sourceID); err == nil {
		metrics.ObserveGeoLookup(metrics.GeoResultStatic)
		return loc
	}

	if e.external == nil {
		metrics.ObserveGeoLookup(metrics.GeoResultDegraded)
		return Unlocated
	}

	lookupCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	loc, err := e.external.Resolve(lookupCtx, sourceID)
	if err != nil || loc.IsUnlocated() {
		metrics.ObserveGeoLookup(metrics.GeoResultDegraded)
		if err != nil {
			e.logger.Debug("geo lookup degraded", slog.String("source_id", sourceID), slog.Any("error", err))
		}
		return Unlocated
	}

	metrics.ObserveGeoLookup(metrics.GeoResultExternal)
	return loc
}
