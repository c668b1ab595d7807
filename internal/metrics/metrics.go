package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels detection runs that produced a result.
	OutcomeSuccess = "success"
	// OutcomeError labels detection runs rejected by validation or normalisation.
	OutcomeError = "error"
	// OutcomeCached labels runs served from the scoring cache without a model fit.
	OutcomeCached = "cached"
)

// Geo lookup result labels.
const (
	GeoResultPrivate  = "private"
	GeoResultStatic   = "static"
	GeoResultExternal = "external"
	GeoResultDegraded = "degraded"
)

var (
	detectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "warroom",
			Name:      "detections_total",
			Help:      "Total number of detection runs handled, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	detectionDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "warroom",
			Name:      "detection_seconds",
			Help:      "Detection run latency in seconds, including enrichment.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 8},
		},
	)

	alertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "warroom",
			Name:      "alerts_total",
			Help:      "Alerts produced by detection runs, partitioned by severity.",
		},
		[]string{"severity"},
	)

	geoLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "warroom",
			Name:      "geo_lookups_total",
			Help:      "Geo resolutions, partitioned by how the coordinate was obtained.",
		},
		[]string{"result"},
	)
)

// Register attaches warroom collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		detectionsTotal,
		detectionDurationSeconds,
		alertsTotal,
		geoLookupsTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveDetection records a detection run duration and outcome label.
func ObserveDetection(duration time.Duration, outcome string) {
	switch outcome {
	case OutcomeError, OutcomeCached:
	default:
		outcome = OutcomeSuccess
	}
	detectionsTotal.WithLabelValues(outcome).Inc()
	if duration < 0 {
		duration = 0
	}
	detectionDurationSeconds.Observe(duration.Seconds())
}

// ObserveAlert counts one produced alert by severity.
func ObserveAlert(severity string) {
	alertsTotal.WithLabelValues(severity).Inc()
}

// ObserveGeoLookup counts one geo resolution by result kind.
func ObserveGeoLookup(result string) {
	geoLookupsTotal.WithLabelValues(result).Inc()
}
