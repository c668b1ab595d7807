// Package pipeline wires the detection flow: validate, normalise, score,
// classify, enrich. Each batch is processed to completion before any alert
// becomes visible; there is no partial-result streaming.
package pipeline

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/kratosops/warroom/internal/cache"
	"github.com/kratosops/warroom/internal/classify"
	"github.com/kratosops/warroom/internal/detect"
	"github.com/kratosops/warroom/internal/geo"
	"github.com/kratosops/warroom/internal/ingest"
	"github.com/kratosops/warroom/internal/models"
)

// Options carries the per-run detection knobs. A zero Contamination and a
// nil Seed select the pipeline's configured defaults; a non-nil Seed is used
// as given, so an explicit seed of 0 is honoured.
type Options struct {
	Contamination float64
	Seed          *int64
}

// Defaults are the configured fallback knobs for runs that do not override
// them.
type Defaults struct {
	Contamination float64
	Seed          int64
}

// Result is the outcome of one detection run. Alerts are created once here
// and never mutated afterwards; a new run discards the previous batch.
type Result struct {
	Events      []models.Event
	Scored      []models.ScoredEvent
	Alerts      []models.Alert
	FromCache   bool
	ProcessedAt time.Time
}

// Pipeline orchestrates the synchronous detection flow for one batch.
type Pipeline struct {
	logger   *slog.Logger
	scorer   *detect.Scorer
	enricher *geo.Enricher
	cache    cache.Provider
	cacheTTL time.Duration
	defaults Defaults
}

// New constructs a Pipeline. cacheProvider may be nil to disable scoring
// memoisation; zero-value defaults fall back to the reference constants.
func New(logger *slog.Logger, scorer *detect.Scorer, enricher *geo.Enricher, cacheProvider cache.Provider, cacheTTL time.Duration, defaults Defaults) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if scorer == nil {
		scorer = detect.NewScorer(logger)
	}
	if enricher == nil {
		enricher = geo.NewEnricher(logger, nil, nil, 0)
	}
	if cacheProvider == nil {
		cacheProvider = cache.NoopProvider{}
	}
	if defaults.Contamination <= 0 || defaults.Contamination >= 1 {
		defaults.Contamination = detect.DefaultContamination
	}
	if defaults.Seed == 0 {
		defaults.Seed = detect.DefaultSeed
	}
	return &Pipeline{
		logger:   logger,
		scorer:   scorer,
		enricher: enricher,
		cache:    cacheProvider,
		cacheTTL: cacheTTL,
		defaults: defaults,
	}
}

// Run executes the detection flow over a raw batch. Schema problems and a
// fully unparseable timestamp column abort the batch; everything downstream
// degrades per row instead of failing.
func (p *Pipeline) Run(ctx context.Context, records []models.RawRecord, opts Options) (Result, error) {
	if err := ingest.ValidateBatch(records); err != nil {
		return Result{}, fmt.Errorf("validate batch: %w", err)
	}

	events, err := ingest.NormalizeBatch(records)
	if err != nil {
		return Result{}, err
	}

	contamination := opts.Contamination
	if contamination <= 0 || contamination >= 1 {
		contamination = p.defaults.Contamination
	}
	seed := p.defaults.Seed
	if opts.Seed != nil {
		seed = *opts.Seed
	}

	scored, fromCache := p.scoreWithCache(ctx, events, contamination, seed)

	alerts := make([]models.Alert, 0)
	for _, se := range scored {
		if !se.IsOutlier {
			continue
		}
		alerts = append(alerts, models.Alert{
			Event:    se.Event,
			Severity: classify.Severity(se.BytesSent, se.FailedLogins),
		})
	}
	alerts = p.enricher.Enrich(ctx, alerts)

	p.logger.Info("batch processed",
		slog.Int("events", len(events)),
		slog.Int("alerts", len(alerts)),
		slog.Bool("scores_cached", fromCache),
	)

	return Result{
		Events:      events,
		Scored:      scored,
		Alerts:      alerts,
		FromCache:   fromCache,
		ProcessedAt: time.Now().UTC(),
	}, nil
}

// scoreWithCache memoises labels per (batch content, contamination, seed) so
// window scrubs and filter changes never re-fit the model.
func (p *Pipeline) scoreWithCache(ctx context.Context, events []models.Event, contamination float64, seed int64) ([]models.ScoredEvent, bool) {
	key := batchKey(events, contamination, seed)

	if payload, err := p.cache.Get(ctx, key); err == nil {
		var labels []bool
		if err := json.Unmarshal(payload, &labels); err == nil && len(labels) == len(events) {
			scored := make([]models.ScoredEvent, len(events))
			for i, ev := range events {
				scored[i] = models.ScoredEvent{Event: ev, IsOutlier: labels[i]}
			}
			return scored, true
		}
		// A stale or truncated entry is treated as a miss.
		_ = p.cache.Del(ctx, key)
	}

	scored := p.scorer.Score(events, contamination, seed)

	labels := make([]bool, len(scored))
	for i, se := range scored {
		labels[i] = se.IsOutlier
	}
	if payload, err := json.Marshal(labels); err == nil {
		if err := p.cache.Set(ctx, key, payload, p.cacheTTL); err != nil {
			p.logger.Debug("score cache write failed", slog.Any("error", err))
		}
	}
	return scored, false
}

// batchKey hashes the feature-relevant content of the batch together with
// the scoring options. Two batches with identical rows, contamination and
// seed share labels; any difference changes the key. Strings are
// length-prefixed so adjacent fields cannot collide across row layouts.
func batchKey(events []models.Event, contamination float64, seed int64) string {
	digest := xxhash.New()
	var buf [8]byte
	writeInt := func(v int64) {
		binary.LittleEndian.PutUint64(buf[:], uint64(v))
		_, _ = digest.Write(buf[:])
	}
	writeString := func(s string) {
		writeInt(int64(len(s)))
		_, _ = digest.WriteString(s)
	}
	for _, ev := range events {
		writeInt(ev.Timestamp.UnixNano())
		writeString(ev.SourceID)
		writeString(ev.DestID)
		writeInt(int64(ev.BytesSent))
		writeInt(int64(ev.FailedLogins))
	}
	return fmt.Sprintf("warroom:scores:%016x:c%g:s%d", digest.Sum64(), contamination, seed)
}
