package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kratosops/warroom/internal/metrics"
	"github.com/kratosops/warroom/internal/models"
	"github.com/kratosops/warroom/internal/pipeline"
	"github.com/kratosops/warroom/internal/report"
	"github.com/kratosops/warroom/internal/respond"
	"github.com/kratosops/warroom/internal/timeline"
	"github.com/kratosops/warroom/internal/utils"
)

// ErrSessionNotFound is returned for lookups against unknown session IDs.
var ErrSessionNotFound = errors.New("session not found")

// Session is one triage view over a processed batch: the immutable alert set
// plus the mutable playback cursor. Accessors return copies so callers never
// observe a session mid-mutation.
type Session struct {
	ID          string                 `json:"id"`
	CreatedAt   time.Time              `json:"created_at"`
	TotalEvents int                    `json:"total_events"`
	TotalAlerts int                    `json:"total_alerts"`
	FromCache   bool                   `json:"scores_cached"`
	Playback    timeline.PlaybackState `json:"playback"`

	alerts []models.Alert
}

// Alerts returns the session's full alert set.
func (s Session) Alerts() []models.Alert {
	return s.alerts
}

// defaultMaxSessions bounds the in-memory session registry. The oldest
// session is evicted when a new detection run would exceed it.
const defaultMaxSessions = 64

type sessionEntry struct {
	mu      sync.Mutex
	seq     uint64
	session Session
}

// TriageService owns detection runs and the sessions they produce. Playback
// mutations are serialised per session; detection runs are independent.
type TriageService struct {
	logger      *slog.Logger
	pipeline    *pipeline.Pipeline
	playbackCfg timeline.Config
	rules       *respond.RuleEngine
	latencies   *utils.LatencyTracker

	mu          sync.RWMutex
	sessions    map[string]*sessionEntry
	maxSessions int
	seq         uint64
}

// NewTriageService constructs the service facade.
func NewTriageService(logger *slog.Logger, pipe *pipeline.Pipeline, playbackCfg timeline.Config, rules *respond.RuleEngine) *TriageService {
	if logger == nil {
		logger = slog.Default()
	}
	if pipe == nil {
		pipe = pipeline.New(logger, nil, nil, nil, 0, pipeline.Defaults{})
	}
	return &TriageService{
		logger:      logger,
		pipeline:    pipe,
		playbackCfg: playbackCfg,
		rules:       rules,
		latencies:   utils.NewLatencyTracker(1024),
		sessions:    make(map[string]*sessionEntry),
		maxSessions: defaultMaxSessions,
	}
}

// RunDetection processes a raw batch and opens a new session over the result.
// The playback window spans the batch's usable timestamps.
func (s *TriageService) RunDetection(ctx context.Context, records []models.RawRecord, opts pipeline.Options) (Session, error) {
	start := time.Now()
	result, err := s.pipeline.Run(ctx, records, opts)
	duration := time.Since(start)
	if err != nil {
		metrics.ObserveDetection(duration, metrics.OutcomeError)
		s.logger.Error("detection run failed", slog.Any("error", err))
		return Session{}, err
	}

	outcome := metrics.OutcomeSuccess
	if result.FromCache {
		outcome = metrics.OutcomeCached
	}
	metrics.ObserveDetection(duration, outcome)
	for _, alert := range result.Alerts {
		metrics.ObserveAlert(string(alert.Severity))
	}

	s.latencies.Observe(duration)
	if count := s.latencies.Count(); count >= 20 && count%20 == 0 {
		p95 := s.latencies.Percentile(95)
		s.logger.Info("detection latency", slog.Duration("p95", p95), slog.Int("samples", count))
	}

	earliest, latest := timestampSpan(result.Events)
	session := Session{
		ID:          uuid.NewString(),
		CreatedAt:   result.ProcessedAt,
		TotalEvents: len(result.Events),
		TotalAlerts: len(result.Alerts),
		FromCache:   result.FromCache,
		Playback:    timeline.NewState(earliest, latest, s.playbackCfg),
		alerts:      result.Alerts,
	}

	s.mu.Lock()
	s.seq++
	s.sessions[session.ID] = &sessionEntry{seq: s.seq, session: session}
	s.evictOldestLocked()
	s.mu.Unlock()

	s.logger.Info("session opened",
		slog.String("session_id", session.ID),
		slog.Int("events", session.TotalEvents),
		slog.Int("alerts", session.TotalAlerts),
	)
	return session, nil
}

// Session returns a snapshot of the identified session.
func (s *TriageService) Session(id string) (Session, error) {
	entry, err := s.entry(id)
	if err != nil {
		return Session{}, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.session, nil
}

// Advance steps playback forward. A paused or exhausted timeline is a no-op.
func (s *TriageService) Advance(id string) (Session, error) {
	return s.mutate(id, timeline.Advance)
}

// Scrub jumps playback to the requested tick, clamped to the valid range.
func (s *TriageService) Scrub(id string, to int) (Session, error) {
	return s.mutate(id, func(state timeline.PlaybackState) timeline.PlaybackState {
		return timeline.Scrub(state, to)
	})
}

// ResetPlayback returns the cursor to the start of the timeline.
func (s *TriageService) ResetPlayback(id string) (Session, error) {
	return s.mutate(id, timeline.Reset)
}

// TogglePlay switches the session between Idle and Playing.
func (s *TriageService) TogglePlay(id string) (Session, error) {
	return s.mutate(id, timeline.TogglePlay)
}

// ToggleMute flips the session's alert-feed mute flag.
func (s *TriageService) ToggleMute(id string) (Session, error) {
	return s.mutate(id, timeline.ToggleMute)
}

// VisibleAlerts returns the alerts inside the session's current window,
// optionally narrowed by severity.
func (s *TriageService) VisibleAlerts(id string, f timeline.Filter) ([]models.Alert, error) {
	entry, err := s.entry(id)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return timeline.Visible(entry.session.alerts, entry.session.Playback, f), nil
}

// Summary aggregates the session's current window into dashboard figures.
func (s *TriageService) Summary(id string, f timeline.Filter) (report.Summary, error) {
	entry, err := s.entry(id)
	if err != nil {
		return report.Summary{}, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	visible := timeline.Visible(entry.session.alerts, entry.session.Playback, f)
	return report.BuildSummary(entry.session.TotalEvents, visible, entry.session.Playback.Tick), nil
}

// Countermeasures builds the simulated response plan for the current window.
func (s *TriageService) Countermeasures(id string, f timeline.Filter) (respond.Plan, error) {
	entry, err := s.entry(id)
	if err != nil {
		return respond.Plan{}, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	visible := timeline.Visible(entry.session.alerts, entry.session.Playback, f)
	return respond.BuildPlan(s.rules, visible), nil
}

// WriteAlertsCSV streams the current window's alerts as CSV.
func (s *TriageService) WriteAlertsCSV(w io.Writer, id string, f timeline.Filter) error {
	visible, err := s.VisibleAlerts(id, f)
	if err != nil {
		return err
	}
	return report.WriteCSV(w, visible)
}

// LatencyP95 returns the current p95 detection latency.
func (s *TriageService) LatencyP95() time.Duration {
	return s.latencies.Percentile(95)
}

// evictOldestLocked drops lowest-sequence sessions until the registry fits
// the cap. Callers must hold s.mu.
func (s *TriageService) evictOldestLocked() {
	for s.maxSessions > 0 && len(s.sessions) > s.maxSessions {
		oldestID := ""
		oldestSeq := uint64(0)
		for id, entry := range s.sessions {
			if oldestID == "" || entry.seq < oldestSeq {
				oldestID = id
				oldestSeq = entry.seq
			}
		}
		delete(s.sessions, oldestID)
		s.logger.Debug("session evicted", slog.String("session_id", oldestID))
	}
}

func (s *TriageService) entry(id string) (*sessionEntry, error) {
	s.mu.RLock()
	entry, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return entry, nil
}

func (s *TriageService) mutate(id string, op func(timeline.PlaybackState) timeline.PlaybackState) (Session, error) {
	entry, err := s.entry(id)
	if err != nil {
		return Session{}, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	entry.session.Playback = op(entry.session.Playback)
	return entry.session, nil
}

// timestampSpan finds the earliest and latest usable timestamps in a sorted
// batch. Rows carrying the unknown-timestamp sentinel sort first and are
// skipped.
func timestampSpan(events []models.Event) (time.Time, time.Time) {
	var earliest, latest time.Time
	for _, ev := range events {
		if !ev.HasTimestamp() {
			continue
		}
		earliest = ev.Timestamp
		break
	}
	if len(events) > 0 {
		last := events[len(events)-1]
		if last.HasTimestamp() {
			latest = last.Timestamp
		}
	}
	return earliest, latest
}
