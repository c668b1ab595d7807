package services

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/kratosops/warroom/internal/models"
	"github.com/kratosops/warroom/internal/pipeline"
	"github.com/kratosops/warroom/internal/synth"
	"github.com/kratosops/warroom/internal/timeline"
)

func newTestService(t *testing.T) *TriageService {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	pipe := pipeline.New(logger, nil, nil, nil, 0, pipeline.Defaults{})
	return NewTriageService(logger, pipe, timeline.Config{}, nil)
}

func openSession(t *testing.T, svc *TriageService) Session {
	t.Helper()
	records := synth.Batch(synth.Options{Rows: 500, Injected: 15, Seed: 7})
	session, err := svc.RunDetection(context.Background(), records, pipeline.Options{})
	if err != nil {
		t.Fatalf("RunDetection: %v", err)
	}
	return session
}

func TestRunDetectionOpensSession(t *testing.T) {
	svc := newTestService(t)
	session := openSession(t, svc)

	if session.ID == "" {
		t.Fatal("expected a session ID")
	}
	if session.TotalEvents != 500 {
		t.Fatalf("TotalEvents = %d, want 500", session.TotalEvents)
	}
	if session.TotalAlerts == 0 {
		t.Fatal("expected alerts from the injected rows")
	}
	// 500 minute-spaced rows span just over 8 hours of timeline.
	if session.Playback.TotalTicks != 9 {
		t.Fatalf("TotalTicks = %d, want 9", session.Playback.TotalTicks)
	}
	if session.Playback.Position != 0 || session.Playback.Playing {
		t.Fatalf("new session should start paused at position 0, got %+v", session.Playback)
	}

	got, err := svc.Session(session.ID)
	if err != nil {
		t.Fatalf("Session lookup: %v", err)
	}
	if got.ID != session.ID || got.TotalAlerts != session.TotalAlerts {
		t.Fatalf("lookup mismatch: %+v vs %+v", got, session)
	}
}

func TestUnknownSessionID(t *testing.T) {
	svc := newTestService(t)

	if _, err := svc.Session("nope"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("Session: got %v, want ErrSessionNotFound", err)
	}
	if _, err := svc.Advance("nope"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("Advance: got %v, want ErrSessionNotFound", err)
	}
	if _, err := svc.VisibleAlerts("nope", timeline.Filter{}); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("VisibleAlerts: got %v, want ErrSessionNotFound", err)
	}
}

func TestPlaybackNavigation(t *testing.T) {
	svc := newTestService(t)
	session := openSession(t, svc)

	// Paused: advance is a no-op.
	state, err := svc.Advance(session.ID)
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if state.Playback.Position != 0 {
		t.Fatalf("advance while paused moved to %d", state.Playback.Position)
	}

	if state, err = svc.TogglePlay(session.ID); err != nil || !state.Playback.Playing {
		t.Fatalf("TogglePlay: err=%v playing=%v", err, state.Playback.Playing)
	}
	if state, err = svc.Advance(session.ID); err != nil || state.Playback.Position != 1 {
		t.Fatalf("Advance: err=%v position=%d, want 1", err, state.Playback.Position)
	}

	// Scrub clamps to the terminal tick and keeps the play flag.
	if state, err = svc.Scrub(session.ID, 500); err != nil {
		t.Fatalf("Scrub: %v", err)
	}
	if state.Playback.Position != state.Playback.TotalTicks {
		t.Fatalf("scrub position = %d, want %d", state.Playback.Position, state.Playback.TotalTicks)
	}
	if !state.Playback.Playing {
		t.Fatal("scrub should not pause playback")
	}

	if state, err = svc.ResetPlayback(session.ID); err != nil || state.Playback.Position != 0 {
		t.Fatalf("ResetPlayback: err=%v position=%d", err, state.Playback.Position)
	}

	if state, err = svc.ToggleMute(session.ID); err != nil || !state.Playback.Muted {
		t.Fatalf("ToggleMute: err=%v muted=%v", err, state.Playback.Muted)
	}
}

func TestVisibleAlertsAndSummary(t *testing.T) {
	svc := newTestService(t)
	session := openSession(t, svc)

	// Widen the window to the whole timeline so every alert is visible.
	state, err := svc.Scrub(session.ID, 0)
	if err != nil {
		t.Fatalf("Scrub: %v", err)
	}
	start := state.Playback.WindowStart()

	total := 0
	for pos := 0; pos <= state.Playback.TotalTicks; pos++ {
		if _, err := svc.Scrub(session.ID, pos); err != nil {
			t.Fatalf("Scrub to %d: %v", pos, err)
		}
		visible, err := svc.VisibleAlerts(session.ID, timeline.Filter{})
		if err != nil {
			t.Fatalf("VisibleAlerts: %v", err)
		}
		for _, alert := range visible {
			if alert.Timestamp.Before(start) {
				t.Fatalf("alert %s before window origin", alert.Timestamp)
			}
		}
		total += len(visible)
	}
	if total != session.TotalAlerts {
		t.Fatalf("hourly windows covered %d alerts, want all %d", total, session.TotalAlerts)
	}

	if _, err := svc.Scrub(session.ID, 0); err != nil {
		t.Fatalf("Scrub: %v", err)
	}
	summary, err := svc.Summary(session.ID, timeline.Filter{Severity: models.SeverityHigh})
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if summary.TotalEvents != 500 {
		t.Fatalf("summary TotalEvents = %d, want 500", summary.TotalEvents)
	}
	for sev, n := range summary.SeverityCounts {
		if sev != models.SeverityHigh && n > 0 {
			t.Fatalf("severity filter leaked %d %s alerts", n, sev)
		}
	}
}

func TestWriteAlertsCSV(t *testing.T) {
	svc := newTestService(t)
	session := openSession(t, svc)

	var buf bytes.Buffer
	if err := svc.WriteAlertsCSV(&buf, session.ID, timeline.Filter{}); err != nil {
		t.Fatalf("WriteAlertsCSV: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if lines[0] != "timestamp,source_id,dest_id,bytes_sent,failed_logins,severity,lat,lon" {
		t.Fatalf("unexpected CSV header %q", lines[0])
	}

	var missing bytes.Buffer
	if err := svc.WriteAlertsCSV(&missing, "nope", timeline.Filter{}); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("got %v, want ErrSessionNotFound", err)
	}
}

func TestCountermeasuresAreSimulated(t *testing.T) {
	svc := newTestService(t)
	session := openSession(t, svc)

	if _, err := svc.Scrub(session.ID, 0); err != nil {
		t.Fatalf("Scrub: %v", err)
	}
	plan, err := svc.Countermeasures(session.ID, timeline.Filter{})
	if err != nil {
		t.Fatalf("Countermeasures: %v", err)
	}
	if !plan.Simulated {
		t.Fatal("plan must always be marked simulated")
	}
	if plan.GeneratedAt.IsZero() {
		t.Fatal("plan missing generation time")
	}
}

func TestSessionRegistryIsBounded(t *testing.T) {
	svc := newTestService(t)
	svc.maxSessions = 2

	open := func(seed int64) Session {
		t.Helper()
		records := synth.Batch(synth.Options{Rows: 30, Injected: 2, Seed: seed})
		session, err := svc.RunDetection(context.Background(), records, pipeline.Options{})
		if err != nil {
			t.Fatalf("RunDetection: %v", err)
		}
		return session
	}

	first := open(1)
	second := open(2)
	third := open(3)

	if _, err := svc.Session(first.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("oldest session should be evicted, got %v", err)
	}
	for _, id := range []string{second.ID, third.ID} {
		if _, err := svc.Session(id); err != nil {
			t.Fatalf("recent session %s lost: %v", id, err)
		}
	}
}
