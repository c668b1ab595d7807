package timeline

import (
	"reflect"
	"testing"
	"time"

	"github.com/kratosops/warroom/internal/models"
)

func alertAt(ts time.Time, severity models.Severity, source string) models.Alert {
	return models.Alert{
		Event:    models.Event{Timestamp: ts, SourceID: source, DestID: "10.0.0.100"},
		Severity: severity,
	}
}

func testState(t *testing.T) (PlaybackState, []models.Alert) {
	t.Helper()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	alerts := []models.Alert{
		alertAt(base.Add(10*time.Minute), models.SeverityLow, "a"),
		alertAt(base.Add(50*time.Minute), models.SeverityHigh, "b"),
		alertAt(base.Add(time.Hour), models.SeverityMedium, "c"), // exactly on the next boundary
		alertAt(base.Add(3*time.Hour+5*time.Minute), models.SeverityHigh, "d"),
	}
	state := NewState(base.Add(10*time.Minute), base.Add(3*time.Hour+5*time.Minute), Config{})
	return state, alerts
}

func TestNewStateTickRange(t *testing.T) {
	state, _ := testState(t)
	if state.TotalTicks != 4 {
		t.Fatalf("expected 4 ticks spanning the floored/ceiled range, got %d", state.TotalTicks)
	}
	if !state.Origin.Equal(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("origin not floored to the hour: %v", state.Origin)
	}
	if !state.WindowEnd().After(state.WindowStart()) {
		t.Fatalf("window_end must always be after window_start")
	}
}

func TestVisibleHalfOpenWindow(t *testing.T) {
	state, alerts := testState(t)

	visible := Visible(alerts, state, Filter{})
	if len(visible) != 2 {
		t.Fatalf("expected 2 alerts in first window, got %d", len(visible))
	}
	for _, a := range visible {
		if a.SourceID == "c" {
			t.Fatalf("alert exactly at window_end must be excluded")
		}
	}

	next := Scrub(state, 1)
	visible = Visible(alerts, next, Filter{})
	if len(visible) != 1 || visible[0].SourceID != "c" {
		t.Fatalf("boundary alert must appear in the next window, got %+v", visible)
	}
}

func TestVisibleIsPureAndIdempotent(t *testing.T) {
	state, alerts := testState(t)

	first := Visible(alerts, state, Filter{})
	second := Visible(alerts, state, Filter{})
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("repeated queries with unchanged state must match")
	}

	before := state
	Visible(alerts, state, Filter{Severity: models.SeverityHigh})
	if state != before {
		t.Fatalf("severity filter mutated playback state")
	}
}

func TestVisibleSeverityFilter(t *testing.T) {
	state, alerts := testState(t)

	visible := Visible(alerts, state, Filter{Severity: models.SeverityHigh})
	if len(visible) != 1 || visible[0].SourceID != "b" {
		t.Fatalf("expected only the high alert, got %+v", visible)
	}
}

func TestVisibleSkipsUnknownTimestampSentinel(t *testing.T) {
	state, alerts := testState(t)
	alerts = append(alerts, models.Alert{Event: models.Event{SourceID: "no-time"}, Severity: models.SeverityHigh})

	for _, a := range Visible(alerts, state, Filter{}) {
		if a.SourceID == "no-time" {
			t.Fatalf("sentinel-timestamp alerts must be excluded from windows")
		}
	}
}

func TestAdvanceClampsAtCeiling(t *testing.T) {
	state, _ := testState(t)

	if got := Advance(state); got.Position != 0 {
		t.Fatalf("advance in Idle state must be a no-op, got position %d", got.Position)
	}

	state = TogglePlay(state)
	for i := 0; i < 10; i++ {
		state = Advance(state)
	}
	if state.Position != state.TotalTicks {
		t.Fatalf("expected position pinned at total_ticks %d, got %d", state.TotalTicks, state.Position)
	}
	if got := Advance(state); got.Position != state.TotalTicks {
		t.Fatalf("advance past the last tick must not wrap, got %d", got.Position)
	}
}

func TestScrubClampsAndKeepsPlayState(t *testing.T) {
	state, alerts := testState(t)

	state = Scrub(state, 99)
	if state.Position != state.TotalTicks {
		t.Fatalf("scrub beyond total_ticks must clamp, got %d", state.Position)
	}
	if state.Playing {
		t.Fatalf("scrub must not flip Idle to Playing")
	}
	// Final window covers [origin+4h, origin+5h), which holds no alerts.
	if got := Visible(alerts, state, Filter{}); len(got) != 0 {
		t.Fatalf("expected empty final window, got %d alerts", len(got))
	}

	state = Scrub(state, -5)
	if state.Position != 0 {
		t.Fatalf("scrub below zero must clamp to 0, got %d", state.Position)
	}

	playing := TogglePlay(state)
	if got := Scrub(playing, 2); !got.Playing {
		t.Fatalf("scrub must not stop playback")
	}
}

func TestResetAlwaysReturnsToZero(t *testing.T) {
	state, _ := testState(t)
	state = TogglePlay(state)
	state = Scrub(state, 3)

	state = Reset(state)
	if state.Position != 0 {
		t.Fatalf("reset must return position to 0, got %d", state.Position)
	}
}

func TestToggleMuteDoesNotAffectQueries(t *testing.T) {
	state, alerts := testState(t)
	muted := ToggleMute(state)
	if !muted.Muted {
		t.Fatalf("expected muted flag set")
	}
	if len(Visible(alerts, muted, Filter{})) != len(Visible(alerts, state, Filter{})) {
		t.Fatalf("mute must not change the visible set")
	}
}

func TestStepRespectsPlaybackStepConfig(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	state := NewState(base, base.Add(10*time.Hour), Config{Step: 2 * time.Hour})
	state = TogglePlay(state)

	state = Advance(state)
	if state.Position != 2 {
		t.Fatalf("expected a 2-tick step, got position %d", state.Position)
	}
}
