// Package timeline implements playback over a batch's alert history: a
// clamped tick position, Idle/Playing state, and a pure visible-set query
// over a half-open time window.
package timeline

import (
	"time"

	"github.com/kratosops/warroom/internal/models"
	"github.com/kratosops/warroom/internal/utils"
)

// DefaultTick is one playback time-unit.
const DefaultTick = time.Hour

// Config controls window granularity and auto-advance speed.
type Config struct {
	Tick   time.Duration
	Window time.Duration
	Step   time.Duration
}

func (c Config) normalised() Config {
	if c.Tick <= 0 {
		c.Tick = DefaultTick
	}
	if c.Window <= 0 {
		c.Window = c.Tick
	}
	if c.Step <= 0 {
		c.Step = c.Tick
	}
	return c
}

func (c Config) stepTicks() int {
	ticks := int(c.Step / c.Tick)
	if ticks < 1 {
		ticks = 1
	}
	return ticks
}

// PlaybackState is the explicit playback value owned by a session. Navigation
// operations take a state and return the successor; nothing here is global.
type PlaybackState struct {
	Origin     time.Time     `json:"origin"`
	TotalTicks int           `json:"total_ticks"`
	Position   int           `json:"position"`
	Playing    bool          `json:"playing"`
	Muted      bool          `json:"muted"`
	Tick       time.Duration `json:"tick"`
	Window     time.Duration `json:"window"`
	step       int
}

// NewState builds a PlaybackState spanning [earliest, latest], with the
// origin floored and the end ceiled to tick boundaries so every event falls
// inside some window. A batch without usable timestamps gets zero ticks.
func NewState(earliest, latest time.Time, cfg Config) PlaybackState {
	cfg = cfg.normalised()
	state := PlaybackState{
		Tick:   cfg.Tick,
		Window: cfg.Window,
		step:   cfg.stepTicks(),
	}
	if earliest.IsZero() || latest.IsZero() || latest.Before(earliest) {
		return state
	}

	state.Origin = utils.FloorTo(earliest, cfg.Tick)
	end := utils.CeilTo(latest, cfg.Tick)
	state.TotalTicks = int(end.Sub(state.Origin) / cfg.Tick)
	return state
}

// WindowStart is the inclusive lower bound of the current window.
func (s PlaybackState) WindowStart() time.Time {
	return s.Origin.Add(time.Duration(s.Position) * s.Tick)
}

// WindowEnd is the exclusive upper bound of the current window. Always after
// WindowStart because Window is normalised to a positive duration.
func (s PlaybackState) WindowEnd() time.Time {
	return s.WindowStart().Add(s.Window)
}

// AtCeiling reports whether the position is at the terminal tick.
func (s PlaybackState) AtCeiling() bool {
	return s.Position >= s.TotalTicks
}

// Advance moves the position forward by the configured step while Playing.
// At the ceiling it is a no-op: the position neither wraps nor errors, and
// playback never runs past the batch's maximum timestamp.
func Advance(s PlaybackState) PlaybackState {
	if !s.Playing || s.AtCeiling() {
		return s
	}
	s.Position = clamp(s.Position+s.step, 0, s.TotalTicks)
	return s
}

// Scrub moves directly to a clamped position without changing Idle/Playing.
func Scrub(s PlaybackState, to int) PlaybackState {
	s.Position = clamp(to, 0, s.TotalTicks)
	return s
}

// Reset returns the position to zero regardless of prior state.
func Reset(s PlaybackState) PlaybackState {
	s.Position = 0
	return s
}

// TogglePlay switches between Idle and Playing.
func TogglePlay(s PlaybackState) PlaybackState {
	s.Playing = !s.Playing
	return s
}

// ToggleMute flips the alert-feed mute flag. Muting is presentation state
// and has no effect on window queries.
func ToggleMute(s PlaybackState) PlaybackState {
	s.Muted = !s.Muted
	return s
}

// Filter narrows the visible set without touching playback state. The empty
// severity matches everything.
type Filter struct {
	Severity models.Severity
}

// Visible returns the alerts whose timestamp falls within the half-open
// window [WindowStart, WindowEnd): an alert exactly at the end bound belongs
// to the next window. Pure query; safe to call repeatedly while filters
// change. Alerts carrying the unknown-timestamp sentinel are never visible.
func Visible(alerts []models.Alert, s PlaybackState, f Filter) []models.Alert {
	start, end := s.WindowStart(), s.WindowEnd()
	visible := make([]models.Alert, 0)
	for _, alert := range alerts {
		if !alert.HasTimestamp() {
			continue
		}
		if alert.Timestamp.Before(start) || !alert.Timestamp.Before(end) {
			continue
		}
		if f.Severity != "" && alert.Severity != f.Severity {
			continue
		}
		visible = append(visible, alert)
	}
	return visible
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
