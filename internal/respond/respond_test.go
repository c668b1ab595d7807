package respond

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kratosops/warroom/internal/models"
)

func visibleAlerts() []models.Alert {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return []models.Alert{
		{Event: models.Event{Timestamp: base, SourceID: "198.51.100.77", DestID: "10.0.0.100", BytesSent: 7000, FailedLogins: 30}, Severity: models.SeverityHigh},
		{Event: models.Event{Timestamp: base.Add(time.Minute), SourceID: "198.51.100.77", DestID: "10.0.0.200", BytesSent: 3500, FailedLogins: 2}, Severity: models.SeverityMedium},
		{Event: models.Event{Timestamp: base.Add(2 * time.Minute), SourceID: "8.8.8.8", DestID: "10.0.0.100", BytesSent: 100, FailedLogins: 1}, Severity: models.SeverityLow},
	}
}

func TestBuildPlanAggregatesTargets(t *testing.T) {
	plan := BuildPlan(nil, visibleAlerts())

	if !plan.Simulated {
		t.Fatalf("plans must always be simulated")
	}
	if len(plan.Targets) != 2 {
		t.Fatalf("expected 2 targets, got %d", len(plan.Targets))
	}
	first := plan.Targets[0]
	if first.SourceID != "198.51.100.77" || first.AlertCount != 2 || first.MaxSeverity != models.SeverityHigh {
		t.Fatalf("unexpected leading target: %+v", first)
	}
	if len(plan.Actions) == 0 {
		t.Fatalf("expected default actions with a nil engine")
	}
}

func TestBuildPlanEmptyWindow(t *testing.T) {
	plan := BuildPlan(nil, nil)
	if len(plan.Targets) != 0 || len(plan.Actions) != 0 {
		t.Fatalf("empty window must yield an empty plan, got %+v", plan)
	}
}

func TestRuleEngineMatching(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "playbook.yaml")
	playbook := `rules:
  - id: high-burst
    match:
      severity: High
      min_alerts: 2
    actions:
      - "Isolate the destination subnet (simulated)"
  - id: never-matches
    match:
      severity: High
      min_alerts: 50
    actions:
      - "Should not appear"
  - id: known-bad-source
    match:
      source_contains: ["198.51.100"]
    actions:
      - "Add source to the watchlist"
`
	if err := os.WriteFile(path, []byte(playbook), 0o600); err != nil {
		t.Fatalf("write playbook: %v", err)
	}

	engine, err := NewRuleEngine(path, nil)
	if err != nil {
		t.Fatalf("load playbook: %v", err)
	}
	if engine == nil {
		t.Fatalf("expected engine for existing playbook")
	}

	actions := engine.Recommend(visibleAlerts())
	if len(actions) != 2 {
		t.Fatalf("expected 2 matched actions, got %v", actions)
	}
	for _, action := range actions {
		if action == "Should not appear" {
			t.Fatalf("min_alerts guard failed")
		}
	}
}

func TestRuleEngineMissingPath(t *testing.T) {
	engine, err := NewRuleEngine(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	if err != nil {
		t.Fatalf("missing playbook must not error: %v", err)
	}
	if engine != nil {
		t.Fatalf("expected nil engine for missing playbook")
	}
	if actions := engine.Recommend(visibleAlerts()); actions != nil {
		t.Fatalf("nil engine must recommend nothing, got %v", actions)
	}
}

func TestShippedDefaultPlaybookLoads(t *testing.T) {
	engine, err := NewRuleEngine(filepath.Join("..", "..", "configs", "playbooks", "default.yaml"), nil)
	if err != nil {
		t.Fatalf("NewRuleEngine: %v", err)
	}
	if engine == nil {
		t.Fatalf("shipped default playbook did not load")
	}

	// The high-severity alert in the fixture matches the exfil rule.
	actions := engine.Recommend(visibleAlerts())
	if len(actions) == 0 {
		t.Fatalf("expected actions from the shipped playbook")
	}
}
