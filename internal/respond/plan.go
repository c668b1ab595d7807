package respond

import (
	"sort"
	"time"

	"github.com/kratosops/warroom/internal/models"
)

// BlockTarget is one source identifier slated for a simulated block.
type BlockTarget struct {
	SourceID    string          `json:"source_id"`
	AlertCount  int             `json:"alert_count"`
	MaxSeverity models.Severity `json:"max_severity"`
}

// Plan is a simulated countermeasure plan over the visible alert set.
// Simulated is always true; the engine never enforces anything.
type Plan struct {
	GeneratedAt time.Time     `json:"generated_at"`
	Targets     []BlockTarget `json:"targets"`
	Actions     []string      `json:"actions"`
	Simulated   bool          `json:"simulated"`
}

// BuildPlan aggregates visible alerts into per-source block targets and
// attaches playbook actions. engine may be nil; the defaults then apply.
func BuildPlan(engine *RuleEngine, visible []models.Alert) Plan {
	plan := Plan{
		GeneratedAt: time.Now().UTC(),
		Simulated:   true,
	}
	if len(visible) == 0 {
		return plan
	}

	bySource := make(map[string]*BlockTarget)
	for _, alert := range visible {
		target, ok := bySource[alert.SourceID]
		if !ok {
			target = &BlockTarget{SourceID: alert.SourceID, MaxSeverity: alert.Severity}
			bySource[alert.SourceID] = target
		}
		target.AlertCount++
		if severityRank(alert.Severity) > severityRank(target.MaxSeverity) {
			target.MaxSeverity = alert.Severity
		}
	}

	plan.Targets = make([]BlockTarget, 0, len(bySource))
	for _, target := range bySource {
		plan.Targets = append(plan.Targets, *target)
	}
	sort.Slice(plan.Targets, func(i, j int) bool {
		ri, rj := severityRank(plan.Targets[i].MaxSeverity), severityRank(plan.Targets[j].MaxSeverity)
		if ri != rj {
			return ri > rj
		}
		if plan.Targets[i].AlertCount != plan.Targets[j].AlertCount {
			return plan.Targets[i].AlertCount > plan.Targets[j].AlertCount
		}
		return plan.Targets[i].SourceID < plan.Targets[j].SourceID
	})

	plan.Actions = engine.Recommend(visible)
	if len(plan.Actions) == 0 {
		plan.Actions = defaultActions()
	}
	return plan
}

func defaultActions() []string {
	return []string{
		"Block the listed source identifiers at the perimeter (simulated)",
		"Review authentication logs for the affected destinations",
	}
}

func severityRank(s models.Severity) int {
	switch s {
	case models.SeverityHigh:
		return 3
	case models.SeverityMedium:
		return 2
	case models.SeverityLow:
		return 1
	default:
		return 0
	}
}
