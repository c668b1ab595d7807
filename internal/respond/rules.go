// Package respond turns a window's visible alerts into a simulated
// countermeasure plan. Nothing here touches a real network control plane;
// plans are advisory output for the dashboard.
package respond

import (
	"errors"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kratosops/warroom/internal/models"
)

// RuleEngine applies playbook rules to the visible alert set.
type RuleEngine struct {
	rules  []Rule
	logger *slog.Logger
}

// Rule represents a single playbook entry.
type Rule struct {
	ID      string    `yaml:"id"`
	Match   RuleMatch `yaml:"match"`
	Actions []string  `yaml:"actions"`
}

// RuleMatch defines optional attributes for rule matching. Empty attributes
// match everything.
type RuleMatch struct {
	Severity       string   `yaml:"severity"`
	MinAlerts      int      `yaml:"min_alerts"`
	SourceContains []string `yaml:"source_contains"`
}

// RuleConfigFile is the YAML root structure.
type RuleConfigFile struct {
	Rules []Rule `yaml:"rules"`
}

// NewRuleEngine loads a playbook from the provided path. An empty or missing
// path returns a nil engine; callers fall back to the default actions.
func NewRuleEngine(path string, logger *slog.Logger) (*RuleEngine, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var cfg RuleConfigFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RuleEngine{rules: cfg.Rules, logger: logger}, nil
}

// Recommend produces the playbook actions matched by the visible alerts.
func (e *RuleEngine) Recommend(visible []models.Alert) []string {
	if e == nil {
		return nil
	}

	matched := make([]string, 0)
	for _, rule := range e.rules {
		if rule.Match.Severity != "" && !hasSeverity(rule.Match.Severity, visible) {
			continue
		}
		if rule.Match.MinAlerts > 0 && len(visible) < rule.Match.MinAlerts {
			continue
		}
		if len(rule.Match.SourceContains) > 0 && !sourcesContain(rule.Match.SourceContains, visible) {
			continue
		}
		matched = appendUnique(matched, rule.Actions...)
	}
	return matched
}

func hasSeverity(severity string, visible []models.Alert) bool {
	for _, alert := range visible {
		if strings.EqualFold(severity, string(alert.Severity)) {
			return true
		}
	}
	return false
}

func sourcesContain(keywords []string, visible []models.Alert) bool {
	for _, alert := range visible {
		source := strings.ToLower(alert.SourceID)
		for _, kw := range keywords {
			if kw != "" && strings.Contains(source, strings.ToLower(kw)) {
				return true
			}
		}
	}
	return false
}

func appendUnique(dst []string, values ...string) []string {
	for _, v := range values {
		exists := false
		for _, existing := range dst {
			if existing == v {
				exists = true
				break
			}
		}
		if !exists && v != "" {
			dst = append(dst, v)
		}
	}
	return dst
}
