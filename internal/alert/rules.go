package alert

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/veridata/quality-cli/internal/model"
)

// Condition is the comparison a rule applies to its metric.
type Condition string

const (
	ConditionBelow             Condition = "below"
	ConditionAbove             Condition = "above"
	ConditionStalenessExceeded Condition = "staleness_exceeded"
	ConditionPctChange         Condition = "pct_change"
)

// Rule describes one threshold check. Subject selects whether the rule
// evaluates per entity or per data source; EntityType and SourceID narrow
// it further, empty means any.
type Rule struct {
	Name            string              `yaml:"name" json:"name"`
	Subject         model.SubjectKind   `yaml:"subject" json:"subject"`
	EntityType      model.EntityType    `yaml:"entity_type,omitempty" json:"entity_type,omitempty"`
	SourceID        string              `yaml:"source_id,omitempty" json:"source_id,omitempty"`
	Metric          string              `yaml:"metric" json:"metric"`
	Condition       Condition           `yaml:"condition" json:"condition"`
	Threshold       float64             `yaml:"threshold" json:"threshold"`
	Severity        model.AlertSeverity `yaml:"severity" json:"severity"`
	CooldownMinutes int                 `yaml:"cooldown_minutes" json:"cooldown_minutes"`
	Enabled         *bool               `yaml:"enabled,omitempty" json:"enabled,omitempty"`
}

// Matches reports whether the rule applies to the given subject.
func (r Rule) Matches(kind model.SubjectKind, entityType model.EntityType, sourceID string) bool {
	if r.Subject != kind {
		return false
	}
	if kind == model.SubjectEntity && r.EntityType != "" && r.EntityType != entityType {
		return false
	}
	if kind == model.SubjectSource && r.SourceID != "" && r.SourceID != sourceID {
		return false
	}
	return true
}

// IsEnabled treats an unset flag as enabled.
func (r Rule) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

type rulesFile struct {
	Rules []Rule `yaml:"rules"`
}

// DefaultRules returns the built-in rule set used when no rules file is
// configured.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "low_overall_quality", Subject: model.SubjectEntity, Metric: "overall", Condition: ConditionBelow, Threshold: 0.5, Severity: model.SeverityHigh, CooldownMinutes: 60},
		{Name: "low_completeness", Subject: model.SubjectEntity, Metric: "completeness", Condition: ConditionBelow, Threshold: 0.5, Severity: model.SeverityMedium, CooldownMinutes: 60},
		{Name: "low_confidence", Subject: model.SubjectEntity, Metric: "confidence", Condition: ConditionBelow, Threshold: 0.25, Severity: model.SeverityHigh, CooldownMinutes: 60},
		{Name: "stale_entity", Subject: model.SubjectEntity, Metric: "days_since_update", Condition: ConditionStalenessExceeded, Threshold: 90, Severity: model.SeverityLow, CooldownMinutes: 1440},
		{Name: "quality_drop", Subject: model.SubjectEntity, Metric: "overall", Condition: ConditionPctChange, Threshold: 0.2, Severity: model.SeverityHigh, CooldownMinutes: 120},
		{Name: "unreliable_source", Subject: model.SubjectSource, Metric: "error_rate", Condition: ConditionAbove, Threshold: 0.3, Severity: model.SeverityHigh, CooldownMinutes: 240},
		{Name: "low_source_quality", Subject: model.SubjectSource, Metric: "avg_quality", Condition: ConditionBelow, Threshold: 0.5, Severity: model.SeverityMedium, CooldownMinutes: 240},
	}
}

// LoadRules reads a YAML rules file. Unset severities default to medium and
// unset cooldowns to 60 minutes.
func LoadRules(path string) ([]Rule, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "alert: read rules file %s", path)
	}
	var f rulesFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, eris.Wrapf(err, "alert: parse rules file %s", path)
	}
	if len(f.Rules) == 0 {
		return nil, eris.Errorf("alert: rules file %s defines no rules", path)
	}
	for i := range f.Rules {
		r := &f.Rules[i]
		if r.Name == "" {
			return nil, eris.Errorf("alert: rule %d has no name", i)
		}
		if r.Metric == "" {
			return nil, eris.Errorf("alert: rule %q has no metric", r.Name)
		}
		switch r.Condition {
		case ConditionBelow, ConditionAbove, ConditionStalenessExceeded, ConditionPctChange:
		default:
			return nil, eris.Errorf("alert: rule %q has unknown condition %q", r.Name, r.Condition)
		}
		if r.Subject == "" {
			r.Subject = model.SubjectEntity
		}
		if r.Severity == "" {
			r.Severity = model.SeverityMedium
		}
		if r.CooldownMinutes <= 0 {
			r.CooldownMinutes = 60
		}
	}
	return f.Rules, nil
}
