package model

import "time"

// AlertSeverity ranks how urgent an alert is.
type AlertSeverity string

const (
	SeverityLow      AlertSeverity = "low"
	SeverityMedium   AlertSeverity = "medium"
	SeverityHigh     AlertSeverity = "high"
	SeverityCritical AlertSeverity = "critical"
)

// SubjectKind distinguishes entity-level from source-level alerts.
type SubjectKind string

const (
	SubjectEntity SubjectKind = "entity"
	SubjectSource SubjectKind = "source"
)

// Alert is a fired rule instance. Immutable once triggered except for the
// resolution fields.
type Alert struct {
	ID          string        `json:"id"`
	RuleName    string        `json:"rule_name"`
	SubjectKind SubjectKind   `json:"subject_kind"`
	SubjectID   string        `json:"subject_id"`
	MetricName  string        `json:"metric_name"`
	MetricValue float64       `json:"metric_value"`
	Threshold   float64       `json:"threshold_value"`
	Severity    AlertSeverity `json:"severity"`
	Message     string        `json:"message"`
	TriggeredAt time.Time     `json:"triggered_at"`

	IsResolved bool       `json:"is_resolved"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy string     `json:"resolved_by,omitempty"`
}
