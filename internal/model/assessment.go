package model

import "time"

// QualityAssessment is one assessor run for one entity. Append-only history;
// the latest row per assessor is authoritative for current reads.
type QualityAssessment struct {
	ID              string    `json:"id"`
	EntityID        string    `json:"entity_id"`
	AssessorName    string    `json:"assessor_name"`
	Score           float64   `json:"score"`
	Weight          float64   `json:"weight"`
	Issues          []string  `json:"issues,omitempty"`
	Recommendations []string  `json:"recommendations,omitempty"`
	AssessedAt      time.Time `json:"assessed_at"`
}

// ChangeType identifies what kind of mutation a change-log entry records.
type ChangeType string

const (
	ChangeTypeIngest     ChangeType = "ingest"
	ChangeTypeCorrection ChangeType = "correction"
	ChangeTypeMerge      ChangeType = "merge"
)

// ChangeLogEntry is an immutable audit record of an entity mutation.
type ChangeLogEntry struct {
	ID        string            `json:"id"`
	EntityID  string            `json:"entity_id"`
	FieldName string            `json:"field_name,omitempty"`
	Type      ChangeType        `json:"change_type"`
	OldValue  string            `json:"old_value,omitempty"`
	NewValue  string            `json:"new_value,omitempty"`
	ChangedBy string            `json:"changed_by"`
	Reason    string            `json:"reason,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	ChangedAt time.Time         `json:"changed_at"`
}
