package model

import "time"

// ProvenanceRecord is one append-only row of field-level provenance: where a
// single field value came from, how it was extracted, and when. Records are
// never updated in place.
type ProvenanceRecord struct {
	ID                   string    `json:"id"`
	EntityID             string    `json:"entity_id"`
	FieldName            string    `json:"field_name"`
	FieldValue           string    `json:"field_value"`
	SourceID             string    `json:"source_id"`
	SourceURL            string    `json:"source_url"`
	ExtractionMethod     string    `json:"extraction_method"`
	ExtractionConfidence float64   `json:"extraction_confidence"`
	ExtractedAt          time.Time `json:"extracted_at"`

	// Hash is SHA-256 over the stable concatenation of entity, field, value,
	// source URL, and timestamp. Recomputed by VerifyIntegrity.
	Hash string `json:"provenance_hash"`
}

// DataSource is an origin of provenance records. Reliability is the ratio of
// successful to total requests and is bumped on every provenance write.
type DataSource struct {
	ID                  string     `json:"source_id"`
	URLPattern          string     `json:"url_pattern"`
	UpdateFrequencyDays int        `json:"update_frequency_days,omitempty"`
	TotalRequests       int64      `json:"total_requests"`
	SuccessfulRequests  int64      `json:"successful_requests"`
	ReliabilityScore    float64    `json:"reliability_score"`
	LastSuccessAt       *time.Time `json:"last_success_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// LineageEntry is one hop in the chain from original source to current field
// value, newest first.
type LineageEntry struct {
	Source         *DataSource      `json:"source,omitempty"`
	Record         ProvenanceRecord `json:"record"`
	ProcessingStep string           `json:"processing_step"`
	Issues         []string         `json:"issues,omitempty"`
}

// IntegrityMismatch describes one hash that failed verification.
type IntegrityMismatch struct {
	Kind     string `json:"kind"` // "entity_data" or "provenance"
	RecordID string `json:"record_id,omitempty"`
	Field    string `json:"field,omitempty"`
	Stored   string `json:"stored"`
	Computed string `json:"computed"`
}

// IntegrityReport is the result of a tamper-evidence check. Mismatches are
// reported, never auto-corrected.
type IntegrityReport struct {
	EntityID   string              `json:"entity_id"`
	Verified   bool                `json:"verified"`
	Checked    int                 `json:"checked"`
	Mismatches []IntegrityMismatch `json:"mismatches,omitempty"`
}
