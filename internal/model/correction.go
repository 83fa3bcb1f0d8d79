package model

import "time"

// CorrectionType identifies what a correction does to the entity.
type CorrectionType string

const (
	CorrectionFixValue        CorrectionType = "fix_value"
	CorrectionFillMissing     CorrectionType = "fill_missing"
	CorrectionNormalizeFormat CorrectionType = "normalize_format"
	CorrectionMergeEntities   CorrectionType = "merge_entities"
	CorrectionFlagError       CorrectionType = "flag_error"
)

// CorrectionStatus is the correction lifecycle state.
type CorrectionStatus string

const (
	CorrectionPending    CorrectionStatus = "pending"
	CorrectionApproved   CorrectionStatus = "approved"
	CorrectionRejected   CorrectionStatus = "rejected"
	CorrectionApplied    CorrectionStatus = "applied"
	CorrectionSuperseded CorrectionStatus = "superseded"
)

// IsTerminal reports whether no further transitions are allowed.
func (s CorrectionStatus) IsTerminal() bool {
	switch s {
	case CorrectionApplied, CorrectionRejected, CorrectionSuperseded:
		return true
	}
	return false
}

// IsLive reports whether the correction still occupies its (entity, field)
// slot: pending or approved-but-not-yet-applied.
func (s CorrectionStatus) IsLive() bool {
	return s == CorrectionPending || s == CorrectionApproved
}

// CanTransitionTo reports whether the state machine permits moving to next.
// pending -> approved|rejected, approved -> applied, and any non-terminal
// state -> superseded.
func (s CorrectionStatus) CanTransitionTo(next CorrectionStatus) bool {
	if s.IsTerminal() {
		return false
	}
	if next == CorrectionSuperseded {
		return true
	}
	switch s {
	case CorrectionPending:
		return next == CorrectionApproved || next == CorrectionRejected
	case CorrectionApproved:
		return next == CorrectionApplied
	}
	return false
}

// Correction is a proposed field fix moving through review. At most one live
// correction should exist per (entity, field); newer submissions supersede
// older live ones.
type Correction struct {
	ID             string           `json:"id"`
	EntityID       string           `json:"entity_id"`
	FieldName      string           `json:"field_name"`
	CurrentValue   string           `json:"current_value,omitempty"`
	SuggestedValue string           `json:"suggested_value"`
	Type           CorrectionType   `json:"correction_type"`
	SubmittedBy    string           `json:"submitted_by"`
	Confidence     float64          `json:"confidence"`
	Status         CorrectionStatus `json:"status"`

	// MergeTargetID names the duplicate entity folded into EntityID when
	// Type is merge_entities.
	MergeTargetID string `json:"merge_target_id,omitempty"`

	ReviewedBy  string     `json:"reviewed_by,omitempty"`
	ReviewedAt  *time.Time `json:"reviewed_at,omitempty"`
	ReviewNotes string     `json:"review_notes,omitempty"`
	AppliedBy   string     `json:"applied_by,omitempty"`
	AppliedAt   *time.Time `json:"applied_at,omitempty"`
	ChangeLogID string     `json:"change_log_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CorrectionSuggestion is an auto-generated correction candidate. The
// orchestrator submits each as a Correction; SubmitCorrection's confidence
// gate decides whether it applies without review.
type CorrectionSuggestion struct {
	EntityID           string         `json:"entity_id"`
	FieldName          string         `json:"field_name"`
	CurrentValue       string         `json:"current_value,omitempty"`
	SuggestedValue     string         `json:"suggested_value"`
	Type               CorrectionType `json:"correction_type"`
	Confidence         float64        `json:"confidence"`
	Reason             string         `json:"reason"`
	MergeTargetID      string         `json:"merge_target_id,omitempty"`
	AutoApplyThreshold float64        `json:"auto_apply_threshold"`
}
