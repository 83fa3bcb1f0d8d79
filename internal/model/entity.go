package model

import "time"

// EntityType classifies an entity for type-specific quality rules.
type EntityType string

const (
	EntityTypeCompany   EntityType = "company"
	EntityTypePerson    EntityType = "person"
	EntityTypeAddress   EntityType = "address"
	EntityTypeContact   EntityType = "contact"
	EntityTypeFinancial EntityType = "financial"
)

// QualityStatus buckets the overall quality score.
type QualityStatus string

const (
	QualityExcellent QualityStatus = "excellent"
	QualityGood      QualityStatus = "good"
	QualityFair      QualityStatus = "fair"
	QualityPoor      QualityStatus = "poor"
	QualityCritical  QualityStatus = "critical"
)

// ConfidenceLevel buckets the confidence score.
type ConfidenceLevel string

const (
	ConfidenceVeryHigh ConfidenceLevel = "very_high"
	ConfidenceHigh     ConfidenceLevel = "high"
	ConfidenceMedium   ConfidenceLevel = "medium"
	ConfidenceLow      ConfidenceLevel = "low"
	ConfidenceVeryLow  ConfidenceLevel = "very_low"
)

// Entity is a scored, provenance-tracked record. Entities are never deleted,
// only deactivated (merged duplicates stay behind as inactive back-references).
type Entity struct {
	ID   string            `json:"entity_id"`
	Type EntityType        `json:"entity_type"`
	Data map[string]string `json:"data"`

	// DataHash is the canonical hash of Data, restamped on every sanctioned
	// mutation. VerifyIntegrity compares against it.
	DataHash string `json:"data_hash,omitempty"`

	Completeness    float64         `json:"completeness"`
	Consistency     float64         `json:"consistency"`
	Freshness       float64         `json:"freshness"`
	Confidence      float64         `json:"confidence"`
	OverallScore    float64         `json:"overall_score"`
	QualityStatus   QualityStatus   `json:"quality_status,omitempty"`
	ConfidenceLevel ConfidenceLevel `json:"confidence_level,omitempty"`

	IsActive    bool   `json:"is_active"`
	IsDuplicate bool   `json:"is_duplicate"`
	HasIssues   bool   `json:"has_issues"`
	DuplicateOf string `json:"duplicate_of,omitempty"`

	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	LastVerifiedAt *time.Time `json:"last_verified_at,omitempty"`
}

// QualityStatusFor buckets an overall score into a QualityStatus.
func QualityStatusFor(score float64) QualityStatus {
	switch {
	case score >= 0.9:
		return QualityExcellent
	case score >= 0.75:
		return QualityGood
	case score >= 0.5:
		return QualityFair
	case score >= 0.25:
		return QualityPoor
	default:
		return QualityCritical
	}
}

// ConfidenceLevelFor buckets a confidence score into a ConfidenceLevel.
func ConfidenceLevelFor(score float64) ConfidenceLevel {
	switch {
	case score >= 0.9:
		return ConfidenceVeryHigh
	case score >= 0.75:
		return ConfidenceHigh
	case score >= 0.5:
		return ConfidenceMedium
	case score >= 0.25:
		return ConfidenceLow
	default:
		return ConfidenceVeryLow
	}
}
