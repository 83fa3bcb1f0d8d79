package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/veridata/quality-cli/internal/model"
)

// Taxonomy errors. Store implementations wrap these so callers can match with
// eris.Is regardless of backend.
var (
	ErrNotFound = eris.New("store: not found")
	ErrConflict = eris.New("store: conflict")
)

// EntityFilter selects entities for listing and batch processing.
type EntityFilter struct {
	Type       model.EntityType `json:"entity_type,omitempty"`
	ActiveOnly bool             `json:"active_only,omitempty"`
	Limit      int              `json:"limit,omitempty"`
	Offset     int              `json:"offset,omitempty"`
}

// CorrectionFilter selects corrections.
type CorrectionFilter struct {
	EntityID string                   `json:"entity_id,omitempty"`
	Statuses []model.CorrectionStatus `json:"statuses,omitempty"`
	Limit    int                      `json:"limit,omitempty"`
}

// AlertFilter selects alerts.
type AlertFilter struct {
	RuleName   string `json:"rule_name,omitempty"`
	SubjectID  string `json:"subject_id,omitempty"`
	Unresolved bool   `json:"unresolved,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}

// Store is the persistence interface for the quality engine. A single
// entity's read-modify-write is serialized by the implementation; no
// cross-entity coordination is provided or needed.
type Store interface {
	// Entities
	GetEntity(ctx context.Context, id string) (*model.Entity, error)
	SaveEntity(ctx context.Context, e *model.Entity) error
	ListEntities(ctx context.Context, filter EntityFilter) ([]model.Entity, error)

	// Provenance. field == "" returns all fields, newest first.
	GetProvenance(ctx context.Context, entityID, field string) ([]model.ProvenanceRecord, error)
	AppendProvenance(ctx context.Context, rec *model.ProvenanceRecord) error

	// Sources
	GetSource(ctx context.Context, id string) (*model.DataSource, error)
	SaveSource(ctx context.Context, s *model.DataSource) error
	ListSources(ctx context.Context) ([]model.DataSource, error)

	// Assessments. Zero since returns full history, newest first.
	SaveAssessment(ctx context.Context, a *model.QualityAssessment) error
	ListAssessments(ctx context.Context, entityID string, since time.Time) ([]model.QualityAssessment, error)

	// Corrections
	GetCorrection(ctx context.Context, id string) (*model.Correction, error)
	SaveCorrection(ctx context.Context, c *model.Correction) error
	ListCorrections(ctx context.Context, filter CorrectionFilter) ([]model.Correction, error)
	// FindConflictingCorrections returns live corrections targeting the same
	// (entity, field), excluding the given correction ID.
	FindConflictingCorrections(ctx context.Context, entityID, field, excludeID string) ([]model.Correction, error)

	// Alerts
	SaveAlert(ctx context.Context, a *model.Alert) error
	// FindRecentAlert returns the newest alert for (rule, subject) triggered
	// at or after since, or nil when none exists.
	FindRecentAlert(ctx context.Context, ruleName, subjectID string, since time.Time) (*model.Alert, error)
	ListAlerts(ctx context.Context, filter AlertFilter) ([]model.Alert, error)

	// Change log
	AppendChangeLog(ctx context.Context, c *model.ChangeLogEntry) error
	ListChangeLog(ctx context.Context, entityID string) ([]model.ChangeLogEntry, error)

	// ApplyMerge persists a completed entity merge atomically: both entities
	// and the change-log entry land together or not at all.
	ApplyMerge(ctx context.Context, primary, target *model.Entity, entry *model.ChangeLogEntry) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
