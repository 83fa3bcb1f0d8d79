package correction

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/veridata/quality-cli/internal/clock"
	"github.com/veridata/quality-cli/internal/model"
	"github.com/veridata/quality-cli/internal/provenance"
	"github.com/veridata/quality-cli/internal/store"
)

// ErrValidationFailed marks corrections rejected by type or business rules,
// including state-machine violations. Matched with eris.Is.
var ErrValidationFailed = eris.New("correction: validation failed")

// Config tunes the correction engine.
type Config struct {
	// AutoApplyConfidence is the minimum validation confidence for applying
	// a submitted correction without human review.
	AutoApplyConfidence float64 `yaml:"auto_apply_confidence" mapstructure:"auto_apply_confidence"`
	// SimilarityThreshold gates duplicate-merge suggestions.
	SimilarityThreshold float64 `yaml:"similarity_threshold" mapstructure:"similarity_threshold"`
}

// DefaultConfig returns the built-in correction configuration.
func DefaultConfig() Config {
	return Config{
		AutoApplyConfidence: 0.95,
		SimilarityThreshold: 0.85,
	}
}

// Engine drives the correction state machine:
// pending -> approved|rejected, approved -> applied, and any live correction
// is superseded when a newer one targets the same (entity, field).
type Engine struct {
	store store.Store
	clock clock.Clock
	cfg   Config
}

// NewEngine creates a correction engine.
func NewEngine(st store.Store, clk clock.Clock, cfg Config) *Engine {
	return &Engine{store: st, clock: clk, cfg: cfg}
}

// SubmitRequest describes a correction to create.
type SubmitRequest struct {
	EntityID       string               `json:"entity_id"`
	FieldName      string               `json:"field_name"`
	SuggestedValue string               `json:"suggested_value"`
	Type           model.CorrectionType `json:"correction_type"`
	SubmittedBy    string               `json:"submitted_by"`
	MergeTargetID  string               `json:"merge_target_id,omitempty"`
	// AutoApply requests immediate application when validation confidence
	// clears the configured gate.
	AutoApply bool `json:"auto_apply,omitempty"`
}

// Submit validates and creates a PENDING correction, superseding any older
// live correction on the same field. With AutoApply set and the confidence
// gate cleared, the correction is approved and applied in the same call.
func (e *Engine) Submit(ctx context.Context, req SubmitRequest) (*model.Correction, error) {
	entity, err := e.store.GetEntity(ctx, req.EntityID)
	if err != nil {
		return nil, eris.Wrapf(err, "correction: submit for %s", req.EntityID)
	}

	now := e.clock.Now()
	c := &model.Correction{
		ID:             uuid.New().String(),
		EntityID:       req.EntityID,
		FieldName:      req.FieldName,
		CurrentValue:   entity.Data[req.FieldName],
		SuggestedValue: req.SuggestedValue,
		Type:           req.Type,
		SubmittedBy:    req.SubmittedBy,
		Status:         model.CorrectionPending,
		MergeTargetID:  req.MergeTargetID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	records, err := e.store.GetProvenance(ctx, req.EntityID, req.FieldName)
	if err != nil {
		return nil, eris.Wrap(err, "correction: load provenance")
	}
	conflicts, err := e.store.FindConflictingCorrections(ctx, req.EntityID, req.FieldName, c.ID)
	if err != nil {
		return nil, eris.Wrap(err, "correction: find conflicts")
	}

	validation := Validate(c, entity, records, conflicts)
	c.Confidence = validation.Confidence
	if !validation.Valid {
		return nil, eris.Wrapf(ErrValidationFailed, "correction: %s", strings.Join(validation.Issues, "; "))
	}

	// A newer correction on the same field supersedes older live ones,
	// keeping at most one live correction per (entity, field).
	for _, old := range conflicts {
		old.Status = model.CorrectionSuperseded
		old.UpdatedAt = now
		if err := e.store.SaveCorrection(ctx, &old); err != nil {
			return nil, eris.Wrapf(err, "correction: supersede %s", old.ID)
		}
	}

	if err := e.store.SaveCorrection(ctx, c); err != nil {
		return nil, eris.Wrap(err, "correction: save")
	}

	zap.L().Info("correction submitted",
		zap.String("correction_id", c.ID),
		zap.String("entity_id", c.EntityID),
		zap.String("field", c.FieldName),
		zap.Float64("confidence", c.Confidence),
		zap.Int("superseded", len(conflicts)),
	)

	if req.AutoApply && validation.Valid && c.Confidence >= e.cfg.AutoApplyConfidence {
		c.Status = model.CorrectionApproved
		c.ReviewedBy = "auto-apply"
		t := e.clock.Now()
		c.ReviewedAt = &t
		c.UpdatedAt = t
		if err := e.store.SaveCorrection(ctx, c); err != nil {
			return nil, eris.Wrap(err, "correction: auto-approve")
		}
		if _, err := e.Apply(ctx, c.ID, "auto-apply"); err != nil {
			return nil, eris.Wrap(err, "correction: auto-apply")
		}
		return e.store.GetCorrection(ctx, c.ID)
	}
	return c, nil
}

// Review decides a pending correction. Approving triggers Apply.
func (e *Engine) Review(ctx context.Context, id, reviewer, decision, notes string) (*model.Correction, error) {
	c, err := e.store.GetCorrection(ctx, id)
	if err != nil {
		return nil, eris.Wrapf(err, "correction: review %s", id)
	}

	var next model.CorrectionStatus
	switch decision {
	case "approve":
		next = model.CorrectionApproved
	case "reject":
		next = model.CorrectionRejected
	default:
		return nil, eris.Wrapf(ErrValidationFailed, "correction: unknown decision %q", decision)
	}

	if !c.Status.CanTransitionTo(next) {
		return nil, eris.Wrapf(ErrValidationFailed, "correction: cannot move %s from %s to %s", id, c.Status, next)
	}

	now := e.clock.Now()
	c.Status = next
	c.ReviewedBy = reviewer
	c.ReviewedAt = &now
	c.ReviewNotes = notes
	c.UpdatedAt = now
	if err := e.store.SaveCorrection(ctx, c); err != nil {
		return nil, eris.Wrapf(err, "correction: save review %s", id)
	}

	if next == model.CorrectionApproved {
		if _, err := e.Apply(ctx, id, reviewer); err != nil {
			return nil, err
		}
		return e.store.GetCorrection(ctx, id)
	}
	return c, nil
}

// Apply writes an APPROVED correction into the entity and records a change
// log entry. Any failure surfaces and leaves the correction APPROVED so the
// apply can be retried.
func (e *Engine) Apply(ctx context.Context, id, appliedBy string) (*model.ChangeLogEntry, error) {
	c, err := e.store.GetCorrection(ctx, id)
	if err != nil {
		return nil, eris.Wrapf(err, "correction: apply %s", id)
	}
	if c.Status != model.CorrectionApproved {
		return nil, eris.Wrapf(ErrValidationFailed, "correction: apply requires approved status, %s is %s", id, c.Status)
	}

	var entry *model.ChangeLogEntry
	if c.Type == model.CorrectionMergeEntities {
		entry, err = e.MergeEntities(ctx, c.EntityID, c.MergeTargetID, appliedBy)
	} else {
		entry, err = e.applyField(ctx, c, appliedBy)
	}
	if err != nil {
		return nil, err
	}

	now := e.clock.Now()
	c.Status = model.CorrectionApplied
	c.AppliedBy = appliedBy
	c.AppliedAt = &now
	c.ChangeLogID = entry.ID
	c.UpdatedAt = now
	if err := e.store.SaveCorrection(ctx, c); err != nil {
		return nil, eris.Wrapf(err, "correction: record apply %s", id)
	}

	zap.L().Info("correction applied",
		zap.String("correction_id", c.ID),
		zap.String("entity_id", c.EntityID),
		zap.String("change_log_id", entry.ID),
	)
	return entry, nil
}

// applyField writes a single-field correction into Entity.data.
func (e *Engine) applyField(ctx context.Context, c *model.Correction, appliedBy string) (*model.ChangeLogEntry, error) {
	entity, err := e.store.GetEntity(ctx, c.EntityID)
	if err != nil {
		return nil, eris.Wrapf(err, "correction: load entity %s", c.EntityID)
	}

	now := e.clock.Now()
	oldValue := entity.Data[c.FieldName]
	if entity.Data == nil {
		entity.Data = make(map[string]string)
	}
	entity.Data[c.FieldName] = c.SuggestedValue
	entity.DataHash = provenance.DataHash(entity.Data)
	entity.UpdatedAt = now

	entry := &model.ChangeLogEntry{
		ID:        uuid.New().String(),
		EntityID:  c.EntityID,
		FieldName: c.FieldName,
		Type:      model.ChangeTypeCorrection,
		OldValue:  oldValue,
		NewValue:  c.SuggestedValue,
		ChangedBy: appliedBy,
		Reason:    "correction " + c.ID,
		Metadata:  map[string]string{"correction_id": c.ID, "correction_type": string(c.Type)},
		ChangedAt: now,
	}

	if err := e.store.SaveEntity(ctx, entity); err != nil {
		return nil, eris.Wrapf(err, "correction: write field %s", c.FieldName)
	}
	if err := e.store.AppendChangeLog(ctx, entry); err != nil {
		return nil, eris.Wrap(err, "correction: change log")
	}
	return entry, nil
}

// MergeEntities folds target into primary. Primary's fields win on key
// collision; the target is deactivated and back-referenced. The store
// applies both sides and the change entry atomically.
func (e *Engine) MergeEntities(ctx context.Context, primaryID, targetID, mergedBy string) (*model.ChangeLogEntry, error) {
	if targetID == "" || targetID == primaryID {
		return nil, eris.Wrapf(ErrValidationFailed, "correction: invalid merge target %q", targetID)
	}

	primary, err := e.store.GetEntity(ctx, primaryID)
	if err != nil {
		return nil, eris.Wrapf(err, "correction: merge primary %s", primaryID)
	}
	target, err := e.store.GetEntity(ctx, targetID)
	if err != nil {
		return nil, eris.Wrapf(err, "correction: merge target %s", targetID)
	}

	now := e.clock.Now()
	if primary.Data == nil {
		primary.Data = make(map[string]string)
	}
	for k, v := range target.Data {
		if _, exists := primary.Data[k]; !exists {
			primary.Data[k] = v
		}
	}
	primary.DataHash = provenance.DataHash(primary.Data)
	primary.UpdatedAt = now

	target.IsDuplicate = true
	target.DuplicateOf = primary.ID
	target.IsActive = false
	target.DataHash = provenance.DataHash(target.Data)
	target.UpdatedAt = now

	entry := &model.ChangeLogEntry{
		ID:        uuid.New().String(),
		EntityID:  primary.ID,
		Type:      model.ChangeTypeMerge,
		OldValue:  targetID,
		NewValue:  primary.ID,
		ChangedBy: mergedBy,
		Reason:    "merged duplicate entity " + targetID,
		Metadata:  map[string]string{"merged_entity_id": targetID},
		ChangedAt: now,
	}

	if err := e.store.ApplyMerge(ctx, primary, target, entry); err != nil {
		return nil, eris.Wrapf(err, "correction: merge %s into %s", targetID, primaryID)
	}

	zap.L().Info("entities merged",
		zap.String("primary_id", primaryID),
		zap.String("target_id", targetID),
	)
	return entry, nil
}

// Pending lists corrections awaiting review for an entity ("" for all).
func (e *Engine) Pending(ctx context.Context, entityID string) ([]model.Correction, error) {
	return e.store.ListCorrections(ctx, store.CorrectionFilter{
		EntityID: entityID,
		Statuses: []model.CorrectionStatus{model.CorrectionPending},
	})
}
