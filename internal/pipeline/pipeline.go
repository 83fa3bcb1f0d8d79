package pipeline

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/veridata/quality-cli/internal/alert"
	"github.com/veridata/quality-cli/internal/clock"
	"github.com/veridata/quality-cli/internal/correction"
	"github.com/veridata/quality-cli/internal/model"
	"github.com/veridata/quality-cli/internal/provenance"
	"github.com/veridata/quality-cli/internal/quality"
	"github.com/veridata/quality-cli/internal/store"
)

// Orchestrator wires ingestion, scoring, alerting, and auto-correction into
// one per-entity flow. Each stage is independently usable; the orchestrator
// only sequences them.
type Orchestrator struct {
	store       store.Store
	ledger      *provenance.Ledger
	quality     *quality.Engine
	corrections *correction.Engine
	alerts      *alert.Engine
	clock       clock.Clock
	qcfg        quality.Config

	// Concurrency bounds RunBatch workers.
	Concurrency int
	// AutoCorrect submits generated suggestions after scoring.
	AutoCorrect bool
}

func New(st store.Store, ledger *provenance.Ledger, qe *quality.Engine, ce *correction.Engine, ae *alert.Engine, clk clock.Clock, qcfg quality.Config) *Orchestrator {
	return &Orchestrator{
		store:       st,
		ledger:      ledger,
		quality:     qe,
		corrections: ce,
		alerts:      ae,
		clock:       clk,
		qcfg:        qcfg,
		Concurrency: 5,
		AutoCorrect: true,
	}
}

// IngestRecord is one inbound record from a data source: a set of field
// values plus where they came from.
type IngestRecord struct {
	EntityID         string            `json:"entity_id,omitempty"`
	EntityType       model.EntityType  `json:"entity_type"`
	Fields           map[string]string `json:"fields"`
	SourceURL        string            `json:"source_url"`
	ExtractionMethod string            `json:"extraction_method,omitempty"`
	Confidence       float64           `json:"confidence,omitempty"`
	ExtractedAt      time.Time         `json:"extracted_at,omitempty"`
}

// IngestResult reports what one ingest produced.
type IngestResult struct {
	EntityID      string   `json:"entity_id"`
	Created       bool     `json:"created"`
	FieldsWritten int      `json:"fields_written"`
	OverallScore  float64  `json:"overall_score"`
	AlertsFired   int      `json:"alerts_fired"`
	Corrections   []string `json:"corrections,omitempty"`
}

// Ingest upserts the entity, records a provenance row per field, restamps
// the data hash, logs the change, then runs the scoring and alerting flow.
func (o *Orchestrator) Ingest(ctx context.Context, rec IngestRecord) (*IngestResult, error) {
	if len(rec.Fields) == 0 {
		return nil, eris.New("pipeline: ingest record has no fields")
	}
	if rec.EntityType == "" {
		return nil, eris.New("pipeline: ingest record has no entity type")
	}
	if rec.Confidence <= 0 {
		rec.Confidence = 0.8
	}
	if rec.ExtractionMethod == "" {
		rec.ExtractionMethod = "ingest"
	}
	if rec.ExtractedAt.IsZero() {
		rec.ExtractedAt = o.clock.Now()
	}

	now := o.clock.Now()
	created := false
	var entity *model.Entity
	if rec.EntityID != "" {
		var err error
		entity, err = o.store.GetEntity(ctx, rec.EntityID)
		if err != nil && !eris.Is(err, store.ErrNotFound) {
			return nil, eris.Wrapf(err, "pipeline: load entity %s", rec.EntityID)
		}
	}
	if entity == nil {
		id := rec.EntityID
		if id == "" {
			id = uuid.NewString()
		}
		entity = &model.Entity{
			ID:        id,
			Type:      rec.EntityType,
			Data:      make(map[string]string),
			IsActive:  true,
			CreatedAt: now,
		}
		created = true
	}

	written := 0
	for field, value := range rec.Fields {
		if strings.TrimSpace(value) == "" {
			continue
		}
		if _, err := o.ledger.RecordField(ctx, entity.ID, field, value, rec.SourceURL, rec.ExtractionMethod, rec.Confidence, rec.ExtractedAt); err != nil {
			return nil, eris.Wrapf(err, "pipeline: record provenance for %s.%s", entity.ID, field)
		}
		entity.Data[field] = value
		written++
	}
	if written == 0 {
		return nil, eris.New("pipeline: ingest record has only empty fields")
	}

	entity.DataHash = provenance.DataHash(entity.Data)
	entity.UpdatedAt = now
	if err := o.store.SaveEntity(ctx, entity); err != nil {
		return nil, eris.Wrapf(err, "pipeline: save entity %s", entity.ID)
	}
	if err := o.store.AppendChangeLog(ctx, &model.ChangeLogEntry{
		ID:        uuid.NewString(),
		EntityID:  entity.ID,
		Type:      model.ChangeTypeIngest,
		ChangedBy: rec.SourceURL,
		Reason:    "ingested " + rec.ExtractionMethod + " record",
		Metadata:  map[string]string{"fields": strconv.Itoa(written)},
		ChangedAt: now,
	}); err != nil {
		return nil, eris.Wrap(err, "pipeline: ingest change log")
	}

	result, err := o.ProcessEntity(ctx, entity.ID)
	if err != nil {
		return nil, err
	}
	result.Created = created
	result.FieldsWritten = written
	return result, nil
}

// ProcessEntity runs score, alert, suggest, and auto-submit for one entity.
// Suggestion failures degrade to warnings; scoring failures abort.
func (o *Orchestrator) ProcessEntity(ctx context.Context, entityID string) (*IngestResult, error) {
	assessment, err := o.quality.AssessEntity(ctx, entityID)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: assess %s", entityID)
	}

	entity, err := o.store.GetEntity(ctx, entityID)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: reload %s", entityID)
	}
	fired, err := o.alerts.EvaluateEntity(ctx, entity)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: alerts for %s", entityID)
	}

	result := &IngestResult{
		EntityID:     entityID,
		OverallScore: assessment.OverallScore,
		AlertsFired:  len(fired),
	}
	if !o.AutoCorrect {
		return result, nil
	}

	suggestions, err := o.corrections.Suggest(ctx, entityID, o.qcfg)
	if err != nil {
		zap.L().Warn("suggestion generation failed",
			zap.String("entity_id", entityID), zap.Error(err))
		return result, nil
	}
	applied := false
	for _, s := range suggestions {
		// Sub-threshold suggestions still enter the review queue; only the
		// auto-apply flag depends on the per-type threshold.
		c, err := o.corrections.Submit(ctx, correction.SubmitRequest{
			EntityID:       s.EntityID,
			FieldName:      s.FieldName,
			SuggestedValue: s.SuggestedValue,
			Type:           s.Type,
			SubmittedBy:    "pipeline",
			MergeTargetID:  s.MergeTargetID,
			AutoApply:      s.Confidence >= s.AutoApplyThreshold,
		})
		if err != nil {
			if eris.Is(err, correction.ErrValidationFailed) {
				zap.L().Debug("auto-correction rejected by validation",
					zap.String("entity_id", s.EntityID), zap.String("field", s.FieldName))
				continue
			}
			zap.L().Warn("auto-correction submit failed",
				zap.String("entity_id", s.EntityID), zap.String("field", s.FieldName), zap.Error(err))
			continue
		}
		result.Corrections = append(result.Corrections, c.ID)
		if c.Status == model.CorrectionApplied {
			applied = true
		}
	}

	// Applied corrections changed the data, so the scores are stale.
	if applied {
		rescored, err := o.quality.AssessEntity(ctx, entityID)
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: rescore %s", entityID)
		}
		result.OverallScore = rescored.OverallScore
	}
	return result, nil
}

// BatchSummary aggregates one RunBatch.
type BatchSummary struct {
	Processed int               `json:"processed"`
	Alerts    int               `json:"alerts"`
	Errors    map[string]string `json:"errors,omitempty"`
}

// RunBatch processes every matching entity concurrently. A single entity's
// failure is recorded, not fatal; cancellation stops scheduling new work.
func (o *Orchestrator) RunBatch(ctx context.Context, filter store.EntityFilter) (*BatchSummary, error) {
	entities, err := o.store.ListEntities(ctx, filter)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: list entities")
	}

	summary := &BatchSummary{Errors: make(map[string]string)}
	var mu sync.Mutex

	limit := o.Concurrency
	if limit <= 0 {
		limit = 5
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i := range entities {
		ent := entities[i]
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			res, err := o.ProcessEntity(gctx, ent.ID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				summary.Errors[ent.ID] = err.Error()
				zap.L().Warn("batch entity processing failed",
					zap.String("entity_id", ent.ID), zap.Error(err))
				return nil
			}
			summary.Processed++
			summary.Alerts += res.AlertsFired
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return summary, eris.Wrap(err, "pipeline: batch cancelled")
	}
	zap.L().Info("batch run complete",
		zap.Int("processed", summary.Processed),
		zap.Int("alerts", summary.Alerts),
		zap.Int("errors", len(summary.Errors)))
	return summary, nil
}
