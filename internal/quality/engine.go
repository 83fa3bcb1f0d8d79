package quality

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/veridata/quality-cli/internal/clock"
	"github.com/veridata/quality-cli/internal/model"
	"github.com/veridata/quality-cli/internal/store"
)

// AssessmentResult is the outcome of scoring one entity.
type AssessmentResult struct {
	EntityID        string                `json:"entity_id"`
	OverallScore    float64               `json:"overall_score"`
	QualityStatus   model.QualityStatus   `json:"quality_status"`
	ConfidenceLevel model.ConfidenceLevel `json:"confidence_level"`
	Metrics         []Metric              `json:"metrics"`
}

// BatchResult aggregates a BatchAssess run. One entity's failure never aborts
// the rest; it lands in Errors instead.
type BatchResult struct {
	Assessed int               `json:"assessed"`
	Errors   map[string]string `json:"errors,omitempty"`
}

// Engine runs the assessor set over entities and persists the results.
type Engine struct {
	store     store.Store
	clock     clock.Clock
	cfg       Config
	assessors []Assessor
}

// NewEngine creates a scoring engine with the four standard assessors.
func NewEngine(st store.Store, clk clock.Clock, cfg Config) *Engine {
	return &Engine{
		store: st,
		clock: clk,
		cfg:   cfg,
		assessors: []Assessor{
			NewCompletenessAssessor(cfg),
			NewConsistencyAssessor(cfg),
			NewFreshnessAssessor(cfg),
			NewConfidenceAssessor(cfg),
		},
	}
}

// AssessEntity scores one entity: every assessor runs, a failed assessor
// contributes zero at its configured weight, and the weighted overall score
// plus one QualityAssessment row per assessor are persisted.
func (e *Engine) AssessEntity(ctx context.Context, entityID string) (*AssessmentResult, error) {
	entity, err := e.store.GetEntity(ctx, entityID)
	if err != nil {
		return nil, eris.Wrapf(err, "quality: assess %s", entityID)
	}

	records, err := e.store.GetProvenance(ctx, entityID, "")
	if err != nil {
		return nil, eris.Wrap(err, "quality: load provenance")
	}

	sources, err := e.loadSources(ctx, records)
	if err != nil {
		return nil, err
	}

	in := Input{Entity: entity, Provenance: records, Sources: sources, Now: e.clock.Now()}

	result := &AssessmentResult{EntityID: entityID}
	var weightedSum, totalWeight float64
	hasIssues := false

	for _, assessor := range e.assessors {
		metric := e.runAssessor(assessor, in)
		if metric.Err != nil {
			// Punitive, not invisible: the failed dimension scores zero at
			// full weight instead of dropping out of the denominator.
			metric.Score = 0
			metric.Issues = append(metric.Issues, fmt.Sprintf("assessor failed: %v", metric.Err))
			zap.L().Warn("quality: assessor failed",
				zap.String("entity_id", entityID),
				zap.String("assessor", metric.Name),
				zap.Error(metric.Err),
			)
		}
		weightedSum += metric.Score * metric.Weight
		totalWeight += metric.Weight
		if len(metric.Issues) > 0 {
			hasIssues = true
		}
		result.Metrics = append(result.Metrics, metric)
	}

	if totalWeight > 0 {
		result.OverallScore = clamp01(weightedSum / totalWeight)
	}
	result.QualityStatus = model.QualityStatusFor(result.OverallScore)

	e.applyScores(entity, result)
	entity.HasIssues = hasIssues
	result.ConfidenceLevel = model.ConfidenceLevelFor(entity.Confidence)
	entity.ConfidenceLevel = result.ConfidenceLevel

	if err := e.store.SaveEntity(ctx, entity); err != nil {
		return nil, eris.Wrap(err, "quality: save entity scores")
	}

	now := e.clock.Now()
	for _, metric := range result.Metrics {
		assessment := &model.QualityAssessment{
			ID:              uuid.New().String(),
			EntityID:        entityID,
			AssessorName:    metric.Name,
			Score:           metric.Score,
			Weight:          metric.Weight,
			Issues:          metric.Issues,
			Recommendations: metric.Recommendations,
			AssessedAt:      now,
		}
		if err := e.store.SaveAssessment(ctx, assessment); err != nil {
			return nil, eris.Wrapf(err, "quality: save %s assessment", metric.Name)
		}
	}
	return result, nil
}

// runAssessor isolates one assessor so a panic degrades to a failed metric.
func (e *Engine) runAssessor(a Assessor, in Input) (m Metric) {
	defer func() {
		if r := recover(); r != nil {
			m = Metric{
				Name:   a.Name(),
				Weight: e.cfg.weightFor(a.Name()),
				Err:    eris.Errorf("panic: %v", r),
			}
		}
	}()
	return a.Assess(in)
}

// applyScores copies per-dimension scores onto the entity's score fields.
func (e *Engine) applyScores(entity *model.Entity, result *AssessmentResult) {
	for _, m := range result.Metrics {
		switch m.Name {
		case AssessorCompleteness:
			entity.Completeness = m.Score
		case AssessorConsistency:
			entity.Consistency = m.Score
		case AssessorFreshness:
			entity.Freshness = m.Score
		case AssessorConfidence:
			entity.Confidence = m.Score
		}
	}
	entity.OverallScore = result.OverallScore
	entity.QualityStatus = result.QualityStatus
	entity.UpdatedAt = e.clock.Now()
}

func (e *Engine) loadSources(ctx context.Context, records []model.ProvenanceRecord) (map[string]model.DataSource, error) {
	sources := make(map[string]model.DataSource)
	for _, rec := range records {
		if rec.SourceID == "" {
			continue
		}
		if _, ok := sources[rec.SourceID]; ok {
			continue
		}
		src, err := e.store.GetSource(ctx, rec.SourceID)
		if eris.Is(err, store.ErrNotFound) {
			continue // assessors treat a missing source as unknown reliability
		}
		if err != nil {
			return nil, eris.Wrapf(err, "quality: load source %s", rec.SourceID)
		}
		sources[rec.SourceID] = *src
	}
	return sources, nil
}

// BatchAssess scores the given entities concurrently. Per-entity failures are
// collected in the result, never aborting the batch; the context is honored
// at entity boundaries.
func (e *Engine) BatchAssess(ctx context.Context, entityIDs []string) (*BatchResult, error) {
	concurrency := e.cfg.BatchConcurrency
	if concurrency <= 0 {
		concurrency = 5
	}

	result := &BatchResult{Errors: make(map[string]string)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, id := range entityIDs {
		if err := gctx.Err(); err != nil {
			break
		}
		g.Go(func() error {
			if _, err := e.AssessEntity(gctx, id); err != nil {
				mu.Lock()
				result.Errors[id] = err.Error()
				mu.Unlock()
				zap.L().Error("quality: batch assess failed", zap.String("entity_id", id), zap.Error(err))
				return nil // don't abort batch on individual failure
			}
			mu.Lock()
			result.Assessed++
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return result, eris.Wrap(err, "quality: batch assess")
	}
	return result, nil
}
