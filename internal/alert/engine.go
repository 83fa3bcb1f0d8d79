package alert

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/veridata/quality-cli/internal/clock"
	"github.com/veridata/quality-cli/internal/model"
	"github.com/veridata/quality-cli/internal/store"
)

// Notifier delivers a fired alert to zero or more channels. The returned map
// reports per-channel success.
type Notifier interface {
	Send(ctx context.Context, a *model.Alert) map[string]bool
}

const (
	baselineWindowNear = 7 * 24 * time.Hour
	baselineWindowFar  = 30 * 24 * time.Hour
	sourceWindow       = 7 * 24 * time.Hour

	defaultBatchConcurrency = 5
)

// Engine evaluates alert rules against entities and data sources, with a
// per-(rule, subject) cooldown so repeated breaches do not refire.
type Engine struct {
	store    store.Store
	clock    clock.Clock
	notifier Notifier
	rules    []Rule
}

func NewEngine(st store.Store, ck clock.Clock, rules []Rule, notifier Notifier) *Engine {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Engine{store: st, clock: ck, notifier: notifier, rules: rules}
}

// Summary aggregates one ProcessBatch run.
type Summary struct {
	Evaluated  int                         `json:"evaluated"`
	Fired      int                         `json:"fired"`
	BySeverity map[model.AlertSeverity]int `json:"by_severity"`
	Errors     map[string]string           `json:"errors,omitempty"`
}

// EvaluateEntity runs every enabled entity rule against one entity and
// returns the alerts that fired (cooldown-suppressed breaches excluded).
func (e *Engine) EvaluateEntity(ctx context.Context, entity *model.Entity) ([]model.Alert, error) {
	now := e.clock.Now()
	metrics := map[string]float64{
		"overall":           entity.OverallScore,
		"completeness":      entity.Completeness,
		"consistency":       entity.Consistency,
		"freshness":         entity.Freshness,
		"confidence":        entity.Confidence,
		"days_since_update": now.Sub(entity.UpdatedAt).Hours() / 24,
	}

	var fired []model.Alert
	for _, rule := range e.rules {
		if !rule.Matches(model.SubjectEntity, entity.Type, "") || !rule.IsEnabled() {
			continue
		}
		value, ok := metrics[rule.Metric]
		if !ok {
			zap.L().Debug("alert rule references unknown entity metric",
				zap.String("rule", rule.Name), zap.String("metric", rule.Metric))
			continue
		}
		breached, msg, err := e.checkCondition(ctx, rule, entity.ID, value)
		if err != nil {
			return nil, err
		}
		if !breached {
			continue
		}
		a, err := e.fire(ctx, rule, model.SubjectEntity, entity.ID, value, msg, now)
		if err != nil {
			return nil, err
		}
		if a != nil {
			fired = append(fired, *a)
		}
	}
	return fired, nil
}

// EvaluateSource runs every enabled source rule against one data source.
func (e *Engine) EvaluateSource(ctx context.Context, src *model.DataSource) ([]model.Alert, error) {
	now := e.clock.Now()
	metrics, err := e.sourceMetrics(ctx, src, now)
	if err != nil {
		return nil, err
	}

	var fired []model.Alert
	for _, rule := range e.rules {
		if !rule.Matches(model.SubjectSource, "", src.ID) || !rule.IsEnabled() {
			continue
		}
		value, ok := metrics[rule.Metric]
		if !ok {
			zap.L().Debug("alert rule references unknown source metric",
				zap.String("rule", rule.Name), zap.String("metric", rule.Metric))
			continue
		}
		breached, msg := staticBreach(rule, value)
		if !breached {
			continue
		}
		a, err := e.fire(ctx, rule, model.SubjectSource, src.ID, value, msg, now)
		if err != nil {
			return nil, err
		}
		if a != nil {
			fired = append(fired, *a)
		}
	}
	return fired, nil
}

// checkCondition evaluates one rule against a current metric value.
// pct_change needs assessment history, the other conditions are pure.
func (e *Engine) checkCondition(ctx context.Context, rule Rule, entityID string, value float64) (bool, string, error) {
	if rule.Condition != ConditionPctChange {
		breached, msg := staticBreach(rule, value)
		return breached, msg, nil
	}

	baseline, points, err := e.baseline(ctx, rule.Metric, entityID)
	if err != nil {
		return false, "", err
	}
	if points < 2 {
		zap.L().Debug("skipping pct_change rule, insufficient baseline",
			zap.String("rule", rule.Name), zap.String("entity_id", entityID), zap.Int("points", points))
		return false, "", nil
	}
	if baseline <= 0 {
		return false, "", nil
	}
	drop := (baseline - value) / baseline
	if drop < rule.Threshold {
		return false, "", nil
	}
	msg := fmt.Sprintf("%s dropped %.0f%% from baseline %.2f to %.2f (threshold %.0f%%)",
		rule.Metric, drop*100, baseline, value, rule.Threshold*100)
	return true, msg, nil
}

// baseline averages assessment scores for a metric in the 7 to 30 day
// lookback window, so recent volatility does not poison its own reference.
// The "overall" baseline weights each assessor row by its recorded weight,
// mirroring how the overall score was combined at assessment time.
func (e *Engine) baseline(ctx context.Context, metric, entityID string) (float64, int, error) {
	now := e.clock.Now()
	history, err := e.store.ListAssessments(ctx, entityID, now.Add(-baselineWindowFar))
	if err != nil {
		return 0, 0, eris.Wrap(err, "alert: load assessment baseline")
	}
	cutoff := now.Add(-baselineWindowNear)
	sum, weightSum := 0.0, 0.0
	n := 0
	for _, a := range history {
		if a.AssessedAt.After(cutoff) {
			continue
		}
		if metric != "overall" && a.AssessorName != metric {
			continue
		}
		w := 1.0
		if metric == "overall" && a.Weight > 0 {
			w = a.Weight
		}
		sum += a.Score * w
		weightSum += w
		n++
	}
	if n == 0 || weightSum <= 0 {
		return 0, 0, nil
	}
	return sum / weightSum, n, nil
}

func staticBreach(rule Rule, value float64) (bool, string) {
	switch rule.Condition {
	case ConditionBelow:
		if value < rule.Threshold {
			return true, fmt.Sprintf("%s %.2f is below threshold %.2f", rule.Metric, value, rule.Threshold)
		}
	case ConditionAbove:
		if value > rule.Threshold {
			return true, fmt.Sprintf("%s %.2f is above threshold %.2f", rule.Metric, value, rule.Threshold)
		}
	case ConditionStalenessExceeded:
		if value > rule.Threshold {
			return true, fmt.Sprintf("no update for %.0f days, limit is %.0f", value, rule.Threshold)
		}
	}
	return false, ""
}

// fire persists an alert unless the same (rule, subject) pair triggered
// within the cooldown. Notification failures are logged, never returned.
func (e *Engine) fire(ctx context.Context, rule Rule, kind model.SubjectKind, subjectID string, value float64, msg string, now time.Time) (*model.Alert, error) {
	since := now.Add(-time.Duration(rule.CooldownMinutes) * time.Minute)
	recent, err := e.store.FindRecentAlert(ctx, rule.Name, subjectID, since)
	if err != nil {
		return nil, eris.Wrapf(err, "alert: cooldown lookup for rule %s", rule.Name)
	}
	if recent != nil {
		zap.L().Debug("alert suppressed by cooldown",
			zap.String("rule", rule.Name), zap.String("subject_id", subjectID),
			zap.Time("last_triggered", recent.TriggeredAt))
		return nil, nil
	}

	a := &model.Alert{
		ID:          uuid.NewString(),
		RuleName:    rule.Name,
		SubjectKind: kind,
		SubjectID:   subjectID,
		MetricName:  rule.Metric,
		MetricValue: value,
		Threshold:   rule.Threshold,
		Severity:    rule.Severity,
		Message:     msg,
		TriggeredAt: now,
	}
	if err := e.store.SaveAlert(ctx, a); err != nil {
		return nil, eris.Wrapf(err, "alert: save alert for rule %s", rule.Name)
	}
	zap.L().Info("alert fired",
		zap.String("rule", rule.Name),
		zap.String("subject_id", subjectID),
		zap.String("severity", string(rule.Severity)),
		zap.Float64("value", value))

	if e.notifier != nil {
		for channel, ok := range e.notifier.Send(ctx, a) {
			if !ok {
				zap.L().Warn("alert notification failed",
					zap.String("rule", rule.Name), zap.String("channel", channel))
			}
		}
	}
	return a, nil
}

// sourceMetrics derives per-source health numbers from the source counters
// and the entities it contributed provenance to in the last 7 days.
func (e *Engine) sourceMetrics(ctx context.Context, src *model.DataSource, now time.Time) (map[string]float64, error) {
	metrics := map[string]float64{"error_rate": 0}
	if src.TotalRequests > 0 {
		metrics["error_rate"] = 1 - float64(src.SuccessfulRequests)/float64(src.TotalRequests)
	}

	entities, err := e.store.ListEntities(ctx, store.EntityFilter{})
	if err != nil {
		return nil, eris.Wrap(err, "alert: list entities for source metrics")
	}
	cutoff := now.Add(-sourceWindow)

	var count, dupes int
	var qualitySum float64
	for i := range entities {
		ent := &entities[i]
		records, err := e.store.GetProvenance(ctx, ent.ID, "")
		if err != nil {
			return nil, eris.Wrapf(err, "alert: provenance for %s", ent.ID)
		}
		contributed := false
		for _, rec := range records {
			if rec.SourceID == src.ID && rec.ExtractedAt.After(cutoff) {
				contributed = true
				break
			}
		}
		if !contributed {
			continue
		}
		count++
		qualitySum += ent.OverallScore
		if ent.IsDuplicate {
			dupes++
		}
	}

	metrics["entity_count"] = float64(count)
	if count > 0 {
		metrics["avg_quality"] = qualitySum / float64(count)
		metrics["duplicate_rate"] = float64(dupes) / float64(count)
	}
	return metrics, nil
}

// ProcessBatch evaluates every active entity and every source, concurrently
// for entities. Individual failures are collected, never abort the batch.
func (e *Engine) ProcessBatch(ctx context.Context, limit int) (*Summary, error) {
	entities, err := e.store.ListEntities(ctx, store.EntityFilter{ActiveOnly: true, Limit: limit})
	if err != nil {
		return nil, eris.Wrap(err, "alert: list entities for batch")
	}

	summary := &Summary{
		BySeverity: make(map[model.AlertSeverity]int),
		Errors:     make(map[string]string),
	}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(defaultBatchConcurrency)
	for i := range entities {
		ent := entities[i]
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			fired, err := e.EvaluateEntity(gctx, &ent)
			mu.Lock()
			defer mu.Unlock()
			summary.Evaluated++
			if err != nil {
				summary.Errors[ent.ID] = err.Error()
				zap.L().Warn("entity alert evaluation failed",
					zap.String("entity_id", ent.ID), zap.Error(err))
				return nil
			}
			summary.Fired += len(fired)
			for _, a := range fired {
				summary.BySeverity[a.Severity]++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return summary, eris.Wrap(err, "alert: batch cancelled")
	}

	sources, err := e.store.ListSources(ctx)
	if err != nil {
		return summary, eris.Wrap(err, "alert: list sources for batch")
	}
	for i := range sources {
		src := sources[i]
		summary.Evaluated++
		fired, err := e.EvaluateSource(ctx, &src)
		if err != nil {
			summary.Errors["source:"+src.ID] = err.Error()
			zap.L().Warn("source alert evaluation failed",
				zap.String("source_id", src.ID), zap.Error(err))
			continue
		}
		summary.Fired += len(fired)
		for _, a := range fired {
			summary.BySeverity[a.Severity]++
		}
	}
	return summary, nil
}
