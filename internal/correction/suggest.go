package correction

import (
	"context"
	"fmt"
	"strings"

	"github.com/agext/levenshtein"
	"github.com/rotisserie/eris"

	"github.com/veridata/quality-cli/internal/model"
	"github.com/veridata/quality-cli/internal/quality"
	"github.com/veridata/quality-cli/internal/store"
)

// Auto-apply thresholds per suggestion kind: normalizations are safe at 0.8,
// reconciliations and merges need near-certainty.
const (
	thresholdNormalize = 0.80
	thresholdFill      = 0.90
	thresholdReconcile = 0.95
	thresholdMerge     = 0.98
)

// Suggest generates correction candidates for an entity: missing-required
// fills, format normalizations, cross-source reconciliations, and
// duplicate-merge proposals.
func (e *Engine) Suggest(ctx context.Context, entityID string, qcfg quality.Config) ([]model.CorrectionSuggestion, error) {
	entity, err := e.store.GetEntity(ctx, entityID)
	if err != nil {
		return nil, eris.Wrapf(err, "correction: suggest for %s", entityID)
	}
	records, err := e.store.GetProvenance(ctx, entityID, "")
	if err != nil {
		return nil, eris.Wrap(err, "correction: suggest provenance")
	}

	var out []model.CorrectionSuggestion
	out = append(out, suggestMissingFills(entity, records, qcfg)...)
	out = append(out, suggestNormalizations(entity)...)
	out = append(out, suggestReconciliations(entity, records)...)

	merges, err := e.suggestMerges(ctx, entity)
	if err != nil {
		return nil, err
	}
	out = append(out, merges...)
	return out, nil
}

// suggestMissingFills proposes provenance-backed values for required fields
// the entity lacks.
func suggestMissingFills(entity *model.Entity, records []model.ProvenanceRecord, qcfg quality.Config) []model.CorrectionSuggestion {
	spec := qcfg.FieldsForType(entity.Type)

	var out []model.CorrectionSuggestion
	for _, field := range spec.Required {
		if strings.TrimSpace(entity.Data[field]) != "" {
			continue
		}
		best := bestRecordFor(records, field)
		if best == nil {
			continue
		}
		out = append(out, model.CorrectionSuggestion{
			EntityID:           entity.ID,
			FieldName:          field,
			SuggestedValue:     best.FieldValue,
			Type:               model.CorrectionFillMissing,
			Confidence:         best.ExtractionConfidence,
			Reason:             fmt.Sprintf("required field %q is empty but source %s reports a value", field, best.SourceID),
			AutoApplyThreshold: thresholdFill,
		})
	}
	return out
}

func bestRecordFor(records []model.ProvenanceRecord, field string) *model.ProvenanceRecord {
	var best *model.ProvenanceRecord
	for i := range records {
		rec := &records[i]
		if rec.FieldName != field || strings.TrimSpace(rec.FieldValue) == "" {
			continue
		}
		if best == nil || rec.ExtractionConfidence > best.ExtractionConfidence {
			best = rec
		}
	}
	return best
}

// suggestNormalizations proposes canonical formats for phone and email
// fields already present on the entity.
func suggestNormalizations(entity *model.Entity) []model.CorrectionSuggestion {
	var out []model.CorrectionSuggestion
	for field, value := range entity.Data {
		if strings.TrimSpace(value) == "" {
			continue
		}
		var normalized string
		switch InferFieldType(field) {
		case FieldPhone:
			normalized = NormalizePhone(value)
		case FieldEmail:
			normalized = strings.ToLower(strings.TrimSpace(value))
		default:
			continue
		}
		if normalized == "" || normalized == value {
			continue
		}
		out = append(out, model.CorrectionSuggestion{
			EntityID:           entity.ID,
			FieldName:          field,
			CurrentValue:       value,
			SuggestedValue:     normalized,
			Type:               model.CorrectionNormalizeFormat,
			Confidence:         0.9,
			Reason:             fmt.Sprintf("normalize %s format", InferFieldType(field)),
			AutoApplyThreshold: thresholdNormalize,
		})
	}
	return out
}

// NormalizePhone strips separators and prefixes a country code: ten digits
// are assumed North American, an eleventh leading 1 is kept, anything
// already international passes through with a plus.
func NormalizePhone(value string) string {
	trimmed := strings.TrimSpace(value)
	digits := nonDigitRe.ReplaceAllString(trimmed, "")
	if len(digits) < 7 || len(digits) > 15 {
		return ""
	}
	switch {
	case strings.HasPrefix(trimmed, "+"):
		return "+" + digits
	case len(digits) == 10:
		return "+1" + digits
	case len(digits) == 11 && strings.HasPrefix(digits, "1"):
		return "+" + digits
	default:
		return "+" + digits
	}
}

// suggestReconciliations picks a canonical value for each field where
// sources disagree. A candidate's score is its mean instance confidence
// plus 0.1 per supporting instance; the winner is suggested when it differs
// from the current value.
func suggestReconciliations(entity *model.Entity, records []model.ProvenanceRecord) []model.CorrectionSuggestion {
	type candidate struct {
		value   string
		confSum float64
		count   int
	}
	byField := make(map[string]map[string]*candidate)
	fieldOrder := []string{}
	for _, rec := range records {
		if strings.TrimSpace(rec.FieldValue) == "" {
			continue
		}
		if byField[rec.FieldName] == nil {
			byField[rec.FieldName] = make(map[string]*candidate)
			fieldOrder = append(fieldOrder, rec.FieldName)
		}
		key := strings.ToLower(strings.TrimSpace(rec.FieldValue))
		c := byField[rec.FieldName][key]
		if c == nil {
			c = &candidate{value: rec.FieldValue}
			byField[rec.FieldName][key] = c
		}
		c.confSum += rec.ExtractionConfidence
		c.count++
	}

	var out []model.CorrectionSuggestion
	for _, field := range fieldOrder {
		candidates := byField[field]
		if len(candidates) < 2 {
			continue
		}
		var winner *candidate
		var winnerScore float64
		for _, c := range candidates {
			score := c.confSum/float64(c.count) + 0.1*float64(c.count)
			if winner == nil || score > winnerScore {
				winner, winnerScore = c, score
			}
		}
		current := entity.Data[field]
		if winner == nil || valuesEqual(winner.value, current) {
			continue
		}
		conf := winnerScore
		if conf > 1.0 {
			conf = 1.0
		}
		out = append(out, model.CorrectionSuggestion{
			EntityID:           entity.ID,
			FieldName:          field,
			CurrentValue:       current,
			SuggestedValue:     winner.value,
			Type:               model.CorrectionFixValue,
			Confidence:         conf,
			Reason:             fmt.Sprintf("%d sources disagree on %q; %q scores highest", len(candidates), field, winner.value),
			AutoApplyThreshold: thresholdReconcile,
		})
	}
	return out
}

// suggestMerges flags same-type active entities whose names are nearly
// identical as duplicate-merge candidates.
func (e *Engine) suggestMerges(ctx context.Context, entity *model.Entity) ([]model.CorrectionSuggestion, error) {
	name := strings.TrimSpace(entity.Data["name"])
	if name == "" {
		return nil, nil
	}

	others, err := e.store.ListEntities(ctx, store.EntityFilter{Type: entity.Type, ActiveOnly: true})
	if err != nil {
		return nil, eris.Wrap(err, "correction: suggest merges")
	}

	var out []model.CorrectionSuggestion
	for _, other := range others {
		if other.ID == entity.ID {
			continue
		}
		otherName := strings.TrimSpace(other.Data["name"])
		if otherName == "" {
			continue
		}
		sim := NameSimilarity(name, otherName)
		if sim <= e.cfg.SimilarityThreshold {
			continue
		}
		out = append(out, model.CorrectionSuggestion{
			EntityID:           entity.ID,
			FieldName:          "entity",
			SuggestedValue:     "merge " + other.ID,
			Type:               model.CorrectionMergeEntities,
			Confidence:         sim,
			Reason:             fmt.Sprintf("entity %s name %q is %.0f%% similar", other.ID, otherName, sim*100),
			MergeTargetID:      other.ID,
			AutoApplyThreshold: thresholdMerge,
		})
	}
	return out, nil
}

// NameSimilarity blends edit-distance ratio with word-set overlap so both
// single-character typos and reordered words score high.
func NameSimilarity(a, b string) float64 {
	na, nb := normalizeName(a), normalizeName(b)
	if na == "" || nb == "" {
		return 0
	}
	edit := levenshtein.Similarity(na, nb, nil)
	jac := jaccard(strings.Fields(na), strings.Fields(nb))
	if jac > edit {
		return jac
	}
	return edit
}

func normalizeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	words := strings.Fields(s)
	out := words[:0]
	for i, w := range words {
		w = strings.Trim(w, ".,;:!?()[]{}\"'")
		if w == "" {
			continue
		}
		// Only a trailing legal suffix is dropped; "co" or "inc" mid-name is
		// part of the name itself.
		if i == len(words)-1 && len(words) > 1 && hasLegalSuffix(w) {
			continue
		}
		out = append(out, w)
	}
	return strings.Join(out, " ")
}

func jaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	setA := make(map[string]bool, len(a))
	for _, w := range a {
		setA[w] = true
	}
	intersection := 0
	setB := make(map[string]bool, len(b))
	for _, w := range b {
		if setB[w] {
			continue
		}
		setB[w] = true
		if setA[w] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
