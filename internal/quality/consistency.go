package quality

import (
	"fmt"
	"strings"
)

// ConsistencyAssessor checks whether sources agree on each field's value.
// Full agreement scores 1.0, a small minority of dissenting values 0.7, and
// a major conflict 0.3. Per-field scores are averaged together with a
// temporal-consistency term.
type ConsistencyAssessor struct {
	cfg Config
}

func NewConsistencyAssessor(cfg Config) *ConsistencyAssessor {
	return &ConsistencyAssessor{cfg: cfg}
}

func (a *ConsistencyAssessor) Name() string { return AssessorConsistency }

// minorityShare is the largest fraction of dissenting values still treated
// as a minor disagreement rather than a major conflict.
const minorityShare = 0.3

func (a *ConsistencyAssessor) Assess(in Input) Metric {
	m := Metric{Name: a.Name(), Weight: a.cfg.weightFor(a.Name())}

	byField := make(map[string][]string)
	for _, rec := range in.Provenance {
		byField[rec.FieldName] = append(byField[rec.FieldName], rec.FieldValue)
	}

	scores := []float64{}
	for field, values := range byField {
		score := fieldAgreement(values)
		switch {
		case score >= 1.0:
			// all sources agree
		case score >= 0.7:
			m.Issues = append(m.Issues, fmt.Sprintf("field %q has a minority of disagreeing source values", field))
		default:
			m.Issues = append(m.Issues, fmt.Sprintf("field %q has a major conflict across sources", field))
			m.Recommendations = append(m.Recommendations, fmt.Sprintf("pick a canonical value for %q via cross-source reconciliation", field))
		}
		scores = append(scores, score)
	}

	temporal := a.cfg.TemporalBaseline
	if temporal <= 0 {
		temporal = 0.8
	}
	scores = append(scores, temporal)

	var sum float64
	for _, s := range scores {
		sum += s
	}
	m.Score = clamp01(sum / float64(len(scores)))
	return m
}

// fieldAgreement scores one field's cross-source agreement: 1.0 when every
// value matches, 0.7 when dissenters are a minority (at most minorityShare of
// the values), 0.3 otherwise.
func fieldAgreement(values []string) float64 {
	if len(values) <= 1 {
		return 1.0
	}
	counts := make(map[string]int)
	majority := 0
	for _, v := range values {
		key := strings.ToLower(strings.TrimSpace(v))
		counts[key]++
		if counts[key] > majority {
			majority = counts[key]
		}
	}
	if len(counts) == 1 {
		return 1.0
	}
	dissent := 1.0 - float64(majority)/float64(len(values))
	if dissent <= minorityShare {
		return 0.7
	}
	return 0.3
}
