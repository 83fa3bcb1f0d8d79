package quality

import "fmt"

// FreshnessAssessor scores how recently the entity was updated against the
// expected interval for its type, averaged with per-source freshness derived
// from reliability and last-successful-access recency.
type FreshnessAssessor struct {
	cfg Config
}

func NewFreshnessAssessor(cfg Config) *FreshnessAssessor {
	return &FreshnessAssessor{cfg: cfg}
}

func (a *FreshnessAssessor) Name() string { return AssessorFreshness }

func (a *FreshnessAssessor) Assess(in Input) Metric {
	m := Metric{Name: a.Name(), Weight: a.cfg.weightFor(a.Name())}

	expected := float64(a.cfg.freshnessDaysFor(in.Entity.Type))

	last := in.Entity.UpdatedAt
	if in.Entity.CreatedAt.After(last) {
		last = in.Entity.CreatedAt
	}
	ageDays := in.Now.Sub(last).Hours() / 24

	entityScore := ageTier(ageDays, expected)
	if entityScore <= 0.4 {
		m.Issues = append(m.Issues, fmt.Sprintf("entity is %.0f days old against an expected %0.f-day refresh", ageDays, expected))
		m.Recommendations = append(m.Recommendations, "re-extract from the entity's sources")
	}

	sourceScore, hasSources := a.sourceFreshness(in)
	if hasSources {
		m.Score = clamp01((entityScore + sourceScore) / 2)
	} else {
		m.Score = clamp01(entityScore)
	}
	return m
}

// ageTier maps an age to the tiered freshness score.
func ageTier(ageDays, expected float64) float64 {
	switch {
	case ageDays <= expected:
		return 1.0
	case ageDays <= 2*expected:
		return 0.7
	case ageDays <= 4*expected:
		return 0.4
	default:
		return 0.1
	}
}

// sourceFreshness averages each linked source's reliability weighted by how
// recently it was successfully accessed relative to its declared update
// frequency.
func (a *FreshnessAssessor) sourceFreshness(in Input) (float64, bool) {
	seen := make(map[string]bool)
	var sum float64
	var n int
	for _, rec := range in.Provenance {
		if seen[rec.SourceID] {
			continue
		}
		seen[rec.SourceID] = true
		src, ok := in.Sources[rec.SourceID]
		if !ok {
			continue
		}

		recency := 0.4
		if src.LastSuccessAt != nil {
			freq := float64(src.UpdateFrequencyDays)
			if freq <= 0 {
				freq = defaultFreshnessDays
			}
			sinceDays := in.Now.Sub(*src.LastSuccessAt).Hours() / 24
			switch {
			case sinceDays <= freq:
				recency = 1.0
			case sinceDays <= 2*freq:
				recency = 0.7
			}
		}
		sum += src.ReliabilityScore * recency
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}
