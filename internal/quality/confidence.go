package quality

// ConfidenceAssessor scores how much the recorded provenance supports the
// entity's values: per-row mean of source reliability and extraction
// confidence, averaged across rows, with a small bonus for source diversity.
type ConfidenceAssessor struct {
	cfg Config
}

func NewConfidenceAssessor(cfg Config) *ConfidenceAssessor {
	return &ConfidenceAssessor{cfg: cfg}
}

func (a *ConfidenceAssessor) Name() string { return AssessorConfidence }

func (a *ConfidenceAssessor) Assess(in Input) Metric {
	m := Metric{Name: a.Name(), Weight: a.cfg.weightFor(a.Name())}

	if len(in.Provenance) == 0 {
		m.Score = 0.1
		m.Issues = append(m.Issues, "no provenance recorded for this entity")
		m.Recommendations = append(m.Recommendations, "ingest field values through the provenance ledger")
		return m
	}

	distinct := make(map[string]bool)
	var sum float64
	for _, rec := range in.Provenance {
		reliability := 0.5 // unknown source
		if src, ok := in.Sources[rec.SourceID]; ok {
			reliability = src.ReliabilityScore
		}
		sum += (reliability + rec.ExtractionConfidence) / 2
		distinct[rec.SourceID] = true
	}
	mean := sum / float64(len(in.Provenance))

	bonus := 0.02 * float64(len(distinct))
	if bonus > 0.1 {
		bonus = 0.1
	}
	m.Score = clamp01(mean + bonus)
	return m
}
