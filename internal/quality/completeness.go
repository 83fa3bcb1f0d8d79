package quality

import "fmt"

// CompletenessAssessor checks required and optional field coverage for the
// entity's type. Required coverage carries 80% of the score, optional 20%.
type CompletenessAssessor struct {
	cfg Config
}

func NewCompletenessAssessor(cfg Config) *CompletenessAssessor {
	return &CompletenessAssessor{cfg: cfg}
}

func (a *CompletenessAssessor) Name() string { return AssessorCompleteness }

func (a *CompletenessAssessor) Assess(in Input) Metric {
	m := Metric{Name: a.Name(), Weight: a.cfg.weightFor(a.Name())}
	spec := a.cfg.FieldsForType(in.Entity.Type)

	var presentRequired int
	for _, f := range spec.Required {
		if a.cfg.isPresent(in.Entity.Data[f]) {
			presentRequired++
		} else {
			m.Issues = append(m.Issues, fmt.Sprintf("required field %q is missing or a placeholder", f))
		}
	}

	var presentOptional int
	for _, f := range spec.Optional {
		if a.cfg.isPresent(in.Entity.Data[f]) {
			presentOptional++
		}
	}

	requiredScore := 1.0
	if len(spec.Required) > 0 {
		requiredScore = float64(presentRequired) / float64(len(spec.Required))
	}
	optionalScore := 1.0
	if len(spec.Optional) > 0 {
		optionalScore = float64(presentOptional) / float64(len(spec.Optional))
	}

	m.Score = clamp01(0.8*requiredScore + 0.2*optionalScore)

	if presentRequired < len(spec.Required) {
		m.Recommendations = append(m.Recommendations, "fill missing required fields from provenance or a fresh extraction")
	}
	return m
}
