// Package quality scores entities across pluggable assessment dimensions and
// combines them into a weighted overall score.
package quality

import (
	"strings"
	"time"

	"github.com/veridata/quality-cli/internal/model"
)

// Metric is one assessor's contribution to the overall score.
type Metric struct {
	Name            string   `json:"name"`
	Score           float64  `json:"score"`
	Weight          float64  `json:"weight"`
	Issues          []string `json:"issues,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
	Err             error    `json:"-"`
}

// Input is everything an assessor may inspect. Assessors are stateless; all
// state arrives here.
type Input struct {
	Entity     *model.Entity
	Provenance []model.ProvenanceRecord
	Sources    map[string]model.DataSource
	Now        time.Time
}

// Assessor scores one quality dimension of an entity.
type Assessor interface {
	Name() string
	Assess(in Input) Metric
}

// FieldSpec lists the required and optional fields for one entity type.
type FieldSpec struct {
	Required []string `yaml:"required" mapstructure:"required"`
	Optional []string `yaml:"optional" mapstructure:"optional"`
}

// Config tunes the scoring engine. Zero values fall back to defaults.
type Config struct {
	// Weights per assessor name. Missing names default to 1.0.
	Weights map[string]float64 `yaml:"weights" mapstructure:"weights"`
	// FreshnessDays is the expected update interval per entity type.
	FreshnessDays map[model.EntityType]int `yaml:"freshness_days" mapstructure:"freshness_days"`
	// Fields maps entity type to its required/optional field lists.
	Fields map[model.EntityType]FieldSpec `yaml:"fields" mapstructure:"fields"`
	// Placeholders are tokens that do not count as a present value.
	Placeholders []string `yaml:"placeholders" mapstructure:"placeholders"`
	// TemporalBaseline is the temporal-consistency sub-score.
	TemporalBaseline float64 `yaml:"temporal_baseline" mapstructure:"temporal_baseline"`
	// BatchConcurrency bounds the BatchAssess worker pool.
	BatchConcurrency int `yaml:"batch_concurrency" mapstructure:"batch_concurrency"`
}

// DefaultConfig returns the built-in scoring configuration.
func DefaultConfig() Config {
	return Config{
		Weights: map[string]float64{
			AssessorCompleteness: 1.0,
			AssessorConsistency:  1.0,
			AssessorFreshness:    1.0,
			AssessorConfidence:   1.0,
		},
		FreshnessDays: map[model.EntityType]int{
			model.EntityTypeCompany:   30,
			model.EntityTypePerson:    90,
			model.EntityTypeAddress:   180,
			model.EntityTypeContact:   30,
			model.EntityTypeFinancial: 7,
		},
		Fields: map[model.EntityType]FieldSpec{
			model.EntityTypeCompany: {
				Required: []string{"name", "website", "address"},
				Optional: []string{"phone", "email", "industry", "employee_count", "registration_id"},
			},
			model.EntityTypePerson: {
				Required: []string{"name", "email"},
				Optional: []string{"phone", "title", "address"},
			},
			model.EntityTypeAddress: {
				Required: []string{"street", "city", "country"},
				Optional: []string{"state", "postal_code"},
			},
			model.EntityTypeContact: {
				Required: []string{"name", "email", "phone"},
				Optional: []string{"title", "company"},
			},
			model.EntityTypeFinancial: {
				Required: []string{"name", "fiscal_year", "revenue"},
				Optional: []string{"currency", "ebitda", "assets"},
			},
		},
		Placeholders:     []string{"n/a", "na", "none", "unknown", "tbd", "-", "null", "nil"},
		TemporalBaseline: 0.8,
		BatchConcurrency: 5,
	}
}

const (
	AssessorCompleteness = "completeness"
	AssessorConsistency  = "consistency"
	AssessorFreshness    = "freshness"
	AssessorConfidence   = "confidence"

	defaultFreshnessDays = 30
)

// weightFor returns the configured weight for an assessor, defaulting to 1.
func (c Config) weightFor(name string) float64 {
	if w, ok := c.Weights[name]; ok && w > 0 {
		return w
	}
	return 1.0
}

// FieldsForType returns the field spec for an entity type, falling back to a
// minimal name-only spec for unknown types.
func (c Config) FieldsForType(t model.EntityType) FieldSpec {
	if spec, ok := c.Fields[t]; ok {
		return spec
	}
	return FieldSpec{Required: []string{"name"}}
}

// freshnessDaysFor returns the expected update interval for an entity type.
func (c Config) freshnessDaysFor(t model.EntityType) int {
	if d, ok := c.FreshnessDays[t]; ok && d > 0 {
		return d
	}
	return defaultFreshnessDays
}

// isPresent reports whether a value counts as filled in: non-empty and not a
// placeholder token.
func (c Config) isPresent(value string) bool {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "" {
		return false
	}
	for _, p := range c.Placeholders {
		if v == p {
			return false
		}
	}
	return true
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
