package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQualityStatusFor(t *testing.T) {
	cases := []struct {
		score float64
		want  QualityStatus
	}{
		{0.95, QualityExcellent},
		{0.9, QualityExcellent},
		{0.89, QualityGood},
		{0.75, QualityGood},
		{0.6, QualityFair},
		{0.5, QualityFair},
		{0.3, QualityPoor},
		{0.25, QualityPoor},
		{0.1, QualityCritical},
		{0.0, QualityCritical},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, QualityStatusFor(tc.score), "score %.2f", tc.score)
	}
}

func TestConfidenceLevelFor(t *testing.T) {
	cases := []struct {
		score float64
		want  ConfidenceLevel
	}{
		{1.0, ConfidenceVeryHigh},
		{0.9, ConfidenceVeryHigh},
		{0.8, ConfidenceHigh},
		{0.5, ConfidenceMedium},
		{0.3, ConfidenceLow},
		{0.1, ConfidenceVeryLow},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ConfidenceLevelFor(tc.score), "score %.2f", tc.score)
	}
}

func TestCorrectionStatus_Lifecycle(t *testing.T) {
	assert.True(t, CorrectionPending.IsLive())
	assert.True(t, CorrectionApproved.IsLive())
	assert.False(t, CorrectionApplied.IsLive())

	assert.True(t, CorrectionRejected.IsTerminal())
	assert.True(t, CorrectionApplied.IsTerminal())
	assert.True(t, CorrectionSuperseded.IsTerminal())
	assert.False(t, CorrectionPending.IsTerminal())
}
