package correction

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridata/quality-cli/internal/model"
	"github.com/veridata/quality-cli/internal/quality"
)

func TestNormalizePhone(t *testing.T) {
	assert.Equal(t, "+15551234567", NormalizePhone("5551234567"))
	assert.Equal(t, "+15551234567", NormalizePhone("555-123-4567"))
	assert.Equal(t, "+15551234567", NormalizePhone("1 (555) 123-4567"))
	assert.Equal(t, "+442071234567", NormalizePhone("+44 20 7123 4567"))
	assert.Equal(t, "", NormalizePhone("123"))
}

func TestNameSimilarity(t *testing.T) {
	assert.Greater(t, NameSimilarity("Acme Corp", "Acme Corp."), 0.9)
	assert.Greater(t, NameSimilarity("Acme Widgets Inc", "Widgets Acme"), 0.85)
	assert.Less(t, NameSimilarity("Acme Corp", "Zenith Systems"), 0.5)
	assert.Zero(t, NameSimilarity("", "Acme"))
}

func TestNameSimilarity_OnlyTrailingSuffixStripped(t *testing.T) {
	// "Co" mid-name is part of the name; stripping it would collapse
	// distinct businesses onto the same key.
	assert.Equal(t, "co op services", normalizeName("Co Op Services"))
	assert.Equal(t, "co op services", normalizeName("Co Op Services LLC"))
	assert.Less(t, NameSimilarity("Co Op Services", "Op Services"), 0.85)
	assert.Greater(t, NameSimilarity("Co Op Services LLC", "Co Op Services"), 0.99)
}

func suggestionByField(suggestions []model.CorrectionSuggestion, field string, typ model.CorrectionType) *model.CorrectionSuggestion {
	for i := range suggestions {
		if suggestions[i].FieldName == field && suggestions[i].Type == typ {
			return &suggestions[i]
		}
	}
	return nil
}

func TestSuggest_FillsMissingRequiredFromProvenance(t *testing.T) {
	eng, st := newTestEngine(t)
	seedCompany(t, st, "ent-1", map[string]string{"name": "Acme Inc"})
	ctx := context.Background()

	require.NoError(t, st.AppendProvenance(ctx, &model.ProvenanceRecord{
		ID: "p1", EntityID: "ent-1", FieldName: "website", FieldValue: "https://acme.com",
		SourceID: "src-a", ExtractionConfidence: 0.92, ExtractedAt: testNow,
	}))

	suggestions, err := eng.Suggest(ctx, "ent-1", quality.DefaultConfig())
	require.NoError(t, err)

	fill := suggestionByField(suggestions, "website", model.CorrectionFillMissing)
	require.NotNil(t, fill)
	assert.Equal(t, "https://acme.com", fill.SuggestedValue)
	assert.InDelta(t, 0.92, fill.Confidence, 1e-9)
	assert.InDelta(t, thresholdFill, fill.AutoApplyThreshold, 1e-9)
}

func TestSuggest_NormalizesPhoneAndEmail(t *testing.T) {
	eng, st := newTestEngine(t)
	seedCompany(t, st, "ent-1", map[string]string{
		"name":  "Acme Inc",
		"phone": "5551234567",
		"email": "Info@Acme.COM",
	})

	suggestions, err := eng.Suggest(context.Background(), "ent-1", quality.DefaultConfig())
	require.NoError(t, err)

	phone := suggestionByField(suggestions, "phone", model.CorrectionNormalizeFormat)
	require.NotNil(t, phone)
	assert.Equal(t, "+15551234567", phone.SuggestedValue)

	email := suggestionByField(suggestions, "email", model.CorrectionNormalizeFormat)
	require.NotNil(t, email)
	assert.Equal(t, "info@acme.com", email.SuggestedValue)
}

func TestSuggest_ReconcilesDisagreeingSources(t *testing.T) {
	eng, st := newTestEngine(t)
	seedCompany(t, st, "ent-1", map[string]string{"name": "Acme Inc", "phone": "+15559999999"})
	ctx := context.Background()

	// Two sources back one value, a third backs the current one.
	records := []model.ProvenanceRecord{
		{ID: "p1", FieldName: "phone", FieldValue: "+15551234567", SourceID: "src-a", ExtractionConfidence: 0.9},
		{ID: "p2", FieldName: "phone", FieldValue: "+15551234567", SourceID: "src-b", ExtractionConfidence: 0.8},
		{ID: "p3", FieldName: "phone", FieldValue: "+15559999999", SourceID: "src-c", ExtractionConfidence: 0.6},
	}
	for i := range records {
		records[i].EntityID = "ent-1"
		records[i].ExtractedAt = testNow
		require.NoError(t, st.AppendProvenance(ctx, &records[i]))
	}

	suggestions, err := eng.Suggest(ctx, "ent-1", quality.DefaultConfig())
	require.NoError(t, err)

	fix := suggestionByField(suggestions, "phone", model.CorrectionFixValue)
	require.NotNil(t, fix)
	assert.Equal(t, "+15551234567", fix.SuggestedValue)
	assert.Equal(t, "+15559999999", fix.CurrentValue)
	// mean(0.9, 0.8) + 0.1 * 2 supporters.
	assert.InDelta(t, 1.0, fix.Confidence, 1e-9)
}

func TestSuggest_NoReconciliationWhenSourcesAgree(t *testing.T) {
	eng, st := newTestEngine(t)
	seedCompany(t, st, "ent-1", map[string]string{"name": "Acme Inc", "phone": "+15551234567"})
	ctx := context.Background()

	for _, src := range []string{"src-a", "src-b"} {
		require.NoError(t, st.AppendProvenance(ctx, &model.ProvenanceRecord{
			ID: src + "-rec", EntityID: "ent-1", FieldName: "phone",
			FieldValue: "+15551234567", SourceID: src, ExtractionConfidence: 0.9, ExtractedAt: testNow,
		}))
	}

	suggestions, err := eng.Suggest(ctx, "ent-1", quality.DefaultConfig())
	require.NoError(t, err)
	assert.Nil(t, suggestionByField(suggestions, "phone", model.CorrectionFixValue))
}

func TestSuggest_FlagsNearDuplicateForMerge(t *testing.T) {
	eng, st := newTestEngine(t)
	seedCompany(t, st, "ent-1", map[string]string{"name": "Acme Widgets Inc"})
	seedCompany(t, st, "ent-2", map[string]string{"name": "Acme Widgets LLC"})
	seedCompany(t, st, "ent-3", map[string]string{"name": "Zenith Systems"})

	suggestions, err := eng.Suggest(context.Background(), "ent-1", quality.DefaultConfig())
	require.NoError(t, err)

	merge := suggestionByField(suggestions, "entity", model.CorrectionMergeEntities)
	require.NotNil(t, merge)
	assert.Equal(t, "ent-2", merge.MergeTargetID)
	assert.InDelta(t, thresholdMerge, merge.AutoApplyThreshold, 1e-9)
}

func TestSuggest_InactiveDuplicatesIgnored(t *testing.T) {
	eng, st := newTestEngine(t)
	seedCompany(t, st, "ent-1", map[string]string{"name": "Acme Widgets Inc"})
	dupe := seedCompany(t, st, "ent-2", map[string]string{"name": "Acme Widgets Inc"})
	dupe.IsActive = false
	require.NoError(t, st.SaveEntity(context.Background(), dupe))

	suggestions, err := eng.Suggest(context.Background(), "ent-1", quality.DefaultConfig())
	require.NoError(t, err)
	assert.Nil(t, suggestionByField(suggestions, "entity", model.CorrectionMergeEntities))
}

func TestSuggest_UsesStoredStore(t *testing.T) {
	eng, _ := newTestEngine(t)
	_, err := eng.Suggest(context.Background(), "missing", quality.DefaultConfig())
	assert.Error(t, err)
}
