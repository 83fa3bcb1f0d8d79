package correction

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridata/quality-cli/internal/clock"
	"github.com/veridata/quality-cli/internal/model"
	"github.com/veridata/quality-cli/internal/provenance"
	"github.com/veridata/quality-cli/internal/store"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T) (*Engine, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemory()
	return NewEngine(st, clock.Fixed{T: testNow}, DefaultConfig()), st
}

func seedCompany(t *testing.T, st *store.MemoryStore, id string, data map[string]string) *model.Entity {
	t.Helper()
	entity := &model.Entity{
		ID:        id,
		Type:      model.EntityTypeCompany,
		Data:      data,
		DataHash:  provenance.DataHash(data),
		IsActive:  true,
		CreatedAt: testNow,
		UpdatedAt: testNow,
	}
	require.NoError(t, st.SaveEntity(context.Background(), entity))
	return entity
}

// --- State machine ---

func TestCanTransitionTo(t *testing.T) {
	assert.True(t, model.CorrectionPending.CanTransitionTo(model.CorrectionApproved))
	assert.True(t, model.CorrectionPending.CanTransitionTo(model.CorrectionRejected))
	assert.True(t, model.CorrectionPending.CanTransitionTo(model.CorrectionSuperseded))
	assert.True(t, model.CorrectionApproved.CanTransitionTo(model.CorrectionApplied))
	assert.True(t, model.CorrectionApproved.CanTransitionTo(model.CorrectionSuperseded))

	assert.False(t, model.CorrectionPending.CanTransitionTo(model.CorrectionApplied))
	assert.False(t, model.CorrectionApplied.CanTransitionTo(model.CorrectionSuperseded))
	assert.False(t, model.CorrectionRejected.CanTransitionTo(model.CorrectionApproved))
	assert.False(t, model.CorrectionSuperseded.CanTransitionTo(model.CorrectionApproved))
}

// --- Submit ---

func TestSubmit_CreatesPending(t *testing.T) {
	eng, st := newTestEngine(t)
	seedCompany(t, st, "ent-1", map[string]string{"phone": "555.123.4567"})

	c, err := eng.Submit(context.Background(), SubmitRequest{
		EntityID:       "ent-1",
		FieldName:      "phone",
		SuggestedValue: "+15551234567",
		Type:           model.CorrectionNormalizeFormat,
		SubmittedBy:    "reviewer",
	})
	require.NoError(t, err)
	assert.Equal(t, model.CorrectionPending, c.Status)
	assert.Equal(t, "555.123.4567", c.CurrentValue)
	assert.InDelta(t, 0.9, c.Confidence, 1e-9)
}

func TestSubmit_InvalidValueRejected(t *testing.T) {
	eng, st := newTestEngine(t)
	seedCompany(t, st, "ent-1", map[string]string{})

	_, err := eng.Submit(context.Background(), SubmitRequest{
		EntityID:       "ent-1",
		FieldName:      "email",
		SuggestedValue: "not-an-email",
		Type:           model.CorrectionFixValue,
		SubmittedBy:    "reviewer",
	})
	assert.True(t, eris.Is(err, ErrValidationFailed))

	pending, err := eng.Pending(context.Background(), "ent-1")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSubmit_SupersedesOlderLiveCorrection(t *testing.T) {
	eng, st := newTestEngine(t)
	seedCompany(t, st, "ent-1", map[string]string{"phone": "555.123.4567"})
	ctx := context.Background()

	first, err := eng.Submit(ctx, SubmitRequest{
		EntityID: "ent-1", FieldName: "phone", SuggestedValue: "+15551111111",
		Type: model.CorrectionFixValue, SubmittedBy: "a",
	})
	require.NoError(t, err)

	second, err := eng.Submit(ctx, SubmitRequest{
		EntityID: "ent-1", FieldName: "phone", SuggestedValue: "+15552222222",
		Type: model.CorrectionFixValue, SubmittedBy: "b",
	})
	require.NoError(t, err)

	old, err := st.GetCorrection(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CorrectionSuperseded, old.Status)

	pending, err := eng.Pending(ctx, "ent-1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second.ID, pending[0].ID)
}

func TestSubmit_AutoApplyAppliesAndLogs(t *testing.T) {
	eng, st := newTestEngine(t)
	seedCompany(t, st, "ent-1", map[string]string{"phone": "555.123.4567"})
	ctx := context.Background()

	// Two distinct sources already report the suggested value, lifting
	// validation confidence over the 0.95 auto-apply gate.
	for _, src := range []string{"src-a", "src-b"} {
		require.NoError(t, st.AppendProvenance(ctx, &model.ProvenanceRecord{
			ID: src + "-rec", EntityID: "ent-1", FieldName: "phone",
			FieldValue: "+15551234567", SourceID: src, ExtractedAt: testNow,
		}))
	}

	c, err := eng.Submit(ctx, SubmitRequest{
		EntityID:       "ent-1",
		FieldName:      "phone",
		SuggestedValue: "+15551234567",
		Type:           model.CorrectionFixValue,
		SubmittedBy:    "pipeline",
		AutoApply:      true,
	})
	require.NoError(t, err)
	assert.Equal(t, model.CorrectionApplied, c.Status)
	assert.Equal(t, "auto-apply", c.ReviewedBy)
	assert.NotEmpty(t, c.ChangeLogID)

	entity, err := st.GetEntity(ctx, "ent-1")
	require.NoError(t, err)
	assert.Equal(t, "+15551234567", entity.Data["phone"])
	assert.Equal(t, provenance.DataHash(entity.Data), entity.DataHash)

	history, err := st.ListChangeLog(ctx, "ent-1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, model.ChangeTypeCorrection, history[0].Type)
	assert.Equal(t, "555.123.4567", history[0].OldValue)
}

func TestSubmit_AutoApplyBelowGateStaysPending(t *testing.T) {
	eng, st := newTestEngine(t)
	seedCompany(t, st, "ent-1", map[string]string{"phone": "555.123.4567"})

	c, err := eng.Submit(context.Background(), SubmitRequest{
		EntityID:       "ent-1",
		FieldName:      "phone",
		SuggestedValue: "+15551234567",
		Type:           model.CorrectionFixValue,
		SubmittedBy:    "pipeline",
		AutoApply:      true,
	})
	require.NoError(t, err)
	assert.Equal(t, model.CorrectionPending, c.Status)
}

// --- Review and Apply ---

func TestReview_ApproveAppliesCorrection(t *testing.T) {
	eng, st := newTestEngine(t)
	seedCompany(t, st, "ent-1", map[string]string{"phone": "555.123.4567"})
	ctx := context.Background()

	c, err := eng.Submit(ctx, SubmitRequest{
		EntityID: "ent-1", FieldName: "phone", SuggestedValue: "+15551234567",
		Type: model.CorrectionFixValue, SubmittedBy: "a",
	})
	require.NoError(t, err)

	reviewed, err := eng.Review(ctx, c.ID, "jo", "approve", "looks right")
	require.NoError(t, err)
	assert.Equal(t, model.CorrectionApplied, reviewed.Status)
	assert.Equal(t, "jo", reviewed.ReviewedBy)

	entity, err := st.GetEntity(ctx, "ent-1")
	require.NoError(t, err)
	assert.Equal(t, "+15551234567", entity.Data["phone"])
}

func TestReview_RejectIsTerminal(t *testing.T) {
	eng, st := newTestEngine(t)
	seedCompany(t, st, "ent-1", map[string]string{"phone": "555.123.4567"})
	ctx := context.Background()

	c, err := eng.Submit(ctx, SubmitRequest{
		EntityID: "ent-1", FieldName: "phone", SuggestedValue: "+15551234567",
		Type: model.CorrectionFixValue, SubmittedBy: "a",
	})
	require.NoError(t, err)

	rejected, err := eng.Review(ctx, c.ID, "jo", "reject", "wrong number")
	require.NoError(t, err)
	assert.Equal(t, model.CorrectionRejected, rejected.Status)

	_, err = eng.Review(ctx, c.ID, "jo", "approve", "changed my mind")
	assert.True(t, eris.Is(err, ErrValidationFailed))

	entity, err := st.GetEntity(ctx, "ent-1")
	require.NoError(t, err)
	assert.Equal(t, "555.123.4567", entity.Data["phone"])
}

func TestApply_RequiresApprovedStatus(t *testing.T) {
	eng, st := newTestEngine(t)
	seedCompany(t, st, "ent-1", map[string]string{"phone": "555.123.4567"})
	ctx := context.Background()

	c, err := eng.Submit(ctx, SubmitRequest{
		EntityID: "ent-1", FieldName: "phone", SuggestedValue: "+15551234567",
		Type: model.CorrectionFixValue, SubmittedBy: "a",
	})
	require.NoError(t, err)

	_, err = eng.Apply(ctx, c.ID, "jo")
	assert.True(t, eris.Is(err, ErrValidationFailed))

	// Data unchanged by the refused apply.
	entity, err := st.GetEntity(ctx, "ent-1")
	require.NoError(t, err)
	assert.Equal(t, "555.123.4567", entity.Data["phone"])
}

// --- Merge ---

func TestMergeEntities_PrimaryWinsTargetDeactivated(t *testing.T) {
	eng, st := newTestEngine(t)
	seedCompany(t, st, "primary", map[string]string{"name": "Acme Inc", "website": "https://acme.com"})
	seedCompany(t, st, "dupe", map[string]string{"name": "Acme", "phone": "+15551234567"})
	ctx := context.Background()

	entry, err := eng.MergeEntities(ctx, "primary", "dupe", "jo")
	require.NoError(t, err)
	assert.Equal(t, model.ChangeTypeMerge, entry.Type)

	primary, err := st.GetEntity(ctx, "primary")
	require.NoError(t, err)
	assert.Equal(t, "Acme Inc", primary.Data["name"]) // collision keeps primary's value
	assert.Equal(t, "+15551234567", primary.Data["phone"])
	assert.Equal(t, provenance.DataHash(primary.Data), primary.DataHash)

	dupe, err := st.GetEntity(ctx, "dupe")
	require.NoError(t, err)
	assert.True(t, dupe.IsDuplicate)
	assert.False(t, dupe.IsActive)
	assert.Equal(t, "primary", dupe.DuplicateOf)

	history, err := st.ListChangeLog(ctx, "primary")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "dupe", history[0].OldValue)
}

func TestMergeEntities_SelfMergeRejected(t *testing.T) {
	eng, st := newTestEngine(t)
	seedCompany(t, st, "primary", map[string]string{"name": "Acme Inc"})

	_, err := eng.MergeEntities(context.Background(), "primary", "primary", "jo")
	assert.True(t, eris.Is(err, ErrValidationFailed))
}
