package store

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridata/quality-cli/internal/model"
)

var memNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func memEntity(id string, active bool) *model.Entity {
	return &model.Entity{
		ID:        id,
		Type:      model.EntityTypeCompany,
		Data:      map[string]string{"name": "Acme Inc"},
		IsActive:  active,
		CreatedAt: memNow,
		UpdatedAt: memNow,
	}
}

func TestMemory_EntityRoundTrip(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()

	require.NoError(t, st.SaveEntity(ctx, memEntity("e1", true)))

	got, err := st.GetEntity(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, "Acme Inc", got.Data["name"])

	// The returned entity is a copy; mutating it must not leak back.
	got.Data["name"] = "Evil Corp"
	again, err := st.GetEntity(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, "Acme Inc", again.Data["name"])
}

func TestMemory_GetEntityNotFound(t *testing.T) {
	st := NewMemory()

	_, err := st.GetEntity(context.Background(), "nope")
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestMemory_ListEntitiesFilters(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()

	require.NoError(t, st.SaveEntity(ctx, memEntity("e1", true)))
	require.NoError(t, st.SaveEntity(ctx, memEntity("e2", false)))
	person := memEntity("e3", true)
	person.Type = model.EntityTypePerson
	require.NoError(t, st.SaveEntity(ctx, person))

	active, err := st.ListEntities(ctx, EntityFilter{ActiveOnly: true})
	require.NoError(t, err)
	assert.Len(t, active, 2)

	companies, err := st.ListEntities(ctx, EntityFilter{Type: model.EntityTypeCompany})
	require.NoError(t, err)
	assert.Len(t, companies, 2)

	limited, err := st.ListEntities(ctx, EntityFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestMemory_ProvenanceNewestFirst(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()

	require.NoError(t, st.AppendProvenance(ctx, &model.ProvenanceRecord{
		ID: "p1", EntityID: "e1", FieldName: "name", FieldValue: "old", ExtractedAt: memNow.Add(-time.Hour),
	}))
	require.NoError(t, st.AppendProvenance(ctx, &model.ProvenanceRecord{
		ID: "p2", EntityID: "e1", FieldName: "name", FieldValue: "new", ExtractedAt: memNow,
	}))
	require.NoError(t, st.AppendProvenance(ctx, &model.ProvenanceRecord{
		ID: "p3", EntityID: "e1", FieldName: "website", FieldValue: "https://acme.com", ExtractedAt: memNow,
	}))

	all, err := st.GetProvenance(ctx, "e1", "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "p3", all[0].ID)

	names, err := st.GetProvenance(ctx, "e1", "name")
	require.NoError(t, err)
	require.Len(t, names, 2)
	assert.Equal(t, "new", names[0].FieldValue)
}

func TestMemory_AssessmentsSinceFilter(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()

	require.NoError(t, st.SaveAssessment(ctx, &model.QualityAssessment{
		ID: "a1", EntityID: "e1", AssessorName: "completeness", Score: 0.5, AssessedAt: memNow.Add(-48 * time.Hour),
	}))
	require.NoError(t, st.SaveAssessment(ctx, &model.QualityAssessment{
		ID: "a2", EntityID: "e1", AssessorName: "completeness", Score: 0.8, AssessedAt: memNow,
	}))

	all, err := st.ListAssessments(ctx, "e1", time.Time{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	recent, err := st.ListAssessments(ctx, "e1", memNow.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "a2", recent[0].ID)
}

func TestMemory_FindConflictingCorrections(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()

	save := func(id string, status model.CorrectionStatus) {
		require.NoError(t, st.SaveCorrection(ctx, &model.Correction{
			ID: id, EntityID: "e1", FieldName: "phone", Status: status, CreatedAt: memNow,
		}))
	}
	save("live-pending", model.CorrectionPending)
	save("live-approved", model.CorrectionApproved)
	save("dead-applied", model.CorrectionApplied)
	save("dead-rejected", model.CorrectionRejected)

	conflicts, err := st.FindConflictingCorrections(ctx, "e1", "phone", "live-pending")
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "live-approved", conflicts[0].ID)
}

func TestMemory_FindRecentAlert(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()

	require.NoError(t, st.SaveAlert(ctx, &model.Alert{
		ID: "al1", RuleName: "low_overall", SubjectID: "e1", TriggeredAt: memNow,
	}))

	hit, err := st.FindRecentAlert(ctx, "low_overall", "e1", memNow.Add(-time.Hour))
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.Equal(t, "al1", hit.ID)

	miss, err := st.FindRecentAlert(ctx, "low_overall", "e1", memNow.Add(time.Minute))
	require.NoError(t, err)
	assert.Nil(t, miss)

	otherSubject, err := st.FindRecentAlert(ctx, "low_overall", "e2", memNow.Add(-time.Hour))
	require.NoError(t, err)
	assert.Nil(t, otherSubject)
}

func TestMemory_ApplyMerge(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()

	require.NoError(t, st.SaveEntity(ctx, memEntity("primary", true)))
	require.NoError(t, st.SaveEntity(ctx, memEntity("dupe", true)))

	primary, _ := st.GetEntity(ctx, "primary")
	target, _ := st.GetEntity(ctx, "dupe")
	target.IsActive = false
	target.IsDuplicate = true
	target.DuplicateOf = "primary"

	entry := &model.ChangeLogEntry{ID: "cl1", EntityID: "primary", Type: model.ChangeTypeMerge, ChangedAt: memNow}
	require.NoError(t, st.ApplyMerge(ctx, primary, target, entry))

	merged, err := st.GetEntity(ctx, "dupe")
	require.NoError(t, err)
	assert.False(t, merged.IsActive)
	assert.Equal(t, "primary", merged.DuplicateOf)

	history, err := st.ListChangeLog(ctx, "primary")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestMemory_ApplyMergeMissingEntity(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()
	require.NoError(t, st.SaveEntity(ctx, memEntity("primary", true)))

	err := st.ApplyMerge(ctx, memEntity("primary", true), memEntity("ghost", true),
		&model.ChangeLogEntry{ID: "cl1", EntityID: "primary"})
	assert.True(t, eris.Is(err, ErrNotFound))
}
