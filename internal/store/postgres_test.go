package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridata/quality-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_GetEntity_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM entities WHERE entity_id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetEntity(context.Background(), "missing")
	assert.True(t, eris.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveEntity_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO entities`).
		WithArgs("e1", model.EntityTypeCompany, pgxmock.AnyArg(), "hash",
			0.0, 0.0, 0.0, 0.0, 0.0,
			model.QualityStatus(""), model.ConfidenceLevel(""),
			true, false, false, "",
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.SaveEntity(context.Background(), &model.Entity{
		ID:       "e1",
		Type:     model.EntityTypeCompany,
		Data:     map[string]string{"name": "Acme Inc"},
		DataHash: "hash",
		IsActive: true,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetSource_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM sources WHERE source_id = \$1`).
		WithArgs("unknown.example.com").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetSource(context.Background(), "unknown.example.com")
	assert.True(t, eris.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AppendProvenance(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO provenance`).
		WithArgs("p1", "e1", "name", "Acme Inc", "registry.example.com",
			"https://registry.example.com/acme", "scrape", 0.9, pgxmock.AnyArg(), "abc").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.AppendProvenance(context.Background(), &model.ProvenanceRecord{
		ID: "p1", EntityID: "e1", FieldName: "name", FieldValue: "Acme Inc",
		SourceID: "registry.example.com", SourceURL: "https://registry.example.com/acme",
		ExtractionMethod: "scrape", ExtractionConfidence: 0.9,
		ExtractedAt: time.Now(), Hash: "abc",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetCorrection_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM corrections WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetCorrection(context.Background(), "missing")
	assert.True(t, eris.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindRecentAlert_NoneIsNil(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM alerts`).
		WithArgs("low_overall_quality", "e1", pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)

	a, err := s.FindRecentAlert(context.Background(), "low_overall_quality", "e1", time.Now())
	require.NoError(t, err)
	assert.Nil(t, a)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveAlert_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO alerts`).
		WithArgs("al1", "stale_entity", model.SubjectEntity, "e1", "days_since_update",
			120.0, 90.0, model.SeverityLow, pgxmock.AnyArg(), pgxmock.AnyArg(),
			false, pgxmock.AnyArg(), "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.SaveAlert(context.Background(), &model.Alert{
		ID: "al1", RuleName: "stale_entity", SubjectKind: model.SubjectEntity,
		SubjectID: "e1", MetricName: "days_since_update", MetricValue: 120,
		Threshold: 90, Severity: model.SeverityLow, Message: "entity stale",
		TriggeredAt: time.Now(),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ApplyMerge_CommitsTransaction(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE entities SET`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), true, false, "", pgxmock.AnyArg(), "primary").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE entities SET`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), false, true, "primary", pgxmock.AnyArg(), "dupe").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`INSERT INTO change_log`).
		WithArgs("cl1", "primary", "", model.ChangeTypeMerge, "", "", "reviewer",
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	primary := &model.Entity{ID: "primary", Data: map[string]string{"name": "Acme Inc"}, IsActive: true}
	target := &model.Entity{ID: "dupe", Data: map[string]string{"name": "Acme"}, IsDuplicate: true, DuplicateOf: "primary"}
	entry := &model.ChangeLogEntry{
		ID: "cl1", EntityID: "primary", Type: model.ChangeTypeMerge,
		ChangedBy: "reviewer", Reason: "merged duplicate", ChangedAt: time.Now(),
	}

	require.NoError(t, s.ApplyMerge(context.Background(), primary, target, entry))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ApplyMerge_MissingEntityRollsBack(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE entities SET`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), true, false, "", pgxmock.AnyArg(), "primary").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE entities SET`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), false, true, "primary", pgxmock.AnyArg(), "ghost").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	primary := &model.Entity{ID: "primary", Data: map[string]string{}, IsActive: true}
	target := &model.Entity{ID: "ghost", Data: map[string]string{}, IsDuplicate: true, DuplicateOf: "primary"}

	err := s.ApplyMerge(context.Background(), primary, target, &model.ChangeLogEntry{ID: "cl1"})
	assert.True(t, eris.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}
