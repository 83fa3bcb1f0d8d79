package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/veridata/quality-cli/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses, kept as an interface so
// pgxmock can stand in during tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS entities (
	entity_id        TEXT PRIMARY KEY,
	entity_type      TEXT NOT NULL,
	data             JSONB NOT NULL DEFAULT '{}',
	data_hash        TEXT NOT NULL DEFAULT '',
	completeness     DOUBLE PRECISION NOT NULL DEFAULT 0,
	consistency      DOUBLE PRECISION NOT NULL DEFAULT 0,
	freshness        DOUBLE PRECISION NOT NULL DEFAULT 0,
	confidence       DOUBLE PRECISION NOT NULL DEFAULT 0,
	overall_score    DOUBLE PRECISION NOT NULL DEFAULT 0,
	quality_status   TEXT NOT NULL DEFAULT '',
	confidence_level TEXT NOT NULL DEFAULT '',
	is_active        BOOLEAN NOT NULL DEFAULT TRUE,
	is_duplicate     BOOLEAN NOT NULL DEFAULT FALSE,
	has_issues       BOOLEAN NOT NULL DEFAULT FALSE,
	duplicate_of     TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL,
	last_verified_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS provenance (
	id                    TEXT PRIMARY KEY,
	entity_id             TEXT NOT NULL REFERENCES entities(entity_id),
	field_name            TEXT NOT NULL,
	field_value           TEXT NOT NULL,
	source_id             TEXT NOT NULL DEFAULT '',
	source_url            TEXT NOT NULL DEFAULT '',
	extraction_method     TEXT NOT NULL DEFAULT '',
	extraction_confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	extracted_at          TIMESTAMPTZ NOT NULL,
	provenance_hash       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sources (
	source_id             TEXT PRIMARY KEY,
	url_pattern           TEXT NOT NULL DEFAULT '',
	update_frequency_days INTEGER NOT NULL DEFAULT 0,
	total_requests        BIGINT NOT NULL DEFAULT 0,
	successful_requests   BIGINT NOT NULL DEFAULT 0,
	reliability_score     DOUBLE PRECISION NOT NULL DEFAULT 0,
	last_success_at       TIMESTAMPTZ,
	created_at            TIMESTAMPTZ NOT NULL,
	updated_at            TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS assessments (
	id              TEXT PRIMARY KEY,
	entity_id       TEXT NOT NULL,
	assessor_name   TEXT NOT NULL,
	score           DOUBLE PRECISION NOT NULL,
	weight          DOUBLE PRECISION NOT NULL,
	issues          JSONB NOT NULL DEFAULT '[]',
	recommendations JSONB NOT NULL DEFAULT '[]',
	assessed_at     TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS corrections (
	id              TEXT PRIMARY KEY,
	entity_id       TEXT NOT NULL,
	field_name      TEXT NOT NULL,
	current_value   TEXT NOT NULL DEFAULT '',
	suggested_value TEXT NOT NULL DEFAULT '',
	correction_type TEXT NOT NULL,
	submitted_by    TEXT NOT NULL DEFAULT '',
	confidence      DOUBLE PRECISION NOT NULL DEFAULT 0,
	status          TEXT NOT NULL,
	merge_target_id TEXT NOT NULL DEFAULT '',
	reviewed_by     TEXT NOT NULL DEFAULT '',
	reviewed_at     TIMESTAMPTZ,
	review_notes    TEXT NOT NULL DEFAULT '',
	applied_by      TEXT NOT NULL DEFAULT '',
	applied_at      TIMESTAMPTZ,
	change_log_id   TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS alerts (
	id           TEXT PRIMARY KEY,
	rule_name    TEXT NOT NULL,
	subject_kind TEXT NOT NULL,
	subject_id   TEXT NOT NULL,
	metric_name  TEXT NOT NULL DEFAULT '',
	metric_value DOUBLE PRECISION NOT NULL DEFAULT 0,
	threshold    DOUBLE PRECISION NOT NULL DEFAULT 0,
	severity     TEXT NOT NULL,
	message      TEXT NOT NULL DEFAULT '',
	triggered_at TIMESTAMPTZ NOT NULL,
	is_resolved  BOOLEAN NOT NULL DEFAULT FALSE,
	resolved_at  TIMESTAMPTZ,
	resolved_by  TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS change_log (
	id          TEXT PRIMARY KEY,
	entity_id   TEXT NOT NULL,
	field_name  TEXT NOT NULL DEFAULT '',
	change_type TEXT NOT NULL,
	old_value   TEXT NOT NULL DEFAULT '',
	new_value   TEXT NOT NULL DEFAULT '',
	changed_by  TEXT NOT NULL DEFAULT '',
	reason      TEXT NOT NULL DEFAULT '',
	metadata    JSONB NOT NULL DEFAULT '{}',
	changed_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_entities_type ON entities(entity_type);
CREATE INDEX IF NOT EXISTS idx_provenance_entity ON provenance(entity_id, field_name);
CREATE INDEX IF NOT EXISTS idx_assessments_entity ON assessments(entity_id, assessed_at);
CREATE INDEX IF NOT EXISTS idx_corrections_entity_field ON corrections(entity_id, field_name);
CREATE INDEX IF NOT EXISTS idx_corrections_status ON corrections(status);
CREATE INDEX IF NOT EXISTS idx_alerts_rule_subject ON alerts(rule_name, subject_id, triggered_at);
CREATE INDEX IF NOT EXISTS idx_change_log_entity ON change_log(entity_id, changed_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

const entityColumns = `entity_id, entity_type, data, data_hash,
	completeness, consistency, freshness, confidence, overall_score,
	quality_status, confidence_level,
	is_active, is_duplicate, has_issues, duplicate_of,
	created_at, updated_at, last_verified_at`

func scanPGEntity(row rowScanner) (*model.Entity, error) {
	var e model.Entity
	var dataJSON []byte
	var lastVerified *time.Time
	err := row.Scan(
		&e.ID, &e.Type, &dataJSON, &e.DataHash,
		&e.Completeness, &e.Consistency, &e.Freshness, &e.Confidence, &e.OverallScore,
		&e.QualityStatus, &e.ConfidenceLevel,
		&e.IsActive, &e.IsDuplicate, &e.HasIssues, &e.DuplicateOf,
		&e.CreatedAt, &e.UpdatedAt, &lastVerified,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(dataJSON, &e.Data); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal entity data")
	}
	e.LastVerifiedAt = lastVerified
	return &e, nil
}

func (s *PostgresStore) GetEntity(ctx context.Context, id string) (*model.Entity, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+entityColumns+` FROM entities WHERE entity_id = $1`, id)
	e, err := scanPGEntity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: entity %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get entity %s", id)
	}
	return e, nil
}

func (s *PostgresStore) SaveEntity(ctx context.Context, e *model.Entity) error {
	dataJSON, err := json.Marshal(e.Data)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal entity data")
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO entities (`+entityColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (entity_id) DO UPDATE SET
			entity_type = EXCLUDED.entity_type,
			data = EXCLUDED.data,
			data_hash = EXCLUDED.data_hash,
			completeness = EXCLUDED.completeness,
			consistency = EXCLUDED.consistency,
			freshness = EXCLUDED.freshness,
			confidence = EXCLUDED.confidence,
			overall_score = EXCLUDED.overall_score,
			quality_status = EXCLUDED.quality_status,
			confidence_level = EXCLUDED.confidence_level,
			is_active = EXCLUDED.is_active,
			is_duplicate = EXCLUDED.is_duplicate,
			has_issues = EXCLUDED.has_issues,
			duplicate_of = EXCLUDED.duplicate_of,
			updated_at = EXCLUDED.updated_at,
			last_verified_at = EXCLUDED.last_verified_at`,
		e.ID, e.Type, dataJSON, e.DataHash,
		e.Completeness, e.Consistency, e.Freshness, e.Confidence, e.OverallScore,
		e.QualityStatus, e.ConfidenceLevel,
		e.IsActive, e.IsDuplicate, e.HasIssues, e.DuplicateOf,
		e.CreatedAt, e.UpdatedAt, e.LastVerifiedAt,
	)
	return eris.Wrapf(err, "postgres: save entity %s", e.ID)
}

func (s *PostgresStore) ListEntities(ctx context.Context, filter EntityFilter) ([]model.Entity, error) {
	q := `SELECT ` + entityColumns + ` FROM entities WHERE ($1 = '' OR entity_type = $1) AND (NOT $2 OR is_active)
		ORDER BY entity_id LIMIT $3 OFFSET $4`
	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.pool.Query(ctx, q, string(filter.Type), filter.ActiveOnly, limit, filter.Offset)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list entities")
	}
	defer rows.Close()

	var out []model.Entity
	for rows.Next() {
		e, err := scanPGEntity(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan entity")
		}
		out = append(out, *e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list entities")
}

func (s *PostgresStore) GetProvenance(ctx context.Context, entityID, field string) ([]model.ProvenanceRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, entity_id, field_name, field_value, source_id, source_url,
		       extraction_method, extraction_confidence, extracted_at, provenance_hash
		FROM provenance
		WHERE entity_id = $1 AND ($2 = '' OR field_name = $2)
		ORDER BY extracted_at DESC`, entityID, field)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get provenance")
	}
	defer rows.Close()

	var out []model.ProvenanceRecord
	for rows.Next() {
		var r model.ProvenanceRecord
		if err := rows.Scan(&r.ID, &r.EntityID, &r.FieldName, &r.FieldValue, &r.SourceID, &r.SourceURL,
			&r.ExtractionMethod, &r.ExtractionConfidence, &r.ExtractedAt, &r.Hash); err != nil {
			return nil, eris.Wrap(err, "postgres: scan provenance")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: get provenance")
}

func (s *PostgresStore) AppendProvenance(ctx context.Context, rec *model.ProvenanceRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO provenance (
			id, entity_id, field_name, field_value, source_id, source_url,
			extraction_method, extraction_confidence, extracted_at, provenance_hash
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.ID, rec.EntityID, rec.FieldName, rec.FieldValue, rec.SourceID, rec.SourceURL,
		rec.ExtractionMethod, rec.ExtractionConfidence, rec.ExtractedAt, rec.Hash,
	)
	return eris.Wrap(err, "postgres: append provenance")
}

func (s *PostgresStore) GetSource(ctx context.Context, id string) (*model.DataSource, error) {
	var src model.DataSource
	var lastSuccess *time.Time
	err := s.pool.QueryRow(ctx, `
		SELECT source_id, url_pattern, update_frequency_days, total_requests,
		       successful_requests, reliability_score, last_success_at, created_at, updated_at
		FROM sources WHERE source_id = $1`, id).Scan(
		&src.ID, &src.URLPattern, &src.UpdateFrequencyDays, &src.TotalRequests,
		&src.SuccessfulRequests, &src.ReliabilityScore, &lastSuccess, &src.CreatedAt, &src.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: source %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get source %s", id)
	}
	src.LastSuccessAt = lastSuccess
	return &src, nil
}

func (s *PostgresStore) SaveSource(ctx context.Context, src *model.DataSource) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sources (
			source_id, url_pattern, update_frequency_days, total_requests,
			successful_requests, reliability_score, last_success_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (source_id) DO UPDATE SET
			url_pattern = EXCLUDED.url_pattern,
			update_frequency_days = EXCLUDED.update_frequency_days,
			total_requests = EXCLUDED.total_requests,
			successful_requests = EXCLUDED.successful_requests,
			reliability_score = EXCLUDED.reliability_score,
			last_success_at = EXCLUDED.last_success_at,
			updated_at = EXCLUDED.updated_at`,
		src.ID, src.URLPattern, src.UpdateFrequencyDays, src.TotalRequests,
		src.SuccessfulRequests, src.ReliabilityScore, src.LastSuccessAt, src.CreatedAt, src.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: save source %s", src.ID)
}

func (s *PostgresStore) ListSources(ctx context.Context) ([]model.DataSource, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT source_id, url_pattern, update_frequency_days, total_requests,
		       successful_requests, reliability_score, last_success_at, created_at, updated_at
		FROM sources ORDER BY source_id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sources")
	}
	defer rows.Close()

	var out []model.DataSource
	for rows.Next() {
		var src model.DataSource
		var lastSuccess *time.Time
		if err := rows.Scan(&src.ID, &src.URLPattern, &src.UpdateFrequencyDays, &src.TotalRequests,
			&src.SuccessfulRequests, &src.ReliabilityScore, &lastSuccess, &src.CreatedAt, &src.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan source")
		}
		src.LastSuccessAt = lastSuccess
		out = append(out, src)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list sources")
}

func (s *PostgresStore) SaveAssessment(ctx context.Context, a *model.QualityAssessment) error {
	issues, err := json.Marshal(a.Issues)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal issues")
	}
	recs, err := json.Marshal(a.Recommendations)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal recommendations")
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO assessments (id, entity_id, assessor_name, score, weight, issues, recommendations, assessed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.EntityID, a.AssessorName, a.Score, a.Weight, issues, recs, a.AssessedAt,
	)
	return eris.Wrap(err, "postgres: save assessment")
}

func (s *PostgresStore) ListAssessments(ctx context.Context, entityID string, since time.Time) ([]model.QualityAssessment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, entity_id, assessor_name, score, weight, issues, recommendations, assessed_at
		FROM assessments
		WHERE entity_id = $1 AND assessed_at >= $2
		ORDER BY assessed_at DESC`, entityID, since)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list assessments")
	}
	defer rows.Close()

	var out []model.QualityAssessment
	for rows.Next() {
		var a model.QualityAssessment
		var issues, recs []byte
		if err := rows.Scan(&a.ID, &a.EntityID, &a.AssessorName, &a.Score, &a.Weight, &issues, &recs, &a.AssessedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan assessment")
		}
		if err := json.Unmarshal(issues, &a.Issues); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal issues")
		}
		if err := json.Unmarshal(recs, &a.Recommendations); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal recommendations")
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list assessments")
}

func scanPGCorrection(row rowScanner) (*model.Correction, error) {
	var c model.Correction
	var reviewedAt, appliedAt *time.Time
	err := row.Scan(
		&c.ID, &c.EntityID, &c.FieldName, &c.CurrentValue, &c.SuggestedValue, &c.Type,
		&c.SubmittedBy, &c.Confidence, &c.Status, &c.MergeTargetID, &c.ReviewedBy, &reviewedAt,
		&c.ReviewNotes, &c.AppliedBy, &appliedAt, &c.ChangeLogID, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.ReviewedAt = reviewedAt
	c.AppliedAt = appliedAt
	return &c, nil
}

func (s *PostgresStore) GetCorrection(ctx context.Context, id string) (*model.Correction, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+correctionColumns+` FROM corrections WHERE id = $1`, id)
	c, err := scanPGCorrection(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: correction %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get correction %s", id)
	}
	return c, nil
}

func (s *PostgresStore) SaveCorrection(ctx context.Context, c *model.Correction) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO corrections (`+correctionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (id) DO UPDATE SET
			current_value = EXCLUDED.current_value,
			suggested_value = EXCLUDED.suggested_value,
			confidence = EXCLUDED.confidence,
			status = EXCLUDED.status,
			reviewed_by = EXCLUDED.reviewed_by,
			reviewed_at = EXCLUDED.reviewed_at,
			review_notes = EXCLUDED.review_notes,
			applied_by = EXCLUDED.applied_by,
			applied_at = EXCLUDED.applied_at,
			change_log_id = EXCLUDED.change_log_id,
			updated_at = EXCLUDED.updated_at`,
		c.ID, c.EntityID, c.FieldName, c.CurrentValue, c.SuggestedValue, c.Type,
		c.SubmittedBy, c.Confidence, c.Status, c.MergeTargetID, c.ReviewedBy, c.ReviewedAt,
		c.ReviewNotes, c.AppliedBy, c.AppliedAt, c.ChangeLogID, c.CreatedAt, c.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: save correction %s", c.ID)
}

func (s *PostgresStore) ListCorrections(ctx context.Context, filter CorrectionFilter) ([]model.Correction, error) {
	statuses := make([]string, len(filter.Statuses))
	for i, st := range filter.Statuses {
		statuses[i] = string(st)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+correctionColumns+` FROM corrections
		WHERE ($1 = '' OR entity_id = $1)
		  AND (cardinality($2::text[]) = 0 OR status = ANY($2))
		ORDER BY created_at DESC LIMIT $3`,
		filter.EntityID, statuses, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list corrections")
	}
	defer rows.Close()

	var out []model.Correction
	for rows.Next() {
		c, err := scanPGCorrection(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan correction")
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list corrections")
}

func (s *PostgresStore) FindConflictingCorrections(ctx context.Context, entityID, field, excludeID string) ([]model.Correction, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+correctionColumns+` FROM corrections
		WHERE entity_id = $1 AND field_name = $2 AND id != $3 AND status IN ('pending', 'approved')
		ORDER BY created_at DESC`, entityID, field, excludeID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: find conflicting corrections")
	}
	defer rows.Close()

	var out []model.Correction
	for rows.Next() {
		c, err := scanPGCorrection(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan correction")
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: find conflicting corrections")
}

func (s *PostgresStore) SaveAlert(ctx context.Context, a *model.Alert) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO alerts (
			id, rule_name, subject_kind, subject_id, metric_name, metric_value,
			threshold, severity, message, triggered_at, is_resolved, resolved_at, resolved_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			is_resolved = EXCLUDED.is_resolved,
			resolved_at = EXCLUDED.resolved_at,
			resolved_by = EXCLUDED.resolved_by`,
		a.ID, a.RuleName, a.SubjectKind, a.SubjectID, a.MetricName, a.MetricValue,
		a.Threshold, a.Severity, a.Message, a.TriggeredAt, a.IsResolved, a.ResolvedAt, a.ResolvedBy,
	)
	return eris.Wrap(err, "postgres: save alert")
}

func scanPGAlert(row rowScanner) (*model.Alert, error) {
	var a model.Alert
	var resolvedAt *time.Time
	err := row.Scan(&a.ID, &a.RuleName, &a.SubjectKind, &a.SubjectID, &a.MetricName, &a.MetricValue,
		&a.Threshold, &a.Severity, &a.Message, &a.TriggeredAt, &a.IsResolved, &resolvedAt, &a.ResolvedBy)
	if err != nil {
		return nil, err
	}
	a.ResolvedAt = resolvedAt
	return &a, nil
}

func (s *PostgresStore) FindRecentAlert(ctx context.Context, ruleName, subjectID string, since time.Time) (*model.Alert, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, rule_name, subject_kind, subject_id, metric_name, metric_value,
		       threshold, severity, message, triggered_at, is_resolved, resolved_at, resolved_by
		FROM alerts
		WHERE rule_name = $1 AND subject_id = $2 AND triggered_at >= $3
		ORDER BY triggered_at DESC LIMIT 1`, ruleName, subjectID, since)
	a, err := scanPGAlert(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: find recent alert")
	}
	return a, nil
}

func (s *PostgresStore) ListAlerts(ctx context.Context, filter AlertFilter) ([]model.Alert, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, rule_name, subject_kind, subject_id, metric_name, metric_value,
		       threshold, severity, message, triggered_at, is_resolved, resolved_at, resolved_by
		FROM alerts
		WHERE ($1 = '' OR rule_name = $1)
		  AND ($2 = '' OR subject_id = $2)
		  AND (NOT $3 OR NOT is_resolved)
		ORDER BY triggered_at DESC LIMIT $4`,
		filter.RuleName, filter.SubjectID, filter.Unresolved, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list alerts")
	}
	defer rows.Close()

	var out []model.Alert
	for rows.Next() {
		a, err := scanPGAlert(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan alert")
		}
		out = append(out, *a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list alerts")
}

func (s *PostgresStore) AppendChangeLog(ctx context.Context, c *model.ChangeLogEntry) error {
	meta, err := json.Marshal(c.Metadata)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal change metadata")
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO change_log (id, entity_id, field_name, change_type, old_value, new_value, changed_by, reason, metadata, changed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		c.ID, c.EntityID, c.FieldName, c.Type, c.OldValue, c.NewValue, c.ChangedBy, c.Reason, meta, c.ChangedAt,
	)
	return eris.Wrap(err, "postgres: append change log")
}

func (s *PostgresStore) ListChangeLog(ctx context.Context, entityID string) ([]model.ChangeLogEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, entity_id, field_name, change_type, old_value, new_value, changed_by, reason, metadata, changed_at
		FROM change_log WHERE entity_id = $1 ORDER BY changed_at DESC`, entityID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list change log")
	}
	defer rows.Close()

	var out []model.ChangeLogEntry
	for rows.Next() {
		var c model.ChangeLogEntry
		var meta []byte
		if err := rows.Scan(&c.ID, &c.EntityID, &c.FieldName, &c.Type, &c.OldValue, &c.NewValue,
			&c.ChangedBy, &c.Reason, &meta, &c.ChangedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan change log")
		}
		if err := json.Unmarshal(meta, &c.Metadata); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal change metadata")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list change log")
}

// ApplyMerge runs both entity updates and the change-log insert in one
// transaction; a failure on any statement rolls everything back.
func (s *PostgresStore) ApplyMerge(ctx context.Context, primary, target *model.Entity, entry *model.ChangeLogEntry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin merge")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, e := range []*model.Entity{primary, target} {
		dataJSON, err := json.Marshal(e.Data)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal entity data")
		}
		tag, err := tx.Exec(ctx, `
			UPDATE entities SET data = $1, data_hash = $2, is_active = $3, is_duplicate = $4, duplicate_of = $5, updated_at = $6
			WHERE entity_id = $7`,
			dataJSON, e.DataHash, e.IsActive, e.IsDuplicate, e.DuplicateOf, e.UpdatedAt, e.ID,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: merge update %s", e.ID)
		}
		if tag.RowsAffected() == 0 {
			return eris.Wrapf(ErrNotFound, "postgres: entity %s", e.ID)
		}
	}

	meta, err := json.Marshal(entry.Metadata)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal change metadata")
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO change_log (id, entity_id, field_name, change_type, old_value, new_value, changed_by, reason, metadata, changed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		entry.ID, entry.EntityID, entry.FieldName, entry.Type, entry.OldValue, entry.NewValue,
		entry.ChangedBy, entry.Reason, meta, entry.ChangedAt,
	); err != nil {
		return eris.Wrap(err, "postgres: merge change log")
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit merge")
}
