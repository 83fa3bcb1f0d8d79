package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/veridata/quality-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Maps and string
// slices are stored as JSON text columns.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS entities (
	entity_id        TEXT PRIMARY KEY,
	entity_type      TEXT NOT NULL,
	data             TEXT NOT NULL DEFAULT '{}',
	data_hash        TEXT NOT NULL DEFAULT '',
	completeness     REAL NOT NULL DEFAULT 0,
	consistency      REAL NOT NULL DEFAULT 0,
	freshness        REAL NOT NULL DEFAULT 0,
	confidence       REAL NOT NULL DEFAULT 0,
	overall_score    REAL NOT NULL DEFAULT 0,
	quality_status   TEXT NOT NULL DEFAULT '',
	confidence_level TEXT NOT NULL DEFAULT '',
	is_active        INTEGER NOT NULL DEFAULT 1,
	is_duplicate     INTEGER NOT NULL DEFAULT 0,
	has_issues       INTEGER NOT NULL DEFAULT 0,
	duplicate_of     TEXT NOT NULL DEFAULT '',
	created_at       DATETIME NOT NULL,
	updated_at       DATETIME NOT NULL,
	last_verified_at DATETIME
);

CREATE TABLE IF NOT EXISTS provenance (
	id                    TEXT PRIMARY KEY,
	entity_id             TEXT NOT NULL REFERENCES entities(entity_id),
	field_name            TEXT NOT NULL,
	field_value           TEXT NOT NULL,
	source_id             TEXT NOT NULL DEFAULT '',
	source_url            TEXT NOT NULL DEFAULT '',
	extraction_method     TEXT NOT NULL DEFAULT '',
	extraction_confidence REAL NOT NULL DEFAULT 0,
	extracted_at          DATETIME NOT NULL,
	provenance_hash       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sources (
	source_id             TEXT PRIMARY KEY,
	url_pattern           TEXT NOT NULL DEFAULT '',
	update_frequency_days INTEGER NOT NULL DEFAULT 0,
	total_requests        INTEGER NOT NULL DEFAULT 0,
	successful_requests   INTEGER NOT NULL DEFAULT 0,
	reliability_score     REAL NOT NULL DEFAULT 0,
	last_success_at       DATETIME,
	created_at            DATETIME NOT NULL,
	updated_at            DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS assessments (
	id              TEXT PRIMARY KEY,
	entity_id       TEXT NOT NULL,
	assessor_name   TEXT NOT NULL,
	score           REAL NOT NULL,
	weight          REAL NOT NULL,
	issues          TEXT NOT NULL DEFAULT '[]',
	recommendations TEXT NOT NULL DEFAULT '[]',
	assessed_at     DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS corrections (
	id              TEXT PRIMARY KEY,
	entity_id       TEXT NOT NULL,
	field_name      TEXT NOT NULL,
	current_value   TEXT NOT NULL DEFAULT '',
	suggested_value TEXT NOT NULL DEFAULT '',
	correction_type TEXT NOT NULL,
	submitted_by    TEXT NOT NULL DEFAULT '',
	confidence      REAL NOT NULL DEFAULT 0,
	status          TEXT NOT NULL,
	merge_target_id TEXT NOT NULL DEFAULT '',
	reviewed_by     TEXT NOT NULL DEFAULT '',
	reviewed_at     DATETIME,
	review_notes    TEXT NOT NULL DEFAULT '',
	applied_by      TEXT NOT NULL DEFAULT '',
	applied_at      DATETIME,
	change_log_id   TEXT NOT NULL DEFAULT '',
	created_at      DATETIME NOT NULL,
	updated_at      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS alerts (
	id           TEXT PRIMARY KEY,
	rule_name    TEXT NOT NULL,
	subject_kind TEXT NOT NULL,
	subject_id   TEXT NOT NULL,
	metric_name  TEXT NOT NULL DEFAULT '',
	metric_value REAL NOT NULL DEFAULT 0,
	threshold    REAL NOT NULL DEFAULT 0,
	severity     TEXT NOT NULL,
	message      TEXT NOT NULL DEFAULT '',
	triggered_at DATETIME NOT NULL,
	is_resolved  INTEGER NOT NULL DEFAULT 0,
	resolved_at  DATETIME,
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
	metadata    TEXT NOT NULL DEFAULT '{}',
	changed_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_entities_type ON entities(entity_type);
CREATE INDEX IF NOT EXISTS idx_provenance_entity ON provenance(entity_id, field_name);
CREATE INDEX IF NOT EXISTS idx_assessments_entity ON assessments(entity_id, assessed_at);
CREATE INDEX IF NOT EXISTS idx_corrections_entity_field ON corrections(entity_id, field_name);
CREATE INDEX IF NOT EXISTS idx_corrections_status ON corrections(status);
CREATE INDEX IF NOT EXISTS idx_alerts_rule_subject ON alerts(rule_name, subject_id, triggered_at);
CREATE INDEX IF NOT EXISTS idx_change_log_entity ON change_log(entity_id, changed_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetEntity(ctx context.Context, id string) (*model.Entity, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT entity_id, entity_type, data, data_hash,
		       completeness, consistency, freshness, confidence, overall_score,
		       quality_status, confidence_level,
		       is_active, is_duplicate, has_issues, duplicate_of,
		       created_at, updated_at, last_verified_at
		FROM entities WHERE entity_id = ?`, id)
	e, err := scanEntity(row)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: entity %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get entity %s", id)
	}
	return e, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (*model.Entity, error) {
	var e model.Entity
	var dataJSON string
	var lastVerified sql.NullTime
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
	if err := json.Unmarshal([]byte(dataJSON), &e.Data); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal entity data")
	}
	if lastVerified.Valid {
		t := lastVerified.Time
		e.LastVerifiedAt = &t
	}
	return &e, nil
}

func (s *SQLiteStore) SaveEntity(ctx context.Context, e *model.Entity) error {
	dataJSON, err := json.Marshal(e.Data)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal entity data")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO entities (
			entity_id, entity_type, data, data_hash,
			completeness, consistency, freshness, confidence, overall_score,
			quality_status, confidence_level,
			is_active, is_duplicate, has_issues, duplicate_of,
			created_at, updated_at, last_verified_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(entity_id) DO UPDATE SET
			entity_type = excluded.entity_type,
			data = excluded.data,
			data_hash = excluded.data_hash,
			completeness = excluded.completeness,
			consistency = excluded.consistency,
			freshness = excluded.freshness,
			confidence = excluded.confidence,
			overall_score = excluded.overall_score,
			quality_status = excluded.quality_status,
			confidence_level = excluded.confidence_level,
			is_active = excluded.is_active,
			is_duplicate = excluded.is_duplicate,
			has_issues = excluded.has_issues,
			duplicate_of = excluded.duplicate_of,
			updated_at = excluded.updated_at,
			last_verified_at = excluded.last_verified_at`,
		e.ID, e.Type, string(dataJSON), e.DataHash,
		e.Completeness, e.Consistency, e.Freshness, e.Confidence, e.OverallScore,
		e.QualityStatus, e.ConfidenceLevel,
		e.IsActive, e.IsDuplicate, e.HasIssues, e.DuplicateOf,
		e.CreatedAt, e.UpdatedAt, nullTime(e.LastVerifiedAt),
	)
	return eris.Wrapf(err, "sqlite: save entity %s", e.ID)
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func (s *SQLiteStore) ListEntities(ctx context.Context, filter EntityFilter) ([]model.Entity, error) {
	q := `
		SELECT entity_id, entity_type, data, data_hash,
		       completeness, consistency, freshness, confidence, overall_score,
		       quality_status, confidence_level,
		       is_active, is_duplicate, has_issues, duplicate_of,
		       created_at, updated_at, last_verified_at
		FROM entities WHERE 1=1`
	var args []any
	if filter.Type != "" {
		q += ` AND entity_type = ?`
		args = append(args, filter.Type)
	}
	if filter.ActiveOnly {
		q += ` AND is_active = 1`
	}
	q += ` ORDER BY entity_id`
	if filter.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		q += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list entities")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan entity")
		}
		out = append(out, *e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list entities")
}

func (s *SQLiteStore) GetProvenance(ctx context.Context, entityID, field string) ([]model.ProvenanceRecord, error) {
	q := `
		SELECT id, entity_id, field_name, field_value, source_id, source_url,
		       extraction_method, extraction_confidence, extracted_at, provenance_hash
		FROM provenance WHERE entity_id = ?`
	args := []any{entityID}
	if field != "" {
		q += ` AND field_name = ?`
		args = append(args, field)
	}
	q += ` ORDER BY extracted_at DESC`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get provenance")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.ProvenanceRecord
	for rows.Next() {
		var r model.ProvenanceRecord
		if err := rows.Scan(&r.ID, &r.EntityID, &r.FieldName, &r.FieldValue, &r.SourceID, &r.SourceURL,
			&r.ExtractionMethod, &r.ExtractionConfidence, &r.ExtractedAt, &r.Hash); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan provenance")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: get provenance")
}

func (s *SQLiteStore) AppendProvenance(ctx context.Context, rec *model.ProvenanceRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO provenance (
			id, entity_id, field_name, field_value, source_id, source_url,
			extraction_method, extraction_confidence, extracted_at, provenance_hash
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.EntityID, rec.FieldName, rec.FieldValue, rec.SourceID, rec.SourceURL,
		rec.ExtractionMethod, rec.ExtractionConfidence, rec.ExtractedAt, rec.Hash,
	)
	return eris.Wrap(err, "sqlite: append provenance")
}

func (s *SQLiteStore) GetSource(ctx context.Context, id string) (*model.DataSource, error) {
	var src model.DataSource
	var lastSuccess sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT source_id, url_pattern, update_frequency_days, total_requests,
		       successful_requests, reliability_score, last_success_at, created_at, updated_at
		FROM sources WHERE source_id = ?`, id).Scan(
		&src.ID, &src.URLPattern, &src.UpdateFrequencyDays, &src.TotalRequests,
		&src.SuccessfulRequests, &src.ReliabilityScore, &lastSuccess, &src.CreatedAt, &src.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: source %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get source %s", id)
	}
	if lastSuccess.Valid {
		t := lastSuccess.Time
		src.LastSuccessAt = &t
	}
	return &src, nil
}

func (s *SQLiteStore) SaveSource(ctx context.Context, src *model.DataSource) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sources (
			source_id, url_pattern, update_frequency_days, total_requests,
			successful_requests, reliability_score, last_success_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_id) DO UPDATE SET
			url_pattern = excluded.url_pattern,
			update_frequency_days = excluded.update_frequency_days,
			total_requests = excluded.total_requests,
			successful_requests = excluded.successful_requests,
			reliability_score = excluded.reliability_score,
			last_success_at = excluded.last_success_at,
			updated_at = excluded.updated_at`,
		src.ID, src.URLPattern, src.UpdateFrequencyDays, src.TotalRequests,
		src.SuccessfulRequests, src.ReliabilityScore, nullTime(src.LastSuccessAt),
		src.CreatedAt, src.UpdatedAt,
	)
	return eris.Wrapf(err, "sqlite: save source %s", src.ID)
}

func (s *SQLiteStore) ListSources(ctx context.Context) ([]model.DataSource, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source_id, url_pattern, update_frequency_days, total_requests,
		       successful_requests, reliability_score, last_success_at, created_at, updated_at
		FROM sources ORDER BY source_id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sources")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.DataSource
	for rows.Next() {
		var src model.DataSource
		var lastSuccess sql.NullTime
		if err := rows.Scan(&src.ID, &src.URLPattern, &src.UpdateFrequencyDays, &src.TotalRequests,
			&src.SuccessfulRequests, &src.ReliabilityScore, &lastSuccess, &src.CreatedAt, &src.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan source")
		}
		if lastSuccess.Valid {
			t := lastSuccess.Time
			src.LastSuccessAt = &t
		}
		out = append(out, src)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list sources")
}

func (s *SQLiteStore) SaveAssessment(ctx context.Context, a *model.QualityAssessment) error {
	issues, err := json.Marshal(a.Issues)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal issues")
	}
	recs, err := json.Marshal(a.Recommendations)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal recommendations")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO assessments (id, entity_id, assessor_name, score, weight, issues, recommendations, assessed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.EntityID, a.AssessorName, a.Score, a.Weight, string(issues), string(recs), a.AssessedAt,
	)
	return eris.Wrap(err, "sqlite: save assessment")
}

func (s *SQLiteStore) ListAssessments(ctx context.Context, entityID string, since time.Time) ([]model.QualityAssessment, error) {
	q := `
		SELECT id, entity_id, assessor_name, score, weight, issues, recommendations, assessed_at
		FROM assessments WHERE entity_id = ?`
	args := []any{entityID}
	if !since.IsZero() {
		q += ` AND assessed_at >= ?`
		args = append(args, since)
	}
	q += ` ORDER BY assessed_at DESC`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list assessments")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.QualityAssessment
	for rows.Next() {
		var a model.QualityAssessment
		var issues, recs string
		if err := rows.Scan(&a.ID, &a.EntityID, &a.AssessorName, &a.Score, &a.Weight, &issues, &recs, &a.AssessedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan assessment")
		}
		if err := json.Unmarshal([]byte(issues), &a.Issues); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal issues")
		}
		if err := json.Unmarshal([]byte(recs), &a.Recommendations); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal recommendations")
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list assessments")
}

const correctionColumns = `id, entity_id, field_name, current_value, suggested_value, correction_type,
	submitted_by, confidence, status, merge_target_id, reviewed_by, reviewed_at, review_notes,
	applied_by, applied_at, change_log_id, created_at, updated_at`

func scanCorrection(row rowScanner) (*model.Correction, error) {
	var c model.Correction
	var reviewedAt, appliedAt sql.NullTime
	err := row.Scan(
		&c.ID, &c.EntityID, &c.FieldName, &c.CurrentValue, &c.SuggestedValue, &c.Type,
		&c.SubmittedBy, &c.Confidence, &c.Status, &c.MergeTargetID, &c.ReviewedBy, &reviewedAt,
		&c.ReviewNotes, &c.AppliedBy, &appliedAt, &c.ChangeLogID, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if reviewedAt.Valid {
		t := reviewedAt.Time
		c.ReviewedAt = &t
	}
	if appliedAt.Valid {
		t := appliedAt.Time
		c.AppliedAt = &t
	}
	return &c, nil
}

func (s *SQLiteStore) GetCorrection(ctx context.Context, id string) (*model.Correction, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+correctionColumns+` FROM corrections WHERE id = ?`, id)
	c, err := scanCorrection(row)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: correction %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get correction %s", id)
	}
	return c, nil
}

func (s *SQLiteStore) SaveCorrection(ctx context.Context, c *model.Correction) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO corrections (`+correctionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			current_value = excluded.current_value,
			suggested_value = excluded.suggested_value,
			confidence = excluded.confidence,
			status = excluded.status,
			reviewed_by = excluded.reviewed_by,
			reviewed_at = excluded.reviewed_at,
			review_notes = excluded.review_notes,
			applied_by = excluded.applied_by,
			applied_at = excluded.applied_at,
			change_log_id = excluded.change_log_id,
			updated_at = excluded.updated_at`,
		c.ID, c.EntityID, c.FieldName, c.CurrentValue, c.SuggestedValue, c.Type,
		c.SubmittedBy, c.Confidence, c.Status, c.MergeTargetID, c.ReviewedBy, nullTime(c.ReviewedAt),
		c.ReviewNotes, c.AppliedBy, nullTime(c.AppliedAt), c.ChangeLogID, c.CreatedAt, c.UpdatedAt,
	)
	return eris.Wrapf(err, "sqlite: save correction %s", c.ID)
}

func (s *SQLiteStore) ListCorrections(ctx context.Context, filter CorrectionFilter) ([]model.Correction, error) {
	q := `SELECT ` + correctionColumns + ` FROM corrections WHERE 1=1`
	var args []any
	if filter.EntityID != "" {
		q += ` AND entity_id = ?`
		args = append(args, filter.EntityID)
	}
	if len(filter.Statuses) > 0 {
		q += ` AND status IN (`
		for i, st := range filter.Statuses {
			if i > 0 {
				q += `, `
			}
			q += `?`
			args = append(args, st)
		}
		q += `)`
	}
	q += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list corrections")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Correction
	for rows.Next() {
		c, err := scanCorrection(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan correction")
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list corrections")
}

func (s *SQLiteStore) FindConflictingCorrections(ctx context.Context, entityID, field, excludeID string) ([]model.Correction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+correctionColumns+` FROM corrections
		WHERE entity_id = ? AND field_name = ? AND id != ? AND status IN ('pending', 'approved')
		ORDER BY created_at DESC`, entityID, field, excludeID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: find conflicting corrections")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Correction
	for rows.Next() {
		c, err := scanCorrection(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan correction")
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: find conflicting corrections")
}

func (s *SQLiteStore) SaveAlert(ctx context.Context, a *model.Alert) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO alerts (
			id, rule_name, subject_kind, subject_id, metric_name, metric_value,
			threshold, severity, message, triggered_at, is_resolved, resolved_at, resolved_by
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			is_resolved = excluded.is_resolved,
			resolved_at = excluded.resolved_at,
			resolved_by = excluded.resolved_by`,
		a.ID, a.RuleName, a.SubjectKind, a.SubjectID, a.MetricName, a.MetricValue,
		a.Threshold, a.Severity, a.Message, a.TriggeredAt, a.IsResolved, nullTime(a.ResolvedAt), a.ResolvedBy,
	)
	return eris.Wrap(err, "sqlite: save alert")
}

func (s *SQLiteStore) FindRecentAlert(ctx context.Context, ruleName, subjectID string, since time.Time) (*model.Alert, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, rule_name, subject_kind, subject_id, metric_name, metric_value,
		       threshold, severity, message, triggered_at, is_resolved, resolved_at, resolved_by
		FROM alerts
		WHERE rule_name = ? AND subject_id = ? AND triggered_at >= ?
		ORDER BY triggered_at DESC LIMIT 1`, ruleName, subjectID, since)
	a, err := scanAlert(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: find recent alert")
	}
	return a, nil
}

func scanAlert(row rowScanner) (*model.Alert, error) {
	var a model.Alert
	var resolvedAt sql.NullTime
	err := row.Scan(&a.ID, &a.RuleName, &a.SubjectKind, &a.SubjectID, &a.MetricName, &a.MetricValue,
		&a.Threshold, &a.Severity, &a.Message, &a.TriggeredAt, &a.IsResolved, &resolvedAt, &a.ResolvedBy)
	if err != nil {
		return nil, err
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		a.ResolvedAt = &t
	}
	return &a, nil
}

func (s *SQLiteStore) ListAlerts(ctx context.Context, filter AlertFilter) ([]model.Alert, error) {
	q := `
		SELECT id, rule_name, subject_kind, subject_id, metric_name, metric_value,
		       threshold, severity, message, triggered_at, is_resolved, resolved_at, resolved_by
		FROM alerts WHERE 1=1`
	var args []any
	if filter.RuleName != "" {
		q += ` AND rule_name = ?`
		args = append(args, filter.RuleName)
	}
	if filter.SubjectID != "" {
		q += ` AND subject_id = ?`
		args = append(args, filter.SubjectID)
	}
	if filter.Unresolved {
		q += ` AND is_resolved = 0`
	}
	q += ` ORDER BY triggered_at DESC`
	if filter.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list alerts")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan alert")
		}
		out = append(out, *a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list alerts")
}

func (s *SQLiteStore) AppendChangeLog(ctx context.Context, c *model.ChangeLogEntry) error {
	meta, err := json.Marshal(c.Metadata)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal change metadata")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO change_log (id, entity_id, field_name, change_type, old_value, new_value, changed_by, reason, metadata, changed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.EntityID, c.FieldName, c.Type, c.OldValue, c.NewValue, c.ChangedBy, c.Reason, string(meta), c.ChangedAt,
	)
	return eris.Wrap(err, "sqlite: append change log")
}

func (s *SQLiteStore) ListChangeLog(ctx context.Context, entityID string) ([]model.ChangeLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, entity_id, field_name, change_type, old_value, new_value, changed_by, reason, metadata, changed_at
		FROM change_log WHERE entity_id = ? ORDER BY changed_at DESC`, entityID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list change log")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.ChangeLogEntry
	for rows.Next() {
		var c model.ChangeLogEntry
		var meta string
		if err := rows.Scan(&c.ID, &c.EntityID, &c.FieldName, &c.Type, &c.OldValue, &c.NewValue,
			&c.ChangedBy, &c.Reason, &meta, &c.ChangedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan change log")
		}
		if err := json.Unmarshal([]byte(meta), &c.Metadata); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal change metadata")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list change log")
}

// ApplyMerge writes the primary, the deactivated target, and the merge entry
// in one transaction.
func (s *SQLiteStore) ApplyMerge(ctx context.Context, primary, target *model.Entity, entry *model.ChangeLogEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin merge")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, e := range []*model.Entity{primary, target} {
		dataJSON, err := json.Marshal(e.Data)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal entity data")
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE entities SET data = ?, data_hash = ?, is_active = ?, is_duplicate = ?, duplicate_of = ?, updated_at = ?
			WHERE entity_id = ?`,
			string(dataJSON), e.DataHash, e.IsActive, e.IsDuplicate, e.DuplicateOf, e.UpdatedAt, e.ID,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: merge update %s", e.ID)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return eris.Wrap(err, "sqlite: merge rows affected")
		}
		if n == 0 {
			return eris.Wrapf(ErrNotFound, "sqlite: entity %s", e.ID)
		}
	}

	meta, err := json.Marshal(entry.Metadata)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal change metadata")
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO change_log (id, entity_id, field_name, change_type, old_value, new_value, changed_by, reason, metadata, changed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.EntityID, entry.FieldName, entry.Type, entry.OldValue, entry.NewValue,
		entry.ChangedBy, entry.Reason, string(meta), entry.ChangedAt,
	); err != nil {
		return eris.Wrap(err, "sqlite: merge change log")
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit merge")
}
