// Package provenance maintains the append-only field-level audit trail:
// where every entity field value came from, with tamper-evident hashing.
package provenance

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/veridata/quality-cli/internal/clock"
	"github.com/veridata/quality-cli/internal/model"
	"github.com/veridata/quality-cli/internal/store"
)

// Ledger appends provenance, reconstructs lineage, and verifies hashes.
type Ledger struct {
	store store.Store
	clock clock.Clock
}

// NewLedger creates a Ledger.
func NewLedger(st store.Store, clk clock.Clock) *Ledger {
	return &Ledger{store: st, clock: clk}
}

// RecordHash computes the tamper-evidence hash for one provenance record:
// SHA-256 over the order-sensitive concatenation of entity, field, value,
// source URL, and extraction timestamp.
func RecordHash(entityID, fieldName, value, sourceURL string, extractedAt time.Time) string {
	h := sha256.New()
	for _, part := range []string{entityID, fieldName, value, sourceURL, extractedAt.UTC().Format(time.RFC3339Nano)} {
		h.Write([]byte(part))
		h.Write([]byte{'|'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// DataHash computes the canonical hash of an entity's data map: fields are
// concatenated in sorted key order so the hash is independent of map
// iteration order.
func DataHash(data map[string]string) string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{'='})
		h.Write([]byte(data[k]))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// SourceIDFor derives a stable source ID from a URL (lowercased host without
// the www prefix). Bare identifiers pass through unchanged.
func SourceIDFor(sourceURL string) string {
	u, err := url.Parse(sourceURL)
	if err != nil || u.Hostname() == "" {
		return strings.ToLower(strings.TrimSpace(sourceURL))
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// RecordField appends one provenance row and bumps the source's reliability
// counters. It does not touch Entity.data; callers decide whether to merge
// the value in.
func (l *Ledger) RecordField(ctx context.Context, entityID, fieldName, value, sourceURL, extractionMethod string, confidence float64, extractedAt time.Time) (*model.ProvenanceRecord, error) {
	if extractedAt.IsZero() {
		extractedAt = l.clock.Now()
	}

	rec := &model.ProvenanceRecord{
		ID:                   uuid.New().String(),
		EntityID:             entityID,
		FieldName:            fieldName,
		FieldValue:           value,
		SourceID:             SourceIDFor(sourceURL),
		SourceURL:            sourceURL,
		ExtractionMethod:     extractionMethod,
		ExtractionConfidence: confidence,
		ExtractedAt:          extractedAt,
		Hash:                 RecordHash(entityID, fieldName, value, sourceURL, extractedAt),
	}

	if err := l.store.AppendProvenance(ctx, rec); err != nil {
		return nil, eris.Wrap(err, "provenance: append record")
	}
	if err := l.bumpSource(ctx, rec.SourceID, sourceURL, true); err != nil {
		return nil, err
	}
	return rec, nil
}

// RecordSourceFailure bumps a source's total counter without a success,
// lowering its reliability score.
func (l *Ledger) RecordSourceFailure(ctx context.Context, sourceURL string) error {
	return l.bumpSource(ctx, SourceIDFor(sourceURL), sourceURL, false)
}

// bumpSource increments the per-source request counters and recomputes
// reliability = successful/total. The store serializes per-key writes, so the
// read-increment-write cycle is safe within one process.
func (l *Ledger) bumpSource(ctx context.Context, sourceID, sourceURL string, success bool) error {
	now := l.clock.Now()
	src, err := l.store.GetSource(ctx, sourceID)
	if eris.Is(err, store.ErrNotFound) {
		src = &model.DataSource{
			ID:         sourceID,
			URLPattern: sourceURL,
			CreatedAt:  now,
		}
		err = nil
	}
	if err != nil {
		return eris.Wrapf(err, "provenance: get source %s", sourceID)
	}

	src.TotalRequests++
	if success {
		src.SuccessfulRequests++
		t := now
		src.LastSuccessAt = &t
	}
	if src.TotalRequests > 0 {
		src.ReliabilityScore = float64(src.SuccessfulRequests) / float64(src.TotalRequests)
	}
	src.UpdatedAt = now

	return eris.Wrapf(l.store.SaveSource(ctx, src), "provenance: save source %s", sourceID)
}

// Lineage reconstructs the provenance chain for an entity, newest first.
// field == "" covers all fields. A provenance row whose source is missing is
// reported as an issue on the entry, not an error.
func (l *Ledger) Lineage(ctx context.Context, entityID, field string) ([]model.LineageEntry, error) {
	if _, err := l.store.GetEntity(ctx, entityID); err != nil {
		return nil, eris.Wrapf(err, "provenance: lineage %s", entityID)
	}

	records, err := l.store.GetProvenance(ctx, entityID, field)
	if err != nil {
		return nil, eris.Wrap(err, "provenance: lineage records")
	}

	entries := make([]model.LineageEntry, 0, len(records))
	for _, rec := range records {
		entry := model.LineageEntry{
			Record:         rec,
			ProcessingStep: rec.ExtractionMethod,
		}
		if entry.ProcessingStep == "" {
			entry.ProcessingStep = "extraction"
		}

		src, err := l.store.GetSource(ctx, rec.SourceID)
		switch {
		case eris.Is(err, store.ErrNotFound):
			entry.Issues = append(entry.Issues, "source "+rec.SourceID+" not found")
		case err != nil:
			return nil, eris.Wrapf(err, "provenance: lineage source %s", rec.SourceID)
		default:
			entry.Source = src
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// VerifyIntegrity recomputes the entity data hash and every provenance hash
// from stored fields and reports any mismatch. Nothing is repaired. On a
// clean pass the entity's last-verified timestamp is stamped.
func (l *Ledger) VerifyIntegrity(ctx context.Context, entityID string) (*model.IntegrityReport, error) {
	entity, err := l.store.GetEntity(ctx, entityID)
	if err != nil {
		return nil, eris.Wrapf(err, "provenance: verify %s", entityID)
	}

	report := &model.IntegrityReport{EntityID: entityID}

	computed := DataHash(entity.Data)
	report.Checked++
	if entity.DataHash != computed {
		report.Mismatches = append(report.Mismatches, model.IntegrityMismatch{
			Kind:     "entity_data",
			Stored:   entity.DataHash,
			Computed: computed,
		})
	}

	records, err := l.store.GetProvenance(ctx, entityID, "")
	if err != nil {
		return nil, eris.Wrap(err, "provenance: verify records")
	}
	for _, rec := range records {
		report.Checked++
		want := RecordHash(rec.EntityID, rec.FieldName, rec.FieldValue, rec.SourceURL, rec.ExtractedAt)
		if rec.Hash != want {
			report.Mismatches = append(report.Mismatches, model.IntegrityMismatch{
				Kind:     "provenance",
				RecordID: rec.ID,
				Field:    rec.FieldName,
				Stored:   rec.Hash,
				Computed: want,
			})
		}
	}

	report.Verified = len(report.Mismatches) == 0
	if report.Verified {
		now := l.clock.Now()
		entity.LastVerifiedAt = &now
		if err := l.store.SaveEntity(ctx, entity); err != nil {
			return nil, eris.Wrap(err, "provenance: stamp verification")
		}
	} else {
		zap.L().Warn("provenance: integrity mismatches detected",
			zap.String("entity_id", entityID),
			zap.Int("mismatches", len(report.Mismatches)),
		)
	}
	return report, nil
}
