package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/veridata/quality-cli/internal/model"
)

// MemoryStore is an in-process Store keyed by opaque IDs. It serializes all
// access under one lock, which also gives ApplyMerge its atomicity. Used by
// the CLI's memory driver and throughout the engine tests.
type MemoryStore struct {
	mu sync.RWMutex

	entities    map[string]model.Entity
	provenance  map[string][]model.ProvenanceRecord // entity ID -> newest first
	sources     map[string]model.DataSource
	assessments map[string][]model.QualityAssessment // entity ID -> newest first
	corrections map[string]model.Correction
	alerts      []model.Alert
	changeLog   map[string][]model.ChangeLogEntry // entity ID -> newest first
}

// NewMemory creates an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		entities:    make(map[string]model.Entity),
		provenance:  make(map[string][]model.ProvenanceRecord),
		sources:     make(map[string]model.DataSource),
		assessments: make(map[string][]model.QualityAssessment),
		corrections: make(map[string]model.Correction),
		changeLog:   make(map[string][]model.ChangeLogEntry),
	}
}

func copyEntity(e model.Entity) model.Entity {
	out := e
	out.Data = make(map[string]string, len(e.Data))
	for k, v := range e.Data {
		out.Data[k] = v
	}
	return out
}

func (m *MemoryStore) GetEntity(_ context.Context, id string) (*model.Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entities[id]
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "memory: entity %s", id)
	}
	out := copyEntity(e)
	return &out, nil
}

func (m *MemoryStore) SaveEntity(_ context.Context, e *model.Entity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entities[e.ID] = copyEntity(*e)
	return nil
}

func (m *MemoryStore) ListEntities(_ context.Context, filter EntityFilter) ([]model.Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.entities))
	for id := range m.entities {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []model.Entity
	for _, id := range ids {
		e := m.entities[id]
		if filter.Type != "" && e.Type != filter.Type {
			continue
		}
		if filter.ActiveOnly && !e.IsActive {
			continue
		}
		out = append(out, copyEntity(e))
	}
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *MemoryStore) GetProvenance(_ context.Context, entityID, field string) ([]model.ProvenanceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.ProvenanceRecord
	for _, rec := range m.provenance[entityID] {
		if field != "" && rec.FieldName != field {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (m *MemoryStore) AppendProvenance(_ context.Context, rec *model.ProvenanceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.provenance[rec.EntityID] = append([]model.ProvenanceRecord{*rec}, m.provenance[rec.EntityID]...)
	return nil
}

func (m *MemoryStore) GetSource(_ context.Context, id string) (*model.DataSource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sources[id]
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "memory: source %s", id)
	}
	out := s
	return &out, nil
}

func (m *MemoryStore) SaveSource(_ context.Context, s *model.DataSource) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources[s.ID] = *s
	return nil
}

func (m *MemoryStore) ListSources(_ context.Context) ([]model.DataSource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.sources))
	for id := range m.sources {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]model.DataSource, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.sources[id])
	}
	return out, nil
}

func (m *MemoryStore) SaveAssessment(_ context.Context, a *model.QualityAssessment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assessments[a.EntityID] = append([]model.QualityAssessment{*a}, m.assessments[a.EntityID]...)
	return nil
}

func (m *MemoryStore) ListAssessments(_ context.Context, entityID string, since time.Time) ([]model.QualityAssessment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.QualityAssessment
	for _, a := range m.assessments[entityID] {
		if !since.IsZero() && a.AssessedAt.Before(since) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (m *MemoryStore) GetCorrection(_ context.Context, id string) (*model.Correction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.corrections[id]
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "memory: correction %s", id)
	}
	out := c
	return &out, nil
}

func (m *MemoryStore) SaveCorrection(_ context.Context, c *model.Correction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.corrections[c.ID] = *c
	return nil
}

func (m *MemoryStore) ListCorrections(_ context.Context, filter CorrectionFilter) ([]model.Correction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.corrections))
	for id := range m.corrections {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []model.Correction
	for _, id := range ids {
		c := m.corrections[id]
		if filter.EntityID != "" && c.EntityID != filter.EntityID {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, c.Status) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func containsStatus(statuses []model.CorrectionStatus, s model.CorrectionStatus) bool {
	for _, st := range statuses {
		if st == s {
			return true
		}
	}
	return false
}

func (m *MemoryStore) FindConflictingCorrections(_ context.Context, entityID, field, excludeID string) ([]model.Correction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Correction
	for _, c := range m.corrections {
		if c.EntityID != entityID || c.FieldName != field || c.ID == excludeID {
			continue
		}
		if c.Status.IsLive() {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) SaveAlert(_ context.Context, a *model.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, *a)
	return nil
}

func (m *MemoryStore) FindRecentAlert(_ context.Context, ruleName, subjectID string, since time.Time) (*model.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var newest *model.Alert
	for i := range m.alerts {
		a := m.alerts[i]
		if a.RuleName != ruleName || a.SubjectID != subjectID {
			continue
		}
		if a.TriggeredAt.Before(since) {
			continue
		}
		if newest == nil || a.TriggeredAt.After(newest.TriggeredAt) {
			cp := a
			newest = &cp
		}
	}
	return newest, nil
}

func (m *MemoryStore) ListAlerts(_ context.Context, filter AlertFilter) ([]model.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Alert
	for _, a := range m.alerts {
		if filter.RuleName != "" && a.RuleName != filter.RuleName {
			continue
		}
		if filter.SubjectID != "" && a.SubjectID != filter.SubjectID {
			continue
		}
		if filter.Unresolved && a.IsResolved {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TriggeredAt.After(out[j].TriggeredAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *MemoryStore) AppendChangeLog(_ context.Context, c *model.ChangeLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.changeLog[c.EntityID] = append([]model.ChangeLogEntry{*c}, m.changeLog[c.EntityID]...)
	return nil
}

func (m *MemoryStore) ListChangeLog(_ context.Context, entityID string) ([]model.ChangeLogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.ChangeLogEntry, len(m.changeLog[entityID]))
	copy(out, m.changeLog[entityID])
	return out, nil
}

// ApplyMerge writes both entities and the merge change-log entry under one
// lock so readers never observe a half-finished merge.
func (m *MemoryStore) ApplyMerge(_ context.Context, primary, target *model.Entity, entry *model.ChangeLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entities[primary.ID]; !ok {
		return eris.Wrapf(ErrNotFound, "memory: entity %s", primary.ID)
	}
	if _, ok := m.entities[target.ID]; !ok {
		return eris.Wrapf(ErrNotFound, "memory: entity %s", target.ID)
	}
	m.entities[primary.ID] = copyEntity(*primary)
	m.entities[target.ID] = copyEntity(*target)
	m.changeLog[entry.EntityID] = append([]model.ChangeLogEntry{*entry}, m.changeLog[entry.EntityID]...)
	return nil
}

func (m *MemoryStore) Migrate(context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }
