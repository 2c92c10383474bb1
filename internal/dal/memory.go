package dal

import (
	"sort"
	"sync"
	"time"

	"github.com/Billy-Davies-2/dartsync/internal/models"
)

// MemoryStore implements MatchStore using in-memory storage
type MemoryStore struct {
	mu      sync.RWMutex
	matches map[string]models.MatchDescriptor
	throws  map[string][]models.ThrowRecord
	keys    map[string]struct{}
	legs    map[string]map[int]models.LegResult
}

// NewMemoryStore creates a new in-memory match store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		matches: make(map[string]models.MatchDescriptor),
		throws:  make(map[string][]models.ThrowRecord),
		keys:    make(map[string]struct{}),
		legs:    make(map[string]map[int]models.LegResult),
	}
}

func (m *MemoryStore) SaveMatch(d *models.MatchDescriptor) error {
	if err := d.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now
	if d.Status == "" {
		d.Status = models.StatusAccepted
	}

	cp := *d
	cp.Legs = append([]models.Variant(nil), d.Legs...)
	m.matches[d.ID] = cp
	return nil
}

func (m *MemoryStore) GetMatch(id string) (*models.MatchDescriptor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.matches[id]
	if !ok {
		return nil, ErrNotFound
	}
	d.Legs = append([]models.Variant(nil), d.Legs...)
	return &d, nil
}

func (m *MemoryStore) UpdateStatus(id string, status models.MatchStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.matches[id]
	if !ok {
		return ErrNotFound
	}
	d.Status = status
	d.UpdatedAt = time.Now().UTC()
	m.matches[id] = d
	return nil
}

func (m *MemoryStore) AppendThrow(rec models.ThrowRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := throwKey(rec)
	if _, dup := m.keys[k]; dup {
		return nil
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	m.keys[k] = struct{}{}
	m.throws[rec.MatchID] = append(m.throws[rec.MatchID], rec)
	return nil
}

func (m *MemoryStore) ListThrows(matchID string) ([]models.ThrowRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.ThrowRecord, len(m.throws[matchID]))
	copy(out, m.throws[matchID])
	return out, nil
}

func (m *MemoryStore) RecordLeg(rec models.LegResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	legs := m.legs[rec.MatchID]
	if legs == nil {
		legs = make(map[int]models.LegResult)
		m.legs[rec.MatchID] = legs
	}
	if prev, ok := legs[rec.Leg]; ok && rec.CreatedAt.IsZero() {
		rec.CreatedAt = prev.CreatedAt
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	legs[rec.Leg] = rec
	return nil
}

func (m *MemoryStore) ListLegs(matchID string) ([]models.LegResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.LegResult, 0, len(m.legs[matchID]))
	for _, rec := range m.legs[matchID] {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Leg < out[j].Leg })
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }
