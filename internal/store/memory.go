package store

import (
	"context"
	"sort"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/safe-zone/internal/model"
)

// MemoryStore keeps everything in process memory. State is lost on restart.
type MemoryStore struct {
	mu         sync.RWMutex
	properties map[string]model.Property
	toggles    map[string][]model.ToggleEvent
}

// NewMemory creates an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		properties: make(map[string]model.Property),
		toggles:    make(map[string][]model.ToggleEvent),
	}
}

func (s *MemoryStore) Migrate(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) LoadProperty(_ context.Context, id string) (*model.Property, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.properties[id]
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "memory: load property %s", id)
	}
	out := p.Clone()
	return &out, nil
}

func (s *MemoryStore) SaveProperty(_ context.Context, p model.Property) error {
	if p.ID == "" {
		return eris.New("memory: property id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.properties[p.ID] = p.Clone()
	return nil
}

func (s *MemoryStore) RecordToggle(_ context.Context, ev model.ToggleEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.toggles[ev.PropertyID] = append(s.toggles[ev.PropertyID], ev)
	return nil
}

func (s *MemoryStore) ListToggles(_ context.Context, propertyID string, limit int) ([]model.ToggleEvent, error) {
	s.mu.RLock()
	events := make([]model.ToggleEvent, len(s.toggles[propertyID]))
	copy(events, s.toggles[propertyID])
	s.mu.RUnlock()

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Version > events[j].Version
	})
	if n := toggleLimit(limit); len(events) > n {
		events = events[:n]
	}
	return events, nil
}
