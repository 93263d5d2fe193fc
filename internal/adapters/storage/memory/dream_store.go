package memory

import (
	"sync"

	"github.com/PabloGalante/oneiros/internal/domain"
)

// DreamStore is an in-memory implementation of domain.DreamStore.
// Entries live as long as the process; newest first.
type DreamStore struct {
	mu      sync.RWMutex
	entries []*domain.DreamEntry
	byID    map[domain.EntryID]*domain.DreamEntry
}

// NewDreamStore creates an empty DreamStore.
func NewDreamStore() *DreamStore {
	return &DreamStore{
		byID: make(map[domain.EntryID]*domain.DreamEntry),
	}
}

// Prepend stores a copy of entry at the front of the list.
func (s *DreamStore) Prepend(entry *domain.DreamEntry) error {
	if entry == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[entry.ID]; exists {
		return domain.ErrEntryExists
	}

	stored := entry.Clone()
	s.byID[stored.ID] = stored
	s.entries = append([]*domain.DreamEntry{stored}, s.entries...)
	return nil
}

func (s *DreamStore) Get(id domain.EntryID) (*domain.DreamEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.byID[id]
	if !ok {
		return nil, domain.ErrEntryNotFound
	}
	return e.Clone(), nil
}

// List returns the `limit` most recent entries, newest first.
// If limit <= 0, returns all.
func (s *DreamStore) List(limit int) ([]*domain.DreamEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.entries) {
		limit = len(s.entries)
	}

	out := make([]*domain.DreamEntry, 0, limit)
	for _, e := range s.entries[:limit] {
		out = append(out, e.Clone())
	}
	return out, nil
}
