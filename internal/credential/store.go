// Package credential holds the API key used for the hosted model service and
// the flows that let a user select a different one.
package credential

import (
	"context"
	"errors"
	"strings"
	"sync"
)

var ErrNoKeySelected = errors.New("no API key selected")

// Store holds the currently selected API key. Every Set bumps the version so
// clients built from an older key can be recycled.
type Store struct {
	mu      sync.RWMutex
	key     string
	version uint64
}

func NewStore(initial string) *Store {
	s := &Store{}
	if k := strings.TrimSpace(initial); k != "" {
		s.key = k
		s.version = 1
	}
	return s
}

// Key returns the selected key and its version.
func (s *Store) Key() (string, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.key, s.version
}

func (s *Store) Set(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrNoKeySelected
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.key = key
	s.version++
	return nil
}

func (s *Store) HasSelectedKey(context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.key != "", nil
}

// Ambient is the selector used when the backend authenticates with ambient
// cloud credentials: there is always a key and nothing to select.
type Ambient struct{}

func (Ambient) HasSelectedKey(context.Context) (bool, error) { return true, nil }
func (Ambient) OpenSelectKey(context.Context) error          { return nil }
