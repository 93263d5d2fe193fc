package memory

import (
	"sync"

	"github.com/PabloGalante/oneiros/internal/domain"
)

type MessageStore struct {
	mu       sync.RWMutex
	messages map[domain.EntryID][]domain.ChatMessage
}

func NewMessageStore() *MessageStore {
	return &MessageStore{
		messages: make(map[domain.EntryID][]domain.ChatMessage),
	}
}

func (s *MessageStore) AppendMessage(id domain.EntryID, msg domain.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages[id] = append(s.messages[id], msg)
	return nil
}

// GetMessages returns a copy of the history so callers can't rewrite it.
func (s *MessageStore) GetMessages(id domain.EntryID) ([]domain.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.messages[id]
	out := make([]domain.ChatMessage, len(msgs))
	copy(out, msgs)
	return out, nil
}
