// Package chat runs the follow-up conversation attached to each dream entry.
package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/PabloGalante/oneiros/internal/domain"
	"github.com/PabloGalante/oneiros/internal/errorsx"
	"github.com/PabloGalante/oneiros/internal/observability"
)

const (
	// EmptyReplyFallback stands in for a reply with no text.
	EmptyReplyFallback = "I'm contemplating that symbol..."
	// ErrorFallback stands in for a reply that could not be fetched.
	ErrorFallback = "Error connecting to the psyche. Try again later."
)

var (
	ErrBusy         = errorsx.New(errorsx.ReasonBusy, "chat: a reply is still pending")
	ErrEmptyMessage = errors.New("chat: message is empty")
)

// Service owns one session per dream entry. Sessions share nothing.
type Service struct {
	gateway  domain.Gateway
	dreams   domain.DreamStore
	messages domain.MessageStore
	events   domain.EventPublisher
	now      func() time.Time

	mu       sync.Mutex
	sessions map[domain.EntryID]*session
}

type session struct {
	mu     sync.Mutex
	open   bool
	draft  string
	typing bool
}

func NewService(
	gateway domain.Gateway,
	dreams domain.DreamStore,
	messages domain.MessageStore,
	events domain.EventPublisher,
) *Service {
	if events == nil {
		events = domain.DiscardEvents{}
	}
	return &Service{
		gateway:  gateway,
		dreams:   dreams,
		messages: messages,
		events:   events,
		now:      time.Now,
		sessions: make(map[domain.EntryID]*session),
	}
}

// session returns the entry's session, creating it on first use.
func (s *Service) session(id domain.EntryID) (*session, *domain.DreamEntry, error) {
	entry, err := s.dreams.Get(id)
	if err != nil {
		return nil, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		sess = &session{}
		s.sessions[id] = sess
	}
	return sess, entry, nil
}

func (s *Service) State(id domain.EntryID) (domain.ChatState, error) {
	sess, _, err := s.session(id)
	if err != nil {
		return domain.ChatState{}, err
	}
	return s.snapshot(id, sess)
}

// Toggle opens a closed chat and closes an open one.
func (s *Service) Toggle(ctx context.Context, id domain.EntryID) (domain.ChatState, error) {
	sess, _, err := s.session(id)
	if err != nil {
		return domain.ChatState{}, err
	}

	sess.mu.Lock()
	sess.open = !sess.open
	open := sess.open
	sess.mu.Unlock()

	observability.LoggerFromContext(ctx).Info("chat toggled", "entry_id", id, "open", open)
	s.publish(id)
	return s.snapshot(id, sess)
}

func (s *Service) SetDraft(id domain.EntryID, text string) (domain.ChatState, error) {
	sess, _, err := s.session(id)
	if err != nil {
		return domain.ChatState{}, err
	}

	sess.mu.Lock()
	sess.draft = text
	sess.mu.Unlock()

	return s.snapshot(id, sess)
}

// Send appends the user's message, asks the gateway for a reply with the
// dream transcription as context, and appends the reply. A send while the
// previous one is still pending fails with ErrBusy. Gateway failures never
// surface as errors: they become ErrorFallback in the transcript.
func (s *Service) Send(ctx context.Context, id domain.EntryID, text string) (st domain.ChatState, err error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.ChatState{}, ErrEmptyMessage
	}

	sess, entry, err := s.session(id)
	if err != nil {
		return domain.ChatState{}, err
	}

	sess.mu.Lock()
	if sess.typing {
		sess.mu.Unlock()
		return domain.ChatState{}, ErrBusy
	}
	sess.typing = true
	sess.draft = ""
	sess.mu.Unlock()

	// The returned snapshot is taken before this runs and before the final
	// chat_updated event, so the cleared flag is mirrored into it.
	defer func() {
		sess.mu.Lock()
		sess.typing = false
		sess.mu.Unlock()
		st.Typing = false
		s.publish(id)
	}()

	log := observability.LoggerFromContext(ctx).With("entry_id", id)
	log.Info("sending chat message")

	history, err := s.messages.GetMessages(id)
	if err != nil {
		log.Error("failed to load history", "error", err)
		return domain.ChatState{}, err
	}

	userMsg := domain.ChatMessage{Role: domain.RoleUser, Text: text, CreatedAt: s.now()}
	if err := s.messages.AppendMessage(id, userMsg); err != nil {
		log.Error("failed to append user message", "error", err)
		return domain.ChatState{}, err
	}
	s.publish(id)

	reply, err := s.gateway.Chat(ctx, entry.Transcription, history, text)
	switch {
	case err != nil:
		log.Warn("chat request failed", "reason", errorsx.ReasonChatRequest, "error", err)
		reply = ErrorFallback
	case strings.TrimSpace(reply) == "":
		reply = EmptyReplyFallback
	}

	agentMsg := domain.ChatMessage{Role: domain.RoleAssistant, Text: reply, CreatedAt: s.now()}
	if err := s.messages.AppendMessage(id, agentMsg); err != nil {
		log.Error("failed to append reply", "error", err)
		return domain.ChatState{}, err
	}

	log.Info("chat message completed")
	return s.snapshot(id, sess)
}

func (s *Service) snapshot(id domain.EntryID, sess *session) (domain.ChatState, error) {
	msgs, err := s.messages.GetMessages(id)
	if err != nil {
		return domain.ChatState{}, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	return domain.ChatState{
		EntryID:  id,
		Open:     sess.open,
		Draft:    sess.draft,
		Typing:   sess.typing,
		Messages: msgs,
	}, nil
}

func (s *Service) publish(id domain.EntryID) {
	s.events.Publish(domain.Event{Type: domain.EventChatUpdated, EntryID: id, At: s.now()})
}
