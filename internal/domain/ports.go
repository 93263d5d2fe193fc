package domain

import "context"

// Gateway is the hosted model service: four independent request/response calls.
type Gateway interface {
	Transcribe(ctx context.Context, audio AudioClip) (string, error)
	Analyze(ctx context.Context, transcription string) (*PsychologicalAnalysis, error)
	Illustrate(ctx context.Context, transcription string, size ImageSize) (string, error)
	// Chat is stateless: the dream context and the whole prior history are
	// resent on every call.
	Chat(ctx context.Context, dreamContext string, history []ChatMessage, message string) (string, error)
}

// KeySelector is the interactive credential selection flow.
type KeySelector interface {
	HasSelectedKey(ctx context.Context) (bool, error)
	OpenSelectKey(ctx context.Context) error
}

// DreamStore keeps completed entries, newest first. There is no update or delete.
type DreamStore interface {
	Prepend(entry *DreamEntry) error
	Get(id EntryID) (*DreamEntry, error)
	List(limit int) ([]*DreamEntry, error)
}

// MessageStore keeps the append-only chat history of each entry.
type MessageStore interface {
	AppendMessage(id EntryID, msg ChatMessage) error
	GetMessages(id EntryID) ([]ChatMessage, error)
}
