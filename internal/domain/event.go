package domain

// EventType names what an Event reports to connected clients.
type EventType string

const (
	EventStatus             EventType = "status"
	EventNotice             EventType = "notice"
	EventEntryAdded         EventType = "entry_added"
	EventChatUpdated        EventType = "chat_updated"
	EventCaptureTick        EventType = "capture_tick"
	EventCaptureStopped     EventType = "capture_stopped"
	EventCredentialRequired EventType = "credential_required"
)

// Event is a presentational update. Fields not relevant to Type are left empty.
type Event struct {
	Type    EventType `json:"type"`
	Stage   string    `json:"stage,omitempty"`
	Status  string    `json:"status,omitempty"`
	Notice  string    `json:"notice,omitempty"`
	EntryID EntryID   `json:"entry_id,omitempty"`
	Elapsed int       `json:"elapsed_seconds,omitempty"`
	At      Timestamp `json:"at"`
}

// EventPublisher fans events out to whoever is listening.
type EventPublisher interface {
	Publish(ev Event)
}

// DiscardEvents drops every event.
type DiscardEvents struct{}

func (DiscardEvents) Publish(Event) {}
