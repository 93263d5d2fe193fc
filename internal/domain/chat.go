package domain

// ChatMessage is one line of a dream's follow-up conversation.
type ChatMessage struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	CreatedAt Timestamp `json:"created_at"`
}

// ChatState is a read-only view of one entry's chat sub-session.
type ChatState struct {
	EntryID  EntryID       `json:"entry_id"`
	Open     bool          `json:"open"`
	Draft    string        `json:"draft"`
	Typing   bool          `json:"typing"`
	Messages []ChatMessage `json:"messages"`
}
