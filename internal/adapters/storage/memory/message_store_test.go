package memory_test

import (
	"testing"

	"github.com/PabloGalante/oneiros/internal/adapters/storage/memory"
	"github.com/PabloGalante/oneiros/internal/domain"
)

func TestMessageStoreAppendOnly(t *testing.T) {
	store := memory.NewMessageStore()
	id := domain.EntryID("dream-1")

	_ = store.AppendMessage(id, domain.ChatMessage{Role: domain.RoleUser, Text: "what is the key?"})
	_ = store.AppendMessage(id, domain.ChatMessage{Role: domain.RoleAssistant, Text: "a threshold"})

	msgs, err := store.GetMessages(id)
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}

	msgs[0].Text = "rewritten"
	again, _ := store.GetMessages(id)
	if again[0].Text != "what is the key?" {
		t.Fatalf("history mutated through returned slice: %q", again[0].Text)
	}

	other, _ := store.GetMessages("dream-2")
	if len(other) != 0 {
		t.Fatalf("expected no messages for another entry, got %d", len(other))
	}
}
