package credential

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/PabloGalante/oneiros/internal/domain"
)

type recordingPublisher struct {
	events []domain.Event
}

func (r *recordingPublisher) Publish(ev domain.Event) { r.events = append(r.events, ev) }

func TestStoreVersionsKeys(t *testing.T) {
	ctx := context.Background()
	s := NewStore("")

	if has, _ := s.HasSelectedKey(ctx); has {
		t.Fatalf("expected no key")
	}
	if err := s.Set("   "); !errors.Is(err, ErrNoKeySelected) {
		t.Fatalf("expected ErrNoKeySelected for blank key, got %v", err)
	}

	_ = s.Set("k1")
	_, v1 := s.Key()
	_ = s.Set("k2")
	key, v2 := s.Key()
	if key != "k2" || v2 <= v1 {
		t.Fatalf("expected newer version for k2, got key=%q v1=%d v2=%d", key, v1, v2)
	}
}

func TestRemoteSelectorFlow(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	sel := NewRemoteSelector(NewStore(""), pub)

	if err := sel.OpenSelectKey(ctx); err != nil {
		t.Fatalf("OpenSelectKey failed: %v", err)
	}
	if !sel.Pending() {
		t.Fatalf("expected pending selection")
	}
	if len(pub.events) != 1 || pub.events[0].Type != domain.EventCredentialRequired {
		t.Fatalf("expected credential_required event, got %+v", pub.events)
	}

	if err := sel.Select("fresh-key"); err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if sel.Pending() {
		t.Fatalf("expected pending flag cleared")
	}
	if has, _ := sel.HasSelectedKey(ctx); !has {
		t.Fatalf("expected key after Select")
	}
}

func TestPromptSelectorReadsKey(t *testing.T) {
	var out bytes.Buffer
	store := NewStore("")
	sel := NewPromptSelector(store, strings.NewReader("  typed-key \n"), &out)

	if err := sel.OpenSelectKey(context.Background()); err != nil {
		t.Fatalf("OpenSelectKey failed: %v", err)
	}
	if key, _ := store.Key(); key != "typed-key" {
		t.Fatalf("expected typed-key, got %q", key)
	}
	if !strings.Contains(out.String(), "API key") {
		t.Fatalf("expected prompt text, got %q", out.String())
	}
}

func TestPromptSelectorEmptyInput(t *testing.T) {
	sel := NewPromptSelector(NewStore(""), strings.NewReader(""), &bytes.Buffer{})

	if err := sel.OpenSelectKey(context.Background()); !errors.Is(err, ErrNoKeySelected) {
		t.Fatalf("expected ErrNoKeySelected, got %v", err)
	}
}
