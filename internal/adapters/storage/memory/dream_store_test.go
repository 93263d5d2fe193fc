package memory_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/PabloGalante/oneiros/internal/adapters/storage/memory"
	"github.com/PabloGalante/oneiros/internal/domain"
)

func newEntry(i int, at time.Time) *domain.DreamEntry {
	return &domain.DreamEntry{
		ID:            domain.EntryID(fmt.Sprintf("dream-%d", i)),
		Timestamp:     at,
		Transcription: fmt.Sprintf("dream number %d", i),
		Analysis: &domain.PsychologicalAnalysis{
			EmotionalTheme: "wonder",
			Archetypes:     []domain.Archetype{{Name: "Self", Description: "wholeness"}},
			Symbolism:      []domain.Symbol{{Symbol: "city", Meaning: "community"}},
		},
		ImageURL:  "data:image/png;base64,AAAA",
		ImageSize: domain.ImageSize1K,
	}
}

func TestDreamStoreNewestFirst(t *testing.T) {
	store := memory.NewDreamStore()
	base := time.Date(2026, 1, 1, 6, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		if err := store.Prepend(newEntry(i, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("Prepend(%d) failed: %v", i, err)
		}
	}

	all, err := store.List(0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if !all[i-1].Timestamp.After(all[i].Timestamp) {
			t.Fatalf("entries not reverse-chronological at %d: %v then %v", i, all[i-1].Timestamp, all[i].Timestamp)
		}
	}
	if all[0].ID != "dream-4" {
		t.Fatalf("expected newest entry first, got %s", all[0].ID)
	}

	limited, _ := store.List(2)
	if len(limited) != 2 || limited[1].ID != "dream-3" {
		t.Fatalf("unexpected limited list: %+v", limited)
	}
}

func TestDreamStoreHandsOutCopies(t *testing.T) {
	store := memory.NewDreamStore()
	orig := newEntry(1, time.Now())
	if err := store.Prepend(orig); err != nil {
		t.Fatal(err)
	}

	orig.Transcription = "mutated after store"
	got, err := store.Get(orig.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Transcription != "dream number 1" {
		t.Fatalf("stored entry changed through caller pointer: %q", got.Transcription)
	}

	got.Analysis.Archetypes[0].Name = "Shadow"
	again, _ := store.Get(orig.ID)
	if again.Analysis.Archetypes[0].Name != "Self" {
		t.Fatalf("stored analysis changed through returned copy")
	}
}

func TestDreamStoreGetUnknownAndDuplicate(t *testing.T) {
	store := memory.NewDreamStore()

	if _, err := store.Get("missing"); !errors.Is(err, domain.ErrEntryNotFound) {
		t.Fatalf("expected ErrEntryNotFound, got %v", err)
	}

	e := newEntry(1, time.Now())
	if err := store.Prepend(e); err != nil {
		t.Fatal(err)
	}
	if err := store.Prepend(e); !errors.Is(err, domain.ErrEntryExists) {
		t.Fatalf("expected ErrEntryExists, got %v", err)
	}
}
