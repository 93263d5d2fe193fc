package domain

import "time"

// Archetype is a Jungian archetype detected in a dream.
type Archetype struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Symbol pairs a dream symbol with its interpreted meaning.
type Symbol struct {
	Symbol  string `json:"symbol"`
	Meaning string `json:"meaning"`
}

// PsychologicalAnalysis is produced wholesale by the analyze operation.
// The JSON names match the response schema sent to the model.
type PsychologicalAnalysis struct {
	EmotionalTheme string      `json:"emotionalTheme"`
	Archetypes     []Archetype `json:"archetypes"`
	JungianInsight string      `json:"jungianInsight"`
	Symbolism      []Symbol    `json:"symbolism"`
}

// Clone returns a deep copy.
func (a *PsychologicalAnalysis) Clone() *PsychologicalAnalysis {
	if a == nil {
		return nil
	}
	out := *a
	out.Archetypes = append([]Archetype(nil), a.Archetypes...)
	out.Symbolism = append([]Symbol(nil), a.Symbolism...)
	return &out
}

// DreamEntry is a completed pipeline run. It is stored only after transcription,
// analysis and illustration all succeeded and is never modified afterwards.
type DreamEntry struct {
	ID            EntryID
	Timestamp     Timestamp
	Transcription string
	Analysis      *PsychologicalAnalysis
	ImageURL      string
	ImageSize     ImageSize
}

// Clone returns a deep copy so callers can't reach into stored state.
func (e *DreamEntry) Clone() *DreamEntry {
	if e == nil {
		return nil
	}
	out := *e
	out.Analysis = e.Analysis.Clone()
	return &out
}

// Complete reports whether the entry carries both an analysis and an image.
func (e *DreamEntry) Complete() bool {
	return e != nil && e.Analysis != nil && e.ImageURL != ""
}

// AudioClip is one finalized recording in transport encoding.
type AudioClip struct {
	MIMEType string
	// Encoded is the clip as standard base64 text.
	Encoded  string
	Duration time.Duration
}
