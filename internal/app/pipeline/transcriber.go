package pipeline

import (
	"context"

	"github.com/PabloGalante/oneiros/internal/domain"
)

// Transcriber turns the recording into text.
type Transcriber struct {
	gw domain.Gateway
}

func NewTranscriber(gw domain.Gateway) *Transcriber {
	return &Transcriber{gw: gw}
}

func (s *Transcriber) Name() string   { return "transcribe" }
func (s *Transcriber) Phase() Phase   { return PhaseTranscribing }
func (s *Transcriber) Status() string { return "Translating echoes..." }

func (s *Transcriber) Run(ctx context.Context, w Work) (Work, error) {
	text, err := s.gw.Transcribe(ctx, w.Audio)
	if err != nil {
		return w, err
	}
	w.Transcription = text
	return w, nil
}
