// Package pipeline runs one recording through transcription, analysis and
// illustration, and stores the result only when every stage succeeded.
package pipeline

import (
	"context"

	"github.com/PabloGalante/oneiros/internal/domain"
)

// Phase is where the controller currently is in a run.
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseTranscribing Phase = "transcribing"
	PhaseAnalyzing    Phase = "analyzing"
	PhaseIllustrating Phase = "illustrating"
)

// Work is what a run has gathered so far. Each stage fills in its part.
type Work struct {
	Audio domain.AudioClip
	Tier  domain.ImageSize

	Transcription string
	Analysis      *domain.PsychologicalAnalysis
	ImageURL      string
}

// Stage is one step of a run.
type Stage interface {
	Name() string
	Phase() Phase
	// Status is the line shown to the user while the stage runs.
	Status() string
	Run(ctx context.Context, w Work) (Work, error)
}

// DefaultStages is transcribe, analyze, illustrate against one gateway.
func DefaultStages(gw domain.Gateway) []Stage {
	return []Stage{
		NewTranscriber(gw),
		NewAnalyst(gw),
		NewIllustrator(gw),
	}
}
