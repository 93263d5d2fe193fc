package pipeline

import (
	"context"
	"errors"

	"github.com/PabloGalante/oneiros/internal/domain"
	"github.com/PabloGalante/oneiros/internal/errorsx"
)

// Analyst reads the transcript as a Jungian analyst would.
type Analyst struct {
	gw domain.Gateway
}

func NewAnalyst(gw domain.Gateway) *Analyst {
	return &Analyst{gw: gw}
}

func (s *Analyst) Name() string   { return "analyze" }
func (s *Analyst) Phase() Phase   { return PhaseAnalyzing }
func (s *Analyst) Status() string { return "Extracting subconscious layers..." }

func (s *Analyst) Run(ctx context.Context, w Work) (Work, error) {
	a, err := s.gw.Analyze(ctx, w.Transcription)
	if err != nil {
		return w, err
	}
	if a == nil {
		return w, errorsx.Wrap(errors.New("analysis is empty"), errorsx.ReasonAnalysisParse)
	}
	w.Analysis = a
	return w, nil
}
