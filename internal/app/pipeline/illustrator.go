package pipeline

import (
	"context"
	"errors"

	"github.com/PabloGalante/oneiros/internal/domain"
	"github.com/PabloGalante/oneiros/internal/errorsx"
)

// Illustrator paints the dream at the tier chosen for the run.
type Illustrator struct {
	gw domain.Gateway
}

func NewIllustrator(gw domain.Gateway) *Illustrator {
	return &Illustrator{gw: gw}
}

func (s *Illustrator) Name() string   { return "illustrate" }
func (s *Illustrator) Phase() Phase   { return PhaseIllustrating }
func (s *Illustrator) Status() string { return "Painting your inner world..." }

func (s *Illustrator) Run(ctx context.Context, w Work) (Work, error) {
	ref, err := s.gw.Illustrate(ctx, w.Transcription, w.Tier)
	if err != nil {
		return w, err
	}
	if ref == "" {
		return w, errorsx.Wrap(errors.New("image reference is empty"), errorsx.ReasonNoImage)
	}
	w.ImageURL = ref
	return w, nil
}
