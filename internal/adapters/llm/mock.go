package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"

	"github.com/PabloGalante/oneiros/internal/domain"
)

var _ domain.Gateway = (*MockGateway)(nil)

// MockGateway answers every call locally, for development without a key.
type MockGateway struct{}

func NewMockGateway() *MockGateway {
	return &MockGateway{}
}

func (m *MockGateway) Transcribe(_ context.Context, audio domain.AudioClip) (string, error) {
	data, err := base64.StdEncoding.DecodeString(audio.Encoded)
	if err != nil {
		return "", fmt.Errorf("transcribe: decode audio: %w", err)
	}
	if len(data) == 0 {
		return TranscriptionFallback, nil
	}
	return "I was flying over a city of glass, and every window showed a different version of my childhood home.", nil
}

func (m *MockGateway) Analyze(_ context.Context, transcription string) (*domain.PsychologicalAnalysis, error) {
	theme := "Longing for freedom"
	if strings.Contains(strings.ToLower(transcription), "fall") {
		theme = "Loss of control"
	}
	return &domain.PsychologicalAnalysis{
		EmotionalTheme: theme,
		Archetypes: []domain.Archetype{
			{Name: "The Self", Description: "The drive toward wholeness seen from above."},
			{Name: "The Child", Description: "Origins and innocence revisited."},
		},
		JungianInsight: "The dreamer surveys their past from a new height, suggesting readiness to integrate it.",
		Symbolism: []domain.Symbol{
			{Symbol: "Flight", Meaning: "Transcendence of ordinary limits"},
			{Symbol: "Glass city", Meaning: "A transparent, fragile persona"},
		},
	}, nil
}

func (m *MockGateway) Illustrate(_ context.Context, _ string, size domain.ImageSize) (string, error) {
	return mockImage(size), nil
}

func (m *MockGateway) Chat(_ context.Context, _ string, history []domain.ChatMessage, message string) (string, error) {
	return fmt.Sprintf("You asked %q after %d earlier messages. What feeling does that symbol carry for you?", message, len(history)), nil
}

// mockImage draws a flat indigo square; the side grows with the tier.
func mockImage(size domain.ImageSize) string {
	side := 1
	switch size {
	case domain.ImageSize2K:
		side = 2
	case domain.ImageSize4K:
		side = 4
	}

	img := image.NewRGBA(image.Rect(0, 0, side, side))
	indigo := color.RGBA{R: 0x4f, G: 0x46, B: 0xe5, A: 0xff}
	for y := 0; y < side; y++ {
		for x := 0; x < side; x++ {
			img.Set(x, y, indigo)
		}
	}

	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}
