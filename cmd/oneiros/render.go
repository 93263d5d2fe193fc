package main

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"github.com/PabloGalante/oneiros/internal/domain"
)

// Theme colors for the terminal card.
var (
	indigo = lipgloss.Color("#818cf8")
	violet = lipgloss.Color("#c084fc")
	dim    = lipgloss.Color("#6e7681")
	amber  = lipgloss.Color("#fbbf24")
)

type cardStyles struct {
	Card    lipgloss.Style
	Title   lipgloss.Style
	Label   lipgloss.Style
	Quote   lipgloss.Style
	Muted   lipgloss.Style
	Status  lipgloss.Style
	Notice  lipgloss.Style
	Speaker lipgloss.Style
}

var styles = cardStyles{
	Card:    lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(indigo).Padding(1, 2).Width(76),
	Title:   lipgloss.NewStyle().Bold(true).Foreground(indigo),
	Label:   lipgloss.NewStyle().Bold(true).Foreground(violet),
	Quote:   lipgloss.NewStyle().Italic(true),
	Muted:   lipgloss.NewStyle().Foreground(dim),
	Status:  lipgloss.NewStyle().Foreground(indigo),
	Notice:  lipgloss.NewStyle().Bold(true).Foreground(amber),
	Speaker: lipgloss.NewStyle().Bold(true).Foreground(indigo),
}

// renderDream draws the dream card shown after a run.
func renderDream(e *domain.DreamEntry) string {
	var b strings.Builder

	b.WriteString(styles.Title.Render("Dream of " + e.Timestamp.Format("Jan 2, 2006 15:04")))
	b.WriteString(styles.Muted.Render(fmt.Sprintf("  [%s]", e.ImageSize)))
	b.WriteString("\n\n")
	b.WriteString(styles.Quote.Render(fmt.Sprintf("%q", e.Transcription)))
	b.WriteString("\n")

	if a := e.Analysis; a != nil {
		b.WriteString("\n" + styles.Label.Render("Emotional theme") + "\n" + a.EmotionalTheme + "\n")

		if len(a.Archetypes) > 0 {
			b.WriteString("\n" + styles.Label.Render("Archetypes") + "\n")
			for _, ar := range a.Archetypes {
				fmt.Fprintf(&b, "• %s: %s\n", ar.Name, ar.Description)
			}
		}

		b.WriteString("\n" + styles.Label.Render("Jungian insight") + "\n" + a.JungianInsight + "\n")

		if len(a.Symbolism) > 0 {
			b.WriteString("\n" + styles.Label.Render("Symbolism") + "\n")
			for _, s := range a.Symbolism {
				fmt.Fprintf(&b, "• %s: %s\n", s.Symbol, s.Meaning)
			}
		}
	}

	if e.ImageURL != "" {
		mime, data, err := decodeDataURL(e.ImageURL)
		if err == nil {
			b.WriteString("\n" + styles.Muted.Render(fmt.Sprintf("image: %s, %d bytes", mime, len(data))))
		}
	}

	return styles.Card.Render(strings.TrimRight(b.String(), "\n"))
}

// clipboardText is the plain transcript followed by the insight.
func clipboardText(e *domain.DreamEntry) string {
	if e.Analysis == nil || e.Analysis.JungianInsight == "" {
		return e.Transcription
	}
	return e.Transcription + "\n\n" + e.Analysis.JungianInsight
}

func renderReply(m domain.ChatMessage) string {
	who := "you"
	if m.Role == domain.RoleAssistant {
		who = "psyche"
	}
	return styles.Speaker.Render(who+"> ") + m.Text
}

// decodeDataURL splits a base64 data reference into its MIME type and bytes.
func decodeDataURL(ref string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(ref, "data:")
	if !ok {
		return "", nil, errors.New("not a data reference")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, errors.New("data reference has no payload")
	}
	mime, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return "", nil, errors.New("data reference is not base64")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("decode image: %w", err)
	}
	return mime, data, nil
}

func saveImage(path, ref string) error {
	_, data, err := decodeDataURL(ref)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write image: %w", err)
	}
	return nil
}

type archetypeDoc struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
}

type symbolDoc struct {
	Symbol  string `json:"symbol" yaml:"symbol"`
	Meaning string `json:"meaning" yaml:"meaning"`
}

// dreamDoc is the machine-readable form printed by --output json|yaml.
// The image itself is left out; use --save-image for it.
type dreamDoc struct {
	ID             string         `json:"id" yaml:"id"`
	Timestamp      time.Time      `json:"timestamp" yaml:"timestamp"`
	ImageSize      string         `json:"image_size" yaml:"image_size"`
	Transcription  string         `json:"transcription" yaml:"transcription"`
	EmotionalTheme string         `json:"emotional_theme,omitempty" yaml:"emotional_theme,omitempty"`
	Archetypes     []archetypeDoc `json:"archetypes,omitempty" yaml:"archetypes,omitempty"`
	JungianInsight string         `json:"jungian_insight,omitempty" yaml:"jungian_insight,omitempty"`
	Symbolism      []symbolDoc    `json:"symbolism,omitempty" yaml:"symbolism,omitempty"`
}

func toDreamDoc(e *domain.DreamEntry) dreamDoc {
	doc := dreamDoc{
		ID:            string(e.ID),
		Timestamp:     e.Timestamp,
		ImageSize:     string(e.ImageSize),
		Transcription: e.Transcription,
	}
	if a := e.Analysis; a != nil {
		doc.EmotionalTheme = a.EmotionalTheme
		doc.JungianInsight = a.JungianInsight
		for _, ar := range a.Archetypes {
			doc.Archetypes = append(doc.Archetypes, archetypeDoc{Name: ar.Name, Description: ar.Description})
		}
		for _, s := range a.Symbolism {
			doc.Symbolism = append(doc.Symbolism, symbolDoc{Symbol: s.Symbol, Meaning: s.Meaning})
		}
	}
	return doc
}

// formatDream renders the entry as a card, JSON or YAML.
func formatDream(e *domain.DreamEntry, format string) (string, error) {
	switch strings.ToLower(format) {
	case "", "card":
		return renderDream(e), nil
	case "json":
		data, err := json.MarshalIndent(toDreamDoc(e), "", "  ")
		if err != nil {
			return "", err
		}
		return string(data), nil
	case "yaml", "yml":
		data, err := yaml.Marshal(toDreamDoc(e))
		if err != nil {
			return "", err
		}
		return strings.TrimRight(string(data), "\n"), nil
	default:
		return "", fmt.Errorf("unknown output format %q (want card, json or yaml)", format)
	}
}
