package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"google.golang.org/genai"

	"github.com/PabloGalante/oneiros/internal/credential"
	"github.com/PabloGalante/oneiros/internal/domain"
	"github.com/PabloGalante/oneiros/internal/errorsx"
	"github.com/PabloGalante/oneiros/internal/observability"
)

var _ domain.Gateway = (*GeminiGateway)(nil)

const (
	BackendGemini = "gemini"
	BackendVertex = "vertex"
)

// Models names the model used by each operation.
type Models struct {
	Transcribe string
	Analyze    string
	Illustrate string
	Chat       string
}

func (m Models) withDefaults() Models {
	if m.Transcribe == "" {
		m.Transcribe = "gemini-3-flash-preview"
	}
	if m.Analyze == "" {
		m.Analyze = "gemini-3-flash-preview"
	}
	if m.Illustrate == "" {
		m.Illustrate = "gemini-3-pro-image-preview"
	}
	if m.Chat == "" {
		m.Chat = "gemini-3-pro-preview"
	}
	return m
}

type Options struct {
	Backend  string
	Project  string
	Location string
	// BaseURL overrides the service endpoint (tests, proxies).
	BaseURL string

	// Keys supplies the API key for the Gemini backend.
	Keys *credential.Store
	// Selector runs the key selection flow before image requests.
	Selector domain.KeySelector

	Models     Models
	HTTPClient *http.Client
}

// GeminiGateway implements domain.Gateway on top of the Gemini API or Vertex AI.
type GeminiGateway struct {
	opts   Options
	models Models

	mu        sync.Mutex
	client    *genai.Client
	clientVer uint64
}

// NewGeminiGateway creates a gateway. With the Vertex backend the client is
// built once from ambient credentials; with the Gemini backend it is built
// lazily from the selected key and rebuilt whenever the key changes.
func NewGeminiGateway(ctx context.Context, opts Options) (*GeminiGateway, error) {
	if opts.Backend == "" {
		opts.Backend = BackendGemini
	}

	g := &GeminiGateway{
		opts:   opts,
		models: opts.Models.withDefaults(),
	}

	switch opts.Backend {
	case BackendVertex:
		if opts.Project == "" || opts.Location == "" {
			return nil, fmt.Errorf("project and location must be set for the vertex backend")
		}
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			Project:     opts.Project,
			Location:    opts.Location,
			Backend:     genai.BackendVertexAI,
			HTTPClient:  opts.HTTPClient,
			HTTPOptions: genai.HTTPOptions{BaseURL: opts.BaseURL},
		})
		if err != nil {
			return nil, fmt.Errorf("creating Vertex AI client: %w", err)
		}
		g.client = client
		if g.opts.Selector == nil {
			g.opts.Selector = credential.Ambient{}
		}
	case BackendGemini:
		if opts.Keys == nil {
			return nil, fmt.Errorf("a key store is required for the gemini backend")
		}
		if g.opts.Selector == nil {
			g.opts.Selector = credential.Ambient{}
		}
	default:
		return nil, fmt.Errorf("unknown backend %q", opts.Backend)
	}

	return g, nil
}

func (g *GeminiGateway) genaiClient(ctx context.Context) (*genai.Client, error) {
	if g.opts.Backend == BackendVertex {
		return g.client, nil
	}

	key, ver := g.opts.Keys.Key()
	if key == "" {
		return nil, errorsx.Wrap(credential.ErrNoKeySelected, errorsx.ReasonCredentialMissing)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.client != nil && g.clientVer == ver {
		return g.client, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      key,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  g.opts.HTTPClient,
		HTTPOptions: genai.HTTPOptions{BaseURL: g.opts.BaseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("creating Gemini client: %w", err)
	}
	g.client = client
	g.clientVer = ver
	return client, nil
}

// Transcribe sends the recording inline and returns what was said. An empty
// transcript is not an error: TranscriptionFallback is returned instead.
func (g *GeminiGateway) Transcribe(ctx context.Context, audio domain.AudioClip) (string, error) {
	log := observability.LoggerFromContext(ctx).With("op", "transcribe", "model", g.models.Transcribe)

	data, err := base64.StdEncoding.DecodeString(audio.Encoded)
	if err != nil {
		return "", fmt.Errorf("transcribe: decode audio: %w", err)
	}
	mime := audio.MIMEType
	if mime == "" {
		mime = "audio/webm"
	}

	client, err := g.genaiClient(ctx)
	if err != nil {
		return "", classify("transcribe", err)
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(data, mime),
			genai.NewPartFromText(transcribeInstruction),
		}, genai.RoleUser),
	}

	res, err := client.Models.GenerateContent(ctx, g.models.Transcribe, contents, nil)
	if err != nil {
		return "", classify("transcribe", err)
	}

	text := res.Text()
	if strings.TrimSpace(text) == "" {
		log.Warn("empty transcript, using fallback", "reason", errorsx.ReasonTranscriptionFailed)
		return TranscriptionFallback, nil
	}
	return text, nil
}

// Analyze asks for a schema-constrained analysis and validates what comes back.
func (g *GeminiGateway) Analyze(ctx context.Context, transcription string) (*domain.PsychologicalAnalysis, error) {
	client, err := g.genaiClient(ctx)
	if err != nil {
		return nil, classify("analyze", err)
	}

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(strings.TrimSpace(analystInstruction), genai.RoleUser),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    analysisGenaiSchema,
	}

	res, err := client.Models.GenerateContent(ctx, g.models.Analyze, genai.Text(transcription), cfg)
	if err != nil {
		return nil, classify("analyze", err)
	}

	return DecodeAnalysis(res.Text())
}

// Illustrate generates a square image for the dream and returns it as a data
// reference. A key must be selected first; if none is, the selection flow runs.
func (g *GeminiGateway) Illustrate(ctx context.Context, transcription string, size domain.ImageSize) (string, error) {
	if err := g.ensureKey(ctx); err != nil {
		return "", classify("illustrate", err)
	}
	if !size.Valid() {
		size = domain.DefaultImageSize
	}

	client, err := g.genaiClient(ctx)
	if err != nil {
		return "", classify("illustrate", err)
	}

	cfg := &genai.GenerateContentConfig{
		ImageConfig: &genai.ImageConfig{
			AspectRatio: "1:1",
			ImageSize:   string(size),
		},
	}

	res, err := client.Models.GenerateContent(ctx, g.models.Illustrate, genai.Text(IllustrationPrompt(transcription)), cfg)
	if err != nil {
		return "", classify("illustrate", err)
	}

	if ref, ok := firstInlineImage(res); ok {
		return ref, nil
	}
	return "", errorsx.Wrap(errors.New("no image was generated"), errorsx.ReasonNoImage)
}

func (g *GeminiGateway) ensureKey(ctx context.Context) error {
	has, err := g.opts.Selector.HasSelectedKey(ctx)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	observability.LoggerFromContext(ctx).Info("no key selected, opening key selection")
	return g.opts.Selector.OpenSelectKey(ctx)
}

func firstInlineImage(res *genai.GenerateContentResponse) (string, bool) {
	if res == nil || len(res.Candidates) == 0 || res.Candidates[0].Content == nil {
		return "", false
	}
	for _, p := range res.Candidates[0].Content.Parts {
		if p == nil || p.InlineData == nil || len(p.InlineData.Data) == 0 {
			continue
		}
		mime := p.InlineData.MIMEType
		if mime == "" {
			mime = "image/png"
		}
		return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(p.InlineData.Data), true
	}
	return "", false
}

// Chat replies to message. The dream context goes into the system instruction
// and the full history is resent, nothing is kept between calls.
func (g *GeminiGateway) Chat(
	ctx context.Context,
	dreamContext string,
	history []domain.ChatMessage,
	message string,
) (string, error) {
	client, err := g.genaiClient(ctx)
	if err != nil {
		return "", errorsx.Wrap(classify("chat", err), errorsx.ReasonChatRequest)
	}

	var contents []*genai.Content
	for _, m := range history {
		var role genai.Role
		switch m.Role {
		case domain.RoleAssistant:
			role = genai.RoleModel
		default:
			role = genai.RoleUser
		}
		contents = append(contents, genai.NewContentFromText(m.Text, role))
	}
	contents = append(contents, genai.NewContentFromText(message, genai.RoleUser))

	temp := float32(0.7)
	topP := float32(0.9)

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(CompanionPrompt(dreamContext), genai.RoleUser),
		Temperature:       &temp,
		TopP:              &topP,
		MaxOutputTokens:   2048,
	}

	res, err := client.Models.GenerateContent(ctx, g.models.Chat, contents, cfg)
	if err != nil {
		return "", errorsx.Wrap(classify("chat", err), errorsx.ReasonChatRequest)
	}
	return res.Text(), nil
}
