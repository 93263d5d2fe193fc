package httpadapter_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	httpadapter "github.com/PabloGalante/oneiros/internal/adapters/http"
	"github.com/PabloGalante/oneiros/internal/adapters/llm"
	"github.com/PabloGalante/oneiros/internal/adapters/storage/memory"
	"github.com/PabloGalante/oneiros/internal/app/chat"
	"github.com/PabloGalante/oneiros/internal/app/pipeline"
	"github.com/PabloGalante/oneiros/internal/app/studio"
	"github.com/PabloGalante/oneiros/internal/capture"
	"github.com/PabloGalante/oneiros/internal/credential"
	"github.com/PabloGalante/oneiros/internal/domain"
)

type testEnv struct {
	handler http.Handler
	hub     *httpadapter.Hub
	keys    *credential.RemoteSelector
}

func newTestEnv(t *testing.T, gw domain.Gateway) *testEnv {
	t.Helper()

	if gw == nil {
		gw = llm.NewMockGateway()
	}

	hub := httpadapter.NewHub("*")
	t.Cleanup(hub.Close)

	keys := credential.NewRemoteSelector(credential.NewStore(""), hub)
	dreams := memory.NewDreamStore()
	ctrl := pipeline.NewController(pipeline.Options{
		Stages:   pipeline.DefaultStages(gw),
		Store:    dreams,
		Selector: keys,
		Events:   hub,
	})
	st := studio.New(studio.Options{
		Device:   capture.NewUploadDevice(true),
		Tick:     time.Hour,
		Pipeline: ctrl,
		Dreams:   dreams,
		Chat:     chat.NewService(gw, dreams, memory.NewMessageStore(), hub),
		Events:   hub,
	})

	return &testEnv{
		handler: httpadapter.NewServer(httpadapter.Options{Studio: st, Keys: keys, Hub: hub}),
		hub:     hub,
		keys:    keys,
	}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, r)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

type dream struct {
	ID            string                        `json:"id"`
	Transcription string                        `json:"transcription"`
	Analysis      *domain.PsychologicalAnalysis `json:"analysis"`
	ImageURL      string                        `json:"image_url"`
	ImageSize     string                        `json:"image_size"`
}

func recordingBody() string {
	audio := base64.StdEncoding.EncodeToString([]byte("some recorded audio"))
	return `{"audio_base64":"` + audio + `","mime_type":"audio/webm"}`
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, nil)
	w := env.do(t, http.MethodGet, "/healthz", "")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected a request id header")
	}
}

func TestTier(t *testing.T) {
	env := newTestEnv(t, nil)

	var tier struct {
		ImageSize string   `json:"image_size"`
		Available []string `json:"available"`
	}
	w := env.do(t, http.MethodGet, "/tier", "")
	decode(t, w, &tier)
	if tier.ImageSize != "1K" || len(tier.Available) != 3 {
		t.Fatalf("unexpected tier %+v", tier)
	}

	w = env.do(t, http.MethodPut, "/tier", `{"image_size":"2k"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	decode(t, w, &tier)
	if tier.ImageSize != "2K" {
		t.Fatalf("expected 2K, got %q", tier.ImageSize)
	}

	if w := env.do(t, http.MethodPut, "/tier", `{"image_size":"8K"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestRecordingCreatesDream(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do(t, http.MethodPut, "/tier", `{"image_size":"4K"}`)

	w := env.do(t, http.MethodPost, "/recordings?wait=true", recordingBody())
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", w.Code, w.Body.String())
	}
	var d dream
	decode(t, w, &d)
	if d.ImageSize != "4K" || d.Analysis == nil || !strings.HasPrefix(d.ImageURL, "data:image/png;base64,") {
		t.Fatalf("unexpected dream %+v", d)
	}

	var list struct {
		Dreams []dream `json:"dreams"`
	}
	decode(t, env.do(t, http.MethodGet, "/dreams", ""), &list)
	if len(list.Dreams) != 1 || list.Dreams[0].ID != d.ID {
		t.Fatalf("unexpected list %+v", list)
	}

	if w := env.do(t, http.MethodGet, "/dreams/"+d.ID, ""); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/dreams/missing", ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if w := env.do(t, http.MethodPost, "/recordings", `{"audio_base64":""}`); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing audio, got %d", w.Code)
	}
}

func TestCaptureFlow(t *testing.T) {
	env := newTestEnv(t, nil)

	if w := env.do(t, http.MethodPost, "/capture/chunks", "early"); w.Code != http.StatusConflict {
		t.Fatalf("expected 409 before start, got %d", w.Code)
	}

	if w := env.do(t, http.MethodPost, "/capture/start?mime_type=audio/ogg", ""); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	if w := env.do(t, http.MethodPost, "/capture/start", ""); w.Code != http.StatusConflict {
		t.Fatalf("expected 409 for a second start, got %d", w.Code)
	}

	for _, chunk := range []string{"first-chunk", "second-chunk"} {
		if w := env.do(t, http.MethodPost, "/capture/chunks", chunk); w.Code != http.StatusNoContent {
			t.Fatalf("expected 204, got %d", w.Code)
		}
	}

	var status struct {
		Recording bool `json:"recording"`
	}
	decode(t, env.do(t, http.MethodGet, "/status", ""), &status)
	if !status.Recording {
		t.Fatalf("expected recording status")
	}

	w := env.do(t, http.MethodPost, "/capture/stop?wait=true", "")
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", w.Code, w.Body.String())
	}
}

func TestChatRoutes(t *testing.T) {
	env := newTestEnv(t, nil)

	var d dream
	decode(t, env.do(t, http.MethodPost, "/recordings?wait=true", recordingBody()), &d)
	base := "/dreams/" + d.ID + "/chat"

	var st struct {
		Open     bool                 `json:"open"`
		Draft    string               `json:"draft"`
		Typing   bool                 `json:"typing"`
		Messages []domain.ChatMessage `json:"messages"`
	}

	decode(t, env.do(t, http.MethodPost, base+"/toggle", ""), &st)
	if !st.Open {
		t.Fatalf("expected open chat")
	}

	decode(t, env.do(t, http.MethodPut, base+"/draft", `{"text":"why glass?"}`), &st)
	if st.Draft != "why glass?" {
		t.Fatalf("expected draft, got %q", st.Draft)
	}

	w := env.do(t, http.MethodPost, base+"/messages", `{"text":"why glass?"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	decode(t, w, &st)
	if len(st.Messages) != 2 || st.Messages[1].Role != domain.RoleAssistant || st.Draft != "" {
		t.Fatalf("unexpected chat state %+v", st)
	}

	decode(t, env.do(t, http.MethodGet, base, ""), &st)
	if len(st.Messages) != 2 {
		t.Fatalf("expected history to persist, got %d", len(st.Messages))
	}

	if w := env.do(t, http.MethodPost, base+"/messages", `{"text":" "}`); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if w := env.do(t, http.MethodPost, "/dreams/missing/chat/toggle", ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

// slowChatGateway answers chat only after a delay, honouring ctx.
type slowChatGateway struct {
	*llm.MockGateway
}

func (slowChatGateway) Chat(ctx context.Context, _ string, _ []domain.ChatMessage, _ string) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(100 * time.Millisecond):
		return "Glass is what you see through.", nil
	}
}

func TestChatReplySurvivesCancelledRequest(t *testing.T) {
	env := newTestEnv(t, slowChatGateway{llm.NewMockGateway()})

	var d dream
	decode(t, env.do(t, http.MethodPost, "/recordings?wait=true", recordingBody()), &d)
	base := "/dreams/" + d.ID + "/chat"

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	r := httptest.NewRequest(http.MethodPost, base+"/messages", strings.NewReader(`{"text":"why glass?"}`)).WithContext(ctx)
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, r)

	var st struct {
		Messages []domain.ChatMessage `json:"messages"`
	}
	decode(t, env.do(t, http.MethodGet, base, ""), &st)
	if len(st.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %+v", st.Messages)
	}
	if got := st.Messages[1].Text; got != "Glass is what you see through." {
		t.Fatalf("expected the model reply, got %q", got)
	}
}

// lockedGateway can't see the image model with the current key.
type lockedGateway struct {
	*llm.MockGateway
}

func (lockedGateway) Illustrate(context.Context, string, domain.ImageSize) (string, error) {
	return "", errors.New("Error 404, Message: Requested entity was not found., Status: NOT_FOUND")
}

func TestEntityNotFoundRequestsCredentials(t *testing.T) {
	env := newTestEnv(t, lockedGateway{llm.NewMockGateway()})

	w := env.do(t, http.MethodPost, "/recordings?wait=true", recordingBody())
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (%s)", w.Code, w.Body.String())
	}

	var creds struct {
		HasKey  bool `json:"has_key"`
		Pending bool `json:"pending"`
	}
	decode(t, env.do(t, http.MethodGet, "/credentials", ""), &creds)
	if creds.HasKey || !creds.Pending {
		t.Fatalf("expected pending selection, got %+v", creds)
	}

	decode(t, env.do(t, http.MethodPut, "/credentials", `{"api_key":"new-key"}`), &creds)
	if !creds.HasKey || creds.Pending {
		t.Fatalf("expected key selected, got %+v", creds)
	}
	if w := env.do(t, http.MethodPut, "/credentials", `{"api_key":""}`); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a blank key, got %d", w.Code)
	}

	var list struct {
		Dreams []dream `json:"dreams"`
	}
	decode(t, env.do(t, http.MethodGet, "/dreams", ""), &list)
	if len(list.Dreams) != 0 {
		t.Fatalf("expected no dreams, got %d", len(list.Dreams))
	}
}

func TestEventsStream(t *testing.T) {
	env := newTestEnv(t, nil)
	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for env.hub.Clients() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("listener never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	resp, err := http.Post(srv.URL+"/recordings", "application/json", strings.NewReader(recordingBody()))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var statuses []string
	for {
		var ev domain.Event
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("read event: %v (statuses so far %v)", err, statuses)
		}
		if ev.Type == domain.EventStatus && ev.Status != "" {
			statuses = append(statuses, ev.Status)
		}
		if ev.Type == domain.EventEntryAdded {
			if ev.EntryID == "" {
				t.Fatalf("expected entry id on entry_added")
			}
			break
		}
	}
	if len(statuses) != 3 || statuses[0] != "Translating echoes..." {
		t.Fatalf("unexpected statuses %v", statuses)
	}
}
