package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PabloGalante/oneiros/internal/app/chat"
	"github.com/PabloGalante/oneiros/internal/app/pipeline"
	"github.com/PabloGalante/oneiros/internal/app/studio"
	"github.com/PabloGalante/oneiros/internal/capture"
	"github.com/PabloGalante/oneiros/internal/credential"
	"github.com/PabloGalante/oneiros/internal/domain"
	"github.com/PabloGalante/oneiros/internal/errorsx"
	"github.com/PabloGalante/oneiros/internal/observability"
)

// maxChunkBytes bounds a single uploaded audio chunk.
const maxChunkBytes = 8 << 20

type Options struct {
	Studio *studio.Studio
	// Keys is nil when the backend authenticates on its own.
	Keys       *credential.RemoteSelector
	Hub        *Hub
	CORSOrigin string
}

type Server struct {
	studio *studio.Studio
	chat   *chat.Service
	keys   *credential.RemoteSelector
}

func NewServer(opts Options) http.Handler {
	s := &Server{
		studio: opts.Studio,
		chat:   opts.Studio.Chat(),
		keys:   opts.Keys,
	}
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/tier", s.handleTier)

	// /capture/start, /capture/chunks, /capture/stop
	mux.HandleFunc("/capture/", s.handleCapture)
	mux.HandleFunc("/recordings", s.handleRecordings)

	// /dreams → list (GET)
	mux.HandleFunc("/dreams", s.handleDreams)

	// /dreams/{id}                 → GET
	// /dreams/{id}/chat            → GET
	// /dreams/{id}/chat/toggle     → POST
	// /dreams/{id}/chat/draft      → PUT
	// /dreams/{id}/chat/messages   → POST
	mux.HandleFunc("/dreams/", s.handleDreamWithID)

	mux.HandleFunc("/credentials", s.handleCredentials)

	if opts.Hub != nil {
		mux.Handle("/events", opts.Hub)
	}

	return chainMiddlewares(mux, withLogging, withCORS(opts.CORSOrigin), withRequestID)
}

// ─────────────────────────────────────────────
// DTOs (request/response)
// ─────────────────────────────────────────────

type tierRequest struct {
	ImageSize string `json:"image_size"`
}

type tierResponse struct {
	ImageSize domain.ImageSize   `json:"image_size"`
	Available []domain.ImageSize `json:"available"`
}

type recordingRequest struct {
	AudioBase64 string `json:"audio_base64"`
	MIMEType    string `json:"mime_type,omitempty"`
}

type acceptedResponse struct {
	Status string `json:"status"`
}

type dreamResponse struct {
	ID            string                        `json:"id"`
	Timestamp     time.Time                     `json:"timestamp"`
	Transcription string                        `json:"transcription"`
	Analysis      *domain.PsychologicalAnalysis `json:"analysis,omitempty"`
	ImageURL      string                        `json:"image_url,omitempty"`
	ImageSize     domain.ImageSize              `json:"image_size"`
}

type listDreamsResponse struct {
	Dreams []dreamResponse `json:"dreams"`
}

type draftRequest struct {
	Text string `json:"text"`
}

type sendMessageRequest struct {
	Text string `json:"text"`
}

type credentialsRequest struct {
	APIKey string `json:"api_key"`
}

type credentialsResponse struct {
	HasKey  bool `json:"has_key"`
	Pending bool `json:"pending"`
}

// ─────────────────────────────────────────────
// Studio handlers
// ─────────────────────────────────────────────

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, s.studio.Snapshot())
}

func (s *Server) handleTier(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodPut:
		var req tierRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badRequest(w, "invalid JSON body")
			return
		}
		tier, err := domain.ParseImageSize(req.ImageSize)
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		if err := s.studio.SelectTier(tier); err != nil {
			badRequest(w, err.Error())
			return
		}
	default:
		methodNotAllowed(w)
		return
	}

	writeJSON(w, http.StatusOK, tierResponse{
		ImageSize: s.studio.Tier(),
		Available: domain.ImageSizes(),
	})
}

func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	switch strings.TrimPrefix(r.URL.Path, "/capture/") {
	case "start":
		if mime := r.URL.Query().Get("mime_type"); mime != "" {
			s.studio.SetUploadMIMEType(mime)
		}
		if err := s.studio.StartCapture(r.Context()); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, s.studio.Snapshot())

	case "chunks":
		body, err := io.ReadAll(io.LimitReader(r.Body, maxChunkBytes+1))
		if err != nil {
			badRequest(w, "could not read chunk")
			return
		}
		if len(body) > maxChunkBytes {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "chunk too large"})
			return
		}
		if err := s.studio.PushAudio(body); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case "stop":
		results, err := s.studio.StopCapture(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		s.respondToRun(w, r, results)

	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleRecordings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var req recordingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.AudioBase64) == "" {
		badRequest(w, "audio_base64 is required")
		return
	}

	results, err := s.studio.SubmitRecording(r.Context(), req.MIMEType, req.AudioBase64)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.respondToRun(w, r, results)
}

// respondToRun answers 202 right away, or with ?wait=true blocks until the
// run ends and answers with the stored dream.
func (s *Server) respondToRun(w http.ResponseWriter, r *http.Request, results <-chan pipeline.Result) {
	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); !wait {
		writeJSON(w, http.StatusAccepted, acceptedResponse{Status: "processing"})
		return
	}

	select {
	case res := <-results:
		if res.Err != nil {
			if errorsx.IsCredential(res.Err) {
				writeError(w, r, res.Err)
				return
			}
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": pipeline.FailureNotice})
			return
		}
		writeJSON(w, http.StatusCreated, toDreamResponse(res.Entry))
	case <-r.Context().Done():
	}
}

// ─────────────────────────────────────────────
// Dream + chat handlers
// ─────────────────────────────────────────────

func (s *Server) handleDreams(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			badRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	entries, err := s.studio.Entries(limit)
	if err != nil {
		internalError(w, r, err)
		return
	}

	out := make([]dreamResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toDreamResponse(e))
	}
	writeJSON(w, http.StatusOK, listDreamsResponse{Dreams: out})
}

// /dreams/{id} or /dreams/{id}/chat[/...]
func (s *Server) handleDreamWithID(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/dreams/"), "/")
	parts := strings.Split(path, "/")
	id := domain.EntryID(parts[0])

	if id == "" {
		http.NotFound(w, r)
		return
	}

	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		s.handleGetDream(w, r, id)

	case len(parts) == 2 && parts[1] == "chat":
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		st, err := s.chat.State(id)
		s.writeChat(w, r, st, err)

	case len(parts) == 3 && parts[1] == "chat":
		s.handleChatAction(w, r, id, parts[2])

	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleGetDream(w http.ResponseWriter, r *http.Request, id domain.EntryID) {
	entry, err := s.studio.Entry(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDreamResponse(entry))
}

func (s *Server) handleChatAction(w http.ResponseWriter, r *http.Request, id domain.EntryID, action string) {
	switch action {
	case "toggle":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		st, err := s.chat.Toggle(r.Context(), id)
		s.writeChat(w, r, st, err)

	case "draft":
		if r.Method != http.MethodPut {
			methodNotAllowed(w)
			return
		}
		var req draftRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badRequest(w, "invalid JSON body")
			return
		}
		st, err := s.chat.SetDraft(id, req.Text)
		s.writeChat(w, r, st, err)

	case "messages":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		var req sendMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badRequest(w, "invalid JSON body")
			return
		}
		if strings.TrimSpace(req.Text) == "" {
			badRequest(w, "text is required")
			return
		}
		// A dropped connection must not turn the reply into a failure.
		st, err := s.chat.Send(context.WithoutCancel(r.Context()), id, req.Text)
		s.writeChat(w, r, st, err)

	default:
		http.NotFound(w, r)
	}
}

func (s *Server) writeChat(w http.ResponseWriter, r *http.Request, st domain.ChatState, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	if st.Messages == nil {
		st.Messages = []domain.ChatMessage{}
	}
	writeJSON(w, http.StatusOK, st)
}

// ─────────────────────────────────────────────
// Credentials
// ─────────────────────────────────────────────

func (s *Server) handleCredentials(w http.ResponseWriter, r *http.Request) {
	if s.keys == nil {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, credentialsResponse{HasKey: true})
		default:
			writeJSON(w, http.StatusConflict, map[string]string{
				"error": "credentials are provided by the environment",
			})
		}
		return
	}

	switch r.Method {
	case http.MethodGet:
	case http.MethodPut:
		var req credentialsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badRequest(w, "invalid JSON body")
			return
		}
		if err := s.keys.Select(req.APIKey); err != nil {
			badRequest(w, "api_key is required")
			return
		}
		observability.LoggerFromContext(r.Context()).Info("api key selected")
	default:
		methodNotAllowed(w)
		return
	}

	has, err := s.keys.HasSelectedKey(r.Context())
	if err != nil {
		internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, credentialsResponse{HasKey: has, Pending: s.keys.Pending()})
}

// ─────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────

func toDreamResponse(e *domain.DreamEntry) dreamResponse {
	return dreamResponse{
		ID:            string(e.ID),
		Timestamp:     e.Timestamp,
		Transcription: e.Transcription,
		Analysis:      e.Analysis,
		ImageURL:      e.ImageURL,
		ImageSize:     e.ImageSize,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain and app errors onto status codes.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		status = http.StatusInternalServerError
		msg    = "internal server error"
	)

	switch {
	case errorsx.HasReason(err, errorsx.ReasonBusy),
		errors.Is(err, capture.ErrAlreadyCapturing),
		errors.Is(err, capture.ErrNotCapturing):
		status, msg = http.StatusConflict, err.Error()
	case errors.Is(err, domain.ErrEntryNotFound):
		status, msg = http.StatusNotFound, "dream not found"
	case errorsx.HasReason(err, errorsx.ReasonPermissionDenied):
		status, msg = http.StatusForbidden, capture.PermissionNotice
	case errorsx.IsCredential(err):
		status, msg = http.StatusUnauthorized, "an API key must be selected"
	case errors.Is(err, capture.ErrEmptyRecording),
		errors.Is(err, studio.ErrInvalidRecording),
		errors.Is(err, studio.ErrUploadUnsupported),
		errors.Is(err, chat.ErrEmptyMessage):
		status, msg = http.StatusBadRequest, err.Error()
	}

	if status >= http.StatusInternalServerError {
		observability.LoggerFromContext(r.Context()).Error("request failed", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{
		"error": msg,
	})
}

func internalError(w http.ResponseWriter, r *http.Request, err error) {
	observability.LoggerFromContext(r.Context()).Error("internal error", "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{
		"error": "internal server error",
	})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, map[string]string{
		"error": "method not allowed",
	})
}
