// Package studio owns the application state: the selected tier, the capture
// session, the pipeline controller, the dream list and the chat sessions.
package studio

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PabloGalante/oneiros/internal/app/chat"
	"github.com/PabloGalante/oneiros/internal/app/pipeline"
	"github.com/PabloGalante/oneiros/internal/capture"
	"github.com/PabloGalante/oneiros/internal/domain"
	"github.com/PabloGalante/oneiros/internal/errorsx"
	"github.com/PabloGalante/oneiros/internal/observability"
)

var (
	ErrUploadUnsupported = errors.New("studio: the capture device does not accept uploaded chunks")
	ErrInvalidRecording  = errors.New("studio: recording is not valid base64 audio")
)

type Options struct {
	Device      capture.Device
	Tick        time.Duration
	Pipeline    *pipeline.Controller
	Dreams      domain.DreamStore
	Chat        *chat.Service
	Events      domain.EventPublisher
	DefaultTier domain.ImageSize
}

// Snapshot is everything a client needs to draw the record control.
type Snapshot struct {
	Phase       pipeline.Phase   `json:"phase"`
	Stage       string           `json:"stage,omitempty"`
	Status      string           `json:"status"`
	Processing  bool             `json:"processing"`
	LastOutcome pipeline.Outcome `json:"last_outcome,omitempty"`
	Recording   bool             `json:"recording"`
	Elapsed     int              `json:"elapsed_seconds"`
	Tier        domain.ImageSize `json:"tier"`
}

type Studio struct {
	device   capture.Device
	recorder *capture.Recorder
	pipeline *pipeline.Controller
	dreams   domain.DreamStore
	chat     *chat.Service
	events   domain.EventPublisher
	now      func() time.Time

	mu   sync.Mutex
	tier domain.ImageSize

	// held across start and stop so no capture begins between a clip being
	// finalized and its run taking the pipeline
	captureMu sync.Mutex
}

func New(opts Options) *Studio {
	events := opts.Events
	if events == nil {
		events = domain.DiscardEvents{}
	}
	tier := opts.DefaultTier
	if !tier.Valid() {
		tier = domain.DefaultImageSize
	}

	s := &Studio{
		device:   opts.Device,
		pipeline: opts.Pipeline,
		dreams:   opts.Dreams,
		chat:     opts.Chat,
		events:   events,
		now:      time.Now,
		tier:     tier,
	}
	s.recorder = capture.NewRecorder(opts.Device, capture.Options{
		Tick: opts.Tick,
		OnTick: func(elapsed int) {
			s.events.Publish(domain.Event{Type: domain.EventCaptureTick, Elapsed: elapsed, At: s.now()})
		},
	})
	return s
}

func (s *Studio) Chat() *chat.Service { return s.chat }

// SelectTier changes the tier used by the next recording.
func (s *Studio) SelectTier(tier domain.ImageSize) error {
	if !tier.Valid() {
		return fmt.Errorf("unknown image size %q", tier)
	}
	s.mu.Lock()
	s.tier = tier
	s.mu.Unlock()
	return nil
}

func (s *Studio) Tier() domain.ImageSize {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tier
}

// StartCapture acquires the device. It is refused while a dream is processing.
func (s *Studio) StartCapture(ctx context.Context) error {
	s.captureMu.Lock()
	defer s.captureMu.Unlock()

	if s.pipeline.Processing() {
		return pipeline.ErrBusy
	}

	if err := s.recorder.Start(ctx); err != nil {
		if errorsx.HasReason(err, errorsx.ReasonPermissionDenied) {
			observability.LoggerFromContext(ctx).Warn("device access denied", "error", err)
			s.events.Publish(domain.Event{Type: domain.EventNotice, Notice: capture.PermissionNotice, At: s.now()})
		}
		return err
	}
	return nil
}

// SetUploadMIMEType announces the container of the chunks a client is about to push.
func (s *Studio) SetUploadMIMEType(mime string) {
	if up, ok := s.device.(*capture.UploadDevice); ok {
		up.SetMIMEType(mime)
	}
}

// PushAudio feeds one encoded chunk to an upload-backed capture.
func (s *Studio) PushAudio(chunk []byte) error {
	up, ok := s.device.(*capture.UploadDevice)
	if !ok {
		return ErrUploadUnsupported
	}
	return up.Push(chunk)
}

// WaitCapture blocks until the track ends by itself.
func (s *Studio) WaitCapture(ctx context.Context) error {
	return s.recorder.Wait(ctx)
}

// StopCapture finalizes the clip and starts the pipeline with the tier
// selected right now.
func (s *Studio) StopCapture(ctx context.Context) (<-chan pipeline.Result, error) {
	s.captureMu.Lock()
	defer s.captureMu.Unlock()

	tier := s.Tier()

	clip, err := s.recorder.Stop()
	s.events.Publish(domain.Event{Type: domain.EventCaptureStopped, At: s.now()})
	if err != nil {
		return nil, err
	}
	return s.process(ctx, clip, tier)
}

// SubmitRecording runs the pipeline on a clip recorded elsewhere.
func (s *Studio) SubmitRecording(ctx context.Context, mime, encoded string) (<-chan pipeline.Result, error) {
	encoded = strings.TrimSpace(encoded)
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecording, err)
	}
	if len(data) == 0 {
		return nil, capture.ErrEmptyRecording
	}

	s.captureMu.Lock()
	defer s.captureMu.Unlock()

	if s.recorder.Recording() {
		return nil, capture.ErrAlreadyCapturing
	}
	if strings.TrimSpace(mime) == "" {
		mime = capture.DefaultMIMEType
	}

	clip := domain.AudioClip{MIMEType: mime, Encoded: encoded}
	return s.process(ctx, clip, s.Tier())
}

func (s *Studio) process(ctx context.Context, clip domain.AudioClip, tier domain.ImageSize) (<-chan pipeline.Result, error) {
	// The run outlives the request that triggered it.
	return s.pipeline.Start(context.WithoutCancel(ctx), clip, tier)
}

func (s *Studio) Snapshot() Snapshot {
	st := s.pipeline.State()
	return Snapshot{
		Phase:       st.Phase,
		Stage:       st.Stage,
		Status:      st.Status,
		Processing:  st.Processing,
		LastOutcome: st.LastOutcome,
		Recording:   s.recorder.Recording(),
		Elapsed:     s.recorder.Elapsed(),
		Tier:        s.Tier(),
	}
}

// Entries returns the most recent entries, newest first. limit <= 0 means all.
func (s *Studio) Entries(limit int) ([]*domain.DreamEntry, error) {
	return s.dreams.List(limit)
}

func (s *Studio) Entry(id domain.EntryID) (*domain.DreamEntry, error) {
	return s.dreams.Get(id)
}
