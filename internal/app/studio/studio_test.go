package studio_test

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/PabloGalante/oneiros/internal/adapters/llm"
	"github.com/PabloGalante/oneiros/internal/adapters/storage/memory"
	"github.com/PabloGalante/oneiros/internal/app/chat"
	"github.com/PabloGalante/oneiros/internal/app/pipeline"
	"github.com/PabloGalante/oneiros/internal/app/studio"
	"github.com/PabloGalante/oneiros/internal/capture"
	"github.com/PabloGalante/oneiros/internal/domain"
	"github.com/PabloGalante/oneiros/internal/errorsx"
)

// slowGateway holds Transcribe until release is closed.
type slowGateway struct {
	*llm.MockGateway
	release chan struct{}
}

func (g *slowGateway) Transcribe(ctx context.Context, clip domain.AudioClip) (string, error) {
	<-g.release
	return g.MockGateway.Transcribe(ctx, clip)
}

type noticeEvents struct {
	mu      sync.Mutex
	notices []string
}

func (n *noticeEvents) Publish(ev domain.Event) {
	if ev.Type != domain.EventNotice {
		return
	}
	n.mu.Lock()
	n.notices = append(n.notices, ev.Notice)
	n.mu.Unlock()
}

func newStudio(gw domain.Gateway, dev capture.Device, events domain.EventPublisher) *studio.Studio {
	dreams := memory.NewDreamStore()
	ctrl := pipeline.NewController(pipeline.Options{
		Stages: pipeline.DefaultStages(gw),
		Store:  dreams,
		Events: events,
	})
	return studio.New(studio.Options{
		Device:   dev,
		Tick:     time.Hour,
		Pipeline: ctrl,
		Dreams:   dreams,
		Chat:     chat.NewService(gw, dreams, memory.NewMessageStore(), events),
		Events:   events,
	})
}

func wait(t *testing.T, results <-chan pipeline.Result) pipeline.Result {
	t.Helper()
	select {
	case res := <-results:
		return res
	case <-time.After(2 * time.Second):
		t.Fatalf("pipeline did not finish")
		return pipeline.Result{}
	}
}

func TestCaptureUsesTierSelectedAtStop(t *testing.T) {
	st := newStudio(llm.NewMockGateway(), capture.NewUploadDevice(true), nil)
	ctx := context.Background()

	if st.Tier() != domain.DefaultImageSize {
		t.Fatalf("expected default tier, got %q", st.Tier())
	}

	if err := st.StartCapture(ctx); err != nil {
		t.Fatalf("StartCapture failed: %v", err)
	}
	if err := st.PushAudio([]byte("chunk-1")); err != nil {
		t.Fatal(err)
	}
	if err := st.PushAudio([]byte("chunk-2")); err != nil {
		t.Fatal(err)
	}
	if !st.Snapshot().Recording {
		t.Fatalf("expected recording")
	}

	if err := st.SelectTier(domain.ImageSize2K); err != nil {
		t.Fatal(err)
	}
	results, err := st.StopCapture(ctx)
	if err != nil {
		t.Fatalf("StopCapture failed: %v", err)
	}
	_ = st.SelectTier(domain.ImageSize4K)

	res := wait(t, results)
	if res.Err != nil {
		t.Fatalf("pipeline failed: %v", res.Err)
	}
	if res.Entry.ImageSize != domain.ImageSize2K {
		t.Fatalf("expected 2K stamped on the entry, got %q", res.Entry.ImageSize)
	}

	entries, err := st.Entries(0)
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one entry, got %d (%v)", len(entries), err)
	}
	got, err := st.Entry(res.Entry.ID)
	if err != nil || !got.Complete() {
		t.Fatalf("expected complete stored entry, got %+v (%v)", got, err)
	}

	snap := st.Snapshot()
	if snap.Recording || snap.Processing || snap.Elapsed != 0 || snap.Tier != domain.ImageSize4K {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestStartCaptureRejectedWhileProcessing(t *testing.T) {
	gw := &slowGateway{MockGateway: llm.NewMockGateway(), release: make(chan struct{})}
	st := newStudio(gw, capture.NewUploadDevice(true), nil)
	ctx := context.Background()

	audio := base64.StdEncoding.EncodeToString([]byte("recorded elsewhere"))
	results, err := st.SubmitRecording(ctx, "audio/ogg", audio)
	if err != nil {
		t.Fatalf("SubmitRecording failed: %v", err)
	}

	if err := st.StartCapture(ctx); !errorsx.HasReason(err, errorsx.ReasonBusy) {
		t.Fatalf("expected busy, got %v", err)
	}
	if _, err := st.SubmitRecording(ctx, "", audio); !errors.Is(err, pipeline.ErrBusy) {
		t.Fatalf("expected ErrBusy for a second submission, got %v", err)
	}
	if !st.Snapshot().Processing {
		t.Fatalf("expected processing snapshot")
	}

	close(gw.release)
	if res := wait(t, results); res.Err != nil {
		t.Fatalf("pipeline failed: %v", res.Err)
	}

	if err := st.StartCapture(ctx); err != nil {
		t.Fatalf("expected capture after the run, got %v", err)
	}
}

// lingeringDevice hands out streams that take a while to finalize. closing
// receives a signal each time a stream starts closing.
type lingeringDevice struct {
	linger  time.Duration
	closing chan struct{}
}

func (d *lingeringDevice) Open(context.Context) (capture.Stream, error) {
	return &lingeringStream{dev: d, ended: make(chan struct{})}, nil
}

type lingeringStream struct {
	dev   *lingeringDevice
	sent  bool
	once  sync.Once
	ended chan struct{}
}

func (s *lingeringStream) Next(ctx context.Context) ([]byte, error) {
	if !s.sent {
		s.sent = true
		return []byte("a dream about glass"), nil
	}
	select {
	case <-s.ended:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *lingeringStream) MIMEType() string { return "audio/webm" }

func (s *lingeringStream) Close() error {
	s.once.Do(func() {
		s.dev.closing <- struct{}{}
		time.Sleep(s.dev.linger)
		close(s.ended)
	})
	return nil
}

func TestStartCaptureRejectedWhileStopIsFinalizing(t *testing.T) {
	gw := &slowGateway{MockGateway: llm.NewMockGateway(), release: make(chan struct{})}
	dev := &lingeringDevice{linger: 50 * time.Millisecond, closing: make(chan struct{}, 4)}
	st := newStudio(gw, dev, nil)
	ctx := context.Background()

	if err := st.StartCapture(ctx); err != nil {
		t.Fatalf("StartCapture failed: %v", err)
	}

	type stopped struct {
		results <-chan pipeline.Result
		err     error
	}
	done := make(chan stopped, 1)
	go func() {
		results, err := st.StopCapture(ctx)
		done <- stopped{results, err}
	}()

	<-dev.closing
	if err := st.StartCapture(ctx); !errors.Is(err, pipeline.ErrBusy) {
		t.Fatalf("expected ErrBusy while the clip is handed to the pipeline, got %v", err)
	}
	if st.Snapshot().Recording {
		t.Fatalf("expected no capture during processing")
	}

	stop := <-done
	if stop.err != nil {
		t.Fatalf("StopCapture failed: %v", stop.err)
	}
	close(gw.release)
	if res := wait(t, stop.results); res.Err != nil {
		t.Fatalf("pipeline failed: %v", res.Err)
	}
}

func TestPermissionDeniedShowsNotice(t *testing.T) {
	events := &noticeEvents{}
	st := newStudio(llm.NewMockGateway(), capture.NewUploadDevice(false), events)

	err := st.StartCapture(context.Background())
	if !errorsx.HasReason(err, errorsx.ReasonPermissionDenied) {
		t.Fatalf("expected permission_denied, got %v", err)
	}
	if len(events.notices) != 1 || events.notices[0] != capture.PermissionNotice {
		t.Fatalf("expected permission notice, got %v", events.notices)
	}
}

func TestStopWithoutAudio(t *testing.T) {
	st := newStudio(llm.NewMockGateway(), capture.NewUploadDevice(true), nil)
	ctx := context.Background()

	if _, err := st.StopCapture(ctx); !errors.Is(err, capture.ErrNotCapturing) {
		t.Fatalf("expected ErrNotCapturing, got %v", err)
	}

	if err := st.StartCapture(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := st.StopCapture(ctx); !errors.Is(err, capture.ErrEmptyRecording) {
		t.Fatalf("expected ErrEmptyRecording, got %v", err)
	}
	if entries, _ := st.Entries(0); len(entries) != 0 {
		t.Fatalf("expected no entries")
	}
}

func TestSubmitRecordingValidation(t *testing.T) {
	st := newStudio(llm.NewMockGateway(), capture.NewUploadDevice(true), nil)
	ctx := context.Background()

	if _, err := st.SubmitRecording(ctx, "audio/webm", "%%%"); !errors.Is(err, studio.ErrInvalidRecording) {
		t.Fatalf("expected ErrInvalidRecording, got %v", err)
	}
	if _, err := st.SubmitRecording(ctx, "audio/webm", ""); !errors.Is(err, capture.ErrEmptyRecording) {
		t.Fatalf("expected ErrEmptyRecording, got %v", err)
	}
	if err := st.SelectTier("8K"); err == nil {
		t.Fatalf("expected unknown tier to be rejected")
	}
}

func TestPushAudioNeedsUploadDevice(t *testing.T) {
	st := newStudio(llm.NewMockGateway(), capture.NewFileDevice("testdata/none.webm", 0), nil)
	if err := st.PushAudio([]byte("x")); !errors.Is(err, studio.ErrUploadUnsupported) {
		t.Fatalf("expected ErrUploadUnsupported, got %v", err)
	}
}
