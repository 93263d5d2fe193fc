package capture

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"github.com/PabloGalante/oneiros/internal/domain"
	"github.com/PabloGalante/oneiros/internal/observability"
)

// Options tune a Recorder. Zero values are fine.
type Options struct {
	// Tick is the elapsed counter period, one second by default.
	Tick time.Duration
	// OnTick receives the elapsed counter after each increment.
	OnTick func(elapsed int)
	// OnComplete receives every finalized clip.
	OnComplete func(clip domain.AudioClip)
}

// Recorder runs at most one capture session against its device.
type Recorder struct {
	dev  Device
	opts Options
	now  func() time.Time

	mu      sync.Mutex
	sess    *session
	elapsed int
}

type session struct {
	stream  Stream
	started time.Time
	cancel  context.CancelFunc

	// written by the read loop only, read after done is closed
	chunks [][]byte
	err    error
	done   chan struct{}
}

func NewRecorder(dev Device, opts Options) *Recorder {
	if opts.Tick <= 0 {
		opts.Tick = time.Second
	}
	return &Recorder{
		dev:  dev,
		opts: opts,
		now:  time.Now,
	}
}

// Start acquires the device and begins buffering chunks.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sess != nil {
		return ErrAlreadyCapturing
	}

	stream, err := r.dev.Open(ctx)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s := &session{
		stream:  stream,
		started: r.now(),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	r.sess = s
	r.elapsed = 0

	go r.read(runCtx, s)
	go r.count(runCtx, s)

	observability.LoggerFromContext(ctx).Info("capture started", "mime_type", stream.MIMEType())
	return nil
}

func (r *Recorder) read(ctx context.Context, s *session) {
	defer close(s.done)

	for {
		chunk, err := s.stream.Next(ctx)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) && !errors.Is(err, context.Canceled) {
				s.err = err
			}
			break
		}
		if len(chunk) > 0 {
			s.chunks = append(s.chunks, chunk)
		}
	}

	// The track may end before Stop; the device is released either way.
	_ = s.stream.Close()
}

func (r *Recorder) count(ctx context.Context, s *session) {
	t := time.NewTicker(r.opts.Tick)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-t.C:
			// track ended by itself; elapsed stays frozen until Stop
			select {
			case <-s.done:
				return
			default:
			}
			r.mu.Lock()
			if r.sess != s {
				r.mu.Unlock()
				return
			}
			r.elapsed++
			n := r.elapsed
			r.mu.Unlock()

			if r.opts.OnTick != nil {
				r.opts.OnTick(n)
			}
		}
	}
}

// Stop finalizes the buffered chunks into one clip, releases the device and
// hands the clip to OnComplete.
func (r *Recorder) Stop() (domain.AudioClip, error) {
	r.mu.Lock()
	s := r.sess
	r.sess = nil
	r.elapsed = 0
	r.mu.Unlock()

	if s == nil {
		return domain.AudioClip{}, ErrNotCapturing
	}

	_ = s.stream.Close()
	<-s.done
	s.cancel()

	data := bytes.Join(s.chunks, nil)
	log := observability.Component("capture")
	if len(data) == 0 {
		if s.err != nil {
			log.Error("capture failed", "error", s.err)
			return domain.AudioClip{}, s.err
		}
		return domain.AudioClip{}, ErrEmptyRecording
	}
	if s.err != nil {
		log.Warn("capture ended with error, keeping buffered audio", "error", s.err)
	}

	clip := domain.AudioClip{
		MIMEType: s.stream.MIMEType(),
		Encoded:  base64.StdEncoding.EncodeToString(data),
		Duration: r.now().Sub(s.started),
	}
	log.Info("capture stopped", "bytes", len(data), "chunks", len(s.chunks), "duration_ms", clip.Duration.Milliseconds())

	if r.opts.OnComplete != nil {
		r.opts.OnComplete(clip)
	}
	return clip, nil
}

// Wait blocks until the active track ends by itself or ctx is done.
func (r *Recorder) Wait(ctx context.Context) error {
	r.mu.Lock()
	s := r.sess
	r.mu.Unlock()

	if s == nil {
		return ErrNotCapturing
	}
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Elapsed is the number of ticks since the capture started, zero when idle.
func (r *Recorder) Elapsed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.elapsed
}

// Recording reports whether a session is held. A session whose track ended
// by itself is still held until Stop collects its clip.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sess != nil
}
