package capture

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
)

// UploadDevice is fed by a remote client that owns the physical microphone
// and pushes encoded chunks while a capture is active.
type UploadDevice struct {
	enabled bool

	mu   sync.Mutex
	mime string
	cur  *uploadStream
}

func NewUploadDevice(enabled bool) *UploadDevice {
	return &UploadDevice{
		enabled: enabled,
		mime:    DefaultMIMEType,
	}
}

// SetMIMEType sets the container type announced for the next capture.
func (d *UploadDevice) SetMIMEType(mime string) {
	mime = strings.TrimSpace(mime)
	if mime == "" {
		mime = DefaultMIMEType
	}
	d.mu.Lock()
	d.mime = mime
	d.mu.Unlock()
}

func (d *UploadDevice) Open(context.Context) (Stream, error) {
	if !d.enabled {
		return nil, permissionDenied(errors.New("audio upload is disabled"))
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cur != nil {
		return nil, ErrAlreadyCapturing
	}
	d.cur = &uploadStream{
		dev:    d,
		mime:   d.mime,
		notify: make(chan struct{}, 1),
	}
	return d.cur, nil
}

// Push appends one chunk to the active capture.
func (d *UploadDevice) Push(chunk []byte) error {
	d.mu.Lock()
	s := d.cur
	d.mu.Unlock()

	if s == nil {
		return ErrNotCapturing
	}
	return s.push(chunk)
}

func (d *UploadDevice) release(s *uploadStream) {
	d.mu.Lock()
	if d.cur == s {
		d.cur = nil
	}
	d.mu.Unlock()
}

type uploadStream struct {
	dev  *UploadDevice
	mime string

	mu     sync.Mutex
	queue  [][]byte
	closed bool
	notify chan struct{}
}

func (s *uploadStream) push(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}
	buf := make([]byte, len(chunk))
	copy(buf, chunk)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStreamClosed
	}
	s.queue = append(s.queue, buf)
	s.mu.Unlock()

	s.signal()
	return nil
}

func (s *uploadStream) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *uploadStream) Next(ctx context.Context) ([]byte, error) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			chunk := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return chunk, nil
		}
		if s.closed {
			s.mu.Unlock()
			return nil, io.EOF
		}
		s.mu.Unlock()

		select {
		case <-s.notify:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (s *uploadStream) MIMEType() string { return s.mime }

func (s *uploadStream) Close() error {
	s.mu.Lock()
	already := s.closed
	s.closed = true
	s.mu.Unlock()

	if !already {
		s.dev.release(s)
		s.signal()
	}
	return nil
}
