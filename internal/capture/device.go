// Package capture records one audio clip at a time from an exclusively owned
// input device and hands it over as base64 text.
package capture

import (
	"context"
	"errors"
	"fmt"

	"github.com/PabloGalante/oneiros/internal/errorsx"
)

// PermissionNotice is shown to the user when the device can't be acquired.
const PermissionNotice = "Microphone access is required to record dreams."

const DefaultMIMEType = "audio/webm"

var (
	ErrPermissionDenied = errors.New("capture: device access denied")
	ErrAlreadyCapturing = errors.New("capture: already capturing")
	ErrNotCapturing     = errors.New("capture: not capturing")
	ErrEmptyRecording   = errors.New("capture: recording is empty")
	ErrStreamClosed     = errors.New("capture: stream closed")
)

// Stream delivers encoded audio chunks from an opened device.
type Stream interface {
	// Next blocks until a chunk is available. It returns io.EOF once the
	// track has ended and every buffered chunk was delivered.
	Next(ctx context.Context) ([]byte, error)
	MIMEType() string
	// Close ends the track and releases the device. It must be idempotent.
	Close() error
}

// Device is an audio input that can be opened by one recorder at a time.
type Device interface {
	Open(ctx context.Context) (Stream, error)
}

func permissionDenied(cause error) error {
	return errorsx.Wrap(fmt.Errorf("%w: %v", ErrPermissionDenied, cause), errorsx.ReasonPermissionDenied)
}
