package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var mimeByExt = map[string]string{
	".webm": "audio/webm",
	".ogg":  "audio/ogg",
	".oga":  "audio/ogg",
	".opus": "audio/ogg",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".flac": "audio/flac",
}

// MIMETypeForPath guesses the audio container from the file extension.
func MIMETypeForPath(path string) string {
	if m, ok := mimeByExt[strings.ToLower(filepath.Ext(path))]; ok {
		return m
	}
	return DefaultMIMEType
}

// FileDevice plays an existing recording back as if it were captured live.
type FileDevice struct {
	path      string
	chunkSize int
}

func NewFileDevice(path string, chunkSize int) *FileDevice {
	if chunkSize <= 0 {
		chunkSize = 32 * 1024
	}
	return &FileDevice{path: path, chunkSize: chunkSize}
}

func (d *FileDevice) Open(context.Context) (Stream, error) {
	f, err := os.Open(d.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			return nil, permissionDenied(err)
		}
		return nil, fmt.Errorf("open %s: %w", d.path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %s: %w", d.path, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, permissionDenied(fmt.Errorf("%s is a directory", d.path))
	}

	return &fileStream{
		f:    f,
		buf:  make([]byte, d.chunkSize),
		mime: MIMETypeForPath(d.path),
	}, nil
}

type fileStream struct {
	f    *os.File
	buf  []byte
	mime string

	once sync.Once
}

func (s *fileStream) Next(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n, err := s.f.Read(s.buf)
	if n > 0 {
		out := make([]byte, n)
		copy(out, s.buf[:n])
		return out, nil
	}
	if err == nil {
		err = io.ErrNoProgress
	}
	return nil, err
}

func (s *fileStream) MIMEType() string { return s.mime }

func (s *fileStream) Close() error {
	var err error
	s.once.Do(func() { err = s.f.Close() })
	return err
}
