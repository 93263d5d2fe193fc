package domain

import (
	"fmt"
	"strings"
	"time"
)

type EntryID string

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ImageSize is the resolution tier requested for a generated dream image.
type ImageSize string

const (
	ImageSize1K ImageSize = "1K"
	ImageSize2K ImageSize = "2K"
	ImageSize4K ImageSize = "4K"
)

// DefaultImageSize is the tier selected when nothing else was chosen.
const DefaultImageSize = ImageSize1K

// ImageSizes lists every tier in ascending order.
func ImageSizes() []ImageSize {
	return []ImageSize{ImageSize1K, ImageSize2K, ImageSize4K}
}

func (s ImageSize) Valid() bool {
	switch s {
	case ImageSize1K, ImageSize2K, ImageSize4K:
		return true
	}
	return false
}

// ParseImageSize accepts "1K", "2k", " 4K " and so on.
func ParseImageSize(v string) (ImageSize, error) {
	s := ImageSize(strings.ToUpper(strings.TrimSpace(v)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown image size %q (want 1K, 2K or 4K)", v)
	}
	return s, nil
}

type Timestamp = time.Time
