//go:build headless

package videopacer

import "fmt"

// EncoderConfig mirrors the Vulkan build's configuration surface so
// callers compile unchanged under the headless tag.
type EncoderConfig struct {
	Codec     string
	Width     int
	Height    int
	BitrateBP int
}

// VulkanEncoder is a headless test double: it stores a copy of each
// frame instead of submitting to a GPU, for environments without a
// Vulkan Video-capable device (the same role video_backend_headless.go
// plays for the local preview output).
type VulkanEncoder struct {
	cfg      EncoderConfig
	frames   [][]byte
	flushPos int
}

func NewVulkanEncoder(_, _ interface{}, cfg EncoderConfig) (*VulkanEncoder, error) {
	if cfg.Codec != "h264" {
		return nil, fmt.Errorf("videopacer: unsupported codec %q", cfg.Codec)
	}
	return &VulkanEncoder{cfg: cfg}, nil
}

func (e *VulkanEncoder) Encode(frame []byte, pts int64) error {
	cp := make([]byte, len(frame))
	copy(cp, frame)
	e.frames = append(e.frames, cp)
	return nil
}

func (e *VulkanEncoder) Flush() (more bool, err error) {
	if e.flushPos >= len(e.frames) {
		return false, nil
	}
	e.flushPos++
	return e.flushPos < len(e.frames), nil
}

func (e *VulkanEncoder) Close() error { return nil }
