//go:build headless

package main

import (
	"github.com/skiffdesk/rvpgateway/internal/videopacer"
)

// buildEncoder constructs the headless test-double encoder, for hosts
// without a Vulkan Video-capable GPU.
func buildEncoder(width, height, bitrate int) (videopacer.Encoder, func(), error) {
	enc, err := videopacer.NewVulkanEncoder(nil, nil, videopacer.EncoderConfig{
		Codec:     "h264",
		Width:     width,
		Height:    height,
		BitrateBP: bitrate,
	})
	if err != nil {
		return nil, func() {}, err
	}
	return enc, func() { enc.Close() }, nil
}
