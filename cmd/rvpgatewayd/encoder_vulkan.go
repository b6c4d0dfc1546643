//go:build !headless

package main

import (
	"github.com/skiffdesk/rvpgateway/internal/videopacer"
)

// buildEncoder opens a Vulkan device and starts an H.264 encode
// session against it.
func buildEncoder(width, height, bitrate int) (videopacer.Encoder, func(), error) {
	device, physicalDevice, closeDevice, err := videopacer.OpenDevice()
	if err != nil {
		return nil, func() {}, err
	}

	enc, err := videopacer.NewVulkanEncoder(device, physicalDevice, videopacer.EncoderConfig{
		Codec:     "h264",
		Width:     width,
		Height:    height,
		BitrateBP: bitrate,
	})
	if err != nil {
		closeDevice()
		return nil, func() {}, err
	}

	cleanup := func() {
		enc.Close()
		closeDevice()
	}
	return enc, cleanup, nil
}
