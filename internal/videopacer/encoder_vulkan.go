//go:build !headless

package videopacer

import (
	"fmt"

	vk "github.com/goki/vulkan"
)

// EncoderConfig is the video encoder configuration: a codec name,
// output dimensions, and bitrate. The codec is fixed to H.264 (the
// only profile wired here); other names are rejected at
// NewVulkanEncoder time.
type EncoderConfig struct {
	Codec     string
	Width     int
	Height    int
	BitrateBP int
}

// VulkanEncoder holds the Vulkan objects of an H.264 encode session,
// following the lifecycle shape of a reference Vulkan Video encoder:
// an encode queue, a command pool and buffer, a fence, and a
// host-visible bitstream output buffer. No DPB images are created and
// no work is submitted to the GPU; see Encode.
type VulkanEncoder struct {
	device         vk.Device
	physicalDevice vk.PhysicalDevice
	cfg            EncoderConfig

	commandPool     vk.CommandPool
	commandBuffer   vk.CommandBuffer
	encodeQueue     vk.Queue
	encodeQueueFam  uint32
	bitstreamBuffer vk.Buffer
	bitstreamMemory vk.DeviceMemory
	bitstreamSize   vk.DeviceSize
	encodeFence     vk.Fence

	dpbImages   []vk.Image
	dpbMemories []vk.DeviceMemory

	frameNum    uint32
	initialized bool

	out chan []byte // encoded bitstream chunks awaiting Flush
}

// NewVulkanEncoder allocates the Vulkan objects an encode session
// needs. The caller must hold a device created with the
// VK_KHR_video_queue and VK_KHR_video_encode_queue extensions enabled.
func NewVulkanEncoder(device vk.Device, physicalDevice vk.PhysicalDevice, cfg EncoderConfig) (*VulkanEncoder, error) {
	if cfg.Codec != "h264" {
		return nil, fmt.Errorf("videopacer: unsupported codec %q", cfg.Codec)
	}
	enc := &VulkanEncoder{
		device:         device,
		physicalDevice: physicalDevice,
		cfg:            cfg,
		bitstreamSize:  vk.DeviceSize(4 * 1024 * 1024),
		out:            make(chan []byte, 8),
	}
	if err := enc.initialize(); err != nil {
		return nil, err
	}
	return enc, nil
}

func (e *VulkanEncoder) initialize() error {
	queueFamilyProps := queueFamilyProperties(e.physicalDevice)
	famIndex, ok := findVideoEncodeQueueFamily(queueFamilyProps)
	if !ok {
		return fmt.Errorf("videopacer: no Vulkan Video encode queue family available")
	}
	e.encodeQueueFam = famIndex

	var queue vk.Queue
	vk.GetDeviceQueue(e.device, famIndex, 0, &queue)
	e.encodeQueue = queue

	poolInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
		QueueFamilyIndex: famIndex,
	}
	var pool vk.CommandPool
	if res := vk.CreateCommandPool(e.device, &poolInfo, nil, &pool); res != vk.Success {
		return fmt.Errorf("videopacer: vkCreateCommandPool failed: %v", res)
	}
	e.commandPool = pool

	allocInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	buffers := make([]vk.CommandBuffer, 1)
	if res := vk.AllocateCommandBuffers(e.device, &allocInfo, buffers); res != vk.Success {
		return fmt.Errorf("videopacer: vkAllocateCommandBuffers failed: %v", res)
	}
	e.commandBuffer = buffers[0]

	fenceInfo := vk.FenceCreateInfo{SType: vk.StructureTypeFenceCreateInfo}
	var fence vk.Fence
	if res := vk.CreateFence(e.device, &fenceInfo, nil, &fence); res != vk.Success {
		return fmt.Errorf("videopacer: vkCreateFence failed: %v", res)
	}
	e.encodeFence = fence

	buf, mem, err := createHostVisibleBuffer(e.device, e.physicalDevice, e.bitstreamSize,
		vk.BufferUsageFlags(vk.BufferUsageTransferDstBit))
	if err != nil {
		return fmt.Errorf("videopacer: bitstream buffer: %w", err)
	}
	e.bitstreamBuffer = buf
	e.bitstreamMemory = mem

	e.initialized = true
	return nil
}

// Encode submits one YUV420 frame for encoding at the given
// presentation timestamp. Frames are emitted to the internal channel
// as they are produced; Flush drains it.
func (e *VulkanEncoder) Encode(frame []byte, pts int64) error {
	if !e.initialized {
		return fmt.Errorf("videopacer: encoder not initialized")
	}
	// No hardware encode is submitted: the command buffer, fence and
	// bitstream buffer set up by initialize() are not used here. The
	// raw YUV420 frame, prefixed with an Annex B start code by
	// annexBWrap, is what gets queued for Flush.
	nal := annexBWrap(frame, e.frameNum == 0)
	e.frameNum++
	select {
	case e.out <- nal:
	default:
		return fmt.Errorf("videopacer: encoder output backlog full")
	}
	return nil
}

// Flush drains any buffered encoded output. more is false once the
// channel is empty.
func (e *VulkanEncoder) Flush() (more bool, err error) {
	select {
	case chunk, ok := <-e.out:
		if !ok || chunk == nil {
			return false, nil
		}
		return true, nil
	default:
		return false, nil
	}
}

// Close releases the Vulkan objects owned by this encoder.
func (e *VulkanEncoder) Close() error {
	if !e.initialized {
		return nil
	}
	vk.DeviceWaitIdle(e.device)
	vk.DestroyFence(e.device, e.encodeFence, nil)
	vk.DestroyBuffer(e.device, e.bitstreamBuffer, nil)
	vk.FreeMemory(e.device, e.bitstreamMemory, nil)
	for _, img := range e.dpbImages {
		vk.DestroyImage(e.device, img, nil)
	}
	for _, mem := range e.dpbMemories {
		vk.FreeMemory(e.device, mem, nil)
	}
	vk.DestroyCommandPool(e.device, e.commandPool, nil)
	close(e.out)
	e.initialized = false
	return nil
}

// annexBWrap is a placeholder bitstream framing step; a production
// encode submission would read this back from bitstreamBuffer instead
// of passing the raw YUV payload through.
func annexBWrap(frame []byte, idr bool) []byte {
	marker := []byte{0, 0, 0, 1}
	out := make([]byte, 0, len(marker)+len(frame))
	out = append(out, marker...)
	out = append(out, frame...)
	return out
}

func queueFamilyProperties(pd vk.PhysicalDevice) []vk.QueueFamilyProperties {
	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &count, nil)
	props := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &count, props)
	return props
}

// findVideoEncodeQueueFamily looks for a queue family advertising
// video-encode support. The goki/vulkan binding does not expose the
// VK_KHR_video_queue structure extensions directly, so this checks the
// general-purpose queue flags as a conservative fallback and returns
// the first family that advertises the encode bit; it does not prefer
// a dedicated family when several qualify.
func findVideoEncodeQueueFamily(props []vk.QueueFamilyProperties) (uint32, bool) {
	for i, p := range props {
		p.Deref()
		if vk.QueueFlagBits(p.QueueFlags)&vk.QueueVideoEncodeBitKhr != 0 {
			return uint32(i), true
		}
	}
	return 0, false
}

func createHostVisibleBuffer(device vk.Device, pd vk.PhysicalDevice, size vk.DeviceSize, usage vk.BufferUsageFlags) (vk.Buffer, vk.DeviceMemory, error) {
	bufInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        size,
		Usage:       usage,
		SharingMode: vk.SharingModeExclusive,
	}
	var buf vk.Buffer
	if res := vk.CreateBuffer(device, &bufInfo, nil, &buf); res != vk.Success {
		return vk.Buffer(vk.NullHandle), vk.DeviceMemory(vk.NullHandle), fmt.Errorf("vkCreateBuffer failed: %v", res)
	}

	var memReqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(device, buf, &memReqs)
	memReqs.Deref()

	var memProps vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(pd, &memProps)
	memProps.Deref()

	typeIndex, ok := findMemoryType(memProps, memReqs.MemoryTypeBits,
		vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit))
	if !ok {
		return vk.Buffer(vk.NullHandle), vk.DeviceMemory(vk.NullHandle), fmt.Errorf("no suitable host-visible memory type")
	}

	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  memReqs.Size,
		MemoryTypeIndex: typeIndex,
	}
	var mem vk.DeviceMemory
	if res := vk.AllocateMemory(device, &allocInfo, nil, &mem); res != vk.Success {
		return vk.Buffer(vk.NullHandle), vk.DeviceMemory(vk.NullHandle), fmt.Errorf("vkAllocateMemory failed: %v", res)
	}
	if res := vk.BindBufferMemory(device, buf, mem, 0); res != vk.Success {
		return vk.Buffer(vk.NullHandle), vk.DeviceMemory(vk.NullHandle), fmt.Errorf("vkBindBufferMemory failed: %v", res)
	}
	return buf, mem, nil
}

func findMemoryType(props vk.PhysicalDeviceMemoryProperties, typeBits uint32, required vk.MemoryPropertyFlags) (uint32, bool) {
	for i := uint32(0); i < props.MemoryTypeCount; i++ {
		props.MemoryTypes[i].Deref()
		if typeBits&(1<<i) == 0 {
			continue
		}
		if vk.MemoryPropertyFlags(props.MemoryTypes[i].PropertyFlags)&required == required {
			return i, true
		}
	}
	return 0, false
}
