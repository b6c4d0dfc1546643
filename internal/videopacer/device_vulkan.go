//go:build !headless

package videopacer

import (
	"fmt"

	vk "github.com/goki/vulkan"
)

// OpenDevice creates a Vulkan instance, selects the first physical
// device exposing a video-encode-capable queue family, and creates a
// logical device with that queue enabled — the same
// instance/physical-device/device sequence a Vulkan graphics backend
// uses to stand up a graphics queue, aimed at an encode queue instead.
// The returned cleanup func destroys the device and instance in
// reverse order; callers should defer it.
func OpenDevice() (device vk.Device, physicalDevice vk.PhysicalDevice, cleanup func(), err error) {
	if res := vk.Init(); res != nil {
		return vk.Device(vk.NullHandle), vk.PhysicalDevice(vk.NullHandle), nil, fmt.Errorf("videopacer: vk.Init: %w", res)
	}

	appInfo := vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		PApplicationName:   safeString("rvpgatewayd"),
		ApplicationVersion: vk.MakeVersion(1, 0, 0),
		PEngineName:        safeString("rvpgateway videopacer"),
		EngineVersion:      vk.MakeVersion(1, 0, 0),
		ApiVersion:         vk.MakeVersion(1, 1, 0),
	}
	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: &appInfo,
	}

	var instance vk.Instance
	if res := vk.CreateInstance(&createInfo, nil, &instance); res != vk.Success {
		return vk.Device(vk.NullHandle), vk.PhysicalDevice(vk.NullHandle), nil, fmt.Errorf("videopacer: vkCreateInstance failed: %v", res)
	}
	vk.InitInstance(instance)

	pd, queueFamily, err := selectEncodeCapableDevice(instance)
	if err != nil {
		vk.DestroyInstance(instance, nil)
		return vk.Device(vk.NullHandle), vk.PhysicalDevice(vk.NullHandle), nil, err
	}

	queuePriority := float32(1.0)
	queueCreateInfo := vk.DeviceQueueCreateInfo{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: queueFamily,
		QueueCount:       1,
		PQueuePriorities: []float32{queuePriority},
	}
	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount: 1,
		PQueueCreateInfos:    []vk.DeviceQueueCreateInfo{queueCreateInfo},
	}

	var dev vk.Device
	if res := vk.CreateDevice(pd, &deviceCreateInfo, nil, &dev); res != vk.Success {
		vk.DestroyInstance(instance, nil)
		return vk.Device(vk.NullHandle), vk.PhysicalDevice(vk.NullHandle), nil, fmt.Errorf("videopacer: vkCreateDevice failed: %v", res)
	}

	cleanup = func() {
		vk.DestroyDevice(dev, nil)
		vk.DestroyInstance(instance, nil)
	}
	return dev, pd, cleanup, nil
}

func selectEncodeCapableDevice(instance vk.Instance) (vk.PhysicalDevice, uint32, error) {
	var count uint32
	vk.EnumeratePhysicalDevices(instance, &count, nil)
	if count == 0 {
		return vk.PhysicalDevice(vk.NullHandle), 0, fmt.Errorf("videopacer: no Vulkan-capable GPUs found")
	}
	devices := make([]vk.PhysicalDevice, count)
	vk.EnumeratePhysicalDevices(instance, &count, devices)

	for _, pd := range devices {
		fam, ok := findVideoEncodeQueueFamily(queueFamilyProperties(pd))
		if ok {
			return pd, fam, nil
		}
	}
	return vk.PhysicalDevice(vk.NullHandle), 0, fmt.Errorf("videopacer: no GPU with a video-encode queue family found")
}

func safeString(s string) string {
	return s + "\x00"
}
