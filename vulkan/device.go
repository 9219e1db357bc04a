package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
)

// Device is the selected physical device, its logical device and the single
// queue used for graphics, transfer and present.
type Device struct {
	PhysicalDevice vk.PhysicalDevice
	Handle         vk.Device
	Queue          vk.Queue
	QueueFamily    uint32

	Properties  vk.PhysicalDeviceProperties
	MemoryProps vk.PhysicalDeviceMemoryProperties
}

// PickPhysicalDevice selects the highest rated GPU with a queue family that
// supports both graphics and presenting to surface.
func PickPhysicalDevice(instance *Instance, surface vk.Surface) (*Device, error) {
	var count uint32
	ret := vk.EnumeratePhysicalDevices(instance.Handle, &count, nil)
	if ret != vk.Success || count == 0 {
		return nil, errors.New("failed to find GPUs with Vulkan support")
	}
	devices := make([]vk.PhysicalDevice, count)
	vk.EnumeratePhysicalDevices(instance.Handle, &count, devices)

	var best *Device
	bestScore := -1
	for _, pd := range devices {
		family, ok := findQueueFamily(pd, surface)
		if !ok {
			continue
		}
		d := &Device{PhysicalDevice: pd, QueueFamily: family}
		vk.GetPhysicalDeviceProperties(pd, &d.Properties)
		d.Properties.Deref()
		if score := rateDevice(d.Properties.DeviceType); score > bestScore {
			best, bestScore = d, score
		}
	}
	if best == nil {
		return nil, errors.New("failed to find a suitable GPU")
	}

	vk.GetPhysicalDeviceMemoryProperties(best.PhysicalDevice, &best.MemoryProps)
	best.MemoryProps.Deref()
	return best, nil
}

func findQueueFamily(pd vk.PhysicalDevice, surface vk.Surface) (uint32, bool) {
	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &count, nil)
	props := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &count, props)
	for i := uint32(0); i < count; i++ {
		props[i].Deref()
		if props[i].QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) == 0 {
			continue
		}
		var present vk.Bool32
		vk.GetPhysicalDeviceSurfaceSupport(pd, i, surface, &present)
		if present == vk.True {
			return i, true
		}
	}
	return 0, false
}

func rateDevice(t vk.PhysicalDeviceType) int {
	switch t {
	case vk.PhysicalDeviceTypeDiscreteGpu:
		return 3
	case vk.PhysicalDeviceTypeIntegratedGpu:
		return 2
	case vk.PhysicalDeviceTypeVirtualGpu:
		return 1
	default:
		return 0
	}
}

// CreateLogicalDevice creates the device with the swapchain extension and
// fetches its queue.
func (d *Device) CreateLogicalDevice(validation bool) error {
	var layers []string
	if validation {
		layers = []string{validationLayer}
	}
	extensions := []string{"VK_KHR_swapchain"}

	var device vk.Device
	ret := vk.CreateDevice(d.PhysicalDevice, &vk.DeviceCreateInfo{
		SType:                vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount: 1,
		PQueueCreateInfos: []vk.DeviceQueueCreateInfo{{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: d.QueueFamily,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		}},
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: safeStrings(extensions),
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     safeStrings(layers),
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{{}},
	}, nil, &device)
	if err := result(ret, "create logical device"); err != nil {
		return err
	}
	d.Handle = device

	var queue vk.Queue
	vk.GetDeviceQueue(d.Handle, d.QueueFamily, 0, &queue)
	d.Queue = queue
	return nil
}

func (d *Device) Destroy() {
	if d.Handle != nil {
		vk.DestroyDevice(d.Handle, nil)
		d.Handle = nil
	}
}

func (d *Device) WaitIdle() error {
	return result(vk.DeviceWaitIdle(d.Handle), "wait for device idle")
}

func (d *Device) Name() string {
	return vk.ToString(d.Properties.DeviceName[:])
}

func (d *Device) DeviceType() string {
	switch d.Properties.DeviceType {
	case vk.PhysicalDeviceTypeIntegratedGpu:
		return "Integrated GPU"
	case vk.PhysicalDeviceTypeDiscreteGpu:
		return "Discrete GPU"
	case vk.PhysicalDeviceTypeVirtualGpu:
		return "Virtual GPU"
	case vk.PhysicalDeviceTypeCpu:
		return "CPU"
	default:
		return "Unknown"
	}
}

// FindMemoryType returns the first memory type allowed by typeBits that has
// all of props.
func (d *Device) FindMemoryType(typeBits uint32, props vk.MemoryPropertyFlagBits) (uint32, error) {
	want := vk.MemoryPropertyFlags(props)
	for i := uint32(0); i < d.MemoryProps.MemoryTypeCount; i++ {
		if typeBits&(1<<i) == 0 {
			continue
		}
		d.MemoryProps.MemoryTypes[i].Deref()
		if d.MemoryProps.MemoryTypes[i].PropertyFlags&want == want {
			return i, nil
		}
	}
	return 0, errors.Newf("failed to find memory type with properties %#x", uint32(props))
}

// FindDepthFormat returns the first depth format usable as an optimal-tiling
// attachment.
func (d *Device) FindDepthFormat() (vk.Format, error) {
	for _, f := range []vk.Format{vk.FormatD32Sfloat, vk.FormatD32SfloatS8Uint, vk.FormatD24UnormS8Uint} {
		var props vk.FormatProperties
		vk.GetPhysicalDeviceFormatProperties(d.PhysicalDevice, f, &props)
		props.Deref()
		if props.OptimalTilingFeatures&vk.FormatFeatureFlags(vk.FormatFeatureDepthStencilAttachmentBit) != 0 {
			return f, nil
		}
	}
	return vk.FormatUndefined, errors.New("failed to find a supported depth format")
}
