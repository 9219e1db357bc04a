package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"vkrender/core"
	"vkrender/gpu"
)

// Backend implements gpu.Device on a single graphics+present queue.
type Backend struct {
	cfg    Config
	window *core.Window

	instance      *Instance
	surface       vk.Surface
	device        *Device
	surfaceFormat vk.SurfaceFormat
	depthFormat   vk.Format
	renderPass    vk.RenderPass

	commands    *commandPool
	semaphores  *semaphorePool
	descriptors *descriptorAllocator
	sampler     vk.Sampler
}

var _ gpu.Device = (*Backend)(nil)

// NewBackend initializes Vulkan for window, which must have been created
// with core.APIVulkan.
func NewBackend(window *core.Window, cfg Config) (*Backend, error) {
	if window.API() != core.APIVulkan {
		return nil, errors.Newf("window was created for %s", window.API())
	}
	vk.SetGetInstanceProcAddr(core.VulkanProcAddr())
	if err := vk.Init(); err != nil {
		return nil, errors.Wrap(err, "failed to initialize Vulkan loader")
	}

	b := &Backend{cfg: cfg, window: window}
	if err := b.init(); err != nil {
		b.Release()
		return nil, err
	}
	gpu.Logger().Info("vulkan device selected",
		"name", b.device.Name(), "type", b.device.DeviceType(),
		"format", b.surfaceFormat.Format, "depth", b.depthFormat)
	return b, nil
}

func (b *Backend) init() error {
	var err error
	if b.instance, err = NewInstance(b.cfg, b.window.RequiredInstanceExtensions()); err != nil {
		return err
	}

	ptr, err := b.window.CreateWindowSurface(b.instance.Handle)
	if err != nil {
		return errors.Wrap(err, "failed to create window surface")
	}
	b.surface = vk.SurfaceFromPointer(ptr)

	if b.device, err = PickPhysicalDevice(b.instance, b.surface); err != nil {
		return err
	}
	if err = b.device.CreateLogicalDevice(b.instance.EnableValidation); err != nil {
		return err
	}
	if b.surfaceFormat, err = b.chooseSurfaceFormat(); err != nil {
		return err
	}
	if b.depthFormat, err = b.device.FindDepthFormat(); err != nil {
		return err
	}
	if b.renderPass, err = CreateRenderPass(b.device.Handle, b.surfaceFormat.Format, b.depthFormat); err != nil {
		return err
	}
	if b.commands, err = newCommandPool(b.device); err != nil {
		return err
	}
	b.semaphores = newSemaphorePool(b.device.Handle)
	b.descriptors = &descriptorAllocator{dev: b.device.Handle}
	if b.sampler, err = createSampler(b.device.Handle); err != nil {
		return err
	}
	return nil
}

// chooseSurfaceFormat prefers 8-bit sRGB BGRA and falls back to the first
// format the surface reports.
func (b *Backend) chooseSurfaceFormat() (vk.SurfaceFormat, error) {
	var n uint32
	vk.GetPhysicalDeviceSurfaceFormats(b.device.PhysicalDevice, b.surface, &n, nil)
	if n == 0 {
		return vk.SurfaceFormat{}, errors.New("surface has no pixel formats")
	}
	formats := make([]vk.SurfaceFormat, n)
	vk.GetPhysicalDeviceSurfaceFormats(b.device.PhysicalDevice, b.surface, &n, formats)
	for i := range formats {
		formats[i].Deref()
	}
	if n == 1 && formats[0].Format == vk.FormatUndefined {
		return vk.SurfaceFormat{Format: vk.FormatB8g8r8a8Srgb, ColorSpace: formats[0].ColorSpace}, nil
	}
	for _, f := range formats {
		if f.Format == vk.FormatB8g8r8a8Srgb && f.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			return f, nil
		}
	}
	return formats[0], nil
}

func (b *Backend) CreateBuffer(desc gpu.BufferDesc) (gpu.Buffer, error) {
	buf, err := newBuffer(b.device, desc)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// Submit records batch into a fresh command buffer and queues it.
func (b *Backend) Submit(batch *gpu.Batch, waits []gpu.Semaphore, signal gpu.Semaphore) (gpu.Fence, error) {
	cmd, err := b.commands.begin()
	if err != nil {
		return nil, err
	}
	enc := &encoder{cmd: cmd, renderPass: b.renderPass}
	if err := enc.encode(batch); err != nil {
		vk.EndCommandBuffer(cmd)
		b.commands.free(cmd)
		return nil, err
	}
	f, err := b.commands.submit(cmd, waits, signal)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (b *Backend) Present(sc gpu.Swapchain, image uint32, wait gpu.Semaphore) error {
	chain, ok := sc.(*swapchain)
	if !ok {
		return errors.AssertionFailedf("swapchain was not created by this backend")
	}
	waits := semaphoreHandles([]gpu.Semaphore{wait})
	ret := vk.QueuePresent(b.device.Queue, &vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: uint32(len(waits)),
		PWaitSemaphores:    waits,
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{chain.handle},
		PImageIndices:      []uint32{image},
	})
	if ret == vk.Suboptimal {
		// The image was presented; rebuild before the next frame.
		return errors.Wrap(gpu.ErrOutOfDate, "present suboptimal")
	}
	return result(ret, "present")
}

func (b *Backend) WaitIdle() error {
	return b.device.WaitIdle()
}

// Release destroys every backend object. Callers release the objects they
// created through the backend first.
func (b *Backend) Release() {
	if b.device != nil && b.device.Handle != nil {
		dev := b.device.Handle
		vk.DeviceWaitIdle(dev)
		if b.sampler != nil {
			vk.DestroySampler(dev, b.sampler, nil)
		}
		if b.descriptors != nil {
			b.descriptors.destroy()
		}
		if b.semaphores != nil {
			b.semaphores.destroy()
		}
		if b.commands != nil {
			b.commands.destroy()
		}
		if b.renderPass != vk.NullRenderPass {
			vk.DestroyRenderPass(dev, b.renderPass, nil)
		}
		b.device.Destroy()
	}
	if b.instance != nil {
		if b.surface != vk.NullSurface {
			vk.DestroySurface(b.instance.Handle, b.surface, nil)
			b.surface = vk.NullSurface
		}
		b.instance.Destroy()
	}
}
