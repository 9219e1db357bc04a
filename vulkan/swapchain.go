package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"vkrender/gpu"
)

// swapchain is a gpu.Swapchain over a VkSwapchainKHR. Each image has its own
// render-finished semaphore; acquire semaphores come from the backend pool.
type swapchain struct {
	backend  *Backend
	handle   vk.Swapchain
	extent   gpu.Extent
	images   []gpu.Attachment
	finished []*semaphore
}

// surfaceCapabilities reads the current surface capabilities.
func (b *Backend) surfaceCapabilities() (vk.SurfaceCapabilities, error) {
	var caps vk.SurfaceCapabilities
	ret := vk.GetPhysicalDeviceSurfaceCapabilities(b.device.PhysicalDevice, b.surface, &caps)
	if err := result(ret, "query surface capabilities"); err != nil {
		return caps, err
	}
	caps.Deref()
	caps.CurrentExtent.Deref()
	caps.MinImageExtent.Deref()
	caps.MaxImageExtent.Deref()
	return caps, nil
}

// SurfaceExtent returns the surface's current extent, falling back to the
// window framebuffer size when the surface leaves it to the swapchain.
func (b *Backend) SurfaceExtent() (gpu.Extent, error) {
	caps, err := b.surfaceCapabilities()
	if err != nil {
		return gpu.Extent{}, err
	}
	if caps.CurrentExtent.Width != vk.MaxUint32 {
		return gpu.Extent{Width: caps.CurrentExtent.Width, Height: caps.CurrentExtent.Height}, nil
	}
	w, h := b.window.FramebufferSize()
	return gpu.Extent{Width: uint32(w), Height: uint32(h)}, nil
}

// CreateSwapchain builds a FIFO (or mailbox, without vsync) chain at extent.
func (b *Backend) CreateSwapchain(extent gpu.Extent, old gpu.Swapchain) (gpu.Swapchain, error) {
	caps, err := b.surfaceCapabilities()
	if err != nil {
		return nil, err
	}
	if extent.Empty() ||
		extent.Width < caps.MinImageExtent.Width || extent.Height < caps.MinImageExtent.Height ||
		extent.Width > caps.MaxImageExtent.Width || extent.Height > caps.MaxImageExtent.Height {
		return nil, errors.Wrapf(gpu.ErrUnsupportedDimensions, "%dx%d", extent.Width, extent.Height)
	}

	count := b.cfg.Images
	if count < caps.MinImageCount {
		count = caps.MinImageCount
	}
	if caps.MaxImageCount > 0 && count > caps.MaxImageCount {
		count = caps.MaxImageCount
	}

	preTransform := vk.SurfaceTransformIdentityBit
	if vk.SurfaceTransformFlagBits(caps.SupportedTransforms)&preTransform == 0 {
		preTransform = caps.CurrentTransform
	}
	compositeAlpha := vk.CompositeAlphaOpaqueBit
	for _, f := range []vk.CompositeAlphaFlagBits{
		vk.CompositeAlphaOpaqueBit,
		vk.CompositeAlphaPreMultipliedBit,
		vk.CompositeAlphaPostMultipliedBit,
		vk.CompositeAlphaInheritBit,
	} {
		if caps.SupportedCompositeAlpha&vk.CompositeAlphaFlags(f) != 0 {
			compositeAlpha = f
			break
		}
	}

	var oldHandle vk.Swapchain
	if prev, ok := old.(*swapchain); ok && prev != nil {
		oldHandle = prev.handle
	}

	sc := &swapchain{backend: b, extent: extent}
	ret := vk.CreateSwapchain(b.device.Handle, &vk.SwapchainCreateInfo{
		SType:           vk.StructureTypeSwapchainCreateInfo,
		Surface:         b.surface,
		MinImageCount:   count,
		ImageFormat:     b.surfaceFormat.Format,
		ImageColorSpace: b.surfaceFormat.ColorSpace,
		ImageExtent: vk.Extent2D{
			Width:  extent.Width,
			Height: extent.Height,
		},
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		PreTransform:     preTransform,
		CompositeAlpha:   compositeAlpha,
		ImageArrayLayers: 1,
		ImageSharingMode: vk.SharingModeExclusive,
		PresentMode:      b.presentMode(),
		OldSwapchain:     oldHandle,
		Clipped:          vk.True,
	}, nil, &sc.handle)
	if err := result(ret, "create swapchain"); err != nil {
		return nil, err
	}

	var n uint32
	vk.GetSwapchainImages(b.device.Handle, sc.handle, &n, nil)
	handles := make([]vk.Image, n)
	ret = vk.GetSwapchainImages(b.device.Handle, sc.handle, &n, handles)
	if err := result(ret, "get swapchain images"); err != nil {
		sc.Release()
		return nil, err
	}
	for _, h := range handles {
		img := &image{dev: b.device, handle: h, format: b.surfaceFormat.Format, extent: extent}
		if err := img.createView(vk.ImageAspectColorBit); err != nil {
			sc.Release()
			return nil, err
		}
		sc.images = append(sc.images, img)

		sem, err := createSemaphore(b.device.Handle)
		if err != nil {
			sc.Release()
			return nil, err
		}
		sc.finished = append(sc.finished, &semaphore{handle: sem})
	}
	gpu.Logger().Debug("vulkan swapchain created", "width", extent.Width, "height", extent.Height, "images", n)
	return sc, nil
}

func (b *Backend) presentMode() vk.PresentMode {
	if b.cfg.VSync {
		return vk.PresentModeFifo
	}
	var n uint32
	vk.GetPhysicalDeviceSurfacePresentModes(b.device.PhysicalDevice, b.surface, &n, nil)
	modes := make([]vk.PresentMode, n)
	vk.GetPhysicalDeviceSurfacePresentModes(b.device.PhysicalDevice, b.surface, &n, modes)
	for _, m := range modes {
		if m == vk.PresentModeMailbox {
			return m
		}
	}
	return vk.PresentModeFifo
}

func (s *swapchain) Extent() gpu.Extent       { return s.extent }
func (s *swapchain) Images() []gpu.Attachment { return s.images }

func (s *swapchain) Acquire() (uint32, gpu.Semaphore, error) {
	sem, err := s.backend.semaphores.get()
	if err != nil {
		return 0, nil, err
	}
	var idx uint32
	ret := vk.AcquireNextImage(s.backend.device.Handle, s.handle, vk.MaxUint64, sem.handle, vk.NullFence, &idx)
	switch ret {
	case vk.Success, vk.Suboptimal:
		return idx, sem, nil
	default:
		// Nothing was signaled, so the semaphore can be reused as is.
		s.backend.semaphores.put(sem.handle)
		return 0, nil, result(ret, "acquire swapchain image")
	}
}

func (s *swapchain) RenderFinished(image uint32) gpu.Semaphore {
	return s.finished[image]
}

func (s *swapchain) Release() {
	dev := s.backend.device.Handle
	for _, img := range s.images {
		img.Release()
	}
	s.images = nil
	for _, sem := range s.finished {
		vk.DestroySemaphore(dev, sem.handle, nil)
	}
	s.finished = nil
	if s.handle != vk.NullSwapchain {
		vk.DestroySwapchain(dev, s.handle, nil)
		s.handle = vk.NullSwapchain
	}
}

// framebuffer binds a chain image and the depth attachment to the frame pass.
type framebuffer struct {
	dev    vk.Device
	handle vk.Framebuffer
}

func (b *Backend) CreateFramebuffer(color, depth gpu.Attachment, extent gpu.Extent) (gpu.Framebuffer, error) {
	c, ok1 := color.(*image)
	d, ok2 := depth.(*image)
	if !ok1 || !ok2 {
		return nil, errors.AssertionFailedf("framebuffer attachments were not created by this backend")
	}
	fb := &framebuffer{dev: b.device.Handle}
	ret := vk.CreateFramebuffer(b.device.Handle, &vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      b.renderPass,
		AttachmentCount: 2,
		PAttachments:    []vk.ImageView{c.view, d.view},
		Width:           extent.Width,
		Height:          extent.Height,
		Layers:          1,
	}, nil, &fb.handle)
	if err := result(ret, "create framebuffer"); err != nil {
		return nil, err
	}
	return fb, nil
}

func (f *framebuffer) Release() {
	if f.handle != vk.NullFramebuffer {
		vk.DestroyFramebuffer(f.dev, f.handle, nil)
		f.handle = vk.NullFramebuffer
	}
}
