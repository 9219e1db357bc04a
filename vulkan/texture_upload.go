package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"vkrender/gpu"
)

// image is a 2D image with a single view. Swapchain images are not owned:
// only their view is destroyed on Release.
type image struct {
	dev    *Device
	handle vk.Image
	memory vk.DeviceMemory
	view   vk.ImageView
	format vk.Format
	extent gpu.Extent
	owned  bool
}

func newImage(dev *Device, extent gpu.Extent, format vk.Format, usage vk.ImageUsageFlagBits, aspect vk.ImageAspectFlagBits) (*image, error) {
	img := &image{dev: dev, format: format, extent: extent, owned: true}

	ret := vk.CreateImage(dev.Handle, &vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    format,
		Extent: vk.Extent3D{
			Width:  extent.Width,
			Height: extent.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         vk.ImageUsageFlags(usage),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}, nil, &img.handle)
	if err := result(ret, "create image"); err != nil {
		return nil, err
	}

	var reqs vk.MemoryRequirements
	vk.GetImageMemoryRequirements(dev.Handle, img.handle, &reqs)
	reqs.Deref()
	typeIndex, err := dev.FindMemoryType(reqs.MemoryTypeBits, vk.MemoryPropertyDeviceLocalBit)
	if err != nil {
		img.Release()
		return nil, err
	}
	ret = vk.AllocateMemory(dev.Handle, &vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  reqs.Size,
		MemoryTypeIndex: typeIndex,
	}, nil, &img.memory)
	if err := result(ret, "allocate image memory"); err != nil {
		img.Release()
		return nil, err
	}
	vk.BindImageMemory(dev.Handle, img.handle, img.memory, 0)

	if err := img.createView(aspect); err != nil {
		img.Release()
		return nil, err
	}
	return img, nil
}

func (i *image) createView(aspect vk.ImageAspectFlagBits) error {
	ret := vk.CreateImageView(i.dev.Handle, &vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    i.handle,
		ViewType: vk.ImageViewType2d,
		Format:   i.format,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vk.ImageAspectFlags(aspect),
			LevelCount: 1,
			LayerCount: 1,
		},
	}, nil, &i.view)
	return result(ret, "create image view")
}

func (i *image) Extent() gpu.Extent { return i.extent }

func (i *image) Release() {
	if i.view != vk.NullImageView {
		vk.DestroyImageView(i.dev.Handle, i.view, nil)
		i.view = vk.NullImageView
	}
	if !i.owned {
		return
	}
	if i.handle != vk.NullImage {
		vk.DestroyImage(i.dev.Handle, i.handle, nil)
		i.handle = vk.NullImage
	}
	if i.memory != vk.NullDeviceMemory {
		vk.FreeMemory(i.dev.Handle, i.memory, nil)
		i.memory = vk.NullDeviceMemory
	}
}

// texture is a sampled image. The sampler is shared and owned by the backend.
type texture struct {
	*image
	sampler vk.Sampler
}

// CreateDepthAttachment creates a depth image at extent.
func (b *Backend) CreateDepthAttachment(extent gpu.Extent) (gpu.Attachment, error) {
	img, err := newImage(b.device, extent, b.depthFormat,
		vk.ImageUsageDepthStencilAttachmentBit, vk.ImageAspectDepthBit)
	if err != nil {
		return nil, errors.Wrap(err, "depth attachment")
	}
	return img, nil
}

// UploadTexture copies pixels through a staging buffer into a new sampled
// image. The copy runs asynchronously; the returned signal frees the staging
// buffer and command buffer once it resolves.
func (b *Backend) UploadTexture(desc gpu.TextureDesc, pixels []byte) (gpu.Texture, gpu.Signal, error) {
	extent := gpu.Extent{Width: desc.Width, Height: desc.Height}
	if extent.Empty() {
		return nil, nil, errors.AssertionFailedf("texture %q has empty extent", desc.Label)
	}
	if want := int(desc.Width) * int(desc.Height) * 4; len(pixels) != want {
		return nil, nil, errors.AssertionFailedf("texture %q: got %d bytes of RGBA8, want %d", desc.Label, len(pixels), want)
	}

	staging, err := newBuffer(b.device, gpu.BufferDesc{
		Label:       desc.Label + " staging",
		Size:        uint64(len(pixels)),
		Usage:       gpu.BufferUsageTransferSrc,
		HostVisible: true,
	})
	if err != nil {
		return nil, nil, err
	}
	if err := staging.Write(0, pixels); err != nil {
		staging.Release()
		return nil, nil, err
	}

	img, err := newImage(b.device, extent, vk.FormatR8g8b8a8Srgb,
		vk.ImageUsageTransferDstBit|vk.ImageUsageSampledBit, vk.ImageAspectColorBit)
	if err != nil {
		staging.Release()
		return nil, nil, errors.Wrapf(err, "texture %q", desc.Label)
	}

	cmd, err := b.commands.begin()
	if err != nil {
		staging.Release()
		img.Release()
		return nil, nil, err
	}
	transitionImage(cmd, img.handle, vk.ImageLayoutUndefined, vk.ImageLayoutTransferDstOptimal)
	vk.CmdCopyBufferToImage(cmd, staging.handle, img.handle, vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{{
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LayerCount: 1,
		},
		ImageExtent: vk.Extent3D{Width: desc.Width, Height: desc.Height, Depth: 1},
	}})
	transitionImage(cmd, img.handle, vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutShaderReadOnlyOptimal)

	f, err := b.commands.submit(cmd, nil, nil)
	if err != nil {
		staging.Release()
		img.Release()
		return nil, nil, errors.Wrapf(err, "upload texture %q", desc.Label)
	}
	gpu.Logger().Debug("texture upload queued", "label", desc.Label, "width", desc.Width, "height", desc.Height)
	return &texture{image: img, sampler: b.sampler}, gpu.FenceSignal(f, staging.Release), nil
}

// transitionImage records a layout transition for the upload path.
func transitionImage(cmd vk.CommandBuffer, img vk.Image, from, to vk.ImageLayout) {
	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		OldLayout:           from,
		NewLayout:           to,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               img,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LevelCount: 1,
			LayerCount: 1,
		},
	}
	var src, dst vk.PipelineStageFlagBits
	if from == vk.ImageLayoutUndefined {
		barrier.DstAccessMask = vk.AccessFlags(vk.AccessTransferWriteBit)
		src, dst = vk.PipelineStageTopOfPipeBit, vk.PipelineStageTransferBit
	} else {
		barrier.SrcAccessMask = vk.AccessFlags(vk.AccessTransferWriteBit)
		barrier.DstAccessMask = vk.AccessFlags(vk.AccessShaderReadBit)
		src, dst = vk.PipelineStageTransferBit, vk.PipelineStageFragmentShaderBit
	}
	vk.CmdPipelineBarrier(cmd, vk.PipelineStageFlags(src), vk.PipelineStageFlags(dst), 0,
		0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
}

func createSampler(dev vk.Device) (vk.Sampler, error) {
	var s vk.Sampler
	ret := vk.CreateSampler(dev, &vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               vk.FilterLinear,
		MinFilter:               vk.FilterLinear,
		MipmapMode:              vk.SamplerMipmapModeLinear,
		AddressModeU:            vk.SamplerAddressModeRepeat,
		AddressModeV:            vk.SamplerAddressModeRepeat,
		AddressModeW:            vk.SamplerAddressModeRepeat,
		MaxAnisotropy:           1,
		CompareOp:               vk.CompareOpAlways,
		BorderColor:             vk.BorderColorIntOpaqueBlack,
		MaxLod:                  1,
		UnnormalizedCoordinates: vk.False,
	}, nil, &s)
	return s, result(ret, "create sampler")
}
