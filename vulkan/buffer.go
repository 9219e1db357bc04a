package vulkan

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"vkrender/gpu"
)

// buffer is a gpu.Buffer. Host-visible buffers stay persistently mapped.
type buffer struct {
	dev    *Device
	label  string
	handle vk.Buffer
	memory vk.DeviceMemory
	size   uint64
	mapped unsafe.Pointer
}

func bufferUsage(u gpu.BufferUsage) vk.BufferUsageFlags {
	var flags vk.BufferUsageFlagBits
	if u&gpu.BufferUsageTransferSrc != 0 {
		flags |= vk.BufferUsageTransferSrcBit
	}
	if u&gpu.BufferUsageTransferDst != 0 {
		flags |= vk.BufferUsageTransferDstBit
	}
	if u&gpu.BufferUsageUniform != 0 {
		flags |= vk.BufferUsageUniformBufferBit
	}
	if u&gpu.BufferUsageVertex != 0 {
		flags |= vk.BufferUsageVertexBufferBit
	}
	return vk.BufferUsageFlags(flags)
}

// newBuffer creates a buffer and binds dedicated memory to it.
func newBuffer(dev *Device, desc gpu.BufferDesc) (*buffer, error) {
	if desc.Size == 0 {
		return nil, errors.AssertionFailedf("buffer %q has zero size", desc.Label)
	}
	b := &buffer{dev: dev, label: desc.Label, size: desc.Size}

	ret := vk.CreateBuffer(dev.Handle, &vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(desc.Size),
		Usage:       bufferUsage(desc.Usage),
		SharingMode: vk.SharingModeExclusive,
	}, nil, &b.handle)
	if err := result(ret, "create buffer "+desc.Label); err != nil {
		return nil, err
	}

	var reqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(dev.Handle, b.handle, &reqs)
	reqs.Deref()

	props := vk.MemoryPropertyDeviceLocalBit
	if desc.HostVisible {
		props = vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit
	}
	typeIndex, err := dev.FindMemoryType(reqs.MemoryTypeBits, props)
	if err != nil {
		b.Release()
		return nil, errors.Wrapf(err, "buffer %q", desc.Label)
	}

	ret = vk.AllocateMemory(dev.Handle, &vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  reqs.Size,
		MemoryTypeIndex: typeIndex,
	}, nil, &b.memory)
	if err := result(ret, "allocate buffer memory"); err != nil {
		b.Release()
		return nil, err
	}
	vk.BindBufferMemory(dev.Handle, b.handle, b.memory, 0)

	if desc.HostVisible {
		var ptr unsafe.Pointer
		ret = vk.MapMemory(dev.Handle, b.memory, 0, vk.DeviceSize(desc.Size), 0, &ptr)
		if err := result(ret, "map buffer memory"); err != nil {
			b.Release()
			return nil, err
		}
		b.mapped = ptr
	}
	return b, nil
}

func (b *buffer) Size() uint64 { return b.size }

func (b *buffer) Write(offset uint64, data []byte) error {
	if b.mapped == nil {
		return errors.AssertionFailedf("buffer %q is not host visible", b.label)
	}
	if offset+uint64(len(data)) > b.size {
		return errors.AssertionFailedf("write of %d bytes at %d overflows buffer %q of %d bytes",
			len(data), offset, b.label, b.size)
	}
	vk.Memcopy(unsafe.Add(b.mapped, offset), data)
	return nil
}

func (b *buffer) Release() {
	if b.mapped != nil {
		vk.UnmapMemory(b.dev.Handle, b.memory)
		b.mapped = nil
	}
	if b.handle != vk.NullBuffer {
		vk.DestroyBuffer(b.dev.Handle, b.handle, nil)
		b.handle = vk.NullBuffer
	}
	if b.memory != vk.NullDeviceMemory {
		vk.FreeMemory(b.dev.Handle, b.memory, nil)
		b.memory = vk.NullDeviceMemory
	}
}
