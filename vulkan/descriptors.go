package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"vkrender/gpu"
)

// setBindings returns the descriptor bindings of one group. A texture slot
// takes two bindings: the sampled image at its slot and its sampler at
// slot+SamplerBindingOffset.
func setBindings(slots []gpu.SlotKind) []vk.DescriptorSetLayoutBinding {
	stages := vk.ShaderStageFlags(vk.ShaderStageVertexBit | vk.ShaderStageFragmentBit)
	out := make([]vk.DescriptorSetLayoutBinding, 0, len(slots))
	for i, k := range slots {
		switch k {
		case gpu.SlotSampledTexture:
			out = append(out, vk.DescriptorSetLayoutBinding{
				Binding:         uint32(i),
				DescriptorType:  vk.DescriptorTypeSampledImage,
				DescriptorCount: 1,
				StageFlags:      stages,
			}, vk.DescriptorSetLayoutBinding{
				Binding:         uint32(i + gpu.SamplerBindingOffset),
				DescriptorType:  vk.DescriptorTypeSampler,
				DescriptorCount: 1,
				StageFlags:      stages,
			})
		default:
			out = append(out, vk.DescriptorSetLayoutBinding{
				Binding:         uint32(i),
				DescriptorType:  vk.DescriptorTypeUniformBuffer,
				DescriptorCount: 1,
				StageFlags:      stages,
			})
		}
	}
	return out
}

// createSetLayouts creates one descriptor set layout per group of layout.
func createSetLayouts(dev vk.Device, layout gpu.Layout) ([]vk.DescriptorSetLayout, error) {
	out := make([]vk.DescriptorSetLayout, 0, len(layout.Groups))
	for set, slots := range layout.Groups {
		if len(slots) > gpu.GLBindingStride {
			destroySetLayouts(dev, out)
			return nil, errors.Newf("set %d: %d slots exceed %d", set, len(slots), gpu.GLBindingStride)
		}
		bindings := setBindings(slots)
		var l vk.DescriptorSetLayout
		ret := vk.CreateDescriptorSetLayout(dev, &vk.DescriptorSetLayoutCreateInfo{
			SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
			BindingCount: uint32(len(bindings)),
			PBindings:    bindings,
		}, nil, &l)
		if err := result(ret, "create descriptor set layout"); err != nil {
			destroySetLayouts(dev, out)
			return nil, errors.Wrapf(err, "set %d", set)
		}
		out = append(out, l)
	}
	return out, nil
}

func destroySetLayouts(dev vk.Device, layouts []vk.DescriptorSetLayout) {
	for _, l := range layouts {
		vk.DestroyDescriptorSetLayout(dev, l, nil)
	}
}

// descriptorPoolSize is the number of sets each descriptor pool holds.
const descriptorPoolSize = 64

// descriptorAllocator hands out descriptor sets, adding pools as they fill.
type descriptorAllocator struct {
	dev   vk.Device
	pools []vk.DescriptorPool
}

func (a *descriptorAllocator) newPool() (vk.DescriptorPool, error) {
	var pool vk.DescriptorPool
	ret := vk.CreateDescriptorPool(a.dev, &vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		Flags:         vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateFreeDescriptorSetBit),
		MaxSets:       descriptorPoolSize,
		PoolSizeCount: 3,
		PPoolSizes: []vk.DescriptorPoolSize{
			{Type: vk.DescriptorTypeUniformBuffer, DescriptorCount: descriptorPoolSize * gpu.GLBindingStride},
			{Type: vk.DescriptorTypeSampledImage, DescriptorCount: descriptorPoolSize * gpu.GLBindingStride},
			{Type: vk.DescriptorTypeSampler, DescriptorCount: descriptorPoolSize * gpu.GLBindingStride},
		},
	}, nil, &pool)
	if err := result(ret, "create descriptor pool"); err != nil {
		return pool, err
	}
	a.pools = append(a.pools, pool)
	gpu.Logger().Debug("descriptor pool added", "pools", len(a.pools))
	return pool, nil
}

func (a *descriptorAllocator) allocate(layout vk.DescriptorSetLayout) (vk.DescriptorPool, vk.DescriptorSet, error) {
	try := func(pool vk.DescriptorPool) (vk.DescriptorSet, vk.Result) {
		var set vk.DescriptorSet
		ret := vk.AllocateDescriptorSets(a.dev, &vk.DescriptorSetAllocateInfo{
			SType:              vk.StructureTypeDescriptorSetAllocateInfo,
			DescriptorPool:     pool,
			DescriptorSetCount: 1,
			PSetLayouts:        []vk.DescriptorSetLayout{layout},
		}, &set)
		return set, ret
	}
	for _, pool := range a.pools {
		set, ret := try(pool)
		if ret == vk.Success {
			return pool, set, nil
		}
		if ret != vk.ErrorOutOfPoolMemory && ret != vk.ErrorFragmentedPool {
			return pool, set, result(ret, "allocate descriptor set")
		}
	}
	pool, err := a.newPool()
	if err != nil {
		return pool, nil, err
	}
	set, ret := try(pool)
	return pool, set, result(ret, "allocate descriptor set")
}

func (a *descriptorAllocator) destroy() {
	for _, p := range a.pools {
		vk.DestroyDescriptorPool(a.dev, p, nil)
	}
	a.pools = nil
}

// bindGroup is a descriptor set written with a group's resources.
type bindGroup struct {
	dev  vk.Device
	pool vk.DescriptorPool
	set  vk.DescriptorSet
}

func (g *bindGroup) Release() {
	if g.set == nil {
		return
	}
	vk.FreeDescriptorSets(g.dev, g.pool, 1, &g.set)
	g.set = nil
}

// CreateBindGroup allocates a descriptor set for group set of p and writes
// resources to its bindings in slot order.
func (b *Backend) CreateBindGroup(p gpu.Pipeline, set int, resources []gpu.Resource) (gpu.BindGroup, error) {
	pl, ok := p.(*pipeline)
	if !ok {
		return nil, errors.AssertionFailedf("pipeline %q was not created by this backend", p.Name())
	}
	if set < 0 || set >= len(pl.setLayouts) {
		return nil, errors.Wrapf(gpu.ErrLayoutMismatch, "pipeline %q has no set %d", pl.name, set)
	}

	pool, ds, err := b.descriptors.allocate(pl.setLayouts[set])
	if err != nil {
		return nil, err
	}

	writes := make([]vk.WriteDescriptorSet, 0, 2*len(resources))
	for slot, r := range resources {
		switch r := r.(type) {
		case *buffer:
			writes = append(writes, vk.WriteDescriptorSet{
				SType:           vk.StructureTypeWriteDescriptorSet,
				DstSet:          ds,
				DstBinding:      uint32(slot),
				DescriptorCount: 1,
				DescriptorType:  vk.DescriptorTypeUniformBuffer,
				PBufferInfo: []vk.DescriptorBufferInfo{{
					Buffer: r.handle,
					Range:  vk.DeviceSize(r.size),
				}},
			})
		case *texture:
			writes = append(writes, vk.WriteDescriptorSet{
				SType:           vk.StructureTypeWriteDescriptorSet,
				DstSet:          ds,
				DstBinding:      uint32(slot),
				DescriptorCount: 1,
				DescriptorType:  vk.DescriptorTypeSampledImage,
				PImageInfo: []vk.DescriptorImageInfo{{
					ImageView:   r.view,
					ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal,
				}},
			}, vk.WriteDescriptorSet{
				SType:           vk.StructureTypeWriteDescriptorSet,
				DstSet:          ds,
				DstBinding:      uint32(slot + gpu.SamplerBindingOffset),
				DescriptorCount: 1,
				DescriptorType:  vk.DescriptorTypeSampler,
				PImageInfo:      []vk.DescriptorImageInfo{{Sampler: r.sampler}},
			})
		default:
			vk.FreeDescriptorSets(b.device.Handle, pool, 1, &ds)
			return nil, errors.AssertionFailedf("slot %d: resource %T was not created by this backend", slot, r)
		}
	}
	vk.UpdateDescriptorSets(b.device.Handle, uint32(len(writes)), writes, 0, nil)
	return &bindGroup{dev: b.device.Handle, pool: pool, set: ds}, nil
}
