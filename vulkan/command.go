package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"vkrender/gpu"
)

// commandPool allocates one-shot primary command buffers on the device queue.
type commandPool struct {
	dev    *Device
	handle vk.CommandPool
}

func newCommandPool(dev *Device) (*commandPool, error) {
	var pool vk.CommandPool
	ret := vk.CreateCommandPool(dev.Handle, &vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: dev.QueueFamily,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}, nil, &pool)
	if err := result(ret, "create command pool"); err != nil {
		return nil, err
	}
	return &commandPool{dev: dev, handle: pool}, nil
}

// begin allocates a command buffer and starts one-time recording.
func (p *commandPool) begin() (vk.CommandBuffer, error) {
	cmds := make([]vk.CommandBuffer, 1)
	ret := vk.AllocateCommandBuffers(p.dev.Handle, &vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        p.handle,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}, cmds)
	if err := result(ret, "allocate command buffer"); err != nil {
		return nil, err
	}
	ret = vk.BeginCommandBuffer(cmds[0], &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	})
	if err := result(ret, "begin command buffer"); err != nil {
		p.free(cmds[0])
		return nil, err
	}
	return cmds[0], nil
}

func (p *commandPool) free(cmd vk.CommandBuffer) {
	vk.FreeCommandBuffers(p.dev.Handle, p.handle, 1, []vk.CommandBuffer{cmd})
}

// submit ends recording and queues cmd. Ownership of cmd passes to the
// returned fence, which frees it on Release. On error cmd is freed here.
func (p *commandPool) submit(cmd vk.CommandBuffer, waits []gpu.Semaphore, signal gpu.Semaphore) (*fence, error) {
	if err := result(vk.EndCommandBuffer(cmd), "end command buffer"); err != nil {
		p.free(cmd)
		return nil, err
	}
	f, err := newFence(p.dev.Handle)
	if err != nil {
		p.free(cmd)
		return nil, err
	}

	waitHandles := semaphoreHandles(waits)
	stages := make([]vk.PipelineStageFlags, len(waitHandles))
	for i := range stages {
		stages[i] = vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)
	}
	var signalHandles []vk.Semaphore
	if signal != nil {
		signalHandles = semaphoreHandles([]gpu.Semaphore{signal})
	}

	ret := vk.QueueSubmit(p.dev.Queue, 1, []vk.SubmitInfo{{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   uint32(len(waitHandles)),
		PWaitSemaphores:      waitHandles,
		PWaitDstStageMask:    stages,
		CommandBufferCount:   1,
		PCommandBuffers:      []vk.CommandBuffer{cmd},
		SignalSemaphoreCount: uint32(len(signalHandles)),
		PSignalSemaphores:    signalHandles,
	}}, f.handle)
	if err := result(ret, "submit command buffer"); err != nil {
		f.Release()
		p.free(cmd)
		return nil, err
	}
	markWaited(waits)
	f.onRelease = func() { p.free(cmd) }
	return f, nil
}

func (p *commandPool) destroy() {
	vk.DestroyCommandPool(p.dev.Handle, p.handle, nil)
}

// encoder translates a gpu.Batch into Vulkan commands.
type encoder struct {
	cmd        vk.CommandBuffer
	renderPass vk.RenderPass
	// copying is set while inside a run of buffer copies.
	copying bool
}

func (e *encoder) encode(batch *gpu.Batch) error {
	for _, c := range batch.Commands() {
		if _, ok := c.(gpu.CopyBufferCmd); !ok && e.copying {
			e.endCopies()
		}
		switch c := c.(type) {
		case gpu.CopyBufferCmd:
			if !e.copying {
				e.beginCopies()
			}
			src, ok1 := c.Src.(*buffer)
			dst, ok2 := c.Dst.(*buffer)
			if !ok1 || !ok2 {
				return errors.AssertionFailedf("copy between foreign buffers")
			}
			vk.CmdCopyBuffer(e.cmd, src.handle, dst.handle, 1, []vk.BufferCopy{{Size: vk.DeviceSize(c.Size)}})

		case gpu.BeginRenderPassCmd:
			fb, ok := c.Framebuffer.(*framebuffer)
			if !ok {
				return errors.AssertionFailedf("render pass on foreign framebuffer")
			}
			col, dep := c.Clear.Color, c.Clear.Depth
			vk.CmdBeginRenderPass(e.cmd, &vk.RenderPassBeginInfo{
				SType:       vk.StructureTypeRenderPassBeginInfo,
				RenderPass:  e.renderPass,
				Framebuffer: fb.handle,
				RenderArea: vk.Rect2D{
					Extent: vk.Extent2D{Width: c.Extent.Width, Height: c.Extent.Height},
				},
				ClearValueCount: 2,
				PClearValues: []vk.ClearValue{
					vk.NewClearValue(col[:]),
					vk.NewClearDepthStencil(dep, 0),
				},
			}, vk.SubpassContentsInline)

		case gpu.SetViewportCmd:
			vp := c.Viewport
			// Negative height flips Y so clip space points up as in the
			// shader sources.
			vk.CmdSetViewport(e.cmd, 0, 1, []vk.Viewport{{
				X:        vp.X,
				Y:        vp.Y + vp.Height,
				Width:    vp.Width,
				Height:   -vp.Height,
				MinDepth: vp.MinDepth,
				MaxDepth: vp.MaxDepth,
			}})
			vk.CmdSetScissor(e.cmd, 0, 1, []vk.Rect2D{{
				Offset: vk.Offset2D{X: int32(vp.X), Y: int32(vp.Y)},
				Extent: vk.Extent2D{Width: uint32(vp.Width), Height: uint32(vp.Height)},
			}})

		case gpu.BindPipelineCmd:
			p, ok := c.Pipeline.(*pipeline)
			if !ok {
				return errors.AssertionFailedf("bind of foreign pipeline")
			}
			vk.CmdBindPipeline(e.cmd, vk.PipelineBindPointGraphics, p.handle)

		case gpu.BindGroupCmd:
			p, ok := c.Pipeline.(*pipeline)
			g, ok2 := c.Group.Handle().(*bindGroup)
			if !ok || !ok2 {
				return errors.AssertionFailedf("bind of foreign group")
			}
			vk.CmdBindDescriptorSets(e.cmd, vk.PipelineBindPointGraphics, p.layout,
				uint32(c.Set), 1, []vk.DescriptorSet{g.set}, 0, nil)

		case gpu.BindVertexBufferCmd:
			buf, ok := c.Buffer.(*buffer)
			if !ok {
				return errors.AssertionFailedf("bind of foreign vertex buffer")
			}
			vk.CmdBindVertexBuffers(e.cmd, 0, 1, []vk.Buffer{buf.handle}, []vk.DeviceSize{0})

		case gpu.DrawCmd:
			vk.CmdDraw(e.cmd, c.VertexCount, c.InstanceCount, c.FirstVertex, 0)

		case gpu.EndRenderPassCmd:
			vk.CmdEndRenderPass(e.cmd)

		default:
			return errors.AssertionFailedf("unknown command %T", c)
		}
	}
	if e.copying {
		e.endCopies()
	}
	return nil
}

// beginCopies orders a run of copies after shader reads of earlier work,
// since copy destinations are typically uniform buffers in use.
func (e *encoder) beginCopies() {
	e.copying = true
	vk.CmdPipelineBarrier(e.cmd,
		vk.PipelineStageFlags(vk.PipelineStageVertexShaderBit|vk.PipelineStageFragmentShaderBit),
		vk.PipelineStageFlags(vk.PipelineStageTransferBit),
		0, 0, nil, 0, nil, 0, nil)
}

// endCopies makes copied data visible to following shader and vertex reads.
func (e *encoder) endCopies() {
	e.copying = false
	vk.CmdPipelineBarrier(e.cmd,
		vk.PipelineStageFlags(vk.PipelineStageTransferBit),
		vk.PipelineStageFlags(vk.PipelineStageVertexInputBit|vk.PipelineStageVertexShaderBit|vk.PipelineStageFragmentShaderBit),
		0, 1, []vk.MemoryBarrier{{
			SType:         vk.StructureTypeMemoryBarrier,
			SrcAccessMask: vk.AccessFlags(vk.AccessTransferWriteBit),
			DstAccessMask: vk.AccessFlags(vk.AccessUniformReadBit | vk.AccessVertexAttributeReadBit),
		}}, 0, nil, 0, nil)
}
