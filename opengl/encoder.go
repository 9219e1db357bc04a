package opengl

import (
	"github.com/cockroachdb/errors"
	gl "github.com/go-gl/gl/v4.6-core/gl"

	"vkrender/gpu"
)

// encoder issues a batch's commands on the current context.
type encoder struct {
	bound *pipeline
}

func (e *encoder) encode(batch *gpu.Batch) error {
	for _, c := range batch.Commands() {
		switch c := c.(type) {
		case gpu.CopyBufferCmd:
			src, ok1 := c.Src.(*buffer)
			dst, ok2 := c.Dst.(*buffer)
			if !ok1 || !ok2 {
				return errors.AssertionFailedf("copy between foreign buffers")
			}
			gl.CopyNamedBufferSubData(src.id, dst.id, 0, 0, int(c.Size))

		case gpu.BeginRenderPassCmd:
			gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
			gl.Viewport(0, 0, int32(c.Extent.Width), int32(c.Extent.Height))
			col := c.Clear.Color
			gl.ClearColor(col[0], col[1], col[2], col[3])
			gl.ClearDepth(float64(c.Clear.Depth))
			gl.DepthMask(true)
			gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)

		case gpu.SetViewportCmd:
			vp := c.Viewport
			gl.Viewport(int32(vp.X), int32(vp.Y), int32(vp.Width), int32(vp.Height))
			gl.DepthRangef(vp.MinDepth, vp.MaxDepth)

		case gpu.BindPipelineCmd:
			p, ok := c.Pipeline.(*pipeline)
			if !ok {
				return errors.AssertionFailedf("bind of foreign pipeline")
			}
			p.bind()
			e.bound = p

		case gpu.BindGroupCmd:
			g, ok := c.Group.Handle().(*bindGroup)
			if !ok {
				return errors.AssertionFailedf("bind of foreign group")
			}
			g.bind()

		case gpu.BindVertexBufferCmd:
			buf, ok := c.Buffer.(*buffer)
			if !ok {
				return errors.AssertionFailedf("bind of foreign vertex buffer")
			}
			if e.bound == nil {
				return errors.AssertionFailedf("vertex buffer bound without a pipeline")
			}
			gl.VertexArrayVertexBuffer(e.bound.vao, 0, buf.id, 0, e.bound.stride)

		case gpu.DrawCmd:
			gl.DrawArraysInstanced(gl.TRIANGLES, int32(c.FirstVertex), int32(c.VertexCount), int32(c.InstanceCount))

		case gpu.EndRenderPassCmd:
			e.bound = nil

		default:
			return errors.AssertionFailedf("unknown command %T", c)
		}
	}
	return nil
}
