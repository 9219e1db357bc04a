package pipelines

import (
	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"

	"vkrender/gpu"
)

const Color3DName = "color3d"

var color3DLayout = gpu.Layout{Groups: [][]gpu.SlotKind{
	{gpu.SlotUniformBuffer},
}}

// Color3D draws unlit vertex-coloured triangles. Its single uniform is the
// full model-view-projection matrix.
type Color3D struct {
	pipeline gpu.Pipeline
	mvp      *Uniform[mgl32.Mat4]
	group    *gpu.BoundGroup
}

func NewColor3D(device gpu.Device) (*Color3D, error) {
	pipeline, err := device.CreatePipeline(gpu.PipelineDesc{
		Name:      Color3DName,
		Shader:    color3DShader,
		Vertex:    vertexColorLayout,
		Layout:    color3DLayout,
		DepthTest: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create color3d pipeline")
	}
	c := &Color3D{pipeline: pipeline}
	if c.mvp, err = NewUniform[mgl32.Mat4](device, "color3d.mvp"); err != nil {
		c.Release()
		return nil, err
	}
	if c.group, err = gpu.BuildGroup(device, pipeline, 0, c.mvp.Buffer()); err != nil {
		c.Release()
		return nil, err
	}
	return c, nil
}

func (c *Color3D) SetMVP(batch *gpu.CommandBatch, m mgl32.Mat4) error {
	return c.mvp.Update(batch, m)
}

func (c *Color3D) Draw(batch *gpu.CommandBatch, vertices gpu.Buffer, count uint32) error {
	if err := batch.BindPipeline(c.pipeline); err != nil {
		return err
	}
	if err := batch.BindGroups(c.group); err != nil {
		return err
	}
	if err := batch.BindVertexBuffer(vertices); err != nil {
		return err
	}
	return batch.Draw(count, 1, 0)
}

func (c *Color3D) Release() {
	if c.group != nil {
		c.group.Release()
	}
	if c.mvp != nil {
		c.mvp.Release()
	}
	c.pipeline.Release()
}

// Ground returns a size by size square on the y = 0 plane centred on the
// origin, facing up.
func Ground(size float32, color [3]float32) []VertexColor {
	h := size / 2
	v := func(x, z float32) VertexColor {
		return VertexColor{Position: [3]float32{x, 0, z}, Color: color}
	}
	return []VertexColor{
		v(-h, -h), v(-h, h), v(h, h),
		v(-h, -h), v(h, h), v(h, -h),
	}
}
