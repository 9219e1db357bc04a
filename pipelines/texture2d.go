package pipelines

import (
	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"

	"vkrender/gpu"
)

const Texture2DName = "texture2d"

var texture2DLayout = gpu.Layout{Groups: [][]gpu.SlotKind{
	{gpu.SlotUniformBuffer},
	{gpu.SlotSampledTexture},
}}

// Texture2D draws textured quads in pixel coordinates over the scene.
type Texture2D struct {
	pipeline   gpu.Pipeline
	groups     *gpu.GroupRegistry
	projection *Uniform[mgl32.Mat4]
}

func NewTexture2D(device gpu.Device) (*Texture2D, error) {
	pipeline, err := device.CreatePipeline(gpu.PipelineDesc{
		Name:   Texture2DName,
		Shader: texture2DShader,
		Vertex: vertexTexLayout,
		Layout: texture2DLayout,
		Blend:  true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create texture2d pipeline")
	}
	t := &Texture2D{pipeline: pipeline, groups: gpu.NewGroupRegistry(device)}
	t.projection, err = NewUniform[mgl32.Mat4](device, "texture2d.projection")
	if err != nil {
		t.Release()
		return nil, err
	}
	key := gpu.GroupKey{Pipeline: Texture2DName, Set: 0, Name: "projection"}
	if _, err := t.groups.Build(pipeline, key, t.projection.Buffer()); err != nil {
		t.Release()
		return nil, err
	}
	return t, nil
}

func (t *Texture2D) SetProjection(batch *gpu.CommandBatch, m mgl32.Mat4) error {
	return t.projection.Update(batch, m)
}

// AddTexture binds tex under name. The texture must outlive the pipeline.
func (t *Texture2D) AddTexture(name string, tex gpu.Texture) error {
	key := gpu.GroupKey{Pipeline: Texture2DName, Set: 1, Name: name}
	if _, ok := t.groups.Get(key); ok {
		return nil
	}
	_, err := t.groups.Build(t.pipeline, key, tex)
	return errors.Wrapf(err, "failed to bind texture %q", name)
}

// Draw records count vertices sampling the texture bound under name.
func (t *Texture2D) Draw(batch *gpu.CommandBatch, name string, vertices gpu.Buffer, count uint32) error {
	proj, _ := t.groups.Get(gpu.GroupKey{Pipeline: Texture2DName, Set: 0, Name: "projection"})
	tex, ok := t.groups.Get(gpu.GroupKey{Pipeline: Texture2DName, Set: 1, Name: name})
	if !ok {
		return errors.Newf("texture2d: no texture %q", name)
	}
	if err := batch.BindPipeline(t.pipeline); err != nil {
		return err
	}
	if err := batch.BindGroups(proj, tex); err != nil {
		return err
	}
	if err := batch.BindVertexBuffer(vertices); err != nil {
		return err
	}
	return batch.Draw(count, 1, 0)
}

// Release frees the groups, the uniform and the pipeline. The GPU must be
// idle.
func (t *Texture2D) Release() {
	t.groups.Release()
	if t.projection != nil {
		t.projection.Release()
	}
	t.pipeline.Release()
}

// Quad returns the two triangles covering the w by h pixel rectangle at
// (x, y), with the whole texture mapped onto it.
func Quad(x, y, w, h float32) []VertexTex {
	tl := VertexTex{Position: [2]float32{x, y}, UV: [2]float32{0, 0}}
	tr := VertexTex{Position: [2]float32{x + w, y}, UV: [2]float32{1, 0}}
	bl := VertexTex{Position: [2]float32{x, y + h}, UV: [2]float32{0, 1}}
	br := VertexTex{Position: [2]float32{x + w, y + h}, UV: [2]float32{1, 1}}
	// Counter-clockwise once y is flipped up.
	return []VertexTex{tl, bl, br, tl, br, tr}
}
