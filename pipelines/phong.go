// Package pipelines builds the renderer's graphics pipelines on top of the
// gpu engine: the lit Phong mesh pipeline, the textured 2D pipeline and the
// unlit coloured 3D pipeline, along with the uniform blocks they read.
package pipelines

import (
	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"

	"vkrender/gpu"
)

const PhongName = "phong"

const (
	phongProjectionSet = iota
	phongMaterialSet
	phongLightSet
	phongTransformSet
)

var phongLayout = gpu.Layout{Groups: [][]gpu.SlotKind{
	phongProjectionSet: {gpu.SlotUniformBuffer},
	phongMaterialSet:   {gpu.SlotUniformBuffer},
	phongLightSet:      {gpu.SlotUniformBuffer},
	phongTransformSet:  {gpu.SlotUniformBuffer},
}}

// Phong draws lit triangle meshes. Projection, light and transform are
// shared by every draw; each named material owns its own group.
type Phong struct {
	device   gpu.Device
	pipeline gpu.Pipeline
	groups   *gpu.GroupRegistry

	projection *Uniform[mgl32.Mat4]
	light      *Uniform[Light]
	transform  *Uniform[Transform]
	materials  map[string]*Uniform[Material]
}

// NewPhong creates the pipeline and its shared groups.
func NewPhong(device gpu.Device) (*Phong, error) {
	pipeline, err := device.CreatePipeline(gpu.PipelineDesc{
		Name:      PhongName,
		Shader:    phongShader,
		Vertex:    vertexPhongLayout,
		Layout:    phongLayout,
		DepthTest: true,
		CullBack:  true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create phong pipeline")
	}
	p := &Phong{
		device:    device,
		pipeline:  pipeline,
		groups:    gpu.NewGroupRegistry(device),
		materials: make(map[string]*Uniform[Material]),
	}
	if err := p.init(); err != nil {
		p.Release()
		return nil, err
	}
	return p, nil
}

func (p *Phong) init() error {
	var err error
	if p.projection, err = NewUniform[mgl32.Mat4](p.device, "phong.projection"); err != nil {
		return err
	}
	if p.light, err = NewUniform[Light](p.device, "phong.light"); err != nil {
		return err
	}
	if p.transform, err = NewUniform[Transform](p.device, "phong.transform"); err != nil {
		return err
	}
	shared := []struct {
		set    int
		name   string
		buffer gpu.Buffer
	}{
		{phongProjectionSet, "projection", p.projection.Buffer()},
		{phongLightSet, "light", p.light.Buffer()},
		{phongTransformSet, "transform", p.transform.Buffer()},
	}
	for _, s := range shared {
		key := gpu.GroupKey{Pipeline: PhongName, Set: s.set, Name: s.name}
		if _, err := p.groups.Build(p.pipeline, key, s.buffer); err != nil {
			return errors.Wrapf(err, "failed to bind %s", s.name)
		}
	}
	return nil
}

func (p *Phong) Pipeline() gpu.Pipeline { return p.pipeline }

func (p *Phong) SetProjection(batch *gpu.CommandBatch, m mgl32.Mat4) error {
	return p.projection.Update(batch, m)
}

func (p *Phong) SetLight(batch *gpu.CommandBatch, l Light) error {
	return p.light.Update(batch, l)
}

func (p *Phong) SetTransform(batch *gpu.CommandBatch, t Transform) error {
	return p.transform.Update(batch, t)
}

// SetMaterial records the value of material name, creating its uniform and
// group the first time the name is seen.
func (p *Phong) SetMaterial(batch *gpu.CommandBatch, name string, m Material) error {
	u, ok := p.materials[name]
	if !ok {
		var err error
		u, err = NewUniform[Material](p.device, "phong.material."+name)
		if err != nil {
			return err
		}
		key := gpu.GroupKey{Pipeline: PhongName, Set: phongMaterialSet, Name: name}
		if _, err := p.groups.Build(p.pipeline, key, u.Buffer()); err != nil {
			u.Release()
			return errors.Wrapf(err, "failed to bind material %q", name)
		}
		p.materials[name] = u
	}
	return u.Update(batch, m)
}

// HasMaterial reports whether name has been set.
func (p *Phong) HasMaterial(name string) bool {
	_, ok := p.materials[name]
	return ok
}

func (p *Phong) group(set int, name string) (*gpu.BoundGroup, error) {
	g, ok := p.groups.Get(gpu.GroupKey{Pipeline: PhongName, Set: set, Name: name})
	if !ok {
		return nil, errors.Newf("phong: no group %q in set %d", name, set)
	}
	return g, nil
}

// Draw records count vertices of vertices shaded with material. It must be
// recorded inside the render pass.
func (p *Phong) Draw(batch *gpu.CommandBatch, material string, vertices gpu.Buffer, count uint32) error {
	groups := make([]*gpu.BoundGroup, len(phongLayout.Groups))
	names := [...]string{
		phongProjectionSet: "projection",
		phongMaterialSet:   material,
		phongLightSet:      "light",
		phongTransformSet:  "transform",
	}
	for set, name := range names {
		g, err := p.group(set, name)
		if err != nil {
			return err
		}
		groups[set] = g
	}
	if err := batch.BindPipeline(p.pipeline); err != nil {
		return err
	}
	if err := batch.BindGroups(groups...); err != nil {
		return err
	}
	if err := batch.BindVertexBuffer(vertices); err != nil {
		return err
	}
	return batch.Draw(count, 1, 0)
}

// Release frees the groups, uniforms and pipeline. The GPU must be idle.
func (p *Phong) Release() {
	p.groups.Release()
	for name, u := range p.materials {
		u.Release()
		delete(p.materials, name)
	}
	if p.projection != nil {
		p.projection.Release()
	}
	if p.light != nil {
		p.light.Release()
	}
	if p.transform != nil {
		p.transform.Release()
	}
	p.pipeline.Release()
}
