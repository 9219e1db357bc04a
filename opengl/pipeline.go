package opengl

import (
	"strings"

	"github.com/cockroachdb/errors"
	gl "github.com/go-gl/gl/v4.6-core/gl"

	"vkrender/gpu"
)

// pipeline is a linked program plus a vertex array holding the attribute
// formats. Fixed-function state is applied on bind.
type pipeline struct {
	name    string
	slots   gpu.Layout
	program uint32
	vao     uint32
	stride  int32
	depth   bool
	blend   bool
	cull    bool
}

func (p *pipeline) Name() string       { return p.name }
func (p *pipeline) Layout() gpu.Layout { return p.slots }

func (p *pipeline) Release() {
	if p.vao != 0 {
		gl.DeleteVertexArrays(1, &p.vao)
		p.vao = 0
	}
	if p.program != 0 {
		gl.DeleteProgram(p.program)
		p.program = 0
	}
}

// attribComponents returns the float count of a vertex format.
func attribComponents(f gpu.VertexFormat) int32 {
	return int32(f.Size() / 4)
}

func (b *Backend) CreatePipeline(desc gpu.PipelineDesc) (gpu.Pipeline, error) {
	if desc.Shader.GLSLVertex == "" || desc.Shader.GLSLFragment == "" {
		return nil, errors.Newf("pipeline %q has no GLSL sources", desc.Name)
	}
	for _, slots := range desc.Layout.Groups {
		if len(slots) > gpu.GLBindingStride {
			return nil, errors.Newf("pipeline %q: group of %d slots exceeds %d", desc.Name, len(slots), gpu.GLBindingStride)
		}
	}
	prog, err := newProgram(desc.Shader.GLSLVertex, desc.Shader.GLSLFragment)
	if err != nil {
		return nil, errors.Wrapf(err, "pipeline %q", desc.Name)
	}

	p := &pipeline{
		name:    desc.Name,
		slots:   desc.Layout,
		program: prog,
		stride:  int32(desc.Vertex.Stride),
		depth:   desc.DepthTest,
		blend:   desc.Blend,
		cull:    desc.CullBack,
	}
	gl.CreateVertexArrays(1, &p.vao)
	for _, a := range desc.Vertex.Attributes {
		gl.EnableVertexArrayAttrib(p.vao, a.Location)
		gl.VertexArrayAttribFormat(p.vao, a.Location, attribComponents(a.Format), gl.FLOAT, false, a.Offset)
		gl.VertexArrayAttribBinding(p.vao, a.Location, 0)
	}
	if err := checkError("create pipeline " + desc.Name); err != nil {
		p.Release()
		return nil, err
	}
	gpu.Logger().Debug("pipeline created", "name", desc.Name, "groups", len(desc.Layout.Groups))
	return p, nil
}

// bind makes p current along with its fixed-function state.
func (p *pipeline) bind() {
	gl.UseProgram(p.program)
	gl.BindVertexArray(p.vao)
	setCap(gl.DEPTH_TEST, p.depth)
	gl.DepthMask(p.depth)
	setCap(gl.BLEND, p.blend)
	if p.blend {
		gl.BlendFunc(gl.SRC_ALPHA, gl.ONE_MINUS_SRC_ALPHA)
	}
	setCap(gl.CULL_FACE, p.cull)
	if p.cull {
		gl.CullFace(gl.BACK)
		gl.FrontFace(gl.CCW)
	}
}

func setCap(c uint32, on bool) {
	if on {
		gl.Enable(c)
	} else {
		gl.Disable(c)
	}
}

func newProgram(vertSrc, fragSrc string) (uint32, error) {
	vert, err := compileShader(vertSrc, gl.VERTEX_SHADER)
	if err != nil {
		return 0, errors.Wrap(err, "vertex")
	}
	frag, err := compileShader(fragSrc, gl.FRAGMENT_SHADER)
	if err != nil {
		gl.DeleteShader(vert)
		return 0, errors.Wrap(err, "fragment")
	}

	prog := gl.CreateProgram()
	gl.AttachShader(prog, vert)
	gl.AttachShader(prog, frag)
	gl.LinkProgram(prog)
	gl.DeleteShader(vert)
	gl.DeleteShader(frag)

	var status int32
	gl.GetProgramiv(prog, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var logLen int32
		gl.GetProgramiv(prog, gl.INFO_LOG_LENGTH, &logLen)
		log := strings.Repeat("\x00", int(logLen+1))
		gl.GetProgramInfoLog(prog, logLen, nil, gl.Str(log))
		gl.DeleteProgram(prog)
		return 0, errors.Newf("link failed: %s", strings.TrimRight(log, "\x00"))
	}
	return prog, nil
}

func compileShader(src string, shaderType uint32) (uint32, error) {
	shader := gl.CreateShader(shaderType)
	csrc, free := gl.Strs(src + "\x00")
	gl.ShaderSource(shader, 1, csrc, nil)
	free()
	gl.CompileShader(shader)

	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var logLen int32
		gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &logLen)
		log := strings.Repeat("\x00", int(logLen+1))
		gl.GetShaderInfoLog(shader, logLen, nil, gl.Str(log))
		gl.DeleteShader(shader)
		return 0, errors.Newf("compile failed: %s", strings.TrimRight(log, "\x00"))
	}
	return shader, nil
}

// bindGroup keeps a group's resources until bind time, when each slot maps
// to unit set*GLBindingStride+slot.
type bindGroup struct {
	set       int
	resources []gpu.Resource
}

func (g *bindGroup) Release() { g.resources = nil }

func (b *Backend) CreateBindGroup(p gpu.Pipeline, set int, resources []gpu.Resource) (gpu.BindGroup, error) {
	if _, ok := p.(*pipeline); !ok {
		return nil, errors.AssertionFailedf("pipeline %q was not created by this backend", p.Name())
	}
	for slot, r := range resources {
		switch r.(type) {
		case *buffer, *texture:
		default:
			return nil, errors.AssertionFailedf("slot %d: resource %T was not created by this backend", slot, r)
		}
	}
	return &bindGroup{set: set, resources: append([]gpu.Resource(nil), resources...)}, nil
}

// bindingUnit is the flattened binding point of slot in group set.
func bindingUnit(set, slot int) uint32 {
	return uint32(set*gpu.GLBindingStride + slot)
}

func (g *bindGroup) bind() {
	for slot, r := range g.resources {
		unit := bindingUnit(g.set, slot)
		switch r := r.(type) {
		case *buffer:
			gl.BindBufferBase(gl.UNIFORM_BUFFER, unit, r.id)
		case *texture:
			gl.BindTextureUnit(unit, r.id)
		}
	}
}
