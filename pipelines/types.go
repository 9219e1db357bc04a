package pipelines

import (
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"

	"vkrender/gpu"
)

// Material is the Phong surface description as laid out in the uniform
// buffer of group 1.
type Material struct {
	Emission  [4]float32
	Ambient   [4]float32
	Diffuse   [4]float32
	Specular  [4]float32
	Shininess float32
	_         [3]float32
}

// DefaultMaterial is a matte grey.
var DefaultMaterial = Material{
	Ambient:   [4]float32{0.1, 0.1, 0.1, 1},
	Diffuse:   [4]float32{0.7, 0.7, 0.7, 1},
	Specular:  [4]float32{0.3, 0.3, 0.3, 1},
	Shininess: 32,
}

// Light is a point light in world space.
type Light struct {
	Position  [3]float32
	_         float32
	Intensity [3]float32
	_         float32
}

// DefaultLight sits high above the origin at full white intensity.
func DefaultLight() Light {
	return Light{
		Position:  [3]float32{0, 100, 0},
		Intensity: [3]float32{1, 1, 1},
	}
}

// Transform carries the model and view matrices and the matrix that takes
// normals into view space.
type Transform struct {
	Model  mgl32.Mat4
	View   mgl32.Mat4
	Normal mgl32.Mat4
}

// NewTransform derives the normal matrix from model and view.
func NewTransform(model, view mgl32.Mat4) Transform {
	return Transform{
		Model:  model,
		View:   view,
		Normal: view.Mul4(model).Inv().Transpose(),
	}
}

// VertexPhong is a lit mesh vertex.
type VertexPhong struct {
	Position [3]float32
	Normal   [3]float32
	UV       [2]float32
}

// VertexTex is a textured 2D vertex in pixel coordinates.
type VertexTex struct {
	Position [2]float32
	UV       [2]float32
}

// VertexColor is an unlit coloured 3D vertex.
type VertexColor struct {
	Position [3]float32
	Color    [3]float32
}

var (
	vertexPhongLayout = gpu.VertexLayout{
		Stride: uint32(unsafe.Sizeof(VertexPhong{})),
		Attributes: []gpu.VertexAttribute{
			{Location: 0, Format: gpu.VertexFloat3, Offset: uint32(unsafe.Offsetof(VertexPhong{}.Position))},
			{Location: 1, Format: gpu.VertexFloat3, Offset: uint32(unsafe.Offsetof(VertexPhong{}.Normal))},
			{Location: 2, Format: gpu.VertexFloat2, Offset: uint32(unsafe.Offsetof(VertexPhong{}.UV))},
		},
	}
	vertexTexLayout = gpu.VertexLayout{
		Stride: uint32(unsafe.Sizeof(VertexTex{})),
		Attributes: []gpu.VertexAttribute{
			{Location: 0, Format: gpu.VertexFloat2, Offset: uint32(unsafe.Offsetof(VertexTex{}.Position))},
			{Location: 1, Format: gpu.VertexFloat2, Offset: uint32(unsafe.Offsetof(VertexTex{}.UV))},
		},
	}
	vertexColorLayout = gpu.VertexLayout{
		Stride: uint32(unsafe.Sizeof(VertexColor{})),
		Attributes: []gpu.VertexAttribute{
			{Location: 0, Format: gpu.VertexFloat3, Offset: uint32(unsafe.Offsetof(VertexColor{}.Position))},
			{Location: 1, Format: gpu.VertexFloat3, Offset: uint32(unsafe.Offsetof(VertexColor{}.Color))},
		},
	}
)

// VertexBuffer creates a host-visible vertex buffer filled with vertices.
func VertexBuffer[V any](device gpu.Device, label string, vertices []V) (gpu.Buffer, error) {
	var zero V
	size := uint64(len(vertices)) * uint64(unsafe.Sizeof(zero))
	buf, err := device.CreateBuffer(gpu.BufferDesc{
		Label:       label,
		Size:        size,
		Usage:       gpu.BufferUsageVertex,
		HostVisible: true,
	})
	if err != nil {
		return nil, err
	}
	if size == 0 {
		return buf, nil
	}
	data := unsafe.Slice((*byte)(unsafe.Pointer(&vertices[0])), size)
	if err := buf.Write(0, data); err != nil {
		buf.Release()
		return nil, err
	}
	return buf, nil
}
