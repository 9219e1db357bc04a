// Package scene turns asset files into per-material Phong vertex streams.
package scene

import (
	"math"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"

	"vkrender/pipelines"
)

// DefaultMaterialName is used for primitives without a material.
const DefaultMaterialName = "default"

// Mesh is a non-indexed triangle list drawn with a single material.
type Mesh struct {
	Material string
	Vertices []pipelines.VertexPhong
}

// Model groups triangles by material. Every Mesh.Material names an entry of
// Materials.
type Model struct {
	Name      string
	Meshes    []Mesh
	Materials map[string]pipelines.Material
}

// Load picks the loader from the file extension.
func Load(path string) (*Model, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".gltf", ".glb":
		return LoadGLTF(path)
	case ".obj":
		return LoadOBJ(path)
	default:
		return nil, errors.Newf("%s: unsupported model format %q", path, ext)
	}
}

func newModel(name string) *Model {
	return &Model{Name: name, Materials: make(map[string]pipelines.Material)}
}

// add appends vertices to the mesh of material, creating it if needed.
func (m *Model) add(material string, vertices ...pipelines.VertexPhong) {
	for i := range m.Meshes {
		if m.Meshes[i].Material == material {
			m.Meshes[i].Vertices = append(m.Meshes[i].Vertices, vertices...)
			return
		}
	}
	m.Meshes = append(m.Meshes, Mesh{Material: material, Vertices: vertices})
}

// MaterialNames returns the material names in sorted order.
func (m *Model) MaterialNames() []string {
	names := make([]string, 0, len(m.Materials))
	for n := range m.Materials {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// VertexCount returns the total number of vertices.
func (m *Model) VertexCount() int {
	n := 0
	for _, mesh := range m.Meshes {
		n += len(mesh.Vertices)
	}
	return n
}

// Bounds returns the axis-aligned box around every vertex. ok is false for
// an empty model.
func (m *Model) Bounds() (lo, hi mgl32.Vec3, ok bool) {
	inf := float32(math.Inf(1))
	lo = mgl32.Vec3{inf, inf, inf}
	hi = mgl32.Vec3{-inf, -inf, -inf}
	for _, mesh := range m.Meshes {
		for _, v := range mesh.Vertices {
			for i := 0; i < 3; i++ {
				lo[i] = min(lo[i], v.Position[i])
				hi[i] = max(hi[i], v.Position[i])
			}
			ok = true
		}
	}
	return lo, hi, ok
}

// Fit returns the model matrix that centres the model on the origin and
// scales its largest extent to size.
func (m *Model) Fit(size float32) mgl32.Mat4 {
	lo, hi, ok := m.Bounds()
	if !ok {
		return mgl32.Ident4()
	}
	ext := hi.Sub(lo)
	largest := max(ext[0], ext[1], ext[2])
	if largest == 0 {
		largest = 1
	}
	centre := lo.Add(hi).Mul(0.5)
	s := size / largest
	return mgl32.Scale3D(s, s, s).Mul4(mgl32.Translate3D(-centre[0], -centre[1], -centre[2]))
}
