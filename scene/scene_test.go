package scene

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vkrender/pipelines"
)

func TestCubeWindingMatchesNormals(t *testing.T) {
	m := Cube()
	require.Len(t, m.Meshes, 1)
	verts := m.Meshes[0].Vertices
	require.Len(t, verts, 36)
	assert.Contains(t, m.Materials, DefaultMaterialName)

	for i := 0; i < len(verts); i += 3 {
		tri := [3]pipelines.VertexPhong{verts[i], verts[i+1], verts[i+2]}
		geo := mgl32.Vec3(faceNormal(tri))
		n := mgl32.Vec3(verts[i].Normal)
		assert.InDelta(t, 1, geo.Dot(n), 1e-5, "triangle %d", i/3)
	}
}

func TestBoundsAndFit(t *testing.T) {
	m := Cube()
	lo, hi, ok := m.Bounds()
	require.True(t, ok)
	assert.Equal(t, mgl32.Vec3{-0.5, -0.5, -0.5}, lo)
	assert.Equal(t, mgl32.Vec3{0.5, 0.5, 0.5}, hi)

	fit := m.Fit(2)
	corner := fit.Mul4x1(mgl32.Vec4{0.5, 0.5, 0.5, 1})
	assert.True(t, corner.ApproxEqual(mgl32.Vec4{1, 1, 1, 1}))

	_, _, ok = newModel("empty").Bounds()
	assert.False(t, ok)
	assert.Equal(t, mgl32.Ident4(), newModel("empty").Fit(1))
}

func TestMaterialNamesSorted(t *testing.T) {
	m := newModel("m")
	m.Materials["b"] = pipelines.DefaultMaterial
	m.Materials["a"] = pipelines.DefaultMaterial
	assert.Equal(t, []string{"a", "b"}, m.MaterialNames())
}

func triangleDoc() *gltf.Document {
	doc := gltf.NewDocument()
	pos := modeler.WritePosition(doc, [][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}})
	idx := modeler.WriteIndices(doc, []uint16{0, 1, 2})

	doc.Materials = []*gltf.Material{{
		Name: "red",
		PBRMetallicRoughness: &gltf.PBRMetallicRoughness{
			BaseColorFactor: &[4]float64{1, 0, 0, 1},
		},
	}}
	doc.Meshes = []*gltf.Mesh{{
		Name: "tri",
		Primitives: []*gltf.Primitive{
			{Attributes: map[string]int{"POSITION": pos}, Indices: gltf.Index(idx), Material: gltf.Index(0)},
			{Attributes: map[string]int{"POSITION": pos}},
		},
	}}
	doc.Nodes = []*gltf.Node{{Name: "root", Mesh: gltf.Index(0), Translation: [3]float64{1, 0, 0}}}
	doc.Scenes[0].Nodes = []int{0}
	return doc
}

func TestConvertTriangle(t *testing.T) {
	m, err := Convert("tri", triangleDoc())
	require.NoError(t, err)

	assert.Equal(t, []string{DefaultMaterialName, "red"}, m.MaterialNames())
	assert.Equal(t, [4]float32{1, 0, 0, 1}, m.Materials["red"].Diffuse)
	require.Len(t, m.Meshes, 2)

	red := m.Meshes[0]
	assert.Equal(t, "red", red.Material)
	require.Len(t, red.Vertices, 3)
	assert.Equal(t, [3]float32{1, 0, 0}, red.Vertices[0].Position)
	assert.Equal(t, [3]float32{2, 0, 0}, red.Vertices[1].Position)
	assert.InDelta(t, 1, red.Vertices[0].Normal[2], 1e-6)

	assert.Equal(t, DefaultMaterialName, m.Meshes[1].Material)
	assert.Equal(t, 6, m.VertexCount())
}

func TestConvertEmptyScene(t *testing.T) {
	_, err := Convert("empty", gltf.NewDocument())
	assert.Error(t, err)
}

func TestPhongFromPBR(t *testing.T) {
	rough := 0.0
	metal := 1.0
	mat := phongFromPBR(&gltf.Material{
		PBRMetallicRoughness: &gltf.PBRMetallicRoughness{
			BaseColorFactor: &[4]float64{0.5, 0.5, 0.5, 1},
			RoughnessFactor: &rough,
			MetallicFactor:  &metal,
		},
		EmissiveFactor: [3]float64{0.2, 0, 0},
	})
	assert.InDelta(t, 129, mat.Shininess, 1e-5)
	assert.InDelta(t, 0.7, mat.Specular[0], 1e-6)
	assert.InDelta(t, 0.05, mat.Ambient[0], 1e-6)
	assert.InDelta(t, 0.2, mat.Emission[0], 1e-6)
}
