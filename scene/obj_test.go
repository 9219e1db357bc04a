package scene

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vkrender/pipelines"
)

const quadOBJ = `# unit quad
mtllib quad.mtl
v 0 0 0
v 1 0 0
v 1 1 0
v 0 1 0
vt 0 0
vt 1 0
vt 1 1
vt 0 1
vn 0 0 1
usemtl red
f 1/1/1 2/2/1 3/3/1 4/4/1
usemtl missing
f -4 -3 -2
`

const quadMTL = `newmtl red
Ka 0.1 0 0
Kd 0.8 0 0
Ks 0.5 0.5 0.5
Ke 0 0 0.2
Ns 64
d 0.5
`

func TestParseOBJ(t *testing.T) {
	libs := map[string]string{"quad.mtl": quadMTL}
	open := func(name string) (io.ReadCloser, error) {
		s, ok := libs[name]
		if !ok {
			return nil, os.ErrNotExist
		}
		return io.NopCloser(strings.NewReader(s)), nil
	}

	m, err := ParseOBJ("quad", strings.NewReader(quadOBJ), open)
	require.NoError(t, err)
	assert.Equal(t, []string{"missing", "red"}, m.MaterialNames())
	require.Len(t, m.Meshes, 2)

	red := m.Meshes[0]
	assert.Equal(t, "red", red.Material)
	require.Len(t, red.Vertices, 6)
	assert.Equal(t, [3]float32{1, 1, 0}, red.Vertices[2].Position)
	assert.Equal(t, [2]float32{1, 1}, red.Vertices[2].UV)
	assert.Equal(t, [3]float32{0, 0, 1}, red.Vertices[0].Normal)

	mat := m.Materials["red"]
	assert.Equal(t, [4]float32{0.8, 0, 0, 0.5}, mat.Diffuse)
	assert.Equal(t, [4]float32{0.1, 0, 0, 1}, mat.Ambient)
	assert.Equal(t, float32(64), mat.Shininess)
	assert.Equal(t, float32(0.2), mat.Emission[2])

	// Negative indices and no normals give a flat normal.
	missing := m.Meshes[1]
	require.Len(t, missing.Vertices, 3)
	assert.Equal(t, [3]float32{0, 0, 1}, missing.Vertices[0].Normal)
	assert.Equal(t, pipelines.DefaultMaterial, m.Materials["missing"])
}

func TestParseOBJErrors(t *testing.T) {
	for name, src := range map[string]string{
		"no faces":     "v 0 0 0\n",
		"out of range": "v 0 0 0\nf 1 2 3\n",
		"short face":   "v 0 0 0\nv 1 0 0\nf 1 2\n",
		"bad number":   "v 0 x 0\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseOBJ("bad", strings.NewReader(src), nil)
			assert.Error(t, err)
		})
	}
}

func TestLoadOBJResolvesLibraries(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "quad.obj"), []byte(quadOBJ), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "quad.mtl"), []byte(quadMTL), 0o644))

	m, err := LoadOBJ(filepath.Join(dir, "quad.obj"))
	require.NoError(t, err)
	assert.Equal(t, "quad", m.Name)
	assert.Equal(t, float32(64), m.Materials["red"].Shininess)

	_, err = LoadOBJ(filepath.Join(dir, "nope.obj"))
	assert.Error(t, err)
}

func TestLoadRejectsUnknownFormat(t *testing.T) {
	_, err := Load("model.fbx")
	assert.ErrorContains(t, err, "unsupported model format")
}
