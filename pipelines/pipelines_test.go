package pipelines

import (
	"testing"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vkrender/gpu"
	"vkrender/gpu/gputest"
)

func TestUniformLayouts(t *testing.T) {
	assert.Equal(t, uintptr(80), unsafe.Sizeof(Material{}))
	assert.Equal(t, uintptr(64), unsafe.Offsetof(Material{}.Shininess))
	assert.Equal(t, uintptr(32), unsafe.Sizeof(Light{}))
	assert.Equal(t, uintptr(16), unsafe.Offsetof(Light{}.Intensity))
	assert.Equal(t, uintptr(192), unsafe.Sizeof(Transform{}))
}

func TestVertexLayouts(t *testing.T) {
	assert.Equal(t, uint32(32), vertexPhongLayout.Stride)
	assert.Equal(t, uint32(24), vertexPhongLayout.Attributes[2].Offset)
	assert.Equal(t, uint32(16), vertexTexLayout.Stride)
	assert.Equal(t, uint32(24), vertexColorLayout.Stride)
	assert.Equal(t, uint32(12), vertexColorLayout.Attributes[1].Offset)
}

func TestPerspectiveDepthRange(t *testing.T) {
	proj := Perspective(DefaultFovY, 1, DefaultNear, DefaultFar)

	depth := func(z float32) float32 {
		c := proj.Mul4x1(mgl32.Vec4{0, 0, z, 1})
		return c.Z() / c.W()
	}
	assert.InDelta(t, 0, depth(-DefaultNear), 1e-5)
	assert.InDelta(t, 1, depth(-DefaultFar), 1e-5)
	mid := depth(-1)
	assert.Greater(t, mid, float32(0))
	assert.Less(t, mid, float32(1))

	// y stays up.
	c := proj.Mul4x1(mgl32.Vec4{0, 1, -1, 1})
	assert.Greater(t, c.Y()/c.W(), float32(0))
}

func TestDefaultProjectionAspect(t *testing.T) {
	proj := DefaultProjection(gpu.Extent{Width: 800, Height: 400})
	assert.InDelta(t, proj.At(1, 1)/2, proj.At(0, 0), 1e-5)
}

func TestPixelProjectionCorners(t *testing.T) {
	proj := PixelProjection(gpu.Extent{Width: 200, Height: 100})

	tl := proj.Mul4x1(mgl32.Vec4{0, 0, 0, 1})
	assert.InDelta(t, -1, tl.X(), 1e-5)
	assert.InDelta(t, 1, tl.Y(), 1e-5)

	br := proj.Mul4x1(mgl32.Vec4{200, 100, 0, 1})
	assert.InDelta(t, 1, br.X(), 1e-5)
	assert.InDelta(t, -1, br.Y(), 1e-5)
}

func TestNewTransformNormalMatrix(t *testing.T) {
	model := mgl32.Scale3D(2, 1, 1)
	tr := NewTransform(model, mgl32.Ident4())
	assert.True(t, tr.Normal.ApproxEqual(mgl32.Scale3D(0.5, 1, 1)))
	assert.Equal(t, model, tr.Model)
}

func TestUniformUpdateRecordsCopy(t *testing.T) {
	dev := gputest.NewDevice(64, 64)
	u, err := NewUniform[Light](dev, "light")
	require.NoError(t, err)
	assert.Equal(t, uint64(32), u.Buffer().Size())

	batch := gpu.NewCommandBatch()
	require.NoError(t, u.Update(batch, DefaultLight()))

	cmds, err := batch.Commit()
	require.NoError(t, err)
	require.Len(t, cmds.Commands(), 1)
	cp := cmds.Commands()[0].(gpu.CopyBufferCmd)
	assert.Equal(t, u.Buffer(), cp.Dst)
	assert.Equal(t, uint64(32), cp.Size)

	staged := cp.Src.(*gputest.Buffer)
	assert.Equal(t, float32(100), *(*float32)(unsafe.Pointer(&staged.Data[4])))
	assert.Equal(t, 1, u.Stats().Live)
}

func TestUniformUpdateInsideRenderPassReturnsRegion(t *testing.T) {
	dev := gputest.NewDevice(64, 64)
	u, err := NewUniform[mgl32.Mat4](dev, "projection")
	require.NoError(t, err)

	fb, err := dev.CreateFramebuffer(nil, nil, dev.Size)
	require.NoError(t, err)
	batch := gpu.NewCommandBatch()
	require.NoError(t, batch.BeginRenderPass(fb, dev.Size, gpu.DefaultClearValues))

	err = u.Update(batch, mgl32.Ident4())
	assert.True(t, errors.HasAssertionFailure(err))
	assert.Equal(t, 0, u.Stats().Live)
	assert.Equal(t, 1, u.Stats().Free)
}

func TestVertexBufferUpload(t *testing.T) {
	dev := gputest.NewDevice(1, 1)
	verts := Quad(0, 0, 10, 10)
	buf, err := VertexBuffer(dev, "quad", verts)
	require.NoError(t, err)

	b := buf.(*gputest.Buffer)
	assert.Equal(t, uint64(len(verts)*16), b.Size())
	assert.Equal(t, gpu.BufferUsageVertex, b.Desc.Usage)
	assert.Equal(t, float32(10), *(*float32)(unsafe.Pointer(&b.Data[16+4])))

	empty, err := VertexBuffer[VertexColor](dev, "empty", nil)
	require.NoError(t, err)
	assert.Zero(t, empty.Size())
}

func TestShadersEmbedded(t *testing.T) {
	for _, s := range []gpu.ShaderSource{phongShader, texture2DShader, color3DShader} {
		assert.Contains(t, s.WGSL, "fn vs_main")
		assert.Contains(t, s.WGSL, "fn fs_main")
		assert.Contains(t, s.GLSLVertex, "#version 460 core")
		assert.Contains(t, s.GLSLFragment, "#version 460 core")
	}
	// Group g, slot s binds at g*GLBindingStride+s.
	assert.Contains(t, phongShader.GLSLFragment, "binding = 4")
	assert.Contains(t, phongShader.GLSLVertex, "binding = 12")
	assert.Contains(t, texture2DShader.WGSL, "@group(1) @binding(4) var image_sampler")
}
