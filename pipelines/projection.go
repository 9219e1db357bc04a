package pipelines

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"vkrender/gpu"
)

const (
	// DefaultFovY is the vertical field of view in radians.
	DefaultFovY = math.Pi / 2
	DefaultNear = 0.01
	DefaultFar  = 100
)

// Perspective is a right-handed perspective projection into a y-up clip
// space with depth in [0, 1]: near maps to 0, far to 1.
func Perspective(fovy, aspect, near, far float32) mgl32.Mat4 {
	f := float32(1 / math.Tan(float64(fovy)/2))
	return mgl32.Mat4{
		f / aspect, 0, 0, 0,
		0, f, 0, 0,
		0, 0, far / (near - far), -1,
		0, 0, near * far / (near - far), 0,
	}
}

// DefaultProjection is the default perspective for extent.
func DefaultProjection(extent gpu.Extent) mgl32.Mat4 {
	return Perspective(DefaultFovY, extent.Aspect(), DefaultNear, DefaultFar)
}

// DefaultView looks at the origin from (3, 3, 4) with y up.
func DefaultView() mgl32.Mat4 {
	return mgl32.LookAtV(mgl32.Vec3{3, 3, 4}, mgl32.Vec3{}, mgl32.Vec3{0, 1, 0})
}

// PixelProjection maps pixel coordinates with the origin at the top left of
// extent onto clip space.
func PixelProjection(extent gpu.Extent) mgl32.Mat4 {
	return mgl32.Ortho2D(0, float32(extent.Width), float32(extent.Height), 0)
}
