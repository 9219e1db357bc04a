// Package opengl implements gpu.Device on an OpenGL 4.6 core context. The
// default framebuffer acts as a one-image chain and commands execute when a
// batch is submitted.
package opengl

import (
	"github.com/cockroachdb/errors"
	gl "github.com/go-gl/gl/v4.6-core/gl"

	"vkrender/core"
	"vkrender/gpu"
)

// Backend is the OpenGL gpu.Device. All methods must run on the thread that
// owns the window's context.
type Backend struct {
	window          *core.Window
	framebufferSize func() (int, int)
	swapBuffers     func()
}

var _ gpu.Device = (*Backend)(nil)

// NewBackend loads OpenGL through the window's current context.
func NewBackend(window *core.Window) (*Backend, error) {
	if window.API() != core.APIOpenGL {
		return nil, errors.Newf("window was created for %s", window.API())
	}
	if err := gl.InitWithProcAddrFunc(core.ProcAddress); err != nil {
		return nil, errors.Wrap(err, "failed to initialize OpenGL")
	}

	// Match Vulkan conventions: [0, 1] depth and an sRGB framebuffer.
	gl.ClipControl(gl.LOWER_LEFT, gl.ZERO_TO_ONE)
	gl.Enable(gl.FRAMEBUFFER_SRGB)
	gl.DepthFunc(gl.LESS)

	gpu.Logger().Info("opengl context ready",
		"version", gl.GoStr(gl.GetString(gl.VERSION)),
		"renderer", gl.GoStr(gl.GetString(gl.RENDERER)))

	return &Backend{
		window:          window,
		framebufferSize: window.FramebufferSize,
		swapBuffers:     window.SwapBuffers,
	}, nil
}

func (b *Backend) SurfaceExtent() (gpu.Extent, error) {
	w, h := b.framebufferSize()
	return gpu.Extent{Width: uint32(max(w, 0)), Height: uint32(max(h, 0))}, nil
}

func (b *Backend) CreateBuffer(desc gpu.BufferDesc) (gpu.Buffer, error) {
	return newBuffer(desc)
}

func (b *Backend) Submit(batch *gpu.Batch, waits []gpu.Semaphore, signal gpu.Semaphore) (gpu.Fence, error) {
	enc := &encoder{}
	if err := enc.encode(batch); err != nil {
		return nil, err
	}
	if err := checkError("submit"); err != nil {
		return nil, err
	}
	return newFence()
}

func (b *Backend) Present(sc gpu.Swapchain, image uint32, wait gpu.Semaphore) error {
	chain, ok := sc.(*swapchain)
	if !ok {
		return errors.AssertionFailedf("swapchain was not created by this backend")
	}
	if image != 0 {
		return errors.AssertionFailedf("image %d out of range for a single-image chain", image)
	}
	b.swapBuffers()
	if w, h := b.framebufferSize(); uint32(w) != chain.extent.Width || uint32(h) != chain.extent.Height {
		return errors.Wrap(gpu.ErrOutOfDate, "present")
	}
	return nil
}

func (b *Backend) WaitIdle() error {
	gl.Finish()
	return checkError("wait idle")
}

// Release is a no-op: the context and its objects die with the window.
func (b *Backend) Release() {}

// checkError maps pending GL errors and context loss to gpu errors.
func checkError(op string) error {
	if status := gl.GetGraphicsResetStatus(); status != gl.NO_ERROR {
		return errors.Wrapf(gpu.ErrDeviceLost, "%s: reset status %#x", op, status)
	}
	if code := gl.GetError(); code != gl.NO_ERROR {
		return errors.Newf("%s: gl error %#x", op, code)
	}
	return nil
}
