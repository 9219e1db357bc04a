package opengl

import (
	"github.com/cockroachdb/errors"

	"vkrender/gpu"
)

// swapchain is the default framebuffer viewed as a one-image chain. It goes
// out of date as soon as the window's framebuffer size differs from the
// extent it was built for.
type swapchain struct {
	extent gpu.Extent
	size   func() (int, int)
	images []gpu.Attachment
}

// defaultAttachment stands for the default framebuffer's color or depth
// buffer, which the window owns.
type defaultAttachment struct{}

func (defaultAttachment) Release() {}

type defaultFramebuffer struct{}

func (defaultFramebuffer) Release() {}

// semaphore orders nothing: a single GL context executes in submission order.
type semaphore struct{}

func (semaphore) Release() {}

func (b *Backend) CreateSwapchain(extent gpu.Extent, old gpu.Swapchain) (gpu.Swapchain, error) {
	if extent.Empty() {
		return nil, errors.Wrapf(gpu.ErrUnsupportedDimensions, "%dx%d", extent.Width, extent.Height)
	}
	return &swapchain{
		extent: extent,
		size:   b.framebufferSize,
		images: []gpu.Attachment{defaultAttachment{}},
	}, nil
}

func (b *Backend) CreateDepthAttachment(extent gpu.Extent) (gpu.Attachment, error) {
	return defaultAttachment{}, nil
}

func (b *Backend) CreateFramebuffer(color, depth gpu.Attachment, extent gpu.Extent) (gpu.Framebuffer, error) {
	return defaultFramebuffer{}, nil
}

func (s *swapchain) Extent() gpu.Extent       { return s.extent }
func (s *swapchain) Images() []gpu.Attachment { return s.images }

func (s *swapchain) Acquire() (uint32, gpu.Semaphore, error) {
	if w, h := s.size(); uint32(w) != s.extent.Width || uint32(h) != s.extent.Height {
		return 0, nil, errors.Wrap(gpu.ErrOutOfDate, "acquire")
	}
	return 0, semaphore{}, nil
}

func (s *swapchain) RenderFinished(image uint32) gpu.Semaphore { return semaphore{} }

func (s *swapchain) Release() {}
