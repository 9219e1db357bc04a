package gpu

import (
	"github.com/cockroachdb/errors"
)

// fakeDevice records every call and lets tests script failures.
type fakeDevice struct {
	extent Extent
	images int

	createErrs  []error
	acquireErrs []error
	submitErr   error
	presentErr  error

	swapchains   []*fakeSwapchain
	depths       []*fakeAttachment
	framebuffers []*fakeFramebuffer
	buffers      []*fakeBuffer
	fences       []*fakeFence
	bindGroups   []*fakeBindGroup
	submits      []*Batch
	submitWaits  [][]Semaphore
	presents     []uint32
	waitIdle     int
	released     bool
}

func newFakeDevice(width, height uint32, images int) *fakeDevice {
	return &fakeDevice{extent: Extent{Width: width, Height: height}, images: images}
}

func pop(q *[]error) error {
	if len(*q) == 0 {
		return nil
	}
	err := (*q)[0]
	*q = (*q)[1:]
	return err
}

// signalAll completes every submitted fence.
func (d *fakeDevice) signalAll() {
	for _, f := range d.fences {
		f.signaled = true
	}
}

func (d *fakeDevice) lastSwapchain() *fakeSwapchain {
	return d.swapchains[len(d.swapchains)-1]
}

func (d *fakeDevice) SurfaceExtent() (Extent, error) { return d.extent, nil }

func (d *fakeDevice) CreateSwapchain(extent Extent, old Swapchain) (Swapchain, error) {
	if err := pop(&d.createErrs); err != nil {
		return nil, err
	}
	if extent.Empty() {
		return nil, ErrUnsupportedDimensions
	}
	sc := &fakeSwapchain{device: d, extent: extent, old: old}
	for i := 0; i < d.images; i++ {
		sc.images = append(sc.images, &fakeAttachment{})
		sc.finished = append(sc.finished, &fakeSemaphore{})
	}
	d.swapchains = append(d.swapchains, sc)
	return sc, nil
}

func (d *fakeDevice) CreateDepthAttachment(extent Extent) (Attachment, error) {
	a := &fakeAttachment{extent: extent}
	d.depths = append(d.depths, a)
	return a, nil
}

func (d *fakeDevice) CreateFramebuffer(color, depth Attachment, extent Extent) (Framebuffer, error) {
	fb := &fakeFramebuffer{color: color, depth: depth, extent: extent}
	d.framebuffers = append(d.framebuffers, fb)
	return fb, nil
}

func (d *fakeDevice) CreateBuffer(desc BufferDesc) (Buffer, error) {
	b := &fakeBuffer{desc: desc, data: make([]byte, desc.Size)}
	d.buffers = append(d.buffers, b)
	return b, nil
}

func (d *fakeDevice) UploadTexture(desc TextureDesc, pixels []byte) (Texture, Signal, error) {
	f := &fakeFence{}
	d.fences = append(d.fences, f)
	return &fakeTexture{extent: Extent{Width: desc.Width, Height: desc.Height}}, FenceSignal(f), nil
}

func (d *fakeDevice) CreatePipeline(desc PipelineDesc) (Pipeline, error) {
	return &fakePipeline{name: desc.Name, layout: desc.Layout}, nil
}

func (d *fakeDevice) CreateBindGroup(pipeline Pipeline, set int, resources []Resource) (BindGroup, error) {
	g := &fakeBindGroup{set: set}
	d.bindGroups = append(d.bindGroups, g)
	return g, nil
}

func (d *fakeDevice) Submit(batch *Batch, waits []Semaphore, signal Semaphore) (Fence, error) {
	if d.submitErr != nil {
		return nil, d.submitErr
	}
	f := &fakeFence{}
	d.fences = append(d.fences, f)
	d.submits = append(d.submits, batch)
	d.submitWaits = append(d.submitWaits, waits)
	return f, nil
}

func (d *fakeDevice) Present(swapchain Swapchain, image uint32, wait Semaphore) error {
	if d.presentErr != nil {
		return d.presentErr
	}
	d.presents = append(d.presents, image)
	return nil
}

func (d *fakeDevice) WaitIdle() error {
	d.waitIdle++
	d.signalAll()
	return nil
}

func (d *fakeDevice) Release() { d.released = true }

type fakeSwapchain struct {
	device   *fakeDevice
	extent   Extent
	old      Swapchain
	images   []Attachment
	finished []*fakeSemaphore
	acquires int
	acquired []*fakeSemaphore
	released bool
}

func (s *fakeSwapchain) Extent() Extent       { return s.extent }
func (s *fakeSwapchain) Images() []Attachment { return s.images }

func (s *fakeSwapchain) Acquire() (uint32, Semaphore, error) {
	if err := pop(&s.device.acquireErrs); err != nil {
		return 0, nil, err
	}
	idx := uint32(s.acquires % len(s.images))
	s.acquires++
	sem := &fakeSemaphore{}
	s.acquired = append(s.acquired, sem)
	return idx, sem, nil
}

func (s *fakeSwapchain) RenderFinished(image uint32) Semaphore { return s.finished[image] }
func (s *fakeSwapchain) Release()                              { s.released = true }

type fakeAttachment struct {
	extent   Extent
	released bool
}

func (a *fakeAttachment) Release() { a.released = true }

type fakeFramebuffer struct {
	color, depth Attachment
	extent       Extent
	released     bool
}

func (f *fakeFramebuffer) Release() { f.released = true }

type fakeSemaphore struct {
	released int
}

func (s *fakeSemaphore) Release() { s.released++ }

type fakeFence struct {
	signaled bool
	pollErr  error
	released int
}

func (f *fakeFence) Signaled() (bool, error) {
	if f.pollErr != nil {
		return false, f.pollErr
	}
	return f.signaled, nil
}

func (f *fakeFence) Wait() error {
	if f.pollErr != nil {
		return f.pollErr
	}
	f.signaled = true
	return nil
}

func (f *fakeFence) Release() { f.released++ }

type fakeBuffer struct {
	desc     BufferDesc
	data     []byte
	writes   int
	released bool
}

func (b *fakeBuffer) Release()     { b.released = true }
func (b *fakeBuffer) Size() uint64 { return b.desc.Size }

func (b *fakeBuffer) Write(offset uint64, data []byte) error {
	if !b.desc.HostVisible {
		return errors.New("buffer is not host visible")
	}
	if offset+uint64(len(data)) > uint64(len(b.data)) {
		return errors.New("write out of range")
	}
	copy(b.data[offset:], data)
	b.writes++
	return nil
}

type fakeTexture struct {
	extent   Extent
	released bool
}

func (t *fakeTexture) Release()       { t.released = true }
func (t *fakeTexture) Extent() Extent { return t.extent }

type fakePipeline struct {
	name   string
	layout Layout
}

func (p *fakePipeline) Name() string   { return p.name }
func (p *fakePipeline) Layout() Layout { return p.layout }
func (p *fakePipeline) Release()       {}

type fakeBindGroup struct {
	set      int
	released bool
}

func (g *fakeBindGroup) Release() { g.released = true }
