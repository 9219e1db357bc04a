// Package gputest provides an in-memory gpu.Device for testing code that
// records batches and builds groups without a graphics driver.
package gputest

import (
	"github.com/cockroachdb/errors"

	"vkrender/gpu"
)

// Device records every resource it creates. Fences it returns are signaled
// as soon as they are created unless Pending is set.
type Device struct {
	Size gpu.Extent
	// Pending makes new fences unsignaled until Flush.
	Pending bool
	// UploadErr, if set, fails the next UploadTexture.
	UploadErr error

	Buffers    []*Buffer
	Textures   []*Texture
	Pipelines  []*Pipeline
	BindGroups []*BindGroup
	Submits    []*gpu.Batch
	Fences     []*Fence
	Released   bool
}

var _ gpu.Device = (*Device)(nil)

// NewDevice returns a device whose surface is width by height pixels.
func NewDevice(width, height uint32) *Device {
	return &Device{Size: gpu.Extent{Width: width, Height: height}}
}

// Flush signals every fence.
func (d *Device) Flush() {
	for _, f := range d.Fences {
		f.signaled = true
	}
}

func (d *Device) newFence() *Fence {
	f := &Fence{signaled: !d.Pending}
	d.Fences = append(d.Fences, f)
	return f
}

func (d *Device) SurfaceExtent() (gpu.Extent, error) { return d.Size, nil }

func (d *Device) CreateSwapchain(extent gpu.Extent, old gpu.Swapchain) (gpu.Swapchain, error) {
	if extent.Empty() {
		return nil, gpu.ErrUnsupportedDimensions
	}
	return &Swapchain{device: d, extent: extent}, nil
}

func (d *Device) CreateDepthAttachment(gpu.Extent) (gpu.Attachment, error) {
	return &object{}, nil
}

func (d *Device) CreateFramebuffer(color, depth gpu.Attachment, extent gpu.Extent) (gpu.Framebuffer, error) {
	return &object{}, nil
}

func (d *Device) CreateBuffer(desc gpu.BufferDesc) (gpu.Buffer, error) {
	b := &Buffer{Desc: desc, Data: make([]byte, desc.Size)}
	d.Buffers = append(d.Buffers, b)
	return b, nil
}

func (d *Device) UploadTexture(desc gpu.TextureDesc, pixels []byte) (gpu.Texture, gpu.Signal, error) {
	if err := d.UploadErr; err != nil {
		d.UploadErr = nil
		return nil, nil, err
	}
	if want := int(desc.Width) * int(desc.Height) * 4; len(pixels) != want {
		return nil, nil, errors.Newf("texture %q: %d bytes of pixels, want %d", desc.Label, len(pixels), want)
	}
	t := &Texture{Desc: desc, Pixels: append([]byte(nil), pixels...)}
	d.Textures = append(d.Textures, t)
	return t, gpu.FenceSignal(d.newFence()), nil
}

func (d *Device) CreatePipeline(desc gpu.PipelineDesc) (gpu.Pipeline, error) {
	p := &Pipeline{Desc: desc}
	d.Pipelines = append(d.Pipelines, p)
	return p, nil
}

func (d *Device) CreateBindGroup(pipeline gpu.Pipeline, set int, resources []gpu.Resource) (gpu.BindGroup, error) {
	g := &BindGroup{Pipeline: pipeline.Name(), Set: set, Resources: resources}
	d.BindGroups = append(d.BindGroups, g)
	return g, nil
}

func (d *Device) Submit(batch *gpu.Batch, waits []gpu.Semaphore, signal gpu.Semaphore) (gpu.Fence, error) {
	d.Submits = append(d.Submits, batch)
	return d.newFence(), nil
}

func (d *Device) Present(gpu.Swapchain, uint32, gpu.Semaphore) error { return nil }

func (d *Device) WaitIdle() error {
	d.Flush()
	return nil
}

func (d *Device) Release() { d.Released = true }

// Swapchain is a single-image chain.
type Swapchain struct {
	device *Device
	extent gpu.Extent
}

func (s *Swapchain) Extent() gpu.Extent { return s.extent }

func (s *Swapchain) Images() []gpu.Attachment { return []gpu.Attachment{&object{}} }

func (s *Swapchain) Acquire() (uint32, gpu.Semaphore, error) {
	if s.device.Size != s.extent {
		return 0, nil, gpu.ErrOutOfDate
	}
	return 0, &object{}, nil
}

func (s *Swapchain) RenderFinished(uint32) gpu.Semaphore { return &object{} }

func (s *Swapchain) Release() {}

// object stands in for handles tests never inspect.
type object struct{}

func (*object) Release() {}

// Fence is signaled on creation or by Device.Flush.
type Fence struct {
	signaled bool
	Released int
}

func (f *Fence) Signaled() (bool, error) { return f.signaled, nil }

func (f *Fence) Wait() error {
	f.signaled = true
	return nil
}

func (f *Fence) Release() { f.Released++ }

// Buffer keeps its contents in memory.
type Buffer struct {
	Desc     gpu.BufferDesc
	Data     []byte
	Released bool
}

func (b *Buffer) Size() uint64 { return b.Desc.Size }

func (b *Buffer) Write(offset uint64, data []byte) error {
	if !b.Desc.HostVisible {
		return errors.AssertionFailedf("buffer %q is not host visible", b.Desc.Label)
	}
	if offset+uint64(len(data)) > uint64(len(b.Data)) {
		return errors.AssertionFailedf("write of %d bytes at %d overflows buffer %q", len(data), offset, b.Desc.Label)
	}
	copy(b.Data[offset:], data)
	return nil
}

func (b *Buffer) Release() { b.Released = true }

// Texture keeps a copy of its pixels.
type Texture struct {
	Desc     gpu.TextureDesc
	Pixels   []byte
	Released bool
}

func (t *Texture) Extent() gpu.Extent {
	return gpu.Extent{Width: t.Desc.Width, Height: t.Desc.Height}
}

func (t *Texture) Release() { t.Released = true }

// Pipeline remembers the description it was created from.
type Pipeline struct {
	Desc     gpu.PipelineDesc
	Released bool
}

func (p *Pipeline) Name() string       { return p.Desc.Name }
func (p *Pipeline) Layout() gpu.Layout { return p.Desc.Layout }
func (p *Pipeline) Release()           { p.Released = true }

// BindGroup remembers what was bound.
type BindGroup struct {
	Pipeline  string
	Set       int
	Resources []gpu.Resource
	Released  bool
}

func (g *BindGroup) Release() { g.Released = true }
