// Package gpu implements the frame lifecycle and GPU resource synchronization
// engine: image acquisition, command batching, completion signals, scratch
// uniform pools, bound resource groups and the renderer-owned resource cache.
//
// Graphics APIs plug in through the Device interface; see packages vulkan and
// opengl.
package gpu

// Extent is a size in pixels.
type Extent struct {
	Width  uint32
	Height uint32
}

// Empty reports whether either dimension is zero.
func (e Extent) Empty() bool {
	return e.Width == 0 || e.Height == 0
}

// Aspect returns width over height, or 1 for an empty extent.
func (e Extent) Aspect() float32 {
	if e.Empty() {
		return 1
	}
	return float32(e.Width) / float32(e.Height)
}

// Viewport is the dynamic viewport state recorded at render pass begin.
type Viewport struct {
	X, Y          float32
	Width, Height float32
	MinDepth      float32
	MaxDepth      float32
}

// FullViewport covers the whole extent with the [0, 1] depth range.
func FullViewport(e Extent) Viewport {
	return Viewport{
		Width:    float32(e.Width),
		Height:   float32(e.Height),
		MinDepth: 0,
		MaxDepth: 1,
	}
}

// ClearValues are the fixed clear values of the frame render pass.
type ClearValues struct {
	Color [4]float32
	Depth float32
}

// DefaultClearValues clears to blue and max depth.
var DefaultClearValues = ClearValues{
	Color: [4]float32{0, 0, 1, 1},
	Depth: 1,
}

// BufferUsage is a bit set of the ways a buffer is used.
type BufferUsage uint32

const (
	BufferUsageTransferSrc BufferUsage = 1 << iota
	BufferUsageTransferDst
	BufferUsageUniform
	BufferUsageVertex
)

// BufferDesc describes a buffer to create.
type BufferDesc struct {
	Label string
	Size  uint64
	Usage BufferUsage
	// HostVisible buffers can be written with Buffer.Write. Device-resident
	// buffers are only filled through copy commands.
	HostVisible bool
}

// TextureDesc describes an RGBA8 texture to upload.
type TextureDesc struct {
	Label  string
	Width  uint32
	Height uint32
}

// VertexFormat is the type of a single vertex attribute.
type VertexFormat int

const (
	VertexFloat2 VertexFormat = iota
	VertexFloat3
	VertexFloat4
)

// Size returns the attribute size in bytes.
func (f VertexFormat) Size() uint32 {
	switch f {
	case VertexFloat2:
		return 8
	case VertexFloat3:
		return 12
	default:
		return 16
	}
}

// VertexAttribute is one attribute of the single interleaved vertex stream.
type VertexAttribute struct {
	Location uint32
	Format   VertexFormat
	Offset   uint32
}

// VertexLayout describes the single interleaved vertex stream of a pipeline.
type VertexLayout struct {
	Stride     uint32
	Attributes []VertexAttribute
}

// ShaderSource carries the shader program in the forms the backends consume.
// WGSL holds a module with "vs_main" and "fs_main" entry points; the GLSL
// sources are the OpenGL 4.6 equivalent where group g, slot s binds at
// unit g*GLBindingStride+s.
type ShaderSource struct {
	WGSL         string
	GLSLVertex   string
	GLSLFragment string
}

// GLBindingStride is the number of binding units reserved per group when a
// backend flattens groups onto a single binding namespace. It also caps the
// slots of one group.
const GLBindingStride = 4

// SamplerBindingOffset is added to a texture slot's binding to get the
// binding of its sampler in WGSL, which declares textures and samplers
// separately.
const SamplerBindingOffset = GLBindingStride

// PipelineDesc describes a graphics pipeline drawing triangle lists into the
// frame render pass.
type PipelineDesc struct {
	Name      string
	Shader    ShaderSource
	Vertex    VertexLayout
	Layout    Layout
	DepthTest bool
	Blend     bool
	CullBack  bool
}

// Device is the graphics API backend the frame manager drives.
type Device interface {
	// SurfaceExtent reports the current pixel size of the presentation surface.
	SurfaceExtent() (Extent, error)
	// CreateSwapchain builds an image chain at extent. old, if not nil, is the
	// chain being replaced; the caller releases it once its work completes.
	// Returns ErrUnsupportedDimensions when extent cannot be presented.
	CreateSwapchain(extent Extent, old Swapchain) (Swapchain, error)
	CreateDepthAttachment(extent Extent) (Attachment, error)
	CreateFramebuffer(color, depth Attachment, extent Extent) (Framebuffer, error)
	CreateBuffer(desc BufferDesc) (Buffer, error)
	// UploadTexture starts an asynchronous upload and returns immediately. The
	// signal resolves when the texture may be sampled.
	UploadTexture(desc TextureDesc, pixels []byte) (Texture, Signal, error)
	CreatePipeline(desc PipelineDesc) (Pipeline, error)
	// CreateBindGroup binds resources to the slots of group set of pipeline.
	// Callers validate the resources first; see BuildGroup.
	CreateBindGroup(pipeline Pipeline, set int, resources []Resource) (BindGroup, error)
	// Submit queues batch for execution after the GPU-side waits. signal, if
	// not nil, is signaled when the batch completes. The returned fence is
	// host-pollable.
	Submit(batch *Batch, waits []Semaphore, signal Semaphore) (Fence, error)
	// Present queues image of swapchain for display after wait is signaled.
	Present(swapchain Swapchain, image uint32, wait Semaphore) error
	WaitIdle() error
	Release()
}

// Swapchain is an image chain bound to the presentation surface.
type Swapchain interface {
	Extent() Extent
	Images() []Attachment
	// Acquire blocks until an image is available to render into, with no
	// timeout. The semaphore is signaled on the GPU once the image is ready.
	Acquire() (image uint32, available Semaphore, err error)
	// RenderFinished returns the semaphore presentation of image waits on.
	RenderFinished(image uint32) Semaphore
	Release()
}

// Attachment is an image usable as a framebuffer attachment.
type Attachment interface {
	Release()
}

// Framebuffer pairs a chain image with the shared depth attachment.
type Framebuffer interface {
	Release()
}

// Fence is a host-pollable GPU completion handle.
type Fence interface {
	// Signaled polls without blocking.
	Signaled() (bool, error)
	// Wait blocks until the fence is signaled.
	Wait() error
	Release()
}

// Semaphore is a GPU-side completion handle. Release returns it to its
// owner once the work waiting on it has completed.
type Semaphore interface {
	Release()
}

// Resource is anything that can be bound in a group: a Buffer or a Texture.
type Resource interface {
	Release()
}

// Buffer is a GPU buffer.
type Buffer interface {
	Resource
	Size() uint64
	// Write copies data into a host-visible buffer at offset.
	Write(offset uint64, data []byte) error
}

// Texture is a sampled RGBA8 image.
type Texture interface {
	Resource
	Extent() Extent
}

// Pipeline is a graphics pipeline with its declared slot layout.
type Pipeline interface {
	Name() string
	Layout() Layout
	Release()
}

// BindGroup is the backend handle behind a BoundGroup.
type BindGroup interface {
	Release()
}
