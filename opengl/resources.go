package opengl

import (
	"time"
	"unsafe"

	"github.com/cockroachdb/errors"
	gl "github.com/go-gl/gl/v4.6-core/gl"

	"vkrender/gpu"
)

type buffer struct {
	id          uint32
	label       string
	size        uint64
	hostVisible bool
}

func newBuffer(desc gpu.BufferDesc) (*buffer, error) {
	if desc.Size == 0 {
		return nil, errors.AssertionFailedf("buffer %q has zero size", desc.Label)
	}
	b := &buffer{label: desc.Label, size: desc.Size, hostVisible: desc.HostVisible}
	gl.CreateBuffers(1, &b.id)
	var flags uint32
	if desc.HostVisible {
		flags = gl.DYNAMIC_STORAGE_BIT
	}
	gl.NamedBufferStorage(b.id, int(desc.Size), nil, flags)
	if err := checkError("create buffer " + desc.Label); err != nil {
		gl.DeleteBuffers(1, &b.id)
		return nil, err
	}
	return b, nil
}

func (b *buffer) Size() uint64 { return b.size }

// Write updates a host-visible buffer. GL orders the update after every
// command already issued that reads the buffer.
func (b *buffer) Write(offset uint64, data []byte) error {
	if !b.hostVisible {
		return errors.AssertionFailedf("buffer %q is not host visible", b.label)
	}
	if offset+uint64(len(data)) > b.size {
		return errors.AssertionFailedf("write of %d bytes at %d overflows buffer %q of %d bytes",
			len(data), offset, b.label, b.size)
	}
	if len(data) == 0 {
		return nil
	}
	gl.NamedBufferSubData(b.id, int(offset), len(data), unsafe.Pointer(&data[0]))
	return nil
}

func (b *buffer) Release() {
	if b.id != 0 {
		gl.DeleteBuffers(1, &b.id)
		b.id = 0
	}
}

type texture struct {
	id     uint32
	extent gpu.Extent
}

func (t *texture) Extent() gpu.Extent { return t.extent }

func (t *texture) Release() {
	if t.id != 0 {
		gl.DeleteTextures(1, &t.id)
		t.id = 0
	}
}

// UploadTexture creates an sRGB texture from RGBA8 pixels. The driver copies
// pixels before returning; the signal fences the upload on the GPU.
func (b *Backend) UploadTexture(desc gpu.TextureDesc, pixels []byte) (gpu.Texture, gpu.Signal, error) {
	if desc.Width == 0 || desc.Height == 0 {
		return nil, nil, errors.AssertionFailedf("texture %q has empty extent", desc.Label)
	}
	if want := int(desc.Width) * int(desc.Height) * 4; len(pixels) != want {
		return nil, nil, errors.AssertionFailedf("texture %q: got %d bytes of RGBA8, want %d", desc.Label, len(pixels), want)
	}

	t := &texture{extent: gpu.Extent{Width: desc.Width, Height: desc.Height}}
	gl.CreateTextures(gl.TEXTURE_2D, 1, &t.id)
	gl.TextureStorage2D(t.id, 1, gl.SRGB8_ALPHA8, int32(desc.Width), int32(desc.Height))
	gl.TextureSubImage2D(t.id, 0, 0, 0, int32(desc.Width), int32(desc.Height),
		gl.RGBA, gl.UNSIGNED_BYTE, unsafe.Pointer(&pixels[0]))
	gl.TextureParameteri(t.id, gl.TEXTURE_MIN_FILTER, gl.LINEAR)
	gl.TextureParameteri(t.id, gl.TEXTURE_MAG_FILTER, gl.LINEAR)
	gl.TextureParameteri(t.id, gl.TEXTURE_WRAP_S, gl.REPEAT)
	gl.TextureParameteri(t.id, gl.TEXTURE_WRAP_T, gl.REPEAT)
	if err := checkError("upload texture " + desc.Label); err != nil {
		t.Release()
		return nil, nil, err
	}

	f, err := newFence()
	if err != nil {
		t.Release()
		return nil, nil, err
	}
	return t, gpu.FenceSignal(f), nil
}

// fence wraps a GL sync object.
type fence struct {
	sync uintptr
}

func newFence() (*fence, error) {
	sync := gl.FenceSync(gl.SYNC_GPU_COMMANDS_COMPLETE, 0)
	if sync == 0 {
		if err := checkError("fence sync"); err != nil {
			return nil, err
		}
		return nil, errors.New("failed to create fence")
	}
	return &fence{sync: sync}, nil
}

func (f *fence) Signaled() (bool, error) {
	return f.wait(0, 0)
}

// waitSlice bounds each blocking wait so context loss is noticed.
const waitSlice = 100 * time.Millisecond

func (f *fence) Wait() error {
	for {
		done, err := f.wait(gl.SYNC_FLUSH_COMMANDS_BIT, uint64(waitSlice.Nanoseconds()))
		if err != nil || done {
			return err
		}
	}
}

func (f *fence) wait(flags uint32, timeout uint64) (bool, error) {
	if f.sync == 0 {
		return true, nil
	}
	switch gl.ClientWaitSync(f.sync, flags, timeout) {
	case gl.ALREADY_SIGNALED, gl.CONDITION_SATISFIED:
		return true, nil
	case gl.TIMEOUT_EXPIRED:
		return false, nil
	default:
		if err := checkError("wait fence"); err != nil {
			return false, err
		}
		return false, errors.New("fence wait failed")
	}
}

func (f *fence) Release() {
	if f.sync != 0 {
		gl.DeleteSync(f.sync)
		f.sync = 0
	}
}
