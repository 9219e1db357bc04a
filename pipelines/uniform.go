package pipelines

import (
	"github.com/cockroachdb/errors"

	"vkrender/gpu"
)

// Uniform is a device-resident uniform buffer holding one T. Updates are
// staged through a scratch pool and copied by the frame's command batch, so
// a value written while earlier frames are in flight never races them.
type Uniform[T any] struct {
	label  string
	buffer gpu.Buffer
	pool   *gpu.ScratchPool[T]
}

// NewUniform allocates the buffer. Its contents are undefined until the
// first Update has executed.
func NewUniform[T any](device gpu.Device, label string) (*Uniform[T], error) {
	pool := gpu.NewScratchPool[T](device, label)
	buf, err := device.CreateBuffer(gpu.BufferDesc{
		Label: label,
		Size:  pool.ElemSize(),
		Usage: gpu.BufferUsageUniform | gpu.BufferUsageTransferDst,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create uniform %q", label)
	}
	return &Uniform[T]{label: label, buffer: buf, pool: pool}, nil
}

// Update records a copy of value into the buffer. It must be recorded
// outside a render pass.
func (u *Uniform[T]) Update(batch *gpu.CommandBatch, value T) error {
	h, err := u.pool.Acquire(value)
	if err != nil {
		return err
	}
	if err := batch.CopyScratch(h, u.buffer); err != nil {
		h.Discard()
		return errors.Wrapf(err, "failed to update uniform %q", u.label)
	}
	return nil
}

func (u *Uniform[T]) Buffer() gpu.Buffer { return u.buffer }

// Stats reports the scratch regions behind the uniform.
func (u *Uniform[T]) Stats() gpu.ScratchStats { return u.pool.Stats() }

// Release frees the buffer and the pool. The GPU must be idle.
func (u *Uniform[T]) Release() {
	u.buffer.Release()
	u.pool.Release()
}
