package gpu

import (
	"unsafe"

	"github.com/cockroachdb/errors"
)

// ScratchRegion is a host-written staging region a copy command can consume.
type ScratchRegion interface {
	Buffer() Buffer
	Size() uint64
	take() (release func(), err error)
}

// ScratchStats counts the regions of a pool.
type ScratchStats struct {
	Allocated int
	Free      int
	Live      int
}

// ScratchPool hands out host-visible staging regions holding one value of T
// each. Regions come back to the pool once the batch that copied them has
// finished on the GPU. The pool grows on demand; frames in flight bound its
// size. Not safe for concurrent use.
//
// T must be a plain value type (no pointers, slices or maps) laid out the
// way the shader expects it.
type ScratchPool[T any] struct {
	device Device
	label  string
	size   uint64
	free   []Buffer
	stats  ScratchStats
	closed bool
}

// NewScratchPool returns an empty pool for values of T.
func NewScratchPool[T any](device Device, label string) *ScratchPool[T] {
	var zero T
	return &ScratchPool[T]{
		device: device,
		label:  label,
		size:   uint64(unsafe.Sizeof(zero)),
	}
}

// ElemSize returns the byte size of one value of T.
func (p *ScratchPool[T]) ElemSize() uint64 { return p.size }

// Stats returns current region counts.
func (p *ScratchPool[T]) Stats() ScratchStats {
	s := p.stats
	s.Free = len(p.free)
	return s
}

// Acquire copies value into a free region, allocating one if none is free.
func (p *ScratchPool[T]) Acquire(value T) (*ScratchHandle[T], error) {
	var buf Buffer
	if n := len(p.free); n > 0 {
		buf = p.free[n-1]
		p.free = p.free[:n-1]
	} else {
		var err error
		buf, err = p.device.CreateBuffer(BufferDesc{
			Label:       p.label,
			Size:        p.size,
			Usage:       BufferUsageTransferSrc,
			HostVisible: true,
		})
		if err != nil {
			return nil, errors.Wrapf(err, "failed to grow scratch pool %q", p.label)
		}
		p.stats.Allocated++
		Logger().Debug("scratch pool grew", "pool", p.label, "regions", p.stats.Allocated)
	}
	if err := buf.Write(0, bytesOf(&value)); err != nil {
		p.free = append(p.free, buf)
		return nil, errors.Wrapf(err, "failed to write scratch region %q", p.label)
	}
	p.stats.Live++
	return &ScratchHandle[T]{pool: p, buf: buf}, nil
}

func (p *ScratchPool[T]) recycle(buf Buffer) {
	p.stats.Live--
	if p.closed {
		buf.Release()
		p.stats.Allocated--
		return
	}
	p.free = append(p.free, buf)
}

// Release destroys the free regions. Regions still owned by in-flight
// batches are destroyed when they come back.
func (p *ScratchPool[T]) Release() {
	for _, b := range p.free {
		b.Release()
	}
	p.free = nil
	p.stats.Allocated = p.stats.Live
	p.closed = true
}

// ScratchHandle is one filled region. It must be consumed by exactly one copy
// command or returned with Discard.
type ScratchHandle[T any] struct {
	pool     *ScratchPool[T]
	buf      Buffer
	consumed bool
}

func (h *ScratchHandle[T]) Buffer() Buffer { return h.buf }

func (h *ScratchHandle[T]) Size() uint64 { return h.pool.size }

// Discard returns an unconsumed region to its pool.
func (h *ScratchHandle[T]) Discard() {
	if h.consumed {
		return
	}
	h.consumed = true
	h.pool.recycle(h.buf)
}

func (h *ScratchHandle[T]) take() (func(), error) {
	if h.consumed {
		return nil, errors.AssertionFailedf("scratch region from pool %q consumed twice", h.pool.label)
	}
	h.consumed = true
	return func() { h.pool.recycle(h.buf) }, nil
}

// bytesOf views the memory of *v as bytes.
func bytesOf[T any](v *T) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(v)), unsafe.Sizeof(*v))
}
