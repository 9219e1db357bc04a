package vulkan

import (
	vk "github.com/goki/vulkan"

	"vkrender/gpu"
)

// fence is a host-pollable submission fence. onRelease runs when the fence
// is released, after the submission it guards has completed.
type fence struct {
	dev       vk.Device
	handle    vk.Fence
	onRelease func()
}

func newFence(dev vk.Device) (*fence, error) {
	var f vk.Fence
	ret := vk.CreateFence(dev, &vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}, nil, &f)
	if err := result(ret, "create fence"); err != nil {
		return nil, err
	}
	return &fence{dev: dev, handle: f}, nil
}

func (f *fence) Signaled() (bool, error) {
	switch ret := vk.GetFenceStatus(f.dev, f.handle); ret {
	case vk.Success:
		return true, nil
	case vk.NotReady:
		return false, nil
	default:
		return false, result(ret, "poll fence")
	}
}

func (f *fence) Wait() error {
	return result(vk.WaitForFences(f.dev, 1, []vk.Fence{f.handle}, vk.True, vk.MaxUint64), "wait for fence")
}

func (f *fence) Release() {
	if f.handle == vk.NullFence {
		return
	}
	vk.DestroyFence(f.dev, f.handle, nil)
	f.handle = vk.NullFence
	if f.onRelease != nil {
		f.onRelease()
		f.onRelease = nil
	}
}

// semaphore is a binary semaphore. Pooled semaphores go back to their pool
// on Release once a submission has waited on them; one that was signaled
// but never waited is destroyed instead, since it cannot be reused.
type semaphore struct {
	pool   *semaphorePool
	handle vk.Semaphore
	waited bool
}

func (s *semaphore) Release() {
	if s.pool == nil || s.handle == nullSemaphore {
		return
	}
	if s.waited {
		s.pool.put(s.handle)
	} else {
		vk.DestroySemaphore(s.pool.dev, s.handle, nil)
	}
	s.handle = nullSemaphore
}

type semaphorePool struct {
	dev  vk.Device
	free []vk.Semaphore
}

func newSemaphorePool(dev vk.Device) *semaphorePool {
	return &semaphorePool{dev: dev}
}

func (p *semaphorePool) get() (*semaphore, error) {
	if n := len(p.free); n > 0 {
		h := p.free[n-1]
		p.free = p.free[:n-1]
		return &semaphore{pool: p, handle: h}, nil
	}
	h, err := createSemaphore(p.dev)
	if err != nil {
		return nil, err
	}
	return &semaphore{pool: p, handle: h}, nil
}

func (p *semaphorePool) put(h vk.Semaphore) {
	p.free = append(p.free, h)
}

func (p *semaphorePool) destroy() {
	for _, h := range p.free {
		vk.DestroySemaphore(p.dev, h, nil)
	}
	p.free = nil
}

func createSemaphore(dev vk.Device) (vk.Semaphore, error) {
	var s vk.Semaphore
	ret := vk.CreateSemaphore(dev, &vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}, nil, &s)
	if err := result(ret, "create semaphore"); err != nil {
		return nullSemaphore, err
	}
	return s, nil
}

func semaphoreHandles(sems []gpu.Semaphore) []vk.Semaphore {
	out := make([]vk.Semaphore, 0, len(sems))
	for _, s := range sems {
		if vs, ok := s.(*semaphore); ok && vs.handle != nullSemaphore {
			out = append(out, vs.handle)
		}
	}
	return out
}

// markWaited records that a queued submission consumes sems.
func markWaited(sems []gpu.Semaphore) {
	for _, s := range sems {
		if vs, ok := s.(*semaphore); ok {
			vs.waited = true
		}
	}
}

var nullSemaphore vk.Semaphore
