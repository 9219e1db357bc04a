package gpu

import (
	"github.com/cockroachdb/errors"
)

// FrameStatus is the outcome of BeginFrame.
type FrameStatus int

const (
	// FrameSkipped means no image was acquired; try again next tick.
	FrameSkipped FrameStatus = iota
	// FrameReady means an image was acquired.
	FrameReady
	// FrameResized means an image was acquired after the framebuffers were
	// (re)built. Dimension-dependent uniforms such as the projection must be
	// refreshed.
	FrameResized
)

func (s FrameStatus) String() string {
	switch s {
	case FrameSkipped:
		return "skipped"
	case FrameReady:
		return "ready"
	case FrameResized:
		return "resized"
	default:
		return "unknown"
	}
}

// Acquired reports whether an image was acquired.
func (s FrameStatus) Acquired() bool { return s != FrameSkipped }

// AcquiredImage is the chain image the current frame renders into. It is
// valid from BeginFrame until CommitAndPresent.
type AcquiredImage struct {
	Index     uint32
	Available Signal
}

// FrameOptions configures a FrameManager.
type FrameOptions struct {
	Clear ClearValues
}

// DefaultFrameOptions returns the default clear values.
func DefaultFrameOptions() FrameOptions {
	return FrameOptions{Clear: DefaultClearValues}
}

type retiredResource struct {
	guard   Signal
	release func()
}

// FrameManager drives the acquire, record, submit, present cycle. It owns
// the image chain, the shared depth attachment, the framebuffers, the
// viewport and the single live completion signal.
//
//	Idle -> BeginFrame -> ImageAcquired -> CommitAndPresent -> Idle
//
// A FrameManager belongs to the frame loop goroutine.
type FrameManager struct {
	device Device
	opts   FrameOptions

	swapchain    Swapchain
	extent       Extent
	depth        Attachment
	framebuffers []Framebuffer
	viewport     Viewport
	stale        bool

	signal   Signal
	acquired *AcquiredImage
	pending  *CommandBatch
	retired  []retiredResource

	frames   uint64
	rebuilds uint64
}

// NewFrameManager creates the initial image chain at the surface's current
// size. Framebuffers are built by the first BeginFrame, which therefore
// reports FrameResized.
func NewFrameManager(device Device, opts FrameOptions) (*FrameManager, error) {
	m := &FrameManager{device: device, opts: opts}
	extent, err := device.SurfaceExtent()
	if err != nil {
		return nil, errors.Wrap(err, "failed to query surface extent")
	}
	sc, err := device.CreateSwapchain(extent, nil)
	switch {
	case errors.Is(err, ErrUnsupportedDimensions):
		// Minimized at startup; the first BeginFrame retries.
		m.stale = true
	case err != nil:
		return nil, errors.Wrap(err, "failed to create swapchain")
	default:
		m.swapchain = sc
		m.extent = sc.Extent()
		m.viewport = FullViewport(m.extent)
	}
	return m, nil
}

func (m *FrameManager) Device() Device           { return m.device }
func (m *FrameManager) Extent() Extent           { return m.extent }
func (m *FrameManager) Viewport() Viewport       { return m.viewport }
func (m *FrameManager) Swapchain() Swapchain     { return m.swapchain }
func (m *FrameManager) Acquired() *AcquiredImage { return m.acquired }

// Signal returns the live completion signal, nil before the first frame.
func (m *FrameManager) Signal() Signal { return m.signal }

// Stale reports whether the surface was invalidated since the last rebuild.
func (m *FrameManager) Stale() bool { return m.stale }

// Frames returns the number of submitted frames.
func (m *FrameManager) Frames() uint64 { return m.frames }

// Rebuilds returns the number of image chain rebuilds.
func (m *FrameManager) Rebuilds() uint64 { return m.rebuilds }

// OnSurfaceInvalidated marks the surface stale. GPU resources are rebuilt by
// the next BeginFrame, never from the notifying callback.
func (m *FrameManager) OnSurfaceInvalidated() {
	m.stale = true
}

// JoinSignal folds s into the live completion signal, so later frames run
// after the work s stands for. Upload signals from a ResourceCache arrive
// here.
func (m *FrameManager) JoinSignal(s Signal) {
	m.signal = Join(m.signal, s)
}

// BeginFrame prepares the next frame and acquires a chain image, blocking
// until one is available. Out-of-date surfaces and unsupported dimensions
// skip the frame. Errors are fatal.
func (m *FrameManager) BeginFrame() (FrameStatus, error) {
	if m.acquired != nil {
		return FrameSkipped, errors.AssertionFailedf("BeginFrame called twice without CommitAndPresent")
	}
	if m.signal != nil {
		m.signal.Cleanup()
	} else {
		m.signal = Now()
	}
	m.collect()

	if m.stale || m.swapchain == nil {
		ok, err := m.rebuildSwapchain()
		if err != nil || !ok {
			return FrameSkipped, err
		}
	}

	status := FrameReady
	if m.framebuffers == nil {
		if err := m.buildFramebuffers(); err != nil {
			return FrameSkipped, err
		}
		status = FrameResized
	}

	index, sem, err := m.swapchain.Acquire()
	if err != nil {
		if errors.Is(err, ErrOutOfDate) {
			Logger().Debug("swapchain out of date on acquire")
			m.stale = true
			return FrameSkipped, nil
		}
		return FrameSkipped, errors.Wrap(err, "failed to acquire swapchain image")
	}
	if int(index) >= len(m.framebuffers) {
		return FrameSkipped, errors.AssertionFailedf("acquired image %d of a %d image chain", index, len(m.framebuffers))
	}

	m.acquired = &AcquiredImage{Index: index, Available: SemaphoreSignal(sem)}
	if m.pending == nil {
		m.pending = NewCommandBatch()
	}
	return status, nil
}

// WithCommandBatch applies fn to the pending batch, creating it if needed.
// Unrelated callers append to the same batch this way. It may be called
// before the first BeginFrame; those commands go out with the first frame.
func (m *FrameManager) WithCommandBatch(fn func(*CommandBatch) error) error {
	if m.pending == nil {
		m.pending = NewCommandBatch()
	}
	return fn(m.pending)
}

// BeginRenderPass opens the frame render pass on the acquired image's
// framebuffer with the configured clear values and a full-surface viewport.
func (m *FrameManager) BeginRenderPass() error {
	if m.acquired == nil {
		return errors.AssertionFailedf("BeginRenderPass called without BeginFrame")
	}
	fb := m.framebuffers[m.acquired.Index]
	return m.WithCommandBatch(func(b *CommandBatch) error {
		if err := b.BeginRenderPass(fb, m.extent, m.opts.Clear); err != nil {
			return err
		}
		return b.SetViewport(m.viewport)
	})
}

// CommitAndPresent ends the render pass, submits the pending batch after
// both the previous frame's work and the acquired image, and presents the
// image. The submission's signal becomes the live completion signal.
//
// Out-of-date results mark the surface stale. Other failures are logged and
// treated the same way, except device loss and misuse, which are returned.
func (m *FrameManager) CommitAndPresent() error {
	acq := m.acquired
	if acq == nil {
		return errors.AssertionFailedf("CommitAndPresent called without BeginFrame")
	}
	m.acquired = nil
	batch := m.pending
	m.pending = nil

	if err := batch.EndRenderPass(); err != nil {
		batch.Discard()
		return errors.Wrap(err, "failed to finish frame")
	}
	cmds, err := batch.Commit()
	if err != nil {
		batch.Discard()
		return errors.Wrap(err, "failed to finish frame")
	}

	chained := Join(m.signal, acq.Available)
	m.signal = nil
	done := m.swapchain.RenderFinished(acq.Index)
	next, err := Then(chained, func(waits []Semaphore) (Fence, error) {
		if err := cmds.markSubmitted(); err != nil {
			return nil, err
		}
		return m.device.Submit(cmds, waits, done)
	}, cmds.release)
	if err != nil {
		// Nothing reached the GPU: the regions go back now, and the previous
		// frame's work stays tracked until it completes.
		cmds.release()
		m.signal = Now()
		m.retire(chained, nil)
		return m.absorb(err, "submit")
	}
	m.signal = next
	m.frames++

	if err := m.device.Present(m.swapchain, acq.Index, done); err != nil {
		return m.absorb(err, "present")
	}
	return nil
}

// absorb applies the error policy: device loss and misuse are fatal,
// anything else marks the surface stale and the frame loop carries on.
func (m *FrameManager) absorb(err error, op string) error {
	if errors.Is(err, ErrDeviceLost) || errors.HasAssertionFailure(err) {
		return errors.Wrapf(err, "failed to %s frame", op)
	}
	m.stale = true
	if !isRecoverable(err) {
		Logger().Warn("frame dropped", "op", op, "err", err)
	}
	return nil
}

func (m *FrameManager) rebuildSwapchain() (bool, error) {
	extent, err := m.device.SurfaceExtent()
	if err != nil {
		return false, errors.Wrap(err, "failed to query surface extent")
	}
	sc, err := m.device.CreateSwapchain(extent, m.swapchain)
	if err != nil {
		if errors.Is(err, ErrUnsupportedDimensions) {
			Logger().Debug("surface dimensions unsupported, frame skipped",
				"width", extent.Width, "height", extent.Height)
			return false, nil
		}
		return false, errors.Wrap(err, "failed to recreate swapchain")
	}
	m.retireChain()
	m.swapchain = sc
	m.extent = sc.Extent()
	m.viewport = FullViewport(m.extent)
	m.stale = false
	m.rebuilds++
	Logger().Debug("swapchain rebuilt",
		"width", m.extent.Width, "height", m.extent.Height, "images", len(sc.Images()))
	return true, nil
}

func (m *FrameManager) buildFramebuffers() error {
	depth, err := m.device.CreateDepthAttachment(m.extent)
	if err != nil {
		return errors.Wrap(err, "failed to create depth attachment")
	}
	images := m.swapchain.Images()
	fbs := make([]Framebuffer, 0, len(images))
	for i, img := range images {
		fb, err := m.device.CreateFramebuffer(img, depth, m.extent)
		if err != nil {
			for _, f := range fbs {
				f.Release()
			}
			depth.Release()
			return errors.Wrapf(err, "failed to create framebuffer %d", i)
		}
		fbs = append(fbs, fb)
	}
	m.depth = depth
	m.framebuffers = fbs
	return nil
}

// retireChain hands the current chain, depth and framebuffers to the
// graveyard behind the live signal. Chain and framebuffers always go
// together.
func (m *FrameManager) retireChain() {
	fbs, depth, sc := m.framebuffers, m.depth, m.swapchain
	m.framebuffers, m.depth, m.swapchain = nil, nil, nil
	if fbs == nil && depth == nil && sc == nil {
		return
	}
	m.retire(m.signal, func() {
		for _, fb := range fbs {
			fb.Release()
		}
		if depth != nil {
			depth.Release()
		}
		if sc != nil {
			sc.Release()
		}
	})
}

func (m *FrameManager) retire(guard Signal, release func()) {
	if guard == nil {
		guard = Now()
	}
	m.retired = append(m.retired, retiredResource{guard: guard, release: release})
}

// collect releases retired resources whose guard has completed.
func (m *FrameManager) collect() {
	kept := m.retired[:0]
	for _, r := range m.retired {
		r.guard.Cleanup()
		if !r.guard.Done() {
			kept = append(kept, r)
			continue
		}
		r.guard.resolve()
		if r.release != nil {
			r.release()
		}
	}
	for i := len(kept); i < len(m.retired); i++ {
		m.retired[i] = retiredResource{}
	}
	m.retired = kept
	if n := len(kept); n > 0 {
		Logger().Debug("retired resources still in flight", "count", n)
	}
}

// Release waits for the device to go idle and frees everything the manager
// owns. Pending commands are discarded.
func (m *FrameManager) Release() error {
	err := m.device.WaitIdle()
	if m.pending != nil {
		m.pending.Discard()
		m.pending = nil
	}
	if m.acquired != nil {
		for _, s := range m.acquired.Available.waits() {
			s.Release()
		}
		m.acquired = nil
	}
	if m.signal != nil {
		m.signal.resolve()
		m.signal = nil
	}
	m.retireChain()
	for _, r := range m.retired {
		r.guard.resolve()
		if r.release != nil {
			r.release()
		}
	}
	m.retired = nil
	if err != nil {
		return errors.Wrap(err, "failed to wait for device idle")
	}
	return nil
}
