package gpu

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFrameManager(t *testing.T, dev *fakeDevice) *FrameManager {
	t.Helper()
	m, err := NewFrameManager(dev, DefaultFrameOptions())
	require.NoError(t, err)
	return m
}

// runFrame renders one empty frame and returns the BeginFrame status.
func runFrame(t *testing.T, m *FrameManager) FrameStatus {
	t.Helper()
	status, err := m.BeginFrame()
	require.NoError(t, err)
	if !status.Acquired() {
		return status
	}
	require.NoError(t, m.BeginRenderPass())
	require.NoError(t, m.CommitAndPresent())
	return status
}

func TestFrameManagerFirstFrameResized(t *testing.T) {
	dev := newFakeDevice(800, 600, 2)
	m := newTestFrameManager(t, dev)
	assert.Nil(t, m.Signal())

	status, err := m.BeginFrame()
	require.NoError(t, err)
	assert.Equal(t, FrameResized, status)
	assert.Equal(t, Extent{Width: 800, Height: 600}, m.Extent())
	assert.Equal(t, FullViewport(Extent{Width: 800, Height: 600}), m.Viewport())
	assert.Len(t, dev.framebuffers, 2)
	require.NotNil(t, m.Acquired())
	assert.Equal(t, uint32(0), m.Acquired().Index)

	before := m.Signal()
	require.NoError(t, m.BeginRenderPass())
	require.NoError(t, m.CommitAndPresent())
	assert.True(t, before != m.Signal())
	assert.Nil(t, m.Acquired())
	assert.Len(t, dev.submits, 1)
	assert.Equal(t, []uint32{0}, dev.presents)
	assert.Equal(t, uint64(1), m.Frames())

	assert.Equal(t, FrameReady, runFrame(t, m))
	assert.Equal(t, []uint32{0, 1}, dev.presents)
}

func TestFrameManagerRecordsPassInOrder(t *testing.T) {
	dev := newFakeDevice(800, 600, 2)
	m := newTestFrameManager(t, dev)
	src, _ := dev.CreateBuffer(BufferDesc{Size: 16})
	dst, _ := dev.CreateBuffer(BufferDesc{Size: 16})

	// Commands recorded before the first frame go out with it.
	require.NoError(t, m.WithCommandBatch(func(b *CommandBatch) error {
		return b.CopyBuffer(src, dst, 16)
	}))
	runFrame(t, m)

	require.Len(t, dev.submits, 1)
	cmds := dev.submits[0].Commands()
	require.Len(t, cmds, 4)
	assert.IsType(t, CopyBufferCmd{}, cmds[0])
	begin, ok := cmds[1].(BeginRenderPassCmd)
	require.True(t, ok)
	assert.Equal(t, DefaultClearValues, begin.Clear)
	assert.Same(t, dev.framebuffers[0], begin.Framebuffer)
	assert.Equal(t, SetViewportCmd{Viewport: m.Viewport()}, cmds[2])
	assert.IsType(t, EndRenderPassCmd{}, cmds[3])
}

func TestFrameManagerWithCommandBatchReturnsMutatorError(t *testing.T) {
	m := newTestFrameManager(t, newFakeDevice(800, 600, 2))
	boom := errors.New("boom")
	err := m.WithCommandBatch(func(*CommandBatch) error { return boom })
	assert.ErrorIs(t, err, boom)

	// The batch survives the failed mutation.
	require.NoError(t, m.WithCommandBatch(func(b *CommandBatch) error {
		assert.Zero(t, b.Len())
		return nil
	}))
}

func TestFrameManagerChainsAcquireSemaphore(t *testing.T) {
	dev := newFakeDevice(800, 600, 2)
	m := newTestFrameManager(t, dev)
	runFrame(t, m)
	runFrame(t, m)

	sc := dev.lastSwapchain()
	require.Len(t, dev.submitWaits, 2)
	assert.Equal(t, []Semaphore{sc.acquired[0]}, dev.submitWaits[0])
	assert.Equal(t, []Semaphore{sc.acquired[1]}, dev.submitWaits[1])

	// Waited semaphores go back once the submission that consumed them ends.
	assert.Equal(t, 0, sc.acquired[0].released)
	dev.signalAll()
	_, err := m.BeginFrame()
	require.NoError(t, err)
	assert.Equal(t, 1, sc.acquired[0].released)
	assert.Equal(t, 1, sc.acquired[1].released)
}

func TestFrameManagerSignalReplacedOncePerFrame(t *testing.T) {
	dev := newFakeDevice(800, 600, 3)
	m := newTestFrameManager(t, dev)

	seen := map[Signal]bool{}
	for i := 0; i < 5; i++ {
		status, err := m.BeginFrame()
		require.NoError(t, err)
		require.True(t, status.Acquired())
		mid := m.Signal()
		require.NoError(t, m.BeginRenderPass())
		require.NoError(t, m.CommitAndPresent())
		s := m.Signal()
		assert.True(t, mid != s)
		assert.False(t, seen[s])
		seen[s] = true
	}
	assert.Equal(t, uint64(5), m.Frames())
	assert.Len(t, dev.fences, 5)
}

func TestFrameManagerOutOfDateOnAcquire(t *testing.T) {
	dev := newFakeDevice(800, 600, 2)
	dev.acquireErrs = []error{nil, nil, ErrOutOfDate}
	m := newTestFrameManager(t, dev)

	assert.Equal(t, FrameResized, runFrame(t, m))
	assert.Equal(t, FrameReady, runFrame(t, m))

	status, err := m.BeginFrame()
	require.NoError(t, err)
	assert.Equal(t, FrameSkipped, status)
	assert.True(t, m.Stale())
	assert.Nil(t, m.Acquired())
	assert.Len(t, dev.swapchains, 1)

	assert.Equal(t, FrameResized, runFrame(t, m))
	assert.False(t, m.Stale())
	assert.Len(t, dev.swapchains, 2)
	assert.Same(t, dev.swapchains[0], dev.swapchains[1].old)
	assert.Equal(t, uint64(1), m.Rebuilds())
	assert.Equal(t, uint64(3), m.Frames())
}

func TestFrameManagerRetiresOldChainBehindSignal(t *testing.T) {
	dev := newFakeDevice(800, 600, 2)
	m := newTestFrameManager(t, dev)
	runFrame(t, m)

	m.OnSurfaceInvalidated()
	runFrame(t, m)
	old := dev.swapchains[0]
	assert.False(t, old.released, "old chain released while its frame is in flight")
	assert.False(t, dev.framebuffers[0].released)
	assert.False(t, dev.depths[0].released)

	dev.signalAll()
	_, err := m.BeginFrame()
	require.NoError(t, err)
	assert.True(t, old.released)
	assert.True(t, dev.framebuffers[0].released)
	assert.True(t, dev.framebuffers[1].released)
	assert.True(t, dev.depths[0].released)
	assert.False(t, dev.lastSwapchain().released)
}

func TestFrameManagerResizeMidFrameWaitsForNextBegin(t *testing.T) {
	dev := newFakeDevice(800, 600, 2)
	m := newTestFrameManager(t, dev)
	runFrame(t, m)

	status, err := m.BeginFrame()
	require.NoError(t, err)
	require.Equal(t, FrameReady, status)

	dev.extent = Extent{Width: 1024, Height: 768}
	m.OnSurfaceInvalidated()
	require.NoError(t, m.BeginRenderPass())
	require.NoError(t, m.CommitAndPresent())
	assert.Len(t, dev.swapchains, 1)
	assert.Equal(t, Extent{Width: 800, Height: 600}, m.Extent())

	status, err = m.BeginFrame()
	require.NoError(t, err)
	assert.Equal(t, FrameResized, status)
	assert.Len(t, dev.swapchains, 2)
	assert.Equal(t, Extent{Width: 1024, Height: 768}, m.Extent())
	assert.Equal(t, float32(1024), m.Viewport().Width)
	assert.Equal(t, Extent{Width: 1024, Height: 768}, dev.framebuffers[len(dev.framebuffers)-1].extent)
}

func TestFrameManagerUnsupportedDimensionsSkips(t *testing.T) {
	dev := newFakeDevice(800, 600, 2)
	m := newTestFrameManager(t, dev)
	runFrame(t, m)

	dev.extent = Extent{}
	m.OnSurfaceInvalidated()
	for i := 0; i < 3; i++ {
		status, err := m.BeginFrame()
		require.NoError(t, err)
		assert.Equal(t, FrameSkipped, status)
		assert.True(t, m.Stale())
	}
	assert.Len(t, dev.swapchains, 1)

	dev.extent = Extent{Width: 640, Height: 480}
	assert.Equal(t, FrameResized, runFrame(t, m))
	assert.Equal(t, Extent{Width: 640, Height: 480}, m.Extent())
}

func TestFrameManagerMinimizedAtStartup(t *testing.T) {
	dev := newFakeDevice(0, 0, 2)
	m := newTestFrameManager(t, dev)
	assert.True(t, m.Stale())

	status, err := m.BeginFrame()
	require.NoError(t, err)
	assert.Equal(t, FrameSkipped, status)

	dev.extent = Extent{Width: 320, Height: 200}
	assert.Equal(t, FrameResized, runFrame(t, m))
}

func TestFrameManagerMisuse(t *testing.T) {
	dev := newFakeDevice(800, 600, 2)
	m := newTestFrameManager(t, dev)

	err := m.CommitAndPresent()
	require.Error(t, err)
	assert.True(t, errors.HasAssertionFailure(err))
	assert.True(t, IsFatal(err))

	require.Error(t, m.BeginRenderPass())

	_, err = m.BeginFrame()
	require.NoError(t, err)
	_, err = m.BeginFrame()
	require.Error(t, err)
	assert.True(t, errors.HasAssertionFailure(err))
}

func TestFrameManagerDeviceLostIsFatal(t *testing.T) {
	t.Run("acquire", func(t *testing.T) {
		dev := newFakeDevice(800, 600, 2)
		dev.acquireErrs = []error{ErrDeviceLost}
		m := newTestFrameManager(t, dev)
		_, err := m.BeginFrame()
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrDeviceLost))
	})
	t.Run("submit", func(t *testing.T) {
		dev := newFakeDevice(800, 600, 2)
		m := newTestFrameManager(t, dev)
		_, err := m.BeginFrame()
		require.NoError(t, err)
		require.NoError(t, m.BeginRenderPass())
		dev.submitErr = errors.Wrap(ErrDeviceLost, "queue submit")
		err = m.CommitAndPresent()
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrDeviceLost))
	})
	t.Run("present", func(t *testing.T) {
		dev := newFakeDevice(800, 600, 2)
		m := newTestFrameManager(t, dev)
		_, err := m.BeginFrame()
		require.NoError(t, err)
		require.NoError(t, m.BeginRenderPass())
		dev.presentErr = ErrDeviceLost
		err = m.CommitAndPresent()
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrDeviceLost))
	})
}

func TestFrameManagerPresentFailureKeepsSignal(t *testing.T) {
	for _, presentErr := range []error{ErrOutOfDate, errors.New("surface lost")} {
		dev := newFakeDevice(800, 600, 2)
		m := newTestFrameManager(t, dev)
		pool := NewScratchPool[[4]float32](dev, "test")
		dst, _ := dev.CreateBuffer(BufferDesc{Size: 16})

		_, err := m.BeginFrame()
		require.NoError(t, err)
		h, err := pool.Acquire([4]float32{1, 2, 3, 4})
		require.NoError(t, err)
		require.NoError(t, m.WithCommandBatch(func(b *CommandBatch) error {
			return b.CopyScratch(h, dst)
		}))
		require.NoError(t, m.BeginRenderPass())
		dev.presentErr = presentErr
		require.NoError(t, m.CommitAndPresent())

		assert.True(t, m.Stale())
		_, ready := m.Signal().(readySignal)
		assert.False(t, ready)
		assert.False(t, m.Signal().Done())
		// The submitted copy is still in flight.
		assert.Equal(t, 1, pool.Stats().Live)

		dev.presentErr = nil
		dev.signalAll()
		assert.Equal(t, FrameResized, runFrame(t, m))
		assert.Equal(t, 0, pool.Stats().Live)
	}
}

func TestFrameManagerSubmitFailureReturnsScratch(t *testing.T) {
	dev := newFakeDevice(800, 600, 2)
	m := newTestFrameManager(t, dev)
	pool := NewScratchPool[[4]float32](dev, "test")
	dst, _ := dev.CreateBuffer(BufferDesc{Size: 16})

	runFrame(t, m)
	_, err := m.BeginFrame()
	require.NoError(t, err)
	acquired := dev.lastSwapchain().acquired[1]
	h, err := pool.Acquire([4]float32{})
	require.NoError(t, err)
	require.NoError(t, m.WithCommandBatch(func(b *CommandBatch) error {
		return b.CopyScratch(h, dst)
	}))
	require.NoError(t, m.BeginRenderPass())
	dev.submitErr = errors.New("queue rejected submission")
	require.NoError(t, m.CommitAndPresent())

	assert.True(t, m.Stale())
	assert.Equal(t, Now(), m.Signal())
	assert.Equal(t, 0, pool.Stats().Live)
	assert.Equal(t, 1, acquired.released)
	assert.Len(t, dev.presents, 1)

	// The first frame's fence is still tracked and its semaphore released
	// once it completes.
	first := dev.lastSwapchain().acquired[0]
	assert.Equal(t, 0, first.released)
	dev.submitErr = nil
	dev.signalAll()
	_, err = m.BeginFrame()
	require.NoError(t, err)
	assert.Equal(t, 1, first.released)
	assert.Equal(t, 1, dev.fences[0].released)
}

func TestFrameManagerScratchRecycledAfterFence(t *testing.T) {
	dev := newFakeDevice(800, 600, 2)
	m := newTestFrameManager(t, dev)
	pool := NewScratchPool[[16]float32](dev, "projection")
	dst, _ := dev.CreateBuffer(BufferDesc{Size: pool.ElemSize()})

	frame := func() {
		_, err := m.BeginFrame()
		require.NoError(t, err)
		h, err := pool.Acquire([16]float32{1})
		require.NoError(t, err)
		require.NoError(t, m.WithCommandBatch(func(b *CommandBatch) error {
			return b.CopyScratch(h, dst)
		}))
		require.NoError(t, m.BeginRenderPass())
		require.NoError(t, m.CommitAndPresent())
	}

	frame()
	frame()
	assert.Equal(t, ScratchStats{Allocated: 2, Free: 0, Live: 2}, pool.Stats())

	dev.signalAll()
	frame()
	// Both earlier regions came back before the third acquire reused one.
	assert.Equal(t, ScratchStats{Allocated: 2, Free: 1, Live: 1}, pool.Stats())
}

func TestFrameManagerJoinSignalDelaysCleanup(t *testing.T) {
	dev := newFakeDevice(800, 600, 2)
	m := newTestFrameManager(t, dev)
	tex, upload, err := dev.UploadTexture(TextureDesc{Width: 2, Height: 2}, make([]byte, 16))
	require.NoError(t, err)
	require.NotNil(t, tex)

	m.JoinSignal(upload)
	assert.Same(t, upload, m.Signal())
	runFrame(t, m)
	assert.False(t, m.Signal().Done())

	dev.fences[0].signaled = true
	assert.False(t, m.Signal().Done())
	dev.signalAll()
	assert.True(t, m.Signal().Done())
}

func TestFrameManagerRelease(t *testing.T) {
	dev := newFakeDevice(800, 600, 2)
	m := newTestFrameManager(t, dev)
	runFrame(t, m)
	m.OnSurfaceInvalidated()
	runFrame(t, m)
	_, err := m.BeginFrame()
	require.NoError(t, err)

	require.NoError(t, m.Release())
	assert.Equal(t, 1, dev.waitIdle)
	for _, sc := range dev.swapchains {
		assert.True(t, sc.released)
	}
	for _, fb := range dev.framebuffers {
		assert.True(t, fb.released)
	}
	for _, f := range dev.fences {
		assert.Equal(t, 1, f.released)
	}
	assert.Nil(t, m.Signal())
	assert.Nil(t, m.Acquired())
}

func TestFrameStatus(t *testing.T) {
	assert.False(t, FrameSkipped.Acquired())
	assert.True(t, FrameReady.Acquired())
	assert.True(t, FrameResized.Acquired())
	assert.Equal(t, "resized", FrameResized.String())
}
