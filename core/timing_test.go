package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestFPSCounterEmpty(t *testing.T) {
	c := NewFPSCounter()
	assert.Zero(t, c.AvgFrameDelta())
	assert.Zero(t, c.CurrentFPS())
	assert.Zero(t, c.LastDelta())
	assert.Empty(t, c.Frames())
}

func TestFPSCounterAverages(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	c := newFPSCounter(clock.now)

	clock.advance(10 * time.Millisecond)
	assert.InDelta(t, 0.010, c.NextFrame(), 1e-6)
	clock.advance(30 * time.Millisecond)
	assert.InDelta(t, 0.030, c.NextFrame(), 1e-6)

	assert.InDelta(t, 0.020, c.AvgFrameDelta(), 1e-6)
	assert.InDelta(t, 50, c.CurrentFPS(), 1e-3)
	assert.InDelta(t, 0.030, c.LastDelta(), 1e-6)
	require.Len(t, c.Frames(), 2)
	assert.InDelta(t, 0.010, c.Frames()[0], 1e-6)
}

func TestFPSCounterWrapsAround(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	c := newFPSCounter(clock.now)
	for i := 0; i < FPSWindow; i++ {
		clock.advance(time.Second)
		c.NextFrame()
	}
	for i := 0; i < 10; i++ {
		clock.advance(2 * time.Second)
		c.NextFrame()
	}

	frames := c.Frames()
	require.Len(t, frames, FPSWindow)
	assert.InDelta(t, 1, frames[0], 1e-6)
	assert.InDelta(t, 2, frames[FPSWindow-1], 1e-6)
	assert.InDelta(t, 2, c.LastDelta(), 1e-6)
	assert.InDelta(t, float32(FPSWindow+10)/FPSWindow, c.AvgFrameDelta(), 1e-4)
}

func TestMeasure(t *testing.T) {
	v, d := Measure(func() int {
		time.Sleep(time.Millisecond)
		return 42
	})
	assert.Equal(t, 42, v)
	assert.GreaterOrEqual(t, d, time.Millisecond)
}

func TestParseAPI(t *testing.T) {
	api, err := ParseAPI("opengl")
	require.NoError(t, err)
	assert.Equal(t, APIOpenGL, api)

	api, err = ParseAPI("")
	require.NoError(t, err)
	assert.Equal(t, APIVulkan, api)
	assert.Equal(t, "vulkan", api.String())

	_, err = ParseAPI("metal")
	assert.Error(t, err)
}
