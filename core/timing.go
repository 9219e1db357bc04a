package core

import (
	"time"
)

// FPSWindow is the number of frame deltas an FPSCounter averages over.
const FPSWindow = 600

// FPSCounter keeps a ring of the most recent frame deltas in seconds.
type FPSCounter struct {
	deltas [FPSWindow]float32
	index  int
	filled int
	last   time.Time
	now    func() time.Time
}

func NewFPSCounter() *FPSCounter {
	return newFPSCounter(time.Now)
}

func newFPSCounter(now func() time.Time) *FPSCounter {
	return &FPSCounter{last: now(), now: now}
}

// NextFrame records the time since the previous call and returns it in
// seconds.
func (c *FPSCounter) NextFrame() float32 {
	t := c.now()
	dt := float32(t.Sub(c.last).Seconds())
	c.last = t
	c.deltas[c.index] = dt
	c.index = (c.index + 1) % FPSWindow
	if c.filled < FPSWindow {
		c.filled++
	}
	return dt
}

// AvgFrameDelta averages the recorded deltas.
func (c *FPSCounter) AvgFrameDelta() float32 {
	if c.filled == 0 {
		return 0
	}
	var sum float32
	for _, dt := range c.deltas[:c.filled] {
		sum += dt
	}
	return sum / float32(c.filled)
}

// CurrentFPS is the reciprocal of AvgFrameDelta, 0 before the first frame.
func (c *FPSCounter) CurrentFPS() float32 {
	avg := c.AvgFrameDelta()
	if avg == 0 {
		return 0
	}
	return 1 / avg
}

// LastDelta returns the most recent delta.
func (c *FPSCounter) LastDelta() float32 {
	if c.filled == 0 {
		return 0
	}
	return c.deltas[(c.index+FPSWindow-1)%FPSWindow]
}

// Frames returns the recorded deltas, oldest first.
func (c *FPSCounter) Frames() []float32 {
	out := make([]float32, 0, c.filled)
	start := 0
	if c.filled == FPSWindow {
		start = c.index
	}
	for i := 0; i < c.filled; i++ {
		out = append(out, c.deltas[(start+i)%FPSWindow])
	}
	return out
}

// Measure runs f and reports how long it took.
func Measure[T any](f func() T) (T, time.Duration) {
	start := time.Now()
	v := f()
	return v, time.Since(start)
}
