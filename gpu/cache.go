package gpu

import (
	"github.com/cockroachdb/errors"
)

// Loader uploads a resource and returns it with its metadata and the signal
// that resolves once the upload has finished on the GPU.
type Loader[R, M any] func() (R, M, Signal, error)

type cacheEntry[R, M any] struct {
	resource R
	meta     M
}

// ResourceCache maps content keys to immutable GPU resources. It belongs to
// one renderer; entries live as long as the cache. Not safe for concurrent
// use.
type ResourceCache[R, M any] struct {
	entries map[string]cacheEntry[R, M]
	fold    func(Signal)
	release func(R)
}

// NewResourceCache returns an empty cache. fold receives every upload signal
// and must join it into the live completion signal (see
// FrameManager.JoinSignal). release, if not nil, frees resources on Release.
func NewResourceCache[R, M any](fold func(Signal), release func(R)) *ResourceCache[R, M] {
	return &ResourceCache[R, M]{
		entries: make(map[string]cacheEntry[R, M]),
		fold:    fold,
		release: release,
	}
}

// GetOrLoad returns the entry for key, running load only when key is
// absent. Failed loads are not cached.
func (c *ResourceCache[R, M]) GetOrLoad(key string, load Loader[R, M]) (R, M, error) {
	if e, ok := c.entries[key]; ok {
		return e.resource, e.meta, nil
	}
	res, meta, sig, err := load()
	if err != nil {
		var zr R
		var zm M
		return zr, zm, errors.Wrapf(err, "failed to load %q", key)
	}
	c.entries[key] = cacheEntry[R, M]{resource: res, meta: meta}
	if sig != nil && c.fold != nil {
		c.fold(sig)
	}
	return res, meta, nil
}

// Get returns the entry for key without loading.
func (c *ResourceCache[R, M]) Get(key string) (R, M, bool) {
	e, ok := c.entries[key]
	return e.resource, e.meta, ok
}

// Len returns the number of entries.
func (c *ResourceCache[R, M]) Len() int { return len(c.entries) }

// Release frees every entry. Callers wait for the device to go idle first.
func (c *ResourceCache[R, M]) Release() {
	for k, e := range c.entries {
		if c.release != nil {
			c.release(e.resource)
		}
		delete(c.entries, k)
	}
}
