package gpu

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResourceCacheLoadsOncePerKey(t *testing.T) {
	dev := newFakeDevice(1, 1, 1)
	var folded []Signal
	var released []Texture
	cache := NewResourceCache[Texture, Extent](
		func(s Signal) { folded = append(folded, s) },
		func(tex Texture) { released = append(released, tex) },
	)

	loads := 0
	load := func() (Texture, Extent, Signal, error) {
		loads++
		tex, sig, err := dev.UploadTexture(TextureDesc{Width: 4, Height: 2}, make([]byte, 32))
		return tex, tex.Extent(), sig, err
	}

	a, ext, err := cache.GetOrLoad("checker", load)
	require.NoError(t, err)
	assert.Equal(t, Extent{Width: 4, Height: 2}, ext)
	b, _, err := cache.GetOrLoad("checker", load)
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, 1, loads)
	assert.Len(t, folded, 1)

	_, _, err = cache.GetOrLoad("other", load)
	require.NoError(t, err)
	assert.Equal(t, 2, loads)
	assert.Equal(t, 2, cache.Len())

	cache.Release()
	assert.Len(t, released, 2)
	assert.Equal(t, 0, cache.Len())
}

func TestResourceCacheDoesNotCacheFailures(t *testing.T) {
	cache := NewResourceCache[int, string](nil, nil)
	calls := 0
	fail := func() (int, string, Signal, error) {
		calls++
		return 0, "", nil, errors.New("decode failed")
	}
	_, _, err := cache.GetOrLoad("broken.png", fail)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken.png")
	_, _, err = cache.GetOrLoad("broken.png", fail)
	require.Error(t, err)
	assert.Equal(t, 2, calls)

	_, _, ok := cache.Get("broken.png")
	assert.False(t, ok)

	v, meta, err := cache.GetOrLoad("ok", func() (int, string, Signal, error) {
		return 7, "seven", Now(), nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, "seven", meta)
}
