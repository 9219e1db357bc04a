package textures

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"

	"vkrender/gpu"
	"vkrender/gpu/gputest"
)

func testImage() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	img.Set(0, 0, color.NRGBA{R: 255, A: 255})
	img.Set(2, 1, color.NRGBA{B: 255, A: 255})
	return img
}

func TestDecodePNG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, testImage()))

	img, format, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, 3, img.Bounds().Dx())
	assert.Equal(t, 2, img.Bounds().Dy())
	assert.Equal(t, color.RGBA{R: 255, A: 255}, img.RGBAAt(0, 0))
	assert.Equal(t, color.RGBA{B: 255, A: 255}, img.RGBAAt(2, 1))
	assert.Len(t, img.Pix, 3*2*4)
}

func TestDecodeBMP(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, bmp.Encode(&buf, testImage()))

	img, format, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, "bmp", format)
	assert.Equal(t, color.RGBA{R: 255, A: 255}, img.RGBAAt(0, 0))
}

func TestDecodeGarbage(t *testing.T) {
	_, _, err := Decode(bytes.NewReader([]byte("not an image")))
	assert.Error(t, err)
}

func TestToRGBARebasesSubImage(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 4, 4))
	src.SetRGBA(2, 2, color.RGBA{G: 255, A: 255})
	sub := src.SubImage(image.Rect(2, 2, 4, 4))

	got := ToRGBA(sub)
	assert.Equal(t, image.Rect(0, 0, 2, 2), got.Bounds())
	assert.Equal(t, 8, got.Stride)
	assert.Equal(t, color.RGBA{G: 255, A: 255}, got.RGBAAt(0, 0))

	assert.Same(t, src, ToRGBA(src))
}

func TestFitWithin(t *testing.T) {
	small := image.NewRGBA(image.Rect(0, 0, 8, 4))
	assert.Same(t, small, FitWithin(small, 8))

	got := FitWithin(image.NewRGBA(image.Rect(0, 0, 100, 50)), 10)
	assert.Equal(t, image.Rect(0, 0, 10, 5), got.Bounds())

	got = FitWithin(image.NewRGBA(image.Rect(0, 0, 1, 100)), 10)
	assert.Equal(t, image.Rect(0, 0, 1, 10), got.Bounds())
}

func TestChecker(t *testing.T) {
	a := color.RGBA{R: 255, A: 255}
	b := color.RGBA{A: 255}
	img := Checker(16, a, b)
	assert.Equal(t, a, img.RGBAAt(0, 0))
	assert.Equal(t, b, img.RGBAAt(2, 0))
	assert.Equal(t, a, img.RGBAAt(2, 2))
	assert.Equal(t, b, img.RGBAAt(0, 15))
}

func TestLabelDrawsText(t *testing.T) {
	img := Label("FPS 60", color.White)
	assert.Greater(t, img.Bounds().Dx(), 6*7-1)
	assert.Equal(t, 15, img.Bounds().Dy())

	lit := 0
	for i := 3; i < len(img.Pix); i += 4 {
		if img.Pix[i] != 0 {
			lit++
		}
	}
	assert.NotZero(t, lit)
}

func TestStoreUploadsOnce(t *testing.T) {
	dev := gputest.NewDevice(1, 1)
	dev.Pending = true
	var folded []gpu.Signal
	s := NewStore(dev, func(sig gpu.Signal) { folded = append(folded, sig) })

	t1, info, err := s.Checker(16)
	require.NoError(t, err)
	t2, _, err := s.Checker(16)
	require.NoError(t, err)

	assert.Same(t, t1, t2)
	assert.Len(t, dev.Textures, 1)
	assert.Len(t, folded, 1)
	assert.False(t, folded[0].Done())
	assert.Equal(t, Info{Width: 16, Height: 16, Source: "checker:16"}, info)

	_, _, err = s.Solid(color.RGBA{R: 1, A: 255})
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len())

	s.Release()
	for _, tex := range dev.Textures {
		assert.True(t, tex.Released)
	}
	assert.Zero(t, s.Len())
}

func TestStoreLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "img.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, testImage()))
	require.NoError(t, f.Close())

	dev := gputest.NewDevice(1, 1)
	s := NewStore(dev, nil)
	_, info, err := s.Load(path)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), info.Width)
	assert.Equal(t, path, info.Source)
	assert.Equal(t, []byte{255, 0, 0, 255}, dev.Textures[0].Pixels[:4])
}

func TestStoreFailedLoadNotCached(t *testing.T) {
	dev := gputest.NewDevice(1, 1)
	dev.UploadErr = errors.New("out of memory")
	s := NewStore(dev, nil)

	_, _, err := s.Checker(8)
	assert.Error(t, err)
	assert.Zero(t, s.Len())

	_, _, err = s.Checker(8)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Len())
}

func TestStoreLoadOrCheckerFallsBack(t *testing.T) {
	dev := gputest.NewDevice(1, 1)
	s := NewStore(dev, nil)

	_, info, err := s.LoadOrChecker(filepath.Join(t.TempDir(), "missing.png"))
	require.NoError(t, err)
	assert.Equal(t, "checker:64", info.Source)

	_, info, err = s.LoadOrChecker("")
	require.NoError(t, err)
	assert.Equal(t, "checker:64", info.Source)
	assert.Equal(t, 1, s.Len())
}
