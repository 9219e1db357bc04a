package textures

import (
	"fmt"
	"image"
	"image/color"

	"github.com/cockroachdb/errors"
	"golang.org/x/image/colornames"

	"vkrender/gpu"
)

// Info describes a cached texture.
type Info struct {
	Width  uint32
	Height uint32
	// Source is the file path, or the generator for procedural textures.
	Source string
}

// Store uploads each distinct texture once and keeps it until the store is
// released. Upload completion is folded into the frame signal, so a texture
// loaded mid-frame is safe to bind in the same frame.
type Store struct {
	device gpu.Device
	cache  *gpu.ResourceCache[gpu.Texture, Info]
}

// NewStore returns an empty store. fold receives every upload signal; pass
// FrameManager.JoinSignal.
func NewStore(device gpu.Device, fold func(gpu.Signal)) *Store {
	return &Store{
		device: device,
		cache: gpu.NewResourceCache[gpu.Texture, Info](fold, func(t gpu.Texture) {
			t.Release()
		}),
	}
}

// Load returns the texture decoded from path.
func (s *Store) Load(path string) (gpu.Texture, Info, error) {
	return s.cache.GetOrLoad("file:"+path, func() (gpu.Texture, Info, gpu.Signal, error) {
		img, err := DecodeFile(path)
		if err != nil {
			return nil, Info{}, nil, err
		}
		gpu.Logger().Info("texture loaded", "path", path, "width", img.Bounds().Dx(), "height", img.Bounds().Dy())
		return s.upload(path, FitWithin(img, MaxSize))
	})
}

// LoadOrChecker returns the texture at path, or the default checkerboard
// when path is empty or cannot be loaded.
func (s *Store) LoadOrChecker(path string) (gpu.Texture, Info, error) {
	if path != "" {
		tex, info, err := s.Load(path)
		if err == nil {
			return tex, info, nil
		}
		gpu.Logger().Warn("falling back to checker texture", "path", path, "err", err)
	}
	return s.Checker(64)
}

// Image uploads img under key.
func (s *Store) Image(key string, img image.Image) (gpu.Texture, Info, error) {
	return s.cache.GetOrLoad("image:"+key, func() (gpu.Texture, Info, gpu.Signal, error) {
		return s.upload(key, FitWithin(ToRGBA(img), MaxSize))
	})
}

// Checker returns the magenta and black checkerboard of the given size.
func (s *Store) Checker(size int) (gpu.Texture, Info, error) {
	key := fmt.Sprintf("checker:%d", size)
	return s.cache.GetOrLoad(key, func() (gpu.Texture, Info, gpu.Signal, error) {
		return s.upload(key, Checker(size, colornames.Magenta, colornames.Black))
	})
}

// Solid returns a one pixel texture of c.
func (s *Store) Solid(c color.RGBA) (gpu.Texture, Info, error) {
	key := fmt.Sprintf("solid:%02x%02x%02x%02x", c.R, c.G, c.B, c.A)
	return s.cache.GetOrLoad(key, func() (gpu.Texture, Info, gpu.Signal, error) {
		return s.upload(key, Solid(c))
	})
}

// Label returns text rendered in white.
func (s *Store) Label(text string) (gpu.Texture, Info, error) {
	key := "label:" + text
	return s.cache.GetOrLoad(key, func() (gpu.Texture, Info, gpu.Signal, error) {
		return s.upload(key, Label(text, colornames.White))
	})
}

func (s *Store) upload(source string, img *image.RGBA) (gpu.Texture, Info, gpu.Signal, error) {
	b := img.Bounds()
	if b.Empty() {
		return nil, Info{}, nil, errors.Newf("texture %q is empty", source)
	}
	info := Info{Width: uint32(b.Dx()), Height: uint32(b.Dy()), Source: source}
	tex, sig, err := s.device.UploadTexture(gpu.TextureDesc{
		Label:  source,
		Width:  info.Width,
		Height: info.Height,
	}, img.Pix)
	if err != nil {
		return nil, Info{}, nil, err
	}
	return tex, info, sig, nil
}

// Len returns the number of cached textures.
func (s *Store) Len() int { return s.cache.Len() }

// Release frees every texture. The GPU must be idle.
func (s *Store) Release() { s.cache.Release() }
