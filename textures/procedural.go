package textures

import (
	"image"
	"image/color"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Checker returns a size by size checkerboard of eight by eight blocks.
func Checker(size int, c1, c2 color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	block := size / 8
	if block < 1 {
		block = 1
	}
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			c := c1
			if (x/block+y/block)%2 != 0 {
				c = c2
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

// Solid returns a single pixel of c.
func Solid(c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.SetRGBA(0, 0, c)
	return img
}

// Label renders text in the 7x13 bitmap face onto a transparent image sized
// to fit it with a one pixel margin.
func Label(text string, c color.Color) *image.RGBA {
	face := basicfont.Face7x13
	const margin = 1
	width := font.MeasureString(face, text).Ceil() + 2*margin
	height := face.Metrics().Height.Ceil() + 2*margin
	if width < 1 {
		width = 1
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(margin, margin+face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(text)
	return img
}
