package main

import (
	"github.com/cockroachdb/errors"

	"vkrender/gpu"
	"vkrender/pipelines"
	"vkrender/textures"
)

// overlayItem is one textured quad of the overlay.
type overlayItem struct {
	name     string
	vertices gpu.Buffer
}

// Overlay draws fixed textured quads in pixel space over the scene: a
// caption and a thumbnail of the configured texture.
type Overlay struct {
	pipeline *pipelines.Texture2D
	items    []overlayItem
}

const overlayMargin = 8

func NewOverlay(device gpu.Device, store *textures.Store, caption, texture string) (*Overlay, error) {
	p, err := pipelines.NewTexture2D(device)
	if err != nil {
		return nil, err
	}
	o := &Overlay{pipeline: p}

	label, info, err := store.Label(caption)
	if err != nil {
		o.Release()
		return nil, errors.Wrap(err, "failed to render caption")
	}
	y := float32(overlayMargin)
	if err := o.add(device, "caption", label, pipelines.Quad(overlayMargin, y, float32(info.Width), float32(info.Height))); err != nil {
		o.Release()
		return nil, err
	}
	y += float32(info.Height) + overlayMargin

	thumb, _, err := store.LoadOrChecker(texture)
	if err != nil {
		o.Release()
		return nil, errors.Wrap(err, "failed to load overlay texture")
	}
	if err := o.add(device, "thumbnail", thumb, pipelines.Quad(overlayMargin, y, 96, 96)); err != nil {
		o.Release()
		return nil, err
	}
	return o, nil
}

func (o *Overlay) add(device gpu.Device, name string, tex gpu.Texture, quad []pipelines.VertexTex) error {
	if err := o.pipeline.AddTexture(name, tex); err != nil {
		return err
	}
	buf, err := pipelines.VertexBuffer(device, "overlay."+name, quad)
	if err != nil {
		return err
	}
	o.items = append(o.items, overlayItem{name: name, vertices: buf})
	return nil
}

// Resize records the pixel projection for extent.
func (o *Overlay) Resize(batch *gpu.CommandBatch, extent gpu.Extent) error {
	return o.pipeline.SetProjection(batch, pipelines.PixelProjection(extent))
}

func (o *Overlay) Draw(batch *gpu.CommandBatch) error {
	for _, it := range o.items {
		if err := o.pipeline.Draw(batch, it.name, it.vertices, 6); err != nil {
			return err
		}
	}
	return nil
}

func (o *Overlay) Release() {
	for _, it := range o.items {
		it.vertices.Release()
	}
	o.items = nil
	o.pipeline.Release()
}
