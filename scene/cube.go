package scene

import (
	"vkrender/pipelines"
)

// cubeFaces lists each face's normal and the two axes spanning it, ordered
// so that normal = u x v and the triangles wind counter-clockwise.
var cubeFaces = []struct {
	normal, u, v [3]float32
}{
	{normal: [3]float32{1, 0, 0}, u: [3]float32{0, 1, 0}, v: [3]float32{0, 0, 1}},
	{normal: [3]float32{-1, 0, 0}, u: [3]float32{0, 0, 1}, v: [3]float32{0, 1, 0}},
	{normal: [3]float32{0, 1, 0}, u: [3]float32{0, 0, 1}, v: [3]float32{1, 0, 0}},
	{normal: [3]float32{0, -1, 0}, u: [3]float32{1, 0, 0}, v: [3]float32{0, 0, 1}},
	{normal: [3]float32{0, 0, 1}, u: [3]float32{1, 0, 0}, v: [3]float32{0, 1, 0}},
	{normal: [3]float32{0, 0, -1}, u: [3]float32{0, 1, 0}, v: [3]float32{1, 0, 0}},
}

// Cube returns a unit cube centred on the origin with the default material.
func Cube() *Model {
	m := newModel("cube")
	m.Materials[DefaultMaterialName] = pipelines.DefaultMaterial

	corner := func(n, u, v [3]float32, su, sv float32) pipelines.VertexPhong {
		var p [3]float32
		for i := range p {
			p[i] = 0.5*n[i] + 0.5*su*u[i] + 0.5*sv*v[i]
		}
		return pipelines.VertexPhong{
			Position: p,
			Normal:   n,
			UV:       [2]float32{(su + 1) / 2, (sv + 1) / 2},
		}
	}
	verts := make([]pipelines.VertexPhong, 0, 36)
	for _, f := range cubeFaces {
		a := corner(f.normal, f.u, f.v, -1, -1)
		b := corner(f.normal, f.u, f.v, 1, -1)
		c := corner(f.normal, f.u, f.v, 1, 1)
		d := corner(f.normal, f.u, f.v, -1, 1)
		verts = append(verts, a, b, c, a, c, d)
	}
	m.add(DefaultMaterialName, verts...)
	return m
}
