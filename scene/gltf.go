package scene

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"

	"vkrender/gpu"
	"vkrender/pipelines"
)

// LoadGLTF opens a .gltf or .glb file and flattens its default scene into
// world-space triangles grouped by material.
func LoadGLTF(path string) (*Model, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	m, err := Convert(name, doc)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	gpu.Logger().Info("model loaded", "path", path,
		"materials", len(m.Materials), "vertices", m.VertexCount())
	return m, nil
}

// Convert flattens doc. Node transforms are baked into the vertices.
// Primitives that are not triangle lists are skipped.
func Convert(name string, doc *gltf.Document) (*Model, error) {
	m := newModel(name)

	names := make([]string, len(doc.Materials))
	for i, gm := range doc.Materials {
		n := gm.Name
		if n == "" {
			n = fmt.Sprintf("material_%d", i)
		}
		if _, dup := m.Materials[n]; dup {
			n = fmt.Sprintf("%s_%d", n, i)
		}
		names[i] = n
		m.Materials[n] = phongFromPBR(gm)
	}

	c := converter{doc: doc, model: m, materials: names}
	for _, root := range sceneRoots(doc) {
		if err := c.node(root, mgl32.Ident4(), 0); err != nil {
			return nil, err
		}
	}
	if len(m.Meshes) == 0 {
		return nil, errors.New("no triangles in default scene")
	}
	return m, nil
}

// phongFromPBR approximates a metallic-roughness material: roughness maps
// to the shininess exponent and metallic to specular intensity.
func phongFromPBR(gm *gltf.Material) pipelines.Material {
	mat := pipelines.DefaultMaterial
	if pbr := gm.PBRMetallicRoughness; pbr != nil {
		cf := pbr.BaseColorFactorOrDefault()
		mat.Diffuse = [4]float32{float32(cf[0]), float32(cf[1]), float32(cf[2]), float32(cf[3])}
		mat.Ambient = [4]float32{0.1 * mat.Diffuse[0], 0.1 * mat.Diffuse[1], 0.1 * mat.Diffuse[2], 1}

		roughness := float32(pbr.RoughnessFactorOrDefault())
		metallic := float32(pbr.MetallicFactorOrDefault())
		mat.Shininess = (1-roughness)*(1-roughness)*128 + 1
		s := metallic * 0.7
		mat.Specular = [4]float32{s, s, s, 1}
	}
	e := gm.EmissiveFactor
	mat.Emission = [4]float32{float32(e[0]), float32(e[1]), float32(e[2]), 1}
	return mat
}

func sceneRoots(doc *gltf.Document) []int {
	if doc.Scene != nil && *doc.Scene < len(doc.Scenes) {
		return doc.Scenes[*doc.Scene].Nodes
	}
	hasParent := make([]bool, len(doc.Nodes))
	for _, n := range doc.Nodes {
		for _, c := range n.Children {
			if c < len(hasParent) {
				hasParent[c] = true
			}
		}
	}
	var roots []int
	for i := range doc.Nodes {
		if !hasParent[i] {
			roots = append(roots, i)
		}
	}
	return roots
}

// maxDepth bounds node recursion against cyclic documents.
const maxDepth = 64

type converter struct {
	doc       *gltf.Document
	model     *Model
	materials []string
}

func (c *converter) node(idx int, parent mgl32.Mat4, depth int) error {
	if idx < 0 || idx >= len(c.doc.Nodes) {
		return errors.Newf("node %d out of range", idx)
	}
	if depth > maxDepth {
		return errors.Newf("node hierarchy deeper than %d", maxDepth)
	}
	n := c.doc.Nodes[idx]
	world := parent.Mul4(localMatrix(n))
	if n.Mesh != nil && *n.Mesh < len(c.doc.Meshes) {
		for pi, prim := range c.doc.Meshes[*n.Mesh].Primitives {
			if err := c.primitive(prim, world); err != nil {
				return errors.Wrapf(err, "mesh %d primitive %d", *n.Mesh, pi)
			}
		}
	}
	for _, child := range n.Children {
		if err := c.node(child, world, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func localMatrix(n *gltf.Node) mgl32.Mat4 {
	raw := n.MatrixOrDefault()
	var m mgl32.Mat4
	for i, v := range raw {
		m[i] = float32(v)
	}
	if m != mgl32.Ident4() {
		return m
	}
	t := n.TranslationOrDefault()
	r := n.RotationOrDefault()
	s := n.ScaleOrDefault()
	q := mgl32.Quat{W: float32(r[3]), V: mgl32.Vec3{float32(r[0]), float32(r[1]), float32(r[2])}}
	return mgl32.Translate3D(float32(t[0]), float32(t[1]), float32(t[2])).
		Mul4(q.Mat4()).
		Mul4(mgl32.Scale3D(float32(s[0]), float32(s[1]), float32(s[2])))
}

func (c *converter) primitive(prim *gltf.Primitive, world mgl32.Mat4) error {
	if prim.Mode != gltf.PrimitiveTriangles {
		gpu.Logger().Warn("skipping non-triangle primitive", "mode", prim.Mode)
		return nil
	}
	posIdx, ok := prim.Attributes["POSITION"]
	if !ok {
		return errors.New("no POSITION attribute")
	}
	positions, err := modeler.ReadPosition(c.doc, c.doc.Accessors[posIdx], nil)
	if err != nil {
		return errors.Wrap(err, "positions")
	}
	var normals [][3]float32
	if idx, ok := prim.Attributes["NORMAL"]; ok {
		if normals, err = modeler.ReadNormal(c.doc, c.doc.Accessors[idx], nil); err != nil {
			return errors.Wrap(err, "normals")
		}
	}
	var uvs [][2]float32
	if idx, ok := prim.Attributes["TEXCOORD_0"]; ok {
		if uvs, err = modeler.ReadTextureCoord(c.doc, c.doc.Accessors[idx], nil); err != nil {
			return errors.Wrap(err, "texture coordinates")
		}
	}
	var indices []uint32
	if prim.Indices != nil {
		if indices, err = modeler.ReadIndices(c.doc, c.doc.Accessors[*prim.Indices], nil); err != nil {
			return errors.Wrap(err, "indices")
		}
	} else {
		indices = make([]uint32, len(positions))
		for i := range indices {
			indices[i] = uint32(i)
		}
	}
	if len(indices)%3 != 0 {
		return errors.Newf("%d indices do not form triangles", len(indices))
	}

	material := DefaultMaterialName
	if prim.Material != nil && *prim.Material < len(c.materials) {
		material = c.materials[*prim.Material]
	} else if _, ok := c.model.Materials[DefaultMaterialName]; !ok {
		c.model.Materials[DefaultMaterialName] = pipelines.DefaultMaterial
	}

	normalMat := world.Mat3().Inv().Transpose()
	verts := make([]pipelines.VertexPhong, 0, len(indices))
	for t := 0; t < len(indices); t += 3 {
		var tri [3]pipelines.VertexPhong
		for k := 0; k < 3; k++ {
			i := indices[t+k]
			if int(i) >= len(positions) {
				return errors.Newf("index %d out of range of %d positions", i, len(positions))
			}
			p := world.Mul4x1(mgl32.Vec3(positions[i]).Vec4(1)).Vec3()
			tri[k].Position = p
			if int(i) < len(normals) {
				tri[k].Normal = normalMat.Mul3x1(mgl32.Vec3(normals[i])).Normalize()
			}
			if int(i) < len(uvs) {
				tri[k].UV = uvs[i]
			}
		}
		if len(normals) == 0 {
			flat := faceNormal(tri)
			for k := range tri {
				tri[k].Normal = flat
			}
		}
		verts = append(verts, tri[:]...)
	}
	c.model.add(material, verts...)
	return nil
}

// faceNormal returns the normal of a counter-clockwise triangle, or +Y for a
// degenerate one.
func faceNormal(tri [3]pipelines.VertexPhong) [3]float32 {
	a := mgl32.Vec3(tri[0].Position)
	n := mgl32.Vec3(tri[1].Position).Sub(a).Cross(mgl32.Vec3(tri[2].Position).Sub(a))
	if n.Len() == 0 {
		return [3]float32{0, 1, 0}
	}
	return n.Normalize()
}
