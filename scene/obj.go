package scene

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"

	"vkrender/gpu"
	"vkrender/pipelines"
)

// LoadOBJ parses a Wavefront .obj file. Materials come from the .mtl files
// it references, resolved relative to the .obj.
func LoadOBJ(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	defer f.Close()

	dir := filepath.Dir(path)
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	m, err := ParseOBJ(name, f, func(lib string) (io.ReadCloser, error) {
		return os.Open(filepath.Join(dir, lib))
	})
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	gpu.Logger().Info("model loaded", "path", path,
		"materials", len(m.Materials), "vertices", m.VertexCount())
	return m, nil
}

// faceVertex holds 0-based indices into the position, UV and normal pools;
// -1 marks an absent reference.
type faceVertex struct{ v, vt, vn int }

type objParser struct {
	positions [][3]float32
	normals   [][3]float32
	uvs       [][2]float32
	model     *Model
	material  string
}

// ParseOBJ reads OBJ text from r. openLib opens the material libraries named
// by mtllib; a library that fails to open is logged and skipped.
func ParseOBJ(name string, r io.Reader, openLib func(string) (io.ReadCloser, error)) (*Model, error) {
	p := &objParser{model: newModel(name), material: DefaultMaterialName}
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		if err := p.directive(fields, openLib); err != nil {
			return nil, errors.Wrapf(err, "line %d", line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read obj")
	}
	if len(p.model.Meshes) == 0 {
		return nil, errors.New("no faces")
	}
	for _, mesh := range p.model.Meshes {
		if _, ok := p.model.Materials[mesh.Material]; !ok {
			p.model.Materials[mesh.Material] = pipelines.DefaultMaterial
		}
	}
	return p.model, nil
}

func (p *objParser) directive(fields []string, openLib func(string) (io.ReadCloser, error)) error {
	switch fields[0] {
	case "v":
		v, err := parseFloats(fields[1:], 3)
		if err != nil {
			return err
		}
		p.positions = append(p.positions, [3]float32{v[0], v[1], v[2]})
	case "vn":
		v, err := parseFloats(fields[1:], 3)
		if err != nil {
			return err
		}
		p.normals = append(p.normals, [3]float32{v[0], v[1], v[2]})
	case "vt":
		v, err := parseFloats(fields[1:], 2)
		if err != nil {
			return err
		}
		p.uvs = append(p.uvs, [2]float32{v[0], v[1]})
	case "usemtl":
		if len(fields) > 1 {
			p.material = fields[1]
		}
	case "mtllib":
		for _, lib := range fields[1:] {
			if err := p.loadLib(lib, openLib); err != nil {
				gpu.Logger().Warn("skipping material library", "lib", lib, "err", err)
			}
		}
	case "f":
		return p.face(fields[1:])
	}
	return nil
}

func (p *objParser) loadLib(lib string, openLib func(string) (io.ReadCloser, error)) error {
	if openLib == nil {
		return errors.New("no material library resolver")
	}
	rc, err := openLib(lib)
	if err != nil {
		return err
	}
	defer rc.Close()
	mats, err := ParseMTL(rc)
	if err != nil {
		return err
	}
	for k, v := range mats {
		p.model.Materials[k] = v
	}
	return nil
}

// face fan-triangulates a polygon.
func (p *objParser) face(tokens []string) error {
	if len(tokens) < 3 {
		return errors.Newf("face with %d vertices", len(tokens))
	}
	verts := make([]pipelines.VertexPhong, len(tokens))
	for i, tok := range tokens {
		fv, err := p.resolve(tok)
		if err != nil {
			return err
		}
		verts[i].Position = p.positions[fv.v]
		if fv.vn >= 0 {
			verts[i].Normal = p.normals[fv.vn]
		}
		if fv.vt >= 0 {
			verts[i].UV = p.uvs[fv.vt]
		}
	}
	tris := make([]pipelines.VertexPhong, 0, 3*(len(verts)-2))
	for i := 1; i+1 < len(verts); i++ {
		tri := [3]pipelines.VertexPhong{verts[0], verts[i], verts[i+1]}
		if mgl32.Vec3(tri[0].Normal).Len() == 0 {
			n := faceNormal(tri)
			for k := range tri {
				tri[k].Normal = n
			}
		}
		tris = append(tris, tri[:]...)
	}
	p.model.add(p.material, tris...)
	return nil
}

// resolve parses "v", "v/vt", "v//vn" or "v/vt/vn". OBJ indices are 1-based;
// negative ones count back from the latest element.
func (p *objParser) resolve(tok string) (faceVertex, error) {
	parts := strings.Split(tok, "/")
	fv := faceVertex{v: -1, vt: -1, vn: -1}
	pools := []struct {
		dst *int
		n   int
	}{{&fv.v, len(p.positions)}, {&fv.vt, len(p.uvs)}, {&fv.vn, len(p.normals)}}
	for i, s := range parts {
		if i >= len(pools) || s == "" {
			continue
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return fv, errors.Wrapf(err, "face vertex %q", tok)
		}
		idx := n - 1
		if n < 0 {
			idx = pools[i].n + n
		}
		if idx < 0 || idx >= pools[i].n {
			return fv, errors.Newf("face vertex %q: index %d out of range", tok, n)
		}
		*pools[i].dst = idx
	}
	if fv.v < 0 {
		return fv, errors.Newf("face vertex %q has no position", tok)
	}
	return fv, nil
}

// ParseMTL reads a material library. Ka, Kd, Ks and Ke map onto the Phong
// terms, Ns onto the shininess and d onto the diffuse alpha.
func ParseMTL(r io.Reader) (map[string]pipelines.Material, error) {
	mats := make(map[string]pipelines.Material)
	var name string
	var cur pipelines.Material
	flush := func() {
		if name != "" {
			mats[name] = cur
		}
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		if fields[0] == "newmtl" {
			flush()
			name = strings.Join(fields[1:], " ")
			cur = pipelines.DefaultMaterial
			continue
		}
		var dst *[4]float32
		switch fields[0] {
		case "Ka":
			dst = &cur.Ambient
		case "Kd":
			dst = &cur.Diffuse
		case "Ks":
			dst = &cur.Specular
		case "Ke":
			dst = &cur.Emission
		case "Ns":
			v, err := parseFloats(fields[1:], 1)
			if err != nil {
				return nil, err
			}
			cur.Shininess = max(1, v[0])
			continue
		case "d":
			v, err := parseFloats(fields[1:], 1)
			if err != nil {
				return nil, err
			}
			cur.Diffuse[3] = v[0]
			continue
		default:
			continue
		}
		v, err := parseFloats(fields[1:], 3)
		if err != nil {
			return nil, err
		}
		dst[0], dst[1], dst[2] = v[0], v[1], v[2]
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read mtl")
	}
	flush()
	return mats, nil
}

func parseFloats(fields []string, n int) ([]float32, error) {
	if len(fields) < n {
		return nil, errors.Newf("want %d numbers, got %d", n, len(fields))
	}
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		f, err := strconv.ParseFloat(fields[i], 32)
		if err != nil {
			return nil, errors.Wrapf(err, "bad number %q", fields[i])
		}
		out[i] = float32(f)
	}
	return out, nil
}
