package pipelines

import (
	_ "embed"

	"vkrender/gpu"
)

//go:embed shaders/phong.wgsl
var phongWGSL string

//go:embed shaders/phong.vert
var phongVert string

//go:embed shaders/phong.frag
var phongFrag string

//go:embed shaders/texture2d.wgsl
var texture2DWGSL string

//go:embed shaders/texture2d.vert
var texture2DVert string

//go:embed shaders/texture2d.frag
var texture2DFrag string

//go:embed shaders/color3d.wgsl
var color3DWGSL string

//go:embed shaders/color3d.vert
var color3DVert string

//go:embed shaders/color3d.frag
var color3DFrag string

var (
	phongShader     = gpu.ShaderSource{WGSL: phongWGSL, GLSLVertex: phongVert, GLSLFragment: phongFrag}
	texture2DShader = gpu.ShaderSource{WGSL: texture2DWGSL, GLSLVertex: texture2DVert, GLSLFragment: texture2DFrag}
	color3DShader   = gpu.ShaderSource{WGSL: color3DWGSL, GLSLVertex: color3DVert, GLSLFragment: color3DFrag}
)
