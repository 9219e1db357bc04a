package vulkan

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/gogpu/naga"

	"vkrender/gpu"
)

// pipeline is a graphics pipeline built against the backend's render pass.
type pipeline struct {
	dev        vk.Device
	name       string
	slots      gpu.Layout
	setLayouts []vk.DescriptorSetLayout
	layout     vk.PipelineLayout
	handle     vk.Pipeline
}

func (p *pipeline) Name() string       { return p.name }
func (p *pipeline) Layout() gpu.Layout { return p.slots }

func (p *pipeline) Release() {
	if p.handle != vk.NullPipeline {
		vk.DestroyPipeline(p.dev, p.handle, nil)
		p.handle = vk.NullPipeline
	}
	if p.layout != vk.NullPipelineLayout {
		vk.DestroyPipelineLayout(p.dev, p.layout, nil)
		p.layout = vk.NullPipelineLayout
	}
	destroySetLayouts(p.dev, p.setLayouts)
	p.setLayouts = nil
}

// CreateRenderPass creates the single-subpass frame pass: a cleared color
// attachment presented afterwards and a cleared depth attachment.
func CreateRenderPass(dev vk.Device, colorFormat, depthFormat vk.Format) (vk.RenderPass, error) {
	attachments := []vk.AttachmentDescription{{
		Format:         colorFormat,
		Samples:        vk.SampleCount1Bit,
		LoadOp:         vk.AttachmentLoadOpClear,
		StoreOp:        vk.AttachmentStoreOpStore,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayoutUndefined,
		FinalLayout:    vk.ImageLayoutPresentSrc,
	}, {
		Format:         depthFormat,
		Samples:        vk.SampleCount1Bit,
		LoadOp:         vk.AttachmentLoadOpClear,
		StoreOp:        vk.AttachmentStoreOpDontCare,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayoutUndefined,
		FinalLayout:    vk.ImageLayoutDepthStencilAttachmentOptimal,
	}}

	depthRef := vk.AttachmentReference{
		Attachment: 1,
		Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
	}
	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: 1,
		PColorAttachments: []vk.AttachmentReference{{
			Attachment: 0,
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		}},
		PDepthStencilAttachment: &depthRef,
	}
	dependency := vk.SubpassDependency{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit | vk.PipelineStageEarlyFragmentTestsBit),
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit | vk.PipelineStageEarlyFragmentTestsBit),
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentWriteBit | vk.AccessDepthStencilAttachmentWriteBit),
	}

	var rp vk.RenderPass
	ret := vk.CreateRenderPass(dev, &vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}, nil, &rp)
	return rp, result(ret, "create render pass")
}

// compileShader translates a WGSL module to SPIR-V words.
func compileShader(name, wgsl string) ([]uint32, error) {
	spirv, err := naga.Compile(wgsl)
	if err != nil {
		return nil, errors.Wrapf(err, "compile shader %q", name)
	}
	if len(spirv) == 0 || len(spirv)%4 != 0 {
		return nil, errors.Newf("shader %q: SPIR-V length %d is not a word multiple", name, len(spirv))
	}
	return unsafe.Slice((*uint32)(unsafe.Pointer(&spirv[0])), len(spirv)/4), nil
}

func createShaderModule(dev vk.Device, code []uint32) (vk.ShaderModule, error) {
	var module vk.ShaderModule
	ret := vk.CreateShaderModule(dev, &vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint64(len(code) * 4),
		PCode:    code,
	}, nil, &module)
	return module, result(ret, "create shader module")
}

func vertexFormat(f gpu.VertexFormat) vk.Format {
	switch f {
	case gpu.VertexFloat2:
		return vk.FormatR32g32Sfloat
	case gpu.VertexFloat3:
		return vk.FormatR32g32b32Sfloat
	default:
		return vk.FormatR32g32b32a32Sfloat
	}
}

// CreatePipeline compiles desc's WGSL and builds a triangle-list pipeline
// with dynamic viewport and scissor.
func (b *Backend) CreatePipeline(desc gpu.PipelineDesc) (gpu.Pipeline, error) {
	dev := b.device.Handle
	code, err := compileShader(desc.Name, desc.Shader.WGSL)
	if err != nil {
		return nil, err
	}
	module, err := createShaderModule(dev, code)
	if err != nil {
		return nil, errors.Wrapf(err, "pipeline %q", desc.Name)
	}
	defer vk.DestroyShaderModule(dev, module, nil)

	p := &pipeline{dev: dev, name: desc.Name, slots: desc.Layout}
	if p.setLayouts, err = createSetLayouts(dev, desc.Layout); err != nil {
		return nil, errors.Wrapf(err, "pipeline %q", desc.Name)
	}
	ret := vk.CreatePipelineLayout(dev, &vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: uint32(len(p.setLayouts)),
		PSetLayouts:    p.setLayouts,
	}, nil, &p.layout)
	if err := result(ret, "create pipeline layout"); err != nil {
		p.Release()
		return nil, errors.Wrapf(err, "pipeline %q", desc.Name)
	}

	attrs := make([]vk.VertexInputAttributeDescription, len(desc.Vertex.Attributes))
	for i, a := range desc.Vertex.Attributes {
		attrs[i] = vk.VertexInputAttributeDescription{
			Location: a.Location,
			Binding:  0,
			Format:   vertexFormat(a.Format),
			Offset:   a.Offset,
		}
	}

	cull := vk.CullModeFlags(vk.CullModeNone)
	if desc.CullBack {
		cull = vk.CullModeFlags(vk.CullModeBackBit)
	}
	depth := vk.Bool32(vk.False)
	if desc.DepthTest {
		depth = vk.True
	}
	blend := vk.PipelineColorBlendAttachmentState{ColorWriteMask: 0xF, BlendEnable: vk.False}
	if desc.Blend {
		blend = vk.PipelineColorBlendAttachmentState{
			BlendEnable:         vk.True,
			SrcColorBlendFactor: vk.BlendFactorSrcAlpha,
			DstColorBlendFactor: vk.BlendFactorOneMinusSrcAlpha,
			ColorBlendOp:        vk.BlendOpAdd,
			SrcAlphaBlendFactor: vk.BlendFactorOne,
			DstAlphaBlendFactor: vk.BlendFactorZero,
			AlphaBlendOp:        vk.BlendOpAdd,
			ColorWriteMask:      0xF,
		}
	}

	gpci := []vk.GraphicsPipelineCreateInfo{{
		SType:      vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount: 2,
		PStages: []vk.PipelineShaderStageCreateInfo{{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageVertexBit,
			Module: module,
			PName:  safeString("vs_main"),
		}, {
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageFragmentBit,
			Module: module,
			PName:  safeString("fs_main"),
		}},
		PVertexInputState: &vk.PipelineVertexInputStateCreateInfo{
			SType:                         vk.StructureTypePipelineVertexInputStateCreateInfo,
			VertexBindingDescriptionCount: 1,
			PVertexBindingDescriptions: []vk.VertexInputBindingDescription{{
				Binding:   0,
				Stride:    desc.Vertex.Stride,
				InputRate: vk.VertexInputRateVertex,
			}},
			VertexAttributeDescriptionCount: uint32(len(attrs)),
			PVertexAttributeDescriptions:    attrs,
		},
		PInputAssemblyState: &vk.PipelineInputAssemblyStateCreateInfo{
			SType:    vk.StructureTypePipelineInputAssemblyStateCreateInfo,
			Topology: vk.PrimitiveTopologyTriangleList,
		},
		PViewportState: &vk.PipelineViewportStateCreateInfo{
			SType:         vk.StructureTypePipelineViewportStateCreateInfo,
			ViewportCount: 1,
			ScissorCount:  1,
		},
		PRasterizationState: &vk.PipelineRasterizationStateCreateInfo{
			SType:       vk.StructureTypePipelineRasterizationStateCreateInfo,
			PolygonMode: vk.PolygonModeFill,
			CullMode:    cull,
			FrontFace:   vk.FrontFaceCounterClockwise,
			LineWidth:   1.0,
		},
		PMultisampleState: &vk.PipelineMultisampleStateCreateInfo{
			SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
			RasterizationSamples: vk.SampleCount1Bit,
		},
		PDepthStencilState: &vk.PipelineDepthStencilStateCreateInfo{
			SType:            vk.StructureTypePipelineDepthStencilStateCreateInfo,
			DepthTestEnable:  depth,
			DepthWriteEnable: depth,
			DepthCompareOp:   vk.CompareOpLess,
		},
		PColorBlendState: &vk.PipelineColorBlendStateCreateInfo{
			SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
			AttachmentCount: 1,
			PAttachments:    []vk.PipelineColorBlendAttachmentState{blend},
		},
		PDynamicState: &vk.PipelineDynamicStateCreateInfo{
			SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
			DynamicStateCount: 2,
			PDynamicStates:    []vk.DynamicState{vk.DynamicStateViewport, vk.DynamicStateScissor},
		},
		Layout:     p.layout,
		RenderPass: b.renderPass,
	}}

	var cache vk.PipelineCache
	pipelines := make([]vk.Pipeline, 1)
	ret = vk.CreateGraphicsPipelines(dev, cache, 1, gpci, nil, pipelines)
	if err := result(ret, "create graphics pipeline"); err != nil {
		p.Release()
		return nil, errors.Wrapf(err, "pipeline %q", desc.Name)
	}
	p.handle = pipelines[0]
	gpu.Logger().Debug("pipeline created", "name", desc.Name, "groups", len(desc.Layout.Groups))
	return p, nil
}
