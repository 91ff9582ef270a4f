package vkbackend

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/vkframe"
)

// GraphicsPipelineConfig is a utility object to ease construction of graphics pipelines
type GraphicsPipelineConfig struct {
	ShaderStages   []vk.PipelineShaderStageCreateInfo
	PipelineLayout *PipelineLayout
	RenderPass     vk.RenderPass

	PrimitiveTopology vk.PrimitiveTopology
	PolygonMode       vk.PolygonMode
	LineWidth         float32
	CullMode          vk.CullModeFlagBits
	FrontFace         vk.FrontFace
	Samples           vk.SampleCountFlagBits

	DepthBiasConstant float32
	DepthBiasSlope    float32

	// DynamicState specifies which part of the pipeline is set by the command
	// list rather than baked into the pipeline.
	DynamicState []vk.DynamicState

	// BlendAttachments holds one entry per color attachment; it is empty for
	// depth-only pipelines.
	BlendAttachments []vk.PipelineColorBlendAttachmentState

	DepthStencil vk.PipelineDepthStencilStateCreateInfo

	VertexInputBindingDescriptions   []vk.VertexInputBindingDescription
	VertexInputAttributeDescriptions []vk.VertexInputAttributeDescription
}

const colorWriteAll = vk.ColorComponentRBit | vk.ColorComponentGBit | vk.ColorComponentBBit | vk.ColorComponentABit

// newGraphicsPipelineConfig translates the fixed-function part of desc.
// Triangles wind clockwise and the command list flips the viewport, so
// geometry and winding follow the same conventions as the rest of vkframe.
func newGraphicsPipelineConfig(desc vkframe.PipelineStateDesc) (*GraphicsPipelineConfig, error) {
	samples, ok := sampleCountBit(desc.SampleCount)
	if !ok {
		return nil, fmt.Errorf("%w: %d samples", vkframe.ErrInvalidArgument, desc.SampleCount)
	}
	g := &GraphicsPipelineConfig{
		PrimitiveTopology: vk.PrimitiveTopologyTriangleList,
		PolygonMode:       vk.PolygonModeFill,
		LineWidth:         1.0,
		CullMode:          cullMode(desc.Rasterizer.Cull),
		FrontFace:         vk.FrontFaceClockwise,
		Samples:           samples,
		DepthBiasConstant: float32(desc.Rasterizer.DepthBias),
		DepthBiasSlope:    desc.Rasterizer.SlopeScaledDepthBias,
		DynamicState: []vk.DynamicState{
			vk.DynamicStateViewport,
			vk.DynamicStateScissor,
			vk.DynamicStateStencilReference,
		},
		DepthStencil: depthStencilState(desc.DepthStencil),
	}

	if len(desc.InputLayout) > 0 {
		g.VertexInputBindingDescriptions = []vk.VertexInputBindingDescription{{
			Binding:   0,
			Stride:    desc.VertexStride,
			InputRate: vk.VertexInputRateVertex,
		}}
	}
	for i, e := range desc.InputLayout {
		f := vkFormat(e.Format)
		if f == vk.FormatUndefined {
			return nil, fmt.Errorf("%w: input element %q has no format", vkframe.ErrInvalidArgument, e.Semantic)
		}
		g.VertexInputAttributeDescriptions = append(g.VertexInputAttributeDescriptions, vk.VertexInputAttributeDescription{
			Location: uint32(i),
			Binding:  0,
			Format:   f,
			Offset:   e.Offset,
		})
	}

	if desc.RenderTargetFormat != vkframe.FormatUnknown {
		g.BlendAttachments = []vk.PipelineColorBlendAttachmentState{blendAttachment(desc.Blend, desc.NoColorWrite)}
	}
	return g, nil
}

func blendAttachment(mode vkframe.BlendMode, noColorWrite bool) vk.PipelineColorBlendAttachmentState {
	ba := vk.PipelineColorBlendAttachmentState{
		BlendEnable:    vk.False,
		ColorWriteMask: vk.ColorComponentFlags(colorWriteAll),
	}
	if noColorWrite {
		ba.ColorWriteMask = 0
	}
	if mode == vkframe.BlendAlpha {
		ba.BlendEnable = vk.True
		ba.SrcColorBlendFactor = vk.BlendFactorSrcAlpha
		ba.DstColorBlendFactor = vk.BlendFactorOneMinusSrcAlpha
		ba.ColorBlendOp = vk.BlendOpAdd
		ba.SrcAlphaBlendFactor = vk.BlendFactorOne
		ba.DstAlphaBlendFactor = vk.BlendFactorZero
		ba.AlphaBlendOp = vk.BlendOpAdd
	}
	return ba
}

func depthStencilState(ds vkframe.DepthStencilState) vk.PipelineDepthStencilStateCreateInfo {
	out := vk.PipelineDepthStencilStateCreateInfo{
		SType:                 vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:       vkBool(ds.DepthTest),
		DepthWriteEnable:      vkBool(ds.DepthTest && ds.DepthWrite),
		DepthCompareOp:        compareOp(ds.DepthFunc),
		DepthBoundsTestEnable: vk.False,
		MinDepthBounds:        0.0,
		MaxDepthBounds:        1.0,
		StencilTestEnable:     vkBool(ds.StencilEnable),
	}
	if ds.StencilEnable {
		face := vk.StencilOpState{
			FailOp:      vk.StencilOpKeep,
			PassOp:      stencilOp(ds.StencilPass),
			DepthFailOp: vk.StencilOpKeep,
			CompareOp:   compareOp(ds.StencilFunc),
			CompareMask: uint32(ds.StencilReadMask),
			WriteMask:   uint32(ds.StencilWriteMask),
		}
		out.Front, out.Back = face, face
	}
	return out
}

// VKGraphicsPipelineCreateInfo uses the provided config information to create a vulkan vk.GraphicsPipelineCreateInfo structure
func (g *GraphicsPipelineConfig) VKGraphicsPipelineCreateInfo() vk.GraphicsPipelineCreateInfo {
	vertexInputState := vk.PipelineVertexInputStateCreateInfo{
		SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount:   uint32(len(g.VertexInputBindingDescriptions)),
		PVertexBindingDescriptions:      g.VertexInputBindingDescriptions,
		VertexAttributeDescriptionCount: uint32(len(g.VertexInputAttributeDescriptions)),
		PVertexAttributeDescriptions:    g.VertexInputAttributeDescriptions,
	}

	inputAssemblyState := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               g.PrimitiveTopology,
		PrimitiveRestartEnable: vk.False,
	}

	// viewport and scissor are dynamic
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}

	rasterState := vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vk.False,
		RasterizerDiscardEnable: vk.False,
		PolygonMode:             g.PolygonMode,
		LineWidth:               g.LineWidth,
		CullMode:                vk.CullModeFlags(g.CullMode),
		FrontFace:               g.FrontFace,
		DepthBiasEnable:         vkBool(g.DepthBiasConstant != 0 || g.DepthBiasSlope != 0),
		DepthBiasConstantFactor: g.DepthBiasConstant,
		DepthBiasSlopeFactor:    g.DepthBiasSlope,
	}

	multisampleState := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		SampleShadingEnable:  vk.False,
		RasterizationSamples: g.Samples,
		MinSampleShading:     1.0,
	}

	colorBlendState := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		AttachmentCount: uint32(len(g.BlendAttachments)),
		PAttachments:    g.BlendAttachments,
	}

	dynamicState := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		PDynamicStates:    g.DynamicState,
		DynamicStateCount: uint32(len(g.DynamicState)),
	}

	depthStencil := g.DepthStencil

	var pipelineLayout vk.PipelineLayout
	if g.PipelineLayout != nil {
		pipelineLayout = g.PipelineLayout.VKPipelineLayout
	}

	return vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(g.ShaderStages)),
		PStages:             g.ShaderStages,
		PVertexInputState:   &vertexInputState,
		PInputAssemblyState: &inputAssemblyState,
		PDepthStencilState:  &depthStencil,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterState,
		PMultisampleState:   &multisampleState,
		PColorBlendState:    &colorBlendState,
		PDynamicState:       &dynamicState,
		Layout:              pipelineLayout,
		RenderPass:          g.RenderPass,
		Subpass:             0,
	}
}
