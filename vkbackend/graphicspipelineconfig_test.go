package vkbackend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/vkframe"
)

func vkframeDesc() vkframe.PipelineStateDesc {
	return vkframe.PipelineStateDesc{
		InputLayout: []vkframe.InputElement{
			{Semantic: "POSITION", Format: vkframe.FormatR32G32B32Float, Offset: 0},
			{Semantic: "NORMAL", Format: vkframe.FormatR32G32B32Float, Offset: 12},
			{Semantic: "TEXCOORD", Format: vkframe.FormatR32G32Float, Offset: 24},
		},
		VertexStride:       32,
		DepthStencil:       vkframe.DefaultDepthStencil(),
		RenderTargetFormat: vkframe.FormatBGRA8Unorm,
		DepthStencilFormat: vkframe.FormatD24UnormS8Uint,
		SampleCount:        1,
	}
}

func TestNewGraphicsPipelineConfig(t *testing.T) {
	g, err := newGraphicsPipelineConfig(vkframeDesc())
	require.NoError(t, err)

	assert.Equal(t, vk.FrontFaceClockwise, g.FrontFace)
	assert.Equal(t, vk.CullModeBackBit, g.CullMode)
	assert.Equal(t, vk.SampleCount1Bit, g.Samples)
	assert.Contains(t, g.DynamicState, vk.DynamicStateStencilReference)

	require.Len(t, g.VertexInputBindingDescriptions, 1)
	assert.Equal(t, uint32(32), g.VertexInputBindingDescriptions[0].Stride)
	require.Len(t, g.VertexInputAttributeDescriptions, 3)
	assert.Equal(t, uint32(2), g.VertexInputAttributeDescriptions[2].Location)
	assert.Equal(t, vk.FormatR32g32Sfloat, g.VertexInputAttributeDescriptions[2].Format)
	assert.Equal(t, uint32(24), g.VertexInputAttributeDescriptions[2].Offset)

	require.Len(t, g.BlendAttachments, 1)
	assert.Equal(t, vk.Bool32(vk.True), g.DepthStencil.DepthTestEnable)
	assert.Equal(t, vk.Bool32(vk.False), g.DepthStencil.StencilTestEnable)
}

func TestNewGraphicsPipelineConfigDepthOnly(t *testing.T) {
	desc := vkframeDesc()
	desc.RenderTargetFormat = vkframe.FormatUnknown
	desc.Rasterizer = vkframe.RasterizerState{DepthBias: 100, SlopeScaledDepthBias: 1}
	g, err := newGraphicsPipelineConfig(desc)
	require.NoError(t, err)
	assert.Empty(t, g.BlendAttachments)
	assert.Equal(t, float32(100), g.DepthBiasConstant)
	assert.Equal(t, float32(1), g.DepthBiasSlope)
}

func TestNewGraphicsPipelineConfigErrors(t *testing.T) {
	desc := vkframeDesc()
	desc.SampleCount = 3
	_, err := newGraphicsPipelineConfig(desc)
	assert.ErrorIs(t, err, vkframe.ErrInvalidArgument)

	desc = vkframeDesc()
	desc.InputLayout[1].Format = vkframe.FormatUnknown
	_, err = newGraphicsPipelineConfig(desc)
	assert.ErrorIs(t, err, vkframe.ErrInvalidArgument)
}

func TestBlendAttachment(t *testing.T) {
	opaque := blendAttachment(vkframe.BlendOpaque, false)
	assert.Equal(t, vk.Bool32(vk.False), opaque.BlendEnable)
	assert.Equal(t, vk.ColorComponentFlags(colorWriteAll), opaque.ColorWriteMask)

	alpha := blendAttachment(vkframe.BlendAlpha, false)
	assert.Equal(t, vk.Bool32(vk.True), alpha.BlendEnable)
	assert.Equal(t, vk.BlendFactorSrcAlpha, alpha.SrcColorBlendFactor)
	assert.Equal(t, vk.BlendFactorOneMinusSrcAlpha, alpha.DstColorBlendFactor)

	masked := blendAttachment(vkframe.BlendOpaque, true)
	assert.Zero(t, masked.ColorWriteMask)
}

func TestDepthStencilState(t *testing.T) {
	ds := depthStencilState(vkframe.DepthStencilState{
		DepthTest:        true,
		DepthWrite:       false,
		DepthFunc:        vkframe.CompareLess,
		StencilEnable:    true,
		StencilReadMask:  0xff,
		StencilWriteMask: 0x0f,
		StencilFunc:      vkframe.CompareEqual,
		StencilPass:      vkframe.StencilReplace,
	})
	assert.Equal(t, vk.Bool32(vk.False), ds.DepthWriteEnable)
	assert.Equal(t, vk.Bool32(vk.True), ds.StencilTestEnable)
	assert.Equal(t, ds.Front, ds.Back)
	assert.Equal(t, vk.CompareOpEqual, ds.Front.CompareOp)
	assert.Equal(t, vk.StencilOpReplace, ds.Front.PassOp)
	assert.Equal(t, uint32(0x0f), ds.Front.WriteMask)

	noTest := depthStencilState(vkframe.DepthStencilState{DepthWrite: true})
	assert.Equal(t, vk.Bool32(vk.False), noTest.DepthWriteEnable)
}
