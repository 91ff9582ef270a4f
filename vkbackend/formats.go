package vkbackend

import (
	"slices"

	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/vkframe"
)

var formats = map[vkframe.Format]vk.Format{
	vkframe.FormatUnknown:        vk.FormatUndefined,
	vkframe.FormatBGRA8Unorm:     vk.FormatB8g8r8a8Unorm,
	vkframe.FormatRGBA8Unorm:     vk.FormatR8g8b8a8Unorm,
	vkframe.FormatRGBA16Float:    vk.FormatR16g16b16a16Sfloat,
	vkframe.FormatD24UnormS8Uint: vk.FormatD24UnormS8Uint,
	vkframe.FormatD32Float:       vk.FormatD32Sfloat,
	vkframe.FormatR32Uint:        vk.FormatR32Uint,
	vkframe.FormatR32G32B32Float: vk.FormatR32g32b32Sfloat,
	vkframe.FormatR32G32Float:    vk.FormatR32g32Sfloat,
	vkframe.FormatR16Uint:        vk.FormatR16Uint,
}

func vkFormat(f vkframe.Format) vk.Format {
	if v, ok := formats[f]; ok {
		return v
	}
	return vk.FormatUndefined
}

func isDepthFormat(f vkframe.Format) bool {
	return f == vkframe.FormatD24UnormS8Uint || f == vkframe.FormatD32Float
}

func hasStencil(f vkframe.Format) bool {
	return f == vkframe.FormatD24UnormS8Uint
}

func aspectMask(f vkframe.Format) vk.ImageAspectFlags {
	switch {
	case hasStencil(f):
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit | vk.ImageAspectStencilBit)
	case isDepthFormat(f):
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	}
	return vk.ImageAspectFlags(vk.ImageAspectColorBit)
}

var sampleCounts = []struct {
	n   int
	bit vk.SampleCountFlagBits
}{
	{1, vk.SampleCount1Bit},
	{2, vk.SampleCount2Bit},
	{4, vk.SampleCount4Bit},
	{8, vk.SampleCount8Bit},
	{16, vk.SampleCount16Bit},
	{32, vk.SampleCount32Bit},
	{64, vk.SampleCount64Bit},
}

// sampleCountBit returns the flag for n samples; zero is treated as one.
func sampleCountBit(n int) (vk.SampleCountFlagBits, bool) {
	if n == 0 {
		n = 1
	}
	for _, s := range sampleCounts {
		if s.n == n {
			return s.bit, true
		}
	}
	return vk.SampleCount1Bit, false
}

// stateSync is how a resource state is expressed to a pipeline barrier.
type stateSync struct {
	layout vk.ImageLayout
	access vk.AccessFlagBits
	stage  vk.PipelineStageFlagBits
}

func syncFor(s vkframe.ResourceState) stateSync {
	switch s {
	case vkframe.StatePresent:
		return stateSync{vk.ImageLayoutPresentSrc, 0, vk.PipelineStageColorAttachmentOutputBit}
	case vkframe.StateRenderTarget:
		return stateSync{vk.ImageLayoutColorAttachmentOptimal,
			vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit,
			vk.PipelineStageColorAttachmentOutputBit}
	case vkframe.StateDepthWrite:
		return stateSync{vk.ImageLayoutDepthStencilAttachmentOptimal,
			vk.AccessDepthStencilAttachmentReadBit | vk.AccessDepthStencilAttachmentWriteBit,
			vk.PipelineStageEarlyFragmentTestsBit | vk.PipelineStageLateFragmentTestsBit}
	case vkframe.StateDepthRead:
		return stateSync{vk.ImageLayoutDepthStencilReadOnlyOptimal,
			vk.AccessDepthStencilAttachmentReadBit | vk.AccessShaderReadBit,
			vk.PipelineStageEarlyFragmentTestsBit | vk.PipelineStageFragmentShaderBit}
	case vkframe.StateShaderResource:
		return stateSync{vk.ImageLayoutShaderReadOnlyOptimal, vk.AccessShaderReadBit,
			vk.PipelineStageVertexShaderBit | vk.PipelineStageFragmentShaderBit}
	case vkframe.StateResolveSource, vkframe.StateCopySource:
		return stateSync{vk.ImageLayoutTransferSrcOptimal, vk.AccessTransferReadBit, vk.PipelineStageTransferBit}
	case vkframe.StateResolveDest, vkframe.StateCopyDest:
		return stateSync{vk.ImageLayoutTransferDstOptimal, vk.AccessTransferWriteBit, vk.PipelineStageTransferBit}
	case vkframe.StatePredication:
		return stateSync{vk.ImageLayoutGeneral, vk.AccessIndirectCommandReadBit, vk.PipelineStageDrawIndirectBit}
	case vkframe.StateGenericRead:
		return stateSync{vk.ImageLayoutGeneral,
			vk.AccessUniformReadBit | vk.AccessVertexAttributeReadBit | vk.AccessIndexReadBit | vk.AccessShaderReadBit,
			vk.PipelineStageVertexInputBit | vk.PipelineStageVertexShaderBit | vk.PipelineStageFragmentShaderBit}
	}
	return stateSync{vk.ImageLayoutGeneral,
		vk.AccessMemoryReadBit | vk.AccessMemoryWriteBit,
		vk.PipelineStageAllCommandsBit}
}

func compareOp(c vkframe.CompareFunc) vk.CompareOp {
	switch c {
	case vkframe.CompareNever:
		return vk.CompareOpNever
	case vkframe.CompareLess:
		return vk.CompareOpLess
	case vkframe.CompareEqual:
		return vk.CompareOpEqual
	case vkframe.CompareLessEqual:
		return vk.CompareOpLessOrEqual
	case vkframe.CompareGreater:
		return vk.CompareOpGreater
	case vkframe.CompareNotEqual:
		return vk.CompareOpNotEqual
	case vkframe.CompareGreaterEqual:
		return vk.CompareOpGreaterOrEqual
	}
	return vk.CompareOpAlways
}

func stencilOp(o vkframe.StencilOp) vk.StencilOp {
	switch o {
	case vkframe.StencilZero:
		return vk.StencilOpZero
	case vkframe.StencilReplace:
		return vk.StencilOpReplace
	case vkframe.StencilIncrement:
		return vk.StencilOpIncrementAndClamp
	}
	return vk.StencilOpKeep
}

func cullMode(c vkframe.CullMode) vk.CullModeFlagBits {
	switch c {
	case vkframe.CullFront:
		return vk.CullModeFrontBit
	case vkframe.CullNone:
		return vk.CullModeNone
	}
	return vk.CullModeBackBit
}

func filterModes(f vkframe.Filter) (vk.Filter, vk.SamplerMipmapMode) {
	switch f {
	case vkframe.FilterPoint:
		return vk.FilterNearest, vk.SamplerMipmapModeNearest
	}
	return vk.FilterLinear, vk.SamplerMipmapModeLinear
}

func addressMode(a vkframe.AddressMode) vk.SamplerAddressMode {
	switch a {
	case vkframe.AddressClamp:
		return vk.SamplerAddressModeClampToEdge
	case vkframe.AddressBorder:
		return vk.SamplerAddressModeClampToBorder
	case vkframe.AddressMirror:
		return vk.SamplerAddressModeMirroredRepeat
	}
	return vk.SamplerAddressModeRepeat
}

func descriptorType(k vkframe.DescriptorRangeKind) vk.DescriptorType {
	switch k {
	case vkframe.RangeConstantBuffer:
		return vk.DescriptorTypeUniformBuffer
	case vkframe.RangeUnorderedAccess:
		return vk.DescriptorTypeStorageImage
	case vkframe.RangeSampler:
		return vk.DescriptorTypeSampler
	}
	return vk.DescriptorTypeSampledImage
}

func shaderStages(v vkframe.ShaderVisibility) vk.ShaderStageFlags {
	switch v {
	case vkframe.VisibilityVertex:
		return vk.ShaderStageFlags(vk.ShaderStageVertexBit)
	case vkframe.VisibilityPixel:
		return vk.ShaderStageFlags(vk.ShaderStageFragmentBit)
	}
	return vk.ShaderStageFlags(vk.ShaderStageVertexBit | vk.ShaderStageFragmentBit)
}

// choosePresentMode picks FIFO unless tearing is allowed, in which case an
// unsynchronized mode is preferred when the surface offers one.
func choosePresentMode(modes []vk.PresentMode, allowTearing bool) vk.PresentMode {
	if allowTearing {
		for _, m := range []vk.PresentMode{vk.PresentModeImmediate, vk.PresentModeMailbox} {
			if slices.Contains(modes, m) {
				return m
			}
		}
	}
	return vk.PresentModeFifo
}
