package vkbackend

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/vkframe"
)

// PipelineState is a graphics pipeline together with the root signature it was
// built against.
type PipelineState struct {
	Device        *Device
	VKPipeline    vk.Pipeline
	RootSignature *RootSignature
}

var _ vkframe.PipelineState = (*PipelineState)(nil)

type PipelineCache struct {
	Device          *Device
	VKPipelineCache vk.PipelineCache
}

func (d *Device) CreatePipelineCache() (*PipelineCache, error) {
	pipelineCacheCreate := vk.PipelineCacheCreateInfo{
		SType: vk.StructureTypePipelineCacheCreateInfo,
	}
	var pipelineCache vk.PipelineCache
	if err := vkErr("create pipeline cache", vk.CreatePipelineCache(d.VKDevice, &pipelineCacheCreate, nil, &pipelineCache)); err != nil {
		return nil, err
	}
	return &PipelineCache{Device: d, VKPipelineCache: pipelineCache}, nil
}

func (c *PipelineCache) Destroy() {
	vk.DestroyPipelineCache(c.Device.VKDevice, c.VKPipelineCache, nil)
}

// pipelinePassKey is the render pass a pipeline is compiled against. Load
// operations do not affect compatibility, so any pass with the same formats
// and sample count can draw with it.
func (d *Device) pipelinePassKey(desc vkframe.PipelineStateDesc) passKey {
	samples, _ := sampleCountBit(desc.SampleCount)
	key := passKey{samples: samples}
	if desc.RenderTargetFormat != vkframe.FormatUnknown {
		key.color = d.format(desc.RenderTargetFormat)
	}
	if desc.DepthStencilFormat != vkframe.FormatUnknown {
		key.depth = d.format(desc.DepthStencilFormat)
		key.stencil = hasStencil(desc.DepthStencilFormat)
	}
	return key
}

func (d *Device) CreatePipelineState(desc vkframe.PipelineStateDesc) (vkframe.PipelineState, error) {
	rs, ok := desc.RootSignature.(*RootSignature)
	if !ok {
		return nil, fmt.Errorf("%w: pipeline needs a vkbackend root signature, got %T", vkframe.ErrInvalidArgument, desc.RootSignature)
	}
	cfg, err := newGraphicsPipelineConfig(desc)
	if err != nil {
		return nil, err
	}
	cfg.PipelineLayout = rs.Layout

	vs, err := d.CreateShaderModule(desc.VS)
	if err != nil {
		return nil, err
	}
	defer vs.Destroy()
	cfg.ShaderStages = append(cfg.ShaderStages, vs.VKPipelineShaderStageCreateInfo(vk.ShaderStageVertexBit, VertexEntryPoint))

	if len(desc.PS) > 0 {
		ps, err := d.CreateShaderModule(desc.PS)
		if err != nil {
			return nil, err
		}
		defer ps.Destroy()
		cfg.ShaderStages = append(cfg.ShaderStages, ps.VKPipelineShaderStageCreateInfo(vk.ShaderStageFragmentBit, PixelEntryPoint))
	}

	cfg.RenderPass, err = d.passes.renderPass(d.pipelinePassKey(desc))
	if err != nil {
		return nil, err
	}

	pipelines := make([]vk.Pipeline, 1)
	info := []vk.GraphicsPipelineCreateInfo{cfg.VKGraphicsPipelineCreateInfo()}
	if err := vkErr("create graphics pipeline", vk.CreateGraphicsPipelines(d.VKDevice, d.pipelineCache.VKPipelineCache, 1, info, nil, pipelines)); err != nil {
		return nil, err
	}
	return &PipelineState{Device: d, VKPipeline: pipelines[0], RootSignature: rs}, nil
}

func (p *PipelineState) Release() {
	if p.VKPipeline == vk.NullPipeline {
		return
	}
	vk.DestroyPipeline(p.Device.VKDevice, p.VKPipeline, nil)
	p.VKPipeline = vk.NullPipeline
}
