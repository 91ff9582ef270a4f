package vkbackend

import (
	"fmt"

	"github.com/gogpu/naga"
	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/vkframe"
)

// Entry points a pipeline looks up in its vertex and pixel shader modules. A
// single WGSL module may provide both.
const (
	VertexEntryPoint = "vs_main"
	PixelEntryPoint  = "fs_main"
)

// CompileWGSL compiles WGSL source into SPIR-V for use as pipeline bytecode.
// Resources are bound with @group set to the root slot and @binding set to
// the binding documented on RootSignature.
func CompileWGSL(src string) (vkframe.ShaderBytecode, error) {
	spirv, err := naga.Compile(src)
	if err != nil {
		return nil, fmt.Errorf("vkbackend: compile shader: %w", err)
	}
	if len(spirv)%4 != 0 {
		return nil, fmt.Errorf("vkbackend: compile shader: SPIR-V size %d is not word aligned", len(spirv))
	}
	return vkframe.ShaderBytecode(spirv), nil
}

type ShaderModule struct {
	Device         *Device
	VKShaderModule vk.ShaderModule
}

func (d *Device) CreateShaderModule(code vkframe.ShaderBytecode) (*ShaderModule, error) {
	if len(code) == 0 || len(code)%4 != 0 {
		return nil, fmt.Errorf("%w: shader bytecode of %d bytes", vkframe.ErrInvalidArgument, len(code))
	}
	var module vk.ShaderModule
	err := vkErr("create shader module", vk.CreateShaderModule(d.VKDevice, &vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code)),
		PCode:    toWords(code),
	}, nil, &module))
	if err != nil {
		return nil, err
	}
	return &ShaderModule{Device: d, VKShaderModule: module}, nil
}

func (s *ShaderModule) VKPipelineShaderStageCreateInfo(stage vk.ShaderStageFlagBits, entryPoint string) vk.PipelineShaderStageCreateInfo {
	return vk.PipelineShaderStageCreateInfo{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  stage,
		Module: s.VKShaderModule,
		PName:  safeString(entryPoint),
	}
}

func (s *ShaderModule) Destroy() {
	vk.DestroyShaderModule(s.Device.VKDevice, s.VKShaderModule, nil)
}
