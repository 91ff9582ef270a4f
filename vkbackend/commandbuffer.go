package vkbackend

import (
	vk "github.com/vulkan-go/vulkan"
)

// CommandBuffer is a raw primary command buffer used for one-off uploads and
// transitions. Frame recording goes through CommandList.
type CommandBuffer struct {
	VKCommandBuffer vk.CommandBuffer
}

// BeginOneTime begins capturing work for this command buffer, with the stipulation that it will only be submitted once
func (c *CommandBuffer) BeginOneTime() error {
	return beginOneTime(c.VKCommandBuffer)
}

// End describing work for this command buffer
func (c *CommandBuffer) End() error {
	return vkErr("end command buffer", vk.EndCommandBuffer(c.VKCommandBuffer))
}

func beginOneTime(cb vk.CommandBuffer) error {
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	return vkErr("begin command buffer", vk.BeginCommandBuffer(cb, &beginInfo))
}
