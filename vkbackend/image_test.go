package vkbackend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/vkframe"
)

func TestImageTransition(t *testing.T) {
	img := &Image{Format: vkframe.FormatBGRA8Unorm}
	b, src, dst := img.transition(vkframe.StateRenderTarget, vkframe.StatePresent)
	assert.Equal(t, vk.ImageLayoutColorAttachmentOptimal, b.OldLayout)
	assert.Equal(t, vk.ImageLayoutPresentSrc, b.NewLayout)
	assert.Equal(t, vk.PipelineStageColorAttachmentOutputBit, src)
	assert.Equal(t, vk.PipelineStageColorAttachmentOutputBit, dst)
	assert.Equal(t, uint32(vk.QueueFamilyIgnored), b.SrcQueueFamilyIndex)
	assert.Equal(t, vk.ImageAspectFlags(vk.ImageAspectColorBit), b.SubresourceRange.AspectMask)
}

func TestImageTransitionFromUndefined(t *testing.T) {
	img := &Image{Format: vkframe.FormatBGRA8Unorm, undefined: true}
	b, src, _ := img.transition(vkframe.StatePresent, vkframe.StateRenderTarget)
	assert.Equal(t, vk.ImageLayoutUndefined, b.OldLayout)
	assert.Zero(t, b.SrcAccessMask)
	assert.Equal(t, vk.PipelineStageColorAttachmentOutputBit, src)

	depth := &Image{Format: vkframe.FormatD24UnormS8Uint, undefined: true}
	b, src, _ = depth.transition(vkframe.StateCommon, vkframe.StateDepthWrite)
	assert.Equal(t, vk.ImageLayoutUndefined, b.OldLayout)
	assert.Equal(t, vk.PipelineStageTopOfPipeBit, src)
	assert.Equal(t, vk.ImageAspectFlags(vk.ImageAspectDepthBit|vk.ImageAspectStencilBit), b.SubresourceRange.AspectMask)
}

func TestTextureUsage(t *testing.T) {
	u := textureUsage(vkframe.TextureDesc{Usage: vkframe.UsageDepthStencil | vkframe.UsageShaderResource})
	assert.NotZero(t, u&vk.ImageUsageDepthStencilAttachmentBit)
	assert.NotZero(t, u&vk.ImageUsageSampledBit)
	assert.Zero(t, u&vk.ImageUsageColorAttachmentBit)
}

func TestImageOf(t *testing.T) {
	tex := &Texture{Image: Image{Format: vkframe.FormatRGBA8Unorm}}
	img, err := imageOf(tex)
	assert.NoError(t, err)
	assert.Same(t, &tex.Image, img)

	swap := &swapImage{Image{Format: vkframe.FormatBGRA8Unorm}}
	img, err = imageOf(swap)
	assert.NoError(t, err)
	assert.Same(t, &swap.Image, img)

	_, err = imageOf(&Buffer{})
	assert.ErrorIs(t, err, vkframe.ErrInvalidArgument)
}
