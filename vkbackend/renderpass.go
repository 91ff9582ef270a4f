package vkbackend

import (
	vk "github.com/vulkan-go/vulkan"
)

// passKey identifies a render pass by its attachments and load operations. A
// zero format means the attachment is absent.
type passKey struct {
	color        vk.Format
	depth        vk.Format
	stencil      bool
	samples      vk.SampleCountFlagBits
	clearColor   bool
	clearDepth   bool
	clearStencil bool
}

type framebufferKey struct {
	pass          vk.RenderPass
	color, depth  vk.ImageView
	width, height uint32
}

// renderPassCache creates render passes and framebuffers on first use and keeps
// them until the views they reference go away.
type renderPassCache struct {
	device       vk.Device
	passes       map[passKey]vk.RenderPass
	framebuffers map[framebufferKey]vk.Framebuffer
}

func newRenderPassCache(device vk.Device) *renderPassCache {
	return &renderPassCache{
		device:       device,
		passes:       make(map[passKey]vk.RenderPass),
		framebuffers: make(map[framebufferKey]vk.Framebuffer),
	}
}

func loadOp(clear bool) vk.AttachmentLoadOp {
	if clear {
		return vk.AttachmentLoadOpClear
	}
	return vk.AttachmentLoadOpLoad
}

// passAttachments describes the attachments of key, color first. Attachments
// stay in their attachment layouts; barriers outside the pass move them.
func passAttachments(key passKey) []vk.AttachmentDescription {
	var out []vk.AttachmentDescription
	if key.color != vk.FormatUndefined {
		out = append(out, vk.AttachmentDescription{
			Format:         key.color,
			Samples:        key.samples,
			LoadOp:         loadOp(key.clearColor),
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutColorAttachmentOptimal,
			FinalLayout:    vk.ImageLayoutColorAttachmentOptimal,
		})
	}
	if key.depth != vk.FormatUndefined {
		stencilLoad, stencilStore := vk.AttachmentLoadOpDontCare, vk.AttachmentStoreOpDontCare
		if key.stencil {
			stencilLoad, stencilStore = loadOp(key.clearStencil), vk.AttachmentStoreOpStore
		}
		out = append(out, vk.AttachmentDescription{
			Format:         key.depth,
			Samples:        key.samples,
			LoadOp:         loadOp(key.clearDepth),
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  stencilLoad,
			StencilStoreOp: stencilStore,
			InitialLayout:  vk.ImageLayoutDepthStencilAttachmentOptimal,
			FinalLayout:    vk.ImageLayoutDepthStencilAttachmentOptimal,
		})
	}
	return out
}

func (c *renderPassCache) renderPass(key passKey) (vk.RenderPass, error) {
	if rp, ok := c.passes[key]; ok {
		return rp, nil
	}

	attachments := passAttachments(key)
	subpass := vk.SubpassDescription{PipelineBindPoint: vk.PipelineBindPointGraphics}
	next := uint32(0)
	if key.color != vk.FormatUndefined {
		subpass.ColorAttachmentCount = 1
		subpass.PColorAttachments = []vk.AttachmentReference{{
			Attachment: next,
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		}}
		next++
	}
	if key.depth != vk.FormatUndefined {
		subpass.PDepthStencilAttachment = &vk.AttachmentReference{
			Attachment: next,
			Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
		}
	}

	renderPassInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
	}

	var rp vk.RenderPass
	if err := vkErr("create render pass", vk.CreateRenderPass(c.device, &renderPassInfo, nil, &rp)); err != nil {
		return vk.NullRenderPass, err
	}
	c.passes[key] = rp
	return rp, nil
}

func (c *renderPassCache) framebuffer(key framebufferKey) (vk.Framebuffer, error) {
	if fb, ok := c.framebuffers[key]; ok {
		return fb, nil
	}

	var attachments []vk.ImageView
	if key.color != vk.NullImageView {
		attachments = append(attachments, key.color)
	}
	if key.depth != vk.NullImageView {
		attachments = append(attachments, key.depth)
	}
	fbInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      key.pass,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		Width:           key.width,
		Height:          key.height,
		Layers:          1,
	}

	var fb vk.Framebuffer
	if err := vkErr("create framebuffer", vk.CreateFramebuffer(c.device, &fbInfo, nil, &fb)); err != nil {
		return vk.NullFramebuffer, err
	}
	c.framebuffers[key] = fb
	return fb, nil
}

// evictView destroys the framebuffers that reference view.
func (c *renderPassCache) evictView(view vk.ImageView) {
	for key, fb := range c.framebuffers {
		if key.color == view || key.depth == view {
			vk.DestroyFramebuffer(c.device, fb, nil)
			delete(c.framebuffers, key)
		}
	}
}

func (c *renderPassCache) release() {
	for key, fb := range c.framebuffers {
		vk.DestroyFramebuffer(c.device, fb, nil)
		delete(c.framebuffers, key)
	}
	for key, rp := range c.passes {
		vk.DestroyRenderPass(c.device, rp, nil)
		delete(c.passes, key)
	}
}
