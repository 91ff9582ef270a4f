package vkbackend

import (
	"errors"
	"fmt"

	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/vkframe"
)

// CommandList records into a command buffer owned by the allocator passed to
// Reset; each allocator gets its own buffer the first time it is used. It
// implements vkframe.CommandList.
//
// The recording methods have no error return. The first failure is kept and
// reported by Close, and the list records nothing more until then.
type CommandList struct {
	Device          *Device
	VKCommandBuffer vk.CommandBuffer

	buffers       map[*CommandPool]vk.CommandBuffer
	open          bool
	err           error
	rootSignature *RootSignature
	inPass        bool
}

var _ vkframe.CommandList = (*CommandList)(nil)

func (d *Device) CreateCommandList(alloc vkframe.CommandAllocator) (vkframe.CommandList, error) {
	cl := &CommandList{Device: d, buffers: make(map[*CommandPool]vk.CommandBuffer)}
	if err := cl.Reset(alloc, nil); err != nil {
		return nil, err
	}
	return cl, nil
}

func (cl *CommandList) fail(err error) {
	if cl.err == nil && err != nil {
		cl.err = err
		vkframe.Logger().Warn("vkbackend: command recording failed", "err", err)
	}
}

// recording reports whether commands may be recorded.
func (cl *CommandList) recording() bool {
	if !cl.open {
		cl.fail(errors.New("vkbackend: command list is closed"))
		return false
	}
	return cl.err == nil
}

func (cl *CommandList) Reset(alloc vkframe.CommandAllocator, initial vkframe.PipelineState) error {
	if cl.open {
		return fmt.Errorf("%w: reset of an open command list", vkframe.ErrInvalidArgument)
	}
	pool, ok := alloc.(*CommandPool)
	if !ok {
		return fmt.Errorf("%w: allocator %T is not a vkbackend pool", vkframe.ErrInvalidArgument, alloc)
	}
	cb, ok := cl.buffers[pool]
	if !ok {
		b, err := pool.AllocateBuffer()
		if err != nil {
			return err
		}
		cb = b.VKCommandBuffer
		cl.buffers[pool] = cb
	}
	if err := beginOneTime(cb); err != nil {
		return err
	}
	cl.VKCommandBuffer = cb
	cl.open, cl.err, cl.inPass, cl.rootSignature = true, nil, false, nil
	if initial != nil {
		cl.SetPipelineState(initial)
	}
	return nil
}

// Close ends recording and returns the first error met while recording.
func (cl *CommandList) Close() error {
	if !cl.open {
		return fmt.Errorf("%w: close of a closed command list", vkframe.ErrInvalidArgument)
	}
	if cl.inPass {
		vk.CmdEndRenderPass(cl.VKCommandBuffer)
		cl.inPass = false
		cl.fail(errors.New("vkbackend: render pass left open"))
	}
	cl.open = false
	if err := vkErr("end command buffer", vk.EndCommandBuffer(cl.VKCommandBuffer)); err != nil {
		return err
	}
	return cl.err
}

func (cl *CommandList) ResourceBarrier(barriers ...vkframe.Barrier) {
	if !cl.recording() {
		return
	}
	var (
		images     []vk.ImageMemoryBarrier
		srcStages  vk.PipelineStageFlagBits
		dstStages  vk.PipelineStageFlagBits
		memAccess  [2]vk.AccessFlagBits
		memBarrier bool
	)
	for _, b := range barriers {
		if img, err := imageOf(b.Resource); err == nil {
			barrier, src, dst := img.transition(b.Before, b.After)
			img.undefined = false
			images = append(images, barrier)
			srcStages |= src
			dstStages |= dst
			continue
		}
		if _, err := bufferOf(b.Resource); err != nil {
			cl.fail(err)
			return
		}
		src, dst := syncFor(b.Before), syncFor(b.After)
		memAccess[0] |= src.access
		memAccess[1] |= dst.access
		srcStages |= src.stage
		dstStages |= dst.stage
		memBarrier = true
	}
	if srcStages == 0 {
		srcStages = vk.PipelineStageTopOfPipeBit
	}
	if dstStages == 0 {
		dstStages = vk.PipelineStageBottomOfPipeBit
	}

	var memory []vk.MemoryBarrier
	if memBarrier {
		memory = []vk.MemoryBarrier{{
			SType:         vk.StructureTypeMemoryBarrier,
			SrcAccessMask: vk.AccessFlags(memAccess[0]),
			DstAccessMask: vk.AccessFlags(memAccess[1]),
		}}
	}
	vk.CmdPipelineBarrier(cl.VKCommandBuffer, vk.PipelineStageFlags(srcStages), vk.PipelineStageFlags(dstStages), 0,
		uint32(len(memory)), memory, 0, nil, uint32(len(images)), images)
}

// ResolveSubresource resolves a multisampled image in ResolveSource into one in
// ResolveDest.
func (cl *CommandList) ResolveSubresource(dst, src vkframe.Resource, format vkframe.Format) {
	if !cl.recording() {
		return
	}
	dstImg, err := imageOf(dst)
	if err != nil {
		cl.fail(err)
		return
	}
	srcImg, err := imageOf(src)
	if err != nil {
		cl.fail(err)
		return
	}
	region := vk.ImageResolve{
		SrcSubresource: srcImg.subresourceLayers(),
		DstSubresource: dstImg.subresourceLayers(),
		Extent:         vk.Extent3D{Width: dstImg.Extent.Width, Height: dstImg.Extent.Height, Depth: 1},
	}
	vk.CmdResolveImage(cl.VKCommandBuffer,
		srcImg.VKImage, vk.ImageLayoutTransferSrcOptimal,
		dstImg.VKImage, vk.ImageLayoutTransferDstOptimal,
		1, []vk.ImageResolve{region})
}

// BeginRenderPass starts a pass over the views named in desc. Attachments with
// a clear value are cleared; the others keep their contents.
func (cl *CommandList) BeginRenderPass(desc vkframe.RenderPassDesc) {
	if !cl.recording() {
		return
	}
	if cl.inPass {
		cl.fail(errors.New("vkbackend: nested render pass"))
		return
	}
	color, depth := imageView(desc.Color), imageView(desc.Depth)
	if color == nil && depth == nil {
		cl.fail(fmt.Errorf("%w: render pass without attachments", vkframe.ErrInvalidArgument))
		return
	}

	key := passKey{
		clearColor:   desc.ClearColor != nil,
		clearDepth:   desc.ClearDepth != nil,
		clearStencil: desc.ClearStencil != nil,
	}
	fbKey := framebufferKey{}
	var clears []vk.ClearValue
	var extent vk.Extent2D
	if color != nil {
		key.color, key.samples = color.Image.VKFormat, color.Image.Samples
		fbKey.color = color.VKImageView
		extent = color.Image.Extent
		c := vk.NewClearValue([]float32{0, 0, 0, 0})
		if desc.ClearColor != nil {
			c = vk.NewClearValue(desc.ClearColor[:])
		}
		clears = append(clears, c)
	}
	if depth != nil {
		key.depth, key.samples = depth.Image.VKFormat, depth.Image.Samples
		key.stencil = hasStencil(depth.Image.Format)
		fbKey.depth = depth.VKImageView
		if color == nil {
			extent = depth.Image.Extent
		}
		d, s := float32(1), uint32(0)
		if desc.ClearDepth != nil {
			d = *desc.ClearDepth
		}
		if desc.ClearStencil != nil {
			s = uint32(*desc.ClearStencil)
		}
		clears = append(clears, vk.NewClearDepthStencil(d, s))
	}

	rp, err := cl.Device.passes.renderPass(key)
	if err != nil {
		cl.fail(err)
		return
	}
	fbKey.pass, fbKey.width, fbKey.height = rp, extent.Width, extent.Height
	fb, err := cl.Device.passes.framebuffer(fbKey)
	if err != nil {
		cl.fail(err)
		return
	}

	vk.CmdBeginRenderPass(cl.VKCommandBuffer, &vk.RenderPassBeginInfo{
		SType:           vk.StructureTypeRenderPassBeginInfo,
		RenderPass:      rp,
		Framebuffer:     fb,
		RenderArea:      vk.Rect2D{Extent: extent},
		ClearValueCount: uint32(len(clears)),
		PClearValues:    clears,
	}, vk.SubpassContentsInline)
	cl.inPass = true
}

func (cl *CommandList) EndRenderPass() {
	if !cl.recording() {
		return
	}
	if !cl.inPass {
		cl.fail(errors.New("vkbackend: end of a render pass that was not begun"))
		return
	}
	vk.CmdEndRenderPass(cl.VKCommandBuffer)
	cl.inPass = false
}

// SetViewport flips the viewport vertically so clip space points up, as in the
// rest of vkframe.
func (cl *CommandList) SetViewport(v vkframe.Viewport) {
	if !cl.recording() {
		return
	}
	vk.CmdSetViewport(cl.VKCommandBuffer, 0, 1, []vk.Viewport{flipViewport(v)})
}

func flipViewport(v vkframe.Viewport) vk.Viewport {
	return vk.Viewport{
		X:        v.X,
		Y:        v.Y + v.Height,
		Width:    v.Width,
		Height:   -v.Height,
		MinDepth: v.MinDepth,
		MaxDepth: v.MaxDepth,
	}
}

func (cl *CommandList) SetScissor(r vkframe.Rect) {
	if !cl.recording() {
		return
	}
	vk.CmdSetScissor(cl.VKCommandBuffer, 0, 1, []vk.Rect2D{{
		Offset: vk.Offset2D{X: r.Left, Y: r.Top},
		Extent: vk.Extent2D{Width: uint32(r.Right - r.Left), Height: uint32(r.Bottom - r.Top)},
	}})
}

func (cl *CommandList) SetPipelineState(ps vkframe.PipelineState) {
	if !cl.recording() {
		return
	}
	p, ok := ps.(*PipelineState)
	if !ok {
		cl.fail(fmt.Errorf("%w: pipeline %T", vkframe.ErrInvalidArgument, ps))
		return
	}
	vk.CmdBindPipeline(cl.VKCommandBuffer, vk.PipelineBindPointGraphics, p.VKPipeline)
}

// SetGraphicsRootSignature also binds the static sampler set, if any.
func (cl *CommandList) SetGraphicsRootSignature(rs vkframe.RootSignature) {
	if !cl.recording() {
		return
	}
	r, ok := rs.(*RootSignature)
	if !ok {
		cl.fail(fmt.Errorf("%w: root signature %T", vkframe.ErrInvalidArgument, rs))
		return
	}
	cl.rootSignature = r
	if r.samplerSet != nil {
		vk.CmdBindDescriptorSets(cl.VKCommandBuffer, vk.PipelineBindPointGraphics, r.Layout.VKPipelineLayout,
			uint32(len(r.desc.Parameters)), 1, []vk.DescriptorSet{r.samplerSet.VKDescriptorSet}, 0, nil)
	}
}

func (cl *CommandList) boundRootSignature() (*RootSignature, bool) {
	if cl.rootSignature == nil {
		cl.fail(fmt.Errorf("%w: no root signature bound", vkframe.ErrInvalidArgument))
		return nil, false
	}
	return cl.rootSignature, true
}

func (cl *CommandList) SetGraphicsRootConstantBufferView(slot int, view vkframe.UploadView) {
	if !cl.recording() {
		return
	}
	rs, ok := cl.boundRootSignature()
	if !ok {
		return
	}
	set, offset, err := rs.cbvSet(slot, view)
	if err != nil {
		cl.fail(err)
		return
	}
	vk.CmdBindDescriptorSets(cl.VKCommandBuffer, vk.PipelineBindPointGraphics, rs.Layout.VKPipelineLayout,
		uint32(slot), 1, []vk.DescriptorSet{set.VKDescriptorSet}, 1, []uint32{offset})
}

func (cl *CommandList) SetGraphicsRootDescriptorTable(slot int, h vkframe.DescriptorHandle) {
	if !cl.recording() {
		return
	}
	rs, ok := cl.boundRootSignature()
	if !ok {
		return
	}
	set, err := rs.tableSet(slot, h)
	if err != nil {
		cl.fail(err)
		return
	}
	vk.CmdBindDescriptorSets(cl.VKCommandBuffer, vk.PipelineBindPointGraphics, rs.Layout.VKPipelineLayout,
		uint32(slot), 1, []vk.DescriptorSet{set.VKDescriptorSet}, 0, nil)
}

func (cl *CommandList) SetStencilRef(ref uint32) {
	if !cl.recording() {
		return
	}
	vk.CmdSetStencilReference(cl.VKCommandBuffer, vk.StencilFaceFlags(vk.StencilFrontAndBack), ref)
}

func (cl *CommandList) SetVertexBuffers(start int, views ...vkframe.VertexBufferView) {
	if !cl.recording() || len(views) == 0 {
		return
	}
	buffers := make([]vk.Buffer, len(views))
	offsets := make([]vk.DeviceSize, len(views))
	for i, v := range views {
		buf, err := bufferOf(v.View.Block)
		if err != nil {
			cl.fail(err)
			return
		}
		buffers[i], offsets[i] = buf, vk.DeviceSize(v.View.Offset)
	}
	vk.CmdBindVertexBuffers(cl.VKCommandBuffer, uint32(start), uint32(len(views)), buffers, offsets)
}

func (cl *CommandList) SetIndexBuffer(view vkframe.IndexBufferView) {
	if !cl.recording() {
		return
	}
	buf, err := bufferOf(view.View.Block)
	if err != nil {
		cl.fail(err)
		return
	}
	indexType := vk.IndexTypeUint16
	if view.Format == vkframe.FormatR32Uint {
		indexType = vk.IndexTypeUint32
	}
	vk.CmdBindIndexBuffer(cl.VKCommandBuffer, buf, vk.DeviceSize(view.View.Offset), indexType)
}

func (cl *CommandList) DrawInstanced(vertexCount, instanceCount, startVertex, startInstance uint32) {
	if !cl.recording() {
		return
	}
	vk.CmdDraw(cl.VKCommandBuffer, vertexCount, instanceCount, startVertex, startInstance)
}

func (cl *CommandList) DrawIndexedInstanced(indexCount, instanceCount, startIndex uint32, baseVertex int32, startInstance uint32) {
	if !cl.recording() {
		return
	}
	vk.CmdDrawIndexed(cl.VKCommandBuffer, indexCount, instanceCount, startIndex, baseVertex, startInstance)
}

func (cl *CommandList) queryHeap(heap vkframe.QueryHeap, index int) (*QueryHeap, bool) {
	q, ok := heap.(*QueryHeap)
	if !ok {
		cl.fail(fmt.Errorf("%w: query heap %T", vkframe.ErrInvalidArgument, heap))
		return nil, false
	}
	if index < 0 || index >= q.count {
		cl.fail(fmt.Errorf("%w: query %d out of range [0,%d)", vkframe.ErrInvalidArgument, index, q.count))
		return nil, false
	}
	return q, true
}

func (cl *CommandList) BeginQuery(heap vkframe.QueryHeap, index int) {
	if !cl.recording() {
		return
	}
	if q, ok := cl.queryHeap(heap, index); ok {
		vk.CmdBeginQuery(cl.VKCommandBuffer, q.VKQueryPool, uint32(index), q.controlFlags())
	}
}

func (cl *CommandList) EndQuery(heap vkframe.QueryHeap, index int) {
	if !cl.recording() {
		return
	}
	if q, ok := cl.queryHeap(heap, index); ok {
		vk.CmdEndQuery(cl.VKCommandBuffer, q.VKQueryPool, uint32(index))
	}
}

// ResolveQueryData copies count 64-bit results into dst at offset and resets
// the queries for their next use. It must be recorded outside a render pass.
func (cl *CommandList) ResolveQueryData(heap vkframe.QueryHeap, start, count int, dst vkframe.Resource, offset uint64) {
	if !cl.recording() {
		return
	}
	q, ok := cl.queryHeap(heap, start)
	if !ok {
		return
	}
	if count <= 0 || start+count > q.count {
		cl.fail(fmt.Errorf("%w: resolve of queries [%d,%d)", vkframe.ErrInvalidArgument, start, start+count))
		return
	}
	if cl.inPass {
		cl.fail(errors.New("vkbackend: query resolve inside a render pass"))
		return
	}
	buf, err := bufferOf(dst)
	if err != nil {
		cl.fail(err)
		return
	}
	vk.CmdCopyQueryPoolResults(cl.VKCommandBuffer, q.VKQueryPool, uint32(start), uint32(count),
		buf, vk.DeviceSize(offset), vkframe.QueryResultSize,
		vk.QueryResultFlags(vk.QueryResult64Bit|vk.QueryResultWaitBit))
	vk.CmdResetQueryPool(cl.VKCommandBuffer, q.VKQueryPool, uint32(start), uint32(count))
}

// SetPredication records nothing: the device reports no predication support,
// so predicated draws always run.
func (cl *CommandList) SetPredication(buf vkframe.Resource, offset uint64, op vkframe.PredicationOp) {
	// vulkan-go has no binding for vkCmdBeginConditionalRenderingEXT or
	// vkCmdEndConditionalRenderingEXT (VK_EXT_conditional_rendering), so there
	// is no GPU-side skip to record. Capabilities.Predication stays false.
	cl.recording()
}

// Release drops the list's buffers; they are freed with the pools that own them.
func (cl *CommandList) Release() {
	cl.buffers = nil
	cl.VKCommandBuffer = nil
	cl.open = false
}
