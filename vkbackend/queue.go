package vkbackend

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/vkframe"
)

// Queue implements vkframe.Queue. A swap chain hands it the semaphore of the
// image it acquired; the next submit waits on it before writing the image.
type Queue struct {
	Device      *Device
	QueueFamily *QueueFamily
	VKQueue     vk.Queue

	acquired vk.Semaphore
}

var _ vkframe.Queue = (*Queue)(nil)

func (q *Queue) WaitIdle() error {
	return vkErr("queue wait idle", vk.QueueWaitIdle(q.VKQueue))
}

// setAcquired is called by the swap chain after each acquire.
func (q *Queue) setAcquired(sem vk.Semaphore) {
	q.acquired = sem
}

// waitAcquired adds the pending acquire semaphore, if any, to submitInfo.
func (q *Queue) waitAcquired(submitInfo *vk.SubmitInfo, stages vk.PipelineStageFlagBits) {
	if q.acquired == vk.NullSemaphore {
		return
	}
	submitInfo.WaitSemaphoreCount = 1
	submitInfo.PWaitSemaphores = []vk.Semaphore{q.acquired}
	submitInfo.PWaitDstStageMask = []vk.PipelineStageFlags{vk.PipelineStageFlags(stages)}
}

// signalPresent submits an empty batch that signals sem once everything
// submitted so far has completed.
func (q *Queue) signalPresent(sem vk.Semaphore) error {
	submitInfo := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    []vk.Semaphore{sem},
	}
	q.waitAcquired(&submitInfo, vk.PipelineStageAllCommandsBit)
	if err := vkErr("queue submit", vk.QueueSubmit(q.VKQueue, 1, []vk.SubmitInfo{submitInfo}, vk.NullFence)); err != nil {
		return err
	}
	q.acquired = vk.NullSemaphore
	return nil
}

func (q *Queue) ExecuteCommandLists(lists ...vkframe.CommandList) error {
	buffers := make([]vk.CommandBuffer, 0, len(lists))
	for _, l := range lists {
		cl, ok := l.(*CommandList)
		if !ok {
			return fmt.Errorf("%w: command list %T is not a vkbackend list", vkframe.ErrInvalidArgument, l)
		}
		if cl.open {
			return fmt.Errorf("%w: command list is still open", vkframe.ErrInvalidArgument)
		}
		buffers = append(buffers, cl.VKCommandBuffer)
	}

	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: uint32(len(buffers)),
		PCommandBuffers:    buffers,
	}
	q.waitAcquired(&submitInfo, vk.PipelineStageColorAttachmentOutputBit|vk.PipelineStageTransferBit)
	if err := vkErr("queue submit", vk.QueueSubmit(q.VKQueue, 1, []vk.SubmitInfo{submitInfo}, vk.NullFence)); err != nil {
		return err
	}
	q.acquired = vk.NullSemaphore
	return nil
}

// Signal submits an empty batch whose fence marks value on f.
func (q *Queue) Signal(f vkframe.FenceObject, value uint64) error {
	fence, ok := f.(*Fence)
	if !ok {
		return fmt.Errorf("%w: fence %T is not a vkbackend fence", vkframe.ErrInvalidArgument, f)
	}
	vkf, err := fence.take()
	if err != nil {
		return err
	}
	if err := vkErr("queue signal", vk.QueueSubmit(q.VKQueue, 0, nil, vkf)); err != nil {
		fence.free = append(fence.free, vkf)
		return err
	}
	fence.pending = append(fence.pending, pendingFence{value: value, fence: vkf})
	return nil
}

func (q *Queue) SubmitWaitIdle(buffers ...*CommandBuffer) error {
	b := make([]vk.CommandBuffer, len(buffers))
	for i := range buffers {
		b[i] = buffers[i].VKCommandBuffer
	}
	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: uint32(len(buffers)),
		PCommandBuffers:    b,
	}
	if err := vkErr("queue submit", vk.QueueSubmit(q.VKQueue, 1, []vk.SubmitInfo{submitInfo}, vk.NullFence)); err != nil {
		return err
	}
	return q.WaitIdle()
}

func (q *Queue) release() {
	q.acquired = vk.NullSemaphore
}

func (q *Queue) String() string {
	return fmt.Sprintf("{Device: %s QueueFamily: %s}", q.Device.String(), q.QueueFamily.String())
}
