/*
Package vkframe implements the frame lifecycle of a double or triple buffered GPU renderer
over an explicit graphics API: command submission, CPU/GPU fence synchronization, transient
upload memory and the multi-pass sequencing used by the samples.

The package is written against a small set of interfaces (see interfaces.go) shaped after
an explicit API: adapters, a device, a command queue, command allocators and lists, fences,
a swap chain, descriptor heaps, pipeline states and query heaps. The vkbackend package
implements them with Vulkan; tests implement them with fakes.

Frames in flight

The CPU records frame N+1 while the GPU still executes frame N. Anything frame N reads
(its command allocator, its constants, its upload memory) must not be touched until the GPU
is done with it. A FrameRing keeps one FrameSlot per frame in flight; each slot remembers
the fence checkpoint signalled after its frame was submitted, and the next use of the slot
waits for that checkpoint. That wait is the only place the CPU blocks in steady state.

	slot := ring.Begin(fence)  // wait for the slot's checkpoint, reset allocator, clear uploads
	record commands
	execute, present
	ring.End(fence, queue)     // signal, store checkpoint, advance

GraphicsApp

GraphicsApp owns the device and the swap chain and moves through

	Uninitialized -> WindowReady -> DeviceReady -> Running <-> Resizing -> ShuttingDown

Samples plug in through Hooks rather than by embedding: OnInitPipelines builds their
pipelines, OnFrameMoved updates scene state and OnRenderFrame records the frame between
PrepareNextFrame and EndRenderFrame. Window events arrive as Event values, usually over the
channel passed to Run.

Multi-pass samples

PipelineTable maps a PassID (normal, shadow, mirror stencil/masked/composite per region,
occlusion query, composite) to a pipeline state and is never modified after Build.
MirrorRenderer and OcclusionRenderer record the pass sequences of the mirror and occlusion
samples on top of it.

Terms

	Fence           monotonic counter the GPU advances as submitted work completes
	Checkpoint      a fence value the CPU waits for before reusing memory
	Upload block    CPU-writable GPU memory, mapped once for its whole lifetime
	Descriptor heap table of resource views addressed by index
	Predication     GPU-side skip of a draw based on a resolved query result
	MSAA            multisampled target resolved into the presentable buffer
*/
package vkframe
