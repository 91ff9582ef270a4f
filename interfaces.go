package vkframe

import (
	"fmt"
	"time"
)

// The interfaces in this file form the thin hardware abstraction the frame core is
// written against. vkbackend implements them on top of Vulkan; tests implement them
// with fakes.

// FeatureLevel is the minimum API capability a device must expose.
type FeatureLevel int

const (
	FeatureLevel11_0 FeatureLevel = iota
	FeatureLevel11_1
	FeatureLevel12_0
	FeatureLevel12_1
)

var featureLevelNames = [...]string{"11_0", "11_1", "12_0", "12_1"}

func (f FeatureLevel) String() string {
	if f < 0 || int(f) >= len(featureLevelNames) {
		return fmt.Sprintf("FeatureLevel(%d)", int(f))
	}
	return featureLevelNames[f]
}

// MarshalText lets feature levels be written to configuration files as "12_0".
func (f FeatureLevel) MarshalText() ([]byte, error) {
	if f < 0 || int(f) >= len(featureLevelNames) {
		return nil, fmt.Errorf("%w: unknown feature level %d", ErrInvalidArgument, int(f))
	}
	return []byte(featureLevelNames[f]), nil
}

func (f *FeatureLevel) UnmarshalText(b []byte) error {
	for i, n := range featureLevelNames {
		if n == string(b) {
			*f = FeatureLevel(i)
			return nil
		}
	}
	return fmt.Errorf("%w: unknown feature level %q", ErrInvalidArgument, string(b))
}

// Format identifies a texel or depth format.
type Format int

const (
	FormatUnknown Format = iota
	FormatBGRA8Unorm
	FormatRGBA8Unorm
	FormatRGBA16Float
	FormatD24UnormS8Uint
	FormatD32Float
	FormatR32Uint
	FormatR32G32B32Float
	FormatR32G32Float
	FormatR16Uint
)

// ResourceState is the usage a resource is transitioned into by a barrier.
type ResourceState int

const (
	StateCommon ResourceState = iota
	StatePresent
	StateRenderTarget
	StateDepthWrite
	StateDepthRead
	StateShaderResource
	StateResolveSource
	StateResolveDest
	StateCopySource
	StateCopyDest
	StatePredication
	StateGenericRead
)

var stateNames = [...]string{
	"Common", "Present", "RenderTarget", "DepthWrite", "DepthRead", "ShaderResource",
	"ResolveSource", "ResolveDest", "CopySource", "CopyDest", "Predication", "GenericRead",
}

func (s ResourceState) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("ResourceState(%d)", int(s))
	}
	return stateNames[s]
}

// AdapterInfo describes an enumerated adapter.
type AdapterInfo struct {
	Index    int
	Name     string
	Software bool
	VendorID uint32
	DeviceID uint32
	// DedicatedMemory is the device-local memory in bytes.
	DedicatedMemory uint64
}

// Backend enumerates adapters in index order.
type Backend interface {
	Adapters() ([]Adapter, error)
}

type Adapter interface {
	Info() AdapterInfo
	// CreateDevice fails when the adapter cannot provide the feature level.
	CreateDevice(level FeatureLevel) (Device, error)
}

// RaytracingTier reported by a device; zero means unsupported.
type RaytracingTier int

const (
	RaytracingNotSupported RaytracingTier = iota
	RaytracingTier1_0
	RaytracingTier1_1
)

// Capabilities are optional device features queried once after device creation.
type Capabilities struct {
	Raytracing RaytracingTier
	// Predication is false when draws cannot be skipped GPU-side from query data.
	Predication bool
}

type Device interface {
	Capabilities() Capabilities
	// MultisampleQualityLevels returns the number of quality levels for the
	// format and sample count; zero means the combination is unsupported.
	MultisampleQualityLevels(format Format, sampleCount int) (int, error)

	CreateCommandQueue() (Queue, error)
	CreateCommandAllocator() (CommandAllocator, error)
	// CreateCommandList returns a list that is open for recording against alloc.
	CreateCommandList(alloc CommandAllocator) (CommandList, error)
	CreateFence(initial uint64) (FenceObject, error)
	CreateSwapChain(queue Queue, target PresentTarget, desc SwapChainDesc) (SwapChain, error)
	CreateDescriptorHeap(kind HeapKind, count int) (DescriptorHeap, error)
	CreateTexture(desc TextureDesc) (Resource, error)
	CreateBuffer(size uint64, initial ResourceState) (Resource, error)
	BlockSource
	CreateRootSignature(desc RootSignatureDesc) (RootSignature, error)
	CreatePipelineState(desc PipelineStateDesc) (PipelineState, error)
	CreateQueryHeap(kind QueryKind, count int) (QueryHeap, error)
	Release()
}

type Queue interface {
	ExecuteCommandLists(lists ...CommandList) error
	// Signal enqueues a write of value to f that happens once all work
	// submitted before it has completed.
	Signal(f FenceObject, value uint64) error
}

// FenceObject is the GPU-visible counter behind a Fence.
type FenceObject interface {
	CompletedValue() uint64
	// Wait blocks until the counter reaches value or the timeout elapses.
	// It reports false on timeout.
	Wait(value uint64, timeout time.Duration) (bool, error)
	Release()
}

type CommandAllocator interface {
	// Reset reclaims the memory of every list recorded against the allocator.
	// The GPU must be done with those lists.
	Reset() error
	Release()
}

// Barrier transitions a resource between two states.
type Barrier struct {
	Resource Resource
	Before   ResourceState
	After    ResourceState
}

type Viewport struct {
	X, Y, Width, Height float32
	MinDepth, MaxDepth  float32
}

type Rect struct {
	Left, Top, Right, Bottom int32
}

// RenderPassDesc names the attachments of a pass. A zero handle means no
// attachment of that kind.
type RenderPassDesc struct {
	Color        DescriptorHandle
	Depth        DescriptorHandle
	ClearColor   *[4]float32
	ClearDepth   *float32
	ClearStencil *uint8
}

// VertexBufferView binds geometry that lives in upload memory.
type VertexBufferView struct {
	View   UploadView
	Stride uint32
}

type IndexBufferView struct {
	View   UploadView
	Format Format
}

// PredicationOp selects when a predicated draw is skipped.
type PredicationOp int

const (
	// PredicationEqualZero skips draws when the predicate value is zero.
	PredicationEqualZero PredicationOp = iota
	PredicationNotEqualZero
)

type CommandList interface {
	Reset(alloc CommandAllocator, initial PipelineState) error
	Close() error

	ResourceBarrier(barriers ...Barrier)
	ResolveSubresource(dst, src Resource, format Format)

	BeginRenderPass(desc RenderPassDesc)
	EndRenderPass()
	SetViewport(v Viewport)
	SetScissor(r Rect)
	SetPipelineState(ps PipelineState)
	SetGraphicsRootSignature(rs RootSignature)
	SetGraphicsRootConstantBufferView(slot int, view UploadView)
	SetGraphicsRootDescriptorTable(slot int, h DescriptorHandle)
	SetStencilRef(ref uint32)
	SetVertexBuffers(start int, views ...VertexBufferView)
	SetIndexBuffer(view IndexBufferView)
	DrawInstanced(vertexCount, instanceCount, startVertex, startInstance uint32)
	DrawIndexedInstanced(indexCount, instanceCount, startIndex uint32, baseVertex int32, startInstance uint32)

	BeginQuery(heap QueryHeap, index int)
	EndQuery(heap QueryHeap, index int)
	ResolveQueryData(heap QueryHeap, start, count int, dst Resource, offset uint64)
	// SetPredication with a nil buffer disables predication.
	SetPredication(buf Resource, offset uint64, op PredicationOp)

	Release()
}

// PresentTarget is supplied by the windowing collaborator.
type PresentTarget interface {
	FramebufferSize() (width, height int)
}

type SwapChainDesc struct {
	BufferCount int
	Width       int
	Height      int
	Format      Format
	// AllowTearing must be set at creation for tearing presents to be legal.
	AllowTearing bool
	// Timeout bounds each wait for a presentable image. Zero waits forever.
	Timeout time.Duration
}

type SwapChain interface {
	Buffer(i int) (Resource, error)
	Present(syncInterval int, allowTearing bool) error
	// ResizeBuffers requires every reference to the old buffers to be released.
	ResizeBuffers(count, width, height int) error
	Release()
}

// backBufferIndexer is implemented by swap chains whose presentation engine picks
// the next image itself.
type backBufferIndexer interface {
	CurrentBackBufferIndex() int
}

type HeapKind int

const (
	HeapRTV HeapKind = iota
	HeapDSV
	HeapCBVSRVUAV
)

// DescriptorHandle addresses one slot of a descriptor heap.
type DescriptorHandle struct {
	Heap  DescriptorHeap
	Index int
}

// Valid reports whether the handle references a heap.
func (h DescriptorHandle) Valid() bool {
	return h.Heap != nil
}

// Offset returns the handle n slots after h.
func (h DescriptorHandle) Offset(n int) DescriptorHandle {
	return DescriptorHandle{Heap: h.Heap, Index: h.Index + n}
}

type DescriptorHeap interface {
	Kind() HeapKind
	Len() int
	CreateRenderTargetView(res Resource, index int) error
	CreateDepthStencilView(res Resource, index int) error
	CreateShaderResourceView(res Resource, index int) error
	CreateConstantBufferView(view UploadView, size uint64, index int) error
	Release()
}

// TextureUsage flags.
type TextureUsage uint32

const (
	UsageRenderTarget TextureUsage = 1 << iota
	UsageDepthStencil
	UsageShaderResource
)

type TextureDesc struct {
	Width, Height int
	Format        Format
	SampleCount   int
	SampleQuality int
	Usage         TextureUsage
	Initial       ResourceState
	ClearColor    [4]float32
	ClearDepth    float32
	ClearStencil  uint8
}

type Resource interface {
	Release()
}

// BlockSource creates persistently mapped upload blocks.
type BlockSource interface {
	CreateUploadBlock(size uint64) (UploadBlock, error)
}

// UploadBlock is CPU-writable GPU memory that stays mapped for its lifetime.
type UploadBlock interface {
	Resource
	Size() uint64
	Bytes() []byte
	// GPUAddress is the base device address; backends that bind by buffer and
	// offset report zero.
	GPUAddress() uint64
}

// ShaderBytecode is an opaque compiled shader blob.
type ShaderBytecode []byte

type QueryKind int

const (
	QueryOcclusion QueryKind = iota
	QueryBinaryOcclusion
)

type QueryHeap interface {
	Len() int
	Release()
}

type RootSignature interface {
	Desc() RootSignatureDesc
	Release()
}

type PipelineState interface {
	Release()
}
