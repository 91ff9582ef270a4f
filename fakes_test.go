package vkframe

import (
	"errors"
	"fmt"
	"time"
)

var errFake = errors.New("fake failure")

type fakeResource struct {
	name     string
	released bool
}

func (r *fakeResource) Release()       { r.released = true }
func (r *fakeResource) String() string { return r.name }

type fakeBlock struct {
	fakeResource
	data []byte
	addr uint64
}

func (b *fakeBlock) Size() uint64       { return uint64(len(b.data)) }
func (b *fakeBlock) Bytes() []byte      { return b.data }
func (b *fakeBlock) GPUAddress() uint64 { return b.addr }

type fakeBlockSource struct {
	created int
	failAt  int
	blocks  []*fakeBlock
}

func (s *fakeBlockSource) CreateUploadBlock(size uint64) (UploadBlock, error) {
	if s.failAt > 0 && s.created+1 == s.failAt {
		return nil, errFake
	}
	s.created++
	b := &fakeBlock{
		fakeResource: fakeResource{name: fmt.Sprintf("block%d", s.created)},
		data:         make([]byte, size),
		addr:         uint64(s.created) << 32,
	}
	s.blocks = append(s.blocks, b)
	return b, nil
}

type fakeFence struct {
	completed uint64
	waits     int
	released  bool
	// hang makes Wait time out instead of completing.
	hang bool
}

func (f *fakeFence) CompletedValue() uint64 { return f.completed }
func (f *fakeFence) Release()               { f.released = true }

func (f *fakeFence) Wait(value uint64, timeout time.Duration) (bool, error) {
	f.waits++
	if f.hang {
		return false, nil
	}
	if value > f.completed {
		f.completed = value
	}
	return true, nil
}

type fakeQueue struct {
	executed  int
	signals   []uint64
	signalErr error
	execErr   error
	// autoComplete completes signalled values at once, like an idle GPU.
	autoComplete bool
}

func (q *fakeQueue) ExecuteCommandLists(lists ...CommandList) error {
	if q.execErr != nil {
		return q.execErr
	}
	q.executed += len(lists)
	return nil
}

func (q *fakeQueue) Signal(f FenceObject, value uint64) error {
	if q.signalErr != nil {
		return q.signalErr
	}
	q.signals = append(q.signals, value)
	if q.autoComplete {
		f.(*fakeFence).completed = value
	}
	return nil
}

type fakeAllocator struct {
	resets   int
	released bool
}

func (a *fakeAllocator) Reset() error { a.resets++; return nil }
func (a *fakeAllocator) Release()     { a.released = true }

type fakeCmdList struct {
	open     bool
	resets   int
	closes   int
	ops      []string
	released bool
}

func (c *fakeCmdList) record(format string, args ...any) {
	c.ops = append(c.ops, fmt.Sprintf(format, args...))
}

func (c *fakeCmdList) Reset(alloc CommandAllocator, initial PipelineState) error {
	if c.open {
		return errors.New("reset of open list")
	}
	c.open = true
	c.resets++
	c.ops = nil
	return nil
}

func (c *fakeCmdList) Close() error {
	c.open = false
	c.closes++
	return nil
}

func (c *fakeCmdList) ResourceBarrier(barriers ...Barrier) {
	for _, b := range barriers {
		c.record("barrier %v %v->%v", b.Resource, b.Before, b.After)
	}
}

func (c *fakeCmdList) ResolveSubresource(dst, src Resource, format Format) {
	c.record("resolve %v->%v", src, dst)
}

func (c *fakeCmdList) BeginRenderPass(desc RenderPassDesc) {
	c.record("begin-pass clear=%v", desc.ClearColor != nil || desc.ClearDepth != nil)
}

func (c *fakeCmdList) EndRenderPass()                    { c.record("end-pass") }
func (c *fakeCmdList) SetViewport(v Viewport)            {}
func (c *fakeCmdList) SetScissor(r Rect)                 {}
func (c *fakeCmdList) SetPipelineState(ps PipelineState) { c.record("pso %v", ps) }

func (c *fakeCmdList) SetGraphicsRootSignature(rs RootSignature) {}

func (c *fakeCmdList) SetGraphicsRootConstantBufferView(slot int, view UploadView) {}

func (c *fakeCmdList) SetGraphicsRootDescriptorTable(slot int, h DescriptorHandle) {}

func (c *fakeCmdList) SetStencilRef(ref uint32) { c.record("stencil-ref %d", ref) }

func (c *fakeCmdList) SetVertexBuffers(start int, views ...VertexBufferView) {}
func (c *fakeCmdList) SetIndexBuffer(view IndexBufferView)                   {}

func (c *fakeCmdList) DrawInstanced(vertexCount, instanceCount, startVertex, startInstance uint32) {
	c.record("draw")
}

func (c *fakeCmdList) DrawIndexedInstanced(indexCount, instanceCount, startIndex uint32, baseVertex int32, startInstance uint32) {
	c.record("draw")
}

func (c *fakeCmdList) BeginQuery(heap QueryHeap, index int) { c.record("query-begin %d", index) }
func (c *fakeCmdList) EndQuery(heap QueryHeap, index int)   { c.record("query-end %d", index) }

func (c *fakeCmdList) ResolveQueryData(heap QueryHeap, start, count int, dst Resource, offset uint64) {
	c.record("resolve-queries %d", count)
}

func (c *fakeCmdList) SetPredication(buf Resource, offset uint64, op PredicationOp) {
	if buf == nil {
		c.record("predication off")
		return
	}
	c.record("predication %d", offset/QueryResultSize)
}

func (c *fakeCmdList) Release() { c.released = true }

type fakeSwapChain struct {
	desc     SwapChainDesc
	presents []string
	resizes  [][2]int
	buffers  []*fakeResource
	released bool
}

func (s *fakeSwapChain) Buffer(i int) (Resource, error) {
	b := &fakeResource{name: fmt.Sprintf("back%d", i)}
	s.buffers = append(s.buffers, b)
	return b, nil
}

func (s *fakeSwapChain) Present(syncInterval int, allowTearing bool) error {
	s.presents = append(s.presents, fmt.Sprintf("%d/%v", syncInterval, allowTearing))
	return nil
}

func (s *fakeSwapChain) ResizeBuffers(count, width, height int) error {
	s.resizes = append(s.resizes, [2]int{width, height})
	return nil
}

func (s *fakeSwapChain) Release() { s.released = true }

type fakeHeap struct {
	kind     HeapKind
	n        int
	views    map[int]Resource
	released bool
}

func (h *fakeHeap) Kind() HeapKind { return h.kind }
func (h *fakeHeap) Len() int       { return h.n }
func (h *fakeHeap) Release()       { h.released = true }

func (h *fakeHeap) set(res Resource, i int) error {
	if i < 0 || i >= h.n {
		return fmt.Errorf("index %d out of range", i)
	}
	h.views[i] = res
	return nil
}

func (h *fakeHeap) CreateRenderTargetView(res Resource, i int) error   { return h.set(res, i) }
func (h *fakeHeap) CreateDepthStencilView(res Resource, i int) error   { return h.set(res, i) }
func (h *fakeHeap) CreateShaderResourceView(res Resource, i int) error { return h.set(res, i) }

func (h *fakeHeap) CreateConstantBufferView(view UploadView, size uint64, i int) error {
	return h.set(view.Block, i)
}

type fakeRootSig struct {
	desc     RootSignatureDesc
	released bool
}

func (r *fakeRootSig) Desc() RootSignatureDesc { return r.desc }
func (r *fakeRootSig) Release()                { r.released = true }

type fakePipeline struct {
	name     string
	desc     PipelineStateDesc
	released bool
}

func (p *fakePipeline) Release()       { p.released = true }
func (p *fakePipeline) String() string { return p.name }

type fakeQueryHeap struct {
	n        int
	released bool
}

func (q *fakeQueryHeap) Len() int { return q.n }
func (q *fakeQueryHeap) Release() { q.released = true }

type fakeDevice struct {
	fakeBlockSource

	caps         Capabilities
	msaaLevels   int
	released     bool
	queue        *fakeQueue
	fence        *fakeFence
	cmdList      *fakeCmdList
	swapChain    *fakeSwapChain
	allocators   []*fakeAllocator
	textures     []*fakeResource
	pipelines    []*fakePipeline
	pipelineFail int

	failSwapChain bool
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		queue:   &fakeQueue{autoComplete: true},
		fence:   &fakeFence{},
		cmdList: &fakeCmdList{},
	}
}

func (d *fakeDevice) Capabilities() Capabilities { return d.caps }

func (d *fakeDevice) MultisampleQualityLevels(format Format, sampleCount int) (int, error) {
	return d.msaaLevels, nil
}

func (d *fakeDevice) CreateCommandQueue() (Queue, error) { return d.queue, nil }

func (d *fakeDevice) CreateCommandAllocator() (CommandAllocator, error) {
	a := &fakeAllocator{}
	d.allocators = append(d.allocators, a)
	return a, nil
}

func (d *fakeDevice) CreateCommandList(alloc CommandAllocator) (CommandList, error) {
	d.cmdList.open = true
	return d.cmdList, nil
}

func (d *fakeDevice) CreateFence(initial uint64) (FenceObject, error) {
	d.fence.completed = initial
	return d.fence, nil
}

func (d *fakeDevice) CreateSwapChain(queue Queue, target PresentTarget, desc SwapChainDesc) (SwapChain, error) {
	if d.failSwapChain {
		return nil, errFake
	}
	d.swapChain = &fakeSwapChain{desc: desc}
	return d.swapChain, nil
}

func (d *fakeDevice) CreateDescriptorHeap(kind HeapKind, count int) (DescriptorHeap, error) {
	return &fakeHeap{kind: kind, n: count, views: make(map[int]Resource)}, nil
}

func (d *fakeDevice) CreateTexture(desc TextureDesc) (Resource, error) {
	name := "texture"
	switch {
	case desc.Usage&UsageRenderTarget != 0:
		name = "msaa"
	case desc.Format == DepthStencilFormat:
		name = "depth"
	case desc.Usage&UsageShaderResource != 0:
		name = "shadow"
	}
	t := &fakeResource{name: name}
	d.textures = append(d.textures, t)
	return t, nil
}

func (d *fakeDevice) CreateBuffer(size uint64, initial ResourceState) (Resource, error) {
	return &fakeResource{name: "results"}, nil
}

func (d *fakeDevice) CreateRootSignature(desc RootSignatureDesc) (RootSignature, error) {
	return &fakeRootSig{desc: desc}, nil
}

func (d *fakeDevice) CreatePipelineState(desc PipelineStateDesc) (PipelineState, error) {
	if d.pipelineFail > 0 && len(d.pipelines)+1 == d.pipelineFail {
		return nil, errFake
	}
	p := &fakePipeline{name: fmt.Sprintf("pso%d", len(d.pipelines)), desc: desc}
	d.pipelines = append(d.pipelines, p)
	return p, nil
}

func (d *fakeDevice) CreateQueryHeap(kind QueryKind, count int) (QueryHeap, error) {
	return &fakeQueryHeap{n: count}, nil
}

func (d *fakeDevice) Release() { d.released = true }

type fakeAdapter struct {
	info    AdapterInfo
	dev     *fakeDevice
	maxLvl  FeatureLevel
	created int
}

func (a *fakeAdapter) Info() AdapterInfo { return a.info }

func (a *fakeAdapter) CreateDevice(level FeatureLevel) (Device, error) {
	if level > a.maxLvl {
		return nil, errFake
	}
	a.created++
	return a.dev, nil
}

type fakeBackend struct {
	adapters []Adapter
}

func (b *fakeBackend) Adapters() ([]Adapter, error) { return b.adapters, nil }

type fakeWindow struct {
	w, h  int
	shown bool
}

func (w *fakeWindow) FramebufferSize() (int, int) { return w.w, w.h }
func (w *fakeWindow) Show()                       { w.shown = true }

func hardwareAdapter(index int, dev *fakeDevice) *fakeAdapter {
	return &fakeAdapter{
		info:   AdapterInfo{Index: index, Name: fmt.Sprintf("gpu%d", index)},
		dev:    dev,
		maxLvl: FeatureLevel12_1,
	}
}
