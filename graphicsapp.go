package vkframe

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	// SwapChainBufferCount is the number of presentable buffers.
	SwapChainBufferCount = 2
	// BackBufferCount is the number of render target descriptors: one per swap
	// buffer plus the multisampled target.
	BackBufferCount = SwapChainBufferCount + 1

	BackBufferFormat   = FormatBGRA8Unorm
	DepthStencilFormat = FormatD24UnormS8Uint
)

// State of a GraphicsApp.
type State int

const (
	StateUninitialized State = iota
	StateWindowReady
	StateDeviceReady
	StateRunning
	StateResizing
	StateShuttingDown
)

var appStateNames = [...]string{"Uninitialized", "WindowReady", "DeviceReady", "Running", "Resizing", "ShuttingDown"}

func (s State) String() string {
	if s < 0 || int(s) >= len(appStateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return appStateNames[s]
}

// FrameConstants sizes the per-frame constant buffer region of every frame slot.
// It must be set before Start.
type FrameConstants struct {
	Stride   uint64
	PerFrame int
}

// Stats are simple frame counters; FPS is averaged over the last second.
type Stats struct {
	FramesRendered uint64
	FramesSkipped  uint64
	FPS            float64
	FrameTime      time.Duration
}

// MainTargets is what a render hook needs to draw into the current back buffer.
type MainTargets struct {
	Color    DescriptorHandle
	Depth    DescriptorHandle
	Viewport Viewport
	Scissor  Rect
}

type windowShower interface {
	Show()
}

// GraphicsApp owns the device, the swap chain and command submission, and drives
// frames through a FrameRing. Samples plug in through Hooks.
type GraphicsApp struct {
	Config         Config
	Hooks          Hooks
	FrameConstants FrameConstants

	backend Backend
	target  PresentTarget
	state   State

	Adapter     Adapter
	Device      Device
	Caps        Capabilities
	msaaQuality int

	Queue     Queue
	allocator CommandAllocator
	cmdList   CommandList
	cmdOpen   bool
	fence     *Fence

	swapChain      SwapChain
	rtvHeap        DescriptorHeap
	dsvHeap        DescriptorHeap
	backBuffers    [SwapChainBufferCount]Resource
	currBackBuffer int
	msaaTarget     Resource
	depthStencil   Resource

	viewport Viewport
	scissor  Rect
	width    int
	height   int

	frames *FrameRing
	clock  *FrameClock

	paused        bool
	minimized     bool
	dragging      bool
	dragDirty     bool
	pendingResize bool
	quit          bool

	stats       Stats
	statsFrames int
	statsStart  time.Duration
}

// NewGraphicsApp validates cfg and returns an app in StateUninitialized.
func NewGraphicsApp(cfg Config, backend Backend, hooks Hooks) (*GraphicsApp, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if backend == nil {
		return nil, fmt.Errorf("%w: nil backend", ErrInvalidArgument)
	}
	return &GraphicsApp{
		Config:  cfg,
		Hooks:   hooks,
		backend: backend,
		width:   cfg.Width,
		height:  cfg.Height,
		clock:   NewFrameClock(),
	}, nil
}

func (p *GraphicsApp) State() State             { return p.state }
func (p *GraphicsApp) Clock() *FrameClock       { return p.clock }
func (p *GraphicsApp) Fence() *Fence            { return p.fence }
func (p *GraphicsApp) Frames() *FrameRing       { return p.frames }
func (p *GraphicsApp) CommandList() CommandList { return p.cmdList }
func (p *GraphicsApp) Stats() Stats             { return p.stats }
func (p *GraphicsApp) Paused() bool             { return p.paused }
func (p *GraphicsApp) MsaaQuality() int         { return p.msaaQuality }
func (p *GraphicsApp) Size() (int, int)         { return p.width, p.height }

// SampleCount is the sample count of the main render targets.
func (p *GraphicsApp) SampleCount() int {
	if p.Config.MsaaEnabled {
		return p.Config.MsaaSampleCount
	}
	return 1
}

func (p *GraphicsApp) AspectRatio() float32 {
	if p.height == 0 {
		return 1
	}
	return float32(p.width) / float32(p.height)
}

func (p *GraphicsApp) expect(op string, states ...State) error {
	for _, s := range states {
		if p.state == s {
			return nil
		}
	}
	return fmt.Errorf("%w: %s in state %v", ErrInvalidArgument, op, p.state)
}

// AttachWindow records the present target the swap chain will be created for.
func (p *GraphicsApp) AttachWindow(target PresentTarget) error {
	if err := p.expect("attach window", StateUninitialized); err != nil {
		return err
	}
	if target == nil {
		return fmt.Errorf("%w: nil present target", ErrInvalidArgument)
	}
	p.target = target
	if w, h := target.FramebufferSize(); w > 0 && h > 0 {
		p.width, p.height = w, h
	}
	p.state = StateWindowReady
	return nil
}

// InitDevice selects an adapter and creates the queue, command list, fence,
// swap chain and descriptor heaps. The first failure releases whatever was
// created and is returned.
func (p *GraphicsApp) InitDevice() error {
	if err := p.expect("init device", StateWindowReady); err != nil {
		return err
	}
	if err := p.initDevice(); err != nil {
		p.releaseDevice()
		return fmt.Errorf("vkframe: init device: %w", err)
	}
	p.state = StateDeviceReady
	return nil
}

func (p *GraphicsApp) initDevice() error {
	adapters, err := p.backend.Adapters()
	if err != nil {
		return deviceErr("enumerate adapters", err)
	}
	sel, err := SelectAdapter(adapters, p.Config)
	if err != nil {
		return err
	}
	p.Adapter = sel.Adapter
	p.Device = sel.Device
	p.Caps = sel.Caps
	p.msaaQuality = sel.MsaaQuality

	if p.Queue, err = p.Device.CreateCommandQueue(); err != nil {
		return deviceErr("create command queue", err)
	}
	if p.allocator, err = p.Device.CreateCommandAllocator(); err != nil {
		return deviceErr("create command allocator", err)
	}
	if p.cmdList, err = p.Device.CreateCommandList(p.allocator); err != nil {
		return deviceErr("create command list", err)
	}
	// Lists are created open; keep it closed until first use.
	if err = p.cmdList.Close(); err != nil {
		return deviceErr("close command list", err)
	}

	fenceObj, err := p.Device.CreateFence(0)
	if err != nil {
		return deviceErr("create fence", err)
	}
	p.fence = NewFence(fenceObj, p.Config.FenceTimeout.Duration)

	p.swapChain, err = p.Device.CreateSwapChain(p.Queue, p.target, SwapChainDesc{
		BufferCount:  SwapChainBufferCount,
		Width:        p.width,
		Height:       p.height,
		Format:       BackBufferFormat,
		AllowTearing: !p.Config.VsyncEnabled,
		Timeout:      p.Config.FenceTimeout.Duration,
	})
	if err != nil {
		return deviceErr("create swap chain", err)
	}

	if p.rtvHeap, err = p.Device.CreateDescriptorHeap(HeapRTV, BackBufferCount); err != nil {
		return deviceErr("create rtv heap", err)
	}
	if p.dsvHeap, err = p.Device.CreateDescriptorHeap(HeapDSV, 1); err != nil {
		return deviceErr("create dsv heap", err)
	}
	return nil
}

// Start creates the frame ring, runs OnInitPipelines and performs the first
// resize. The app is Running afterwards.
func (p *GraphicsApp) Start() error {
	if err := p.expect("start", StateDeviceReady); err != nil {
		return err
	}
	if err := p.start(); err != nil {
		if p.frames != nil {
			p.frames.Release()
			p.frames = nil
		}
		return err
	}
	if s, ok := p.target.(windowShower); ok {
		s.Show()
	}
	p.state = StateRunning
	p.clock.Reset()
	return nil
}

func (p *GraphicsApp) start() error {
	var err error
	total := p.FrameConstants.PerFrame * p.Config.FramesInFlight
	p.frames, err = NewFrameRing(p.Device, p.Config.FramesInFlight, p.FrameConstants.Stride, total,
		p.Config.UploadBlockSize, p.Config.UploadReserveBlocks)
	if err != nil {
		return fmt.Errorf("vkframe: start: %w", err)
	}

	if p.Hooks.OnInitPipelines != nil {
		if err := p.ResetCommandList(p.allocator); err != nil {
			return fmt.Errorf("vkframe: start: %w", err)
		}
		if err := p.Hooks.OnInitPipelines(p, p.cmdList); err != nil {
			p.closeList()
			return fmt.Errorf("vkframe: init pipelines: %w", err)
		}
		if err := p.ExecuteCommandList(); err != nil {
			return fmt.Errorf("vkframe: start: %w", err)
		}
		if err := p.FlushCommandQueue(); err != nil {
			return fmt.Errorf("vkframe: start: %w", err)
		}
	}

	if err := p.Resize(p.width, p.height); err != nil {
		return fmt.Errorf("vkframe: start: %w", err)
	}
	return nil
}

// ResetCommandList opens the command list against alloc. The list must be closed.
func (p *GraphicsApp) ResetCommandList(alloc CommandAllocator) error {
	if p.cmdOpen {
		return fmt.Errorf("%w: command list is already open", ErrInvalidArgument)
	}
	if err := p.cmdList.Reset(alloc, nil); err != nil {
		return deviceErr("reset command list", err)
	}
	p.cmdOpen = true
	return nil
}

// ExecuteCommandList closes the open command list and submits it.
func (p *GraphicsApp) ExecuteCommandList() error {
	if !p.cmdOpen {
		return fmt.Errorf("%w: command list is not open", ErrInvalidArgument)
	}
	if err := p.closeList(); err != nil {
		return err
	}
	if err := p.Queue.ExecuteCommandLists(p.cmdList); err != nil {
		return deviceErr("execute command list", err)
	}
	return nil
}

func (p *GraphicsApp) closeList() error {
	if !p.cmdOpen {
		return nil
	}
	p.cmdOpen = false
	if err := p.cmdList.Close(); err != nil {
		return deviceErr("close command list", err)
	}
	return nil
}

// Signal enqueues a fence checkpoint after all submitted work.
func (p *GraphicsApp) Signal() (uint64, error) {
	return p.fence.Signal(p.Queue)
}

// FlushCommandQueue blocks until the GPU has finished all submitted work.
func (p *GraphicsApp) FlushCommandQueue() error {
	return p.fence.Flush(p.Queue)
}

// Resize flushes the queue and recreates every size dependent resource.
// On failure the resize stays pending and no frames are rendered until a later
// resize succeeds.
func (p *GraphicsApp) Resize(width, height int) error {
	if err := p.expect("resize", StateDeviceReady, StateRunning); err != nil {
		return err
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: resize to %dx%d", ErrInvalidArgument, width, height)
	}
	prev := p.state
	p.state = StateResizing
	defer func() { p.state = prev }()

	if err := p.resize(width, height); err != nil {
		p.pendingResize = true
		p.width, p.height = width, height
		Logger().Warn("vkframe: resize failed", "width", width, "height", height, "err", err)
		return fmt.Errorf("vkframe: resize: %w", err)
	}
	p.pendingResize = false
	Logger().Info("vkframe: resized", "width", width, "height", height)
	return nil
}

func (p *GraphicsApp) resize(width, height int) error {
	if err := p.FlushCommandQueue(); err != nil {
		return err
	}
	// Every slot is idle after the flush.
	if p.frames != nil {
		p.frames.TrimUploads()
	}
	p.releaseSizeDependent()

	if err := p.swapChain.ResizeBuffers(SwapChainBufferCount, width, height); err != nil {
		return deviceErr("resize swap chain", err)
	}
	p.currBackBuffer = 0
	if ix, ok := p.swapChain.(backBufferIndexer); ok {
		p.currBackBuffer = ix.CurrentBackBufferIndex()
	}

	for i := range p.backBuffers {
		buf, err := p.swapChain.Buffer(i)
		if err != nil {
			return deviceErr("get swap chain buffer", err)
		}
		p.backBuffers[i] = buf
		if err := p.rtvHeap.CreateRenderTargetView(buf, i); err != nil {
			return deviceErr("create back buffer view", err)
		}
	}

	samples := p.SampleCount()
	if p.Config.MsaaEnabled {
		t, err := p.Device.CreateTexture(TextureDesc{
			Width:         width,
			Height:        height,
			Format:        BackBufferFormat,
			SampleCount:   samples,
			SampleQuality: p.msaaQuality,
			Usage:         UsageRenderTarget,
			Initial:       StateResolveSource,
		})
		if err != nil {
			return deviceErr("create msaa target", err)
		}
		p.msaaTarget = t
		if err := p.rtvHeap.CreateRenderTargetView(t, SwapChainBufferCount); err != nil {
			return deviceErr("create msaa view", err)
		}
	}

	quality := 0
	if p.Config.MsaaEnabled {
		quality = p.msaaQuality
	}
	depth, err := p.Device.CreateTexture(TextureDesc{
		Width:         width,
		Height:        height,
		Format:        DepthStencilFormat,
		SampleCount:   samples,
		SampleQuality: quality,
		Usage:         UsageDepthStencil,
		Initial:       StateDepthWrite,
		ClearDepth:    1,
	})
	if err != nil {
		return deviceErr("create depth stencil", err)
	}
	p.depthStencil = depth
	if err := p.dsvHeap.CreateDepthStencilView(depth, 0); err != nil {
		return deviceErr("create depth stencil view", err)
	}

	p.width, p.height = width, height
	p.viewport = Viewport{Width: float32(width), Height: float32(height), MaxDepth: 1}
	p.scissor = Rect{Right: int32(width), Bottom: int32(height)}

	if p.Hooks.OnResizeFrame != nil {
		if err := p.Hooks.OnResizeFrame(p, width, height); err != nil {
			return fmt.Errorf("resize hook: %w", err)
		}
	}
	return nil
}

func (p *GraphicsApp) releaseSizeDependent() {
	for i, b := range p.backBuffers {
		if b != nil {
			b.Release()
			p.backBuffers[i] = nil
		}
	}
	if p.msaaTarget != nil {
		p.msaaTarget.Release()
		p.msaaTarget = nil
	}
	if p.depthStencil != nil {
		p.depthStencil.Release()
		p.depthStencil = nil
	}
}

// CurrentBackBuffer is the swap chain buffer the next present will show.
func (p *GraphicsApp) CurrentBackBuffer() Resource {
	return p.backBuffers[p.currBackBuffer]
}

func (p *GraphicsApp) CurrentBackBufferIndex() int { return p.currBackBuffer }

// CurrentBackBufferView is the render target to draw into: the multisampled
// target when MSAA is on, otherwise the current swap chain buffer.
func (p *GraphicsApp) CurrentBackBufferView() DescriptorHandle {
	if p.Config.MsaaEnabled {
		return DescriptorHandle{Heap: p.rtvHeap, Index: SwapChainBufferCount}
	}
	return DescriptorHandle{Heap: p.rtvHeap, Index: p.currBackBuffer}
}

func (p *GraphicsApp) DepthStencilView() DescriptorHandle {
	return DescriptorHandle{Heap: p.dsvHeap}
}

func (p *GraphicsApp) MainTargets() MainTargets {
	return MainTargets{
		Color:    p.CurrentBackBufferView(),
		Depth:    p.DepthStencilView(),
		Viewport: p.viewport,
		Scissor:  p.scissor,
	}
}

// Present shows the current back buffer and advances to the next one.
func (p *GraphicsApp) Present() error {
	sync, tearing := 1, false
	if !p.Config.VsyncEnabled {
		sync, tearing = 0, true
	}
	if err := p.swapChain.Present(sync, tearing); err != nil {
		return deviceErr("present", err)
	}
	p.currBackBuffer = (p.currBackBuffer + 1) % SwapChainBufferCount
	if ix, ok := p.swapChain.(backBufferIndexer); ok {
		p.currBackBuffer = ix.CurrentBackBufferIndex()
	}
	return nil
}

// PrepareNextFrame makes the current render target writable and sets the
// viewport and scissor.
func (p *GraphicsApp) PrepareNextFrame(cmd CommandList) {
	if p.Config.MsaaEnabled {
		cmd.ResourceBarrier(Barrier{Resource: p.msaaTarget, Before: StateResolveSource, After: StateRenderTarget})
	} else {
		cmd.ResourceBarrier(Barrier{Resource: p.CurrentBackBuffer(), Before: StatePresent, After: StateRenderTarget})
	}
	cmd.SetViewport(p.viewport)
	cmd.SetScissor(p.scissor)
}

// EndRenderFrame returns the back buffer to the present state, resolving the
// multisampled target into it first when MSAA is on.
func (p *GraphicsApp) EndRenderFrame(cmd CommandList) {
	back := p.CurrentBackBuffer()
	if !p.Config.MsaaEnabled {
		cmd.ResourceBarrier(Barrier{Resource: back, Before: StateRenderTarget, After: StatePresent})
		return
	}
	cmd.ResourceBarrier(
		Barrier{Resource: p.msaaTarget, Before: StateRenderTarget, After: StateResolveSource},
		Barrier{Resource: back, Before: StatePresent, After: StateResolveDest},
	)
	cmd.ResolveSubresource(back, p.msaaTarget, BackBufferFormat)
	cmd.ResourceBarrier(Barrier{Resource: back, Before: StateResolveDest, After: StatePresent})
}

// BeginMainPass begins a render pass over the main targets, clearing them when
// clear is non-nil.
func (p *GraphicsApp) BeginMainPass(cmd CommandList, clear *[4]float32) {
	desc := RenderPassDesc{Color: p.CurrentBackBufferView(), Depth: p.DepthStencilView()}
	if clear != nil {
		depth, stencil := float32(1), uint8(0)
		desc.ClearColor, desc.ClearDepth, desc.ClearStencil = clear, &depth, &stencil
	}
	cmd.BeginRenderPass(desc)
}

// RenderFrame records, submits and presents one frame in the current frame slot.
// Failures skip the frame; the command list is always left closed.
func (p *GraphicsApp) RenderFrame() error {
	if p.state != StateRunning || p.paused || p.pendingResize {
		return nil
	}
	err := p.renderFrame()
	if err != nil {
		p.closeList()
		p.stats.FramesSkipped++
		Logger().Warn("vkframe: frame skipped", "err", err)
		return fmt.Errorf("vkframe: render frame: %w", err)
	}
	p.stats.FramesRendered++
	p.updateStats()
	return nil
}

func (p *GraphicsApp) renderFrame() error {
	slot, err := p.frames.Begin(p.fence)
	if err != nil {
		return err
	}
	if err := p.ResetCommandList(slot.Allocator); err != nil {
		return err
	}
	p.PrepareNextFrame(p.cmdList)
	if p.Hooks.OnRenderFrame != nil {
		if err := p.Hooks.OnRenderFrame(p, p.cmdList, slot); err != nil {
			return fmt.Errorf("render hook: %w", err)
		}
	}
	p.EndRenderFrame(p.cmdList)
	if err := p.ExecuteCommandList(); err != nil {
		return err
	}
	presentErr := p.Present()
	// The list was submitted, so the slot must be fenced even if present failed.
	if err := p.frames.End(p.fence, p.Queue); err != nil {
		return err
	}
	return presentErr
}

func (p *GraphicsApp) updateStats() {
	p.statsFrames++
	total := p.clock.TotalTime()
	if elapsed := total - p.statsStart; elapsed >= time.Second {
		p.stats.FPS = float64(p.statsFrames) / elapsed.Seconds()
		p.stats.FrameTime = elapsed / time.Duration(p.statsFrames)
		p.statsFrames = 0
		p.statsStart = total
		Logger().Debug("vkframe: frame stats", "fps", p.stats.FPS, "frameTime", p.stats.FrameTime)
	}
}

func (p *GraphicsApp) pause() {
	p.paused = true
	p.clock.Stop()
}

func (p *GraphicsApp) resume() {
	if p.minimized || p.dragging {
		return
	}
	p.paused = false
	p.clock.Start()
}

// HandleEvent applies a window event. Size changes during a border drag are
// collected and applied once when the drag ends.
func (p *GraphicsApp) HandleEvent(ev Event) error {
	if p.Hooks.OnMessage != nil && p.Hooks.OnMessage(p, ev) {
		return nil
	}
	switch e := ev.(type) {
	case ResizeBeginEvent:
		p.dragging = true
		p.pause()
	case ResizeEndEvent:
		p.dragging = false
		p.resume()
		if p.dragDirty || p.pendingResize {
			p.dragDirty = false
			return p.applySize(p.width, p.height)
		}
	case ResizeEvent:
		return p.onResizeEvent(e)
	case ActivateEvent:
		if e.Active {
			p.resume()
		} else {
			p.pause()
		}
	case MouseEvent:
		if p.Hooks.OnMouseEvent != nil {
			p.Hooks.OnMouseEvent(p, e)
		}
	case KeyEvent:
		if p.Hooks.OnKeyEvent != nil {
			p.Hooks.OnKeyEvent(p, e)
		}
	case CloseEvent:
		p.quit = true
	}
	return nil
}

func (p *GraphicsApp) onResizeEvent(e ResizeEvent) error {
	if e.Minimized || e.Width <= 0 || e.Height <= 0 {
		p.minimized = true
		p.pause()
		return nil
	}
	if p.minimized {
		p.minimized = false
		p.resume()
	}
	if p.dragging {
		p.width, p.height = e.Width, e.Height
		p.dragDirty = true
		return nil
	}
	if e.Width == p.width && e.Height == p.height && !p.pendingResize {
		return nil
	}
	return p.applySize(e.Width, e.Height)
}

// applySize resizes now when running, otherwise remembers the size for Start.
func (p *GraphicsApp) applySize(width, height int) error {
	if p.state != StateRunning {
		p.width, p.height = width, height
		return nil
	}
	return p.Resize(width, height)
}

// Run drives the app until ctx is done, the events channel is closed, a
// CloseEvent arrives or the device is lost. Pending events are always handled
// before the next frame.
func (p *GraphicsApp) Run(ctx context.Context, events <-chan Event) error {
	if err := p.expect("run", StateRunning); err != nil {
		return err
	}
	for !p.quit {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			p.handle(ev)
			continue
		default:
		}

		if p.paused || p.pendingResize {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case ev, ok := <-events:
				if !ok {
					return nil
				}
				p.handle(ev)
			}
			continue
		}

		p.clock.Tick()
		if p.Hooks.OnFrameMoved != nil {
			if err := p.Hooks.OnFrameMoved(p, p.clock); err != nil {
				Logger().Warn("vkframe: frame update failed", "err", err)
				p.stats.FramesSkipped++
				continue
			}
		}
		if err := p.RenderFrame(); errors.Is(err, ErrDeviceLost) {
			return err
		}
	}
	return nil
}

func (p *GraphicsApp) handle(ev Event) {
	if err := p.HandleEvent(ev); err != nil {
		Logger().Warn("vkframe: event failed", "event", fmt.Sprintf("%T", ev), "err", err)
	}
}

// Shutdown flushes the queue and releases every GPU object in reverse order of
// creation. It is safe to call after a failed init.
func (p *GraphicsApp) Shutdown() {
	if p.state == StateShuttingDown {
		return
	}
	p.state = StateShuttingDown
	if p.fence != nil && p.Queue != nil {
		p.closeList()
		if err := p.FlushCommandQueue(); err != nil {
			Logger().Warn("vkframe: final flush failed", "err", err)
		}
	}
	if p.Hooks.OnDestroy != nil && p.Device != nil {
		p.Hooks.OnDestroy(p)
	}
	if p.frames != nil {
		p.frames.Release()
		p.frames = nil
	}
	p.releaseSizeDependent()
	p.releaseDevice()
	Logger().Info("vkframe: shut down")
}

func (p *GraphicsApp) releaseDevice() {
	if p.dsvHeap != nil {
		p.dsvHeap.Release()
		p.dsvHeap = nil
	}
	if p.rtvHeap != nil {
		p.rtvHeap.Release()
		p.rtvHeap = nil
	}
	if p.swapChain != nil {
		p.swapChain.Release()
		p.swapChain = nil
	}
	if p.fence != nil {
		p.fence.Release()
		p.fence = nil
	}
	if p.cmdList != nil {
		p.cmdList.Release()
		p.cmdList = nil
	}
	if p.allocator != nil {
		p.allocator.Release()
		p.allocator = nil
	}
	p.Queue = nil
	if p.Device != nil {
		p.Device.Release()
		p.Device = nil
	}
}
