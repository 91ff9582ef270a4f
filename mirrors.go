package vkframe

import (
	"fmt"
)

// MaxMirrorRegions is limited by the eight bits of the stencil buffer.
const MaxMirrorRegions = 8

// Root signature slots used by MirrorRenderer pipelines.
const (
	MirrorPassSlot = iota
	MirrorObjectSlot
	MirrorShadowSlot
)

// TargetFormats describes the targets pipelines render into.
type TargetFormats struct {
	Color         Format
	Depth         Format
	SampleCount   int
	SampleQuality int
}

// TargetFormats of the app's main render targets.
func (p *GraphicsApp) TargetFormats() TargetFormats {
	f := TargetFormats{Color: BackBufferFormat, Depth: DepthStencilFormat, SampleCount: p.SampleCount()}
	if p.Config.MsaaEnabled {
		f.SampleQuality = p.msaaQuality
	}
	return f
}

type MirrorShaders struct {
	SceneVS  ShaderBytecode
	ScenePS  ShaderBytecode
	ShadowVS ShaderBytecode
	MirrorPS ShaderBytecode
}

// MirrorRegion is one mirror: its surface and the objects seen in it.
type MirrorRegion struct {
	Surface   DrawItem
	Reflected []DrawItem
	// ReflectedPass holds pass constants with the lights reflected in the mirror plane.
	ReflectedPass UploadView
}

type MirrorScene struct {
	Pass       UploadView
	ShadowPass UploadView
	Objects    []DrawItem
	Mirrors    []MirrorRegion
	ClearColor [4]float32
}

// MirrorRenderer records a shadow pass, the opaque scene and up to eight
// stencil-masked mirror reflections.
type MirrorRenderer struct {
	regions    int
	shadowSize int

	rootSig   RootSignature
	table     *PipelineTable
	shadowMap Resource
	shadowDSV DescriptorHeap
	srvHeap   DescriptorHeap
}

// NewMirrorRenderer supports regions mirrors; a shadowMapSize of zero disables
// the shadow pass.
func NewMirrorRenderer(regions, shadowMapSize int) (*MirrorRenderer, error) {
	if regions < 1 || regions > MaxMirrorRegions {
		return nil, fmt.Errorf("%w: %d mirror regions, supported [1,%d]", ErrInvalidArgument, regions, MaxMirrorRegions)
	}
	if shadowMapSize < 0 {
		return nil, fmt.Errorf("%w: shadow map size %d", ErrInvalidArgument, shadowMapSize)
	}
	return &MirrorRenderer{regions: regions, shadowSize: shadowMapSize}, nil
}

func (m *MirrorRenderer) Regions() int          { return m.regions }
func (m *MirrorRenderer) Table() *PipelineTable { return m.table }

// RootSignatureDesc is pass constants at b0, object constants at b1 and the
// shadow map at t0 with a comparison sampler at s0.
func (m *MirrorRenderer) RootSignatureDesc() RootSignatureDesc {
	var d RootSignatureDesc
	d.AddConstantBufferView(0)
	d.AddConstantBufferView(1)
	d.AddDescriptorTable(DescriptorRange{Kind: RangeShaderResource, Count: 1})
	d.AddStaticSampler(StaticSampler{Register: 0, Filter: FilterComparisonLinear, Address: AddressBorder, Comparison: CompareLessEqual})
	d.AddStaticSampler(StaticSampler{Register: 1, Filter: FilterLinear, Address: AddressWrap})
	return d
}

// BuildPipelines creates the shadow map and one pipeline per pass and region.
func (m *MirrorRenderer) BuildPipelines(device Device, shaders MirrorShaders, formats TargetFormats) error {
	desc := m.RootSignatureDesc()
	if err := desc.Validate(); err != nil {
		return err
	}
	rs, err := device.CreateRootSignature(desc)
	if err != nil {
		return deviceErr("create mirror root signature", err)
	}
	m.rootSig = rs

	if m.shadowSize > 0 {
		if err := m.createShadowMap(device); err != nil {
			m.Release()
			return err
		}
	}

	base := PipelineStateDesc{
		RootSignature:      rs,
		VS:                 shaders.SceneVS,
		PS:                 shaders.ScenePS,
		InputLayout:        StandardInputLayout,
		VertexStride:       StandardVertexStride,
		DepthStencil:       DefaultDepthStencil(),
		RenderTargetFormat: formats.Color,
		DepthStencilFormat: formats.Depth,
		SampleCount:        formats.SampleCount,
		SampleQuality:      formats.SampleQuality,
	}

	b := NewPipelineTableBuilder().Add(NormalPass(), base)
	if m.shadowSize > 0 {
		shadow := base
		shadow.VS, shadow.PS = shaders.ShadowVS, nil
		shadow.RenderTargetFormat = FormatUnknown
		shadow.DepthStencilFormat = FormatD32Float
		shadow.SampleCount, shadow.SampleQuality = 1, 0
		shadow.Rasterizer = RasterizerState{Cull: CullBack, DepthBias: 100000, SlopeScaledDepthBias: 1}
		b.Add(ShadowPass(), shadow)
	}
	for r := 0; r < m.regions; r++ {
		bit := uint8(1) << r

		mark := base
		mark.PS = nil
		mark.NoColorWrite = true
		mark.DepthStencil = DepthStencilState{
			DepthTest: true, DepthFunc: CompareLess,
			StencilEnable: true, StencilReadMask: 0xff, StencilWriteMask: bit,
			StencilFunc: CompareAlways, StencilPass: StencilReplace,
		}
		b.Add(MirrorStencilPass(r), mark)

		masked := base
		masked.DepthStencil = DepthStencilState{
			DepthTest: true, DepthWrite: true, DepthFunc: CompareLess,
			StencilEnable: true, StencilReadMask: bit, StencilWriteMask: bit,
			StencilFunc: CompareEqual, StencilPass: StencilKeep,
		}
		// Reflection flips the winding order.
		masked.Rasterizer.Cull = CullFront
		b.Add(MirrorMaskedPass(r), masked)

		composite := base
		composite.PS = shaders.MirrorPS
		composite.Blend = BlendAlpha
		b.Add(MirrorCompositePass(r), composite)
	}

	if m.table, err = b.Build(device); err != nil {
		m.Release()
		return err
	}
	return nil
}

func (m *MirrorRenderer) createShadowMap(device Device) error {
	var err error
	m.shadowMap, err = device.CreateTexture(TextureDesc{
		Width:       m.shadowSize,
		Height:      m.shadowSize,
		Format:      FormatD32Float,
		SampleCount: 1,
		Usage:       UsageDepthStencil | UsageShaderResource,
		Initial:     StateShaderResource,
		ClearDepth:  1,
	})
	if err != nil {
		return deviceErr("create shadow map", err)
	}
	if m.shadowDSV, err = device.CreateDescriptorHeap(HeapDSV, 1); err != nil {
		return deviceErr("create shadow dsv heap", err)
	}
	if err = m.shadowDSV.CreateDepthStencilView(m.shadowMap, 0); err != nil {
		return deviceErr("create shadow dsv", err)
	}
	if m.srvHeap, err = device.CreateDescriptorHeap(HeapCBVSRVUAV, 1); err != nil {
		return deviceErr("create shadow srv heap", err)
	}
	if err = m.srvHeap.CreateShaderResourceView(m.shadowMap, 0); err != nil {
		return deviceErr("create shadow srv", err)
	}
	return nil
}

func (m *MirrorRenderer) bind(cmd CommandList, id PassID, pass UploadView) {
	m.table.Bind(cmd, id)
	cmd.SetGraphicsRootConstantBufferView(MirrorPassSlot, pass)
	if m.srvHeap != nil && id.Kind != PassShadow {
		cmd.SetGraphicsRootDescriptorTable(MirrorShadowSlot, DescriptorHandle{Heap: m.srvHeap})
	}
}

// Render records the frame: the shadow pass, the opaque scene, then for every
// mirror the stencil mark, the masked reflection and the blended surface.
func (m *MirrorRenderer) Render(cmd CommandList, scene MirrorScene, targets MainTargets) error {
	if m.table == nil {
		return fmt.Errorf("%w: mirror pipelines not built", ErrInvalidArgument)
	}
	if len(scene.Mirrors) > m.regions {
		return fmt.Errorf("%w: %d mirrors, renderer built for %d", ErrInvalidArgument, len(scene.Mirrors), m.regions)
	}

	if m.shadowMap != nil {
		cmd.ResourceBarrier(Barrier{Resource: m.shadowMap, Before: StateShaderResource, After: StateDepthWrite})
		depth := float32(1)
		cmd.BeginRenderPass(RenderPassDesc{Depth: DescriptorHandle{Heap: m.shadowDSV}, ClearDepth: &depth})
		size := float32(m.shadowSize)
		cmd.SetViewport(Viewport{Width: size, Height: size, MaxDepth: 1})
		cmd.SetScissor(Rect{Right: int32(m.shadowSize), Bottom: int32(m.shadowSize)})
		m.bind(cmd, ShadowPass(), scene.ShadowPass)
		for _, o := range scene.Objects {
			o.Draw(cmd, MirrorObjectSlot)
		}
		cmd.EndRenderPass()
		cmd.ResourceBarrier(Barrier{Resource: m.shadowMap, Before: StateDepthWrite, After: StateShaderResource})
	}

	clearColor := scene.ClearColor
	depth, stencil := float32(1), uint8(0)
	cmd.BeginRenderPass(RenderPassDesc{
		Color: targets.Color, Depth: targets.Depth,
		ClearColor: &clearColor, ClearDepth: &depth, ClearStencil: &stencil,
	})
	cmd.SetViewport(targets.Viewport)
	cmd.SetScissor(targets.Scissor)

	m.bind(cmd, NormalPass(), scene.Pass)
	for _, o := range scene.Objects {
		o.Draw(cmd, MirrorObjectSlot)
	}

	for r, region := range scene.Mirrors {
		ref := uint32(1) << r

		m.bind(cmd, MirrorStencilPass(r), scene.Pass)
		cmd.SetStencilRef(ref)
		region.Surface.Draw(cmd, MirrorObjectSlot)

		m.bind(cmd, MirrorMaskedPass(r), region.ReflectedPass)
		cmd.SetStencilRef(ref)
		for _, o := range region.Reflected {
			o.Draw(cmd, MirrorObjectSlot)
		}

		m.bind(cmd, MirrorCompositePass(r), scene.Pass)
		region.Surface.Draw(cmd, MirrorObjectSlot)
	}
	cmd.EndRenderPass()
	return nil
}

func (m *MirrorRenderer) Release() {
	if m.table != nil {
		m.table.Release()
		m.table = nil
	}
	if m.srvHeap != nil {
		m.srvHeap.Release()
		m.srvHeap = nil
	}
	if m.shadowDSV != nil {
		m.shadowDSV.Release()
		m.shadowDSV = nil
	}
	if m.shadowMap != nil {
		m.shadowMap.Release()
		m.shadowMap = nil
	}
	if m.rootSig != nil {
		m.rootSig.Release()
		m.rootSig = nil
	}
}
