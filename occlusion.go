package vkframe

import (
	"fmt"
)

// QueryResultSize is the size of one resolved query result.
const QueryResultSize = 8

// Root signature slots used by OcclusionRenderer pipelines.
const (
	OcclusionPassSlot = iota
	OcclusionObjectSlot
)

type OcclusionShaders struct {
	VS          ShaderBytecode
	PS          ShaderBytecode
	CompositePS ShaderBytecode
}

// OccludedInstance is an expensive body drawn only when its cheap proxy passed
// the depth test.
type OccludedInstance struct {
	Proxy DrawItem
	Body  DrawItem
}

type OcclusionScene struct {
	Pass       UploadView
	Occluders  []DrawItem
	Instances  []OccludedInstance
	Composite  []DrawItem
	ClearColor [4]float32
}

// OcclusionRenderer skips occluded instances on the GPU with query predication.
type OcclusionRenderer struct {
	instances   int
	predication bool

	queries QueryHeap
	results Resource
	rootSig RootSignature
	table   *PipelineTable
}

// NewOcclusionRenderer creates a query heap and a predication buffer for
// instances instances.
func NewOcclusionRenderer(device Device, instances int) (*OcclusionRenderer, error) {
	if instances < 1 {
		return nil, fmt.Errorf("%w: %d occlusion instances", ErrInvalidArgument, instances)
	}
	o := &OcclusionRenderer{instances: instances, predication: device.Capabilities().Predication}
	var err error
	if o.queries, err = device.CreateQueryHeap(QueryBinaryOcclusion, instances); err != nil {
		return nil, deviceErr("create query heap", err)
	}
	if o.results, err = device.CreateBuffer(uint64(instances)*QueryResultSize, StatePredication); err != nil {
		o.Release()
		return nil, deviceErr("create query results", err)
	}
	if !o.predication {
		Logger().Info("vkframe: predication unsupported, occluded instances are drawn")
	}
	return o, nil
}

func (o *OcclusionRenderer) Instances() int        { return o.instances }
func (o *OcclusionRenderer) Predicated() bool      { return o.predication }
func (o *OcclusionRenderer) Table() *PipelineTable { return o.table }

func (o *OcclusionRenderer) RootSignatureDesc() RootSignatureDesc {
	var d RootSignatureDesc
	d.AddConstantBufferView(0)
	d.AddConstantBufferView(1)
	return d
}

func (o *OcclusionRenderer) BuildPipelines(device Device, shaders OcclusionShaders, formats TargetFormats) error {
	desc := o.RootSignatureDesc()
	if err := desc.Validate(); err != nil {
		return err
	}
	rs, err := device.CreateRootSignature(desc)
	if err != nil {
		return deviceErr("create occlusion root signature", err)
	}
	o.rootSig = rs

	base := PipelineStateDesc{
		RootSignature:      rs,
		VS:                 shaders.VS,
		PS:                 shaders.PS,
		InputLayout:        StandardInputLayout,
		VertexStride:       StandardVertexStride,
		DepthStencil:       DefaultDepthStencil(),
		RenderTargetFormat: formats.Color,
		DepthStencilFormat: formats.Depth,
		SampleCount:        formats.SampleCount,
		SampleQuality:      formats.SampleQuality,
	}

	query := base
	query.PS = nil
	query.NoColorWrite = true
	query.DepthStencil.DepthWrite = false
	query.Rasterizer.Cull = CullNone

	composite := base
	composite.PS = shaders.CompositePS
	composite.Blend = BlendAlpha
	composite.DepthStencil.DepthWrite = false

	o.table, err = NewPipelineTableBuilder().
		Add(NormalPass(), base).
		Add(OcclusionQueryPass(), query).
		Add(CompositePass(), composite).
		Build(device)
	if err != nil {
		o.rootSig.Release()
		o.rootSig = nil
		return err
	}
	return nil
}

func (o *OcclusionRenderer) bind(cmd CommandList, id PassID, pass UploadView) {
	o.table.Bind(cmd, id)
	cmd.SetGraphicsRootConstantBufferView(OcclusionPassSlot, pass)
}

// Render draws the occluders, queries every proxy, resolves the results and
// draws each body predicated on its proxy's result, then the composite layer.
func (o *OcclusionRenderer) Render(cmd CommandList, scene OcclusionScene, targets MainTargets) error {
	if o.table == nil {
		return fmt.Errorf("%w: occlusion pipelines not built", ErrInvalidArgument)
	}
	n := len(scene.Instances)
	if n > o.instances {
		return fmt.Errorf("%w: %d instances, renderer built for %d", ErrInvalidArgument, n, o.instances)
	}

	clearColor := scene.ClearColor
	depth, stencil := float32(1), uint8(0)
	cmd.BeginRenderPass(RenderPassDesc{
		Color: targets.Color, Depth: targets.Depth,
		ClearColor: &clearColor, ClearDepth: &depth, ClearStencil: &stencil,
	})
	cmd.SetViewport(targets.Viewport)
	cmd.SetScissor(targets.Scissor)

	o.bind(cmd, NormalPass(), scene.Pass)
	for _, d := range scene.Occluders {
		d.Draw(cmd, OcclusionObjectSlot)
	}

	// Proxies must always be drawn.
	cmd.SetPredication(nil, 0, PredicationEqualZero)
	o.bind(cmd, OcclusionQueryPass(), scene.Pass)
	for i, inst := range scene.Instances {
		cmd.BeginQuery(o.queries, i)
		inst.Proxy.Draw(cmd, OcclusionObjectSlot)
		cmd.EndQuery(o.queries, i)
	}
	cmd.EndRenderPass()

	if n > 0 {
		cmd.ResourceBarrier(Barrier{Resource: o.results, Before: StatePredication, After: StateCopyDest})
		cmd.ResolveQueryData(o.queries, 0, n, o.results, 0)
		cmd.ResourceBarrier(Barrier{Resource: o.results, Before: StateCopyDest, After: StatePredication})
	}

	cmd.BeginRenderPass(RenderPassDesc{Color: targets.Color, Depth: targets.Depth})
	cmd.SetViewport(targets.Viewport)
	cmd.SetScissor(targets.Scissor)
	o.bind(cmd, NormalPass(), scene.Pass)
	for i, inst := range scene.Instances {
		if o.predication {
			cmd.SetPredication(o.results, uint64(i)*QueryResultSize, PredicationEqualZero)
		}
		inst.Body.Draw(cmd, OcclusionObjectSlot)
	}
	if o.predication {
		cmd.SetPredication(nil, 0, PredicationEqualZero)
	}

	if len(scene.Composite) > 0 {
		o.bind(cmd, CompositePass(), scene.Pass)
		for _, d := range scene.Composite {
			d.Draw(cmd, OcclusionObjectSlot)
		}
	}
	cmd.EndRenderPass()
	return nil
}

func (o *OcclusionRenderer) Release() {
	if o.table != nil {
		o.table.Release()
		o.table = nil
	}
	if o.rootSig != nil {
		o.rootSig.Release()
		o.rootSig = nil
	}
	if o.results != nil {
		o.results.Release()
		o.results = nil
	}
	if o.queries != nil {
		o.queries.Release()
		o.queries = nil
	}
}
