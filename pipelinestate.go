package vkframe

import (
	"cmp"
	"fmt"
	"slices"
)

type CompareFunc int

const (
	CompareNever CompareFunc = iota
	CompareLess
	CompareEqual
	CompareLessEqual
	CompareGreater
	CompareNotEqual
	CompareGreaterEqual
	CompareAlways
)

type StencilOp int

const (
	StencilKeep StencilOp = iota
	StencilZero
	StencilReplace
	StencilIncrement
)

type CullMode int

const (
	CullBack CullMode = iota
	CullFront
	CullNone
)

type BlendMode int

const (
	BlendOpaque BlendMode = iota
	BlendAlpha
)

type RasterizerState struct {
	Cull                 CullMode
	DepthBias            int32
	SlopeScaledDepthBias float32
}

type DepthStencilState struct {
	DepthTest        bool
	DepthWrite       bool
	DepthFunc        CompareFunc
	StencilEnable    bool
	StencilReadMask  uint8
	StencilWriteMask uint8
	StencilFunc      CompareFunc
	StencilPass      StencilOp
}

// DefaultDepthStencil tests and writes depth with no stencil.
func DefaultDepthStencil() DepthStencilState {
	return DepthStencilState{DepthTest: true, DepthWrite: true, DepthFunc: CompareLess}
}

type InputElement struct {
	Semantic string
	Format   Format
	Offset   uint32
}

type PipelineStateDesc struct {
	RootSignature RootSignature
	VS, PS        ShaderBytecode
	InputLayout   []InputElement
	VertexStride  uint32

	Blend        BlendMode
	NoColorWrite bool
	Rasterizer   RasterizerState
	DepthStencil DepthStencilState

	// RenderTargetFormat is FormatUnknown for depth-only passes.
	RenderTargetFormat Format
	DepthStencilFormat Format
	SampleCount        int
	SampleQuality      int
}

// PassKind is the kind of a render pass keyed in a PipelineTable.
type PassKind int

const (
	PassNormal PassKind = iota
	PassShadow
	PassMirrorStencil
	PassMirrorMasked
	PassMirrorComposite
	PassOcclusionQuery
	PassComposite
)

var passKindNames = [...]string{"Normal", "Shadow", "MirrorStencil", "MirrorMasked", "MirrorComposite", "OcclusionQuery", "Composite"}

func (k PassKind) String() string {
	if k < 0 || int(k) >= len(passKindNames) {
		return fmt.Sprintf("PassKind(%d)", int(k))
	}
	return passKindNames[k]
}

// PassID names a table entry. Region is only meaningful for the mirror kinds.
type PassID struct {
	Kind   PassKind
	Region int
}

func NormalPass() PassID               { return PassID{Kind: PassNormal} }
func ShadowPass() PassID               { return PassID{Kind: PassShadow} }
func OcclusionQueryPass() PassID       { return PassID{Kind: PassOcclusionQuery} }
func CompositePass() PassID            { return PassID{Kind: PassComposite} }
func MirrorStencilPass(r int) PassID   { return PassID{Kind: PassMirrorStencil, Region: r} }
func MirrorMaskedPass(r int) PassID    { return PassID{Kind: PassMirrorMasked, Region: r} }
func MirrorCompositePass(r int) PassID { return PassID{Kind: PassMirrorComposite, Region: r} }

func (id PassID) String() string {
	switch id.Kind {
	case PassMirrorStencil, PassMirrorMasked, PassMirrorComposite:
		return fmt.Sprintf("%v(%d)", id.Kind, id.Region)
	}
	return id.Kind.String()
}

// PipelineStateEntry pairs a pipeline with the root signature it was built for.
type PipelineStateEntry struct {
	State         PipelineState
	RootSignature RootSignature
}

// PipelineTableBuilder collects pipeline descriptions; Build creates them all.
type PipelineTableBuilder struct {
	descs map[PassID]PipelineStateDesc
	order []PassID
	err   error
}

func NewPipelineTableBuilder() *PipelineTableBuilder {
	return &PipelineTableBuilder{descs: make(map[PassID]PipelineStateDesc)}
}

// Add registers desc for id. Errors are reported by Build.
func (b *PipelineTableBuilder) Add(id PassID, desc PipelineStateDesc) *PipelineTableBuilder {
	if b.err != nil {
		return b
	}
	if _, ok := b.descs[id]; ok {
		b.err = fmt.Errorf("%w: pipeline %v added twice", ErrInvalidArgument, id)
		return b
	}
	if desc.RootSignature == nil {
		b.err = fmt.Errorf("%w: pipeline %v has no root signature", ErrInvalidArgument, id)
		return b
	}
	b.descs[id] = desc
	b.order = append(b.order, id)
	return b
}

// Build creates every pipeline. On failure the ones already created are released.
func (b *PipelineTableBuilder) Build(device Device) (*PipelineTable, error) {
	if b.err != nil {
		return nil, b.err
	}
	t := &PipelineTable{entries: make(map[PassID]PipelineStateEntry, len(b.order))}
	for _, id := range b.order {
		desc := b.descs[id]
		ps, err := device.CreatePipelineState(desc)
		if err != nil {
			t.Release()
			return nil, fmt.Errorf("vkframe: pipeline %v: %w", id, deviceErr("create pipeline state", err))
		}
		t.entries[id] = PipelineStateEntry{State: ps, RootSignature: desc.RootSignature}
	}
	Logger().Debug("vkframe: pipeline table built", "entries", len(t.entries))
	return t, nil
}

// PipelineTable is immutable once built.
type PipelineTable struct {
	entries map[PassID]PipelineStateEntry
}

func (t *PipelineTable) Get(id PassID) (PipelineStateEntry, bool) {
	e, ok := t.entries[id]
	return e, ok
}

func (t *PipelineTable) MustGet(id PassID) PipelineStateEntry {
	e, ok := t.entries[id]
	if !ok {
		panic(fmt.Sprintf("vkframe: no pipeline for pass %v", id))
	}
	return e
}

func (t *PipelineTable) Len() int { return len(t.entries) }

// IDs returns the keys ordered by kind, then region.
func (t *PipelineTable) IDs() []PassID {
	ids := make([]PassID, 0, len(t.entries))
	for id := range t.entries {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b PassID) int {
		if c := cmp.Compare(a.Kind, b.Kind); c != 0 {
			return c
		}
		return cmp.Compare(a.Region, b.Region)
	})
	return ids
}

// Bind sets the pipeline and root signature of id on cmd.
func (t *PipelineTable) Bind(cmd CommandList, id PassID) {
	e := t.MustGet(id)
	cmd.SetPipelineState(e.State)
	cmd.SetGraphicsRootSignature(e.RootSignature)
}

// Release releases the pipeline states. Root signatures belong to the caller.
func (t *PipelineTable) Release() {
	for id, e := range t.entries {
		e.State.Release()
		delete(t.entries, id)
	}
}
